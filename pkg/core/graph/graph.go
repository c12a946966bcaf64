// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graph holds the in-memory computation graph that the numeric debugging tools operate on.
//
// A Graph is an ordered list of Node objects. Each Node has an operation type (OpType), an ordered list of
// arguments (Arg) -- each either a reference to a producer Node or a literal value -- and exactly one output,
// consumed by zero or more downstream nodes.
//
// The main elements in the package are:
//
//   - Graph: owns the nodes, keeps them in declaration order (which is always a valid topological order,
//     since a Node can only be created from nodes that already exist), and hands out stable NodeId values
//     that are never reused.
//
//   - Node: a unit of computation. Besides its arguments it carries a mutable metadata slot (Node.Meta),
//     used by passes (e.g. debug handles) to attach information that must survive graph transformations.
//
//   - Copy and rewrite primitives (Graph.ShallowCopy, Graph.DeepCopy, Graph.ReplaceInput,
//     Graph.ReplaceAllUsesWith, Graph.NewNodeBefore, Graph.Remove): they keep metadata attached to the
//     corresponding nodes, see MetaCloner and InputRekeyer.
//
// # Error Handling
//
// Like graph building elsewhere in GoMLX, misuse (nil nodes, nodes from a different graph, removing nodes
// still in use, etc.) "throws" an error with panic, using github.com/gomlx/exceptions.
// Passes that run many of these primitives convert them back to errors with exceptions.TryCatch.
package graph

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Graph with the nodes of a computation and their dependencies.
type Graph struct {
	id   GraphId
	name string

	// nodes in declaration order, which is also a topological order.
	nodes []*Node

	// idToNode indexes the live nodes.
	idToNode map[NodeId]*Node

	// nextId is the id of the next node created. Ids are never reused, even after a node is removed.
	nextId NodeId

	// aliasToNode allows retrieval or nodes by their aliases.
	aliasToNode map[string]*Node

	// aliasScope is the current scope for aliases
	aliasScope []string

	// meta holds graph level metadata, see Graph.Meta.
	meta map[string]any

	traced bool
}

// GraphId is globally unique.
var (
	muGraphCount sync.Mutex
	graphCount   GraphId
)

// GraphId is a globally unique id of a Graph within the process. It's a counter that starts with 0.
type GraphId int

// NodeId is a unique id of a Node within a Graph.
//
// It is assigned at the creation of the node and never changes: copies of the graph (see Graph.DeepCopy) keep
// the same NodeId for the corresponding nodes.
type NodeId int

// InvalidNodeId indicates a node that doesn't exist.
const InvalidNodeId = NodeId(-1)

// NewGraph constructs an empty Graph. If name is empty, one is generated.
func NewGraph(name string) *Graph {
	muGraphCount.Lock()
	defer muGraphCount.Unlock()

	if name == "" {
		name = fmt.Sprintf("graph_#%d", graphCount)
	}
	g := &Graph{
		id:          graphCount,
		name:        name,
		idToNode:    make(map[NodeId]*Node),
		aliasToNode: make(map[string]*Node),
		meta:        make(map[string]any),
	}
	graphCount += 1
	return g
}

// Name of the Graph.
func (g *Graph) Name() string { return g.name }

// GraphId is a globally unique id of the graph.
func (g *Graph) GraphId() GraphId { return g.id }

// SetTraced defines whether each node created will also keep a stack-trace of where it was created.
// See Node.Trace. Useful for debugging, but expensive.
func (g *Graph) SetTraced(traced bool) *Graph {
	g.traced = traced
	return g
}

// IsValid returns whether the Graph is in a valid state.
func (g *Graph) IsValid() bool {
	return g != nil && g.idToNode != nil
}

// CheckValid returns an error if the graph is nil or not initialized with NewGraph.
func (g *Graph) CheckValid() error {
	if g == nil {
		return errors.Errorf("the Graph is nil")
	}
	if g.idToNode == nil {
		return errors.Errorf("Graph %q was not created with NewGraph", g.name)
	}
	return nil
}

// AssertValid panics if the graph is nil or invalid.
func (g *Graph) AssertValid() {
	err := g.CheckValid()
	if err != nil {
		panic(err)
	}
}

// NumNodes returns the number of live nodes in the graph.
func (g *Graph) NumNodes() int {
	return len(g.nodes)
}

// Nodes returns the live nodes of the graph in declaration order.
// The returned slice is a copy and can be changed freely.
func (g *Graph) Nodes() []*Node {
	return slices.Clone(g.nodes)
}

// NodeById returns the node with the given id, or nil if it doesn't exist (or was removed).
func (g *Graph) NodeById(id NodeId) *Node {
	return g.idToNode[id]
}

// Meta returns the graph level metadata slot. It can be mutated directly.
//
// Values implementing MetaCloner are rebuilt by Graph.DeepCopy.
func (g *Graph) Meta() map[string]any {
	return g.meta
}

// Users returns the nodes that take n as one of its arguments, in declaration order.
// A user that takes n more than once is listed only once.
func (g *Graph) Users(n *Node) []*Node {
	g.assertOwns(n)
	var users []*Node
	for _, candidate := range g.nodes {
		if candidate.usesNode(n) {
			users = append(users, candidate)
		}
	}
	return users
}

// assertOwns panics if n is nil or not a live node of g.
func (g *Graph) assertOwns(n *Node) {
	g.AssertValid()
	if n == nil {
		exceptions.Panicf("nil Node given to Graph %q", g.name)
	}
	if g.idToNode[n.id] != n {
		exceptions.Panicf("Node %s is not part of Graph %q (or it has been removed)", n, g.name)
	}
}

// NewNode creates a new node at the end of the graph (the declaration order).
// All producer nodes in args must belong to g.
func (g *Graph) NewNode(op OpType, dtype dtypes.DType, args ...Arg) *Node {
	n := g.newNode(op, dtype, args)
	g.nodes = append(g.nodes, n)
	return n
}

// NewNodeBefore creates a new node and inserts it just before anchor in the declaration order.
//
// This is used by rewrites that instrument an existing computation (e.g. observers) and need the new node
// to be visible to nodes that come after anchor. All producers in args must come before anchor.
func (g *Graph) NewNodeBefore(anchor *Node, op OpType, dtype dtypes.DType, args ...Arg) *Node {
	g.assertOwns(anchor)
	anchorIdx := g.position(anchor)
	for _, arg := range args {
		if arg.IsNode() && g.position(arg.node) >= anchorIdx {
			exceptions.Panicf("NewNodeBefore(%s): argument %s is declared after the anchor", anchor, arg.node)
		}
	}
	n := g.newNode(op, dtype, args)
	g.nodes = slices.Insert(g.nodes, anchorIdx, n)
	return n
}

func (g *Graph) newNode(op OpType, dtype dtypes.DType, args []Arg) *Node {
	g.AssertValid()
	for ii, arg := range args {
		if arg.IsNode() && g.idToNode[arg.node.id] != arg.node {
			exceptions.Panicf("argument #%d (%s) of new %q node is not part of Graph %q", ii, arg.node, op, g.name)
		}
	}
	n := &Node{
		graph: g,
		id:    g.nextId,
		op:    op,
		dtype: dtype,
		args:  slices.Clone(args),
		meta:  make(map[string]any),
	}
	g.nextId++
	if g.traced {
		n.trace = errors.New("Stack-trace")
	}
	g.idToNode[n.id] = n
	return n
}

// position returns the index of n in the declaration order.
func (g *Graph) position(n *Node) int {
	idx := slices.Index(g.nodes, n)
	if idx < 0 {
		exceptions.Panicf("Node %s not found in Graph %q", n, g.name)
	}
	return idx
}

// IsBefore returns whether a is declared before b in g.
func (g *Graph) IsBefore(a, b *Node) bool {
	g.assertOwns(a)
	g.assertOwns(b)
	return g.position(a) < g.position(b)
}

// ReplaceInput changes the producer of the argument argIdx of consumer to producer.
//
// If the previous producer no longer feeds consumer in any other argument, metadata values of consumer
// implementing InputRekeyer are told to move their entries from the previous producer to the new one.
// If the previous producer is still used in another argument, the metadata is left untouched.
//
// The producer must be declared before consumer.
func (g *Graph) ReplaceInput(consumer *Node, argIdx int, producer *Node) {
	g.assertOwns(consumer)
	g.assertOwns(producer)
	if argIdx < 0 || argIdx >= len(consumer.args) {
		exceptions.Panicf("ReplaceInput(%s, %d): argument index out of range (%d arguments)",
			consumer, argIdx, len(consumer.args))
	}
	if g.position(producer) >= g.position(consumer) {
		exceptions.Panicf("ReplaceInput(%s, %d): new producer %s is declared after the consumer",
			consumer, argIdx, producer)
	}
	previous := consumer.args[argIdx].node
	consumer.args[argIdx] = NodeArg(producer)
	if previous == nil || previous == producer {
		return
	}
	if consumer.usesNode(previous) {
		klog.V(2).Infof("ReplaceInput(%s, %d): %s still used by other arguments, metadata not rekeyed",
			consumer, argIdx, previous)
		return
	}
	consumer.rekeyInput(previous.id, producer.id)
}

// ReplaceAllUsesWith makes every user of old (except replacement itself) take replacement instead,
// carrying metadata as in ReplaceInput.
//
// It returns the number of users changed.
func (g *Graph) ReplaceAllUsesWith(old, replacement *Node) int {
	g.assertOwns(old)
	g.assertOwns(replacement)
	count := 0
	for _, user := range g.Users(old) {
		if user == replacement {
			continue
		}
		for ii, arg := range user.args {
			if arg.node == old {
				user.args[ii] = NodeArg(replacement)
			}
		}
		user.rekeyInput(old.id, replacement.id)
		count++
	}
	if count > 0 && g.position(replacement) > g.position(old) {
		// Keep the declaration order topological: users of old may now come before replacement.
		g.sortTopologically()
	}
	return count
}

// Remove node n from the graph. It panics if n still has users.
// Its NodeId is not reused.
func (g *Graph) Remove(n *Node) {
	g.assertOwns(n)
	if users := g.Users(n); len(users) > 0 {
		exceptions.Panicf("cannot remove %s: still used by %d node(s), first is %s", n, len(users), users[0])
	}
	idx := g.position(n)
	g.nodes = slices.Delete(g.nodes, idx, idx+1)
	delete(g.idToNode, n.id)
	for alias, aliased := range g.aliasToNode {
		if aliased == n {
			delete(g.aliasToNode, alias)
		}
	}
}

// sortTopologically reorders g.nodes so that every node comes after its producers, keeping the
// relative declaration order otherwise (stable).
func (g *Graph) sortTopologically() {
	placed := make(map[NodeId]bool, len(g.nodes))
	sorted := make([]*Node, 0, len(g.nodes))
	var visit func(n *Node)
	visit = func(n *Node) {
		if placed[n.id] {
			return
		}
		placed[n.id] = true
		for _, input := range n.Inputs() {
			visit(input)
		}
		sorted = append(sorted, n)
	}
	for _, n := range g.nodes {
		visit(n)
	}
	g.nodes = sorted
}

// ShallowCopy returns a new Graph that shares the same nodes with g.
//
// The node list, the alias table and the graph metadata map are copied, but the *Node values (and hence
// their metadata) are shared: a change in a node's metadata is visible on both graphs.
// The shared nodes keep reporting g as their Node.Graph.
func (g *Graph) ShallowCopy() *Graph {
	g.AssertValid()
	c := NewGraph(g.name)
	c.nodes = slices.Clone(g.nodes)
	c.idToNode = maps.Clone(g.idToNode)
	c.nextId = g.nextId
	c.aliasToNode = maps.Clone(g.aliasToNode)
	c.aliasScope = slices.Clone(g.aliasScope)
	c.meta = maps.Clone(g.meta)
	c.traced = g.traced
	return c
}

// DeepCopy rebuilds every node of g into a new independent Graph.
//
// Each copied node keeps the NodeId of its counterpart, and its arguments point to the corresponding copied
// producers. Metadata values implementing MetaCloner are rebuilt with CloneMeta using the same node
// correspondence used to rebuild the edges; other metadata values are copied as is (by value).
// Literal arguments are copied as is.
func (g *Graph) DeepCopy() *Graph {
	g.AssertValid()
	c := NewGraph(g.name)
	c.nextId = g.nextId
	c.traced = g.traced
	c.aliasScope = slices.Clone(g.aliasScope)
	// Copies keep the node ids, so the correspondence is the identity.
	remap := func(id NodeId) NodeId { return id }
	c.nodes = make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		copied := &Node{
			graph: c,
			id:    n.id,
			op:    n.op,
			name:  n.name,
			dtype: n.dtype,
			alias: n.alias,
			trace: n.trace,
			args:  make([]Arg, len(n.args)),
		}
		for ii, arg := range n.args {
			if arg.IsNode() {
				copied.args[ii] = NodeArg(c.idToNode[arg.node.id])
			} else {
				copied.args[ii] = arg
			}
		}
		copied.meta = cloneMeta(n.meta, remap)
		c.nodes = append(c.nodes, copied)
		c.idToNode[copied.id] = copied
	}
	for alias, n := range g.aliasToNode {
		c.aliasToNode[alias] = c.idToNode[n.id]
	}
	c.meta = cloneMeta(g.meta, remap)
	return c
}

// String pretty-prints the graph, one node per line.
func (g *Graph) String() string {
	if g == nil {
		return "Graph(nil)"
	}
	parts := make([]string, 0, len(g.nodes)+1)
	parts = append(parts, fmt.Sprintf("Graph %q (#%d): %d nodes", g.name, g.id, len(g.nodes)))
	for _, n := range g.nodes {
		parts = append(parts, "\t"+n.String())
	}
	return strings.Join(parts, "\n")
}
