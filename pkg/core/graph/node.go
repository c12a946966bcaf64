// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

const (
	MaxSizeToPrint = 5
)

// OpType identifies the operation performed by a Node.
//
// The set of operations is open: the graph doesn't interpret them, it only stores them.
// The constants below are the ones used by the packages in this module.
type OpType string

const (
	OpParameter  OpType = "parameter"
	OpConstant   OpType = "constant"
	OpConv1D     OpType = "conv1d"
	OpConv2D     OpType = "conv2d"
	OpLinear     OpType = "linear"
	OpRelu       OpType = "relu"
	OpAdd        OpType = "add"
	OpMul        OpType = "mul"
	OpReshape    OpType = "reshape"
	OpObserver   OpType = "observer"
	OpQuantize   OpType = "quantize"
	OpDequantize OpType = "dequantize"
)

// Node represents the result of an operation in the computation graph, and can be used as argument to further
// operations.
//
// It has an ordered list of arguments (see Arg), each either a producer Node or a literal, and exactly one
// output.
//
// It also holds a mutable metadata slot, see Node.Meta.
//
// Node.String allows for a pretty-printing of node. To see the full graph with all nodes, use Graph.String.
type Node struct {
	graph *Graph
	id    NodeId // id within graph.
	op    OpType
	name  string
	dtype dtypes.DType

	// args are the edges of the computation graph, plus literal (static) arguments.
	args []Arg

	// alias is a name by which the Node be referred in the Graph.
	alias string

	// meta is the per-node metadata slot.
	meta map[string]any

	trace error // Stack-trace error of where Node was created. Stored if graph.traced is true.
}

// Graph that holds this Node.
//
// Nodes shared with a Graph.ShallowCopy report the Graph where they were created.
func (n *Node) Graph() *Graph {
	if n == nil {
		return nil
	}
	return n.graph
}

// Id is the unique id of this node within the Graph.
func (n *Node) Id() NodeId {
	if n == nil {
		return InvalidNodeId
	}
	return n.id
}

// Type returns the operation performed by the node.
func (n *Node) Type() OpType {
	return n.op
}

// DType of the node's output.
func (n *Node) DType() dtypes.DType {
	return n.dtype
}

// Name returns the optional name given with SetName. Parameters are created with one.
func (n *Node) Name() string {
	return n.name
}

// SetName sets a descriptive name for the node. It returns the node, to allow cascading calls.
func (n *Node) SetName(name string) *Node {
	n.name = name
	return n
}

// Args returns the ordered arguments of the node. The returned slice is a copy.
func (n *Node) Args() []Arg {
	args := make([]Arg, len(n.args))
	copy(args, n.args)
	return args
}

// NumArgs returns the number of arguments, nodes and literals.
func (n *Node) NumArgs() int {
	return len(n.args)
}

// Arg returns the argument at the given position.
func (n *Node) Arg(idx int) Arg {
	if idx < 0 || idx >= len(n.args) {
		exceptions.Panicf("%s has %d arguments, can't take argument #%d", n, len(n.args), idx)
	}
	return n.args[idx]
}

// Inputs are the producer nodes among the arguments, in argument order.
// A producer used in more than one argument is listed once per use.
// Literal arguments are not included.
func (n *Node) Inputs() []*Node {
	inputs := make([]*Node, 0, len(n.args))
	for _, arg := range n.args {
		if arg.IsNode() {
			inputs = append(inputs, arg.node)
		}
	}
	return inputs
}

// usesNode returns whether producer is one of the arguments of n.
func (n *Node) usesNode(producer *Node) bool {
	for _, arg := range n.args {
		if arg.node == producer {
			return true
		}
	}
	return false
}

// Meta returns the node's metadata slot. It can be mutated directly.
//
// See MetaCloner and InputRekeyer for metadata values that need to follow graph transformations.
func (n *Node) Meta() map[string]any {
	return n.meta
}

// Trace returns stack-trace in form of an error, of when the node was created.
// Only available if enabled by `Graph.SetTraced(true)`.
func (n *Node) Trace() error {
	return n.trace
}

// String implements the `fmt.Stringer` interface.
func (n *Node) String() (str string) {
	if n == nil {
		return "Node(nil)"
	}
	if n.alias != "" {
		str = fmt.Sprintf("[%q] ", n.alias)
	}
	str += fmt.Sprintf("#%d %s", n.id, n.op)
	if n.name != "" {
		str += fmt.Sprintf("(%q)", n.name)
	}
	argParts := make([]string, 0, len(n.args))
	for ii, arg := range n.args {
		if ii == MaxSizeToPrint {
			argParts = append(argParts, fmt.Sprintf("...+%s", humanize.Comma(int64(len(n.args)-ii))))
			break
		}
		argParts = append(argParts, arg.String())
	}
	str = fmt.Sprintf("%s(%s) -> %s", str, strings.Join(argParts, ", "), n.dtype)
	if len(n.meta) > 0 {
		str += fmt.Sprintf(" [%d meta]", len(n.meta))
	}
	return
}

// Arg is one argument of a Node: either a reference to a producer Node (an edge of the graph), or a literal
// value (e.g. an axis, a padding configuration or a quantization spec).
type Arg struct {
	node    *Node
	literal any
}

// NodeArg returns an argument that refers to the output of the producer node.
func NodeArg(producer *Node) Arg {
	if producer == nil {
		exceptions.Panicf("NodeArg(nil): producer node must be given")
	}
	return Arg{node: producer}
}

// Literal returns a non-graph (static) argument.
func Literal(value any) Arg {
	return Arg{literal: value}
}

// Args is a shortcut to build a list of arguments from nodes.
func Args(producers ...*Node) []Arg {
	args := make([]Arg, len(producers))
	for ii, producer := range producers {
		args[ii] = NodeArg(producer)
	}
	return args
}

// IsNode returns whether the argument refers to a producer Node.
func (a Arg) IsNode() bool {
	return a.node != nil
}

// Node returns the producer node, or nil if the argument is a literal.
func (a Arg) Node() *Node {
	return a.node
}

// Literal returns the literal value, or nil if the argument is a Node.
func (a Arg) Literal() any {
	return a.literal
}

// String implements fmt.Stringer.
func (a Arg) String() string {
	if a.node != nil {
		return fmt.Sprintf("#%d", a.node.id)
	}
	return fmt.Sprintf("%v", a.literal)
}
