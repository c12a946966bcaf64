// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package debughandle

import (
	"github.com/gomlx/debughandles/internal/workerspool"
	"github.com/gomlx/debughandles/pkg/core/graph"
	"github.com/gomlx/debughandles/pkg/support/sets"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Policy defines what Assign does with nodes that are already annotated.
type Policy int

const (
	// Preserve never changes an existing handle: only attach points without a handle (nodes added by
	// later passes, or new producers) get fresh handles, continuing the counter of the graph's Run. Handles
	// of removed edges are never reused. Calling Assign twice on an unchanged graph is a no-op.
	Preserve Policy = iota

	// Reassign drops all existing annotations and renumbers the whole graph from 0, under a new RunID.
	// Handles assigned before can no longer be located in the graph.
	Reassign
)

// String implements fmt.Stringer.
func (p Policy) String() string {
	switch p {
	case Preserve:
		return "Preserve"
	case Reassign:
		return "Reassign"
	default:
		return "Policy(?)"
	}
}

// LeafOps are the operations that are not annotated: they have no incoming edges and their values are fixed
// (inputs and constants), so there is nothing to trace on them.
var LeafOps = sets.MakeWith(graph.OpParameter, graph.OpConstant)

// Option configures an assignment pass.
type Option func(a *assignor)

// WithPolicy sets the policy used for already annotated nodes. Default is Preserve.
func WithPolicy(policy Policy) Option {
	return func(a *assignor) {
		a.policy = policy
	}
}

// WithParallelism sets the maximum number of graphs annotated concurrently by AssignGraphs.
// Default is the number of CPUs; 0 annotates them sequentially.
func WithParallelism(parallelism int) Option {
	return func(a *assignor) {
		a.parallelism = &parallelism
	}
}

// assignor holds the state of one assignment pass. Handles are allocated from the graph's Run.
type assignor struct {
	policy      Policy
	parallelism *int
	curRun      *Run
	numAssigned int
}

func newAssignor(opts []Option) *assignor {
	a := &assignor{policy: Preserve}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// allocate returns a fresh handle.
func (a *assignor) allocate() Handle {
	a.numAssigned++
	return a.curRun.allocate()
}

// isLeaf returns whether the node is not annotated.
func isLeaf(n *graph.Node) bool {
	return LeafOps.Has(n.Type())
}

// Assign walks the graph once, in declaration order, and attaches an annotation Map to every computation
// node (all but LeafOps): one fresh handle per producer used as argument, then one for the node's output.
//
// Literal arguments get no handle. A producer used in more than one argument of the same node gets a
// single handle, since the Map is keyed by producer.
//
// Handles come from the counter of the graph's Run (see GetRun), created starting at 0 on the first pass
// (or by the Reassign policy). With the Preserve policy an existing Run is continued, so handles are never
// reused within a run, even after nodes were removed. The graph topology is not changed.
//
// It returns the RunID of the pass, also stored in the graph metadata under RunMetaKey.
func Assign(g *graph.Graph, opts ...Option) (RunID, error) {
	return newAssignor(opts).run(g)
}

func (a *assignor) run(g *graph.Graph) (runID RunID, err error) {
	if err = g.CheckValid(); err != nil {
		return
	}
	err = exceptions.TryCatch[error](func() { runID = a.assign(g) })
	if err != nil {
		err = errors.WithMessagef(err, "failed to assign debug handles to Graph %q", g.Name())
	}
	return
}

func (a *assignor) assign(g *graph.Graph) RunID {
	nodes := g.Nodes()
	run, hasRun := GetRun(g)
	switch a.policy {
	case Reassign:
		for _, n := range nodes {
			delete(n.Meta(), MetaKey)
		}
		hasRun = false
	case Preserve:
	default:
		exceptions.Panicf("unknown debug handle assignment policy %s", a.policy)
	}
	if !hasRun {
		// Annotations without a Run (e.g. its metadata was dropped) are kept: start above them.
		var next Handle
		for h := range Handles(g) {
			next = max(next, h+1)
		}
		run = newRun(next)
		g.Meta()[RunMetaKey] = run
	}
	a.curRun = run

	for _, n := range nodes {
		if isLeaf(n) {
			continue
		}
		m, found := Get(n)
		if !found {
			m = make(Map, n.NumArgs()+1)
			n.Meta()[MetaKey] = m
		}
		for _, producer := range n.Inputs() {
			if _, found := m[Input(producer)]; !found {
				m[Input(producer)] = a.allocate()
			}
		}
		if _, found := m[Output]; !found {
			m[Output] = a.allocate()
		}
	}
	klog.V(1).Infof("debughandle.Assign(%q, policy=%s): %d new handles, %s",
		g.Name(), a.policy, a.numAssigned, run)
	return run.ID
}

// AssignGraphs runs one assignment pass on each graph, concurrently (see WithParallelism).
//
// Handles are unique within each graph, but the same handle value will usually appear in different graphs,
// except for copies sharing the same Run. A graph listed more than once is annotated only once, but graphs
// sharing nodes (see graph.Graph.ShallowCopy) must not be passed together.
//
// It returns the RunID of each graph, and the first error found.
func AssignGraphs(graphs []*graph.Graph, opts ...Option) ([]RunID, error) {
	pool := workerspool.New()
	if p := newAssignor(opts).parallelism; p != nil {
		pool.SetMaxParallelism(*p)
	}

	// Two passes over the same graph would write the same metadata concurrently.
	firstIdx := make(map[*graph.Graph]int, len(graphs))
	var distinct []int
	for ii, g := range graphs {
		if _, found := firstIdx[g]; !found {
			firstIdx[g] = ii
			distinct = append(distinct, ii)
		}
	}
	runIDs := make([]RunID, len(graphs))
	errs := make([]error, len(graphs))
	pool.Run(len(distinct), func(i int) {
		ii := distinct[i]
		runIDs[ii], errs[ii] = newAssignor(opts).run(graphs[ii])
	})
	for ii, g := range graphs {
		runIDs[ii], errs[ii] = runIDs[firstIdx[g]], errs[firstIdx[g]]
	}
	for ii, err := range errs {
		if err != nil {
			return runIDs, errors.WithMessagef(err, "graph #%d", ii)
		}
	}
	return runIDs, nil
}
