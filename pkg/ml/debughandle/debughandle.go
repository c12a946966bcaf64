// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package debughandle stamps numeric debug handles onto the edges of a graph.Graph, so numeric behavior can be
// traced across graph transformations (copies, quantization passes, rewrites) and compared between two
// versions of "the same" graph.
//
// Assign walks the graph once and gives each computation node an annotation Map (stored in the node metadata
// under MetaKey) with:
//
//   - one Handle per producer node used as argument (the edge producer -> this consumer), keyed by
//     Input(producer);
//   - one Handle for the node's own output value, keyed by Output.
//
// Within one graph all handles are unique (see Validate). Handles are a run-scoped debugging aid: they are
// not portable across independent runs, and each assignment pass records its RunID in the graph metadata.
//
// The graph package copy and rewrite primitives carry the annotations along (Map implements
// graph.MetaCloner and graph.InputRekeyer), and Extract / Compare / Diff read them back for comparison.
//
// Example:
//
//	runID, err := debughandle.Assign(g)
//	...
//	ref := debughandle.Extract(pattern.Conv2D().Match(g)[0], pattern.RoleInput, pattern.RoleWeight, pattern.RoleBias)
//	_, err = quantize.Prepare(g, quantize.SymmetricConfig(false))
//	got := debughandle.Extract(pattern.Conv2D().Match(g)[0], pattern.RoleInput, pattern.RoleWeight, pattern.RoleBias)
//	fmt.Println(debughandle.Compare(ref, got))
package debughandle

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/gomlx/debughandles/pkg/core/graph"
	"github.com/google/uuid"
)

// MetaKey is the key in graph.Node.Meta where the annotation Map is stored.
const MetaKey = "numeric_debug_handle"

// RunMetaKey is the key in graph.Graph.Meta where the *Run of the assignment passes is stored.
const RunMetaKey = "numeric_debug_handle_run"

// Handle is an opaque identifier of one edge (an argument or the output) of a node.
type Handle int

// RunID identifies one assignment pass.
type RunID = uuid.UUID

// AttachPoint identifies where a Handle is attached in a node's annotation Map: either the producer node of
// one of its arguments (see Input), or the node's own output (see Output).
type AttachPoint graph.NodeId

// Output is the AttachPoint of a node's own output value.
const Output = AttachPoint(graph.InvalidNodeId)

// Input returns the AttachPoint of the edge from producer into the annotated node.
func Input(producer *graph.Node) AttachPoint {
	return AttachPoint(producer.Id())
}

// IsOutput returns whether the attach point is the node's output.
func (ap AttachPoint) IsOutput() bool {
	return ap == Output
}

// Producer returns the id of the producer node, or graph.InvalidNodeId for Output.
func (ap AttachPoint) Producer() graph.NodeId {
	return graph.NodeId(ap)
}

// String implements fmt.Stringer.
func (ap AttachPoint) String() string {
	if ap.IsOutput() {
		return "output"
	}
	return fmt.Sprintf("input#%d", ap)
}

// Map is the annotation map of one node: attach point -> handle.
//
// It implements graph.MetaCloner (so graph.Graph.DeepCopy carries it, with the same handle values) and
// graph.InputRekeyer (so rewrites that change a producer move the handle to the new producer).
type Map map[AttachPoint]Handle

var (
	_ graph.MetaCloner   = Map(nil)
	_ graph.InputRekeyer = Map(nil)
)

// CloneMeta implements graph.MetaCloner.
func (m Map) CloneMeta(remap func(graph.NodeId) graph.NodeId) any {
	cloned := make(Map, len(m))
	for ap, h := range m {
		if !ap.IsOutput() {
			ap = AttachPoint(remap(ap.Producer()))
		}
		cloned[ap] = h
	}
	return cloned
}

// RekeyInput implements graph.InputRekeyer: the handle of the edge from `from` is moved to the edge from `to`.
// If `to` already has a handle, it is kept and the one from `from` is dropped.
func (m Map) RekeyInput(from, to graph.NodeId) {
	h, found := m[AttachPoint(from)]
	if !found {
		return
	}
	delete(m, AttachPoint(from))
	if _, exists := m[AttachPoint(to)]; !exists {
		m[AttachPoint(to)] = h
	}
}

// Handles returns the handles in the map, sorted.
func (m Map) Handles() []Handle {
	return slices.Sorted(maps.Values(m))
}

// String implements fmt.Stringer, with the attach points sorted (output last).
func (m Map) String() string {
	aps := sortedAttachPoints(m)
	parts := make([]string, len(aps))
	for ii, ap := range aps {
		parts[ii] = fmt.Sprintf("%s:%d", ap, m[ap])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Get returns the annotation Map of the node, if it has one.
func Get(n *graph.Node) (Map, bool) {
	if n == nil {
		return nil, false
	}
	m, ok := n.Meta()[MetaKey].(Map)
	return m, ok
}

// Lookup returns the handle attached to the node at the given attach point.
func Lookup(n *graph.Node, ap AttachPoint) (Handle, bool) {
	m, ok := Get(n)
	if !ok {
		return 0, false
	}
	h, found := m[ap]
	return h, found
}

// Run holds the state of a run of assignment passes: its RunID and the next handle to allocate.
//
// The counter only moves forward, so a handle whose edge was removed is never given to another edge of the
// same run. A *Run is shared (not cloned) by graph copies, so passes on different copies of the same graph
// also allocate distinct handles.
type Run struct {
	ID RunID

	mu   sync.Mutex
	next Handle
}

// newRun creates a run whose first handle is next.
func newRun(next Handle) *Run {
	return &Run{ID: uuid.New(), next: next}
}

// Next returns the next handle the run would allocate: all handles allocated so far are smaller.
func (r *Run) Next() Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next
}

// allocate returns a fresh handle of the run.
func (r *Run) allocate() Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.next
	r.next++
	return h
}

// String implements fmt.Stringer.
func (r *Run) String() string {
	return fmt.Sprintf("run %s (next handle %d)", r.ID, r.Next())
}

// GetRun returns the Run of the assignment passes on the graph, if any.
func GetRun(g *graph.Graph) (*Run, bool) {
	run, ok := g.Meta()[RunMetaKey].(*Run)
	return run, ok
}

// GetRunID returns the RunID of the assignment passes on the graph, if any.
func GetRunID(g *graph.Graph) (RunID, bool) {
	run, ok := GetRun(g)
	if !ok {
		return RunID{}, false
	}
	return run.ID, true
}

// sortedAttachPoints returns the attach points of m sorted by producer id, with Output last.
func sortedAttachPoints(m Map) []AttachPoint {
	aps := slices.Collect(maps.Keys(m))
	slices.SortFunc(aps, func(a, b AttachPoint) int {
		if a.IsOutput() != b.IsOutput() {
			if a.IsOutput() {
				return 1
			}
			return -1
		}
		return int(a) - int(b)
	})
	return aps
}
