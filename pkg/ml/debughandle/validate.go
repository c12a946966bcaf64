// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package debughandle

import (
	"github.com/gomlx/debughandles/pkg/core/graph"
	"github.com/gomlx/debughandles/pkg/support/sets"
	"github.com/pkg/errors"
)

// ErrUniquenessViolation is returned (wrapped) by Validate when two attach points share the same handle.
// It indicates a bug in the assignment or in a graph transformation, it is never expected.
var ErrUniquenessViolation = errors.New("numeric debug handle uniqueness violation")

// location of a handle in the graph.
type location struct {
	node *graph.Node
	ap   AttachPoint
}

// Count returns the number of annotation entries in the graph, and the number of distinct handle values.
// They are equal if the uniqueness invariant holds.
func Count(g *graph.Graph) (entries, distinct int) {
	seen := sets.Make[Handle]()
	for _, n := range g.Nodes() {
		m, ok := Get(n)
		if !ok {
			continue
		}
		entries += len(m)
		for _, h := range m {
			seen.Insert(h)
		}
	}
	return entries, len(seen)
}

// Validate checks that no two attach points in the graph share a handle.
//
// The error returned wraps ErrUniquenessViolation, and names the first two locations found sharing a handle.
// If the graph is traced (see graph.Graph.SetTraced), it also includes where both nodes were created.
func Validate(g *graph.Graph) error {
	if err := g.CheckValid(); err != nil {
		return err
	}
	seen := make(map[Handle]location)
	for _, n := range g.Nodes() {
		m, ok := Get(n)
		if !ok {
			continue
		}
		for _, ap := range sortedAttachPoints(m) {
			h := m[ap]
			if previous, found := seen[h]; found {
				err := errors.Wrapf(ErrUniquenessViolation, "handle %d attached to %s of %s and to %s of %s",
					h, previous.ap, previous.node, ap, n)
				for _, node := range []*graph.Node{previous.node, n} {
					if trace := node.Trace(); trace != nil {
						err = errors.WithMessagef(err, "node #%d created at: %+v", node.Id(), trace)
					}
				}
				return err
			}
			seen[h] = location{node: n, ap: ap}
		}
	}
	return nil
}

// Handles returns the set of all handles in the graph.
func Handles(g *graph.Graph) sets.Set[Handle] {
	all := sets.Make[Handle]()
	for _, n := range g.Nodes() {
		if m, ok := Get(n); ok {
			for _, h := range m {
				all.Insert(h)
			}
		}
	}
	return all
}
