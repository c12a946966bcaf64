// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package debughandle

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/gomlx/debughandles/pkg/core/graph"
	"github.com/gomlx/debughandles/pkg/core/pattern"
	"github.com/gomlx/debughandles/pkg/support/sets"
	"github.com/pkg/errors"
)

// OutputRole is the role name under which Extract reports the output handle of the matched node.
const OutputRole = pattern.RoleOutput

// RoleHandles maps role names of a pattern match to the handles found on the matched (result) node.
//
// An empty RoleHandles means "no data": the annotations needed were not present.
type RoleHandles map[string]Handle

// IsEmpty returns whether there is no data in the extraction.
func (r RoleHandles) IsEmpty() bool {
	return len(r) == 0
}

// Equal returns whether both extractions have the same role -> handle mapping.
func (r RoleHandles) Equal(other RoleHandles) bool {
	return maps.Equal(r, other)
}

// String implements fmt.Stringer, with roles sorted.
func (r RoleHandles) String() string {
	roles := slices.Sorted(maps.Keys(r))
	parts := make([]string, len(roles))
	for ii, role := range roles {
		parts[ii] = fmt.Sprintf("%s:%d", role, r[role])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Extract is a read-only projection of the annotation Map of the match's result node: for each of the given
// input roles bound in the match, the handle of the edge from that role's node into the result node, plus the
// result node's own output handle (under OutputRole).
//
// Roles not bound in the match (e.g. an optional bias that is absent) are skipped. But if any expected
// annotation is missing on the result node, it returns an empty RoleHandles: the match is incomplete, which
// is not an error (e.g. handles were never assigned, or a transform didn't preserve them).
func Extract(match pattern.Match, inputRoles ...string) RoleHandles {
	m, ok := Get(match.Result)
	if !ok {
		return RoleHandles{}
	}
	extracted := make(RoleHandles, len(inputRoles)+1)
	for _, role := range inputRoles {
		node := match.Node(role)
		if node == nil {
			continue
		}
		h, found := m[Input(node)]
		if !found {
			return RoleHandles{}
		}
		extracted[role] = h
	}
	h, found := m[Output]
	if !found {
		return RoleHandles{}
	}
	extracted[OutputRole] = h
	return extracted
}

// ExtractPattern matches p in g, and requires exactly one match, from which it extracts the handles of all of
// the pattern's input roles, see Extract.
func ExtractPattern(g *graph.Graph, p *pattern.Pattern) (RoleHandles, error) {
	matches := p.Match(g)
	if len(matches) != 1 {
		return nil, errors.Errorf("expected exactly one match of %s in Graph %q, got %d", p, g.Name(), len(matches))
	}
	return Extract(matches[0], p.InputRoles()...), nil
}

// Status of a comparison between two extractions.
type Status int

const (
	// NoData indicates one of the extractions is empty: handles not present, they can't be compared.
	NoData Status = iota

	// Preserved indicates both extractions have the same role -> handle mapping.
	Preserved

	// Mismatched indicates handles are present on both sides but differ: a transform didn't honor the
	// preservation of handles, which is a bug.
	Mismatched
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case NoData:
		return "NoData"
	case Preserved:
		return "Preserved"
	case Mismatched:
		return "Mismatched"
	default:
		return "Status(?)"
	}
}

// Comparison of two extractions.
type Comparison struct {
	Status Status

	// Roles that differ (missing on one side, or with different handles), sorted. Only set if Mismatched.
	Roles []string
}

// String implements fmt.Stringer.
func (c Comparison) String() string {
	if c.Status != Mismatched {
		return c.Status.String()
	}
	return fmt.Sprintf("%s(%s)", c.Status, strings.Join(c.Roles, ", "))
}

// Compare two extractions of the same pattern, typically before and after a transformation.
func Compare(ref, got RoleHandles) Comparison {
	if ref.IsEmpty() || got.IsEmpty() {
		return Comparison{Status: NoData}
	}
	var roles []string
	for role, h := range ref {
		if h2, found := got[role]; !found || h2 != h {
			roles = append(roles, role)
		}
	}
	for role := range got {
		if _, found := ref[role]; !found {
			roles = append(roles, role)
		}
	}
	if len(roles) == 0 {
		return Comparison{Status: Preserved}
	}
	slices.Sort(roles)
	return Comparison{Status: Mismatched, Roles: roles}
}

// GraphDiff lists how the handles of a reference graph are found in another version of it.
type GraphDiff struct {
	// RunMismatch is set if the two graphs were annotated by different assignment passes: their handles are
	// not comparable, and the lists below are not filled.
	RunMismatch bool

	// Preserved handles are present in both graphs, Lost only in the reference and Added only in the new one.
	// All sorted.
	Preserved, Lost, Added []Handle
}

// Diff compares the handles in ref and got, two versions of "the same" graph (e.g. before and after a
// transformation).
func Diff(ref, got *graph.Graph) GraphDiff {
	refRun, refOk := GetRunID(ref)
	gotRun, gotOk := GetRunID(got)
	if refOk && gotOk && refRun != gotRun {
		return GraphDiff{RunMismatch: true}
	}
	return diffHandles(Handles(ref), Handles(got))
}

func diffHandles(refHandles, gotHandles sets.Set[Handle]) GraphDiff {
	return GraphDiff{
		Preserved: sets.Sorted(refHandles.Intersect(gotHandles)),
		Lost:      sets.Sorted(refHandles.Sub(gotHandles)),
		Added:     sets.Sorted(gotHandles.Sub(refHandles)),
	}
}

// IsLossless returns whether no handle of the reference was lost.
func (d GraphDiff) IsLossless() bool {
	return !d.RunMismatch && len(d.Lost) == 0
}

// String implements fmt.Stringer.
func (d GraphDiff) String() string {
	if d.RunMismatch {
		return "run mismatch: handles not comparable"
	}
	return fmt.Sprintf("%d preserved, %d lost %v, %d added %v",
		len(d.Preserved), len(d.Lost), d.Lost, len(d.Added), d.Added)
}
