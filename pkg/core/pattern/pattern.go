// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package pattern implements a simple subgraph matcher over graph.Graph.
//
// A Pattern describes one operation (its OpType) and names the roles of its arguments (e.g. "input",
// "weight", "bias") and of its output. Matching a Pattern against a Graph returns a Match (a "name node map")
// for each node that fits: a read-only view from role names to the concrete nodes in the graph.
//
// Example:
//
//	for _, match := range pattern.Conv2D().Match(g) {
//		fmt.Printf("conv2d %s takes input %s\n", match.Result, match.Nodes[pattern.RoleInput])
//	}
package pattern

import (
	"fmt"
	"strings"

	"github.com/gomlx/debughandles/pkg/core/graph"
	"github.com/gomlx/exceptions"
)

// Common role names.
const (
	RoleInput  = "input"
	RoleWeight = "weight"
	RoleBias   = "bias"
	RoleOutput = "output"
)

// Role of an argument of the matched operation.
type Role struct {
	// Name of the role, e.g. "input".
	Name string

	// Optional roles may be missing (argument absent or a literal) and the node still matches.
	Optional bool
}

// Pattern to be matched against the nodes of a graph.
type Pattern struct {
	op         graph.OpType
	outputRole string
	roles      []Role
}

// New creates a Pattern for operation op. roles are given in argument order, and outputRole names the
// matched node itself.
//
// Required roles can't follow optional ones.
func New(op graph.OpType, outputRole string, roles ...Role) *Pattern {
	seen := make(map[string]bool, len(roles)+1)
	seen[outputRole] = true
	sawOptional := false
	for _, role := range roles {
		if seen[role.Name] {
			exceptions.Panicf("pattern.New(%q): role %q defined more than once", op, role.Name)
		}
		seen[role.Name] = true
		if !role.Optional && sawOptional {
			exceptions.Panicf("pattern.New(%q): required role %q after an optional one", op, role.Name)
		}
		sawOptional = sawOptional || role.Optional
	}
	return &Pattern{op: op, outputRole: outputRole, roles: roles}
}

// Op returns the operation type matched by the pattern.
func (p *Pattern) Op() graph.OpType { return p.op }

// OutputRole returns the name of the role of the matched node itself.
func (p *Pattern) OutputRole() string { return p.outputRole }

// InputRoles returns the names of the argument roles, in argument order.
func (p *Pattern) InputRoles() []string {
	names := make([]string, len(p.roles))
	for ii, role := range p.roles {
		names[ii] = role.Name
	}
	return names
}

// String implements fmt.Stringer.
func (p *Pattern) String() string {
	parts := make([]string, len(p.roles))
	for ii, role := range p.roles {
		parts[ii] = role.Name
		if role.Optional {
			parts[ii] += "?"
		}
	}
	return fmt.Sprintf("%s = %s(%s)", p.outputRole, p.op, strings.Join(parts, ", "))
}

// Match is the record of one match of a Pattern in a graph.
type Match struct {
	Pattern *Pattern

	// Result is the matched node (the one with the pattern's operation).
	Result *graph.Node

	// Nodes maps role names to the nodes bound to them, including the output role bound to Result.
	// Optional roles not present are not in the map.
	Nodes map[string]*graph.Node
}

// Node returns the node bound to role, or nil if the role is not bound.
func (m Match) Node(role string) *graph.Node {
	return m.Nodes[role]
}

// Match returns all the matches of the pattern in g, in declaration order.
func (p *Pattern) Match(g *graph.Graph) []Match {
	var matches []Match
	for _, node := range g.Nodes() {
		if match, ok := p.MatchNode(node); ok {
			matches = append(matches, match)
		}
	}
	return matches
}

// MatchNode tries to match the pattern rooted at node.
func (p *Pattern) MatchNode(node *graph.Node) (Match, bool) {
	if node.Type() != p.op {
		return Match{}, false
	}
	match := Match{
		Pattern: p,
		Result:  node,
		Nodes:   map[string]*graph.Node{p.outputRole: node},
	}
	for ii, role := range p.roles {
		if ii < node.NumArgs() && node.Arg(ii).IsNode() {
			match.Nodes[role.Name] = node.Arg(ii).Node()
			continue
		}
		if !role.Optional {
			return Match{}, false
		}
	}
	return match, true
}

// Conv2D matches 2D convolutions: output = conv2d(input, weight, bias?).
func Conv2D() *Pattern {
	return convLike(graph.OpConv2D)
}

// Conv1D matches 1D convolutions: output = conv1d(input, weight, bias?).
func Conv1D() *Pattern {
	return convLike(graph.OpConv1D)
}

// Linear matches linear layers: output = linear(input, weight, bias?).
func Linear() *Pattern {
	return convLike(graph.OpLinear)
}

func convLike(op graph.OpType) *Pattern {
	return New(op, RoleOutput,
		Role{Name: RoleInput},
		Role{Name: RoleWeight},
		Role{Name: RoleBias, Optional: true})
}
