// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
)

// AliasScopeSeparator is the string used to join the individual alias scope parts as well as
// the alias itself. So if the scope is currently ["a", "b"] and an alias "output" is created,
// it will be renamed "/a/b/output".
const AliasScopeSeparator = "/"

// PushAliasScope pushes another scope to the current alias scope for new aliases.
//
// For instance, a model with two convolutions may push a scope per layer and alias the "output" of each one.
//
// Each call to Graph.PushAliasScope should be matched by a call to Graph.PopAliasScope, usually using defer.
func (g *Graph) PushAliasScope(scope string) {
	g.aliasScope = append(g.aliasScope, scope)
}

// PopAliasScope removes the scope previously pushed with PushAliasScope.
//
// It panics if there are no scopes pushed.
func (g *Graph) PopAliasScope() {
	if len(g.aliasScope) == 0 {
		exceptions.Panicf("no scopes pushed when calling Graph.PopAliasScope")
	}
	g.aliasScope = g.aliasScope[:len(g.aliasScope)-1]
}

// WithAlias sets an alias in the Graph for the node, so it can be retrieved with Graph.GetNodeByAlias.
//
// The alias is prefixed with the Graph current "alias scope", except if it starts with
// AliasScopeSeparator ("/"), in which case it is taken as an absolute path.
//
// Aliases survive Graph.ShallowCopy and Graph.DeepCopy.
//
// It returns the Node itself, to allow cascading method calling.
// It panics if the exact same alias already exists.
func (n *Node) WithAlias(alias string) *Node {
	g := n.graph
	alias = g.absoluteAlias(alias)
	if _, found := g.aliasToNode[alias]; found {
		exceptions.Panicf("alias %q already exists in Graph %q -- aliases must be unique within their scope",
			alias, g.name)
	}
	n.alias = alias
	g.aliasToNode[alias] = n
	return n
}

// GetAlias returns the alias (with the absolute path) of the node, or "" if none was set.
func (n *Node) GetAlias() string {
	return n.alias
}

// absoluteAlias returns an alias with an absolute path, by prepending the current scope.
func (g *Graph) absoluteAlias(alias string) string {
	if strings.HasPrefix(alias, AliasScopeSeparator) {
		return alias
	}
	parts := append(slices.Clone(g.aliasScope), alias)
	return fmt.Sprintf("%s%s", AliasScopeSeparator, strings.Join(parts, AliasScopeSeparator))
}

// GetNodeByAlias returns a node with the given alias or nil if it didn't find it.
//
// A relative alias is searched within the current alias scope.
func (g *Graph) GetNodeByAlias(alias string) *Node {
	return g.aliasToNode[g.absoluteAlias(alias)]
}

// IterAliasedNodes iterates over pairs (alias, node), sorted by alias.
func (g *Graph) IterAliasedNodes() iter.Seq2[string, *Node] {
	aliases := make([]string, 0, len(g.aliasToNode))
	for alias := range g.aliasToNode {
		aliases = append(aliases, alias)
	}
	slices.Sort(aliases)
	return func(yield func(string, *Node) bool) {
		for _, alias := range aliases {
			if !yield(alias, g.aliasToNode[alias]) {
				return
			}
		}
	}
}
