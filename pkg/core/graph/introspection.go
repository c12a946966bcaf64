// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"github.com/gomlx/debughandles/pkg/support/sets"
)

// This file defines methods that allow for introspection of the graph.

// IsConstantExpression returns whether the Node is a Constant or an expression that depends only on constant values.
// It traverses all the node dependencies and checks that all leaf nodes are constants.
func (n *Node) IsConstantExpression() bool {
	return isConstantTraverseSubGraph(n, sets.Make[*Node]())
}

func isConstantTraverseSubGraph(node *Node, visited sets.Set[*Node]) bool {
	if visited.Has(node) {
		return true
	}
	visited.Insert(node)
	isConstant := node.op != OpParameter
	for _, input := range node.Inputs() {
		isConstant = isConstant && isConstantTraverseSubGraph(input, visited)
	}
	return isConstant
}
