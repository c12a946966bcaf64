// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// This file implements various asserts (checks) that can be done on the Node.
// They panic with an error message if the check fails, and often serve as documentation for code that
// pattern-matches or rewrites graphs.

// AssertType checks that the node's operation is one of ops.
//
// Example:
//
//	n.AssertType(OpConv1D, OpConv2D)
func (n *Node) AssertType(ops ...OpType) {
	if !slices.Contains(ops, n.op) {
		exceptions.Panicf("AssertType(%v): node %s has operation %q", ops, n, n.op)
	}
}

// AssertNumArgs checks that the node has exactly numArgs arguments (nodes or literals).
func (n *Node) AssertNumArgs(numArgs int) {
	if len(n.args) != numArgs {
		exceptions.Panicf("AssertNumArgs(%d): node %s has %d arguments", numArgs, n, len(n.args))
	}
}

// AssertNodeArgs checks that the arguments at the given indices exist and are nodes (as opposed to literals).
func (n *Node) AssertNodeArgs(indices ...int) {
	for _, idx := range indices {
		if idx < 0 || idx >= len(n.args) || !n.args[idx].IsNode() {
			exceptions.Panicf("AssertNodeArgs(%v): argument #%d of node %s is not a node", indices, idx, n)
		}
	}
}

// AssertDType checks the dtype of the node's output.
func (n *Node) AssertDType(dtype dtypes.DType) {
	if n.dtype != dtype {
		exceptions.Panicf("AssertDType(%s): node %s has dtype %s", dtype, n, n.dtype)
	}
}
