// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph_test

import (
	"testing"

	. "github.com/gomlx/debughandles/pkg/core/graph"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/require"
)

func TestAsserts(t *testing.T) {
	g := NewGraph("TestAssertGraph")
	x := Parameter(g, "x", dtypes.Float32)
	w := Constant(g, dtypes.Float32, []float32{1, 2})
	conv := Conv1D(x, w, nil, 2)

	// Check true asserts.
	require.NotPanics(t, func() { conv.AssertType(OpConv1D) })
	require.NotPanics(t, func() { conv.AssertType(OpConv2D, OpConv1D) })
	require.NotPanics(t, func() { conv.AssertNumArgs(3) })
	require.NotPanics(t, func() { conv.AssertNodeArgs(0, 1) })
	require.NotPanics(t, func() { conv.AssertDType(dtypes.Float32) })
	require.NotPanics(t, func() { x.AssertNodeArgs() })

	// Check false asserts.
	require.Panics(t, func() { conv.AssertType(OpConv2D) })
	require.Panics(t, func() { conv.AssertNumArgs(2) })
	require.Panics(t, func() { conv.AssertNodeArgs(2) }) // Strides are a literal.
	require.Panics(t, func() { conv.AssertNodeArgs(3) }) // Out of range.
	require.Panics(t, func() { w.AssertDType(dtypes.Int8) })
}
