// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graphtest holds test utilities for packages that depend on the graph package.
package graphtest

import (
	"github.com/gomlx/debughandles/pkg/core/graph"
	"github.com/gomlx/gopjrt/dtypes"
)

// Conv2DThenConv1D builds a small model: a 2D convolution (with bias), followed by a reshape that squeezes
// the batch axis, followed by a 1D convolution (with bias).
//
// The nodes are aliased "/conv2d/{weight,bias,output}", "/squeeze" and "/conv1d/{weight,bias,output}".
// It returns the graph and the input parameter.
func Conv2DThenConv1D() (g *graph.Graph, x *graph.Node) {
	g = graph.NewGraph("Conv2DThenConv1D")
	x = graph.Parameter(g, "x", dtypes.Float32)

	g.PushAliasScope("conv2d")
	w2d := graph.Constant(g, dtypes.Float32, []float32{0.1, 0.2, 0.3}).WithAlias("weight")
	b2d := graph.Constant(g, dtypes.Float32, []float32{0}).WithAlias("bias")
	y := graph.Conv2D(x, w2d, b2d).WithAlias("output")
	g.PopAliasScope()

	y = graph.Reshape(y, 3, 3, 3).WithAlias("squeeze")

	g.PushAliasScope("conv1d")
	w1d := graph.Constant(g, dtypes.Float32, []float32{0.5, 0.5, 0.5}).WithAlias("weight")
	b1d := graph.Constant(g, dtypes.Float32, []float32{1}).WithAlias("bias")
	graph.Conv1D(y, w1d, b1d).WithAlias("output")
	g.PopAliasScope()
	return g, x
}

// Conv2DNoBias builds a graph with a single 2D convolution without bias, aliased "/conv2d/output".
func Conv2DNoBias() *graph.Graph {
	g := graph.NewGraph("Conv2DNoBias")
	x := graph.Parameter(g, "x", dtypes.Float32)
	w := graph.Constant(g, dtypes.Float32, []float32{1})
	graph.Conv2D(x, w, nil).WithAlias("/conv2d/output")
	return g
}

// TwoChainedOps builds op1 = relu(x), op2 = relu(op1), where x is a parameter.
// It returns the graph and the two ops.
func TwoChainedOps() (g *graph.Graph, op1, op2 *graph.Node) {
	g = graph.NewGraph("TwoChainedOps")
	x := graph.Parameter(g, "x", dtypes.Float32)
	op1 = graph.Relu(x).WithAlias("op1")
	op2 = graph.Relu(op1).WithAlias("op2")
	return
}
