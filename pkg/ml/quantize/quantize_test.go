// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package quantize

import (
	"fmt"
	"testing"

	"github.com/gomlx/debughandles/pkg/core/graph"
	"github.com/gomlx/debughandles/pkg/core/graph/graphtest"
	"github.com/gomlx/debughandles/pkg/core/pattern"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countOps(g *graph.Graph, op graph.OpType) int {
	count := 0
	for _, n := range g.Nodes() {
		if n.Type() == op {
			count++
		}
	}
	return count
}

func TestPrepare(t *testing.T) {
	g, x := graphtest.Conv2DThenConv1D()
	numObservers, err := Prepare(g, SymmetricConfig(false))
	require.NoError(t, err)
	// Input, weight and output of each convolution.
	assert.Equal(t, 6, numObservers)
	assert.Equal(t, 14, g.NumNodes())
	require.NoError(t, g.CheckValid())
	fmt.Printf("%s\n", g)

	m := pattern.Conv2D().Match(g)[0]
	input := m.Node(pattern.RoleInput)
	assert.Equal(t, graph.OpObserver, input.Type())
	observed, spec := Observer(input)
	assert.Equal(t, x, observed)
	assert.Equal(t, dtypes.Int8, spec.DType)
	assert.True(t, spec.Symmetric)

	weight := m.Node(pattern.RoleWeight)
	observed, _ = Observer(weight)
	assert.Equal(t, g.GetNodeByAlias("/conv2d/weight"), observed)
	// Bias is not quantized.
	assert.Equal(t, g.GetNodeByAlias("/conv2d/bias"), m.Node(pattern.RoleBias))

	// The reshape now takes the observed conv2d output.
	reshape := g.GetNodeByAlias("/squeeze")
	observed, _ = Observer(reshape.Arg(0).Node())
	assert.Equal(t, m.Result, observed)

	// Declaration order is still topological.
	for _, n := range g.Nodes() {
		for _, input := range n.Inputs() {
			assert.True(t, g.IsBefore(input, n), "%s declared after its user %s", input, n)
		}
	}

	// Prepare again doesn't insert new observers.
	numObservers, err = Prepare(g, SymmetricConfig(false))
	require.NoError(t, err)
	assert.Equal(t, 0, numObservers)
	assert.Equal(t, 14, g.NumNodes())
}

func TestPrepareSharedObserver(t *testing.T) {
	g := graph.NewGraph("shared")
	x := graph.Parameter(g, "x", dtypes.Float32)
	w := graph.Constant(g, dtypes.Float32, []float32{1, 2})
	l1 := graph.Linear(x, w, nil)
	l2 := graph.Linear(x, w, nil)
	cfg := SymmetricConfig(true)
	cfg.Ops[graph.OpLinear] = OpConfig{Activations: []int{0}, Weights: []int{1}}
	numObservers, err := Prepare(g, cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, numObservers)
	assert.Same(t, l1.Arg(0).Node(), l2.Arg(0).Node())
	assert.Same(t, l1.Arg(1).Node(), l2.Arg(1).Node())
	_, spec := Observer(l1.Arg(1).Node())
	assert.True(t, spec.PerChannel)
}

func TestPrepareDynamicWeight(t *testing.T) {
	g := graph.NewGraph("dynamic")
	x := graph.Parameter(g, "x", dtypes.Float32)
	w := graph.Constant(g, dtypes.Float32, []float32{1, 2})
	static := graph.Linear(x, graph.Mul(w, w), nil)
	dynamic := graph.Linear(x, graph.Relu(x), nil)
	cfg := SymmetricConfig(true)
	cfg.Ops[graph.OpLinear] = OpConfig{Weights: []int{1}}
	numObservers, err := Prepare(g, cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, numObservers)

	// A weight computed from constants is quantized per channel, one computed from x as an activation.
	_, spec := Observer(static.Arg(1).Node())
	assert.Equal(t, cfg.Weight, spec)
	_, spec = Observer(dynamic.Arg(1).Node())
	assert.Equal(t, cfg.Activation, spec)
}

func TestPrepareLiteralWeight(t *testing.T) {
	g := graph.NewGraph("literal")
	x := graph.Parameter(g, "x", dtypes.Float32)
	g.NewNode(graph.OpLinear, dtypes.Float32, graph.NodeArg(x), graph.Literal([]float32{1, 2}))
	numObservers, err := Prepare(g, SymmetricConfig(false))
	require.NoError(t, err)
	// Only the input and the output.
	assert.Equal(t, 2, numObservers)
}

func TestConvert(t *testing.T) {
	g, _ := graphtest.Conv2DThenConv1D()
	_, err := Prepare(g, SymmetricConfig(false))
	require.NoError(t, err)
	numConverted, err := Convert(g)
	require.NoError(t, err)
	assert.Equal(t, 6, numConverted)
	assert.Zero(t, countOps(g, graph.OpObserver))
	assert.Equal(t, 6, countOps(g, graph.OpQuantize))
	assert.Equal(t, 6, countOps(g, graph.OpDequantize))
	assert.Equal(t, 8+12, g.NumNodes())

	m := pattern.Conv2D().Match(g)[0]
	dq := m.Node(pattern.RoleWeight)
	require.Equal(t, graph.OpDequantize, dq.Type())
	assert.Equal(t, dtypes.Float32, dq.DType())
	q := dq.Arg(0).Node()
	require.Equal(t, graph.OpQuantize, q.Type())
	assert.Equal(t, dtypes.Int8, q.DType())
	assert.Equal(t, g.GetNodeByAlias("/conv2d/weight"), q.Arg(0).Node())

	// Nothing left to convert.
	numConverted, err = Convert(g)
	require.NoError(t, err)
	assert.Zero(t, numConverted)
}

func TestObserverPanics(t *testing.T) {
	g, x := graphtest.Conv2DThenConv1D()
	assert.Panics(t, func() { Observer(x) })
	bad := g.NewNode(graph.OpObserver, dtypes.Float32, graph.NodeArg(x), graph.Literal("not a spec"))
	assert.Panics(t, func() { Observer(bad) })

	// Convert reports it as an error.
	_, err := Convert(g)
	require.Error(t, err)
	fmt.Printf("Expected error: %v\n", err)
}
