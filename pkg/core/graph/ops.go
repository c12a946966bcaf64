// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// This file holds the builders for the operations used in this module. They don't do any shape checking:
// only the structure of the graph (and the dtype of the outputs) is tracked.

// Parameter registers a named input for the computation Graph (e.g: a feature used as input).
func Parameter(g *Graph, name string, dtype dtypes.DType) *Node {
	return g.NewNode(OpParameter, dtype).SetName(name)
}

// Constant creates a constant node holding value. The value is stored as its first (literal) argument.
func Constant(g *Graph, dtype dtypes.DType, value any) *Node {
	return g.NewNode(OpConstant, dtype, Literal(value))
}

// validateInputs panics if any of the nodes is nil or from a different graph than the first one.
func validateInputs(op OpType, inputs ...*Node) *Graph {
	var g *Graph
	for ii, input := range inputs {
		if input == nil {
			exceptions.Panicf("%s: input #%d is nil", op, ii)
		}
		if g == nil {
			g = input.graph
		} else if g.idToNode[input.id] != input {
			exceptions.Panicf("%s: input #%d (%s) is not part of Graph %q", op, ii, input, g.name)
		}
	}
	return g
}

// Conv2D creates a 2D convolution of x with kernel, with an optional bias (it can be nil).
// Strides and padding are recorded as literal arguments.
func Conv2D(x, kernel, bias *Node, strides ...int) *Node {
	return convolution(OpConv2D, x, kernel, bias, strides)
}

// Conv1D creates a 1D convolution of x with kernel, with an optional bias (it can be nil).
func Conv1D(x, kernel, bias *Node, strides ...int) *Node {
	return convolution(OpConv1D, x, kernel, bias, strides)
}

func convolution(op OpType, x, kernel, bias *Node, strides []int) *Node {
	nodes := []*Node{x, kernel}
	if bias != nil {
		nodes = append(nodes, bias)
	}
	g := validateInputs(op, nodes...)
	args := Args(nodes...)
	if len(strides) > 0 {
		args = append(args, Literal(strides))
	}
	return g.NewNode(op, x.dtype, args...)
}

// Linear computes x·weightᵀ + bias, where bias is optional (it can be nil).
func Linear(x, weight, bias *Node) *Node {
	nodes := []*Node{x, weight}
	if bias != nil {
		nodes = append(nodes, bias)
	}
	g := validateInputs(OpLinear, nodes...)
	return g.NewNode(OpLinear, x.dtype, Args(nodes...)...)
}

// Relu returns max(x, 0).
func Relu(x *Node) *Node {
	g := validateInputs(OpRelu, x)
	return g.NewNode(OpRelu, x.dtype, NodeArg(x))
}

// Add returns x + y.
func Add(x, y *Node) *Node {
	g := validateInputs(OpAdd, x, y)
	return g.NewNode(OpAdd, x.dtype, NodeArg(x), NodeArg(y))
}

// Mul returns x * y.
func Mul(x, y *Node) *Node {
	g := validateInputs(OpMul, x, y)
	return g.NewNode(OpMul, x.dtype, NodeArg(x), NodeArg(y))
}

// Reshape x to the given dimensions, recorded as a literal argument.
func Reshape(x *Node, dimensions ...int) *Node {
	g := validateInputs(OpReshape, x)
	return g.NewNode(OpReshape, x.dtype, NodeArg(x), Literal(dimensions))
}
