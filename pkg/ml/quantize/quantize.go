// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package quantize implements the structural part of post-training quantization over a graph.Graph:
//
//   - Prepare inserts "observer" nodes on the arguments and outputs of the configured operations.
//   - Convert replaces each observer by a "quantize" -> "dequantize" pair.
//
// No numeric calibration is done here: observers only mark where values would be observed.
//
// Both passes only use the rewrite primitives of the graph package (NewNodeBefore, ReplaceInput,
// ReplaceAllUsesWith, Remove), so node metadata that follows producers (e.g. numeric debug handles) is
// carried over to the new producers.
package quantize

import (
	"fmt"

	"github.com/gomlx/debughandles/pkg/core/graph"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// QuantSpec describes how a value is quantized.
type QuantSpec struct {
	// DType of the quantized value.
	DType dtypes.DType

	// Symmetric quantization has its zero-point fixed at 0.
	Symmetric bool

	// PerChannel uses one scale per output channel, as opposed to one per tensor.
	PerChannel bool
}

// String implements fmt.Stringer.
func (s QuantSpec) String() string {
	scheme := "affine"
	if s.Symmetric {
		scheme = "symmetric"
	}
	granularity := "per-tensor"
	if s.PerChannel {
		granularity = "per-channel"
	}
	return fmt.Sprintf("%s/%s/%s", s.DType, scheme, granularity)
}

// OpConfig tells which values of an operation are observed.
type OpConfig struct {
	// Activations are the argument indices observed with Config.Activation.
	Activations []int

	// Weights are the argument indices observed with Config.Weight. Weights that are not constant
	// expressions (see graph.Node.IsConstantExpression) are observed with Config.Activation instead.
	Weights []int

	// ObserveOutput observes the operation output with Config.Activation.
	ObserveOutput bool
}

// Config of the quantization passes.
type Config struct {
	Activation, Weight QuantSpec

	// Ops maps each quantized operation type to its configuration. Other operations are left as is.
	Ops map[graph.OpType]OpConfig
}

// SymmetricConfig returns a configuration quantizing conv1d, conv2d and linear operations to int8: their input
// (argument 0) and output as activations, and their weight (argument 1) as weights.
// Biases are not quantized.
//
// If perChannel is true weights are quantized per channel, activations are always per tensor.
func SymmetricConfig(perChannel bool) Config {
	opCfg := OpConfig{Activations: []int{0}, Weights: []int{1}, ObserveOutput: true}
	return Config{
		Activation: QuantSpec{DType: dtypes.Int8, Symmetric: true},
		Weight:     QuantSpec{DType: dtypes.Int8, Symmetric: true, PerChannel: perChannel},
		Ops: map[graph.OpType]OpConfig{
			graph.OpConv1D: opCfg,
			graph.OpConv2D: opCfg,
			graph.OpLinear: opCfg,
		},
	}
}

// Observer returns the node observed by an observer node and its QuantSpec.
// It panics if n is not a well-formed observer.
func Observer(n *graph.Node) (observed *graph.Node, spec QuantSpec) {
	n.AssertType(graph.OpObserver)
	n.AssertNumArgs(2)
	n.AssertNodeArgs(0)
	spec, ok := n.Arg(1).Literal().(QuantSpec)
	if !ok {
		exceptions.Panicf("quantize: observer %s has no QuantSpec", n)
	}
	return n.Arg(0).Node(), spec
}

type preparer struct {
	g   *graph.Graph
	cfg Config

	// observers indexed by the id of the node they observe.
	observers map[graph.NodeId]*graph.Node
	count     int
}

// Prepare inserts observer nodes as configured by cfg, and returns the number of observers inserted.
//
// One observer is shared by all users of the same producer: an already existing observer (including from a
// previous call to Prepare) is reused. Arguments that are literals, absent, or already observers are skipped.
func Prepare(g *graph.Graph, cfg Config) (numObservers int, err error) {
	if err = g.CheckValid(); err != nil {
		return
	}
	p := &preparer{g: g, cfg: cfg, observers: make(map[graph.NodeId]*graph.Node)}
	err = exceptions.TryCatch[error](p.run)
	if err != nil {
		err = errors.WithMessagef(err, "quantize.Prepare(%q) failed", g.Name())
	}
	return p.count, err
}

func (p *preparer) run() {
	nodes := p.g.Nodes()
	for _, n := range nodes {
		if n.Type() == graph.OpObserver {
			observed, _ := Observer(n)
			p.observers[observed.Id()] = n
		}
	}
	for _, n := range nodes {
		opCfg, found := p.cfg.Ops[n.Type()]
		if !found {
			continue
		}
		for _, argIdx := range opCfg.Activations {
			p.observeArg(n, argIdx, p.cfg.Activation)
		}
		for _, argIdx := range opCfg.Weights {
			p.observeArg(n, argIdx, p.weightSpec(n, argIdx))
		}
		if opCfg.ObserveOutput {
			p.observeOutput(n, p.cfg.Activation)
		}
	}
	klog.V(1).Infof("quantize.Prepare(%q): %d observers inserted", p.g.Name(), p.count)
}

// weightSpec returns the QuantSpec for a weight argument: values computed from the graph parameters are
// quantized as activations.
func (p *preparer) weightSpec(consumer *graph.Node, argIdx int) QuantSpec {
	if argIdx < consumer.NumArgs() && consumer.Arg(argIdx).IsNode() &&
		!consumer.Arg(argIdx).Node().IsConstantExpression() {
		return p.cfg.Activation
	}
	return p.cfg.Weight
}

func (p *preparer) observeArg(consumer *graph.Node, argIdx int, spec QuantSpec) {
	if argIdx >= consumer.NumArgs() || !consumer.Arg(argIdx).IsNode() {
		return
	}
	producer := consumer.Arg(argIdx).Node()
	if producer.Type() == graph.OpObserver {
		return
	}
	obs, found := p.observers[producer.Id()]
	if !found || !p.g.IsBefore(obs, consumer) {
		obs = p.g.NewNodeBefore(consumer, graph.OpObserver, producer.DType(), graph.NodeArg(producer), graph.Literal(spec))
		p.observers[producer.Id()] = obs
		p.count++
	}
	p.g.ReplaceInput(consumer, argIdx, obs)
}

func (p *preparer) observeOutput(n *graph.Node, spec QuantSpec) {
	obs, found := p.observers[n.Id()]
	if !found {
		obs = p.g.NewNode(graph.OpObserver, n.DType(), graph.NodeArg(n), graph.Literal(spec))
		p.observers[n.Id()] = obs
		p.count++
	}
	p.g.ReplaceAllUsesWith(n, obs)
}

// Convert replaces every observer node in g by a quantize node followed by a dequantize node, and returns the
// number of observers converted.
//
// Users of the observer are rewired to the dequantize node, and the observer is removed.
func Convert(g *graph.Graph) (numConverted int, err error) {
	if err = g.CheckValid(); err != nil {
		return
	}
	err = exceptions.TryCatch[error](func() {
		for _, n := range g.Nodes() {
			if n.Type() != graph.OpObserver {
				continue
			}
			observed, spec := Observer(n)
			q := g.NewNodeBefore(n, graph.OpQuantize, spec.DType, graph.NodeArg(observed), graph.Literal(spec))
			dq := g.NewNodeBefore(n, graph.OpDequantize, n.DType(), graph.NodeArg(q), graph.Literal(spec))
			g.ReplaceAllUsesWith(n, dq)
			g.Remove(n)
			numConverted++
		}
	})
	if err != nil {
		err = errors.WithMessagef(err, "quantize.Convert(%q) failed", g.Name())
		return
	}
	klog.V(1).Infof("quantize.Convert(%q): %d observers converted", g.Name(), numConverted)
	return
}
