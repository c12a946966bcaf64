// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package learned registers the learned strategies (decision trees trained offline on benchmark data) for the
// matrix multiplication optimizations, in heuristics.DefaultNamespace.
//
// Import it for its side effect:
//
//	import _ "github.com/gomlx/debughandles/pkg/ml/heuristics/learned"
package learned

import (
	"slices"

	"github.com/gomlx/debughandles/pkg/ml/heuristics"
	"github.com/pkg/errors"
)

// Names of the optimizations decided by the strategies in this package.
const (
	PadMM   = "pad_mm"
	MixedMM = "mixed_mm"
)

// Choices of the optimizations.
const (
	Pad   heuristics.Choice = "pad"
	NoPad heuristics.Choice = "no_pad"

	TritonMixedMM   heuristics.Choice = "triton_mixed_mm"
	FallbackMixedMM heuristics.Choice = "fallback_mixed_mm"
)

// InterfaceModule is registered along with the learned modules, but its name doesn't mark it as learned, so
// it is never loaded by discovery.
const InterfaceModule = "learnedheuristic_interface"

var (
	A100 = heuristics.DeviceCapability{Major: 8, Minor: 0}
	H100 = heuristics.DeviceCapability{Major: 9, Minor: 0}
)

func init() {
	ns := heuristics.DefaultNamespace
	heuristics.Register(ns, "_PadMMA100", NewPadMMA100)
	heuristics.Register(ns, "_MixedMMA100", NewMixedMMA100)
	heuristics.Register(ns, "_MixedMMH100", NewMixedMMH100)
	heuristics.Register(ns, InterfaceModule, func() (heuristics.Strategy, error) {
		return nil, errors.New("the learned strategy interface can't be instantiated")
	})
}

// tree of decisions over the context features. It returns false if the leaf reached is not confident.
type tree func(ctx *heuristics.Context) (heuristics.Choice, bool)

// strategy is the common implementation of the learned strategies: one optimization, trained for one device.
type strategy struct {
	name       string
	capability heuristics.DeviceCapability
	decide     tree
}

var _ heuristics.Strategy = (*strategy)(nil)

// Name implements heuristics.Strategy.
func (s *strategy) Name() string { return s.name }

// CheckPrecondition implements heuristics.Strategy: the query must be for the same optimization and device,
// and have the matrix dimensions.
func (s *strategy) CheckPrecondition(q *heuristics.Query) bool {
	if q.Name != s.name || q.Capability != s.capability || q.Context == nil {
		return false
	}
	for _, key := range []heuristics.Key[int]{heuristics.M, heuristics.K, heuristics.N} {
		if _, found := heuristics.Value(q.Context, key); !found {
			return false
		}
	}
	return true
}

// Decide implements heuristics.Strategy. The choice taken by the tree must be one of the choices offered.
func (s *strategy) Decide(ctx *heuristics.Context, choices []heuristics.Choice) (heuristics.Choice, bool) {
	choice, ok := s.decide(ctx)
	if !ok || !slices.Contains(choices, choice) {
		return "", false
	}
	return choice, true
}

// dims returns the m, k, n dimensions of the context, which are checked by the precondition.
func dims(ctx *heuristics.Context) (m, k, n int) {
	return heuristics.ValueOr(ctx, heuristics.M, 0),
		heuristics.ValueOr(ctx, heuristics.K, 0),
		heuristics.ValueOr(ctx, heuristics.N, 0)
}
