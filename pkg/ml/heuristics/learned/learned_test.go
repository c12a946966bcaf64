// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package learned

import (
	"testing"

	"github.com/gomlx/debughandles/pkg/ml/heuristics"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func matmulContext(m, k, n int) *heuristics.Context {
	ctx := heuristics.NewContext()
	heuristics.SetValue(ctx, heuristics.M, m)
	heuristics.SetValue(ctx, heuristics.K, k)
	heuristics.SetValue(ctx, heuristics.N, n)
	return ctx
}

func TestDiscovery(t *testing.T) {
	strategies := heuristics.Discover(heuristics.DefaultCatalog(), heuristics.DefaultNamespace)
	require.Len(t, strategies, 3)
	// Sorted by module name: _MixedMMA100, _MixedMMH100, _PadMMA100.
	assert.Equal(t, MixedMM, strategies[0].Name())
	assert.Equal(t, MixedMM, strategies[1].Name())
	assert.Equal(t, PadMM, strategies[2].Name())

	ctrl := heuristics.New()
	assert.Len(t, ctrl.Get(PadMM), 1)
	assert.Len(t, ctrl.Get(MixedMM), 2)
	assert.Empty(t, ctrl.Get("learnedheuristic"))
}

func TestPadMM(t *testing.T) {
	ctrl := heuristics.New()
	choices := []heuristics.Choice{Pad, NoPad}

	decision, ok := ctrl.Decide(PadMM, matmulContext(128, 64, 64), choices, nil, A100)
	require.True(t, ok)
	assert.Equal(t, heuristics.Decision{Strategy: "_PadMMA100", Choice: NoPad, HasChoice: true}, decision)

	ctx := matmulContext(4096, 4095, 1023)
	heuristics.SetValue(ctx, heuristics.ArithmeticIntensity, 100.0)
	decision, ok = ctrl.Decide(PadMM, ctx, choices, nil, A100)
	require.True(t, ok)
	assert.Equal(t, Pad, decision.Choice)

	// Choice not offered.
	decision, ok = ctrl.Decide(PadMM, ctx, []heuristics.Choice{NoPad}, nil, A100)
	require.True(t, ok)
	assert.False(t, decision.HasChoice)

	// No strategy for this device, or missing features.
	_, ok = ctrl.Decide(PadMM, ctx, choices, nil, H100)
	assert.False(t, ok)
	_, ok = ctrl.Decide(PadMM, heuristics.NewContext(), choices, nil, A100)
	assert.False(t, ok)
}

func TestMixedMM(t *testing.T) {
	ctrl := heuristics.New()
	choices := []heuristics.Choice{TritonMixedMM, FallbackMixedMM}
	ctx := matmulContext(48, 4096, 4096)
	heuristics.SetValue(ctx, heuristics.MatDType1, dtypes.Float16)
	heuristics.SetValue(ctx, heuristics.MatDType2, dtypes.Int8)

	// m=48 is small for the H100, but not for the A100.
	decision, ok := ctrl.Decide(MixedMM, ctx, choices, nil, H100)
	require.True(t, ok)
	assert.Equal(t, heuristics.Decision{Strategy: "_MixedMMH100", Choice: TritonMixedMM, HasChoice: true}, decision)
	decision, ok = ctrl.Decide(MixedMM, ctx, choices, nil, A100)
	require.True(t, ok)
	assert.Equal(t, heuristics.Decision{Strategy: "_MixedMMA100", Choice: FallbackMixedMM, HasChoice: true}, decision)

	// Not an int8 weight: the strategies hold but don't choose.
	heuristics.SetValue(ctx, heuristics.MatDType2, dtypes.Float16)
	decision, ok = ctrl.Decide(MixedMM, ctx, choices, nil, A100)
	require.True(t, ok)
	assert.False(t, decision.HasChoice)
}
