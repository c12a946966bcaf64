// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package learned

import (
	"github.com/gomlx/debughandles/pkg/ml/heuristics"
	"github.com/gomlx/gopjrt/dtypes"
)

// NewPadMMA100 creates the strategy deciding whether to pad the operands of a matrix multiplication to
// multiples of 8, on A100 devices.
func NewPadMMA100() (heuristics.Strategy, error) {
	return &strategy{name: PadMM, capability: A100, decide: padMMA100}, nil
}

func padMMA100(ctx *heuristics.Context) (heuristics.Choice, bool) {
	m, k, n := dims(ctx)
	if k%8 == 0 && n%8 == 0 {
		// Already aligned.
		return NoPad, true
	}
	if !heuristics.ValueOr(ctx, heuristics.MatIsContiguous, true) {
		return "", false
	}
	intensity := heuristics.ValueOr(ctx, heuristics.ArithmeticIntensity, 0.0)
	if intensity <= 22.5 {
		if m*k*n <= 1<<20 {
			return NoPad, true
		}
		return "", false
	}
	return Pad, true
}

// NewMixedMMA100 creates the strategy choosing the kernel of a mixed precision (int8 x float)
// matrix multiplication, on A100 devices.
func NewMixedMMA100() (heuristics.Strategy, error) {
	return &strategy{name: MixedMM, capability: A100, decide: mixedMMTree(32, 1<<24)}, nil
}

// NewMixedMMH100 creates the strategy choosing the kernel of a mixed precision (int8 x float)
// matrix multiplication, on H100 devices.
func NewMixedMMH100() (heuristics.Strategy, error) {
	return &strategy{name: MixedMM, capability: H100, decide: mixedMMTree(64, 1<<26)}, nil
}

// mixedMMTree favors the triton kernel for small m, and the fallback for large k*n weights.
func mixedMMTree(maxM, maxKN int) tree {
	return func(ctx *heuristics.Context) (heuristics.Choice, bool) {
		if dtype, found := heuristics.Value(ctx, heuristics.MatDType2); !found || dtype != dtypes.Int8 {
			return "", false
		}
		m, k, n := dims(ctx)
		switch {
		case m <= maxM:
			return TritonMixedMM, true
		case k*n >= maxKN:
			return FallbackMixedMM, true
		case heuristics.ValueOr(ctx, heuristics.OutDType, dtypes.Float32) == dtypes.BFloat16:
			return TritonMixedMM, true
		default:
			return "", false
		}
	}
}
