// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/debughandles/pkg/ml/heuristics"
	"github.com/gomlx/debughandles/pkg/ml/heuristics/learned"
	"github.com/gomlx/debughandles/pkg/support/xslices"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
)

var (
	flagHeuristic  = flag.String("heuristic", "", "If set, query the learned heuristics for this optimization (e.g. \"pad_mm\", \"mixed_mm\") instead of the debug handles report.")
	flagM          = flag.Int("m", 0, "Heuristic feature: m dimension of the [m, k] x [k, n] matrix multiplication.")
	flagK          = flag.Int("k", 0, "Heuristic feature: k dimension.")
	flagN          = flag.Int("n", 0, "Heuristic feature: n dimension.")
	flagIntensity  = flag.Float64("arith_intensity", 0, "Heuristic feature: arithmetic intensity, if > 0.")
	flagInt8Weight = flag.Bool("int8_weights", true, "Heuristic feature: the second operand is int8.")
	flagCapability = flag.String("capability", "8.0", "Device compute capability, as \"<major>.<minor>\".")
	flagChoices    = xslices.Flag(flag.CommandLine, "choices",
		[]heuristics.Choice{learned.Pad, learned.NoPad, learned.TritonMixedMM, learned.FallbackMixedMM},
		"Comma-separated list of the choices offered.",
		func(choice string) (heuristics.Choice, error) { return heuristics.Choice(choice), nil })
)

func decide() {
	capability := must.M1(heuristics.ParseCapability(*flagCapability))
	ctx := heuristics.NewContext()
	heuristics.SetValue(ctx, heuristics.M, *flagM)
	heuristics.SetValue(ctx, heuristics.K, *flagK)
	heuristics.SetValue(ctx, heuristics.N, *flagN)
	heuristics.SetValue(ctx, heuristics.MatDType1, dtypes.Float16)
	weightsDType := dtypes.Float16
	if *flagInt8Weight {
		weightsDType = dtypes.Int8
	}
	heuristics.SetValue(ctx, heuristics.MatDType2, weightsDType)
	if *flagIntensity > 0 {
		heuristics.SetValue(ctx, heuristics.ArithmeticIntensity, *flagIntensity)
	}
	ctrl := heuristics.Default()
	decision, ok := ctrl.Decide(*flagHeuristic, ctx, *flagChoices, nil, capability)
	fmt.Println(titleStyle.Render(fmt.Sprintf("Heuristic %q", *flagHeuristic)))
	table := newTable([]string{"Key", "Value"}, lipgloss.Right, lipgloss.Left)
	table.Row(false, "context", ctx.String())
	table.Row(false, "capability", capability.String())
	table.Row(false, "# strategies", fmt.Sprintf("%d", len(ctrl.Get(*flagHeuristic))))
	switch {
	case !ok:
		table.Row(true, "decision", "no strategy applies")
	case !decision.HasChoice:
		table.Row(true, "decision", fmt.Sprintf("%s declined to choose", decision.Strategy))
	default:
		table.Row(false, "strategy", decision.Strategy)
		table.Row(false, "decision", string(decision.Choice))
	}
	fmt.Println(table.Render())
}
