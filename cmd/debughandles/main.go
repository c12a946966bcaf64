// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// debughandles assigns numeric debug handles to a small demo model, runs it through copies and the
// quantization passes, and reports whether the handles were preserved at each stage.
//
// It can also dump the handles of the final graph as a YAML snapshot, compare it against a previous snapshot,
// and query the learned heuristics controller.
//
// Example:
//
//	debughandles -model=conv -per_channel -yaml=/tmp/handles.yaml
//	debughandles -ref=/tmp/handles.yaml
//	debughandles -heuristic=pad_mm -m=4096 -k=4095 -n=1023 -capability=8.0
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/debughandles/pkg/core/graph"
	"github.com/gomlx/debughandles/pkg/core/graph/graphtest"
	"github.com/gomlx/debughandles/pkg/core/pattern"
	"github.com/gomlx/debughandles/pkg/ml/debughandle"
	"github.com/gomlx/debughandles/pkg/ml/quantize"
	"github.com/gomlx/debughandles/pkg/support/fsutil"
	"github.com/gomlx/debughandles/pkg/support/xslices"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagModel = flag.String("model", "conv", "Demo model to annotate: \"conv\" (conv2d -> reshape -> conv1d), "+
		"\"nobias\" (conv2d without bias) or \"chain\" (two chained relu).")
	flagPerChannel = flag.Bool("per_channel", false, "Quantize weights per channel.")
	flagReassign   = flag.Bool("reassign", false, "Re-run the assignment on the final graph with the Reassign policy "+
		"(by default new nodes get fresh handles and existing ones are preserved).")
	flagGraph     = flag.Bool("graph", false, "Print the graph at each stage, and the handles of its aliased nodes.")
	flagYAML      = flag.String("yaml", "", "If set, write the snapshot of the handles of the final graph to this file (\"-\" for stdout, \"~\" is expanded).")
	flagOverwrite = flag.Bool("overwrite", false, "Allow -yaml to overwrite an existing file.")
	flagRef       = flag.String("ref", "", "If set, compare the handles of the final graph with the snapshot in this file.")
	flagNoColor   = flag.Bool("no_color", false, "Disable colors in the output.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	setColors(!*flagNoColor)
	if len(flag.Args()) > 0 {
		klog.Errorf("Unexpected arguments %q. See 'debughandles -help'.", flag.Args())
		os.Exit(1)
	}
	if *flagHeuristic != "" {
		decide()
		return
	}
	report()
}

// stage of the transformations of the demo model.
type stage struct {
	name string
	g    *graph.Graph
}

func buildModel(name string) *graph.Graph {
	switch name {
	case "conv":
		g, _ := graphtest.Conv2DThenConv1D()
		return g
	case "nobias":
		return graphtest.Conv2DNoBias()
	case "chain":
		g, _, _ := graphtest.TwoChainedOps()
		return g
	default:
		klog.Errorf("Unknown -model=%q. See 'debughandles -help'.", name)
		os.Exit(1)
	}
	return nil
}

func report() {
	g := buildModel(*flagModel)
	must.M1(debughandle.Assign(g))
	stages := []stage{
		{"original", g},
		{"shallow copy", g.ShallowCopy()},
		{"deep copy", g.DeepCopy()},
	}
	quantized := g.DeepCopy()
	numObservers := must.M1(quantize.Prepare(quantized, quantize.SymmetricConfig(*flagPerChannel)))
	stages = append(stages, stage{"prepare", quantized.DeepCopy()})
	numConverted := must.M1(quantize.Convert(quantized))
	final := stage{"convert", quantized}
	stages = append(stages, final)
	klog.V(1).Infof("%d observers inserted, %d converted", numObservers, numConverted)

	if *flagGraph {
		for _, s := range stages {
			fmt.Printf("\n%s:\n%s\n", s.name, s.g)
			for alias, n := range s.g.IterAliasedNodes() {
				m, _ := debughandle.Get(n)
				fmt.Printf("\t%s: %s\n", alias, m)
			}
		}
	}
	summaryTable(stages)
	extractionTable(stages)
	diffTable(stages)

	if *flagReassign {
		must.M1(debughandle.Assign(final.g, debughandle.WithPolicy(debughandle.Reassign)))
	} else {
		must.M1(debughandle.Assign(final.g))
	}
	if *flagYAML != "" {
		must.M(writeSnapshot(debughandle.TakeSnapshot(final.g), *flagYAML, *flagOverwrite))
	}
	if *flagRef != "" {
		compareSnapshot(final.g, *flagRef)
	}
}

func summaryTable(stages []stage) {
	fmt.Println(titleStyle.Render("Graphs"))
	table := newTable([]string{"Stage", "Run", "# nodes", "# entries", "# handles", "Valid"},
		lipgloss.Left, lipgloss.Left, lipgloss.Right)
	for _, s := range stages {
		runID, _ := debughandle.GetRunID(s.g)
		entries, distinct := debughandle.Count(s.g)
		valid := "yes"
		err := debughandle.Validate(s.g)
		if err != nil {
			valid = err.Error()
		}
		table.Row(err != nil, s.name, runID.String(),
			humanize.Comma(int64(s.g.NumNodes())), humanize.Comma(int64(entries)), humanize.Comma(int64(distinct)), valid)
	}
	fmt.Println(table.Render())
}

var patterns = []*pattern.Pattern{pattern.Conv2D(), pattern.Conv1D(), pattern.Linear()}

func extractionTable(stages []stage) {
	fmt.Println(titleStyle.Render("Handles per pattern match"))
	table := newTable([]string{"Stage", "Match", "Handles", "Compared to original"})
	original := stages[0].g
	for _, p := range patterns {
		refMatches := p.Match(original)
		for matchIdx, refMatch := range refMatches {
			ref := debughandle.Extract(refMatch, p.InputRoles()...)
			for _, s := range stages {
				matches := p.Match(s.g)
				if matchIdx >= len(matches) {
					table.Row(true, s.name, p.String(), "<match missing>", "")
					continue
				}
				got := debughandle.Extract(matches[matchIdx], p.InputRoles()...)
				cmp := debughandle.Compare(ref, got)
				table.Row(cmp.Status != debughandle.Preserved, s.name, matchName(refMatch), got.String(), cmp.String())
			}
		}
	}
	fmt.Println(table.Render())
}

// matchName uses the alias of the matched node, if there is one.
func matchName(m pattern.Match) string {
	if alias := m.Result.GetAlias(); alias != "" {
		return alias
	}
	return fmt.Sprintf("%s #%d", m.Result.Type(), m.Result.Id())
}

func diffTable(stages []stage) {
	fmt.Println(titleStyle.Render("Handles compared to original"))
	table := newTable([]string{"Stage", "Preserved", "Lost", "Added"}, lipgloss.Left, lipgloss.Right)
	for _, s := range stages[1:] {
		diff := debughandle.Diff(stages[0].g, s.g)
		if diff.RunMismatch {
			table.Row(true, s.name, "run mismatch", "", "")
			continue
		}
		table.Row(!diff.IsLossless(), s.name, humanize.Comma(int64(len(diff.Preserved))),
			handlesList(diff.Lost), handlesList(diff.Added))
	}
	fmt.Println(table.Render())
}

func handlesList(handles []debughandle.Handle) string {
	if len(handles) == 0 {
		return "-"
	}
	return strings.Join(xslices.Map(handles, func(h debughandle.Handle) string { return strconv.Itoa(int(h)) }), ",")
}

// writeSnapshot to path, refusing to overwrite an existing file unless overwrite is set.
func writeSnapshot(snap *debughandle.Snapshot, path string, overwrite bool) error {
	if path != "-" && !overwrite {
		expanded, err := fsutil.ExpandPath(path)
		if err != nil {
			return err
		}
		exists, err := fsutil.FileExists(expanded)
		if err != nil {
			return err
		}
		if exists {
			return errors.Errorf("snapshot file %q already exists, use -overwrite to replace it", path)
		}
	}
	f, err := fsutil.Create(path)
	if err != nil {
		return err
	}
	if err = snap.WriteYAML(f); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %q", path)
	}
	if path != "-" {
		fmt.Printf("Snapshot with %s handles written to %q\n", humanize.Comma(int64(len(snap.Entries))), path)
	}
	return nil
}

func compareSnapshot(g *graph.Graph, path string) {
	f := must.M1(fsutil.Open(path))
	ref := must.M1(debughandle.ReadSnapshot(f))
	must.M(f.Close())
	diff := debughandle.DiffSnapshots(ref, debughandle.TakeSnapshot(g))
	fmt.Println(titleStyle.Render(fmt.Sprintf("Compared to %q", path)))
	table := newTable([]string{"Preserved", "Lost", "Added"}, lipgloss.Right, lipgloss.Left)
	if diff.RunMismatch {
		table.Row(true, "run mismatch", "", "")
	} else {
		table.Row(!diff.IsLossless(), humanize.Comma(int64(len(diff.Preserved))),
			handlesList(diff.Lost), handlesList(diff.Added))
	}
	fmt.Println(table.Render())
	for _, h := range diff.Lost {
		if e, found := ref.Find(h); found {
			fmt.Printf("\tlost %d: %s of node #%d (%s %s)\n", h, e.Attach, e.Node, e.Op, e.Alias)
		}
	}
}
