// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
	redRowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "9", Dark: "9"}).
			Bold(true).
			PaddingLeft(1).PaddingRight(1)

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 0, 4)
)

// setColors enables or disables colors in the output.
func setColors(enabled bool) {
	if !enabled {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// tableWithReds is a table where rows can be highlighted (in red), e.g. for failed checks.
type tableWithReds struct {
	Table *lgtable.Table
	Count int
	Reds  map[int]bool
}

// Row adds a row, highlighted if isRed.
func (t *tableWithReds) Row(isRed bool, row ...string) {
	if isRed {
		t.Reds[t.Count] = true
	}
	t.Table.Row(row...)
	t.Count++
}

// Render returns the table as a string.
func (t *tableWithReds) Render() string {
	return t.Table.Render()
}

func newTable(headers []string, alignments ...lipgloss.Position) *tableWithReds {
	t := &tableWithReds{
		Reds: make(map[int]bool),
	}
	t.Table = lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		Headers(headers...).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if row < 0 {
				s = headerRowStyle
				return
			}
			if t.Reds[row] {
				s = redRowStyle
			} else if row%2 == 0 {
				s = oddRowStyle
			} else {
				s = evenRowStyle
			}
			alignment := lipgloss.Left
			if col < len(alignments) {
				alignment = alignments[col]
			} else if len(alignments) > 0 {
				alignment = alignments[len(alignments)-1]
			}
			return s.Align(alignment)
		})
	return t
}
