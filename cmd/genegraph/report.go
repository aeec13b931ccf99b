// Copyright 2025 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/genegraph"
	"github.com/gomlx/genegraph/adjacency"
	"github.com/gomlx/genegraph/adjacency/cache"
	"github.com/gomlx/genegraph/hierarchy"
	"github.com/gomlx/gomlx/types/shapes"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)

	oddRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFF")).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999")).
			PaddingLeft(1).PaddingRight(1)

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
)

// newPlainTable creates a table with alternating row colors. Numeric columns (all but the first) are right aligned.
func newPlainTable() *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if row == lgtable.HeaderRow {
				s = headerRowStyle
				return
			}
			if row%2 == 0 {
				s = evenRowStyle
			} else {
				s = oddRowStyle
			}
			if col > 0 {
				s = s.Align(lipgloss.Right)
			} else {
				s = s.Align(lipgloss.Left)
			}
			return
		})
}

func printSummary(name string, cfg genegraph.Config, h *hierarchy.Hierarchy, outputShape shapes.Shape) {
	fmt.Println(titleStyle.Render("Summary"))
	table := newPlainTable()
	table.Row("graph", name)
	table.Row("nodes", humanize.Comma(int64(h.NumNodes())))
	table.Row("layers", humanize.Comma(int64(h.NumLayers())))
	table.Row("cluster type", cfg.ClusterType)
	table.Row("pool reduction", cfg.PoolReduction)
	table.Row("layer type", cfg.LayerType)
	table.Row("placement", cfg.Placement().String())
	table.Row("output shape", outputShape.String())
	fmt.Println(table.Render())
}

func printLayers(h *hierarchy.Hierarchy) {
	fmt.Println(titleStyle.Render("Layers"))
	table := newPlainTable()
	table.Headers("Layer", "Edges", "Clusters", "Coarsened Edges", "Retained", "Pooling")
	for _, spec := range h.Layers() {
		pooling := "no-op"
		if !spec.Pool.IsNoOp() {
			pooling = spec.Pool.Reduction().String()
		}
		table.Row(
			fmt.Sprintf("#%d", spec.Index),
			humanize.Comma(int64(adjacency.NumEdges(spec.Transformed))),
			humanize.Comma(int64(spec.Clusters.NumClusters)),
			humanize.Comma(int64(adjacency.NumEdges(spec.Coarsened))),
			fmt.Sprintf("%s (%.1f%%)", humanize.Comma(int64(spec.NumRetained())),
				100*float64(spec.NumRetained())/float64(h.NumNodes())),
			pooling,
		)
	}
	fmt.Println(table.Render())
}

func printCacheStats(stats cache.Stats) {
	fmt.Println(titleStyle.Render("Normalization Cache"))
	table := newPlainTable()
	table.Row("memory hits", humanize.Comma(stats.MemoryHits))
	table.Row("disk hits", humanize.Comma(stats.DiskHits))
	table.Row("misses", humanize.Comma(stats.Misses))
	table.Row("corrupt", humanize.Comma(stats.Corrupt))
	table.Row("writes", humanize.Comma(stats.Writes))
	fmt.Println(table.Render())
}
