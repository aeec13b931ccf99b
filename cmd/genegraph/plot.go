// Copyright 2025 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/gomlx/genegraph/hierarchy"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// plotRetained saves to path a line plot of the number of retained nodes and clusters per layer.
func plotRetained(h *hierarchy.Hierarchy, name, path string) error {
	p := plot.New()
	p.Title.Text = "Coarsening of " + name
	p.X.Label.Text = "layer"
	p.Y.Label.Text = "nodes"
	p.Y.Min = 0
	p.Legend.Top = true

	retained := make(plotter.XYs, h.NumLayers())
	clusters := make(plotter.XYs, h.NumLayers())
	for ii, spec := range h.Layers() {
		retained[ii].X, retained[ii].Y = float64(ii), float64(spec.NumRetained())
		clusters[ii].X, clusters[ii].Y = float64(ii), float64(spec.Clusters.NumClusters)
	}
	for ii, series := range []struct {
		name   string
		points plotter.XYs
	}{{"retained", retained}, {"clusters", clusters}} {
		line, err := plotter.NewLine(series.points)
		if err != nil {
			return errors.Wrapf(err, "failed to plot %s nodes", series.name)
		}
		line.Color = plotutil.Color(ii)
		p.Add(line)
		p.Legend.Add(series.name, line)
	}
	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "failed to save plot to %q", path)
	}
	return nil
}
