// Copyright 2025 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/genegraph"
	"github.com/gomlx/genegraph/adjacency"
	"github.com/gomlx/genegraph/hierarchy"
	"github.com/gomlx/gomlx/backends"
	"github.com/stretchr/testify/require"
)

func TestRing(t *testing.T) {
	adj := ring(5)
	require.NoError(t, adjacency.Validate(adj))
	require.True(t, adjacency.IsSymmetric(adj, 0))
	require.Equal(t, []float64{2, 2, 2, 2, 2}, adjacency.RowSums(adj))
	require.Equal(t, 1.0, adj.At(4, 0))

	err := exceptions.TryCatch[error](func() { _ = ring(1) })
	require.Error(t, err)
}

func TestPlotRetained(t *testing.T) {
	cfg := genegraph.DefaultConfig()
	cfg.NumLayers = 3
	cfg.ClusterType = "grid"
	cfg.PoolReduction = "strip"
	h, err := hierarchy.FromConfig(ring(16), cfg, nil, nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "retained.png")
	require.NoError(t, plotRetained(h, "ring16", path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Positive(t, info.Size())
}

func TestConfigureBackend(t *testing.T) {
	saved := backends.DefaultConfig
	defer func() { backends.DefaultConfig = saved }()

	backends.DefaultConfig = "go"
	configureBackend(genegraph.PlacementCPU)
	require.Equal(t, "go", backends.DefaultConfig)

	configureBackend(genegraph.PlacementAccelerator)
	require.Equal(t, "xla:cuda", backends.DefaultConfig)
}
