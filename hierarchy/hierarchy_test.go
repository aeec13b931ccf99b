// Copyright 2025 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package hierarchy

import (
	"math"
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/genegraph"
	"github.com/gomlx/genegraph/adjacency"
	"github.com/gomlx/genegraph/adjacency/cache"
	"github.com/gomlx/genegraph/cluster"
	"github.com/gomlx/genegraph/ml/layers/graphconv"
	"github.com/gomlx/genegraph/ml/layers/graphpool"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/graph/graphtest"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	_ "github.com/gomlx/gomlx/backends/default"
)

var pathGraph = mat.NewDense(4, 4, []float64{
	0, 1, 0, 0,
	1, 0, 1, 0,
	0, 1, 0, 1,
	0, 0, 1, 0,
})

func ring(n int) *mat.Dense {
	adj := mat.NewDense(n, n, nil)
	for ii := range n {
		adj.Set(ii, (ii+1)%n, 1)
		adj.Set((ii+1)%n, ii, 1)
	}
	return adj
}

// testConfig returns the default configuration, placed where the test backend is.
func testConfig() genegraph.Config {
	cfg := genegraph.DefaultConfig()
	cfg.OnAccelerator = genegraph.PlacementOf(graphtest.BuildTestBackend()) == genegraph.PlacementAccelerator
	return cfg
}

// TestScenarioA clusters the 4-node path (with self-loops) into 2 clusters and max-pools it.
func TestScenarioA(t *testing.T) {
	cfg := testConfig()
	cfg.AddSelfConnection = true
	cfg.ClusterType = "hierarchy"
	cfg.PoolReduction = "max"
	cfg.NumLayers = 1
	h, err := FromConfig(pathGraph, cfg, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, h.NumLayers())
	require.Equal(t, 4, h.NumNodes())

	spec := h.Layer(0)
	require.Equal(t, 2, spec.NumRetained())
	require.Equal(t, []bool{true, false, false, true}, spec.Retained)
	require.Equal(t, []int{0, 0, 0, 1}, spec.Clusters.Assignment)

	// Merged rows are the OR of the member rows of the transformed adjacency.
	transformed := h.Adjacency(0)
	for node, clusterID := range spec.Clusters.Assignment {
		for col := range 4 {
			want := 0.0
			for member, memberCluster := range spec.Clusters.Assignment {
				if memberCluster == clusterID && transformed.At(member, col) > 0 {
					want = 1
				}
			}
			require.Equal(t, want, spec.Coarsened.At(node, col), "coarsened[%d, %d]", node, col)
		}
	}
	require.Equal(t, 0.0, pathGraph.At(0, 0), "original adjacency must not be modified")

	pool := h.PoolOperator(0)
	require.False(t, pool.IsNoOp())
	graphtest.RunTestGraphFn(t, "Scenario A pooling", func(g *Graph) (inputs, outputs []*Node) {
		x := Const(g, [][][]float32{{{1}, {2}, {3}, {4}}})
		inputs = []*Node{x}
		outputs = []*Node{pool.Apply(x)}
		return
	}, []any{
		// Max of cluster {0,1,2} at node 0, and of node 3 (which coarsened rows 0-2 also reach) at node 3.
		[][][]float32{{{3}, {0}, {0}, {4}}},
	}, 0)
}

func TestRetentionInheritance(t *testing.T) {
	for _, clusterType := range []string{"hierarchy", "grid", "ignore"} {
		cfg := testConfig()
		cfg.AddSelfConnection = true
		cfg.AddConnectivity = true
		cfg.ClusterType = clusterType
		cfg.NumLayers = 4
		var visited []int
		h, err := FromConfig(ring(16), cfg, nil, func(spec *LayerSpec) { visited = append(visited, spec.Index) })
		require.NoError(t, err, clusterType)
		require.Equal(t, []int{0, 1, 2, 3}, visited)

		previous := cluster.AllRetained(16)
		for layerID, spec := range h.Layers() {
			assert.LessOrEqual(t, spec.NumRetained(), cluster.CountRetained(previous), "%s layer %d", clusterType, layerID)
			for node, keep := range spec.Retained {
				if keep {
					assert.True(t, previous[node], "%s layer %d resurrected node %d", clusterType, layerID, node)
				}
			}
			if layerID > 0 {
				assert.True(t, mat.Equal(h.Layer(layerID-1).Coarsened, spec.Input), "layer input is the previous coarsened adjacency")
			}
			previous = spec.Retained
		}
		if clusterType == "ignore" {
			assert.True(t, h.PoolOperator(3).IsNoOp())
		} else {
			assert.Less(t, h.Layer(3).NumRetained(), 16)
		}
	}
}

func TestHierarchicalTargets(t *testing.T) {
	cfg := testConfig()
	cfg.AddSelfConnection = true
	cfg.ClusterType = "hierarchy"
	cfg.NumLayers = 3
	h, err := FromConfig(ring(16), cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 8, h.Layer(0).Clusters.NumClusters)
	assert.Equal(t, 4, h.Layer(1).Clusters.NumClusters)
	assert.Equal(t, 2, h.Layer(2).Clusters.NumClusters)
	assert.LessOrEqual(t, h.Layer(2).NumRetained(), 2)
	for _, spec := range h.Layers() {
		assert.True(t, spec.Retained[0], "node 0 is always the first member of its cluster")
	}
}

func TestOutOfRange(t *testing.T) {
	h, err := FromConfig(pathGraph, testConfig(), nil, nil)
	require.NoError(t, err)
	for _, layerID := range []int{-1, 1, 10} {
		err := exceptions.TryCatch[error](func() { h.Layer(layerID) })
		require.Error(t, err, "layer %d", layerID)
		err = exceptions.TryCatch[error](func() { h.PoolOperator(layerID) })
		require.Error(t, err, "layer %d", layerID)
	}
}

func TestConfigurationErrors(t *testing.T) {
	c, err := cache.New(cache.Config{Dir: t.TempDir(), User: "tester"})
	require.NoError(t, err)
	calls := 0
	onLayer := func(*LayerSpec) { calls++ }

	cfg := testConfig()
	cfg.NormalizeAdjacency = true
	cfg.ClusterType = "kmeans"
	_, err = FromConfig(pathGraph, cfg, c, onLayer)
	require.ErrorIs(t, err, genegraph.ErrConfiguration)
	require.Zero(t, calls)
	require.Equal(t, cache.Stats{}, c.Stats(), "nothing must be computed for an invalid configuration")

	cfg = testConfig()
	cfg.PoolReduction = "sum"
	_, err = FromConfig(pathGraph, cfg, c, onLayer)
	require.ErrorIs(t, err, genegraph.ErrConfiguration)

	_, err = Build(pathGraph, 0, nil, nil, Options{})
	require.ErrorIs(t, err, genegraph.ErrConfiguration)
	planner, err := cluster.NewPlanner(cluster.TypeIgnore, nil)
	require.NoError(t, err)
	_, err = Build(mat.NewDense(2, 3, nil), 1, nil, planner, Options{})
	require.ErrorIs(t, err, genegraph.ErrConfiguration)
	_, err = Build(pathGraph, 1, nil, planner, Options{Reduction: graphpool.Reduction(5)})
	require.ErrorIs(t, err, genegraph.ErrConfiguration)

	// Errors of the transforms are surfaced as they are.
	failing := adjacency.TransformFunc(func(adj *mat.Dense, _ int) (*mat.Dense, error) {
		// Row 0 sums to zero after filling the diagonal.
		return adjacency.ApproxNormalizeLaplacian{}.Apply(mat.NewDense(2, 2, []float64{0, -1, 0, 0}), 0)
	})
	_, err = Build(mat.NewDense(2, 2, nil), 1, failing, planner, Options{})
	require.ErrorIs(t, err, genegraph.ErrNumerical)
}

func TestNormalizationCache(t *testing.T) {
	c, err := cache.New(cache.Config{Dir: t.TempDir(), User: "tester", Namespace: cache.NamespaceNormalizedLaplacian})
	require.NoError(t, err)
	cfg := testConfig()
	cfg.NormalizeAdjacency = true
	cfg.AddSelfConnection = true
	cfg.ClusterType = "grid"
	cfg.NumLayers = 2
	cfg.CacheID = "ring"

	first, err := FromConfig(ring(9), cfg, c, nil)
	require.NoError(t, err)
	writes, hits := c.Stats().Writes, c.Stats().Hits()
	require.Positive(t, writes)

	second, err := FromConfig(ring(9), cfg, c, nil)
	require.NoError(t, err)
	require.Equal(t, writes, c.Stats().Writes, "second build must be served from the cache")
	require.Equal(t, hits+2, c.Stats().Hits(), "one hit per layer")
	for layerID := range 2 {
		require.Equal(t, first.Adjacency(layerID).RawMatrix().Data, second.Adjacency(layerID).RawMatrix().Data)
	}
}

func TestConvLayers(t *testing.T) {
	for _, tc := range []struct {
		kind           graphconv.Kind
		numLayers      int
		outputChannels int
	}{
		{graphconv.KindSparse, 2, 2},
		{graphconv.KindLocal, 2, 2},
		// The single spectral filter preserves the input channel.
		{graphconv.KindSpectral, 3, 1},
	} {
		cfg := testConfig()
		cfg.AddSelfConnection = true
		cfg.ClusterType = "grid"
		cfg.PoolReduction = "strip"
		cfg.NumLayers = tc.numLayers
		h, err := FromConfig(ring(9), cfg, nil, nil)
		require.NoError(t, err)

		layers, err := h.ConvLayers(tc.kind, 1, 2, dtypes.Float32)
		require.NoError(t, err, tc.kind.String())
		require.Len(t, layers, tc.numLayers)

		ctx := context.New()
		output := context.ExecOnce(graphtest.BuildTestBackend(), ctx, func(ctx *context.Context, g *Graph) *Node {
			for _, layer := range layers {
				layer.InitializeParameters(ctx)
			}
			x := OnePlus(IotaFull(g, shapes.Make(dtypes.Float32, 1, 9, 1)))
			return graphconv.Chain(x, layers...)
		})
		require.Equal(t, []int{1, 9, tc.outputChannels}, output.Shape().Dimensions, tc.kind.String())

		// Nodes dropped by the last layer are zero.
		values := output.Value().([][][]float32)
		for node, keep := range h.Layer(tc.numLayers - 1).Retained {
			if !keep {
				for _, v := range values[0][node] {
					require.Zero(t, v, "%s: node %d", tc.kind, node)
				}
			}
		}
	}
}

// TestSpectralStack stacks spectral layers over coarsened (non-symmetric) adjacencies.
func TestSpectralStack(t *testing.T) {
	// Ring of 12 nodes with a few chords.
	adj := ring(12)
	for _, chord := range [][2]int{{0, 6}, {2, 9}, {4, 7}} {
		adj.Set(chord[0], chord[1], 1)
		adj.Set(chord[1], chord[0], 1)
	}
	for _, clusterType := range []string{"grid", "hierarchy"} {
		cfg := testConfig()
		cfg.AddSelfConnection = true
		cfg.ClusterType = clusterType
		cfg.PoolReduction = "max"
		cfg.LayerType = "spectral"
		cfg.Channels = 1
		cfg.NumLayers = 3
		h, err := FromConfig(adj, cfg, nil, nil)
		require.NoError(t, err, clusterType)
		if clusterType == "grid" {
			// Row 0 merges the edge 2-3, but the cluster of node 3 has no edge to node 0.
			require.False(t, adjacency.IsSymmetric(h.Adjacency(1), 0))
		}

		layers, err := h.ConvLayers(graphconv.KindSpectral, 2, 1, dtypes.Float32)
		require.NoError(t, err, clusterType)
		require.Len(t, layers, 3)

		output := context.ExecOnce(graphtest.BuildTestBackend(), context.New(), func(ctx *context.Context, g *Graph) *Node {
			for _, layer := range layers {
				layer.InitializeParameters(ctx)
			}
			x := OnePlus(IotaFull(g, shapes.Make(dtypes.Float32, 2, 12, 2)))
			return graphconv.Chain(x, layers...)
		})
		require.Equal(t, []int{2, 12, 2}, output.Shape().Dimensions, clusterType)
		for _, example := range output.Value().([][][]float32) {
			for _, node := range example {
				for _, v := range node {
					require.False(t, math.IsNaN(float64(v)) || math.IsInf(float64(v), 0), clusterType)
				}
			}
		}
	}
}
