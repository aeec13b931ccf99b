// Copyright 2025 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package hierarchy builds the aggregation hierarchy of a graph: for each layer of a network, the transformed
// adjacency, the clustering of its nodes, the coarsened adjacency, the retention mask and the pooling operator.
//
// It is built once per adjacency and configuration, as a fold over the layer indices: the coarsened adjacency
// and the retention mask of each layer are the inputs of the next one. Lookups afterward never recompute.
package hierarchy

import (
	. "github.com/gomlx/exceptions"
	"github.com/gomlx/genegraph"
	"github.com/gomlx/genegraph/adjacency"
	"github.com/gomlx/genegraph/adjacency/cache"
	"github.com/gomlx/genegraph/cluster"
	"github.com/gomlx/genegraph/ml/layers/graphconv"
	"github.com/gomlx/genegraph/ml/layers/graphpool"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// LayerSpec holds the structures of one layer. They are immutable once built, and may be shared read-only.
type LayerSpec struct {
	// Index of the layer, from 0 (finest) to NumLayers-1 (coarsest).
	Index int

	// Input is the adjacency fed to the layer: the original adjacency for layer 0, and the coarsened adjacency of
	// the previous layer otherwise.
	Input *mat.Dense

	// Transformed is Input after the adjacency transform: the adjacency used by the layer's convolution.
	Transformed *mat.Dense

	// Clusters is the partition of the nodes of Transformed.
	Clusters *cluster.Result

	// Retained marks the nodes that survive this layer. Same as Clusters.Retained.
	Retained []bool

	// Coarsened is the NxN coarsened adjacency. Same as Clusters.Coarsened.
	Coarsened *mat.Dense

	// Pool aggregates the features of each cluster into its retained node.
	Pool *graphpool.Pool
}

// NumRetained returns the number of nodes retained by the layer.
func (s *LayerSpec) NumRetained() int { return cluster.CountRetained(s.Retained) }

// Options for Build.
type Options struct {
	// Reduction used by the pooling operators.
	Reduction graphpool.Reduction

	// Placement of the pooling operators (and of the layers built with Hierarchy.ConvLayers).
	Placement genegraph.Placement

	// OnLayer, if set, is called after each layer is built.
	OnLayer func(spec *LayerSpec)
}

// Hierarchy is the ordered sequence of LayerSpec of a graph.
type Hierarchy struct {
	numNodes  int
	placement genegraph.Placement
	layers    []*LayerSpec
}

// Build the aggregation hierarchy of adj with numLayers layers. transform may be nil, in which case the adjacency
// is used as is.
func Build(adj *mat.Dense, numLayers int, transform adjacency.Transform, planner *cluster.Planner, opts Options) (*Hierarchy, error) {
	if numLayers < 1 {
		return nil, errors.Wrapf(genegraph.ErrConfiguration, "hierarchy requires at least one layer, got %d", numLayers)
	}
	if planner == nil {
		return nil, errors.Wrap(genegraph.ErrConfiguration, "hierarchy requires a cluster planner")
	}
	if err := adjacency.Validate(adj); err != nil {
		return nil, err
	}
	if transform == nil {
		transform = adjacency.Compose()
	}
	n, _ := adj.Dims()
	h := &Hierarchy{numNodes: n, placement: opts.Placement, layers: make([]*LayerSpec, 0, numLayers)}
	input, previous := adjacency.Clone(adj), cluster.AllRetained(n)
	for layerID := range numLayers {
		spec, err := buildLayer(layerID, input, previous, transform, planner, opts)
		if err != nil {
			return nil, errors.WithMessagef(err, "building layer %d of the aggregation hierarchy", layerID)
		}
		klog.V(1).Infof("Layer %d: %d clusters, %d of %d nodes retained",
			layerID, spec.Clusters.NumClusters, spec.NumRetained(), n)
		h.layers = append(h.layers, spec)
		if opts.OnLayer != nil {
			opts.OnLayer(spec)
		}
		input, previous = spec.Coarsened, spec.Retained
	}
	return h, nil
}

func buildLayer(layerID int, input *mat.Dense, previous []bool, transform adjacency.Transform, planner *cluster.Planner,
	opts Options) (*LayerSpec, error) {
	transformed, err := transform.Apply(input, layerID)
	if err != nil {
		return nil, err
	}
	clusters, err := planner.Cluster(transformed, layerID, previous)
	if err != nil {
		return nil, err
	}
	pool, err := graphpool.New(clusters.Coarsened, clusters.Retained, opts.Reduction, opts.Placement)
	if err != nil {
		return nil, err
	}
	return &LayerSpec{
		Index:       layerID,
		Input:       input,
		Transformed: transformed,
		Clusters:    clusters,
		Retained:    clusters.Retained,
		Coarsened:   clusters.Coarsened,
		Pool:        pool,
	}, nil
}

// FromConfig builds the hierarchy described by cfg. The configuration is validated before any matrix computation.
// The hierarchical clustering uses the rows of adj as node features. c may be nil, in which case normalized
// adjacencies are not cached.
func FromConfig(adj *mat.Dense, cfg genegraph.Config, c *cache.Cache, onLayer func(spec *LayerSpec)) (*Hierarchy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	clusterType, err := cluster.ParseType(cfg.ClusterType)
	if err != nil {
		return nil, err
	}
	reduction, err := graphpool.ParseReduction(cfg.PoolReduction)
	if err != nil {
		return nil, err
	}
	if err = adjacency.Validate(adj); err != nil {
		return nil, err
	}
	planner, err := cluster.NewPlanner(clusterType, adj)
	if err != nil {
		return nil, err
	}
	return Build(adj, cfg.NumLayers, adjacency.TransformFromConfig(cfg, c), planner, Options{
		Reduction: reduction,
		Placement: cfg.Placement(),
		OnLayer:   onLayer,
	})
}

// NumLayers returns the number of layers.
func (h *Hierarchy) NumLayers() int { return len(h.layers) }

// NumNodes returns the number of nodes N of the graph: every layer works on NxN adjacencies.
func (h *Hierarchy) NumNodes() int { return h.numNodes }

// Layers returns the layers, from the finest to the coarsest.
func (h *Hierarchy) Layers() []*LayerSpec { return append([]*LayerSpec(nil), h.layers...) }

// Layer returns the spec of the given layer. It panics if layerID is out of range.
func (h *Hierarchy) Layer(layerID int) *LayerSpec {
	if layerID < 0 || layerID >= len(h.layers) {
		Panicf("hierarchy has %d layers, layer %d requested", len(h.layers), layerID)
	}
	return h.layers[layerID]
}

// Adjacency returns the transformed adjacency of the given layer. It panics if layerID is out of range.
func (h *Hierarchy) Adjacency(layerID int) *mat.Dense {
	return h.Layer(layerID).Transformed
}

// PoolOperator returns the pooling operator of the given layer. It panics if layerID is out of range.
func (h *Hierarchy) PoolOperator(layerID int) *graphpool.Pool {
	return h.Layer(layerID).Pool
}

// ConvLayers creates one graph convolution of the given kind per layer, each using its layer's transformed
// adjacency and pooling operator. The input channels of each layer are the output channels of the previous one.
//
// The adjacencies are used as they are: the transform was already applied by the hierarchy.
func (h *Hierarchy) ConvLayers(kind graphconv.Kind, inputChannels, channels int, dtype dtypes.DType) ([]graphconv.Layer, error) {
	convs := make([]graphconv.Layer, 0, len(h.layers))
	for _, spec := range h.layers {
		layer, err := graphconv.New(kind, graphconv.Config{
			Adjacency:      spec.Transformed,
			InputChannels:  inputChannels,
			OutputChannels: channels,
			LayerID:        spec.Index,
			Pool:           spec.Pool,
			Placement:      h.placement,
			DType:          dtype,
		})
		if err != nil {
			return nil, err
		}
		convs = append(convs, layer)
		inputChannels = graphconv.OutputChannels(layer)
	}
	return convs, nil
}
