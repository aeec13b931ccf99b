// Copyright 2025 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graphconv implements graph convolution layers over a fixed adjacency: the sparse neighborhood
// convolution (KindSparse), the fixed fan-in local convolution (KindLocal) and the spectral convolution
// (KindSpectral).
//
// All variants share the same life cycle: New derives the fixed per-layer structures from the adjacency
// (edge lists, eigenvectors), InitializeParameters creates the learned variables in a context, and Forward
// transforms node features shaped [batch, nodes, channels] any number of times. If the layer was given a
// pooling operator, Forward pools its output before returning it.
//
// Graph building errors follow GoMLX convention and panic. Configuration problems panic with an error
// wrapping genegraph.ErrConfiguration, which can be recovered with exceptions.TryCatch[error].
package graphconv

import (
	"github.com/gomlx/genegraph"
	"github.com/gomlx/genegraph/adjacency"
	"github.com/gomlx/genegraph/ml/layers/graphpool"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Kind of graph convolution.
type Kind int

const (
	// KindSparse aggregates neighbor features weighted by the edge weights (a sparse matrix product), and
	// concatenates a transform of the aggregation with a transform of the node's own features.
	KindSparse Kind = iota

	// KindLocal gathers a fixed number of neighbors per node (padded with an always zero row), and applies
	// per-edge learned weights.
	KindLocal

	// KindSpectral filters features in the eigenspace of the graph Laplacian. It supports a single filter.
	KindSpectral
)

//go:generate enumer -type=Kind -trimprefix=Kind -transform=snake -values -text -json -yaml layer.go

// ParseKind converts a layer type name ("sparse", "local" or "spectral") to its Kind.
// Unknown names return an error wrapping genegraph.ErrConfiguration.
func ParseKind(name string) (Kind, error) {
	k, err := KindString(name)
	if err != nil {
		return k, errors.Wrapf(genegraph.ErrConfiguration, "graph layer type %q unknown: valid values are %v", name, KindValues())
	}
	return k, nil
}

// Layer is a graph convolution.
type Layer interface {
	// InitializeParameters creates (or reuses) the learned variables of the layer under ctx, and makes the
	// layer ready. It must be called before Forward.
	InitializeParameters(ctx *context.Context)

	// Forward transforms x shaped [batch, nodes, input channels] into [batch, nodes, output channels],
	// pooled if the layer has a pooling operator.
	Forward(x *Node) *Node
}

// Config holds the construction parameters of a Layer.
type Config struct {
	// Adjacency of the layer, NxN. Required.
	Adjacency *mat.Dense

	// InputChannels and OutputChannels of the layer. Sparse layers require an even OutputChannels. Spectral
	// layers support only one filter: OutputChannels > 1 is clamped to 1 (with a warning).
	InputChannels, OutputChannels int

	// LayerID is the depth of the layer, used to name its variables scope and by Transform.
	LayerID int

	// Transform is an optional hook applied to the adjacency at construction.
	Transform adjacency.Transform

	// Pool is an optional pooling operator applied to the output of Forward. It must have the same number of
	// nodes and the same placement as the layer.
	Pool *graphpool.Pool

	// Placement of the layer structures. Forward fails if its input lives elsewhere.
	Placement genegraph.Placement

	// DType of the variables. Defaults to Float32.
	DType dtypes.DType

	// MaxEdges is the fixed fan-in of KindLocal layers: neighbors beyond it are dropped, in ascending node
	// order. 0 uses the largest column count of the adjacency (the most edges into a single node).
	MaxEdges int
}

// New creates a graph convolution layer of the given kind. It fails with an error wrapping
// genegraph.ErrConfiguration for unknown kinds or inconsistent configurations.
func New(kind Kind, cfg Config) (Layer, error) {
	b, err := newBase(kind, cfg)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindSparse:
		return newSparse(b)
	case KindLocal:
		return newLocal(b)
	case KindSpectral:
		return newSpectral(b)
	}
	return nil, errors.Wrapf(genegraph.ErrConfiguration, "graph layer kind %d unknown: valid values are %v", kind, KindValues())
}

// base holds what is common to all layer kinds.
type base struct {
	kind     Kind
	cfg      Config
	adj      *mat.Dense
	numNodes int
	ready    bool
}

func newBase(kind Kind, cfg Config) (*base, error) {
	if !kind.IsAKind() {
		return nil, errors.Wrapf(genegraph.ErrConfiguration, "graph layer kind %d unknown: valid values are %v", kind, KindValues())
	}
	if err := adjacency.Validate(cfg.Adjacency); err != nil {
		return nil, errors.WithMessagef(err, "%s graph layer %d", kind, cfg.LayerID)
	}
	adj := adjacency.Clone(cfg.Adjacency)
	if cfg.Transform != nil {
		var err error
		adj, err = cfg.Transform.Apply(adj, cfg.LayerID)
		if err != nil {
			return nil, errors.WithMessagef(err, "%s graph layer %d", kind, cfg.LayerID)
		}
	}
	if cfg.InputChannels < 1 || cfg.OutputChannels < 1 {
		return nil, errors.Wrapf(genegraph.ErrConfiguration, "%s graph layer %d: channels must be >= 1, got %d input and %d output",
			kind, cfg.LayerID, cfg.InputChannels, cfg.OutputChannels)
	}
	numNodes, _ := adj.Dims()
	if cfg.Pool != nil {
		if cfg.Pool.NumNodes() != numNodes {
			return nil, errors.Wrapf(genegraph.ErrConfiguration, "%s graph layer %d has %d nodes, but its pool operator has %d",
				kind, cfg.LayerID, numNodes, cfg.Pool.NumNodes())
		}
		if cfg.Pool.Placement() != cfg.Placement {
			return nil, errors.Wrapf(genegraph.ErrConfiguration, "%s graph layer %d placed on %s, but its pool operator on %s",
				kind, cfg.LayerID, cfg.Placement, cfg.Pool.Placement())
		}
	}
	if cfg.DType == dtypes.InvalidDType {
		cfg.DType = dtypes.Float32
	}
	return &base{kind: kind, cfg: cfg, adj: adj, numNodes: numNodes}, nil
}

// Kind of the layer.
func (b *base) Kind() Kind { return b.kind }

// LayerID returns the depth of the layer.
func (b *base) LayerID() int { return b.cfg.LayerID }

// NumNodes returns the number of nodes N the layer expects.
func (b *base) NumNodes() int { return b.numNodes }

// OutputChannels returns the number of channels output by Forward.
func (b *base) OutputChannels() int { return b.cfg.OutputChannels }

// Adjacency returns a copy of the (transformed) adjacency of the layer.
func (b *base) Adjacency() *mat.Dense { return adjacency.Clone(b.adj) }

// IsReady returns whether InitializeParameters was called.
func (b *base) IsReady() bool { return b.ready }

// checkInput panics with an error wrapping genegraph.ErrConfiguration if the layer is not ready or if x is not
// a valid input for it.
func (b *base) checkInput(x *Node) {
	if !b.ready {
		panic(errors.Wrapf(genegraph.ErrConfiguration, "%s graph layer %d used before InitializeParameters", b.kind, b.cfg.LayerID))
	}
	if x.Rank() != 3 {
		panic(errors.Wrapf(genegraph.ErrConfiguration, "%s graph layer %d expects features shaped [batch, nodes, channels], got %s",
			b.kind, b.cfg.LayerID, x.Shape()))
	}
	if dims := x.Shape().Dimensions; dims[1] != b.numNodes || dims[2] != b.cfg.InputChannels {
		panic(errors.Wrapf(genegraph.ErrConfiguration, "%s graph layer %d expects features shaped [batch, %d, %d], got %s",
			b.kind, b.cfg.LayerID, b.numNodes, b.cfg.InputChannels, x.Shape()))
	}
	if x.DType() != b.cfg.DType {
		panic(errors.Wrapf(genegraph.ErrConfiguration, "%s graph layer %d expects features of dtype %s, got %s",
			b.kind, b.cfg.LayerID, b.cfg.DType, x.DType()))
	}
	if err := genegraph.CheckPlacement(b.cfg.Placement, x.Graph().Backend()); err != nil {
		panic(errors.WithMessagef(err, "%s graph layer %d", b.kind, b.cfg.LayerID))
	}
}

// pool applies the optional pooling operator.
func (b *base) pool(y *Node) *Node {
	if b.cfg.Pool == nil {
		return y
	}
	return b.cfg.Pool.Apply(y)
}

// Unimplemented can be embedded by Layer implementations under construction: every method not overridden
// panics with an error wrapping genegraph.ErrAbstractContract, instead of silently doing nothing.
type Unimplemented struct {
	// Name of the layer variant, used in the error messages.
	Name string
}

var _ Layer = Unimplemented{}

// InitializeParameters implements Layer, and always panics.
func (u Unimplemented) InitializeParameters(*context.Context) {
	panic(errors.Wrapf(genegraph.ErrAbstractContract, "graph layer %q doesn't implement InitializeParameters", u.Name))
}

// Forward implements Layer, and always panics.
func (u Unimplemented) Forward(*Node) *Node {
	panic(errors.Wrapf(genegraph.ErrAbstractContract, "graph layer %q doesn't implement Forward", u.Name))
}

// OutputChannels returns the number of channels output by the Forward of layer, or 0 if the layer doesn't
// report it.
func OutputChannels(layer Layer) int {
	if l, ok := layer.(interface{ OutputChannels() int }); ok {
		return l.OutputChannels()
	}
	return 0
}

// Chain applies the layers to x in order, and returns the output of the last one.
func Chain(x *Node, layers ...Layer) *Node {
	for _, layer := range layers {
		x = layer.Forward(x)
	}
	return x
}
