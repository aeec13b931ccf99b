// Copyright 2025 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graphconv

import (
	"fmt"

	"github.com/gomlx/genegraph"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Sparse is the sparse neighborhood convolution: half of the output channels come from a transform of the
// neighbor features aggregated by A·x, and the other half from a transform of the node's own features.
type Sparse struct {
	*base
	matrix *SparseMatrix
	half   int

	neighborhoodWeights, neighborhoodBiases *context.Variable
	selfWeights, selfBiases                 *context.Variable
}

var _ Layer = (*Sparse)(nil)

func newSparse(b *base) (*Sparse, error) {
	if b.cfg.OutputChannels%2 != 0 {
		return nil, errors.Wrapf(genegraph.ErrConfiguration,
			"sparse graph layer %d requires an even number of output channels, got %d", b.cfg.LayerID, b.cfg.OutputChannels)
	}
	l := &Sparse{
		base:   b,
		matrix: NewSparseMatrix(b.adj),
		half:   b.cfg.OutputChannels / 2,
	}
	klog.V(1).Infof("Sparse graph layer %d: %d nodes, %d edges", b.cfg.LayerID, b.numNodes, l.matrix.NumEdges())
	return l, nil
}

// InitializeParameters implements Layer.
func (l *Sparse) InitializeParameters(ctx *context.Context) {
	ctx = ctx.In(fmt.Sprintf("graph_sparse_%d", l.cfg.LayerID)).Checked(false)
	dtype := l.cfg.DType
	l.neighborhoodWeights = ctx.VariableWithShape("neighborhood_weights", shapes.Make(dtype, l.cfg.InputChannels, l.half))
	l.neighborhoodBiases = ctx.VariableWithShape("neighborhood_biases", shapes.Make(dtype, l.half))
	l.selfWeights = ctx.VariableWithShape("self_weights", shapes.Make(dtype, l.cfg.InputChannels, l.half))
	l.selfBiases = ctx.VariableWithShape("self_biases", shapes.Make(dtype, l.half))
	l.ready = true
}

// Forward implements Layer.
func (l *Sparse) Forward(x *Node) *Node {
	l.checkInput(x)
	g := x.Graph()

	// SparseMatMul works on the node axis first: [nodes, batch, channels].
	aggregated := SparseMatMul(l.matrix, TransposeAllDims(x, 1, 0, 2))
	aggregated = TransposeAllDims(aggregated, 1, 0, 2)

	neighborhood := Einsum("bni,io->bno", aggregated, l.neighborhoodWeights.ValueGraph(g))
	neighborhood = Add(neighborhood, Reshape(l.neighborhoodBiases.ValueGraph(g), 1, 1, l.half))
	self := Einsum("bni,io->bno", x, l.selfWeights.ValueGraph(g))
	self = Add(self, Reshape(l.selfBiases.ValueGraph(g), 1, 1, l.half))
	return l.pool(Concatenate([]*Node{neighborhood, self}, 2))
}
