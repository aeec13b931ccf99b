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

// Local is the fixed fan-in local convolution: every node n gathers exactly MaxEdges neighbors (the columns j
// with A[n, j] > 0, the same neighborhood the sparse convolution aggregates, padded with an always zero
// sentinel row), multiplies them by per-edge learned weights, and sums over the neighbors:
//
//	out[b, n, o] = Σ_i Σ_k x[b, neighbor(n, k), i] · W[i, n·MaxEdges + k, o]
type Local struct {
	*base
	edges   *EdgeList
	indices []int32
	weights *context.Variable
}

var _ Layer = (*Local)(nil)

func newLocal(b *base) (*Local, error) {
	// The fan-in is the largest column count, and rows with more edges are truncated.
	maxEdges := b.cfg.MaxEdges
	if maxEdges <= 0 {
		maxEdges = MaxDegree(b.adj.T())
	}
	edges := NewEdgeList(b.adj, maxEdges)
	if edges.MaxEdges == 0 {
		return nil, errors.Wrapf(genegraph.ErrConfiguration, "local graph layer %d: adjacency has no edges", b.cfg.LayerID)
	}
	klog.V(1).Infof("Each node will have %d edges", edges.MaxEdges)
	return &Local{
		base:    b,
		edges:   edges,
		indices: edges.PaddedIndices(b.numNodes),
	}, nil
}

// Edges returns the fixed fan-in edge list of the layer. Padding entries point to the sentinel row NumNodes.
func (l *Local) Edges() *EdgeList { return l.edges }

// PaddedIndices returns a copy of the flat [nodes * MaxEdges] gather indices, padded with the sentinel NumNodes.
func (l *Local) PaddedIndices() []int32 { return append([]int32(nil), l.indices...) }

// InitializeParameters implements Layer.
func (l *Local) InitializeParameters(ctx *context.Context) {
	ctx = ctx.In(fmt.Sprintf("graph_local_%d", l.cfg.LayerID)).Checked(false)
	l.weights = ctx.VariableWithShape("weights",
		shapes.Make(l.cfg.DType, l.cfg.InputChannels, l.numNodes*l.edges.MaxEdges, l.cfg.OutputChannels))
	l.ready = true
}

// Forward implements Layer.
func (l *Local) Forward(x *Node) *Node {
	l.checkInput(x)
	g := x.Graph()
	batchSize := x.Shape().Dimensions[0]
	numEntries := l.numNodes * l.edges.MaxEdges

	// Append the sentinel zero row at index numNodes, and move the node axis first for Gather.
	sentinel := Zeros(g, shapes.Make(x.DType(), batchSize, 1, l.cfg.InputChannels))
	padded := TransposeAllDims(Concatenate([]*Node{x, sentinel}, 1), 1, 0, 2) // [nodes+1, batch, channels]
	gathered := Gather(padded, Reshape(Const(g, l.indices), numEntries, 1))   // [nodes*MaxEdges, batch, channels]

	output := Einsum("ebi,ieo->beo", gathered, l.weights.ValueGraph(g))
	output = Reshape(output, batchSize, l.numNodes, l.edges.MaxEdges, l.cfg.OutputChannels)
	return l.pool(ReduceSum(output, 2))
}
