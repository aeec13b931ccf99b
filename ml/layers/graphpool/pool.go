// Copyright 2025 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graphpool implements the pooling step of the aggregation hierarchy: it aggregates the features of the
// members of each cluster into the cluster's retained node, and zeroes the nodes that were not retained.
//
// Pooling doesn't shrink the tensor: the node dimension is preserved, so every layer of the hierarchy works on
// the same NxN layout.
package graphpool

import (
	. "github.com/gomlx/exceptions"
	"github.com/gomlx/genegraph"
	"github.com/gomlx/genegraph/cluster"
	. "github.com/gomlx/gomlx/graph"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// Reduction defines how the features of the members of a cluster are aggregated.
type Reduction int

const (
	// ReductionMax takes the per-cluster max over member features.
	ReductionMax Reduction = iota

	// ReductionMean takes the per-cluster mean over member features.
	ReductionMean

	// ReductionStrip only masks the non-retained nodes, without aggregation. Used when channels were already
	// merged upstream.
	ReductionStrip
)

//go:generate enumer -type=Reduction -trimprefix=Reduction -transform=snake -values -text -json -yaml pool.go

// ParseReduction converts a reduction name to its Reduction.
// Unknown names return an error wrapping genegraph.ErrConfiguration.
func ParseReduction(name string) (Reduction, error) {
	r, err := ReductionString(name)
	if err != nil {
		return r, errors.Wrapf(genegraph.ErrConfiguration, "pool reduction %q unknown: valid values are %v", name, ReductionValues())
	}
	return r, nil
}

// Pool is the pooling operator of one layer. It is immutable and can be applied to any number of graphs.
//
// Given the layer's NxN coarsened adjacency A and retention mask m, it computes for features x shaped
// [batch, N, channels]:
//
//	pooled[b, i, c] = m[i] * reduce_j(x[b, j, c] * A[j, i])
//
// where reduce is max or mean over all N nodes j. For ReductionStrip, pooled = x * m.
type Pool struct {
	adj        *mat.Dense
	retained   []bool
	reduction  Reduction
	placement  genegraph.Placement
	numNodes   int
	noOp       bool
	flatAdj    []float64
	maskValues []float64
}

// New creates the pooling operator for a layer, from its coarsened adjacency and retention mask.
//
// When every node is retained (no coarsening occurred) the operator is a no-op: Apply returns its input.
func New(adj *mat.Dense, retained []bool, reduction Reduction, placement genegraph.Placement) (*Pool, error) {
	if !reduction.IsAReduction() {
		return nil, errors.Wrapf(genegraph.ErrConfiguration, "pool reduction %d unknown: valid values are %v", reduction, ReductionValues())
	}
	if adj == nil {
		return nil, errors.Wrap(genegraph.ErrConfiguration, "pool requires the coarsened adjacency")
	}
	rows, cols := adj.Dims()
	if rows != cols || rows != len(retained) {
		return nil, errors.Wrapf(genegraph.ErrConfiguration,
			"pool adjacency shaped (%d, %d) doesn't match retention mask of %d nodes", rows, cols, len(retained))
	}
	p := &Pool{
		adj:       mat.DenseCopyOf(adj),
		retained:  append([]bool(nil), retained...),
		reduction: reduction,
		placement: placement,
		numNodes:  rows,
	}
	numRetained := cluster.CountRetained(retained)
	if numRetained == rows {
		klog.V(1).Infof("Ignoring the pooling step: keeping all %d nodes", rows)
		p.noOp = true
		return p, nil
	}
	klog.V(1).Infof("Keeping %d nodes out of %d", numRetained, rows)
	p.flatAdj = p.adj.RawMatrix().Data // DenseCopyOf is always contiguous.
	p.maskValues = make([]float64, rows)
	for ii, keep := range retained {
		if keep {
			p.maskValues[ii] = 1
		}
	}
	return p, nil
}

// IsNoOp returns whether every node is retained, in which case Apply returns its input unchanged.
func (p *Pool) IsNoOp() bool { return p.noOp }

// NumNodes returns the node dimension N the operator expects.
func (p *Pool) NumNodes() int { return p.numNodes }

// NumRetained returns the number of retained nodes.
func (p *Pool) NumRetained() int { return cluster.CountRetained(p.retained) }

// Retained returns a copy of the retention mask.
func (p *Pool) Retained() []bool { return append([]bool(nil), p.retained...) }

// Adjacency returns a copy of the coarsened adjacency used to aggregate features.
func (p *Pool) Adjacency() *mat.Dense { return mat.DenseCopyOf(p.adj) }

// Reduction returns the reduction used by the operator.
func (p *Pool) Reduction() Reduction { return p.reduction }

// Placement returns the placement the operator was built for.
func (p *Pool) Placement() genegraph.Placement { return p.placement }

// Apply pools x, shaped [batch, N, channels], and returns a tensor of the same shape.
//
// It panics with an error wrapping genegraph.ErrConfiguration if x doesn't have N nodes or if it lives on a
// backend that doesn't match the operator's placement.
func (p *Pool) Apply(x *Node) *Node {
	if x.Rank() != 3 || x.Shape().Dimensions[1] != p.numNodes {
		panic(errors.Wrapf(genegraph.ErrConfiguration,
			"pool expects features shaped [batch, %d, channels], got %s", p.numNodes, x.Shape()))
	}
	if err := genegraph.CheckPlacement(p.placement, x.Graph().Backend()); err != nil {
		panic(err)
	}
	if p.noOp {
		return x
	}

	g := x.Graph()
	dtype := x.DType()
	n := p.numNodes
	mask := Reshape(ConstAsDType(g, dtype, p.maskValues), 1, n, 1)
	if p.reduction == ReductionStrip {
		return Mul(x, mask)
	}

	// contributions[b, j, i, c] = x[b, j, c] * A[j, i]
	adj := Reshape(ConstAsDType(g, dtype, p.flatAdj), 1, n, n, 1)
	contributions := Mul(InsertAxes(x, 2), adj)
	var pooled *Node
	switch p.reduction {
	case ReductionMax:
		pooled = ReduceMax(contributions, 1)
	case ReductionMean:
		pooled = ReduceMean(contributions, 1)
	default:
		Panicf("pool reduction %s not implemented", p.reduction)
	}
	return Mul(pooled, mask)
}
