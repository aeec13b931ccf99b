// Copyright 2025 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graphconv

import (
	"fmt"
	"math"

	"github.com/gomlx/genegraph"
	"github.com/gomlx/genegraph/adjacency"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/types/shapes"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// imagTolerance is the largest imaginary part of an eigenvalue of a non-symmetric Laplacian considered real.
const imagTolerance = 1e-9

// Spectral is the spectral convolution: it projects the features of each channel onto the eigenvectors V of
// the graph Laplacian L = D - A, multiplies them by one learned NxN filter F, and projects them back:
//
//	output = V · F · Vᵀ · x
//
// Only one filter is supported, and the channel dimension is preserved.
type Spectral struct {
	*base
	eigenvalues  []float64
	eigenvectors *mat.Dense
	flatVectors  []float64
	filter       *context.Variable
}

var _ Layer = (*Spectral)(nil)

func newSpectral(b *base) (*Spectral, error) {
	if b.cfg.OutputChannels > 1 {
		klog.Warningf("Spectral graph layer %d supports only one filter: %d output channels requested, using 1",
			b.cfg.LayerID, b.cfg.OutputChannels)
		b.cfg.OutputChannels = 1
	}
	values, vectors, err := laplacianEigen(b.adj)
	if err != nil {
		return nil, err
	}
	return &Spectral{
		base:         b,
		eigenvalues:  values,
		eigenvectors: vectors,
		flatVectors:  vectors.RawMatrix().Data,
	}, nil
}

// Laplacian returns L = D - A, where D is the diagonal matrix of the row sums of A.
func Laplacian(adj *mat.Dense) *mat.Dense {
	n, _ := adj.Dims()
	laplacian := mat.NewDense(n, n, nil)
	laplacian.Scale(-1, adj)
	for ii, degree := range adjacency.RowSums(adj) {
		laplacian.Set(ii, ii, laplacian.At(ii, ii)+degree)
	}
	return laplacian
}

// laplacianEigen returns the eigenvalues and (column) eigenvectors of the Laplacian of adj.
// The returned eigenvectors matrix is contiguous.
//
// Coarsened adjacencies are usually not symmetric, and their Laplacian may have complex eigenvalues: only the real
// parts of the eigenvalues and eigenvectors are kept.
func laplacianEigen(adj *mat.Dense) ([]float64, *mat.Dense, error) {
	laplacian := Laplacian(adj)
	n, _ := laplacian.Dims()
	vectors := mat.NewDense(n, n, nil)
	var values []float64
	if adjacency.IsSymmetric(laplacian, 0) {
		var eig mat.EigenSym
		if ok := eig.Factorize(mat.NewSymDense(n, mat.DenseCopyOf(laplacian).RawMatrix().Data), true); !ok {
			return nil, nil, genegraph.Numericalf("eigendecomposition of the Laplacian shaped (%d, %d) failed", n, n)
		}
		eig.VectorsTo(vectors)
		values = eig.Values(nil)
	} else {
		var eig mat.Eigen
		if ok := eig.Factorize(laplacian, mat.EigenRight); !ok {
			return nil, nil, genegraph.Numericalf("eigendecomposition of the non-symmetric Laplacian shaped (%d, %d) failed", n, n)
		}
		values = make([]float64, n)
		numComplex := 0
		for ii, v := range eig.Values(nil) {
			if math.Abs(imag(v)) > imagTolerance {
				numComplex++
			}
			values[ii] = real(v)
		}
		if numComplex > 0 {
			klog.Warningf("Laplacian shaped (%d, %d) has %d complex eigenvalues: using their real parts", n, n, numComplex)
		}
		var complexVectors mat.CDense
		eig.VectorsTo(&complexVectors)
		for ii := range n {
			for jj := range n {
				vectors.Set(ii, jj, real(complexVectors.At(ii, jj)))
			}
		}
	}

	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, nil, genegraph.Numericalf("Laplacian shaped (%d, %d) has non-finite eigenvalue %g", n, n, v)
		}
	}
	for _, v := range vectors.RawMatrix().Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, nil, genegraph.Numericalf("Laplacian shaped (%d, %d) has non-finite eigenvectors", n, n)
		}
	}
	return values, vectors, nil
}

// Eigenvalues returns a copy of the eigenvalues of the Laplacian.
func (l *Spectral) Eigenvalues() []float64 { return append([]float64(nil), l.eigenvalues...) }

// Eigenvectors returns a copy of the eigenvectors of the Laplacian, one per column.
func (l *Spectral) Eigenvectors() *mat.Dense { return mat.DenseCopyOf(l.eigenvectors) }

// OutputChannels returns the number of channels output by Forward: the single filter is applied to every input
// channel.
func (l *Spectral) OutputChannels() int { return l.cfg.InputChannels }

// InitializeParameters implements Layer.
func (l *Spectral) InitializeParameters(ctx *context.Context) {
	ctx = ctx.In(fmt.Sprintf("graph_spectral_%d", l.cfg.LayerID)).Checked(false)
	l.filter = ctx.VariableWithShape("filter", shapes.Make(l.cfg.DType, l.numNodes, l.numNodes))
	l.ready = true
}

// Forward implements Layer.
func (l *Spectral) Forward(x *Node) *Node {
	l.checkInput(x)
	g := x.Graph()
	n := l.numNodes
	vectors := Reshape(ConstAsDType(g, x.DType(), l.flatVectors), n, n)

	projected := Einsum("ji,bjc->bic", vectors, x) // Vᵀ·x
	filtered := Einsum("ij,bjc->bic", l.filter.ValueGraph(g), projected)
	return l.pool(Einsum("ij,bjc->bic", vectors, filtered))
}
