// Copyright 2025 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graphconv

import (
	"slices"

	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"gonum.org/v1/gonum/mat"
)

// SparseMatrix is a square sparse matrix stored in padded rows: each row holds the same number of
// (column, value) pairs, padded with zero values. It also stores its transpose, used by the gradient of
// SparseMatMul.
//
// It is immutable and can be shared by any number of graphs.
type SparseMatrix struct {
	size       int
	edges      *EdgeList
	columns    []int32
	values     []float64
	transposed *SparseMatrix
}

// NewSparseMatrix converts the square matrix m.
func NewSparseMatrix(m *mat.Dense) *SparseMatrix {
	rows, cols := m.Dims()
	if rows != cols {
		Panicf("NewSparseMatrix requires a square matrix, got shape (%d, %d)", rows, cols)
	}
	s := newSparseMatrix(m)
	s.transposed = newSparseMatrix(m.T())
	s.transposed.transposed = s
	return s
}

func newSparseMatrix(m mat.Matrix) *SparseMatrix {
	size, _ := m.Dims()
	edges := NewEdgeList(m, 0)
	return &SparseMatrix{
		size:    size,
		edges:   edges,
		columns: edges.PaddedIndices(0),
		values:  edges.PaddedValues(),
	}
}

// Size returns the number of rows (and columns) of the matrix.
func (s *SparseMatrix) Size() int { return s.size }

// NumEdges returns the number of non-zero values.
func (s *SparseMatrix) NumEdges() int { return s.edges.NumEdges() }

// T returns the transposed matrix.
func (s *SparseMatrix) T() *SparseMatrix { return s.transposed }

// SparseMatMul returns s·x, where x is shaped [N, ...] (N = s.Size()), and the output has the same shape as x.
//
// Its gradient with respect to x is explicitly defined as sᵀ·v, for the incoming adjoint v.
func SparseMatMul(s *SparseMatrix, x *Node) *Node {
	if x.Rank() < 1 || x.Shape().Dimensions[0] != s.size {
		Panicf("SparseMatMul of a matrix with %d columns requires x shaped [%d, ...], got %s", s.size, s.size, x.Shape())
	}
	output := StopGradient(sparseMatMulForward(s, x))
	withGrad := IdentityWithCustomGradient(x, func(_, v *Node) *Node {
		return sparseMatMulForward(s.transposed, v)
	})
	// withGrad - x is zero, and carries the custom gradient into output.
	return Add(output, Sub(withGrad, StopGradient(x)))
}

// sparseMatMulForward gathers, for each row i, its MaxEdges neighbor rows of x, weights them by the edge values and
// sums them up.
func sparseMatMulForward(s *SparseMatrix, x *Node) *Node {
	g := x.Graph()
	dims := x.Shape().Dimensions
	maxEdges := s.edges.MaxEdges
	if maxEdges == 0 {
		return ZerosLike(x)
	}
	numEntries := s.size * maxEdges
	indices := Reshape(Const(g, s.columns), numEntries, 1)
	gathered := Gather(x, indices) // [N*MaxEdges, ...]

	weightsDims := make([]int, x.Rank())
	for ii := range weightsDims {
		weightsDims[ii] = 1
	}
	weightsDims[0] = numEntries
	weights := Reshape(ConstAsDType(g, x.DType(), s.values), weightsDims...)
	weighted := Mul(gathered, weights)

	weighted = Reshape(weighted, slices.Concat([]int{s.size, maxEdges}, dims[1:])...)
	return ReduceSum(weighted, 1)
}
