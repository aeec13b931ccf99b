// Copyright 2025 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graphconv

import (
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// EdgeList holds, for each row i of a matrix, the ordered columns j with a non-zero value (the "neighbors" of i)
// and their values, truncated to at most MaxEdges per row.
//
// It is the fixed fan-in structure of the local convolution, and the padded row (ELLPACK) layout of SparseMatrix.
type EdgeList struct {
	NumRows, NumCols int

	// MaxEdges is the fixed number of edges per row, after padding.
	MaxEdges int

	// Neighbors of each row, in ascending column order, truncated to MaxEdges.
	Neighbors [][]int

	// Values of the edges, aligned with Neighbors.
	Values [][]float64

	// Degrees before truncation.
	Degrees []int
}

// MaxDegree returns the largest number of non-zero values in a row of m.
func MaxDegree(m mat.Matrix) int {
	rows, cols := m.Dims()
	maxDegree := 0
	for ii := range rows {
		degree := 0
		for jj := range cols {
			if m.At(ii, jj) != 0 {
				degree++
			}
		}
		maxDegree = max(maxDegree, degree)
	}
	return maxDegree
}

// NewEdgeList builds the edge list of the rows of m. If maxEdges <= 0 it is set to the maximum degree, so
// nothing is truncated. Otherwise rows with more edges keep only their first maxEdges, by ascending column.
func NewEdgeList(m mat.Matrix, maxEdges int) *EdgeList {
	rows, cols := m.Dims()
	if maxEdges <= 0 {
		maxEdges = MaxDegree(m)
	}
	e := &EdgeList{
		NumRows:   rows,
		NumCols:   cols,
		MaxEdges:  maxEdges,
		Neighbors: make([][]int, rows),
		Values:    make([][]float64, rows),
		Degrees:   make([]int, rows),
	}
	numTruncated := 0
	for ii := range rows {
		for jj := range cols {
			v := m.At(ii, jj)
			if v == 0 {
				continue
			}
			e.Degrees[ii]++
			if len(e.Neighbors[ii]) < maxEdges {
				e.Neighbors[ii] = append(e.Neighbors[ii], jj)
				e.Values[ii] = append(e.Values[ii], v)
			}
		}
		if e.Degrees[ii] > maxEdges {
			numTruncated++
		}
	}
	if numTruncated > 0 {
		klog.V(1).Infof("%d nodes have more than %d edges: their edges were truncated", numTruncated, maxEdges)
	}
	return e
}

// Padding returns the number of padding entries of row i.
func (e *EdgeList) Padding(i int) int {
	return e.MaxEdges - len(e.Neighbors[i])
}

// NumEdges returns the number of (non-padding) edges kept.
func (e *EdgeList) NumEdges() int {
	count := 0
	for _, neighbors := range e.Neighbors {
		count += len(neighbors)
	}
	return count
}

// PaddedIndices returns the flat [NumRows * MaxEdges] list of neighbor columns, each row padded with sentinel.
func (e *EdgeList) PaddedIndices(sentinel int) []int32 {
	indices := make([]int32, 0, e.NumRows*e.MaxEdges)
	for ii, neighbors := range e.Neighbors {
		for _, jj := range neighbors {
			indices = append(indices, int32(jj))
		}
		for range e.Padding(ii) {
			indices = append(indices, int32(sentinel))
		}
	}
	return indices
}

// PaddedValues returns the flat [NumRows * MaxEdges] list of edge values, each row padded with zeros.
func (e *EdgeList) PaddedValues() []float64 {
	values := make([]float64, 0, e.NumRows*e.MaxEdges)
	for ii, rowValues := range e.Values {
		values = append(values, rowValues...)
		for range e.Padding(ii) {
			values = append(values, 0)
		}
	}
	return values
}
