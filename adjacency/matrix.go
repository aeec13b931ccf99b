// Copyright 2025 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package adjacency holds the helpers to handle adjacency matrices and the transformations applied to them
// before each layer: SelfConnection, AugmentConnectivity and ApproxNormalizeLaplacian.
//
// Adjacency matrices are dense gonum matrices (*mat.Dense) of shape NxN, with non-negative edge weights
// (0 means no edge). Transformations never modify their input: each layer holds its own derived copy.
package adjacency

import (
	"encoding/binary"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/go-gota/gota/dataframe"
	"github.com/gomlx/genegraph"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// FromRows creates an adjacency matrix from its rows. All rows must have len(rows) elements.
func FromRows(rows [][]float64) (*mat.Dense, error) {
	n := len(rows)
	if n == 0 {
		return nil, errors.Wrap(genegraph.ErrConfiguration, "adjacency matrix can't be empty")
	}
	data := make([]float64, 0, n*n)
	for ii, row := range rows {
		if len(row) != n {
			return nil, errors.Wrapf(genegraph.ErrConfiguration,
				"adjacency matrix must be square: row %d has %d elements, expected %d", ii, len(row), n)
		}
		data = append(data, row...)
	}
	return mat.NewDense(n, n, data), nil
}

// Validate checks that adj is a non-empty square matrix with non-negative values.
func Validate(adj *mat.Dense) error {
	if adj == nil || adj.IsEmpty() {
		return errors.Wrap(genegraph.ErrConfiguration, "adjacency matrix is nil or empty")
	}
	rows, cols := adj.Dims()
	if rows != cols {
		return errors.Wrapf(genegraph.ErrConfiguration, "adjacency matrix must be square, got shape (%d, %d)", rows, cols)
	}
	for ii := range rows {
		for jj := range cols {
			if v := adj.At(ii, jj); v < 0 || math.IsNaN(v) {
				return errors.Wrapf(genegraph.ErrConfiguration,
					"adjacency matrix values must be >= 0, got %g at (%d, %d)", v, ii, jj)
			}
		}
	}
	return nil
}

// Clone returns a deep copy of adj.
func Clone(adj *mat.Dense) *mat.Dense {
	return mat.DenseCopyOf(adj)
}

// FillDiagonal sets every diagonal element of adj to value, in place.
func FillDiagonal(adj *mat.Dense, value float64) {
	n, _ := adj.Dims()
	for ii := range n {
		adj.Set(ii, ii, value)
	}
}

// Binarize returns a new matrix with 1 where adj is > 0, and 0 elsewhere.
func Binarize(adj *mat.Dense) *mat.Dense {
	rows, cols := adj.Dims()
	out := mat.NewDense(rows, cols, nil)
	out.Apply(func(_, _ int, v float64) float64 {
		if v > 0 {
			return 1
		}
		return 0
	}, adj)
	return out
}

// RowSums returns the sum of each row of adj: the degree vector of a weighted adjacency.
func RowSums(adj *mat.Dense) []float64 {
	rows, _ := adj.Dims()
	sums := make([]float64, rows)
	for ii := range rows {
		sums[ii] = mat.Sum(adj.RowView(ii))
	}
	return sums
}

// NumEdges returns the number of non-zero entries of adj.
func NumEdges(adj *mat.Dense) int {
	rows, cols := adj.Dims()
	count := 0
	for ii := range rows {
		for jj := range cols {
			if adj.At(ii, jj) != 0 {
				count++
			}
		}
	}
	return count
}

// IsSymmetric returns whether adj equals its transpose within tol.
func IsSymmetric(adj *mat.Dense, tol float64) bool {
	rows, cols := adj.Dims()
	if rows != cols {
		return false
	}
	for ii := range rows {
		for jj := ii + 1; jj < cols; jj++ {
			if math.Abs(adj.At(ii, jj)-adj.At(jj, ii)) > tol {
				return false
			}
		}
	}
	return true
}

// Hash returns a content hash of adj: it covers its shape and the exact bits of every value.
func Hash(adj *mat.Dense) string {
	rows, cols := adj.Dims()
	digest := xxhash.New()
	buf := make([]byte, 0, 8*cols)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(rows))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(cols))
	_, _ = digest.Write(buf)
	for ii := range rows {
		buf = buf[:0]
		for jj := range cols {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(adj.At(ii, jj)))
		}
		_, _ = digest.Write(buf)
	}
	return strconv.FormatUint(digest.Sum64(), 16) + "_" + strconv.Itoa(rows) + "x" + strconv.Itoa(cols)
}

// LoadCSV reads a dense adjacency matrix from a headerless CSV file, one row per line.
func LoadCSV(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open adjacency file %q", path)
	}
	defer func() { _ = f.Close() }()
	adj, err := ReadCSV(f)
	if err != nil {
		return nil, errors.WithMessagef(err, "reading %q", path)
	}
	return adj, nil
}

// ReadCSV reads a dense adjacency matrix from a headerless CSV stream, one row per line.
func ReadCSV(r io.Reader) (*mat.Dense, error) {
	df := dataframe.ReadCSV(r, dataframe.HasHeader(false))
	if df.Err != nil {
		return nil, errors.Wrap(df.Err, "failed to parse adjacency CSV")
	}
	rows, cols := df.Dims()
	if rows != cols {
		return nil, errors.Wrapf(genegraph.ErrConfiguration, "adjacency CSV must be square, got %d rows and %d columns", rows, cols)
	}
	adj := mat.NewDense(rows, cols, nil)
	for ii := range rows {
		for jj := range cols {
			adj.Set(ii, jj, df.Elem(ii, jj).Float())
		}
	}
	if err := Validate(adj); err != nil {
		return nil, err
	}
	return adj, nil
}
