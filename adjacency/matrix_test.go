// Copyright 2025 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package adjacency

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gomlx/genegraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestFromRows(t *testing.T) {
	adj, err := FromRows([][]float64{{0, 1}, {1, 0}})
	require.NoError(t, err)
	require.Equal(t, 1.0, adj.At(1, 0))

	_, err = FromRows([][]float64{{0, 1}, {1}})
	require.ErrorIs(t, err, genegraph.ErrConfiguration)
	_, err = FromRows(nil)
	require.ErrorIs(t, err, genegraph.ErrConfiguration)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(mat.NewDense(2, 2, []float64{0, 1, 2, 0})))
	require.ErrorIs(t, Validate(mat.NewDense(2, 2, []float64{0, -1, 2, 0})), genegraph.ErrConfiguration)
	require.ErrorIs(t, Validate(mat.NewDense(2, 3, nil)), genegraph.ErrConfiguration)
	require.ErrorIs(t, Validate(nil), genegraph.ErrConfiguration)
}

func TestHelpers(t *testing.T) {
	adj := mat.NewDense(3, 3, []float64{
		0, 2, 0,
		0.5, 0, 0,
		0, 3, 0,
	})
	assert.Equal(t, []float64{2, 0.5, 3}, RowSums(adj))
	assert.Equal(t, 3, NumEdges(adj))
	assert.False(t, IsSymmetric(adj, 0))
	assert.True(t, IsSymmetric(mat.NewDense(2, 2, []float64{1, 2, 2, 1}), 0))

	bin := Binarize(adj)
	assert.Equal(t, []float64{0, 1, 0, 1, 0, 0, 0, 1, 0}, bin.RawMatrix().Data)
	assert.Equal(t, 2.0, adj.At(0, 1), "Binarize must not modify its input")

	clone := Clone(adj)
	FillDiagonal(clone, 7)
	assert.Equal(t, 7.0, clone.At(2, 2))
	assert.Equal(t, 0.0, adj.At(2, 2), "Clone must be a deep copy")
}

func TestHash(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{0, 1, 1, 0})
	b := mat.NewDense(2, 2, []float64{0, 1, 1, 0})
	require.Equal(t, Hash(a), Hash(b))
	require.True(t, strings.HasSuffix(Hash(a), "_2x2"))

	b.Set(0, 0, 1e-12)
	require.NotEqual(t, Hash(a), Hash(b))
	require.NotEqual(t, Hash(mat.NewDense(1, 4, nil)), Hash(mat.NewDense(4, 1, nil)))
}

func TestCSV(t *testing.T) {
	adj, err := ReadCSV(strings.NewReader("0,1,0\n1,0,1\n0,1,0\n"))
	require.NoError(t, err)
	want := mat.NewDense(3, 3, []float64{0, 1, 0, 1, 0, 1, 0, 1, 0})
	require.True(t, mat.Equal(want, adj))

	_, err = ReadCSV(strings.NewReader("0,1,0\n1,0,1\n"))
	require.ErrorIs(t, err, genegraph.ErrConfiguration)

	path := filepath.Join(t.TempDir(), "adjacency.csv")
	require.NoError(t, os.WriteFile(path, []byte("0,0.5\n0.5,0\n"), 0o644))
	adj, err = LoadCSV(path)
	require.NoError(t, err)
	require.Equal(t, 0.5, adj.At(0, 1))

	_, err = LoadCSV(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
}
