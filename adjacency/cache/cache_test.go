// Copyright 2025 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/genegraph"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func newTestCache(t *testing.T, cfg Config) *Cache {
	if cfg.Dir == "" {
		cfg.Dir = t.TempDir()
	}
	if cfg.User == "" {
		cfg.User = "tester"
	}
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	_, err := New(Config{User: "tester"})
	require.ErrorIs(t, err, genegraph.ErrConfiguration)
	_, err = New(Config{Dir: t.TempDir()})
	require.ErrorIs(t, err, genegraph.ErrConfiguration)

	root := t.TempDir()
	c := newTestCache(t, Config{Dir: root, User: "alice", Namespace: "ApproxNormalizeLaplacian", FilePrefix: "genes_"})
	require.Equal(t, filepath.Join(root, "ApproxNormalizeLaplacian-alice"), c.Dir())
	require.DirExists(t, c.Dir())
	require.Equal(t, filepath.Join(c.Dir(), "genes_abc_v1.bin"), c.Path(Key{Hash: "abc", ID: "v1"}))
}

func TestGetPut(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := newTestCache(t, Config{Namespace: "test", Registerer: reg})
	key := Key{Hash: "0123", ID: "id"}

	_, found := c.Get(key)
	require.False(t, found)
	require.Equal(t, Stats{Misses: 1}, c.Stats())

	m := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	require.NoError(t, c.Put(key, m))
	require.FileExists(t, c.Path(key))
	m.Set(0, 0, 100) // The cache holds its own copy.

	got, found := c.Get(key)
	require.True(t, found)
	require.Equal(t, []float64{1, 2, 3, 4}, got.RawMatrix().Data)
	require.Equal(t, int64(1), c.Stats().MemoryHits)
	require.Equal(t, 1.0, testutil.ToFloat64(c.metrics.hits.WithLabelValues("memory")))

	// A fresh cache on the same directory reads it from disk.
	c2 := newTestCache(t, Config{Dir: filepath.Dir(c.Dir()), User: "tester", Namespace: "test"})
	got, found = c2.Get(key)
	require.True(t, found)
	require.Equal(t, []float64{1, 2, 3, 4}, got.RawMatrix().Data)
	require.Equal(t, int64(1), c2.Stats().DiskHits)

	require.NoError(t, c.Forget(key))
	require.NoFileExists(t, c.Path(key))
	_, found = c.Get(key)
	require.False(t, found)
	require.NoError(t, c.Forget(key), "forgetting a missing key is not an error")
}

func TestCorruptArtifact(t *testing.T) {
	c := newTestCache(t, Config{MemoryEntries: -1, Registerer: prometheus.NewRegistry()})
	key := Key{Hash: "beef", ID: "id"}
	require.NoError(t, os.WriteFile(c.Path(key), []byte("not a matrix"), 0o644))

	_, found := c.Get(key)
	require.False(t, found)
	require.Equal(t, Stats{Misses: 1, Corrupt: 1}, c.Stats())
	require.Equal(t, 1.0, testutil.ToFloat64(c.metrics.corrupt))

	// Recomputed results overwrite the corrupt artifact.
	require.NoError(t, c.Put(key, mat.NewDense(1, 1, []float64{3})))
	got, found := c.Get(key)
	require.True(t, found)
	require.Equal(t, 3.0, got.At(0, 0))
}

func TestNilCache(t *testing.T) {
	var c *Cache
	_, found := c.Get(Key{Hash: "x"})
	require.False(t, found)
	require.NoError(t, c.Put(Key{Hash: "x"}, mat.NewDense(1, 1, nil)))
	require.NoError(t, c.Forget(Key{Hash: "x"}))
	require.Equal(t, Stats{}, c.Stats())
	require.Equal(t, "", c.Dir())
}
