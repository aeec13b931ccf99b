// Copyright 2025 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package cache implements a content-addressed store of matrices, used to save the result of expensive
// adjacency transformations (see adjacency.ApproxNormalizeLaplacian).
//
// Artifacts live in "<Dir>/<Namespace>-<User>/<FilePrefix><hash>_<id>.bin", one serialized matrix per
// (hash, id) pair, with an in-memory LRU in front of the directory. A missing artifact is a normal cache-miss.
// An unreadable or corrupt artifact is logged, counted and also treated as a miss, so the caller recomputes
// (and overwrites) it.
//
// Concurrent use of the same cache directory by more than one process building hierarchies is not supported:
// writers race (the last writer wins). Files are written under a temporary name and renamed into place,
// but nothing else coordinates writers. A *Cache itself is safe for concurrent use within one process.
//
// A nil *Cache is valid: it never hits and discards every Put.
package cache

import (
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gomlx/genegraph"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// DefaultMemoryEntries is the size of the in-memory LRU used when Config.MemoryEntries is 0.
const DefaultMemoryEntries = 16

// Config configures a Cache.
type Config struct {
	// Dir is the root directory of the cache. Required.
	Dir string

	// User identity, used to separate the directories of different users sharing Dir.
	// It is explicit configuration: the cache never looks it up from the environment.
	User string

	// Namespace is the name of the transformation whose results are cached, e.g. "ApproxNormalizeLaplacian".
	Namespace string

	// FilePrefix is prepended to every artifact file name, typically the name of the graph.
	FilePrefix string

	// MemoryEntries is the number of matrices kept in memory. Set it to a negative value to disable the
	// in-memory front. 0 uses DefaultMemoryEntries.
	MemoryEntries int

	// Registerer where the cache counters are registered. If nil they are not registered anywhere,
	// but Stats still works.
	Registerer prometheus.Registerer
}

// Key identifies an artifact: the content hash of the input matrix and a caller supplied unique id.
type Key struct {
	Hash string
	ID   string
}

// String returns the key as used in file names.
func (k Key) String() string {
	return k.Hash + "_" + k.ID
}

// Stats counts the cache lookups since creation.
type Stats struct {
	MemoryHits, DiskHits, Misses, Corrupt, Writes int64
}

// Hits returns the total number of hits, from memory and disk.
func (s Stats) Hits() int64 { return s.MemoryHits + s.DiskHits }

// Cache of matrices. See package documentation.
type Cache struct {
	dir, prefix string
	memory      *lru.Cache[Key, *mat.Dense]
	metrics     *metrics

	memoryHits, diskHits, misses, corrupt, writes atomic.Int64
}

// New creates the cache, including its directory if it doesn't exist yet.
func New(cfg Config) (*Cache, error) {
	if cfg.Dir == "" {
		return nil, errors.Wrap(genegraph.ErrConfiguration, "cache directory not given")
	}
	if cfg.User == "" {
		return nil, errors.Wrap(genegraph.ErrConfiguration, "cache user identity not given")
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "cache"
	}
	c := &Cache{
		dir:     filepath.Join(cfg.Dir, namespace+"-"+cfg.User),
		prefix:  cfg.FilePrefix,
		metrics: newMetrics(cfg.Registerer, namespace),
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create cache directory %q", c.dir)
	}
	memoryEntries := cfg.MemoryEntries
	if memoryEntries == 0 {
		memoryEntries = DefaultMemoryEntries
	}
	if memoryEntries > 0 {
		var err error
		c.memory, err = lru.New[Key, *mat.Dense](memoryEntries)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create in-memory cache")
		}
	}
	return c, nil
}

// Dir returns the directory where artifacts are stored.
func (c *Cache) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

// Path returns the artifact file path for key.
func (c *Cache) Path(key Key) string {
	return filepath.Join(c.dir, c.prefix+key.String()+".bin")
}

// Stats returns the lookup counters.
func (c *Cache) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	return Stats{
		MemoryHits: c.memoryHits.Load(),
		DiskHits:   c.diskHits.Load(),
		Misses:     c.misses.Load(),
		Corrupt:    c.corrupt.Load(),
		Writes:     c.writes.Load(),
	}
}

// Get returns a copy of the matrix stored under key, if there is one.
func (c *Cache) Get(key Key) (*mat.Dense, bool) {
	if c == nil {
		return nil, false
	}
	if c.memory != nil {
		if m, found := c.memory.Get(key); found {
			c.memoryHits.Add(1)
			c.metrics.hits.WithLabelValues("memory").Inc()
			return mat.DenseCopyOf(m), true
		}
	}
	m, err := c.load(key)
	if err != nil {
		if errors.Is(err, genegraph.ErrCacheInconsistency) {
			klog.Warningf("Ignoring cached artifact: %v", err)
			c.corrupt.Add(1)
			c.metrics.corrupt.Inc()
		}
		c.misses.Add(1)
		c.metrics.misses.Inc()
		return nil, false
	}
	c.diskHits.Add(1)
	c.metrics.hits.WithLabelValues("disk").Inc()
	if c.memory != nil {
		c.memory.Add(key, mat.DenseCopyOf(m))
	}
	return m, true
}

// load reads the artifact from disk. A missing file returns os.ErrNotExist, and a corrupt one an error
// wrapping genegraph.ErrCacheInconsistency.
func (c *Cache) load(key Key) (*mat.Dense, error) {
	path := c.Path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, errors.Wrapf(genegraph.ErrCacheInconsistency, "failed to read %q: %v", path, err)
	}
	var m mat.Dense
	if err = m.UnmarshalBinary(data); err != nil {
		return nil, errors.Wrapf(genegraph.ErrCacheInconsistency, "corrupt artifact %q: %v", path, err)
	}
	return &m, nil
}

// Put stores a copy of m under key, both in memory and on disk.
func (c *Cache) Put(key Key, m *mat.Dense) error {
	if c == nil {
		return nil
	}
	data, err := m.MarshalBinary()
	if err != nil {
		return errors.Wrapf(err, "failed to serialize matrix for cache key %s", key)
	}
	path := c.Path(key)
	tmpPath := filepath.Join(c.dir, ".tmp-"+uuid.NewString())
	if err = os.WriteFile(tmpPath, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write cache artifact %q", tmpPath)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrapf(err, "failed to move cache artifact into %q", path)
	}
	c.writes.Add(1)
	c.metrics.writes.Inc()
	if c.memory != nil {
		c.memory.Add(key, mat.DenseCopyOf(m))
	}
	klog.V(1).Infof("Saved cache artifact %s", path)
	return nil
}

// Forget removes key from memory and disk. Missing artifacts are not an error.
func (c *Cache) Forget(key Key) error {
	if c == nil {
		return nil
	}
	if c.memory != nil {
		c.memory.Remove(key)
	}
	err := os.Remove(c.Path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "failed to remove cache artifact for key %s", key)
	}
	return nil
}

// NamespaceNormalizedLaplacian is the namespace of the normalized adjacencies cached by
// adjacency.ApproxNormalizeLaplacian.
const NamespaceNormalizedLaplacian = "ApproxNormalizeLaplacian"

// FromConfig creates the cache of normalized adjacencies configured in cfg, with the given file prefix (typically
// the name of the graph). It returns a nil *Cache (a valid, always missing cache) if cfg.CacheDir is empty.
func FromConfig(cfg genegraph.Config, filePrefix string, reg prometheus.Registerer) (*Cache, error) {
	if cfg.CacheDir == "" {
		return nil, nil
	}
	return New(Config{
		Dir:        cfg.CacheDir,
		User:       cfg.CacheUser,
		Namespace:  NamespaceNormalizedLaplacian,
		FilePrefix: filePrefix,
		Registerer: reg,
	})
}
