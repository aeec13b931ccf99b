// Copyright 2025 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package adjacency

import (
	"math"

	"github.com/gomlx/genegraph"
	"github.com/gomlx/genegraph/adjacency/cache"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// Transform rewrites an adjacency matrix for the given layer. The result has the same dimensions as the input,
// and the input is never modified.
type Transform interface {
	Apply(adj *mat.Dense, layerID int) (*mat.Dense, error)
}

// TransformFunc adapts a function to the Transform interface.
type TransformFunc func(adj *mat.Dense, layerID int) (*mat.Dense, error)

// Apply implements Transform.
func (fn TransformFunc) Apply(adj *mat.Dense, layerID int) (*mat.Dense, error) {
	return fn(adj, layerID)
}

// Compose returns a Transform that applies the given transforms in order. Nil transforms are skipped.
// With no transforms it returns a copy of its input.
func Compose(transforms ...Transform) Transform {
	return TransformFunc(func(adj *mat.Dense, layerID int) (*mat.Dense, error) {
		current := adj
		for ii, t := range transforms {
			if t == nil {
				continue
			}
			var err error
			current, err = t.Apply(current, layerID)
			if err != nil {
				return nil, errors.WithMessagef(err, "adjacency transform #%d for layer %d", ii, layerID)
			}
		}
		if current == adj {
			current = Clone(adj)
		}
		return current, nil
	})
}

// SelfConnection sets the diagonal to 1 (Add=true, self-loops) or to 0 (Add=false).
// It is deterministic and idempotent.
type SelfConnection struct {
	Add bool
}

// Apply implements Transform.
func (t SelfConnection) Apply(adj *mat.Dense, _ int) (*mat.Dense, error) {
	out := Clone(adj)
	if t.Add {
		klog.V(2).Infof("Adding self connections")
		FillDiagonal(out, 1)
	} else {
		FillDiagonal(out, 0)
	}
	return out, nil
}

// AugmentConnectivity connects nodes within KernelSize hops: it multiplies the matrix by its transpose
// KernelSize times and then binarizes it.
//
// It densifies the graph, and for dense matrices each multiplication is O(N^3): callers must bound
// KernelSize for large graphs.
//
// KernelSize 0 returns the adjacency unchanged, and so does layer 0 when SkipFirstLayer is set.
type AugmentConnectivity struct {
	KernelSize     int
	SkipFirstLayer bool
}

// Apply implements Transform.
func (t AugmentConnectivity) Apply(adj *mat.Dense, layerID int) (*mat.Dense, error) {
	if t.KernelSize < 0 {
		return nil, errors.Wrapf(genegraph.ErrConfiguration, "AugmentConnectivity kernel size must be >= 0, got %d", t.KernelSize)
	}
	if t.KernelSize == 0 || (t.SkipFirstLayer && layerID == 0) {
		return Clone(adj), nil
	}
	klog.V(1).Infof("Augmenting graph connectivity for layer %d (kernel size %d)", layerID, t.KernelSize)
	current := Clone(adj)
	for range t.KernelSize {
		var next mat.Dense
		next.Mul(current, current.T())
		current = &next
	}
	return Binarize(current), nil
}

// ApproxNormalizeLaplacian approximates a normalized Laplacian, as in Kipf & Welling
// (https://arxiv.org/abs/1609.02907): it fills the diagonal with 1, computes the degree vector D (the row-sums)
// and returns D^(-1/2)·A·D^(-1/2).
//
// Results are cached (if Cache is not nil) by the content hash of the input matrix and UniqueID. A cached
// result is returned unless Overwrite is set. Caching never changes the result, and failing to save a result
// is only logged.
type ApproxNormalizeLaplacian struct {
	Cache     *cache.Cache
	UniqueID  string
	Overwrite bool
}

// Apply implements Transform.
func (t ApproxNormalizeLaplacian) Apply(adj *mat.Dense, _ int) (*mat.Dense, error) {
	key := cache.Key{Hash: Hash(adj), ID: t.UniqueID}
	if t.Cache != nil && !t.Overwrite {
		if cached, found := t.Cache.Get(key); found {
			klog.V(1).Infof("Returning a saved transformation (%s)", key)
			return cached, nil
		}
	}

	klog.V(1).Infof("Doing the approximation...")
	out := Clone(adj)
	FillDiagonal(out, 1)
	degrees := RowSums(out)
	rows, cols := out.Dims()
	invSqrt := make([]float64, len(degrees))
	for ii, d := range degrees {
		if d <= 0 || math.IsNaN(d) {
			return nil, errors.Wrapf(genegraph.ErrNumerical,
				"zero degree at row %d of adjacency shaped (%d, %d) after filling its diagonal", ii, rows, cols)
		}
		invSqrt[ii] = 1 / math.Sqrt(d)
	}
	out.Apply(func(i, j int, v float64) float64 {
		return invSqrt[i] * v * invSqrt[j]
	}, out)

	if t.Cache != nil {
		if err := t.Cache.Put(key, out); err != nil {
			klog.Warningf("Failed to save the transformation (%s), continuing without caching it: %v", key, err)
		}
	}
	return out, nil
}

// TransformFromConfig returns the composition of the transforms enabled in cfg, in this order:
// SelfConnection, AugmentConnectivity (skipping the first layer) and ApproxNormalizeLaplacian (using c,
// which may be nil).
//
// It returns nil if no transformation is enabled.
func TransformFromConfig(cfg genegraph.Config, c *cache.Cache) Transform {
	var transforms []Transform
	if cfg.AddSelfConnection {
		klog.V(1).Infof("Adding self connection to the graph...")
		transforms = append(transforms, SelfConnection{Add: true})
	}
	if cfg.AddConnectivity {
		klog.V(1).Infof("Adding the connectivity after each layer...")
		transforms = append(transforms, AugmentConnectivity{KernelSize: cfg.KernelSize, SkipFirstLayer: true})
	}
	if cfg.NormalizeAdjacency {
		klog.V(1).Infof("Normalizing the graph...")
		transforms = append(transforms, ApproxNormalizeLaplacian{
			Cache:     c,
			UniqueID:  cfg.CacheID,
			Overwrite: cfg.CacheOverwrite,
		})
	}
	if len(transforms) == 0 {
		return nil
	}
	return Compose(transforms...)
}
