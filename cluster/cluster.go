// Copyright 2025 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package cluster partitions the nodes of an adjacency matrix into clusters, for one layer of the aggregation
// hierarchy, and derives from the partition the coarsened adjacency and the retention mask of the layer.
//
// Three policies are available (see Type): identity (TypeIgnore / TypeNone), grid striping (TypeGrid) and
// connectivity constrained Ward agglomerative clustering (TypeHierarchy).
//
// The coarsened adjacency keeps the NxN shape of the input: the merged row of each cluster is copied back to
// the row of every member, so pooling can zero out non-retained rows uniformly across layers.
package cluster

import (
	"math"

	"github.com/gomlx/genegraph"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Type of clustering.
type Type int

const (
	// TypeIgnore uses one cluster per node: nothing is coarsened.
	TypeIgnore Type = iota

	// TypeNone is an alias to TypeIgnore.
	TypeNone

	// TypeGrid uses deterministic striping: every node whose index is a multiple of floor(sqrt(N)) is the seed of
	// a cluster, which also holds the following nodes up to the next seed.
	TypeGrid

	// TypeHierarchy uses Ward agglomerative clustering, constrained to the connectivity of the adjacency,
	// targeting N/2^(layer+1) clusters.
	TypeHierarchy
)

//go:generate enumer -type=Type -trimprefix=Type -transform=snake -values -text -json -yaml cluster.go

// ParseType converts a cluster type name to its Type. An empty name is TypeNone.
// Unknown names return an error wrapping genegraph.ErrConfiguration.
func ParseType(name string) (Type, error) {
	if name == "" {
		return TypeNone, nil
	}
	t, err := TypeString(name)
	if err != nil {
		return t, errors.Wrapf(genegraph.ErrConfiguration, "cluster type %q unknown: valid values are %v", name, TypeValues())
	}
	return t, nil
}

// Result of clustering one layer.
type Result struct {
	// Assignment maps each node to its cluster id, in 0..NumClusters-1. Cluster ids are numbered by first
	// appearance in ascending node order.
	Assignment []int

	// NumClusters is the number of distinct clusters.
	NumClusters int

	// Coarsened is the NxN coarsened adjacency: row i is the binarized union of the rows of the members of the
	// cluster of node i.
	Coarsened *mat.Dense

	// Retained marks the nodes that survive into the next (coarser) layer.
	Retained []bool
}

// NumRetained returns the number of retained nodes.
func (r *Result) NumRetained() int {
	return CountRetained(r.Retained)
}

// Planner clusters the nodes of one layer. It is immutable after creation, and can be reused for every layer.
type Planner struct {
	typ Type

	// features are the node feature vectors used by the hierarchical clustering distance: the rows of the
	// original (layer 0) adjacency.
	features *mat.Dense
}

// NewPlanner creates a Planner for the given type. The features matrix is only used by TypeHierarchy, where it
// is required: its rows are the feature vectors (Euclidean distance) of each node. Usually it is the original
// adjacency of the graph.
func NewPlanner(typ Type, features *mat.Dense) (*Planner, error) {
	switch typ {
	case TypeIgnore, TypeNone, TypeGrid:
	case TypeHierarchy:
		if features == nil {
			return nil, errors.Wrap(genegraph.ErrConfiguration, "hierarchical clustering requires node features")
		}
	default:
		return nil, errors.Wrapf(genegraph.ErrConfiguration, "cluster type %d unknown: valid values are %v", typ, TypeValues())
	}
	return &Planner{typ: typ, features: features}, nil
}

// Type returns the clustering type of the planner.
func (p *Planner) Type() Type { return p.typ }

// Cluster partitions the nodes of adj for the given layer, and derives the coarsened adjacency and the
// retention mask. previous is the retention mask of the previous (finer) layer; nil means every node was
// retained.
func (p *Planner) Cluster(adj *mat.Dense, layerID int, previous []bool) (*Result, error) {
	n, cols := adj.Dims()
	if n != cols {
		return nil, errors.Wrapf(genegraph.ErrConfiguration, "adjacency must be square, got shape (%d, %d)", n, cols)
	}
	if previous == nil {
		previous = AllRetained(n)
	}
	if len(previous) != n {
		return nil, errors.Wrapf(genegraph.ErrConfiguration,
			"previous retention mask has %d nodes, adjacency has %d", len(previous), n)
	}

	var ids []int
	switch p.typ {
	case TypeIgnore, TypeNone:
		ids = identity(n)
	case TypeGrid:
		ids = grid(n)
	case TypeHierarchy:
		if fr, _ := p.features.Dims(); fr != n {
			return nil, errors.Wrapf(genegraph.ErrConfiguration,
				"hierarchical clustering features have %d nodes, adjacency has %d", fr, n)
		}
		ids = ward(p.features, adj, TargetClusters(n, layerID))
	}
	ids, numClusters := renumber(ids)
	return &Result{
		Assignment:  ids,
		NumClusters: numClusters,
		Coarsened:   Coarsen(adj, ids, numClusters),
		Retained:    Retain(ids, numClusters, previous),
	}, nil
}

// TargetClusters returns the number of clusters targeted by hierarchical clustering for a layer:
// floor(N/2^(layer+1)), and at least 1.
func TargetClusters(numNodes, layerID int) int {
	k := int(float64(numNodes) / math.Pow(2, float64(layerID+1)))
	return max(k, 1)
}

func identity(n int) []int {
	ids := make([]int, n)
	for ii := range ids {
		ids[ii] = ii
	}
	return ids
}

// grid assigns node i to the stripe started by the last seed (multiple of floor(sqrt(n))) at or before i.
func grid(n int) []int {
	gridSize := max(int(math.Sqrt(float64(n))), 1)
	ids := make([]int, n)
	for ii := range ids {
		ids[ii] = ii / gridSize
	}
	return ids
}

// renumber cluster ids by order of first appearance.
func renumber(ids []int) ([]int, int) {
	mapping := make(map[int]int, len(ids))
	out := make([]int, len(ids))
	for ii, id := range ids {
		newID, found := mapping[id]
		if !found {
			newID = len(mapping)
			mapping[id] = newID
		}
		out[ii] = newID
	}
	return out, len(mapping)
}
