// Copyright 2025 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cluster

import "gonum.org/v1/gonum/mat"

// Retain returns the retention mask for the given cluster assignment: visiting nodes in ascending index order,
// a node is retained iff it was retained in the previous layer and no other member of its cluster was retained
// before it.
//
// So a node is never resurrected, and each cluster with at least one previously retained member keeps exactly one.
func Retain(ids []int, numClusters int, previous []bool) []bool {
	seen := make([]bool, numClusters)
	retained := make([]bool, len(ids))
	for ii, cluster := range ids {
		if previous[ii] && !seen[cluster] {
			seen[cluster] = true
			retained[ii] = true
		}
	}
	return retained
}

// Coarsen returns the NxN coarsened adjacency: the merged row of a cluster is the sum of the rows of its members,
// binarized (> 0), and it is copied back to the row of every member.
func Coarsen(adj *mat.Dense, ids []int, numClusters int) *mat.Dense {
	n, _ := adj.Dims()
	merged := mat.NewDense(numClusters, n, nil)
	for ii, cluster := range ids {
		row := merged.RawRowView(cluster)
		for jj := range n {
			row[jj] += adj.At(ii, jj)
		}
	}
	out := mat.NewDense(n, n, nil)
	for ii, cluster := range ids {
		src := merged.RawRowView(cluster)
		dst := out.RawRowView(ii)
		for jj, v := range src {
			if v > 0 {
				dst[jj] = 1
			}
		}
	}
	return out
}

// AllRetained returns a mask with all n nodes retained.
func AllRetained(n int) []bool {
	mask := make([]bool, n)
	for ii := range mask {
		mask[ii] = true
	}
	return mask
}

// CountRetained returns the number of true values in mask.
func CountRetained(mask []bool) int {
	count := 0
	for _, keep := range mask {
		if keep {
			count++
		}
	}
	return count
}
