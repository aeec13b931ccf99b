// Copyright 2025 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// wardCluster is a cluster being agglomerated. It is identified by its representative, the smallest node index
// among its members.
type wardCluster struct {
	sum     []float64
	size    int
	members []int
}

func (c *wardCluster) centroid() []float64 {
	centroid := make([]float64, len(c.sum))
	floats.ScaleTo(centroid, 1/float64(c.size), c.sum)
	return centroid
}

// wardCost is the increase of within-cluster variance caused by merging a and b.
func wardCost(a, b *wardCluster) float64 {
	dist := floats.Distance(a.centroid(), b.centroid(), 2)
	return float64(a.size*b.size) / float64(a.size+b.size) * dist * dist
}

type wardPair struct{ a, b int }

func newWardPair(a, b int) wardPair {
	if a > b {
		a, b = b, a
	}
	return wardPair{a, b}
}

// less orders candidate merges by cost, and ties by the representatives of the clusters.
func (p wardPair) less(cost float64, other wardPair, otherCost float64) bool {
	if cost != otherCost {
		return cost < otherCost
	}
	if p.a != other.a {
		return p.a < other.a
	}
	return p.b < other.b
}

// ward returns a cluster id per node, from Ward agglomerative clustering of the rows of features.
// Only clusters connected in adj (either direction, > 0) are merged, until numClusters remain.
//
// If the connected clusters are exhausted before reaching numClusters (the graph has more connected components
// than numClusters), the cheapest pair of unconnected clusters is merged, bridging the components.
func ward(features, adj *mat.Dense, numClusters int) []int {
	n, dim := features.Dims()
	clusters := make([]*wardCluster, n)
	for ii := range n {
		sum := make([]float64, dim)
		mat.Row(sum, ii, features)
		clusters[ii] = &wardCluster{sum: sum, size: 1, members: []int{ii}}
	}

	neighbors := make([]map[int]bool, n)
	for ii := range n {
		neighbors[ii] = make(map[int]bool)
	}
	for ii := range n {
		for jj := range n {
			if ii != jj && adj.At(ii, jj) > 0 {
				neighbors[ii][jj] = true
				neighbors[jj][ii] = true
			}
		}
	}
	costs := make(map[wardPair]float64)
	for ii := range n {
		for jj := range neighbors[ii] {
			if ii < jj {
				costs[newWardPair(ii, jj)] = wardCost(clusters[ii], clusters[jj])
			}
		}
	}

	for numAlive := n; numAlive > numClusters; numAlive-- {
		best, found := cheapestPair(costs)
		if !found {
			best = cheapestUnconnectedPair(clusters)
			klog.V(2).Infof("Ward clustering: bridging disconnected clusters %d and %d", best.a, best.b)
		}
		a, b := best.a, best.b

		// Drop the costs of the merged clusters, they are recomputed below.
		for nb := range neighbors[a] {
			delete(costs, newWardPair(a, nb))
		}
		for nb := range neighbors[b] {
			delete(costs, newWardPair(b, nb))
		}

		ca, cb := clusters[a], clusters[b]
		floats.Add(ca.sum, cb.sum)
		ca.size += cb.size
		ca.members = append(ca.members, cb.members...)
		clusters[b] = nil

		for nb := range neighbors[b] {
			delete(neighbors[nb], b)
			if nb != a {
				neighbors[a][nb] = true
				neighbors[nb][a] = true
			}
		}
		delete(neighbors[a], b)
		neighbors[b] = nil

		for nb := range neighbors[a] {
			costs[newWardPair(a, nb)] = wardCost(ca, clusters[nb])
		}
	}

	ids := make([]int, n)
	for rep, c := range clusters {
		if c == nil {
			continue
		}
		for _, member := range c.members {
			ids[member] = rep
		}
	}
	return ids
}

func cheapestPair(costs map[wardPair]float64) (best wardPair, found bool) {
	var bestCost float64
	for pair, cost := range costs {
		if !found || pair.less(cost, best, bestCost) {
			best, bestCost, found = pair, cost, true
		}
	}
	return
}

func cheapestUnconnectedPair(clusters []*wardCluster) (best wardPair) {
	var bestCost float64
	found := false
	for ii, ci := range clusters {
		if ci == nil {
			continue
		}
		for jj := ii + 1; jj < len(clusters); jj++ {
			cj := clusters[jj]
			if cj == nil {
				continue
			}
			pair := wardPair{ii, jj}
			cost := wardCost(ci, cj)
			if !found || pair.less(cost, best, bestCost) {
				best, bestCost, found = pair, cost, true
			}
		}
	}
	return
}
