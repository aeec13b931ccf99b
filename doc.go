// Copyright 2025 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package genegraph holds the shared pieces of the graph convolution toolkit: the error taxonomy,
// the configuration surface and the device placement of the per-layer structures.
//
// The actual work happens in the sub-packages:
//
//   - adjacency: transformations of an adjacency matrix (self-connections, k-hop connectivity,
//     approximate normalized Laplacian) and its on-disk cache (adjacency/cache).
//   - cluster: partitions the nodes of an adjacency into clusters, producing the coarsened
//     adjacency and the retention mask of a layer.
//   - hierarchy: folds the transformations and the clustering over the layers of a network,
//     producing one LayerSpec per layer.
//   - ml/layers/graphpool: the pooling operator that uses a LayerSpec to pool node features.
//   - ml/layers/graphconv: the graph convolution layers (sparse, local and spectral).
//
// Adjacency matrices are built once, before any graph is created, and are immutable afterward:
// they can be shared by any number of computation graphs.
package genegraph
