// Copyright 2025 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// genegraph builds the aggregation hierarchy of a graph, runs a forward pass of the configured graph
// convolutions over random node features, and reports how the graph was coarsened.
//
// The graph is read from a CSV adjacency matrix (-adjacency) or, if none is given, a ring graph of -ring nodes
// is used. The configuration comes from a YAML file (-config), overridden by the context settings (-set),
// e.g.:
//
//	genegraph -adjacency=ppi.csv -set="graph_num_layers=3;graph_cluster_type=hierarchy;graph_pool_reduction=max"
package main

import (
	"flag"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/genegraph"
	"github.com/gomlx/genegraph/adjacency"
	"github.com/gomlx/genegraph/adjacency/cache"
	"github.com/gomlx/genegraph/hierarchy"
	"github.com/gomlx/genegraph/ml/layers/graphconv"
	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/schollz/progressbar/v3"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/gomlx/backends/default"
)

var (
	flagAdjacency = flag.String("adjacency", "", "CSV file with the square adjacency matrix of the graph. "+
		"If empty, a ring graph of -ring nodes is used.")
	flagRing   = flag.Int("ring", 64, "Number of nodes of the ring graph used when -adjacency is not given.")
	flagConfig = flag.String("config", "", "YAML file with the graph configuration. Context settings (-set) "+
		"take precedence over it.")
	flagBatch = flag.Int("batch", 4, "Batch size of the random node features used in the forward pass.")
	flagPlot  = flag.String("plot", "", "If set, a plot of the number of retained nodes per layer is saved to this "+
		"PNG file.")
)

func main() {
	ctx := context.New()
	ctx.SetParams(genegraph.DefaultConfig().Params())
	settings := commandline.CreateContextSettingsFlag(ctx, "")
	klog.InitFlags(nil)
	flag.Parse()

	if *flagConfig != "" {
		cfg := must.M1(genegraph.LoadConfig(*flagConfig))
		ctx.SetParams(cfg.Params())
	}
	paramsSet := must.M1(commandline.ParseContextSettings(ctx, *settings))
	if len(paramsSet) > 0 {
		klog.V(1).Infof("Context settings: %s", commandline.SprintModifiedContextSettings(ctx, paramsSet))
	}

	err := exceptions.TryCatch[error](func() { run(ctx) })
	if err != nil {
		klog.Errorf("Failed with error: %+v", err)
		os.Exit(1)
	}
}

func run(ctx *context.Context) {
	cfg := genegraph.ConfigFromContext(ctx)
	if cfg.CacheDir != "" && cfg.CacheUser == "" {
		cfg.CacheUser = currentUser()
	}
	must.M(cfg.Validate())

	name, adj := loadGraph()
	numNodes, _ := adj.Dims()
	klog.Infof("Graph %q: %d nodes, %d edges", name, numNodes, adjacency.NumEdges(adj))

	registry := prometheus.NewRegistry()
	normalizedCache := must.M1(cache.FromConfig(cfg, name+"_", registry))

	bar := progressbar.NewOptions(cfg.NumLayers,
		progressbar.OptionSetDescription("Building hierarchy"),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetTheme(progressbar.ThemeUnicode))
	h := must.M1(hierarchy.FromConfig(adj, cfg, normalizedCache, func(spec *hierarchy.LayerSpec) {
		bar.Describe(fmt.Sprintf("Layer #%d: %d clusters", spec.Index, spec.Clusters.NumClusters))
		must.M(bar.Add(1))
	}))
	must.M(bar.Finish())
	fmt.Println()

	kind := must.M1(graphconv.ParseKind(cfg.LayerType))
	layers := must.M1(h.ConvLayers(kind, 1, cfg.Channels, dtypes.Float32))

	configureBackend(cfg.Placement())
	backend := backends.New()
	must.M(genegraph.CheckPlacement(cfg.Placement(), backend))
	output := context.ExecOnce(backend, ctx, func(ctx *context.Context, g *Graph) *Node {
		for _, layer := range layers {
			layer.InitializeParameters(ctx)
		}
		x := ctx.RandomUniform(g, shapes.Make(dtypes.Float32, *flagBatch, numNodes, 1))
		return graphconv.Chain(x, layers...)
	})

	printSummary(name, cfg, h, output.Shape())
	printLayers(h)
	if normalizedCache != nil {
		printCacheStats(normalizedCache.Stats())
	}
	if *flagPlot != "" {
		must.M(plotRetained(h, name, *flagPlot))
		fmt.Printf("Plot of retained nodes saved to %q\n", *flagPlot)
	}
}

// configureBackend selects the default backend for the placement. For the CPU the default selection (the
// GOMLX_BACKEND environment variable, or the first registered backend) is kept.
func configureBackend(placement genegraph.Placement) {
	if config := placement.BackendConfig(); config != "" {
		backends.DefaultConfig = config
	}
}

// loadGraph returns the name and adjacency of the graph selected by the flags.
func loadGraph() (string, *mat.Dense) {
	if *flagAdjacency == "" {
		return fmt.Sprintf("ring%d", *flagRing), ring(*flagRing)
	}
	name := strings.TrimSuffix(filepath.Base(*flagAdjacency), filepath.Ext(*flagAdjacency))
	return name, must.M1(adjacency.LoadCSV(*flagAdjacency))
}

// ring returns the symmetric adjacency of a ring graph with n nodes.
func ring(n int) *mat.Dense {
	if n < 2 {
		exceptions.Panicf("ring graph requires at least 2 nodes, got %d", n)
	}
	adj := mat.NewDense(n, n, nil)
	for ii := range n {
		next := (ii + 1) % n
		adj.Set(ii, next, 1)
		adj.Set(next, ii, 1)
	}
	return adj
}

func currentUser() string {
	u, err := user.Current()
	if err != nil {
		klog.Warningf("Failed to find current user, using \"default\" for the cache: %v", err)
		return "default"
	}
	return u.Username
}
