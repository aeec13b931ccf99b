// Copyright 2025 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package genegraph

import (
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// ParamAddSelfConnection context hyperparameter defines whether self-loops are added (true) or removed (false)
	// from the adjacency of every layer. The default is false: the SelfConnection transformation is not used.
	ParamAddSelfConnection = "graph_add_self_connection"

	// ParamAddConnectivity context hyperparameter enables the k-hop connectivity augmentation for every layer
	// except the first one. The default is false.
	ParamAddConnectivity = "graph_add_connectivity"

	// ParamKernelSize context hyperparameter defines the number of times the adjacency is multiplied by its
	// transpose when ParamAddConnectivity is set. The default is 1.
	ParamKernelSize = "graph_kernel_size"

	// ParamNormalizeAdjacency context hyperparameter enables the approximate normalized Laplacian transformation.
	// The default is false.
	ParamNormalizeAdjacency = "graph_normalize_adjacency"

	// ParamNumLayers context hyperparameter defines the number of layers of the aggregation hierarchy.
	// The default is 1.
	ParamNumLayers = "graph_num_layers"

	// ParamClusterType context hyperparameter defines the clustering used to coarsen the graph at each layer.
	// Valid values are "hierarchy", "grid", "ignore" and "none" (same as "ignore").
	// The default is "ignore".
	ParamClusterType = "graph_cluster_type"

	// ParamPoolReduction context hyperparameter defines how pooled node features are reduced.
	// Valid values are "max", "mean" and "strip". The default is "max".
	ParamPoolReduction = "graph_pool_reduction"

	// ParamLayerType context hyperparameter defines which graph convolution is used.
	// Valid values are "sparse", "local" and "spectral". The default is "sparse".
	ParamLayerType = "graph_layer_type"

	// ParamChannels context hyperparameter defines the number of output channels of each graph convolution.
	// The default is 2.
	ParamChannels = "graph_channels"

	// ParamOnAccelerator context hyperparameter defines whether per-layer structures are placed on an accelerator.
	// The default is false.
	ParamOnAccelerator = "graph_on_accelerator"

	// ParamCacheDir context hyperparameter is the root directory of the normalized adjacency cache.
	// If empty, normalization results are not cached.
	ParamCacheDir = "graph_cache_dir"

	// ParamCacheUser context hyperparameter is the user identity used to separate cache directories.
	ParamCacheUser = "graph_cache_user"

	// ParamCacheID context hyperparameter is the caller supplied unique id appended to cache keys.
	ParamCacheID = "graph_cache_id"

	// ParamCacheOverwrite context hyperparameter forces recomputing (and rewriting) cached results.
	ParamCacheOverwrite = "graph_cache_overwrite"
)

// Config is the configuration surface of the toolkit. It can be read from a context
// (ConfigFromContext), from a YAML file (LoadConfig) or built directly.
type Config struct {
	AddSelfConnection  bool   `yaml:"add_self_connection"`
	AddConnectivity    bool   `yaml:"add_connectivity"`
	KernelSize         int    `yaml:"kernel_size" validate:"gte=0"`
	NormalizeAdjacency bool   `yaml:"normalize_adjacency"`
	NumLayers          int    `yaml:"num_layers" validate:"gte=1"`
	ClusterType        string `yaml:"cluster_type" validate:"omitempty,oneof=hierarchy grid ignore none"`
	PoolReduction      string `yaml:"pool_reduction" validate:"oneof=max mean strip"`
	LayerType          string `yaml:"layer_type" validate:"oneof=sparse local spectral"`
	Channels           int    `yaml:"channels" validate:"gte=1"`
	OnAccelerator      bool   `yaml:"on_accelerator"`

	CacheDir       string `yaml:"cache_dir"`
	CacheUser      string `yaml:"cache_user" validate:"required_with=CacheDir"`
	CacheID        string `yaml:"cache_id"`
	CacheOverwrite bool   `yaml:"cache_overwrite"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		KernelSize:    1,
		NumLayers:     1,
		ClusterType:   "ignore",
		PoolReduction: "max",
		LayerType:     "sparse",
		Channels:      2,
	}
}

// ConfigFromContext reads the configuration from the context hyperparameters, using DefaultConfig for the
// values not set.
func ConfigFromContext(ctx *context.Context) Config {
	cfg := DefaultConfig()
	cfg.AddSelfConnection = context.GetParamOr(ctx, ParamAddSelfConnection, cfg.AddSelfConnection)
	cfg.AddConnectivity = context.GetParamOr(ctx, ParamAddConnectivity, cfg.AddConnectivity)
	cfg.KernelSize = context.GetParamOr(ctx, ParamKernelSize, cfg.KernelSize)
	cfg.NormalizeAdjacency = context.GetParamOr(ctx, ParamNormalizeAdjacency, cfg.NormalizeAdjacency)
	cfg.NumLayers = context.GetParamOr(ctx, ParamNumLayers, cfg.NumLayers)
	cfg.ClusterType = context.GetParamOr(ctx, ParamClusterType, cfg.ClusterType)
	cfg.PoolReduction = context.GetParamOr(ctx, ParamPoolReduction, cfg.PoolReduction)
	cfg.LayerType = context.GetParamOr(ctx, ParamLayerType, cfg.LayerType)
	cfg.Channels = context.GetParamOr(ctx, ParamChannels, cfg.Channels)
	cfg.OnAccelerator = context.GetParamOr(ctx, ParamOnAccelerator, cfg.OnAccelerator)
	cfg.CacheDir = context.GetParamOr(ctx, ParamCacheDir, cfg.CacheDir)
	cfg.CacheUser = context.GetParamOr(ctx, ParamCacheUser, cfg.CacheUser)
	cfg.CacheID = context.GetParamOr(ctx, ParamCacheID, cfg.CacheID)
	cfg.CacheOverwrite = context.GetParamOr(ctx, ParamCacheOverwrite, cfg.CacheOverwrite)
	return cfg
}

// Params returns the configuration as context hyperparameters, to be used with Context.SetParams.
func (cfg Config) Params() map[string]any {
	return map[string]any{
		ParamAddSelfConnection:  cfg.AddSelfConnection,
		ParamAddConnectivity:    cfg.AddConnectivity,
		ParamKernelSize:         cfg.KernelSize,
		ParamNormalizeAdjacency: cfg.NormalizeAdjacency,
		ParamNumLayers:          cfg.NumLayers,
		ParamClusterType:        cfg.ClusterType,
		ParamPoolReduction:      cfg.PoolReduction,
		ParamLayerType:          cfg.LayerType,
		ParamChannels:           cfg.Channels,
		ParamOnAccelerator:      cfg.OnAccelerator,
		ParamCacheDir:           cfg.CacheDir,
		ParamCacheUser:          cfg.CacheUser,
		ParamCacheID:            cfg.CacheID,
		ParamCacheOverwrite:     cfg.CacheOverwrite,
	}
}

// LoadConfig reads a YAML configuration file. Fields missing from the file keep their DefaultConfig values.
// The returned configuration is validated.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "failed to read configuration from %q", path)
	}
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(ErrConfiguration, "failed to parse configuration %q: %v", path, err)
	}
	return cfg, cfg.Validate()
}

var validate = validator.New()

// Validate checks that every policy name is known and every size is in range.
// It returns an error wrapping ErrConfiguration otherwise.
func (cfg Config) Validate() error {
	if err := validate.Struct(cfg); err != nil {
		return errors.Wrapf(ErrConfiguration, "invalid configuration: %v", err)
	}
	if cfg.LayerType == "sparse" && cfg.Channels%2 != 0 {
		return Configurationf("sparse graph convolution requires an even number of channels, got %d", cfg.Channels)
	}
	return nil
}

// Placement returns where the per-layer structures should be placed.
func (cfg Config) Placement() Placement {
	if cfg.OnAccelerator {
		return PlacementAccelerator
	}
	return PlacementCPU
}
