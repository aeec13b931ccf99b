// Copyright 2025 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package genegraph

import (
	"strings"

	"github.com/gomlx/gomlx/backends"
	"github.com/pkg/errors"
)

// Placement is the device where the per-layer structures (adjacency constants, edge lists, masks) live.
// It is fixed at construction time and never silently corrected.
type Placement int

const (
	PlacementCPU Placement = iota
	PlacementAccelerator
)

// String implements fmt.Stringer.
func (p Placement) String() string {
	switch p {
	case PlacementCPU:
		return "cpu"
	case PlacementAccelerator:
		return "accelerator"
	}
	return "unknown"
}

// BackendConfig returns the GoMLX backend configuration string for the placement. It is empty for PlacementCPU:
// any registered backend (XLA's CPU plugin, or the pure Go backend in builds without XLA) runs on the CPU, so the
// default backend selection is left alone.
func (p Placement) BackendConfig() string {
	if p == PlacementAccelerator {
		return "xla:cuda"
	}
	return ""
}

// acceleratorMarkers are the substrings that identify an accelerator backend in its name or description.
var acceleratorMarkers = []string{"cuda", "gpu", "tpu", "rocm", "metal"}

// PlacementOf returns the placement of the given backend.
func PlacementOf(backend backends.Backend) Placement {
	desc := strings.ToLower(backend.Name() + " " + backend.Description())
	for _, marker := range acceleratorMarkers {
		if strings.Contains(desc, marker) {
			return PlacementAccelerator
		}
	}
	return PlacementCPU
}

// CheckPlacement returns an error wrapping ErrConfiguration if the backend doesn't match the placement
// the structures were built for.
func CheckPlacement(want Placement, backend backends.Backend) error {
	if got := PlacementOf(backend); got != want {
		return errors.Wrapf(ErrConfiguration, "structures built for placement %s, but input is on backend %q (placement %s)",
			want, backend.Name(), got)
	}
	return nil
}
