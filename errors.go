// Copyright 2025 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package genegraph

import "github.com/pkg/errors"

var (
	// ErrConfiguration is returned (or thrown, when building a computation graph) for unknown policy names,
	// invalid channel counts, mismatched node dimensions or mismatched device placement.
	ErrConfiguration = errors.New("configuration error")

	// ErrNumerical is returned for zero row-sums before degree normalization and degenerate
	// eigendecompositions. The error message includes the shape of the offending matrix.
	ErrNumerical = errors.New("numerical error")

	// ErrAbstractContract is thrown when a graph layer variant is missing its parameter
	// initialization or its forward transformation.
	ErrAbstractContract = errors.New("abstract contract violation")

	// ErrCacheInconsistency marks an unreadable or corrupt cached artifact. The cache treats it as a miss.
	ErrCacheInconsistency = errors.New("cache inconsistency")
)

// Configurationf returns an error wrapping ErrConfiguration with the formatted message.
func Configurationf(format string, args ...any) error {
	return errors.Wrapf(ErrConfiguration, format, args...)
}

// Numericalf returns an error wrapping ErrNumerical with the formatted message.
func Numericalf(format string, args ...any) error {
	return errors.Wrapf(ErrNumerical, format, args...)
}
