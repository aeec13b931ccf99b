// Copyright 2025 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cache

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	hits                    *prometheus.CounterVec
	misses, corrupt, writes prometheus.Counter
}

// newMetrics creates the cache counters, labeled by namespace. With a nil registerer they are not registered.
func newMetrics(reg prometheus.Registerer, namespace string) *metrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"namespace": strings.ToLower(namespace)}
	return &metrics{
		hits: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "genegraph_cache_hits_total",
			Help:        "Number of cache lookups served, by source (memory or disk).",
			ConstLabels: labels,
		}, []string{"source"}),
		misses: factory.NewCounter(prometheus.CounterOpts{
			Name:        "genegraph_cache_misses_total",
			Help:        "Number of cache lookups that had to be recomputed.",
			ConstLabels: labels,
		}),
		corrupt: factory.NewCounter(prometheus.CounterOpts{
			Name:        "genegraph_cache_corrupt_total",
			Help:        "Number of unreadable or corrupt artifacts treated as misses.",
			ConstLabels: labels,
		}),
		writes: factory.NewCounter(prometheus.CounterOpts{
			Name:        "genegraph_cache_writes_total",
			Help:        "Number of artifacts written.",
			ConstLabels: labels,
		}),
	}
}
