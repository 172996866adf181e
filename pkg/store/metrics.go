package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cacheHits tracks cache hits by tier (memory, durable).
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frende_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"tier"},
	)

	// cacheMisses tracks cache misses.
	cacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "frende_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// cacheMemoryBytes tracks the current memory-tier size.
	cacheMemoryBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "frende_cache_memory_bytes",
			Help: "Current size of the memory cache tier in bytes",
		},
	)

	// cacheMemoryEntries tracks the current memory-tier entry count.
	cacheMemoryEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "frende_cache_memory_entries",
			Help: "Current number of entries in the memory cache tier",
		},
	)

	// cacheEvictions tracks LRU evictions from the memory tier.
	cacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "frende_cache_evictions_total",
			Help: "Total number of memory-tier LRU evictions",
		},
	)

	// cacheInvalidated tracks entries removed by pattern invalidation.
	cacheInvalidated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "frende_cache_invalidated_total",
			Help: "Total number of entries removed by pattern invalidation",
		},
	)

	// cacheErrors tracks cache operation errors.
	cacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frende_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "invalidate", "cleanup"
	)
)
