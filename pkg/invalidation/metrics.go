package invalidation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// mutationsTotal tracks write events that triggered invalidation.
	mutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frende_cache_invalidation_mutations_total",
			Help: "Total write events consumed by the invalidation service",
		},
		[]string{"method"},
	)

	// batchesTotal tracks flushed coalescing windows.
	batchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "frende_cache_invalidation_batches_total",
			Help: "Total invalidation batches flushed",
		},
	)

	// patternsFlushed tracks successfully applied pattern sweeps.
	patternsFlushed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "frende_cache_invalidation_patterns_total",
			Help: "Total invalidation pattern sweeps applied",
		},
	)

	// flushErrors tracks pattern sweeps that failed.
	flushErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "frende_cache_invalidation_errors_total",
			Help: "Total invalidation pattern sweeps that failed",
		},
	)
)
