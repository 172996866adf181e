package warming

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "frende_cache_warming_queue_size",
		Help: "Number of pending warming tasks.",
	})

	warmedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frende_cache_warming_warmed_total",
		Help: "Total number of endpoints successfully warmed.",
	})

	skippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frende_cache_warming_skipped_total",
		Help: "Total number of warming tasks skipped because the entry was already fresh.",
	})

	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frende_cache_warming_retries_total",
		Help: "Total number of warming fetch retries.",
	})

	droppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frende_cache_warming_dropped_total",
		Help: "Total number of warming tasks dropped after exhausting retries.",
	})
)
