package analytics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// alertsActive tracks the size of the current breach set.
	alertsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "frende_cache_alerts_active",
			Help: "Number of active cache alerts after the last evaluation",
		},
	)

	// suggestionsActive tracks the size of the current suggestion set.
	suggestionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "frende_cache_suggestions_active",
			Help: "Number of active optimization suggestions after the last evaluation",
		},
	)
)
