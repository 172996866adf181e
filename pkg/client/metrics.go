package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for data access operations.
var (
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frende_api_requests_total",
		Help: "Total upstream API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	apiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "frende_api_request_duration_seconds",
		Help:    "Upstream API request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	apiErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frende_api_errors_total",
		Help: "Total upstream API errors by class",
	}, []string{"class"})

	backgroundRefreshTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frende_cache_background_refresh_total",
		Help: "Total background refreshes triggered by stale cache hits",
	})

	networkFirstFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frende_cache_network_first_fallback_total",
		Help: "Total network-first requests served from cache after a fetch failure",
	})
)
