// Package metrics provides the centralized Prometheus metrics registry for
// the cache layer. All metrics are defined in their respective packages
// (store, invalidation, warming, client, ratelimit, analytics) to maintain
// modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the cache layer.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Cache Store Metrics (pkg/store):
//   - frende_cache_hits_total{tier} (Counter): Cache hits by tier (memory, durable)
//   - frende_cache_misses_total (Counter): Cache misses
//   - frende_cache_memory_bytes (Gauge): Current memory tier size in bytes
//   - frende_cache_memory_entries (Gauge): Current memory tier entry count
//   - frende_cache_evictions_total (Counter): LRU evictions from the memory tier
//   - frende_cache_invalidated_total (Counter): Entries removed by invalidation
//   - frende_cache_errors_total{operation} (Counter): Store operation errors
//
// Invalidation Metrics (pkg/invalidation):
//   - frende_cache_invalidation_mutations_total (Counter): Mutations recorded
//   - frende_cache_invalidation_batches_total (Counter): Coalesced batches flushed
//   - frende_cache_invalidation_patterns_total (Counter): Patterns applied
//   - frende_cache_invalidation_errors_total (Counter): Pattern sweeps that failed
//
// Warming Metrics (pkg/warming):
//   - frende_cache_warming_queue_size (Gauge): Endpoints waiting to be warmed
//   - frende_cache_warming_warmed_total (Counter): Endpoints warmed successfully
//   - frende_cache_warming_skipped_total (Counter): Warm endpoints skipped
//   - frende_cache_warming_retries_total (Counter): Warming retries scheduled
//   - frende_cache_warming_dropped_total (Counter): Endpoints dropped after retry exhaustion
//
// Request Metrics (pkg/client):
//   - frende_api_requests_total{endpoint, status} (Counter): Upstream requests by endpoint and HTTP status
//   - frende_api_request_duration_seconds{endpoint} (Histogram): Upstream request duration
//   - frende_api_errors_total{class} (Counter): Errors by class (client, auth, server, network, rate_limit)
//   - frende_cache_background_refresh_total (Counter): Stale-entry background refreshes
//   - frende_cache_network_first_fallback_total (Counter): Network-first reads served from cache after upstream failure
//
// Rate Limit Metrics (pkg/ratelimit):
//   - frende_api_budget_remaining (Gauge): Requests remaining in the upstream window
//   - frende_api_rate_limit_blocks_total (Counter): Fetches blocked on critical budget
//   - frende_api_rate_limit_throttles_total (Counter): Fetches throttled on low budget
//
// Analytics Metrics (pkg/analytics):
//   - frende_cache_alerts_active (Gauge): Active performance alerts
//   - frende_cache_suggestions_active (Gauge): Active optimization suggestions
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(frende_cache_hits_total[5m])) /
//   (sum(rate(frende_cache_hits_total[5m])) + sum(rate(frende_cache_misses_total[5m])))
//
//   # Upstream Budget Status
//   frende_api_budget_remaining < 20
//
//   # Request Error Rate
//   rate(frende_api_errors_total[5m])
//
//   # P95 Upstream Latency
//   histogram_quantile(0.95, rate(frende_api_request_duration_seconds_bucket[5m]))
//
//   # Invalidation Fan-out
//   rate(frende_cache_invalidation_patterns_total[5m]) /
//   rate(frende_cache_invalidation_batches_total[5m])
