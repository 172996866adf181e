// Package client provides the cached data access layer: cache-first reads
// with stale-while-revalidate, mutation-driven invalidation, and the debug
// surface for cache inspection.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/coder123855/frende-cache/pkg/analytics"
	"github.com/coder123855/frende-cache/pkg/cachekey"
	"github.com/coder123855/frende-cache/pkg/invalidation"
	"github.com/coder123855/frende-cache/pkg/store"
	"github.com/coder123855/frende-cache/pkg/strategy"
)

// DefaultRefreshTimeout bounds a background refresh triggered by a stale hit.
const DefaultRefreshTimeout = 10 * time.Second

// Config holds the data access layer dependencies.
type Config struct {
	Store       *store.Store
	Registry    *strategy.Registry
	Invalidator *invalidation.Service
	Fetcher     Fetcher

	// Analytics components backing ExportAnalytics. Optional.
	Collector *analytics.Collector
	Alerts    *analytics.AlertEngine
	Advisor   *analytics.Advisor

	Clock  clockwork.Clock
	Logger zerolog.Logger

	// RefreshTimeout bounds background refreshes. Defaults to
	// DefaultRefreshTimeout.
	RefreshTimeout time.Duration
}

// GetOptions controls a single read.
type GetOptions struct {
	// Params are the query parameters; they are part of the cache key.
	Params map[string]string

	// CacheOnly serves only from cache and returns ErrCacheOnly on a miss.
	CacheOnly bool

	// Bypass skips the cache read and always fetches. The response is still
	// stored.
	Bypass bool
}

// Access is the cached data access façade.
type Access struct {
	store       *store.Store
	registry    *strategy.Registry
	invalidator *invalidation.Service
	fetcher     Fetcher

	collector *analytics.Collector
	alerts    *analytics.AlertEngine
	advisor   *analytics.Advisor

	clock          clockwork.Clock
	logger         zerolog.Logger
	refreshTimeout time.Duration
	verbose        atomic.Bool

	// refreshing tracks keys with an in-flight background refresh so a
	// burst of stale hits triggers at most one fetch per key.
	mu         sync.Mutex
	refreshing map[string]struct{}

	refreshWG sync.WaitGroup
}

// New creates the data access layer. Store, Registry, Invalidator, and
// Fetcher are required.
func New(cfg Config) (*Access, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("strategy registry is required")
	}
	if cfg.Invalidator == nil {
		return nil, fmt.Errorf("invalidation service is required")
	}
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = DefaultRefreshTimeout
	}

	return &Access{
		store:          cfg.Store,
		registry:       cfg.Registry,
		invalidator:    cfg.Invalidator,
		fetcher:        cfg.Fetcher,
		collector:      cfg.Collector,
		alerts:         cfg.Alerts,
		advisor:        cfg.Advisor,
		clock:          cfg.Clock,
		logger:         cfg.Logger.With().Str("component", "data-access").Logger(),
		refreshTimeout: cfg.RefreshTimeout,
		refreshing:     make(map[string]struct{}),
	}, nil
}

// Get serves a read for url according to its caching rule: fresh cache hits
// return immediately, stale hits return the stale payload and trigger one
// background refresh, misses fetch synchronously.
func (a *Access) Get(ctx context.Context, url string, opts GetOptions) ([]byte, error) {
	rule := a.registry.Resolve(url)
	key := cachekey.Key{URL: url, Params: opts.Params}.String()

	if opts.CacheOnly {
		value, _, err := a.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrCacheOnly, url)
		}
		return value, nil
	}

	if opts.Bypass {
		return a.fetchAndStore(ctx, url, key, opts.Params, rule)
	}

	if rule.NetworkFirst {
		return a.getNetworkFirst(ctx, url, key, opts.Params, rule)
	}

	value, freshness, err := a.store.Get(ctx, key)
	if err == nil {
		if freshness == store.Stale {
			a.debugEvent().Str("url", url).Msg("stale hit, scheduling refresh")
			a.scheduleRefresh(url, key, opts.Params, rule)
		}
		return value, nil
	}

	return a.fetchAndStore(ctx, url, key, opts.Params, rule)
}

// getNetworkFirst fetches first and falls back to any servable cached entry
// when the upstream is unreachable.
func (a *Access) getNetworkFirst(ctx context.Context, url, key string, params map[string]string, rule strategy.Rule) ([]byte, error) {
	value, err := a.fetchAndStore(ctx, url, key, params, rule)
	if err == nil {
		return value, nil
	}

	cached, _, cacheErr := a.store.Get(ctx, key)
	if cacheErr != nil {
		return nil, err
	}

	networkFirstFallbackTotal.Inc()
	a.logger.Warn().
		Err(err).
		Str("url", url).
		Msg("network-first fetch failed, serving cached copy")
	return cached, nil
}

// fetchAndStore performs a blocking fetch and writes the response through the
// url's caching rule.
func (a *Access) fetchAndStore(ctx context.Context, url, key string, params map[string]string, rule strategy.Rule) ([]byte, error) {
	value, err := a.fetcher.Fetch(ctx, url, params)
	if err != nil {
		return nil, err
	}

	if err := a.store.Set(ctx, key, value, setOptions(rule)); err != nil {
		a.logger.Warn().Err(err).Str("url", url).Msg("failed to cache response")
	}
	return value, nil
}

// scheduleRefresh starts a background refresh for key unless one is already
// in flight.
func (a *Access) scheduleRefresh(url, key string, params map[string]string, rule strategy.Rule) {
	a.mu.Lock()
	if _, inflight := a.refreshing[key]; inflight {
		a.mu.Unlock()
		return
	}
	a.refreshing[key] = struct{}{}
	a.mu.Unlock()

	backgroundRefreshTotal.Inc()
	a.refreshWG.Add(1)
	go func() {
		defer a.refreshWG.Done()
		defer func() {
			a.mu.Lock()
			delete(a.refreshing, key)
			a.mu.Unlock()
		}()

		// The refresh must outlive the request that triggered it.
		ctx, cancel := context.WithTimeout(context.Background(), a.refreshTimeout)
		defer cancel()

		if _, err := a.fetchAndStore(ctx, url, key, params, rule); err != nil {
			a.logger.Warn().Err(err).Str("url", url).Msg("background refresh failed")
			return
		}
		a.debugEvent().Str("url", url).Msg("background refresh completed")
	}()
}

// Post performs a POST mutation and invalidates affected cache entries.
func (a *Access) Post(ctx context.Context, url string, body []byte) ([]byte, error) {
	return a.mutate(ctx, http.MethodPost, url, body)
}

// Put performs a PUT mutation and invalidates affected cache entries.
func (a *Access) Put(ctx context.Context, url string, body []byte) ([]byte, error) {
	return a.mutate(ctx, http.MethodPut, url, body)
}

// Patch performs a PATCH mutation and invalidates affected cache entries.
func (a *Access) Patch(ctx context.Context, url string, body []byte) ([]byte, error) {
	return a.mutate(ctx, http.MethodPatch, url, body)
}

// Delete performs a DELETE mutation and invalidates affected cache entries.
func (a *Access) Delete(ctx context.Context, url string) ([]byte, error) {
	return a.mutate(ctx, http.MethodDelete, url, nil)
}

// mutate sends the request and flushes invalidation synchronously so the
// caller's next read observes the mutation. Invalidation failures are logged
// but never fail a mutation that the upstream accepted.
func (a *Access) mutate(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	resp, err := a.fetcher.Send(ctx, method, url, body)
	if err != nil {
		return nil, err
	}

	a.invalidator.RecordMutation(method, url)
	invalidated := a.invalidator.Flush(ctx)
	a.debugEvent().
		Str("method", method).
		Str("url", url).
		Int("invalidated", invalidated).
		Msg("mutation completed")

	return resp, nil
}

// Wait blocks until all in-flight background refreshes finish. Intended for
// shutdown and tests.
func (a *Access) Wait() {
	a.refreshWG.Wait()
}

// ClearByPattern removes all cached entries whose URL starts with urlPrefix.
func (a *Access) ClearByPattern(ctx context.Context, urlPrefix string) (int, error) {
	return a.store.InvalidatePattern(ctx, cachekey.Prefix(urlPrefix))
}

// ClearByType removes all cached entries belonging to a strategy data type.
func (a *Access) ClearByType(ctx context.Context, dataType string) (int, error) {
	total := 0
	for _, rule := range a.registry.RulesForType(dataType) {
		n, err := a.store.InvalidatePattern(ctx, cachekey.Prefix(rule.KeyPattern))
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ClearAll removes every cached entry.
func (a *Access) ClearAll(ctx context.Context) (int, error) {
	return a.store.Clear(ctx)
}

// ExportAnalytics returns the full analytics state as indented JSON.
func (a *Access) ExportAnalytics() ([]byte, error) {
	if a.collector == nil {
		return nil, fmt.Errorf("analytics collector not configured")
	}

	export := analytics.BuildExport(a.collector, a.alerts, a.advisor)
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal analytics export: %w", err)
	}
	return data, nil
}

// Stats returns current cache statistics.
func (a *Access) Stats() store.Stats {
	return a.store.GetStats()
}

// SetVerbose toggles per-request debug logging.
func (a *Access) SetVerbose(enabled bool) {
	a.verbose.Store(enabled)
}

func (a *Access) debugEvent() *zerolog.Event {
	if a.verbose.Load() {
		return a.logger.Debug()
	}
	return a.logger.Debug().Discard()
}

func setOptions(rule strategy.Rule) store.SetOptions {
	opts := store.SetOptions{
		TTL:      rule.TTL,
		Compress: rule.Compress,
	}
	if rule.StaleWhileRevalidate {
		opts.StaleTTL = rule.StaleTTL
	}
	return opts
}
