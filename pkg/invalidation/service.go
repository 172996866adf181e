// Package invalidation turns successful write events into batched cache
// invalidation sweeps.
//
// Mutations arriving in a burst are coalesced: the first event opens a
// fixed-width window on the injected clock, every pattern observed while
// the window is open joins one batch, and the batch is flushed exactly
// once as a deduplicated set of pattern sweeps. A pending set suppresses
// redundant work for the identical (method, url) pair within a window.
package invalidation

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/coder123855/frende-cache/pkg/cachekey"
	"github.com/coder123855/frende-cache/pkg/strategy"
)

// DefaultWindow is the coalescing window width.
const DefaultWindow = 100 * time.Millisecond

// Store is the slice of the cache store the service needs.
type Store interface {
	InvalidatePattern(ctx context.Context, prefix string) (int, error)
}

// Service batches and applies invalidation sweeps.
type Service struct {
	store    Store
	registry *strategy.Registry
	clock    clockwork.Clock
	logger   zerolog.Logger
	window   time.Duration

	mu       sync.Mutex
	pending  map[string]struct{} // "METHOD url" pairs in the open window
	patterns map[string]struct{} // key prefixes accumulated for the batch
	timer    clockwork.Timer
}

// Config holds service construction options.
type Config struct {
	Store    Store
	Registry *strategy.Registry
	Clock    clockwork.Clock
	Logger   zerolog.Logger

	// Window overrides DefaultWindow.
	Window time.Duration
}

// New creates an invalidation service.
func New(cfg Config) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}
	return &Service{
		store:    cfg.Store,
		registry: cfg.Registry,
		clock:    clock,
		logger:   cfg.Logger,
		window:   window,
		pending:  make(map[string]struct{}),
		patterns: make(map[string]struct{}),
	}
}

// RecordMutation registers a successful (method, url) write. The affected
// pattern set joins the current batch; the first event of a window arms
// the flush timer.
func (s *Service) RecordMutation(method, url string) {
	rule := s.registry.Resolve(url)
	if !strategy.ShouldInvalidate(method, rule) {
		return
	}

	mutationsTotal.WithLabelValues(strings.ToUpper(method)).Inc()

	pendingKey := strings.ToUpper(method) + " " + url

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.pending[pendingKey]; dup {
		return
	}
	s.pending[pendingKey] = struct{}{}

	for _, pattern := range patternsFor(url, rule) {
		s.patterns[pattern] = struct{}{}
	}

	if s.timer == nil {
		s.timer = s.clock.AfterFunc(s.window, func() {
			s.Flush(context.Background())
		})
	}
}

// Flush applies the open batch immediately and closes the window. The
// façade calls this before a mutation returns so a read issued after the
// write never observes pre-invalidation state. Safe to call with nothing
// batched. Returns the number of cache entries removed.
func (s *Service) Flush(ctx context.Context) int {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if len(s.patterns) == 0 {
		s.pending = make(map[string]struct{})
		s.mu.Unlock()
		return 0
	}
	patterns := make([]string, 0, len(s.patterns))
	for pattern := range s.patterns {
		patterns = append(patterns, pattern)
	}
	s.patterns = make(map[string]struct{})
	s.pending = make(map[string]struct{})
	s.mu.Unlock()

	batchesTotal.Inc()

	removed := 0
	for _, pattern := range coalesce(patterns) {
		n, err := s.store.InvalidatePattern(ctx, pattern)
		if err != nil {
			// One failed pattern must not abort the rest of the batch.
			s.logger.Warn().Err(err).Str("pattern", pattern).Msg("Invalidation sweep failed")
			flushErrors.Inc()
			continue
		}
		patternsFlushed.Inc()
		removed += n
	}

	if removed > 0 {
		s.logger.Debug().Int("removed", removed).Int("patterns", len(patterns)).Msg("Invalidation batch flushed")
	}
	return removed
}

// Close flushes any open batch.
func (s *Service) Close(ctx context.Context) {
	s.Flush(ctx)
}

// patternsFor computes the key prefixes a mutation of url invalidates:
// the rule's configured patterns, the url itself, and every ancestor
// collection of the url down to the rule's own prefix. A write to
// /api/tasks/42/complete therefore sweeps /api/tasks/42 and /api/tasks.
func patternsFor(url string, rule strategy.Rule) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(urlPrefix string) {
		pattern := cachekey.Prefix(urlPrefix)
		if _, dup := seen[pattern]; dup {
			return
		}
		seen[pattern] = struct{}{}
		out = append(out, pattern)
	}

	add(url)
	for parent := parentCollection(url); parent != ""; parent = parentCollection(parent) {
		if rule.KeyPattern != "" && len(parent) < len(rule.KeyPattern) {
			break
		}
		add(parent)
	}
	for _, p := range rule.InvalidatePatterns {
		add(p)
	}
	return out
}

// parentCollection strips the last path segment.
func parentCollection(url string) string {
	trimmed := strings.TrimRight(url, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx <= 0 {
		return ""
	}
	return trimmed[:idx]
}

// coalesce sorts patterns and drops the ones already covered by a shorter
// prefix in the set, so a batch never sweeps the same keyspace twice.
func coalesce(patterns []string) []string {
	sort.Strings(patterns)
	var out []string
	for _, pattern := range patterns {
		if len(out) > 0 && strings.HasPrefix(pattern, out[len(out)-1]) {
			continue
		}
		out = append(out, pattern)
	}
	return out
}
