// Package warming pre-populates the cache for high-traffic endpoints.
//
// Endpoints are registered as tasks keyed by URL. A periodic tick walks the
// queue, skips endpoints that are already warm, and fetches the rest through
// the configured Fetcher. Failed fetches are retried with exponential backoff
// up to a fixed attempt cap, after which the task is dropped.
package warming

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/coder123855/frende-cache/pkg/cachekey"
	"github.com/coder123855/frende-cache/pkg/store"
	"github.com/coder123855/frende-cache/pkg/strategy"
)

const (
	// DefaultInterval is the delay between queue sweeps.
	DefaultInterval = 5 * time.Second
	// DefaultMaxAttempts is the number of fetch attempts before a task is
	// dropped.
	DefaultMaxAttempts = 3
	// DefaultInitialBackoff is the delay before the first retry; it doubles
	// on each subsequent failure.
	DefaultInitialBackoff = 2 * time.Second
)

// Fetcher retrieves the payload for an endpoint. Implementations are expected
// to return the response body on success and an error otherwise.
type Fetcher interface {
	Fetch(ctx context.Context, url string, params map[string]string) ([]byte, error)
}

// Cache is the subset of the store the warming service needs.
type Cache interface {
	Peek(ctx context.Context, key string) (store.Freshness, bool)
	Set(ctx context.Context, key string, value []byte, opts store.SetOptions) error
}

// Config holds the warming service dependencies.
type Config struct {
	Cache    Cache
	Registry *strategy.Registry
	Fetcher  Fetcher
	Clock    clockwork.Clock
	Logger   zerolog.Logger

	Interval       time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

type task struct {
	url         string
	params      map[string]string
	attempts    int
	nextAttempt time.Time
}

// Service maintains the warming queue and drives periodic sweeps.
type Service struct {
	cache    Cache
	registry *strategy.Registry
	fetcher  Fetcher
	clock    clockwork.Clock
	logger   zerolog.Logger

	interval       time.Duration
	maxAttempts    int
	initialBackoff time.Duration

	mu    sync.Mutex
	tasks map[string]*task

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates a warming service. Cache, Registry, and Fetcher are required.
func New(cfg Config) *Service {
	if cfg.Cache == nil {
		panic("warming: Cache is required")
	}
	if cfg.Registry == nil {
		panic("warming: Registry is required")
	}
	if cfg.Fetcher == nil {
		panic("warming: Fetcher is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}

	return &Service{
		cache:          cfg.Cache,
		registry:       cfg.Registry,
		fetcher:        cfg.Fetcher,
		clock:          cfg.Clock,
		logger:         cfg.Logger.With().Str("component", "warming").Logger(),
		interval:       cfg.Interval,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		tasks:          make(map[string]*task),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// Enqueue registers an endpoint for warming. Re-enqueueing an existing URL
// resets its attempt counter.
func (s *Service) Enqueue(url string, params map[string]string) {
	s.mu.Lock()
	s.tasks[url] = &task{
		url:         url,
		params:      params,
		nextAttempt: s.clock.Now(),
	}
	queueSize.Set(float64(len(s.tasks)))
	s.mu.Unlock()

	s.logger.Debug().Str("url", url).Msg("warming task enqueued")
}

// EnqueueDefaults registers the endpoints that are warmed on startup: the
// post-login hot path. Each URL must stay aligned with the production rule
// table so warmed entries land under the rule a later read resolves.
func (s *Service) EnqueueDefaults() {
	s.Enqueue("/api/profile", nil)
	s.Enqueue("/api/matches", nil)
	s.Enqueue("/api/tasks", nil)
}

// QueueLen returns the number of pending tasks.
func (s *Service) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Start runs the sweep loop until ctx is cancelled or Stop is called.
func (s *Service) Start(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	go func() {
		defer close(s.done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.Chan():
				s.Sweep(ctx)
			}
		}
	}()
}

// Stop terminates the sweep loop and waits for it to exit.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

// Sweep processes every due task once: skip if warm, otherwise fetch and
// store. Each task gets at most one fetch attempt per sweep.
func (s *Service) Sweep(ctx context.Context) {
	now := s.clock.Now()

	s.mu.Lock()
	due := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if !t.nextAttempt.After(now) {
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		s.warm(ctx, t)
	}
}

func (s *Service) warm(ctx context.Context, t *task) {
	key := cachekey.Key{URL: t.url, Params: t.params}.String()

	if freshness, ok := s.cache.Peek(ctx, key); ok && freshness == store.Fresh {
		s.remove(t.url)
		skippedTotal.Inc()
		s.logger.Debug().Str("url", t.url).Msg("endpoint already warm")
		return
	}

	value, err := s.fetcher.Fetch(ctx, t.url, t.params)
	if err != nil {
		s.retryOrDrop(t, err)
		return
	}

	rule := s.registry.Resolve(t.url)
	opts := store.SetOptions{
		TTL:      rule.TTL,
		Compress: rule.Compress,
	}
	if rule.StaleWhileRevalidate {
		opts.StaleTTL = rule.StaleTTL
	}
	if err := s.cache.Set(ctx, key, value, opts); err != nil {
		s.retryOrDrop(t, err)
		return
	}

	s.remove(t.url)
	warmedTotal.Inc()
	s.logger.Debug().
		Str("url", t.url).
		Int("bytes", len(value)).
		Msg("endpoint warmed")
}

func (s *Service) retryOrDrop(t *task, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.tasks[t.url]
	if !ok || cur != t {
		return
	}

	cur.attempts++
	if cur.attempts >= s.maxAttempts {
		delete(s.tasks, t.url)
		queueSize.Set(float64(len(s.tasks)))
		droppedTotal.Inc()
		s.logger.Warn().
			Err(err).
			Str("url", t.url).
			Int("attempts", cur.attempts).
			Msg("warming task dropped after repeated failures")
		return
	}

	backoff := s.initialBackoff << (cur.attempts - 1)
	cur.nextAttempt = s.clock.Now().Add(backoff)
	retriesTotal.Inc()
	s.logger.Debug().
		Err(err).
		Str("url", t.url).
		Int("attempt", cur.attempts).
		Dur("backoff", backoff).
		Msg("warming fetch failed, retrying")
}

func (s *Service) remove(url string) {
	s.mu.Lock()
	delete(s.tasks, url)
	queueSize.Set(float64(len(s.tasks)))
	s.mu.Unlock()
}
