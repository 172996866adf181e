package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/coder123855/frende-cache/pkg/storage"
)

var (
	budgetRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "frende_api_budget_remaining",
		Help: "Requests remaining in the current upstream rate limit window",
	})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frende_api_rate_limit_blocks_total",
		Help: "Total number of fetches blocked because the request budget was critical",
	})

	rateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frende_api_rate_limit_throttles_total",
		Help: "Total number of fetches throttled because the request budget was low",
	})
)

// ThrottleDelay is the pause applied to each fetch while the budget is in
// the warning band.
const ThrottleDelay = 1 * time.Second

// stateMaxAge bounds how long the in-process copy of the shared state is
// trusted before re-reading the durable tier.
const stateMaxAge = 5 * time.Second

// Gate tracks the upstream request budget and decides whether a fetch may
// go out. State is shared across processes through the durable tier.
type Gate struct {
	durable storage.Durable
	clock   clockwork.Clock
	logger  zerolog.Logger

	mu     sync.Mutex
	cached *State
}

// NewGate creates a request budget gate backed by the given durable tier.
func NewGate(durable storage.Durable, clock clockwork.Clock, logger zerolog.Logger) *Gate {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Gate{
		durable: durable,
		clock:   clock,
		logger:  logger.With().Str("component", "ratelimit").Logger(),
	}
}

// State returns the current budget state. The in-process copy is used when
// recent enough; otherwise the shared copy is read from the durable tier.
// With no observed state, or past the window reset, a full default budget
// is assumed.
func (g *Gate) State(ctx context.Context) (*State, error) {
	now := g.clock.Now()

	g.mu.Lock()
	cached := g.cached
	g.mu.Unlock()

	if cached != nil && !cached.IsStale(now, stateMaxAge) {
		if cached.Expired(now) {
			return defaultState(now), nil
		}
		return cached, nil
	}

	blob, err := g.durable.Get(ctx, StateKey)
	if err == storage.ErrNotFound {
		return defaultState(now), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load rate limit state: %w", err)
	}

	var state State
	if err := json.Unmarshal(blob, &state); err != nil {
		return nil, fmt.Errorf("decode rate limit state: %w", err)
	}
	state.UpdateHealth()

	g.mu.Lock()
	g.cached = &state
	g.mu.Unlock()

	if state.Expired(now) {
		return defaultState(now), nil
	}
	return &state, nil
}

// Observe parses the rate limit headers of an upstream response and
// publishes the new state. Responses without the headers are ignored.
func (g *Gate) Observe(ctx context.Context, headers http.Header) error {
	remainStr := headers.Get("X-RateLimit-Remaining")
	if remainStr == "" {
		return nil
	}

	remaining, err := strconv.Atoi(remainStr)
	if err != nil {
		return fmt.Errorf("parse X-RateLimit-Remaining header: %w", err)
	}

	resetStr := headers.Get("X-RateLimit-Reset")
	if resetStr == "" {
		return fmt.Errorf("X-RateLimit-Reset header missing")
	}

	resetSeconds, err := strconv.Atoi(resetStr)
	if err != nil {
		return fmt.Errorf("parse X-RateLimit-Reset header: %w", err)
	}

	now := g.clock.Now()
	state := &State{
		Remaining:  remaining,
		ResetAt:    now.Add(time.Duration(resetSeconds) * time.Second),
		LastUpdate: now,
	}
	state.UpdateHealth()

	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode rate limit state: %w", err)
	}
	// Keep the shared copy slightly past the window so late readers still
	// see the reset time.
	ttl := state.TimeUntilReset(now) + 10*time.Second
	if err := g.durable.Set(ctx, StateKey, blob, ttl); err != nil {
		return fmt.Errorf("store rate limit state: %w", err)
	}

	g.mu.Lock()
	g.cached = state
	g.mu.Unlock()

	budgetRemaining.Set(float64(remaining))

	switch {
	case state.NeedsBlock():
		g.logger.Error().
			Int("remaining", remaining).
			Time("reset_at", state.ResetAt).
			Msg("Request budget critical - fetches will be blocked")
	case state.NeedsThrottle():
		g.logger.Warn().
			Int("remaining", remaining).
			Time("reset_at", state.ResetAt).
			Msg("Request budget low - fetches will be throttled")
	default:
		g.logger.Debug().
			Int("remaining", remaining).
			Time("reset_at", state.ResetAt).
			Msg("Request budget updated")
	}

	return nil
}

// Allow reports whether a fetch may go out. In the critical band it returns
// false; in the warning band it sleeps ThrottleDelay before returning true.
func (g *Gate) Allow(ctx context.Context) (bool, error) {
	state, err := g.State(ctx)
	if err != nil {
		return false, err
	}

	if state.NeedsBlock() {
		g.logger.Error().
			Int("remaining", state.Remaining).
			Dur("wait", state.TimeUntilReset(g.clock.Now())).
			Msg("Request budget critical - blocking fetch")
		rateLimitBlocksTotal.Inc()
		return false, nil
	}

	if state.NeedsThrottle() {
		g.logger.Warn().
			Int("remaining", state.Remaining).
			Msg("Request budget low - throttling fetch")
		rateLimitThrottlesTotal.Inc()
		select {
		case <-g.clock.After(ThrottleDelay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	return true, nil
}
