// Package ratelimit tracks the upstream API's request budget and gates
// outgoing fetches. It parses the X-RateLimit-Remaining and
// X-RateLimit-Reset response headers and shares the observed state through
// the durable tier, so every process behind the same Redis sees the same
// budget.
package ratelimit

import (
	"time"
)

// StateKey is the durable-tier key the shared budget state lives under.
const StateKey = "frende:ratelimit:state"

// Thresholds for gating decisions.
const (
	// BudgetCritical blocks all upstream fetches when the remaining budget
	// falls below this value. Cached reads keep working; only network
	// traffic stops.
	BudgetCritical = 5

	// BudgetWarning throttles fetches when the remaining budget falls
	// below this value.
	BudgetWarning = 20

	// BudgetHealthy indicates normal operation. At or above this value no
	// restrictions apply.
	BudgetHealthy = 50
)

// DefaultBudget is assumed when no state has been observed yet.
const DefaultBudget = 100

// State is the last observed request budget. Shared across instances via
// the durable tier.
type State struct {
	// Remaining is the number of requests left in the current window,
	// from the X-RateLimit-Remaining header.
	Remaining int `json:"remaining"`

	// ResetAt is when the budget window resets, derived from the
	// X-RateLimit-Reset header (seconds until reset).
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was last observed.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Remaining >= BudgetHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale reports whether the state is older than maxAge at now.
func (s *State) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.LastUpdate) > maxAge
}

// Expired reports whether the budget window has reset since the state was
// observed. An expired state carries no information; the budget is full
// again.
func (s *State) Expired(now time.Time) bool {
	return !now.Before(s.ResetAt)
}

// NeedsBlock reports whether fetches should be blocked outright.
func (s *State) NeedsBlock() bool {
	return s.Remaining < BudgetCritical
}

// NeedsThrottle reports whether fetches should be slowed down.
func (s *State) NeedsThrottle() bool {
	return s.Remaining < BudgetWarning && !s.NeedsBlock()
}

// TimeUntilReset returns the duration until the window resets at now, or 0
// when it has already passed.
func (s *State) TimeUntilReset(now time.Time) time.Duration {
	d := s.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// UpdateHealth recomputes IsHealthy from Remaining.
func (s *State) UpdateHealth() {
	s.IsHealthy = s.Remaining >= BudgetHealthy
}

func defaultState(now time.Time) *State {
	return &State{
		Remaining:  DefaultBudget,
		ResetAt:    now.Add(60 * time.Second),
		LastUpdate: now,
		IsHealthy:  true,
	}
}
