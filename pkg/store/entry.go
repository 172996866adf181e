// Package store implements the two-tier cache store: a bounded in-memory
// LRU tier backed by a durable blob store, with per-entry TTL and
// stale-while-revalidate metadata.
package store

import (
	"time"
)

// Freshness describes the state of a served cache entry.
type Freshness int

const (
	// Fresh means the entry is within its TTL.
	Fresh Freshness = iota

	// Stale means the entry is past its TTL but within its stale window
	// and may be served while a background refresh runs.
	Stale
)

func (f Freshness) String() string {
	if f == Stale {
		return "stale"
	}
	return "fresh"
}

// Entry is a cached payload with its lifecycle metadata. The same struct
// is held in the memory tier and JSON-serialized into the durable tier.
type Entry struct {
	Key string `json:"key"`

	// Value is the payload, gzip-compressed when Compressed is set.
	Value      []byte `json:"value"`
	Compressed bool   `json:"compressed,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`

	// StaleAt bounds the stale-while-revalidate window. Zero when the
	// entry has no stale policy.
	StaleAt time.Time `json:"stale_at,omitempty"`

	// Size is the stored payload size in bytes (after compression).
	Size int `json:"size"`
}

// IsExpired reports whether the entry is past its TTL at now. The boundary
// is inclusive: an entry that has lived exactly its TTL is expired.
func (e *Entry) IsExpired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// IsServable reports whether the entry may still be returned to a reader:
// either fresh, or expired but inside its stale window.
func (e *Entry) IsServable(now time.Time) bool {
	if !e.IsExpired(now) {
		return true
	}
	return !e.StaleAt.IsZero() && now.Before(e.StaleAt)
}

// FreshnessAt classifies a servable entry at now.
func (e *Entry) FreshnessAt(now time.Time) Freshness {
	if e.IsExpired(now) {
		return Stale
	}
	return Fresh
}

// remainingLifetime returns how long the entry stays servable from now.
// Used as the durable-tier TTL so the engine below drops it on its own.
func (e *Entry) remainingLifetime(now time.Time) time.Duration {
	end := e.ExpiresAt
	if !e.StaleAt.IsZero() {
		end = e.StaleAt
	}
	return end.Sub(now)
}
