package store

import (
	"testing"
	"time"
)

func TestEntry_Lifecycle(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	entry := &Entry{
		CreatedAt: base,
		ExpiresAt: base.Add(time.Second),
		StaleAt:   base.Add(1500 * time.Millisecond),
	}

	tests := []struct {
		name     string
		at       time.Time
		servable bool
		fresh    Freshness
	}{
		{"fresh", base.Add(500 * time.Millisecond), true, Fresh},
		{"at expiry boundary", base.Add(time.Second), true, Stale},
		{"stale window", base.Add(1200 * time.Millisecond), true, Stale},
		{"at stale boundary", base.Add(1500 * time.Millisecond), false, Stale},
		{"past stale window", base.Add(1600 * time.Millisecond), false, Stale},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := entry.IsServable(tt.at); got != tt.servable {
				t.Errorf("IsServable = %v, want %v", got, tt.servable)
			}
			if entry.IsServable(tt.at) {
				if got := entry.FreshnessAt(tt.at); got != tt.fresh {
					t.Errorf("FreshnessAt = %v, want %v", got, tt.fresh)
				}
			}
		})
	}
}

func TestEntry_NoStalePolicy(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	entry := &Entry{
		CreatedAt: base,
		ExpiresAt: base.Add(time.Second),
	}

	if !entry.IsServable(base.Add(999 * time.Millisecond)) {
		t.Error("entry should be servable before expiry")
	}
	if entry.IsServable(base.Add(time.Second)) {
		t.Error("entry should be expired once it has lived exactly its TTL")
	}
	if entry.IsServable(base.Add(1100 * time.Millisecond)) {
		t.Error("entry without stale policy should die at expiry")
	}
}

func TestEntry_RemainingLifetime(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	withStale := &Entry{
		ExpiresAt: base.Add(time.Second),
		StaleAt:   base.Add(1500 * time.Millisecond),
	}
	if got := withStale.remainingLifetime(base); got != 1500*time.Millisecond {
		t.Errorf("remainingLifetime = %v, want 1.5s", got)
	}

	withoutStale := &Entry{ExpiresAt: base.Add(time.Second)}
	if got := withoutStale.remainingLifetime(base); got != time.Second {
		t.Errorf("remainingLifetime = %v, want 1s", got)
	}
}
