package storage

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type memItem struct {
	blob      []byte
	expiresAt time.Time // zero means no expiry
}

// MemStore is an in-memory Durable implementation. It backs tests and the
// degraded mode used when Redis is unreachable at startup.
type MemStore struct {
	mu    sync.RWMutex
	items map[string]memItem
	clock clockwork.Clock

	// FailSets makes every Set return an error. Tests use it to simulate
	// quota-exceeded conditions in the durable tier.
	FailSets bool
}

// NewMemStore creates an empty in-memory store using the real clock.
func NewMemStore() *MemStore {
	return NewMemStoreWithClock(clockwork.NewRealClock())
}

// NewMemStoreWithClock creates an in-memory store on the given clock so
// tests can advance expiry deterministically.
func NewMemStoreWithClock(clock clockwork.Clock) *MemStore {
	return &MemStore{
		items: make(map[string]memItem),
		clock: clock,
	}
}

// Get returns the blob stored under key, or ErrNotFound.
func (s *MemStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	item, ok := s.items[key]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if !item.expiresAt.IsZero() && s.clock.Now().After(item.expiresAt) {
		s.mu.Lock()
		delete(s.items, key)
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	return item.blob, nil
}

// Set stores a blob under key with the given TTL.
func (s *MemStore) Set(_ context.Context, key string, blob []byte, ttl time.Duration) error {
	if s.FailSets {
		return &QuotaError{Key: key}
	}

	item := memItem{blob: blob}
	if ttl > 0 {
		item.expiresAt = s.clock.Now().Add(ttl)
	}

	s.mu.Lock()
	s.items[key] = item
	s.mu.Unlock()
	return nil
}

// Delete removes a key.
func (s *MemStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

// KeysWithPrefix returns all non-expired keys starting with prefix.
func (s *MemStore) KeysWithPrefix(_ context.Context, prefix string) ([]string, error) {
	now := s.clock.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for key, item := range s.items {
		if !item.expiresAt.IsZero() && now.After(item.expiresAt) {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Len returns the number of stored items, expired or not.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// QuotaError reports a rejected durable write.
type QuotaError struct {
	Key string
}

func (e *QuotaError) Error() string {
	return "storage quota exceeded for key " + e.Key
}
