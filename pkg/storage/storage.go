// Package storage defines the durable-tier contract used by the cache
// store, together with a Redis implementation and an in-memory fallback.
//
// The durable tier is an opaque byte-blob store. The cache store never
// assumes anything about the engine behind it beyond this interface, and it
// treats every error as non-fatal: a failing durable tier degrades the
// cache to memory-only, it never breaks a read.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the requested key does not exist in the store.
var ErrNotFound = errors.New("storage: key not found")

// Durable is the contract the cache store requires of its persistent tier.
type Durable interface {
	// Get returns the blob stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a blob under key. A ttl of 0 means no expiry.
	Set(ctx context.Context, key string, blob []byte, ttl time.Duration) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// KeysWithPrefix returns all stored keys starting with prefix.
	KeysWithPrefix(ctx context.Context, prefix string) ([]string, error)
}
