package store

import (
	"container/list"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/coder123855/frende-cache/pkg/analytics"
	"github.com/coder123855/frende-cache/pkg/cachekey"
	"github.com/coder123855/frende-cache/pkg/storage"
)

// ErrCacheMiss indicates the requested key is absent or no longer servable.
var ErrCacheMiss = errors.New("cache miss")

// Defaults for the memory and durable tier bounds.
const (
	DefaultMaxEntries     = 500
	DefaultMaxBytes       = 10 << 20 // 10 MiB
	DefaultDurableMaxKeys = 2000

	// DefaultCleanupInterval is the cadence of the durable-tier cleanup
	// tick started by StartDurableCleanup.
	DefaultCleanupInterval = 5 * time.Minute

	// evictionLowWater is the fill ratio eviction drains down to once a
	// cap is exceeded, so a single oversized Set doesn't trigger an
	// eviction on every subsequent write.
	evictionLowWater = 0.9
)

// Config holds store construction options. Zero values fall back to the
// defaults above.
type Config struct {
	// Durable is the persistent tier. Required.
	Durable storage.Durable

	// MaxEntries and MaxBytes bound the memory tier.
	MaxEntries int
	MaxBytes   int64

	// DurableMaxKeys caps the durable tier, enforced opportunistically by
	// CleanupDurable.
	DurableMaxKeys int

	// KeyPrefix scopes Clear and CleanupDurable to this store's keys.
	KeyPrefix string

	Clock    clockwork.Clock
	Logger   zerolog.Logger
	Recorder analytics.Recorder
}

// SetOptions control a single Set call. They are derived from the
// resolved strategy rule by the caller.
type SetOptions struct {
	// TTL is the freshness window. Must be positive.
	TTL time.Duration

	// StaleTTL extends servability past the TTL for stale-while-revalidate
	// strategies. Zero disables the stale window.
	StaleTTL time.Duration

	// Compress gzips the payload before storage.
	Compress bool
}

// Store is the two-tier cache store. The memory tier is authoritative for
// reads; durable hits are promoted back into memory.
type Store struct {
	durable        storage.Durable
	maxEntries     int
	maxBytes       int64
	durableMaxKeys int
	keyPrefix      string
	clock          clockwork.Clock
	logger         zerolog.Logger
	recorder       analytics.Recorder

	mu       sync.Mutex
	items    map[string]*list.Element
	order    *list.List // front = most recently used
	memBytes int64

	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	deletes   atomic.Int64
	evictions atomic.Int64
	errors    atomic.Int64

	totalGetNanos atomic.Int64
	getOps        atomic.Int64
	totalSetNanos atomic.Int64
	setOps        atomic.Int64
}

// New creates a two-tier store.
func New(cfg Config) (*Store, error) {
	if cfg.Durable == nil {
		return nil, fmt.Errorf("durable tier is required")
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.DurableMaxKeys <= 0 {
		cfg.DurableMaxKeys = DefaultDurableMaxKeys
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = cachekey.Namespace + ":"
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	return &Store{
		durable:        cfg.Durable,
		maxEntries:     cfg.MaxEntries,
		maxBytes:       cfg.MaxBytes,
		durableMaxKeys: cfg.DurableMaxKeys,
		keyPrefix:      cfg.KeyPrefix,
		clock:          cfg.Clock,
		logger:         cfg.Logger,
		recorder:       cfg.Recorder,
		items:          make(map[string]*list.Element),
		order:          list.New(),
	}, nil
}

// Get returns the decoded payload for key and whether it is fresh or
// stale. Returns ErrCacheMiss when the key is absent or past its stale
// window. Every call emits exactly one operation sample.
func (s *Store) Get(ctx context.Context, key string) ([]byte, Freshness, error) {
	start := s.clock.Now()

	// Memory tier.
	s.mu.Lock()
	if elem, ok := s.items[key]; ok {
		entry := elem.Value.(*Entry)
		now := s.clock.Now()
		if entry.IsServable(now) {
			s.order.MoveToFront(elem)
			s.mu.Unlock()

			value, err := s.payload(entry)
			if err != nil {
				s.dropCorrupt(ctx, key, "get", err)
				return nil, Fresh, ErrCacheMiss
			}
			s.hitRecorded("memory", start)
			return value, entry.FreshnessAt(now), nil
		}
		// Past the stale window: the entry is dead in both tiers.
		s.removeLocked(elem)
		s.mu.Unlock()
		if err := s.durable.Delete(ctx, key); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("Failed to delete expired entry from durable tier")
		}
		s.missRecorded(start)
		return nil, Fresh, ErrCacheMiss
	}
	s.mu.Unlock()

	// Durable tier.
	blob, err := s.durable.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.missRecorded(start)
			return nil, Fresh, ErrCacheMiss
		}
		// Durable tier failure degrades to a miss, never an error for
		// the reader.
		s.logger.Warn().Err(err).Str("key", key).Msg("Durable tier get failed")
		s.errorRecorded("get")
		return nil, Fresh, ErrCacheMiss
	}

	var entry Entry
	if err := json.Unmarshal(blob, &entry); err != nil {
		s.dropCorrupt(ctx, key, "get", err)
		return nil, Fresh, ErrCacheMiss
	}

	now := s.clock.Now()
	if !entry.IsServable(now) {
		if err := s.durable.Delete(ctx, key); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("Failed to delete expired entry from durable tier")
		}
		s.missRecorded(start)
		return nil, Fresh, ErrCacheMiss
	}

	value, err := s.payload(&entry)
	if err != nil {
		s.dropCorrupt(ctx, key, "get", err)
		return nil, Fresh, ErrCacheMiss
	}

	// Promote into the memory tier.
	s.mu.Lock()
	s.insertLocked(&entry)
	s.mu.Unlock()

	s.hitRecorded("durable", start)
	return value, entry.FreshnessAt(now), nil
}

// Peek reports whether a servable entry exists for key and its freshness,
// without promoting, decoding, or emitting a sample. Used by the warming
// service to skip already-warm endpoints.
func (s *Store) Peek(ctx context.Context, key string) (Freshness, bool) {
	now := s.clock.Now()

	s.mu.Lock()
	if elem, ok := s.items[key]; ok {
		entry := elem.Value.(*Entry)
		s.mu.Unlock()
		if entry.IsServable(now) {
			return entry.FreshnessAt(now), true
		}
		return Fresh, false
	}
	s.mu.Unlock()

	blob, err := s.durable.Get(ctx, key)
	if err != nil {
		return Fresh, false
	}
	var entry Entry
	if err := json.Unmarshal(blob, &entry); err != nil {
		return Fresh, false
	}
	if !entry.IsServable(now) {
		return Fresh, false
	}
	return entry.FreshnessAt(now), true
}

// Set stores a payload under key in both tiers. A durable-tier failure is
// logged and counted but the memory copy is kept, so Set only returns an
// error for invalid arguments.
func (s *Store) Set(ctx context.Context, key string, value []byte, opts SetOptions) error {
	if opts.TTL <= 0 {
		return fmt.Errorf("ttl must be positive, got %v", opts.TTL)
	}
	start := s.clock.Now()

	stored, compressed := value, false
	if opts.Compress {
		var err error
		stored, compressed, err = compressPayload(value)
		if err != nil {
			// Store uncompressed rather than failing the write.
			s.logger.Warn().Err(err).Str("key", key).Msg("Compression failed, storing raw payload")
			stored, compressed = value, false
		}
	}

	entry := &Entry{
		Key:        key,
		Value:      stored,
		Compressed: compressed,
		CreatedAt:  start,
		ExpiresAt:  start.Add(opts.TTL),
		Size:       len(stored),
	}
	if opts.StaleTTL > 0 {
		entry.StaleAt = entry.ExpiresAt.Add(opts.StaleTTL)
	}

	s.mu.Lock()
	s.insertLocked(entry)
	s.mu.Unlock()

	blob, err := json.Marshal(entry)
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to marshal cache entry")
		s.errorRecorded("set")
		return nil
	}
	if err := s.durable.Set(ctx, key, blob, entry.remainingLifetime(start)); err != nil {
		// Quota or IO failure: keep the memory-only copy.
		s.logger.Warn().Err(err).Str("key", key).Msg("Durable tier set failed, entry kept memory-only")
		s.errorRecorded("set")
	}

	duration := s.clock.Since(start)
	s.sets.Add(1)
	s.totalSetNanos.Add(duration.Nanoseconds())
	s.setOps.Add(1)
	s.record(analytics.Sample{Op: analytics.OpSet, Duration: duration, Bytes: entry.Size})
	return nil
}

// Delete removes key from both tiers.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	if elem, ok := s.items[key]; ok {
		s.removeLocked(elem)
	}
	s.mu.Unlock()

	if err := s.durable.Delete(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Durable tier delete failed")
		s.errorRecorded("delete")
		return err
	}

	s.deletes.Add(1)
	s.record(analytics.Sample{Op: analytics.OpDelete})
	return nil
}

// InvalidatePattern removes every entry whose key starts with prefix from
// both tiers. Idempotent: invalidating an absent prefix removes nothing
// and succeeds. Returns the number of entries removed.
func (s *Store) InvalidatePattern(ctx context.Context, prefix string) (int, error) {
	removed := 0

	s.mu.Lock()
	for key, elem := range s.items {
		if strings.HasPrefix(key, prefix) {
			s.removeLocked(elem)
			removed++
		}
	}
	s.mu.Unlock()

	keys, err := s.durable.KeysWithPrefix(ctx, prefix)
	if err != nil {
		s.logger.Warn().Err(err).Str("prefix", prefix).Msg("Durable tier prefix scan failed")
		s.errorRecorded("invalidate")
		return removed, fmt.Errorf("durable keys with prefix %q: %w", prefix, err)
	}
	for _, key := range keys {
		if err := s.durable.Delete(ctx, key); err != nil {
			// One failed key must not abort the sweep.
			s.logger.Warn().Err(err).Str("key", key).Msg("Durable tier delete failed during invalidation")
			s.errorRecorded("invalidate")
			continue
		}
		removed++
	}

	cacheInvalidated.Add(float64(removed))
	s.deletes.Add(1)
	s.record(analytics.Sample{Op: analytics.OpDelete})
	return removed, nil
}

// Clear removes every entry owned by this store from both tiers.
func (s *Store) Clear(ctx context.Context) (int, error) {
	return s.InvalidatePattern(ctx, s.keyPrefix)
}

// CleanupDurable prunes the durable tier: expired entries are removed,
// and when the live count exceeds the configured cap, the oldest entries
// are removed until the tier is back under it. Decoupled from memory
// eviction; intended to run on a background tick.
func (s *Store) CleanupDurable(ctx context.Context) (int, error) {
	keys, err := s.durable.KeysWithPrefix(ctx, s.keyPrefix)
	if err != nil {
		s.errorRecorded("cleanup")
		return 0, fmt.Errorf("durable keys with prefix %q: %w", s.keyPrefix, err)
	}

	now := s.clock.Now()
	removed := 0

	type liveKey struct {
		key       string
		createdAt time.Time
	}
	var live []liveKey

	for _, key := range keys {
		blob, err := s.durable.Get(ctx, key)
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(blob, &entry); err != nil || !entry.IsServable(now) {
			if err := s.durable.Delete(ctx, key); err != nil {
				s.logger.Warn().Err(err).Str("key", key).Msg("Durable cleanup delete failed")
				continue
			}
			removed++
			continue
		}
		live = append(live, liveKey{key: key, createdAt: entry.CreatedAt})
	}

	if len(live) > s.durableMaxKeys {
		sort.Slice(live, func(i, j int) bool {
			return live[i].createdAt.Before(live[j].createdAt)
		})
		for _, lk := range live[:len(live)-s.durableMaxKeys] {
			if err := s.durable.Delete(ctx, lk.key); err != nil {
				s.logger.Warn().Err(err).Str("key", lk.key).Msg("Durable cleanup delete failed")
				continue
			}
			removed++
		}
	}

	if removed > 0 {
		s.logger.Debug().Int("removed", removed).Msg("Durable tier cleanup")
	}
	return removed, nil
}

// StartDurableCleanup runs CleanupDurable on a periodic tick until ctx is
// cancelled. This is what enforces the durable-tier key cap at runtime.
func (s *Store) StartDurableCleanup(ctx context.Context) {
	go func() {
		ticker := s.clock.NewTicker(DefaultCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				if _, err := s.CleanupDurable(ctx); err != nil {
					s.logger.Warn().Err(err).Msg("Durable tier cleanup failed")
				}
			}
		}
	}()
}

// Stats is a snapshot of store counters and memory usage.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Sets      int64 `json:"sets"`
	Deletes   int64 `json:"deletes"`
	Evictions int64 `json:"evictions"`
	Errors    int64 `json:"errors"`

	Entries        int   `json:"entries"`
	MemoryBytes    int64 `json:"memory_bytes"`
	MemoryCapBytes int64 `json:"memory_cap_bytes"`
	MaxEntries     int   `json:"max_entries"`

	AverageGetTimeMs float64 `json:"average_get_time_ms"`
	AverageSetTimeMs float64 `json:"average_set_time_ms"`
}

// GetStats returns current counters and memory usage.
func (s *Store) GetStats() Stats {
	s.mu.Lock()
	entries := len(s.items)
	memBytes := s.memBytes
	s.mu.Unlock()

	return Stats{
		Hits:             s.hits.Load(),
		Misses:           s.misses.Load(),
		Sets:             s.sets.Load(),
		Deletes:          s.deletes.Load(),
		Evictions:        s.evictions.Load(),
		Errors:           s.errors.Load(),
		Entries:          entries,
		MemoryBytes:      memBytes,
		MemoryCapBytes:   s.maxBytes,
		MaxEntries:       s.maxEntries,
		AverageGetTimeMs: nanosAverage(s.totalGetNanos.Load(), s.getOps.Load()),
		AverageSetTimeMs: nanosAverage(s.totalSetNanos.Load(), s.setOps.Load()),
	}
}

// MemoryUsage reports the memory tier's used and maximum bytes, in the
// shape the analytics collector consumes.
func (s *Store) MemoryUsage() (used, capacity int64) {
	s.mu.Lock()
	used = s.memBytes
	s.mu.Unlock()
	return used, s.maxBytes
}

// insertLocked adds or overwrites an entry in the memory tier and evicts
// down to the low-water marks when a cap is exceeded. Caller holds s.mu.
func (s *Store) insertLocked(entry *Entry) {
	if elem, ok := s.items[entry.Key]; ok {
		old := elem.Value.(*Entry)
		s.memBytes -= int64(old.Size)
		elem.Value = entry
		s.memBytes += int64(entry.Size)
		s.order.MoveToFront(elem)
	} else {
		elem := s.order.PushFront(entry)
		s.items[entry.Key] = elem
		s.memBytes += int64(entry.Size)
	}

	if len(s.items) > s.maxEntries || s.memBytes > s.maxBytes {
		s.evictLocked()
	}

	cacheMemoryBytes.Set(float64(s.memBytes))
	cacheMemoryEntries.Set(float64(len(s.items)))
}

// evictLocked drops least-recently-used entries until the memory tier is
// back under the low-water marks. Never touches the durable tier.
func (s *Store) evictLocked() {
	entryFloor := int(float64(s.maxEntries) * evictionLowWater)
	byteFloor := int64(float64(s.maxBytes) * evictionLowWater)

	for len(s.items) > entryFloor || s.memBytes > byteFloor {
		elem := s.order.Back()
		if elem == nil {
			return
		}
		s.removeLocked(elem)
		s.evictions.Add(1)
		cacheEvictions.Inc()
	}
}

// removeLocked removes an element from the memory tier. Caller holds s.mu.
func (s *Store) removeLocked(elem *list.Element) {
	entry := elem.Value.(*Entry)
	delete(s.items, entry.Key)
	s.order.Remove(elem)
	s.memBytes -= int64(entry.Size)

	cacheMemoryBytes.Set(float64(s.memBytes))
	cacheMemoryEntries.Set(float64(len(s.items)))
}

// payload decodes an entry's stored value.
func (s *Store) payload(entry *Entry) ([]byte, error) {
	if !entry.Compressed {
		return entry.Value, nil
	}
	return decompressPayload(entry.Value)
}

// dropCorrupt removes an undecodable entry from both tiers.
func (s *Store) dropCorrupt(ctx context.Context, key, operation string, err error) {
	s.logger.Error().Err(err).Str("key", key).Msg("Dropping corrupt cache entry")
	s.mu.Lock()
	if elem, ok := s.items[key]; ok {
		s.removeLocked(elem)
	}
	s.mu.Unlock()
	if err := s.durable.Delete(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Failed to delete corrupt entry from durable tier")
	}
	s.errorRecorded(operation)
}

func (s *Store) hitRecorded(tier string, start time.Time) {
	duration := s.clock.Since(start)
	s.hits.Add(1)
	s.totalGetNanos.Add(duration.Nanoseconds())
	s.getOps.Add(1)
	cacheHits.WithLabelValues(tier).Inc()
	s.record(analytics.Sample{Op: analytics.OpHit, Duration: duration})
}

func (s *Store) missRecorded(start time.Time) {
	duration := s.clock.Since(start)
	s.misses.Add(1)
	s.totalGetNanos.Add(duration.Nanoseconds())
	s.getOps.Add(1)
	cacheMisses.Inc()
	s.record(analytics.Sample{Op: analytics.OpMiss, Duration: duration})
}

func (s *Store) errorRecorded(operation string) {
	s.errors.Add(1)
	cacheErrors.WithLabelValues(operation).Inc()
	s.record(analytics.Sample{Op: analytics.OpError})
}

func (s *Store) record(sample analytics.Sample) {
	if s.recorder != nil {
		s.recorder.Record(sample)
	}
}

func nanosAverage(totalNanos, ops int64) float64 {
	if ops == 0 {
		return 0
	}
	return float64(totalNanos) / float64(ops) / float64(time.Millisecond)
}
