package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/coder123855/frende-cache/pkg/analytics"
	"github.com/coder123855/frende-cache/pkg/cachekey"
	"github.com/coder123855/frende-cache/pkg/invalidation"
	"github.com/coder123855/frende-cache/pkg/storage"
	"github.com/coder123855/frende-cache/pkg/store"
	"github.com/coder123855/frende-cache/pkg/strategy"
)

type fakeFetcher struct {
	mu         sync.Mutex
	responses  map[string][]byte
	errs       map[string]error
	fetchCalls map[string]int
	sendCalls  map[string]int

	// gate, when non-nil, blocks Fetch until the channel is closed.
	gate chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		responses:  make(map[string][]byte),
		errs:       make(map[string]error),
		fetchCalls: make(map[string]int),
		sendCalls:  make(map[string]int),
	}
}

func (f *fakeFetcher) Fetch(_ context.Context, path string, _ map[string]string) ([]byte, error) {
	f.mu.Lock()
	f.fetchCalls[path]++
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[path]; ok {
		return nil, err
	}
	if resp, ok := f.responses[path]; ok {
		return resp, nil
	}
	return []byte(`{}`), nil
}

func (f *fakeFetcher) Send(_ context.Context, method, path string, _ []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls[method+" "+path]++
	if err, ok := f.errs[path]; ok {
		return nil, err
	}
	return []byte(`{"ok":true}`), nil
}

func (f *fakeFetcher) fetchCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls[path]
}

func testRules() []strategy.Rule {
	return []strategy.Rule{
		{
			DataType:             "tasks",
			KeyPattern:           "/api/tasks",
			TTL:                  time.Minute,
			InvalidateOn:         []string{"POST", "PUT", "DELETE"},
			StaleWhileRevalidate: true,
			StaleTTL:             30 * time.Second,
		},
		{
			DataType:     "coins",
			KeyPattern:   "/api/coins",
			TTL:          15 * time.Second,
			InvalidateOn: []string{"POST"},
			NetworkFirst: true,
		},
		{
			DataType:   "profile",
			KeyPattern: "/api/user/profile",
			TTL:        10 * time.Minute,
			Compress:   true,
		},
	}
}

func newTestAccess(t *testing.T) (*Access, *fakeFetcher, *store.Store, *clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClock()
	st, err := store.New(store.Config{
		Durable: storage.NewMemStoreWithClock(clock),
		Clock:   clock,
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}

	registry := strategy.NewRegistry(testRules())
	invalidator := invalidation.New(invalidation.Config{
		Store:    st,
		Registry: registry,
		Clock:    clock,
		Logger:   zerolog.Nop(),
	})

	fetcher := newFakeFetcher()
	access, err := New(Config{
		Store:       st,
		Registry:    registry,
		Invalidator: invalidator,
		Fetcher:     fetcher,
		Clock:       clock,
		Logger:      zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return access, fetcher, st, clock
}

func TestAccess_MissFetchesAndCaches(t *testing.T) {
	access, fetcher, st, _ := newTestAccess(t)
	ctx := context.Background()

	fetcher.responses["/api/tasks"] = []byte(`[{"id":1}]`)

	value, err := access.Get(ctx, "/api/tasks", GetOptions{})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(value) != `[{"id":1}]` {
		t.Fatalf("value = %q", value)
	}

	key := cachekey.Key{URL: "/api/tasks"}.String()
	if _, freshness, err := st.Get(ctx, key); err != nil || freshness != store.Fresh {
		t.Fatalf("cache after miss: freshness=%v err=%v", freshness, err)
	}
}

func TestAccess_FreshHitSkipsFetch(t *testing.T) {
	access, fetcher, _, _ := newTestAccess(t)
	ctx := context.Background()

	if _, err := access.Get(ctx, "/api/tasks", GetOptions{}); err != nil {
		t.Fatalf("first Get: %v", err)
	}
	if _, err := access.Get(ctx, "/api/tasks", GetOptions{}); err != nil {
		t.Fatalf("second Get: %v", err)
	}

	if got := fetcher.fetchCount("/api/tasks"); got != 1 {
		t.Fatalf("fetch calls = %d, want 1", got)
	}
}

func TestAccess_StaleHitServesStaleAndRefreshesOnce(t *testing.T) {
	access, fetcher, _, clock := newTestAccess(t)
	ctx := context.Background()

	fetcher.responses["/api/tasks"] = []byte(`old`)
	if _, err := access.Get(ctx, "/api/tasks", GetOptions{}); err != nil {
		t.Fatalf("warmup Get: %v", err)
	}

	// Enter the stale window and hold the refresh fetch open so repeated
	// stale reads pile up behind a single in-flight refresh.
	clock.Advance(70 * time.Second)
	fetcher.mu.Lock()
	fetcher.responses["/api/tasks"] = []byte(`new`)
	fetcher.gate = make(chan struct{})
	gate := fetcher.gate
	fetcher.mu.Unlock()

	for i := 0; i < 5; i++ {
		value, err := access.Get(ctx, "/api/tasks", GetOptions{})
		if err != nil {
			t.Fatalf("stale Get %d: %v", i, err)
		}
		if string(value) != "old" {
			t.Fatalf("stale Get %d = %q, want stale payload", i, value)
		}
	}

	close(gate)
	access.Wait()

	if got := fetcher.fetchCount("/api/tasks"); got != 2 {
		t.Fatalf("fetch calls = %d, want 2 (warmup + one refresh)", got)
	}

	value, err := access.Get(ctx, "/api/tasks", GetOptions{})
	if err != nil {
		t.Fatalf("Get after refresh: %v", err)
	}
	if string(value) != "new" {
		t.Fatalf("value after refresh = %q, want %q", value, "new")
	}
}

func TestAccess_CacheOnlyMiss(t *testing.T) {
	access, fetcher, _, _ := newTestAccess(t)

	_, err := access.Get(context.Background(), "/api/tasks", GetOptions{CacheOnly: true})
	if !errors.Is(err, ErrCacheOnly) {
		t.Fatalf("err = %v, want ErrCacheOnly", err)
	}
	if got := fetcher.fetchCount("/api/tasks"); got != 0 {
		t.Fatalf("fetch calls = %d, want 0", got)
	}
}

func TestAccess_CacheOnlyHit(t *testing.T) {
	access, _, st, _ := newTestAccess(t)
	ctx := context.Background()

	key := cachekey.Key{URL: "/api/tasks"}.String()
	if err := st.Set(ctx, key, []byte(`cached`), store.SetOptions{TTL: time.Minute}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	value, err := access.Get(ctx, "/api/tasks", GetOptions{CacheOnly: true})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(value) != "cached" {
		t.Fatalf("value = %q", value)
	}
}

func TestAccess_NetworkFirstPrefersUpstream(t *testing.T) {
	access, fetcher, st, _ := newTestAccess(t)
	ctx := context.Background()

	key := cachekey.Key{URL: "/api/coins/balance"}.String()
	if err := st.Set(ctx, key, []byte(`stale balance`), store.SetOptions{TTL: time.Minute}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	fetcher.responses["/api/coins/balance"] = []byte(`{"coins":120}`)
	value, err := access.Get(ctx, "/api/coins/balance", GetOptions{})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(value) != `{"coins":120}` {
		t.Fatalf("value = %q, want upstream payload", value)
	}
	if got := fetcher.fetchCount("/api/coins/balance"); got != 1 {
		t.Fatalf("fetch calls = %d, want 1", got)
	}
}

func TestAccess_NetworkFirstFallsBackToCache(t *testing.T) {
	access, fetcher, st, _ := newTestAccess(t)
	ctx := context.Background()

	key := cachekey.Key{URL: "/api/coins/balance"}.String()
	if err := st.Set(ctx, key, []byte(`{"coins":80}`), store.SetOptions{TTL: time.Minute}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	fetcher.errs["/api/coins/balance"] = &APIError{ErrorClass: ErrorClassNetwork, Message: "offline"}
	value, err := access.Get(ctx, "/api/coins/balance", GetOptions{})
	if err != nil {
		t.Fatalf("Get should fall back to cache, got %v", err)
	}
	if string(value) != `{"coins":80}` {
		t.Fatalf("value = %q, want cached payload", value)
	}
}

func TestAccess_NetworkFirstNoFallbackPropagatesError(t *testing.T) {
	access, fetcher, _, _ := newTestAccess(t)

	fetcher.errs["/api/coins/balance"] = &APIError{ErrorClass: ErrorClassNetwork, Message: "offline"}
	_, err := access.Get(context.Background(), "/api/coins/balance", GetOptions{})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
}

func TestAccess_BypassRefetches(t *testing.T) {
	access, fetcher, _, _ := newTestAccess(t)
	ctx := context.Background()

	if _, err := access.Get(ctx, "/api/tasks", GetOptions{}); err != nil {
		t.Fatalf("first Get: %v", err)
	}
	if _, err := access.Get(ctx, "/api/tasks", GetOptions{Bypass: true}); err != nil {
		t.Fatalf("bypass Get: %v", err)
	}

	if got := fetcher.fetchCount("/api/tasks"); got != 2 {
		t.Fatalf("fetch calls = %d, want 2", got)
	}
}

func TestAccess_MutationInvalidatesBeforeReturn(t *testing.T) {
	access, fetcher, _, _ := newTestAccess(t)
	ctx := context.Background()

	fetcher.responses["/api/tasks"] = []byte(`before`)
	if _, err := access.Get(ctx, "/api/tasks", GetOptions{}); err != nil {
		t.Fatalf("warmup Get: %v", err)
	}

	if _, err := access.Post(ctx, "/api/tasks/42/complete", []byte(`{}`)); err != nil {
		t.Fatalf("Post: %v", err)
	}

	// The next read must not observe the pre-mutation payload.
	fetcher.mu.Lock()
	fetcher.responses["/api/tasks"] = []byte(`after`)
	fetcher.mu.Unlock()

	value, err := access.Get(ctx, "/api/tasks", GetOptions{})
	if err != nil {
		t.Fatalf("Get after mutation: %v", err)
	}
	if string(value) != "after" {
		t.Fatalf("value = %q, want post-mutation payload", value)
	}
}

func TestAccess_FailedMutationSkipsInvalidation(t *testing.T) {
	access, fetcher, _, _ := newTestAccess(t)
	ctx := context.Background()

	fetcher.responses["/api/tasks"] = []byte(`cached`)
	if _, err := access.Get(ctx, "/api/tasks", GetOptions{}); err != nil {
		t.Fatalf("warmup Get: %v", err)
	}

	fetcher.errs["/api/tasks/42/complete"] = &APIError{StatusCode: 500, ErrorClass: ErrorClassServer, Message: "boom"}
	if _, err := access.Post(ctx, "/api/tasks/42/complete", []byte(`{}`)); err == nil {
		t.Fatal("Post should propagate the upstream error")
	}

	// The cached list survives a failed mutation.
	value, err := access.Get(ctx, "/api/tasks", GetOptions{})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(value) != "cached" {
		t.Fatalf("value = %q, want cached payload", value)
	}
	if got := fetcher.fetchCount("/api/tasks"); got != 1 {
		t.Fatalf("fetch calls = %d, want 1", got)
	}
}

func TestAccess_ClearByPattern(t *testing.T) {
	access, _, st, _ := newTestAccess(t)
	ctx := context.Background()

	for _, url := range []string{"/api/tasks", "/api/tasks/1", "/api/matches"} {
		key := cachekey.Key{URL: url}.String()
		if err := st.Set(ctx, key, []byte(`x`), store.SetOptions{TTL: time.Minute}); err != nil {
			t.Fatalf("Set %s: %v", url, err)
		}
	}

	n, err := access.ClearByPattern(ctx, "/api/tasks")
	if err != nil {
		t.Fatalf("ClearByPattern: %v", err)
	}
	if n != 2 {
		t.Fatalf("cleared = %d, want 2", n)
	}

	matchKey := cachekey.Key{URL: "/api/matches"}.String()
	if _, _, err := st.Get(ctx, matchKey); err != nil {
		t.Fatalf("unrelated entry removed: %v", err)
	}
}

func TestAccess_ClearByType(t *testing.T) {
	access, _, st, _ := newTestAccess(t)
	ctx := context.Background()

	taskKey := cachekey.Key{URL: "/api/tasks/7"}.String()
	profileKey := cachekey.Key{URL: "/api/user/profile"}.String()
	for _, key := range []string{taskKey, profileKey} {
		if err := st.Set(ctx, key, []byte(`x`), store.SetOptions{TTL: time.Minute}); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	n, err := access.ClearByType(ctx, "tasks")
	if err != nil {
		t.Fatalf("ClearByType: %v", err)
	}
	if n != 1 {
		t.Fatalf("cleared = %d, want 1", n)
	}
	if _, _, err := st.Get(ctx, profileKey); err != nil {
		t.Fatalf("profile entry removed: %v", err)
	}
}

func TestAccess_ClearAll(t *testing.T) {
	access, _, st, _ := newTestAccess(t)
	ctx := context.Background()

	for _, url := range []string{"/api/tasks", "/api/user/profile"} {
		key := cachekey.Key{URL: url}.String()
		if err := st.Set(ctx, key, []byte(`x`), store.SetOptions{TTL: time.Minute}); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	n, err := access.ClearAll(ctx)
	if err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	if n != 2 {
		t.Fatalf("cleared = %d, want 2", n)
	}
}

func TestAccess_ExportAnalytics(t *testing.T) {
	clock := clockwork.NewFakeClock()
	st, err := store.New(store.Config{
		Durable: storage.NewMemStoreWithClock(clock),
		Clock:   clock,
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}

	collector := analytics.NewCollector(analytics.CollectorConfig{
		Clock:       clock,
		Logger:      zerolog.Nop(),
		MemoryUsage: st.MemoryUsage,
	})
	registry := strategy.NewRegistry(testRules())
	access, err := New(Config{
		Store:       st,
		Registry:    registry,
		Invalidator: invalidation.New(invalidation.Config{Store: st, Registry: registry, Clock: clock, Logger: zerolog.Nop()}),
		Fetcher:     newFakeFetcher(),
		Collector:   collector,
		Clock:       clock,
		Logger:      zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	collector.Record(analytics.Sample{Op: analytics.OpHit, Duration: 2 * time.Millisecond})
	collector.Record(analytics.Sample{Op: analytics.OpMiss, Duration: 40 * time.Millisecond})

	data, err := access.ExportAnalytics()
	if err != nil {
		t.Fatalf("ExportAnalytics: %v", err)
	}

	var export analytics.Export
	if err := json.Unmarshal(data, &export); err != nil {
		t.Fatalf("unmarshal export: %v", err)
	}
	if export.Summary.Requests != 2 {
		t.Fatalf("Requests = %d, want 2", export.Summary.Requests)
	}
	if len(export.Hourly) != 24 {
		t.Fatalf("len(Hourly) = %d, want 24", len(export.Hourly))
	}
}
