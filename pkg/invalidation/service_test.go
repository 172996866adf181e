package invalidation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/coder123855/frende-cache/pkg/storage"
	"github.com/coder123855/frende-cache/pkg/store"
	"github.com/coder123855/frende-cache/pkg/strategy"
)

func newTestService(t *testing.T) (*Service, *store.Store, *clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClock()
	cacheStore, err := store.New(store.Config{
		Durable: storage.NewMemStoreWithClock(clock),
		Clock:   clock,
	})
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}

	service := New(Config{
		Store:    cacheStore,
		Registry: strategy.NewRegistry(strategy.FrendeRules()),
		Clock:    clock,
	})
	return service, cacheStore, clock
}

func seed(t *testing.T, cacheStore *store.Store, keys ...string) {
	t.Helper()
	ctx := context.Background()
	for _, key := range keys {
		if err := cacheStore.Set(ctx, key, []byte("v"), store.SetOptions{TTL: time.Hour}); err != nil {
			t.Fatalf("seed Set %s failed: %v", key, err)
		}
	}
}

func assertMiss(t *testing.T, cacheStore *store.Store, key string) {
	t.Helper()
	if _, _, err := cacheStore.Get(context.Background(), key); err != store.ErrCacheMiss {
		t.Errorf("Get(%s) = %v, want ErrCacheMiss", key, err)
	}
}

func assertHit(t *testing.T, cacheStore *store.Store, key string) {
	t.Helper()
	if _, _, err := cacheStore.Get(context.Background(), key); err != nil {
		t.Errorf("Get(%s) = %v, want hit", key, err)
	}
}

// TestService_TaskCompletion covers the canonical flow: completing a task
// invalidates the task itself and the task collection, and leaves
// unrelated match data untouched.
func TestService_TaskCompletion(t *testing.T) {
	service, cacheStore, _ := newTestService(t)

	seed(t, cacheStore,
		"frende:api/tasks/42",
		"frende:api/tasks",
		"frende:api/matches",
	)

	service.RecordMutation("POST", "/api/tasks/42/complete")
	service.Flush(context.Background())

	assertMiss(t, cacheStore, "frende:api/tasks/42")
	assertMiss(t, cacheStore, "frende:api/tasks")
	assertHit(t, cacheStore, "frende:api/matches")
}

func TestService_WindowCoalescesBurst(t *testing.T) {
	service, cacheStore, clock := newTestService(t)

	seed(t, cacheStore, "frende:api/tasks/1", "frende:api/tasks/2")

	// A burst of writes within one window accumulates into a single batch
	// that flushes when the window closes.
	service.RecordMutation("POST", "/api/tasks/1/complete")
	service.RecordMutation("POST", "/api/tasks/2/complete")
	service.RecordMutation("POST", "/api/tasks/1/complete") // pending-set dup

	// Nothing flushed while the window is open.
	assertHit(t, cacheStore, "frende:api/tasks/1")

	clock.Advance(DefaultWindow)

	assertMiss(t, cacheStore, "frende:api/tasks/1")
	assertMiss(t, cacheStore, "frende:api/tasks/2")
}

func TestService_FlushClosesWindow(t *testing.T) {
	service, cacheStore, clock := newTestService(t)

	seed(t, cacheStore, "frende:api/tasks/1")

	service.RecordMutation("DELETE", "/api/tasks/1")
	removed := service.Flush(context.Background())
	if removed == 0 {
		t.Error("Flush removed nothing")
	}
	assertMiss(t, cacheStore, "frende:api/tasks/1")

	// The window timer firing later is a no-op.
	clock.Advance(DefaultWindow)
	if n := service.Flush(context.Background()); n != 0 {
		t.Errorf("second Flush removed %d entries, want 0", n)
	}
}

func TestService_ReadMethodsIgnored(t *testing.T) {
	service, cacheStore, _ := newTestService(t)

	seed(t, cacheStore, "frende:api/tasks/1")

	service.RecordMutation("GET", "/api/tasks/1")
	service.Flush(context.Background())

	assertHit(t, cacheStore, "frende:api/tasks/1")
}

func TestService_RulePatternsIncluded(t *testing.T) {
	service, cacheStore, _ := newTestService(t)

	// Completing a task also invalidates the coin balance, per the task
	// rule's configured invalidate patterns.
	seed(t, cacheStore, "frende:api/coins/balance")

	service.RecordMutation("POST", "/api/tasks/42/complete")
	service.Flush(context.Background())

	assertMiss(t, cacheStore, "frende:api/coins/balance")
}

// failingStore fails sweeps for one configured pattern.
type failingStore struct {
	mu       sync.Mutex
	failFor  string
	swept    []string
	failures int
}

func (f *failingStore) InvalidatePattern(_ context.Context, prefix string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if prefix == f.failFor {
		f.failures++
		return 0, errors.New("sweep failed")
	}
	f.swept = append(f.swept, prefix)
	return 1, nil
}

func TestService_PatternFailureDoesNotAbortBatch(t *testing.T) {
	target := &failingStore{failFor: "frende:api/coins/balance"}
	service := New(Config{
		Store:    target,
		Registry: strategy.NewRegistry(strategy.FrendeRules()),
		Clock:    clockwork.NewFakeClock(),
	})

	service.RecordMutation("POST", "/api/tasks/42/complete")
	service.Flush(context.Background())

	if target.failures != 1 {
		t.Errorf("failures = %d, want 1", target.failures)
	}
	if len(target.swept) == 0 {
		t.Error("remaining patterns were not swept after a failure")
	}
}

func TestCoalesce(t *testing.T) {
	got := coalesce([]string{
		"frende:api/tasks/42",
		"frende:api/tasks",
		"frende:api/matches",
	})

	want := []string{"frende:api/matches", "frende:api/tasks"}
	if len(got) != len(want) {
		t.Fatalf("coalesce = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("coalesce[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestParentCollection(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"/api/tasks/42/complete", "/api/tasks/42"},
		{"/api/tasks/42", "/api/tasks"},
		{"/api/tasks", "/api"},
		{"/api", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := parentCollection(tt.url); got != tt.want {
			t.Errorf("parentCollection(%s) = %s, want %s", tt.url, got, tt.want)
		}
	}
}
