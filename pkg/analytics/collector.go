// Package analytics aggregates cache operation samples into realtime,
// hourly and daily statistics, and derives threshold alerts and
// optimization suggestions from them.
package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Op classifies a cache operation sample.
type Op string

const (
	OpHit    Op = "hit"
	OpMiss   Op = "miss"
	OpSet    Op = "set"
	OpDelete Op = "delete"
	OpError  Op = "error"
)

// Sample is a single cache operation observation.
type Sample struct {
	// Op is the operation kind.
	Op Op

	// Duration is how long the operation took. Zero when unknown.
	Duration time.Duration

	// Bytes is the payload size involved, when applicable (sets).
	Bytes int
}

// Recorder consumes operation samples. The cache store publishes to a
// Recorder without knowing what sits behind it.
type Recorder interface {
	Record(sample Sample)
}

// Retention limits for aggregated buckets.
const (
	hourlyRetention = 7 * 24 * time.Hour
	dailyRetention  = 30 * 24 * time.Hour

	// DefaultSweepInterval is how often the retention sweep runs.
	DefaultSweepInterval = 24 * time.Hour

	// DefaultLatencyEstimate is the assumed network round-trip saved by a
	// cache hit, used for the time-saved estimate.
	DefaultLatencyEstimate = 120 * time.Millisecond
)

// MemoryUsageFunc reports the memory tier's current and maximum size in
// bytes. Wired to the cache store's stats by the caller.
type MemoryUsageFunc func() (used, capacity int64)

// Collector aggregates samples into realtime counters and time buckets.
type Collector struct {
	clock  clockwork.Clock
	logger zerolog.Logger

	latencyEstimate time.Duration
	memoryUsage     MemoryUsageFunc

	mu        sync.Mutex
	startedAt time.Time

	requests int64
	hits     int64
	misses   int64
	sets     int64
	deletes  int64
	errors   int64

	totalGetTime time.Duration
	getOps       int64
	totalSetTime time.Duration
	setOps       int64
	setBytes     int64

	hourly map[int64]*HourlyBucket // keyed by unix hour start
	daily  map[int64]*DailyBucket  // keyed by unix day start
}

// CollectorConfig holds collector construction options.
type CollectorConfig struct {
	Clock  clockwork.Clock
	Logger zerolog.Logger

	// MemoryUsage reports memory-tier usage for the performance summary.
	// Optional.
	MemoryUsage MemoryUsageFunc

	// LatencyEstimate overrides DefaultLatencyEstimate.
	LatencyEstimate time.Duration
}

// NewCollector creates a collector.
func NewCollector(cfg CollectorConfig) *Collector {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	latency := cfg.LatencyEstimate
	if latency <= 0 {
		latency = DefaultLatencyEstimate
	}
	return &Collector{
		clock:           clock,
		logger:          cfg.Logger,
		latencyEstimate: latency,
		memoryUsage:     cfg.MemoryUsage,
		startedAt:       clock.Now(),
		hourly:          make(map[int64]*HourlyBucket),
		daily:           make(map[int64]*DailyBucket),
	}
}

// Record updates realtime counters and the current hourly and daily
// buckets. Running averages are recomputed incrementally from totals.
func (c *Collector) Record(sample Sample) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	hour := c.hourlyBucket(now)
	day := c.dailyBucket(now)

	switch sample.Op {
	case OpHit:
		c.requests++
		c.hits++
		c.totalGetTime += sample.Duration
		c.getOps++
		hour.recordGet(true, sample.Duration)
		day.recordGet(true, sample.Duration)
	case OpMiss:
		c.requests++
		c.misses++
		c.totalGetTime += sample.Duration
		c.getOps++
		hour.recordGet(false, sample.Duration)
		day.recordGet(false, sample.Duration)
	case OpSet:
		c.sets++
		c.totalSetTime += sample.Duration
		c.setOps++
		c.setBytes += int64(sample.Bytes)
		hour.recordSet(sample.Duration)
		day.recordSet(sample.Duration)
	case OpDelete:
		c.deletes++
		hour.Deletes++
		day.Deletes++
	case OpError:
		c.errors++
		hour.Errors++
		day.Errors++
	}

	day.updatePeak(hour)
}

// hourlyBucket returns the bucket for now, creating it if needed.
// Caller holds c.mu.
func (c *Collector) hourlyBucket(now time.Time) *HourlyBucket {
	start := now.Truncate(time.Hour)
	bucket, ok := c.hourly[start.Unix()]
	if !ok {
		bucket = &HourlyBucket{Start: start}
		c.hourly[start.Unix()] = bucket
	}
	return bucket
}

// dailyBucket returns the bucket for now, creating it if needed.
// Caller holds c.mu.
func (c *Collector) dailyBucket(now time.Time) *DailyBucket {
	start := dayStart(now)
	bucket, ok := c.daily[start.Unix()]
	if !ok {
		bucket = &DailyBucket{Start: start}
		c.daily[start.Unix()] = bucket
	}
	return bucket
}

func dayStart(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// Prune drops hourly buckets older than 7 days and daily buckets older
// than 30 days. Returns the number of buckets removed.
func (c *Collector) Prune() int {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, bucket := range c.hourly {
		if now.Sub(bucket.Start) > hourlyRetention {
			delete(c.hourly, key)
			removed++
		}
	}
	for key, bucket := range c.daily {
		if now.Sub(bucket.Start) > dailyRetention {
			delete(c.daily, key)
			removed++
		}
	}
	return removed
}


// StartRetentionSweep runs Prune on a daily schedule until ctx is done.
func (c *Collector) StartRetentionSweep(ctx context.Context) {
	go func() {
		ticker := c.clock.NewTicker(DefaultSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				removed := c.Prune()
				if removed > 0 {
					c.logger.Debug().Int("removed", removed).Msg("Pruned analytics buckets")
				}
			}
		}
	}()
}
