package analytics

import "time"

// HourlyBucket aggregates one hour of cache operations.
type HourlyBucket struct {
	Start    time.Time `json:"start"`
	Requests int64     `json:"requests"`
	Hits     int64     `json:"hits"`
	Misses   int64     `json:"misses"`
	Errors   int64     `json:"errors"`
	Sets     int64     `json:"sets"`
	Deletes  int64     `json:"deletes"`

	AverageGetTimeMs float64 `json:"average_get_time_ms"`
	AverageSetTimeMs float64 `json:"average_set_time_ms"`

	totalGetTime time.Duration
	getOps       int64
	totalSetTime time.Duration
	setOps       int64
}

func (b *HourlyBucket) recordGet(hit bool, d time.Duration) {
	b.Requests++
	if hit {
		b.Hits++
	} else {
		b.Misses++
	}
	b.totalGetTime += d
	b.getOps++
	b.AverageGetTimeMs = msAverage(b.totalGetTime, b.getOps)
}

func (b *HourlyBucket) recordSet(d time.Duration) {
	b.Sets++
	b.totalSetTime += d
	b.setOps++
	b.AverageSetTimeMs = msAverage(b.totalSetTime, b.setOps)
}

// DailyBucket aggregates one day of cache operations. PeakHour and
// PeakRequests track the busiest hour seen so far within the day and are
// reset implicitly at the day boundary when a new bucket starts.
type DailyBucket struct {
	Start    time.Time `json:"start"`
	Requests int64     `json:"requests"`
	Hits     int64     `json:"hits"`
	Misses   int64     `json:"misses"`
	Errors   int64     `json:"errors"`
	Sets     int64     `json:"sets"`
	Deletes  int64     `json:"deletes"`

	AverageGetTimeMs float64 `json:"average_get_time_ms"`
	AverageSetTimeMs float64 `json:"average_set_time_ms"`

	PeakHour     int   `json:"peak_hour"`
	PeakRequests int64 `json:"peak_requests"`

	totalGetTime time.Duration
	getOps       int64
	totalSetTime time.Duration
	setOps       int64
}

func (b *DailyBucket) recordGet(hit bool, d time.Duration) {
	b.Requests++
	if hit {
		b.Hits++
	} else {
		b.Misses++
	}
	b.totalGetTime += d
	b.getOps++
	b.AverageGetTimeMs = msAverage(b.totalGetTime, b.getOps)
}

func (b *DailyBucket) recordSet(d time.Duration) {
	b.Sets++
	b.totalSetTime += d
	b.setOps++
	b.AverageSetTimeMs = msAverage(b.totalSetTime, b.setOps)
}

// updatePeak promotes the given hourly bucket to the day's peak when it
// holds more requests than the current peak. Monotonic within a day.
func (b *DailyBucket) updatePeak(hour *HourlyBucket) {
	if hour.Requests > b.PeakRequests {
		b.PeakRequests = hour.Requests
		b.PeakHour = hour.Start.Hour()
	}
}

// msAverage divides at nanosecond precision so sub-millisecond
// operations still produce a non-zero average.
func msAverage(total time.Duration, ops int64) float64 {
	if ops == 0 {
		return 0
	}
	return float64(total.Nanoseconds()) / float64(ops) / 1e6
}

// HourlyStats returns the trailing n hourly buckets ending at the current
// hour. Hours with no recorded activity are zero-filled.
func (c *Collector) HourlyStats(n int) []HourlyBucket {
	now := c.clock.Now().Truncate(time.Hour)

	c.mu.Lock()
	defer c.mu.Unlock()

	stats := make([]HourlyBucket, 0, n)
	for i := n - 1; i >= 0; i-- {
		start := now.Add(-time.Duration(i) * time.Hour)
		if bucket, ok := c.hourly[start.Unix()]; ok {
			stats = append(stats, *bucket)
		} else {
			stats = append(stats, HourlyBucket{Start: start})
		}
	}
	return stats
}

// DailyStats returns the trailing n daily buckets ending today, zero-filled
// for days with no activity.
func (c *Collector) DailyStats(n int) []DailyBucket {
	today := dayStart(c.clock.Now())

	c.mu.Lock()
	defer c.mu.Unlock()

	stats := make([]DailyBucket, 0, n)
	for i := n - 1; i >= 0; i-- {
		start := today.AddDate(0, 0, -i)
		if bucket, ok := c.daily[start.Unix()]; ok {
			stats = append(stats, *bucket)
		} else {
			stats = append(stats, DailyBucket{Start: start})
		}
	}
	return stats
}
