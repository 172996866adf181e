package analytics

import "time"

// Summary is a point-in-time view of cache performance, derived from the
// realtime counters.
type Summary struct {
	UptimeMs int64 `json:"uptime_ms"`

	Requests int64 `json:"requests"`
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Sets     int64 `json:"sets"`
	Deletes  int64 `json:"deletes"`
	Errors   int64 `json:"errors"`

	HitRate           float64 `json:"hit_rate"`
	ErrorRate         float64 `json:"error_rate"`
	RequestsPerMinute float64 `json:"requests_per_minute"`

	AverageGetTimeMs float64 `json:"average_get_time_ms"`
	AverageSetTimeMs float64 `json:"average_set_time_ms"`

	MemoryUsedBytes int64   `json:"memory_used_bytes"`
	MemoryCapBytes  int64   `json:"memory_cap_bytes"`
	MemoryUsage     float64 `json:"memory_usage"`

	AverageResponseBytes float64 `json:"average_response_bytes"`
	BandwidthSavedBytes  float64 `json:"bandwidth_saved_bytes"`
	TimeSavedMs          float64 `json:"time_saved_ms"`

	EfficiencyScore float64 `json:"efficiency_score"`
	EfficiencyGrade string  `json:"efficiency_grade"`
}

// PerformanceSummary derives rates, averages and savings estimates from
// the counters accumulated so far.
func (c *Collector) PerformanceSummary() Summary {
	now := c.clock.Now()

	c.mu.Lock()
	uptime := now.Sub(c.startedAt)
	s := Summary{
		UptimeMs: uptime.Milliseconds(),
		Requests: c.requests,
		Hits:     c.hits,
		Misses:   c.misses,
		Sets:     c.sets,
		Deletes:  c.deletes,
		Errors:   c.errors,

		AverageGetTimeMs: msAverage(c.totalGetTime, c.getOps),
		AverageSetTimeMs: msAverage(c.totalSetTime, c.setOps),
	}

	if c.requests > 0 {
		s.HitRate = float64(c.hits) / float64(c.requests)
		s.ErrorRate = float64(c.errors) / float64(c.requests)
	}
	if uptime > 0 {
		s.RequestsPerMinute = float64(c.requests) / (float64(uptime.Milliseconds()) / 60000.0)
	}
	if c.sets > 0 {
		s.AverageResponseBytes = float64(c.setBytes) / float64(c.sets)
	}
	s.BandwidthSavedBytes = float64(c.hits) * s.AverageResponseBytes
	s.TimeSavedMs = float64(c.hits) * float64(c.latencyEstimate.Milliseconds())
	memoryUsage := c.memoryUsage
	c.mu.Unlock()

	if memoryUsage != nil {
		used, capacity := memoryUsage()
		s.MemoryUsedBytes = used
		s.MemoryCapBytes = capacity
		if capacity > 0 {
			s.MemoryUsage = float64(used) / float64(capacity)
		}
	}

	s.EfficiencyScore = s.HitRate*100 - s.ErrorRate*100
	s.EfficiencyGrade = gradeFor(s.EfficiencyScore)
	return s
}

// gradeFor maps an efficiency score to a letter grade.
func gradeFor(score float64) string {
	switch {
	case score >= 95:
		return "A+"
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

// LatencyEstimate returns the per-hit network latency estimate in use.
func (c *Collector) LatencyEstimate() time.Duration {
	return c.latencyEstimate
}
