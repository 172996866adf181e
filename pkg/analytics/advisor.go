package analytics

import (
	"sync"
	"time"
)

// Priority ranks a suggestion.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
)

// Suggestion is an actionable improvement derived from current metrics.
// Like alerts, the list is regenerated wholesale each evaluation.
type Suggestion struct {
	Type        string   `json:"type"`
	Priority    Priority `json:"priority"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Actions     []string `json:"actions"`
}

// Advisor turns collector metrics into optimization suggestions.
type Advisor struct {
	collector  *Collector
	thresholds Thresholds

	mu          sync.Mutex
	suggestions []Suggestion
}

// NewAdvisor creates an advisor sharing the alert engine's thresholds.
func NewAdvisor(collector *Collector, thresholds Thresholds) *Advisor {
	return &Advisor{
		collector:  collector,
		thresholds: thresholds,
	}
}

// Evaluate regenerates the suggestion list from the current summary.
func (a *Advisor) Evaluate() []Suggestion {
	summary := a.collector.PerformanceSummary()

	var suggestions []Suggestion

	if summary.Requests > 0 && summary.HitRate < a.thresholds.MinHitRate {
		suggestions = append(suggestions, Suggestion{
			Type:        "improve_hit_rate",
			Priority:    PriorityHigh,
			Title:       "Improve cache hit rate",
			Description: "Hit rate is below target; most reads are going to the network.",
			Actions: []string{
				"Increase TTLs for stable data types",
				"Enable stale-while-revalidate where freshness allows",
				"Add hot endpoints to the warming set",
			},
		})
	}
	if summary.ErrorRate > a.thresholds.MaxErrorRate {
		suggestions = append(suggestions, Suggestion{
			Type:        "reduce_errors",
			Priority:    PriorityHigh,
			Title:       "Investigate cache errors",
			Description: "Cache operations are failing at an elevated rate, most often a durable-tier problem.",
			Actions: []string{
				"Check durable storage quota and connectivity",
				"Verify memory-only fallback is engaging on durable failures",
			},
		})
	}
	if summary.AverageGetTimeMs > float64(a.thresholds.MaxAvgGetTime.Milliseconds()) ||
		summary.AverageSetTimeMs > float64(a.thresholds.MaxAvgSetTime.Milliseconds()) {
		suggestions = append(suggestions, Suggestion{
			Type:        "reduce_latency",
			Priority:    PriorityMedium,
			Title:       "Reduce cache operation latency",
			Description: "Average get/set timings exceed target.",
			Actions: []string{
				"Review key generation cost on hot paths",
				"Check durable-tier round-trip times",
				"Consider disabling compression for small payloads",
			},
		})
	}
	if summary.MemoryUsage > a.thresholds.MaxMemoryUsage {
		suggestions = append(suggestions, Suggestion{
			Type:        "rebalance_memory",
			Priority:    PriorityMedium,
			Title:       "Relieve memory tier pressure",
			Description: "The memory tier is running close to its cap.",
			Actions: []string{
				"Lower the memory entry or byte cap to evict earlier",
				"Enable compression for large data types",
				"Shorten TTLs for low-priority data",
			},
		})
	}

	a.mu.Lock()
	a.suggestions = suggestions
	a.mu.Unlock()

	suggestionsActive.Set(float64(len(suggestions)))

	return suggestions
}

// Suggestions returns the list from the most recent evaluation.
func (a *Advisor) Suggestions() []Suggestion {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Suggestion, len(a.suggestions))
	copy(out, a.suggestions)
	return out
}

// Export is the JSON snapshot served by the debug surface.
type Export struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Summary     Summary        `json:"summary"`
	Hourly      []HourlyBucket `json:"hourly"`
	Daily       []DailyBucket  `json:"daily"`
	Alerts      []Alert        `json:"alerts"`
	Suggestions []Suggestion   `json:"suggestions"`
}

// BuildExport assembles a full analytics snapshot: performance summary,
// the trailing 24 hourly and 7 daily buckets, and freshly evaluated
// alerts and suggestions.
func BuildExport(collector *Collector, engine *AlertEngine, advisor *Advisor) Export {
	export := Export{
		GeneratedAt: collector.clock.Now(),
		Summary:     collector.PerformanceSummary(),
		Hourly:      collector.HourlyStats(24),
		Daily:       collector.DailyStats(7),
	}
	if engine != nil {
		export.Alerts = engine.Evaluate()
	}
	if advisor != nil {
		export.Suggestions = advisor.Evaluate()
	}
	return export
}
