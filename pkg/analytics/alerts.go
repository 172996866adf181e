package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Severity classifies an alert.
type Severity string

const (
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Alert reports a threshold breach. The alert list is replaced wholesale
// on every evaluation; alerts never accumulate across cycles.
type Alert struct {
	Type     string    `json:"type"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

// Thresholds are the limits the alert engine evaluates against. A metric
// exactly at its threshold does not alert; only strictly worse values do.
type Thresholds struct {
	MinHitRate     float64
	MaxAvgGetTime  time.Duration
	MaxAvgSetTime  time.Duration
	MaxErrorRate   float64
	MaxMemoryUsage float64
}

// DefaultThresholds returns the production thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinHitRate:     0.8,
		MaxAvgGetTime:  50 * time.Millisecond,
		MaxAvgSetTime:  100 * time.Millisecond,
		MaxErrorRate:   0.05,
		MaxMemoryUsage: 0.9,
	}
}

// DefaultAlertInterval is how often the engine re-evaluates on its own.
const DefaultAlertInterval = 5 * time.Minute

// AlertEngine evaluates collector metrics against thresholds on a fixed
// schedule and on demand.
type AlertEngine struct {
	collector  *Collector
	thresholds Thresholds
	clock      clockwork.Clock
	logger     zerolog.Logger
	interval   time.Duration

	mu      sync.Mutex
	alerts  []Alert
	advisor *Advisor
}

// NewAlertEngine creates an alert engine over the given collector.
func NewAlertEngine(collector *Collector, thresholds Thresholds, clock clockwork.Clock, logger zerolog.Logger) *AlertEngine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AlertEngine{
		collector:  collector,
		thresholds: thresholds,
		clock:      clock,
		logger:     logger,
		interval:   DefaultAlertInterval,
	}
}

// AttachAdvisor has the advisor re-evaluate its suggestions on the
// engine's schedule, so the two lists stay in step.
func (e *AlertEngine) AttachAdvisor(advisor *Advisor) {
	e.advisor = advisor
}

// Evaluate computes the current breach set and replaces the alert list
// with it.
func (e *AlertEngine) Evaluate() []Alert {
	summary := e.collector.PerformanceSummary()
	now := e.clock.Now()

	var alerts []Alert

	// No traffic means no meaningful hit rate; don't alert on silence.
	if summary.Requests > 0 && summary.HitRate < e.thresholds.MinHitRate {
		alerts = append(alerts, Alert{
			Type:     "low_hit_rate",
			Severity: SeverityMedium,
			Message:  fmt.Sprintf("cache hit rate %.2f below %.2f", summary.HitRate, e.thresholds.MinHitRate),
			At:       now,
		})
	}
	if summary.AverageGetTimeMs > float64(e.thresholds.MaxAvgGetTime.Milliseconds()) {
		alerts = append(alerts, Alert{
			Type:     "slow_get",
			Severity: SeverityMedium,
			Message:  fmt.Sprintf("average get time %.1fms above %dms", summary.AverageGetTimeMs, e.thresholds.MaxAvgGetTime.Milliseconds()),
			At:       now,
		})
	}
	if summary.AverageSetTimeMs > float64(e.thresholds.MaxAvgSetTime.Milliseconds()) {
		alerts = append(alerts, Alert{
			Type:     "slow_set",
			Severity: SeverityMedium,
			Message:  fmt.Sprintf("average set time %.1fms above %dms", summary.AverageSetTimeMs, e.thresholds.MaxAvgSetTime.Milliseconds()),
			At:       now,
		})
	}
	if summary.ErrorRate > e.thresholds.MaxErrorRate {
		alerts = append(alerts, Alert{
			Type:     "high_error_rate",
			Severity: SeverityHigh,
			Message:  fmt.Sprintf("cache error rate %.3f above %.3f", summary.ErrorRate, e.thresholds.MaxErrorRate),
			At:       now,
		})
	}
	if summary.MemoryUsage > e.thresholds.MaxMemoryUsage {
		alerts = append(alerts, Alert{
			Type:     "high_memory_usage",
			Severity: SeverityMedium,
			Message:  fmt.Sprintf("memory tier at %.0f%% of cap", summary.MemoryUsage*100),
			At:       now,
		})
	}

	e.mu.Lock()
	e.alerts = alerts
	e.mu.Unlock()

	alertsActive.Set(float64(len(alerts)))

	for _, alert := range alerts {
		event := e.logger.Warn()
		if alert.Severity == SeverityHigh {
			event = e.logger.Error()
		}
		event.Str("type", alert.Type).Str("severity", string(alert.Severity)).Msg(alert.Message)
	}

	return alerts
}

// Alerts returns the breach set from the most recent evaluation.
func (e *AlertEngine) Alerts() []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Alert, len(e.alerts))
	copy(out, e.alerts)
	return out
}

// Start evaluates on the configured schedule until ctx is done.
func (e *AlertEngine) Start(ctx context.Context) {
	go func() {
		ticker := e.clock.NewTicker(e.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				e.Evaluate()
				if e.advisor != nil {
					e.advisor.Evaluate()
				}
			}
		}
	}()
}
