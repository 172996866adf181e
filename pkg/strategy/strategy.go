// Package strategy holds the per-datatype caching rules: how long each
// endpoint's data lives, what invalidates it, and how it is refreshed.
package strategy

import (
	"strings"
	"time"
)

// Priority ranks how important it is to keep a data type cached.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Rule is the caching policy for one URL prefix.
type Rule struct {
	// DataType names the kind of data the rule covers (e.g. "tasks").
	DataType string

	// KeyPattern is the URL prefix the rule applies to. The most specific
	// matching prefix wins.
	KeyPattern string

	// TTL is the freshness window. Always positive.
	TTL time.Duration

	// InvalidateOn lists the HTTP methods whose success invalidates this
	// data type (subset of POST, PUT, DELETE).
	InvalidateOn []string

	// InvalidatePatterns are additional URL prefixes swept when a
	// mutation under KeyPattern succeeds.
	InvalidatePatterns []string

	// BackgroundRefresh re-fetches stale entries without blocking reads.
	BackgroundRefresh bool

	// StaleWhileRevalidate serves expired entries within StaleTTL while a
	// refresh runs.
	StaleWhileRevalidate bool
	StaleTTL             time.Duration

	// Compress gzips stored payloads.
	Compress bool

	Priority Priority

	// NetworkFirst always tries the network before the cache; the cache
	// only serves when the network fails.
	NetworkFirst bool
}

// DefaultRule is the fallback applied to URLs no registered rule covers.
func DefaultRule() Rule {
	return Rule{
		DataType:   "default",
		KeyPattern: "",
		TTL:        5 * time.Minute,
		Compress:   true,
		Priority:   PriorityLow,
	}
}

// Registry resolves URLs to rules by longest-prefix match.
type Registry struct {
	rules    []Rule
	fallback Rule
}

// NewRegistry creates a registry over the given rules. Rules with a
// non-positive TTL are silently corrected to the default TTL so the
// ttl > 0 invariant holds for every resolved rule.
func NewRegistry(rules []Rule) *Registry {
	cleaned := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		if rule.TTL <= 0 {
			rule.TTL = DefaultRule().TTL
		}
		cleaned = append(cleaned, rule)
	}
	return &Registry{rules: cleaned, fallback: DefaultRule()}
}

// Resolve returns the rule whose KeyPattern is the longest prefix of url,
// or the default rule when none matches.
func (r *Registry) Resolve(url string) Rule {
	best := r.fallback
	bestLen := -1
	for _, rule := range r.rules {
		if strings.HasPrefix(url, rule.KeyPattern) && len(rule.KeyPattern) > bestLen {
			best = rule
			bestLen = len(rule.KeyPattern)
		}
	}
	return best
}

// RulesForType returns every rule registered for a data type. Used by the
// clear-by-type debug operation.
func (r *Registry) RulesForType(dataType string) []Rule {
	var out []Rule
	for _, rule := range r.rules {
		if rule.DataType == dataType {
			out = append(out, rule)
		}
	}
	return out
}

// ShouldInvalidate reports whether a successful mutation with the given
// method invalidates data covered by rule.
func ShouldInvalidate(method string, rule Rule) bool {
	for _, m := range rule.InvalidateOn {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}
