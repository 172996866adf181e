package strategy

import "time"

// FrendeRules is the production strategy table for the FRENDE API.
//
// TTLs follow how quickly each data type actually changes: profile and
// settings are near-static, matches move on the matching cadence, chat and
// the coin balance must never be served stale without a network attempt.
func FrendeRules() []Rule {
	return []Rule{
		{
			DataType:     "profile",
			KeyPattern:   "/api/profile",
			TTL:          10 * time.Minute,
			InvalidateOn: []string{"POST", "PUT"},
			Compress:     true,
			Priority:     PriorityHigh,
		},
		{
			DataType:             "matches",
			KeyPattern:           "/api/matches",
			TTL:                  2 * time.Minute,
			InvalidateOn:         []string{"POST", "PUT", "DELETE"},
			InvalidatePatterns:   []string{"/api/profile"},
			BackgroundRefresh:    true,
			StaleWhileRevalidate: true,
			StaleTTL:             time.Minute,
			Priority:             PriorityHigh,
		},
		{
			DataType:     "chat",
			KeyPattern:   "/api/chat",
			TTL:          30 * time.Second,
			InvalidateOn: []string{"POST", "DELETE"},
			Priority:     PriorityMedium,
			NetworkFirst: true,
		},
		{
			DataType:             "tasks",
			KeyPattern:           "/api/tasks",
			TTL:                  time.Minute,
			InvalidateOn:         []string{"POST", "PUT", "DELETE"},
			InvalidatePatterns:   []string{"/api/coins/balance"},
			BackgroundRefresh:    true,
			StaleWhileRevalidate: true,
			StaleTTL:             30 * time.Second,
			Priority:             PriorityHigh,
		},
		{
			DataType:     "coins",
			KeyPattern:   "/api/coins/balance",
			TTL:          15 * time.Second,
			InvalidateOn: []string{"POST"},
			Priority:     PriorityMedium,
			NetworkFirst: true,
		},
		{
			DataType:     "settings",
			KeyPattern:   "/api/settings",
			TTL:          30 * time.Minute,
			InvalidateOn: []string{"PUT"},
			Compress:     true,
			Priority:     PriorityLow,
		},
	}
}
