// Package analytics records what people search for. The search service
// publishes events to Kafka through a Collector; the analytics service
// consumes them into an Aggregator and snapshots the totals to PostgreSQL.
package analytics

import "time"

type EventType string

const (
	EventSearch      EventType = "search"
	EventZeroResult  EventType = "zero_result"
	EventProfileView EventType = "profile_view"
)

type SearchEvent struct {
	Type       EventType `json:"type"`
	Query      string    `json:"query"`
	FilterKeys []string  `json:"filter_keys"`
	Fuzzy      bool      `json:"fuzzy"`
	TotalHits  int       `json:"total_hits"`
	Returned   int       `json:"returned"`
	LatencyMs  int64     `json:"latency_ms"`
	CacheHit   bool      `json:"cache_hit"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id"`
}

// ProfileEvent is published when a single school's profile is served.
type ProfileEvent struct {
	Type      EventType `json:"type"`
	URN       string    `json:"urn"`
	Name      string    `json:"name"`
	Phase     string    `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// envelope is decoded first so the handler can pick the concrete event type.
type envelope struct {
	Type EventType `json:"type"`
}
