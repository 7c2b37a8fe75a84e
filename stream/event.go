// Package stream provides the real-time status broker for Courier
// lifecycle events. It bridges the ext.Extension system to connected
// clients via topic-based pub/sub with heartbeat-driven eviction.
package stream

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	// Item events.
	EventItemEnqueued    EventType = "item.enqueued"
	EventItemDispatched  EventType = "item.dispatched"
	EventItemPosted      EventType = "item.posted"
	EventItemRetrying    EventType = "item.retrying"
	EventItemFailed      EventType = "item.failed"
	EventItemQuarantined EventType = "item.quarantined"

	// Reliability events.
	EventBreakerChanged EventType = "breaker.state_changed"
	EventHealthAlert    EventType = "health.alert"

	// Recurring publish events.
	EventRecurFired EventType = "recur.fired"
)

// Event is the envelope sent to subscribers on a topic channel. Scope
// fields are lifted into the envelope so subscriber filters can match
// without unmarshalling Data.
type Event struct {
	// Type identifies the lifecycle event.
	Type EventType `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`

	// Topic is the entity-specific channel this event was published on.
	Topic string `json:"topic,omitempty"`

	// ScopeUserID and ScopeTeamID identify the owning user and team.
	ScopeUserID string `json:"scope_user_id,omitempty"`
	ScopeTeamID string `json:"scope_team_id,omitempty"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"data"`
}

// ItemEventData is the payload for item lifecycle events.
type ItemEventData struct {
	ItemID      string `json:"item_id"`
	Platform    string `json:"platform"`
	Status      string `json:"status"`
	Priority    string `json:"priority,omitempty"`
	ElapsedMs   int64  `json:"elapsed_ms,omitempty"`
	Error       string `json:"error,omitempty"`
	Attempt     int    `json:"attempt,omitempty"`
	NextRetryAt string `json:"next_retry_at,omitempty"`
}

// QuarantineEventData is the payload for item.quarantined events.
type QuarantineEventData struct {
	EntryID       string `json:"entry_id"`
	ItemID        string `json:"item_id"`
	Platform      string `json:"platform"`
	FailureReason string `json:"failure_reason"`
	Error         string `json:"error,omitempty"`
}

// BreakerEventData is the payload for breaker.state_changed events.
type BreakerEventData struct {
	Platform string `json:"platform"`
	From     string `json:"from"`
	To       string `json:"to"`
}

// HealthEventData is the payload for health.alert events.
type HealthEventData struct {
	Status    string   `json:"status"`
	Severity  string   `json:"severity"`
	Anomalies []string `json:"anomalies"`
}

// RecurEventData is the payload for recur.fired events.
type RecurEventData struct {
	EntryName string `json:"entry_name"`
	ItemID    string `json:"item_id"`
}
