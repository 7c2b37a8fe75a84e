package item

import (
	"time"

	"github.com/xraph/courier"
	"github.com/xraph/courier/id"
)

// Status represents the lifecycle status of a scheduled item.
type Status string

const (
	// StatusPending means the item is waiting for its scheduled time.
	StatusPending Status = "pending"
	// StatusProcessing means the scheduler has claimed the item and an
	// adapter call is in flight.
	StatusProcessing Status = "processing"
	// StatusPosted means the platform accepted the content.
	StatusPosted Status = "posted"
	// StatusRetrying means the last attempt failed and the item waits
	// for NextRetryAt.
	StatusRetrying Status = "retrying"
	// StatusFailed means the last attempt failed terminally; the item is
	// about to be quarantined or cancelled.
	StatusFailed Status = "failed"
	// StatusQuarantined means the item was moved to the dead letter
	// queue and is frozen here.
	StatusQuarantined Status = "quarantined"
	// StatusCancelled means the item was explicitly cancelled.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further automatic transitions happen from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusPosted, StatusQuarantined, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the status machine permits moving from
// s to next.
func (s Status) CanTransitionTo(next Status) bool {
	allowed, ok := transitions[s]
	if !ok {
		return false
	}
	for _, a := range allowed {
		if a == next {
			return true
		}
	}
	return false
}

var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusPosted, StatusRetrying, StatusFailed, StatusPending},
	StatusRetrying:   {StatusProcessing, StatusCancelled},
	StatusFailed:     {StatusQuarantined, StatusCancelled},
	// posted → cancelled only via a platform-side cancellation confirmed
	// by a Canceler-capable adapter.
	StatusPosted: {StatusCancelled},
}

// Priority determines dequeue ordering. Higher values are dequeued first;
// ties are broken by earliest scheduled time.
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 1
	PriorityHigh   Priority = 2
	PriorityUrgent Priority = 3
)

// String returns the human-readable priority name.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "unknown"
	}
}

// Payload is the opaque content an adapter delivers. The core never
// interprets Content; MediaRefs are storage references resolved by the
// adapter.
type Payload struct {
	Content   string            `json:"content"`
	MediaRefs []string          `json:"media_refs,omitempty"`
	Options   map[string]string `json:"options,omitempty"`
}

// Item represents one scheduled publish for a single platform.
type Item struct {
	courier.Entity

	ID       id.ItemID `json:"id"`
	Platform string    `json:"platform"`
	Payload  Payload   `json:"payload"`
	Status   Status    `json:"status"`
	Priority Priority  `json:"priority"`

	// ScheduledAt is the earliest time the item may be dispatched.
	ScheduledAt time.Time `json:"scheduled_at"`

	MaxRetries int `json:"max_retries"`
	RetryCount int `json:"retry_count"`

	// RetryDelay is the backoff computed for the most recent failure.
	RetryDelay time.Duration `json:"retry_delay,omitempty"`

	// NextRetryAt gates dequeue for retrying items. Nil unless retrying.
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`

	LastError     string `json:"last_error,omitempty"`
	LastErrorType string `json:"last_error_type,omitempty"`

	// ExternalPostID is the platform-side identifier returned on success.
	ExternalPostID string     `json:"external_post_id,omitempty"`
	PostedAt       *time.Time `json:"posted_at,omitempty"`

	// ProcessingAt marks when the scheduler claimed the item. The reaper
	// resets items stuck in processing past a threshold.
	ProcessingAt *time.Time `json:"processing_at,omitempty"`

	// ScopeUserID and ScopeTeamID identify the owner for event filtering.
	ScopeUserID string `json:"scope_user_id,omitempty"`
	ScopeTeamID string `json:"scope_team_id,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// New creates a pending item for the given platform with defaults applied.
func New(platform string, payload Payload, opts ...Option) *Item {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	scheduledAt := o.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = time.Now().UTC()
	}

	return &Item{
		Entity:      courier.NewEntity(),
		ID:          id.NewItemID(),
		Platform:    platform,
		Payload:     payload,
		Status:      StatusPending,
		Priority:    o.Priority,
		ScheduledAt: scheduledAt,
		MaxRetries:  o.MaxRetries,
		ScopeUserID: o.ScopeUserID,
		ScopeTeamID: o.ScopeTeamID,
		Metadata:    o.Metadata,
	}
}

// Due reports whether the item is eligible for dispatch at the given time:
// its scheduled time has elapsed and, if retrying, its backoff has expired.
func (i *Item) Due(now time.Time) bool {
	if i.Status != StatusPending && i.Status != StatusRetrying {
		return false
	}
	if now.Before(i.ScheduledAt) {
		return false
	}
	if i.NextRetryAt != nil && now.Before(*i.NextRetryAt) {
		return false
	}
	return true
}
