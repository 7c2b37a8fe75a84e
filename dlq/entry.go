package dlq

import (
	"time"

	"github.com/xraph/courier"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/item"
)

// FailureReason explains why an item was quarantined.
type FailureReason string

const (
	// ReasonMaxRetriesExceeded means the retry budget ran out.
	ReasonMaxRetriesExceeded FailureReason = "max_retries_exceeded"
	// ReasonNonRetryable means the failure classified as non-retryable
	// (authentication, validation) and was quarantined without retries.
	ReasonNonRetryable FailureReason = "non_retryable"
	// ReasonEscalatedManual means an operator escalated the item by hand.
	ReasonEscalatedManual FailureReason = "escalated_manual"
)

// Entry represents one quarantined item. The payload is a snapshot taken
// at quarantine time; the original item is frozen and no longer owned by
// the queue.
type Entry struct {
	courier.Entity

	ID       id.DLQID  `json:"id"`
	ItemID   id.ItemID `json:"item_id"`
	Platform string    `json:"platform"`

	Payload       item.Payload  `json:"payload"`
	FailureReason FailureReason `json:"failure_reason"`
	LastError     string        `json:"last_error"`

	// RetryCount is the item's retry count at time of quarantine.
	RetryCount int       `json:"retry_count"`
	MovedAt    time.Time `json:"moved_at"`

	// ResolvedAt is set by resolve, retry, or delete. Once set the entry
	// is terminal.
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolutionNotes string     `json:"resolution_notes,omitempty"`

	// ReplacementID back-references the fresh item created by a retry
	// resolution.
	ReplacementID id.ItemID `json:"replacement_id,omitempty"`

	// Deleted marks a delete resolution. Deletion is always a soft
	// resolve; rows leave the store only via Purge.
	Deleted bool `json:"deleted,omitempty"`

	ScopeUserID string `json:"scope_user_id,omitempty"`
	ScopeTeamID string `json:"scope_team_id,omitempty"`
}

// Resolved reports whether the entry is terminal.
func (e *Entry) Resolved() bool {
	return e.ResolvedAt != nil
}
