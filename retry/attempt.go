package retry

import (
	"context"
	"time"

	"github.com/xraph/courier"
	"github.com/xraph/courier/classify"
	"github.com/xraph/courier/id"
)

// Attempt is one append-only record of a dispatch attempt, kept for
// statistics and audit.
type Attempt struct {
	courier.Entity

	ID         id.AttemptID      `json:"id"`
	ItemID     id.ItemID         `json:"item_id"`
	Platform   string            `json:"platform"`
	RetryCount int               `json:"retry_count"`
	ErrorType  classify.Category `json:"error_type,omitempty"`
	Strategy   classify.Strategy `json:"strategy,omitempty"`

	AttemptedAt    time.Time     `json:"attempted_at"`
	Success        bool          `json:"success"`
	ProcessingTime time.Duration `json:"processing_time"`
}

// Stats aggregates the attempt history.
type Stats struct {
	Total                 int64         `json:"total"`
	Successes             int64         `json:"successes"`
	Failures              int64         `json:"failures"`
	AverageProcessingTime time.Duration `json:"average_processing_time"`
}

// AttemptStore defines the persistence contract for attempt records.
// Records are append-only; there is no update or delete.
type AttemptStore interface {
	// AppendAttempt persists a new attempt record.
	AppendAttempt(ctx context.Context, a *Attempt) error

	// ListAttempts returns the attempts for an item, newest first.
	// limit zero means no limit.
	ListAttempts(ctx context.Context, itemID id.ItemID, limit int) ([]*Attempt, error)

	// AttemptStats aggregates attempts for one platform, or all
	// platforms when platform is empty.
	AttemptStats(ctx context.Context, platform string) (Stats, error)
}
