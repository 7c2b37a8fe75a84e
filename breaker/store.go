package breaker

import (
	"context"
	"time"
)

// Snapshot is the persisted form of one platform's breaker state.
type Snapshot struct {
	Platform            string     `json:"platform"`
	State               State      `json:"state"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	NextAttemptAt       *time.Time `json:"next_attempt_at,omitempty"`
}

// Store defines the persistence contract for breaker state. One row per
// platform; SaveBreakerState upserts.
type Store interface {
	// SaveBreakerState inserts or replaces the snapshot for its platform.
	SaveBreakerState(ctx context.Context, snap *Snapshot) error

	// GetBreakerState retrieves the snapshot for a platform. Returns
	// courier.ErrBreakerNotFound if none has been saved.
	GetBreakerState(ctx context.Context, platform string) (*Snapshot, error)

	// ListBreakerStates returns all saved snapshots.
	ListBreakerStates(ctx context.Context) ([]*Snapshot, error)
}
