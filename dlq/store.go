package dlq

import (
	"context"
	"time"

	"github.com/xraph/courier/id"
)

// ListOpts controls pagination and filtering for DLQ list queries.
type ListOpts struct {
	// Limit is the maximum number of entries to return. Zero means no limit.
	Limit int
	// Offset is the number of entries to skip.
	Offset int
	// Platform filters by platform name. Empty means all platforms.
	Platform string
	// Unresolved restricts results to entries with no resolution.
	Unresolved bool
}

// CountOpts controls filtering for DLQ count queries.
type CountOpts struct {
	// Platform filters by platform name. Empty means all platforms.
	Platform string
	// Unresolved restricts the count to entries with no resolution.
	Unresolved bool
}

// Store defines the persistence contract for the dead letter queue.
type Store interface {
	// PushDLQ adds a quarantined entry to the dead letter queue.
	PushDLQ(ctx context.Context, entry *Entry) error

	// GetDLQ retrieves an entry by ID. Returns courier.ErrDLQNotFound
	// when no entry exists.
	GetDLQ(ctx context.Context, entryID id.DLQID) (*Entry, error)

	// UpdateDLQ persists resolution changes to an existing entry.
	UpdateDLQ(ctx context.Context, entry *Entry) error

	// ListDLQ returns entries matching the given options, newest first.
	ListDLQ(ctx context.Context, opts ListOpts) ([]*Entry, error)

	// CountDLQ returns the number of entries matching the given options.
	CountDLQ(ctx context.Context, opts CountOpts) (int64, error)

	// PurgeDLQ physically removes resolved entries with MovedAt before
	// the given time. Returns the number of entries removed. Unresolved
	// entries are never purged.
	PurgeDLQ(ctx context.Context, before time.Time) (int64, error)
}
