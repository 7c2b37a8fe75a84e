package item

import (
	"context"
	"time"

	"github.com/xraph/courier/id"
)

// ListOpts controls pagination and filtering for item list queries.
type ListOpts struct {
	// Limit is the maximum number of items to return. Zero means no limit.
	Limit int
	// Offset is the number of items to skip.
	Offset int
	// Platform filters by platform name. Empty means all platforms.
	Platform string
}

// CountOpts controls filtering for item count queries.
type CountOpts struct {
	// Platform filters by platform name. Empty means all platforms.
	Platform string
	// Status filters by item status. Empty means all statuses.
	Status Status
}

// Store defines the persistence contract for scheduled items. The store
// is the sole source of truth; any in-memory structure built on top of it
// is a derived cache.
type Store interface {
	// EnqueueItem persists a new item in pending state.
	EnqueueItem(ctx context.Context, it *Item) error

	// DequeueDue atomically claims up to limit due items for the given
	// platforms, sets them to processing, and returns them. An item is
	// due when its scheduled time has elapsed and, for retrying items,
	// NextRetryAt has passed. Ordering is priority (descending) then
	// scheduled time (ascending). Empty platforms means all platforms.
	// A claimed item is not returned again until its status is reset.
	DequeueDue(ctx context.Context, platforms []string, limit int) ([]*Item, error)

	// GetItem retrieves an item by ID.
	GetItem(ctx context.Context, itemID id.ItemID) (*Item, error)

	// UpdateItem persists changes to an existing item.
	UpdateItem(ctx context.Context, it *Item) error

	// DeleteItem removes an item by ID.
	DeleteItem(ctx context.Context, itemID id.ItemID) error

	// ListItemsByStatus returns items matching the given status, ordered
	// by priority (descending) then scheduled time (ascending).
	ListItemsByStatus(ctx context.Context, status Status, opts ListOpts) ([]*Item, error)

	// NextDue returns upcoming pending and retrying items ordered by their
	// effective due time (NextRetryAt when set, otherwise ScheduledAt),
	// soonest first. Used for queue status reporting; it never claims items.
	NextDue(ctx context.Context, limit int) ([]*Item, error)

	// ReapStaleItems returns processing items claimed longer ago than the
	// given threshold, indicating the dispatching process may have crashed.
	ReapStaleItems(ctx context.Context, threshold time.Duration) ([]*Item, error)

	// CountItems returns the number of items matching the given options.
	CountItems(ctx context.Context, opts CountOpts) (int64, error)
}
