package recur

import (
	"context"
	"time"

	"github.com/xraph/courier/id"
)

// Store defines the persistence contract for recurring entries.
type Store interface {
	// RegisterRecur persists a new recurring entry. Returns
	// courier.ErrDuplicateRecur if the name already exists.
	RegisterRecur(ctx context.Context, entry *Entry) error

	// GetRecur retrieves a recurring entry by ID.
	GetRecur(ctx context.Context, entryID id.RecurID) (*Entry, error)

	// ListRecurs returns all recurring entries.
	ListRecurs(ctx context.Context) ([]*Entry, error)

	// AcquireRecurLock attempts to acquire the firing lock for an entry.
	// Returns true if the lock was acquired. The lock expires after ttl.
	AcquireRecurLock(ctx context.Context, entryID id.RecurID, owner string, ttl time.Duration) (bool, error)

	// ReleaseRecurLock releases the firing lock for an entry.
	ReleaseRecurLock(ctx context.Context, entryID id.RecurID, owner string) error

	// UpdateRecurLastRun records when an entry last fired.
	UpdateRecurLastRun(ctx context.Context, entryID id.RecurID, at time.Time) error

	// UpdateRecurEntry updates an entry (Enabled, NextRunAt, etc.).
	// Lock and last-run fields are managed by the dedicated methods and
	// are not modified here.
	UpdateRecurEntry(ctx context.Context, entry *Entry) error

	// DeleteRecur removes an entry by ID.
	DeleteRecur(ctx context.Context, entryID id.RecurID) error
}
