package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/courier"
	"github.com/xraph/courier/breaker"
	"github.com/xraph/courier/dlq"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/item"
	"github.com/xraph/courier/recur"
	"github.com/xraph/courier/retry"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ item.Store         = (*Store)(nil)
	_ dlq.Store          = (*Store)(nil)
	_ breaker.Store      = (*Store)(nil)
	_ retry.AttemptStore = (*Store)(nil)
	_ recur.Store        = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	items    map[string]*item.Item
	dlqs     map[string]*dlq.Entry
	breakers map[string]*breaker.Snapshot
	attempts []*retry.Attempt
	recurs   map[string]*recur.Entry
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		items:    make(map[string]*item.Item),
		dlqs:     make(map[string]*dlq.Entry),
		breakers: make(map[string]*breaker.Snapshot),
		recurs:   make(map[string]*recur.Entry),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Item Store
// ──────────────────────────────────────────────────

// EnqueueItem persists a new item in pending state.
func (m *Store) EnqueueItem(_ context.Context, it *item.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := it.ID.String()
	if _, exists := m.items[key]; exists {
		return courier.ErrItemAlreadyExists
	}
	cp := *it
	m.items[key] = &cp
	return nil
}

// DequeueDue atomically claims up to limit due items for the given
// platforms, sets them to processing, and returns them.
func (m *Store) DequeueDue(_ context.Context, platforms []string, limit int) ([]*item.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	platformSet := make(map[string]struct{}, len(platforms))
	for _, p := range platforms {
		platformSet[p] = struct{}{}
	}

	now := time.Now().UTC()

	candidates := make([]*item.Item, 0, len(m.items))
	for _, it := range m.items {
		if !it.Due(now) {
			continue
		}
		if len(platformSet) > 0 {
			if _, ok := platformSet[it.Platform]; !ok {
				continue
			}
		}
		candidates = append(candidates, it)
	}

	// Sort: priority DESC, ScheduledAt ASC.
	sort.Slice(candidates, func(i, k int) bool {
		if candidates[i].Priority != candidates[k].Priority {
			return candidates[i].Priority > candidates[k].Priority
		}
		return candidates[i].ScheduledAt.Before(candidates[k].ScheduledAt)
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	result := make([]*item.Item, len(candidates))
	for i, it := range candidates {
		it.Status = item.StatusProcessing
		n := now
		it.ProcessingAt = &n
		// Return a copy so callers can mutate without racing with the store.
		cp := *it
		result[i] = &cp
	}

	return result, nil
}

// GetItem retrieves an item by ID.
func (m *Store) GetItem(_ context.Context, itemID id.ItemID) (*item.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	it, ok := m.items[itemID.String()]
	if !ok {
		return nil, courier.ErrItemNotFound
	}
	cp := *it
	return &cp, nil
}

// UpdateItem persists changes to an existing item.
func (m *Store) UpdateItem(_ context.Context, it *item.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := it.ID.String()
	if _, ok := m.items[key]; !ok {
		return courier.ErrItemNotFound
	}
	cp := *it
	cp.UpdatedAt = time.Now().UTC()
	m.items[key] = &cp
	return nil
}

// DeleteItem removes an item by ID.
func (m *Store) DeleteItem(_ context.Context, itemID id.ItemID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := itemID.String()
	if _, ok := m.items[key]; !ok {
		return courier.ErrItemNotFound
	}
	delete(m.items, key)
	return nil
}

// ListItemsByStatus returns items matching the given status.
func (m *Store) ListItemsByStatus(_ context.Context, status item.Status, opts item.ListOpts) ([]*item.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*item.Item, 0, len(m.items))
	for _, it := range m.items {
		if it.Status != status {
			continue
		}
		if opts.Platform != "" && it.Platform != opts.Platform {
			continue
		}
		cp := *it
		result = append(result, &cp)
	}

	// Sort: priority DESC, ScheduledAt ASC for deterministic output.
	sort.Slice(result, func(i, k int) bool {
		if result[i].Priority != result[k].Priority {
			return result[i].Priority > result[k].Priority
		}
		return result[i].ScheduledAt.Before(result[k].ScheduledAt)
	})

	// Apply offset / limit.
	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// NextDue returns upcoming pending and retrying items ordered by their
// effective due time, soonest first.
func (m *Store) NextDue(_ context.Context, limit int) ([]*item.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	dueAt := func(it *item.Item) time.Time {
		if it.NextRetryAt != nil {
			return *it.NextRetryAt
		}
		return it.ScheduledAt
	}

	result := make([]*item.Item, 0, len(m.items))
	for _, it := range m.items {
		if it.Status != item.StatusPending && it.Status != item.StatusRetrying {
			continue
		}
		cp := *it
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return dueAt(result[i]).Before(dueAt(result[k]))
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// ReapStaleItems returns processing items claimed longer ago than the
// given threshold.
func (m *Store) ReapStaleItems(_ context.Context, threshold time.Duration) ([]*item.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := time.Now().UTC().Add(-threshold)
	var stale []*item.Item
	for _, it := range m.items {
		if it.Status != item.StatusProcessing {
			continue
		}
		if it.ProcessingAt != nil && it.ProcessingAt.Before(cutoff) {
			cp := *it
			stale = append(stale, &cp)
		}
	}
	return stale, nil
}

// CountItems returns the number of items matching the given options.
func (m *Store) CountItems(_ context.Context, opts item.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, it := range m.items {
		if opts.Platform != "" && it.Platform != opts.Platform {
			continue
		}
		if opts.Status != "" && it.Status != opts.Status {
			continue
		}
		count++
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// DLQ Store
// ──────────────────────────────────────────────────

// PushDLQ adds a quarantined entry to the dead letter queue.
func (m *Store) PushDLQ(_ context.Context, entry *dlq.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *entry
	m.dlqs[entry.ID.String()] = &cp
	return nil
}

// GetDLQ retrieves a DLQ entry by ID.
func (m *Store) GetDLQ(_ context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return nil, courier.ErrDLQNotFound
	}
	cp := *e
	return &cp, nil
}

// UpdateDLQ persists resolution changes to an existing entry.
func (m *Store) UpdateDLQ(_ context.Context, entry *dlq.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := entry.ID.String()
	if _, ok := m.dlqs[key]; !ok {
		return courier.ErrDLQNotFound
	}
	cp := *entry
	cp.UpdatedAt = time.Now().UTC()
	m.dlqs[key] = &cp
	return nil
}

// ListDLQ returns DLQ entries matching the given options, newest first.
func (m *Store) ListDLQ(_ context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*dlq.Entry, 0, len(m.dlqs))
	for _, e := range m.dlqs {
		if opts.Platform != "" && e.Platform != opts.Platform {
			continue
		}
		if opts.Unresolved && e.Resolved() {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].MovedAt.After(result[k].MovedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// CountDLQ returns the number of entries matching the given options.
func (m *Store) CountDLQ(_ context.Context, opts dlq.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, e := range m.dlqs {
		if opts.Platform != "" && e.Platform != opts.Platform {
			continue
		}
		if opts.Unresolved && e.Resolved() {
			continue
		}
		count++
	}
	return count, nil
}

// PurgeDLQ removes resolved entries with MovedAt before the given time.
// Unresolved entries are never purged.
func (m *Store) PurgeDLQ(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for key, e := range m.dlqs {
		if e.Resolved() && e.MovedAt.Before(before) {
			delete(m.dlqs, key)
			count++
		}
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Breaker Store
// ──────────────────────────────────────────────────

// SaveBreakerState inserts or replaces the snapshot for its platform.
func (m *Store) SaveBreakerState(_ context.Context, snap *breaker.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *snap
	m.breakers[snap.Platform] = &cp
	return nil
}

// GetBreakerState retrieves the snapshot for a platform.
func (m *Store) GetBreakerState(_ context.Context, platform string) (*breaker.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, ok := m.breakers[platform]
	if !ok {
		return nil, courier.ErrBreakerNotFound
	}
	cp := *snap
	return &cp, nil
}

// ListBreakerStates returns all saved snapshots.
func (m *Store) ListBreakerStates(_ context.Context) ([]*breaker.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*breaker.Snapshot, 0, len(m.breakers))
	for _, snap := range m.breakers {
		cp := *snap
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].Platform < result[k].Platform
	})

	return result, nil
}

// ──────────────────────────────────────────────────
// Attempt Store
// ──────────────────────────────────────────────────

// AppendAttempt persists a new attempt record.
func (m *Store) AppendAttempt(_ context.Context, a *retry.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *a
	m.attempts = append(m.attempts, &cp)
	return nil
}

// ListAttempts returns the attempts for an item, newest first.
func (m *Store) ListAttempts(_ context.Context, itemID id.ItemID, limit int) ([]*retry.Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*retry.Attempt
	for _, a := range m.attempts {
		if a.ItemID != itemID {
			continue
		}
		cp := *a
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].AttemptedAt.After(result[k].AttemptedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// AttemptStats aggregates attempts for one platform, or all platforms
// when platform is empty.
func (m *Store) AttemptStats(_ context.Context, platform string) (retry.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stats retry.Stats
	var totalTime time.Duration
	for _, a := range m.attempts {
		if platform != "" && a.Platform != platform {
			continue
		}
		stats.Total++
		if a.Success {
			stats.Successes++
		} else {
			stats.Failures++
		}
		totalTime += a.ProcessingTime
	}
	if stats.Total > 0 {
		stats.AverageProcessingTime = totalTime / time.Duration(stats.Total)
	}
	return stats, nil
}

// ──────────────────────────────────────────────────
// Recur Store
// ──────────────────────────────────────────────────

// RegisterRecur persists a new recurring entry. Returns an error if the
// name already exists.
func (m *Store) RegisterRecur(_ context.Context, entry *recur.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.recurs {
		if e.Name == entry.Name {
			return courier.ErrDuplicateRecur
		}
	}

	cp := *entry
	m.recurs[entry.ID.String()] = &cp
	return nil
}

// GetRecur retrieves a recurring entry by ID.
func (m *Store) GetRecur(_ context.Context, entryID id.RecurID) (*recur.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.recurs[entryID.String()]
	if !ok {
		return nil, courier.ErrRecurNotFound
	}
	cp := *e
	return &cp, nil
}

// ListRecurs returns all recurring entries.
func (m *Store) ListRecurs(_ context.Context) ([]*recur.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*recur.Entry, 0, len(m.recurs))
	for _, e := range m.recurs {
		cp := *e
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return result, nil
}

// AcquireRecurLock attempts to acquire the firing lock for an entry.
func (m *Store) AcquireRecurLock(_ context.Context, entryID id.RecurID, owner string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.recurs[entryID.String()]
	if !ok {
		return false, courier.ErrRecurNotFound
	}

	now := time.Now().UTC()

	// If locked by someone else and the lock hasn't expired, fail.
	if e.LockedBy != "" && e.LockedUntil != nil && e.LockedUntil.After(now) {
		if e.LockedBy != owner {
			return false, nil
		}
	}

	e.LockedBy = owner
	until := now.Add(ttl)
	e.LockedUntil = &until
	return true, nil
}

// ReleaseRecurLock releases the firing lock for an entry.
func (m *Store) ReleaseRecurLock(_ context.Context, entryID id.RecurID, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.recurs[entryID.String()]
	if !ok {
		return courier.ErrRecurNotFound
	}

	if e.LockedBy != owner {
		return nil // not holding the lock; no-op
	}

	e.LockedBy = ""
	e.LockedUntil = nil
	return nil
}

// UpdateRecurLastRun records when an entry last fired.
func (m *Store) UpdateRecurLastRun(_ context.Context, entryID id.RecurID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.recurs[entryID.String()]
	if !ok {
		return courier.ErrRecurNotFound
	}
	e.LastRunAt = &at
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateRecurEntry updates a recurring entry (Enabled, NextRunAt, etc.).
// Lock and last-run fields are owned by their dedicated methods and are
// carried over from the stored entry.
func (m *Store) UpdateRecurEntry(_ context.Context, entry *recur.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := entry.ID.String()
	existing, ok := m.recurs[key]
	if !ok {
		return courier.ErrRecurNotFound
	}
	cp := *entry
	cp.LockedBy = existing.LockedBy
	cp.LockedUntil = existing.LockedUntil
	cp.LastRunAt = existing.LastRunAt
	cp.UpdatedAt = time.Now().UTC()
	m.recurs[key] = &cp
	return nil
}

// DeleteRecur removes a recurring entry by ID.
func (m *Store) DeleteRecur(_ context.Context, entryID id.RecurID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := entryID.String()
	if _, ok := m.recurs[key]; !ok {
		return courier.ErrRecurNotFound
	}
	delete(m.recurs, key)
	return nil
}
