package dlq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/courier"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/item"
)

// Action is the closed set of bulk resolution operations. Boundary code
// must parse loose input through ParseAction before it reaches the core.
type Action string

const (
	ActionResolve Action = "resolve"
	ActionRetry   Action = "retry"
	ActionDelete  Action = "delete"
)

// ParseAction validates a raw action string.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionResolve, ActionRetry, ActionDelete:
		return Action(s), nil
	default:
		return "", fmt.Errorf("dlq: unknown action %q", s)
	}
}

// BulkItemResult reports the outcome for one entry in a bulk action.
type BulkItemResult struct {
	EntryID id.DLQID `json:"entry_id"`
	OK      bool     `json:"ok"`
	Skipped bool     `json:"skipped,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// BulkResult summarizes a bulk action.
type BulkResult struct {
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Results   []BulkItemResult `json:"results"`
}

// Service provides high-level DLQ operations over a Store.
type Service struct {
	store     Store
	itemStore item.Store
	logger    *slog.Logger
}

// NewService creates a DLQ service.
func NewService(store Store, itemStore item.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, itemStore: itemStore, logger: logger}
}

// Quarantine snapshots a failed item into the dead letter queue and
// freezes the original. The item must already be in failed state.
func (s *Service) Quarantine(ctx context.Context, it *item.Item, reason FailureReason, lastErr string) (*Entry, error) {
	now := time.Now().UTC()
	entry := &Entry{
		Entity:        courier.NewEntity(),
		ID:            id.NewDLQID(),
		ItemID:        it.ID,
		Platform:      it.Platform,
		Payload:       it.Payload,
		FailureReason: reason,
		LastError:     lastErr,
		RetryCount:    it.RetryCount,
		MovedAt:       now,
		ScopeUserID:   it.ScopeUserID,
		ScopeTeamID:   it.ScopeTeamID,
	}

	if err := s.store.PushDLQ(ctx, entry); err != nil {
		return nil, err
	}

	it.Status = item.StatusQuarantined
	it.LastError = lastErr
	it.UpdatedAt = now
	if err := s.itemStore.UpdateItem(ctx, it); err != nil {
		// The entry is already durable; the item freeze is best effort.
		s.logger.Error("failed to freeze quarantined item",
			slog.String("item_id", it.ID.String()),
			slog.String("error", err.Error()))
	}

	s.logger.Warn("item quarantined",
		slog.String("item_id", it.ID.String()),
		slog.String("platform", it.Platform),
		slog.String("reason", string(reason)),
		slog.Int("retry_count", it.RetryCount))

	return entry, nil
}

// Resolve marks an entry handled. Returns courier.ErrAlreadyResolved if
// the entry is already terminal.
func (s *Service) Resolve(ctx context.Context, entryID id.DLQID, notes string) error {
	entry, err := s.store.GetDLQ(ctx, entryID)
	if err != nil {
		return err
	}
	return s.resolve(ctx, entry, notes, false, id.Nil)
}

// Retry re-enqueues a fresh pending item from the entry's snapshot and
// resolves the entry with a back-reference to the replacement. The new
// item gets a fresh ID, a zero retry count, and dispatches immediately.
func (s *Service) Retry(ctx context.Context, entryID id.DLQID, notes string) (*item.Item, error) {
	entry, err := s.store.GetDLQ(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Resolved() {
		return nil, courier.ErrAlreadyResolved
	}

	replacement := item.New(entry.Platform, entry.Payload,
		item.WithScope(entry.ScopeUserID, entry.ScopeTeamID),
	)
	if err := s.itemStore.EnqueueItem(ctx, replacement); err != nil {
		return nil, err
	}

	if err := s.resolve(ctx, entry, notes, false, replacement.ID); err != nil {
		// The replacement is already enqueued; surface the bookkeeping
		// failure but keep the new item.
		return replacement, err
	}

	s.logger.Info("dead letter entry retried",
		slog.String("entry_id", entryID.String()),
		slog.String("replacement_id", replacement.ID.String()))

	return replacement, nil
}

// Delete resolves an entry with a deletion marker. Rows are never
// physically removed here; see Purge.
func (s *Service) Delete(ctx context.Context, entryID id.DLQID, notes string) error {
	entry, err := s.store.GetDLQ(ctx, entryID)
	if err != nil {
		return err
	}
	return s.resolve(ctx, entry, notes, true, id.Nil)
}

func (s *Service) resolve(ctx context.Context, entry *Entry, notes string, deleted bool, replacementID id.ItemID) error {
	if entry.Resolved() {
		return courier.ErrAlreadyResolved
	}

	now := time.Now().UTC()
	entry.ResolvedAt = &now
	entry.ResolutionNotes = notes
	entry.Deleted = deleted
	entry.ReplacementID = replacementID
	entry.UpdatedAt = now

	return s.store.UpdateDLQ(ctx, entry)
}

// BulkAction applies one action uniformly across many entries and
// reports per-entry outcomes. Already-resolved entries are skipped and
// counted as failures. One bad entry never stops the rest.
func (s *Service) BulkAction(ctx context.Context, entryIDs []id.DLQID, action Action, notes string) (*BulkResult, error) {
	result := &BulkResult{Results: make([]BulkItemResult, 0, len(entryIDs))}

	for _, entryID := range entryIDs {
		var err error
		switch action {
		case ActionResolve:
			err = s.Resolve(ctx, entryID, notes)
		case ActionRetry:
			_, err = s.Retry(ctx, entryID, notes)
		case ActionDelete:
			err = s.Delete(ctx, entryID, notes)
		default:
			return nil, fmt.Errorf("dlq: unknown action %q", action)
		}

		r := BulkItemResult{EntryID: entryID, OK: err == nil}
		if err != nil {
			r.Error = err.Error()
			r.Skipped = errors.Is(err, courier.ErrAlreadyResolved)
			result.Failed++
		} else {
			result.Succeeded++
		}
		result.Results = append(result.Results, r)
	}

	return result, nil
}

// List returns entries matching the given options, newest first.
func (s *Service) List(ctx context.Context, opts ListOpts) ([]*Entry, error) {
	return s.store.ListDLQ(ctx, opts)
}

// Get retrieves an entry by ID.
func (s *Service) Get(ctx context.Context, entryID id.DLQID) (*Entry, error) {
	return s.store.GetDLQ(ctx, entryID)
}

// Count returns the number of entries matching the given options.
func (s *Service) Count(ctx context.Context, opts CountOpts) (int64, error) {
	return s.store.CountDLQ(ctx, opts)
}

// Purge physically removes resolved entries quarantined before the
// given time. Returns the number removed.
func (s *Service) Purge(ctx context.Context, before time.Time) (int64, error) {
	return s.store.PurgeDLQ(ctx, before)
}
