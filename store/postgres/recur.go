package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/courier"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/item"
	"github.com/xraph/courier/recur"
)

const recurColumns = `
	id, name, schedule, platform, payload, priority, max_retries,
	scope_user_id, scope_team_id,
	last_run_at, next_run_at, locked_by, locked_until,
	enabled, created_at, updated_at`

// RegisterRecur persists a new recurring entry. Returns an error if the
// name already exists.
func (s *Store) RegisterRecur(ctx context.Context, entry *recur.Entry) error {
	payload, err := marshalPayload(entry.Payload)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO courier_recur_entries (
			id, name, schedule, platform, payload, priority, max_retries,
			scope_user_id, scope_team_id,
			last_run_at, next_run_at, locked_by, locked_until,
			enabled, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		entry.ID.String(), entry.Name, entry.Schedule, entry.Platform,
		payload, int(entry.Priority), entry.MaxRetries,
		entry.ScopeUserID, entry.ScopeTeamID,
		entry.LastRunAt, entry.NextRunAt, nilIfEmpty(entry.LockedBy), entry.LockedUntil,
		entry.Enabled, entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return courier.ErrDuplicateRecur
		}
		return fmt.Errorf("courier/postgres: register recur: %w", err)
	}
	return nil
}

// GetRecur retrieves a recurring entry by ID.
func (s *Store) GetRecur(ctx context.Context, entryID id.RecurID) (*recur.Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recurColumns+` FROM courier_recur_entries WHERE id = $1`,
		entryID.String(),
	)

	e, err := scanRecur(row)
	if err != nil {
		if isNoRows(err) {
			return nil, courier.ErrRecurNotFound
		}
		return nil, fmt.Errorf("courier/postgres: get recur: %w", err)
	}
	return e, nil
}

// ListRecurs returns all recurring entries.
func (s *Store) ListRecurs(ctx context.Context) ([]*recur.Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+recurColumns+` FROM courier_recur_entries ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("courier/postgres: list recurs: %w", err)
	}
	defer rows.Close()

	var entries []*recur.Entry
	for rows.Next() {
		e, scanErr := scanRecur(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("courier/postgres: scan recur row: %w", scanErr)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("courier/postgres: iterate recur rows: %w", err)
	}
	return entries, nil
}

// AcquireRecurLock attempts to acquire the firing lock for an entry.
// A single UPDATE makes the check-and-set atomic across instances.
func (s *Store) AcquireRecurLock(ctx context.Context, entryID id.RecurID, owner string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	until := now.Add(ttl)

	// Succeed if no lock, lock expired, or we already hold it.
	tag, err := s.pool.Exec(ctx, `
		UPDATE courier_recur_entries
		SET locked_by = $2, locked_until = $3, updated_at = NOW()
		WHERE id = $1
		  AND (locked_by IS NULL OR locked_until < $4 OR locked_by = $2)`,
		entryID.String(), owner, until, now,
	)
	if err != nil {
		return false, fmt.Errorf("courier/postgres: acquire recur lock: %w", err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		existErr := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM courier_recur_entries WHERE id = $1)`,
			entryID.String(),
		).Scan(&exists)
		if existErr != nil {
			return false, fmt.Errorf("courier/postgres: check recur exists: %w", existErr)
		}
		if !exists {
			return false, courier.ErrRecurNotFound
		}
		// Entry exists but the lock is held by another instance.
		return false, nil
	}

	return true, nil
}

// ReleaseRecurLock releases the firing lock for an entry.
func (s *Store) ReleaseRecurLock(ctx context.Context, entryID id.RecurID, owner string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE courier_recur_entries
		SET locked_by = NULL, locked_until = NULL, updated_at = NOW()
		WHERE id = $1 AND locked_by = $2`,
		entryID.String(), owner,
	)
	if err != nil {
		return fmt.Errorf("courier/postgres: release recur lock: %w", err)
	}
	return nil
}

// UpdateRecurLastRun records when an entry last fired.
func (s *Store) UpdateRecurLastRun(ctx context.Context, entryID id.RecurID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE courier_recur_entries
		SET last_run_at = $2, updated_at = NOW()
		WHERE id = $1`,
		entryID.String(), at,
	)
	if err != nil {
		return fmt.Errorf("courier/postgres: update recur last run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return courier.ErrRecurNotFound
	}
	return nil
}

// UpdateRecurEntry updates a recurring entry. Lock and last-run columns
// are owned by their dedicated methods and are not touched here.
func (s *Store) UpdateRecurEntry(ctx context.Context, entry *recur.Entry) error {
	payload, err := marshalPayload(entry.Payload)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE courier_recur_entries SET
			name = $2, schedule = $3, platform = $4, payload = $5,
			priority = $6, max_retries = $7,
			scope_user_id = $8, scope_team_id = $9,
			next_run_at = $10, enabled = $11, updated_at = NOW()
		WHERE id = $1`,
		entry.ID.String(), entry.Name, entry.Schedule, entry.Platform, payload,
		int(entry.Priority), entry.MaxRetries,
		entry.ScopeUserID, entry.ScopeTeamID,
		entry.NextRunAt, entry.Enabled,
	)
	if err != nil {
		return fmt.Errorf("courier/postgres: update recur entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return courier.ErrRecurNotFound
	}
	return nil
}

// DeleteRecur removes a recurring entry by ID.
func (s *Store) DeleteRecur(ctx context.Context, entryID id.RecurID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM courier_recur_entries WHERE id = $1`, entryID.String())
	if err != nil {
		return fmt.Errorf("courier/postgres: delete recur: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return courier.ErrRecurNotFound
	}
	return nil
}

// nilIfEmpty maps an empty string to SQL NULL.
func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// scanRecur scans a single recurring entry row.
func scanRecur(row pgx.Row) (*recur.Entry, error) {
	var (
		e          recur.Entry
		idStr      string
		priority   int
		lockBy     *string
		payloadRaw []byte
	)
	err := row.Scan(
		&idStr, &e.Name, &e.Schedule, &e.Platform, &payloadRaw, &priority, &e.MaxRetries,
		&e.ScopeUserID, &e.ScopeTeamID,
		&e.LastRunAt, &e.NextRunAt, &lockBy, &e.LockedUntil,
		&e.Enabled, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Priority = item.Priority(priority)

	if err := unmarshalPayload(payloadRaw, &e.Payload); err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseRecurID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("courier/postgres: parse recur id %q: %w", idStr, parseErr)
	}
	e.ID = parsedID

	if lockBy != nil {
		e.LockedBy = *lockBy
	}

	return &e, nil
}
