package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO courier_recur_entries (
			id, name, schedule, platform, payload, priority, max_retries,
			scope_user_id, scope_team_id,
			last_run_at, next_run_at, locked_by, locked_until,
			enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID.String(), entry.Name, entry.Schedule, entry.Platform,
		string(payload), int(entry.Priority), entry.MaxRetries,
		entry.ScopeUserID, entry.ScopeTeamID,
		fmtTimePtr(entry.LastRunAt), fmtTimePtr(entry.NextRunAt),
		nullIfEmpty(entry.LockedBy), fmtTimePtr(entry.LockedUntil),
		entry.Enabled, fmtTime(entry.CreatedAt), fmtTime(entry.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return courier.ErrDuplicateRecur
		}
		return fmt.Errorf("courier/sqlite: register recur: %w", err)
	}
	return nil
}

// GetRecur retrieves a recurring entry by ID.
func (s *Store) GetRecur(ctx context.Context, entryID id.RecurID) (*recur.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recurColumns+` FROM courier_recur_entries WHERE id = ?`,
		entryID.String(),
	)

	e, err := scanRecur(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, courier.ErrRecurNotFound
		}
		return nil, fmt.Errorf("courier/sqlite: get recur: %w", err)
	}
	return e, nil
}

// ListRecurs returns all recurring entries.
func (s *Store) ListRecurs(ctx context.Context) ([]*recur.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recurColumns+` FROM courier_recur_entries ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("courier/sqlite: list recurs: %w", err)
	}
	defer rows.Close()

	var entries []*recur.Entry
	for rows.Next() {
		e, scanErr := scanRecur(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("courier/sqlite: scan recur row: %w", scanErr)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("courier/sqlite: iterate recur rows: %w", err)
	}
	return entries, nil
}

// AcquireRecurLock attempts to acquire the firing lock for an entry.
func (s *Store) AcquireRecurLock(ctx context.Context, entryID id.RecurID, owner string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	until := now.Add(ttl)

	// Succeed if no lock, lock expired, or we already hold it.
	res, err := s.db.ExecContext(ctx, `
		UPDATE courier_recur_entries
		SET locked_by = ?, locked_until = ?, updated_at = ?
		WHERE id = ?
		  AND (locked_by IS NULL OR locked_until < ? OR locked_by = ?)`,
		owner, fmtTime(until), fmtTime(now), entryID.String(), fmtTime(now), owner,
	)
	if err != nil {
		return false, fmt.Errorf("courier/sqlite: acquire recur lock: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		var exists bool
		existErr := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM courier_recur_entries WHERE id = ?)`,
			entryID.String(),
		).Scan(&exists)
		if existErr != nil {
			return false, fmt.Errorf("courier/sqlite: check recur exists: %w", existErr)
		}
		if !exists {
			return false, courier.ErrRecurNotFound
		}
		return false, nil
	}

	return true, nil
}

// ReleaseRecurLock releases the firing lock for an entry.
func (s *Store) ReleaseRecurLock(ctx context.Context, entryID id.RecurID, owner string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE courier_recur_entries
		SET locked_by = NULL, locked_until = NULL, updated_at = ?
		WHERE id = ? AND locked_by = ?`,
		fmtTime(time.Now()), entryID.String(), owner,
	)
	if err != nil {
		return fmt.Errorf("courier/sqlite: release recur lock: %w", err)
	}
	return nil
}

// UpdateRecurLastRun records when an entry last fired.
func (s *Store) UpdateRecurLastRun(ctx context.Context, entryID id.RecurID, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE courier_recur_entries
		SET last_run_at = ?, updated_at = ?
		WHERE id = ?`,
		fmtTime(at), fmtTime(time.Now()), entryID.String(),
	)
	if err != nil {
		return fmt.Errorf("courier/sqlite: update recur last run: %w", err)
	}
	return requireRow(res, courier.ErrRecurNotFound)
}

// UpdateRecurEntry updates a recurring entry. Lock and last-run columns
// are owned by their dedicated methods and are not touched here.
func (s *Store) UpdateRecurEntry(ctx context.Context, entry *recur.Entry) error {
	payload, err := marshalPayload(entry.Payload)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE courier_recur_entries SET
			name = ?, schedule = ?, platform = ?, payload = ?,
			priority = ?, max_retries = ?,
			scope_user_id = ?, scope_team_id = ?,
			next_run_at = ?, enabled = ?, updated_at = ?
		WHERE id = ?`,
		entry.Name, entry.Schedule, entry.Platform, string(payload),
		int(entry.Priority), entry.MaxRetries,
		entry.ScopeUserID, entry.ScopeTeamID,
		fmtTimePtr(entry.NextRunAt), entry.Enabled, fmtTime(time.Now()),
		entry.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("courier/sqlite: update recur entry: %w", err)
	}
	return requireRow(res, courier.ErrRecurNotFound)
}

// DeleteRecur removes a recurring entry by ID.
func (s *Store) DeleteRecur(ctx context.Context, entryID id.RecurID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM courier_recur_entries WHERE id = ?`, entryID.String())
	if err != nil {
		return fmt.Errorf("courier/sqlite: delete recur: %w", err)
	}
	return requireRow(res, courier.ErrRecurNotFound)
}

// nullIfEmpty maps an empty string to SQL NULL.
func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// scanRecur scans a single recurring entry row.
func scanRecur(row scanner) (*recur.Entry, error) {
	var (
		e          recur.Entry
		idStr      string
		priority   int
		payloadRaw string

		createdAtStr, updatedAtStr          string
		lastRunNS, nextRunNS, lockedUntilNS sql.NullString
		lockedByNS                          sql.NullString
	)
	err := row.Scan(
		&idStr, &e.Name, &e.Schedule, &e.Platform, &payloadRaw, &priority, &e.MaxRetries,
		&e.ScopeUserID, &e.ScopeTeamID,
		&lastRunNS, &nextRunNS, &lockedByNS, &lockedUntilNS,
		&e.Enabled, &createdAtStr, &updatedAtStr,
	)
	if err != nil {
		return nil, err
	}

	e.Priority = item.Priority(priority)
	e.LockedBy = lockedByNS.String

	if err := unmarshalPayload([]byte(payloadRaw), &e.Payload); err != nil {
		return nil, err
	}

	if e.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseTime(updatedAtStr); err != nil {
		return nil, err
	}
	if e.LastRunAt, err = parseTimePtr(lastRunNS); err != nil {
		return nil, err
	}
	if e.NextRunAt, err = parseTimePtr(nextRunNS); err != nil {
		return nil, err
	}
	if e.LockedUntil, err = parseTimePtr(lockedUntilNS); err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseRecurID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("courier/sqlite: parse recur id %q: %w", idStr, parseErr)
	}
	e.ID = parsedID

	return &e, nil
}
