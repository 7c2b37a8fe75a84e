package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/courier"
	"github.com/xraph/courier/dlq"
	"github.com/xraph/courier/id"
)

const dlqColumns = `
	id, item_id, platform, payload, failure_reason, last_error,
	retry_count, moved_at, resolved_at, resolution_notes,
	replacement_id, deleted, scope_user_id, scope_team_id,
	created_at, updated_at`

// PushDLQ adds a quarantined entry to the dead letter queue.
func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	payload, err := marshalPayload(entry.Payload)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO courier_dlq (
			id, item_id, platform, payload, failure_reason, last_error,
			retry_count, moved_at, resolved_at, resolution_notes,
			replacement_id, deleted, scope_user_id, scope_team_id,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID.String(), entry.ItemID.String(), entry.Platform,
		string(payload), string(entry.FailureReason), entry.LastError,
		entry.RetryCount, fmtTime(entry.MovedAt), fmtTimePtr(entry.ResolvedAt),
		entry.ResolutionNotes, entry.ReplacementID.String(), entry.Deleted,
		entry.ScopeUserID, entry.ScopeTeamID,
		fmtTime(entry.CreatedAt), fmtTime(entry.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("courier/sqlite: push dlq: %w", err)
	}
	return nil
}

// GetDLQ retrieves a DLQ entry by ID.
func (s *Store) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+dlqColumns+` FROM courier_dlq WHERE id = ?`,
		entryID.String(),
	)

	e, err := scanDLQ(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, courier.ErrDLQNotFound
		}
		return nil, fmt.Errorf("courier/sqlite: get dlq: %w", err)
	}
	return e, nil
}

// UpdateDLQ persists resolution changes to an existing entry.
func (s *Store) UpdateDLQ(ctx context.Context, entry *dlq.Entry) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE courier_dlq SET
			resolved_at = ?, resolution_notes = ?,
			replacement_id = ?, deleted = ?, updated_at = ?
		WHERE id = ?`,
		fmtTimePtr(entry.ResolvedAt), entry.ResolutionNotes,
		entry.ReplacementID.String(), entry.Deleted, fmtTime(time.Now()),
		entry.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("courier/sqlite: update dlq: %w", err)
	}
	return requireRow(res, courier.ErrDLQNotFound)
}

// ListDLQ returns DLQ entries matching the given options, newest first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	query := `SELECT ` + dlqColumns + ` FROM courier_dlq WHERE 1=1`
	args := []interface{}{}

	if opts.Platform != "" {
		query += ` AND platform = ?`
		args = append(args, opts.Platform)
	}
	if opts.Unresolved {
		query += ` AND resolved_at IS NULL`
	}

	query += ` ORDER BY moved_at DESC`

	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, opts.Offset)
		}
	} else if opts.Offset > 0 {
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("courier/sqlite: list dlq: %w", err)
	}
	defer rows.Close()

	var entries []*dlq.Entry
	for rows.Next() {
		e, scanErr := scanDLQ(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("courier/sqlite: scan dlq row: %w", scanErr)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("courier/sqlite: iterate dlq rows: %w", err)
	}
	return entries, nil
}

// CountDLQ returns the number of entries matching the given options.
func (s *Store) CountDLQ(ctx context.Context, opts dlq.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM courier_dlq WHERE 1=1`
	args := []interface{}{}

	if opts.Platform != "" {
		query += ` AND platform = ?`
		args = append(args, opts.Platform)
	}
	if opts.Unresolved {
		query += ` AND resolved_at IS NULL`
	}

	var count int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("courier/sqlite: count dlq: %w", err)
	}
	return count, nil
}

// PurgeDLQ removes resolved entries with MovedAt before the given time.
// Unresolved entries are never purged. Returns the number removed.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM courier_dlq WHERE resolved_at IS NOT NULL AND moved_at < ?`,
		fmtTime(before),
	)
	if err != nil {
		return 0, fmt.Errorf("courier/sqlite: purge dlq: %w", err)
	}
	return res.RowsAffected()
}

// scanDLQ scans a single DLQ entry row.
func scanDLQ(row scanner) (*dlq.Entry, error) {
	var (
		e          dlq.Entry
		idStr      string
		itemIDStr  string
		reasonStr  string
		replStr    string
		payloadRaw string

		movedAtStr, createdAtStr, updatedAtStr string
		resolvedNS                             sql.NullString
	)
	err := row.Scan(
		&idStr, &itemIDStr, &e.Platform, &payloadRaw, &reasonStr, &e.LastError,
		&e.RetryCount, &movedAtStr, &resolvedNS, &e.ResolutionNotes,
		&replStr, &e.Deleted, &e.ScopeUserID, &e.ScopeTeamID,
		&createdAtStr, &updatedAtStr,
	)
	if err != nil {
		return nil, err
	}

	e.FailureReason = dlq.FailureReason(reasonStr)

	if err := unmarshalPayload([]byte(payloadRaw), &e.Payload); err != nil {
		return nil, err
	}

	if e.MovedAt, err = parseTime(movedAtStr); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseTime(updatedAtStr); err != nil {
		return nil, err
	}
	if e.ResolvedAt, err = parseTimePtr(resolvedNS); err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseDLQID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("courier/sqlite: parse dlq id %q: %w", idStr, parseErr)
	}
	e.ID = parsedID

	parsedItemID, itemParseErr := id.ParseItemID(itemIDStr)
	if itemParseErr != nil {
		return nil, fmt.Errorf("courier/sqlite: parse item id %q: %w", itemIDStr, itemParseErr)
	}
	e.ItemID = parsedItemID

	if replStr != "" {
		parsedRepl, replErr := id.ParseItemID(replStr)
		if replErr == nil {
			e.ReplacementID = parsedRepl
		}
	}

	return &e, nil
}
