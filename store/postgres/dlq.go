package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

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

	_, err = s.pool.Exec(ctx, `
		INSERT INTO courier_dlq (
			id, item_id, platform, payload, failure_reason, last_error,
			retry_count, moved_at, resolved_at, resolution_notes,
			replacement_id, deleted, scope_user_id, scope_team_id,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		entry.ID.String(), entry.ItemID.String(), entry.Platform,
		payload, string(entry.FailureReason), entry.LastError,
		entry.RetryCount, entry.MovedAt, entry.ResolvedAt, entry.ResolutionNotes,
		entry.ReplacementID.String(), entry.Deleted, entry.ScopeUserID, entry.ScopeTeamID,
		entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("courier/postgres: push dlq: %w", err)
	}
	return nil
}

// GetDLQ retrieves a DLQ entry by ID.
func (s *Store) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+dlqColumns+` FROM courier_dlq WHERE id = $1`,
		entryID.String(),
	)

	e, err := scanDLQ(row)
	if err != nil {
		if isNoRows(err) {
			return nil, courier.ErrDLQNotFound
		}
		return nil, fmt.Errorf("courier/postgres: get dlq: %w", err)
	}
	return e, nil
}

// UpdateDLQ persists resolution changes to an existing entry.
func (s *Store) UpdateDLQ(ctx context.Context, entry *dlq.Entry) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE courier_dlq SET
			resolved_at = $2, resolution_notes = $3,
			replacement_id = $4, deleted = $5,
			updated_at = NOW()
		WHERE id = $1`,
		entry.ID.String(), entry.ResolvedAt, entry.ResolutionNotes,
		entry.ReplacementID.String(), entry.Deleted,
	)
	if err != nil {
		return fmt.Errorf("courier/postgres: update dlq: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return courier.ErrDLQNotFound
	}
	return nil
}

// ListDLQ returns DLQ entries matching the given options, newest first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	query := `SELECT ` + dlqColumns + ` FROM courier_dlq WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if opts.Platform != "" {
		query += fmt.Sprintf(" AND platform = $%d", argIdx)
		args = append(args, opts.Platform)
		argIdx++
	}
	if opts.Unresolved {
		query += " AND resolved_at IS NULL"
	}

	query += " ORDER BY moved_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("courier/postgres: list dlq: %w", err)
	}
	defer rows.Close()

	var entries []*dlq.Entry
	for rows.Next() {
		e, scanErr := scanDLQ(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("courier/postgres: scan dlq row: %w", scanErr)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("courier/postgres: iterate dlq rows: %w", err)
	}
	return entries, nil
}

// CountDLQ returns the number of entries matching the given options.
func (s *Store) CountDLQ(ctx context.Context, opts dlq.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM courier_dlq WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if opts.Platform != "" {
		query += fmt.Sprintf(" AND platform = $%d", argIdx)
		args = append(args, opts.Platform)
	}
	if opts.Unresolved {
		query += " AND resolved_at IS NULL"
	}

	var count int64
	err := s.pool.QueryRow(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("courier/postgres: count dlq: %w", err)
	}
	return count, nil
}

// PurgeDLQ removes resolved entries with MovedAt before the given time.
// Unresolved entries are never purged. Returns the number removed.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM courier_dlq WHERE resolved_at IS NOT NULL AND moved_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("courier/postgres: purge dlq: %w", err)
	}
	return tag.RowsAffected(), nil
}

// scanDLQ scans a single DLQ entry row.
func scanDLQ(row pgx.Row) (*dlq.Entry, error) {
	var (
		e          dlq.Entry
		idStr      string
		itemIDStr  string
		reasonStr  string
		replStr    string
		payloadRaw []byte
	)
	err := row.Scan(
		&idStr, &itemIDStr, &e.Platform, &payloadRaw, &reasonStr, &e.LastError,
		&e.RetryCount, &e.MovedAt, &e.ResolvedAt, &e.ResolutionNotes,
		&replStr, &e.Deleted, &e.ScopeUserID, &e.ScopeTeamID,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.FailureReason = dlq.FailureReason(reasonStr)

	if err := unmarshalPayload(payloadRaw, &e.Payload); err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseDLQID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("courier/postgres: parse dlq id %q: %w", idStr, parseErr)
	}
	e.ID = parsedID

	parsedItemID, itemParseErr := id.ParseItemID(itemIDStr)
	if itemParseErr != nil {
		return nil, fmt.Errorf("courier/postgres: parse item id %q: %w", itemIDStr, itemParseErr)
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
