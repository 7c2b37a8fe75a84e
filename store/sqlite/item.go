package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/courier"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/item"
)

const itemColumns = `
	id, platform, payload, status, priority, scheduled_at,
	max_retries, retry_count, retry_delay, next_retry_at,
	last_error, last_error_type, external_post_id, posted_at, processing_at,
	scope_user_id, scope_team_id, metadata, created_at, updated_at`

// EnqueueItem persists a new item in pending state.
func (s *Store) EnqueueItem(ctx context.Context, it *item.Item) error {
	payload, err := marshalPayload(it.Payload)
	if err != nil {
		return err
	}
	metadata, err := marshalMetadata(it.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO courier_items (
			id, platform, payload, status, priority, scheduled_at,
			max_retries, retry_count, retry_delay, next_retry_at,
			last_error, last_error_type, external_post_id, posted_at, processing_at,
			scope_user_id, scope_team_id, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.ID.String(), it.Platform, string(payload), string(it.Status),
		int(it.Priority), fmtTime(it.ScheduledAt),
		it.MaxRetries, it.RetryCount, it.RetryDelay.Nanoseconds(), fmtTimePtr(it.NextRetryAt),
		it.LastError, it.LastErrorType, it.ExternalPostID,
		fmtTimePtr(it.PostedAt), fmtTimePtr(it.ProcessingAt),
		it.ScopeUserID, it.ScopeTeamID, metadata,
		fmtTime(it.CreatedAt), fmtTime(it.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return courier.ErrItemAlreadyExists
		}
		return fmt.Errorf("courier/sqlite: enqueue item: %w", err)
	}
	return nil
}

// DequeueDue atomically claims up to limit due items for the given
// platforms, sets them to processing, and returns them. The select and
// claim run in one transaction; SQLite serializes writers, so no two
// callers can claim the same item.
func (s *Store) DequeueDue(ctx context.Context, platforms []string, limit int) ([]*item.Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("courier/sqlite: begin dequeue: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := fmtTime(time.Now())

	query := `SELECT ` + itemColumns + `
		FROM courier_items
		WHERE status IN ('pending', 'retrying')
		  AND scheduled_at <= ?
		  AND (next_retry_at IS NULL OR next_retry_at <= ?)`
	args := []interface{}{now, now}

	if len(platforms) > 0 {
		query += ` AND platform IN (` + placeholders(len(platforms)) + `)`
		for _, p := range platforms {
			args = append(args, p)
		}
	}

	query += ` ORDER BY priority DESC, scheduled_at ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("courier/sqlite: dequeue due: %w", err)
	}

	items, err := collectItems(rows)
	if err != nil {
		return nil, err
	}

	claimedAt := time.Now().UTC()
	for _, it := range items {
		if _, execErr := tx.ExecContext(ctx, `
			UPDATE courier_items
			SET status = 'processing', processing_at = ?, updated_at = ?
			WHERE id = ?`,
			fmtTime(claimedAt), fmtTime(claimedAt), it.ID.String(),
		); execErr != nil {
			return nil, fmt.Errorf("courier/sqlite: claim item: %w", execErr)
		}
		it.Status = item.StatusProcessing
		at := claimedAt
		it.ProcessingAt = &at
		it.UpdatedAt = claimedAt
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("courier/sqlite: commit dequeue: %w", err)
	}
	return items, nil
}

// GetItem retrieves an item by ID.
func (s *Store) GetItem(ctx context.Context, itemID id.ItemID) (*item.Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM courier_items WHERE id = ?`,
		itemID.String(),
	)

	it, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, courier.ErrItemNotFound
		}
		return nil, fmt.Errorf("courier/sqlite: get item: %w", err)
	}
	return it, nil
}

// UpdateItem persists changes to an existing item.
func (s *Store) UpdateItem(ctx context.Context, it *item.Item) error {
	payload, err := marshalPayload(it.Payload)
	if err != nil {
		return err
	}
	metadata, err := marshalMetadata(it.Metadata)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE courier_items SET
			platform = ?, payload = ?, status = ?, priority = ?,
			scheduled_at = ?, max_retries = ?, retry_count = ?,
			retry_delay = ?, next_retry_at = ?,
			last_error = ?, last_error_type = ?,
			external_post_id = ?, posted_at = ?, processing_at = ?,
			scope_user_id = ?, scope_team_id = ?, metadata = ?,
			updated_at = ?
		WHERE id = ?`,
		it.Platform, string(payload), string(it.Status), int(it.Priority),
		fmtTime(it.ScheduledAt), it.MaxRetries, it.RetryCount,
		it.RetryDelay.Nanoseconds(), fmtTimePtr(it.NextRetryAt),
		it.LastError, it.LastErrorType,
		it.ExternalPostID, fmtTimePtr(it.PostedAt), fmtTimePtr(it.ProcessingAt),
		it.ScopeUserID, it.ScopeTeamID, metadata,
		fmtTime(time.Now()), it.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("courier/sqlite: update item: %w", err)
	}
	return requireRow(res, courier.ErrItemNotFound)
}

// DeleteItem removes an item by ID.
func (s *Store) DeleteItem(ctx context.Context, itemID id.ItemID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM courier_items WHERE id = ?`, itemID.String())
	if err != nil {
		return fmt.Errorf("courier/sqlite: delete item: %w", err)
	}
	return requireRow(res, courier.ErrItemNotFound)
}

// ListItemsByStatus returns items matching the given status.
func (s *Store) ListItemsByStatus(ctx context.Context, status item.Status, opts item.ListOpts) ([]*item.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM courier_items WHERE status = ?`
	args := []interface{}{string(status)}

	if opts.Platform != "" {
		query += ` AND platform = ?`
		args = append(args, opts.Platform)
	}

	query += ` ORDER BY priority DESC, scheduled_at ASC`

	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, opts.Offset)
		}
	} else if opts.Offset > 0 {
		// SQLite requires LIMIT before OFFSET; -1 means unlimited.
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("courier/sqlite: list items by status: %w", err)
	}

	return collectItems(rows)
}

// NextDue returns upcoming pending and retrying items ordered by their
// effective due time, soonest first. RFC3339 text timestamps sort
// lexicographically, so COALESCE plus ORDER BY works on the raw columns.
func (s *Store) NextDue(ctx context.Context, limit int) ([]*item.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM courier_items
		WHERE status IN ('pending', 'retrying')
		ORDER BY COALESCE(next_retry_at, scheduled_at) ASC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("courier/sqlite: next due: %w", err)
	}

	return collectItems(rows)
}

// ReapStaleItems returns processing items claimed longer ago than the
// given threshold.
func (s *Store) ReapStaleItems(ctx context.Context, threshold time.Duration) ([]*item.Item, error) {
	cutoff := fmtTime(time.Now().Add(-threshold))

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM courier_items
		WHERE status = 'processing'
		  AND processing_at IS NOT NULL
		  AND processing_at < ?`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("courier/sqlite: reap stale items: %w", err)
	}

	return collectItems(rows)
}

// CountItems returns the number of items matching the given options.
func (s *Store) CountItems(ctx context.Context, opts item.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM courier_items WHERE 1=1`
	args := []interface{}{}

	if opts.Platform != "" {
		query += ` AND platform = ?`
		args = append(args, opts.Platform)
	}
	if opts.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(opts.Status))
	}

	var count int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("courier/sqlite: count items: %w", err)
	}
	return count, nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanItem scans a single item row.
func scanItem(row scanner) (*item.Item, error) {
	var (
		it           item.Item
		idStr        string
		statusStr    string
		priority     int
		payloadRaw   string
		metadataNS   sql.NullString
		retryDelayNs int64

		scheduledAtStr, createdAtStr, updatedAtStr string
		nextRetryNS, postedNS, processingNS        sql.NullString
	)
	err := row.Scan(
		&idStr, &it.Platform, &payloadRaw, &statusStr, &priority, &scheduledAtStr,
		&it.MaxRetries, &it.RetryCount, &retryDelayNs, &nextRetryNS,
		&it.LastError, &it.LastErrorType, &it.ExternalPostID, &postedNS, &processingNS,
		&it.ScopeUserID, &it.ScopeTeamID, &metadataNS, &createdAtStr, &updatedAtStr,
	)
	if err != nil {
		return nil, err
	}

	it.Status = item.Status(statusStr)
	it.Priority = item.Priority(priority)
	it.RetryDelay = time.Duration(retryDelayNs)

	if err := unmarshalPayload([]byte(payloadRaw), &it.Payload); err != nil {
		return nil, err
	}
	if err := unmarshalMetadata(metadataNS, &it.Metadata); err != nil {
		return nil, err
	}

	if it.ScheduledAt, err = parseTime(scheduledAtStr); err != nil {
		return nil, err
	}
	if it.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, err
	}
	if it.UpdatedAt, err = parseTime(updatedAtStr); err != nil {
		return nil, err
	}
	if it.NextRetryAt, err = parseTimePtr(nextRetryNS); err != nil {
		return nil, err
	}
	if it.PostedAt, err = parseTimePtr(postedNS); err != nil {
		return nil, err
	}
	if it.ProcessingAt, err = parseTimePtr(processingNS); err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseItemID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("courier/sqlite: parse item id %q: %w", idStr, parseErr)
	}
	it.ID = parsedID

	return &it, nil
}

// collectItems collects all items from query rows and closes them.
func collectItems(rows *sql.Rows) ([]*item.Item, error) {
	defer rows.Close()

	var items []*item.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("courier/sqlite: scan item row: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("courier/sqlite: iterate item rows: %w", err)
	}
	return items, nil
}

// placeholders builds a "?, ?, ?" list of the given length.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// requireRow converts a zero-row result into notFound.
func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// isUniqueViolation reports whether err is a SQLite unique constraint
// failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
