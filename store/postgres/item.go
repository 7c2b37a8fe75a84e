package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

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

	_, err = s.pool.Exec(ctx, `
		INSERT INTO courier_items (
			id, platform, payload, status, priority, scheduled_at,
			max_retries, retry_count, retry_delay, next_retry_at,
			last_error, last_error_type, external_post_id, posted_at, processing_at,
			scope_user_id, scope_team_id, metadata, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20
		)`,
		it.ID.String(), it.Platform, payload, string(it.Status),
		int(it.Priority), it.ScheduledAt,
		it.MaxRetries, it.RetryCount, it.RetryDelay.Nanoseconds(), it.NextRetryAt,
		it.LastError, it.LastErrorType, it.ExternalPostID, it.PostedAt, it.ProcessingAt,
		it.ScopeUserID, it.ScopeTeamID, metadata, it.CreatedAt, it.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return courier.ErrItemAlreadyExists
		}
		return fmt.Errorf("courier/postgres: enqueue item: %w", err)
	}
	return nil
}

// DequeueDue atomically claims up to limit due items for the given
// platforms, sets them to processing, and returns them. Uses SELECT FOR
// UPDATE SKIP LOCKED for concurrent-safe dequeue across instances.
func (s *Store) DequeueDue(ctx context.Context, platforms []string, limit int) ([]*item.Item, error) {
	rows, err := s.pool.Query(ctx, `
		WITH claimed AS (
			UPDATE courier_items
			SET status = 'processing', processing_at = NOW(), updated_at = NOW()
			WHERE id IN (
				SELECT id FROM courier_items
				WHERE status IN ('pending', 'retrying')
				  AND (cardinality($1::text[]) = 0 OR platform = ANY($1))
				  AND scheduled_at <= NOW()
				  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
				ORDER BY priority DESC, scheduled_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT $2
			)
			RETURNING `+itemColumns+`
		)
		SELECT * FROM claimed ORDER BY priority DESC, scheduled_at ASC`,
		platforms, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("courier/postgres: dequeue due: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// GetItem retrieves an item by ID.
func (s *Store) GetItem(ctx context.Context, itemID id.ItemID) (*item.Item, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM courier_items WHERE id = $1`,
		itemID.String(),
	)

	it, err := scanItem(row)
	if err != nil {
		if isNoRows(err) {
			return nil, courier.ErrItemNotFound
		}
		return nil, fmt.Errorf("courier/postgres: get item: %w", err)
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

	tag, err := s.pool.Exec(ctx, `
		UPDATE courier_items SET
			platform = $2, payload = $3, status = $4, priority = $5,
			scheduled_at = $6, max_retries = $7, retry_count = $8,
			retry_delay = $9, next_retry_at = $10,
			last_error = $11, last_error_type = $12,
			external_post_id = $13, posted_at = $14, processing_at = $15,
			scope_user_id = $16, scope_team_id = $17, metadata = $18,
			updated_at = NOW()
		WHERE id = $1`,
		it.ID.String(), it.Platform, payload, string(it.Status),
		int(it.Priority), it.ScheduledAt, it.MaxRetries, it.RetryCount,
		it.RetryDelay.Nanoseconds(), it.NextRetryAt,
		it.LastError, it.LastErrorType,
		it.ExternalPostID, it.PostedAt, it.ProcessingAt,
		it.ScopeUserID, it.ScopeTeamID, metadata,
	)
	if err != nil {
		return fmt.Errorf("courier/postgres: update item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return courier.ErrItemNotFound
	}
	return nil
}

// DeleteItem removes an item by ID.
func (s *Store) DeleteItem(ctx context.Context, itemID id.ItemID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM courier_items WHERE id = $1`, itemID.String())
	if err != nil {
		return fmt.Errorf("courier/postgres: delete item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return courier.ErrItemNotFound
	}
	return nil
}

// ListItemsByStatus returns items matching the given status.
func (s *Store) ListItemsByStatus(ctx context.Context, status item.Status, opts item.ListOpts) ([]*item.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM courier_items WHERE status = $1`
	args := []interface{}{string(status)}
	argIdx := 2

	if opts.Platform != "" {
		query += fmt.Sprintf(" AND platform = $%d", argIdx)
		args = append(args, opts.Platform)
		argIdx++
	}

	query += " ORDER BY priority DESC, scheduled_at ASC"

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
		return nil, fmt.Errorf("courier/postgres: list items by status: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// NextDue returns upcoming pending and retrying items ordered by their
// effective due time, soonest first. Never claims anything.
func (s *Store) NextDue(ctx context.Context, limit int) ([]*item.Item, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+itemColumns+`
		FROM courier_items
		WHERE status IN ('pending', 'retrying')
		ORDER BY COALESCE(next_retry_at, scheduled_at) ASC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("courier/postgres: next due: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// ReapStaleItems returns processing items claimed longer ago than the
// given threshold.
func (s *Store) ReapStaleItems(ctx context.Context, threshold time.Duration) ([]*item.Item, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+itemColumns+`
		FROM courier_items
		WHERE status = 'processing'
		  AND processing_at IS NOT NULL
		  AND processing_at < NOW() - $1::interval`,
		threshold.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("courier/postgres: reap stale items: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// CountItems returns the number of items matching the given options.
func (s *Store) CountItems(ctx context.Context, opts item.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM courier_items WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if opts.Platform != "" {
		query += fmt.Sprintf(" AND platform = $%d", argIdx)
		args = append(args, opts.Platform)
		argIdx++
	}
	if opts.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(opts.Status))
	}

	var count int64
	err := s.pool.QueryRow(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("courier/postgres: count items: %w", err)
	}
	return count, nil
}

// scanItem scans a single item row.
func scanItem(row pgx.Row) (*item.Item, error) {
	var (
		it           item.Item
		idStr        string
		statusStr    string
		priority     int
		payloadRaw   []byte
		metadataRaw  []byte
		retryDelayNs int64
	)
	err := row.Scan(
		&idStr, &it.Platform, &payloadRaw, &statusStr, &priority, &it.ScheduledAt,
		&it.MaxRetries, &it.RetryCount, &retryDelayNs, &it.NextRetryAt,
		&it.LastError, &it.LastErrorType, &it.ExternalPostID, &it.PostedAt, &it.ProcessingAt,
		&it.ScopeUserID, &it.ScopeTeamID, &metadataRaw, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	it.Status = item.Status(statusStr)
	it.Priority = item.Priority(priority)
	it.RetryDelay = time.Duration(retryDelayNs)

	if err := unmarshalPayload(payloadRaw, &it.Payload); err != nil {
		return nil, err
	}
	if err := unmarshalMetadata(metadataRaw, &it.Metadata); err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseItemID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("courier/postgres: parse item id %q: %w", idStr, parseErr)
	}
	it.ID = parsedID

	return &it, nil
}

// collectItems collects all items from query rows.
func collectItems(rows pgx.Rows) ([]*item.Item, error) {
	var items []*item.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("courier/postgres: scan item row: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("courier/postgres: iterate item rows: %w", err)
	}
	return items, nil
}
