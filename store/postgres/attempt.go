package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/courier/classify"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/retry"
)

// AppendAttempt persists a new attempt record.
func (s *Store) AppendAttempt(ctx context.Context, a *retry.Attempt) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO courier_attempts (
			id, item_id, platform, retry_count, error_type, strategy,
			attempted_at, success, processing_time, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID.String(), a.ItemID.String(), a.Platform, a.RetryCount,
		string(a.ErrorType), string(a.Strategy),
		a.AttemptedAt, a.Success, a.ProcessingTime.Nanoseconds(),
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("courier/postgres: append attempt: %w", err)
	}
	return nil
}

// ListAttempts returns the attempts for an item, newest first.
func (s *Store) ListAttempts(ctx context.Context, itemID id.ItemID, limit int) ([]*retry.Attempt, error) {
	query := `
		SELECT id, item_id, platform, retry_count, error_type, strategy,
		       attempted_at, success, processing_time, created_at, updated_at
		FROM courier_attempts
		WHERE item_id = $1
		ORDER BY attempted_at DESC`
	args := []interface{}{itemID.String()}

	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("courier/postgres: list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*retry.Attempt
	for rows.Next() {
		var (
			a                retry.Attempt
			idStr, itemIDStr string
			errType, strat   string
			procNs           int64
		)
		scanErr := rows.Scan(
			&idStr, &itemIDStr, &a.Platform, &a.RetryCount, &errType, &strat,
			&a.AttemptedAt, &a.Success, &procNs, &a.CreatedAt, &a.UpdatedAt,
		)
		if scanErr != nil {
			return nil, fmt.Errorf("courier/postgres: scan attempt row: %w", scanErr)
		}

		a.ErrorType = classify.Category(errType)
		a.Strategy = classify.Strategy(strat)
		a.ProcessingTime = time.Duration(procNs)

		parsedID, parseErr := id.ParseAttemptID(idStr)
		if parseErr != nil {
			return nil, fmt.Errorf("courier/postgres: parse attempt id %q: %w", idStr, parseErr)
		}
		a.ID = parsedID

		parsedItemID, itemErr := id.ParseItemID(itemIDStr)
		if itemErr != nil {
			return nil, fmt.Errorf("courier/postgres: parse item id %q: %w", itemIDStr, itemErr)
		}
		a.ItemID = parsedItemID

		attempts = append(attempts, &a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("courier/postgres: iterate attempt rows: %w", err)
	}
	return attempts, nil
}

// AttemptStats aggregates attempts for one platform, or all platforms
// when platform is empty.
func (s *Store) AttemptStats(ctx context.Context, platform string) (retry.Stats, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE success),
		       COUNT(*) FILTER (WHERE NOT success),
		       COALESCE(AVG(processing_time), 0)
		FROM courier_attempts`
	args := []interface{}{}

	if platform != "" {
		query += " WHERE platform = $1"
		args = append(args, platform)
	}

	var (
		stats retry.Stats
		avgNs float64
	)
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&stats.Total, &stats.Successes, &stats.Failures, &avgNs,
	)
	if err != nil {
		return retry.Stats{}, fmt.Errorf("courier/postgres: attempt stats: %w", err)
	}

	stats.AverageProcessingTime = time.Duration(int64(avgNs))
	return stats, nil
}
