package sqlite

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
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO courier_attempts (
			id, item_id, platform, retry_count, error_type, strategy,
			attempted_at, success, processing_time, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.ItemID.String(), a.Platform, a.RetryCount,
		string(a.ErrorType), string(a.Strategy),
		fmtTime(a.AttemptedAt), a.Success, a.ProcessingTime.Nanoseconds(),
		fmtTime(a.CreatedAt), fmtTime(a.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("courier/sqlite: append attempt: %w", err)
	}
	return nil
}

// ListAttempts returns the attempts for an item, newest first.
func (s *Store) ListAttempts(ctx context.Context, itemID id.ItemID, limit int) ([]*retry.Attempt, error) {
	query := `
		SELECT id, item_id, platform, retry_count, error_type, strategy,
		       attempted_at, success, processing_time, created_at, updated_at
		FROM courier_attempts
		WHERE item_id = ?
		ORDER BY attempted_at DESC`
	args := []interface{}{itemID.String()}

	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("courier/sqlite: list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*retry.Attempt
	for rows.Next() {
		var (
			a                retry.Attempt
			idStr, itemIDStr string
			errType, strat   string
			procNs           int64

			attemptedStr, createdStr, updatedStr string
		)
		scanErr := rows.Scan(
			&idStr, &itemIDStr, &a.Platform, &a.RetryCount, &errType, &strat,
			&attemptedStr, &a.Success, &procNs, &createdStr, &updatedStr,
		)
		if scanErr != nil {
			return nil, fmt.Errorf("courier/sqlite: scan attempt row: %w", scanErr)
		}

		a.ErrorType = classify.Category(errType)
		a.Strategy = classify.Strategy(strat)
		a.ProcessingTime = time.Duration(procNs)

		if a.AttemptedAt, scanErr = parseTime(attemptedStr); scanErr != nil {
			return nil, scanErr
		}
		if a.CreatedAt, scanErr = parseTime(createdStr); scanErr != nil {
			return nil, scanErr
		}
		if a.UpdatedAt, scanErr = parseTime(updatedStr); scanErr != nil {
			return nil, scanErr
		}

		parsedID, parseErr := id.ParseAttemptID(idStr)
		if parseErr != nil {
			return nil, fmt.Errorf("courier/sqlite: parse attempt id %q: %w", idStr, parseErr)
		}
		a.ID = parsedID

		parsedItemID, itemErr := id.ParseItemID(itemIDStr)
		if itemErr != nil {
			return nil, fmt.Errorf("courier/sqlite: parse item id %q: %w", itemIDStr, itemErr)
		}
		a.ItemID = parsedItemID

		attempts = append(attempts, &a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("courier/sqlite: iterate attempt rows: %w", err)
	}
	return attempts, nil
}

// AttemptStats aggregates attempts for one platform, or all platforms
// when platform is empty.
func (s *Store) AttemptStats(ctx context.Context, platform string) (retry.Stats, error) {
	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN success THEN 0 ELSE 1 END), 0),
		       COALESCE(AVG(processing_time), 0)
		FROM courier_attempts`
	args := []interface{}{}

	if platform != "" {
		query += ` WHERE platform = ?`
		args = append(args, platform)
	}

	var (
		stats retry.Stats
		avgNs float64
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.Total, &stats.Successes, &stats.Failures, &avgNs,
	)
	if err != nil {
		return retry.Stats{}, fmt.Errorf("courier/sqlite: attempt stats: %w", err)
	}

	stats.AverageProcessingTime = time.Duration(int64(avgNs))
	return stats, nil
}
