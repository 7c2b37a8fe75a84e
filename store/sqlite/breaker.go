package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/courier"
	"github.com/xraph/courier/breaker"
)

// SaveBreakerState inserts or replaces the snapshot for its platform.
func (s *Store) SaveBreakerState(ctx context.Context, snap *breaker.Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO courier_breaker_states (
			platform, state, consecutive_failures, last_failure_at, next_attempt_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (platform) DO UPDATE SET
			state = excluded.state,
			consecutive_failures = excluded.consecutive_failures,
			last_failure_at = excluded.last_failure_at,
			next_attempt_at = excluded.next_attempt_at,
			updated_at = excluded.updated_at`,
		snap.Platform, string(snap.State), snap.ConsecutiveFailures,
		fmtTimePtr(snap.LastFailureAt), fmtTimePtr(snap.NextAttemptAt),
		fmtTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("courier/sqlite: save breaker state: %w", err)
	}
	return nil
}

// GetBreakerState retrieves the snapshot for a platform.
func (s *Store) GetBreakerState(ctx context.Context, platform string) (*breaker.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT platform, state, consecutive_failures, last_failure_at, next_attempt_at
		FROM courier_breaker_states
		WHERE platform = ?`,
		platform,
	)

	snap, err := scanBreaker(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, courier.ErrBreakerNotFound
		}
		return nil, fmt.Errorf("courier/sqlite: get breaker state: %w", err)
	}
	return snap, nil
}

// ListBreakerStates returns all saved snapshots.
func (s *Store) ListBreakerStates(ctx context.Context) ([]*breaker.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT platform, state, consecutive_failures, last_failure_at, next_attempt_at
		FROM courier_breaker_states
		ORDER BY platform ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("courier/sqlite: list breaker states: %w", err)
	}
	defer rows.Close()

	var snaps []*breaker.Snapshot
	for rows.Next() {
		snap, scanErr := scanBreaker(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("courier/sqlite: scan breaker row: %w", scanErr)
		}
		snaps = append(snaps, snap)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("courier/sqlite: iterate breaker rows: %w", err)
	}
	return snaps, nil
}

// scanBreaker scans a single breaker state row.
func scanBreaker(row scanner) (*breaker.Snapshot, error) {
	var (
		snap                   breaker.Snapshot
		stateStr               string
		lastFailNS, nextAttNS  sql.NullString
	)
	err := row.Scan(
		&snap.Platform, &stateStr, &snap.ConsecutiveFailures,
		&lastFailNS, &nextAttNS,
	)
	if err != nil {
		return nil, err
	}

	snap.State = breaker.State(stateStr)

	if snap.LastFailureAt, err = parseTimePtr(lastFailNS); err != nil {
		return nil, err
	}
	if snap.NextAttemptAt, err = parseTimePtr(nextAttNS); err != nil {
		return nil, err
	}

	return &snap, nil
}
