package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/courier"
	"github.com/xraph/courier/breaker"
)

// SaveBreakerState inserts or replaces the snapshot for its platform.
func (s *Store) SaveBreakerState(ctx context.Context, snap *breaker.Snapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO courier_breaker_states (
			platform, state, consecutive_failures, last_failure_at, next_attempt_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (platform) DO UPDATE SET
			state = EXCLUDED.state,
			consecutive_failures = EXCLUDED.consecutive_failures,
			last_failure_at = EXCLUDED.last_failure_at,
			next_attempt_at = EXCLUDED.next_attempt_at,
			updated_at = NOW()`,
		snap.Platform, string(snap.State), snap.ConsecutiveFailures,
		snap.LastFailureAt, snap.NextAttemptAt,
	)
	if err != nil {
		return fmt.Errorf("courier/postgres: save breaker state: %w", err)
	}
	return nil
}

// GetBreakerState retrieves the snapshot for a platform.
func (s *Store) GetBreakerState(ctx context.Context, platform string) (*breaker.Snapshot, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT platform, state, consecutive_failures, last_failure_at, next_attempt_at
		FROM courier_breaker_states
		WHERE platform = $1`,
		platform,
	)

	snap, err := scanBreaker(row)
	if err != nil {
		if isNoRows(err) {
			return nil, courier.ErrBreakerNotFound
		}
		return nil, fmt.Errorf("courier/postgres: get breaker state: %w", err)
	}
	return snap, nil
}

// ListBreakerStates returns all saved snapshots.
func (s *Store) ListBreakerStates(ctx context.Context) ([]*breaker.Snapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT platform, state, consecutive_failures, last_failure_at, next_attempt_at
		FROM courier_breaker_states
		ORDER BY platform ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("courier/postgres: list breaker states: %w", err)
	}
	defer rows.Close()

	var snaps []*breaker.Snapshot
	for rows.Next() {
		snap, scanErr := scanBreaker(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("courier/postgres: scan breaker row: %w", scanErr)
		}
		snaps = append(snaps, snap)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("courier/postgres: iterate breaker rows: %w", err)
	}
	return snaps, nil
}

// scanBreaker scans a single breaker state row.
func scanBreaker(row pgx.Row) (*breaker.Snapshot, error) {
	var (
		snap     breaker.Snapshot
		stateStr string
	)
	err := row.Scan(
		&snap.Platform, &stateStr, &snap.ConsecutiveFailures,
		&snap.LastFailureAt, &snap.NextAttemptAt,
	)
	if err != nil {
		return nil, err
	}

	snap.State = breaker.State(stateStr)
	return &snap, nil
}
