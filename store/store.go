// Package store defines the aggregate persistence interface. Each subsystem
// (item, dlq, breaker, retry, recur) defines its own store interface. The
// composite Store composes them all. Backends: Postgres, SQLite, and Memory.
package store

import (
	"context"

	"github.com/xraph/courier/breaker"
	"github.com/xraph/courier/dlq"
	"github.com/xraph/courier/item"
	"github.com/xraph/courier/recur"
	"github.com/xraph/courier/retry"
)

// Store is the aggregate persistence interface.
// Each subsystem store is a composable interface; a single backend
// (postgres, sqlite, memory) implements all of them.
type Store interface {
	item.Store
	dlq.Store
	breaker.Store
	retry.AttemptStore
	recur.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
