// Package sqlite implements store.Store on SQLite via database/sql and
// the modernc.org/sqlite driver. Dequeue runs in a transaction; SQLite's
// single-writer model makes the claim atomic. Intended for single-node
// deployments and development.
package sqlite
