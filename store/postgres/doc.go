// Package postgres implements store.Store on PostgreSQL using pgx/v5.
// Dequeue uses FOR UPDATE SKIP LOCKED so multiple scheduler instances can
// share one database without double-dispatching.
package postgres
