// Package courier provides a composable delivery-reliability engine for
// content publishing. It schedules publishing jobs against external
// platforms and guarantees at-least-once delivery attempts with bounded
// retries, per-platform circuit breaking, a durable dead letter queue,
// health monitoring, and real-time status fan-out.
//
// Courier is designed as a library, not a service. Import it, configure a
// store, register platform adapters, and start the engine.
//
// # Quick Start
//
//	c, err := courier.New(
//	    courier.WithStore(pgStore),
//	    courier.WithDispatchConcurrency(8),
//	)
//
// # Architecture
//
// Courier follows a composable store pattern where each subsystem (item,
// dlq, retry, breaker, recur) defines its own store interface. A single
// backend implements all of them, and the store is the sole source of
// truth: pending retries are persisted due times polled by the scheduler,
// never in-process timers, so a restart loses nothing.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package courier
