// Package engine wires all Courier subsystems together: the store, the
// platform adapter registry, the circuit breakers, the retry coordinator,
// the health monitor, the realtime broker, the dispatch scheduler, and the
// recurring publish scheduler.
//
// This package exists to break the import cycle: the root courier package
// defines Entity and the sentinel errors (imported by item, dlq, etc.) and
// so cannot import those packages back. The engine package sits above all
// subsystem packages and below the application layer.
package engine
