// Package breaker implements a per-platform circuit breaker.
//
// Each platform gets an independent state machine:
//
//	closed → open        after Threshold consecutive failures
//	open → half_open     once the cooldown elapses
//	half_open → closed   on probe success (counters reset)
//	half_open → open     on probe failure (cooldown restarted)
//
// While open, Allow rejects immediately with courier.ErrCircuitOpen
// without contacting the adapter. In half_open exactly one probe call is
// let through; concurrent callers are rejected until the probe resolves.
//
// State is shared across all concurrent dispatches for a platform and
// mutated only under the registry lock. Snapshots are written through to
// the store so breaker state survives a restart; write failures are
// logged and never abort dispatch.
package breaker
