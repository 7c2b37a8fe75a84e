// Package retry implements the delivery retry subsystem: the backoff
// policy, the append-only attempt history, and the coordinator that
// routes one failed dispatch to its recovery path.
//
// # Policy
//
// [Policy] computes the delay before retry n as
//
//	min(BaseDelay * Multiplier^n * jitter, MaxDelay)
//
// where jitter is uniform in [1-JitterFactor/2, 1+JitterFactor/2].
// Policies are platform-tunable: a platform prone to rate limiting can
// carry a longer base delay and a smaller retry budget than one with
// flaky network-only failures.
//
// # Coordinator
//
// [Coordinator.HandleFailure] classifies the error, consults the
// platform's circuit breaker strategy, applies the policy, and either
// schedules a durable delayed retry (NextRetryAt persisted on the item)
// or escalates to the dead letter queue. Retries are never in-process
// timers; the scheduler polls the store for due retries, so pending
// retries survive a restart.
package retry
