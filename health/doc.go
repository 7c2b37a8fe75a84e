// Package health aggregates dispatch outcomes into rolling counters and
// classifies overall queue health.
//
// The [Monitor] is fed by the scheduler and retry coordinator on every
// outcome: RecordSuccess and RecordFailure update global counters,
// per-platform stats, a rolling processing-time window, and a trailing
// error timestamp window. Recording never blocks the hot dispatch path
// beyond a short mutex hold.
//
// On its own interval, independent of scheduler ticks, the monitor runs
// DetectAnomalies against configurable thresholds (queue length, failure
// rate, average processing time, per-platform consecutive failures,
// trailing error frequency). A metric beyond twice its threshold grades
// critical. Alerts of medium or higher severity are emitted through the
// extension registry, debounced so a persisting condition does not spam
// the notification boundary.
//
// Counters reset only on explicit operator action via Reset.
package health
