// Package recur provides recurring publishes on a cron schedule.
//
// Recurring entries are stored in the database and evaluated on a tick
// loop. Each firing enqueues a fresh delivery item with the entry's
// payload snapshot. A per-entry lock with a TTL guarantees at-most-once
// firing even when multiple Courier instances poll the same store.
//
// # Entry
//
// An [Entry] represents a recurring publish schedule:
//   - Schedule: standard cron expression (e.g., "0 9 * * 1-5") or a
//     descriptor like "@every 30m"
//   - Platform: the platform adapter to deliver through
//   - Payload: static content snapshot enqueued on every firing
//   - ScopeUserID / ScopeTeamID: owner scoping carried onto each item
//   - Enabled: whether the entry fires
//   - LockedBy / LockedUntil: firing lock fields (managed internally)
//
// # Scheduler
//
// The [Scheduler] evaluates due entries on every tick, acquires the
// firing lock on each, enqueues the item, and updates LastRunAt and
// NextRunAt. The [ext.RecurFired] extension hook fires after each
// enqueue.
package recur
