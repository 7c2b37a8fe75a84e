// Package limiter provides per-platform rate limiting and concurrency
// control for dispatch.
//
// Each platform can carry a token-bucket rate limit (sustained posts per
// second plus burst) and a concurrency cap. Scope-level overrides narrow
// the limits further for a single owning team on a platform, so one
// tenant cannot monopolize a shared platform connection.
//
// The scheduler calls [Manager.Acquire] before handing an item to the
// platform adapter and [Manager.Release] when the attempt finishes. A
// rejected acquire leaves the item claimed; the scheduler returns it to
// the queue for the next poll.
package limiter
