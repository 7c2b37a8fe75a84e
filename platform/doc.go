// Package platform defines the adapter contract for external publishing
// platforms and a registry mapping platform names to adapters.
//
// An [Adapter] wraps one platform's API: it validates content, schedules
// a post, and reports post status. Adapters are external collaborators;
// the core never inspects their internals, quotas, or authentication.
// Idempotency of platform operations is the adapter's responsibility.
//
// Optional capabilities (cancellation, batch status lookup) are expressed
// as separate interfaces discovered by type assertion:
//
//	if c, ok := adapter.(platform.Canceler); ok {
//	    _ = c.CancelScheduledPost(ctx, postID)
//	}
package platform
