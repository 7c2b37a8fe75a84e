// Package item defines the scheduled item entity, its status machine,
// and the store interface for the publish queue.
//
// # Item Entity
//
// An [Item] represents one piece of content scheduled for delivery to a
// platform. It embeds [courier.Entity] for timestamps, carries an opaque
// payload (content body plus media references), and progresses through a
// status machine:
//
//	pending → processing → posted
//	pending → processing → retrying → processing → ...
//	pending → processing → failed → quarantined
//	pending → cancelled
//	failed → cancelled
//
// Fields of note:
//   - Platform: which adapter delivers the item
//   - Priority: higher values are dequeued first, ties broken by
//     earliest ScheduledAt
//   - MaxRetries / RetryCount: retry budget before quarantine
//   - NextRetryAt: earliest time a retrying item may be dequeued again;
//     persisted so pending retries survive a restart
//
// Once an item reaches posted its content is immutable; only Metadata
// annotations may still change. quarantined items are owned by the dead
// letter queue and frozen here.
//
// # Store
//
// [Store] is the persistence contract. DequeueDue is the claim step: it
// atomically marks returned items processing so two concurrent polls
// never hand out the same item.
package item
