// Package dlq provides the dead letter queue: durable quarantine for
// items that exhausted their retry budget or failed non-retryably.
//
// When the retry coordinator decides an item will not be retried again,
// it calls [Service.Quarantine] to snapshot the item into an [Entry] and
// freeze the original. Entries stay in the queue until an operator acts
// on them.
//
// # Resolution
//
// Three actions close an entry, all of them soft:
//   - resolve: mark handled, with notes
//   - retry: re-enqueue a fresh pending item from the snapshot, resolve
//     the entry with a back-reference to the replacement
//   - delete: resolve with a deletion marker; never a physical removal
//
// Once ResolvedAt is set the entry is terminal; further actions return
// courier.ErrAlreadyResolved. Physical removal happens only through
// [Service.Purge], which clears resolved entries older than a cutoff.
//
// [Service.BulkAction] applies one action across many entries and
// reports per-entry success or failure; already-resolved entries are
// skipped and counted as failures, never mutated.
package dlq
