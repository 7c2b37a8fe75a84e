package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/courier/breaker"
	"github.com/xraph/courier/dlq"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/item"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type itemEnqueuedEntry struct {
	name string
	hook ItemEnqueued
}

type itemDispatchedEntry struct {
	name string
	hook ItemDispatched
}

type itemPostedEntry struct {
	name string
	hook ItemPosted
}

type itemRetryingEntry struct {
	name string
	hook ItemRetrying
}

type itemFailedEntry struct {
	name string
	hook ItemFailed
}

type itemQuarantinedEntry struct {
	name string
	hook ItemQuarantined
}

type breakerStateChangedEntry struct {
	name string
	hook BreakerStateChanged
}

type healthAlertEntry struct {
	name string
	hook HealthAlert
}

type recurFiredEntry struct {
	name string
	hook RecurFired
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	itemEnqueued        []itemEnqueuedEntry
	itemDispatched      []itemDispatchedEntry
	itemPosted          []itemPostedEntry
	itemRetrying        []itemRetryingEntry
	itemFailed          []itemFailedEntry
	itemQuarantined     []itemQuarantinedEntry
	breakerStateChanged []breakerStateChangedEntry
	healthAlert         []healthAlertEntry
	recurFired          []recurFiredEntry
	shutdown            []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(ItemEnqueued); ok {
		r.itemEnqueued = append(r.itemEnqueued, itemEnqueuedEntry{name, h})
	}
	if h, ok := e.(ItemDispatched); ok {
		r.itemDispatched = append(r.itemDispatched, itemDispatchedEntry{name, h})
	}
	if h, ok := e.(ItemPosted); ok {
		r.itemPosted = append(r.itemPosted, itemPostedEntry{name, h})
	}
	if h, ok := e.(ItemRetrying); ok {
		r.itemRetrying = append(r.itemRetrying, itemRetryingEntry{name, h})
	}
	if h, ok := e.(ItemFailed); ok {
		r.itemFailed = append(r.itemFailed, itemFailedEntry{name, h})
	}
	if h, ok := e.(ItemQuarantined); ok {
		r.itemQuarantined = append(r.itemQuarantined, itemQuarantinedEntry{name, h})
	}
	if h, ok := e.(BreakerStateChanged); ok {
		r.breakerStateChanged = append(r.breakerStateChanged, breakerStateChangedEntry{name, h})
	}
	if h, ok := e.(HealthAlert); ok {
		r.healthAlert = append(r.healthAlert, healthAlertEntry{name, h})
	}
	if h, ok := e.(RecurFired); ok {
		r.recurFired = append(r.recurFired, recurFiredEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Item event emitters
// ──────────────────────────────────────────────────

// EmitItemEnqueued notifies all extensions that implement ItemEnqueued.
func (r *Registry) EmitItemEnqueued(ctx context.Context, it *item.Item) {
	for _, e := range r.itemEnqueued {
		if err := e.hook.OnItemEnqueued(ctx, it); err != nil {
			r.logHookError("OnItemEnqueued", e.name, err)
		}
	}
}

// EmitItemDispatched notifies all extensions that implement ItemDispatched.
func (r *Registry) EmitItemDispatched(ctx context.Context, it *item.Item) {
	for _, e := range r.itemDispatched {
		if err := e.hook.OnItemDispatched(ctx, it); err != nil {
			r.logHookError("OnItemDispatched", e.name, err)
		}
	}
}

// EmitItemPosted notifies all extensions that implement ItemPosted.
func (r *Registry) EmitItemPosted(ctx context.Context, it *item.Item, elapsed time.Duration) {
	for _, e := range r.itemPosted {
		if err := e.hook.OnItemPosted(ctx, it, elapsed); err != nil {
			r.logHookError("OnItemPosted", e.name, err)
		}
	}
}

// EmitItemRetrying notifies all extensions that implement ItemRetrying.
func (r *Registry) EmitItemRetrying(ctx context.Context, it *item.Item, attempt int, nextRetryAt time.Time) {
	for _, e := range r.itemRetrying {
		if err := e.hook.OnItemRetrying(ctx, it, attempt, nextRetryAt); err != nil {
			r.logHookError("OnItemRetrying", e.name, err)
		}
	}
}

// EmitItemFailed notifies all extensions that implement ItemFailed.
func (r *Registry) EmitItemFailed(ctx context.Context, it *item.Item, itemErr error) {
	for _, e := range r.itemFailed {
		if err := e.hook.OnItemFailed(ctx, it, itemErr); err != nil {
			r.logHookError("OnItemFailed", e.name, err)
		}
	}
}

// EmitItemQuarantined notifies all extensions that implement ItemQuarantined.
func (r *Registry) EmitItemQuarantined(ctx context.Context, entry *dlq.Entry) {
	for _, e := range r.itemQuarantined {
		if err := e.hook.OnItemQuarantined(ctx, entry); err != nil {
			r.logHookError("OnItemQuarantined", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Reliability event emitters
// ──────────────────────────────────────────────────

// EmitBreakerStateChanged notifies all extensions that implement
// BreakerStateChanged.
func (r *Registry) EmitBreakerStateChanged(ctx context.Context, platform string, from, to breaker.State) {
	for _, e := range r.breakerStateChanged {
		if err := e.hook.OnBreakerStateChanged(ctx, platform, from, to); err != nil {
			r.logHookError("OnBreakerStateChanged", e.name, err)
		}
	}
}

// EmitHealthAlert notifies all extensions that implement HealthAlert.
func (r *Registry) EmitHealthAlert(ctx context.Context, alert Alert) {
	for _, e := range r.healthAlert {
		if err := e.hook.OnHealthAlert(ctx, alert); err != nil {
			r.logHookError("OnHealthAlert", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitRecurFired notifies all extensions that implement RecurFired.
func (r *Registry) EmitRecurFired(ctx context.Context, entryName string, itemID id.ItemID) {
	for _, e := range r.recurFired {
		if err := e.hook.OnRecurFired(ctx, entryName, itemID); err != nil {
			r.logHookError("OnRecurFired", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block the pipeline.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
