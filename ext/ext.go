// Package ext defines the extension system for Courier.
// Extensions are notified of lifecycle events (item enqueued, posted,
// quarantined, breaker trips, health alerts) and can react to them —
// notifications, metrics, audit logs, webhooks.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/xraph/courier/breaker"
	"github.com/xraph/courier/classify"
	"github.com/xraph/courier/dlq"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/item"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// Alert is the payload delivered to HealthAlert hooks.
type Alert struct {
	Status    string            `json:"status"`
	Severity  classify.Severity `json:"severity"`
	Anomalies []string          `json:"anomalies"`
	At        time.Time         `json:"at"`
}

// ──────────────────────────────────────────────────
// Item lifecycle hooks
// ──────────────────────────────────────────────────

// ItemEnqueued is called after an item is accepted into the queue.
type ItemEnqueued interface {
	OnItemEnqueued(ctx context.Context, it *item.Item) error
}

// ItemDispatched is called when the scheduler claims an item and hands
// it to the platform adapter.
type ItemDispatched interface {
	OnItemDispatched(ctx context.Context, it *item.Item) error
}

// ItemPosted is called after the platform accepts the content.
type ItemPosted interface {
	OnItemPosted(ctx context.Context, it *item.Item, elapsed time.Duration) error
}

// ItemRetrying is called when an attempt fails but a retry is scheduled.
type ItemRetrying interface {
	OnItemRetrying(ctx context.Context, it *item.Item, attempt int, nextRetryAt time.Time) error
}

// ItemFailed is called when an item fails terminally (no more retries).
type ItemFailed interface {
	OnItemFailed(ctx context.Context, it *item.Item, err error) error
}

// ItemQuarantined is called when an item is moved to the dead letter
// queue. This is the notification boundary for quarantine alerts.
type ItemQuarantined interface {
	OnItemQuarantined(ctx context.Context, entry *dlq.Entry) error
}

// ──────────────────────────────────────────────────
// Reliability hooks
// ──────────────────────────────────────────────────

// BreakerStateChanged is called when a platform's circuit breaker
// transitions between states.
type BreakerStateChanged interface {
	OnBreakerStateChanged(ctx context.Context, platform string, from, to breaker.State) error
}

// HealthAlert is called when the health monitor detects an anomaly of
// medium or higher severity.
type HealthAlert interface {
	OnHealthAlert(ctx context.Context, alert Alert) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// RecurFired is called when a recurring publish entry fires and
// enqueues a fresh item.
type RecurFired interface {
	OnRecurFired(ctx context.Context, entryName string, itemID id.ItemID) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
