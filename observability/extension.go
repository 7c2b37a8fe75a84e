// Package observability provides a Courier extension that records
// lifecycle metrics through OpenTelemetry. Register it to track enqueue
// rates, delivery outcomes, retry counts, quarantines, breaker
// transitions and recurring fires without touching the dispatch path.
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/courier/breaker"
	"github.com/xraph/courier/dlq"
	"github.com/xraph/courier/ext"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/item"
)

const meterName = "github.com/xraph/courier/observability"

// Compile-time interface checks.
var (
	_ ext.Extension           = (*MetricsExtension)(nil)
	_ ext.ItemEnqueued        = (*MetricsExtension)(nil)
	_ ext.ItemPosted          = (*MetricsExtension)(nil)
	_ ext.ItemRetrying        = (*MetricsExtension)(nil)
	_ ext.ItemFailed          = (*MetricsExtension)(nil)
	_ ext.ItemQuarantined     = (*MetricsExtension)(nil)
	_ ext.BreakerStateChanged = (*MetricsExtension)(nil)
	_ ext.RecurFired          = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle metrics.
//
// Instruments:
//   - courier.items.enqueued (counter, platform)
//   - courier.items.posted (counter, platform)
//   - courier.items.retried (counter, platform)
//   - courier.items.failed (counter, platform)
//   - courier.items.quarantined (counter, platform, reason)
//   - courier.delivery.duration (histogram, platform)
//   - courier.breaker.transitions (counter, platform, from, to)
//   - courier.recur.fired (counter)
type MetricsExtension struct {
	enqueued    metric.Int64Counter
	posted      metric.Int64Counter
	retried     metric.Int64Counter
	failed      metric.Int64Counter
	quarantined metric.Int64Counter
	duration    metric.Float64Histogram
	transitions metric.Int64Counter
	recurFired  metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global OTel
// MeterProvider. Without a configured provider all instruments are
// noops, so registering it is always safe.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension using the
// provided meter, for injecting a specific MeterProvider in tests.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	m := &MetricsExtension{}

	// On error the OTel API returns noop instruments, so the extension
	// degrades gracefully.
	m.enqueued, _ = meter.Int64Counter("courier.items.enqueued",
		metric.WithDescription("Items accepted into the queue"),
		metric.WithUnit("{item}"))
	m.posted, _ = meter.Int64Counter("courier.items.posted",
		metric.WithDescription("Items successfully delivered to a platform"),
		metric.WithUnit("{item}"))
	m.retried, _ = meter.Int64Counter("courier.items.retried",
		metric.WithDescription("Delivery attempts scheduled for retry"),
		metric.WithUnit("{attempt}"))
	m.failed, _ = meter.Int64Counter("courier.items.failed",
		metric.WithDescription("Delivery attempts that failed"),
		metric.WithUnit("{attempt}"))
	m.quarantined, _ = meter.Int64Counter("courier.items.quarantined",
		metric.WithDescription("Items moved to the dead letter queue"),
		metric.WithUnit("{item}"))
	m.duration, _ = meter.Float64Histogram("courier.delivery.duration",
		metric.WithDescription("End-to-end delivery time of posted items in seconds"),
		metric.WithUnit("s"))
	m.transitions, _ = meter.Int64Counter("courier.breaker.transitions",
		metric.WithDescription("Circuit breaker state transitions"),
		metric.WithUnit("{transition}"))
	m.recurFired, _ = meter.Int64Counter("courier.recur.fired",
		metric.WithDescription("Recurring publish entries fired"),
		metric.WithUnit("{fire}"))

	return m
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func platformAttr(platformName string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("platform", platformName))
}

// OnItemEnqueued implements ext.ItemEnqueued.
func (m *MetricsExtension) OnItemEnqueued(ctx context.Context, it *item.Item) error {
	m.enqueued.Add(ctx, 1, platformAttr(it.Platform))
	return nil
}

// OnItemPosted implements ext.ItemPosted.
func (m *MetricsExtension) OnItemPosted(ctx context.Context, it *item.Item, elapsed time.Duration) error {
	attrs := platformAttr(it.Platform)
	m.posted.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
	return nil
}

// OnItemRetrying implements ext.ItemRetrying.
func (m *MetricsExtension) OnItemRetrying(ctx context.Context, it *item.Item, _ int, _ time.Time) error {
	m.retried.Add(ctx, 1, platformAttr(it.Platform))
	return nil
}

// OnItemFailed implements ext.ItemFailed.
func (m *MetricsExtension) OnItemFailed(ctx context.Context, it *item.Item, _ error) error {
	m.failed.Add(ctx, 1, platformAttr(it.Platform))
	return nil
}

// OnItemQuarantined implements ext.ItemQuarantined.
func (m *MetricsExtension) OnItemQuarantined(ctx context.Context, entry *dlq.Entry) error {
	m.quarantined.Add(ctx, 1, metric.WithAttributes(
		attribute.String("platform", entry.Platform),
		attribute.String("reason", string(entry.FailureReason)),
	))
	return nil
}

// OnBreakerStateChanged implements ext.BreakerStateChanged.
func (m *MetricsExtension) OnBreakerStateChanged(ctx context.Context, platformName string, from, to breaker.State) error {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("platform", platformName),
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	))
	return nil
}

// OnRecurFired implements ext.RecurFired.
func (m *MetricsExtension) OnRecurFired(ctx context.Context, _ string, _ id.ItemID) error {
	m.recurFired.Add(ctx, 1)
	return nil
}
