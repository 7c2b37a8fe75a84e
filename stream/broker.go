package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/courier/breaker"
	"github.com/xraph/courier/dlq"
	"github.com/xraph/courier/ext"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/item"
)

// Compile-time interface checks.
var (
	_ ext.Extension           = (*Broker)(nil)
	_ ext.ItemEnqueued        = (*Broker)(nil)
	_ ext.ItemDispatched      = (*Broker)(nil)
	_ ext.ItemPosted          = (*Broker)(nil)
	_ ext.ItemRetrying        = (*Broker)(nil)
	_ ext.ItemFailed          = (*Broker)(nil)
	_ ext.ItemQuarantined     = (*Broker)(nil)
	_ ext.BreakerStateChanged = (*Broker)(nil)
	_ ext.HealthAlert         = (*Broker)(nil)
	_ ext.RecurFired          = (*Broker)(nil)
	_ ext.Shutdown            = (*Broker)(nil)
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// DefaultCredits is the default initial credits for new subscribers.
const DefaultCredits int64 = 1000

// DefaultHeartbeatTimeout is how long a subscriber may go without a
// heartbeat before eviction.
const DefaultHeartbeatTimeout = 90 * time.Second

// DefaultEvictInterval is how often the stale-subscriber sweep runs.
const DefaultEvictInterval = 30 * time.Second

// Broker is the real-time status broker. It implements the ext hook
// interfaces to receive lifecycle events and fans them out to
// subscribers via topic-based pub/sub. Stale subscribers (no heartbeat
// within the timeout) are evicted on a fixed interval.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger

	// Subscriber management.
	subscribers sync.Map // subscriberID → *Subscriber

	// Metrics.
	totalPublished atomic.Int64
	totalEvicted   atomic.Int64

	// Config.
	bufferSize       int
	defaultCredits   int64
	heartbeatTimeout time.Duration
	evictInterval    time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// WithDefaultCredits sets the initial credits for new subscribers.
func WithDefaultCredits(credits int64) BrokerOption {
	return func(b *Broker) { b.defaultCredits = credits }
}

// WithHeartbeatTimeout sets how long a subscriber may go silent before
// the sweep evicts it.
func WithHeartbeatTimeout(d time.Duration) BrokerOption {
	return func(b *Broker) { b.heartbeatTimeout = d }
}

// WithEvictInterval sets how often the stale-subscriber sweep runs.
func WithEvictInterval(d time.Duration) BrokerOption {
	return func(b *Broker) { b.evictInterval = d }
}

// NewBroker creates a new status broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		topics:           NewTopicRegistry(),
		logger:           logger,
		bufferSize:       DefaultBufferSize,
		defaultCredits:   DefaultCredits,
		heartbeatTimeout: DefaultHeartbeatTimeout,
		evictInterval:    DefaultEvictInterval,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements ext.Extension.
func (b *Broker) Name() string { return "stream-broker" }

// Topics returns the topic registry for external use (e.g., API server).
func (b *Broker) Topics() *TopicRegistry { return b.topics }

// Subscribe creates a new subscriber on the given topics.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	sub := NewSubscriber(subscriberID, b.bufferSize, b.defaultCredits)
	b.subscribers.Store(subscriberID, sub)
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// SubscribeTo adds an existing subscriber to additional topics.
func (b *Broker) SubscribeTo(subscriberID string, topics ...string) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return
	}
	sub := val.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
}

// Unsubscribe removes a subscriber from specific topics.
func (b *Broker) Unsubscribe(subscriberID string, topics ...string) {
	for _, topic := range topics {
		b.topics.Unsubscribe(topic, subscriberID)
	}
}

// RemoveSubscriber removes a subscriber from all topics and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.topics.UnsubscribeAll(subscriberID)
	if val, ok := b.subscribers.LoadAndDelete(subscriberID); ok {
		val.(*Subscriber).Close() //nolint:errcheck // sync.Map always stores *Subscriber
	}
}

// GetSubscriber returns a subscriber by ID.
func (b *Broker) GetSubscriber(subscriberID string) (*Subscriber, bool) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return nil, false
	}
	return val.(*Subscriber), true //nolint:errcheck // sync.Map always stores *Subscriber
}

// Heartbeat refreshes a subscriber's liveness. Returns false when the
// subscriber is unknown (already evicted or never registered).
func (b *Broker) Heartbeat(subscriberID string) bool {
	sub, ok := b.GetSubscriber(subscriberID)
	if !ok {
		return false
	}
	sub.Heartbeat()
	return true
}

// EvictStale removes subscribers whose last heartbeat is older than the
// timeout. Returns the number evicted.
func (b *Broker) EvictStale(now time.Time) int {
	cutoff := now.Add(-b.heartbeatTimeout)
	evicted := 0

	b.subscribers.Range(func(_, value any) bool {
		sub := value.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
		if sub.LastHeartbeat().Before(cutoff) {
			b.RemoveSubscriber(sub.ID())
			evicted++
			b.logger.Info("evicted stale subscriber",
				slog.String("subscriber_id", sub.ID()),
				slog.Time("last_heartbeat", sub.LastHeartbeat()))
		}
		return true
	})

	b.totalEvicted.Add(int64(evicted))
	return evicted
}

// Start begins the stale-subscriber eviction loop.
func (b *Broker) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.cancel = cancel
	b.done = make(chan struct{})

	go b.run(runCtx)
	return nil
}

// Stop halts the eviction loop and closes all subscribers.
func (b *Broker) Stop(ctx context.Context) error {
	if b.cancel != nil {
		b.cancel()
		select {
		case <-b.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return b.OnShutdown(ctx)
}

func (b *Broker) run(ctx context.Context) {
	defer close(b.done)

	ticker := time.NewTicker(b.evictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.EvictStale(time.Now())
		}
	}
}

// Stats returns broker statistics.
func (b *Broker) Stats() BrokerStats {
	count := 0
	b.subscribers.Range(func(_, _ any) bool {
		count++
		return true
	})
	return BrokerStats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
		TotalEvicted:    b.totalEvicted.Load(),
	}
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
	TotalEvicted    int64 `json:"total_evicted"`
}

// publish broadcasts an event to all matching topics.
func (b *Broker) publish(evt *Event, platformName string) {
	topics := resolveTopics(evt, platformName)
	delivered := b.topics.Broadcast(topics, evt)
	b.totalPublished.Add(int64(delivered))
}

// mustMarshal marshals data to JSON, panicking on error (programming error).
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("stream: marshal event data: " + err.Error())
	}
	return data
}

// itemEvent builds the envelope for an item lifecycle event.
func itemEvent(evtType EventType, it *item.Item, data ItemEventData) *Event {
	return &Event{
		Type:        evtType,
		Timestamp:   time.Now().UTC(),
		Topic:       ItemTopic(it.ID.String()),
		ScopeUserID: it.ScopeUserID,
		ScopeTeamID: it.ScopeTeamID,
		Data:        mustMarshal(data),
	}
}

// ── Item lifecycle hooks ────────────────────────────

func (b *Broker) OnItemEnqueued(_ context.Context, it *item.Item) error {
	b.publish(itemEvent(EventItemEnqueued, it, ItemEventData{
		ItemID:   it.ID.String(),
		Platform: it.Platform,
		Status:   string(it.Status),
		Priority: it.Priority.String(),
	}), it.Platform)
	return nil
}

func (b *Broker) OnItemDispatched(_ context.Context, it *item.Item) error {
	b.publish(itemEvent(EventItemDispatched, it, ItemEventData{
		ItemID:   it.ID.String(),
		Platform: it.Platform,
		Status:   string(it.Status),
	}), it.Platform)
	return nil
}

func (b *Broker) OnItemPosted(_ context.Context, it *item.Item, elapsed time.Duration) error {
	b.publish(itemEvent(EventItemPosted, it, ItemEventData{
		ItemID:    it.ID.String(),
		Platform:  it.Platform,
		Status:    string(it.Status),
		ElapsedMs: elapsed.Milliseconds(),
	}), it.Platform)
	return nil
}

func (b *Broker) OnItemRetrying(_ context.Context, it *item.Item, attempt int, nextRetryAt time.Time) error {
	b.publish(itemEvent(EventItemRetrying, it, ItemEventData{
		ItemID:      it.ID.String(),
		Platform:    it.Platform,
		Status:      string(it.Status),
		Error:       it.LastError,
		Attempt:     attempt,
		NextRetryAt: nextRetryAt.Format(time.RFC3339),
	}), it.Platform)
	return nil
}

func (b *Broker) OnItemFailed(_ context.Context, it *item.Item, itemErr error) error {
	b.publish(itemEvent(EventItemFailed, it, ItemEventData{
		ItemID:   it.ID.String(),
		Platform: it.Platform,
		Status:   string(it.Status),
		Error:    itemErr.Error(),
	}), it.Platform)
	return nil
}

func (b *Broker) OnItemQuarantined(_ context.Context, entry *dlq.Entry) error {
	b.publish(&Event{
		Type:        EventItemQuarantined,
		Timestamp:   time.Now().UTC(),
		Topic:       ItemTopic(entry.ItemID.String()),
		ScopeUserID: entry.ScopeUserID,
		ScopeTeamID: entry.ScopeTeamID,
		Data: mustMarshal(QuarantineEventData{
			EntryID:       entry.ID.String(),
			ItemID:        entry.ItemID.String(),
			Platform:      entry.Platform,
			FailureReason: string(entry.FailureReason),
			Error:         entry.LastError,
		}),
	}, entry.Platform)
	return nil
}

// ── Reliability hooks ───────────────────────────────

func (b *Broker) OnBreakerStateChanged(_ context.Context, platformName string, from, to breaker.State) error {
	b.publish(&Event{
		Type:      EventBreakerChanged,
		Timestamp: time.Now().UTC(),
		Data: mustMarshal(BreakerEventData{
			Platform: platformName,
			From:     string(from),
			To:       string(to),
		}),
	}, platformName)
	return nil
}

func (b *Broker) OnHealthAlert(_ context.Context, alert ext.Alert) error {
	b.publish(&Event{
		Type:      EventHealthAlert,
		Timestamp: time.Now().UTC(),
		Data: mustMarshal(HealthEventData{
			Status:    alert.Status,
			Severity:  string(alert.Severity),
			Anomalies: alert.Anomalies,
		}),
	}, "")
	return nil
}

// ── Recurring publish hooks ─────────────────────────

func (b *Broker) OnRecurFired(_ context.Context, entryName string, itemID id.ItemID) error {
	b.publish(&Event{
		Type:      EventRecurFired,
		Timestamp: time.Now().UTC(),
		Data: mustMarshal(RecurEventData{
			EntryName: entryName,
			ItemID:    itemID.String(),
		}),
	}, "")
	return nil
}

// ── Shutdown ────────────────────────────────────────

func (b *Broker) OnShutdown(_ context.Context) error {
	b.subscribers.Range(func(key, value any) bool {
		sub := value.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
		sub.Close()
		b.subscribers.Delete(key)
		return true
	})
	b.logger.Info("stream broker shut down")
	return nil
}
