package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/courier"
	"github.com/xraph/courier/breaker"
	"github.com/xraph/courier/dlq"
	"github.com/xraph/courier/ext"
	"github.com/xraph/courier/health"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/item"
	"github.com/xraph/courier/limiter"
	mw "github.com/xraph/courier/middleware"
	"github.com/xraph/courier/observability"
	"github.com/xraph/courier/platform"
	"github.com/xraph/courier/recur"
	"github.com/xraph/courier/retry"
	"github.com/xraph/courier/sched"
	"github.com/xraph/courier/scope"
	"github.com/xraph/courier/store"
	"github.com/xraph/courier/stream"
)

// nextDueLimit bounds the upcoming-items preview in a QueueStatus.
const nextDueLimit = 5

// defaultDispatchTimeout bounds a single adapter call.
const defaultDispatchTimeout = 30 * time.Second

// Engine wraps a Courier coordinator with fully wired subsystems and the
// management operations. Use Build() to create one.
type Engine struct {
	c           *courier.Courier
	store       store.Store
	adapters    *platform.Registry
	extensions  *ext.Registry
	breakers    *breaker.Registry
	coordinator *retry.Coordinator
	dlqService  *dlq.Service
	monitor     *health.Monitor
	broker      *stream.Broker
	scheduler   *sched.Scheduler
	recurSched  *recur.Scheduler
	limits      *limiter.Manager
	logger      *slog.Logger

	// Build-time configuration collected by options.
	mws              []mw.Middleware
	policy           retry.Policy
	platformPolicies map[string]retry.Policy
	thresholds       health.Thresholds
	breakerConfig    breaker.Config
	platformBreakers map[string]breaker.Config
	limiterConfigs   []limiter.Config
	dispatchTimeout  time.Duration
	instanceID       string

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithAdapter registers a platform adapter with the engine.
func WithAdapter(a platform.Adapter) Option {
	return func(eng *Engine) {
		eng.adapters.Register(a)
	}
}

// WithExtension registers a lifecycle extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware appends middleware to the dispatch chain, after the
// built-in recover/tracing/metrics/logging/scope/timeout stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithRetryPolicy sets the default retry policy. Zero value means
// retry.DefaultPolicy().
func WithRetryPolicy(p retry.Policy) Option {
	return func(eng *Engine) {
		eng.policy = p
	}
}

// WithPlatformPolicy overrides the retry policy for one platform.
func WithPlatformPolicy(platformName string, p retry.Policy) Option {
	return func(eng *Engine) {
		if eng.platformPolicies == nil {
			eng.platformPolicies = make(map[string]retry.Policy)
		}
		eng.platformPolicies[platformName] = p
	}
}

// WithThresholds sets the health monitor's anomaly thresholds.
func WithThresholds(t health.Thresholds) Option {
	return func(eng *Engine) {
		eng.thresholds = t
	}
}

// WithBreakerConfig sets the default circuit breaker configuration.
func WithBreakerConfig(cfg breaker.Config) Option {
	return func(eng *Engine) {
		eng.breakerConfig = cfg
	}
}

// WithPlatformBreakerConfig overrides the breaker configuration for one
// platform.
func WithPlatformBreakerConfig(platformName string, cfg breaker.Config) Option {
	return func(eng *Engine) {
		eng.platformBreakers[platformName] = cfg
	}
}

// WithLimits registers per-platform rate limiting and concurrency
// configurations. Platforms not listed have no limits.
func WithLimits(configs ...limiter.Config) Option {
	return func(eng *Engine) {
		eng.limiterConfigs = append(eng.limiterConfigs, configs...)
	}
}

// WithDispatchTimeout bounds each adapter call. Zero disables the deadline.
func WithDispatchTimeout(d time.Duration) Option {
	return func(eng *Engine) {
		eng.dispatchTimeout = d
	}
}

// WithInstanceID identifies this process for recurring-entry firing locks.
// Defaults to the hostname.
func WithInstanceID(instanceID string) Option {
	return func(eng *Engine) {
		eng.instanceID = instanceID
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the dispatch
// tracing middleware. If not set, the global provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the dispatch
// metrics middleware. If not set, the global provider is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from an existing Courier coordinator.
// The coordinator's store must implement store.Store.
func Build(c *courier.Courier, opts ...Option) (*Engine, error) {
	logger := c.Logger()

	if c.Store() == nil {
		return nil, courier.ErrNoStore
	}
	st, ok := c.Store().(store.Store)
	if !ok {
		return nil, fmt.Errorf("courier: store does not implement store.Store")
	}

	eng := &Engine{
		c:                c,
		store:            st,
		adapters:         platform.NewRegistry(),
		extensions:       ext.NewRegistry(logger),
		logger:           logger,
		thresholds:       health.DefaultThresholds(),
		breakerConfig:    breaker.DefaultConfig(),
		platformBreakers: make(map[string]breaker.Config),
		dispatchTimeout:  defaultDispatchTimeout,
	}

	for _, opt := range opts {
		opt(eng)
	}

	if eng.instanceID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "courier"
		}
		eng.instanceID = hostname
	}

	config := c.Config()

	// Realtime broker fans lifecycle events out to subscribers. It is an
	// extension like any other.
	eng.broker = stream.NewBroker(logger)
	eng.extensions.Register(eng.broker)

	// Lifecycle metrics ride the same hooks. With no MeterProvider the
	// instruments are noops.
	if eng.meterProvider != nil {
		eng.extensions.Register(observability.NewMetricsExtensionWithMeter(
			eng.meterProvider.Meter("github.com/xraph/courier/observability")))
	} else {
		eng.extensions.Register(observability.NewMetricsExtension())
	}

	// Circuit breakers persist snapshots through the store and announce
	// transitions through the extension registry.
	eng.breakers = breaker.NewRegistry(eng.breakerConfig, st, logger)
	for name, cfg := range eng.platformBreakers {
		eng.breakers.SetPlatformConfig(name, cfg)
	}
	eng.breakers.SetOnStateChange(eng.extensions.EmitBreakerStateChanged)

	// The health monitor reads the live queue length from the store.
	queueLen := func(ctx context.Context) (int64, error) {
		pending, err := st.CountItems(ctx, item.CountOpts{Status: item.StatusPending})
		if err != nil {
			return 0, err
		}
		retrying, err := st.CountItems(ctx, item.CountOpts{Status: item.StatusRetrying})
		if err != nil {
			return 0, err
		}
		return pending + retrying, nil
	}
	eng.monitor = health.NewMonitor(eng.thresholds, config.HealthInterval, queueLen, eng.extensions, logger)

	eng.dlqService = dlq.NewService(st, st, logger)

	eng.coordinator = retry.NewCoordinator(retry.CoordinatorConfig{
		Items:            st,
		Attempts:         st,
		DLQ:              eng.dlqService,
		Breakers:         eng.breakers,
		Health:           eng.monitor,
		Extensions:       eng.extensions,
		Logger:           logger,
		Policy:           eng.policy,
		PlatformPolicies: eng.platformPolicies,
	})

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer("github.com/xraph/courier"))
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter("github.com/xraph/courier"))
	} else {
		metricsMw = mw.Metrics()
	}

	// Default stack: recover → tracing → metrics → logging → scope → timeout.
	allMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Scope(),
		mw.Timeout(eng.dispatchTimeout),
	}
	allMws = append(allMws, eng.mws...)

	schedOpts := []sched.Option{
		sched.WithPollInterval(config.PollInterval),
		sched.WithBatchSize(config.BatchSize),
		sched.WithDispatchConcurrency(config.DispatchConcurrency),
		sched.WithStaleThreshold(config.StaleProcessingThreshold),
		sched.WithPlatforms(config.Platforms),
		sched.WithMiddleware(allMws...),
	}
	if len(eng.limiterConfigs) > 0 {
		eng.limits = limiter.NewManager(eng.limiterConfigs...)
		schedOpts = append(schedOpts, sched.WithLimiter(eng.limits))
	}

	eng.scheduler = sched.NewScheduler(st, eng.adapters, eng.coordinator, eng.breakers, eng.extensions, logger, schedOpts...)

	// The recurring scheduler enqueues through the engine so lifecycle
	// events fire exactly as for manual enqueues.
	enqueue := func(ctx context.Context, platformName string, payload item.Payload, itemOpts ...item.Option) (id.ItemID, error) {
		it, err := eng.EnqueueItem(ctx, platformName, payload, itemOpts...)
		if err != nil {
			return id.Nil, err
		}
		return it.ID, nil
	}
	eng.recurSched = recur.NewScheduler(st, enqueue, eng.extensions, eng.instanceID, logger)

	// Wire back into the coordinator. Runners start in this order and stop
	// in reverse, so the dispatch scheduler always stops first.
	c.SetExtensions(eng.extensions)
	c.AddRunner(eng.broker)
	c.AddRunner(eng.monitor)
	c.AddRunner(eng.recurSched)
	c.AddRunner(eng.scheduler)

	return eng, nil
}

// Start hydrates breaker state from the store and begins processing.
func (eng *Engine) Start(ctx context.Context) error {
	if err := eng.breakers.Load(ctx); err != nil {
		// Best effort: a failed hydration means breakers start closed.
		eng.logger.Warn("failed to load breaker state",
			slog.String("error", err.Error()))
	}
	return eng.c.Start(ctx)
}

// Stop gracefully shuts down the engine.
func (eng *Engine) Stop(ctx context.Context) error {
	return eng.c.Stop(ctx)
}

// ──────────────────────────────────────────────────
// Item operations
// ──────────────────────────────────────────────────

// EnqueueItem validates the payload against the platform's rules and
// persists a new pending item. Owner scope is captured from the context;
// an explicit item.WithScope option overrides it.
func (eng *Engine) EnqueueItem(ctx context.Context, platformName string, payload item.Payload, opts ...item.Option) (*item.Item, error) {
	adapter, err := eng.adapters.Get(platformName)
	if err != nil {
		return nil, err
	}

	result, err := adapter.ValidateContent(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("validate content for %s: %w", platformName, err)
	}
	if !result.IsValid {
		return nil, fmt.Errorf("%w: %s", courier.ErrInvalidContent, strings.Join(result.Errors, "; "))
	}

	userID, teamID := scope.Capture(ctx)
	allOpts := append([]item.Option{item.WithScope(userID, teamID)}, opts...)
	it := item.New(platformName, payload, allOpts...)

	if err := eng.store.EnqueueItem(ctx, it); err != nil {
		return nil, err
	}

	eng.logger.Info("item enqueued",
		slog.String("item_id", it.ID.String()),
		slog.String("platform", it.Platform),
		slog.String("priority", it.Priority.String()),
		slog.Time("scheduled_at", it.ScheduledAt))

	eng.extensions.EmitItemEnqueued(ctx, it)
	return it, nil
}

// GetItem retrieves an item by ID.
func (eng *Engine) GetItem(ctx context.Context, itemID id.ItemID) (*item.Item, error) {
	return eng.store.GetItem(ctx, itemID)
}

// ListItems returns items matching the given status.
func (eng *Engine) ListItems(ctx context.Context, status item.Status, opts item.ListOpts) ([]*item.Item, error) {
	return eng.store.ListItemsByStatus(ctx, status, opts)
}

// CancelItem cancels a scheduled publish. Pending and retrying items are
// cancelled locally. Posted items require a Canceler-capable adapter to
// withdraw the post platform-side first. Items in any other state return
// courier.ErrInvalidState.
func (eng *Engine) CancelItem(ctx context.Context, itemID id.ItemID) (*item.Item, error) {
	it, err := eng.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	if it.Status == item.StatusPosted {
		adapter, adapterErr := eng.adapters.Get(it.Platform)
		if adapterErr != nil {
			return nil, adapterErr
		}
		canceler, ok := adapter.(platform.Canceler)
		if !ok {
			return nil, courier.ErrAdapterUnsupported
		}
		cancelled, cancelErr := canceler.CancelScheduledPost(ctx, it.ExternalPostID)
		if cancelErr != nil {
			return nil, fmt.Errorf("cancel post on %s: %w", it.Platform, cancelErr)
		}
		if !cancelled {
			return nil, fmt.Errorf("%w: platform %s declined cancellation", courier.ErrInvalidState, it.Platform)
		}
	} else if !it.Status.CanTransitionTo(item.StatusCancelled) {
		return nil, courier.ErrInvalidState
	}

	it.Status = item.StatusCancelled
	it.NextRetryAt = nil
	it.ProcessingAt = nil
	it.UpdatedAt = time.Now().UTC()

	if err := eng.store.UpdateItem(ctx, it); err != nil {
		return nil, err
	}

	eng.logger.Info("item cancelled",
		slog.String("item_id", it.ID.String()),
		slog.String("platform", it.Platform))
	return it, nil
}

// PostStatus fetches the platform-side status of a posted item.
func (eng *Engine) PostStatus(ctx context.Context, itemID id.ItemID) (platform.PostStatus, error) {
	it, err := eng.store.GetItem(ctx, itemID)
	if err != nil {
		return platform.PostStatus{}, err
	}
	if it.ExternalPostID == "" {
		return platform.PostStatus{}, courier.ErrInvalidState
	}

	adapter, err := eng.adapters.Get(it.Platform)
	if err != nil {
		return platform.PostStatus{}, err
	}
	return adapter.GetPostStatus(ctx, it.ExternalPostID)
}

// BatchPostStatus fetches platform-side statuses for many items at
// once. Items are grouped by platform; adapters implementing
// BatchStatusFetcher get one call per platform, others fall back to
// per-item lookups. Items that never reached the platform are omitted
// from the result.
func (eng *Engine) BatchPostStatus(ctx context.Context, itemIDs []id.ItemID) (map[id.ItemID]platform.PostStatus, error) {
	byPlatform := make(map[string][]*item.Item)
	for _, itemID := range itemIDs {
		it, err := eng.store.GetItem(ctx, itemID)
		if err != nil {
			return nil, err
		}
		if it.ExternalPostID == "" {
			continue
		}
		byPlatform[it.Platform] = append(byPlatform[it.Platform], it)
	}

	result := make(map[id.ItemID]platform.PostStatus, len(itemIDs))
	for platformName, items := range byPlatform {
		adapter, err := eng.adapters.Get(platformName)
		if err != nil {
			return nil, err
		}

		if fetcher, ok := adapter.(platform.BatchStatusFetcher); ok {
			postIDs := make([]string, len(items))
			for i, it := range items {
				postIDs[i] = it.ExternalPostID
			}
			statuses, err := fetcher.GetBatchPostStatus(ctx, postIDs)
			if err != nil {
				return nil, fmt.Errorf("batch status on %s: %w", platformName, err)
			}
			for _, it := range items {
				if status, ok := statuses[it.ExternalPostID]; ok {
					result[it.ID] = status
				}
			}
			continue
		}

		for _, it := range items {
			status, err := adapter.GetPostStatus(ctx, it.ExternalPostID)
			if err != nil {
				return nil, fmt.Errorf("post status on %s: %w", platformName, err)
			}
			result[it.ID] = status
		}
	}
	return result, nil
}

// ValidateContent checks a payload against a platform's rules without
// enqueuing anything.
func (eng *Engine) ValidateContent(ctx context.Context, platformName string, payload item.Payload) (platform.ValidationResult, error) {
	adapter, err := eng.adapters.Get(platformName)
	if err != nil {
		return platform.ValidationResult{}, err
	}
	return adapter.ValidateContent(ctx, payload)
}

// Attempts returns the attempt history for an item, newest first.
func (eng *Engine) Attempts(ctx context.Context, itemID id.ItemID, limit int) ([]*retry.Attempt, error) {
	return eng.store.ListAttempts(ctx, itemID, limit)
}

// AttemptStats aggregates attempt outcomes for one platform, or all
// platforms when platformName is empty.
func (eng *Engine) AttemptStats(ctx context.Context, platformName string) (retry.Stats, error) {
	return eng.store.AttemptStats(ctx, platformName)
}

// ──────────────────────────────────────────────────
// Dead letter operations
// ──────────────────────────────────────────────────

// Resolve marks a dead letter entry handled.
func (eng *Engine) Resolve(ctx context.Context, entryID id.DLQID, notes string) error {
	return eng.dlqService.Resolve(ctx, entryID, notes)
}

// RetryFromDeadLetter re-enqueues a fresh item from a dead letter entry's
// snapshot and resolves the entry with a back-reference.
func (eng *Engine) RetryFromDeadLetter(ctx context.Context, entryID id.DLQID, notes string) (*item.Item, error) {
	replacement, err := eng.dlqService.Retry(ctx, entryID, notes)
	if replacement != nil {
		eng.extensions.EmitItemEnqueued(ctx, replacement)
	}
	return replacement, err
}

// DeleteFromDeadLetter soft-deletes a dead letter entry.
func (eng *Engine) DeleteFromDeadLetter(ctx context.Context, entryID id.DLQID, notes string) error {
	return eng.dlqService.Delete(ctx, entryID, notes)
}

// BulkAction applies one action uniformly across many dead letter entries.
func (eng *Engine) BulkAction(ctx context.Context, entryIDs []id.DLQID, action dlq.Action, notes string) (*dlq.BulkResult, error) {
	result, err := eng.dlqService.BulkAction(ctx, entryIDs, action, notes)
	if err != nil {
		return nil, err
	}
	// Retried entries enqueued replacements without engine involvement.
	eng.logger.Info("bulk dead letter action applied",
		slog.String("action", string(action)),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", result.Failed))
	return result, nil
}

// PurgeDeadLetters physically removes resolved entries quarantined before
// the given time. Returns the number removed.
func (eng *Engine) PurgeDeadLetters(ctx context.Context, before time.Time) (int64, error) {
	return eng.dlqService.Purge(ctx, before)
}

// ──────────────────────────────────────────────────
// Status reporting
// ──────────────────────────────────────────────────

// QueueStatus summarizes the queue: per-status counts and the next due
// items.
type QueueStatus struct {
	Total   int64                 `json:"total"`
	Counts  map[item.Status]int64 `json:"counts"`
	NextDue []*item.Item          `json:"next_due,omitempty"`
}

// QueueStatus reports per-status item counts and the upcoming items.
func (eng *Engine) QueueStatus(ctx context.Context) (*QueueStatus, error) {
	statuses := []item.Status{
		item.StatusPending, item.StatusProcessing, item.StatusPosted,
		item.StatusRetrying, item.StatusFailed, item.StatusQuarantined,
		item.StatusCancelled,
	}

	qs := &QueueStatus{Counts: make(map[item.Status]int64, len(statuses))}
	for _, status := range statuses {
		count, err := eng.store.CountItems(ctx, item.CountOpts{Status: status})
		if err != nil {
			return nil, err
		}
		qs.Counts[status] = count
		qs.Total += count
	}

	nextDue, err := eng.store.NextDue(ctx, nextDueLimit)
	if err != nil {
		return nil, err
	}
	qs.NextDue = nextDue

	return qs, nil
}

// HealthReport combines the monitor snapshot, the breaker states, and the
// currently detected anomalies.
type HealthReport struct {
	Health    health.Snapshot    `json:"health"`
	Breakers  []breaker.Snapshot `json:"breakers"`
	Anomalies []health.Anomaly   `json:"anomalies,omitempty"`
}

// HealthReport returns a point-in-time view of delivery health.
func (eng *Engine) HealthReport(ctx context.Context) *HealthReport {
	return &HealthReport{
		Health:    eng.monitor.Snapshot(ctx),
		Breakers:  eng.breakers.Snapshots(),
		Anomalies: eng.monitor.DetectAnomalies(ctx),
	}
}

// ──────────────────────────────────────────────────
// Recurring publishes
// ──────────────────────────────────────────────────

// RecurDefinition describes a recurring publish to register.
type RecurDefinition struct {
	Name        string        `json:"name"`
	Schedule    string        `json:"schedule"`
	Platform    string        `json:"platform"`
	Payload     item.Payload  `json:"payload"`
	Priority    item.Priority `json:"priority"`
	MaxRetries  int           `json:"max_retries,omitempty"`
	ScopeUserID string        `json:"scope_user_id,omitempty"`
	ScopeTeamID string        `json:"scope_team_id,omitempty"`
}

// RegisterRecur validates and persists a recurring publish entry. The
// schedule accepts standard 5-field cron expressions and descriptors like
// "@every 30m". Returns courier.ErrDuplicateRecur for a name collision.
func (eng *Engine) RegisterRecur(ctx context.Context, def RecurDefinition) (*recur.Entry, error) {
	schedule, err := recur.ParseSchedule(def.Schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", def.Schedule, err)
	}
	if _, err := eng.adapters.Get(def.Platform); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	next := schedule.Next(now)

	entry := &recur.Entry{
		Entity:      courier.NewEntity(),
		ID:          id.NewRecurID(),
		Name:        def.Name,
		Schedule:    def.Schedule,
		Platform:    def.Platform,
		Payload:     def.Payload,
		Priority:    def.Priority,
		MaxRetries:  def.MaxRetries,
		ScopeUserID: def.ScopeUserID,
		ScopeTeamID: def.ScopeTeamID,
		NextRunAt:   &next,
		Enabled:     true,
	}

	if err := eng.store.RegisterRecur(ctx, entry); err != nil {
		return nil, err
	}

	eng.logger.Info("recurring publish registered",
		slog.String("name", def.Name),
		slog.String("schedule", def.Schedule),
		slog.String("platform", def.Platform),
		slog.Time("next_run_at", next))

	return entry, nil
}

// GetRecur retrieves a recurring entry by ID.
func (eng *Engine) GetRecur(ctx context.Context, entryID id.RecurID) (*recur.Entry, error) {
	return eng.store.GetRecur(ctx, entryID)
}

// ListRecurs returns all recurring entries.
func (eng *Engine) ListRecurs(ctx context.Context) ([]*recur.Entry, error) {
	return eng.store.ListRecurs(ctx)
}

// DeleteRecur removes a recurring entry.
func (eng *Engine) DeleteRecur(ctx context.Context, entryID id.RecurID) error {
	return eng.store.DeleteRecur(ctx, entryID)
}

// SetRecurEnabled enables or disables a recurring entry. Re-enabling
// recomputes NextRunAt from the schedule so the entry does not fire
// immediately to catch up.
func (eng *Engine) SetRecurEnabled(ctx context.Context, entryID id.RecurID, enabled bool) (*recur.Entry, error) {
	entry, err := eng.store.GetRecur(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Enabled == enabled {
		return entry, nil
	}

	entry.Enabled = enabled
	if enabled {
		schedule, parseErr := recur.ParseSchedule(entry.Schedule)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid schedule %q: %w", entry.Schedule, parseErr)
		}
		next := schedule.Next(time.Now().UTC())
		entry.NextRunAt = &next
	}

	if err := eng.store.UpdateRecurEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// ──────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────

// Courier returns the underlying coordinator.
func (eng *Engine) Courier() *courier.Courier { return eng.c }

// Store returns the engine's store.
func (eng *Engine) Store() store.Store { return eng.store }

// Adapters returns the platform adapter registry.
func (eng *Engine) Adapters() *platform.Registry { return eng.adapters }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Breakers returns the circuit breaker registry.
func (eng *Engine) Breakers() *breaker.Registry { return eng.breakers }

// DLQ returns the dead letter service.
func (eng *Engine) DLQ() *dlq.Service { return eng.dlqService }

// Health returns the health monitor.
func (eng *Engine) Health() *health.Monitor { return eng.monitor }

// Broker returns the realtime status broker.
func (eng *Engine) Broker() *stream.Broker { return eng.broker }

// Scheduler returns the dispatch scheduler.
func (eng *Engine) Scheduler() *sched.Scheduler { return eng.scheduler }

// Limits returns the rate limit manager, or nil when no limits were
// configured.
func (eng *Engine) Limits() *limiter.Manager { return eng.limits }

// IsDuplicate reports whether err is a uniqueness conflict, for boundary
// code mapping errors to responses.
func IsDuplicate(err error) bool {
	return errors.Is(err, courier.ErrItemAlreadyExists) || errors.Is(err, courier.ErrDuplicateRecur)
}
