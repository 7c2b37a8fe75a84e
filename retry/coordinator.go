package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/xraph/courier"
	"github.com/xraph/courier/breaker"
	"github.com/xraph/courier/classify"
	"github.com/xraph/courier/dlq"
	"github.com/xraph/courier/ext"
	"github.com/xraph/courier/health"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/item"
)

// Coordinator decides what happens after each dispatch attempt: record
// the outcome, schedule a retry with backoff, or quarantine the item
// into the dead letter queue. It is the single writer of post-attempt
// item state.
type Coordinator struct {
	items      item.Store
	attempts   AttemptStore
	dlq        *dlq.Service
	breakers   *breaker.Registry
	health     *health.Monitor
	extensions *ext.Registry
	logger     *slog.Logger

	defaultPolicy    Policy
	platformPolicies map[string]Policy

	now func() time.Time
}

// CoordinatorConfig carries the dependencies for a Coordinator.
// Items, Attempts and DLQ are required; the rest are optional.
type CoordinatorConfig struct {
	Items      item.Store
	Attempts   AttemptStore
	DLQ        *dlq.Service
	Breakers   *breaker.Registry
	Health     *health.Monitor
	Extensions *ext.Registry
	Logger     *slog.Logger

	// Policy is the default retry policy. Zero value means DefaultPolicy.
	Policy Policy

	// PlatformPolicies override the default policy per platform.
	PlatformPolicies map[string]Policy
}

// NewCoordinator creates a retry coordinator.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Policy == (Policy{}) {
		cfg.Policy = DefaultPolicy()
	}
	if cfg.Extensions == nil {
		cfg.Extensions = ext.NewRegistry(cfg.Logger)
	}
	return &Coordinator{
		items:            cfg.Items,
		attempts:         cfg.Attempts,
		dlq:              cfg.DLQ,
		breakers:         cfg.Breakers,
		health:           cfg.Health,
		extensions:       cfg.Extensions,
		logger:           cfg.Logger,
		defaultPolicy:    cfg.Policy,
		platformPolicies: cfg.PlatformPolicies,
		now:              time.Now,
	}
}

// PolicyFor returns the retry policy in effect for a platform.
func (c *Coordinator) PolicyFor(platform string) Policy {
	if p, ok := c.platformPolicies[platform]; ok {
		return p
	}
	return c.defaultPolicy
}

// HandleSuccess records a successful dispatch: the item moves to posted,
// the platform post ID is stored and the streak counters reset.
func (c *Coordinator) HandleSuccess(ctx context.Context, it *item.Item, externalPostID string, elapsed time.Duration) error {
	now := c.now().UTC()

	it.Status = item.StatusPosted
	it.ExternalPostID = externalPostID
	it.PostedAt = &now
	it.ProcessingAt = nil
	it.NextRetryAt = nil
	it.LastError = ""
	it.LastErrorType = ""
	it.UpdatedAt = now

	if err := c.items.UpdateItem(ctx, it); err != nil {
		return err
	}

	c.recordAttempt(ctx, it, classify.Classification{}, true, elapsed)

	if c.breakers != nil {
		c.breakers.RecordSuccess(ctx, it.Platform)
	}
	if c.health != nil {
		c.health.RecordSuccess(it.Platform, elapsed)
	}

	c.logger.Info("item posted",
		slog.String("item_id", it.ID.String()),
		slog.String("platform", it.Platform),
		slog.String("external_post_id", externalPostID),
		slog.Duration("elapsed", elapsed))

	c.extensions.EmitItemPosted(ctx, it, elapsed)
	return nil
}

// HandleFailure records a failed dispatch and decides the item's fate:
// non-retryable errors and exhausted retry budgets quarantine the item;
// everything else schedules a retry with the strategy's backoff.
//
// A circuit-open rejection is not a platform failure: the item returns
// to pending without consuming a retry and nothing is recorded.
func (c *Coordinator) HandleFailure(ctx context.Context, it *item.Item, dispatchErr error, statusCode int, elapsed time.Duration) error {
	if errors.Is(dispatchErr, courier.ErrCircuitOpen) {
		return c.deferForBreaker(ctx, it)
	}

	now := c.now().UTC()
	cls := classify.Classify(dispatchErr, statusCode)

	if c.breakers != nil {
		c.breakers.RecordFailure(ctx, it.Platform)
	}
	if c.health != nil {
		c.health.RecordFailure(it.Platform, elapsed, cls.Category)
	}

	it.LastError = dispatchErr.Error()
	it.LastErrorType = string(cls.Category)

	policy := c.PolicyFor(it.Platform)

	// Quarantined items carry the error on the dead letter entry; no
	// attempt record is written for them.
	if !cls.IsRetryable {
		return c.quarantine(ctx, it, dispatchErr, dlq.ReasonNonRetryable)
	}
	if policy.ShouldQuarantine(it.RetryCount, it.MaxRetries) {
		return c.quarantine(ctx, it, dispatchErr, dlq.ReasonMaxRetriesExceeded)
	}

	c.recordAttempt(ctx, it, cls, false, elapsed)

	delay := policy.DelayFor(cls.Strategy, it.RetryCount)
	nextRetryAt := now.Add(delay)

	it.Status = item.StatusRetrying
	it.RetryCount++
	it.RetryDelay = delay
	it.NextRetryAt = &nextRetryAt
	it.ProcessingAt = nil
	it.UpdatedAt = now

	if err := c.items.UpdateItem(ctx, it); err != nil {
		return err
	}

	c.logger.Warn("item retry scheduled",
		slog.String("item_id", it.ID.String()),
		slog.String("platform", it.Platform),
		slog.Int("attempt", it.RetryCount),
		slog.String("error_type", string(cls.Category)),
		slog.String("strategy", string(cls.Strategy)),
		slog.Duration("delay", delay),
		slog.Time("next_retry_at", nextRetryAt))

	c.extensions.EmitItemRetrying(ctx, it, it.RetryCount, nextRetryAt)
	return nil
}

// deferForBreaker returns a claimed item to pending without consuming a
// retry. The breaker's cooldown gates the next dispatch.
func (c *Coordinator) deferForBreaker(ctx context.Context, it *item.Item) error {
	it.Status = item.StatusPending
	it.ProcessingAt = nil
	it.UpdatedAt = c.now().UTC()

	if err := c.items.UpdateItem(ctx, it); err != nil {
		return err
	}

	c.logger.Info("item deferred, circuit open",
		slog.String("item_id", it.ID.String()),
		slog.String("platform", it.Platform))
	return nil
}

// quarantine moves a terminally failed item into the dead letter queue.
func (c *Coordinator) quarantine(ctx context.Context, it *item.Item, dispatchErr error, reason dlq.FailureReason) error {
	it.Status = item.StatusFailed
	it.ProcessingAt = nil
	it.NextRetryAt = nil
	it.UpdatedAt = c.now().UTC()

	entry, err := c.dlq.Quarantine(ctx, it, reason, dispatchErr.Error())
	if err != nil {
		return err
	}

	c.extensions.EmitItemFailed(ctx, it, dispatchErr)
	c.extensions.EmitItemQuarantined(ctx, entry)
	return nil
}

// recordAttempt appends an attempt record. Failures to persist the
// record are logged and swallowed; the history is advisory.
func (c *Coordinator) recordAttempt(ctx context.Context, it *item.Item, cls classify.Classification, success bool, elapsed time.Duration) {
	if c.attempts == nil {
		return
	}

	a := &Attempt{
		Entity:         courier.NewEntity(),
		ID:             id.NewAttemptID(),
		ItemID:         it.ID,
		Platform:       it.Platform,
		RetryCount:     it.RetryCount,
		ErrorType:      cls.Category,
		Strategy:       cls.Strategy,
		AttemptedAt:    c.now().UTC(),
		Success:        success,
		ProcessingTime: elapsed,
	}

	if err := c.attempts.AppendAttempt(ctx, a); err != nil {
		c.logger.Error("failed to record attempt",
			slog.String("item_id", it.ID.String()),
			slog.String("error", err.Error()))
	}
}
