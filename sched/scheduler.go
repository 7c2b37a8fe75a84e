package sched

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/xraph/courier/breaker"
	"github.com/xraph/courier/ext"
	"github.com/xraph/courier/item"
	"github.com/xraph/courier/limiter"
	"github.com/xraph/courier/middleware"
	"github.com/xraph/courier/platform"
	"github.com/xraph/courier/retry"
)

const (
	// DefaultPollInterval is how often the scheduler checks for due items.
	DefaultPollInterval = 5 * time.Second

	// DefaultBatchSize is the maximum number of items claimed per pass.
	DefaultBatchSize = 25

	// DefaultDispatchConcurrency bounds in-flight adapter calls.
	DefaultDispatchConcurrency = 8

	// DefaultStaleThreshold is how long an item may sit in processing
	// before the reaper returns it to the queue.
	DefaultStaleThreshold = 5 * time.Minute
)

// Scheduler polls the item store and dispatches due items to platform
// adapters. Each pass claims a batch and fans out per-item goroutines
// gated by a weighted semaphore; a pass already in flight suppresses the
// next tick.
type Scheduler struct {
	store       item.Store
	adapters    *platform.Registry
	coordinator *retry.Coordinator
	breakers    *breaker.Registry
	limiter     *limiter.Manager
	extensions  *ext.Registry
	mw          middleware.Middleware
	logger      *slog.Logger

	pollInterval        time.Duration
	batchSize           int
	dispatchConcurrency int64
	staleThreshold      time.Duration
	platforms           []string

	sem         *semaphore.Weighted
	passRunning atomic.Bool

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithPollInterval sets how often the scheduler polls for due items.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.pollInterval = d }
}

// WithBatchSize sets the maximum number of items claimed per pass.
func WithBatchSize(n int) Option {
	return func(s *Scheduler) { s.batchSize = n }
}

// WithDispatchConcurrency bounds the number of concurrent adapter calls,
// independently of the batch size.
func WithDispatchConcurrency(n int) Option {
	return func(s *Scheduler) { s.dispatchConcurrency = int64(n) }
}

// WithStaleThreshold sets the threshold after which processing items are
// considered abandoned and returned to the queue. A zero value disables
// the reaper.
func WithStaleThreshold(d time.Duration) Option {
	return func(s *Scheduler) { s.staleThreshold = d }
}

// WithPlatforms restricts dispatch to the given platforms. Empty means
// every platform with a registered adapter.
func WithPlatforms(platforms []string) Option {
	return func(s *Scheduler) { s.platforms = platforms }
}

// WithLimiter sets the per-platform rate limiting and concurrency manager.
func WithLimiter(m *limiter.Manager) Option {
	return func(s *Scheduler) { s.limiter = m }
}

// WithMiddleware sets the middleware chain wrapped around each adapter call.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(s *Scheduler) { s.mw = middleware.Chain(mws...) }
}

// NewScheduler creates a Scheduler with the given dependencies.
func NewScheduler(
	store item.Store,
	adapters *platform.Registry,
	coordinator *retry.Coordinator,
	breakers *breaker.Registry,
	extensions *ext.Registry,
	logger *slog.Logger,
	opts ...Option,
) *Scheduler {
	s := &Scheduler{
		store:               store,
		adapters:            adapters,
		coordinator:         coordinator,
		breakers:            breakers,
		extensions:          extensions,
		mw:                  middleware.Chain(),
		logger:              logger,
		pollInterval:        DefaultPollInterval,
		batchSize:           DefaultBatchSize,
		dispatchConcurrency: DefaultDispatchConcurrency,
		staleThreshold:      DefaultStaleThreshold,
		stopCh:              make(chan struct{}),
	}
	if s.extensions == nil {
		s.extensions = ext.NewRegistry(logger)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sem = semaphore.NewWeighted(s.dispatchConcurrency)
	return s
}

// Start launches the polling and reaper loops. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	s.running = true

	s.logger.Info("scheduler starting",
		slog.Duration("poll_interval", s.pollInterval),
		slog.Int("batch_size", s.batchSize),
		slog.Int64("dispatch_concurrency", s.dispatchConcurrency),
	)

	// Detach from the caller's cancellation so in-flight dispatches can
	// finish during graceful shutdown.
	runCtx := context.WithoutCancel(ctx)

	s.wg.Add(1)
	go s.pollLoop(runCtx)

	if s.staleThreshold > 0 {
		s.wg.Add(1)
		go s.reaperLoop(runCtx)
	}

	return nil
}

// Stop signals the loops to stop and waits for in-flight dispatches to
// drain. If the context expires first, Stop returns its error and leaves
// the remaining items in processing for the reaper.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("scheduler stopping")
	close(s.stopCh)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler shutdown timed out with dispatches in flight")
		return ctx.Err()
	}
}

// pollLoop ticks until stopped. An immediate pass runs on start so due
// items do not wait out the first interval.
func (s *Scheduler) pollLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	s.runPass(ctx)

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runPass(ctx)
		}
	}
}

// runPass launches a dispatch pass unless one is already in flight.
func (s *Scheduler) runPass(ctx context.Context) {
	if !s.passRunning.CompareAndSwap(false, true) {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.passRunning.Store(false)
		s.tick(ctx)
	}()
}

// tick claims a batch of due items and dispatches each on its own
// goroutine. The pass returns once every item in the batch has been
// handled; one item's failure never blocks its siblings.
func (s *Scheduler) tick(ctx context.Context) {
	platforms := s.platforms
	if len(platforms) == 0 {
		platforms = s.adapters.Names()
	}

	items, err := s.store.DequeueDue(ctx, platforms, s.batchSize)
	if err != nil {
		s.logger.Error("dequeue error", slog.String("error", err.Error()))
		return
	}
	if len(items) == 0 {
		return
	}

	var passWG sync.WaitGroup
	for _, it := range items {
		if acquireErr := s.sem.Acquire(ctx, 1); acquireErr != nil {
			s.requeue(ctx, it)
			continue
		}

		passWG.Add(1)
		go func(it *item.Item) {
			defer passWG.Done()
			defer s.sem.Release(1)
			s.dispatch(ctx, it)
		}(it)
	}
	passWG.Wait()
}

// dispatch sends one claimed item to its platform adapter and routes the
// outcome to the retry coordinator.
func (s *Scheduler) dispatch(ctx context.Context, it *item.Item) {
	if s.limiter != nil {
		if !s.limiter.Acquire(it.Platform, it.ScopeTeamID) {
			s.deferRateLimited(ctx, it)
			return
		}
		defer s.limiter.Release(it.Platform, it.ScopeTeamID)
	}

	if s.breakers != nil {
		if err := s.breakers.Allow(ctx, it.Platform); err != nil {
			if handleErr := s.coordinator.HandleFailure(ctx, it, err, 0, 0); handleErr != nil {
				s.logger.Error("failed to defer item for open breaker",
					slog.String("item_id", it.ID.String()),
					slog.String("error", handleErr.Error()),
				)
			}
			return
		}
	}

	adapter, err := s.adapters.Get(it.Platform)
	if err != nil {
		if handleErr := s.coordinator.HandleFailure(ctx, it, err, 0, 0); handleErr != nil {
			s.logger.Error("failed to record missing adapter",
				slog.String("item_id", it.ID.String()),
				slog.String("platform", it.Platform),
				slog.String("error", handleErr.Error()),
			)
		}
		return
	}

	s.extensions.EmitItemDispatched(ctx, it)

	var result platform.ScheduleResult
	terminal := func(ctx context.Context) error {
		var callErr error
		result, callErr = adapter.SchedulePost(ctx, it.Payload, it.ScheduledAt)
		return callErr
	}

	start := time.Now()
	dispatchErr := s.mw(ctx, it, terminal)
	elapsed := time.Since(start)

	if dispatchErr != nil {
		if handleErr := s.coordinator.HandleFailure(ctx, it, dispatchErr, platform.StatusCode(dispatchErr), elapsed); handleErr != nil {
			s.logger.Error("failed to record dispatch failure",
				slog.String("item_id", it.ID.String()),
				slog.String("error", handleErr.Error()),
			)
		}
		return
	}

	if handleErr := s.coordinator.HandleSuccess(ctx, it, result.PostID, elapsed); handleErr != nil {
		s.logger.Error("failed to record dispatch success",
			slog.String("item_id", it.ID.String()),
			slog.String("error", handleErr.Error()),
		)
	}
}

// deferRateLimited returns a claimed item to pending with a short delay
// so the next pass does not immediately re-claim it. No retry is consumed.
func (s *Scheduler) deferRateLimited(ctx context.Context, it *item.Item) {
	nextAttempt := time.Now().UTC().Add(s.pollInterval)
	it.Status = item.StatusPending
	it.ProcessingAt = nil
	it.NextRetryAt = &nextAttempt
	it.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateItem(ctx, it); err != nil {
		s.logger.Error("failed to defer rate-limited item",
			slog.String("item_id", it.ID.String()),
			slog.String("platform", it.Platform),
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Debug("item deferred, platform rate limited",
		slog.String("item_id", it.ID.String()),
		slog.String("platform", it.Platform),
	)
}

// requeue returns a claimed item to pending untouched. Used when the
// pass is aborted before the item could be dispatched.
func (s *Scheduler) requeue(ctx context.Context, it *item.Item) {
	it.Status = item.StatusPending
	it.ProcessingAt = nil
	it.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateItem(ctx, it); err != nil {
		s.logger.Error("failed to requeue item",
			slog.String("item_id", it.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// reaperLoop periodically returns items stuck in processing to the queue.
func (s *Scheduler) reaperLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.staleThreshold)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.reapStale(ctx)
		}
	}
}

// reapStale resets items whose dispatching process appears to have died.
func (s *Scheduler) reapStale(ctx context.Context) {
	stale, err := s.store.ReapStaleItems(ctx, s.staleThreshold)
	if err != nil {
		s.logger.Error("reap stale items error", slog.String("error", err.Error()))
		return
	}

	for _, it := range stale {
		it.Status = item.StatusPending
		it.ProcessingAt = nil
		it.UpdatedAt = time.Now().UTC()

		if updateErr := s.store.UpdateItem(ctx, it); updateErr != nil {
			s.logger.Error("reap: failed to reset stale item",
				slog.String("item_id", it.ID.String()),
				slog.String("error", updateErr.Error()),
			)
			continue
		}

		s.logger.Info("reaped stale item",
			slog.String("item_id", it.ID.String()),
			slog.String("platform", it.Platform),
		)
	}
}
