package recur

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/courier/id"
	"github.com/xraph/courier/item"
)

// EnqueueFunc is the callback the scheduler uses to enqueue items.
// This breaks the import cycle: the engine provides the implementation.
type EnqueueFunc func(ctx context.Context, platform string, payload item.Payload, opts ...item.Option) (id.ItemID, error)

// Emitter emits recurring-publish lifecycle events.
// ext.Registry satisfies this interface via EmitRecurFired.
type Emitter interface {
	EmitRecurFired(ctx context.Context, entryName string, itemID id.ItemID)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due entries.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithLockTTL sets the TTL for per-entry firing locks.
func WithLockTTL(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.lockTTL = d }
}

// cronParser supports standard 5-field cron and descriptors like "@every 30m".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
// Exported for use by engine.RegisterRecur.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Scheduler fires recurring entries on a tick loop. The per-entry lock
// prevents double-firing when several instances share one store.
type Scheduler struct {
	store   Store
	enqueue EnqueueFunc
	emitter Emitter

	// owner identifies this instance for firing locks.
	owner  string
	logger *slog.Logger

	tickInterval time.Duration
	lockTTL      time.Duration

	// parsedSchedules caches parsed cron expressions.
	parsedMu sync.RWMutex
	parsed   map[string]cronlib.Schedule

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler. owner must be unique per instance.
func NewScheduler(
	store Store,
	enqueue EnqueueFunc,
	emitter Emitter,
	owner string,
	logger *slog.Logger,
	opts ...SchedulerOption,
) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		store:        store,
		enqueue:      enqueue,
		emitter:      emitter,
		owner:        owner,
		logger:       logger,
		tickInterval: 1 * time.Second,
		lockTTL:      30 * time.Second,
		parsed:       make(map[string]cronlib.Schedule),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the tick goroutine.
func (s *Scheduler) Start(_ context.Context) error {
	s.wg.Add(1)
	go s.tickLoop()
	s.logger.Info("recurring scheduler started",
		slog.String("owner", s.owner),
		slog.Duration("tick_interval", s.tickInterval),
	)
	return nil
}

// Stop signals the scheduler to stop and waits for the tick loop to finish.
func (s *Scheduler) Stop(_ context.Context) error {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("recurring scheduler stopped")
	return nil
}

func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	ctx := context.Background()

	entries, err := s.store.ListRecurs(ctx)
	if err != nil {
		s.logger.Error("list recurring entries error", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	for _, entry := range entries {
		if !entry.Enabled {
			continue
		}
		if entry.NextRunAt == nil || entry.NextRunAt.After(now) {
			continue
		}
		s.fireEntry(ctx, entry, now)
	}
}

func (s *Scheduler) fireEntry(ctx context.Context, entry *Entry, now time.Time) {
	acquired, err := s.store.AcquireRecurLock(ctx, entry.ID, s.owner, s.lockTTL)
	if err != nil {
		s.logger.Error("acquire recur lock error",
			slog.String("recur_id", entry.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	if !acquired {
		return // Another instance got it.
	}

	opts := []item.Option{
		item.WithPriority(entry.Priority),
		item.WithScope(entry.ScopeUserID, entry.ScopeTeamID),
	}
	if entry.MaxRetries > 0 {
		opts = append(opts, item.WithMaxRetries(entry.MaxRetries))
	}

	itemID, enqErr := s.enqueue(ctx, entry.Platform, entry.Payload, opts...)
	if enqErr != nil {
		s.logger.Error("recurring enqueue error",
			slog.String("recur_name", entry.Name),
			slog.String("platform", entry.Platform),
			slog.String("error", enqErr.Error()),
		)
		if relErr := s.store.ReleaseRecurLock(ctx, entry.ID, s.owner); relErr != nil {
			s.logger.Error("release recur lock error",
				slog.String("recur_id", entry.ID.String()),
				slog.String("error", relErr.Error()),
			)
		}
		return
	}

	if updateErr := s.store.UpdateRecurLastRun(ctx, entry.ID, now); updateErr != nil {
		s.logger.Error("update recur last run error",
			slog.String("recur_id", entry.ID.String()),
			slog.String("error", updateErr.Error()),
		)
	}

	// Compute and persist NextRunAt.
	sched, parseErr := s.getOrParseSchedule(entry.Schedule)
	if parseErr != nil {
		s.logger.Error("parse recur schedule error",
			slog.String("recur_name", entry.Name),
			slog.String("schedule", entry.Schedule),
			slog.String("error", parseErr.Error()),
		)
	} else {
		next := sched.Next(now)
		entry.NextRunAt = &next
		if updateErr := s.store.UpdateRecurEntry(ctx, entry); updateErr != nil {
			s.logger.Error("update recur next run error",
				slog.String("recur_id", entry.ID.String()),
				slog.String("error", updateErr.Error()),
			)
		}
	}

	if relErr := s.store.ReleaseRecurLock(ctx, entry.ID, s.owner); relErr != nil {
		s.logger.Error("release recur lock error",
			slog.String("recur_id", entry.ID.String()),
			slog.String("error", relErr.Error()),
		)
	}

	if s.emitter != nil {
		s.emitter.EmitRecurFired(ctx, entry.Name, itemID)
	}

	s.logger.Info("recurring entry fired",
		slog.String("recur_name", entry.Name),
		slog.String("platform", entry.Platform),
		slog.String("item_id", itemID.String()),
	)
}

// getOrParseSchedule caches parsed cron expressions.
func (s *Scheduler) getOrParseSchedule(expr string) (cronlib.Schedule, error) {
	s.parsedMu.RLock()
	sched, ok := s.parsed[expr]
	s.parsedMu.RUnlock()
	if ok {
		return sched, nil
	}

	sched, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}

	s.parsedMu.Lock()
	s.parsed[expr] = sched
	s.parsedMu.Unlock()
	return sched, nil
}
