package recur_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/xraph/courier"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/item"
	"github.com/xraph/courier/recur"
	"github.com/xraph/courier/store/memory"
)

// stubEmitter records EmitRecurFired calls.
type stubEmitter struct {
	mu    sync.Mutex
	calls []recurFiredCall
}

type recurFiredCall struct {
	EntryName string
	ItemID    id.ItemID
}

func (e *stubEmitter) EmitRecurFired(_ context.Context, entryName string, itemID id.ItemID) {
	e.mu.Lock()
	e.calls = append(e.calls, recurFiredCall{EntryName: entryName, ItemID: itemID})
	e.mu.Unlock()
}

func (e *stubEmitter) getCalls() []recurFiredCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]recurFiredCall, len(e.calls))
	copy(out, e.calls)
	return out
}

// enqueueSpy tracks enqueue calls with thread safety.
type enqueueSpy struct {
	mu    sync.Mutex
	calls []enqueueCall
}

type enqueueCall struct {
	Platform string
	Payload  item.Payload
}

func (e *enqueueSpy) Fn() recur.EnqueueFunc {
	return func(_ context.Context, platform string, payload item.Payload, _ ...item.Option) (id.ItemID, error) {
		e.mu.Lock()
		e.calls = append(e.calls, enqueueCall{Platform: platform, Payload: payload})
		e.mu.Unlock()
		return id.NewItemID(), nil
	}
}

func (e *enqueueSpy) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func (e *enqueueSpy) Platforms() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.calls))
	for i, c := range e.calls {
		out[i] = c.Platform
	}
	return out
}

func registerDueEntry(t *testing.T, s *memory.Store, name, platform string) *recur.Entry {
	t.Helper()

	past := time.Now().UTC().Add(-1 * time.Second)
	entry := &recur.Entry{
		Entity:    courier.NewEntity(),
		ID:        id.NewRecurID(),
		Name:      name,
		Schedule:  "@every 1s",
		Platform:  platform,
		Payload:   item.Payload{Content: "scheduled digest"},
		NextRunAt: &past,
		Enabled:   true,
	}

	if err := s.RegisterRecur(context.Background(), entry); err != nil {
		t.Fatalf("RegisterRecur: %v", err)
	}
	return entry
}

func newTestScheduler(t *testing.T) (
	*recur.Scheduler,
	*memory.Store,
	*stubEmitter,
	*enqueueSpy,
) {
	t.Helper()

	s := memory.New()
	emitter := &stubEmitter{}
	spy := &enqueueSpy{}

	sched := recur.NewScheduler(
		s, spy.Fn(), emitter, "test-instance", nil,
		recur.WithTickInterval(50*time.Millisecond),
		recur.WithLockTTL(10*time.Second),
	)

	return sched, s, emitter, spy
}

// ──────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────

func TestScheduler_FiresOnSchedule(t *testing.T) {
	sched, s, emitter, spy := newTestScheduler(t)

	registerDueEntry(t, s, "hourly-digest", "mastodon")

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Wait for at least one fire.
	deadline := time.After(3 * time.Second)
	for spy.Count() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for recurring entry to fire")
		default:
			time.Sleep(20 * time.Millisecond)
		}
	}

	if err := sched.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	platforms := spy.Platforms()
	if len(platforms) == 0 {
		t.Fatal("expected at least one enqueue call")
	}
	if platforms[0] != "mastodon" {
		t.Errorf("enqueued platform = %q, want %q", platforms[0], "mastodon")
	}

	// Verify emitter was called.
	calls := emitter.getCalls()
	if len(calls) == 0 {
		t.Error("expected at least one EmitRecurFired call")
	}
	if len(calls) > 0 && calls[0].EntryName != "hourly-digest" {
		t.Errorf("emitter entry name = %q, want %q", calls[0].EntryName, "hourly-digest")
	}
}

func TestScheduler_SkipsDisabled(t *testing.T) {
	sched, s, _, spy := newTestScheduler(t)

	entry := registerDueEntry(t, s, "disabled-entry", "twitter")

	// Disable the entry.
	entry.Enabled = false
	if err := s.UpdateRecurEntry(context.Background(), entry); err != nil {
		t.Fatalf("UpdateRecurEntry: %v", err)
	}

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Wait a bit — should NOT fire.
	time.Sleep(300 * time.Millisecond)

	if err := sched.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if spy.Count() != 0 {
		t.Errorf("expected 0 enqueue calls for disabled entry, got %d", spy.Count())
	}
}

func TestScheduler_SkipsFutureEntries(t *testing.T) {
	sched, s, _, spy := newTestScheduler(t)

	future := time.Now().UTC().Add(1 * time.Hour)
	entry := &recur.Entry{
		Entity:    courier.NewEntity(),
		ID:        id.NewRecurID(),
		Name:      "later-today",
		Schedule:  "@every 1h",
		Platform:  "linkedin",
		Payload:   item.Payload{Content: "not yet"},
		NextRunAt: &future,
		Enabled:   true,
	}
	if err := s.RegisterRecur(context.Background(), entry); err != nil {
		t.Fatalf("RegisterRecur: %v", err)
	}

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(300 * time.Millisecond)

	if err := sched.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if spy.Count() != 0 {
		t.Errorf("expected 0 enqueue calls for future entry, got %d", spy.Count())
	}
}

func TestScheduler_ComputesNextRunAt(t *testing.T) {
	sched, s, _, spy := newTestScheduler(t)

	entry := registerDueEntry(t, s, "update-next", "twitter")
	entryID := entry.ID

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Wait for at least one fire.
	deadline := time.After(3 * time.Second)
	for spy.Count() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for recurring entry to fire")
		default:
			time.Sleep(20 * time.Millisecond)
		}
	}

	if err := sched.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// Verify NextRunAt was updated to a future time.
	updated, err := s.GetRecur(context.Background(), entryID)
	if err != nil {
		t.Fatalf("GetRecur: %v", err)
	}
	if updated.NextRunAt == nil {
		t.Fatal("expected NextRunAt to be set")
	}
	// NextRunAt should be in the future (or very recent past due to timing).
	if updated.NextRunAt.Before(time.Now().UTC().Add(-2 * time.Second)) {
		t.Errorf("NextRunAt = %v, expected recent/future time", updated.NextRunAt)
	}

	// Verify LastRunAt was set.
	if updated.LastRunAt == nil {
		t.Error("expected LastRunAt to be set after firing")
	}
}

func TestScheduler_LockPreventsDoubleFire(t *testing.T) {
	s := memory.New()
	emitter := &stubEmitter{}
	spy := &enqueueSpy{}

	ctx := context.Background()

	entry := registerDueEntry(t, s, "locked-entry", "twitter")

	// Pre-acquire the lock for this entry with a different instance.
	locked, lockErr := s.AcquireRecurLock(ctx, entry.ID, "other-instance", 30*time.Second)
	if lockErr != nil {
		t.Fatalf("AcquireRecurLock: %v", lockErr)
	}
	if !locked {
		t.Fatal("expected to acquire recur lock")
	}

	sched := recur.NewScheduler(
		s, spy.Fn(), emitter, "test-instance", nil,
		recur.WithTickInterval(50*time.Millisecond),
		recur.WithLockTTL(10*time.Second),
	)

	if startErr := sched.Start(ctx); startErr != nil {
		t.Fatalf("Start: %v", startErr)
	}

	// Wait — scheduler should try but fail to acquire the lock.
	time.Sleep(300 * time.Millisecond)

	if stopErr := sched.Stop(ctx); stopErr != nil {
		t.Fatalf("Stop: %v", stopErr)
	}

	if spy.Count() != 0 {
		t.Errorf("expected 0 fires with pre-locked entry, got %d", spy.Count())
	}
}

func TestScheduler_AppliesEntryOptions(t *testing.T) {
	s := memory.New()
	emitter := &stubEmitter{}

	var (
		mu   sync.Mutex
		got  *item.Item
		seen bool
	)
	enqueue := func(_ context.Context, platform string, payload item.Payload, opts ...item.Option) (id.ItemID, error) {
		it := item.New(platform, payload, opts...)
		mu.Lock()
		got, seen = it, true
		mu.Unlock()
		return it.ID, nil
	}

	past := time.Now().UTC().Add(-1 * time.Second)
	entry := &recur.Entry{
		Entity:      courier.NewEntity(),
		ID:          id.NewRecurID(),
		Name:        "scoped-entry",
		Schedule:    "@every 1s",
		Platform:    "twitter",
		Payload:     item.Payload{Content: "team update"},
		Priority:    item.PriorityHigh,
		MaxRetries:  5,
		ScopeUserID: "user_abc",
		ScopeTeamID: "team_xyz",
		NextRunAt:   &past,
		Enabled:     true,
	}
	if err := s.RegisterRecur(context.Background(), entry); err != nil {
		t.Fatalf("RegisterRecur: %v", err)
	}

	sched := recur.NewScheduler(
		s, enqueue, emitter, "test-instance", nil,
		recur.WithTickInterval(50*time.Millisecond),
	)

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		mu.Lock()
		done := seen
		mu.Unlock()
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for recurring entry to fire")
		default:
			time.Sleep(20 * time.Millisecond)
		}
	}

	if err := sched.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if got.Priority != item.PriorityHigh {
		t.Errorf("Priority = %v, want %v", got.Priority, item.PriorityHigh)
	}
	if got.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", got.MaxRetries)
	}
	if got.ScopeUserID != "user_abc" || got.ScopeTeamID != "team_xyz" {
		t.Errorf("scope = (%q, %q), want (user_abc, team_xyz)", got.ScopeUserID, got.ScopeTeamID)
	}
}

func TestParseSchedule(t *testing.T) {
	// Descriptor format.
	sched, err := recur.ParseSchedule("@every 30s")
	if err != nil {
		t.Fatalf("ParseSchedule(@every 30s): %v", err)
	}
	now := time.Now().UTC()
	next := sched.Next(now)
	if !next.After(now) {
		t.Errorf("Next(%v) = %v, expected future time", now, next)
	}

	// Standard 5-field expression.
	sched2, err := recur.ParseSchedule("*/5 * * * *")
	if err != nil {
		t.Fatalf("ParseSchedule(*/5 * * * *): %v", err)
	}
	next2 := sched2.Next(now)
	if !next2.After(now) {
		t.Errorf("Next(%v) = %v, expected future time", now, next2)
	}

	// Invalid expression.
	_, err = recur.ParseSchedule("not-a-cron")
	if err == nil {
		t.Error("expected error for invalid cron expression")
	}
}
