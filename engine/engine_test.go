package engine_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/courier"
	"github.com/xraph/courier/dlq"
	"github.com/xraph/courier/engine"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/item"
	"github.com/xraph/courier/platform"
	"github.com/xraph/courier/retry"
	"github.com/xraph/courier/scope"
	"github.com/xraph/courier/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubAdapter is a controllable platform adapter. Content with empty
// Content fails validation; SchedulePost fails when err is set.
type stubAdapter struct {
	name      string
	err       error
	canCancel bool
	cancelled atomic.Bool
	calls     atomic.Int32
}

func (a *stubAdapter) Name() string { return a.name }

func (a *stubAdapter) ValidateContent(_ context.Context, payload item.Payload) (platform.ValidationResult, error) {
	if payload.Content == "" {
		return platform.ValidationResult{IsValid: false, Errors: []string{"content required"}}, nil
	}
	return platform.ValidationResult{IsValid: true}, nil
}

func (a *stubAdapter) SchedulePost(_ context.Context, _ item.Payload, at time.Time) (platform.ScheduleResult, error) {
	n := a.calls.Add(1)
	if a.err != nil {
		return platform.ScheduleResult{}, a.err
	}
	return platform.ScheduleResult{
		PostID:        fmt.Sprintf("%s_post_%d", a.name, n),
		ScheduledTime: at,
	}, nil
}

func (a *stubAdapter) GetPostStatus(_ context.Context, postID string) (platform.PostStatus, error) {
	return platform.PostStatus{Status: "scheduled", URL: "https://" + a.name + "/" + postID}, nil
}

// cancelableAdapter adds the Canceler capability.
type cancelableAdapter struct {
	stubAdapter
}

func (a *cancelableAdapter) CancelScheduledPost(_ context.Context, _ string) (bool, error) {
	a.cancelled.Store(true)
	return a.canCancel, nil
}

func newTestEngine(t *testing.T, opts ...engine.Option) (*engine.Engine, *stubAdapter) {
	t.Helper()

	adapter := &stubAdapter{name: "twitter"}

	c, err := courier.New(
		courier.WithStore(memory.New()),
		courier.WithLogger(testLogger()),
		courier.WithPollInterval(10*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("courier.New: %v", err)
	}

	allOpts := append([]engine.Option{engine.WithAdapter(adapter)}, opts...)
	eng, err := engine.Build(c, allOpts...)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}
	return eng, adapter
}

// ──────────────────────────────────────────────────
// Build
// ──────────────────────────────────────────────────

func TestBuild_RequiresStore(t *testing.T) {
	c, err := courier.New(courier.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("courier.New: %v", err)
	}

	_, err = engine.Build(c)
	if !errors.Is(err, courier.ErrNoStore) {
		t.Errorf("Build without store: err = %v, want ErrNoStore", err)
	}
}

// ──────────────────────────────────────────────────
// Enqueue
// ──────────────────────────────────────────────────

func TestEnqueueItem(t *testing.T) {
	eng, _ := newTestEngine(t)

	it, err := eng.EnqueueItem(context.Background(), "twitter", item.Payload{Content: "hello"},
		item.WithPriority(item.PriorityHigh))
	if err != nil {
		t.Fatalf("EnqueueItem: %v", err)
	}

	if it.Status != item.StatusPending {
		t.Errorf("Status = %v, want pending", it.Status)
	}
	if it.Priority != item.PriorityHigh {
		t.Errorf("Priority = %v, want high", it.Priority)
	}

	stored, err := eng.GetItem(context.Background(), it.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if stored.Payload.Content != "hello" {
		t.Errorf("stored content = %q, want %q", stored.Payload.Content, "hello")
	}
}

func TestEnqueueItem_UnknownPlatform(t *testing.T) {
	eng, _ := newTestEngine(t)

	_, err := eng.EnqueueItem(context.Background(), "myspace", item.Payload{Content: "hi"})
	if !errors.Is(err, courier.ErrNoAdapter) {
		t.Errorf("err = %v, want ErrNoAdapter", err)
	}
}

func TestEnqueueItem_InvalidContent(t *testing.T) {
	eng, _ := newTestEngine(t)

	_, err := eng.EnqueueItem(context.Background(), "twitter", item.Payload{})
	if !errors.Is(err, courier.ErrInvalidContent) {
		t.Errorf("err = %v, want ErrInvalidContent", err)
	}
}

func TestEnqueueItem_CapturesScope(t *testing.T) {
	eng, _ := newTestEngine(t)

	ctx := scope.Restore(context.Background(), "user_42", "team_7")
	it, err := eng.EnqueueItem(ctx, "twitter", item.Payload{Content: "scoped"})
	if err != nil {
		t.Fatalf("EnqueueItem: %v", err)
	}

	if it.ScopeUserID != "user_42" || it.ScopeTeamID != "team_7" {
		t.Errorf("scope = (%q, %q), want (user_42, team_7)", it.ScopeUserID, it.ScopeTeamID)
	}
}

// ──────────────────────────────────────────────────
// Cancel
// ──────────────────────────────────────────────────

func TestCancelItem_Pending(t *testing.T) {
	eng, _ := newTestEngine(t)

	it, err := eng.EnqueueItem(context.Background(), "twitter", item.Payload{Content: "cancel me"})
	if err != nil {
		t.Fatalf("EnqueueItem: %v", err)
	}

	cancelled, err := eng.CancelItem(context.Background(), it.ID)
	if err != nil {
		t.Fatalf("CancelItem: %v", err)
	}
	if cancelled.Status != item.StatusCancelled {
		t.Errorf("Status = %v, want cancelled", cancelled.Status)
	}
}

func TestCancelItem_Processing(t *testing.T) {
	eng, _ := newTestEngine(t)

	it, err := eng.EnqueueItem(context.Background(), "twitter", item.Payload{Content: "in flight"})
	if err != nil {
		t.Fatalf("EnqueueItem: %v", err)
	}

	now := time.Now().UTC()
	it.Status = item.StatusProcessing
	it.ProcessingAt = &now
	if err := eng.Store().UpdateItem(context.Background(), it); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}

	_, err = eng.CancelItem(context.Background(), it.ID)
	if !errors.Is(err, courier.ErrInvalidState) {
		t.Errorf("cancel processing item: err = %v, want ErrInvalidState", err)
	}
}

func TestCancelItem_Posted_NoCanceler(t *testing.T) {
	eng, _ := newTestEngine(t)

	it, err := eng.EnqueueItem(context.Background(), "twitter", item.Payload{Content: "live"})
	if err != nil {
		t.Fatalf("EnqueueItem: %v", err)
	}
	it.Status = item.StatusPosted
	it.ExternalPostID = "tw_post_1"
	if err := eng.Store().UpdateItem(context.Background(), it); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}

	_, err = eng.CancelItem(context.Background(), it.ID)
	if !errors.Is(err, courier.ErrAdapterUnsupported) {
		t.Errorf("err = %v, want ErrAdapterUnsupported", err)
	}
}

func TestCancelItem_Posted_WithCanceler(t *testing.T) {
	adapter := &cancelableAdapter{stubAdapter: stubAdapter{name: "mastodon", canCancel: true}}

	c, err := courier.New(
		courier.WithStore(memory.New()),
		courier.WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("courier.New: %v", err)
	}
	eng, err := engine.Build(c, engine.WithAdapter(adapter))
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	it, err := eng.EnqueueItem(context.Background(), "mastodon", item.Payload{Content: "live"})
	if err != nil {
		t.Fatalf("EnqueueItem: %v", err)
	}
	it.Status = item.StatusPosted
	it.ExternalPostID = "ma_post_1"
	if err := eng.Store().UpdateItem(context.Background(), it); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}

	cancelled, err := eng.CancelItem(context.Background(), it.ID)
	if err != nil {
		t.Fatalf("CancelItem: %v", err)
	}
	if cancelled.Status != item.StatusCancelled {
		t.Errorf("Status = %v, want cancelled", cancelled.Status)
	}
	if !adapter.cancelled.Load() {
		t.Error("expected adapter CancelScheduledPost to be called")
	}
}

// ──────────────────────────────────────────────────
// Post status
// ──────────────────────────────────────────────────

// batchAdapter adds the BatchStatusFetcher capability.
type batchAdapter struct {
	stubAdapter
	batchCalls atomic.Int32
}

func (a *batchAdapter) GetBatchPostStatus(_ context.Context, postIDs []string) (map[string]platform.PostStatus, error) {
	a.batchCalls.Add(1)
	statuses := make(map[string]platform.PostStatus, len(postIDs))
	for _, postID := range postIDs {
		statuses[postID] = platform.PostStatus{Status: "published"}
	}
	return statuses, nil
}

// markPosted flips an item to posted with the given platform-side ID.
func markPosted(t *testing.T, eng *engine.Engine, it *item.Item, postID string) {
	t.Helper()
	it.Status = item.StatusPosted
	it.ExternalPostID = postID
	if err := eng.Store().UpdateItem(context.Background(), it); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}
}

func TestBatchPostStatus_FallsBackPerItem(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	first, err := eng.EnqueueItem(ctx, "twitter", item.Payload{Content: "one"})
	if err != nil {
		t.Fatalf("EnqueueItem: %v", err)
	}
	second, err := eng.EnqueueItem(ctx, "twitter", item.Payload{Content: "two"})
	if err != nil {
		t.Fatalf("EnqueueItem: %v", err)
	}
	markPosted(t, eng, first, "tw_1")

	statuses, err := eng.BatchPostStatus(ctx, []id.ItemID{first.ID, second.ID})
	if err != nil {
		t.Fatalf("BatchPostStatus: %v", err)
	}

	if len(statuses) != 1 {
		t.Fatalf("statuses = %d, want 1", len(statuses))
	}
	if statuses[first.ID].Status != "scheduled" {
		t.Errorf("status = %q, want scheduled", statuses[first.ID].Status)
	}
	// The pending item never reached the platform, so it has no status.
	if _, ok := statuses[second.ID]; ok {
		t.Error("pending item should be omitted from the result")
	}
}

func TestBatchPostStatus_UsesBatchCapability(t *testing.T) {
	adapter := &batchAdapter{stubAdapter: stubAdapter{name: "linkedin"}}

	c, err := courier.New(
		courier.WithStore(memory.New()),
		courier.WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("courier.New: %v", err)
	}
	eng, err := engine.Build(c, engine.WithAdapter(adapter))
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	ctx := context.Background()
	itemIDs := make([]id.ItemID, 0, 3)
	for i := range 3 {
		it, err := eng.EnqueueItem(ctx, "linkedin", item.Payload{Content: fmt.Sprintf("post %d", i)})
		if err != nil {
			t.Fatalf("EnqueueItem: %v", err)
		}
		markPosted(t, eng, it, fmt.Sprintf("li_%d", i))
		itemIDs = append(itemIDs, it.ID)
	}

	statuses, err := eng.BatchPostStatus(ctx, itemIDs)
	if err != nil {
		t.Fatalf("BatchPostStatus: %v", err)
	}

	if len(statuses) != 3 {
		t.Fatalf("statuses = %d, want 3", len(statuses))
	}
	if adapter.batchCalls.Load() != 1 {
		t.Errorf("batch calls = %d, want 1", adapter.batchCalls.Load())
	}
	for _, itemID := range itemIDs {
		if statuses[itemID].Status != "published" {
			t.Errorf("item %s status = %q, want published", itemID, statuses[itemID].Status)
		}
	}
}

// ──────────────────────────────────────────────────
// Queue status and health
// ──────────────────────────────────────────────────

func TestQueueStatus(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := eng.EnqueueItem(ctx, "twitter", item.Payload{Content: "one"}); err != nil {
		t.Fatalf("EnqueueItem: %v", err)
	}
	later, err := eng.EnqueueItem(ctx, "twitter", item.Payload{Content: "two"},
		item.WithScheduledAt(time.Now().UTC().Add(1*time.Hour)))
	if err != nil {
		t.Fatalf("EnqueueItem: %v", err)
	}

	qs, err := eng.QueueStatus(ctx)
	if err != nil {
		t.Fatalf("QueueStatus: %v", err)
	}

	if qs.Counts[item.StatusPending] != 2 {
		t.Errorf("pending count = %d, want 2", qs.Counts[item.StatusPending])
	}
	if qs.Total != 2 {
		t.Errorf("Total = %d, want 2", qs.Total)
	}
	if len(qs.NextDue) != 2 {
		t.Fatalf("NextDue length = %d, want 2", len(qs.NextDue))
	}
	// The item scheduled an hour out must come last.
	if qs.NextDue[1].ID != later.ID {
		t.Errorf("NextDue[1] = %s, want the later item %s", qs.NextDue[1].ID, later.ID)
	}
}

func TestHealthReport(t *testing.T) {
	eng, _ := newTestEngine(t)

	eng.Health().RecordSuccess("twitter", 100*time.Millisecond)

	report := eng.HealthReport(context.Background())
	if report.Health.SuccessCount != 1 {
		t.Errorf("SuccessCount = %d, want 1", report.Health.SuccessCount)
	}
	if len(report.Anomalies) != 0 {
		t.Errorf("expected no anomalies, got %d", len(report.Anomalies))
	}
}

// ──────────────────────────────────────────────────
// Dead letter operations
// ──────────────────────────────────────────────────

// quarantineItem pushes a failed item into the DLQ and returns the entry.
func quarantineItem(t *testing.T, eng *engine.Engine) *dlq.Entry {
	t.Helper()
	ctx := context.Background()

	it, err := eng.EnqueueItem(ctx, "twitter", item.Payload{Content: "doomed"})
	if err != nil {
		t.Fatalf("EnqueueItem: %v", err)
	}
	it.Status = item.StatusFailed
	if err := eng.Store().UpdateItem(ctx, it); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}

	entry, err := eng.DLQ().Quarantine(ctx, it, dlq.ReasonNonRetryable, "401 unauthorized")
	if err != nil {
		t.Fatalf("Quarantine: %v", err)
	}
	return entry
}

func TestResolve(t *testing.T) {
	eng, _ := newTestEngine(t)
	entry := quarantineItem(t, eng)

	if err := eng.Resolve(context.Background(), entry.ID, "rotated token"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	resolved, err := eng.DLQ().Get(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !resolved.Resolved() {
		t.Error("expected entry to be resolved")
	}
	if resolved.ResolutionNotes != "rotated token" {
		t.Errorf("notes = %q, want %q", resolved.ResolutionNotes, "rotated token")
	}

	// Resolving twice reports the conflict.
	err = eng.Resolve(context.Background(), entry.ID, "again")
	if !errors.Is(err, courier.ErrAlreadyResolved) {
		t.Errorf("second resolve: err = %v, want ErrAlreadyResolved", err)
	}
}

func TestRetryFromDeadLetter(t *testing.T) {
	eng, _ := newTestEngine(t)
	entry := quarantineItem(t, eng)

	replacement, err := eng.RetryFromDeadLetter(context.Background(), entry.ID, "fixed auth")
	if err != nil {
		t.Fatalf("RetryFromDeadLetter: %v", err)
	}

	if replacement.Status != item.StatusPending {
		t.Errorf("replacement status = %v, want pending", replacement.Status)
	}
	if replacement.RetryCount != 0 {
		t.Errorf("replacement retry count = %d, want 0", replacement.RetryCount)
	}
	if replacement.ID == entry.ItemID {
		t.Error("replacement must get a fresh ID")
	}

	resolved, err := eng.DLQ().Get(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !resolved.Resolved() {
		t.Error("expected entry to be resolved after retry")
	}
	if resolved.ReplacementID != replacement.ID {
		t.Errorf("ReplacementID = %s, want %s", resolved.ReplacementID, replacement.ID)
	}
}

func TestBulkAction_SkipsResolved(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	first := quarantineItem(t, eng)
	second := quarantineItem(t, eng)

	if err := eng.Resolve(ctx, first.ID, "handled earlier"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	result, err := eng.BulkAction(ctx, []id.DLQID{first.ID, second.ID}, dlq.ActionResolve, "sweep")
	if err != nil {
		t.Fatalf("BulkAction: %v", err)
	}

	if result.Succeeded != 1 {
		t.Errorf("Succeeded = %d, want 1", result.Succeeded)
	}
	if result.Failed != 1 {
		t.Errorf("Failed = %d, want 1", result.Failed)
	}
	for _, r := range result.Results {
		if r.EntryID == first.ID && r.Error == "" {
			t.Error("expected the already-resolved entry to report an error")
		}
	}
}

// ──────────────────────────────────────────────────
// Recurring publishes
// ──────────────────────────────────────────────────

func TestRegisterRecur(t *testing.T) {
	eng, _ := newTestEngine(t)

	entry, err := eng.RegisterRecur(context.Background(), engine.RecurDefinition{
		Name:     "daily-digest",
		Schedule: "0 9 * * *",
		Platform: "twitter",
		Payload:  item.Payload{Content: "digest"},
		Priority: item.PriorityHigh,
	})
	if err != nil {
		t.Fatalf("RegisterRecur: %v", err)
	}

	if !entry.Enabled {
		t.Error("expected new entry to be enabled")
	}
	if entry.NextRunAt == nil || !entry.NextRunAt.After(time.Now().UTC()) {
		t.Errorf("NextRunAt = %v, want a future time", entry.NextRunAt)
	}

	got, err := eng.GetRecur(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("GetRecur: %v", err)
	}
	if got.Name != "daily-digest" {
		t.Errorf("Name = %q, want daily-digest", got.Name)
	}
}

func TestRegisterRecur_InvalidSchedule(t *testing.T) {
	eng, _ := newTestEngine(t)

	_, err := eng.RegisterRecur(context.Background(), engine.RecurDefinition{
		Name:     "broken",
		Schedule: "not-a-cron",
		Platform: "twitter",
		Payload:  item.Payload{Content: "x"},
	})
	if err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestRegisterRecur_UnknownPlatform(t *testing.T) {
	eng, _ := newTestEngine(t)

	_, err := eng.RegisterRecur(context.Background(), engine.RecurDefinition{
		Name:     "nowhere",
		Schedule: "@every 1h",
		Platform: "myspace",
		Payload:  item.Payload{Content: "x"},
	})
	if !errors.Is(err, courier.ErrNoAdapter) {
		t.Errorf("err = %v, want ErrNoAdapter", err)
	}
}

func TestRegisterRecur_DuplicateName(t *testing.T) {
	eng, _ := newTestEngine(t)
	def := engine.RecurDefinition{
		Name:     "weekly-recap",
		Schedule: "@every 168h",
		Platform: "twitter",
		Payload:  item.Payload{Content: "recap"},
	}

	if _, err := eng.RegisterRecur(context.Background(), def); err != nil {
		t.Fatalf("RegisterRecur: %v", err)
	}

	_, err := eng.RegisterRecur(context.Background(), def)
	if !errors.Is(err, courier.ErrDuplicateRecur) {
		t.Errorf("err = %v, want ErrDuplicateRecur", err)
	}
	if !engine.IsDuplicate(err) {
		t.Error("IsDuplicate should report true for a name collision")
	}
}

func TestSetRecurEnabled(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	entry, err := eng.RegisterRecur(ctx, engine.RecurDefinition{
		Name:     "toggle-me",
		Schedule: "@every 1h",
		Platform: "twitter",
		Payload:  item.Payload{Content: "on and off"},
	})
	if err != nil {
		t.Fatalf("RegisterRecur: %v", err)
	}

	disabled, err := eng.SetRecurEnabled(ctx, entry.ID, false)
	if err != nil {
		t.Fatalf("SetRecurEnabled(false): %v", err)
	}
	if disabled.Enabled {
		t.Error("expected entry to be disabled")
	}

	enabled, err := eng.SetRecurEnabled(ctx, entry.ID, true)
	if err != nil {
		t.Fatalf("SetRecurEnabled(true): %v", err)
	}
	if !enabled.Enabled {
		t.Error("expected entry to be enabled")
	}
	if enabled.NextRunAt == nil || !enabled.NextRunAt.After(time.Now().UTC()) {
		t.Errorf("NextRunAt = %v, want a future time after re-enable", enabled.NextRunAt)
	}
}

// ──────────────────────────────────────────────────
// End to end dispatch
// ──────────────────────────────────────────────────

func TestEngine_DispatchesEnqueuedItem(t *testing.T) {
	eng, adapter := newTestEngine(t)
	ctx := context.Background()

	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		if err := eng.Stop(ctx); err != nil {
			t.Errorf("Stop: %v", err)
		}
	}()

	it, err := eng.EnqueueItem(ctx, "twitter", item.Payload{Content: "ship it"})
	if err != nil {
		t.Fatalf("EnqueueItem: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		got, err := eng.GetItem(ctx, it.ID)
		if err != nil {
			t.Fatalf("GetItem: %v", err)
		}
		if got.Status == item.StatusPosted {
			if got.ExternalPostID == "" {
				t.Error("expected an external post ID after dispatch")
			}
			if got.PostedAt == nil {
				t.Error("expected PostedAt to be set")
			}
			break
		}
		select {
		case <-deadline:
			t.Fatalf("item never posted, status = %v", got.Status)
		case <-time.After(20 * time.Millisecond):
		}
	}

	if adapter.calls.Load() != 1 {
		t.Errorf("adapter calls = %d, want 1", adapter.calls.Load())
	}
}

func TestEngine_RetriesThenPosts(t *testing.T) {
	adapter := &stubAdapter{name: "twitter", err: &platform.APIError{StatusCode: 503, Message: "overloaded"}}

	c, err := courier.New(
		courier.WithStore(memory.New()),
		courier.WithLogger(testLogger()),
		courier.WithPollInterval(10*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("courier.New: %v", err)
	}
	eng, err := engine.Build(c,
		engine.WithAdapter(adapter),
		engine.WithRetryPolicy(retry.Policy{
			BaseDelay:  20 * time.Millisecond,
			MaxDelay:   20 * time.Millisecond,
			Multiplier: 1,
			MaxRetries: 5,
		}),
	)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer eng.Stop(ctx)

	it, err := eng.EnqueueItem(ctx, "twitter", item.Payload{Content: "flaky"})
	if err != nil {
		t.Fatalf("EnqueueItem: %v", err)
	}

	// Let the first attempt fail, then heal the adapter.
	deadline := time.After(3 * time.Second)
	for adapter.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("adapter never called")
		case <-time.After(10 * time.Millisecond):
		}
	}
	adapter.err = nil

	deadline = time.After(5 * time.Second)
	for {
		got, err := eng.GetItem(ctx, it.ID)
		if err != nil {
			t.Fatalf("GetItem: %v", err)
		}
		if got.Status == item.StatusPosted {
			if got.RetryCount == 0 {
				t.Error("expected at least one recorded retry")
			}
			break
		}
		select {
		case <-deadline:
			t.Fatalf("item never posted, status = %v retries = %d", got.Status, got.RetryCount)
		case <-time.After(20 * time.Millisecond):
		}
	}

	attempts, err := eng.Attempts(ctx, it.ID, 10)
	if err != nil {
		t.Fatalf("Attempts: %v", err)
	}
	if len(attempts) < 2 {
		t.Errorf("attempts = %d, want at least 2", len(attempts))
	}
}
