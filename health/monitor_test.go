package health

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/courier/classify"
)

func newTestMonitor(t Thresholds) (*Monitor, *time.Time) {
	m := NewMonitor(t, time.Second, nil, nil, nil)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	return m, &now
}

func TestCounters(t *testing.T) {
	m, _ := newTestMonitor(DefaultThresholds())
	ctx := context.Background()

	m.RecordSuccess("tiktok", 100*time.Millisecond)
	m.RecordSuccess("tiktok", 200*time.Millisecond)
	m.RecordFailure("instagram", 300*time.Millisecond, classify.CategoryNetwork)

	snap := m.Snapshot(ctx)
	if snap.SuccessCount != 2 {
		t.Errorf("success count = %d, want 2", snap.SuccessCount)
	}
	if snap.FailureCount != 1 {
		t.Errorf("failure count = %d, want 1", snap.FailureCount)
	}
	if snap.AverageProcessingTime != 200*time.Millisecond {
		t.Errorf("avg processing = %s, want 200ms", snap.AverageProcessingTime)
	}

	tk := snap.Platforms["tiktok"]
	if tk.Successes != 2 || tk.Failures != 0 {
		t.Errorf("tiktok stats = %+v", tk)
	}
	if tk.AverageResponseTime != 150*time.Millisecond {
		t.Errorf("tiktok avg response = %s, want 150ms", tk.AverageResponseTime)
	}

	ig := snap.Platforms["instagram"]
	if ig.Failures != 1 || ig.ConsecutiveFailures != 1 {
		t.Errorf("instagram stats = %+v", ig)
	}
}

func TestSuccessResetsConsecutiveFailures(t *testing.T) {
	m, _ := newTestMonitor(DefaultThresholds())
	ctx := context.Background()

	m.RecordFailure("tiktok", time.Millisecond, classify.CategoryNetwork)
	m.RecordFailure("tiktok", time.Millisecond, classify.CategoryNetwork)
	m.RecordSuccess("tiktok", time.Millisecond)

	snap := m.Snapshot(ctx)
	if n := snap.Platforms["tiktok"].ConsecutiveFailures; n != 0 {
		t.Errorf("consecutive failures = %d, want 0", n)
	}
}

func TestFailureRateAnomaly(t *testing.T) {
	m, _ := newTestMonitor(Thresholds{MaxFailureRate: 0.5})
	ctx := context.Background()

	// 60% failure rate over 10 outcomes.
	for range 4 {
		m.RecordSuccess("tiktok", time.Millisecond)
	}
	for range 6 {
		m.RecordFailure("tiktok", time.Millisecond, classify.CategoryPlatform)
	}

	anomalies := m.DetectAnomalies(ctx)
	if len(anomalies) != 1 {
		t.Fatalf("expected 1 anomaly, got %d: %v", len(anomalies), anomalies)
	}
	if anomalies[0].Metric != "failure_rate" {
		t.Errorf("metric = %q, want failure_rate", anomalies[0].Metric)
	}

	if status := m.Snapshot(ctx).Status; status != StatusCritical {
		t.Errorf("status = %q, want critical", status)
	}
}

func TestHealthyWhenUnderThresholds(t *testing.T) {
	m, _ := newTestMonitor(DefaultThresholds())
	ctx := context.Background()

	m.RecordSuccess("tiktok", time.Millisecond)
	m.RecordFailure("tiktok", time.Millisecond, classify.CategoryNetwork)
	m.RecordSuccess("tiktok", time.Millisecond)

	if got := m.DetectAnomalies(ctx); len(got) != 0 {
		t.Errorf("expected no anomalies, got %v", got)
	}
	if status := m.Snapshot(ctx).Status; status != StatusHealthy {
		t.Errorf("status = %q, want healthy", status)
	}
}

func TestConsecutiveFailureAnomalySeverity(t *testing.T) {
	m, _ := newTestMonitor(Thresholds{MaxConsecutiveFailures: 3})
	ctx := context.Background()

	// 7 consecutive failures is beyond twice the threshold of 3.
	for range 7 {
		m.RecordFailure("tiktok", time.Millisecond, classify.CategoryPlatform)
	}

	anomalies := m.DetectAnomalies(ctx)
	if len(anomalies) != 1 {
		t.Fatalf("expected 1 anomaly, got %d", len(anomalies))
	}
	if anomalies[0].Severity != classify.SeverityCritical {
		t.Errorf("severity = %q, want critical", anomalies[0].Severity)
	}
}

func TestErrorWindowAnomaly(t *testing.T) {
	m, now := newTestMonitor(Thresholds{MaxErrorsPerWindow: 2, ErrorWindow: time.Minute})
	ctx := context.Background()

	m.RecordFailure("tiktok", time.Millisecond, classify.CategoryNetwork)
	m.RecordFailure("tiktok", time.Millisecond, classify.CategoryNetwork)
	m.RecordFailure("tiktok", time.Millisecond, classify.CategoryNetwork)

	anomalies := m.DetectAnomalies(ctx)
	found := false
	for _, a := range anomalies {
		if a.Metric == "error_frequency" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected error_frequency anomaly, got %v", anomalies)
	}

	// Outside the window the errors age out.
	*now = now.Add(2 * time.Minute)
	for _, a := range m.DetectAnomalies(ctx) {
		if a.Metric == "error_frequency" {
			t.Errorf("stale errors should have aged out, got %v", a)
		}
	}
}

func TestQueueLengthAnomaly(t *testing.T) {
	queueLen := func(_ context.Context) (int64, error) { return 1200, nil }
	m := NewMonitor(Thresholds{MaxQueueLength: 500}, time.Second, queueLen, nil, nil)

	anomalies := m.DetectAnomalies(context.Background())
	if len(anomalies) != 1 {
		t.Fatalf("expected 1 anomaly, got %d", len(anomalies))
	}
	if anomalies[0].Metric != "queue_length" {
		t.Errorf("metric = %q, want queue_length", anomalies[0].Metric)
	}
	if anomalies[0].Severity != classify.SeverityCritical {
		t.Errorf("severity = %q, want critical (2.4x threshold)", anomalies[0].Severity)
	}
}

func TestAlertDebounce(t *testing.T) {
	m, now := newTestMonitor(Thresholds{
		MaxFailureRate: 0.5,
		AlertDebounce:  10 * time.Minute,
	})
	ctx := context.Background()

	for range 6 {
		m.RecordFailure("tiktok", time.Millisecond, classify.CategoryPlatform)
	}

	// First check sets lastAlertAt; the condition persists.
	m.check(ctx)
	first := m.lastAlertAt
	if first.IsZero() {
		t.Fatal("expected first check to record an alert")
	}

	*now = now.Add(time.Minute)
	m.check(ctx)
	if !m.lastAlertAt.Equal(first) {
		t.Error("expected second check inside debounce window to not re-alert")
	}

	*now = now.Add(15 * time.Minute)
	m.check(ctx)
	if m.lastAlertAt.Equal(first) {
		t.Error("expected re-alert after debounce window elapsed")
	}
}

func TestReset(t *testing.T) {
	m, _ := newTestMonitor(DefaultThresholds())
	ctx := context.Background()

	m.RecordSuccess("tiktok", time.Millisecond)
	m.RecordFailure("tiktok", time.Millisecond, classify.CategoryNetwork)
	m.Reset()

	snap := m.Snapshot(ctx)
	if snap.SuccessCount != 0 || snap.FailureCount != 0 {
		t.Errorf("expected zeroed counters, got %+v", snap)
	}
	if len(snap.Platforms) != 0 {
		t.Errorf("expected platform stats cleared, got %v", snap.Platforms)
	}
}
