package item_test

import (
	"testing"
	"time"

	"github.com/xraph/courier/item"
)

func TestNewDefaults(t *testing.T) {
	it := item.New("tiktok", item.Payload{Content: "hello"})

	if it.ID.IsNil() {
		t.Fatal("expected non-nil ID")
	}
	if it.Status != item.StatusPending {
		t.Errorf("expected status pending, got %q", it.Status)
	}
	if it.Priority != item.PriorityNormal {
		t.Errorf("expected normal priority, got %v", it.Priority)
	}
	if it.MaxRetries != 3 {
		t.Errorf("expected max retries 3, got %d", it.MaxRetries)
	}
	if it.ScheduledAt.IsZero() {
		t.Error("expected scheduled time to default to now")
	}
}

func TestNewWithOptions(t *testing.T) {
	at := time.Now().Add(time.Hour).UTC()
	it := item.New("instagram", item.Payload{Content: "post"},
		item.WithPriority(item.PriorityUrgent),
		item.WithMaxRetries(5),
		item.WithScheduledAt(at),
		item.WithScope("user-1", "team-1"),
	)

	if it.Priority != item.PriorityUrgent {
		t.Errorf("expected urgent priority, got %v", it.Priority)
	}
	if it.MaxRetries != 5 {
		t.Errorf("expected max retries 5, got %d", it.MaxRetries)
	}
	if !it.ScheduledAt.Equal(at) {
		t.Errorf("expected scheduled at %v, got %v", at, it.ScheduledAt)
	}
	if it.ScopeUserID != "user-1" || it.ScopeTeamID != "team-1" {
		t.Errorf("scope not applied: %q / %q", it.ScopeUserID, it.ScopeTeamID)
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from    item.Status
		to      item.Status
		allowed bool
	}{
		{item.StatusPending, item.StatusProcessing, true},
		{item.StatusPending, item.StatusCancelled, true},
		{item.StatusPending, item.StatusPosted, false},
		{item.StatusProcessing, item.StatusPosted, true},
		{item.StatusProcessing, item.StatusRetrying, true},
		{item.StatusProcessing, item.StatusFailed, true},
		{item.StatusProcessing, item.StatusCancelled, false},
		{item.StatusRetrying, item.StatusProcessing, true},
		{item.StatusRetrying, item.StatusCancelled, true},
		{item.StatusFailed, item.StatusQuarantined, true},
		{item.StatusFailed, item.StatusCancelled, true},
		{item.StatusFailed, item.StatusProcessing, false},
		{item.StatusPosted, item.StatusPending, false},
		{item.StatusQuarantined, item.StatusPending, false},
		{item.StatusCancelled, item.StatusPending, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
			t.Errorf("%s -> %s: expected %v, got %v", tt.from, tt.to, tt.allowed, got)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	terminal := []item.Status{item.StatusPosted, item.StatusQuarantined, item.StatusCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("expected %q to be terminal", s)
		}
	}

	live := []item.Status{item.StatusPending, item.StatusProcessing, item.StatusRetrying, item.StatusFailed}
	for _, s := range live {
		if s.Terminal() {
			t.Errorf("expected %q to not be terminal", s)
		}
	}
}

func TestDue(t *testing.T) {
	now := time.Now().UTC()

	it := item.New("tiktok", item.Payload{Content: "x"})
	it.ScheduledAt = now.Add(-time.Minute)
	if !it.Due(now) {
		t.Error("pending item past its scheduled time should be due")
	}

	it.ScheduledAt = now.Add(time.Minute)
	if it.Due(now) {
		t.Error("item before its scheduled time should not be due")
	}

	it.ScheduledAt = now.Add(-time.Minute)
	it.Status = item.StatusRetrying
	next := now.Add(30 * time.Second)
	it.NextRetryAt = &next
	if it.Due(now) {
		t.Error("retrying item before NextRetryAt should not be due")
	}

	past := now.Add(-time.Second)
	it.NextRetryAt = &past
	if !it.Due(now) {
		t.Error("retrying item past NextRetryAt should be due")
	}

	it.Status = item.StatusPosted
	if it.Due(now) {
		t.Error("posted item should never be due")
	}
}

func TestPriorityString(t *testing.T) {
	tests := []struct {
		p    item.Priority
		want string
	}{
		{item.PriorityLow, "low"},
		{item.PriorityNormal, "normal"},
		{item.PriorityHigh, "high"},
		{item.PriorityUrgent, "urgent"},
	}
	for _, tt := range tests {
		if got := tt.p.String(); got != tt.want {
			t.Errorf("Priority(%d).String() = %q, want %q", tt.p, got, tt.want)
		}
	}
}
