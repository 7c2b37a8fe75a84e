package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xraph/courier/item"
	"github.com/xraph/courier/platform"
)

func TestNewValidation(t *testing.T) {
	if _, err := New("", "https://example.com/hook"); err == nil {
		t.Error("expected error for empty name")
	}
	if _, err := New("twitter", "not a url"); err == nil {
		t.Error("expected error for invalid endpoint")
	}
	if _, err := New("twitter", "https://example.com/hook"); err != nil {
		t.Errorf("valid adapter: %v", err)
	}
}

func TestValidateContent(t *testing.T) {
	a, err := New("twitter", "https://example.com/hook", WithMaxContentLength(10))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := a.ValidateContent(context.Background(), item.Payload{})
	if err != nil {
		t.Fatalf("ValidateContent: %v", err)
	}
	if result.IsValid {
		t.Error("empty payload should be invalid")
	}

	result, _ = a.ValidateContent(context.Background(), item.Payload{Content: strings.Repeat("x", 11)})
	if result.IsValid {
		t.Error("oversized content should be invalid")
	}

	result, _ = a.ValidateContent(context.Background(), item.Payload{Content: "short"})
	if !result.IsValid {
		t.Errorf("valid content rejected: %v", result.Errors)
	}
}

func TestSchedulePost(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["content"] != "hello" {
			t.Errorf("content = %v, want hello", req["content"])
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"post_id": "wh_123"})
	}))
	defer srv.Close()

	a, err := New("twitter", srv.URL, WithAuthToken("secret"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	at := time.Now().UTC().Add(time.Hour)
	result, err := a.SchedulePost(context.Background(), item.Payload{Content: "hello"}, at)
	if err != nil {
		t.Fatalf("SchedulePost: %v", err)
	}
	if result.PostID != "wh_123" {
		t.Errorf("PostID = %q, want wh_123", result.PostID)
	}
	if !result.ScheduledTime.Equal(at) {
		t.Errorf("ScheduledTime = %v, want %v", result.ScheduledTime, at)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("auth header = %q, want bearer token", gotAuth)
	}
}

func TestSchedulePost_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a, err := New("twitter", srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = a.SchedulePost(context.Background(), item.Payload{Content: "x"}, time.Now())
	var apiErr *platform.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *platform.APIError", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d, want 429", apiErr.StatusCode)
	}
}

func TestGetPostStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/wh_123") {
			t.Errorf("path = %q, want suffix /wh_123", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(platform.PostStatus{Status: "published", URL: "https://t.co/x"})
	}))
	defer srv.Close()

	a, err := New("twitter", srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	status, err := a.GetPostStatus(context.Background(), "wh_123")
	if err != nil {
		t.Fatalf("GetPostStatus: %v", err)
	}
	if status.Status != "published" {
		t.Errorf("Status = %q, want published", status.Status)
	}
}

func TestGetBatchPostStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if !strings.HasSuffix(r.URL.Path, "/batch-status") {
			t.Errorf("path = %q, want suffix /batch-status", r.URL.Path)
		}
		var req map[string][]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		statuses := make(map[string]platform.PostStatus, len(req["post_ids"]))
		for _, postID := range req["post_ids"] {
			statuses[postID] = platform.PostStatus{Status: "published"}
		}
		_ = json.NewEncoder(w).Encode(statuses)
	}))
	defer srv.Close()

	a, err := New("twitter", srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	statuses, err := a.GetBatchPostStatus(context.Background(), []string{"wh_1", "wh_2"})
	if err != nil {
		t.Fatalf("GetBatchPostStatus: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("statuses = %d, want 2", len(statuses))
	}
	if statuses["wh_1"].Status != "published" {
		t.Errorf("wh_1 status = %q, want published", statuses["wh_1"].Status)
	}
}

func TestCancelScheduledPost(t *testing.T) {
	tests := []struct {
		name      string
		code      int
		cancelled bool
		wantErr   bool
	}{
		{"accepted", http.StatusNoContent, true, false},
		{"already live", http.StatusConflict, false, false},
		{"unknown post", http.StatusNotFound, false, false},
		{"server error", http.StatusInternalServerError, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodDelete {
					t.Errorf("method = %s, want DELETE", r.Method)
				}
				w.WriteHeader(tt.code)
			}))
			defer srv.Close()

			a, err := New("twitter", srv.URL)
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			cancelled, err := a.CancelScheduledPost(context.Background(), "wh_123")
			if tt.wantErr != (err != nil) {
				t.Fatalf("err = %v, wantErr = %v", err, tt.wantErr)
			}
			if cancelled != tt.cancelled {
				t.Errorf("cancelled = %v, want %v", cancelled, tt.cancelled)
			}
		})
	}
}
