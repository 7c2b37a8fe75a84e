package classify_test

import (
	"errors"
	"testing"

	"github.com/xraph/courier/classify"
)

func TestClassifyByStatusCode(t *testing.T) {
	tests := []struct {
		name      string
		code      int
		category  classify.Category
		retryable bool
		strategy  classify.Strategy
	}{
		{"401 unauthorized", 401, classify.CategoryAuthentication, false, classify.StrategyManual},
		{"403 forbidden", 403, classify.CategoryAuthentication, false, classify.StrategyManual},
		{"429 rate limited", 429, classify.CategoryRateLimit, true, classify.StrategyDelayedRetry},
		{"400 bad request", 400, classify.CategoryValidation, false, classify.StrategyDeadLetter},
		{"422 unprocessable", 422, classify.CategoryValidation, false, classify.StrategyDeadLetter},
		{"502 bad gateway", 502, classify.CategoryNetwork, true, classify.StrategyExponentialBackoff},
		{"504 gateway timeout", 504, classify.CategoryNetwork, true, classify.StrategyExponentialBackoff},
		{"500 internal error", 500, classify.CategoryPlatform, true, classify.StrategyCircuitBreaker},
		{"503 unavailable", 503, classify.CategoryPlatform, true, classify.StrategyCircuitBreaker},
		{"418 teapot", 418, classify.CategoryUnknown, true, classify.StrategyImmediateRetry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify.ClassifyMessage("request failed", tt.code)
			if got.Category != tt.category {
				t.Errorf("category = %q, want %q", got.Category, tt.category)
			}
			if got.IsRetryable != tt.retryable {
				t.Errorf("retryable = %v, want %v", got.IsRetryable, tt.retryable)
			}
			if got.Strategy != tt.strategy {
				t.Errorf("strategy = %q, want %q", got.Strategy, tt.strategy)
			}
		})
	}
}

func TestClassifyByMessage(t *testing.T) {
	tests := []struct {
		name     string
		msg      string
		category classify.Category
	}{
		{"token expired", "OAuth token expired for account", classify.CategoryAuthentication},
		{"rate limit", "Rate limit exceeded, try again later", classify.CategoryRateLimit},
		{"quota", "daily quota exceeded", classify.CategoryRateLimit},
		{"validation", "validation failed: caption too long", classify.CategoryValidation},
		{"invalid", "invalid media format", classify.CategoryValidation},
		{"timeout", "request timed out after 30s", classify.CategoryNetwork},
		{"connection refused", "dial tcp: connection refused", classify.CategoryNetwork},
		{"service unavailable", "service unavailable, maintenance window", classify.CategoryPlatform},
		{"gibberish", "something completely different happened", classify.CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify.ClassifyMessage(tt.msg, 0)
			if got.Category != tt.category {
				t.Errorf("category = %q, want %q", got.Category, tt.category)
			}
		})
	}
}

func TestClassifyOrdering(t *testing.T) {
	// An auth failure that also mentions the network must classify as
	// authentication: the auth rule runs first and is never retryable.
	got := classify.ClassifyMessage("unauthorized: network handshake rejected", 0)
	if got.Category != classify.CategoryAuthentication {
		t.Errorf("category = %q, want authentication", got.Category)
	}
	if got.IsRetryable {
		t.Error("authentication failures must not be retryable")
	}
}

func TestClassifyError(t *testing.T) {
	got := classify.Classify(errors.New("too many requests"), 0)
	if got.Category != classify.CategoryRateLimit {
		t.Errorf("category = %q, want rate_limit", got.Category)
	}

	got = classify.Classify(nil, 0)
	if got.Category != classify.CategoryUnknown {
		t.Errorf("nil error: category = %q, want unknown", got.Category)
	}
}
