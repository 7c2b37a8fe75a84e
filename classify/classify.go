// Package classify maps raw adapter failures to an error category and a
// recommended recovery strategy.
//
// Classification is a pure function over the error message and an
// optional HTTP status code. Rules are evaluated in a fixed order:
// authentication and validation run first because they are cheap to
// detect and must never be retried blindly.
package classify

import (
	"strings"
)

// Category is the failure taxonomy used across the retry subsystem.
type Category string

const (
	CategoryNetwork        Category = "network"
	CategoryRateLimit      Category = "rate_limit"
	CategoryAuthentication Category = "authentication"
	CategoryValidation     Category = "validation"
	CategoryPlatform       Category = "platform"
	CategoryUnknown        Category = "unknown"
)

// Severity grades how urgent a failure is for alerting purposes.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Strategy is the recommended recovery path for a classification.
type Strategy string

const (
	// StrategyManual means a human must intervene; never retry.
	StrategyManual Strategy = "manual_intervention"
	// StrategyDelayedRetry means retry after a long fixed delay rather
	// than exponential backoff (rate limits recover on the platform's
	// schedule, not ours).
	StrategyDelayedRetry Strategy = "delayed_retry"
	// StrategyExponentialBackoff means retry with growing delays.
	StrategyExponentialBackoff Strategy = "exponential_backoff"
	// StrategyDeadLetter means quarantine immediately.
	StrategyDeadLetter Strategy = "dead_letter"
	// StrategyCircuitBreaker means route the next attempt through the
	// platform's circuit breaker.
	StrategyCircuitBreaker Strategy = "circuit_breaker"
	// StrategyImmediateRetry means retry once right away, then fall back
	// to exponential backoff.
	StrategyImmediateRetry Strategy = "immediate_retry"
)

// Classification is the outcome of classifying one failure.
type Classification struct {
	Category    Category `json:"category"`
	IsRetryable bool     `json:"is_retryable"`
	Severity    Severity `json:"severity"`
	Strategy    Strategy `json:"strategy"`
}

// rule is one ordered pattern check. statusCodes and substrings are
// alternatives; either matching selects the rule.
type rule struct {
	statusCodes []int
	substrings  []string
	result      Classification
}

// rules are evaluated top to bottom. Order is load-bearing: cheap
// non-retryable checks (auth, then rate limit, then validation) must win
// over the broader network and platform patterns.
var rules = []rule{
	{
		statusCodes: []int{401, 403},
		substrings:  []string{"unauthorized", "forbidden", "invalid token", "token expired", "authentication"},
		result: Classification{
			Category:    CategoryAuthentication,
			IsRetryable: false,
			Severity:    SeverityHigh,
			Strategy:    StrategyManual,
		},
	},
	{
		statusCodes: []int{429},
		substrings:  []string{"rate limit", "too many requests", "quota exceeded"},
		result: Classification{
			Category:    CategoryRateLimit,
			IsRetryable: true,
			Severity:    SeverityMedium,
			Strategy:    StrategyDelayedRetry,
		},
	},
	{
		statusCodes: []int{400, 422},
		substrings:  []string{"validation", "invalid", "malformed", "unsupported format"},
		result: Classification{
			Category:    CategoryValidation,
			IsRetryable: false,
			Severity:    SeverityLow,
			Strategy:    StrategyDeadLetter,
		},
	},
	{
		statusCodes: []int{502, 504},
		substrings:  []string{"timeout", "timed out", "network", "connection refused", "connection reset", "no such host", "eof"},
		result: Classification{
			Category:    CategoryNetwork,
			IsRetryable: true,
			Severity:    SeverityMedium,
			Strategy:    StrategyExponentialBackoff,
		},
	},
	{
		statusCodes: []int{500, 503},
		substrings:  []string{"internal server error", "service unavailable", "platform error"},
		result: Classification{
			Category:    CategoryPlatform,
			IsRetryable: true,
			Severity:    SeverityHigh,
			Strategy:    StrategyCircuitBreaker,
		},
	},
}

// unknown is the fallback for anything no rule matches.
var unknown = Classification{
	Category:    CategoryUnknown,
	IsRetryable: true,
	Severity:    SeverityMedium,
	Strategy:    StrategyImmediateRetry,
}

// Classify maps an error and an optional HTTP status code (zero when the
// failure was not an HTTP response) to a Classification.
func Classify(err error, statusCode int) Classification {
	if err == nil {
		return unknown
	}
	return ClassifyMessage(err.Error(), statusCode)
}

// ClassifyMessage is Classify over a raw message string.
func ClassifyMessage(msg string, statusCode int) Classification {
	lower := strings.ToLower(msg)

	for _, r := range rules {
		for _, code := range r.statusCodes {
			if statusCode == code {
				return r.result
			}
		}
		for _, sub := range r.substrings {
			if strings.Contains(lower, sub) {
				return r.result
			}
		}
	}

	return unknown
}
