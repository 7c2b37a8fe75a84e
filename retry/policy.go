package retry

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/xraph/courier/classify"
)

// Policy computes retry delays and the quarantine cutoff for one
// platform. The zero value is not usable; start from DefaultPolicy.
type Policy struct {
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the computed delay.
	MaxDelay time.Duration

	// Multiplier is the exponential growth factor per retry.
	Multiplier float64

	// JitterFactor spreads delays uniformly by ±JitterFactor/2 to avoid
	// synchronized retry storms. Typical values are 0.1–0.2.
	JitterFactor float64

	// MaxRetries is the retry budget before quarantine.
	MaxRetries int

	// RateLimitDelay is the long fixed delay used for rate-limited
	// failures instead of exponential backoff; rate limits recover on
	// the platform's schedule, not ours.
	RateLimitDelay time.Duration
}

// DefaultPolicy returns the baseline policy applied to platforms without
// an override.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:      30 * time.Second,
		MaxDelay:       time.Hour,
		Multiplier:     2,
		JitterFactor:   0.2,
		MaxRetries:     3,
		RateLimitDelay: 5 * time.Minute,
	}
}

// NextDelay returns the delay before the next retry given the number of
// retries already attempted (0 for the first retry).
func (p Policy) NextDelay(retryCount int) time.Duration {
	base := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(retryCount))
	jitter := 1 + (rand.Float64()-0.5)*p.JitterFactor //nolint:gosec // jitter intentionally uses non-crypto rand
	d := time.Duration(base * jitter)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// DelayFor returns the delay for the next retry under the recommended
// recovery strategy. Rate-limited failures get the long fixed delay;
// unknown failures get one immediate retry before falling back to
// exponential backoff.
func (p Policy) DelayFor(strategy classify.Strategy, retryCount int) time.Duration {
	switch strategy {
	case classify.StrategyDelayedRetry:
		return p.RateLimitDelay
	case classify.StrategyImmediateRetry:
		if retryCount == 0 {
			return 0
		}
		return p.NextDelay(retryCount)
	default:
		return p.NextDelay(retryCount)
	}
}

// ShouldQuarantine reports whether the retry budget is exhausted.
func (p Policy) ShouldQuarantine(retryCount, maxRetries int) bool {
	if maxRetries <= 0 {
		maxRetries = p.MaxRetries
	}
	return retryCount >= maxRetries
}
