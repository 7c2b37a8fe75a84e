package middleware

import (
	"context"
	"time"

	"github.com/xraph/courier/item"
)

// Timeout returns middleware that enforces a per-dispatch deadline.
// When the deadline is exceeded the context is cancelled and the adapter
// should return context.DeadlineExceeded. A zero duration disables the
// deadline.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, _ *item.Item, next Handler) error {
		if d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
