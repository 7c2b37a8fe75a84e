package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/courier/item"
)

// Logging returns middleware that logs dispatch start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, it *item.Item, next Handler) error {
		logger.Info("dispatch started",
			slog.String("item_id", it.ID.String()),
			slog.String("platform", it.Platform),
			slog.Int("retry_count", it.RetryCount),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("dispatch failed",
				slog.String("item_id", it.ID.String()),
				slog.String("platform", it.Platform),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("dispatch completed",
				slog.String("item_id", it.ID.String()),
				slog.String("platform", it.Platform),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
