// Package middleware provides composable middleware for item dispatch.
//
// A [Middleware] is a function that wraps a dispatch handler. Middleware
// are composed into a chain using [Chain] and applied before each adapter
// call. They are applied right-to-left: the first middleware in the slice
// is the outermost wrapper.
//
//	// logging → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging] — logs platform, item ID, duration, and outcome of each dispatch
//   - [Recover] — catches panics in adapters and converts them to errors
//   - [Timeout] — cancels the dispatch context after a configured duration
//   - [Tracing] — wraps dispatch in an OpenTelemetry span
//   - [Metrics] — records per-platform duration and outcome counters
//   - [Scope] — injects the item's owner identity into the context
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, it *item.Item, next middleware.Handler) error {
//	        // pre-processing
//	        err := next(ctx)
//	        // post-processing
//	        return err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting (e.g., circuit breaker, rate limiting).
package middleware
