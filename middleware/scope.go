package middleware

import (
	"context"

	"github.com/xraph/courier/item"
	"github.com/xraph/courier/scope"
)

// Scope returns middleware that restores the owner identity from the
// item's ScopeUserID/ScopeTeamID fields into the context. This ensures
// adapters see the same scope as the original enqueue caller.
func Scope() Middleware {
	return func(ctx context.Context, it *item.Item, next Handler) error {
		ctx = scope.Restore(ctx, it.ScopeUserID, it.ScopeTeamID)
		return next(ctx)
	}
}
