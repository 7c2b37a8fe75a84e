// Package scope provides helpers to capture and restore owner identity
// (user and team) from/to context.Context.
//
// Items carry their owner in the ScopeUserID/ScopeTeamID fields; these
// helpers bridge between those fields and the context so adapters and
// middleware see the same identity as the original enqueue caller.
package scope

import "context"

type contextKey struct{}

// Scope identifies the owning user and team of an operation.
type Scope struct {
	UserID string
	TeamID string
}

// Capture extracts the user and team identifiers from the context.
// Returns empty strings if no scope is present.
func Capture(ctx context.Context) (userID, teamID string) {
	s, ok := ctx.Value(contextKey{}).(Scope)
	if !ok {
		return "", ""
	}
	return s.UserID, s.TeamID
}

// Restore attaches a scope to the context using the given user and team
// IDs. If both are empty, the context is returned unchanged (no-op).
func Restore(ctx context.Context, userID, teamID string) context.Context {
	if userID == "" && teamID == "" {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, Scope{UserID: userID, TeamID: teamID})
}
