package item

import "time"

// Options configures per-item behavior such as retries, priority, and
// scheduling.
type Options struct {
	// MaxRetries is the maximum number of retry attempts before the item
	// is quarantined.
	MaxRetries int

	// Priority determines dequeue ordering. Higher values go first.
	Priority Priority

	// ScheduledAt is the earliest dispatch time. Zero means immediate.
	ScheduledAt time.Time

	// ScopeUserID and ScopeTeamID identify the owner for event filtering.
	ScopeUserID string
	ScopeTeamID string

	// Metadata carries free-form annotations.
	Metadata map[string]string
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxRetries: 3,
		Priority:   PriorityNormal,
	}
}

// Option is a functional option for configuring a new item.
type Option func(*Options)

// WithMaxRetries sets the maximum number of retry attempts.
func WithMaxRetries(n int) Option {
	return func(o *Options) {
		o.MaxRetries = n
	}
}

// WithPriority sets the item priority. Higher values are dispatched first.
func WithPriority(p Priority) Option {
	return func(o *Options) {
		o.Priority = p
	}
}

// WithScheduledAt sets the earliest dispatch time.
func WithScheduledAt(t time.Time) Option {
	return func(o *Options) {
		o.ScheduledAt = t
	}
}

// WithScope sets the owning user and team for event filtering.
func WithScope(userID, teamID string) Option {
	return func(o *Options) {
		o.ScopeUserID = userID
		o.ScopeTeamID = teamID
	}
}

// WithMetadata sets free-form annotations on the item.
func WithMetadata(m map[string]string) Option {
	return func(o *Options) {
		o.Metadata = m
	}
}
