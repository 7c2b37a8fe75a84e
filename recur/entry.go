package recur

import (
	"time"

	"github.com/xraph/courier"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/item"
)

// Entry represents a recurring publish schedule.
type Entry struct {
	courier.Entity

	ID       id.RecurID `json:"id"`
	Name     string     `json:"name"`
	Schedule string     `json:"schedule"`
	Platform string     `json:"platform"`

	// Payload is the content snapshot enqueued on every firing.
	Payload item.Payload `json:"payload"`

	// Priority and MaxRetries are applied to each enqueued item.
	Priority   item.Priority `json:"priority"`
	MaxRetries int           `json:"max_retries,omitempty"`

	ScopeUserID string `json:"scope_user_id,omitempty"`
	ScopeTeamID string `json:"scope_team_id,omitempty"`

	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	NextRunAt   *time.Time `json:"next_run_at,omitempty"`
	LockedBy    string     `json:"locked_by,omitempty"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	Enabled     bool       `json:"enabled"`
}
