package limiter

import (
	"fmt"

	"golang.org/x/time/rate"
)

// TeamConfig defines rate limits and concurrency for a specific owning
// team on a specific platform, identified by the item's ScopeTeamID.
type TeamConfig struct {
	// Platform is the platform this config applies to.
	Platform string

	// TeamID is the team identifier (typically item.ScopeTeamID).
	TeamID string

	// RateLimit is the sustained posts per second for this team.
	RateLimit float64

	// RateBurst is the burst size for the team's rate limiter.
	RateBurst int

	// MaxConcurrency limits simultaneous dispatches for this team on
	// this platform. Zero means no team-specific concurrency limit.
	MaxConcurrency int
}

// teamState tracks runtime state for a single platform+team pair.
type teamState struct {
	limiter        *rate.Limiter
	maxConcurrency int
	active         int
}

// teamKey builds the map key for a platform+team pair.
func teamKey(platform, teamID string) string {
	return fmt.Sprintf("%s:%s", platform, teamID)
}

// SetTeamConfig configures rate limits and concurrency for a specific
// team on a specific platform. Calling this multiple times for the same
// platform+team replaces the previous configuration.
func (m *Manager) SetTeamConfig(cfg TeamConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := teamKey(cfg.Platform, cfg.TeamID)
	existing := m.teams[key]

	ts := &teamState{
		maxConcurrency: cfg.MaxConcurrency,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ts.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	// Preserve current active count if reconfiguring.
	if existing != nil {
		ts.active = existing.active
	}
	m.teams[key] = ts
}

// TeamActiveCount returns the current number of in-flight dispatches for
// a platform+team pair.
func (m *Manager) TeamActiveCount(platform, teamID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ts := m.teams[teamKey(platform, teamID)]; ts != nil {
		return ts.active
	}
	return 0
}
