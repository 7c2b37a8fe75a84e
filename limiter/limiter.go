package limiter

import (
	"sync"

	"golang.org/x/time/rate"
)

// Config defines per-platform behaviour such as rate limiting and concurrency.
type Config struct {
	// Platform is the platform identifier (must match the item.Platform field).
	Platform string

	// MaxConcurrency limits how many posts to this platform may be in
	// flight simultaneously. Zero means no platform-specific limit
	// (pool-wide concurrency still applies).
	MaxConcurrency int

	// RateLimit is the maximum sustained posts per second that may be
	// dispatched to this platform. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

// platformState tracks runtime state for a single platform.
type platformState struct {
	config  Config
	limiter *rate.Limiter
	active  int
}

// Manager controls per-platform and per-team rate limiting and concurrency.
// It is safe for concurrent use.
type Manager struct {
	mu        sync.Mutex
	platforms map[string]*platformState
	teams     map[string]*teamState
}

// NewManager creates a Manager with the given platform configurations.
// Platforms not listed here have no limits.
func NewManager(configs ...Config) *Manager {
	m := &Manager{
		platforms: make(map[string]*platformState, len(configs)),
		teams:     make(map[string]*teamState),
	}
	for _, cfg := range configs {
		m.platforms[cfg.Platform] = newPlatformState(cfg)
	}
	return m
}

func newPlatformState(cfg Config) *platformState {
	ps := &platformState{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ps.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return ps
}

// Acquire checks rate limits and concurrency for the given platform and
// team. If the dispatch is allowed to proceed it increments the active
// counter and returns true. The caller MUST call Release when the
// attempt completes.
func (m *Manager) Acquire(platform, teamID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ps := m.platforms[platform]
	var ts *teamState
	if teamID != "" {
		ts = m.teams[teamKey(platform, teamID)]
	}

	// Concurrency gates first: a concurrency rejection must not consume
	// a rate-limit token.
	if ps != nil && ps.config.MaxConcurrency > 0 && ps.active >= ps.config.MaxConcurrency {
		return false
	}
	if ts != nil && ts.maxConcurrency > 0 && ts.active >= ts.maxConcurrency {
		return false
	}

	// Rate limits next. The platform token is reserved so it can be
	// returned if the team bucket rejects.
	var psRes *rate.Reservation
	if ps != nil && ps.limiter != nil {
		psRes = ps.limiter.Reserve()
		if !psRes.OK() || psRes.Delay() > 0 {
			psRes.Cancel()
			return false
		}
	}
	if ts != nil && ts.limiter != nil && !ts.limiter.Allow() {
		if psRes != nil {
			psRes.Cancel()
		}
		return false
	}

	if ps != nil {
		ps.active++
	}
	if ts != nil {
		ts.active++
	}

	return true
}

// Release decrements the active dispatch count for the platform and team.
func (m *Manager) Release(platform, teamID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ps := m.platforms[platform]; ps != nil && ps.active > 0 {
		ps.active--
	}

	if teamID != "" {
		if ts := m.teams[teamKey(platform, teamID)]; ts != nil && ts.active > 0 {
			ts.active--
		}
	}
}

// SetPlatformConfig dynamically updates (or creates) a platform configuration.
func (m *Manager) SetPlatformConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.platforms[cfg.Platform]
	ps := newPlatformState(cfg)

	// Preserve current active count if reconfiguring.
	if existing != nil {
		ps.active = existing.active
	}
	m.platforms[cfg.Platform] = ps
}

// ActiveCount returns the current number of in-flight dispatches for a
// platform.
func (m *Manager) ActiveCount(platform string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ps := m.platforms[platform]; ps != nil {
		return ps.active
	}
	return 0
}
