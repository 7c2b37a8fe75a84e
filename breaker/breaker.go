package breaker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/courier"
)

// State is the circuit state for one platform.
type State string

const (
	// StateClosed is normal operation; calls pass through.
	StateClosed State = "closed"
	// StateOpen fails fast; calls are rejected until the cooldown elapses.
	StateOpen State = "open"
	// StateHalfOpen allows exactly one probe call to test recovery.
	StateHalfOpen State = "half_open"
)

// Config controls when a breaker trips and how long it stays open.
type Config struct {
	// Threshold is the consecutive-failure count that opens the breaker.
	Threshold int

	// Cooldown is how long an open breaker rejects calls before allowing
	// a half-open probe.
	Cooldown time.Duration
}

// DefaultConfig returns the standard breaker configuration.
func DefaultConfig() Config {
	return Config{
		Threshold: 5,
		Cooldown:  60 * time.Second,
	}
}

// platformState tracks runtime breaker state for a single platform.
type platformState struct {
	config              Config
	state               State
	consecutiveFailures int
	lastFailureAt       *time.Time
	nextAttemptAt       *time.Time

	// probing is set while the single half-open trial call is in flight.
	probing bool
}

// Registry holds one breaker per platform. It is safe for concurrent use:
// state is never read-then-written without the registry lock, so two
// concurrent failures cannot double-schedule a cooldown.
type Registry struct {
	mu        sync.Mutex
	platforms map[string]*platformState

	config Config
	store  Store
	logger *slog.Logger

	// now is swappable for tests.
	now func() time.Time

	// onChange is invoked outside the lock after a state transition.
	onChange func(ctx context.Context, platform string, from, to State)
}

// NewRegistry creates a Registry with the given default configuration.
// store may be nil for purely in-memory operation.
func NewRegistry(cfg Config, store Store, logger *slog.Logger) *Registry {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultConfig().Threshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig().Cooldown
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		platforms: make(map[string]*platformState),
		config:    cfg,
		store:     store,
		logger:    logger,
		now:       time.Now,
	}
}

// SetOnStateChange registers a callback fired after every state
// transition. Set once during wiring, before any dispatch runs.
func (r *Registry) SetOnStateChange(fn func(ctx context.Context, platform string, from, to State)) {
	r.onChange = fn
}

// SetPlatformConfig overrides the breaker configuration for one platform.
// Current counters and state are preserved.
func (r *Registry) SetPlatformConfig(platformName string, cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps := r.get(platformName)
	if cfg.Threshold > 0 {
		ps.config.Threshold = cfg.Threshold
	}
	if cfg.Cooldown > 0 {
		ps.config.Cooldown = cfg.Cooldown
	}
}

// Load hydrates breaker state from the store. Called once at startup so
// an open breaker stays open across a restart.
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	snapshots, err := r.store.ListBreakerStates(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, snap := range snapshots {
		ps := r.get(snap.Platform)
		ps.state = snap.State
		ps.consecutiveFailures = snap.ConsecutiveFailures
		ps.lastFailureAt = snap.LastFailureAt
		ps.nextAttemptAt = snap.NextAttemptAt
	}
	return nil
}

// Allow reports whether a call for the platform may proceed. It returns
// courier.ErrCircuitOpen while the breaker is open and before the
// cooldown elapses, and while a half-open probe is already in flight.
// When the cooldown has elapsed it moves the breaker to half_open and
// admits the caller as the single probe.
func (r *Registry) Allow(ctx context.Context, platformName string) error {
	from, to, err := r.allowLocked(ctx, platformName)
	r.notify(ctx, platformName, from, to)
	return err
}

func (r *Registry) allowLocked(ctx context.Context, platformName string) (from, to State, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ps := r.get(platformName)
	from, to = ps.state, ps.state

	switch ps.state {
	case StateClosed:
		return from, to, nil
	case StateOpen:
		if ps.nextAttemptAt != nil && r.now().Before(*ps.nextAttemptAt) {
			return from, to, courier.ErrCircuitOpen
		}
		ps.state = StateHalfOpen
		ps.probing = true
		to = StateHalfOpen
		r.persist(ctx, platformName, ps)
		r.logger.Info("circuit half-open, admitting probe",
			slog.String("platform", platformName))
		return from, to, nil
	case StateHalfOpen:
		if ps.probing {
			return from, to, courier.ErrCircuitOpen
		}
		ps.probing = true
		return from, to, nil
	default:
		return from, to, nil
	}
}

// RecordSuccess notes a successful call. A half-open probe success closes
// the breaker and resets counters.
func (r *Registry) RecordSuccess(ctx context.Context, platformName string) {
	from := r.recordSuccessLocked(ctx, platformName)
	r.notify(ctx, platformName, from, StateClosed)
}

func (r *Registry) recordSuccessLocked(ctx context.Context, platformName string) State {
	r.mu.Lock()
	defer r.mu.Unlock()

	ps := r.get(platformName)
	prev := ps.state
	ps.consecutiveFailures = 0
	ps.probing = false
	ps.state = StateClosed
	ps.nextAttemptAt = nil

	if prev != StateClosed {
		r.persist(ctx, platformName, ps)
		r.logger.Info("circuit closed",
			slog.String("platform", platformName),
			slog.String("previous_state", string(prev)))
	}
	return prev
}

// RecordFailure notes a failed call. It opens the breaker when the
// consecutive-failure threshold is reached, and re-opens it with a fresh
// cooldown when a half-open probe fails. It returns the resulting state.
func (r *Registry) RecordFailure(ctx context.Context, platformName string) State {
	from, to := r.recordFailureLocked(ctx, platformName)
	r.notify(ctx, platformName, from, to)
	return to
}

func (r *Registry) recordFailureLocked(ctx context.Context, platformName string) (from, to State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ps := r.get(platformName)
	from = ps.state
	now := r.now()
	ps.consecutiveFailures++
	ps.lastFailureAt = &now
	ps.probing = false

	opened := false
	switch ps.state {
	case StateHalfOpen:
		opened = true
	case StateClosed:
		if ps.consecutiveFailures >= ps.config.Threshold {
			opened = true
		}
	case StateOpen:
		// Already open; a failure here is a bookkeeping update only.
	}

	if opened {
		next := now.Add(ps.config.Cooldown)
		ps.state = StateOpen
		ps.nextAttemptAt = &next
		r.logger.Warn("circuit opened",
			slog.String("platform", platformName),
			slog.Int("consecutive_failures", ps.consecutiveFailures),
			slog.Time("next_attempt_at", next))
	}

	r.persist(ctx, platformName, ps)
	return from, ps.state
}

// notify fires the state-change callback outside the registry lock.
func (r *Registry) notify(ctx context.Context, platformName string, from, to State) {
	if from != to && r.onChange != nil {
		r.onChange(ctx, platformName, from, to)
	}
}

// StateOf returns the current state for a platform without mutating it.
func (r *Registry) StateOf(platformName string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(platformName).state
}

// ConsecutiveFailures returns the current consecutive-failure count.
func (r *Registry) ConsecutiveFailures(platformName string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(platformName).consecutiveFailures
}

// Snapshots returns a point-in-time copy of all breaker states, for
// health reports.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Snapshot, 0, len(r.platforms))
	for name, ps := range r.platforms {
		out = append(out, snapshotOf(name, ps))
	}
	return out
}

// get returns the state for a platform, creating a closed breaker on
// first use. Callers must hold r.mu.
func (r *Registry) get(platformName string) *platformState {
	ps, ok := r.platforms[platformName]
	if !ok {
		ps = &platformState{config: r.config, state: StateClosed}
		r.platforms[platformName] = ps
	}
	return ps
}

// persist writes the snapshot through to the store. Failures are logged
// and swallowed; breaker bookkeeping must never abort dispatch. Callers
// must hold r.mu.
func (r *Registry) persist(ctx context.Context, platformName string, ps *platformState) {
	if r.store == nil {
		return
	}
	snap := snapshotOf(platformName, ps)
	if err := r.store.SaveBreakerState(ctx, &snap); err != nil {
		r.logger.Error("failed to persist breaker state",
			slog.String("platform", platformName),
			slog.String("error", err.Error()))
	}
}

func snapshotOf(platformName string, ps *platformState) Snapshot {
	return Snapshot{
		Platform:            platformName,
		State:               ps.state,
		ConsecutiveFailures: ps.consecutiveFailures,
		LastFailureAt:       ps.lastFailureAt,
		NextAttemptAt:       ps.nextAttemptAt,
	}
}
