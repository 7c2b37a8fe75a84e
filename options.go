package courier

import (
	"context"
	"log/slog"
	"time"
)

// Option configures a Courier.
type Option func(*Courier) error

// Storer is the minimal store interface held by the Courier coordinator.
// It covers lifecycle operations only. The full composite interface
// (store.Store) is used in subsystem layers that don't create import
// cycles. Implementations satisfy store.Store which embeds all
// subsystem stores.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// runner is an internal interface for subsystem lifecycle (scheduler,
// health monitor, recurring scheduler).
type runner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// extensionEmitter is an internal interface for extension lifecycle events.
type extensionEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Courier is the central coordinator for publish scheduling, retry
// handling, circuit breaking, and dead-letter management.
//
// Create one with New() and functional options. The Courier holds
// references to subsystem components via internal interfaces to avoid
// import cycles; the engine package wires everything together.
type Courier struct {
	config     Config
	logger     *slog.Logger
	store      Storer
	extensions extensionEmitter
	runners    []runner

	// started tracks whether Start has been called.
	started bool
}

// New creates a new Courier with the given options.
func New(opts ...Option) (*Courier, error) {
	c := &Courier{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Logger returns the coordinator's logger.
func (c *Courier) Logger() *slog.Logger { return c.logger }

// Store returns the coordinator's store.
func (c *Courier) Store() Storer { return c.store }

// Config returns a copy of the coordinator's configuration.
func (c *Courier) Config() Config { return c.config }

// AddRunner registers a subsystem lifecycle (called by the engine package).
func (c *Courier) AddRunner(r runner) { c.runners = append(c.runners, r) }

// SetExtensions sets the extension emitter (called by the engine package).
func (c *Courier) SetExtensions(e extensionEmitter) { c.extensions = e }

// Start begins processing by starting all registered runners in order.
func (c *Courier) Start(ctx context.Context) error {
	if c.store == nil {
		return ErrNoStore
	}
	for _, r := range c.runners {
		if err := r.Start(ctx); err != nil {
			return err
		}
	}
	c.started = true
	return nil
}

// Stop gracefully shuts down the coordinator. Runners are stopped in
// reverse registration order so producers stop before consumers.
func (c *Courier) Stop(ctx context.Context) error {
	if c.started {
		for i := len(c.runners) - 1; i >= 0; i-- {
			if err := c.runners[i].Stop(ctx); err != nil {
				c.logger.Error("runner stop error", "error", err)
			}
		}
	}
	if c.extensions != nil {
		c.extensions.EmitShutdown(ctx)
	}
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}

// WithPollInterval sets how often the scheduler checks for due items.
func WithPollInterval(d time.Duration) Option {
	return func(c *Courier) error {
		c.config.PollInterval = d
		return nil
	}
}

// WithBatchSize sets the maximum items pulled per scheduling pass.
func WithBatchSize(n int) Option {
	return func(c *Courier) error {
		c.config.BatchSize = n
		return nil
	}
}

// WithDispatchConcurrency bounds parallel adapter calls within one pass.
func WithDispatchConcurrency(n int) Option {
	return func(c *Courier) error {
		c.config.DispatchConcurrency = n
		return nil
	}
}

// WithPlatforms sets the platforms this instance dispatches for.
func WithPlatforms(platforms []string) Option {
	return func(c *Courier) error {
		c.config.Platforms = platforms
		return nil
	}
}

// WithLogger sets the structured logger for the coordinator.
func WithLogger(l *slog.Logger) Option {
	return func(c *Courier) error {
		c.logger = l
		return nil
	}
}

// WithStore sets the persistence backend for the coordinator.
// The store must implement Storer at minimum; typically it will be a
// store.Store which embeds all subsystem store interfaces.
func WithStore(s Storer) Option {
	return func(c *Courier) error {
		c.store = s
		return nil
	}
}
