package courier

import "time"

// Config holds configuration for the Courier coordinator.
type Config struct {
	// PollInterval is how often the scheduler checks for due items.
	PollInterval time.Duration

	// BatchSize is the maximum number of items pulled per scheduling pass.
	BatchSize int

	// DispatchConcurrency bounds how many adapter calls run in parallel
	// within one pass. Sized independently of BatchSize so a slow
	// platform cannot starve the rest of the batch.
	DispatchConcurrency int

	// Platforms is the set of platforms this instance dispatches for.
	// Empty means all platforms with a registered adapter.
	Platforms []string

	// HealthInterval is how often the health monitor runs anomaly
	// detection. Independent of scheduler ticks.
	HealthInterval time.Duration

	// StaleProcessingThreshold is how long an item may sit in processing
	// before the reaper resets it to pending (crash recovery).
	StaleProcessingThreshold time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:             5 * time.Second,
		BatchSize:                25,
		DispatchConcurrency:      8,
		HealthInterval:           30 * time.Second,
		StaleProcessingThreshold: 5 * time.Minute,
		ShutdownTimeout:          30 * time.Second,
	}
}
