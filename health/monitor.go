package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/courier/classify"
	"github.com/xraph/courier/ext"
)

// Status is the overall queue health classification.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Thresholds configures anomaly detection. Zero disables a check.
type Thresholds struct {
	// MaxQueueLength flags a backed-up pending queue.
	MaxQueueLength int64

	// MaxFailureRate is the tolerated failure fraction (0..1) across all
	// recorded outcomes.
	MaxFailureRate float64

	// MaxProcessingTime flags slow average adapter calls.
	MaxProcessingTime time.Duration

	// MaxConsecutiveFailures flags a platform on a failure streak.
	MaxConsecutiveFailures int

	// MaxErrorsPerWindow flags error frequency in the trailing window.
	MaxErrorsPerWindow int

	// ErrorWindow is the trailing window for MaxErrorsPerWindow.
	ErrorWindow time.Duration

	// AlertDebounce is the minimum gap between emitted alerts for a
	// persisting condition.
	AlertDebounce time.Duration
}

// DefaultThresholds returns the baseline anomaly thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxQueueLength:         500,
		MaxFailureRate:         0.5,
		MaxProcessingTime:      30 * time.Second,
		MaxConsecutiveFailures: 5,
		MaxErrorsPerWindow:     25,
		ErrorWindow:            5 * time.Minute,
		AlertDebounce:          10 * time.Minute,
	}
}

// PlatformHealth is the per-platform slice of a snapshot.
type PlatformHealth struct {
	Successes           int64         `json:"successes"`
	Failures            int64         `json:"failures"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	AverageResponseTime time.Duration `json:"average_response_time"`
}

// Snapshot is a point-in-time copy of the monitor's counters.
type Snapshot struct {
	Status                Status                    `json:"status"`
	SuccessCount          int64                     `json:"success_count"`
	FailureCount          int64                     `json:"failure_count"`
	FailureRate           float64                   `json:"failure_rate"`
	AverageProcessingTime time.Duration             `json:"average_processing_time"`
	QueueLength           int64                     `json:"queue_length"`
	Platforms             map[string]PlatformHealth `json:"platforms"`
	TakenAt               time.Time                 `json:"taken_at"`
}

// platformStats accumulates outcomes for one platform.
type platformStats struct {
	successes           int64
	failures            int64
	consecutiveFailures int
	totalResponseTime   time.Duration
	samples             int64
}

// processingWindowSize bounds the rolling processing-time sample buffer.
const processingWindowSize = 256

// QueueLenFunc reports the current pending queue length. Wired to the
// item store by the engine.
type QueueLenFunc func(ctx context.Context) (int64, error)

// Monitor tracks rolling outcome counters and runs periodic anomaly
// detection. It is safe for concurrent use.
type Monitor struct {
	mu sync.RWMutex

	successCount int64
	failureCount int64

	// processingTimes is a rolling window of recent sample durations.
	processingTimes []time.Duration
	processingIdx   int

	platforms map[string]*platformStats

	// errorTimes is the trailing window of failure timestamps.
	errorTimes []time.Time

	thresholds Thresholds
	queueLen   QueueLenFunc
	extensions *ext.Registry
	logger     *slog.Logger
	interval   time.Duration

	lastAlertAt time.Time

	// now is swappable for tests.
	now func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a Monitor. queueLen may be nil to skip the queue
// length check; extensions may be nil to disable alert emission.
func NewMonitor(thresholds Thresholds, interval time.Duration, queueLen QueueLenFunc, extensions *ext.Registry, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		processingTimes: make([]time.Duration, 0, processingWindowSize),
		platforms:       make(map[string]*platformStats),
		thresholds:      thresholds,
		queueLen:        queueLen,
		extensions:      extensions,
		logger:          logger,
		interval:        interval,
		now:             time.Now,
	}
}

// RecordSuccess notes a successful dispatch and its duration.
func (m *Monitor) RecordSuccess(platformName string, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.successCount++
	m.recordSample(elapsed)

	ps := m.platform(platformName)
	ps.successes++
	ps.consecutiveFailures = 0
	ps.totalResponseTime += elapsed
	ps.samples++
}

// RecordFailure notes a failed dispatch, its duration, and the failure
// category.
func (m *Monitor) RecordFailure(platformName string, elapsed time.Duration, _ classify.Category) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.failureCount++
	m.recordSample(elapsed)
	m.errorTimes = append(m.errorTimes, now)
	m.pruneErrorsLocked(now)

	ps := m.platform(platformName)
	ps.failures++
	ps.consecutiveFailures++
	ps.totalResponseTime += elapsed
	ps.samples++
}

// Reset clears all counters. Explicit operator action only.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.successCount = 0
	m.failureCount = 0
	m.processingTimes = m.processingTimes[:0]
	m.processingIdx = 0
	m.platforms = make(map[string]*platformStats)
	m.errorTimes = nil
}

// Snapshot returns a copy of the current counters. The queue length is
// fetched live when a QueueLenFunc is wired.
func (m *Monitor) Snapshot(ctx context.Context) Snapshot {
	queueLength := m.fetchQueueLen(ctx)

	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		SuccessCount:          m.successCount,
		FailureCount:          m.failureCount,
		FailureRate:           m.failureRateLocked(),
		AverageProcessingTime: m.avgProcessingLocked(),
		QueueLength:           queueLength,
		Platforms:             make(map[string]PlatformHealth, len(m.platforms)),
		TakenAt:               m.now().UTC(),
	}
	for name, ps := range m.platforms {
		ph := PlatformHealth{
			Successes:           ps.successes,
			Failures:            ps.failures,
			ConsecutiveFailures: ps.consecutiveFailures,
		}
		if ps.samples > 0 {
			ph.AverageResponseTime = ps.totalResponseTime / time.Duration(ps.samples)
		}
		snap.Platforms[name] = ph
	}

	snap.Status = statusFor(m.detectLocked(queueLength))
	return snap
}

// Start begins the periodic anomaly check loop.
func (m *Monitor) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.run(runCtx)

	m.logger.Info("health monitor started",
		slog.Duration("interval", m.interval))
	return nil
}

// Stop halts the check loop and waits for it to exit.
func (m *Monitor) Stop(ctx context.Context) error {
	if m.cancel == nil {
		return nil
	}
	m.cancel()

	select {
	case <-m.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	m.logger.Info("health monitor stopped")
	return nil
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

// check runs one anomaly detection pass and emits a debounced alert when
// warranted.
func (m *Monitor) check(ctx context.Context) {
	anomalies := m.DetectAnomalies(ctx)
	if len(anomalies) == 0 {
		return
	}

	status := statusFor(anomalies)
	worst := worstSeverity(anomalies)

	m.logger.Warn("health anomalies detected",
		slog.String("status", string(status)),
		slog.String("severity", string(worst)),
		slog.Int("count", len(anomalies)))

	if severityRank(worst) < severityRank(classify.SeverityMedium) {
		return
	}

	m.mu.Lock()
	now := m.now()
	if m.thresholds.AlertDebounce > 0 && now.Sub(m.lastAlertAt) < m.thresholds.AlertDebounce {
		m.mu.Unlock()
		return
	}
	m.lastAlertAt = now
	m.mu.Unlock()

	if m.extensions != nil {
		messages := make([]string, len(anomalies))
		for i, a := range anomalies {
			messages[i] = a.Message
		}
		m.extensions.EmitHealthAlert(ctx, ext.Alert{
			Status:    string(status),
			Severity:  worst,
			Anomalies: messages,
			At:        now.UTC(),
		})
	}
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// platform returns stats for a platform, creating them on first use.
// Callers must hold m.mu.
func (m *Monitor) platform(name string) *platformStats {
	ps, ok := m.platforms[name]
	if !ok {
		ps = &platformStats{}
		m.platforms[name] = ps
	}
	return ps
}

// recordSample appends to the rolling window, overwriting the oldest
// sample once full. Callers must hold m.mu.
func (m *Monitor) recordSample(d time.Duration) {
	if len(m.processingTimes) < processingWindowSize {
		m.processingTimes = append(m.processingTimes, d)
		return
	}
	m.processingTimes[m.processingIdx] = d
	m.processingIdx = (m.processingIdx + 1) % processingWindowSize
}

// pruneErrorsLocked drops error timestamps older than the trailing
// window. Callers must hold m.mu.
func (m *Monitor) pruneErrorsLocked(now time.Time) {
	if m.thresholds.ErrorWindow <= 0 {
		return
	}
	cutoff := now.Add(-m.thresholds.ErrorWindow)
	kept := m.errorTimes[:0]
	for _, t := range m.errorTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	m.errorTimes = kept
}

func (m *Monitor) failureRateLocked() float64 {
	total := m.successCount + m.failureCount
	if total == 0 {
		return 0
	}
	return float64(m.failureCount) / float64(total)
}

func (m *Monitor) avgProcessingLocked() time.Duration {
	if len(m.processingTimes) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range m.processingTimes {
		sum += d
	}
	return sum / time.Duration(len(m.processingTimes))
}

func (m *Monitor) fetchQueueLen(ctx context.Context) int64 {
	if m.queueLen == nil {
		return 0
	}
	n, err := m.queueLen(ctx)
	if err != nil {
		m.logger.Error("failed to read queue length",
			slog.String("error", err.Error()))
		return 0
	}
	return n
}
