package health

import (
	"context"
	"fmt"

	"github.com/xraph/courier/classify"
)

// Anomaly is one violated threshold.
type Anomaly struct {
	Metric   string            `json:"metric"`
	Message  string            `json:"message"`
	Severity classify.Severity `json:"severity"`
}

// DetectAnomalies evaluates every configured threshold and returns the
// violations. A metric beyond twice its threshold grades critical.
func (m *Monitor) DetectAnomalies(ctx context.Context) []Anomaly {
	queueLength := m.fetchQueueLen(ctx)

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.detectLocked(queueLength)
}

func (m *Monitor) detectLocked(queueLength int64) []Anomaly {
	var anomalies []Anomaly
	t := m.thresholds

	if t.MaxQueueLength > 0 && queueLength > t.MaxQueueLength {
		anomalies = append(anomalies, Anomaly{
			Metric:   "queue_length",
			Message:  fmt.Sprintf("pending queue length %d exceeds threshold %d", queueLength, t.MaxQueueLength),
			Severity: grade(float64(queueLength), float64(t.MaxQueueLength)),
		})
	}

	if t.MaxFailureRate > 0 {
		rate := m.failureRateLocked()
		if rate > t.MaxFailureRate {
			// Failure rate is the core delivery signal; a breach is never
			// graded below high.
			sev := grade(rate, t.MaxFailureRate)
			if severityRank(sev) < severityRank(classify.SeverityHigh) {
				sev = classify.SeverityHigh
			}
			anomalies = append(anomalies, Anomaly{
				Metric:   "failure_rate",
				Message:  fmt.Sprintf("failure rate %.0f%% exceeds threshold %.0f%%", rate*100, t.MaxFailureRate*100),
				Severity: sev,
			})
		}
	}

	if t.MaxProcessingTime > 0 {
		avg := m.avgProcessingLocked()
		if avg > t.MaxProcessingTime {
			anomalies = append(anomalies, Anomaly{
				Metric:   "processing_time",
				Message:  fmt.Sprintf("average processing time %s exceeds threshold %s", avg, t.MaxProcessingTime),
				Severity: grade(float64(avg), float64(t.MaxProcessingTime)),
			})
		}
	}

	if t.MaxConsecutiveFailures > 0 {
		for name, ps := range m.platforms {
			if ps.consecutiveFailures > t.MaxConsecutiveFailures {
				anomalies = append(anomalies, Anomaly{
					Metric:   "consecutive_failures",
					Message:  fmt.Sprintf("platform %s has %d consecutive failures (threshold %d)", name, ps.consecutiveFailures, t.MaxConsecutiveFailures),
					Severity: grade(float64(ps.consecutiveFailures), float64(t.MaxConsecutiveFailures)),
				})
			}
		}
	}

	if t.MaxErrorsPerWindow > 0 && t.ErrorWindow > 0 {
		count := m.errorsInWindowLocked()
		if count > t.MaxErrorsPerWindow {
			anomalies = append(anomalies, Anomaly{
				Metric:   "error_frequency",
				Message:  fmt.Sprintf("%d errors in trailing %s (threshold %d)", count, t.ErrorWindow, t.MaxErrorsPerWindow),
				Severity: grade(float64(count), float64(t.MaxErrorsPerWindow)),
			})
		}
	}

	return anomalies
}

// errorsInWindowLocked counts failure timestamps inside the trailing
// window. Callers must hold m.mu.
func (m *Monitor) errorsInWindowLocked() int {
	cutoff := m.now().Add(-m.thresholds.ErrorWindow)
	count := 0
	for _, ts := range m.errorTimes {
		if ts.After(cutoff) {
			count++
		}
	}
	return count
}

// grade converts a value/threshold ratio into a severity. Beyond twice
// the threshold is critical; beyond 1.5x is high; otherwise medium.
func grade(value, threshold float64) classify.Severity {
	switch {
	case value >= 2*threshold:
		return classify.SeverityCritical
	case value >= 1.5*threshold:
		return classify.SeverityHigh
	default:
		return classify.SeverityMedium
	}
}

// statusFor maps detected anomalies to an overall health status. High or
// critical severity means the queue is in trouble now, not trending there.
func statusFor(anomalies []Anomaly) Status {
	if len(anomalies) == 0 {
		return StatusHealthy
	}
	if severityRank(worstSeverity(anomalies)) >= severityRank(classify.SeverityHigh) {
		return StatusCritical
	}
	return StatusWarning
}

// worstSeverity returns the highest severity among the anomalies.
func worstSeverity(anomalies []Anomaly) classify.Severity {
	worst := classify.SeverityLow
	for _, a := range anomalies {
		if severityRank(a.Severity) > severityRank(worst) {
			worst = a.Severity
		}
	}
	return worst
}

func severityRank(s classify.Severity) int {
	switch s {
	case classify.SeverityLow:
		return 0
	case classify.SeverityMedium:
		return 1
	case classify.SeverityHigh:
		return 2
	case classify.SeverityCritical:
		return 3
	default:
		return 0
	}
}
