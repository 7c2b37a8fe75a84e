package client

import (
	"context"
	"net/http"

	"github.com/xraph/courier/engine"
	"github.com/xraph/courier/retry"
)

// QueueStatus returns per-status counts and the next due items.
func (c *Client) QueueStatus(ctx context.Context) (*engine.QueueStatus, error) {
	var status engine.QueueStatus
	if err := c.do(ctx, http.MethodGet, "/v1/queue", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// HealthReport returns the health snapshot, breaker states and anomalies.
func (c *Client) HealthReport(ctx context.Context) (*engine.HealthReport, error) {
	var report engine.HealthReport
	if err := c.do(ctx, http.MethodGet, "/v1/health", nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// AttemptStats returns aggregate delivery statistics for a platform.
func (c *Client) AttemptStats(ctx context.Context, platformName string) (retry.Stats, error) {
	var stats retry.Stats
	if err := c.do(ctx, http.MethodGet, "/v1/stats/"+platformName, nil, &stats); err != nil {
		return retry.Stats{}, err
	}
	return stats, nil
}
