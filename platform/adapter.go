package platform

import (
	"context"
	"time"

	"github.com/xraph/courier/item"
)

// ValidationResult reports whether content is acceptable for a platform.
type ValidationResult struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ScheduleResult is returned by a successful SchedulePost call.
type ScheduleResult struct {
	// PostID is the platform-side identifier for the scheduled post.
	PostID string `json:"post_id"`

	// ScheduledTime is the time the platform accepted for publication.
	ScheduledTime time.Time `json:"scheduled_time"`

	// EstimatedPublishTime is the platform's estimate of when the post
	// will actually go live. Zero if the platform does not report one.
	EstimatedPublishTime time.Time `json:"estimated_publish_time,omitzero"`
}

// PostStatus describes the platform-side state of a previously
// scheduled post.
type PostStatus struct {
	Status  string            `json:"status"`
	URL     string            `json:"url,omitempty"`
	Metrics map[string]int64  `json:"metrics,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// Adapter is the contract a platform integration must implement. All
// methods take a context and return explicit errors; the retry subsystem
// classifies those errors to decide recovery.
type Adapter interface {
	// Name returns the platform name this adapter serves (e.g. "tiktok").
	Name() string

	// ValidateContent checks the payload against platform rules without
	// contacting the platform where possible.
	ValidateContent(ctx context.Context, payload item.Payload) (ValidationResult, error)

	// SchedulePost submits the payload for publication at the given time.
	SchedulePost(ctx context.Context, payload item.Payload, at time.Time) (ScheduleResult, error)

	// GetPostStatus fetches the platform-side status of a scheduled post.
	GetPostStatus(ctx context.Context, postID string) (PostStatus, error)
}

// Canceler is an optional capability for adapters that can cancel a
// scheduled post platform-side.
type Canceler interface {
	// CancelScheduledPost cancels the post. The boolean reports whether
	// the platform actually cancelled it.
	CancelScheduledPost(ctx context.Context, postID string) (bool, error)
}

// BatchStatusFetcher is an optional capability for adapters that can
// fetch status for many posts in one call.
type BatchStatusFetcher interface {
	GetBatchPostStatus(ctx context.Context, postIDs []string) (map[string]PostStatus, error)
}
