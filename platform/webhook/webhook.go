// Package webhook provides a generic platform adapter that delivers
// content to an HTTP endpoint. It lets courierd serve platforms whose
// integration lives behind a webhook receiver instead of a compiled-in
// SDK: POST schedules a post, GET fetches its status, DELETE cancels it.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/xraph/courier/item"
	"github.com/xraph/courier/platform"
)

const defaultMaxContentLength = 10000

// Adapter delivers content to a webhook receiver. It implements
// platform.Adapter, platform.Canceler and platform.BatchStatusFetcher.
type Adapter struct {
	name             string
	endpoint         string
	client           *http.Client
	authToken        string
	maxContentLength int
}

// Option customizes a webhook adapter.
type Option func(*Adapter)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Adapter) { a.client = client }
}

// WithAuthToken sets a bearer token sent on every request.
func WithAuthToken(token string) Option {
	return func(a *Adapter) { a.authToken = token }
}

// WithMaxContentLength overrides the content length accepted by
// ValidateContent.
func WithMaxContentLength(n int) Option {
	return func(a *Adapter) { a.maxContentLength = n }
}

// New creates a webhook adapter named name, delivering to endpoint.
func New(name, endpoint string, opts ...Option) (*Adapter, error) {
	if name == "" {
		return nil, fmt.Errorf("webhook: adapter name is required")
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("webhook: invalid endpoint %q", endpoint)
	}

	a := &Adapter{
		name:             name,
		endpoint:         endpoint,
		client:           &http.Client{Timeout: 30 * time.Second},
		maxContentLength: defaultMaxContentLength,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Name returns the platform name this adapter serves.
func (a *Adapter) Name() string { return a.name }

// ValidateContent applies generic checks. Platform-specific rules live
// behind the webhook, so validation here is limited to what any
// receiver would reject.
func (a *Adapter) ValidateContent(_ context.Context, payload item.Payload) (platform.ValidationResult, error) {
	result := platform.ValidationResult{IsValid: true}
	if payload.Content == "" && len(payload.MediaRefs) == 0 {
		result.IsValid = false
		result.Errors = append(result.Errors, "content or media is required")
	}
	if len(payload.Content) > a.maxContentLength {
		result.IsValid = false
		result.Errors = append(result.Errors,
			fmt.Sprintf("content exceeds %d characters", a.maxContentLength))
	}
	return result, nil
}

type scheduleRequest struct {
	Content     string            `json:"content"`
	MediaRefs   []string          `json:"media_refs,omitempty"`
	Options     map[string]string `json:"options,omitempty"`
	ScheduledAt time.Time         `json:"scheduled_at"`
}

type scheduleResponse struct {
	PostID               string    `json:"post_id"`
	ScheduledTime        time.Time `json:"scheduled_time,omitzero"`
	EstimatedPublishTime time.Time `json:"estimated_publish_time,omitzero"`
}

// SchedulePost POSTs the payload to the endpoint. Non-2xx responses
// become platform.APIError so the retry subsystem can classify them.
func (a *Adapter) SchedulePost(ctx context.Context, payload item.Payload, at time.Time) (platform.ScheduleResult, error) {
	body, err := json.Marshal(scheduleRequest{
		Content:     payload.Content,
		MediaRefs:   payload.MediaRefs,
		Options:     payload.Options,
		ScheduledAt: at,
	})
	if err != nil {
		return platform.ScheduleResult{}, fmt.Errorf("webhook: marshal payload: %w", err)
	}

	resp, err := a.do(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return platform.ScheduleResult{}, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return platform.ScheduleResult{}, err
	}

	var sr scheduleResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return platform.ScheduleResult{}, fmt.Errorf("webhook: decode response: %w", err)
	}
	if sr.PostID == "" {
		return platform.ScheduleResult{}, fmt.Errorf("webhook: receiver returned no post_id")
	}

	scheduled := sr.ScheduledTime
	if scheduled.IsZero() {
		scheduled = at
	}
	return platform.ScheduleResult{
		PostID:               sr.PostID,
		ScheduledTime:        scheduled,
		EstimatedPublishTime: sr.EstimatedPublishTime,
	}, nil
}

// GetPostStatus GETs endpoint/{postID}.
func (a *Adapter) GetPostStatus(ctx context.Context, postID string) (platform.PostStatus, error) {
	resp, err := a.do(ctx, http.MethodGet, a.postURL(postID), nil)
	if err != nil {
		return platform.PostStatus{}, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return platform.PostStatus{}, err
	}

	var status platform.PostStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return platform.PostStatus{}, fmt.Errorf("webhook: decode status: %w", err)
	}
	return status, nil
}

type batchStatusRequest struct {
	PostIDs []string `json:"post_ids"`
}

// GetBatchPostStatus POSTs the post IDs to endpoint/batch-status and
// expects a map keyed by post ID back.
func (a *Adapter) GetBatchPostStatus(ctx context.Context, postIDs []string) (map[string]platform.PostStatus, error) {
	body, err := json.Marshal(batchStatusRequest{PostIDs: postIDs})
	if err != nil {
		return nil, fmt.Errorf("webhook: marshal batch request: %w", err)
	}

	resp, err := a.do(ctx, http.MethodPost, a.endpoint+"/batch-status", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	statuses := make(map[string]platform.PostStatus, len(postIDs))
	if err := json.NewDecoder(resp.Body).Decode(&statuses); err != nil {
		return nil, fmt.Errorf("webhook: decode batch status: %w", err)
	}
	return statuses, nil
}

// CancelScheduledPost DELETEs endpoint/{postID}. A 404 or 409 means the
// receiver declined; other failures are errors.
func (a *Adapter) CancelScheduledPost(ctx context.Context, postID string) (bool, error) {
	resp, err := a.do(ctx, http.MethodDelete, a.postURL(postID), nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusConflict:
		return false, nil
	default:
		return false, checkStatus(resp)
	}
}

func (a *Adapter) postURL(postID string) string {
	return a.endpoint + "/" + url.PathEscape(postID)
}

func (a *Adapter) do(ctx context.Context, method, target string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("webhook: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+a.authToken)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook: %s %s: %w", method, a.name, err)
	}
	return resp, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &platform.APIError{
		StatusCode: resp.StatusCode,
		Message:    string(bytes.TrimSpace(msg)),
	}
}
