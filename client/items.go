package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/xraph/courier/id"
	"github.com/xraph/courier/item"
	"github.com/xraph/courier/platform"
	"github.com/xraph/courier/retry"
)

// EnqueueOptions carries optional enqueue parameters.
type EnqueueOptions struct {
	Priority    string            `json:"priority,omitempty"`
	ScheduledAt *time.Time        `json:"scheduled_at,omitempty"`
	MaxRetries  int               `json:"max_retries,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type enqueueRequest struct {
	Platform string       `json:"platform"`
	Payload  item.Payload `json:"payload"`
	EnqueueOptions
}

// Enqueue schedules a publish on the given platform.
func (c *Client) Enqueue(ctx context.Context, platformName string, payload item.Payload, opts ...EnqueueOptions) (*item.Item, error) {
	req := enqueueRequest{Platform: platformName, Payload: payload}
	if len(opts) > 0 {
		req.EnqueueOptions = opts[0]
	}

	var it item.Item
	if err := c.do(ctx, http.MethodPost, "/v1/items", req, &it); err != nil {
		return nil, err
	}
	return &it, nil
}

// GetItem fetches an item by ID.
func (c *Client) GetItem(ctx context.Context, itemID id.ItemID) (*item.Item, error) {
	var it item.Item
	if err := c.do(ctx, http.MethodGet, "/v1/items/"+itemID.String(), nil, &it); err != nil {
		return nil, err
	}
	return &it, nil
}

// ListItems returns items in the given status.
func (c *Client) ListItems(ctx context.Context, status item.Status, limit, offset int) ([]*item.Item, error) {
	q := url.Values{}
	q.Set("status", string(status))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}

	var items []*item.Item
	if err := c.do(ctx, http.MethodGet, "/v1/items?"+q.Encode(), nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Cancel cancels a scheduled publish.
func (c *Client) Cancel(ctx context.Context, itemID id.ItemID) (*item.Item, error) {
	var it item.Item
	if err := c.do(ctx, http.MethodPost, "/v1/items/"+itemID.String()+"/cancel", nil, &it); err != nil {
		return nil, err
	}
	return &it, nil
}

// Attempts returns the delivery attempt history for an item.
func (c *Client) Attempts(ctx context.Context, itemID id.ItemID, limit int) ([]*retry.Attempt, error) {
	path := "/v1/items/" + itemID.String() + "/attempts"
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}

	var attempts []*retry.Attempt
	if err := c.do(ctx, http.MethodGet, path, nil, &attempts); err != nil {
		return nil, err
	}
	return attempts, nil
}

// PostStatus fetches the platform-side status of a posted item.
func (c *Client) PostStatus(ctx context.Context, itemID id.ItemID) (platform.PostStatus, error) {
	var status platform.PostStatus
	if err := c.do(ctx, http.MethodGet, "/v1/items/"+itemID.String()+"/post-status", nil, &status); err != nil {
		return platform.PostStatus{}, err
	}
	return status, nil
}

type batchPostStatusRequest struct {
	ItemIDs []id.ItemID `json:"item_ids"`
}

// BatchPostStatus fetches platform-side statuses for many items in one
// call. Items that never reached a platform are omitted from the result.
func (c *Client) BatchPostStatus(ctx context.Context, itemIDs []id.ItemID) (map[id.ItemID]platform.PostStatus, error) {
	var statuses map[id.ItemID]platform.PostStatus
	err := c.do(ctx, http.MethodPost, "/v1/items/post-status",
		batchPostStatusRequest{ItemIDs: itemIDs}, &statuses)
	if err != nil {
		return nil, err
	}
	return statuses, nil
}

type validateRequest struct {
	Platform string       `json:"platform"`
	Payload  item.Payload `json:"payload"`
}

// Validate checks content against a platform's rules without enqueueing.
func (c *Client) Validate(ctx context.Context, platformName string, payload item.Payload) (platform.ValidationResult, error) {
	var result platform.ValidationResult
	err := c.do(ctx, http.MethodPost, "/v1/validate",
		validateRequest{Platform: platformName, Payload: payload}, &result)
	if err != nil {
		return platform.ValidationResult{}, err
	}
	return result, nil
}
