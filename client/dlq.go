package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/xraph/courier/dlq"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/item"
)

// ListDeadLetters returns dead letter entries. Set unresolved to
// restrict to entries that still need attention.
func (c *Client) ListDeadLetters(ctx context.Context, limit, offset int, unresolved bool) ([]*dlq.Entry, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	if unresolved {
		q.Set("unresolved", "true")
	}

	path := "/v1/dlq"
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var entries []*dlq.Entry
	if err := c.do(ctx, http.MethodGet, path, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetDeadLetter fetches a dead letter entry by ID.
func (c *Client) GetDeadLetter(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	var entry dlq.Entry
	if err := c.do(ctx, http.MethodGet, "/v1/dlq/"+entryID.String(), nil, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

type notesRequest struct {
	Notes string `json:"notes,omitempty"`
}

// Resolve marks a dead letter entry handled without re-enqueueing.
func (c *Client) Resolve(ctx context.Context, entryID id.DLQID, notes string) error {
	return c.do(ctx, http.MethodPost, "/v1/dlq/"+entryID.String()+"/resolve",
		notesRequest{Notes: notes}, nil)
}

// RetryDeadLetter re-enqueues a dead letter entry as a fresh item.
func (c *Client) RetryDeadLetter(ctx context.Context, entryID id.DLQID, notes string) (*item.Item, error) {
	var replacement item.Item
	err := c.do(ctx, http.MethodPost, "/v1/dlq/"+entryID.String()+"/retry",
		notesRequest{Notes: notes}, &replacement)
	if err != nil {
		return nil, err
	}
	return &replacement, nil
}

// DeleteDeadLetter soft-deletes a dead letter entry.
func (c *Client) DeleteDeadLetter(ctx context.Context, entryID id.DLQID) error {
	return c.do(ctx, http.MethodDelete, "/v1/dlq/"+entryID.String(), nil, nil)
}

type bulkRequest struct {
	EntryIDs []string `json:"entry_ids"`
	Action   string   `json:"action"`
	Notes    string   `json:"notes,omitempty"`
}

// BulkAction applies an action to many dead letter entries at once.
func (c *Client) BulkAction(ctx context.Context, entryIDs []id.DLQID, action dlq.Action, notes string) (*dlq.BulkResult, error) {
	raw := make([]string, len(entryIDs))
	for i, entryID := range entryIDs {
		raw[i] = entryID.String()
	}

	var result dlq.BulkResult
	err := c.do(ctx, http.MethodPost, "/v1/dlq/bulk",
		bulkRequest{EntryIDs: raw, Action: string(action), Notes: notes}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

type purgeRequest struct {
	OlderThan string `json:"older_than,omitempty"`
}

type purgeResponse struct {
	Purged int64 `json:"purged"`
}

// PurgeDeadLetters removes resolved entries older than the given age.
func (c *Client) PurgeDeadLetters(ctx context.Context, olderThan time.Duration) (int64, error) {
	var resp purgeResponse
	err := c.do(ctx, http.MethodPost, "/v1/dlq/purge",
		purgeRequest{OlderThan: olderThan.String()}, &resp)
	if err != nil {
		return 0, err
	}
	return resp.Purged, nil
}
