package client

import (
	"context"
	"net/http"

	"github.com/xraph/courier/id"
	"github.com/xraph/courier/item"
	"github.com/xraph/courier/recur"
)

// RecurDefinition describes a recurring publish to register.
type RecurDefinition struct {
	Name        string       `json:"name"`
	Schedule    string       `json:"schedule"`
	Platform    string       `json:"platform"`
	Payload     item.Payload `json:"payload"`
	Priority    string       `json:"priority,omitempty"`
	MaxRetries  int          `json:"max_retries,omitempty"`
	ScopeUserID string       `json:"scope_user_id,omitempty"`
	ScopeTeamID string       `json:"scope_team_id,omitempty"`
}

// RegisterRecur creates a recurring publish entry.
func (c *Client) RegisterRecur(ctx context.Context, def RecurDefinition) (*recur.Entry, error) {
	var entry recur.Entry
	if err := c.do(ctx, http.MethodPost, "/v1/recurs", def, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListRecurs returns all recurring publish entries.
func (c *Client) ListRecurs(ctx context.Context) ([]*recur.Entry, error) {
	var entries []*recur.Entry
	if err := c.do(ctx, http.MethodGet, "/v1/recurs", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetRecur fetches a recurring entry by ID.
func (c *Client) GetRecur(ctx context.Context, entryID id.RecurID) (*recur.Entry, error) {
	var entry recur.Entry
	if err := c.do(ctx, http.MethodGet, "/v1/recurs/"+entryID.String(), nil, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// EnableRecur re-enables a disabled recurring entry.
func (c *Client) EnableRecur(ctx context.Context, entryID id.RecurID) (*recur.Entry, error) {
	return c.setRecurEnabled(ctx, entryID, "enable")
}

// DisableRecur pauses a recurring entry.
func (c *Client) DisableRecur(ctx context.Context, entryID id.RecurID) (*recur.Entry, error) {
	return c.setRecurEnabled(ctx, entryID, "disable")
}

func (c *Client) setRecurEnabled(ctx context.Context, entryID id.RecurID, action string) (*recur.Entry, error) {
	var entry recur.Entry
	if err := c.do(ctx, http.MethodPost, "/v1/recurs/"+entryID.String()+"/"+action, nil, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// DeleteRecur removes a recurring entry.
func (c *Client) DeleteRecur(ctx context.Context, entryID id.RecurID) error {
	return c.do(ctx, http.MethodDelete, "/v1/recurs/"+entryID.String(), nil, nil)
}
