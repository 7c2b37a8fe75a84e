package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/courier/id"
	"github.com/xraph/courier/item"
)

type enqueueItemRequest struct {
	Platform    string            `json:"platform"`
	Payload     item.Payload      `json:"payload"`
	Priority    string            `json:"priority,omitempty"`
	ScheduledAt *time.Time        `json:"scheduled_at,omitempty"`
	MaxRetries  int               `json:"max_retries,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func (a *API) enqueueItem(w http.ResponseWriter, r *http.Request) {
	var req enqueueItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.badRequest(w, "invalid request body")
		return
	}
	if req.Platform == "" {
		a.badRequest(w, "platform is required")
		return
	}

	opts := []item.Option{}
	if req.Priority != "" {
		priority, err := parsePriority(req.Priority)
		if err != nil {
			a.badRequest(w, err.Error())
			return
		}
		opts = append(opts, item.WithPriority(priority))
	}
	if req.ScheduledAt != nil {
		opts = append(opts, item.WithScheduledAt(*req.ScheduledAt))
	}
	if req.MaxRetries > 0 {
		opts = append(opts, item.WithMaxRetries(req.MaxRetries))
	}
	if len(req.Metadata) > 0 {
		opts = append(opts, item.WithMetadata(req.Metadata))
	}

	it, err := a.eng.EnqueueItem(r.Context(), req.Platform, req.Payload, opts...)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusCreated, it)
}

func (a *API) getItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := id.ParseItemID(chi.URLParam(r, "itemID"))
	if err != nil {
		a.badRequest(w, fmt.Sprintf("invalid item ID: %v", err))
		return
	}

	it, err := a.eng.GetItem(r.Context(), itemID)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusOK, it)
}

func (a *API) listItems(w http.ResponseWriter, r *http.Request) {
	status, err := parseStatus(r.URL.Query().Get("status"))
	if err != nil {
		a.badRequest(w, err.Error())
		return
	}

	items, err := a.eng.ListItems(r.Context(), status, item.ListOpts{
		Limit:    queryInt(r, "limit", defaultListLimit),
		Offset:   queryInt(r, "offset", 0),
		Platform: r.URL.Query().Get("platform"),
	})
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusOK, items)
}

func (a *API) cancelItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := id.ParseItemID(chi.URLParam(r, "itemID"))
	if err != nil {
		a.badRequest(w, fmt.Sprintf("invalid item ID: %v", err))
		return
	}

	it, err := a.eng.CancelItem(r.Context(), itemID)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusOK, it)
}

func (a *API) listAttempts(w http.ResponseWriter, r *http.Request) {
	itemID, err := id.ParseItemID(chi.URLParam(r, "itemID"))
	if err != nil {
		a.badRequest(w, fmt.Sprintf("invalid item ID: %v", err))
		return
	}

	attempts, err := a.eng.Attempts(r.Context(), itemID, queryInt(r, "limit", defaultListLimit))
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusOK, attempts)
}

func (a *API) postStatus(w http.ResponseWriter, r *http.Request) {
	itemID, err := id.ParseItemID(chi.URLParam(r, "itemID"))
	if err != nil {
		a.badRequest(w, fmt.Sprintf("invalid item ID: %v", err))
		return
	}

	status, err := a.eng.PostStatus(r.Context(), itemID)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusOK, status)
}

type batchPostStatusRequest struct {
	ItemIDs []string `json:"item_ids"`
}

func (a *API) batchPostStatus(w http.ResponseWriter, r *http.Request) {
	var req batchPostStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.badRequest(w, "invalid request body")
		return
	}
	if len(req.ItemIDs) == 0 {
		a.badRequest(w, "item_ids is required")
		return
	}

	itemIDs := make([]id.ItemID, len(req.ItemIDs))
	for i, raw := range req.ItemIDs {
		itemID, err := id.ParseItemID(raw)
		if err != nil {
			a.badRequest(w, fmt.Sprintf("invalid item ID %q: %v", raw, err))
			return
		}
		itemIDs[i] = itemID
	}

	statuses, err := a.eng.BatchPostStatus(r.Context(), itemIDs)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusOK, statuses)
}

type validateRequest struct {
	Platform string       `json:"platform"`
	Payload  item.Payload `json:"payload"`
}

func (a *API) validateContent(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.badRequest(w, "invalid request body")
		return
	}
	if req.Platform == "" {
		a.badRequest(w, "platform is required")
		return
	}

	result, err := a.eng.ValidateContent(r.Context(), req.Platform, req.Payload)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusOK, result)
}

func parsePriority(s string) (item.Priority, error) {
	switch s {
	case "low":
		return item.PriorityLow, nil
	case "", "normal":
		return item.PriorityNormal, nil
	case "high":
		return item.PriorityHigh, nil
	case "urgent":
		return item.PriorityUrgent, nil
	default:
		return 0, fmt.Errorf("unknown priority %q", s)
	}
}

func parseStatus(s string) (item.Status, error) {
	switch status := item.Status(s); status {
	case item.StatusPending, item.StatusProcessing, item.StatusPosted,
		item.StatusRetrying, item.StatusFailed, item.StatusQuarantined,
		item.StatusCancelled:
		return status, nil
	case "":
		return item.StatusPending, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}
