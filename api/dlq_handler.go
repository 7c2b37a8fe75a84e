package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/courier/dlq"
	"github.com/xraph/courier/id"
)

func (a *API) listDLQ(w http.ResponseWriter, r *http.Request) {
	entries, err := a.eng.DLQ().List(r.Context(), dlq.ListOpts{
		Limit:      queryInt(r, "limit", defaultListLimit),
		Offset:     queryInt(r, "offset", 0),
		Platform:   r.URL.Query().Get("platform"),
		Unresolved: r.URL.Query().Get("unresolved") == "true",
	})
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusOK, entries)
}

func (a *API) getDLQ(w http.ResponseWriter, r *http.Request) {
	entryID, err := id.ParseDLQID(chi.URLParam(r, "entryID"))
	if err != nil {
		a.badRequest(w, fmt.Sprintf("invalid DLQ entry ID: %v", err))
		return
	}

	entry, err := a.eng.DLQ().Get(r.Context(), entryID)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusOK, entry)
}

type dlqCountResponse struct {
	Count int64 `json:"count"`
}

func (a *API) countDLQ(w http.ResponseWriter, r *http.Request) {
	count, err := a.eng.DLQ().Count(r.Context(), dlq.CountOpts{
		Platform:   r.URL.Query().Get("platform"),
		Unresolved: r.URL.Query().Get("unresolved") == "true",
	})
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusOK, dlqCountResponse{Count: count})
}

type resolveRequest struct {
	Notes string `json:"notes,omitempty"`
}

func (a *API) resolveDLQ(w http.ResponseWriter, r *http.Request) {
	entryID, err := id.ParseDLQID(chi.URLParam(r, "entryID"))
	if err != nil {
		a.badRequest(w, fmt.Sprintf("invalid DLQ entry ID: %v", err))
		return
	}

	var req resolveRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			a.badRequest(w, "invalid request body")
			return
		}
	}

	if err := a.eng.Resolve(r.Context(), entryID, req.Notes); err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusNoContent, nil)
}

func (a *API) retryDLQ(w http.ResponseWriter, r *http.Request) {
	entryID, err := id.ParseDLQID(chi.URLParam(r, "entryID"))
	if err != nil {
		a.badRequest(w, fmt.Sprintf("invalid DLQ entry ID: %v", err))
		return
	}

	var req resolveRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			a.badRequest(w, "invalid request body")
			return
		}
	}

	replacement, err := a.eng.RetryFromDeadLetter(r.Context(), entryID, req.Notes)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusCreated, replacement)
}

func (a *API) deleteDLQ(w http.ResponseWriter, r *http.Request) {
	entryID, err := id.ParseDLQID(chi.URLParam(r, "entryID"))
	if err != nil {
		a.badRequest(w, fmt.Sprintf("invalid DLQ entry ID: %v", err))
		return
	}

	if err := a.eng.DeleteFromDeadLetter(r.Context(), entryID, r.URL.Query().Get("notes")); err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusNoContent, nil)
}

type bulkActionRequest struct {
	EntryIDs []string `json:"entry_ids"`
	Action   string   `json:"action"`
	Notes    string   `json:"notes,omitempty"`
}

func (a *API) bulkDLQ(w http.ResponseWriter, r *http.Request) {
	var req bulkActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.badRequest(w, "invalid request body")
		return
	}

	action, err := dlq.ParseAction(req.Action)
	if err != nil {
		a.badRequest(w, err.Error())
		return
	}

	entryIDs := make([]id.DLQID, 0, len(req.EntryIDs))
	for _, raw := range req.EntryIDs {
		entryID, parseErr := id.ParseDLQID(raw)
		if parseErr != nil {
			a.badRequest(w, fmt.Sprintf("invalid DLQ entry ID %q: %v", raw, parseErr))
			return
		}
		entryIDs = append(entryIDs, entryID)
	}

	result, err := a.eng.BulkAction(r.Context(), entryIDs, action, req.Notes)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusOK, result)
}

type purgeRequest struct {
	// OlderThan is a Go duration string; entries resolved before
	// now-OlderThan are removed. Defaults to 720h (30 days).
	OlderThan string `json:"older_than,omitempty"`
}

type purgeResponse struct {
	Purged int64 `json:"purged"`
}

func (a *API) purgeDLQ(w http.ResponseWriter, r *http.Request) {
	olderThan := 30 * 24 * time.Hour

	var req purgeRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			a.badRequest(w, "invalid request body")
			return
		}
	}
	if req.OlderThan != "" {
		d, err := time.ParseDuration(req.OlderThan)
		if err != nil || d <= 0 {
			a.badRequest(w, fmt.Sprintf("invalid older_than duration %q", req.OlderThan))
			return
		}
		olderThan = d
	}

	count, err := a.eng.PurgeDeadLetters(r.Context(), time.Now().UTC().Add(-olderThan))
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusOK, purgeResponse{Purged: count})
}
