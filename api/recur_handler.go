package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/courier/engine"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/item"
	"github.com/xraph/courier/recur"
)

type createRecurRequest struct {
	Name        string       `json:"name"`
	Schedule    string       `json:"schedule"`
	Platform    string       `json:"platform"`
	Payload     item.Payload `json:"payload"`
	Priority    string       `json:"priority,omitempty"`
	MaxRetries  int          `json:"max_retries,omitempty"`
	ScopeUserID string       `json:"scope_user_id,omitempty"`
	ScopeTeamID string       `json:"scope_team_id,omitempty"`
}

func (a *API) createRecur(w http.ResponseWriter, r *http.Request) {
	var req createRecurRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.badRequest(w, "invalid request body")
		return
	}
	if req.Name == "" || req.Schedule == "" || req.Platform == "" {
		a.badRequest(w, "name, schedule and platform are required")
		return
	}

	if _, err := recur.ParseSchedule(req.Schedule); err != nil {
		a.badRequest(w, fmt.Sprintf("invalid schedule %q: %v", req.Schedule, err))
		return
	}

	priority, err := parsePriority(req.Priority)
	if err != nil {
		a.badRequest(w, err.Error())
		return
	}

	entry, err := a.eng.RegisterRecur(r.Context(), engine.RecurDefinition{
		Name:        req.Name,
		Schedule:    req.Schedule,
		Platform:    req.Platform,
		Payload:     req.Payload,
		Priority:    priority,
		MaxRetries:  req.MaxRetries,
		ScopeUserID: req.ScopeUserID,
		ScopeTeamID: req.ScopeTeamID,
	})
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusCreated, entry)
}

func (a *API) listRecurs(w http.ResponseWriter, r *http.Request) {
	entries, err := a.eng.ListRecurs(r.Context())
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusOK, entries)
}

func (a *API) getRecur(w http.ResponseWriter, r *http.Request) {
	entryID, err := id.ParseRecurID(chi.URLParam(r, "recurID"))
	if err != nil {
		a.badRequest(w, fmt.Sprintf("invalid recurring entry ID: %v", err))
		return
	}

	entry, err := a.eng.GetRecur(r.Context(), entryID)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusOK, entry)
}

func (a *API) enableRecur(w http.ResponseWriter, r *http.Request) {
	a.setRecurEnabled(w, r, true)
}

func (a *API) disableRecur(w http.ResponseWriter, r *http.Request) {
	a.setRecurEnabled(w, r, false)
}

func (a *API) setRecurEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	entryID, err := id.ParseRecurID(chi.URLParam(r, "recurID"))
	if err != nil {
		a.badRequest(w, fmt.Sprintf("invalid recurring entry ID: %v", err))
		return
	}

	entry, err := a.eng.SetRecurEnabled(r.Context(), entryID, enabled)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusOK, entry)
}

func (a *API) deleteRecur(w http.ResponseWriter, r *http.Request) {
	entryID, err := id.ParseRecurID(chi.URLParam(r, "recurID"))
	if err != nil {
		a.badRequest(w, fmt.Sprintf("invalid recurring entry ID: %v", err))
		return
	}

	if err := a.eng.DeleteRecur(r.Context(), entryID); err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusNoContent, nil)
}
