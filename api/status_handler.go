package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (a *API) queueStatus(w http.ResponseWriter, r *http.Request) {
	status, err := a.eng.QueueStatus(r.Context())
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusOK, status)
}

func (a *API) healthReport(w http.ResponseWriter, r *http.Request) {
	a.respond(w, http.StatusOK, a.eng.HealthReport(r.Context()))
}

func (a *API) attemptStats(w http.ResponseWriter, r *http.Request) {
	platformName := chi.URLParam(r, "platform")
	if platformName == "" {
		a.badRequest(w, "platform is required")
		return
	}
	if _, err := a.eng.Adapters().Get(platformName); err != nil {
		a.respondError(w, err)
		return
	}

	stats, err := a.eng.AttemptStats(r.Context(), platformName)
	if err != nil {
		a.respondError(w, fmt.Errorf("attempt stats for %s: %w", platformName, err))
		return
	}
	a.respond(w, http.StatusOK, stats)
}
