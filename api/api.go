package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/courier"
	"github.com/xraph/courier/engine"
)

const defaultListLimit = 50

// API wires all HTTP handlers for a Courier engine.
type API struct {
	eng    *engine.Engine
	logger *slog.Logger
}

// New creates an API from a Courier engine.
func New(eng *engine.Engine, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{eng: eng, logger: logger.With(slog.String("component", "api"))}
}

// Router returns the fully assembled http.Handler with all routes
// mounted under /v1.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	a.RegisterRoutes(r)
	return r
}

// RegisterRoutes mounts all Courier routes on the given chi router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Route("/items", func(r chi.Router) {
			r.Post("/", a.enqueueItem)
			r.Get("/", a.listItems)
			r.Get("/{itemID}", a.getItem)
			r.Post("/{itemID}/cancel", a.cancelItem)
			r.Get("/{itemID}/attempts", a.listAttempts)
			r.Get("/{itemID}/post-status", a.postStatus)
			r.Post("/post-status", a.batchPostStatus)
		})

		r.Post("/validate", a.validateContent)

		r.Route("/dlq", func(r chi.Router) {
			r.Get("/", a.listDLQ)
			r.Get("/count", a.countDLQ)
			r.Post("/bulk", a.bulkDLQ)
			r.Post("/purge", a.purgeDLQ)
			r.Get("/{entryID}", a.getDLQ)
			r.Post("/{entryID}/resolve", a.resolveDLQ)
			r.Post("/{entryID}/retry", a.retryDLQ)
			r.Delete("/{entryID}", a.deleteDLQ)
		})

		r.Route("/recurs", func(r chi.Router) {
			r.Post("/", a.createRecur)
			r.Get("/", a.listRecurs)
			r.Get("/{recurID}", a.getRecur)
			r.Post("/{recurID}/enable", a.enableRecur)
			r.Post("/{recurID}/disable", a.disableRecur)
			r.Delete("/{recurID}", a.deleteRecur)
		})

		r.Get("/queue", a.queueStatus)
		r.Get("/health", a.healthReport)
		r.Get("/stats/{platform}", a.attemptStats)

		r.Get("/stream", a.stream)
	})
}

// ──────────────────────────────────────────────────
// Responses
// ──────────────────────────────────────────────────

type errorResponse struct {
	Error string `json:"error"`
}

func (a *API) respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func (a *API) respondError(w http.ResponseWriter, err error) {
	a.respond(w, statusForError(err), errorResponse{Error: err.Error()})
}

// statusForError maps Courier sentinel errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, courier.ErrItemNotFound),
		errors.Is(err, courier.ErrDLQNotFound),
		errors.Is(err, courier.ErrRecurNotFound),
		errors.Is(err, courier.ErrBreakerNotFound):
		return http.StatusNotFound
	case engine.IsDuplicate(err),
		errors.Is(err, courier.ErrInvalidState),
		errors.Is(err, courier.ErrAlreadyResolved):
		return http.StatusConflict
	case errors.Is(err, courier.ErrInvalidContent):
		return http.StatusUnprocessableEntity
	case errors.Is(err, courier.ErrAdapterUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, courier.ErrNoAdapter):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) badRequest(w http.ResponseWriter, msg string) {
	a.respond(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
