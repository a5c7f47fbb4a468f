// Package handlers is the HTTP surface over the catalog store and job queue.
// Handlers stay thin: validate, write through the store, enqueue, respond.
// All the real work happens in task handlers off the queue.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/form/v4"

	"github.com/mpetrov/harmonia/internal/catalog"
	"github.com/mpetrov/harmonia/internal/logger"
	"github.com/mpetrov/harmonia/internal/store"
)

type Handler struct {
	db      *store.DB
	catalog catalog.Client
	log     *logger.Logger
	decoder *form.Decoder
}

func NewHandler(db *store.DB, cat catalog.Client, log *logger.Logger) *Handler {
	return &Handler{
		db:      db,
		catalog: cat,
		log:     log.WithComponent("http"),
		decoder: form.NewDecoder(),
	}
}

// Router builds the full chi router with middleware.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	h.RegisterRoutes(r)
	return r
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Healthz)

	r.Route("/api", func(r chi.Router) {
		r.Post("/artists/{id}/follow", h.FollowArtist)
		r.Delete("/artists/{id}/follow", h.UnfollowArtist)
		r.Get("/artists", h.ListArtists)

		r.Post("/albums/{id}/subscribe", h.SubscribeAlbum)

		r.Get("/jobs", h.ListJobs)
		r.Get("/jobs/stats", h.JobStats)
		r.Post("/jobs/requeue-stale", h.RequeueStale)
		r.Get("/jobs/{id}", h.GetJob)
		r.Post("/jobs/{id}/cancel", h.CancelJob)
		r.Post("/jobs/{id}/retry", h.RetryJob)

		r.Get("/settings", h.GetSettings)
		r.Put("/settings", h.PutSetting)

		r.Get("/search", h.Search)
		r.Get("/charts", h.Charts)
	})
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, msg string) {
	h.respondJSON(w, status, map[string]string{"error": msg})
}

// respondStoreError maps store and catalog errors to status codes.
func (h *Handler) respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case store.IsNotFound(err), errors.Is(err, catalog.ErrNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	case store.IsConstraint(err):
		h.respondError(w, http.StatusConflict, err.Error())
	default:
		h.log.Error("request failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// decodeQuery fills dst from the request's query string.
func (h *Handler) decodeQuery(r *http.Request, dst interface{}) error {
	return h.decoder.Decode(dst, r.URL.Query())
}
