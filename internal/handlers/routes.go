package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mpetrov/harmonia/internal/constants"
	"github.com/mpetrov/harmonia/internal/domain"
	"github.com/mpetrov/harmonia/internal/store"
	"github.com/mpetrov/harmonia/internal/tasks"
)

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		h.respondError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// FollowArtist marks the artist followed, subscribes it for periodic sync and
// queues the first sync. The artist row, subscription and job commit together.
func (h *Handler) FollowArtist(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	artist, err := h.catalog.GetArtist(ctx, id)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}

	var job *domain.Job
	err = h.db.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.UpsertArtist(ctx, &domain.Artist{
			ID:         artist.ID,
			Name:       artist.Name,
			Thumbnails: artist.Thumbnails,
		}); err != nil {
			return err
		}
		if err := tx.SubscribeArtist(ctx, artist.ID, domain.ArtistSubModeFull, nil); err != nil {
			return err
		}
		job, err = tx.EnqueueTx(ctx, domain.JobTypeSyncArtist,
			tasks.SyncArtistPayload{ArtistID: artist.ID},
			store.EnqueueOpts{Priority: constants.PrioritySyncArtist})
		return err
	})
	if err != nil {
		h.respondStoreError(w, err)
		return
	}

	h.log.Info("artist followed", "artist_id", artist.ID, "name", artist.Name)
	h.respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"artist_id": artist.ID,
		"job_id":    job.ID,
	})
}

func (h *Handler) UnfollowArtist(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	err := h.db.WithTx(ctx, func(tx *store.Tx) error {
		return tx.UnsubscribeArtist(ctx, id)
	})
	if err != nil {
		h.respondStoreError(w, err)
		return
	}

	h.log.Info("artist unfollowed", "artist_id", id)
	h.respondJSON(w, http.StatusOK, map[string]string{"artist_id": id})
}

func (h *Handler) ListArtists(w http.ResponseWriter, r *http.Request) {
	artists, err := h.db.ListFollowedArtists(r.Context())
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"artists": artists})
}

type subscribeAlbumQuery struct {
	ArtistID string `form:"artist_id"`
	Mode     string `form:"mode"`
}

// SubscribeAlbum records the download intent for an album and queues the
// import that fans out into per-track downloads.
func (h *Handler) SubscribeAlbum(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	var q subscribeAlbumQuery
	if err := h.decodeQuery(r, &q); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if q.Mode == "" {
		q.Mode = domain.AlbumSubModeDownload
	}

	album, err := h.catalog.GetAlbum(ctx, id)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}

	artistID := q.ArtistID
	if artistID == "" {
		artistID = album.ArtistID
	}

	var job *domain.Job
	err = h.db.WithTx(ctx, func(tx *store.Tx) error {
		a := &domain.Album{
			ID:         album.ID,
			Title:      album.Title,
			Type:       album.Type,
			Thumbnails: album.Thumbnails,
		}
		if artistID != "" {
			// Subscribing to an album by an artist who was never synced
			// still needs an artist row to reference.
			if err := tx.EnsureArtist(ctx, artistID, album.ArtistName); err != nil {
				return err
			}
			a.ArtistID = &artistID
		}
		if album.PlaylistID != "" {
			a.PlaylistID = &album.PlaylistID
		}
		if album.Year != "" {
			a.Year = &album.Year
		}
		if err := tx.UpsertAlbum(ctx, a); err != nil {
			return err
		}

		var subArtist *string
		if artistID != "" {
			subArtist = &artistID
		}
		if err := tx.SubscribeAlbum(ctx, album.ID, subArtist, q.Mode); err != nil {
			return err
		}

		job, err = tx.EnqueueTx(ctx, domain.JobTypeImportAlbum,
			tasks.ImportAlbumPayload{AlbumID: album.ID, ArtistID: artistID},
			store.EnqueueOpts{Priority: constants.PriorityImportAlbum})
		return err
	})
	if err != nil {
		h.respondStoreError(w, err)
		return
	}

	h.log.Info("album subscribed", "album_id", album.ID, "title", album.Title)
	h.respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"album_id": album.ID,
		"job_id":   job.ID,
	})
}

type listJobsQuery struct {
	Status string `form:"status"`
	Limit  int    `form:"limit"`
}

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	var q listJobsQuery
	if err := h.decodeQuery(r, &q); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobs, err := h.db.ListJobs(r.Context(), domain.JobStatus(q.Status), q.Limit)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

func (h *Handler) JobStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.Stats(r.Context())
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, stats)
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	job, err := h.db.GetJob(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, job)
}

func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	cancelled, err := h.db.Cancel(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	if !cancelled {
		h.respondError(w, http.StatusConflict, "job is not cancellable")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"job_id": id, "cancelled": true})
}

func (h *Handler) RetryJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	retried, err := h.db.Retry(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	if !retried {
		h.respondError(w, http.StatusConflict, "job is not retryable")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"job_id": id, "retried": true})
}

type requeueStaleQuery struct {
	OlderThanMinutes int `form:"older_than_minutes"`
}

// RequeueStale is the operator path after a worker crash: reserved jobs whose
// worker never came back are returned to the queue.
func (h *Handler) RequeueStale(w http.ResponseWriter, r *http.Request) {
	var q requeueStaleQuery
	if err := h.decodeQuery(r, &q); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if q.OlderThanMinutes <= 0 {
		q.OlderThanMinutes = 30
	}

	n, err := h.db.RequeueStale(r.Context(),
		time.Duration(q.OlderThanMinutes)*time.Minute, time.Now())
	if err != nil {
		h.respondStoreError(w, err)
		return
	}

	if n > 0 {
		h.log.Info("requeued stale jobs", "count", n)
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"requeued": n})
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.db.ListSettings(r.Context())
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"settings": settings})
}

type putSettingRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (h *Handler) PutSetting(w http.ResponseWriter, r *http.Request) {
	var req putSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Key == "" {
		h.respondError(w, http.StatusBadRequest, "key is required")
		return
	}

	if err := h.db.SetSetting(r.Context(), req.Key, req.Value); err != nil {
		if store.IsNotFound(err) {
			h.respondError(w, http.StatusBadRequest, "unknown setting key")
			return
		}
		h.respondStoreError(w, err)
		return
	}

	setting, err := h.db.GetSetting(r.Context(), req.Key)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, setting)
}

type searchQuery struct {
	Q    string `form:"q"`
	Type string `form:"type"`
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var q searchQuery
	if err := h.decodeQuery(r, &q); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if q.Q == "" {
		h.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	if q.Type == "" {
		q.Type = "album"
	}

	results, err := h.catalog.Search(r.Context(), q.Q, q.Type)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, results)
}

type chartsQuery struct {
	Country string `form:"country"`
}

func (h *Handler) Charts(w http.ResponseWriter, r *http.Request) {
	var q chartsQuery
	if err := h.decodeQuery(r, &q); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	charts, err := h.catalog.GetCharts(r.Context(), q.Country)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, charts)
}
