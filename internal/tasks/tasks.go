// Package tasks implements the background job handlers: artist sync, album
// import, track download and lyrics fetch. Each handler is a unit of work
// executed by a worker; handlers report their outcome through Result and the
// worker translates that into the queue state transition.
package tasks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mpetrov/harmonia/internal/catalog"
	"github.com/mpetrov/harmonia/internal/config"
	"github.com/mpetrov/harmonia/internal/domain"
	"github.com/mpetrov/harmonia/internal/extractor"
	"github.com/mpetrov/harmonia/internal/logger"
	"github.com/mpetrov/harmonia/internal/lyrics"
	"github.com/mpetrov/harmonia/internal/store"
)

// Result is a handler outcome. A nil Err is success. With Err set, a non-nil
// RetryDelay asks for a delayed requeue; a nil RetryDelay makes the failure
// terminal immediately.
type Result struct {
	Err        error
	RetryDelay *time.Duration
	Extra      map[string]interface{}
}

func ok(extra map[string]interface{}) Result {
	return Result{Extra: extra}
}

func failRetry(err error, delay time.Duration) Result {
	return Result{Err: err, RetryDelay: &delay}
}

func failTerminal(err error) Result {
	return Result{Err: err}
}

// Handler executes one job given its raw payload.
type Handler func(ctx context.Context, payload json.RawMessage) Result

// Tasks wires the handlers to their collaborators.
type Tasks struct {
	db        *store.DB
	catalog   catalog.Client
	extractor extractor.Extractor
	lyrics    lyrics.Client
	cfg       *config.Config
	log       *logger.Logger
}

func New(db *store.DB, cat catalog.Client, ext extractor.Extractor, lyr lyrics.Client, cfg *config.Config, log *logger.Logger) *Tasks {
	return &Tasks{
		db:        db,
		catalog:   cat,
		extractor: ext,
		lyrics:    lyr,
		cfg:       cfg,
		log:       log.WithComponent("tasks"),
	}
}

// Handlers returns the dispatch table keyed by job type.
func (t *Tasks) Handlers() map[string]Handler {
	return map[string]Handler{
		domain.JobTypeSyncArtist:     t.SyncArtist,
		domain.JobTypeImportAlbum:    t.ImportAlbum,
		domain.JobTypeDownloadTrack:  t.DownloadTrack,
		domain.JobTypeDownloadLyrics: t.DownloadLyrics,
	}
}

// Payloads for the four job types.

type SyncArtistPayload struct {
	ArtistID string `json:"artist_id"`
}

type ImportAlbumPayload struct {
	AlbumID  string `json:"album_id"`
	ArtistID string `json:"artist_id,omitempty"`
}

// DownloadTrackPayload carries optional album and artist ids as fallbacks for
// tracks whose stored row lacks the links, so filing and tagging still get
// their context.
type DownloadTrackPayload struct {
	TrackID  string `json:"track_id"`
	AlbumID  string `json:"album_id,omitempty"`
	ArtistID string `json:"artist_id,omitempty"`
}

type DownloadLyricsPayload struct {
	TrackID string `json:"track_id"`
}
