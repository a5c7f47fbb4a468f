package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/mpetrov/harmonia/internal/catalog"
	"github.com/mpetrov/harmonia/internal/constants"
	"github.com/mpetrov/harmonia/internal/domain"
	"github.com/mpetrov/harmonia/internal/filesystem"
	"github.com/mpetrov/harmonia/internal/store"
)

// ImportAlbum materializes one album's track list into the catalog and queues
// downloads for tracks that still need a file. Track ids come from the album
// page (video ids); when the album's audio playlist lists a matching track at
// the same position, the audio id replaces the video id.
func (t *Tasks) ImportAlbum(ctx context.Context, payload json.RawMessage) Result {
	var p ImportAlbumPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.AlbumID == "" {
		return failTerminal(fmt.Errorf("invalid import_album payload: %v", err))
	}
	log := t.log.With("album_id", p.AlbumID)

	album, err := t.catalog.GetAlbum(ctx, p.AlbumID)
	if err != nil {
		return failRetry(fmt.Errorf("fetch album: %w", err), constants.RetryDelayImportAlbum)
	}

	var playlist []catalog.Track
	if album.PlaylistID != "" {
		playlist, err = t.catalog.GetPlaylist(ctx, album.PlaylistID)
		if err != nil {
			// The album page alone is enough to import; video ids still
			// download, just less cleanly.
			log.Warn("audio playlist unavailable, using video ids", "error", err)
			playlist = nil
		}
	}

	artistID := p.ArtistID
	if artistID == "" {
		artistID = album.ArtistID
	}

	err = t.db.WithTx(ctx, func(tx *store.Tx) error {
		a := &domain.Album{
			ID:         album.ID,
			Title:      album.Title,
			Type:       album.Type,
			Thumbnails: album.Thumbnails,
		}
		if artistID != "" {
			// The artist may never have been synced; the album row still
			// needs something to reference.
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
		return tx.UpsertAlbum(ctx, a)
	})
	if err != nil {
		return failRetry(fmt.Errorf("store album: %w", err), constants.RetryDelayImportAlbum)
	}

	if err := t.saveCover(ctx, album); err != nil {
		log.Warn("failed to save album cover", "error", err)
	}

	queued := 0
	for i, ct := range album.Tracks {
		trackID := ct.ID
		if i < len(playlist) {
			trackID = preferAudioID(ct.Title, ct.ID, playlist[i].Title, playlist[i].ID)
		}

		var needsDownload bool
		err := t.db.WithTx(ctx, func(tx *store.Tx) error {
			needsDownload = false

			track := &domain.Track{
				ID:          trackID,
				Title:       ct.Title,
				Artists:     ct.Artists,
				AlbumID:     &album.ID,
				TrackNumber: i + 1,
				ArtistValid: true,
			}
			if ct.Duration > 0 {
				d := ct.Duration
				track.Duration = &d
			}
			if err := tx.UpsertTrack(ctx, track); err != nil {
				return err
			}

			// The upsert keeps local state, so re-read to see whether a
			// file already exists from an earlier import.
			stored, err := tx.GetTrack(ctx, trackID)
			if err != nil {
				return err
			}
			if stored.Status == domain.TrackStatusNew || stored.Status == domain.TrackStatusFailed {
				needsDownload = true
				_, err = tx.EnqueueTx(ctx, domain.JobTypeDownloadTrack,
					DownloadTrackPayload{TrackID: trackID, AlbumID: album.ID, ArtistID: artistID},
					store.EnqueueOpts{Priority: constants.PriorityDownload})
				if err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			log.Error("failed to stage track", "track_id", trackID, "error", err)
			continue
		}
		if needsDownload {
			queued++
		}
	}

	err = t.db.WithTx(ctx, func(tx *store.Tx) error {
		_, err := tx.RefreshAlbumDownloadStatus(ctx, album.ID)
		return err
	})
	if err != nil {
		log.Warn("failed to refresh album status", "error", err)
	}

	log.Info("album imported", "title", album.Title, "tracks", len(album.Tracks), "queued", queued)
	return ok(map[string]interface{}{
		"album":  album.Title,
		"tracks": len(album.Tracks),
		"queued": queued,
	})
}

// saveCover downloads the album cover into the covers directory and records
// its path. Cover art is cosmetic; failures never fail the import.
func (t *Tasks) saveCover(ctx context.Context, album *catalog.AlbumDetail) error {
	url := catalog.PickBestThumbnailURL(album.Thumbnails)
	if url == "" {
		return nil
	}

	data, err := t.catalog.DownloadImage(ctx, url)
	if err != nil {
		return err
	}

	path := filepath.Join(t.cfg.CoversDir(), filesystem.SafeName(album.ID)+".jpg")
	if err := filesystem.WriteFile(path, data); err != nil {
		return err
	}

	return t.db.WithTx(ctx, func(tx *store.Tx) error {
		return tx.SetAlbumImage(ctx, album.ID, path)
	})
}
