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

// SyncArtist refreshes one artist from the catalog: identity, backdrop image
// and the album list. Known albums only get their metadata refreshed; a new
// release additionally gets a download subscription and its own import job,
// so re-running a sync with nothing new enqueues nothing. Album state is
// committed per album so a failure partway leaves earlier albums imported.
func (t *Tasks) SyncArtist(ctx context.Context, payload json.RawMessage) Result {
	var p SyncArtistPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.ArtistID == "" {
		return failTerminal(fmt.Errorf("invalid sync_artist payload: %v", err))
	}
	log := t.log.With("artist_id", p.ArtistID)

	artist, err := t.catalog.GetArtist(ctx, p.ArtistID)
	if err != nil {
		t.recordSyncError(ctx, p.ArtistID, err)
		return failRetry(fmt.Errorf("fetch artist: %w", err), constants.RetryDelaySyncArtist)
	}

	// Snapshot before this sync writes anything; it decides which releases
	// count as new.
	prior, err := t.db.GetArtist(ctx, p.ArtistID)
	if err != nil && !store.IsNotFound(err) {
		return failRetry(fmt.Errorf("load artist: %w", err), constants.RetryDelaySyncArtist)
	}
	existing, err := t.db.AlbumsForArtist(ctx, p.ArtistID)
	if err != nil {
		return failRetry(fmt.Errorf("list known albums: %w", err), constants.RetryDelaySyncArtist)
	}
	known := make(map[string]bool, len(existing))
	for _, a := range existing {
		known[a.ID] = true
	}

	err = t.db.WithTx(ctx, func(tx *store.Tx) error {
		return tx.UpsertArtist(ctx, &domain.Artist{
			ID:         artist.ID,
			Name:       artist.Name,
			Thumbnails: artist.Thumbnails,
		})
	})
	if err != nil {
		return failRetry(fmt.Errorf("store artist: %w", err), constants.RetryDelaySyncArtist)
	}

	// The backdrop is part of the contract: a followed artist without an
	// image is half-synced, so a download failure fails the job.
	if err := t.saveBackdrop(ctx, artist, prior); err != nil {
		t.recordSyncError(ctx, p.ArtistID, err)
		return failRetry(fmt.Errorf("artist backdrop: %w", err), constants.RetryDelayBanner)
	}

	newReleases := 0
	for _, album := range artist.Albums {
		album := album
		isNew := !known[album.ID]
		err := t.db.WithTx(ctx, func(tx *store.Tx) error {
			a := &domain.Album{
				ID:         album.ID,
				Title:      album.Title,
				Type:       album.Type,
				ArtistID:   &artist.ID,
				Thumbnails: album.Thumbnails,
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
			if !isNew {
				return nil
			}

			if err := tx.SubscribeAlbum(ctx, album.ID, &artist.ID, domain.AlbumSubModeDownload); err != nil {
				return err
			}
			_, err := tx.EnqueueTx(ctx, domain.JobTypeImportAlbum,
				ImportAlbumPayload{AlbumID: album.ID, ArtistID: artist.ID},
				store.EnqueueOpts{Priority: constants.PriorityImportAlbum})
			return err
		})
		if err != nil {
			log.Error("failed to stage album import", "album_id", album.ID, "error", err)
			continue
		}
		if isNew {
			newReleases++
		}
	}

	err = t.db.WithTx(ctx, func(tx *store.Tx) error {
		return tx.MarkArtistSynced(ctx, p.ArtistID, nil)
	})
	if err != nil && !store.IsNotFound(err) {
		log.Warn("failed to stamp sync time", "error", err)
	}

	log.Info("artist synced", "name", artist.Name,
		"albums", len(artist.Albums), "new", newReleases)
	return ok(map[string]interface{}{
		"artist": artist.Name,
		"albums": len(artist.Albums),
		"new":    newReleases,
	})
}

// saveBackdrop downloads the artist image, skipping the fetch when the stored
// thumbnail set is unchanged and the previous file is still on disk.
func (t *Tasks) saveBackdrop(ctx context.Context, artist *catalog.Artist, prior *domain.Artist) error {
	url := catalog.PickBestThumbnailURL(artist.Thumbnails)
	if url == "" {
		return nil
	}
	if prior != nil && prior.ImageLocal != nil && filesystem.Exists(*prior.ImageLocal) &&
		thumbnailsEqual(prior.Thumbnails, artist.Thumbnails) {
		return nil
	}

	data, err := t.catalog.DownloadImage(ctx, url)
	if err != nil {
		return err
	}

	dir := filepath.Join(t.cfg.MusicDir, filesystem.SafeName(artist.Name))
	path := filepath.Join(dir, constants.BackdropName)
	if err := filesystem.WriteFile(path, data); err != nil {
		return err
	}

	return t.db.WithTx(ctx, func(tx *store.Tx) error {
		return tx.SetArtistImage(ctx, artist.ID, path)
	})
}

func thumbnailsEqual(a, b domain.Thumbnails) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (t *Tasks) recordSyncError(ctx context.Context, artistID string, cause error) {
	msg := cause.Error()
	err := t.db.WithTx(ctx, func(tx *store.Tx) error {
		return tx.MarkArtistSynced(ctx, artistID, &msg)
	})
	if err != nil && !store.IsNotFound(err) {
		t.log.Warn("failed to record sync error", "artist_id", artistID, "error", err)
	}
}
