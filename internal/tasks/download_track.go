package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mpetrov/harmonia/internal/constants"
	"github.com/mpetrov/harmonia/internal/domain"
	"github.com/mpetrov/harmonia/internal/extractor"
	"github.com/mpetrov/harmonia/internal/filesystem"
	"github.com/mpetrov/harmonia/internal/logger"
	"github.com/mpetrov/harmonia/internal/store"
	"github.com/mpetrov/harmonia/internal/tagging"
)

// DownloadTrack extracts one track's audio and files it into the library.
// Stages: claim the track, extract, move into place and record, then tag and
// queue lyrics. The first three stages fail the job; tagging and cover
// placement are best-effort extras on an already-complete download.
func (t *Tasks) DownloadTrack(ctx context.Context, payload json.RawMessage) Result {
	var p DownloadTrackPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.TrackID == "" {
		return failTerminal(fmt.Errorf("invalid download_track payload: %v", err))
	}

	track, album, artist, err := t.loadTrackContext(ctx, p.TrackID, p.AlbumID, p.ArtistID)
	if err != nil {
		if store.IsNotFound(err) {
			return failTerminal(fmt.Errorf("track %s not in catalog: %w", p.TrackID, err))
		}
		return failRetry(err, constants.RetryDelayExtractor)
	}
	log := t.log.WithTrack(track.ID, track.Title)

	// Already on disk from an earlier run.
	if track.Status == domain.TrackStatusDone && track.FilePath != nil && filesystem.Exists(*track.FilePath) {
		log.Info("track already downloaded", "file", *track.FilePath)
		return ok(map[string]interface{}{"file": *track.FilePath, "skipped": true})
	}

	err = t.db.WithTx(ctx, func(tx *store.Tx) error {
		return tx.SetTrackStatus(ctx, track.ID, domain.TrackStatusDownloading)
	})
	if err != nil {
		return failRetry(fmt.Errorf("claim track: %w", err), constants.RetryDelayExtractor)
	}

	extracted, err := t.extract(ctx, track, album, artist)
	if err != nil {
		t.markTrackFailed(ctx, track)
		if extractor.IsRateLimited(err) {
			return failRetry(err, constants.RetryDelayRateLimited)
		}
		return failRetry(err, constants.RetryDelayExtractor)
	}

	finalPath, err := t.fileIntoLibrary(ctx, track, album, artist, extracted.AudioPath)
	if err != nil {
		os.Remove(extracted.AudioPath)
		t.removeStagedCover(extracted.CoverPath)
		t.markTrackFailed(ctx, track)
		return failRetry(fmt.Errorf("file into library: %w", err), constants.RetryDelayExtractor)
	}

	// From here on the download is complete; cosmetic failures only get
	// logged.
	if err := t.tagTrack(ctx, track, album, artist, finalPath, extracted.CoverPath); err != nil {
		log.Warn("failed to tag track", "error", err)
	}
	t.placeCover(filepath.Dir(finalPath), extracted.CoverPath, log)

	err = t.db.WithTx(ctx, func(tx *store.Tx) error {
		_, err := tx.EnqueueTx(ctx, domain.JobTypeDownloadLyrics,
			DownloadLyricsPayload{TrackID: track.ID},
			store.EnqueueOpts{Priority: constants.PriorityDownload})
		return err
	})
	if err != nil {
		log.Warn("failed to queue lyrics job", "error", err)
	}

	t.refreshAlbumStatus(ctx, track)

	log.Info("track downloaded", "file", finalPath)
	return ok(map[string]interface{}{"file": finalPath})
}

// loadTrackContext resolves the track plus its album and artist. The album and
// artist ids from the payload fill in when the stored rows lack the links.
func (t *Tasks) loadTrackContext(ctx context.Context, trackID, albumIDHint, artistIDHint string) (*domain.Track, *domain.Album, *domain.Artist, error) {
	track, err := t.db.GetTrack(ctx, trackID)
	if err != nil {
		return nil, nil, nil, err
	}

	albumID := albumIDHint
	if track.AlbumID != nil {
		albumID = *track.AlbumID
	}
	var album *domain.Album
	if albumID != "" {
		if album, err = t.db.GetAlbum(ctx, albumID); err != nil && !store.IsNotFound(err) {
			return nil, nil, nil, err
		}
	}

	artistID := artistIDHint
	if album != nil && album.ArtistID != nil {
		artistID = *album.ArtistID
	}
	var artist *domain.Artist
	if artistID != "" {
		if artist, err = t.db.GetArtist(ctx, artistID); err != nil && !store.IsNotFound(err) {
			return nil, nil, nil, err
		}
	}
	return track, album, artist, nil
}

// extract runs the extractor, resetting the session and retrying once when
// the upstream reports rate limiting. A second refusal propagates.
func (t *Tasks) extract(ctx context.Context, track *domain.Track, album *domain.Album, artist *domain.Artist) (*extractor.Result, error) {
	req := extractor.Request{
		TrackID:     track.ID,
		DestDir:     t.cfg.DownloadDir(),
		Title:       track.Title,
		Artist:      track.PrimaryArtistName(),
		TrackNumber: track.TrackNumber,
	}
	if req.Artist == "" && artist != nil {
		req.Artist = artist.Name
	}
	if album != nil {
		req.Album = album.Title
		if album.Year != nil {
			req.Year = *album.Year
		}
		if album.ImageLocal != nil && filesystem.Exists(*album.ImageLocal) {
			req.CoverPath = *album.ImageLocal
		}
	}

	res, err := t.extractor.Download(ctx, req)
	if err == nil || !extractor.IsRateLimited(err) {
		return res, err
	}

	t.log.Warn("extractor rate limited, resetting session", "track_id", track.ID)
	if resetErr := t.extractor.ResetSession(); resetErr != nil {
		t.log.Warn("session reset failed", "error", resetErr)
	}
	return t.extractor.Download(ctx, req)
}

// fileIntoLibrary moves the staged file to its final location and records it.
// Layout: MUSIC_DIR/<artist>/<album>/<NN> - <title>.<ext>, dropping the number
// prefix when the track number is unknown.
func (t *Tasks) fileIntoLibrary(ctx context.Context, track *domain.Track, album *domain.Album, artist *domain.Artist, stagingPath string) (string, error) {
	artistName := "Unknown"
	if artist != nil {
		artistName = artist.Name
	} else if name := track.PrimaryArtistName(); name != "" {
		artistName = name
	}
	albumTitle := "Unknown"
	if album != nil {
		albumTitle = album.Title
	}

	dir := filepath.Join(t.cfg.MusicDir,
		filesystem.SafeName(artistName),
		filesystem.SafeName(albumTitle))
	if err := filesystem.EnsureDir(dir); err != nil {
		return "", err
	}

	name := filesystem.SafeName(track.Title)
	if track.TrackNumber > 0 {
		name = fmt.Sprintf("%02d - %s", track.TrackNumber, name)
	}
	dest := filesystem.UniquePath(filepath.Join(dir, name+filepath.Ext(stagingPath)))

	if err := filesystem.MoveFile(stagingPath, dest); err != nil {
		return "", err
	}

	err := t.db.WithTx(ctx, func(tx *store.Tx) error {
		return tx.SetTrackFile(ctx, track.ID, dest)
	})
	if err != nil {
		return "", err
	}
	return dest, nil
}

// placeCover files a cover fetched into staging as the album directory's
// cover.jpg. Covers already living outside staging belong to the album record
// and stay where they are.
func (t *Tasks) placeCover(albumDir, coverPath string, log *logger.Logger) {
	if coverPath == "" || filepath.Dir(coverPath) != t.cfg.DownloadDir() {
		return
	}
	dest := filepath.Join(albumDir, constants.AlbumCoverName)
	if filesystem.Exists(dest) {
		os.Remove(coverPath)
		return
	}
	if err := filesystem.MoveFile(coverPath, dest); err != nil {
		log.Warn("failed to place album cover", "error", err)
	}
}

// removeStagedCover discards a cover left in staging after a failed filing.
func (t *Tasks) removeStagedCover(coverPath string) {
	if coverPath != "" && filepath.Dir(coverPath) == t.cfg.DownloadDir() {
		os.Remove(coverPath)
	}
}

func (t *Tasks) tagTrack(ctx context.Context, track *domain.Track, album *domain.Album, artist *domain.Artist, path, coverPath string) error {
	meta := &tagging.Metadata{
		Title:       track.Title,
		TrackNumber: track.TrackNumber,
	}
	for _, a := range track.Artists {
		if a.Name != "" {
			meta.Artists = append(meta.Artists, a.Name)
		}
	}
	if artist != nil {
		meta.AlbumArtist = artist.Name
		if len(meta.Artists) == 0 {
			meta.Artists = []string{artist.Name}
		}
	}
	if album != nil {
		meta.Album = album.Title
		if album.Year != nil {
			meta.Year = *album.Year
		}
	}

	var coverArt []byte
	if coverPath != "" {
		if data, err := os.ReadFile(coverPath); err == nil {
			coverArt = data
		}
	}
	if coverArt == nil && album != nil && album.ImageLocal != nil {
		if data, err := os.ReadFile(*album.ImageLocal); err == nil {
			coverArt = data
		}
	}

	return tagging.Embed(path, meta, coverArt)
}

// markTrackFailed is the compensation for a failed download attempt: the
// track leaves the downloading state so the album aggregate reflects reality.
func (t *Tasks) markTrackFailed(ctx context.Context, track *domain.Track) {
	err := t.db.WithTx(ctx, func(tx *store.Tx) error {
		return tx.SetTrackStatus(ctx, track.ID, domain.TrackStatusFailed)
	})
	if err != nil {
		t.log.Warn("failed to mark track failed", "track_id", track.ID, "error", err)
	}
	t.refreshAlbumStatus(ctx, track)
}

func (t *Tasks) refreshAlbumStatus(ctx context.Context, track *domain.Track) {
	if track.AlbumID == nil {
		return
	}
	err := t.db.WithTx(ctx, func(tx *store.Tx) error {
		_, err := tx.RefreshAlbumDownloadStatus(ctx, *track.AlbumID)
		return err
	})
	if err != nil {
		t.log.Warn("failed to refresh album status", "album_id", *track.AlbumID, "error", err)
	}
}
