package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mpetrov/harmonia/internal/constants"
	"github.com/mpetrov/harmonia/internal/filesystem"
	"github.com/mpetrov/harmonia/internal/lyrics"
	"github.com/mpetrov/harmonia/internal/store"
)

// DownloadLyrics fetches synced lyrics for a downloaded track and writes them
// as a .lrc file next to the audio. Lyrics services fill in over time, so a
// miss retries on a daily cadence rather than failing outright.
func (t *Tasks) DownloadLyrics(ctx context.Context, payload json.RawMessage) Result {
	var p DownloadLyricsPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.TrackID == "" {
		return failTerminal(fmt.Errorf("invalid download_lyrics payload: %v", err))
	}

	track, album, artist, err := t.loadTrackContext(ctx, p.TrackID, "", "")
	if err != nil {
		if store.IsNotFound(err) {
			return failTerminal(fmt.Errorf("track %s not in catalog: %w", p.TrackID, err))
		}
		return failRetry(err, constants.RetryDelayLyricsError)
	}
	log := t.log.WithTrack(track.ID, track.Title)

	// Lyrics only make sense next to an audio file. No file means the
	// download was rolled back or the library was pruned; retrying won't
	// change that.
	if track.FilePath == nil || !filesystem.Exists(*track.FilePath) {
		return failTerminal(fmt.Errorf("track %s has no audio file", track.ID))
	}

	req := lyrics.Request{
		TrackName:  track.Title,
		ArtistName: track.PrimaryArtistName(),
	}
	if req.ArtistName == "" && artist != nil {
		req.ArtistName = artist.Name
	}
	if album != nil {
		req.AlbumName = album.Title
	}
	if track.Duration != nil {
		req.Duration = *track.Duration
	}

	lrc, err := t.lyrics.GetSynced(ctx, req)
	if err != nil {
		if errors.Is(err, lyrics.ErrNotFound) || errors.Is(err, lyrics.ErrNotSynced) {
			return failRetry(err, constants.RetryDelayLyricsMiss)
		}
		return failRetry(fmt.Errorf("lyrics lookup: %w", err), constants.RetryDelayLyricsError)
	}

	audioPath := *track.FilePath
	lrcPath := strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + ".lrc"
	if err := filesystem.WriteFile(lrcPath, []byte(lrc)); err != nil {
		return failRetry(fmt.Errorf("write lyrics file: %w", err), constants.RetryDelayLyricsError)
	}

	err = t.db.WithTx(ctx, func(tx *store.Tx) error {
		return tx.SetTrackLyrics(ctx, track.ID, lrcPath)
	})
	if err != nil {
		return failRetry(fmt.Errorf("record lyrics path: %w", err), constants.RetryDelayLyricsError)
	}

	log.Info("lyrics saved", "file", lrcPath)
	return ok(map[string]interface{}{"file": lrcPath})
}
