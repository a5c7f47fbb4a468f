package store

import (
	"context"
	"time"

	"github.com/mpetrov/harmonia/internal/domain"
)

// UpsertTrack inserts or refreshes a track row. Metadata from the catalog is
// always updated; local state (file_path, status, has_lyrics, lyrics_local)
// survives a re-import so an already-downloaded track is never re-queued.
// has_lyrics tracks whether a local lyrics file exists, never the upstream
// flag, so it is only ever written by SetTrackLyrics.
func (tx *Tx) UpsertTrack(ctx context.Context, t *domain.Track) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.Status == "" {
		t.Status = domain.TrackStatusNew
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO tracks (id, title, duration, artists, album_id, track_number,
			status, artist_valid, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			duration = excluded.duration,
			artists = excluded.artists,
			album_id = excluded.album_id,
			track_number = excluded.track_number,
			artist_valid = excluded.artist_valid`,
		t.ID, t.Title, t.Duration, t.Artists, t.AlbumID, t.TrackNumber,
		t.Status, t.ArtistValid, t.CreatedAt)
	return wrapStorageErr("upsert track", err)
}

func (tx *Tx) GetTrack(ctx context.Context, id string) (*domain.Track, error) {
	var t domain.Track
	err := tx.GetContext(ctx, &t, `SELECT * FROM tracks WHERE id = ?`, id)
	if err != nil {
		return nil, wrapStorageErr("get track", err)
	}
	return &t, nil
}

func (tx *Tx) SetTrackStatus(ctx context.Context, id string, status domain.TrackStatus) error {
	res, err := tx.ExecContext(ctx, `UPDATE tracks SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return wrapStorageErr("set track status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTrackFile records the final library path and marks the track done.
func (tx *Tx) SetTrackFile(ctx context.Context, id, path string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE tracks SET file_path = ?, status = ? WHERE id = ?`,
		path, domain.TrackStatusDone, id)
	return wrapStorageErr("set track file", err)
}

// SetTrackLyrics records the local lyrics file and flips has_lyrics with it;
// the two columns move together.
func (tx *Tx) SetTrackLyrics(ctx context.Context, id, path string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE tracks SET lyrics_local = ?, has_lyrics = 1 WHERE id = ?`, path, id)
	return wrapStorageErr("set track lyrics", err)
}

func (tx *Tx) ListTracksForAlbum(ctx context.Context, albumID string) ([]domain.Track, error) {
	var tracks []domain.Track
	err := tx.SelectContext(ctx, &tracks,
		`SELECT * FROM tracks WHERE album_id = ? ORDER BY track_number, id`, albumID)
	if err != nil {
		return nil, wrapStorageErr("list tracks for album", err)
	}
	return tracks, nil
}

// TrackStatusesForAlbum returns just the status column for aggregation.
func (tx *Tx) TrackStatusesForAlbum(ctx context.Context, albumID string) ([]domain.TrackStatus, error) {
	var statuses []domain.TrackStatus
	err := tx.SelectContext(ctx, &statuses,
		`SELECT status FROM tracks WHERE album_id = ?`, albumID)
	if err != nil {
		return nil, wrapStorageErr("track statuses for album", err)
	}
	return statuses, nil
}

func (db *DB) GetTrack(ctx context.Context, id string) (*domain.Track, error) {
	var t domain.Track
	err := db.GetContext(ctx, &t, `SELECT * FROM tracks WHERE id = ?`, id)
	if err != nil {
		return nil, wrapStorageErr("get track", err)
	}
	return &t, nil
}

func (db *DB) ListTracksForAlbum(ctx context.Context, albumID string) ([]domain.Track, error) {
	var tracks []domain.Track
	err := db.SelectContext(ctx, &tracks,
		`SELECT * FROM tracks WHERE album_id = ? ORDER BY track_number, id`, albumID)
	if err != nil {
		return nil, wrapStorageErr("list tracks for album", err)
	}
	return tracks, nil
}
