package store

import (
	"context"
	"time"

	"github.com/mpetrov/harmonia/internal/domain"
)

// SubscribeArtist creates (or re-enables) the artist subscription carrying the
// sync cadence. The artist's followed flag is set alongside it.
func (tx *Tx) SubscribeArtist(ctx context.Context, artistID, mode string, intervalHours *int) error {
	if mode == "" {
		mode = domain.ArtistSubModeFull
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO artist_subscriptions (artist_id, mode, enabled, sync_interval_hours, created_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(artist_id) DO UPDATE SET
			mode = excluded.mode,
			enabled = 1,
			sync_interval_hours = excluded.sync_interval_hours`,
		artistID, mode, intervalHours, time.Now().UTC())
	if err != nil {
		return wrapStorageErr("subscribe artist", err)
	}
	return tx.SetArtistFollowed(ctx, artistID, true)
}

// UnsubscribeArtist clears the followed flag and soft-disables the
// subscription row, keeping its sync history.
func (tx *Tx) UnsubscribeArtist(ctx context.Context, artistID string) error {
	if err := tx.SetArtistFollowed(ctx, artistID, false); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE artist_subscriptions SET enabled = 0 WHERE artist_id = ?`, artistID)
	return wrapStorageErr("unsubscribe artist", err)
}

func (tx *Tx) GetArtistSubscription(ctx context.Context, artistID string) (*domain.ArtistSubscription, error) {
	var sub domain.ArtistSubscription
	err := tx.GetContext(ctx, &sub,
		`SELECT * FROM artist_subscriptions WHERE artist_id = ?`, artistID)
	if err != nil {
		return nil, wrapStorageErr("get artist subscription", err)
	}
	return &sub, nil
}

// MarkArtistSynced stamps last_synced_at and records (or clears) the latest
// sync error.
func (tx *Tx) MarkArtistSynced(ctx context.Context, artistID string, errMsg *string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE artist_subscriptions SET last_synced_at = ?, last_error = ?
		WHERE artist_id = ?`,
		time.Now().UTC(), errMsg, artistID)
	return wrapStorageErr("mark artist synced", err)
}

// SubscribeAlbum creates the album subscription that drives full-album
// download. Re-subscribing an existing album resets it to pending.
func (tx *Tx) SubscribeAlbum(ctx context.Context, albumID string, artistID *string, mode string) error {
	if mode == "" {
		mode = domain.AlbumSubModeDownload
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO album_subscriptions (album_id, artist_id, mode, download_status, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(album_id) DO UPDATE SET
			mode = excluded.mode,
			download_status = excluded.download_status`,
		albumID, artistID, mode, domain.DownloadStatusPending, time.Now().UTC())
	return wrapStorageErr("subscribe album", err)
}

func (tx *Tx) GetAlbumSubscription(ctx context.Context, albumID string) (*domain.AlbumSubscription, error) {
	var sub domain.AlbumSubscription
	err := tx.GetContext(ctx, &sub,
		`SELECT * FROM album_subscriptions WHERE album_id = ?`, albumID)
	if err != nil {
		return nil, wrapStorageErr("get album subscription", err)
	}
	return &sub, nil
}

func (db *DB) GetAlbumSubscription(ctx context.Context, albumID string) (*domain.AlbumSubscription, error) {
	var sub domain.AlbumSubscription
	err := db.GetContext(ctx, &sub,
		`SELECT * FROM album_subscriptions WHERE album_id = ?`, albumID)
	if err != nil {
		return nil, wrapStorageErr("get album subscription", err)
	}
	return &sub, nil
}

func (tx *Tx) SetAlbumDownloadStatus(ctx context.Context, albumID string, status domain.DownloadStatus, errMsg *string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE album_subscriptions SET download_status = ?, last_error = ?
		WHERE album_id = ?`,
		status, errMsg, albumID)
	return wrapStorageErr("set album download status", err)
}

// RefreshAlbumDownloadStatus recomputes the subscription's download_status
// from the album's track statuses. A no-op when the album has no
// subscription.
func (tx *Tx) RefreshAlbumDownloadStatus(ctx context.Context, albumID string) (domain.DownloadStatus, error) {
	statuses, err := tx.TrackStatusesForAlbum(ctx, albumID)
	if err != nil {
		return "", err
	}
	agg := domain.AggregateDownloadStatus(statuses)

	_, err = tx.ExecContext(ctx,
		`UPDATE album_subscriptions SET download_status = ? WHERE album_id = ?`,
		agg, albumID)
	if err != nil {
		return "", wrapStorageErr("refresh album download status", err)
	}
	return agg, nil
}

// ArtistsNeedingSync returns the followed artists whose subscription has
// never synced, or whose last sync is older than its cadence. Per-artist
// sync_interval_hours overrides the default.
func (db *DB) ArtistsNeedingSync(ctx context.Context, defaultInterval time.Duration, now time.Time) ([]string, error) {
	defaultHours := int(defaultInterval / time.Hour)
	if defaultHours < 1 {
		defaultHours = 1
	}

	var ids []string
	err := db.SelectContext(ctx, &ids, `
		SELECT a.id
		FROM artists a
		JOIN artist_subscriptions s ON s.artist_id = a.id
		WHERE a.followed = 1
		  AND s.enabled = 1
		  AND (s.last_synced_at IS NULL
		       OR s.last_synced_at <= datetime(?, '-' || COALESCE(s.sync_interval_hours, ?) || ' hours'))
		ORDER BY a.id`,
		now.UTC(), defaultHours)
	if err != nil {
		return nil, wrapStorageErr("artists needing sync", err)
	}
	return ids, nil
}
