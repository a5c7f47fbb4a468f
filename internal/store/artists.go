package store

import (
	"context"
	"time"

	"github.com/mpetrov/harmonia/internal/domain"
)

// UpsertArtist inserts or refreshes an artist row. On conflict the name and
// thumbnails are updated while followed, image_local and created_at are kept.
func (tx *Tx) UpsertArtist(ctx context.Context, a *domain.Artist) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO artists (id, name, thumbnails, followed, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			thumbnails = excluded.thumbnails`,
		a.ID, a.Name, a.Thumbnails, a.Followed, a.CreatedAt)
	return wrapStorageErr("upsert artist", err)
}

// EnsureArtist inserts a minimal artist row when none exists yet, so albums
// arriving before their artist was ever synced can still reference it. An
// existing row is left untouched; a later sync fills in the real metadata.
func (tx *Tx) EnsureArtist(ctx context.Context, id, name string) error {
	if name == "" {
		name = id
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO artists (id, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		id, name, time.Now().UTC())
	return wrapStorageErr("ensure artist", err)
}

func (tx *Tx) GetArtist(ctx context.Context, id string) (*domain.Artist, error) {
	var a domain.Artist
	err := tx.GetContext(ctx, &a, `SELECT * FROM artists WHERE id = ?`, id)
	if err != nil {
		return nil, wrapStorageErr("get artist", err)
	}
	return &a, nil
}

// SetArtistFollowed flips the follow flag that drives periodic sync.
func (tx *Tx) SetArtistFollowed(ctx context.Context, id string, followed bool) error {
	res, err := tx.ExecContext(ctx, `UPDATE artists SET followed = ? WHERE id = ?`, followed, id)
	if err != nil {
		return wrapStorageErr("set artist followed", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetArtistImage records the local path of the downloaded backdrop.
func (tx *Tx) SetArtistImage(ctx context.Context, id, path string) error {
	_, err := tx.ExecContext(ctx, `UPDATE artists SET image_local = ? WHERE id = ?`, path, id)
	return wrapStorageErr("set artist image", err)
}

func (db *DB) GetArtist(ctx context.Context, id string) (*domain.Artist, error) {
	var a domain.Artist
	err := db.GetContext(ctx, &a, `SELECT * FROM artists WHERE id = ?`, id)
	if err != nil {
		return nil, wrapStorageErr("get artist", err)
	}
	return &a, nil
}

// ListFollowedArtists returns every artist with the follow flag set, ordered
// by name.
func (db *DB) ListFollowedArtists(ctx context.Context) ([]domain.Artist, error) {
	var artists []domain.Artist
	err := db.SelectContext(ctx, &artists,
		`SELECT * FROM artists WHERE followed = 1 ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, wrapStorageErr("list followed artists", err)
	}
	return artists, nil
}
