package store

import (
	"context"

	"github.com/mpetrov/harmonia/internal/domain"
)

// UpsertAlbum inserts or refreshes an album row. Catalog-sourced fields are
// updated on conflict; image_local is kept so a re-sync never discards a
// downloaded cover.
func (tx *Tx) UpsertAlbum(ctx context.Context, a *domain.Album) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO albums (id, title, type, artist_id, thumbnails, playlist_id, year)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			type = excluded.type,
			artist_id = excluded.artist_id,
			thumbnails = excluded.thumbnails,
			playlist_id = COALESCE(excluded.playlist_id, albums.playlist_id),
			year = COALESCE(excluded.year, albums.year)`,
		a.ID, a.Title, a.Type, a.ArtistID, a.Thumbnails, a.PlaylistID, a.Year)
	return wrapStorageErr("upsert album", err)
}

func (tx *Tx) GetAlbum(ctx context.Context, id string) (*domain.Album, error) {
	var a domain.Album
	err := tx.GetContext(ctx, &a, `SELECT * FROM albums WHERE id = ?`, id)
	if err != nil {
		return nil, wrapStorageErr("get album", err)
	}
	return &a, nil
}

// SetAlbumImage records the local path of the downloaded cover.
func (tx *Tx) SetAlbumImage(ctx context.Context, id, path string) error {
	_, err := tx.ExecContext(ctx, `UPDATE albums SET image_local = ? WHERE id = ?`, path, id)
	return wrapStorageErr("set album image", err)
}

func (db *DB) GetAlbum(ctx context.Context, id string) (*domain.Album, error) {
	var a domain.Album
	err := db.GetContext(ctx, &a, `SELECT * FROM albums WHERE id = ?`, id)
	if err != nil {
		return nil, wrapStorageErr("get album", err)
	}
	return &a, nil
}

func (db *DB) AlbumsForArtist(ctx context.Context, artistID string) ([]domain.Album, error) {
	var albums []domain.Album
	err := db.SelectContext(ctx, &albums,
		`SELECT * FROM albums WHERE artist_id = ? ORDER BY year DESC, title`, artistID)
	if err != nil {
		return nil, wrapStorageErr("list albums for artist", err)
	}
	return albums, nil
}
