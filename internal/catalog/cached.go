package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ErrNotFound is returned when the upstream does not know the entity.
var ErrNotFound = errors.New("not found in catalog")

// CachedClient memoizes catalog lookups in an in-memory LRU with expiry so a
// sync burst over one artist's discography does not hammer the upstream.
// Images are never cached; they land on disk anyway.
type CachedClient struct {
	client Client
	cache  *expirable.LRU[string, interface{}]
}

func NewCachedClient(client Client, size int, ttl time.Duration) *CachedClient {
	return &CachedClient{
		client: client,
		cache:  expirable.NewLRU[string, interface{}](size, nil, ttl),
	}
}

func (c *CachedClient) GetArtist(ctx context.Context, id string) (*Artist, error) {
	key := "artist:" + id
	if v, ok := c.cache.Get(key); ok {
		if artist, ok := v.(*Artist); ok {
			return artist, nil
		}
	}

	artist, err := c.client.GetArtist(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, artist)
	return artist, nil
}

func (c *CachedClient) GetAlbum(ctx context.Context, id string) (*AlbumDetail, error) {
	key := "album:" + id
	if v, ok := c.cache.Get(key); ok {
		if album, ok := v.(*AlbumDetail); ok {
			return album, nil
		}
	}

	album, err := c.client.GetAlbum(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, album)
	return album, nil
}

func (c *CachedClient) GetPlaylist(ctx context.Context, playlistID string) ([]Track, error) {
	key := "playlist:" + playlistID
	if v, ok := c.cache.Get(key); ok {
		if tracks, ok := v.([]Track); ok {
			return tracks, nil
		}
	}

	tracks, err := c.client.GetPlaylist(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, tracks)
	return tracks, nil
}

func (c *CachedClient) Search(ctx context.Context, query, kind string) (*SearchResult, error) {
	key := "search:" + kind + ":" + query
	if v, ok := c.cache.Get(key); ok {
		if result, ok := v.(*SearchResult); ok {
			return result, nil
		}
	}

	result, err := c.client.Search(ctx, query, kind)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, result)
	return result, nil
}

func (c *CachedClient) GetCharts(ctx context.Context, country string) (*Charts, error) {
	key := "charts:" + country
	if v, ok := c.cache.Get(key); ok {
		if charts, ok := v.(*Charts); ok {
			return charts, nil
		}
	}

	charts, err := c.client.GetCharts(ctx, country)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, charts)
	return charts, nil
}

func (c *CachedClient) DownloadImage(ctx context.Context, imageURL string) ([]byte, error) {
	return c.client.DownloadImage(ctx, imageURL)
}

// Purge drops every cached entry.
func (c *CachedClient) Purge() {
	c.cache.Purge()
}

var _ Client = (*CachedClient)(nil)
