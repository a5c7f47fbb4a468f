package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/mpetrov/harmonia/internal/constants"
	"github.com/mpetrov/harmonia/internal/httpclient"
)

// Client is the upstream music catalog. Implementations return what the
// upstream reports; callers own persistence.
type Client interface {
	GetArtist(ctx context.Context, id string) (*Artist, error)
	GetAlbum(ctx context.Context, id string) (*AlbumDetail, error)
	GetPlaylist(ctx context.Context, playlistID string) ([]Track, error)
	Search(ctx context.Context, query, kind string) (*SearchResult, error)
	GetCharts(ctx context.Context, country string) (*Charts, error)
	DownloadImage(ctx context.Context, imageURL string) ([]byte, error)
}

// HTTPClient talks to the catalog sidecar over its JSON API.
type HTTPClient struct {
	baseURL string
	client  *httpclient.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client: httpclient.NewClient(&http.Client{
			Timeout: constants.CatalogHTTPTimeout,
		}, 100*time.Millisecond),
	}
}

func (c *HTTPClient) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("catalog %s: %w", path, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog %s: unexpected status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("catalog %s: decode response: %w", path, err)
	}
	return nil
}

func (c *HTTPClient) GetArtist(ctx context.Context, id string) (*Artist, error) {
	var artist Artist
	if err := c.get(ctx, "/artist", url.Values{"id": {id}}, &artist); err != nil {
		return nil, err
	}
	return &artist, nil
}

func (c *HTTPClient) GetAlbum(ctx context.Context, id string) (*AlbumDetail, error) {
	var album AlbumDetail
	if err := c.get(ctx, "/album", url.Values{"id": {id}}, &album); err != nil {
		return nil, err
	}
	return &album, nil
}

func (c *HTTPClient) GetPlaylist(ctx context.Context, playlistID string) ([]Track, error) {
	var resp struct {
		Tracks []Track `json:"tracks"`
	}
	if err := c.get(ctx, "/playlist", url.Values{"id": {playlistID}}, &resp); err != nil {
		return nil, err
	}
	return resp.Tracks, nil
}

func (c *HTTPClient) Search(ctx context.Context, query, kind string) (*SearchResult, error) {
	q := url.Values{"q": {query}}
	if kind != "" {
		q.Set("type", kind)
	}

	var result SearchResult
	if err := c.get(ctx, "/search", q, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) GetCharts(ctx context.Context, country string) (*Charts, error) {
	q := url.Values{}
	if country != "" {
		q.Set("country", country)
	}

	var charts Charts
	if err := c.get(ctx, "/charts", q, &charts); err != nil {
		return nil, err
	}
	return &charts, nil
}

// DownloadImage fetches a remote thumbnail or cover with a longer timeout
// than the JSON endpoints.
func (c *HTTPClient) DownloadImage(ctx context.Context, imageURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.ImageHTTPTimeout)
	defer cancel()
	return c.client.GetBytes(ctx, imageURL)
}

var _ Client = (*HTTPClient)(nil)
