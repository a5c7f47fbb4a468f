// Package lyrics fetches time-synced lyrics from an LRCLIB-compatible
// service.
package lyrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mpetrov/harmonia/internal/constants"
	"github.com/mpetrov/harmonia/internal/httpclient"
)

var (
	// ErrNotFound means the service has no lyrics for the track at all.
	ErrNotFound = errors.New("lyrics not found")

	// ErrNotSynced means lyrics exist but only as plain text. Plain lyrics
	// are not worth storing; players can't follow them.
	ErrNotSynced = errors.New("lyrics not synced")
)

// Request identifies a track to the lyrics service.
type Request struct {
	TrackName  string
	ArtistName string
	AlbumName  string
	Duration   int // seconds, 0 when unknown
}

// Client looks up synced lyrics for a track.
type Client interface {
	GetSynced(ctx context.Context, req Request) (string, error)
}

// LRCLIBClient queries lrclib.net or a compatible self-hosted instance. The
// cached endpoint is tried first; it answers from the service's own database
// without triggering an upstream search, so it is cheap. Only on a cached
// miss does the full search endpoint run.
type LRCLIBClient struct {
	baseURL string
	client  *httpclient.Client
}

func NewLRCLIBClient(baseURL string) *LRCLIBClient {
	return &LRCLIBClient{
		baseURL: baseURL,
		client: httpclient.NewClient(&http.Client{
			Timeout: constants.LyricsHTTPTimeout,
		}, 200*time.Millisecond),
	}
}

type lyricsResponse struct {
	ID           int64  `json:"id"`
	TrackName    string `json:"trackName"`
	ArtistName   string `json:"artistName"`
	PlainLyrics  string `json:"plainLyrics"`
	SyncedLyrics string `json:"syncedLyrics"`
	Instrumental bool   `json:"instrumental"`
}

func (c *LRCLIBClient) GetSynced(ctx context.Context, req Request) (string, error) {
	rec, err := c.get(ctx, "/api/get-cached", req)
	if errors.Is(err, ErrNotFound) {
		rec, err = c.get(ctx, "/api/get", req)
	}
	if err != nil {
		return "", err
	}

	if rec.SyncedLyrics == "" {
		return "", ErrNotSynced
	}
	return rec.SyncedLyrics, nil
}

func (c *LRCLIBClient) get(ctx context.Context, path string, req Request) (*lyricsResponse, error) {
	q := url.Values{
		"track_name":  {req.TrackName},
		"artist_name": {req.ArtistName},
	}
	if req.AlbumName != "" {
		q.Set("album_name", req.AlbumName)
	}
	if req.Duration > 0 {
		q.Set("duration", strconv.Itoa(req.Duration))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(ctx, httpReq)
	if err != nil {
		return nil, fmt.Errorf("lyrics request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("lyrics %s: unexpected status %d", path, resp.StatusCode)
	}

	var rec lyricsResponse
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("lyrics %s: decode response: %w", path, err)
	}
	return &rec, nil
}

var _ Client = (*LRCLIBClient)(nil)
