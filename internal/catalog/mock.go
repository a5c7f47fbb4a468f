package catalog

import (
	"context"
	"sync"

	"github.com/mpetrov/harmonia/internal/domain"
)

// MockClient is an in-memory catalog for tests and offline development.
// Fixtures are keyed by id; unknown ids return ErrNotFound. Errs lets a test
// force a failure for a specific id.
type MockClient struct {
	mu        sync.Mutex
	Artists   map[string]*Artist
	Albums    map[string]*AlbumDetail
	Playlists map[string][]Track
	Errs      map[string]error

	Calls []string
}

func NewMockClient() *MockClient {
	return &MockClient{
		Artists:   make(map[string]*Artist),
		Albums:    make(map[string]*AlbumDetail),
		Playlists: make(map[string][]Track),
		Errs:      make(map[string]error),
	}
}

func (m *MockClient) record(call string) {
	m.mu.Lock()
	m.Calls = append(m.Calls, call)
	m.mu.Unlock()
}

func (m *MockClient) GetArtist(ctx context.Context, id string) (*Artist, error) {
	m.record("artist:" + id)
	if err := m.Errs[id]; err != nil {
		return nil, err
	}
	if a, ok := m.Artists[id]; ok {
		return a, nil
	}
	return nil, ErrNotFound
}

func (m *MockClient) GetAlbum(ctx context.Context, id string) (*AlbumDetail, error) {
	m.record("album:" + id)
	if err := m.Errs[id]; err != nil {
		return nil, err
	}
	if a, ok := m.Albums[id]; ok {
		return a, nil
	}
	return nil, ErrNotFound
}

func (m *MockClient) GetPlaylist(ctx context.Context, playlistID string) ([]Track, error) {
	m.record("playlist:" + playlistID)
	if err := m.Errs[playlistID]; err != nil {
		return nil, err
	}
	if tracks, ok := m.Playlists[playlistID]; ok {
		return tracks, nil
	}
	return nil, ErrNotFound
}

func (m *MockClient) Search(ctx context.Context, query, kind string) (*SearchResult, error) {
	m.record("search:" + query)
	return &SearchResult{
		Artists: []Artist{{ID: "UCmock", Name: "Mock Artist"}},
		Albums:  []Album{{ID: "MPREmock", Title: "Mock Album", Type: "Album"}},
		Tracks: []Track{{
			ID: "vidmock", Title: "Mock Track", Duration: 180,
			Artists: domain.ArtistRefs{{ID: "UCmock", Name: "Mock Artist"}},
		}},
	}, nil
}

func (m *MockClient) GetCharts(ctx context.Context, country string) (*Charts, error) {
	m.record("charts:" + country)
	return &Charts{
		Country: country,
		Artists: []Artist{{ID: "UCmock", Name: "Mock Artist"}},
	}, nil
}

func (m *MockClient) DownloadImage(ctx context.Context, imageURL string) ([]byte, error) {
	m.record("image:" + imageURL)
	if err := m.Errs[imageURL]; err != nil {
		return nil, err
	}
	return []byte("mock image bytes"), nil
}

var _ Client = (*MockClient)(nil)
