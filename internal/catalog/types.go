package catalog

import "github.com/mpetrov/harmonia/internal/domain"

// Artist is an upstream artist page: identity plus its releases.
type Artist struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Thumbnails domain.Thumbnails `json:"thumbnails"`
	Albums     []Album           `json:"albums"`
}

// Album is a release as listed on an artist page or in search results.
type Album struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	Type       string            `json:"type"` // Album, Single, EP
	Year       string            `json:"year"`
	PlaylistID string            `json:"playlist_id"`
	ArtistID   string            `json:"artist_id"`
	ArtistName string            `json:"artist_name"`
	Thumbnails domain.Thumbnails `json:"thumbnails"`
}

// AlbumDetail is a full album page including its track listing. Track ids on
// the album page are video ids; the audio playlist carries audio ids.
type AlbumDetail struct {
	Album
	Tracks []Track `json:"tracks"`
}

// Track is a track entry from an album page, a playlist, or search results.
type Track struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Duration    int               `json:"duration"`
	TrackNumber int               `json:"track_number"`
	Artists     domain.ArtistRefs `json:"artists"`
	HasLyrics   bool              `json:"has_lyrics"`
}

// SearchResult groups search hits by entity kind.
type SearchResult struct {
	Artists []Artist `json:"artists"`
	Albums  []Album  `json:"albums"`
	Tracks  []Track  `json:"tracks"`
}

// Charts is a country-scoped browse page of trending entities.
type Charts struct {
	Country string   `json:"country"`
	Artists []Artist `json:"artists"`
	Tracks  []Track  `json:"tracks"`
}
