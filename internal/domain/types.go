package domain

import (
	"database/sql/driver"
	"encoding/json"
)

// Thumbnail is a single remote image reference as reported by the upstream
// catalog. Width/Height are optional; some endpoints return bare URLs.
type Thumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Thumbnails is stored as a JSON column.
type Thumbnails []Thumbnail

func (t Thumbnails) Value() (driver.Value, error) {
	if len(t) == 0 {
		return nil, nil
	}
	return json.Marshal(t)
}

func (t *Thumbnails) Scan(value interface{}) error {
	return scanJSON(value, t)
}

// RawJSON is pre-encoded JSON stored in a TEXT column. It scans straight from
// the driver's string value and is emitted verbatim when marshalled.
type RawJSON []byte

func (j RawJSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

func (j *RawJSON) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*j = nil
	case string:
		*j = RawJSON(v)
	case []byte:
		*j = append((*j)[:0], v...)
	}
	return nil
}

func (j RawJSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *RawJSON) UnmarshalJSON(data []byte) error {
	*j = append((*j)[:0], data...)
	return nil
}

// ArtistRef is an embedded reference to a performer on a track.
type ArtistRef struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// ArtistRefs is stored as a JSON column.
type ArtistRefs []ArtistRef

func (a ArtistRefs) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	return json.Marshal(a)
}

func (a *ArtistRefs) Scan(value interface{}) error {
	return scanJSON(value, a)
}

func scanJSON(value interface{}, dest interface{}) error {
	if value == nil {
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return nil
	}

	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	return json.Unmarshal(data, dest)
}
