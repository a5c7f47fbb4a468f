package domain

import (
	"encoding/json"
	"strconv"
	"time"
)

// Job types are the handler names registered with the worker dispatcher.
const (
	JobTypeSyncArtist     = "sync_artist"
	JobTypeImportAlbum    = "import_album"
	JobTypeDownloadTrack  = "download_track"
	JobTypeDownloadLyrics = "download_lyrics"
)

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusReserved  JobStatus = "reserved"
	JobStatusDone      JobStatus = "done"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusFailed || s == JobStatusCancelled
}

// Job represents a unit of background work in the durable queue. Attempts
// counts started runs: it is incremented when a worker claims the job, so a
// job that succeeded on its first run finishes with attempts = 1.
type Job struct {
	ID          int64      `json:"id" db:"id"`
	Type        string     `json:"type" db:"type"`
	Payload     RawJSON    `json:"payload" db:"payload"`
	Status      JobStatus  `json:"status" db:"status"`
	Attempts    int        `json:"attempts" db:"attempts"`
	MaxAttempts int        `json:"max_attempts" db:"max_attempts"`
	Priority    int        `json:"priority" db:"priority"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty" db:"scheduled_at"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty" db:"finished_at"`
	LastError   *string    `json:"last_error,omitempty" db:"last_error"`
	Result      RawJSON    `json:"result,omitempty" db:"result"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	ReservedBy  *string    `json:"reserved_by,omitempty" db:"reserved_by"`
	UserID      *int64     `json:"user_id,omitempty" db:"user_id"`
}

type TrackStatus string

const (
	TrackStatusNew         TrackStatus = "new"
	TrackStatusDownloading TrackStatus = "downloading"
	TrackStatusDone        TrackStatus = "done"
	TrackStatusFailed      TrackStatus = "failed"
)

// Artist is the identity of an upstream performer. The id is the opaque
// upstream channel id and never changes.
type Artist struct {
	ID         string     `json:"id" db:"id"`
	Name       string     `json:"name" db:"name"`
	Thumbnails Thumbnails `json:"thumbnails" db:"thumbnails"`
	ImageLocal *string    `json:"image_local,omitempty" db:"image_local"`
	Followed   bool       `json:"followed" db:"followed"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// Album is a release optionally belonging to one artist.
type Album struct {
	ID         string     `json:"id" db:"id"`
	Title      string     `json:"title" db:"title"`
	Type       string     `json:"type" db:"type"` // Album, Single, EP
	ArtistID   *string    `json:"artist_id,omitempty" db:"artist_id"`
	Thumbnails Thumbnails `json:"thumbnails" db:"thumbnails"`
	PlaylistID *string    `json:"playlist_id,omitempty" db:"playlist_id"`
	Year       *string    `json:"year,omitempty" db:"year"`
	ImageLocal *string    `json:"image_local,omitempty" db:"image_local"`
}

// Track is a single recording. The id is the upstream audio/video id; when
// the album's playlist exposes an audio id for the same position and the
// titles match, the audio id wins.
type Track struct {
	ID          string      `json:"id" db:"id"`
	Title       string      `json:"title" db:"title"`
	Duration    *int        `json:"duration,omitempty" db:"duration"`
	Artists     ArtistRefs  `json:"artists" db:"artists"`
	AlbumID     *string     `json:"album_id,omitempty" db:"album_id"`
	TrackNumber int         `json:"track_number" db:"track_number"`
	HasLyrics   bool        `json:"has_lyrics" db:"has_lyrics"`
	LyricsLocal *string     `json:"lyrics_local,omitempty" db:"lyrics_local"`
	FilePath    *string     `json:"file_path,omitempty" db:"file_path"`
	Status      TrackStatus `json:"status" db:"status"`
	ArtistValid bool        `json:"artist_valid" db:"artist_valid"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
}

// PrimaryArtistName returns the first credited artist name, if any.
func (t *Track) PrimaryArtistName() string {
	for _, a := range t.Artists {
		if a.Name != "" {
			return a.Name
		}
	}
	return ""
}

// Subscription modes.
const (
	ArtistSubModeFull    = "full"
	ArtistSubModeMonitor = "monitor"

	AlbumSubModeDownload = "download"
	AlbumSubModeMonitor  = "monitor"
)

// ArtistSubscription carries the periodic-sync cadence and the latest sync
// error for a followed artist. Artist.followed remains the source of truth
// for whether the artist is sync-targeted.
type ArtistSubscription struct {
	ID                int64      `json:"id" db:"id"`
	ArtistID          string     `json:"artist_id" db:"artist_id"`
	Mode              string     `json:"mode" db:"mode"`
	Enabled           bool       `json:"enabled" db:"enabled"`
	SyncIntervalHours *int       `json:"sync_interval_hours,omitempty" db:"sync_interval_hours"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	LastSyncedAt      *time.Time `json:"last_synced_at,omitempty" db:"last_synced_at"`
	LastError         *string    `json:"last_error,omitempty" db:"last_error"`
}

type DownloadStatus string

const (
	DownloadStatusIdle        DownloadStatus = "idle"
	DownloadStatusPending     DownloadStatus = "pending"
	DownloadStatusDownloading DownloadStatus = "downloading"
	DownloadStatusCompleted   DownloadStatus = "completed"
	DownloadStatusFailed      DownloadStatus = "failed"
)

// AlbumSubscription expresses the intent to fully download an album. Its
// download_status is always the aggregation of the album's track statuses.
type AlbumSubscription struct {
	ID             int64          `json:"id" db:"id"`
	AlbumID        string         `json:"album_id" db:"album_id"`
	ArtistID       *string        `json:"artist_id,omitempty" db:"artist_id"`
	Mode           string         `json:"mode" db:"mode"`
	DownloadStatus DownloadStatus `json:"download_status" db:"download_status"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	LastSyncedAt   *time.Time     `json:"last_synced_at,omitempty" db:"last_synced_at"`
	LastError      *string        `json:"last_error,omitempty" db:"last_error"`
}

// AggregateDownloadStatus maps a set of track statuses to the album-level
// download state.
func AggregateDownloadStatus(statuses []TrackStatus) DownloadStatus {
	if len(statuses) == 0 {
		return DownloadStatusPending
	}

	done, downloading, failed := 0, 0, 0
	for _, s := range statuses {
		switch s {
		case TrackStatusDone:
			done++
		case TrackStatusDownloading:
			downloading++
		case TrackStatusFailed:
			failed++
		}
	}

	switch {
	case done == len(statuses):
		return DownloadStatusCompleted
	case downloading > 0:
		return DownloadStatusDownloading
	case failed == len(statuses):
		return DownloadStatusFailed
	default:
		return DownloadStatusPending
	}
}

// SettingType declares how a Setting value string is interpreted.
type SettingType string

const (
	SettingString SettingType = "string"
	SettingInt    SettingType = "int"
	SettingBool   SettingType = "bool"
	SettingJSON   SettingType = "json"
)

// Setting is an operator-tunable key/value row.
type Setting struct {
	Key         string      `json:"key" db:"key"`
	Value       *string     `json:"value" db:"value"`
	Type        SettingType `json:"type" db:"type"`
	Description *string     `json:"description,omitempty" db:"description"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}

// TypedValue returns the value converted according to the declared type.
// Unparseable values yield nil.
func (s *Setting) TypedValue() interface{} {
	if s.Value == nil {
		return nil
	}
	raw := *s.Value

	switch s.Type {
	case SettingInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil
		}
		return n
	case SettingBool:
		switch raw {
		case "true", "1", "yes", "on":
			return true
		default:
			return false
		}
	case SettingJSON:
		var v interface{}
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil
		}
		return v
	default:
		return raw
	}
}

// SessionToken is a persisted session credential. Issue/validate belongs to
// the auth surface; the core only stores rows and prunes expired ones.
type SessionToken struct {
	ID        int64     `json:"id" db:"id"`
	Token     string    `json:"token" db:"token"`
	UserID    int64     `json:"user_id" db:"user_id"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	Revoked   bool      `json:"revoked" db:"revoked"`
}

// Expired reports whether the token is past its expiry or revoked.
func (t *SessionToken) Expired(now time.Time) bool {
	return t.Revoked || !now.Before(t.ExpiresAt)
}
