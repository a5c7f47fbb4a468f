// Package constants contains application-wide constants to avoid magic numbers and strings.
package constants

import "time"

// Application defaults
const (
	DefaultHost         = "0.0.0.0"
	DefaultPort         = "8080"
	DefaultConfigDir    = "/config"
	DefaultMusicDir     = "/music"
	DefaultProviderURL  = "http://127.0.0.1:8000"
	DefaultLyricsURL    = "https://lrclib.net"
	DefaultYtdlpPath    = "yt-dlp"
	DefaultWorkerCount  = 2
	DefaultPollInterval = 2 * time.Second
	DefaultIdleSleep    = 3 * time.Second
)

// Job queue defaults
const (
	DefaultMaxAttempts = 5

	PrioritySyncArtist  = 5
	PriorityImportAlbum = 3
	PriorityDownload    = 0
)

// Task retry delays
const (
	RetryDelayBanner      = 300 * time.Second
	RetryDelayExtractor   = 300 * time.Second
	RetryDelayRateLimited = 600 * time.Second
	RetryDelayImportAlbum = 120 * time.Second
	RetryDelaySyncArtist  = 600 * time.Second
	RetryDelayLyricsMiss  = 24 * time.Hour
	RetryDelayLyricsError = time.Hour
)

// Scheduler cadences
const (
	DefaultSyncInterval     = 6 * time.Hour
	DefaultCleanupInterval  = 24 * time.Hour
	DefaultSettingsRefresh  = 5 * time.Minute
	SchedulerTick           = time.Minute
	DefaultJobCleanupDays   = 3
	DefaultSyncIntervalHrs  = 6
	DefaultTokenCleanupDays = 30
)

// External I/O timeouts
const (
	CatalogHTTPTimeout = 15 * time.Second
	LyricsHTTPTimeout  = 15 * time.Second
	ImageHTTPTimeout   = 30 * time.Second
	DefaultRetryCount  = 3
	DefaultRetryBase   = 1 * time.Second
	DefaultCacheTTL    = 12 * time.Hour
	DefaultCacheSize   = 512
)

// Database
const (
	BusyTimeoutMillis = 30000
	CommitRetries     = 3
	CommitRetryBase   = 100 * time.Millisecond
)

// File names and layout
const (
	DatabaseFile    = "harmonia.db"
	SecretsFile     = "secrets.json"
	CookiesFile     = "ytcookies.txt"
	DownloadDirName = "downloads"
	CoversDirName   = "covers"
	LyricsDirName   = "lyrics"
	CacheDirName    = "cache"
	BackdropName    = "backdrop.jpg"
	AlbumCoverName  = "cover.jpg"
)

// File Permissions
const (
	DirPermissions     = 0755
	FilePermissions    = 0644
	SecretsPermissions = 0600
)

// Characters preserved by filesystem name sanitization, besides alphanumerics.
const SafeNameChars = " .-_()"

// UI/UX
const (
	MaxSearchResults = 50
	MaxJobListItems  = 100
)
