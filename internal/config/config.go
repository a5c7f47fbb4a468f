package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mpetrov/harmonia/internal/constants"
)

// Config holds all application configuration
type Config struct {
	Host        string
	Port        string
	ConfigDir   string
	MusicDir    string
	ProviderURL string
	LyricsURL   string
	YtdlpPath   string
	CookiesFile string

	WorkerCount  int
	PollInterval time.Duration
	IdleSleep    time.Duration
	MaxJobs      int // 0 = unlimited

	LogLevel  string
	LogFormat string
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	cfg := &Config{
		Host:        getEnv("HOST", constants.DefaultHost),
		Port:        getEnv("PORT", constants.DefaultPort),
		ConfigDir:   getEnv("CONFIG_DIR", constants.DefaultConfigDir),
		MusicDir:    getEnv("MUSIC_DIR", constants.DefaultMusicDir),
		ProviderURL: getEnv("PROVIDER_URL", constants.DefaultProviderURL),
		LyricsURL:   getEnv("LYRICS_URL", constants.DefaultLyricsURL),
		YtdlpPath:   getEnv("YTDLP_PATH", constants.DefaultYtdlpPath),

		WorkerCount:  getEnvInt("WORKER_COUNT", constants.DefaultWorkerCount),
		PollInterval: getEnvSeconds("WORKER_POLL_INTERVAL", constants.DefaultPollInterval),
		IdleSleep:    getEnvSeconds("WORKER_IDLE_SLEEP", constants.DefaultIdleSleep),
		MaxJobs:      getEnvInt("WORKER_MAX_JOBS", 0),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
	cfg.CookiesFile = getEnv("COOKIES_FILE", filepath.Join(cfg.ConfigDir, constants.CookiesFile))
	return cfg
}

// DBPath returns the path of the embedded catalog database file.
func (c *Config) DBPath() string {
	return filepath.Join(c.ConfigDir, constants.DatabaseFile)
}

// SecretsPath returns the path of the secrets file.
func (c *Config) SecretsPath() string {
	return filepath.Join(c.ConfigDir, constants.SecretsFile)
}

// DownloadDir is the staging directory for in-flight extractions.
func (c *Config) DownloadDir() string {
	return filepath.Join(c.ConfigDir, constants.DownloadDirName)
}

// CoversDir holds per-album cover images keyed by album id.
func (c *Config) CoversDir() string {
	return filepath.Join(c.ConfigDir, constants.CoversDirName)
}

// LyricsDir is the staging directory for lyrics files.
func (c *Config) LyricsDir() string {
	return filepath.Join(c.ConfigDir, constants.LyricsDirName)
}

// CacheDir holds proxied remote images.
func (c *Config) CacheDir() string {
	return filepath.Join(c.ConfigDir, constants.CacheDirName)
}

// Validate validates the configuration and returns detailed errors
func (c *Config) Validate() error {
	var errors []string

	if c.Port == "" {
		errors = append(errors, "PORT cannot be empty")
	} else {
		port, err := strconv.Atoi(c.Port)
		if err != nil {
			errors = append(errors, fmt.Sprintf("PORT must be a valid number, got: %s", c.Port))
		} else if port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("PORT must be between 1 and 65535, got: %d", port))
		}
	}

	if c.ConfigDir == "" {
		errors = append(errors, "CONFIG_DIR cannot be empty")
	}
	if c.MusicDir == "" {
		errors = append(errors, "MUSIC_DIR cannot be empty")
	}

	if c.ProviderURL == "" {
		errors = append(errors, "PROVIDER_URL cannot be empty")
	} else if _, err := url.Parse(c.ProviderURL); err != nil {
		errors = append(errors, fmt.Sprintf("PROVIDER_URL is not a valid URL: %s", c.ProviderURL))
	}
	if c.LyricsURL == "" {
		errors = append(errors, "LYRICS_URL cannot be empty")
	} else if _, err := url.Parse(c.LyricsURL); err != nil {
		errors = append(errors, fmt.Sprintf("LYRICS_URL is not a valid URL: %s", c.LyricsURL))
	}

	if c.WorkerCount < 1 {
		errors = append(errors, fmt.Sprintf("WORKER_COUNT must be at least 1, got: %d", c.WorkerCount))
	}
	if c.PollInterval <= 0 {
		errors = append(errors, "WORKER_POLL_INTERVAL must be positive")
	}
	if c.MaxJobs < 0 {
		errors = append(errors, fmt.Sprintf("WORKER_MAX_JOBS cannot be negative, got: %d", c.MaxJobs))
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: debug, info, warn, error, got: %s", c.LogLevel))
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[c.LogFormat] {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of: text, json, got: %s", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil && f > 0 {
			return time.Duration(f * float64(time.Second))
		}
	}
	return fallback
}
