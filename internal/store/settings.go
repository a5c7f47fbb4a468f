package store

import (
	"context"
	"strconv"
	"time"

	"github.com/mpetrov/harmonia/internal/constants"
	"github.com/mpetrov/harmonia/internal/domain"
)

// Setting keys known to the application.
const (
	SettingSyncIntervalHours  = "scheduler.sync_interval_hours"
	SettingJobCleanupDays     = "scheduler.job_cleanup_days"
	SettingTokenCleanupDays   = "scheduler.token_cleanup_days"
	SettingRegistrationOpen   = "auth.registration_enabled"
	SettingMaxConcurrent      = "download.max_concurrent"
	SettingAudioQuality       = "download.audio_quality"
	SettingLyricsEnabled      = "features.lyrics_enabled"
	SettingChartsEnabled      = "features.charts_enabled"
)

type defaultSetting struct {
	value       string
	typ         domain.SettingType
	description string
}

var settingDefaults = map[string]defaultSetting{
	SettingSyncIntervalHours: {strconv.Itoa(constants.DefaultSyncIntervalHrs), domain.SettingInt, "Hours between periodic artist syncs"},
	SettingJobCleanupDays:    {strconv.Itoa(constants.DefaultJobCleanupDays), domain.SettingInt, "Days to keep finished jobs"},
	SettingTokenCleanupDays:  {"30", domain.SettingInt, "Days to keep expired session tokens"},
	SettingRegistrationOpen:  {"false", domain.SettingBool, "Allow new account registration"},
	SettingMaxConcurrent:     {"2", domain.SettingInt, "Maximum concurrent downloads"},
	SettingAudioQuality:      {"best", domain.SettingString, "Preferred extraction audio quality"},
	SettingLyricsEnabled:     {"true", domain.SettingBool, "Fetch synced lyrics after downloads"},
	SettingChartsEnabled:     {"true", domain.SettingBool, "Expose the charts browse surface"},
}

// SeedDefaults inserts any missing settings rows without touching existing
// values.
func (db *DB) SeedDefaults(ctx context.Context) error {
	return db.WithTx(ctx, func(tx *Tx) error {
		for key, def := range settingDefaults {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO settings (key, value, type, description, updated_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(key) DO NOTHING`,
				key, def.value, def.typ, def.description, time.Now().UTC())
			if err != nil {
				return wrapStorageErr("seed setting", err)
			}
		}
		return nil
	})
}

func (db *DB) GetSetting(ctx context.Context, key string) (*domain.Setting, error) {
	var s domain.Setting
	err := db.GetContext(ctx, &s, `SELECT * FROM settings WHERE key = ?`, key)
	if err != nil {
		return nil, wrapStorageErr("get setting", err)
	}
	return &s, nil
}

func (db *DB) ListSettings(ctx context.Context) ([]domain.Setting, error) {
	var settings []domain.Setting
	err := db.SelectContext(ctx, &settings, `SELECT * FROM settings ORDER BY key`)
	if err != nil {
		return nil, wrapStorageErr("list settings", err)
	}
	return settings, nil
}

// SetSetting updates an existing setting's value. Unknown keys are rejected
// with ErrNotFound so typos don't silently create rows.
func (db *DB) SetSetting(ctx context.Context, key, value string) error {
	res, err := db.ExecContext(ctx,
		`UPDATE settings SET value = ?, updated_at = ? WHERE key = ?`,
		value, time.Now().UTC(), key)
	if err != nil {
		return wrapStorageErr("set setting", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// IntSetting reads an int-typed setting, falling back when missing or
// unparseable.
func (db *DB) IntSetting(ctx context.Context, key string, fallback int) int {
	s, err := db.GetSetting(ctx, key)
	if err != nil {
		return fallback
	}
	if n, ok := s.TypedValue().(int); ok {
		return n
	}
	return fallback
}

// BoolSetting reads a bool-typed setting, falling back when missing.
func (db *DB) BoolSetting(ctx context.Context, key string, fallback bool) bool {
	s, err := db.GetSetting(ctx, key)
	if err != nil {
		return fallback
	}
	if b, ok := s.TypedValue().(bool); ok {
		return b
	}
	return fallback
}

// StringSetting reads a string-typed setting, falling back when missing.
func (db *DB) StringSetting(ctx context.Context, key, fallback string) string {
	s, err := db.GetSetting(ctx, key)
	if err != nil || s.Value == nil {
		return fallback
	}
	return *s.Value
}
