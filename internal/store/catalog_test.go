package store

import (
	"context"
	"testing"
	"time"

	"github.com/mpetrov/harmonia/internal/domain"
)

func seedAlbumWithTracks(t *testing.T, db *DB, artistID, albumID string, statuses []domain.TrackStatus) {
	t.Helper()
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx *Tx) error {
		if err := tx.UpsertArtist(ctx, &domain.Artist{ID: artistID, Name: "Artist"}); err != nil {
			return err
		}
		if err := tx.UpsertAlbum(ctx, &domain.Album{ID: albumID, Title: "Album", Type: "Album", ArtistID: &artistID}); err != nil {
			return err
		}
		for i, status := range statuses {
			track := &domain.Track{
				ID:          albumID + "-t" + string(rune('a'+i)),
				Title:       "Track",
				AlbumID:     &albumID,
				TrackNumber: i + 1,
				Status:      status,
				ArtistValid: true,
			}
			if err := tx.UpsertTrack(ctx, track); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

func TestUpsertArtistPreservesLocalState(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx *Tx) error {
		if err := tx.UpsertArtist(ctx, &domain.Artist{ID: "UC1", Name: "Old Name"}); err != nil {
			return err
		}
		if err := tx.SetArtistFollowed(ctx, "UC1", true); err != nil {
			return err
		}
		return tx.SetArtistImage(ctx, "UC1", "/music/Artist/backdrop.jpg")
	})
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	// A re-sync refreshes the name but must keep follow state and image.
	err = db.WithTx(ctx, func(tx *Tx) error {
		return tx.UpsertArtist(ctx, &domain.Artist{ID: "UC1", Name: "New Name"})
	})
	if err != nil {
		t.Fatalf("re-upsert failed: %v", err)
	}

	a, err := db.GetArtist(ctx, "UC1")
	if err != nil {
		t.Fatalf("get artist failed: %v", err)
	}
	if a.Name != "New Name" {
		t.Errorf("expected refreshed name, got %s", a.Name)
	}
	if !a.Followed {
		t.Error("expected followed flag preserved")
	}
	if a.ImageLocal == nil || *a.ImageLocal != "/music/Artist/backdrop.jpg" {
		t.Error("expected image_local preserved")
	}
}

func TestUpsertTrackPreservesDownloadedFile(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seedAlbumWithTracks(t, db, "UC1", "ALB1", []domain.TrackStatus{domain.TrackStatusNew})
	trackID := "ALB1-ta"

	err := db.WithTx(ctx, func(tx *Tx) error {
		return tx.SetTrackFile(ctx, trackID, "/music/Artist/Album/01 Track.mp3")
	})
	if err != nil {
		t.Fatalf("set track file failed: %v", err)
	}

	// Re-import the same track with fresh metadata.
	albumID := "ALB1"
	err = db.WithTx(ctx, func(tx *Tx) error {
		return tx.UpsertTrack(ctx, &domain.Track{
			ID:          trackID,
			Title:       "Track (Remastered)",
			AlbumID:     &albumID,
			TrackNumber: 1,
			ArtistValid: true,
		})
	})
	if err != nil {
		t.Fatalf("re-upsert failed: %v", err)
	}

	tr, err := db.GetTrack(ctx, trackID)
	if err != nil {
		t.Fatalf("get track failed: %v", err)
	}
	if tr.Title != "Track (Remastered)" {
		t.Errorf("expected refreshed title, got %s", tr.Title)
	}
	if tr.Status != domain.TrackStatusDone {
		t.Errorf("expected status done preserved, got %s", tr.Status)
	}
	if tr.FilePath == nil {
		t.Error("expected file_path preserved across re-import")
	}
}

func TestSetTrackLyricsMarksHasLyrics(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seedAlbumWithTracks(t, db, "UC1", "ALB1", []domain.TrackStatus{domain.TrackStatusNew})
	trackID := "ALB1-ta"
	albumID := "ALB1"

	// The upstream lyrics flag is never persisted; only a local file counts.
	err := db.WithTx(ctx, func(tx *Tx) error {
		return tx.UpsertTrack(ctx, &domain.Track{
			ID:          trackID,
			Title:       "Track",
			AlbumID:     &albumID,
			TrackNumber: 1,
			HasLyrics:   true,
			ArtistValid: true,
		})
	})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	tr, err := db.GetTrack(ctx, trackID)
	if err != nil {
		t.Fatalf("get track failed: %v", err)
	}
	if tr.HasLyrics {
		t.Error("expected has_lyrics to stay false without a lyrics file")
	}

	err = db.WithTx(ctx, func(tx *Tx) error {
		return tx.SetTrackLyrics(ctx, trackID, "/music/Artist/Album/01 - Track.lrc")
	})
	if err != nil {
		t.Fatalf("set track lyrics failed: %v", err)
	}

	tr, err = db.GetTrack(ctx, trackID)
	if err != nil {
		t.Fatalf("get track failed: %v", err)
	}
	if !tr.HasLyrics {
		t.Error("expected has_lyrics set with the lyrics file")
	}
	if tr.LyricsLocal == nil || *tr.LyricsLocal != "/music/Artist/Album/01 - Track.lrc" {
		t.Error("expected lyrics_local recorded")
	}
}

func TestArtistSubscriptionLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx *Tx) error {
		if err := tx.UpsertArtist(ctx, &domain.Artist{ID: "UC1", Name: "Artist"}); err != nil {
			return err
		}
		return tx.SubscribeArtist(ctx, "UC1", "", nil)
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	a, _ := db.GetArtist(ctx, "UC1")
	if !a.Followed {
		t.Error("expected subscribe to set followed")
	}

	err = db.WithTx(ctx, func(tx *Tx) error {
		sub, err := tx.GetArtistSubscription(ctx, "UC1")
		if err != nil {
			return err
		}
		if sub.Mode != domain.ArtistSubModeFull {
			t.Errorf("expected default mode full, got %s", sub.Mode)
		}
		if !sub.Enabled {
			t.Error("expected subscription enabled")
		}
		return tx.UnsubscribeArtist(ctx, "UC1")
	})
	if err != nil {
		t.Fatalf("unsubscribe failed: %v", err)
	}

	a, _ = db.GetArtist(ctx, "UC1")
	if a.Followed {
		t.Error("expected unsubscribe to clear followed")
	}

	// Re-subscribing re-enables the existing row instead of duplicating it.
	err = db.WithTx(ctx, func(tx *Tx) error {
		return tx.SubscribeArtist(ctx, "UC1", domain.ArtistSubModeMonitor, nil)
	})
	if err != nil {
		t.Fatalf("re-subscribe failed: %v", err)
	}
	err = db.WithTx(ctx, func(tx *Tx) error {
		sub, err := tx.GetArtistSubscription(ctx, "UC1")
		if err != nil {
			return err
		}
		if !sub.Enabled || sub.Mode != domain.ArtistSubModeMonitor {
			t.Errorf("expected re-enabled monitor subscription, got enabled=%v mode=%s", sub.Enabled, sub.Mode)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestArtistsNeedingSync(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	subscribe := func(id string, interval *int) {
		err := db.WithTx(ctx, func(tx *Tx) error {
			if err := tx.UpsertArtist(ctx, &domain.Artist{ID: id, Name: id}); err != nil {
				return err
			}
			return tx.SubscribeArtist(ctx, id, "", interval)
		})
		if err != nil {
			t.Fatalf("subscribe %s failed: %v", id, err)
		}
	}

	short := 1
	subscribe("never-synced", nil)
	subscribe("fresh", nil)
	subscribe("stale-custom", &short)

	err := db.WithTx(ctx, func(tx *Tx) error {
		if err := tx.MarkArtistSynced(ctx, "fresh", nil); err != nil {
			return err
		}
		// stale-custom synced 2h ago with a 1h cadence.
		_, err := tx.ExecContext(ctx,
			`UPDATE artist_subscriptions SET last_synced_at = ? WHERE artist_id = ?`,
			now.UTC().Add(-2*time.Hour), "stale-custom")
		return err
	})
	if err != nil {
		t.Fatalf("mark synced failed: %v", err)
	}

	ids, err := db.ArtistsNeedingSync(ctx, 6*time.Hour, now)
	if err != nil {
		t.Fatalf("artists needing sync failed: %v", err)
	}

	want := map[string]bool{"never-synced": true, "stale-custom": true}
	if len(ids) != len(want) {
		t.Fatalf("expected %d artists, got %v", len(want), ids)
	}
	for _, id := range ids {
		if !want[id] {
			t.Errorf("unexpected artist %s needs sync", id)
		}
	}
}

func TestRefreshAlbumDownloadStatus(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		statuses []domain.TrackStatus
		want     domain.DownloadStatus
	}{
		{"all done", []domain.TrackStatus{domain.TrackStatusDone, domain.TrackStatusDone}, domain.DownloadStatusCompleted},
		{"any downloading", []domain.TrackStatus{domain.TrackStatusDone, domain.TrackStatusDownloading}, domain.DownloadStatusDownloading},
		{"all failed", []domain.TrackStatus{domain.TrackStatusFailed, domain.TrackStatusFailed}, domain.DownloadStatusFailed},
		{"mixed", []domain.TrackStatus{domain.TrackStatusDone, domain.TrackStatusFailed}, domain.DownloadStatusPending},
		{"no tracks", nil, domain.DownloadStatusPending},
	}

	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			albumID := "ALB" + string(rune('a'+i))
			seedAlbumWithTracks(t, db, "UC1", albumID, tc.statuses)

			err := db.WithTx(ctx, func(tx *Tx) error {
				if err := tx.SubscribeAlbum(ctx, albumID, nil, ""); err != nil {
					return err
				}
				got, err := tx.RefreshAlbumDownloadStatus(ctx, albumID)
				if err != nil {
					return err
				}
				if got != tc.want {
					t.Errorf("expected %s, got %s", tc.want, got)
				}

				sub, err := tx.GetAlbumSubscription(ctx, albumID)
				if err != nil {
					return err
				}
				if sub.DownloadStatus != tc.want {
					t.Errorf("expected persisted status %s, got %s", tc.want, sub.DownloadStatus)
				}
				return nil
			})
			if err != nil {
				t.Fatalf("refresh failed: %v", err)
			}
		})
	}
}

func TestSettingsSeedAndTypes(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.SeedDefaults(ctx); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if got := db.IntSetting(ctx, SettingSyncIntervalHours, 99); got != 6 {
		t.Errorf("expected sync interval 6, got %d", got)
	}
	if got := db.BoolSetting(ctx, SettingLyricsEnabled, false); !got {
		t.Error("expected lyrics enabled by default")
	}

	if err := db.SetSetting(ctx, SettingSyncIntervalHours, "12"); err != nil {
		t.Fatalf("set setting failed: %v", err)
	}
	if got := db.IntSetting(ctx, SettingSyncIntervalHours, 99); got != 12 {
		t.Errorf("expected updated interval 12, got %d", got)
	}

	// Seeding again never clobbers operator values.
	if err := db.SeedDefaults(ctx); err != nil {
		t.Fatalf("re-seed failed: %v", err)
	}
	if got := db.IntSetting(ctx, SettingSyncIntervalHours, 99); got != 12 {
		t.Errorf("expected interval to survive re-seed, got %d", got)
	}

	if err := db.SetSetting(ctx, "no.such.key", "x"); !IsNotFound(err) {
		t.Errorf("expected unknown key rejected, got %v", err)
	}
}

func TestDeleteExpiredSessions(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	expired := &domain.SessionToken{Token: "tok-expired", UserID: 1, ExpiresAt: now.Add(-time.Hour)}
	live := &domain.SessionToken{Token: "tok-live", UserID: 1, ExpiresAt: now.Add(time.Hour)}
	for _, tok := range []*domain.SessionToken{expired, live} {
		if err := db.InsertSessionToken(ctx, tok); err != nil {
			t.Fatalf("insert token failed: %v", err)
		}
	}

	n, err := db.DeleteExpiredSessions(ctx, now)
	if err != nil {
		t.Fatalf("delete expired failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 token removed, got %d", n)
	}

	if _, err := db.GetSessionToken(ctx, "tok-expired"); !IsNotFound(err) {
		t.Error("expected expired token removed")
	}
	if _, err := db.GetSessionToken(ctx, "tok-live"); err != nil {
		t.Errorf("expected live token kept: %v", err)
	}
}
