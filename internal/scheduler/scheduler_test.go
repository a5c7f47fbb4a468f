package scheduler

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/mpetrov/harmonia/internal/constants"
	"github.com/mpetrov/harmonia/internal/domain"
	"github.com/mpetrov/harmonia/internal/logger"
	"github.com/mpetrov/harmonia/internal/store"
	"github.com/mpetrov/harmonia/internal/tasks"
)

func setupTestDB(t *testing.T) *store.DB {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func followArtist(t *testing.T, db *store.DB, id string) {
	t.Helper()
	ctx := context.Background()
	err := db.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.UpsertArtist(ctx, &domain.Artist{ID: id, Name: id}); err != nil {
			return err
		}
		return tx.SubscribeArtist(ctx, id, "", nil)
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestTickQueuesOverdueArtistSyncs(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	followArtist(t, db, "UC1")
	followArtist(t, db, "UC2")

	s := New(db, logger.Default())
	now := time.Now()
	s.tick(ctx, now)

	jobs, err := db.ListJobs(ctx, domain.JobStatusQueued, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 sync jobs, got %d", len(jobs))
	}

	seen := map[string]bool{}
	for _, job := range jobs {
		if job.Type != domain.JobTypeSyncArtist {
			t.Errorf("unexpected job type %s", job.Type)
		}
		if job.Priority != constants.PrioritySyncArtist {
			t.Errorf("expected sync priority %d, got %d", constants.PrioritySyncArtist, job.Priority)
		}
		var p tasks.SyncArtistPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			t.Fatal(err)
		}
		seen[p.ArtistID] = true
	}
	if !seen["UC1"] || !seen["UC2"] {
		t.Errorf("expected syncs for both artists, got %v", seen)
	}

	// Within the cadence nothing new is queued.
	s.tick(ctx, now.Add(time.Minute))
	jobs, _ = db.ListJobs(ctx, domain.JobStatusQueued, 0)
	if len(jobs) != 2 {
		t.Errorf("expected no duplicate syncs inside the cadence, got %d jobs", len(jobs))
	}
}

func TestTickRespectsSettingsCadence(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.SeedDefaults(ctx); err != nil {
		t.Fatal(err)
	}
	if err := db.SetSetting(ctx, store.SettingSyncIntervalHours, "12"); err != nil {
		t.Fatal(err)
	}

	s := New(db, logger.Default())
	s.refreshSettings(ctx, time.Now())

	if s.syncInterval != 12*time.Hour {
		t.Errorf("expected sync interval from settings, got %v", s.syncInterval)
	}
}

func TestTickCleansUpOldJobsKeepingFailed(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	doneJob, err := db.Enqueue(ctx, domain.JobTypeDownloadTrack, nil, store.EnqueueOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Reserve(ctx, "w1", now); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkDone(ctx, doneJob.ID, nil); err != nil {
		t.Fatal(err)
	}

	failedJob, err := db.Enqueue(ctx, domain.JobTypeDownloadTrack, nil, store.EnqueueOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Reserve(ctx, "w1", now); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkFailed(ctx, failedJob.ID, "x", nil); err != nil {
		t.Fatal(err)
	}

	s := New(db, logger.Default())
	s.tick(ctx, now.AddDate(0, 0, 10))

	if _, err := db.GetJob(ctx, doneJob.ID); !store.IsNotFound(err) {
		t.Error("expected done job removed")
	}
	if _, err := db.GetJob(ctx, failedJob.ID); err != nil {
		t.Errorf("expected failed job kept: %v", err)
	}
}

func TestTickCleansUpExpiredTokens(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	stale := &domain.SessionToken{Token: "stale", UserID: 1, ExpiresAt: now.AddDate(0, 0, -40)}
	if err := db.InsertSessionToken(ctx, stale); err != nil {
		t.Fatal(err)
	}
	recent := &domain.SessionToken{Token: "recent", UserID: 1, ExpiresAt: now.Add(-time.Hour)}
	if err := db.InsertSessionToken(ctx, recent); err != nil {
		t.Fatal(err)
	}

	s := New(db, logger.Default())
	s.tick(ctx, now)

	if _, err := db.GetSessionToken(ctx, "stale"); !store.IsNotFound(err) {
		t.Error("expected token past retention removed")
	}
	// Recently expired tokens stay inside the retention window.
	if _, err := db.GetSessionToken(ctx, "recent"); err != nil {
		t.Errorf("expected recently expired token kept: %v", err)
	}
}

func TestTokenRetentionFollowsSettings(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.SeedDefaults(ctx); err != nil {
		t.Fatal(err)
	}
	if err := db.SetSetting(ctx, store.SettingTokenCleanupDays, "7"); err != nil {
		t.Fatal(err)
	}

	s := New(db, logger.Default())
	s.refreshSettings(ctx, time.Now())

	if s.tokenCleanupDays != 7 {
		t.Errorf("expected token retention from settings, got %d", s.tokenCleanupDays)
	}
}
