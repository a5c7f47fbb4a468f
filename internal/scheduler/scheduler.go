// Package scheduler owns the periodic work: queueing artist syncs, pruning
// old jobs and expired sessions, and refreshing its own cadences from
// settings. It never executes jobs itself; everything durable goes through
// the queue.
package scheduler

import (
	"context"
	"time"

	"github.com/mpetrov/harmonia/internal/constants"
	"github.com/mpetrov/harmonia/internal/domain"
	"github.com/mpetrov/harmonia/internal/logger"
	"github.com/mpetrov/harmonia/internal/store"
	"github.com/mpetrov/harmonia/internal/tasks"
)

type Scheduler struct {
	db  *store.DB
	log *logger.Logger

	// cadences, refreshed from settings
	syncInterval     time.Duration
	cleanupDays      int
	tokenCleanupDays int

	lastSync            time.Time
	lastCleanup         time.Time
	lastTokenCleanup    time.Time
	lastSettingsRefresh time.Time
}

func New(db *store.DB, log *logger.Logger) *Scheduler {
	return &Scheduler{
		db:               db,
		log:              log.WithComponent("scheduler"),
		syncInterval:     constants.DefaultSyncInterval,
		cleanupDays:      constants.DefaultJobCleanupDays,
		tokenCleanupDays: constants.DefaultTokenCleanupDays,
	}
}

// Run ticks once a minute until ctx is cancelled. The first tick runs
// immediately so a restart never delays overdue work by a full cadence.
func (s *Scheduler) Run(ctx context.Context) {
	if err := s.waitForDB(ctx); err != nil {
		return
	}

	s.log.Info("scheduler started",
		"sync_interval", s.syncInterval.String(),
		"cleanup_days", s.cleanupDays)

	s.refreshSettings(ctx, time.Now())
	s.tick(ctx, time.Now())

	ticker := time.NewTicker(constants.SchedulerTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

// waitForDB blocks until the database answers a ping. Container setups bring
// the volume up asynchronously.
func (s *Scheduler) waitForDB(ctx context.Context) error {
	for {
		if err := s.db.PingContext(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// tick runs every due cadence. Exported through Run only; tests drive it
// directly with a synthetic clock.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	if now.Sub(s.lastSettingsRefresh) >= constants.DefaultSettingsRefresh {
		s.refreshSettings(ctx, now)
	}
	if now.Sub(s.lastSync) >= s.syncInterval {
		s.queueArtistSyncs(ctx, now)
		s.lastSync = now
	}
	if now.Sub(s.lastCleanup) >= constants.DefaultCleanupInterval {
		s.cleanupJobs(ctx, now)
		s.lastCleanup = now
	}
	if now.Sub(s.lastTokenCleanup) >= constants.DefaultCleanupInterval {
		s.cleanupTokens(ctx, now)
		s.lastTokenCleanup = now
	}
}

func (s *Scheduler) refreshSettings(ctx context.Context, now time.Time) {
	hours := s.db.IntSetting(ctx, store.SettingSyncIntervalHours, constants.DefaultSyncIntervalHrs)
	if hours > 0 {
		s.syncInterval = time.Duration(hours) * time.Hour
	}
	if days := s.db.IntSetting(ctx, store.SettingJobCleanupDays, constants.DefaultJobCleanupDays); days > 0 {
		s.cleanupDays = days
	}
	if days := s.db.IntSetting(ctx, store.SettingTokenCleanupDays, constants.DefaultTokenCleanupDays); days > 0 {
		s.tokenCleanupDays = days
	}
	s.lastSettingsRefresh = now
}

// queueArtistSyncs enqueues a sync job for every followed artist whose last
// sync is older than its cadence. Syncs outrank downloads so new releases
// surface even under a deep download backlog.
func (s *Scheduler) queueArtistSyncs(ctx context.Context, now time.Time) {
	ids, err := s.db.ArtistsNeedingSync(ctx, s.syncInterval, now)
	if err != nil {
		s.log.Error("failed to list artists needing sync", "error", err)
		return
	}

	queued := 0
	for _, id := range ids {
		_, err := s.db.Enqueue(ctx, domain.JobTypeSyncArtist,
			tasks.SyncArtistPayload{ArtistID: id},
			store.EnqueueOpts{Priority: constants.PrioritySyncArtist})
		if err != nil {
			s.log.Error("failed to queue artist sync", "artist_id", id, "error", err)
			continue
		}
		queued++
	}

	if queued > 0 {
		s.log.Info("queued artist syncs", "count", queued)
	}
}

func (s *Scheduler) cleanupJobs(ctx context.Context, now time.Time) {
	// Failed and cancelled jobs stay for inspection; done ones go.
	n, err := s.db.CleanupOld(ctx, s.cleanupDays, true, now)
	if err != nil {
		s.log.Error("failed to clean up jobs", "error", err)
		return
	}
	if n > 0 {
		s.log.Info("cleaned up old jobs", "removed", n)
	}
}

// cleanupTokens prunes session tokens whose expiry is older than the
// configured retention, keeping recently expired ones around for inspection.
func (s *Scheduler) cleanupTokens(ctx context.Context, now time.Time) {
	cutoff := now.AddDate(0, 0, -s.tokenCleanupDays)
	n, err := s.db.DeleteExpiredSessions(ctx, cutoff)
	if err != nil {
		s.log.Error("failed to clean up session tokens", "error", err)
		return
	}
	if n > 0 {
		s.log.Info("cleaned up session tokens", "removed", n)
	}
}
