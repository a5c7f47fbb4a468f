package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mpetrov/harmonia/internal/domain"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type testPayload struct {
	ArtistID string `json:"artist_id"`
}

func enqueueTest(t *testing.T, db *DB, jobType string, opts EnqueueOpts) *domain.Job {
	t.Helper()

	job, err := db.Enqueue(context.Background(), jobType, testPayload{ArtistID: "UC123"}, opts)
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	return job
}

func TestEnqueueDefaults(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	job := enqueueTest(t, db, domain.JobTypeSyncArtist, EnqueueOpts{})

	if job.ID == 0 {
		t.Error("expected assigned job id")
	}
	if job.Status != domain.JobStatusQueued {
		t.Errorf("expected status queued, got %s", job.Status)
	}
	if job.MaxAttempts != 5 {
		t.Errorf("expected default max attempts 5, got %d", job.MaxAttempts)
	}

	got, err := db.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job failed: %v", err)
	}
	var p testPayload
	if err := json.Unmarshal(got.Payload, &p); err != nil {
		t.Fatalf("payload did not round-trip: %v", err)
	}
	if p.ArtistID != "UC123" {
		t.Errorf("expected payload artist UC123, got %s", p.ArtistID)
	}
}

func TestReservedJobCarriesPayload(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	enqueueTest(t, db, domain.JobTypeSyncArtist, EnqueueOpts{})

	job, err := db.Reserve(ctx, "w1", time.Now())
	if err != nil || job == nil {
		t.Fatalf("reserve failed: %v", err)
	}
	var p testPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		t.Fatalf("payload did not survive reserve: %v", err)
	}
	if p.ArtistID != "UC123" {
		t.Errorf("expected payload artist UC123, got %s", p.ArtistID)
	}

	jobs, err := db.ListJobs(ctx, "", 10)
	if err != nil {
		t.Fatalf("list jobs failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 listed job, got %d", len(jobs))
	}
	if err := json.Unmarshal(jobs[0].Payload, &p); err != nil {
		t.Fatalf("payload did not survive listing: %v", err)
	}
}

func TestReserveCountsAttempt(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	job := enqueueTest(t, db, domain.JobTypeSyncArtist, EnqueueOpts{})
	if job.Attempts != 0 {
		t.Fatalf("expected fresh job with 0 attempts, got %d", job.Attempts)
	}

	claimed, err := db.Reserve(ctx, "w1", time.Now())
	if err != nil || claimed == nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if claimed.Attempts != 1 {
		t.Errorf("expected claim to count the attempt, got %d", claimed.Attempts)
	}

	if err := db.MarkDone(ctx, job.ID, nil); err != nil {
		t.Fatalf("mark done failed: %v", err)
	}
	got, err := db.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job failed: %v", err)
	}
	if got.Attempts != 1 {
		t.Errorf("expected attempts 1 after one successful run, got %d", got.Attempts)
	}
}

func TestReserveOrdering(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	low := enqueueTest(t, db, domain.JobTypeDownloadTrack, EnqueueOpts{Priority: 0})
	high := enqueueTest(t, db, domain.JobTypeSyncArtist, EnqueueOpts{Priority: 5})
	mid := enqueueTest(t, db, domain.JobTypeImportAlbum, EnqueueOpts{Priority: 3})

	want := []int64{high.ID, mid.ID, low.ID}
	for i, id := range want {
		job, err := db.Reserve(ctx, "w1", now)
		if err != nil {
			t.Fatalf("reserve %d failed: %v", i, err)
		}
		if job == nil {
			t.Fatalf("reserve %d returned no job", i)
		}
		if job.ID != id {
			t.Errorf("reserve %d: expected job %d, got %d", i, id, job.ID)
		}
		if job.Status != domain.JobStatusReserved {
			t.Errorf("reserve %d: expected status reserved, got %s", i, job.Status)
		}
		if job.ReservedBy == nil || *job.ReservedBy != "w1" {
			t.Errorf("reserve %d: reserved_by not recorded", i)
		}
	}

	job, err := db.Reserve(ctx, "w1", now)
	if err != nil {
		t.Fatalf("reserve on empty queue failed: %v", err)
	}
	if job != nil {
		t.Errorf("expected empty queue, got job %d", job.ID)
	}
}

func TestReserveFIFOWithinPriority(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first := enqueueTest(t, db, domain.JobTypeDownloadTrack, EnqueueOpts{})
	second := enqueueTest(t, db, domain.JobTypeDownloadTrack, EnqueueOpts{})

	job, err := db.Reserve(ctx, "w1", time.Now())
	if err != nil || job == nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if job.ID != first.ID {
		t.Errorf("expected oldest job %d first, got %d", first.ID, job.ID)
	}

	job, err = db.Reserve(ctx, "w1", time.Now())
	if err != nil || job == nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if job.ID != second.ID {
		t.Errorf("expected job %d second, got %d", second.ID, job.ID)
	}
}

func TestReserveSkipsFutureScheduled(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	future := now.Add(time.Hour)
	job := enqueueTest(t, db, domain.JobTypeDownloadLyrics, EnqueueOpts{ScheduledAt: &future})

	got, err := db.Reserve(ctx, "w1", now)
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no runnable job, got %d", got.ID)
	}

	got, err = db.Reserve(ctx, "w1", now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if got == nil || got.ID != job.ID {
		t.Fatal("expected scheduled job to become runnable after its time")
	}
}

func TestReserveExactlyOnce(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	const jobCount = 20
	for i := 0; i < jobCount; i++ {
		enqueueTest(t, db, domain.JobTypeDownloadTrack, EnqueueOpts{})
	}

	var mu sync.Mutex
	claimed := make(map[int64]string)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(worker string) {
			defer wg.Done()
			for {
				job, err := db.Reserve(ctx, worker, time.Now())
				if err != nil {
					t.Errorf("reserve failed: %v", err)
					return
				}
				if job == nil {
					return
				}
				mu.Lock()
				if prev, ok := claimed[job.ID]; ok {
					t.Errorf("job %d claimed by both %s and %s", job.ID, prev, worker)
				}
				claimed[job.ID] = worker
				mu.Unlock()
			}
		}("w" + string(rune('0'+w)))
	}
	wg.Wait()

	if len(claimed) != jobCount {
		t.Errorf("expected %d jobs claimed, got %d", jobCount, len(claimed))
	}
}

func TestMarkDone(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	job := enqueueTest(t, db, domain.JobTypeSyncArtist, EnqueueOpts{})
	if _, err := db.Reserve(ctx, "w1", time.Now()); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	if err := db.MarkDone(ctx, job.ID, json.RawMessage(`{"albums":3}`)); err != nil {
		t.Fatalf("mark done failed: %v", err)
	}

	got, err := db.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job failed: %v", err)
	}
	if got.Status != domain.JobStatusDone {
		t.Errorf("expected status done, got %s", got.Status)
	}
	if got.FinishedAt == nil {
		t.Error("expected finished_at set")
	}
	if got.LastError != nil {
		t.Errorf("expected last_error cleared, got %q", *got.LastError)
	}
	if string(got.Result) != `{"albums":3}` {
		t.Errorf("result did not round-trip, got %s", got.Result)
	}
}

func TestMarkDoneIgnoresRequeuedJob(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	job := enqueueTest(t, db, domain.JobTypeDownloadTrack, EnqueueOpts{})
	if _, err := db.Reserve(ctx, "w1", time.Now()); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	// Operator requeues the job believing w1 is dead.
	if _, err := db.RequeueStale(ctx, 0, time.Now().Add(time.Second)); err != nil {
		t.Fatalf("requeue stale failed: %v", err)
	}

	// The slow worker finally finishes. The job is queued again, so the
	// completion must not apply.
	if err := db.MarkDone(ctx, job.ID, nil); err != nil {
		t.Fatalf("mark done failed: %v", err)
	}

	got, err := db.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job failed: %v", err)
	}
	if got.Status != domain.JobStatusQueued {
		t.Errorf("expected job to stay queued, got %s", got.Status)
	}
}

func TestMarkFailedRequeuesWithDelay(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	job := enqueueTest(t, db, domain.JobTypeDownloadTrack, EnqueueOpts{})
	if _, err := db.Reserve(ctx, "w1", time.Now()); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	delay := 300 * time.Second
	if err := db.MarkFailed(ctx, job.ID, "extraction failed", &delay); err != nil {
		t.Fatalf("mark failed failed: %v", err)
	}

	got, err := db.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job failed: %v", err)
	}
	if got.Status != domain.JobStatusQueued {
		t.Errorf("expected status queued, got %s", got.Status)
	}
	if got.Attempts != 1 {
		t.Errorf("expected attempts 1, got %d", got.Attempts)
	}
	if got.ScheduledAt == nil || !got.ScheduledAt.After(time.Now().Add(4*time.Minute)) {
		t.Error("expected scheduled_at pushed ~5 minutes out")
	}
	if got.LastError == nil || *got.LastError != "extraction failed" {
		t.Error("expected last_error recorded")
	}
	if got.ReservedBy != nil {
		t.Error("expected reserved_by cleared on requeue")
	}
	if got.StartedAt == nil {
		t.Error("expected started_at kept across requeue")
	}

	// Not runnable before the delay elapses.
	next, err := db.Reserve(ctx, "w2", time.Now())
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if next != nil {
		t.Errorf("expected delayed job to be unrunnable, got %d", next.ID)
	}
}

func TestMarkFailedTerminal(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// No retry delay means terminal failure regardless of attempts left.
	job := enqueueTest(t, db, domain.JobTypeSyncArtist, EnqueueOpts{})
	if _, err := db.Reserve(ctx, "w1", time.Now()); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if err := db.MarkFailed(ctx, job.ID, "artist vanished", nil); err != nil {
		t.Fatalf("mark failed failed: %v", err)
	}

	got, err := db.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job failed: %v", err)
	}
	if got.Status != domain.JobStatusFailed {
		t.Errorf("expected status failed, got %s", got.Status)
	}
	if got.FinishedAt == nil {
		t.Error("expected finished_at set")
	}
}

func TestMarkFailedExhaustsAttempts(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	job := enqueueTest(t, db, domain.JobTypeDownloadTrack, EnqueueOpts{MaxAttempts: 2})
	delay := time.Duration(0)

	if _, err := db.Reserve(ctx, "w1", time.Now()); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if err := db.MarkFailed(ctx, job.ID, "attempt 1", &delay); err != nil {
		t.Fatalf("mark failed failed: %v", err)
	}

	got, _ := db.GetJob(ctx, job.ID)
	if got.Status != domain.JobStatusQueued {
		t.Fatalf("expected requeue after first failure, got %s", got.Status)
	}

	if _, err := db.Reserve(ctx, "w1", time.Now().Add(time.Second)); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if err := db.MarkFailed(ctx, job.ID, "attempt 2", &delay); err != nil {
		t.Fatalf("mark failed failed: %v", err)
	}

	got, _ = db.GetJob(ctx, job.ID)
	if got.Status != domain.JobStatusFailed {
		t.Errorf("expected terminal failure after max attempts, got %s", got.Status)
	}
	if got.Attempts != 2 {
		t.Errorf("expected attempts 2, got %d", got.Attempts)
	}
}

func TestCancel(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	job := enqueueTest(t, db, domain.JobTypeImportAlbum, EnqueueOpts{})

	ok, err := db.Cancel(ctx, job.ID)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if !ok {
		t.Fatal("expected queued job to cancel")
	}

	got, _ := db.GetJob(ctx, job.ID)
	if got.Status != domain.JobStatusCancelled {
		t.Errorf("expected status cancelled, got %s", got.Status)
	}

	// A terminal job refuses cancellation.
	ok, err = db.Cancel(ctx, job.ID)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if ok {
		t.Error("expected cancel of terminal job to be refused")
	}
}

func TestRetryTerminalJob(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	job := enqueueTest(t, db, domain.JobTypeDownloadTrack, EnqueueOpts{})
	if _, err := db.Reserve(ctx, "w1", time.Now()); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if err := db.MarkFailed(ctx, job.ID, "boom", nil); err != nil {
		t.Fatalf("mark failed failed: %v", err)
	}

	ok, err := db.Retry(ctx, job.ID)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if !ok {
		t.Fatal("expected failed job to retry")
	}

	got, _ := db.GetJob(ctx, job.ID)
	if got.Status != domain.JobStatusQueued {
		t.Errorf("expected status queued, got %s", got.Status)
	}
	if got.Attempts != 0 {
		t.Errorf("expected attempts reset, got %d", got.Attempts)
	}
	if got.LastError != nil {
		t.Error("expected last_error cleared")
	}

	// A queued job is not retryable.
	ok, err = db.Retry(ctx, job.ID)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if ok {
		t.Error("expected retry of queued job to be refused")
	}
}

func TestRequeueStale(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	job := enqueueTest(t, db, domain.JobTypeSyncArtist, EnqueueOpts{})
	startedAt := time.Now().Add(-time.Hour)
	if _, err := db.Reserve(ctx, "w-dead", startedAt); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	n, err := db.RequeueStale(ctx, 30*time.Minute, time.Now())
	if err != nil {
		t.Fatalf("requeue stale failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 requeued job, got %d", n)
	}

	got, _ := db.GetJob(ctx, job.ID)
	if got.Status != domain.JobStatusQueued {
		t.Errorf("expected status queued, got %s", got.Status)
	}
	if got.ReservedBy != nil {
		t.Error("expected reserved_by cleared")
	}
}

func TestCleanupOldKeepsFailed(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	finish := func(terminal domain.JobStatus) int64 {
		job := enqueueTest(t, db, domain.JobTypeDownloadTrack, EnqueueOpts{})
		if _, err := db.Reserve(ctx, "w1", now); err != nil {
			t.Fatalf("reserve failed: %v", err)
		}
		switch terminal {
		case domain.JobStatusDone:
			if err := db.MarkDone(ctx, job.ID, nil); err != nil {
				t.Fatalf("mark done failed: %v", err)
			}
		case domain.JobStatusFailed:
			if err := db.MarkFailed(ctx, job.ID, "x", nil); err != nil {
				t.Fatalf("mark failed failed: %v", err)
			}
		}
		return job.ID
	}

	doneID := finish(domain.JobStatusDone)
	failedID := finish(domain.JobStatusFailed)
	cancelled := enqueueTest(t, db, domain.JobTypeDownloadTrack, EnqueueOpts{})
	if _, err := db.Cancel(ctx, cancelled.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	queued := enqueueTest(t, db, domain.JobTypeDownloadTrack, EnqueueOpts{})

	// keepFailed retains failed and cancelled jobs for inspection.
	n, err := db.CleanupOld(ctx, 3, true, now.AddDate(0, 0, 10))
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 job removed, got %d", n)
	}

	if _, err := db.GetJob(ctx, doneID); !IsNotFound(err) {
		t.Error("expected done job removed")
	}
	if _, err := db.GetJob(ctx, failedID); err != nil {
		t.Errorf("expected failed job kept: %v", err)
	}
	if _, err := db.GetJob(ctx, cancelled.ID); err != nil {
		t.Errorf("expected cancelled job kept: %v", err)
	}
	if _, err := db.GetJob(ctx, queued.ID); err != nil {
		t.Errorf("expected queued job kept: %v", err)
	}

	// Without keepFailed the failed and cancelled jobs go too.
	n, err = db.CleanupOld(ctx, 3, false, now.AddDate(0, 0, 10))
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 jobs removed, got %d", n)
	}
	if _, err := db.GetJob(ctx, failedID); !IsNotFound(err) {
		t.Error("expected failed job removed without keepFailed")
	}
	if _, err := db.GetJob(ctx, cancelled.ID); !IsNotFound(err) {
		t.Error("expected cancelled job removed without keepFailed")
	}
}

func TestEnqueueTxVisibleOnlyAfterCommit(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx *Tx) error {
		for i := 0; i < 3; i++ {
			if _, err := tx.EnqueueTx(ctx, domain.JobTypeDownloadTrack, testPayload{ArtistID: "UC123"}, EnqueueOpts{}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("bulk enqueue failed: %v", err)
	}

	stats, err := db.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Queued != 3 {
		t.Errorf("expected 3 queued jobs, got %d", stats.Queued)
	}
}

func TestStats(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	enqueueTest(t, db, domain.JobTypeSyncArtist, EnqueueOpts{})
	job := enqueueTest(t, db, domain.JobTypeDownloadTrack, EnqueueOpts{})
	if _, err := db.Reserve(ctx, "w1", time.Now()); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	_ = job

	stats, err := db.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Queued != 1 || stats.Reserved != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
