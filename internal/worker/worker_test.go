package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

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

func fastOpts(maxJobs int) Options {
	return Options{
		PollInterval: time.Millisecond,
		IdleSleep:    5 * time.Millisecond,
		MaxJobs:      maxJobs,
	}
}

func TestWorkerRunsJobsToDone(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	var handled atomic.Int32
	handlers := map[string]tasks.Handler{
		"noop": func(ctx context.Context, payload json.RawMessage) tasks.Result {
			handled.Add(1)
			return tasks.Result{Extra: map[string]interface{}{"ok": true}}
		},
	}

	var ids []int64
	for i := 0; i < 3; i++ {
		job, err := db.Enqueue(ctx, "noop", nil, store.EnqueueOpts{})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, job.ID)
	}

	w := New(db, handlers, fastOpts(3), logger.Default())
	w.Run(ctx)

	if got := handled.Load(); got != 3 {
		t.Errorf("expected 3 handled jobs, got %d", got)
	}
	for _, id := range ids {
		job, err := db.GetJob(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if job.Status != domain.JobStatusDone {
			t.Errorf("job %d: expected done, got %s", id, job.Status)
		}
		if job.Result == nil {
			t.Errorf("job %d: expected result recorded", id)
		}
	}
}

func TestWorkerTranslatesRetryResult(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	delay := 10 * time.Minute
	handlers := map[string]tasks.Handler{
		"flaky": func(ctx context.Context, payload json.RawMessage) tasks.Result {
			return tasks.Result{Err: errors.New("transient"), RetryDelay: &delay}
		},
	}

	job, err := db.Enqueue(ctx, "flaky", nil, store.EnqueueOpts{})
	if err != nil {
		t.Fatal(err)
	}

	w := New(db, handlers, fastOpts(1), logger.Default())
	w.Run(ctx)

	got, err := db.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.JobStatusQueued {
		t.Errorf("expected requeue, got %s", got.Status)
	}
	if got.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", got.Attempts)
	}
	if got.ScheduledAt == nil {
		t.Error("expected delayed schedule")
	}
	if got.LastError == nil || *got.LastError != "transient" {
		t.Error("expected error recorded")
	}
}

func TestWorkerTerminalFailure(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	handlers := map[string]tasks.Handler{
		"broken": func(ctx context.Context, payload json.RawMessage) tasks.Result {
			return tasks.Result{Err: errors.New("bad payload")}
		},
	}

	job, err := db.Enqueue(ctx, "broken", nil, store.EnqueueOpts{})
	if err != nil {
		t.Fatal(err)
	}

	w := New(db, handlers, fastOpts(1), logger.Default())
	w.Run(ctx)

	got, _ := db.GetJob(ctx, job.ID)
	if got.Status != domain.JobStatusFailed {
		t.Errorf("expected terminal failure, got %s", got.Status)
	}
}

func TestWorkerUnknownJobType(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	job, err := db.Enqueue(ctx, "no_such_type", nil, store.EnqueueOpts{})
	if err != nil {
		t.Fatal(err)
	}

	w := New(db, map[string]tasks.Handler{}, fastOpts(1), logger.Default())
	w.Run(ctx)

	got, _ := db.GetJob(ctx, job.ID)
	if got.Status != domain.JobStatusFailed {
		t.Errorf("expected unknown type to fail terminally, got %s", got.Status)
	}
	if got.LastError == nil {
		t.Error("expected error message recorded")
	}
}

func TestWorkerRecoversFromPanic(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	handlers := map[string]tasks.Handler{
		"panics": func(ctx context.Context, payload json.RawMessage) tasks.Result {
			panic("boom")
		},
		"noop": func(ctx context.Context, payload json.RawMessage) tasks.Result {
			return tasks.Result{}
		},
	}

	bad, err := db.Enqueue(ctx, "panics", nil, store.EnqueueOpts{Priority: 1})
	if err != nil {
		t.Fatal(err)
	}
	good, err := db.Enqueue(ctx, "noop", nil, store.EnqueueOpts{})
	if err != nil {
		t.Fatal(err)
	}

	w := New(db, handlers, fastOpts(2), logger.Default())
	w.Run(ctx)

	gotBad, _ := db.GetJob(ctx, bad.ID)
	if gotBad.Status != domain.JobStatusFailed {
		t.Errorf("expected panicking job failed, got %s", gotBad.Status)
	}
	gotGood, _ := db.GetJob(ctx, good.ID)
	if gotGood.Status != domain.JobStatusDone {
		t.Errorf("expected worker to survive panic and run next job, got %s", gotGood.Status)
	}
}

func TestWorkerRepollsImmediatelyAfterJob(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	handlers := map[string]tasks.Handler{
		"noop": func(ctx context.Context, payload json.RawMessage) tasks.Result {
			return tasks.Result{}
		},
	}
	for i := 0; i < 2; i++ {
		if _, err := db.Enqueue(ctx, "noop", nil, store.EnqueueOpts{}); err != nil {
			t.Fatal(err)
		}
	}

	// With an hour-long poll interval, only an immediate re-poll after the
	// first job lets the budget drain in time.
	w := New(db, handlers, Options{
		PollInterval: time.Hour,
		IdleSleep:    time.Hour,
		MaxJobs:      2,
	}, logger.Default())

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker slept between back-to-back jobs")
	}

	stats, err := db.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Done != 2 {
		t.Errorf("expected both jobs done, stats: %+v", stats)
	}
}

func TestWorkerStopsOnContextCancel(t *testing.T) {
	db := setupTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())

	w := New(db, map[string]tasks.Handler{}, fastOpts(0), logger.Default())

	doneCh := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(doneCh)
	}()

	cancel()
	select {
	case <-doneCh:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestPoolProcessesEveryJobExactlyOnce(t *testing.T) {
	db := setupTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const jobCount = 30

	var mu sync.Mutex
	seen := make(map[string]int)
	handlers := map[string]tasks.Handler{
		"count": func(ctx context.Context, payload json.RawMessage) tasks.Result {
			var p struct {
				N string `json:"n"`
			}
			if err := json.Unmarshal(payload, &p); err != nil {
				return tasks.Result{Err: err}
			}
			mu.Lock()
			seen[p.N]++
			mu.Unlock()
			return tasks.Result{}
		},
	}

	for i := 0; i < jobCount; i++ {
		_, err := db.Enqueue(ctx, "count", map[string]string{"n": fmt.Sprintf("job-%d", i)}, store.EnqueueOpts{})
		if err != nil {
			t.Fatal(err)
		}
	}

	pool := NewPool(db, handlers, 4, fastOpts(0), logger.Default())
	pool.Start(ctx)

	deadline := time.After(10 * time.Second)
	for {
		stats, err := db.Stats(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if stats.Done == jobCount {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out, stats: %+v", stats)
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	pool.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != jobCount {
		t.Fatalf("expected %d distinct jobs, got %d", jobCount, len(seen))
	}
	for n, count := range seen {
		if count != 1 {
			t.Errorf("job %s ran %d times", n, count)
		}
	}
}
