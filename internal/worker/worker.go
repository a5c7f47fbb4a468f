// Package worker polls the job queue and executes task handlers. Workers are
// plain goroutines over the shared database; claiming is done by the queue's
// conditional reserve, so any number of workers (and processes) can run
// against the same file.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mpetrov/harmonia/internal/domain"
	"github.com/mpetrov/harmonia/internal/logger"
	"github.com/mpetrov/harmonia/internal/store"
	"github.com/mpetrov/harmonia/internal/tasks"
)

// Options tunes a worker's loop. PollInterval is the pause between polls when
// the queue is empty; IdleSleep is the backoff after a loop error.
type Options struct {
	PollInterval time.Duration
	IdleSleep    time.Duration
	// MaxJobs stops the worker after that many jobs. 0 runs forever. Used
	// for drain-style invocations and tests.
	MaxJobs int
}

// Worker runs jobs one at a time until its context is cancelled or MaxJobs is
// reached. A job in flight is always finished before the worker exits.
type Worker struct {
	name     string
	db       *store.DB
	handlers map[string]tasks.Handler
	opts     Options
	log      *logger.Logger
}

func New(db *store.DB, handlers map[string]tasks.Handler, opts Options, log *logger.Logger) *Worker {
	name := fmt.Sprintf("worker-%d-%s", os.Getpid(), uuid.NewString()[:8])
	return &Worker{
		name:     name,
		db:       db,
		handlers: handlers,
		opts:     opts,
		log:      log.WithWorker(name),
	}
}

func (w *Worker) Name() string {
	return w.name
}

// Run is the poll loop. It returns when ctx is cancelled or the job budget is
// spent.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("worker started")
	defer w.log.Info("worker stopped")

	done := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.db.Reserve(ctx, w.name, time.Now())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Error("failed to reserve job", "error", err)
			if !w.sleep(ctx, w.opts.IdleSleep) {
				return
			}
			continue
		}

		if job == nil {
			if !w.sleep(ctx, w.opts.PollInterval) {
				return
			}
			continue
		}

		w.process(ctx, job)
		done++
		if w.opts.MaxJobs > 0 && done >= w.opts.MaxJobs {
			w.log.Info("job budget spent", "jobs", done)
			return
		}
		// Re-poll immediately; more work is likely queued right behind.
	}
}

// process runs one job to completion. The job's outcome is always written
// back, even when the handler panics; completion itself uses a background
// context so a shutdown mid-job still records the result.
func (w *Worker) process(ctx context.Context, job *domain.Job) {
	log := w.log.WithJob(job.ID, job.Type)
	log.Info("processing job", "attempt", job.Attempts, "max_attempts", job.MaxAttempts)

	handler, ok := w.handlers[job.Type]
	if !ok {
		log.Error("unknown job type")
		w.fail(job, fmt.Sprintf("unknown job type: %s", job.Type), nil)
		return
	}

	res := w.invoke(ctx, handler, json.RawMessage(job.Payload))

	if res.Err != nil {
		log.Warn("job failed", "error", res.Err, "will_retry", res.RetryDelay != nil)
		w.fail(job, res.Err.Error(), res.RetryDelay)
		return
	}

	var result json.RawMessage
	if len(res.Extra) > 0 {
		if data, err := json.Marshal(res.Extra); err == nil {
			result = data
		}
	}
	if err := w.db.MarkDone(context.Background(), job.ID, result); err != nil {
		log.Error("failed to mark job done", "error", err)
		return
	}
	log.Info("job done")
}

// invoke shields the loop from handler panics; a panicking handler fails its
// job terminally instead of killing the worker.
func (w *Worker) invoke(ctx context.Context, handler tasks.Handler, payload json.RawMessage) (res tasks.Result) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("handler panicked", "panic", r, "stack", string(debug.Stack()))
			res = tasks.Result{Err: fmt.Errorf("handler panicked: %v", r)}
		}
	}()
	return handler(ctx, payload)
}

func (w *Worker) fail(job *domain.Job, errMsg string, retryDelay *time.Duration) {
	if err := w.db.MarkFailed(context.Background(), job.ID, errMsg, retryDelay); err != nil {
		w.log.Error("failed to mark job failed", "job_id", job.ID, "error", err)
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// Pool runs a fixed set of workers over one dispatch table.
type Pool struct {
	workers []*Worker
	wg      sync.WaitGroup
}

func NewPool(db *store.DB, handlers map[string]tasks.Handler, count int, opts Options, log *logger.Logger) *Pool {
	if count < 1 {
		count = 1
	}
	p := &Pool{}
	for i := 0; i < count; i++ {
		p.workers = append(p.workers, New(db, handlers, opts, log))
	}
	return p
}

// Start launches every worker. Stop with the context; Wait blocks until all
// loops have drained.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		w := w
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			w.Run(ctx)
		}()
	}
}

func (p *Pool) Wait() {
	p.wg.Wait()
}
