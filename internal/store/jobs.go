package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mpetrov/harmonia/internal/constants"
	"github.com/mpetrov/harmonia/internal/domain"
)

// EnqueueOpts tunes a job beyond its type and payload. Zero values mean the
// defaults: max attempts 5, priority 0, runnable immediately.
type EnqueueOpts struct {
	MaxAttempts int
	Priority    int
	ScheduledAt *time.Time
	UserID      *int64
}

// EnqueueTx inserts a queued job inside the caller's transaction. The job
// becomes visible to workers only when the surrounding transaction commits,
// which lets importers enqueue per checkpoint.
func (tx *Tx) EnqueueTx(ctx context.Context, jobType string, payload interface{}, opts EnqueueOpts) (*domain.Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, wrapStorageErr("marshal job payload", err)
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = constants.DefaultMaxAttempts
	}

	job := &domain.Job{
		Type:        jobType,
		Payload:     raw,
		Status:      domain.JobStatusQueued,
		MaxAttempts: maxAttempts,
		Priority:    opts.Priority,
		ScheduledAt: opts.ScheduledAt,
		UserID:      opts.UserID,
		CreatedAt:   time.Now().UTC(),
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO jobs (type, payload, status, attempts, max_attempts, priority,
			scheduled_at, created_at, user_id)
		VALUES (?, ?, ?, 0, ?, ?, ?, ?, ?)`,
		job.Type, string(raw), job.Status, job.MaxAttempts, job.Priority,
		job.ScheduledAt, job.CreatedAt, job.UserID)
	if err != nil {
		return nil, wrapStorageErr("enqueue job", err)
	}
	job.ID, _ = res.LastInsertId()
	return job, nil
}

// Enqueue inserts and commits a queued job.
func (db *DB) Enqueue(ctx context.Context, jobType string, payload interface{}, opts EnqueueOpts) (*domain.Job, error) {
	var job *domain.Job
	err := db.WithTx(ctx, func(tx *Tx) error {
		var err error
		job, err = tx.EnqueueTx(ctx, jobType, payload, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Reserve atomically claims the next runnable job for workerName and returns
// it, or nil when the queue has no runnable job. Selection order is priority
// descending, then creation time, then id. A job with a future scheduled_at
// or an exhausted attempt budget is not runnable.
//
// The claim is a conditional update: two workers racing for the same row see
// exactly one succeed, because the UPDATE re-checks status inside the write
// transaction. The claim also burns an attempt, so attempts counts started
// runs rather than failures.
func (db *DB) Reserve(ctx context.Context, workerName string, now time.Time) (*domain.Job, error) {
	var job *domain.Job
	err := db.WithTx(ctx, func(tx *Tx) error {
		job = nil

		var candidate domain.Job
		err := tx.GetContext(ctx, &candidate, `
			SELECT * FROM jobs
			WHERE status = ? AND (scheduled_at IS NULL OR scheduled_at <= ?)
				AND attempts < max_attempts
			ORDER BY priority DESC, created_at ASC, id ASC
			LIMIT 1`,
			domain.JobStatusQueued, now.UTC())
		if err != nil {
			if IsNotFound(wrapStorageErr("reserve", err)) {
				return nil
			}
			return wrapStorageErr("reserve", err)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE jobs SET status = ?, reserved_by = ?, started_at = ?,
				attempts = attempts + 1
			WHERE id = ? AND status = ?`,
			domain.JobStatusReserved, workerName, now.UTC(),
			candidate.ID, domain.JobStatusQueued)
		if err != nil {
			return wrapStorageErr("reserve", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// Lost the race; the caller polls again.
			return nil
		}

		started := now.UTC()
		candidate.Status = domain.JobStatusReserved
		candidate.ReservedBy = &workerName
		candidate.StartedAt = &started
		candidate.Attempts++
		job = &candidate
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// MarkDone finishes a reserved job successfully, storing its result and
// clearing any error from earlier attempts. Jobs not currently reserved are
// left untouched, so a worker finishing after its job was requeued and
// re-claimed cannot clobber the newer run.
func (db *DB) MarkDone(ctx context.Context, id int64, result json.RawMessage) error {
	return db.WithTx(ctx, func(tx *Tx) error {
		var res interface{}
		if len(result) > 0 {
			res = string(result)
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE jobs SET status = ?, finished_at = ?, result = ?, last_error = NULL
			WHERE id = ? AND status = ?`,
			domain.JobStatusDone, time.Now().UTC(), res, id, domain.JobStatusReserved)
		return wrapStorageErr("mark job done", err)
	})
}

// MarkFailed records a failed attempt. With a retry delay and attempts left,
// the job goes back to queued with scheduled_at pushed into the future;
// otherwise it lands in the terminal failed state. Attempts were already
// counted at reserve time, so only the reservation is released here and
// started_at stays as the last run's start.
func (db *DB) MarkFailed(ctx context.Context, id int64, errMsg string, retryDelay *time.Duration) error {
	return db.WithTx(ctx, func(tx *Tx) error {
		var job domain.Job
		err := tx.GetContext(ctx, &job,
			`SELECT * FROM jobs WHERE id = ? AND status = ?`,
			id, domain.JobStatusReserved)
		if err != nil {
			return wrapStorageErr("mark job failed", err)
		}

		now := time.Now().UTC()

		if retryDelay != nil && job.Attempts < job.MaxAttempts {
			runAt := now.Add(*retryDelay)
			_, err = tx.ExecContext(ctx, `
				UPDATE jobs SET status = ?, scheduled_at = ?,
					last_error = ?, reserved_by = NULL
				WHERE id = ?`,
				domain.JobStatusQueued, runAt, errMsg, id)
			return wrapStorageErr("requeue job", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE jobs SET status = ?, finished_at = ?, last_error = ?
			WHERE id = ?`,
			domain.JobStatusFailed, now, errMsg, id)
		return wrapStorageErr("mark job failed", err)
	})
}

// Cancel moves a queued or reserved job to cancelled. Terminal jobs are
// refused; the return value reports whether the job was actually cancelled.
func (db *DB) Cancel(ctx context.Context, id int64) (bool, error) {
	var cancelled bool
	err := db.WithTx(ctx, func(tx *Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE jobs SET status = ?, finished_at = ?
			WHERE id = ? AND status IN (?, ?)`,
			domain.JobStatusCancelled, time.Now().UTC(), id,
			domain.JobStatusQueued, domain.JobStatusReserved)
		if err != nil {
			return wrapStorageErr("cancel job", err)
		}
		n, _ := res.RowsAffected()
		cancelled = n > 0
		return nil
	})
	return cancelled, err
}

// Retry puts a terminal failed or cancelled job back on the queue with a
// fresh attempt budget.
func (db *DB) Retry(ctx context.Context, id int64) (bool, error) {
	var retried bool
	err := db.WithTx(ctx, func(tx *Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE jobs SET status = ?, attempts = 0, scheduled_at = NULL,
				started_at = NULL, finished_at = NULL, last_error = NULL, reserved_by = NULL
			WHERE id = ? AND status IN (?, ?)`,
			domain.JobStatusQueued, id,
			domain.JobStatusFailed, domain.JobStatusCancelled)
		if err != nil {
			return wrapStorageErr("retry job", err)
		}
		n, _ := res.RowsAffected()
		retried = n > 0
		return nil
	})
	return retried, err
}

// RequeueStale returns reserved jobs older than olderThan to the queue. This
// is the crash-recovery path: a worker that died mid-job leaves the row
// reserved forever otherwise.
func (db *DB) RequeueStale(ctx context.Context, olderThan time.Duration, now time.Time) (int64, error) {
	cutoff := now.UTC().Add(-olderThan)
	var n int64
	err := db.WithTx(ctx, func(tx *Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE jobs SET status = ?, reserved_by = NULL, started_at = NULL
			WHERE status = ? AND started_at <= ?`,
			domain.JobStatusQueued, domain.JobStatusReserved, cutoff)
		if err != nil {
			return wrapStorageErr("requeue stale jobs", err)
		}
		n, _ = res.RowsAffected()
		return nil
	})
	return n, err
}

// CleanupOld deletes terminal jobs that finished more than days ago. With
// keepFailed, only done jobs go; failed and cancelled ones are retained for
// inspection.
func (db *DB) CleanupOld(ctx context.Context, days int, keepFailed bool, now time.Time) (int64, error) {
	cutoff := now.UTC().AddDate(0, 0, -days)

	query := `DELETE FROM jobs WHERE finished_at <= ? AND status = ?`
	statuses := []interface{}{domain.JobStatusDone}
	if !keepFailed {
		query = `DELETE FROM jobs WHERE finished_at <= ? AND status IN (?, ?, ?)`
		statuses = append(statuses, domain.JobStatusFailed, domain.JobStatusCancelled)
	}

	args := append([]interface{}{cutoff}, statuses...)
	var n int64
	err := db.WithTx(ctx, func(tx *Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return wrapStorageErr("cleanup old jobs", err)
		}
		n, _ = res.RowsAffected()
		return nil
	})
	return n, err
}

func (db *DB) GetJob(ctx context.Context, id int64) (*domain.Job, error) {
	var job domain.Job
	err := db.GetContext(ctx, &job, `SELECT * FROM jobs WHERE id = ?`, id)
	if err != nil {
		return nil, wrapStorageErr("get job", err)
	}
	return &job, nil
}

// ListJobs returns recent jobs, optionally filtered by status, newest first.
func (db *DB) ListJobs(ctx context.Context, status domain.JobStatus, limit int) ([]domain.Job, error) {
	if limit <= 0 || limit > constants.MaxJobListItems {
		limit = constants.MaxJobListItems
	}

	var jobs []domain.Job
	var err error
	if status == "" {
		err = db.SelectContext(ctx, &jobs,
			`SELECT * FROM jobs ORDER BY id DESC LIMIT ?`, limit)
	} else {
		err = db.SelectContext(ctx, &jobs,
			`SELECT * FROM jobs WHERE status = ? ORDER BY id DESC LIMIT ?`, status, limit)
	}
	if err != nil {
		return nil, wrapStorageErr("list jobs", err)
	}
	return jobs, nil
}

// JobStats is a per-status count of the queue.
type JobStats struct {
	Queued    int `json:"queued" db:"queued"`
	Reserved  int `json:"reserved" db:"reserved"`
	Done      int `json:"done" db:"done"`
	Failed    int `json:"failed" db:"failed"`
	Cancelled int `json:"cancelled" db:"cancelled"`
}

func (db *DB) Stats(ctx context.Context) (*JobStats, error) {
	var stats JobStats
	err := db.GetContext(ctx, &stats, `
		SELECT
			COUNT(CASE WHEN status = 'queued' THEN 1 END) AS queued,
			COUNT(CASE WHEN status = 'reserved' THEN 1 END) AS reserved,
			COUNT(CASE WHEN status = 'done' THEN 1 END) AS done,
			COUNT(CASE WHEN status = 'failed' THEN 1 END) AS failed,
			COUNT(CASE WHEN status = 'cancelled' THEN 1 END) AS cancelled
		FROM jobs`)
	if err != nil {
		return nil, wrapStorageErr("job stats", err)
	}
	return &stats, nil
}
