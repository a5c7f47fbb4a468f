// Package store is the durable catalog: artists, albums, tracks,
// subscriptions, jobs, settings and session tokens in one embedded SQLite
// database. Writes serialize through SQLite's single writer; callers keep
// transactions short and commit at task-defined checkpoints.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/mpetrov/harmonia/internal/constants"
)

type DB struct {
	*sqlx.DB
}

// Open opens (creating if necessary) the catalog database at dsn, enables
// write-ahead logging and foreign keys, and applies the schema.
func Open(dsn string) (*DB, error) {
	// Store time.Time columns in SQLite's own datetime text format so that
	// bound cutoffs compare correctly against persisted values.
	if !strings.Contains(dsn, "?") {
		dsn += "?_time_format=sqlite"
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	// Pragmas for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", constants.BusyTimeoutMillis)); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{db}, nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// Tx is a catalog transaction. Entity mutators hang off Tx so that the
// transaction boundary is always chosen by the caller; the store itself
// never commits mid-operation.
type Tx struct {
	*sqlx.Tx
}

// WithTx runs fn inside a transaction and commits it. A commit (or fn) that
// fails with a busy database is retried with exponential backoff before the
// error propagates: 100ms, 200ms, 400ms.
func (db *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < constants.CommitRetries; attempt++ {
		if attempt > 0 {
			backoff := constants.CommitRetryBase << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		err := db.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !IsBusy(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (db *DB) runTx(ctx context.Context, fn func(tx *Tx) error) error {
	txx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return wrapStorageErr("begin transaction", err)
	}

	tx := &Tx{txx}
	if err := fn(tx); err != nil {
		_ = txx.Rollback()
		return err
	}

	if err := txx.Commit(); err != nil {
		return wrapStorageErr("commit transaction", err)
	}
	return nil
}
