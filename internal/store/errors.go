package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrBusy indicates the database was locked by another writer.
	ErrBusy = errors.New("database busy")

	// ErrConstraint indicates a uniqueness or foreign key violation.
	ErrConstraint = errors.New("constraint violation")
)

// SQLite primary result codes, masked from extended codes.
const (
	sqliteBusy       = 5
	sqliteLocked     = 6
	sqliteConstraint = 19
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}

func IsConstraint(err error) bool {
	return errors.Is(err, ErrConstraint)
}

// wrapStorageErr classifies a driver error into one of the sentinel kinds so
// callers can branch without depending on the driver.
func wrapStorageErr(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() & 0xff {
		case sqliteBusy, sqliteLocked:
			return fmt.Errorf("%s: %w: %v", op, ErrBusy, err)
		case sqliteConstraint:
			return fmt.Errorf("%s: %w: %v", op, ErrConstraint, err)
		}
	}

	// The driver sometimes surfaces lock contention as a plain error string.
	msg := err.Error()
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked") {
		return fmt.Errorf("%s: %w: %v", op, ErrBusy, err)
	}
	if strings.Contains(msg, "constraint") {
		return fmt.Errorf("%s: %w: %v", op, ErrConstraint, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}
