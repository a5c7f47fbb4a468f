package store

import (
	"context"
	"time"

	"github.com/mpetrov/harmonia/internal/domain"
)

// InsertSessionToken persists a freshly issued session credential.
func (db *DB) InsertSessionToken(ctx context.Context, t *domain.SessionToken) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO session_tokens (token, user_id, expires_at, created_at, revoked)
		VALUES (?, ?, ?, ?, ?)`,
		t.Token, t.UserID, t.ExpiresAt.UTC(), t.CreatedAt, t.Revoked)
	if err != nil {
		return wrapStorageErr("insert session token", err)
	}
	t.ID, _ = res.LastInsertId()
	return nil
}

func (db *DB) GetSessionToken(ctx context.Context, token string) (*domain.SessionToken, error) {
	var t domain.SessionToken
	err := db.GetContext(ctx, &t, `SELECT * FROM session_tokens WHERE token = ?`, token)
	if err != nil {
		return nil, wrapStorageErr("get session token", err)
	}
	return &t, nil
}

func (db *DB) RevokeSessionToken(ctx context.Context, token string) error {
	res, err := db.ExecContext(ctx,
		`UPDATE session_tokens SET revoked = 1 WHERE token = ?`, token)
	if err != nil {
		return wrapStorageErr("revoke session token", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteExpiredSessions removes revoked tokens and tokens whose expiry is at
// or before cutoff. Callers pass now minus the retention window to keep
// recently expired tokens around. Returns the number of rows removed.
func (db *DB) DeleteExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx,
		`DELETE FROM session_tokens WHERE expires_at <= ? OR revoked = 1`, cutoff.UTC())
	if err != nil {
		return 0, wrapStorageErr("delete expired sessions", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
