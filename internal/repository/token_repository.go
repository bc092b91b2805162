package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// TokenRepo stores refresh tokens and the access-token blacklist.  Both
// tables hold SHA-256 hashes, never raw tokens.
type TokenRepo struct{ db *sql.DB }

// NewTokenRepo returns a TokenRepo bound to the given database.
func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{db: db} }

// StoreRefresh records a new refresh token hash for a user.
func (r *TokenRepo) StoreRefresh(ctx context.Context, userID uint64, hash string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?,?,?)",
		userID, hash, expiresAt.UTC())
	return err
}

// ConsumeRefresh validates a refresh token hash and revokes it in the same
// statement, so a token can be exchanged exactly once.  It returns the
// owning user id, or ErrNotFound when the hash is unknown, already used or
// expired.
func (r *TokenRepo) ConsumeRefresh(ctx context.Context, hash string) (uint64, error) {
	var id uint64
	var userID uint64
	err := r.db.QueryRowContext(ctx,
		"SELECT id, user_id FROM refresh_tokens WHERE token_hash=? AND revoked_at IS NULL AND expires_at > UTC_TIMESTAMP() LIMIT 1",
		hash).Scan(&id, &userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP() WHERE id=? AND revoked_at IS NULL", id)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		// Lost the race against a concurrent exchange of the same token.
		return 0, ErrNotFound
	}
	return userID, nil
}

// RevokeRefresh marks a single refresh token as revoked.  Unknown hashes
// are not an error; logout is idempotent.
func (r *TokenRepo) RevokeRefresh(ctx context.Context, hash string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP() WHERE token_hash=? AND revoked_at IS NULL", hash)
	return err
}

// RevokeAllForUser invalidates every live refresh token of a user, used
// after a password change.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uint64) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP() WHERE user_id=? AND revoked_at IS NULL", userID)
	return err
}

// BlacklistAccess records an access token hash so the token is refused for
// the rest of its lifetime.  Expired rows from earlier logouts are purged
// opportunistically.
func (r *TokenRepo) BlacklistAccess(ctx context.Context, hash string, expiresAt time.Time) error {
	if _, err := r.db.ExecContext(ctx,
		"DELETE FROM revoked_tokens WHERE expires_at <= UTC_TIMESTAMP()"); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT IGNORE INTO revoked_tokens (token_hash, expires_at) VALUES (?,?)",
		hash, expiresAt.UTC())
	return err
}

// IsAccessBlacklisted reports whether an access token hash was revoked by a
// logout and has not yet expired.
func (r *TokenRepo) IsAccessBlacklisted(ctx context.Context, hash string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		"SELECT 1 FROM revoked_tokens WHERE token_hash=? AND expires_at > UTC_TIMESTAMP() LIMIT 1",
		hash).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
