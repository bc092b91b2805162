package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/library-lending/internal/model"
	"github.com/iliyamo/library-lending/internal/slug"
)

// UserRepo provides access to the users table.
type UserRepo struct{ db *sql.DB }

// NewUserRepo returns a UserRepo bound to the given database.
func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

var (
	ErrUsernameExists = errors.New("username already exists")
	ErrEmailExists    = errors.New("email already exists")
)

const userCols = "id, slug, name, username, email, password_hash, profile_picture, role, created_at, updated_at"

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	var pic sql.NullString
	err := row.Scan(&u.ID, &u.Slug, &u.Name, &u.Username, &u.Email, &u.PasswordHash, &pic, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	u.ProfilePicture = pic.String
	return u, nil
}

// Create inserts a user and populates its generated ID.  Username and email
// collisions map to their own sentinels so handlers can tell the caller
// which field to change.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	if !slug.Valid(u.Slug) {
		return ErrBadSlug
	}
	var pic interface{}
	if u.ProfilePicture != "" {
		pic = u.ProfilePicture
	}
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO users (slug, name, username, email, password_hash, profile_picture, role) VALUES (?,?,?,?,?,?,?)",
		u.Slug, u.Name, u.Username, u.Email, u.PasswordHash, pic, u.Role)
	if err != nil {
		if isDuplicateKey(err) {
			msg := strings.ToLower(err.Error())
			if strings.Contains(msg, "username") {
				return ErrUsernameExists
			}
			if strings.Contains(msg, "email") {
				return ErrEmailExists
			}
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)
	return nil
}

// GetByUsername fetches a user by its normalized login name.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (model.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userCols+" FROM users WHERE username=? LIMIT 1", username))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userCols+" FROM users WHERE id=? LIMIT 1", id))
}

// GetBySlug fetches a user by its public slug.
func (r *UserRepo) GetBySlug(ctx context.Context, slug string) (model.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userCols+" FROM users WHERE slug=? LIMIT 1", slug))
}

// UpdateProfile rewrites the mutable profile fields.  An empty picture
// keeps the stored one.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uint64, name, picture string) error {
	var err error
	if picture != "" {
		_, err = r.db.ExecContext(ctx,
			"UPDATE users SET name=?, profile_picture=? WHERE id=?", name, picture, id)
	} else {
		_, err = r.db.ExecContext(ctx,
			"UPDATE users SET name=? WHERE id=?", name, id)
	}
	return err
}

// UpdatePassword replaces the stored bcrypt hash.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, hash string) error {
	_, err := r.db.ExecContext(ctx, "UPDATE users SET password_hash=? WHERE id=?", hash, id)
	return err
}

// DeleteTx removes an account and everything it owns: requests, feedbacks,
// loan history and refresh tokens.  It fails with ErrLoanActive while the
// user still holds a book.  The caller owns the transaction.
func (r *UserRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	var open int
	err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM issued_books WHERE borrower_id=? AND status=? FOR UPDATE",
		id, model.IssueCurrent).Scan(&open)
	if err != nil {
		return err
	}
	if open > 0 {
		return ErrLoanActive
	}
	for _, q := range []string{
		"DELETE FROM feedbacks WHERE user_id=?",
		"DELETE FROM requests WHERE user_id=?",
		"DELETE FROM issued_books WHERE borrower_id=?",
		"DELETE FROM refresh_tokens WHERE user_id=?",
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return err
		}
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM users WHERE id=?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByRole returns how many users hold the given role.  Used at startup
// to decide whether the seed librarian is needed.
func (r *UserRepo) CountByRole(ctx context.Context, role string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE role=?", role).Scan(&n)
	return n, err
}
