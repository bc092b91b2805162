package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/library-lending/internal/model"
	"github.com/iliyamo/library-lending/internal/slug"
)

// RequestRepo manages borrow requests.  A request is pending until a
// librarian resolves it or the stale sweep rejects it; every transition out
// of pending is a compare-and-set so concurrent resolvers cannot both win.
type RequestRepo struct{ db *sql.DB }

// NewRequestRepo returns a RequestRepo bound to the given database.
func NewRequestRepo(db *sql.DB) *RequestRepo { return &RequestRepo{db: db} }

const requestCols = "id, slug, book_id, user_id, days, status, created_at, updated_at"

func scanRequest(scan func(dest ...interface{}) error) (model.Request, error) {
	var rq model.Request
	err := scan(&rq.ID, &rq.Slug, &rq.BookID, &rq.UserID, &rq.Days, &rq.Status, &rq.CreatedAt, &rq.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rq, ErrNotFound
	}
	return rq, err
}

// CreateTx inserts a pending request after checking the per-user limits
// inside the caller's transaction:
//
//	no second pending request for the same book,
//	no request for a book the user currently holds,
//	pending requests plus current loans stay below maxActive.
//
// The count rows are locked FOR UPDATE so two concurrent submissions cannot
// both pass the ceiling.
func (r *RequestRepo) CreateTx(ctx context.Context, tx *sql.Tx, rq *model.Request, maxActive int) error {
	var n int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM requests WHERE user_id=? AND book_id=? AND status=? FOR UPDATE",
		rq.UserID, rq.BookID, model.RequestPending).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return ErrDuplicatePending
	}
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM issued_books WHERE borrower_id=? AND book_id=? AND status=? FOR UPDATE",
		rq.UserID, rq.BookID, model.IssueCurrent).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return ErrAlreadyBorrowed
	}
	var pending, current int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM requests WHERE user_id=? AND status=? FOR UPDATE",
		rq.UserID, model.RequestPending).Scan(&pending); err != nil {
		return err
	}
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM issued_books WHERE borrower_id=? AND status=? FOR UPDATE",
		rq.UserID, model.IssueCurrent).Scan(&current); err != nil {
		return err
	}
	if pending+current >= maxActive {
		return ErrTooManyActive
	}
	rq.Slug = slug.Unique()
	rq.Status = model.RequestPending
	res, err := tx.ExecContext(ctx,
		"INSERT INTO requests (slug, book_id, user_id, days, status) VALUES (?,?,?,?,?)",
		rq.Slug, rq.BookID, rq.UserID, rq.Days, rq.Status)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rq.ID = uint64(id)
	return nil
}

// GetBySlug fetches a request by slug.
func (r *RequestRepo) GetBySlug(ctx context.Context, sl string) (model.Request, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+requestCols+" FROM requests WHERE slug=? LIMIT 1", sl)
	return scanRequest(row.Scan)
}

// GetBySlugTx fetches a request by slug with a row lock, for resolution.
func (r *RequestRepo) GetBySlugTx(ctx context.Context, tx *sql.Tx, sl string) (model.Request, error) {
	row := tx.QueryRowContext(ctx, "SELECT "+requestCols+" FROM requests WHERE slug=? LIMIT 1 FOR UPDATE", sl)
	return scanRequest(row.Scan)
}

// ListPending returns all pending requests, oldest first, for the librarian
// dashboard.
func (r *RequestRepo) ListPending(ctx context.Context) ([]model.Request, error) {
	return r.list(ctx,
		"SELECT "+requestCols+" FROM requests WHERE status=? ORDER BY created_at, id", model.RequestPending)
}

// ListPendingByBook returns the pending requests for one book, oldest
// first, for the per-title staff view.
func (r *RequestRepo) ListPendingByBook(ctx context.Context, bookID uint64) ([]model.Request, error) {
	return r.list(ctx,
		"SELECT "+requestCols+" FROM requests WHERE book_id=? AND status=? ORDER BY created_at, id",
		bookID, model.RequestPending)
}

// ListByUser returns every request of one user, newest first.
func (r *RequestRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Request, error) {
	return r.list(ctx,
		"SELECT "+requestCols+" FROM requests WHERE user_id=? ORDER BY created_at DESC, id DESC", userID)
}

func (r *RequestRepo) list(ctx context.Context, q string, args ...interface{}) ([]model.Request, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Request, 0)
	for rows.Next() {
		rq, err := scanRequest(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rq)
	}
	return out, rows.Err()
}

// ResolveTx moves a request from pending to the given terminal status.  The
// WHERE clause keeps the transition atomic: zero rows affected means
// another resolver or the stale sweep got there first, reported as
// ErrInvalidState.
func (r *RequestRepo) ResolveTx(ctx context.Context, tx *sql.Tx, requestID uint64, to string) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE requests SET status=? WHERE id=? AND status=?",
		to, requestID, model.RequestPending)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInvalidState
	}
	return nil
}

// DeleteOwnPending removes a pending request belonging to the given user.
// A request that was already resolved cannot be withdrawn.
func (r *RequestRepo) DeleteOwnPending(ctx context.Context, sl string, userID uint64) error {
	rq, err := r.GetBySlug(ctx, sl)
	if err != nil {
		return err
	}
	if rq.UserID != userID {
		return ErrForbidden
	}
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM requests WHERE id=? AND user_id=? AND status=?",
		rq.ID, userID, model.RequestPending)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInvalidState
	}
	return nil
}

// RejectStale rejects every pending request older than maxAge.  Called
// inline before dashboard and listing reads instead of from a timer, so
// state is never stale when someone actually looks at it.
func (r *RequestRepo) RejectStale(ctx context.Context, now time.Time, maxAge time.Duration) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE requests SET status=? WHERE status=? AND created_at < ?",
		model.RequestRejected, model.RequestPending, now.UTC().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
