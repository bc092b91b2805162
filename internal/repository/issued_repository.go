package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/library-lending/internal/model"
	"github.com/iliyamo/library-lending/internal/slug"
)

// IssuedRepo manages loans.  A single physical copy exists per book, so at
// most one row per book may be in the current state; acceptance locks the
// existing rows FOR UPDATE before inserting.
type IssuedRepo struct{ db *sql.DB }

// NewIssuedRepo returns an IssuedRepo bound to the given database.
func NewIssuedRepo(db *sql.DB) *IssuedRepo { return &IssuedRepo{db: db} }

const issuedCols = "id, slug, book_id, borrower_id, issuer_id, from_date, to_date, status, created_at, updated_at"

func scanIssued(scan func(dest ...interface{}) error) (model.IssuedBook, error) {
	var ib model.IssuedBook
	err := scan(&ib.ID, &ib.Slug, &ib.BookID, &ib.BorrowerID, &ib.IssuerID, &ib.FromDate, &ib.ToDate, &ib.Status, &ib.CreatedAt, &ib.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ib, ErrNotFound
	}
	return ib, err
}

// HasCurrentTx reports whether the book's copy is already out, locking the
// matching rows so a concurrent acceptance blocks until this transaction
// finishes.
func (r *IssuedRepo) HasCurrentTx(ctx context.Context, tx *sql.Tx, bookID uint64) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM issued_books WHERE book_id=? AND status=? FOR UPDATE",
		bookID, model.IssueCurrent).Scan(&n)
	return n > 0, err
}

// InsertTx creates a current loan inside the caller's transaction and
// populates the generated ID and slug.
func (r *IssuedRepo) InsertTx(ctx context.Context, tx *sql.Tx, ib *model.IssuedBook) error {
	ib.Slug = slug.Unique()
	ib.Status = model.IssueCurrent
	res, err := tx.ExecContext(ctx,
		"INSERT INTO issued_books (slug, book_id, borrower_id, issuer_id, from_date, to_date, status) VALUES (?,?,?,?,?,?,?)",
		ib.Slug, ib.BookID, ib.BorrowerID, ib.IssuerID, ib.FromDate.UTC(), ib.ToDate.UTC(), ib.Status)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	ib.ID = uint64(id)
	return nil
}

// GetBySlug fetches a loan by slug.
func (r *IssuedRepo) GetBySlug(ctx context.Context, sl string) (model.IssuedBook, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+issuedCols+" FROM issued_books WHERE slug=? LIMIT 1", sl)
	return scanIssued(row.Scan)
}

// GetCurrentForBorrower fetches the borrower's current loan of a book.
func (r *IssuedRepo) GetCurrentForBorrower(ctx context.Context, bookID, borrowerID uint64) (model.IssuedBook, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+issuedCols+" FROM issued_books WHERE book_id=? AND borrower_id=? AND status=? LIMIT 1",
		bookID, borrowerID, model.IssueCurrent)
	return scanIssued(row.Scan)
}

// MarkReturned moves a loan from current to returned.  An early return
// pulls to_date back to the return moment so the record shows how long the
// book was actually out.  Zero rows affected means the loan was already
// closed, by the borrower, a librarian or the overdue sweep, and is
// reported as ErrInvalidState.
func (r *IssuedRepo) MarkReturned(ctx context.Context, loanID uint64) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE issued_books SET status=?, to_date=LEAST(to_date, UTC_TIMESTAMP()) WHERE id=? AND status=?",
		model.IssueReturned, loanID, model.IssueCurrent)
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

// ListCurrent returns every open loan, oldest first, for the librarian
// dashboard.
func (r *IssuedRepo) ListCurrent(ctx context.Context) ([]model.IssuedBook, error) {
	return r.list(ctx,
		"SELECT "+issuedCols+" FROM issued_books WHERE status=? ORDER BY from_date, id", model.IssueCurrent)
}

// ListCurrentByBook returns the open loans of one book.  With a single copy
// per title there is at most one row, but the listing does not assume it.
func (r *IssuedRepo) ListCurrentByBook(ctx context.Context, bookID uint64) ([]model.IssuedBook, error) {
	return r.list(ctx,
		"SELECT "+issuedCols+" FROM issued_books WHERE book_id=? AND status=? ORDER BY from_date, id",
		bookID, model.IssueCurrent)
}

// ListByBorrower returns a user's loans, current first then newest history.
func (r *IssuedRepo) ListByBorrower(ctx context.Context, borrowerID uint64) ([]model.IssuedBook, error) {
	return r.list(ctx,
		"SELECT "+issuedCols+" FROM issued_books WHERE borrower_id=? ORDER BY status='current' DESC, from_date DESC, id DESC",
		borrowerID)
}

func (r *IssuedRepo) list(ctx context.Context, q string, args ...interface{}) ([]model.IssuedBook, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.IssuedBook, 0)
	for rows.Next() {
		ib, err := scanIssued(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, ib)
	}
	return out, rows.Err()
}

// HasEverBorrowed reports whether the user held this book at any point,
// current or returned.  Feedback eligibility is gated on it.
func (r *IssuedRepo) HasEverBorrowed(ctx context.Context, bookID, userID uint64) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		"SELECT 1 FROM issued_books WHERE book_id=? AND borrower_id=? LIMIT 1",
		bookID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ReturnOverdue closes every current loan past its due date and returns
// the loans it closed so callers can publish per-loan events.  Like the
// stale-request sweep this runs inline before reads, not on a timer.  The
// select and update share a transaction with the rows locked, so two
// concurrent sweeps cannot both claim the same loan.
func (r *IssuedRepo) ReturnOverdue(ctx context.Context, now time.Time) ([]model.IssuedBook, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	rows, err := tx.QueryContext(ctx,
		"SELECT "+issuedCols+" FROM issued_books WHERE status=? AND to_date < ? FOR UPDATE",
		model.IssueCurrent, now.UTC())
	if err != nil {
		return nil, err
	}
	overdue := make([]model.IssuedBook, 0)
	for rows.Next() {
		ib, err := scanIssued(rows.Scan)
		if err != nil {
			rows.Close()
			return nil, err
		}
		overdue = append(overdue, ib)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range overdue {
		if _, err := tx.ExecContext(ctx,
			"UPDATE issued_books SET status=? WHERE id=?",
			model.IssueReturned, overdue[i].ID); err != nil {
			return nil, err
		}
		overdue[i].Status = model.IssueReturned
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return overdue, nil
}
