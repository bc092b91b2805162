package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/library-lending/internal/model"
	"github.com/iliyamo/library-lending/internal/slug"
)

// FeedbackRepo manages book reviews.  The (book_id, user_id) unique key
// enforces one feedback per borrower per book at the schema level.
type FeedbackRepo struct{ db *sql.DB }

// NewFeedbackRepo returns a FeedbackRepo bound to the given database.
func NewFeedbackRepo(db *sql.DB) *FeedbackRepo { return &FeedbackRepo{db: db} }

const feedbackCols = "id, slug, book_id, user_id, rating, content, created_at, updated_at"

func scanFeedback(scan func(dest ...interface{}) error) (model.Feedback, error) {
	var f model.Feedback
	err := scan(&f.ID, &f.Slug, &f.BookID, &f.UserID, &f.Rating, &f.Content, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return f, ErrNotFound
	}
	return f, err
}

// Create inserts a feedback.  A duplicate (book, user) pair maps to
// ErrFeedbackExists; callers verify borrow history before calling.
func (r *FeedbackRepo) Create(ctx context.Context, f *model.Feedback) error {
	f.Slug = slug.Unique()
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO feedbacks (slug, book_id, user_id, rating, content) VALUES (?,?,?,?,?)",
		f.Slug, f.BookID, f.UserID, f.Rating, f.Content)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrFeedbackExists
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	f.ID = uint64(id)
	return nil
}

// GetBySlug fetches a feedback by slug.
func (r *FeedbackRepo) GetBySlug(ctx context.Context, sl string) (model.Feedback, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+feedbackCols+" FROM feedbacks WHERE slug=? LIMIT 1", sl)
	return scanFeedback(row.Scan)
}

// UpdateOwn rewrites rating and content of the caller's own feedback.
func (r *FeedbackRepo) UpdateOwn(ctx context.Context, sl string, userID uint64, rating int, content string) error {
	f, err := r.GetBySlug(ctx, sl)
	if err != nil {
		return err
	}
	if f.UserID != userID {
		return ErrForbidden
	}
	_, err = r.db.ExecContext(ctx,
		"UPDATE feedbacks SET rating=?, content=? WHERE id=?", rating, content, f.ID)
	return err
}

// ListByBook returns a book's feedbacks, newest first.
func (r *FeedbackRepo) ListByBook(ctx context.Context, bookID uint64) ([]model.Feedback, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+feedbackCols+" FROM feedbacks WHERE book_id=? ORDER BY created_at DESC, id DESC", bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Feedback, 0)
	for rows.Next() {
		f, err := scanFeedback(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
