package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/library-lending/internal/model"
	"github.com/iliyamo/library-lending/internal/slug"
)

// BookRepo provides CRUD for books.  Book slugs are unique across the whole
// catalog, not per section, so a book URL survives being moved between
// sections.
type BookRepo struct{ db *sql.DB }

// NewBookRepo returns a BookRepo bound to the given database.
func NewBookRepo(db *sql.DB) *BookRepo { return &BookRepo{db: db} }

const bookCols = "id, slug, title, author, description, picture, content_file, section_id, created_at, updated_at"

func scanBook(scan func(dest ...interface{}) error) (model.Book, error) {
	var b model.Book
	var pic, content sql.NullString
	err := scan(&b.ID, &b.Slug, &b.Title, &b.Author, &b.Description, &pic, &content, &b.SectionID, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return b, ErrNotFound
	}
	if err != nil {
		return b, err
	}
	b.Picture = pic.String
	b.ContentFile = content.String
	return b, nil
}

// Create inserts a book, deriving a catalog-wide unique slug from the title
// with numeric-suffix retries on collision.
func (r *BookRepo) Create(ctx context.Context, b *model.Book) error {
	base := slug.Make(b.Title)
	if base == "" {
		base = slug.Unique()
	}
	if !slug.Valid(base) {
		return ErrBadSlug
	}
	candidate := base
	for attempt := 2; ; attempt++ {
		var pic, content interface{}
		if b.Picture != "" {
			pic = b.Picture
		}
		if b.ContentFile != "" {
			content = b.ContentFile
		}
		res, err := r.db.ExecContext(ctx,
			"INSERT INTO books (slug, title, author, description, picture, content_file, section_id) VALUES (?,?,?,?,?,?,?)",
			candidate, b.Title, b.Author, b.Description, pic, content, b.SectionID)
		if err == nil {
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			b.ID = uint64(id)
			b.Slug = candidate
			return nil
		}
		if !isDuplicateKey(err) || attempt > 50 {
			return err
		}
		candidate = slug.WithSuffix(base, attempt)
	}
}

// GetBySlug fetches a book by its slug.
func (r *BookRepo) GetBySlug(ctx context.Context, sl string) (model.Book, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+bookCols+" FROM books WHERE slug=? LIMIT 1", sl)
	return scanBook(row.Scan)
}

// GetByID fetches a book by id.
func (r *BookRepo) GetByID(ctx context.Context, id uint64) (model.Book, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+bookCols+" FROM books WHERE id=? LIMIT 1", id)
	return scanBook(row.Scan)
}

// ListBySection returns the books of one section in creation order.
func (r *BookRepo) ListBySection(ctx context.Context, sectionID uint64) ([]model.Book, error) {
	return r.list(ctx, "SELECT "+bookCols+" FROM books WHERE section_id=? ORDER BY id", sectionID)
}

// ListAll returns the whole catalog in creation order.
func (r *BookRepo) ListAll(ctx context.Context) ([]model.Book, error) {
	return r.list(ctx, "SELECT "+bookCols+" FROM books ORDER BY id")
}

func (r *BookRepo) list(ctx context.Context, q string, args ...interface{}) ([]model.Book, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Book, 0)
	for rows.Next() {
		b, err := scanBook(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Update rewrites the mutable fields of a book, including its section when
// the librarian moves it.  Empty picture or content file keep the stored
// values; the slug never changes.
func (r *BookRepo) Update(ctx context.Context, b *model.Book) error {
	if _, err := r.db.ExecContext(ctx,
		"UPDATE books SET title=?, author=?, description=?, section_id=? WHERE id=?",
		b.Title, b.Author, b.Description, b.SectionID, b.ID); err != nil {
		return err
	}
	if b.Picture != "" {
		if _, err := r.db.ExecContext(ctx,
			"UPDATE books SET picture=? WHERE id=?", b.Picture, b.ID); err != nil {
			return err
		}
	}
	if b.ContentFile != "" {
		if _, err := r.db.ExecContext(ctx,
			"UPDATE books SET content_file=? WHERE id=?", b.ContentFile, b.ID); err != nil {
			return err
		}
	}
	return nil
}

// DeleteTx removes a book together with its requests, loan history and
// feedbacks.  It fails with ErrLoanActive while a copy is out.  The caller
// owns the transaction.
func (r *BookRepo) DeleteTx(ctx context.Context, tx *sql.Tx, bookID uint64) error {
	var n int
	err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM issued_books WHERE book_id=? AND status=? FOR UPDATE",
		bookID, model.IssueCurrent).Scan(&n)
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrLoanActive
	}
	for _, q := range []string{
		"DELETE FROM feedbacks WHERE book_id=?",
		"DELETE FROM requests WHERE book_id=?",
		"DELETE FROM issued_books WHERE book_id=?",
		"DELETE FROM books WHERE id=?",
	} {
		if _, err := tx.ExecContext(ctx, q, bookID); err != nil {
			return err
		}
	}
	return nil
}
