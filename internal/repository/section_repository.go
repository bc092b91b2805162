package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/library-lending/internal/model"
	"github.com/iliyamo/library-lending/internal/slug"
)

// SectionRepo provides CRUD for catalog sections.  Section slugs are derived
// from the title at creation and never change afterwards, even when the
// title is edited, so bookmarked URLs keep working.
type SectionRepo struct{ db *sql.DB }

// NewSectionRepo returns a SectionRepo bound to the given database.
func NewSectionRepo(db *sql.DB) *SectionRepo { return &SectionRepo{db: db} }

const sectionCols = "id, slug, title, description, picture, created_at, updated_at"

func scanSection(scan func(dest ...interface{}) error) (model.Section, error) {
	var s model.Section
	var pic sql.NullString
	err := scan(&s.ID, &s.Slug, &s.Title, &s.Description, &pic, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.Picture = pic.String
	return s, nil
}

// Create inserts a section, deriving its slug from the title.  On a slug
// collision the insert is retried with a numeric suffix ("history",
// "history-2", ...).  A retry cap turns pathological contention into an
// error instead of a spin.
func (r *SectionRepo) Create(ctx context.Context, s *model.Section) error {
	base := slug.Make(s.Title)
	if base == "" {
		base = slug.Unique()
	}
	if !slug.Valid(base) {
		return ErrBadSlug
	}
	candidate := base
	for attempt := 2; ; attempt++ {
		var pic interface{}
		if s.Picture != "" {
			pic = s.Picture
		}
		res, err := r.db.ExecContext(ctx,
			"INSERT INTO sections (slug, title, description, picture) VALUES (?,?,?,?)",
			candidate, s.Title, s.Description, pic)
		if err == nil {
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			s.ID = uint64(id)
			s.Slug = candidate
			return nil
		}
		if !isDuplicateKey(err) || attempt > 50 {
			return err
		}
		candidate = slug.WithSuffix(base, attempt)
	}
}

// GetBySlug fetches a section by its slug.
func (r *SectionRepo) GetBySlug(ctx context.Context, sl string) (model.Section, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+sectionCols+" FROM sections WHERE slug=? LIMIT 1", sl)
	return scanSection(row.Scan)
}

// GetByID fetches a section by id.
func (r *SectionRepo) GetByID(ctx context.Context, id uint64) (model.Section, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+sectionCols+" FROM sections WHERE id=? LIMIT 1", id)
	return scanSection(row.Scan)
}

// List returns every section in creation order.
func (r *SectionRepo) List(ctx context.Context) ([]model.Section, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+sectionCols+" FROM sections ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Section, 0)
	for rows.Next() {
		s, err := scanSection(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Update rewrites title, description and optionally the picture of a
// section.  The slug is preserved.  The Miscellaneous section cannot be
// edited.
func (r *SectionRepo) Update(ctx context.Context, s *model.Section) error {
	if s.IsProtected() {
		return ErrProtectedSection
	}
	var err error
	if s.Picture != "" {
		_, err = r.db.ExecContext(ctx,
			"UPDATE sections SET title=?, description=?, picture=? WHERE id=?",
			s.Title, s.Description, s.Picture, s.ID)
	} else {
		_, err = r.db.ExecContext(ctx,
			"UPDATE sections SET title=?, description=? WHERE id=?",
			s.Title, s.Description, s.ID)
	}
	return err
}

// DeleteTx removes a section and everything under it: books, requests,
// loan history and feedbacks.  It fails with ErrLoanActive when any book in
// the section is currently out, and with ErrProtectedSection for the
// built-in Miscellaneous section.  The caller owns the transaction.
func (r *SectionRepo) DeleteTx(ctx context.Context, tx *sql.Tx, s model.Section) error {
	if s.IsProtected() {
		return ErrProtectedSection
	}
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM issued_books ib
		 JOIN books b ON b.id = ib.book_id
		 WHERE b.section_id = ? AND ib.status = ? FOR UPDATE`,
		s.ID, model.IssueCurrent).Scan(&n)
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrLoanActive
	}
	for _, q := range []string{
		`DELETE f FROM feedbacks f JOIN books b ON b.id = f.book_id WHERE b.section_id = ?`,
		`DELETE rq FROM requests rq JOIN books b ON b.id = rq.book_id WHERE b.section_id = ?`,
		`DELETE ib FROM issued_books ib JOIN books b ON b.id = ib.book_id WHERE b.section_id = ?`,
		`DELETE FROM books WHERE section_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, s.ID); err != nil {
			return err
		}
	}
	_, err = tx.ExecContext(ctx, "DELETE FROM sections WHERE id=?", s.ID)
	return err
}
