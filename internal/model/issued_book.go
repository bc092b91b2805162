package model

import "time"

// IssuedBook status values.  A loan starts current and ends returned.
const (
	IssueCurrent  = "current"
	IssueReturned = "returned"
)

// IssuedBook is a loan created from an accepted request.  FromDate is the
// acceptance time and ToDate is derived from the request's days; it is
// never set independently.  IssuerID records the librarian who accepted.
type IssuedBook struct {
	ID         uint64    // issued_books.id
	Slug       string    // issued_books.slug
	BookID     uint64    // issued_books.book_id
	BorrowerID uint64    // issued_books.borrower_id
	IssuerID   uint64    // issued_books.issuer_id
	FromDate   time.Time // issued_books.from_date
	ToDate     time.Time // issued_books.to_date
	Status     string    // issued_books.status
	CreatedAt  time.Time // issued_books.created_at
	UpdatedAt  time.Time // issued_books.updated_at
}

// DueDate derives a loan's due date from its start and the requested days.
func DueDate(from time.Time, days int) time.Time {
	return from.Add(time.Duration(days) * 24 * time.Hour)
}

// IsCurrent reports whether the loan is still out.
func (i *IssuedBook) IsCurrent() bool { return i.Status == IssueCurrent }

// IsOverdue reports whether a current loan has passed its due date as of
// now.  Returned loans are never overdue.
func (i *IssuedBook) IsOverdue(now time.Time) bool {
	return i.Status == IssueCurrent && now.After(i.ToDate)
}
