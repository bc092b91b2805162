package repository

import (
	"errors"
	"strings"
)

// Sentinel errors shared across repositories.  Handlers translate them to
// HTTP statuses; repositories never import echo.
var (
	// ErrNotFound is returned when a slug or id resolves to no row.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when a row exists but belongs to someone else.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidState is returned when a state transition races with another
	// writer, e.g. resolving a request that is no longer pending.
	ErrInvalidState = errors.New("invalid state")
	// ErrProtectedSection is returned on attempts to edit or delete the
	// built-in Miscellaneous section.
	ErrProtectedSection = errors.New("section is protected")
	// ErrLoanActive blocks deleting a book or section while a copy is out.
	ErrLoanActive = errors.New("book has an active loan")
	// ErrDuplicatePending is returned when the user already has a pending
	// request for the same book.
	ErrDuplicatePending = errors.New("request already pending for this book")
	// ErrAlreadyBorrowed is returned when the user currently holds the book.
	ErrAlreadyBorrowed = errors.New("book already borrowed")
	// ErrTooManyActive is returned when pending requests plus current loans
	// have reached the per-user ceiling.
	ErrTooManyActive = errors.New("too many active requests and loans")
	// ErrFeedbackExists is returned on a second feedback for the same book.
	ErrFeedbackExists = errors.New("feedback already exists for this book")
	// ErrBadSlug rejects a malformed slug before it reaches the database.
	ErrBadSlug = errors.New("malformed slug")
)

// isDuplicateKey reports whether err is a MySQL duplicate-entry error (1062).
func isDuplicateKey(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "1062")
}
