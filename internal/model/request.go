package model

import "time"

// Request status values.  A request starts pending; accepted and rejected
// are terminal.
const (
	RequestPending  = "pending"
	RequestAccepted = "accepted"
	RequestRejected = "rejected"
)

// StaleRequestAge is how long a pending request may sit unresolved before
// the inline sweep rejects it on behalf of the librarian.
const StaleRequestAge = 7 * 24 * time.Hour

// Request is a user's ask to borrow a book for a number of days.  Accepting
// it creates an IssuedBook; rejecting it has no further effect.
type Request struct {
	ID        uint64    // requests.id
	Slug      string    // requests.slug
	UserID    uint64    // requests.user_id
	BookID    uint64    // requests.book_id
	Days      int       // requests.days
	Status    string    // requests.status
	CreatedAt time.Time // requests.created_at
	UpdatedAt time.Time // requests.updated_at
}

// IsPending reports whether the request can still be resolved or withdrawn.
func (r *Request) IsPending() bool { return r.Status == RequestPending }

// IsStale reports whether a pending request has outlived StaleRequestAge
// as of now and should be auto-rejected by the sweep.
func (r *Request) IsStale(now time.Time) bool {
	return r.Status == RequestPending && now.After(r.CreatedAt.Add(StaleRequestAge))
}
