package model

import "time"

// Feedback is a borrower's review of a book.  Only users who have held a
// loan for the book may write one, and each user gets a single feedback per
// book which they can edit afterwards.
type Feedback struct {
	ID        uint64    // feedbacks.id
	Slug      string    // feedbacks.slug
	BookID    uint64    // feedbacks.book_id
	UserID    uint64    // feedbacks.user_id
	Rating    int       // feedbacks.rating (1..5)
	Content   string    // feedbacks.content
	CreatedAt time.Time // feedbacks.created_at
	UpdatedAt time.Time // feedbacks.updated_at
}
