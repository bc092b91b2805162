package model

import "time"

// Book is a single lendable title.  The library holds one copy of each
// book, so at most one loan can be current at a time.  Slugs are globally
// unique and immutable; title edits do not re-slug.
type Book struct {
	ID          uint64    // books.id
	Slug        string    // books.slug
	Title       string    // books.title
	Author      string    // books.author
	Description string    // books.description
	Picture     string    // books.picture
	ContentFile string    // books.content_file (stored PDF name)
	SectionID   uint64    // books.section_id
	CreatedAt   time.Time // books.created_at
	UpdatedAt   time.Time // books.updated_at
}
