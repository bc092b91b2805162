package model

import "time"

// MiscellaneousSlug identifies the seeded catch-all section.  It can never
// be edited or deleted, so books always have somewhere to live.
const MiscellaneousSlug = "miscellaneous"

// Section groups books in the catalog.  The slug is derived from the title
// at creation and is stable across title edits so existing links keep
// working.
type Section struct {
	ID          uint64    // sections.id
	Slug        string    // sections.slug
	Title       string    // sections.title
	Description string    // sections.description
	Picture     string    // sections.picture
	CreatedAt   time.Time // sections.created_at
	UpdatedAt   time.Time // sections.updated_at
}

// IsProtected reports whether the section is the seeded Miscellaneous
// section, which rejects every mutation regardless of the caller's role.
func (s *Section) IsProtected() bool { return s.Slug == MiscellaneousSlug }
