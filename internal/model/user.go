package model

import "time"

// Roles recognised by the authorization guard.  Librarians administer the
// catalog and resolve borrowing requests; ordinary users browse, request
// books and leave feedback.
const (
	RoleUser      = "user"
	RoleLibrarian = "librarian"
)

// User represents an application user record as stored in the `users`
// table.  Each field corresponds to a column in the database.  The slug is
// derived from the username at registration and never changes afterwards.
//
// Fields:
//
//	ID             – primary key identifier of the user.
//	Slug           – unique URL-safe identifier.
//	Name           – display name.
//	Username       – unique login name, chosen by the user.
//	Email          – unique email address.
//	PasswordHash   – bcrypt hashed password.
//	ProfilePicture – stored file name of the profile picture.
//	Role           – "user" or "librarian".
//	CreatedAt      – timestamp of creation.
//	UpdatedAt      – timestamp of last update.
type User struct {
	ID             uint64    // users.id
	Slug           string    // users.slug
	Name           string    // users.name
	Username       string    // users.username
	Email          string    // users.email
	PasswordHash   string    // users.password_hash
	ProfilePicture string    // users.profile_picture
	Role           string    // users.role
	CreatedAt      time.Time // users.created_at
	UpdatedAt      time.Time // users.updated_at
}

// IsLibrarian reports whether the user holds the librarian role.
func (u *User) IsLibrarian() bool { return u.Role == RoleLibrarian }

// RefreshToken models an entry in the `refresh_tokens` table.  Each
// refresh token belongs to a user and contains metadata for expiry and
// revocation.  The plain token is not stored; only its SHA-256 hash.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
