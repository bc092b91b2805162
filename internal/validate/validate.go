// Package validate holds the field- and file-level acceptance rules shared
// by every creation and edit path.  Validators are pure: they map raw input
// to a normalized value and an error message, and never touch storage.
// Callers collect messages into an Errors map so a submission with several
// bad fields reports all of them at once instead of just the first.
package validate

import (
	"fmt"
	"mime/multipart"
	"path/filepath"
	"regexp"
	"strings"
)

// Errors maps field names to human-readable messages.  An empty map means
// the submission is acceptable; any entry rejects it in full.
type Errors map[string]string

// Add records a message for a field unless the message is empty.
func (e Errors) Add(field, msg string) {
	if msg != "" {
		e[field] = msg
	}
}

// Any reports whether at least one field failed.
func (e Errors) Any() bool { return len(e) > 0 }

var (
	nameRe     = regexp.MustCompile(`^[A-Za-z\s.'-]{3,60}$`)
	usernameRe = regexp.MustCompile(`^[A-Za-z0-9_]{3,32}$`)
	emailRe    = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)
	titleRe    = regexp.MustCompile(`^[A-Za-z0-9\s\-',.!?]{3,60}$`)
	authorRe   = regexp.MustCompile(`^[A-Za-z\s,'.]{3,60}$`)
	textRe     = regexp.MustCompile(`^[\w\s.,!?'\-:;"()]{10,120}$`)
	letterRe   = regexp.MustCompile(`[A-Za-z]`)
	digitRe    = regexp.MustCompile(`[0-9]`)
)

// Name validates a display name: 3..60 letters, spaces and ".'-".
func Name(raw string) (string, string) {
	v := strings.TrimSpace(raw)
	if !nameRe.MatchString(v) {
		return v, "Name must be 3-60 characters of letters, spaces, periods, apostrophes or hyphens."
	}
	return v, ""
}

// Username validates a login name: 3..32 letters, digits or underscores.
// Usernames are user-chosen, so collisions are a Conflict upstream, never
// auto-suffixed.
func Username(raw string) (string, string) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if !usernameRe.MatchString(v) {
		return v, "Username must be 3-32 characters of letters, digits or underscores."
	}
	return v, ""
}

// Email validates the structural shape of an email address and lowercases it.
func Email(raw string) (string, string) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if len(v) > 60 || !emailRe.MatchString(v) {
		return v, "Email must be a valid address of at most 60 characters."
	}
	return v, ""
}

// Password enforces 8..60 characters containing at least one letter and one
// digit.  The raw value is returned untrimmed; whitespace is significant.
func Password(raw string) (string, string) {
	if len(raw) < 8 || len(raw) > 60 {
		return raw, "Password must be 8-60 characters long."
	}
	if !letterRe.MatchString(raw) || !digitRe.MatchString(raw) {
		return raw, "Password must contain at least one letter and one digit."
	}
	return raw, ""
}

// Title validates a section or book title: 3..60 characters of letters,
// digits, spaces and light punctuation.
func Title(raw string) (string, string) {
	v := strings.TrimSpace(raw)
	if !titleRe.MatchString(v) {
		return v, "Title must be 3-60 characters of letters, digits, spaces, hyphens, commas, periods, apostrophes, exclamation or question marks."
	}
	return v, ""
}

// Author validates an author name: 3..60 letters, spaces, commas,
// apostrophes and periods.
func Author(raw string) (string, string) {
	v := strings.TrimSpace(raw)
	if !authorRe.MatchString(v) {
		return v, "Author can only contain letters, spaces, apostrophes, commas and periods."
	}
	return v, ""
}

// Description validates a section or book description: 10..120 characters
// of letters, digits, spaces and punctuation.
func Description(raw string) (string, string) {
	v := strings.TrimSpace(raw)
	if !textRe.MatchString(v) {
		return v, "Description must be 10-120 characters of letters, digits, spaces and punctuation."
	}
	return v, ""
}

// Content validates feedback text with the same rule as descriptions.
func Content(raw string) (string, string) {
	v := strings.TrimSpace(raw)
	if !textRe.MatchString(v) {
		return v, "Content must be 10-120 characters of letters, digits, spaces and punctuation."
	}
	return v, ""
}

// Rating validates a feedback rating.
func Rating(n int) string {
	if n < 1 || n > 5 {
		return "Rating must be between 1 and 5."
	}
	return ""
}

// Days validates a requested loan duration against the configured maximum.
func Days(n, max int) string {
	if n < 1 || n > max {
		return fmt.Sprintf("Days must be between 1 and %d.", max)
	}
	return ""
}

var (
	imageMIMEs = map[string]bool{"image/jpeg": true, "image/jpg": true, "image/png": true}
	imageExts  = map[string]bool{".jpeg": true, ".jpg": true, ".png": true}
)

// Image checks an uploaded picture: declared MIME, file extension and byte
// size must all be acceptable.
func Image(fh *multipart.FileHeader, maxBytes int64) string {
	if fh.Size > maxBytes {
		return fmt.Sprintf("Image must be at most %d bytes.", maxBytes)
	}
	if !imageMIMEs[strings.ToLower(fh.Header.Get("Content-Type"))] {
		return "Image type must be jpg, jpeg or png."
	}
	if !imageExts[strings.ToLower(filepath.Ext(fh.Filename))] {
		return "Image extension must be .jpg, .jpeg or .png."
	}
	return ""
}

// PDF checks an uploaded book file the same way, with the larger document
// ceiling.
func PDF(fh *multipart.FileHeader, maxBytes int64) string {
	if fh.Size > maxBytes {
		return fmt.Sprintf("PDF must be at most %d bytes.", maxBytes)
	}
	if strings.ToLower(fh.Header.Get("Content-Type")) != "application/pdf" {
		return "File type must be pdf."
	}
	if strings.ToLower(filepath.Ext(fh.Filename)) != ".pdf" {
		return "File extension must be .pdf."
	}
	return ""
}
