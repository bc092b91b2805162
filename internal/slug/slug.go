// Package slug derives and validates the URL-safe identifiers used for
// every catalog entity.  Slugs are lowercase, hyphen-separated and
// immutable once assigned; collision handling is the caller's concern
// (repositories retry with a numeric suffix for derived slugs, user-chosen
// identifiers fail instead).
package slug

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// MaxLen caps slug length to keep them usable in URLs and index keys.
const MaxLen = 80

// Make normalizes a display title into a slug: lowercase ASCII letters and
// digits, with every run of other characters collapsed into a single
// hyphen.  Leading/trailing hyphens are trimmed and the result is clipped
// to MaxLen.  An input with no usable characters yields "".
func Make(title string) string {
	var b strings.Builder
	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	s := strings.TrimRight(b.String(), "-")
	if len(s) > MaxLen {
		s = strings.TrimRight(s[:MaxLen], "-")
	}
	return s
}

// WithSuffix appends a numeric disambiguation suffix, clipping the base so
// the result stays within MaxLen.  Suffixes start at 2: "title", "title-2",
// "title-3", ...
func WithSuffix(base string, n int) string {
	suffix := fmt.Sprintf("-%d", n)
	if len(base)+len(suffix) > MaxLen {
		base = strings.TrimRight(base[:MaxLen-len(suffix)], "-")
	}
	return base + suffix
}

// Valid reports whether s is a well-formed slug: non-empty, within MaxLen,
// only lowercase letters, digits and interior single hyphens.
func Valid(s string) bool {
	if s == "" || len(s) > MaxLen {
		return false
	}
	if s[0] == '-' || s[len(s)-1] == '-' {
		return false
	}
	prevHyphen := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			prevHyphen = false
		case c == '-':
			if prevHyphen {
				return false
			}
			prevHyphen = true
		default:
			return false
		}
	}
	return true
}

// Unique returns a random slug for records that have no natural title,
// such as requests, loans and feedbacks.
func Unique() string {
	return uuid.NewString()
}
