package validate

import (
	"mime/multipart"
	"net/textproto"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestName(t *testing.T) {
	v, msg := Name("  Ada Lovelace ")
	assert.Empty(t, msg)
	assert.Equal(t, "Ada Lovelace", v)

	for _, bad := range []string{"ab", "Name42", strings.Repeat("a", 61), ""} {
		_, msg := Name(bad)
		assert.NotEmpty(t, msg, "Name(%q)", bad)
	}
}

func TestUsername(t *testing.T) {
	v, msg := Username(" Reader_01 ")
	assert.Empty(t, msg)
	assert.Equal(t, "reader_01", v, "usernames are lowercased")

	for _, bad := range []string{"ab", "with space", "dash-ed", strings.Repeat("x", 33)} {
		_, msg := Username(bad)
		assert.NotEmpty(t, msg, "Username(%q)", bad)
	}
}

func TestEmail(t *testing.T) {
	v, msg := Email(" Reader@Example.COM ")
	assert.Empty(t, msg)
	assert.Equal(t, "reader@example.com", v)

	for _, bad := range []string{"nope", "a@b", "@example.com", "user@.com", strings.Repeat("a", 55) + "@example.com"} {
		_, msg := Email(bad)
		assert.NotEmpty(t, msg, "Email(%q)", bad)
	}
}

func TestPassword(t *testing.T) {
	_, msg := Password("hunter42x")
	assert.Empty(t, msg)

	for _, bad := range []string{"short1", "allletters", "12345678", strings.Repeat("a1", 31)} {
		_, msg := Password(bad)
		assert.NotEmpty(t, msg, "Password(%q)", bad)
	}
}

func TestTitleAuthorDescription(t *testing.T) {
	_, msg := Title("Crime and Punishment")
	assert.Empty(t, msg)
	_, msg = Title("ab")
	assert.NotEmpty(t, msg)
	_, msg = Title("Tabs\tare\tout")
	assert.NotEmpty(t, msg)

	_, msg = Author("Fyodor Dostoevsky")
	assert.Empty(t, msg)
	_, msg = Author("Author 3000")
	assert.NotEmpty(t, msg, "digits are not allowed in author names")

	_, msg = Description("A novel about guilt and redemption.")
	assert.Empty(t, msg)
	_, msg = Description("too short")
	assert.NotEmpty(t, msg)
	_, msg = Description(strings.Repeat("a", 121))
	assert.NotEmpty(t, msg)
}

func TestRatingAndDays(t *testing.T) {
	assert.Empty(t, Rating(1))
	assert.Empty(t, Rating(5))
	assert.NotEmpty(t, Rating(0))
	assert.NotEmpty(t, Rating(6))

	assert.Empty(t, Days(1, 7))
	assert.Empty(t, Days(7, 7))
	assert.NotEmpty(t, Days(0, 7))
	assert.NotEmpty(t, Days(8, 7))
}

func TestErrorsCollectsEveryField(t *testing.T) {
	errs := Errors{}
	_, msg := Title("x")
	errs.Add("title", msg)
	_, msg = Author("123")
	errs.Add("author", msg)
	_, msg = Description("fine description here")
	errs.Add("description", msg) // empty, not recorded

	assert.True(t, errs.Any())
	assert.Len(t, errs, 2)
	assert.Contains(t, errs, "title")
	assert.Contains(t, errs, "author")
}

func header(name, mime string, size int64) *multipart.FileHeader {
	return &multipart.FileHeader{
		Filename: name,
		Size:     size,
		Header:   textproto.MIMEHeader{"Content-Type": []string{mime}},
	}
}

func TestImage(t *testing.T) {
	assert.Empty(t, Image(header("cover.png", "image/png", 1024), 2048))
	assert.NotEmpty(t, Image(header("cover.png", "image/png", 4096), 2048), "oversized")
	assert.NotEmpty(t, Image(header("cover.gif", "image/gif", 10), 2048), "mime not allowed")
	assert.NotEmpty(t, Image(header("cover.pdf", "image/png", 10), 2048), "extension mismatch")
}

func TestPDF(t *testing.T) {
	assert.Empty(t, PDF(header("book.pdf", "application/pdf", 1024), 2048))
	assert.NotEmpty(t, PDF(header("book.pdf", "application/pdf", 4096), 2048))
	assert.NotEmpty(t, PDF(header("book.epub", "application/epub+zip", 10), 2048))
	assert.NotEmpty(t, PDF(header("book.txt", "application/pdf", 10), 2048))
}
