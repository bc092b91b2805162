package slug

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMake(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Science Fiction", "science-fiction"},
		{"The Hitchhiker's Guide", "the-hitchhiker-s-guide"},
		{"  Crime & Punishment!  ", "crime-punishment"},
		{"C++ for Beginners, 2nd Ed.", "c-for-beginners-2nd-ed"},
		{"Miscellaneous", "miscellaneous"},
		{"1984", "1984"},
		{"---", ""},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Make(tc.in), "Make(%q)", tc.in)
	}
}

func TestMakeClipsLongTitles(t *testing.T) {
	got := Make(strings.Repeat("abc ", 60))
	require.LessOrEqual(t, len(got), MaxLen)
	assert.True(t, Valid(got))
}

func TestWithSuffix(t *testing.T) {
	assert.Equal(t, "dune-2", WithSuffix("dune", 2))
	assert.Equal(t, "dune-13", WithSuffix("dune", 13))

	long := strings.Repeat("a", MaxLen)
	got := WithSuffix(long, 2)
	assert.LessOrEqual(t, len(got), MaxLen)
	assert.True(t, strings.HasSuffix(got, "-2"))
	assert.True(t, Valid(got))
}

func TestValid(t *testing.T) {
	valid := []string{"a", "science-fiction", "book-2", "1984"}
	for _, s := range valid {
		assert.True(t, Valid(s), "expected %q valid", s)
	}
	invalid := []string{"", "-lead", "trail-", "double--hyphen", "UpperCase", "with space", "unicode-ß", strings.Repeat("a", MaxLen+1)}
	for _, s := range invalid {
		assert.False(t, Valid(s), "expected %q invalid", s)
	}
}

func TestUnique(t *testing.T) {
	a, b := Unique(), Unique()
	require.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
