package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/library-lending/internal/model"
)

func TestNestBooksGroupsBySection(t *testing.T) {
	sections := []model.Section{
		{ID: 1, Slug: "history", Title: "History"},
		{ID: 2, Slug: "empty-shelf", Title: "Empty Shelf"},
	}
	books := []model.Book{
		{ID: 10, Slug: "a-first-title", SectionID: 1, Title: "A First Title"},
		{ID: 11, Slug: "a-second-title", SectionID: 1, Title: "A Second Title"},
	}

	out := nestBooks(sections, books)
	require.Len(t, out, 2)

	assert.Equal(t, "history", out[0].Slug)
	require.Len(t, out[0].Books, 2)
	assert.Equal(t, "a-first-title", out[0].Books[0].Slug)
	assert.Equal(t, "a-second-title", out[0].Books[1].Slug)
	assert.Equal(t, "history", out[0].Books[0].Section)

	assert.Equal(t, "empty-shelf", out[1].Slug)
	assert.Empty(t, out[1].Books, "sections without books still appear in the aggregate")
}
