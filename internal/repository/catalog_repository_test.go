package repository

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/library-lending/internal/model"
)

func TestSectionSlugCollisionGetsSuffix(t *testing.T) {
	db := testDB(t)
	sections := NewSectionRepo(db)
	ctx := context.Background()

	a := model.Section{Title: "Short Stories", Description: "first of two equally named"}
	b := model.Section{Title: "Short Stories", Description: "second of two equally named"}
	require.NoError(t, sections.Create(ctx, &a))
	require.NoError(t, sections.Create(ctx, &b))

	assert.Equal(t, "short-stories", a.Slug)
	assert.Equal(t, "short-stories-2", b.Slug)
}

func TestMiscellaneousSectionIsProtected(t *testing.T) {
	db := testDB(t)
	sections := NewSectionRepo(db)
	ctx := context.Background()

	misc := model.Section{Title: "Miscellaneous", Description: "catch-all shelf for new books"}
	require.NoError(t, sections.Create(ctx, &misc))
	require.Equal(t, model.MiscellaneousSlug, misc.Slug)

	misc.Title = "Renamed"
	assert.ErrorIs(t, sections.Update(ctx, &misc), ErrProtectedSection)

	err := inTx(t, db, func(tx *sql.Tx) error {
		return sections.DeleteTx(ctx, tx, misc)
	})
	assert.ErrorIs(t, err, ErrProtectedSection)
}

func TestSectionDeleteCascade(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	sections := NewSectionRepo(db)
	books := NewBookRepo(db)
	issued := NewIssuedRepo(db)

	reader := mkUser(t, db, model.RoleUser)
	staff := mkUser(t, db, model.RoleLibrarian)
	section := mkSection(t, db, "Doomed Shelf")
	book := mkBook(t, db, section.ID, "Ephemeral Volume")

	loan := mkLoan(t, db, book.ID, reader.ID, staff.ID, time.Now().UTC().Add(24*time.Hour))

	// Blocked while the copy is out.
	err := inTx(t, db, func(tx *sql.Tx) error {
		return sections.DeleteTx(ctx, tx, section)
	})
	assert.ErrorIs(t, err, ErrLoanActive)

	require.NoError(t, issued.MarkReturned(ctx, loan.ID))
	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
		return sections.DeleteTx(ctx, tx, section)
	}))

	_, err = sections.GetBySlug(ctx, section.Slug)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = books.GetBySlug(ctx, book.Slug)
	assert.ErrorIs(t, err, ErrNotFound, "books fall with their section")
	_, err = issued.GetBySlug(ctx, loan.Slug)
	assert.ErrorIs(t, err, ErrNotFound, "loan history falls with the book")
}

func TestBookDeleteBlockedWhileOnLoan(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	books := NewBookRepo(db)
	issued := NewIssuedRepo(db)

	reader := mkUser(t, db, model.RoleUser)
	staff := mkUser(t, db, model.RoleLibrarian)
	section := mkSection(t, db, "Thrillers")
	book := mkBook(t, db, section.ID, "The Big Sleep")

	loan := mkLoan(t, db, book.ID, reader.ID, staff.ID, time.Now().UTC().Add(24*time.Hour))

	err := inTx(t, db, func(tx *sql.Tx) error {
		return books.DeleteTx(ctx, tx, book.ID)
	})
	assert.ErrorIs(t, err, ErrLoanActive)

	require.NoError(t, issued.MarkReturned(ctx, loan.ID))
	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
		return books.DeleteTx(ctx, tx, book.ID)
	}))
	_, err = books.GetBySlug(ctx, book.Slug)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBookSlugStableAcrossEdits(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	books := NewBookRepo(db)

	section := mkSection(t, db, "Sagas")
	book := mkBook(t, db, section.ID, "Original Title Here")
	originalSlug := book.Slug

	book.Title = "Completely Different Title"
	require.NoError(t, books.Update(ctx, &book))

	got, err := books.GetBySlug(ctx, originalSlug)
	require.NoError(t, err)
	assert.Equal(t, "Completely Different Title", got.Title)
}

func TestFeedbackOnePerBorrowerPerBook(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	feedbacks := NewFeedbackRepo(db)

	reader := mkUser(t, db, model.RoleUser)
	section := mkSection(t, db, "Memoir")
	book := mkBook(t, db, section.ID, "A Moveable Feast")

	f := model.Feedback{BookID: book.ID, UserID: reader.ID, Rating: 5, Content: "wonderful portrait of a city"}
	require.NoError(t, feedbacks.Create(ctx, &f))

	dup := model.Feedback{BookID: book.ID, UserID: reader.ID, Rating: 1, Content: "changed my mind completely"}
	assert.ErrorIs(t, feedbacks.Create(ctx, &dup), ErrFeedbackExists)

	// Editing the original is the supported path.
	require.NoError(t, feedbacks.UpdateOwn(ctx, f.Slug, reader.ID, 4, "still good on a second read"))
	got, err := feedbacks.GetBySlug(ctx, f.Slug)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Rating)

	other := mkUser(t, db, model.RoleUser)
	assert.ErrorIs(t, feedbacks.UpdateOwn(ctx, f.Slug, other.ID, 1, "trying to vandalise a review"), ErrForbidden)
}

func TestUserDeleteCascade(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	users := NewUserRepo(db)
	feedbacks := NewFeedbackRepo(db)
	issued := NewIssuedRepo(db)

	reader := mkUser(t, db, model.RoleUser)
	staff := mkUser(t, db, model.RoleLibrarian)
	section := mkSection(t, db, "Letters")
	book := mkBook(t, db, section.ID, "Collected Correspondence")

	loan := mkLoan(t, db, book.ID, reader.ID, staff.ID, time.Now().UTC().Add(24*time.Hour))
	f := model.Feedback{BookID: book.ID, UserID: reader.ID, Rating: 3, Content: "some letters are better than others"}
	require.NoError(t, feedbacks.Create(ctx, &f))

	// Blocked while a book is out.
	err := inTx(t, db, func(tx *sql.Tx) error {
		return users.DeleteTx(ctx, tx, reader.ID)
	})
	assert.ErrorIs(t, err, ErrLoanActive)

	require.NoError(t, issued.MarkReturned(ctx, loan.ID))
	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
		return users.DeleteTx(ctx, tx, reader.ID)
	}))

	_, err = users.GetByID(ctx, reader.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = feedbacks.GetBySlug(ctx, f.Slug)
	assert.ErrorIs(t, err, ErrNotFound, "feedback falls with its author")
	_, err = issued.GetBySlug(ctx, loan.Slug)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTokenLifecycle(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	tokens := NewTokenRepo(db)

	reader := mkUser(t, db, model.RoleUser)
	hash := "a3f5" + strings.Repeat("0", 60)
	require.NoError(t, tokens.StoreRefresh(ctx, reader.ID, hash, time.Now().UTC().Add(time.Hour)))

	uid, err := tokens.ConsumeRefresh(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, reader.ID, uid)

	// Consumed means gone; replay fails.
	_, err = tokens.ConsumeRefresh(ctx, hash)
	assert.ErrorIs(t, err, ErrNotFound)

	accessHash := "b4e6" + strings.Repeat("1", 60)
	require.NoError(t, tokens.BlacklistAccess(ctx, accessHash, time.Now().UTC().Add(15*time.Minute)))
	revoked, err := tokens.IsAccessBlacklisted(ctx, accessHash)
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = tokens.IsAccessBlacklisted(ctx, "unknownhash")
	require.NoError(t, err)
	assert.False(t, revoked)
}
