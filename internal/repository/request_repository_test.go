package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/library-lending/internal/model"
)

func TestRequestAcceptCreatesLoan(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	reqs := NewRequestRepo(db)
	issued := NewIssuedRepo(db)

	reader := mkUser(t, db, model.RoleUser)
	staff := mkUser(t, db, model.RoleLibrarian)
	section := mkSection(t, db, "History")
	book := mkBook(t, db, section.ID, "A Short History of Nearly Everything")

	rq := model.Request{UserID: reader.ID, BookID: book.ID, Days: 5}
	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
		return reqs.CreateTx(ctx, tx, &rq, 5)
	}))
	assert.Equal(t, model.RequestPending, rq.Status)
	assert.NotEmpty(t, rq.Slug)

	var loan model.IssuedBook
	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
		busy, err := issued.HasCurrentTx(ctx, tx, rq.BookID)
		require.NoError(t, err)
		require.False(t, busy)
		if err := reqs.ResolveTx(ctx, tx, rq.ID, model.RequestAccepted); err != nil {
			return err
		}
		now := time.Now().UTC().Truncate(time.Second)
		loan = model.IssuedBook{
			BookID:     rq.BookID,
			BorrowerID: rq.UserID,
			IssuerID:   staff.ID,
			FromDate:   now,
			ToDate:     model.DueDate(now, rq.Days),
		}
		return issued.InsertTx(ctx, tx, &loan)
	}))

	got, err := reqs.GetBySlug(ctx, rq.Slug)
	require.NoError(t, err)
	assert.Equal(t, model.RequestAccepted, got.Status)

	cur, err := issued.GetCurrentForBorrower(ctx, book.ID, reader.ID)
	require.NoError(t, err)
	assert.Equal(t, loan.Slug, cur.Slug)
	assert.True(t, cur.IsCurrent())
}

func TestAcceptBlockedWhileCopyOut(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	reqs := NewRequestRepo(db)
	issued := NewIssuedRepo(db)

	holder := mkUser(t, db, model.RoleUser)
	hopeful := mkUser(t, db, model.RoleUser)
	staff := mkUser(t, db, model.RoleLibrarian)
	section := mkSection(t, db, "Adventure")
	book := mkBook(t, db, section.ID, "Kidnapped")

	mkLoan(t, db, book.ID, holder.ID, staff.ID, time.Now().UTC().Add(48*time.Hour))

	rq := model.Request{UserID: hopeful.ID, BookID: book.ID, Days: 3}
	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
		return reqs.CreateTx(ctx, tx, &rq, 5)
	}))

	// Acceptance finds the copy busy and aborts before touching the
	// request, exactly the order the resolve flow uses.
	err := inTx(t, db, func(tx *sql.Tx) error {
		busy, err := issued.HasCurrentTx(ctx, tx, rq.BookID)
		if err != nil {
			return err
		}
		if busy {
			return ErrLoanActive
		}
		return reqs.ResolveTx(ctx, tx, rq.ID, model.RequestAccepted)
	})
	assert.ErrorIs(t, err, ErrLoanActive)

	got, err := reqs.GetBySlug(ctx, rq.Slug)
	require.NoError(t, err)
	assert.Equal(t, model.RequestPending, got.Status, "a blocked acceptance leaves the request pending")

	var loans int
	require.NoError(t, db.QueryRow(
		"SELECT COUNT(*) FROM issued_books WHERE book_id=?", book.ID).Scan(&loans))
	assert.Equal(t, 1, loans, "no second loan row may appear")
}

func TestRequestCreatedAtComesFromRow(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	reqs := NewRequestRepo(db)

	reader := mkUser(t, db, model.RoleUser)
	section := mkSection(t, db, "Essays")
	book := mkBook(t, db, section.ID, "Consider the Lobster")

	before := time.Now().UTC().Add(-2 * time.Second)
	rq := model.Request{UserID: reader.ID, BookID: book.ID, Days: 3}
	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
		return reqs.CreateTx(ctx, tx, &rq, 5)
	}))
	// The insert leaves the struct's timestamp zero; the database fills it.
	assert.True(t, rq.CreatedAt.IsZero())

	got, err := reqs.GetBySlug(ctx, rq.Slug)
	require.NoError(t, err)
	assert.False(t, got.CreatedAt.IsZero(), "stored request must carry its row timestamp")
	assert.True(t, got.CreatedAt.After(before), "timestamp must come from the insert, not a default epoch")
}

func TestRequestResolveIsSingleShot(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	reqs := NewRequestRepo(db)

	reader := mkUser(t, db, model.RoleUser)
	section := mkSection(t, db, "Poetry")
	book := mkBook(t, db, section.ID, "Leaves of Grass")

	rq := model.Request{UserID: reader.ID, BookID: book.ID, Days: 3}
	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
		return reqs.CreateTx(ctx, tx, &rq, 5)
	}))

	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
		return reqs.ResolveTx(ctx, tx, rq.ID, model.RequestRejected)
	}))
	err := inTx(t, db, func(tx *sql.Tx) error {
		return reqs.ResolveTx(ctx, tx, rq.ID, model.RequestAccepted)
	})
	assert.ErrorIs(t, err, ErrInvalidState, "a resolved request must not flip again")
}

func TestRequestDuplicatePendingAndAlreadyBorrowed(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	reqs := NewRequestRepo(db)

	reader := mkUser(t, db, model.RoleUser)
	staff := mkUser(t, db, model.RoleLibrarian)
	section := mkSection(t, db, "Classics")
	book := mkBook(t, db, section.ID, "War and Peace")

	first := model.Request{UserID: reader.ID, BookID: book.ID, Days: 7}
	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
		return reqs.CreateTx(ctx, tx, &first, 5)
	}))

	dup := model.Request{UserID: reader.ID, BookID: book.ID, Days: 2}
	err := inTx(t, db, func(tx *sql.Tx) error {
		return reqs.CreateTx(ctx, tx, &dup, 5)
	})
	assert.ErrorIs(t, err, ErrDuplicatePending)

	// Resolve the request and hand the book out, then a new request for the
	// same book by its holder must fail differently.
	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
		return reqs.ResolveTx(ctx, tx, first.ID, model.RequestAccepted)
	}))
	mkLoan(t, db, book.ID, reader.ID, staff.ID, time.Now().UTC().Add(7*24*time.Hour))

	again := model.Request{UserID: reader.ID, BookID: book.ID, Days: 2}
	err = inTx(t, db, func(tx *sql.Tx) error {
		return reqs.CreateTx(ctx, tx, &again, 5)
	})
	assert.ErrorIs(t, err, ErrAlreadyBorrowed)
}

func TestRequestActiveCeiling(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	reqs := NewRequestRepo(db)

	reader := mkUser(t, db, model.RoleUser)
	section := mkSection(t, db, "Science")
	b1 := mkBook(t, db, section.ID, "Cosmos")
	b2 := mkBook(t, db, section.ID, "The Selfish Gene")
	b3 := mkBook(t, db, section.ID, "A Brief History of Time")

	for _, b := range []model.Book{b1, b2} {
		rq := model.Request{UserID: reader.ID, BookID: b.ID, Days: 3}
		require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
			return reqs.CreateTx(ctx, tx, &rq, 2)
		}))
	}
	over := model.Request{UserID: reader.ID, BookID: b3.ID, Days: 3}
	err := inTx(t, db, func(tx *sql.Tx) error {
		return reqs.CreateTx(ctx, tx, &over, 2)
	})
	assert.ErrorIs(t, err, ErrTooManyActive)
}

func TestRejectStaleSweep(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	reqs := NewRequestRepo(db)

	reader := mkUser(t, db, model.RoleUser)
	section := mkSection(t, db, "Drama")
	book := mkBook(t, db, section.ID, "Hamlet")

	rq := model.Request{UserID: reader.ID, BookID: book.ID, Days: 3}
	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
		return reqs.CreateTx(ctx, tx, &rq, 5)
	}))
	_, err := db.Exec("UPDATE requests SET created_at=? WHERE id=?",
		time.Now().UTC().Add(-8*24*time.Hour), rq.ID)
	require.NoError(t, err)

	n, err := reqs.RejectStale(ctx, time.Now(), model.StaleRequestAge)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := reqs.GetBySlug(ctx, rq.Slug)
	require.NoError(t, err)
	assert.Equal(t, model.RequestRejected, got.Status)
}

func TestWithdrawOwnPendingOnly(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	reqs := NewRequestRepo(db)

	reader := mkUser(t, db, model.RoleUser)
	other := mkUser(t, db, model.RoleUser)
	section := mkSection(t, db, "Travel")
	book := mkBook(t, db, section.ID, "In Patagonia")

	rq := model.Request{UserID: reader.ID, BookID: book.ID, Days: 3}
	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
		return reqs.CreateTx(ctx, tx, &rq, 5)
	}))

	assert.ErrorIs(t, reqs.DeleteOwnPending(ctx, rq.Slug, other.ID), ErrForbidden)
	require.NoError(t, reqs.DeleteOwnPending(ctx, rq.Slug, reader.ID))
	_, err := reqs.GetBySlug(ctx, rq.Slug)
	assert.ErrorIs(t, err, ErrNotFound)
}
