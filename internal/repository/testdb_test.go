package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/library-lending/internal/model"
)

// Integration tests run against a throwaway MySQL database named by
// TEST_DATABASE_DSN, e.g.
//
//	TEST_DATABASE_DSN='root@tcp(127.0.0.1:3306)/lending_test?parseTime=true&loc=UTC' go test ./...
//
// Without the variable they skip, so the unit suite stays runnable
// anywhere.  Every test gets freshly truncated tables.

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		slug VARCHAR(80) NOT NULL UNIQUE,
		name VARCHAR(60) NOT NULL,
		username VARCHAR(32) NOT NULL UNIQUE,
		email VARCHAR(60) NOT NULL UNIQUE,
		password_hash VARCHAR(100) NOT NULL,
		profile_picture VARCHAR(120) NULL,
		role VARCHAR(16) NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS sections (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		slug VARCHAR(80) NOT NULL UNIQUE,
		title VARCHAR(60) NOT NULL,
		description VARCHAR(120) NOT NULL,
		picture VARCHAR(120) NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS books (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		slug VARCHAR(80) NOT NULL UNIQUE,
		title VARCHAR(60) NOT NULL,
		author VARCHAR(60) NOT NULL,
		description VARCHAR(120) NOT NULL,
		picture VARCHAR(120) NULL,
		content_file VARCHAR(120) NULL,
		section_id BIGINT UNSIGNED NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		KEY idx_books_section (section_id)
	)`,
	`CREATE TABLE IF NOT EXISTS requests (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		slug VARCHAR(80) NOT NULL UNIQUE,
		book_id BIGINT UNSIGNED NOT NULL,
		user_id BIGINT UNSIGNED NOT NULL,
		days INT NOT NULL,
		status VARCHAR(16) NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		KEY idx_requests_user_status (user_id, status),
		KEY idx_requests_book_status (book_id, status)
	)`,
	`CREATE TABLE IF NOT EXISTS issued_books (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		slug VARCHAR(80) NOT NULL UNIQUE,
		book_id BIGINT UNSIGNED NOT NULL,
		borrower_id BIGINT UNSIGNED NOT NULL,
		issuer_id BIGINT UNSIGNED NOT NULL,
		from_date DATETIME NOT NULL,
		to_date DATETIME NOT NULL,
		status VARCHAR(16) NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		KEY idx_issued_book_status (book_id, status),
		KEY idx_issued_borrower_status (borrower_id, status)
	)`,
	`CREATE TABLE IF NOT EXISTS feedbacks (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		slug VARCHAR(80) NOT NULL UNIQUE,
		book_id BIGINT UNSIGNED NOT NULL,
		user_id BIGINT UNSIGNED NOT NULL,
		rating INT NOT NULL,
		content VARCHAR(120) NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_feedback_book_user (book_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id BIGINT UNSIGNED NOT NULL,
		token_hash CHAR(64) NOT NULL UNIQUE,
		expires_at DATETIME NOT NULL,
		revoked_at DATETIME NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS revoked_tokens (
		token_hash CHAR(64) NOT NULL PRIMARY KEY,
		expires_at DATETIME NOT NULL
	)`,
}

var tables = []string{
	"revoked_tokens", "refresh_tokens", "feedbacks",
	"issued_books", "requests", "books", "sections", "users",
}

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set; skipping repository integration tests")
	}
	db, err := sql.Open("mysql", dsn)
	require.NoError(t, err)
	require.NoError(t, db.Ping())
	for _, ddl := range schema {
		_, err := db.Exec(ddl)
		require.NoError(t, err)
	}
	for _, tbl := range tables {
		_, err := db.Exec("DELETE FROM " + tbl)
		require.NoError(t, err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

var seq int

func mkUser(t *testing.T, db *sql.DB, role string) model.User {
	t.Helper()
	seq++
	u := model.User{
		Slug:         fmt.Sprintf("reader-%d", seq),
		Name:         "Test Reader",
		Username:     fmt.Sprintf("reader%d", seq),
		Email:        fmt.Sprintf("reader%d@example.com", seq),
		PasswordHash: "x",
		Role:         role,
	}
	require.NoError(t, NewUserRepo(db).Create(context.Background(), &u))
	return u
}

func mkSection(t *testing.T, db *sql.DB, title string) model.Section {
	t.Helper()
	s := model.Section{Title: title, Description: "a section used by the tests"}
	require.NoError(t, NewSectionRepo(db).Create(context.Background(), &s))
	return s
}

func mkBook(t *testing.T, db *sql.DB, sectionID uint64, title string) model.Book {
	t.Helper()
	b := model.Book{
		Title:       title,
		Author:      "Test Author",
		Description: "a book used by the tests",
		SectionID:   sectionID,
	}
	require.NoError(t, NewBookRepo(db).Create(context.Background(), &b))
	return b
}

func inTx(t *testing.T, db *sql.DB, fn func(tx *sql.Tx) error) error {
	t.Helper()
	tx, err := db.BeginTx(context.Background(), nil)
	require.NoError(t, err)
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	require.NoError(t, tx.Commit())
	return nil
}

func mkLoan(t *testing.T, db *sql.DB, bookID, borrowerID, issuerID uint64, due time.Time) model.IssuedBook {
	t.Helper()
	ib := model.IssuedBook{
		BookID:     bookID,
		BorrowerID: borrowerID,
		IssuerID:   issuerID,
		FromDate:   due.Add(-7 * 24 * time.Hour),
		ToDate:     due,
	}
	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
		return NewIssuedRepo(db).InsertTx(context.Background(), tx, &ib)
	}))
	return ib
}
