// Package handler contains the HTTP endpoints.  Handlers bind and validate
// input, call repositories and translate sentinel errors into statuses;
// business rules live in the repository layer.
package handler

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/library-lending/internal/model"
	"github.com/iliyamo/library-lending/internal/slug"
)

const dbTimeout = 5 * time.Second

// reqCtx bounds a handler's database work.
func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), dbTimeout)
}

// currentUserID reads the id stored by the JWT middleware.
func currentUserID(c echo.Context) uint64 {
	if v, ok := c.Get("user_id").(uint64); ok {
		return v
	}
	return 0
}

// saveUpload stores a multipart file under dir with a random name, keeping
// the original extension, and returns the stored file name.
func saveUpload(fh *multipart.FileHeader, dir string) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := slug.Unique() + filepath.Ext(fh.Filename)
	dst, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return "", err
	}
	return name, nil
}

// storeOptional saves an already-validated upload, returning "" when the
// form carried none.  Files are only written once every field has passed
// validation, so a rejected submission leaves nothing on disk.
func storeOptional(fh *multipart.FileHeader, dir string) (string, error) {
	if fh == nil {
		return "", nil
	}
	return saveUpload(fh, dir)
}

// ----- shared views -----

type sectionView struct {
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Picture     string `json:"picture,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func newSectionView(s model.Section) sectionView {
	return sectionView{
		Slug:        s.Slug,
		Title:       s.Title,
		Description: s.Description,
		Picture:     s.Picture,
		CreatedAt:   s.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type bookView struct {
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description"`
	Picture     string `json:"picture,omitempty"`
	Section     string `json:"section"`
	CreatedAt   string `json:"created_at"`
}

func newBookView(b model.Book, sectionSlug string) bookView {
	return bookView{
		Slug:        b.Slug,
		Title:       b.Title,
		Author:      b.Author,
		Description: b.Description,
		Picture:     b.Picture,
		Section:     sectionSlug,
		CreatedAt:   b.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type requestView struct {
	Slug      string `json:"slug"`
	Book      string `json:"book"`
	Days      int    `json:"days"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

type loanView struct {
	Slug     string `json:"slug"`
	Book     string `json:"book"`
	FromDate string `json:"from_date"`
	ToDate   string `json:"to_date"`
	Status   string `json:"status"`
	Overdue  bool   `json:"overdue"`
}

func newLoanView(ib model.IssuedBook, bookSlug string, now time.Time) loanView {
	return loanView{
		Slug:     ib.Slug,
		Book:     bookSlug,
		FromDate: ib.FromDate.UTC().Format(time.RFC3339),
		ToDate:   ib.ToDate.UTC().Format(time.RFC3339),
		Status:   ib.Status,
		Overdue:  ib.IsOverdue(now),
	}
}

type feedbackView struct {
	Slug      string `json:"slug"`
	Book      string `json:"book"`
	Rating    int    `json:"rating"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

func newFeedbackView(f model.Feedback, bookSlug string) feedbackView {
	return feedbackView{
		Slug:      f.Slug,
		Book:      bookSlug,
		Rating:    f.Rating,
		Content:   f.Content,
		CreatedAt: f.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func internalError(c echo.Context, msg string) error {
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": msg})
}
