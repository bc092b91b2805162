package handler

import (
	"database/sql"
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/library-lending/internal/config"
	"github.com/iliyamo/library-lending/internal/model"
	"github.com/iliyamo/library-lending/internal/queue"
	"github.com/iliyamo/library-lending/internal/repository"
	queue_publisher "github.com/iliyamo/library-lending/internal/service"
	"github.com/iliyamo/library-lending/internal/validate"
)

// BorrowHandler covers the reader side of lending: submitting and
// withdrawing requests, viewing loans, returning books and reading
// borrowed content.
type BorrowHandler struct {
	Cfg      config.Config
	DB       *sql.DB
	Books    *repository.BookRepo
	Requests *repository.RequestRepo
	Issued   *repository.IssuedRepo
	Users    *repository.UserRepo
}

func NewBorrowHandler(cfg config.Config, db *sql.DB, b *repository.BookRepo, rq *repository.RequestRepo, i *repository.IssuedRepo, u *repository.UserRepo) *BorrowHandler {
	return &BorrowHandler{Cfg: cfg, DB: db, Books: b, Requests: rq, Issued: i, Users: u}
}

type createRequestReq struct {
	Book string `json:"book" form:"book"`
	Days int    `json:"days" form:"days"`
}

// CreateRequest submits a borrow request.  The duplicate, already-borrowed
// and active-ceiling checks run inside one transaction so two rapid
// submissions cannot both slip under the limit.
func (h *BorrowHandler) CreateRequest(c echo.Context) error {
	var req createRequestReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if msg := validate.Days(req.Days, h.Cfg.MaxLoanDays); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"errors": validate.Errors{"days": msg}})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	book, err := h.Books.GetBySlug(ctx, req.Book)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "book not found"})
		}
		return internalError(c, "load book failed")
	}

	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		return internalError(c, "begin tx failed")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	rq := model.Request{UserID: currentUserID(c), BookID: book.ID, Days: req.Days}
	if err := h.Requests.CreateTx(ctx, tx, &rq, h.Cfg.MaxActiveItems); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicatePending):
			return c.JSON(http.StatusConflict, echo.Map{"error": "request already pending for this book"})
		case errors.Is(err, repository.ErrAlreadyBorrowed):
			return c.JSON(http.StatusConflict, echo.Map{"error": "you already hold this book"})
		case errors.Is(err, repository.ErrTooManyActive):
			return c.JSON(http.StatusConflict, echo.Map{"error": "active request and loan limit reached"})
		}
		return internalError(c, "create request failed")
	}
	if err := tx.Commit(); err != nil {
		return internalError(c, "commit failed")
	}
	committed = true

	// Reload so the response carries the row's created_at, not a guess.
	created, err := h.Requests.GetBySlug(ctx, rq.Slug)
	if err != nil {
		return internalError(c, "load request failed")
	}
	return c.JSON(http.StatusCreated, requestView{
		Slug:      created.Slug,
		Book:      book.Slug,
		Days:      created.Days,
		Status:    created.Status,
		CreatedAt: created.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// ListMyRequests returns the caller's requests, newest first.  The stale
// sweep runs first so a request that sat pending past the cutoff shows up
// rejected, not pending.
func (h *BorrowHandler) ListMyRequests(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	if _, err := h.Requests.RejectStale(ctx, time.Now(), model.StaleRequestAge); err != nil {
		return internalError(c, "sweep failed")
	}
	reqs, err := h.Requests.ListByUser(ctx, currentUserID(c))
	if err != nil {
		return internalError(c, "list requests failed")
	}
	out := make([]requestView, 0, len(reqs))
	for _, rq := range reqs {
		book, err := h.Books.GetByID(ctx, rq.BookID)
		if err != nil {
			return internalError(c, "load book failed")
		}
		out = append(out, requestView{
			Slug:      rq.Slug,
			Book:      book.Slug,
			Days:      rq.Days,
			Status:    rq.Status,
			CreatedAt: rq.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"requests": out})
}

// WithdrawRequest deletes the caller's own pending request.  Requests that
// were already resolved cannot be withdrawn.
func (h *BorrowHandler) WithdrawRequest(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	err := h.Requests.DeleteOwnPending(ctx, c.Param("slug"), currentUserID(c))
	switch {
	case err == nil:
		return c.NoContent(http.StatusNoContent)
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "request not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not your request"})
	case errors.Is(err, repository.ErrInvalidState):
		return c.JSON(http.StatusConflict, echo.Map{"error": "request already resolved"})
	}
	return internalError(c, "withdraw request failed")
}

// sweepOverdue closes overdue loans and publishes a returned event for
// each.  Publish failures are logged by the publisher and ignored; the
// loans are already closed in the database.
func (h *BorrowHandler) sweepOverdue(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	closed, err := h.Issued.ReturnOverdue(ctx, time.Now())
	if err != nil {
		return err
	}
	for _, ib := range closed {
		h.publishReturned(c, ib, "overdue")
	}
	return nil
}

func (h *BorrowHandler) publishReturned(c echo.Context, ib model.IssuedBook, reason string) {
	ctx, cancel := reqCtx(c)
	defer cancel()
	book, err := h.Books.GetByID(ctx, ib.BookID)
	if err != nil {
		return
	}
	borrower, err := h.Users.GetByID(ctx, ib.BorrowerID)
	if err != nil {
		return
	}
	_ = queue_publisher.PublishLoanReturned(ctx, queue.LoanReturnedEvent{
		LoanSlug:     ib.Slug,
		BookSlug:     book.Slug,
		BookTitle:    book.Title,
		BorrowerSlug: borrower.Slug,
		Reason:       reason,
		ReturnedAt:   time.Now().UTC().Format(time.RFC3339),
	})
}

// MyBooks lists the caller's loans, current first.  The overdue sweep runs
// before the read so an expired loan never shows as current.
func (h *BorrowHandler) MyBooks(c echo.Context) error {
	if err := h.sweepOverdue(c); err != nil {
		return internalError(c, "sweep failed")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	loans, err := h.Issued.ListByBorrower(ctx, currentUserID(c))
	if err != nil {
		return internalError(c, "list loans failed")
	}
	now := time.Now()
	out := make([]loanView, 0, len(loans))
	for _, ib := range loans {
		book, err := h.Books.GetByID(ctx, ib.BookID)
		if err != nil {
			return internalError(c, "load book failed")
		}
		out = append(out, newLoanView(ib, book.Slug, now))
	}
	return c.JSON(http.StatusOK, echo.Map{"loans": out})
}

// ReturnLoan lets the borrower hand a book back early.
func (h *BorrowHandler) ReturnLoan(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	ib, err := h.Issued.GetBySlug(ctx, c.Param("slug"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "loan not found"})
		}
		return internalError(c, "load loan failed")
	}
	if ib.BorrowerID != currentUserID(c) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not your loan"})
	}
	if err := h.Issued.MarkReturned(ctx, ib.ID); err != nil {
		if errors.Is(err, repository.ErrInvalidState) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "loan already returned"})
		}
		return internalError(c, "return failed")
	}
	h.publishReturned(c, ib, "borrower")
	return c.NoContent(http.StatusNoContent)
}

// BookContent serves the stored book file to its current borrower.  The
// overdue sweep runs first, so access lapses the moment a loan expires.
func (h *BorrowHandler) BookContent(c echo.Context) error {
	if err := h.sweepOverdue(c); err != nil {
		return internalError(c, "sweep failed")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	book, err := h.Books.GetBySlug(ctx, c.Param("slug"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "book not found"})
		}
		return internalError(c, "load book failed")
	}
	// Librarians may open any book; readers need a current loan.
	if role, _ := c.Get("role").(string); role != model.RoleLibrarian {
		if _, err := h.Issued.GetCurrentForBorrower(ctx, book.ID, currentUserID(c)); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "no current loan for this book"})
			}
			return internalError(c, "load loan failed")
		}
	}
	if book.ContentFile == "" {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "book has no stored content"})
	}
	return c.File(filepath.Join(h.Cfg.UploadDir, book.ContentFile))
}
