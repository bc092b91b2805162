package handler

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/library-lending/internal/config"
	"github.com/iliyamo/library-lending/internal/model"
	"github.com/iliyamo/library-lending/internal/queue"
	"github.com/iliyamo/library-lending/internal/repository"
	queue_publisher "github.com/iliyamo/library-lending/internal/service"
)

// LibrarianLoanHandler covers the staff side of lending: the dashboard,
// resolving requests and taking books back.
type LibrarianLoanHandler struct {
	Cfg      config.Config
	DB       *sql.DB
	Books    *repository.BookRepo
	Requests *repository.RequestRepo
	Issued   *repository.IssuedRepo
	Users    *repository.UserRepo
}

func NewLibrarianLoanHandler(cfg config.Config, db *sql.DB, b *repository.BookRepo, rq *repository.RequestRepo, i *repository.IssuedRepo, u *repository.UserRepo) *LibrarianLoanHandler {
	return &LibrarianLoanHandler{Cfg: cfg, DB: db, Books: b, Requests: rq, Issued: i, Users: u}
}

type pendingRequestView struct {
	Slug      string `json:"slug"`
	Book      string `json:"book"`
	BookTitle string `json:"book_title"`
	Borrower  string `json:"borrower"`
	Days      int    `json:"days"`
	CreatedAt string `json:"created_at"`
}

type currentLoanView struct {
	Slug      string `json:"slug"`
	Book      string `json:"book"`
	BookTitle string `json:"book_title"`
	Borrower  string `json:"borrower"`
	FromDate  string `json:"from_date"`
	ToDate    string `json:"to_date"`
	Overdue   bool   `json:"overdue"`
}

// sweep runs both inline maintenance passes: stale pending requests are
// rejected and overdue loans are closed, with a returned event per loan.
func (h *LibrarianLoanHandler) sweep(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	if _, err := h.Requests.RejectStale(ctx, time.Now(), model.StaleRequestAge); err != nil {
		return err
	}
	closed, err := h.Issued.ReturnOverdue(ctx, time.Now())
	if err != nil {
		return err
	}
	for _, ib := range closed {
		h.publishReturned(c, ib, "overdue")
	}
	return nil
}

func (h *LibrarianLoanHandler) publishReturned(c echo.Context, ib model.IssuedBook, reason string) {
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

// Dashboard lists pending requests and current loans after sweeping, so
// the librarian never acts on state the sweeps would have retired.
func (h *LibrarianLoanHandler) Dashboard(c echo.Context) error {
	if err := h.sweep(c); err != nil {
		return internalError(c, "sweep failed")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	pending, err := h.Requests.ListPending(ctx)
	if err != nil {
		return internalError(c, "list requests failed")
	}
	loans, err := h.Issued.ListCurrent(ctx)
	if err != nil {
		return internalError(c, "list loans failed")
	}

	now := time.Now()
	pviews := make([]pendingRequestView, 0, len(pending))
	for _, rq := range pending {
		book, err := h.Books.GetByID(ctx, rq.BookID)
		if err != nil {
			return internalError(c, "load book failed")
		}
		borrower, err := h.Users.GetByID(ctx, rq.UserID)
		if err != nil {
			return internalError(c, "load user failed")
		}
		pviews = append(pviews, pendingRequestView{
			Slug:      rq.Slug,
			Book:      book.Slug,
			BookTitle: book.Title,
			Borrower:  borrower.Slug,
			Days:      rq.Days,
			CreatedAt: rq.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	lviews := make([]currentLoanView, 0, len(loans))
	for _, ib := range loans {
		book, err := h.Books.GetByID(ctx, ib.BookID)
		if err != nil {
			return internalError(c, "load book failed")
		}
		borrower, err := h.Users.GetByID(ctx, ib.BorrowerID)
		if err != nil {
			return internalError(c, "load user failed")
		}
		lviews = append(lviews, currentLoanView{
			Slug:      ib.Slug,
			Book:      book.Slug,
			BookTitle: book.Title,
			Borrower:  borrower.Slug,
			FromDate:  ib.FromDate.UTC().Format(time.RFC3339),
			ToDate:    ib.ToDate.UTC().Format(time.RFC3339),
			Overdue:   ib.IsOverdue(now),
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"pending_requests": pviews, "current_loans": lviews})
}

// BookActivity shows one title's pending requests and its open loan, the
// staff view behind the dashboard's per-book drill-down.
func (h *LibrarianLoanHandler) BookActivity(c echo.Context) error {
	if err := h.sweep(c); err != nil {
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
	pending, err := h.Requests.ListPendingByBook(ctx, book.ID)
	if err != nil {
		return internalError(c, "list requests failed")
	}
	loans, err := h.Issued.ListCurrentByBook(ctx, book.ID)
	if err != nil {
		return internalError(c, "list loans failed")
	}

	now := time.Now()
	pviews := make([]pendingRequestView, 0, len(pending))
	for _, rq := range pending {
		borrower, err := h.Users.GetByID(ctx, rq.UserID)
		if err != nil {
			return internalError(c, "load user failed")
		}
		pviews = append(pviews, pendingRequestView{
			Slug:      rq.Slug,
			Book:      book.Slug,
			BookTitle: book.Title,
			Borrower:  borrower.Slug,
			Days:      rq.Days,
			CreatedAt: rq.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	lviews := make([]currentLoanView, 0, len(loans))
	for _, ib := range loans {
		borrower, err := h.Users.GetByID(ctx, ib.BorrowerID)
		if err != nil {
			return internalError(c, "load user failed")
		}
		lviews = append(lviews, currentLoanView{
			Slug:      ib.Slug,
			Book:      book.Slug,
			BookTitle: book.Title,
			Borrower:  borrower.Slug,
			FromDate:  ib.FromDate.UTC().Format(time.RFC3339),
			ToDate:    ib.ToDate.UTC().Format(time.RFC3339),
			Overdue:   ib.IsOverdue(now),
		})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"book":             book.Slug,
		"pending_requests": pviews,
		"current_loans":    lviews,
	})
}

type resolveReq struct {
	Action string `json:"action" form:"action"` // "accept" or "reject"
}

// Resolve accepts or rejects a pending request.  Acceptance checks that
// the single copy is free, creates the loan and flips the request status,
// all in one transaction; the request row is locked first so two
// librarians cannot resolve it twice.
func (h *LibrarianLoanHandler) Resolve(c echo.Context) error {
	var req resolveReq
	if err := c.Bind(&req); err != nil || (req.Action != "accept" && req.Action != "reject") {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "action must be accept or reject"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
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

	rq, err := h.Requests.GetBySlugTx(ctx, tx, c.Param("slug"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "request not found"})
		}
		return internalError(c, "load request failed")
	}
	if !rq.IsPending() {
		return c.JSON(http.StatusConflict, echo.Map{"error": "request already resolved"})
	}

	if req.Action == "reject" {
		if err := h.Requests.ResolveTx(ctx, tx, rq.ID, model.RequestRejected); err != nil {
			if errors.Is(err, repository.ErrInvalidState) {
				return c.JSON(http.StatusConflict, echo.Map{"error": "request already resolved"})
			}
			return internalError(c, "reject failed")
		}
		if err := tx.Commit(); err != nil {
			return internalError(c, "commit failed")
		}
		committed = true
		return c.JSON(http.StatusOK, echo.Map{"request": rq.Slug, "status": model.RequestRejected})
	}

	// Accept: the copy must be free.
	busy, err := h.Issued.HasCurrentTx(ctx, tx, rq.BookID)
	if err != nil {
		return internalError(c, "check loan failed")
	}
	if busy {
		return c.JSON(http.StatusConflict, echo.Map{"error": "book is out on loan"})
	}
	if err := h.Requests.ResolveTx(ctx, tx, rq.ID, model.RequestAccepted); err != nil {
		if errors.Is(err, repository.ErrInvalidState) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "request already resolved"})
		}
		return internalError(c, "accept failed")
	}

	now := time.Now().UTC()
	ib := model.IssuedBook{
		BookID:     rq.BookID,
		BorrowerID: rq.UserID,
		IssuerID:   currentUserID(c),
		FromDate:   now,
		ToDate:     model.DueDate(now, rq.Days),
	}
	if err := h.Issued.InsertTx(ctx, tx, &ib); err != nil {
		return internalError(c, "create loan failed")
	}
	if err := tx.Commit(); err != nil {
		return internalError(c, "commit failed")
	}
	committed = true

	h.publishIssued(c, rq, ib)
	return c.JSON(http.StatusOK, echo.Map{
		"request": rq.Slug,
		"status":  model.RequestAccepted,
		"loan": loanView{
			Slug:     ib.Slug,
			FromDate: ib.FromDate.Format(time.RFC3339),
			ToDate:   ib.ToDate.Format(time.RFC3339),
			Status:   ib.Status,
		},
	})
}

func (h *LibrarianLoanHandler) publishIssued(c echo.Context, rq model.Request, ib model.IssuedBook) {
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
	issuer, err := h.Users.GetByID(ctx, ib.IssuerID)
	if err != nil {
		return
	}
	_ = queue_publisher.PublishLoanIssued(ctx, queue.LoanIssuedEvent{
		LoanSlug:     ib.Slug,
		RequestSlug:  rq.Slug,
		BookSlug:     book.Slug,
		BookTitle:    book.Title,
		BorrowerSlug: borrower.Slug,
		IssuerSlug:   issuer.Slug,
		FromDate:     ib.FromDate.UTC().Format(time.RFC3339),
		ToDate:       ib.ToDate.UTC().Format(time.RFC3339),
		IssuedAt:     time.Now().UTC().Format(time.RFC3339),
	})
}

// TakeBack closes a loan on the librarian's side, for books handed back at
// the desk.
func (h *LibrarianLoanHandler) TakeBack(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	ib, err := h.Issued.GetBySlug(ctx, c.Param("slug"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "loan not found"})
		}
		return internalError(c, "load loan failed")
	}
	if err := h.Issued.MarkReturned(ctx, ib.ID); err != nil {
		if errors.Is(err, repository.ErrInvalidState) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "loan already returned"})
		}
		return internalError(c, "return failed")
	}
	h.publishReturned(c, ib, "librarian")
	return c.NoContent(http.StatusNoContent)
}
