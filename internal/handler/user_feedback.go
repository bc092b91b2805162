package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/library-lending/internal/model"
	"github.com/iliyamo/library-lending/internal/repository"
	"github.com/iliyamo/library-lending/internal/validate"
)

// FeedbackHandler lets borrowers review books.  Only someone who has held
// a loan for the book, current or past, may write feedback, and each
// borrower gets one feedback per book which they can edit.
type FeedbackHandler struct {
	Books     *repository.BookRepo
	Issued    *repository.IssuedRepo
	Feedbacks *repository.FeedbackRepo
}

func NewFeedbackHandler(b *repository.BookRepo, i *repository.IssuedRepo, f *repository.FeedbackRepo) *FeedbackHandler {
	return &FeedbackHandler{Books: b, Issued: i, Feedbacks: f}
}

type feedbackReq struct {
	Rating  int    `json:"rating" form:"rating"`
	Content string `json:"content" form:"content"`
}

func (h *FeedbackHandler) validateBody(c echo.Context) (int, string, validate.Errors) {
	var req feedbackReq
	errs := validate.Errors{}
	if err := c.Bind(&req); err != nil {
		errs.Add("body", "invalid body")
		return 0, "", errs
	}
	errs.Add("rating", validate.Rating(req.Rating))
	content, msg := validate.Content(req.Content)
	errs.Add("content", msg)
	return req.Rating, content, errs
}

// Create records a feedback for a book the caller has borrowed.
func (h *FeedbackHandler) Create(c echo.Context) error {
	rating, content, errs := h.validateBody(c)
	if errs.Any() {
		return c.JSON(http.StatusBadRequest, echo.Map{"errors": errs})
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

	userID := currentUserID(c)
	borrowed, err := h.Issued.HasEverBorrowed(ctx, book.ID, userID)
	if err != nil {
		return internalError(c, "check loans failed")
	}
	if !borrowed {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "only borrowers can leave feedback"})
	}

	f := model.Feedback{BookID: book.ID, UserID: userID, Rating: rating, Content: content}
	if err := h.Feedbacks.Create(ctx, &f); err != nil {
		if errors.Is(err, repository.ErrFeedbackExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "feedback already exists, edit it instead"})
		}
		return internalError(c, "create feedback failed")
	}
	f.CreatedAt = time.Now().UTC()
	return c.JSON(http.StatusCreated, newFeedbackView(f, book.Slug))
}

// Update edits the caller's own feedback.
func (h *FeedbackHandler) Update(c echo.Context) error {
	rating, content, errs := h.validateBody(c)
	if errs.Any() {
		return c.JSON(http.StatusBadRequest, echo.Map{"errors": errs})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	err := h.Feedbacks.UpdateOwn(ctx, c.Param("slug"), currentUserID(c), rating, content)
	switch {
	case err == nil:
		f, err := h.Feedbacks.GetBySlug(ctx, c.Param("slug"))
		if err != nil {
			return internalError(c, "load feedback failed")
		}
		book, err := h.Books.GetByID(ctx, f.BookID)
		if err != nil {
			return internalError(c, "load book failed")
		}
		return c.JSON(http.StatusOK, newFeedbackView(f, book.Slug))
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "feedback not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not your feedback"})
	}
	return internalError(c, "update feedback failed")
}
