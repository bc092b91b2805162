package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/library-lending/internal/model"
	"github.com/iliyamo/library-lending/internal/repository"
)

// CatalogHandler serves the public, read-only catalog.  These routes sit
// behind the Redis response cache; anything personalised stays off them.
type CatalogHandler struct {
	Sections  *repository.SectionRepo
	Books     *repository.BookRepo
	Feedbacks *repository.FeedbackRepo
	Users     *repository.UserRepo
}

func NewCatalogHandler(s *repository.SectionRepo, b *repository.BookRepo, f *repository.FeedbackRepo, u *repository.UserRepo) *CatalogHandler {
	return &CatalogHandler{Sections: s, Books: b, Feedbacks: f, Users: u}
}

// sectionWithBooks nests a section's book summaries inside it, the shape
// both public listings return.
type sectionWithBooks struct {
	sectionView
	Books []bookView `json:"books"`
}

// nestBooks groups books under their sections, keeping creation order on
// both levels.  Sections with no books appear with an empty list.
func nestBooks(sections []model.Section, books []model.Book) []sectionWithBooks {
	grouped := make(map[uint64][]model.Book, len(sections))
	for _, b := range books {
		grouped[b.SectionID] = append(grouped[b.SectionID], b)
	}
	out := make([]sectionWithBooks, 0, len(sections))
	for _, s := range sections {
		views := make([]bookView, 0, len(grouped[s.ID]))
		for _, b := range grouped[s.ID] {
			views = append(views, newBookView(b, s.Slug))
		}
		out = append(out, sectionWithBooks{sectionView: newSectionView(s), Books: views})
	}
	return out
}

// ListSections returns every section with its books nested.
func (h *CatalogHandler) ListSections(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	sections, err := h.Sections.List(ctx)
	if err != nil {
		return internalError(c, "list sections failed")
	}
	books, err := h.Books.ListAll(ctx)
	if err != nil {
		return internalError(c, "list books failed")
	}
	return c.JSON(http.StatusOK, echo.Map{"sections": nestBooks(sections, books)})
}

// GetSection returns one section together with its books.
func (h *CatalogHandler) GetSection(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	s, err := h.Sections.GetBySlug(ctx, c.Param("slug"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "section not found"})
		}
		return internalError(c, "load section failed")
	}
	books, err := h.Books.ListBySection(ctx, s.ID)
	if err != nil {
		return internalError(c, "list books failed")
	}
	views := make([]bookView, 0, len(books))
	for _, b := range books {
		views = append(views, newBookView(b, s.Slug))
	}
	return c.JSON(http.StatusOK, echo.Map{"section": newSectionView(s), "books": views})
}

// ListBooks returns the whole catalog, every section with its books
// nested.  Same shape as ListSections; kept as its own route so browse
// clients have a books-first entry point.
func (h *CatalogHandler) ListBooks(c echo.Context) error {
	return h.ListSections(c)
}

// GetBook returns one book with its feedbacks.
func (h *CatalogHandler) GetBook(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	b, err := h.Books.GetBySlug(ctx, c.Param("slug"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "book not found"})
		}
		return internalError(c, "load book failed")
	}
	section, err := h.Sections.GetByID(ctx, b.SectionID)
	if err != nil {
		return internalError(c, "load section failed")
	}

	feedbacks, err := h.Feedbacks.ListByBook(ctx, b.ID)
	if err != nil {
		return internalError(c, "list feedbacks failed")
	}
	views := make([]feedbackView, 0, len(feedbacks))
	for _, f := range feedbacks {
		views = append(views, newFeedbackView(f, b.Slug))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"book":      newBookView(b, section.Slug),
		"feedbacks": views,
	})
}
