package handler

import (
	"database/sql"
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/library-lending/internal/config"
	"github.com/iliyamo/library-lending/internal/model"
	"github.com/iliyamo/library-lending/internal/repository"
	"github.com/iliyamo/library-lending/internal/validate"
)

// LibrarianCatalogHandler covers catalog administration: section and book
// CRUD, including the cascading deletes.
type LibrarianCatalogHandler struct {
	Cfg      config.Config
	DB       *sql.DB
	Sections *repository.SectionRepo
	Books    *repository.BookRepo
}

func NewLibrarianCatalogHandler(cfg config.Config, db *sql.DB, s *repository.SectionRepo, b *repository.BookRepo) *LibrarianCatalogHandler {
	return &LibrarianCatalogHandler{Cfg: cfg, DB: db, Sections: s, Books: b}
}

// sectionForm validates the shared section fields and optional picture.
// The picture is returned unsaved; callers store it only after the whole
// form has passed.
func (h *LibrarianCatalogHandler) sectionForm(c echo.Context) (title, description string, picture *multipart.FileHeader, errs validate.Errors) {
	errs = validate.Errors{}
	var msg string
	title, msg = validate.Title(c.FormValue("title"))
	errs.Add("title", msg)
	description, msg = validate.Description(c.FormValue("description"))
	errs.Add("description", msg)

	if fh, err := c.FormFile("picture"); err == nil {
		if msg := validate.Image(fh, h.Cfg.MaxImageBytes); msg != "" {
			errs.Add("picture", msg)
		} else {
			picture = fh
		}
	}
	return title, description, picture, errs
}

// CreateSection adds a section to the catalog.
func (h *LibrarianCatalogHandler) CreateSection(c echo.Context) error {
	title, description, pictureFH, errs := h.sectionForm(c)
	if errs.Any() {
		return c.JSON(http.StatusBadRequest, echo.Map{"errors": errs})
	}
	picture, err := storeOptional(pictureFH, h.Cfg.UploadDir)
	if err != nil {
		return internalError(c, "store picture failed")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	s := model.Section{Title: title, Description: description, Picture: picture}
	if err := h.Sections.Create(ctx, &s); err != nil {
		return internalError(c, "create section failed")
	}
	created, err := h.Sections.GetBySlug(ctx, s.Slug)
	if err != nil {
		return internalError(c, "load section failed")
	}
	return c.JSON(http.StatusCreated, newSectionView(created))
}

// UpdateSection edits a section's title, description and picture.  The
// slug stays fixed and the Miscellaneous section refuses edits.
func (h *LibrarianCatalogHandler) UpdateSection(c echo.Context) error {
	title, description, pictureFH, errs := h.sectionForm(c)
	if errs.Any() {
		return c.JSON(http.StatusBadRequest, echo.Map{"errors": errs})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	s, err := h.Sections.GetBySlug(ctx, c.Param("slug"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "section not found"})
		}
		return internalError(c, "load section failed")
	}
	// Refuse before storing the upload so a protected edit leaves no file.
	if s.IsProtected() {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "the miscellaneous section cannot be edited"})
	}
	picture, err := storeOptional(pictureFH, h.Cfg.UploadDir)
	if err != nil {
		return internalError(c, "store picture failed")
	}
	s.Title = title
	s.Description = description
	s.Picture = picture
	if err := h.Sections.Update(ctx, &s); err != nil {
		if errors.Is(err, repository.ErrProtectedSection) {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "the miscellaneous section cannot be edited"})
		}
		return internalError(c, "update section failed")
	}
	updated, err := h.Sections.GetBySlug(ctx, s.Slug)
	if err != nil {
		return internalError(c, "load section failed")
	}
	return c.JSON(http.StatusOK, newSectionView(updated))
}

// DeleteSection removes a section and every book under it.  Blocked while
// any of the section's books is out on loan.
func (h *LibrarianCatalogHandler) DeleteSection(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	s, err := h.Sections.GetBySlug(ctx, c.Param("slug"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "section not found"})
		}
		return internalError(c, "load section failed")
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

	if err := h.Sections.DeleteTx(ctx, tx, s); err != nil {
		switch {
		case errors.Is(err, repository.ErrProtectedSection):
			return c.JSON(http.StatusForbidden, echo.Map{"error": "the miscellaneous section cannot be deleted"})
		case errors.Is(err, repository.ErrLoanActive):
			return c.JSON(http.StatusConflict, echo.Map{"error": "a book in this section is out on loan"})
		}
		return internalError(c, "delete section failed")
	}
	if err := tx.Commit(); err != nil {
		return internalError(c, "commit failed")
	}
	committed = true
	return c.NoContent(http.StatusNoContent)
}

// bookForm validates the shared book fields plus optional picture and
// content PDF.  Files come back unsaved; callers store them only once the
// whole form has passed.
func (h *LibrarianCatalogHandler) bookForm(c echo.Context) (title, author, description string, picture, content *multipart.FileHeader, errs validate.Errors) {
	errs = validate.Errors{}
	var msg string
	title, msg = validate.Title(c.FormValue("title"))
	errs.Add("title", msg)
	author, msg = validate.Author(c.FormValue("author"))
	errs.Add("author", msg)
	description, msg = validate.Description(c.FormValue("description"))
	errs.Add("description", msg)

	if fh, err := c.FormFile("picture"); err == nil {
		if msg := validate.Image(fh, h.Cfg.MaxImageBytes); msg != "" {
			errs.Add("picture", msg)
		} else {
			picture = fh
		}
	}
	if fh, err := c.FormFile("content"); err == nil {
		if msg := validate.PDF(fh, h.Cfg.MaxPDFBytes); msg != "" {
			errs.Add("content", msg)
		} else {
			content = fh
		}
	}
	return title, author, description, picture, content, errs
}

// resolveSection maps the optional "section" form value to a section,
// falling back to Miscellaneous when absent.
func (h *LibrarianCatalogHandler) resolveSection(c echo.Context) (model.Section, error) {
	ctx, cancel := reqCtx(c)
	defer cancel()
	sl := c.FormValue("section")
	if sl == "" {
		sl = model.MiscellaneousSlug
	}
	return h.Sections.GetBySlug(ctx, sl)
}

// CreateBook adds a book, defaulting to the Miscellaneous section when no
// section is named.
func (h *LibrarianCatalogHandler) CreateBook(c echo.Context) error {
	title, author, description, pictureFH, contentFH, errs := h.bookForm(c)
	if errs.Any() {
		return c.JSON(http.StatusBadRequest, echo.Map{"errors": errs})
	}
	section, err := h.resolveSection(c)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "section not found"})
		}
		return internalError(c, "load section failed")
	}
	picture, err := storeOptional(pictureFH, h.Cfg.UploadDir)
	if err != nil {
		return internalError(c, "store picture failed")
	}
	content, err := storeOptional(contentFH, h.Cfg.UploadDir)
	if err != nil {
		return internalError(c, "store file failed")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	b := model.Book{
		Title:       title,
		Author:      author,
		Description: description,
		Picture:     picture,
		ContentFile: content,
		SectionID:   section.ID,
	}
	if err := h.Books.Create(ctx, &b); err != nil {
		return internalError(c, "create book failed")
	}
	created, err := h.Books.GetBySlug(ctx, b.Slug)
	if err != nil {
		return internalError(c, "load book failed")
	}
	return c.JSON(http.StatusCreated, newBookView(created, section.Slug))
}

// UpdateBook edits a book's fields and can move it to another section.
func (h *LibrarianCatalogHandler) UpdateBook(c echo.Context) error {
	title, author, description, pictureFH, contentFH, errs := h.bookForm(c)
	if errs.Any() {
		return c.JSON(http.StatusBadRequest, echo.Map{"errors": errs})
	}

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
	if sl := c.FormValue("section"); sl != "" && sl != section.Slug {
		section, err = h.Sections.GetBySlug(ctx, sl)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return c.JSON(http.StatusNotFound, echo.Map{"error": "section not found"})
			}
			return internalError(c, "load section failed")
		}
	}

	picture, err := storeOptional(pictureFH, h.Cfg.UploadDir)
	if err != nil {
		return internalError(c, "store picture failed")
	}
	content, err := storeOptional(contentFH, h.Cfg.UploadDir)
	if err != nil {
		return internalError(c, "store file failed")
	}

	b.Title = title
	b.Author = author
	b.Description = description
	b.Picture = picture
	b.ContentFile = content
	b.SectionID = section.ID
	if err := h.Books.Update(ctx, &b); err != nil {
		return internalError(c, "update book failed")
	}
	updated, err := h.Books.GetBySlug(ctx, b.Slug)
	if err != nil {
		return internalError(c, "load book failed")
	}
	return c.JSON(http.StatusOK, newBookView(updated, section.Slug))
}

// DeleteBook removes a book and its requests, loan history and feedbacks.
// Blocked while the copy is out on loan.
func (h *LibrarianCatalogHandler) DeleteBook(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	b, err := h.Books.GetBySlug(ctx, c.Param("slug"))
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

	if err := h.Books.DeleteTx(ctx, tx, b.ID); err != nil {
		if errors.Is(err, repository.ErrLoanActive) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "book is out on loan"})
		}
		return internalError(c, "delete book failed")
	}
	if err := tx.Commit(); err != nil {
		return internalError(c, "commit failed")
	}
	committed = true
	return c.NoContent(http.StatusNoContent)
}
