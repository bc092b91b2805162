// Package router defines how HTTP routes are registered for the API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/library-lending/internal/handler"
	"github.com/iliyamo/library-lending/internal/middleware"
	"github.com/iliyamo/library-lending/internal/model"
	"github.com/iliyamo/library-lending/internal/repository"
)

// RegisterRoutes registers routes that need no authentication or
// dependencies.  Currently just the health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers session endpoints.  Register, the logins and
// refresh live under /v1/auth and need no token; logout and the profile
// endpoints require a valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, tokens *repository.TokenRepo) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/librarian/login", a.LibrarianLogin)
	g.POST("/refresh", a.Refresh)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret, tokens))
	auth.POST("/auth/logout", a.Logout)
	auth.GET("/me", a.Me)
	auth.PUT("/me", a.UpdateProfile)
	auth.PUT("/me/password", a.ChangePassword)
	auth.DELETE("/me", a.DeleteAccount)
}

// RegisterPublic registers the unauthenticated catalog.  These routes sit
// behind the Redis response cache and the rate limiter; cache and limiter
// may be no-ops when their config disables them.
func RegisterPublic(e *echo.Echo, p *handler.CatalogHandler, cache, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1", limiter, cache)
	g.GET("/sections", p.ListSections)
	g.GET("/sections/:slug", p.GetSection)
	g.GET("/books", p.ListBooks)
	g.GET("/books/:slug", p.GetBook)
}

// RegisterUser registers the borrower endpoints.  Everything here requires
// a valid token; both roles may borrow.
func RegisterUser(e *echo.Echo, b *handler.BorrowHandler, f *handler.FeedbackHandler, jwtSecret string, tokens *repository.TokenRepo) {
	g := e.Group("/v1")
	g.Use(middleware.JWTAuth(jwtSecret, tokens))
	g.Use(middleware.RequireRole(model.RoleUser, model.RoleLibrarian))

	g.POST("/requests", b.CreateRequest)
	g.GET("/requests", b.ListMyRequests)
	g.DELETE("/requests/:slug", b.WithdrawRequest)

	g.GET("/my-books", b.MyBooks)
	g.POST("/loans/:slug/return", b.ReturnLoan)
	g.GET("/books/:slug/content", b.BookContent)

	g.POST("/books/:slug/feedback", f.Create)
	g.PUT("/feedbacks/:slug", f.Update)
}

// RegisterLibrarian registers staff endpoints under /v1/librarian, guarded
// by the librarian role.
func RegisterLibrarian(e *echo.Echo, cat *handler.LibrarianCatalogHandler, loans *handler.LibrarianLoanHandler, jwtSecret string, tokens *repository.TokenRepo) {
	g := e.Group("/v1/librarian")
	g.Use(middleware.JWTAuth(jwtSecret, tokens))
	g.Use(middleware.RequireRole(model.RoleLibrarian))

	g.POST("/sections", cat.CreateSection)
	g.PUT("/sections/:slug", cat.UpdateSection)
	g.DELETE("/sections/:slug", cat.DeleteSection)

	g.POST("/books", cat.CreateBook)
	g.PUT("/books/:slug", cat.UpdateBook)
	g.DELETE("/books/:slug", cat.DeleteBook)

	g.GET("/dashboard", loans.Dashboard)
	g.GET("/books/:slug/activity", loans.BookActivity)
	g.POST("/requests/:slug/resolve", loans.Resolve)
	g.POST("/loans/:slug/return", loans.TakeBack)
}
