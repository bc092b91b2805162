package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/library-lending/internal/config"
	"github.com/iliyamo/library-lending/internal/database"
	"github.com/iliyamo/library-lending/internal/handler"
	"github.com/iliyamo/library-lending/internal/middleware"
	"github.com/iliyamo/library-lending/internal/model"
	"github.com/iliyamo/library-lending/internal/queue"
	"github.com/iliyamo/library-lending/internal/repository"
	"github.com/iliyamo/library-lending/internal/router"
	"github.com/iliyamo/library-lending/internal/slug"
	"github.com/iliyamo/library-lending/internal/utils"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	sections := repository.NewSectionRepo(db)
	books := repository.NewBookRepo(db)
	requests := repository.NewRequestRepo(db)
	issued := repository.NewIssuedRepo(db)
	feedbacks := repository.NewFeedbackRepo(db)

	if err := seed(db, cfg, users, sections); err != nil {
		log.Fatalf("seed: %v", err)
	}

	rdb := config.NewRedisClient()
	cacheCfg := config.LoadCacheConfig()
	rateCfg := config.LoadRateLimitConfig()

	go func() {
		if err := queue.StartLoanConsumer(); err != nil {
			log.Printf("loan consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())

	authH := handler.NewAuthHandler(cfg, db, users, tokens)
	catalogH := handler.NewCatalogHandler(sections, books, feedbacks, users)
	borrowH := handler.NewBorrowHandler(cfg, db, books, requests, issued, users)
	feedbackH := handler.NewFeedbackHandler(books, issued, feedbacks)
	libCatH := handler.NewLibrarianCatalogHandler(cfg, db, sections, books)
	libLoanH := handler.NewLibrarianLoanHandler(cfg, db, books, requests, issued, users)

	router.RegisterRoutes(e)
	router.RegisterAuth(e, authH, cfg.JWTSecret, tokens)
	router.RegisterPublic(e, catalogH,
		middleware.NewRedisCache(cacheCfg, rdb),
		middleware.NewTokenBucket(rateCfg, rdb))
	router.RegisterUser(e, borrowH, feedbackH, cfg.JWTSecret, tokens)
	router.RegisterLibrarian(e, libCatH, libLoanH, cfg.JWTSecret, tokens)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}

// seed guarantees the two records the application assumes exist: the
// protected Miscellaneous section and at least one librarian account.
// Both are idempotent, so restarting the server is safe.
func seed(db *sql.DB, cfg config.Config, users *repository.UserRepo, sections *repository.SectionRepo) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := sections.GetBySlug(ctx, model.MiscellaneousSlug)
	if errors.Is(err, repository.ErrNotFound) {
		s := model.Section{
			Title:       "Miscellaneous",
			Description: "Books that have not been shelved into a section yet.",
		}
		if err := sections.Create(ctx, &s); err != nil {
			return err
		}
		log.Printf("seeded section %q", s.Slug)
	} else if err != nil {
		return err
	}

	n, err := users.CountByRole(ctx, model.RoleLibrarian)
	if err != nil {
		return err
	}
	if n == 0 {
		username := os.Getenv("ADMIN_USERNAME")
		password := os.Getenv("ADMIN_PASSWORD")
		if username == "" || password == "" {
			log.Printf("no librarian account exists and ADMIN_USERNAME/ADMIN_PASSWORD are unset; skipping seed")
			return nil
		}
		hash, err := utils.HashPassword(password, cfg.BcryptCost)
		if err != nil {
			return err
		}
		u := model.User{
			Slug:         slug.Make(username),
			Name:         "Library Administrator",
			Username:     username,
			Email:        username + "@library.local",
			PasswordHash: hash,
			Role:         model.RoleLibrarian,
		}
		if u.Slug == "" {
			u.Slug = slug.Unique()
		}
		if err := users.Create(ctx, &u); err != nil {
			return err
		}
		log.Printf("seeded librarian %q", u.Username)
	}
	return nil
}
