package handler

import (
	"database/sql"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/library-lending/internal/config"
	"github.com/iliyamo/library-lending/internal/model"
	"github.com/iliyamo/library-lending/internal/repository"
	"github.com/iliyamo/library-lending/internal/slug"
	"github.com/iliyamo/library-lending/internal/utils"
	"github.com/iliyamo/library-lending/internal/validate"
)

// AuthHandler bundles dependencies for account and session endpoints.
type AuthHandler struct {
	Cfg    config.Config
	DB     *sql.DB
	Users  *repository.UserRepo
	Tokens *repository.TokenRepo
}

func NewAuthHandler(cfg config.Config, db *sql.DB, u *repository.UserRepo, t *repository.TokenRepo) *AuthHandler {
	return &AuthHandler{Cfg: cfg, DB: db, Users: u, Tokens: t}
}

// ----- DTOs -----

type loginReq struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	Slug     string `json:"slug"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Picture  string `json:"picture,omitempty"`
}
type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

func newUserPart(u model.User) userPart {
	return userPart{
		Slug:     u.Slug,
		Name:     u.Name,
		Username: u.Username,
		Email:    u.Email,
		Role:     u.Role,
		Picture:  u.ProfilePicture,
	}
}

// issuePair creates and stores a fresh access/refresh pair for a user.
func (h *AuthHandler) issuePair(c echo.Context, u model.User) (*authResp, error) {
	accessTTL := time.Duration(h.Cfg.AccessTTLMin) * time.Minute
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := utils.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	refreshExp := time.Now().UTC().Add(time.Duration(h.Cfg.RefreshTTLDays) * 24 * time.Hour)

	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashToken(refresh), refreshExp); err != nil {
		return nil, err
	}
	return &authResp{
		User:    newUserPart(u),
		Access:  tokenPart{Token: access, Expires: time.Now().UTC().Add(accessTTL)},
		Refresh: tokenPart{Token: refresh, Expires: refreshExp}, // raw back to client
	}, nil
}

// Register creates a user account from a multipart form so the profile
// picture can travel with the fields.  New accounts always get the user
// role; librarians are provisioned out of band.
func (h *AuthHandler) Register(c echo.Context) error {
	errs := validate.Errors{}
	name, msg := validate.Name(c.FormValue("name"))
	errs.Add("name", msg)
	username, msg := validate.Username(c.FormValue("username"))
	errs.Add("username", msg)
	email, msg := validate.Email(c.FormValue("email"))
	errs.Add("email", msg)
	password, msg := validate.Password(c.FormValue("password"))
	errs.Add("password", msg)

	var pictureFH *multipart.FileHeader
	if fh, err := c.FormFile("profile_picture"); err == nil {
		if msg := validate.Image(fh, h.Cfg.MaxImageBytes); msg != "" {
			errs.Add("profile_picture", msg)
		} else {
			pictureFH = fh
		}
	}
	if errs.Any() {
		return c.JSON(http.StatusBadRequest, echo.Map{"errors": errs})
	}
	picture, err := storeOptional(pictureFH, h.Cfg.UploadDir)
	if err != nil {
		return internalError(c, "store picture failed")
	}

	hash, err := utils.HashPassword(password, h.Cfg.BcryptCost)
	if err != nil {
		return internalError(c, "hash password failed")
	}
	userSlug := slug.Make(username)
	if userSlug == "" {
		userSlug = slug.Unique()
	}
	u := model.User{
		Slug:           userSlug,
		Name:           name,
		Username:       username,
		Email:          email,
		PasswordHash:   hash,
		ProfilePicture: picture,
		Role:           model.RoleUser,
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Users.Create(ctx, &u); err != nil {
		switch {
		case errors.Is(err, repository.ErrUsernameExists):
			return c.JSON(http.StatusConflict, echo.Map{"error": "username already exists"})
		case errors.Is(err, repository.ErrEmailExists):
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
		}
		return internalError(c, "create user failed")
	}

	resp, err := h.issuePair(c, u)
	if err != nil {
		return internalError(c, "issue tokens failed")
	}
	return c.JSON(http.StatusCreated, resp)
}

func (h *AuthHandler) login(c echo.Context, wantRole string) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if username == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username/password required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		return internalError(c, "query failed")
	}
	if !utils.CheckPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	if wantRole != "" && u.Role != wantRole {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not a " + wantRole})
	}

	resp, err := h.issuePair(c, u)
	if err != nil {
		return internalError(c, "issue tokens failed")
	}
	return c.JSON(http.StatusOK, resp)
}

// Login authenticates any account by username and password.
func (h *AuthHandler) Login(c echo.Context) error { return h.login(c, "") }

// LibrarianLogin is the staff entrance: same credentials check, but the
// account must hold the librarian role.
func (h *AuthHandler) LibrarianLogin(c echo.Context) error { return h.login(c, model.RoleLibrarian) }

// Refresh exchanges a refresh token for a new pair.  The old token is
// consumed atomically so it cannot be replayed.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	userID, err := h.Tokens.ConsumeRefresh(ctx, utils.HashToken(strings.TrimSpace(req.RefreshToken)))
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		return internalError(c, "load user failed")
	}

	resp, err := h.issuePair(c, u)
	if err != nil {
		return internalError(c, "issue tokens failed")
	}
	return c.JSON(http.StatusOK, resp)
}

// Logout blacklists the presented access token for the rest of its
// lifetime and revokes the refresh token from the body when given.  Runs
// behind JWTAuth, so the context carries the token hash and expiry.
func (h *AuthHandler) Logout(c echo.Context) error {
	hash, _ := c.Get("token_hash").(string)
	exp, _ := c.Get("token_exp").(time.Time)
	if hash == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	if exp.IsZero() {
		exp = time.Now().UTC().Add(time.Duration(h.Cfg.AccessTTLMin) * time.Minute)
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Tokens.BlacklistAccess(ctx, hash, exp); err != nil {
		return internalError(c, "logout failed")
	}

	var req refreshReq
	_ = c.Bind(&req)
	if raw := strings.TrimSpace(req.RefreshToken); raw != "" {
		if err := h.Tokens.RevokeRefresh(ctx, utils.HashToken(raw)); err != nil {
			return internalError(c, "logout failed")
		}
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the caller's profile.
func (h *AuthHandler) Me(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Users.GetByID(ctx, currentUserID(c))
	if err != nil {
		return internalError(c, "load user failed")
	}
	return c.JSON(http.StatusOK, echo.Map{"user": newUserPart(u)})
}

// UpdateProfile rewrites the display name and optionally the profile
// picture.  Username, email and slug are fixed at registration.
func (h *AuthHandler) UpdateProfile(c echo.Context) error {
	errs := validate.Errors{}
	name, msg := validate.Name(c.FormValue("name"))
	errs.Add("name", msg)

	var pictureFH *multipart.FileHeader
	if fh, err := c.FormFile("profile_picture"); err == nil {
		if msg := validate.Image(fh, h.Cfg.MaxImageBytes); msg != "" {
			errs.Add("profile_picture", msg)
		} else {
			pictureFH = fh
		}
	}
	if errs.Any() {
		return c.JSON(http.StatusBadRequest, echo.Map{"errors": errs})
	}
	picture, err := storeOptional(pictureFH, h.Cfg.UploadDir)
	if err != nil {
		return internalError(c, "store picture failed")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Users.UpdateProfile(ctx, currentUserID(c), name, picture); err != nil {
		return internalError(c, "update profile failed")
	}
	u, err := h.Users.GetByID(ctx, currentUserID(c))
	if err != nil {
		return internalError(c, "load user failed")
	}
	return c.JSON(http.StatusOK, echo.Map{"user": newUserPart(u)})
}

type deleteAccountReq struct {
	Password string `json:"password"`
}

// DeleteAccount removes the caller's account after a password check.  The
// cascade drops the user's requests, feedbacks and loan history in one
// transaction and refuses while a book is still out.  The presented access
// token is blacklisted so the dead account cannot keep calling.
func (h *AuthHandler) DeleteAccount(c echo.Context) error {
	var req deleteAccountReq
	if err := c.Bind(&req); err != nil || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Users.GetByID(ctx, currentUserID(c))
	if err != nil {
		return internalError(c, "load user failed")
	}
	if !utils.CheckPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
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
	if err := h.Users.DeleteTx(ctx, tx, u.ID); err != nil {
		if errors.Is(err, repository.ErrLoanActive) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "return your books before deleting the account"})
		}
		return internalError(c, "delete account failed")
	}
	if err := tx.Commit(); err != nil {
		return internalError(c, "commit failed")
	}
	committed = true

	if hash, _ := c.Get("token_hash").(string); hash != "" {
		exp, _ := c.Get("token_exp").(time.Time)
		if exp.IsZero() {
			exp = time.Now().UTC().Add(time.Duration(h.Cfg.AccessTTLMin) * time.Minute)
		}
		_ = h.Tokens.BlacklistAccess(ctx, hash, exp)
	}
	return c.NoContent(http.StatusNoContent)
}

type changePasswordReq struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword verifies the current password, stores a new hash and
// revokes every refresh token so stolen sessions die with the old secret.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	var req changePasswordReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	newPass, msg := validate.Password(req.NewPassword)
	if msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"errors": validate.Errors{"new_password": msg}})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Users.GetByID(ctx, currentUserID(c))
	if err != nil {
		return internalError(c, "load user failed")
	}
	if !utils.CheckPassword(u.PasswordHash, req.CurrentPassword) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	hash, err := utils.HashPassword(newPass, h.Cfg.BcryptCost)
	if err != nil {
		return internalError(c, "hash password failed")
	}
	if err := h.Users.UpdatePassword(ctx, u.ID, hash); err != nil {
		return internalError(c, "update password failed")
	}
	_ = h.Tokens.RevokeAllForUser(ctx, u.ID)
	return c.NoContent(http.StatusNoContent)
}
