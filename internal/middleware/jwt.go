package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/library-lending/internal/utils"
)

// TokenBlacklist answers whether an access token hash was revoked by a
// logout.  Satisfied by repository.TokenRepo.
type TokenBlacklist interface {
	IsAccessBlacklisted(ctx context.Context, hash string) (bool, error)
}

// loginHint points an unauthenticated caller at the login endpoint matching
// the area they tried to reach.
func loginHint(path string) string {
	if strings.HasPrefix(path, "/v1/librarian") {
		return "/v1/auth/librarian/login"
	}
	return "/v1/auth/login"
}

// JWTAuth validates a Bearer access token, refuses tokens blacklisted by a
// logout, and injects user_id, role and the token's hash and expiry into
// the request context.  The blacklist check hits the database on every
// request; that is the price of making logout take effect immediately
// instead of at token expiry.
func JWTAuth(secret string, tokens TokenBlacklist) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"error": "missing bearer token",
					"login": loginHint(c.Request().URL.Path),
				})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			claims, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"error": "invalid token",
					"login": loginHint(c.Request().URL.Path),
				})
			}

			hash := utils.HashToken(raw)
			revoked, err := tokens.IsAccessBlacklisted(c.Request().Context(), hash)
			if err != nil {
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not verify token"})
			}
			if revoked {
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"error": "token revoked",
					"login": loginHint(c.Request().URL.Path),
				})
			}

			c.Set("user_id", claims.UserID)
			c.Set("role", claims.Role)
			c.Set("token_hash", hash)
			if claims.ExpiresAt != nil {
				c.Set("token_exp", claims.ExpiresAt.Time)
			}
			return next(c)
		}
	}
}
