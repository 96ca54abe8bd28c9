package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/clinicride/escort-booking/internal/utils"
)

// TokenCookie is the cookie browsers send the access token in.
const TokenCookie = "token"

// JWTAuth validates the access token and stores the caller's id and role
// in the context under CtxUserID and CtxRole.  The token is taken from
// the Authorization header ("Bearer <jwt>") or, failing that, from the
// token cookie.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := bearerToken(c)
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthorized"})
			}
			claims, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				if errors.Is(err, jwt.ErrTokenExpired) {
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Token expired"})
				}
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid token"})
			}
			c.Set(CtxUserID, claims.UserID)
			c.Set(CtxRole, claims.Role)
			return next(c)
		}
	}
}

func bearerToken(c echo.Context) string {
	if auth := c.Request().Header.Get(echo.HeaderAuthorization); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if ck, err := c.Cookie(TokenCookie); err == nil {
		return ck.Value
	}
	return ""
}
