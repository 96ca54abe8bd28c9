package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicride/escort-booking/internal/model"
)

// RequireRole rejects callers whose token role is not one of roles with
// 403.  It must run after JWTAuth.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	allowed := make(map[model.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			caller, ok := CallerFrom(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthorized"})
			}
			if !allowed[caller.Role] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "Forbidden"})
			}
			return next(c)
		}
	}
}
