package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/clinicride/escort-booking/internal/model"
	"github.com/clinicride/escort-booking/internal/service"
)

// Context keys set by JWTAuth.
const (
	CtxUserID = "user_id"
	CtxRole   = "role"
)

// CallerFrom returns the identity JWTAuth stored on the request.
func CallerFrom(c echo.Context) (service.Caller, bool) {
	uid, _ := c.Get(CtxUserID).(string)
	role, _ := c.Get(CtxRole).(model.Role)
	if uid == "" || role == "" {
		return service.Caller{}, false
	}
	return service.Caller{UserID: uid, Role: role}, true
}

// userID is the rate limit identity: the caller's id or "guest".
func userID(c echo.Context) string {
	if caller, ok := CallerFrom(c); ok {
		return caller.UserID
	}
	return "guest"
}
