package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicride/escort-booking/internal/middleware"
	"github.com/clinicride/escort-booking/internal/service"
)

// AccountHandler serves the caller's own account.
type AccountHandler struct {
	Svc *service.AccountService
	Log *slog.Logger
}

func NewAccountHandler(svc *service.AccountService, log *slog.Logger) *AccountHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AccountHandler{Svc: svc, Log: log}
}

// Me handles GET /me.
func (h *AccountHandler) Me(c echo.Context) error {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	acct, err := h.Svc.Me(c.Request().Context(), caller)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, acct)
}
