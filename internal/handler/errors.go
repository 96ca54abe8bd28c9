package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicride/escort-booking/internal/service"
)

// writeError maps a domain error onto an HTTP status and body.
// Anything that is not a known domain error is a 500; the cause is
// logged and never echoed to the client.
func writeError(c echo.Context, log *slog.Logger, err error) error {
	var (
		ve  *service.ValidationError
		ae  *service.AuthorizationError
		nfe *service.NotFoundError
		ce  *service.ConflictError
		te  *service.InvalidTransitionError
	)
	switch {
	case errors.As(err, &ve):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Validation failed", "details": ve.Fields})
	case errors.As(err, &ae):
		return c.JSON(http.StatusForbidden, echo.Map{"error": ae.Message})
	case errors.As(err, &nfe):
		return c.JSON(http.StatusNotFound, echo.Map{"error": nfe.Message})
	case errors.As(err, &ce):
		return c.JSON(http.StatusConflict, echo.Map{"error": ce.Message})
	case errors.As(err, &te):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": te.Error()})
	}
	log.Error("request_failed",
		"method", c.Request().Method,
		"path", c.Path(),
		"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
		"err", err,
	)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
}

// bindError is the response for a body that is not valid JSON.
func bindError(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, echo.Map{
		"error":   "Validation failed",
		"details": map[string]string{"body": "Invalid JSON"},
	})
}
