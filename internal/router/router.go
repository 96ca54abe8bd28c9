// Package router registers HTTP routes on an echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/clinicride/escort-booking/internal/handler"
	"github.com/clinicride/escort-booking/internal/middleware"
	"github.com/clinicride/escort-booking/internal/model"
)

// RegisterRoutes registers unauthenticated routes.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterCatalog registers the public catalog reads behind the
// response cache.
func RegisterCatalog(e *echo.Echo, h *handler.CatalogHandler, cache echo.MiddlewareFunc) {
	e.GET("/hospitals", h.Hospitals, cache)
	e.GET("/services", h.Services, cache)
}

// RegisterAccount registers GET /me for any authenticated caller.
func RegisterAccount(e *echo.Echo, h *handler.AccountHandler, jwtSecret string) {
	e.GET("/me", h.Me, middleware.JWTAuth(jwtSecret))
}

// RegisterBooking registers the booking lifecycle.  Every route needs a
// token; writes that create load on guardians are rate limited.
// Ownership and profile checks happen in the service, the role guard
// only turns away roles that can never succeed.
func RegisterBooking(e *echo.Echo, h *handler.BookingHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group("/booking", middleware.JWTAuth(jwtSecret))

	g.POST("", h.Create, middleware.RequireRole(model.RolePatient), limit)
	g.GET("/pending", h.Pending, middleware.RequireRole(model.RoleGuardian))
	g.POST("/respond", h.Respond, middleware.RequireRole(model.RoleGuardian), limit)
	g.GET("/my", h.Mine, middleware.RequireRole(model.RolePatient, model.RoleGuardian))
	g.PATCH("/:id/status", h.UpdateStatus, middleware.RequireRole(model.RolePatient, model.RoleGuardian))
	g.GET("/:id", h.Get)
}

// RegisterPresence mounts the websocket relay.
func RegisterPresence(e *echo.Echo, path string, ws echo.HandlerFunc) {
	e.GET(path, ws)
}
