package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicride/escort-booking/internal/service"
)

// CatalogHandler serves the public hospital and service catalogs.
// Responses are cacheable; see middleware.NewRedisCache.
type CatalogHandler struct {
	Catalog service.Catalog
	Log     *slog.Logger
}

func NewCatalogHandler(catalog service.Catalog, log *slog.Logger) *CatalogHandler {
	if log == nil {
		log = slog.Default()
	}
	return &CatalogHandler{Catalog: catalog, Log: log}
}

// Hospitals handles GET /hospitals: active hospitals ordered by name.
func (h *CatalogHandler) Hospitals(c echo.Context) error {
	list, err := h.Catalog.ListActiveHospitals(c.Request().Context())
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"hospitals": list})
}

// Services handles GET /services.
func (h *CatalogHandler) Services(c echo.Context) error {
	list, err := h.Catalog.ListServices(c.Request().Context())
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"services": list})
}
