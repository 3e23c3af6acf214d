// handlers_health.go - Health check handlers
package api

import (
	"net/http"

	"github.com/cad-viewer/backend/internal/events"
	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version string
	catalog bool
	hub     *events.Hub
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, catalog bool, hub *events.Hub) HealthHandler {
	return &HealthHandlerImpl{
		version: version,
		catalog: catalog,
		hub:     hub,
	}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	resp := map[string]any{
		"status":  "ok",
		"version": h.version,
		"catalog": h.catalog,
	}
	if h.hub != nil {
		resp["subscribers"] = h.hub.Count()
	}
	return c.JSON(http.StatusOK, resp)
}
