package http

import (
	"net/http"
	"time"

	"astock-crawler/internal/crawler/dto"
	"astock-crawler/internal/crawler/service"

	"github.com/labstack/echo/v4"
)

// HealthHandler exposes the dependency health probe.
type HealthHandler struct {
	refreshService service.StockRefreshService
	startedAt      time.Time
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(refreshService service.StockRefreshService) *HealthHandler {
	return &HealthHandler{refreshService: refreshService, startedAt: time.Now()}
}

// RegisterRoutes registers the health route on the root Echo instance.
func (h *HealthHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.GetHealth)
}

// GetHealth probes the database and redis. Degraded dependencies turn the
// status to "degraded" with a 503 so load balancers can react.
func (h *HealthHandler) GetHealth(c echo.Context) error {
	checks := h.refreshService.HealthCheck(c.Request().Context())

	status := "ok"
	code := http.StatusOK
	for name, state := range checks {
		if (name == "database" || name == "redis") && state != "ok" {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	return c.JSON(code, dto.HealthResponse{
		Status:  status,
		Checks:  checks,
		Uptime:  time.Since(h.startedAt).Truncate(time.Second).String(),
		Checked: time.Now(),
	})
}
