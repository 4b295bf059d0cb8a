package api

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/enclave-chat/enclave-server/internal/httputil"
)

// HealthHandler serves the health check endpoint.
type HealthHandler struct {
	DB *sql.DB
}

// Health handles GET /api/health. It pings the embedded database and
// reports component status.
func (h *HealthHandler) Health(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c, 3*time.Second)
	defer cancel()

	dbStatus := "ok"
	overall := "ok"
	status := fiber.StatusOK
	if err := h.DB.PingContext(ctx); err != nil {
		dbStatus = "unavailable"
		overall = "degraded"
		status = fiber.StatusServiceUnavailable
	}

	return httputil.SuccessStatus(c, status, fiber.Map{
		"status":   overall,
		"database": dbStatus,
	})
}
