package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"neuro/internal/database"
	"neuro/internal/services"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	connManager *services.ConnectionManager
	runs        *services.RunService
	mongoDB     *database.MongoDB
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(connManager *services.ConnectionManager, runs *services.RunService, mongoDB *database.MongoDB) *HealthHandler {
	return &HealthHandler{connManager: connManager, runs: runs, mongoDB: mongoDB}
}

// Handle responds with server health status
// GET /health
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	status := "healthy"
	if h.mongoDB != nil {
		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()
		if err := h.mongoDB.Ping(ctx); err != nil {
			status = "degraded"
		}
	}

	return c.JSON(fiber.Map{
		"status":      status,
		"subscribers": h.connManager.Count(),
		"active_runs": h.runs.ActiveCount(),
		"timestamp":   time.Now().Format(time.RFC3339),
	})
}
