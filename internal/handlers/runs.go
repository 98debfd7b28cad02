package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"neuro/internal/services"
)

// RunsHandler serves run history, cancellation and the workbook export.
type RunsHandler struct {
	runs *services.RunService
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(runs *services.RunService) *RunsHandler {
	return &RunsHandler{runs: runs}
}

// List returns the caller's runs, newest first, without logs
// GET /api/runs?automationId=&limit=
func (h *RunsHandler) List(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	runs, err := h.runs.List(userID, c.Query("automationId"), c.QueryInt("limit", 20))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list runs",
		})
	}

	return c.JSON(fiber.Map{"items": runs})
}

// Get returns one run with its full log
// GET /api/runs/:id
func (h *RunsHandler) Get(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	run, err := h.runs.Get(userID, c.Params("id"))
	if errors.Is(err, services.ErrRunNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Run not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load run",
		})
	}

	return c.JSON(run)
}

// Stop cancels a running run
// POST /api/runs/:id/stop
func (h *RunsHandler) Stop(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	err := h.runs.Stop(userID, c.Params("id"))
	switch {
	case errors.Is(err, services.ErrRunNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Run not found",
		})
	case errors.Is(err, services.ErrRunNotRunning):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Run is not running",
		})
	case err != nil:
		log.Printf("❌ Run stop failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to stop run",
		})
	}

	return c.JSON(fiber.Map{"ok": true})
}

// Report streams the run's XLSX workbook
// GET /api/runs/:id/report.xlsx
func (h *RunsHandler) Report(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	data, filename, err := h.runs.BuildReport(userID, c.Params("id"))
	if errors.Is(err, services.ErrRunNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Run not found",
		})
	}
	if err != nil {
		log.Printf("❌ Report build failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to build report",
		})
	}

	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return c.Send(data)
}
