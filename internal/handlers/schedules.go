package handlers

import (
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"neuro/internal/models"
	"neuro/internal/services"
)

// SchedulesHandler serves the cron schedules that trigger automations.
type SchedulesHandler struct {
	scheduler *services.SchedulerService
}

// NewSchedulesHandler creates a new schedules handler.
func NewSchedulesHandler(scheduler *services.SchedulerService) *SchedulesHandler {
	return &SchedulesHandler{scheduler: scheduler}
}

// Create registers a new schedule
// POST /api/schedules
func (h *SchedulesHandler) Create(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	var req models.CreateScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	schedule, err := h.scheduler.Create(userID, req)
	if err != nil {
		if errors.Is(err, services.ErrAutomationNotFound) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "automationId is required",
			})
		}
		if strings.HasPrefix(err.Error(), "enabled schedule limit") {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		// Cron and timezone validation failures carry their own message
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(schedule)
}

// List returns the caller's schedules
// GET /api/schedules?automationId=
func (h *SchedulesHandler) List(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	schedules, err := h.scheduler.List(userID, c.Query("automationId"))
	if err != nil {
		log.Printf("❌ Schedule list failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list schedules",
		})
	}

	return c.JSON(fiber.Map{"items": schedules})
}

// Get returns one schedule
// GET /api/schedules/:id
func (h *SchedulesHandler) Get(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	schedule, err := h.scheduler.Get(userID, c.Params("id"))
	if errors.Is(err, services.ErrScheduleNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Schedule not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load schedule",
		})
	}

	return c.JSON(schedule)
}

// Update edits a schedule's cadence, timezone or enabled state
// PUT /api/schedules/:id
func (h *SchedulesHandler) Update(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	var req models.UpdateScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	schedule, err := h.scheduler.Update(userID, c.Params("id"), req)
	if errors.Is(err, services.ErrScheduleNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Schedule not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(schedule)
}

// Delete removes a schedule
// DELETE /api/schedules/:id
func (h *SchedulesHandler) Delete(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	err := h.scheduler.Delete(userID, c.Params("id"))
	if errors.Is(err, services.ErrScheduleNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Schedule not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete schedule",
		})
	}

	return c.JSON(fiber.Map{"ok": true})
}

// TriggerNow runs the schedule's automation immediately
// POST /api/schedules/:id/trigger
func (h *SchedulesHandler) TriggerNow(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	err := h.scheduler.TriggerNow(userID, c.Params("id"))
	if errors.Is(err, services.ErrScheduleNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Schedule not found",
		})
	}
	if err != nil {
		log.Printf("❌ Schedule trigger failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to trigger schedule",
		})
	}

	return c.JSON(fiber.Map{"ok": true})
}
