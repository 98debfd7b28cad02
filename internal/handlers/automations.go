package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"neuro/internal/models"
	"neuro/internal/services"
)

// AutomationsHandler serves saved automations and their execution.
type AutomationsHandler struct {
	automations *services.AutomationService
	runs        *services.RunService
}

// NewAutomationsHandler creates a new automations handler.
func NewAutomationsHandler(automations *services.AutomationService, runs *services.RunService) *AutomationsHandler {
	return &AutomationsHandler{automations: automations, runs: runs}
}

// Create saves a new automation
// POST /api/automations
func (h *AutomationsHandler) Create(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	var req models.CreateAutomationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	automation, err := h.automations.Create(userID, req)
	if errors.Is(err, services.ErrEmptyAutomationName) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if err != nil {
		log.Printf("❌ Automation create failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create automation",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(automation)
}

// List returns the caller's automations, most recently edited first
// GET /api/automations
func (h *AutomationsHandler) List(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	automations, err := h.automations.List(userID, c.QueryInt("limit", 50))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list automations",
		})
	}

	return c.JSON(fiber.Map{"items": automations})
}

// Get returns one automation
// GET /api/automations/:id
func (h *AutomationsHandler) Get(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	automation, err := h.automations.Get(userID, c.Params("id"))
	if errors.Is(err, services.ErrAutomationNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Automation not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load automation",
		})
	}

	return c.JSON(automation)
}

// Update applies partial edits to an automation
// PUT /api/automations/:id
func (h *AutomationsHandler) Update(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	var req models.UpdateAutomationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	automation, err := h.automations.Update(userID, c.Params("id"), req)
	switch {
	case errors.Is(err, services.ErrAutomationNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Automation not found",
		})
	case errors.Is(err, services.ErrEmptyAutomationName):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	case err != nil:
		log.Printf("❌ Automation update failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update automation",
		})
	}

	return c.JSON(automation)
}

// Delete removes an automation
// DELETE /api/automations/:id
func (h *AutomationsHandler) Delete(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	err := h.automations.Delete(userID, c.Params("id"))
	if errors.Is(err, services.ErrAutomationNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Automation not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete automation",
		})
	}

	return c.JSON(fiber.Map{"ok": true})
}

// Run starts a server-side run of the automation
// POST /api/automations/:id/run
func (h *AutomationsHandler) Run(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	run, err := h.runs.Start(userID, c.Params("id"), "manual")
	if errors.Is(err, services.ErrAutomationNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Automation not found",
		})
	}
	if err != nil {
		log.Printf("❌ Run start failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to start run",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(run)
}

// Stop cancels every running run of the automation
// POST /api/automations/:id/stop
func (h *AutomationsHandler) Stop(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	stopped, err := h.runs.StopByAutomation(userID, c.Params("id"))
	if err != nil {
		log.Printf("❌ Automation stop failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to stop automation",
		})
	}

	return c.JSON(fiber.Map{"ok": true, "stopped": stopped})
}
