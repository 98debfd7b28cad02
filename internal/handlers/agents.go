package handlers

import (
	"encoding/json"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"neuro/internal/models"
	"neuro/internal/services"
)

// AgentsHandler exposes the agent-facing endpoints the workflow engine and
// the headless runner call: reply analysis, task dispatch and outreach
// delivery.
type AgentsHandler struct {
	analyze  *services.AnalyzeService
	dispatch *services.DispatchService
	outreach *services.OutreachService
}

// NewAgentsHandler creates a new agents handler.
func NewAgentsHandler(analyze *services.AnalyzeService, dispatch *services.DispatchService, outreach *services.OutreachService) *AgentsHandler {
	return &AgentsHandler{analyze: analyze, dispatch: dispatch, outreach: outreach}
}

// Analyze classifies a reply text into sentiment and intent
// POST /api/agents/adk/analyze
func (h *AgentsHandler) Analyze(c *fiber.Ctx) error {
	var req models.AnalyzeTextRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	result := h.analyze.Analyze(req.Text)
	return c.JSON(models.AnalyzeTextResponse{
		Sentiment: result.Sentiment,
		Intent:    result.Intent,
	})
}

// Dispatch records a task for the agent runtime
// POST /api/agents/a2a/dispatch
func (h *AgentsHandler) Dispatch(c *fiber.Ctx) error {
	var req models.DispatchAgentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Agent == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "agent is required",
		})
	}

	// Anonymous engine calls are accepted, the task just has no owner
	ownerUID, _ := c.Locals("user_id").(string)

	task, err := h.dispatch.Dispatch(req.Agent, ownerUID, req.Payload)
	if err != nil {
		log.Printf("❌ Dispatch failed for agent %q: %v", req.Agent, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to dispatch agent task",
		})
	}

	result, err := json.Marshal(task)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to encode task",
		})
	}
	return c.JSON(models.DispatchAgentResponse{Result: result})
}

// ListTasks returns the caller's queued agent tasks
// GET /api/agents/a2a/tasks
func (h *AgentsHandler) ListTasks(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	tasks, err := h.dispatch.ListTasks(userID, c.QueryInt("limit", 50))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list tasks",
		})
	}
	return c.JSON(fiber.Map{"items": tasks})
}

// SendOutreach delivers one outreach message as the caller
// POST /api/agents/outreach/send
func (h *AgentsHandler) SendOutreach(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	var req models.OutreachSendRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	result, err := h.outreach.Send(c.Context(), userID, req)
	switch {
	case errors.Is(err, services.ErrUnauthorized):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	case errors.Is(err, services.ErrMissingRecipient),
		errors.Is(err, services.ErrSelfMessage),
		errors.Is(err, services.ErrEmptyMessage):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	case err != nil:
		log.Printf("❌ Outreach send failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to send message",
		})
	}

	return c.JSON(result)
}
