package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"neuro/internal/models"
	"neuro/internal/services"
)

// MessagesHandler serves direct message threads and the reply suggester.
type MessagesHandler struct {
	messages *services.MessageService
	suggest  *services.SuggestService
}

// NewMessagesHandler creates a new messages handler.
func NewMessagesHandler(messages *services.MessageService, suggest *services.SuggestService) *MessagesHandler {
	return &MessagesHandler{messages: messages, suggest: suggest}
}

// Send stores one direct message from the caller
// POST /api/messages/send
func (h *MessagesHandler) Send(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	var req models.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	convID, messageID, err := h.messages.Send(userID, req.To, req.Text)
	switch {
	case errors.Is(err, services.ErrMissingRecipient),
		errors.Is(err, services.ErrSelfMessage),
		errors.Is(err, services.ErrEmptyMessage):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	case err != nil:
		log.Printf("❌ Message send failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to send message",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"ok":             true,
		"conversationId": convID,
		"messageId":      messageID,
	})
}

// Thread returns the conversation with one other person, oldest first
// GET /api/messages/with/:uid
func (h *MessagesHandler) Thread(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	convID, messages, err := h.messages.Thread(userID, c.Params("uid"), c.QueryInt("limit", 100))
	if errors.Is(err, services.ErrMissingRecipient) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if err != nil {
		log.Printf("❌ Thread load failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load conversation",
		})
	}

	return c.JSON(fiber.Map{
		"conversationId": convID,
		"messages":       messages,
	})
}

// Partners lists the uids the caller has conversations with
// GET /api/messages/partners
func (h *MessagesHandler) Partners(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	partners, err := h.messages.Partners(userID, c.QueryInt("limit", 50))
	if err != nil {
		log.Printf("❌ Partners load failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load partners",
		})
	}

	return c.JSON(fiber.Map{"partners": partners})
}

// SeedDemoRequest is the request body for seeding a demo thread
type SeedDemoRequest struct {
	A string `json:"a"`
	B string `json:"b"`
}

// SeedDemo writes a scripted conversation between two uids. Dev helper.
// POST /api/messages/seed-demo
func (h *MessagesHandler) SeedDemo(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	var req SeedDemoRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	convID, count, err := h.messages.SeedDemo(userID, req.A, req.B)
	if errors.Is(err, services.ErrBadSeedPair) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if err != nil {
		log.Printf("❌ Seed demo failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to seed demo conversation",
		})
	}

	return c.JSON(fiber.Map{
		"ok":             true,
		"conversationId": convID,
		"inserted":       count,
	})
}

// SuggestReply drafts the caller's next reply in a conversation
// POST /api/ai/suggest-reply
func (h *MessagesHandler) SuggestReply(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	var req models.SuggestReplyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	resp, err := h.suggest.Suggest(userID, req.With)
	switch {
	case errors.Is(err, services.ErrMissingRecipient):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "with is required",
		})
	case err != nil:
		log.Printf("❌ Suggest reply failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to draft a reply",
		})
	}

	return c.JSON(resp)
}
