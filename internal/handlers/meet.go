package handlers

import (
	"github.com/gofiber/fiber/v2"

	"neuro/internal/models"
	"neuro/internal/services"
)

// MeetHandler schedules Google Meet calls for the workflow engine.
type MeetHandler struct {
	meet *services.MeetService
}

// NewMeetHandler creates a new meet handler.
func NewMeetHandler(meet *services.MeetService) *MeetHandler {
	return &MeetHandler{meet: meet}
}

// Schedule books a calendar event with a Meet link
// POST /api/google/meet
//
// The response always carries a usable URL: without Google credentials the
// service hands back a placeholder link and ok stays true, so flows keep
// moving in development.
func (h *MeetHandler) Schedule(c *fiber.Ctx) error {
	var req models.MeetScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	event := h.meet.Schedule(c.Context(), req.Title, req.StartAtISO, req.DurationMins, req.Attendees)
	return c.JSON(event)
}
