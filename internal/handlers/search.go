package handlers

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"neuro/internal/services"
)

// SearchHandler serves people search.
type SearchHandler struct {
	search *services.SearchService
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(search *services.SearchService) *SearchHandler {
	return &SearchHandler{search: search}
}

// Users searches profiles by name prefix
// GET /api/users/search?q=
func (h *SearchHandler) Users(c *fiber.Ctx) error {
	query := strings.TrimSpace(c.Query("q"))
	if len(query) < 2 {
		return c.JSON(fiber.Map{"items": []any{}})
	}

	items, err := h.search.SearchUsers(query, c.QueryInt("limit", 8))
	if err != nil {
		log.Printf("❌ Search failed for %q: %v", query, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Search failed",
		})
	}

	return c.JSON(fiber.Map{"items": items})
}
