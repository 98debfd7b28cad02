package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"neuro/internal/services"
)

// NetworkHandler serves the caller's follower network: the raw follower
// list the engine selects audiences from, occupation groupings and
// free-text audience matching.
type NetworkHandler struct {
	network *services.NetworkService
}

// NewNetworkHandler creates a new network handler.
func NewNetworkHandler(network *services.NetworkService) *NetworkHandler {
	return &NetworkHandler{network: network}
}

// Followers lists the caller's followers with profile details
// GET /api/network/followers
func (h *NetworkHandler) Followers(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	items, err := h.network.Network(userID)
	if err != nil {
		log.Printf("❌ Failed to load followers for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load followers",
		})
	}

	return c.JSON(fiber.Map{"items": items})
}

// Groups buckets the caller's network by occupation
// GET /api/network/groups
func (h *NetworkHandler) Groups(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	groups, err := h.network.Groups(userID)
	if err != nil {
		log.Printf("❌ Failed to group network for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to group network",
		})
	}

	return c.JSON(fiber.Map{"groups": groups})
}

// MatchRequest is the request body for audience matching
type MatchRequest struct {
	Query string `json:"query"`
	Extra string `json:"extra"`
}

// Match picks the network bucket best fitting a free-text ask
// POST /api/network/match
func (h *NetworkHandler) Match(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	var req MatchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "query is required",
		})
	}

	result, err := h.network.Match(userID, req.Query, req.Extra)
	if err != nil {
		log.Printf("❌ Match failed for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to match audience",
		})
	}

	return c.JSON(result)
}
