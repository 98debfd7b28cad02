package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"neuro/internal/services"
)

// GitHubHandler serves the public repo showcase on profile pages.
type GitHubHandler struct {
	github *services.GitHubService
}

// NewGitHubHandler creates a new GitHub showcase handler.
func NewGitHubHandler(github *services.GitHubService) *GitHubHandler {
	return &GitHubHandler{github: github}
}

// Repos lists the newest public repos for a profile
// GET /api/github/repos/:slug
func (h *GitHubHandler) Repos(c *fiber.Ctx) error {
	repos, err := h.github.ReposForSlug(c.Params("slug"), c.QueryInt("limit", 10))
	if errors.Is(err, services.ErrUserNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Profile not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load repositories",
		})
	}

	return c.JSON(fiber.Map{"repos": repos})
}
