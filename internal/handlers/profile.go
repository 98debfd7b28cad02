package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"neuro/internal/models"
	"neuro/internal/services"
)

// ProfileHandler serves profile pages, the about/experience sections and
// the follow graph.
type ProfileHandler struct {
	profiles *services.ProfileService
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(profiles *services.ProfileService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// Me returns the caller's own profile, creating it if registration never
// seeded one
// GET /api/profile/me
func (h *ProfileHandler) Me(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	user, err := h.profiles.GetByUID(userID)
	if errors.Is(err, services.ErrUserNotFound) {
		email, _ := c.Locals("user_email").(string)
		user, err = h.profiles.EnsureProfile(userID, email, "")
	}
	if err != nil {
		log.Printf("❌ Failed to load profile for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load profile",
		})
	}

	return c.JSON(fiber.Map{"user": user})
}

// Update applies partial profile changes
// PUT /api/profile
func (h *ProfileHandler) Update(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	var req models.UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	user, err := h.profiles.UpdateProfile(userID, &req)
	if errors.Is(err, services.ErrUserNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Profile not found",
		})
	}
	if err != nil {
		log.Printf("❌ Failed to update profile for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update profile",
		})
	}

	return c.JSON(fiber.Map{"user": user})
}

// BySlug returns a public profile with the viewer's follow state
// GET /api/profile/slug/:slug
func (h *ProfileHandler) BySlug(c *fiber.Ctx) error {
	slug := c.Params("slug")
	user, err := h.profiles.GetBySlug(slug)
	if errors.Is(err, services.ErrUserNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Profile not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load profile",
		})
	}

	viewerUID, _ := c.Locals("user_id").(string)
	return c.JSON(fiber.Map{
		"user":        user,
		"isFollowing": h.profiles.IsFollowing(viewerUID, user.UID),
	})
}

// ByUID returns a public profile by uid
// GET /api/profile/uid/:uid
func (h *ProfileHandler) ByUID(c *fiber.Ctx) error {
	user, err := h.profiles.GetByUID(c.Params("uid"))
	if errors.Is(err, services.ErrUserNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Profile not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load profile",
		})
	}

	viewerUID, _ := c.Locals("user_id").(string)
	return c.JSON(fiber.Map{
		"user":        user,
		"isFollowing": h.profiles.IsFollowing(viewerUID, user.UID),
	})
}

// SetAbout replaces the caller's about section
// PUT /api/profile/about
func (h *ProfileHandler) SetAbout(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	var about models.UserAbout
	if err := c.BodyParser(&about); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	user, err := h.profiles.SetAbout(userID, &about)
	if errors.Is(err, services.ErrUserNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Profile not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update about section",
		})
	}

	return c.JSON(fiber.Map{"user": user})
}

// AddExperience appends an experience entry
// POST /api/profile/experience
func (h *ProfileHandler) AddExperience(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	var item models.ExperienceItem
	if err := c.BodyParser(&item); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	user, err := h.profiles.AddExperience(userID, item)
	switch {
	case errors.Is(err, services.ErrInvalidExperience):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, services.ErrUserNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Profile not found",
		})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to add experience",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user": user})
}

// UpdateExperience rewrites one experience entry
// PUT /api/profile/experience/:id
func (h *ProfileHandler) UpdateExperience(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	var item models.ExperienceItem
	if err := c.BodyParser(&item); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	user, err := h.profiles.UpdateExperience(userID, c.Params("id"), item)
	switch {
	case errors.Is(err, services.ErrInvalidExperience):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, services.ErrExperienceNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Experience entry not found",
		})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update experience",
		})
	}

	return c.JSON(fiber.Map{"user": user})
}

// DeleteExperience removes one experience entry
// DELETE /api/profile/experience/:id
func (h *ProfileHandler) DeleteExperience(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	user, err := h.profiles.DeleteExperience(userID, c.Params("id"))
	if errors.Is(err, services.ErrUserNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Profile not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete experience",
		})
	}

	return c.JSON(fiber.Map{"user": user})
}

// FollowRequest is the request body for follow and unfollow
type FollowRequest struct {
	Slug string `json:"slug"`
}

// Follow makes the caller follow the profile behind a slug
// POST /api/profile/follow
func (h *ProfileHandler) Follow(c *fiber.Ctx) error {
	return h.applyFollow(c, h.profiles.Follow)
}

// Unfollow removes the caller from the profile's followers
// POST /api/profile/unfollow
func (h *ProfileHandler) Unfollow(c *fiber.Ctx) error {
	return h.applyFollow(c, h.profiles.Unfollow)
}

func (h *ProfileHandler) applyFollow(c *fiber.Ctx, op func(viewerUID, targetSlug string) (int, error)) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	var req FollowRequest
	if err := c.BodyParser(&req); err != nil || req.Slug == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "slug is required",
		})
	}

	count, err := op(userID, req.Slug)
	switch {
	case errors.Is(err, services.ErrSelfFollow):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "You cannot follow yourself",
		})
	case errors.Is(err, services.ErrUserNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Profile not found",
		})
	case err != nil:
		log.Printf("❌ Follow operation failed for %s -> %s: %v", userID, req.Slug, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update follow state",
		})
	}

	return c.JSON(fiber.Map{"ok": true, "followersCount": count})
}
