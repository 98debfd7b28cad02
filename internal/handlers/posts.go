package handlers

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"neuro/internal/models"
	"neuro/internal/services"
)

// PostsHandler serves the public feed.
type PostsHandler struct {
	posts *services.PostService
}

// NewPostsHandler creates a new posts handler.
func NewPostsHandler(posts *services.PostService) *PostsHandler {
	return &PostsHandler{posts: posts}
}

// Create publishes a post as the caller
// POST /api/posts
func (h *PostsHandler) Create(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"ok": false, "error": "unauthorized",
		})
	}

	var req models.CreatePostRequest
	if err := c.BodyParser(&req); err != nil {
		// The web client submits plain form fields
		req.Text = c.FormValue("text")
	}

	post, err := h.posts.Create(userID, req.Text)
	if errors.Is(err, services.ErrEmptyPost) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"ok": false, "error": err.Error(),
		})
	}
	if err != nil {
		log.Printf("❌ Post create failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"ok": false, "error": "Failed to create post",
		})
	}

	return c.JSON(fiber.Map{"ok": true, "post": post})
}

// List returns the feed, newest first
// GET /api/posts
func (h *PostsHandler) List(c *fiber.Ctx) error {
	var before time.Time
	if v := c.Query("before"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			before = t
		}
	}

	posts, err := h.posts.Feed(c.QueryInt("limit", 50), before)
	if err != nil {
		log.Printf("❌ Feed load failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"ok": false, "error": "Failed to load posts",
		})
	}

	return c.JSON(fiber.Map{"ok": true, "posts": posts})
}

// ByAuthor returns one author's posts, newest first
// GET /api/posts/by/:uid
func (h *PostsHandler) ByAuthor(c *fiber.Ctx) error {
	posts, err := h.posts.ByAuthor(c.Params("uid"), c.QueryInt("limit", 50))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"ok": false, "error": "Failed to load posts",
		})
	}
	return c.JSON(fiber.Map{"ok": true, "posts": posts})
}

// LikeRequest is the request body for like and unlike
type LikeRequest struct {
	PostID string `json:"postId"`
}

// Like adds the caller to a post's likes
// POST /api/posts/like
func (h *PostsHandler) Like(c *fiber.Ctx) error {
	return h.applyLike(c, h.posts.Like)
}

// Unlike removes the caller from a post's likes
// POST /api/posts/unlike
func (h *PostsHandler) Unlike(c *fiber.Ctx) error {
	return h.applyLike(c, h.posts.Unlike)
}

func (h *PostsHandler) applyLike(c *fiber.Ctx, op func(postID, uid string) (int, error)) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"ok": false, "error": "unauthorized",
		})
	}

	var req LikeRequest
	if err := c.BodyParser(&req); err != nil || req.PostID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"ok": false, "error": "missing postId",
		})
	}

	likes, err := op(req.PostID, userID)
	if errors.Is(err, services.ErrPostNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"ok": false, "error": "Post not found",
		})
	}
	if err != nil {
		log.Printf("❌ Like operation failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"ok": false, "error": "Failed to update likes",
		})
	}

	return c.JSON(fiber.Map{
		"ok":      true,
		"postId":  req.PostID,
		"likedBy": userID,
		"likes":   likes,
	})
}
