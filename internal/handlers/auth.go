package handlers

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"neuro/internal/services"
	"neuro/pkg/auth"
)

// AuthHandler handles local JWT authentication endpoints.
type AuthHandler struct {
	accounts *services.AccountService
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(accounts *services.AccountService) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

// RegisterRequest is the request body for registration
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

// LoginRequest is the request body for login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshTokenRequest is the request body for token refresh
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// AuthResponse is the response for successful authentication
type AuthResponse struct {
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token"`
	User         *services.Account `json:"user"`
	ExpiresIn    int               `json:"expires_in"` // seconds
}

// Register creates a new account
// POST /api/auth/register
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	// Police the password here so its message reaches the client verbatim
	if err := auth.ValidatePassword(req.Password); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	account, pair, err := h.accounts.Register(req.Email, req.Password, req.FullName)
	switch {
	case errors.Is(err, services.ErrInvalidEmail):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Valid email address is required",
		})
	case errors.Is(err, services.ErrAccountExists):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "An account with this email already exists",
		})
	case err != nil:
		log.Printf("❌ Registration failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create account",
		})
	}

	h.setRefreshCookie(c, pair.RefreshToken)

	return c.Status(fiber.StatusCreated).JSON(AuthResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         account,
		ExpiresIn:    15 * 60,
	})
}

// Login authenticates an account
// POST /api/auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	account, pair, err := h.accounts.Login(req.Email, req.Password)
	if errors.Is(err, services.ErrInvalidCredentials) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid email or password",
		})
	}
	if err != nil {
		log.Printf("❌ Login failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to log in",
		})
	}

	h.setRefreshCookie(c, pair.RefreshToken)

	return c.JSON(AuthResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         account,
		ExpiresIn:    15 * 60,
	})
}

// RefreshToken exchanges a refresh token for a new access token
// POST /api/auth/refresh
func (h *AuthHandler) RefreshToken(c *fiber.Ctx) error {
	// Cookie first, body as fallback for non-browser clients
	refreshToken := c.Cookies("refresh_token")
	if refreshToken == "" {
		var req RefreshTokenRequest
		if err := c.BodyParser(&req); err == nil {
			refreshToken = req.RefreshToken
		}
	}
	if refreshToken == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Refresh token is required",
		})
	}

	account, accessToken, err := h.accounts.Refresh(refreshToken)
	if errors.Is(err, services.ErrRefreshInvalid) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired refresh token",
		})
	}
	if err != nil {
		log.Printf("❌ Token refresh failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to refresh token",
		})
	}

	return c.JSON(fiber.Map{
		"access_token": accessToken,
		"user":         account,
		"expires_in":   15 * 60,
	})
}

// Logout revokes the account's refresh tokens and clears the cookie
// POST /api/auth/logout
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if userID, ok := c.Locals("user_id").(string); ok && userID != "" {
		if err := h.accounts.Logout(userID); err != nil {
			log.Printf("⚠️ Logout revocation failed for %s: %v", userID, err)
		}
	}
	c.ClearCookie("refresh_token")
	return c.JSON(fiber.Map{
		"message": "Logged out successfully",
	})
}

// Me returns the authenticated account
// GET /api/auth/me
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	account, err := h.accounts.GetByUID(userID)
	if errors.Is(err, services.ErrAccountNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Account not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load account",
		})
	}

	return c.JSON(account)
}

func (h *AuthHandler) setRefreshCookie(c *fiber.Ctx, refreshToken string) {
	c.Cookie(&fiber.Cookie{
		Name:     "refresh_token",
		Value:    refreshToken,
		Expires:  time.Now().Add(7 * 24 * time.Hour),
		HTTPOnly: true,
		Secure:   c.Protocol() == "https",
		SameSite: "Strict",
		Path:     "/api/auth",
	})
}

