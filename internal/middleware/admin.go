package middleware

import (
	"github.com/gofiber/fiber/v2"

	"neuro/internal/config"
)

// AdminMiddleware restricts a route to operators: the account whose JWT
// carries the admin role (the first account on a fresh install), or uids
// listed in SUPERADMIN_USER_IDS. Routes behind it are maintenance
// surfaces like demo seeding, not member features.
func AdminMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := c.Locals("user_id").(string)
		if !ok || userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}

		admin := false
		if role, ok := c.Locals("user_role").(string); ok && role == "admin" {
			admin = true
		}
		if !admin {
			for _, uid := range cfg.SuperadminUserIDs {
				if uid == userID {
					admin = true
					break
				}
			}
		}

		if !admin {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Admin access required",
			})
		}
		return c.Next()
	}
}
