package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	applog "stockledger/internal/log"
)

// RequireOperator guards mutating/compliance routes with a bearer token
// checked against a bcrypt hash from config. An empty hash leaves the
// routes open for local development.
func RequireOperator(tokenHash string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if tokenHash == "" {
			return c.Next()
		}
		auth := c.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token == "" {
			applog.Security(c, "access.denied.operator", nil)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "operator token required"})
		}
		if err := bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)); err != nil {
			applog.Security(c, "access.denied.operator", nil)
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "invalid operator token"})
		}
		return c.Next()
	}
}
