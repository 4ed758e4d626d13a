package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/SatsFox/internal/pkg/security"
)

// LocalLinkingKey is the fiber.Locals key holding the wallet linking key of an
// authenticated LNURL-auth session.
const LocalLinkingKey = "LINKING_KEY"

// RequireSessionToken ensures a valid LNURL-auth session token and returns JSON
// 401 otherwise. An empty secret disables the protected routes entirely.
func RequireSessionToken(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if strings.TrimSpace(secret) == "" {
			return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{"error": "not_configured", "message": "Session tokens are disabled"})
		}
		token := extractAPIKeyFromHeader(c)
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing session token"})
		}
		claims, err := security.VerifySessionToken(token, secret)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": err.Error()})
		}
		c.Locals(LocalLinkingKey, claims.LinkingKey())
		return c.Next()
	}
}

// LinkingKeyFromCtx returns the key set by RequireSessionToken.
func LinkingKeyFromCtx(c *fiber.Ctx) string {
	key, _ := c.Locals(LocalLinkingKey).(string)
	return key
}
