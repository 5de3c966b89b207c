package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/MatsTornblom/Vibzprofile/internal/domain"
	"github.com/MatsTornblom/Vibzprofile/internal/service"
)

const claimsLocalsKey = "claims"

// BearerAuth validates the access token of the Authorization header against
// the auth backend and stores its claims for downstream handlers.
func BearerAuth(backend service.AuthBackend) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing authorization header",
			})
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid authorization header format",
			})
		}

		claims, err := backend.Verify(c.UserContext(), parts[1])
		switch {
		case err == nil:
		case errors.Is(err, service.ErrTokenExpired):
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "token expired",
			})
		case errors.Is(err, service.ErrTokenRevoked):
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "token has been revoked",
			})
		default:
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid token",
			})
		}

		c.Locals(claimsLocalsKey, claims)
		return c.Next()
	}
}

// Claims returns the claims stored by BearerAuth, or nil.
func Claims(c *fiber.Ctx) *domain.Claims {
	claims, _ := c.Locals(claimsLocalsKey).(*domain.Claims)
	return claims
}
