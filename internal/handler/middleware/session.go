package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/MatsTornblom/Vibzprofile/internal/domain"
	"github.com/MatsTornblom/Vibzprofile/internal/service"
	"github.com/MatsTornblom/Vibzprofile/pkg/cookiestore"
)

const sessionLocalsKey = "session"

// SessionMiddleware resolves the domain-wide session cookie once per
// request. Anonymous requests continue with no session.
func SessionMiddleware(resolver *service.SessionResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if session := resolver.CurrentSession(c.UserContext(), cookiestore.FiberJar(c)); session != nil {
			c.Locals(sessionLocalsKey, session)
		}
		return c.Next()
	}
}

// CurrentSession returns the session stored by SessionMiddleware, or nil.
func CurrentSession(c *fiber.Ctx) *domain.AuthSession {
	session, _ := c.Locals(sessionLocalsKey).(*domain.AuthSession)
	return session
}

// SetSession replaces the request's session after a sign in or sign out.
func SetSession(c *fiber.Ctx, session *domain.AuthSession) {
	c.Locals(sessionLocalsKey, session)
}
