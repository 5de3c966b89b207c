package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/timeout"
)

// RequestContext gives each request a user context that is cancelled
// after limit or when the handler chain returns. Services read it through
// c.UserContext(). A chain failing with context.DeadlineExceeded answers
// 408.
func RequestContext(limit time.Duration) fiber.Handler {
	next := func(c *fiber.Ctx) error { return c.Next() }
	if limit <= 0 {
		return next
	}
	return timeout.NewWithContext(next, limit)
}
