package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/MatsTornblom/Vibzprofile/internal/metrics"
)

// MetricsMiddleware records request counts and latencies by route pattern.
func MetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		done := metrics.RequestStarted()
		defer done()
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		// Route().Path keeps the label set bounded for parameterized routes
		metrics.ObserveRequest(c.Method(), c.Route().Path, status, time.Since(start))
		return err
	}
}
