package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Pinger is satisfied by *sql.DB and *sqlx.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	db      Pinger
	redis   *redis.Client
	version string
	build   string
	logger  *zap.Logger
}

func NewHealthHandler(db Pinger, redisClient *redis.Client, version, build string, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:      db,
		redis:   redisClient,
		version: version,
		build:   build,
		logger:  logger,
	}
}

// Health returns basic health status
// GET /health
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":  "ok",
		"service": "vibz-profile",
	})
}

// Ready pings the database and Redis
// GET /ready
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	checks := fiber.Map{}
	ready := true

	if err := h.db.PingContext(ctx); err != nil {
		h.logger.Warn("database not ready", zap.Error(err))
		checks["database"] = "unavailable"
		ready = false
	} else {
		checks["database"] = "ok"
	}

	if err := h.redis.Ping(ctx).Err(); err != nil {
		h.logger.Warn("cache not ready", zap.Error(err))
		checks["cache"] = "unavailable"
		ready = false
	} else {
		checks["cache"] = "ok"
	}

	if !ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "not ready",
			"checks": checks,
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "ready",
		"checks": checks,
	})
}

// Version reports the deployed build so open pages can notice a new one
// GET /version
func (h *HealthHandler) Version(c *fiber.Ctx) error {
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.JSON(fiber.Map{
		"version": h.version,
		"build":   h.build,
	})
}

// Client reports how the page is being viewed
// GET /api/v1/client
func (h *HealthHandler) Client(c *fiber.Ctx) error {
	return c.JSON(detectClient(c))
}
