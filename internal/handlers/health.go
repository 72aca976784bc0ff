package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// PingFunc reports whether a dependency is reachable.
type PingFunc func(ctx context.Context) error

// HealthHandler reports the state of the database and, when configured, Redis.
type HealthHandler struct {
	db      PingFunc
	redis   PingFunc
	timeout time.Duration
}

// NewHealthHandler builds the handler. redis may be nil when caching is off.
func NewHealthHandler(db, redis PingFunc) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, timeout: 2 * time.Second}
}

func (h *HealthHandler) Check(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	healthy := true
	services := fiber.Map{
		"database": probe(ctx, h.db, &healthy),
		"redis":    probe(ctx, h.redis, &healthy),
	}

	status, code := "ok", fiber.StatusOK
	if !healthy {
		status, code = "degraded", fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status":   status,
		"services": services,
	})
}

func probe(ctx context.Context, ping PingFunc, healthy *bool) string {
	if ping == nil {
		return "disabled"
	}
	if err := ping(ctx); err != nil {
		*healthy = false
		return "unreachable"
	}
	return "connected"
}
