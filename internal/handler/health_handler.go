package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const readinessTimeout = 2 * time.Second

type readinessCheck struct {
	name string
	ping func(ctx context.Context) error
}

// RegisterHealthRoutes mounts /livez and /readyz. rdb may be nil when the
// deployment uses the in-process rate limiter; readiness then skips Redis.
func RegisterHealthRoutes(app fiber.Router, sqlDB *sql.DB, rdb *redis.Client) {
	checks := []readinessCheck{{name: "postgres", ping: sqlDB.PingContext}}
	if rdb != nil {
		checks = append(checks, readinessCheck{
			name: "redis",
			ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}

	app.Get("/livez", livez)
	app.Get("/readyz", readyz(checks))
}

func livez(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
}

func readyz(checks []readinessCheck) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
		defer cancel()

		results := make(fiber.Map, len(checks))
		statusCode, status := fiber.StatusOK, "ready"
		for _, check := range checks {
			if err := check.ping(ctx); err != nil {
				results[check.name] = "down"
				statusCode, status = fiber.StatusServiceUnavailable, "not_ready"
				continue
			}
			results[check.name] = "ok"
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": results,
		})
	}
}
