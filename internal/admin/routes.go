// Package admin serves the optional operational HTTP surface.
package admin

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// Broker reports the event bus connection state.
type Broker interface {
	Connected() bool
}

// AuthState reports whether the configured token pair can still be renewed.
type AuthState interface {
	Expired() bool
}

// Deps holds the components /health inspects. Nil Broker and Redis are
// reported as "disabled".
type Deps struct {
	Broker Broker
	Redis  redis.Cmdable
	Auth   AuthState
}

// RegisterRoutes mounts /metrics and /health on app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Get("/health", func(c *fiber.Ctx) error {
		checks := map[string]string{
			"auth":  "ok",
			"nats":  "disabled",
			"redis": "disabled",
		}
		status := "ok"
		code := fiber.StatusOK
		degrade := func(name, reason string) {
			checks[name] = reason
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}

		if deps.Auth != nil && deps.Auth.Expired() {
			degrade("auth", "expired")
		}

		if deps.Broker != nil {
			if deps.Broker.Connected() {
				checks["nats"] = "ok"
			} else {
				degrade("nats", "disconnected")
			}
		}

		if deps.Redis != nil {
			healthCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := deps.Redis.Ping(healthCtx).Err(); err != nil {
				degrade("redis", err.Error())
			} else {
				checks["redis"] = "ok"
			}
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	})
}
