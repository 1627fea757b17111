package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/verification-service/internal/api/http/handlers"
	"github.com/spec-kit/verification-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health      *handlers.HealthHandler
	Events      *handlers.EventsHandler
	ServiceAuth *auth.ServiceAuth
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	events := app.Group("/events", cfg.ServiceAuth.Handle)
	events.Post("/verification/start", cfg.Events.StartVerification)
	events.Post("/verification/decision", cfg.Events.ModeratorDecision)
}
