// handlers/routes.go
package handlers

import (
	"pact-oracle/config"
	"pact-oracle/middleware"
	"pact-oracle/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func SetupPactRoutes(app *fiber.App, pactService *services.PactService) {
	// 🔓 Read-only mirror queries
	api := app.Group("/api")
	api.Get("/pacts", pactService.GetAllPacts)
	api.Get("/pacts/code/:code", pactService.GetPactByCode)
	api.Get("/pacts/:address", pactService.GetPact)
}

// SetupPlayerRoutes registers the player endpoints. relayLimit must be the
// same handler given to SetupRelayRoutes so both share one budget per caller.
func SetupPlayerRoutes(app *fiber.App, playerService *services.PlayerService, relayLimit fiber.Handler, adminToken string, log zerolog.Logger) {
	api := app.Group("/api")
	api.Get("/players/:address", playerService.GetPlayer)
	api.Get("/players/:address/pacts", playerService.GetPlayerPacts)

	// ✍️ Profile creation goes through the relay, so it shares its limit
	api.Post("/players", relayLimit, playerService.CreatePlayer)

	// 🔐 Admin only
	api.Post("/delete", middleware.AdminTokenMiddleware(adminToken, log), playerService.DeletePlayer)
}

func SetupRelayRoutes(app *fiber.App, relayService *services.RelayService, relayLimit fiber.Handler) {
	app.Post("/api/relay-transaction", relayLimit, relayService.RelayTransaction)
}

// NewRelayLimit builds the one rate limiter shared by every route that
// spends sponsor funds.
func NewRelayLimit(cfg config.RelayConfig, log zerolog.Logger) fiber.Handler {
	return middleware.RelayRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow, log)
}

func SetupOpsRoutes(app *fiber.App) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}
