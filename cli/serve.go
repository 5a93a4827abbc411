package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"pact-oracle/handlers"
	"pact-oracle/logger"
	"pact-oracle/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
)

func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, indexer and oracle duties",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(parent context.Context, opts *RootOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, log := opts.cfg, opts.log
	c, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer c.close()

	scheduler, err := services.NewScheduler(c.indexer, c.oracle, cfg.Indexer, cfg.Oracle, logger.Component(log, "scheduler"))
	if err != nil {
		return err
	}

	httpLog := logger.Component(log, "http")
	app := fiber.New(fiber.Config{
		AppName:               "pact-oracle",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods: "GET,POST,OPTIONS,HEAD",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID",
		MaxAge:       86400, // 24 hours
	}))

	handlers.SetupOpsRoutes(app)
	handlers.SetupPactRoutes(app, services.NewPactService(c.store, httpLog))
	relayLimit := handlers.NewRelayLimit(cfg.Relay, httpLog)
	handlers.SetupPlayerRoutes(app, services.NewPlayerService(c.store, c.relay, httpLog), relayLimit, cfg.AdminToken, httpLog)
	handlers.SetupRelayRoutes(app, c.relay, relayLimit)

	if err := scheduler.Start(ctx); err != nil {
		return err
	}

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- app.Listen(fmt.Sprintf(":%d", cfg.Port))
	}()

	log.Info().
		Int("port", cfg.Port).
		Strs("origins", cfg.AllowedOrigins).
		Strs("duties", scheduler.Duties()).
		Msg("✅ Server running")

	select {
	case <-ctx.Done():
	case err = <-listenErr:
		log.Error().Err(err).Msg("server error")
	}

	log.Info().Msg("Shutting down server...")
	if serr := scheduler.Shutdown(); serr != nil {
		log.Warn().Err(serr).Msg("scheduler shutdown")
	}
	if serr := app.Shutdown(); serr != nil {
		log.Warn().Err(serr).Msg("http shutdown")
	}
	return err
}
