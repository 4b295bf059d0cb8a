package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/enclave-chat/enclave-server/internal/api"
	"github.com/enclave-chat/enclave-server/internal/auth"
	"github.com/enclave-chat/enclave-server/internal/config"
	"github.com/enclave-chat/enclave-server/internal/gateway"
	"github.com/enclave-chat/enclave-server/internal/httputil"
	"github.com/enclave-chat/enclave-server/internal/invite"
	"github.com/enclave-chat/enclave-server/internal/message"
	"github.com/enclave-chat/enclave-server/internal/metrics"
	"github.com/enclave-chat/enclave-server/internal/sqlite"
	"github.com/enclave-chat/enclave-server/internal/user"
)

func main() {
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

func run() error {
	// A local .env is a development convenience; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.Debug {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().Timestamp().Logger().
			Level(zerolog.DebugLevel)
	}

	log.Info().Int("port", cfg.ServerPort).Str("db", cfg.DatabasePath).Msg("Starting Enclave Server")

	if cfg.UsesDevSecret() {
		log.Warn().Msg("JWT_SECRET is not set; using the built-in development secret. Tokens signed with it are forgeable. Set JWT_SECRET for any real deployment.")
	}
	if cfg.CORSAllowOrigins == "*" {
		log.Warn().Msg("CORS_ALLOW_ORIGINS is set to a wildcard \"*\". Set an explicit origin for production deployments.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()
	log.Info().Msg("Database opened")

	if err := sqlite.Migrate(db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info().Msg("Database migrations complete")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	met := metrics.New(registry)

	userRepo := user.NewSQLRepository(db, log.Logger)
	messageRepo := message.NewSQLRepository(db, log.Logger)
	inviteRepo := invite.NewSQLRepository(db, log.Logger)

	authService := auth.NewService(userRepo, inviteRepo, cfg, log.Logger)
	hub := gateway.NewHub(userRepo, cfg.GatewaySendQueueDepth, met, log.Logger)

	app := fiber.New(fiber.Config{
		AppName: "Enclave",
		// Catches errors handlers did not already map, including Fiber's
		// built-in 404/405.
		ErrorHandler: func(c fiber.Ctx, err error) error {
			status := fiber.StatusInternalServerError
			msg := "internal server error"
			if e, ok := errors.AsType[*fiber.Error](err); ok {
				status = e.Code
				msg = e.Message
			} else {
				log.Error().Err(err).
					Str("method", c.Method()).
					Str("path", c.Path()).
					Msg("Unhandled error")
			}
			return c.Status(status).JSON(httputil.ErrorResponse{Error: msg})
		},
	})

	app.Use(requestid.New())
	app.Use(httputil.RequestLogger(log.Logger))
	app.Use(cors.New(cors.Config{
		AllowOrigins: []string{cfg.CORSAllowOrigins},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
	}))

	api.Register(app, api.Deps{
		Config:     cfg,
		DB:         db,
		Users:      userRepo,
		Messages:   messageRepo,
		Invites:    inviteRepo,
		Auth:       authService,
		Hub:        hub,
		GatewayHub: hub,
		Metrics:    met,
		Log:        log.Logger,
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := hub.Run(gCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("gateway hub: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.ServerPort)
		if err := app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		log.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("HTTP shutdown did not complete cleanly")
		}
		hub.Shutdown()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Shutdown complete")
	return nil
}
