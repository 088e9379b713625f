package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	auth "github.com/trialbridge/go-auth"
	"github.com/trialbridge/go-auth/config"
	"github.com/trialbridge/go-auth/notify"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := auth.OpenDB(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := auth.PingDB(ctx, db, cfg.Database.PingRetries, cfg.Database.PingTimeout); err != nil {
		return err
	}

	if cfg.Database.AutoMigrate {
		if err := auth.Migrate(ctx, db, auth.WithMigrationLogger(logger)); err != nil {
			return err
		}
	}

	srv, err := newServer(cfg, db, logger)
	if err != nil {
		return err
	}

	srv.janitor.Start(ctx)
	defer srv.janitor.Stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening on %s", cfg.Server.Address)
		errCh <- srv.app.Listen(cfg.Server.Address)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.app.ShutdownWithContext(shutdownCtx)
}

type server struct {
	app      *fiber.App
	auther   *auth.Auther
	janitor  *auth.Janitor
	registry *prometheus.Registry
}

func newServer(cfg *config.Config, db *bun.DB, logger auth.Logger) (*server, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	deliverer, err := newDeliverer(cfg, logger)
	if err != nil {
		return nil, err
	}

	repo := auth.NewRepositoryManager(db)

	auther := auth.NewAuthenticator(repo, cfg).
		WithLogger(logger).
		WithCodeDeliverer(deliverer).
		WithMetrics(auth.NewMetrics(registry)).
		WithActivitySink(auth.ActivitySinkFunc(func(_ context.Context, event auth.ActivityEvent) error {
			logger.Info("activity %s user=%s", event.EventType, event.UserID)
			return nil
		}))

	if cfg.Auth.ExposeResetCode {
		logger.Warn("reset codes are returned in API responses, never enable this in production")
	}

	app := fiber.New(fiber.Config{
		AppName:      "authd",
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ErrorHandler: auth.ErrorHandler(logger),
	})

	auth.RegisterAuthRoutes(app.Group("/api/auth"), auther,
		auth.WithControllerLogger(logger),
		auth.WithControllerDebug(cfg.Server.Debug),
	)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		if err := db.PingContext(c.UserContext()); err != nil {
			logger.Error("health check failed: %v", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	janitor := auth.NewJanitor(repo, cfg.Auth.JanitorInterval).WithLogger(logger)

	return &server{
		app:      app,
		auther:   auther,
		janitor:  janitor,
		registry: registry,
	}, nil
}

// newDeliverer sends codes by email when SMTP is configured and logs a
// masked code otherwise.
func newDeliverer(cfg *config.Config, logger auth.Logger) (auth.CodeDeliverer, error) {
	if !cfg.Mail.Enabled() {
		logger.Warn("SMTP is not configured, reset codes are only logged")
		return notify.LogDeliverer{Logger: logger}, nil
	}

	mailer, err := notify.NewMailer(cfg.Mail, cfg.Auth.ResetCodeTTL)
	if err != nil {
		return nil, err
	}
	return mailer, nil
}
