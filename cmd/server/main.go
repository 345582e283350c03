package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/config"
	"github.com/taskflow/taskflow/internal/middleware"
	"github.com/taskflow/taskflow/internal/pkg/logger"
)

const appVersion = "0.1.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.L()
	defer func() { _ = logger.Sync() }()

	// Initialize Sentry when a DSN is configured
	if cfg.Sentry.Release == "" {
		cfg.Sentry.Release = "taskflow@" + appVersion
	}
	if cfg.Sentry.Environment == "" {
		cfg.Sentry.Environment = cfg.Server.Env
	}
	sentryEnabled, err := middleware.InitSentry(cfg.Sentry)
	if err != nil {
		log.Error("failed to initialize Sentry", zap.Error(err))
	}
	var hub *sentry.Hub
	if sentryEnabled {
		hub = sentry.CurrentHub()
		log.Info("Sentry initialized",
			zap.String("environment", cfg.Sentry.Environment),
			zap.String("release", cfg.Sentry.Release),
		)
		defer middleware.FlushSentry(5 * time.Second)
	}

	// Initialize dependencies
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	deps, err := initDependencies(ctx, cfg, log, hub)
	cancel()
	if err != nil {
		log.Fatal("failed to initialize dependencies", zap.Error(err))
	}
	defer deps.Close()

	runStartupSync(deps)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:               "TaskFlow Sync Admin",
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          5 * time.Minute,
		IdleTimeout:           120 * time.Second,
		DisableStartupMessage: cfg.IsProduction(),
		ErrorHandler:          errorHandler(log),
	})

	// Apply global middleware
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(middleware.DefaultLoggerConfig(log)))
	app.Use(middleware.Recover(log, hub))
	if hub != nil {
		app.Use(middleware.Sentry(hub))
	}
	app.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	// Register routes
	registerRoutes(app, deps)

	// Start server
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Info("starting server", zap.String("addr", addr), zap.String("version", appVersion))
		if err := app.Listen(addr); err != nil {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	}

	log.Info("server stopped")
}

// runStartupSync restores persisted failures and runs one reconciliation
// pass when configured. Errors are logged; the server starts regardless.
func runStartupSync(deps *Dependencies) {
	ctx, cancel := context.WithTimeout(context.Background(), deps.Config.Sync.LockTTL+time.Minute)
	defer cancel()

	deps.App.LoadFailures(ctx)

	if !deps.Config.Sync.Enabled || !deps.Config.Sync.OnStartup {
		return
	}

	report, err := deps.App.Admin.Reconcile(ctx, startupReconcileOptions(deps.Config))
	if err != nil {
		deps.Logger.Error("startup reconciliation failed", zap.Error(err))
		return
	}
	if report.Skipped != "" {
		deps.Logger.Info("startup reconciliation skipped", zap.String("reason", report.Skipped))
		return
	}
	deps.Logger.Info("startup reconciliation completed",
		zap.Int("entities", len(report.Entities)),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	)
}

// errorHandler creates a custom error handler
func errorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal Server Error"

		var e *fiber.Error
		if errors.As(err, &e) {
			code = e.Code
			message = e.Message
		}

		if code >= fiber.StatusInternalServerError {
			log.Error("request error",
				zap.Int("status", code),
				zap.Error(err),
				zap.String("path", c.Path()),
				zap.String("method", c.Method()),
				zap.String("request_id", middleware.GetRequestID(c)),
			)
			middleware.CaptureError(c, err)
		}

		return c.Status(code).JSON(fiber.Map{
			"error":   message,
			"message": message,
		})
	}
}
