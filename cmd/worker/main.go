package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/app"
	"github.com/taskflow/taskflow/internal/config"
	"github.com/taskflow/taskflow/internal/middleware"
	"github.com/taskflow/taskflow/internal/pkg/logger"
	"github.com/taskflow/taskflow/internal/worker"
)

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
	log := logger.L().Named("worker")
	defer func() { _ = logger.Sync() }()

	if !cfg.Redis.Enabled {
		log.Fatal("the worker needs Redis for its queue; set REDIS_ENABLED=true")
	}

	log.Info("starting worker service")

	var hub *sentry.Hub
	if enabled, err := middleware.InitSentry(cfg.Sentry); err != nil {
		log.Error("failed to initialize Sentry", zap.Error(err))
	} else if enabled {
		hub = sentry.CurrentHub()
		defer middleware.FlushSentry(5 * time.Second)
	}

	// Initialize dependencies
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	deps, err := app.Build(ctx, cfg, log, app.Options{SentryHub: hub})
	cancel()
	if err != nil {
		log.Fatal("failed to initialize dependencies", zap.Error(err))
	}
	defer deps.Close()

	loadCtx, loadCancel := context.WithTimeout(context.Background(), 30*time.Second)
	deps.LoadFailures(loadCtx)
	loadCancel()

	// Create worker server
	workerServer, err := worker.NewServer(log, cfg, deps.Admin)
	if err != nil {
		log.Fatal("failed to create worker server", zap.Error(err))
	}

	// Start worker in a goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- workerServer.Start()
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("shutting down worker...")
		workerServer.Stop()
	case err := <-errCh:
		if err != nil {
			log.Error("worker server error", zap.Error(err))
		}
	}

	log.Info("worker stopped")
}
