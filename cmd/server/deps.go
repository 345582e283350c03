package main

import (
	"context"
	"fmt"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/app"
	"github.com/taskflow/taskflow/internal/config"
	"github.com/taskflow/taskflow/internal/domain"
	"github.com/taskflow/taskflow/internal/handler"
	"github.com/taskflow/taskflow/internal/worker"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	Logger *zap.Logger
	App    *app.App

	// Asynq client, nil when Redis is disabled
	AsynqClient *asynq.Client

	// Handlers
	HealthHandler *handler.HealthHandler
	SyncHandler   *handler.SyncHandler
}

// initDependencies initializes all dependencies
func initDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger, hub *sentry.Hub) (*Dependencies, error) {
	a, err := app.Build(ctx, cfg, logger, app.Options{SentryHub: hub})
	if err != nil {
		return nil, fmt.Errorf("failed to build application: %w", err)
	}

	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
		App:    a,
	}

	// The handler only queues work when Redis backs the queue. A nil
	// *asynq.Client must not reach the interface.
	var queue worker.Enqueuer
	if a.Redis != nil {
		deps.AsynqClient = asynq.NewClient(worker.RedisOpt(cfg.Redis))
		queue = deps.AsynqClient
	}

	healthDeps := []handler.Dependency{
		{Name: "mongo", Pinger: a.Mongo},
		{Name: "postgres", Pinger: a.Postgres},
	}
	if a.ClickHouse != nil {
		healthDeps = append(healthDeps, handler.Dependency{Name: "clickhouse", Pinger: a.ClickHouse, Optional: true})
	}
	if a.Redis != nil {
		healthDeps = append(healthDeps, handler.Dependency{Name: "redis", Pinger: a.Redis, Optional: true})
	}

	deps.HealthHandler = handler.NewHealthHandler(appVersion, healthDeps...)
	deps.SyncHandler = handler.NewSyncHandler(a.Admin, queue, cfg.Worker.QueueLow, logger)

	return deps, nil
}

// redisClient returns the client backing rate limiting, or nil
func (d *Dependencies) redisClient() redis.Cmdable {
	if d.App.Redis == nil {
		return nil
	}
	return d.App.Redis.Client
}

func startupReconcileOptions(cfg *config.Config) domain.ReconcileOptions {
	return domain.ReconcileOptions{
		Entities: cfg.Sync.Entities,
		Trigger:  "startup",
	}
}

// Close closes all dependencies
func (d *Dependencies) Close() {
	if d.AsynqClient != nil {
		_ = d.AsynqClient.Close()
	}
	if d.App != nil {
		d.App.Close()
	}
}
