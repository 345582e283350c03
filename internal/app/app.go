// Package app wires the stores, the dual write coordinator and the sync
// services shared by the server, the worker and the operator CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/config"
	"github.com/taskflow/taskflow/internal/dualwrite"
	"github.com/taskflow/taskflow/internal/pkg/alert"
	"github.com/taskflow/taskflow/internal/pkg/circuitbreaker"
	"github.com/taskflow/taskflow/internal/pkg/database"
	"github.com/taskflow/taskflow/internal/pkg/metrics"
	chrepo "github.com/taskflow/taskflow/internal/repository/clickhouse"
	mongorepo "github.com/taskflow/taskflow/internal/repository/mongo"
	pgrepo "github.com/taskflow/taskflow/internal/repository/postgres"
	"github.com/taskflow/taskflow/internal/service"
)

// Options tunes what Build wires beyond the stores
type Options struct {
	// SentryHub enables the alerting sink when Ledger.Alert is set. Nil
	// disables it.
	SentryHub *sentry.Hub
}

// App holds every long-lived dependency of a process
type App struct {
	Config *config.Config
	Logger *zap.Logger

	// Database connections. ClickHouse and Redis are nil when disabled.
	Mongo      *database.MongoDB
	Postgres   *database.PostgresDB
	ClickHouse *database.ClickHouseDB
	Redis      *database.RedisDB

	// Stores
	Primary   *mongorepo.DocumentStore
	Secondary dualwrite.SecondaryStore
	Failures  *pgrepo.FailureRepository
	Events    *chrepo.SyncEventRepository

	Registry    *dualwrite.Registry
	Breakers    *circuitbreaker.Registry
	Ledger      *dualwrite.Ledger
	Coordinator *dualwrite.Coordinator
	Reconciler  *service.ReconciliationService
	Admin       *service.SyncAdminService

	cancelLedger context.CancelFunc
}

// Build connects to the stores and assembles the sync services. The caller
// owns the returned App and must Close it.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := a.initDatabases(ctx); err != nil {
		a.Close()
		return nil, err
	}

	registry, err := dualwrite.NewDefaultRegistry()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to build entity registry: %w", err)
	}
	a.Registry = registry

	a.Breakers = circuitbreaker.NewRegistry()
	a.Primary = mongorepo.NewDocumentStore(a.Mongo, logger)
	a.Secondary = a.secondaryStore()
	if cfg.Ledger.Persist {
		a.Failures = pgrepo.NewFailureRepository(a.Postgres)
	}
	if a.ClickHouse != nil {
		a.Events = chrepo.NewSyncEventRepository(a.ClickHouse)
	}

	a.Ledger = dualwrite.NewLedger(logger, cfg.Ledger.BufferSize, a.sinks(opts)...)
	ledgerCtx, cancel := context.WithCancel(context.Background())
	a.cancelLedger = cancel
	go a.Ledger.Run(ledgerCtx)

	a.Coordinator = dualwrite.New(a.Primary, a.Secondary, registry, a.Ledger, logger, dualwrite.OptionsFromConfig(cfg.DualWrite))

	var locker service.Locker
	if a.Redis != nil {
		locker = service.NewRedisLocker(a.Redis)
	}
	var events service.SyncEventRecorder
	if a.Events != nil {
		events = a.Events
	}
	a.Reconciler = service.NewReconciliationService(a.Primary, a.Secondary, registry, cfg.Sync, locker, events, logger)

	var failures service.FailureStore
	if a.Failures != nil {
		failures = a.Failures
	}
	a.Admin = service.NewSyncAdminService(a.Coordinator, a.Reconciler, a.Primary, a.Secondary, failures, logger).
		WithBreakers(a.Breakers)

	logger.Info("sync services initialized",
		zap.Bool("dual_write_enabled", cfg.DualWrite.Enabled),
		zap.Bool("sync_enabled", cfg.Sync.Enabled),
		zap.Bool("ledger_persist", a.Failures != nil),
		zap.Bool("sync_events", a.Events != nil),
		zap.Bool("reconcile_lock", a.Redis != nil),
	)

	return a, nil
}

func (a *App) initDatabases(ctx context.Context) error {
	cfg := a.Config

	mongoDB, err := database.NewMongo(ctx, cfg.Mongo)
	if err != nil {
		return fmt.Errorf("failed to initialize MongoDB: %w", err)
	}
	a.Mongo = mongoDB

	pgDB, err := database.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	a.Postgres = pgDB

	if cfg.ClickHouse.Enabled {
		chDB, err := database.NewClickHouse(ctx, cfg.ClickHouse)
		if err != nil {
			// analytics are optional; failures stay in the ledger and postgres
			a.Logger.Warn("failed to initialize ClickHouse, sync events disabled", zap.Error(err))
		} else {
			a.ClickHouse = chDB
		}
	}

	if cfg.Redis.Enabled {
		redisDB, err := database.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to initialize Redis: %w", err)
		}
		a.Redis = redisDB
	}

	return nil
}

func (a *App) secondaryStore() dualwrite.SecondaryStore {
	store := pgrepo.NewSyncStore(a.Postgres, a.Registry)
	cfg := a.Config.DualWrite
	if !cfg.BreakerEnabled {
		return store
	}

	cbCfg := circuitbreaker.DefaultConfig("postgres")
	if cfg.BreakerMaxFailures > 0 {
		cbCfg.MaxFailures = cfg.BreakerMaxFailures
	}
	if cfg.BreakerTimeout > 0 {
		cbCfg.Timeout = cfg.BreakerTimeout
	}
	cbCfg.OnStateChange = func(name string, from, to circuitbreaker.State) {
		metrics.SetBreakerOpen(name, to == circuitbreaker.StateOpen)
		a.Logger.Warn("circuit breaker state changed",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	return dualwrite.WithBreaker(store, a.Breakers.Get(cbCfg.Name, cbCfg))
}

func (a *App) sinks(opts Options) []dualwrite.FailureSink {
	var sinks []dualwrite.FailureSink
	if a.Failures != nil {
		sinks = append(sinks, a.Failures)
	}
	if a.Events != nil {
		sinks = append(sinks, a.Events)
	}
	if a.Config.Ledger.Alert && opts.SentryHub != nil {
		sinks = append(sinks, alert.NewSentryAlerter(opts.SentryHub))
	}
	return sinks
}

// LoadFailures restores persisted failures into the in-process ledger. A
// failure only logs so a broken ledger table never blocks startup.
func (a *App) LoadFailures(ctx context.Context) {
	n, err := a.Admin.LoadFailures(ctx)
	if err != nil {
		a.Logger.Warn("failed to restore sync failures", zap.Error(err))
		return
	}
	if n > 0 {
		a.Logger.Info("restored sync failures", zap.Int("count", n))
	}
}

// Close releases every connection. It is safe on a partially built App.
func (a *App) Close() {
	if a.Ledger != nil {
		a.Ledger.Close()
	}
	if a.cancelLedger != nil {
		a.cancelLedger()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	if a.Mongo != nil {
		errs = append(errs, a.Mongo.Close(ctx))
	}
	if a.Postgres != nil {
		a.Postgres.Close()
	}
	if a.ClickHouse != nil {
		errs = append(errs, a.ClickHouse.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if err := errors.Join(errs...); err != nil && a.Logger != nil {
		a.Logger.Warn("error closing connections", zap.Error(err))
	}
}
