package cli

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/app"
	"github.com/taskflow/taskflow/internal/config"
	"github.com/taskflow/taskflow/internal/worker"
)

// DefaultConnector opens the stores from the process configuration. Logs
// go to stderr so JSON output stays parseable.
func DefaultConnector(ctx context.Context, opts *RootOptions) (*Session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := newLogger(opts.Verbose)
	if err != nil {
		return nil, err
	}

	a, err := app.Build(ctx, cfg, logger, app.Options{})
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	s := &Session{
		Admin:     a.Admin,
		QueueName: cfg.Worker.QueueLow,
	}

	var client *asynq.Client
	if a.Redis != nil {
		client = asynq.NewClient(worker.RedisOpt(cfg.Redis))
		s.Queue = client
	}

	s.Close = func() {
		if client != nil {
			_ = client.Close()
		}
		a.Close()
		_ = logger.Sync()
	}
	return s, nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.Encoding = "console"
	zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger.Named("syncctl"), nil
}
