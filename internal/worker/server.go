package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/config"
)

// retryFailuresCron retries ledger failures every ten minutes
const retryFailuresCron = "*/10 * * * *"

// Server is the worker server
type Server struct {
	logger    *zap.Logger
	config    *config.Config
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	client    *asynq.Client
}

// ScheduledTask is a periodic task registration
type ScheduledTask struct {
	Cron  string
	Task  *asynq.Task
	Queue string
}

// NewServer creates a new worker server
func NewServer(logger *zap.Logger, cfg *config.Config, admin SyncAdmin) (*Server, error) {
	redisOpt := RedisOpt(cfg.Redis)

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				cfg.Worker.QueueCritical: 6,
				cfg.Worker.QueueDefault:  3,
				cfg.Worker.QueueLow:      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task processing failed",
					zap.String("type", task.Type()),
					zap.Error(err),
				)
			}),
			Logger: &asynqLogger{logger: logger},
		},
	)

	syncWorker := NewSyncWorker(logger, admin)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeSyncReconcile, syncWorker.ProcessReconcileTask)
	mux.HandleFunc(TypeSyncRetryFailures, syncWorker.ProcessRetryFailuresTask)

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Logger: &asynqLogger{logger: logger},
	})

	client := asynq.NewClient(redisOpt)

	return &Server{
		logger:    logger,
		config:    cfg,
		server:    server,
		mux:       mux,
		scheduler: scheduler,
		client:    client,
	}, nil
}

// RedisOpt builds the asynq connection options from the Redis config
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// Start starts the worker server
func (s *Server) Start() error {
	if err := s.registerScheduledTasks(); err != nil {
		return fmt.Errorf("failed to register scheduled tasks: %w", err)
	}

	go func() {
		if err := s.scheduler.Run(); err != nil {
			s.logger.Error("scheduler stopped", zap.Error(err))
		}
	}()

	s.logger.Info("starting worker server",
		zap.Int("concurrency", s.config.Worker.Concurrency),
	)

	return s.server.Run(s.mux)
}

// Stop stops the worker server
func (s *Server) Stop() {
	s.server.Shutdown()
	s.scheduler.Shutdown()
	s.client.Close()
}

// Client returns the asynq client for enqueuing tasks
func (s *Server) Client() *asynq.Client {
	return s.client
}

func (s *Server) registerScheduledTasks() error {
	tasks, err := ScheduledTasks(s.config)
	if err != nil {
		return err
	}
	for _, st := range tasks {
		if _, err := s.scheduler.Register(st.Cron, st.Task, asynq.Queue(st.Queue)); err != nil {
			return fmt.Errorf("failed to register %s task: %w", st.Task.Type(), err)
		}
		s.logger.Info("registered scheduled task",
			zap.String("type", st.Task.Type()),
			zap.String("cron", st.Cron),
		)
	}
	return nil
}

// ScheduledTasks returns the periodic tasks for the configuration.
// Reconciliation is scheduled only when sync is enabled and a cron
// expression is set; failure retry runs whenever dual write is enabled.
func ScheduledTasks(cfg *config.Config) ([]ScheduledTask, error) {
	var tasks []ScheduledTask

	if cfg.Sync.Enabled && cfg.Sync.Cron != "" {
		task, err := NewReconcileTask(&ReconcilePayload{
			Entities: cfg.Sync.Entities,
			Trigger:  TriggerSchedule,
		})
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, ScheduledTask{Cron: cfg.Sync.Cron, Task: task, Queue: cfg.Worker.QueueLow})
	}

	if cfg.DualWrite.Enabled {
		task, err := NewRetryFailuresTask(&RetryFailuresPayload{})
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, ScheduledTask{Cron: retryFailuresCron, Task: task, Queue: cfg.Worker.QueueDefault})
	}

	return tasks, nil
}

// asynqLogger adapts zap.Logger to asynq.Logger
type asynqLogger struct {
	logger *zap.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) {
	l.logger.Debug(fmt.Sprint(args...))
}

func (l *asynqLogger) Info(args ...interface{}) {
	l.logger.Info(fmt.Sprint(args...))
}

func (l *asynqLogger) Warn(args ...interface{}) {
	l.logger.Warn(fmt.Sprint(args...))
}

func (l *asynqLogger) Error(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
}

func (l *asynqLogger) Fatal(args ...interface{}) {
	l.logger.Fatal(fmt.Sprint(args...))
}

// Enqueuer enqueues tasks
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EnqueueReconcile enqueues a reconciliation task
func EnqueueReconcile(ctx context.Context, client Enqueuer, queue string, payload *ReconcilePayload) (*asynq.TaskInfo, error) {
	task, err := NewReconcileTask(payload)
	if err != nil {
		return nil, err
	}
	return client.EnqueueContext(ctx, task, asynq.Queue(queue))
}

// EnqueueRetryFailures enqueues a failure retry task
func EnqueueRetryFailures(ctx context.Context, client Enqueuer, queue string, payload *RetryFailuresPayload) (*asynq.TaskInfo, error) {
	task, err := NewRetryFailuresTask(payload)
	if err != nil {
		return nil, err
	}
	return client.EnqueueContext(ctx, task, asynq.Queue(queue))
}
