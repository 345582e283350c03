package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/domain"
	apperrors "github.com/taskflow/taskflow/internal/pkg/errors"
)

const (
	// TypeSyncReconcile is the task type for a reconciliation pass
	TypeSyncReconcile = "sync:reconcile"
	// TypeSyncRetryFailures is the task type for retrying ledger failures
	TypeSyncRetryFailures = "sync:retry_failures"
)

// TriggerSchedule marks reconciliation runs started by the scheduler
const TriggerSchedule = "schedule"

// ReconcilePayload is the payload for reconciliation tasks
type ReconcilePayload struct {
	Force    bool     `json:"force"`
	Entities []string `json:"entities,omitempty"`
	Trigger  string   `json:"trigger,omitempty"`
}

// NewReconcileTask creates a reconciliation task
func NewReconcileTask(payload *ReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reconcile payload: %w", err)
	}
	return asynq.NewTask(TypeSyncReconcile, data, asynq.MaxRetry(1), asynq.Timeout(time.Hour)), nil
}

// RetryFailuresPayload is the payload for failure retry tasks
type RetryFailuresPayload struct {
	Collection string           `json:"collection,omitempty"`
	Operation  domain.Operation `json:"operation,omitempty"`
}

// NewRetryFailuresTask creates a failure retry task
func NewRetryFailuresTask(payload *RetryFailuresPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal retry failures payload: %w", err)
	}
	return asynq.NewTask(TypeSyncRetryFailures, data, asynq.MaxRetry(3), asynq.Timeout(30*time.Minute)), nil
}

// SyncAdmin is the part of the sync admin service the worker drives
type SyncAdmin interface {
	LoadFailures(ctx context.Context) (int, error)
	Reconcile(ctx context.Context, opts domain.ReconcileOptions) (domain.ReconcileReport, error)
	RetryFailures(ctx context.Context, filter domain.FailureFilter) (domain.RetryResult, error)
}

// SyncWorker handles reconciliation and failure retry tasks
type SyncWorker struct {
	logger *zap.Logger
	admin  SyncAdmin
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(logger *zap.Logger, admin SyncAdmin) *SyncWorker {
	return &SyncWorker{
		logger: logger,
		admin:  admin,
	}
}

// ProcessReconcileTask processes a reconciliation task
func (w *SyncWorker) ProcessReconcileTask(ctx context.Context, t *asynq.Task) error {
	var payload ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal reconcile payload: %w", err)
	}
	if payload.Trigger == "" {
		payload.Trigger = TriggerSchedule
	}

	w.logger.Info("processing reconciliation",
		zap.Bool("force", payload.Force),
		zap.Strings("entities", payload.Entities),
		zap.String("trigger", payload.Trigger),
	)

	report, err := w.admin.Reconcile(ctx, domain.ReconcileOptions{
		Force:    payload.Force,
		Entities: payload.Entities,
		Trigger:  payload.Trigger,
	})
	if apperrors.HasCode(err, apperrors.CodeSyncDisabled) {
		w.logger.Info("reconciliation disabled, skipping")
		return nil
	}
	if err != nil {
		// Entity failures are reported; the next scheduled pass retries them.
		w.logger.Error("reconciliation finished with failures",
			zap.Int("entities", len(report.Entities)),
			zap.Error(err),
		)
		return fmt.Errorf("reconciliation failed: %w: %w", err, asynq.SkipRetry)
	}

	if report.Skipped != "" {
		w.logger.Info("reconciliation skipped", zap.String("reason", report.Skipped))
		return nil
	}

	var inserted, repaired, rowErrors int
	for _, e := range report.Entities {
		inserted += e.Inserted
		repaired += e.Repaired
		rowErrors += e.RowErrors
	}
	w.logger.Info("reconciliation completed",
		zap.Int("entities", len(report.Entities)),
		zap.Int("inserted", inserted),
		zap.Int("repaired", repaired),
		zap.Int("row_errors", rowErrors),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	)
	return nil
}

// ProcessRetryFailuresTask processes a failure retry task. Failures are
// reloaded from the persistent ledger first so records written by other
// processes are retried too.
func (w *SyncWorker) ProcessRetryFailuresTask(ctx context.Context, t *asynq.Task) error {
	var payload RetryFailuresPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal retry failures payload: %w", err)
	}

	if _, err := w.admin.LoadFailures(ctx); err != nil {
		return err
	}

	result, err := w.admin.RetryFailures(ctx, domain.FailureFilter{
		Collection: payload.Collection,
		Operation:  payload.Operation,
	})
	if err != nil {
		return fmt.Errorf("failed to retry sync failures: %w", err)
	}

	w.logger.Info("sync failure retry completed",
		zap.String("collection", payload.Collection),
		zap.Int("attempted", result.Attempted),
		zap.Int("recovered", result.Recovered),
		zap.Int("remaining", len(result.Remaining)),
	)
	return nil
}
