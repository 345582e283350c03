package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/config"
	"github.com/taskflow/taskflow/internal/domain"
	"github.com/taskflow/taskflow/internal/dualwrite"
	"github.com/taskflow/taskflow/internal/pkg/id"
	"github.com/taskflow/taskflow/internal/pkg/metrics"
)

// ReconcileLockKey guards reconciliation across processes
const ReconcileLockKey = "taskflow:sync:reconcile"

// Skip reasons reported for a run that did not execute
const (
	SkipDisabled = "disabled"
	SkipLocked   = "locked"
)

// Locker acquires a cross-process lock. Acquire returns ok=false when the
// lock is held elsewhere.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// SyncEventRecorder stores analytic sync events
type SyncEventRecorder interface {
	InsertBatch(ctx context.Context, events []domain.SyncEvent) error
}

// ReconciliationService backfills the secondary store from the primary
// store. Without force an entity is skipped when its table already holds
// at least as many rows as there are live documents; with force every live
// document is checked and drifted rows are overwritten.
type ReconciliationService struct {
	primary     dualwrite.PrimaryStore
	secondary   dualwrite.SecondaryStore
	registry    *dualwrite.Registry
	transformer *dualwrite.Transformer
	locker      Locker
	events      SyncEventRecorder
	logger      *zap.Logger

	enabled  bool
	lockTTL  time.Duration
	entities []string
}

// NewReconciliationService creates a reconciliation service. locker and
// events are optional.
func NewReconciliationService(
	primary dualwrite.PrimaryStore,
	secondary dualwrite.SecondaryStore,
	registry *dualwrite.Registry,
	cfg config.SyncConfig,
	locker Locker,
	events SyncEventRecorder,
	logger *zap.Logger,
) *ReconciliationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ReconciliationService{
		primary:     primary,
		secondary:   secondary,
		registry:    registry,
		transformer: dualwrite.NewTransformer(registry),
		locker:      locker,
		events:      events,
		logger:      logger.Named("reconcile"),
		enabled:     cfg.Enabled,
		lockTTL:     ttl,
		entities:    cfg.Entities,
	}
}

// Enabled reports whether reconciliation runs at all
func (s *ReconciliationService) Enabled() bool {
	return s.enabled
}

// SyncAll reconciles every requested entity and reports whether all passes
// succeeded. A disabled service or a lock held by another process is a
// successful skip.
func (s *ReconciliationService) SyncAll(ctx context.Context, opts domain.ReconcileOptions) (domain.ReconcileReport, bool) {
	report := domain.ReconcileReport{
		StartedAt: time.Now().UTC(),
		Force:     opts.Force,
		Trigger:   opts.Trigger,
	}

	if !s.enabled {
		s.logger.Info("secondary store sync is disabled, skipping")
		return s.skip(report, SkipDisabled), true
	}

	if s.locker != nil {
		release, ok, err := s.locker.Acquire(ctx, ReconcileLockKey, s.lockTTL)
		if err != nil {
			s.logger.Error("failed to acquire reconcile lock", zap.Error(err))
			report.FinishedAt = time.Now().UTC()
			return report, false
		}
		if !ok {
			s.logger.Info("reconciliation already running elsewhere, skipping")
			return s.skip(report, SkipLocked), true
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("failed to release reconcile lock", zap.Error(err))
			}
		}()
	}

	names := opts.Entities
	if len(names) == 0 {
		names = s.entities
	}
	if len(names) == 0 {
		names = s.registry.Names()
	}

	s.logger.Info("starting reconciliation",
		zap.Strings("entities", names),
		zap.Bool("force", opts.Force),
		zap.String("trigger", opts.Trigger),
	)

	report.Success = true
	for _, name := range names {
		er := s.syncEntity(ctx, name, opts.Force)
		if er.Status == domain.EntitySyncFailed {
			report.Success = false
		}
		report.Entities = append(report.Entities, er)
		metrics.RecordReconcilePass(er.Collection, string(er.Status))
	}
	report.FinishedAt = time.Now().UTC()

	s.recordEvents(ctx, report)

	succeeded := 0
	for _, er := range report.Entities {
		if er.Status != domain.EntitySyncFailed {
			succeeded++
		}
	}
	s.logger.Info("reconciliation completed",
		zap.Int("succeeded", succeeded),
		zap.Int("total", len(report.Entities)),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, report.Success
}

func (s *ReconciliationService) skip(report domain.ReconcileReport, reason string) domain.ReconcileReport {
	report.Success = true
	report.Skipped = reason
	report.FinishedAt = time.Now().UTC()
	return report
}

// syncEntity runs one entity pass. Only a failure that stops the pass
// marks it failed; row errors are counted and skipped.
func (s *ReconciliationService) syncEntity(ctx context.Context, name string, force bool) domain.EntityReport {
	start := time.Now()
	er := domain.EntityReport{Collection: name}
	fail := func(err error) domain.EntityReport {
		er.Status = domain.EntitySyncFailed
		er.Error = err.Error()
		er.Duration = time.Since(start)
		s.logger.Error("reconciliation pass failed", zap.String("collection", name), zap.Error(err))
		return er
	}

	m, ok := s.registry.Lookup(name)
	if !ok {
		return fail(fmt.Errorf("no entity mapping registered for %q", name))
	}
	er.Collection = m.Name
	er.Table = m.Table.Name
	log := s.logger.With(zap.String("collection", m.Name), zap.String("table", m.Table.Name))

	exists, err := s.secondary.TableExists(ctx, m.Table.Name)
	if err != nil {
		return fail(fmt.Errorf("check table %s: %w", m.Table.Name, err))
	}
	if !exists {
		log.Warn("secondary table does not exist, skipping")
		er.Status = domain.EntitySyncSkippedNoTable
		er.Duration = time.Since(start)
		return er
	}

	filter := m.ScanFilter()
	if er.PrimaryCount, err = s.primary.Count(ctx, m.Name, filter); err != nil {
		return fail(fmt.Errorf("count %s: %w", m.Name, err))
	}
	if er.SecondaryCount, err = s.secondary.Count(ctx, m.Table.Name); err != nil {
		return fail(fmt.Errorf("count %s: %w", m.Table.Name, err))
	}

	if !force && er.SecondaryCount >= er.PrimaryCount {
		log.Info("secondary table already caught up, skipping",
			zap.Int64("primary_count", er.PrimaryCount),
			zap.Int64("secondary_count", er.SecondaryCount),
		)
		er.Status = domain.EntitySyncSkippedInSync
		er.Duration = time.Since(start)
		return er
	}

	log.Info("backfilling secondary table",
		zap.Int64("primary_count", er.PrimaryCount),
		zap.Int64("secondary_count", er.SecondaryCount),
		zap.Bool("force", force),
	)

	err = s.primary.Scan(ctx, m.Name, filter, func(doc domain.Document) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		er.Scanned++
		result, err := s.syncRow(ctx, m, doc, force)
		if err != nil {
			er.RowErrors++
			metrics.RecordReconcileRow(m.Name, metrics.RowError)
			log.Error("failed to reconcile row",
				zap.Any("shared_id", doc[domain.PrimaryIDField]),
				zap.Error(err),
			)
			return nil
		}
		switch result {
		case metrics.RowInserted:
			er.Inserted++
		case metrics.RowRepaired:
			er.Repaired++
		}
		metrics.RecordReconcileRow(m.Name, result)
		return nil
	})
	if err != nil {
		return fail(fmt.Errorf("scan %s: %w", m.Name, err))
	}

	er.Status = domain.EntitySyncCompleted
	if er.RowErrors > 0 {
		er.Status = domain.EntitySyncCompletedErrors
	}
	er.Duration = time.Since(start)
	log.Info("reconciliation pass finished",
		zap.Int("scanned", er.Scanned),
		zap.Int("inserted", er.Inserted),
		zap.Int("repaired", er.Repaired),
		zap.Int("row_errors", er.RowErrors),
	)
	return er
}

// syncRow inserts a missing row, or in force mode overwrites a drifted one.
// It returns the metrics row result.
func (s *ReconciliationService) syncRow(ctx context.Context, m dualwrite.EntityMapping, doc domain.Document, force bool) (string, error) {
	rec, err := s.transformer.ToSecondaryFromScratch(m.Name, doc)
	if err != nil {
		return "", err
	}
	sharedID := rec.SharedID()

	if !force {
		exists, err := s.secondary.Exists(ctx, m.Table.Name, sharedID)
		if err != nil {
			return "", err
		}
		if exists {
			return metrics.RowUnchanged, nil
		}
		return metrics.RowInserted, s.secondary.Insert(ctx, rec)
	}

	row, err := s.secondary.Get(ctx, m.Table.Name, sharedID)
	if errors.Is(err, dualwrite.ErrNotFound) {
		return metrics.RowInserted, s.secondary.Insert(ctx, rec)
	}
	if err != nil {
		return "", err
	}
	if len(Drift(rec.Values, row)) == 0 {
		return metrics.RowUnchanged, nil
	}
	return metrics.RowRepaired, s.secondary.Upsert(ctx, rec)
}

func (s *ReconciliationService) recordEvents(ctx context.Context, report domain.ReconcileReport) {
	if s.events == nil || len(report.Entities) == 0 {
		return
	}

	events := make([]domain.SyncEvent, 0, len(report.Entities))
	for _, er := range report.Entities {
		events = append(events, domain.SyncEvent{
			ID:         id.NewEventID(),
			Kind:       domain.SyncEventReconcile,
			Collection: er.Collection,
			Operation:  string(domain.OperationReconcile),
			Status:     string(er.Status),
			Message:    er.Error,
			Inserted:   uint32(er.Inserted),
			Repaired:   uint32(er.Repaired),
			RowErrors:  uint32(er.RowErrors),
			DurationMs: uint64(er.Duration.Milliseconds()),
			Timestamp:  report.FinishedAt,
		})
	}
	if err := s.events.InsertBatch(context.WithoutCancel(ctx), events); err != nil {
		s.logger.Warn("failed to record reconcile events", zap.Error(err))
	}
}

// Drift returns the columns of want whose values differ from got. Sync
// bookkeeping columns are ignored except that a FAILED row always drifts.
func Drift(want domain.Row, got domain.Row) []string {
	var cols []string
	if status, _ := got[domain.ColumnSyncStatus].(string); status == string(domain.SyncStatusFailed) {
		cols = append(cols, domain.ColumnSyncStatus)
	}
	for col, w := range want {
		switch col {
		case domain.ColumnSyncStatus, domain.ColumnSyncError, domain.ColumnLastSyncAt:
			continue
		}
		if !sameValue(w, got[col]) {
			cols = append(cols, col)
		}
	}
	sort.Strings(cols)
	return cols
}

func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		// the relational store keeps microseconds
		return ok && ta.Truncate(time.Microsecond).Equal(tb.Truncate(time.Microsecond))
	}

	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}

	if ja, ok := jsonValue(a); ok {
		jb, ok := jsonValue(b)
		return ok && reflect.DeepEqual(ja, jb)
	}

	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// jsonValue decodes JSON column values so encoded and decoded forms compare
// equal
func jsonValue(v any) (any, bool) {
	var raw []byte
	switch j := v.(type) {
	case json.RawMessage:
		raw = j
	case []byte:
		raw = j
	case map[string]any, []any:
		return j, true
	default:
		return nil, false
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	return out, true
}
