package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/domain"
	"github.com/taskflow/taskflow/internal/dualwrite"
	"github.com/taskflow/taskflow/internal/pkg/circuitbreaker"
	apperrors "github.com/taskflow/taskflow/internal/pkg/errors"
	"github.com/taskflow/taskflow/internal/validator"
)

const recentFailures = 10

// FailureStore is the persistent copy of the failure ledger
type FailureStore interface {
	List(ctx context.Context, filter domain.FailureFilter) ([]domain.FailureRecord, error)
	Delete(ctx context.Context, ids ...string) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// BreakerSource reports the circuit breakers guarding the stores
type BreakerSource interface {
	Snapshots() []circuitbreaker.Snapshot
}

// SyncAdminService serves operator views and actions over the dual write
// layer: record status, failure ledger, manual retry, reconciliation and
// batches.
type SyncAdminService struct {
	coordinator *dualwrite.Coordinator
	reconciler  *ReconciliationService
	primary     dualwrite.PrimaryStore
	secondary   dualwrite.SecondaryStore
	failures    FailureStore
	breakers    BreakerSource
	logger      *zap.Logger
}

// NewSyncAdminService creates a new sync admin service. failures is
// optional; without it only the in-process ledger is visible.
func NewSyncAdminService(
	coordinator *dualwrite.Coordinator,
	reconciler *ReconciliationService,
	primary dualwrite.PrimaryStore,
	secondary dualwrite.SecondaryStore,
	failures FailureStore,
	logger *zap.Logger,
) *SyncAdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncAdminService{
		coordinator: coordinator,
		reconciler:  reconciler,
		primary:     primary,
		secondary:   secondary,
		failures:    failures,
		logger:      logger.Named("sync_admin"),
	}
}

// WithBreakers adds the breaker states to Metrics
func (s *SyncAdminService) WithBreakers(b BreakerSource) *SyncAdminService {
	s.breakers = b
	return s
}

// LoadFailures restores persisted failures into the in-process ledger
func (s *SyncAdminService) LoadFailures(ctx context.Context) (int, error) {
	if s.failures == nil {
		return 0, nil
	}
	records, err := s.failures.List(ctx, domain.FailureFilter{Limit: 10000})
	if err != nil {
		return 0, fmt.Errorf("failed to load sync failures: %w", err)
	}
	s.coordinator.Ledger().Restore(records)
	return len(records), nil
}

// ListFailures returns failures newest first. The persistent store is
// preferred so failures recorded by other processes are visible.
func (s *SyncAdminService) ListFailures(ctx context.Context, filter domain.FailureFilter) ([]domain.FailureRecord, error) {
	var records []domain.FailureRecord
	if s.failures != nil {
		var err error
		records, err = s.failures.List(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to list sync failures: %w", err)
		}
	} else {
		records = s.coordinator.Ledger().List(filter)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	return records, nil
}

// ClearFailures empties the ledger and its persistent copy
func (s *SyncAdminService) ClearFailures(ctx context.Context) (int, error) {
	n := s.coordinator.Ledger().Clear()
	if s.failures != nil {
		persisted, err := s.failures.DeleteAll(ctx)
		if err != nil {
			return n, fmt.Errorf("failed to clear sync failures: %w", err)
		}
		if int(persisted) > n {
			n = int(persisted)
		}
	}
	s.logger.Info("sync failures cleared", zap.Int("count", n))
	return n, nil
}

// RetryFailures resynchronizes every record named by a matching failure.
// Failures of records that resync cleanly are removed.
func (s *SyncAdminService) RetryFailures(ctx context.Context, filter domain.FailureFilter) (domain.RetryResult, error) {
	records, err := s.ListFailures(ctx, filter)
	if err != nil {
		return domain.RetryResult{}, err
	}

	type key struct{ collection, sharedID string }
	groups := make(map[key][]domain.FailureRecord)
	var order []key
	for _, r := range records {
		k := key{r.Collection, r.SharedID}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
	}

	var result domain.RetryResult
	for _, k := range order {
		result.Attempted++
		if err := s.coordinator.Resync(ctx, k.collection, k.sharedID); err != nil {
			s.logger.Warn("retry of failed sync did not recover",
				zap.String("collection", k.collection),
				zap.String("shared_id", k.sharedID),
				zap.Error(err),
			)
			result.Remaining = append(result.Remaining, groups[k]...)
			continue
		}

		s.forget(ctx, groups[k])
		result.Recovered++
	}

	s.logger.Info("retried failed syncs",
		zap.Int("attempted", result.Attempted),
		zap.Int("recovered", result.Recovered),
	)
	return result, nil
}

// Retry resynchronizes one record and forgets its recorded failures
func (s *SyncAdminService) Retry(ctx context.Context, collection, sharedID string) error {
	if err := s.coordinator.Resync(ctx, collection, sharedID); err != nil {
		return err
	}
	records, err := s.ListFailures(ctx, domain.FailureFilter{Collection: collection, SharedID: sharedID})
	if err != nil {
		return err
	}
	s.forget(ctx, records)
	return nil
}

func (s *SyncAdminService) forget(ctx context.Context, records []domain.FailureRecord) {
	if len(records) == 0 {
		return
	}
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	s.coordinator.Ledger().Remove(ids...)
	if s.failures != nil {
		if _, err := s.failures.Delete(ctx, ids...); err != nil {
			s.logger.Warn("failed to delete recovered sync failures", zap.Error(err))
		}
	}
}

// Status reports where a record exists, its sync marker, the columns that
// differ between the stores and its recorded failures
func (s *SyncAdminService) Status(ctx context.Context, collection, sharedID string) (*domain.SyncStatusReport, error) {
	m, ok := s.coordinator.Registry().Lookup(collection)
	if !ok {
		return nil, apperrors.MappingNotFound(collection)
	}

	report := &domain.SyncStatusReport{Collection: m.Name, SharedID: sharedID}

	doc, err := s.primary.Get(ctx, m.Name, sharedID)
	switch {
	case err == nil:
		report.InPrimary = true
	case !errors.Is(err, dualwrite.ErrNotFound):
		return nil, fmt.Errorf("failed to read primary record: %w", err)
	}

	row, err := s.secondary.Get(ctx, m.Table.Name, sharedID)
	switch {
	case err == nil:
		report.InSecondary = true
		report.SyncStatus = domain.SyncStatus(stringValue(row[domain.ColumnSyncStatus]))
		report.SyncError = stringValue(row[domain.ColumnSyncError])
		if ts, ok := row[domain.ColumnLastSyncAt].(time.Time); ok {
			report.LastSyncAt = &ts
		}
	case !errors.Is(err, dualwrite.ErrNotFound):
		return nil, fmt.Errorf("failed to read secondary record: %w", err)
	}

	if report.InPrimary && report.InSecondary {
		rec, err := s.coordinator.Transformer().ToSecondary(m.Name, sharedID, doc)
		if err != nil {
			return nil, fmt.Errorf("failed to transform primary record: %w", err)
		}
		report.Drift = Drift(rec.Values, row)
	}

	report.Failures, err = s.ListFailures(ctx, domain.FailureFilter{Collection: m.Name, SharedID: sharedID})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// Metrics summarises the failure ledger
func (s *SyncAdminService) Metrics(ctx context.Context) (*domain.SyncMetrics, error) {
	records, err := s.ListFailures(ctx, domain.FailureFilter{Limit: 10000})
	if err != nil {
		return nil, err
	}

	m := &domain.SyncMetrics{
		DualWriteEnabled: s.coordinator.Enabled(),
		SyncEnabled:      s.reconciler != nil && s.reconciler.Enabled(),
		TotalFailures:    len(records),
		ByCollection:     make(map[string]int),
		ByOperation:      make(map[string]int),
	}
	for _, r := range records {
		m.ByCollection[r.Collection]++
		m.ByOperation[string(r.Operation)]++
	}
	if len(records) > recentFailures {
		m.Recent = records[:recentFailures]
	} else {
		m.Recent = records
	}
	if s.breakers != nil {
		for _, snap := range s.breakers.Snapshots() {
			m.Breakers = append(m.Breakers, domain.BreakerState{
				Name:     snap.Name,
				State:    snap.State,
				Failures: snap.Failures,
			})
		}
	}
	return m, nil
}

// Reconcile runs a reconciliation pass
func (s *SyncAdminService) Reconcile(ctx context.Context, opts domain.ReconcileOptions) (domain.ReconcileReport, error) {
	if s.reconciler == nil || !s.reconciler.Enabled() {
		return domain.ReconcileReport{}, apperrors.SyncDisabled()
	}
	report, ok := s.reconciler.SyncAll(ctx, opts)
	if !ok {
		return report, apperrors.DualWriteFailed("reconciliation finished with failed entities")
	}
	return report, nil
}

// Batch validates and runs a batch of operations
func (s *SyncAdminService) Batch(ctx context.Context, ops []domain.BatchOperation) (domain.BatchResult, error) {
	if len(ops) == 0 {
		return domain.BatchResult{}, apperrors.Validation("batch has no operations")
	}
	for i := range ops {
		if err := validator.Validate(ops[i]); err != nil {
			return domain.BatchResult{}, apperrors.Validation(fmt.Sprintf("operation %d: %v", i, err))
		}
	}
	return s.coordinator.Batch(ctx, ops), nil
}

func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}
