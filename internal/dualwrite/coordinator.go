package dualwrite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/taskflow/taskflow/internal/config"
	"github.com/taskflow/taskflow/internal/domain"
	apperrors "github.com/taskflow/taskflow/internal/pkg/errors"
	"github.com/taskflow/taskflow/internal/pkg/logger"
	"github.com/taskflow/taskflow/internal/pkg/metrics"
	"github.com/taskflow/taskflow/internal/pkg/retry"
)

// Options configures a Coordinator
type Options struct {
	// Enabled is the dual write toggle. When false every call is a
	// primary-only pass-through.
	Enabled bool
	Policy  retry.Policy
	// PoolSize bounds the store writes running at once across all callers
	PoolSize int
}

// OptionsFromConfig builds coordinator options from configuration
func OptionsFromConfig(cfg config.DualWriteConfig) Options {
	return Options{
		Enabled: cfg.Enabled,
		Policy: retry.Policy{
			MaxAttempts:  cfg.MaxAttempts,
			InitialDelay: cfg.InitialBackoff,
			MaxDelay:     cfg.MaxBackoff,
			Multiplier:   cfg.BackoffFactor,
			JitterFactor: cfg.Jitter,
		},
		PoolSize: cfg.WorkerPoolSize,
	}
}

// Coordinator writes every mutation to the primary and secondary stores in
// parallel and keeps them convergent on partial failure. There is no
// transaction spanning both stores: a create that only one store accepted
// is undone on that store, updates and deletes are flagged and recorded.
type Coordinator struct {
	primary     PrimaryStore
	secondary   SecondaryStore
	registry    *Registry
	transformer *Transformer
	ledger      *Ledger
	logger      *zap.Logger

	enabled        bool
	pool           *semaphore.Weighted
	primaryRetry   *retry.Executor
	secondaryRetry *retry.Executor
}

// New creates a coordinator. The toggle in opts is read once here.
func New(primary PrimaryStore, secondary SecondaryStore, registry *Registry, ledger *Ledger, logger *zap.Logger, opts Options) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PoolSize < 2 {
		opts.PoolSize = 2
	}
	if opts.Policy.MaxAttempts < 1 {
		opts.Policy = retry.DefaultPolicy()
	}

	c := &Coordinator{
		primary:     primary,
		secondary:   secondary,
		registry:    registry,
		transformer: NewTransformer(registry),
		ledger:      ledger,
		logger:      logger.Named("dualwrite"),
		enabled:     opts.Enabled,
		pool:        semaphore.NewWeighted(int64(opts.PoolSize)),
	}
	c.primaryRetry = retry.New(opts.Policy, c.logger.With(zap.String("store", string(domain.StorePrimary))),
		retry.WithClassifier(isPermanent),
		retry.WithHook(retryHook(domain.StorePrimary)),
	)
	c.secondaryRetry = retry.New(opts.Policy, c.logger.With(zap.String("store", string(domain.StoreSecondary))),
		retry.WithClassifier(isPermanent),
		retry.WithHook(retryHook(domain.StoreSecondary)),
	)

	c.logger.Info("dual write coordinator ready",
		zap.Bool("enabled", opts.Enabled),
		zap.Int("max_attempts", opts.Policy.MaxAttempts),
		zap.Int("pool_size", opts.PoolSize),
		zap.Int("entities", registry.Len()),
	)
	return c
}

func retryHook(store domain.StoreKind) retry.Hook {
	return func(name string, _ int, _ error) {
		metrics.RecordStoreRetry(string(store), name)
	}
}

// isPermanent extends retry classification with store-level not found,
// which no amount of retrying will fix.
func isPermanent(err error) bool {
	return retry.IsPermanent(err) || errors.Is(err, ErrNotFound)
}

// Enabled reports the dual write toggle
func (c *Coordinator) Enabled() bool {
	return c.enabled
}

// Registry returns the entity registry
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// Transformer returns the schema transformer
func (c *Coordinator) Transformer() *Transformer {
	return c.transformer
}

// Ledger returns the sync failure ledger
func (c *Coordinator) Ledger() *Ledger {
	return c.ledger
}

// Create writes a new record to both stores under the shared id. When
// exactly one store accepts it, the record is deleted from that store
// again and a *WriteError is returned.
func (c *Coordinator) Create(ctx context.Context, collection string, payload domain.Document, id string) error {
	const op = domain.OperationCreate
	start := time.Now()

	if id == "" {
		return apperrors.Validation("shared id is required")
	}

	if !c.enabled {
		return c.passThrough(ctx, collection, op, start, func(ctx context.Context) error {
			return c.primary.Insert(ctx, collection, id, payload)
		})
	}

	m, err := c.lookup(collection, id, op)
	if err != nil {
		return err
	}

	rec, err := c.transformer.transform(m, id, payload, false)
	if err != nil {
		c.recordFailure(collection, id, op, domain.StoreNone, err)
		metrics.RecordDualWrite(collection, string(op), metrics.OutcomeFailed, time.Since(start))
		return fmt.Errorf("transform %s: %w", collection, err)
	}

	primary, secondary, err := c.fanOut(ctx, op, id,
		func(ctx context.Context) error { return c.primary.Insert(ctx, collection, id, payload) },
		func(ctx context.Context) error { return c.secondary.Insert(ctx, rec) },
	)
	if err != nil {
		return err
	}

	if primary.OK() && secondary.OK() {
		metrics.RecordDualWrite(collection, string(op), metrics.OutcomeSuccess, time.Since(start))
		return nil
	}

	werr := &WriteError{Op: op, Collection: collection, ID: id, PrimaryErr: primary.Err, SecondaryErr: secondary.Err}

	if !werr.Partial() {
		c.recordFailure(collection, id, op, domain.StoreBoth, werr)
		metrics.RecordDualWrite(collection, string(op), metrics.OutcomeFailed, time.Since(start))
		return werr
	}

	succeeded := domain.StorePrimary
	if secondary.OK() {
		succeeded = domain.StoreSecondary
	}
	werr.CompensationErr = c.compensate(ctx, collection, rec.Table, id, succeeded)
	werr.Compensated = werr.CompensationErr == nil

	c.recordFailure(collection, id, op, werr.FailedStore(), werr)
	if werr.CompensationErr != nil {
		c.recordFailure(collection, id, domain.OperationCompensate, succeeded, werr.CompensationErr)
	}
	metrics.RecordDualWrite(collection, string(op), metrics.OutcomePartial, time.Since(start))
	return werr
}

// Update applies the fields in payload to both stores. A missing secondary
// row is created, and removed again when the primary document does not
// exist either. When only the primary accepted the update the secondary
// gets one more upsert; if that fails too the row is marked FAILED.
func (c *Coordinator) Update(ctx context.Context, collection string, payload domain.Document, id string) error {
	const op = domain.OperationUpdate
	start := time.Now()

	if id == "" {
		return apperrors.Validation("shared id is required")
	}

	if !c.enabled {
		return c.passThrough(ctx, collection, op, start, func(ctx context.Context) error {
			return c.primary.Update(ctx, collection, id, payload)
		})
	}

	m, err := c.lookup(collection, id, op)
	if err != nil {
		return err
	}

	patch, err := c.transformer.transform(m, id, payload, true)
	if err != nil {
		c.recordFailure(collection, id, op, domain.StoreNone, err)
		metrics.RecordDualWrite(collection, string(op), metrics.OutcomeFailed, time.Since(start))
		return fmt.Errorf("transform %s: %w", collection, err)
	}

	// created is written by the secondary goroutine and read after the
	// barrier in fanOut.
	var created bool
	primary, secondary, err := c.fanOut(ctx, op, id,
		func(ctx context.Context) error { return c.primary.Update(ctx, collection, id, payload) },
		func(ctx context.Context) error {
			err := c.secondary.Update(ctx, patch)
			if !errors.Is(err, ErrNotFound) {
				return err
			}
			full, terr := c.transformer.transform(m, id, payload, false)
			if terr != nil {
				return terr
			}
			if err := c.secondary.Upsert(ctx, full); err != nil {
				return err
			}
			created = true
			return nil
		},
	)
	if err != nil {
		return err
	}

	switch {
	case primary.OK() && secondary.OK():
		metrics.RecordDualWrite(collection, string(op), metrics.OutcomeSuccess, time.Since(start))
		return nil

	case primary.OK():
		logger.WithRecord(c.logger, collection, id).Warn("secondary update failed, retrying as upsert",
			zap.Error(secondary.Err),
		)
		upsertErr := c.upsertFromPrimary(context.WithoutCancel(ctx), m, id, payload)
		if upsertErr == nil {
			metrics.RecordDualWrite(collection, string(op), metrics.OutcomeSuccess, time.Since(start))
			return nil
		}
		c.markFailed(ctx, m.Table.Name, id, upsertErr)
		werr := &WriteError{Op: op, Collection: collection, ID: id, SecondaryErr: upsertErr}
		c.recordFailure(collection, id, op, domain.StoreSecondary, werr)
		metrics.RecordDualWrite(collection, string(op), metrics.OutcomePartial, time.Since(start))
		return werr

	case secondary.OK() && created && errors.Is(primary.Err, ErrNotFound):
		// the row was created for a document that does not exist
		werr := &WriteError{Op: op, Collection: collection, ID: id, PrimaryErr: primary.Err}
		werr.CompensationErr = c.compensate(ctx, collection, m.Table.Name, id, domain.StoreSecondary)
		werr.Compensated = werr.CompensationErr == nil
		c.recordFailure(collection, id, op, domain.StorePrimary, werr)
		if werr.CompensationErr != nil {
			c.markFailed(ctx, m.Table.Name, id, primary.Err)
			c.recordFailure(collection, id, domain.OperationCompensate, domain.StoreSecondary, werr.CompensationErr)
		}
		metrics.RecordDualWrite(collection, string(op), metrics.OutcomeFailed, time.Since(start))
		return werr

	case secondary.OK():
		c.markFailed(ctx, m.Table.Name, id, primary.Err)
		werr := &WriteError{Op: op, Collection: collection, ID: id, PrimaryErr: primary.Err}
		c.recordFailure(collection, id, op, domain.StorePrimary, werr)
		metrics.RecordDualWrite(collection, string(op), metrics.OutcomePartial, time.Since(start))
		return werr

	default:
		werr := &WriteError{Op: op, Collection: collection, ID: id, PrimaryErr: primary.Err, SecondaryErr: secondary.Err}
		c.recordFailure(collection, id, op, domain.StoreBoth, werr)
		metrics.RecordDualWrite(collection, string(op), metrics.OutcomeFailed, time.Since(start))
		return werr
	}
}

// Delete removes the record from both stores, flagging it instead where
// the entity soft deletes. A row already missing from the secondary store
// counts as deleted.
func (c *Coordinator) Delete(ctx context.Context, collection, id string) error {
	const op = domain.OperationDelete
	start := time.Now()

	if id == "" {
		return apperrors.Validation("shared id is required")
	}

	if !c.enabled {
		m, _ := c.registry.Lookup(collection)
		return c.passThrough(ctx, collection, op, start, func(ctx context.Context) error {
			return c.deletePrimary(ctx, m, collection, id)
		})
	}

	m, err := c.lookup(collection, id, op)
	if err != nil {
		return err
	}

	primary, secondary, err := c.fanOut(ctx, op, id,
		func(ctx context.Context) error { return c.deletePrimary(ctx, m, collection, id) },
		func(ctx context.Context) error {
			var err error
			if flag := m.SecondaryFlag(); !flag.IsZero() {
				err = c.secondary.SoftDelete(ctx, m.Table.Name, id, flag)
			} else {
				err = c.secondary.Delete(ctx, m.Table.Name, id)
			}
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		},
	)
	if err != nil {
		return err
	}

	if primary.OK() && secondary.OK() {
		metrics.RecordDualWrite(collection, string(op), metrics.OutcomeSuccess, time.Since(start))
		return nil
	}

	werr := &WriteError{Op: op, Collection: collection, ID: id, PrimaryErr: primary.Err, SecondaryErr: secondary.Err}
	c.recordFailure(collection, id, op, werr.FailedStore(), werr)

	outcome := metrics.OutcomeFailed
	if werr.Partial() {
		outcome = metrics.OutcomePartial
	}
	metrics.RecordDualWrite(collection, string(op), outcome, time.Since(start))
	return werr
}

// Resync makes the secondary row match the primary document: the row is
// upserted from the document, or removed when the document no longer exists.
func (c *Coordinator) Resync(ctx context.Context, collection, id string) error {
	m, ok := c.registry.Lookup(collection)
	if !ok {
		return apperrors.MappingNotFound(collection)
	}

	doc, err := retry.DoValue(ctx, c.primaryRetry, "get", func() (domain.Document, error) {
		return c.primary.Get(ctx, collection, id)
	})
	if errors.Is(err, ErrNotFound) {
		err = c.secondaryRetry.Do(ctx, "delete", func() error {
			return c.secondary.Delete(ctx, m.Table.Name, id)
		})
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if err != nil {
		return fmt.Errorf("read primary %s/%s: %w", collection, id, err)
	}

	rec, err := c.transformer.transform(m, id, doc, false)
	if err != nil {
		return fmt.Errorf("transform %s: %w", collection, err)
	}
	return c.secondaryRetry.Do(ctx, "upsert", func() error {
		return c.secondary.Upsert(ctx, rec)
	})
}

// Batch runs the operations in order and reports per-item failures
func (c *Coordinator) Batch(ctx context.Context, ops []domain.BatchOperation) domain.BatchResult {
	result := domain.BatchResult{Total: len(ops)}

	for i, op := range ops {
		var err error
		switch op.Operation {
		case domain.OperationCreate:
			err = c.Create(ctx, op.Collection, op.Payload, op.SharedID)
		case domain.OperationUpdate:
			err = c.Update(ctx, op.Collection, op.Payload, op.SharedID)
		case domain.OperationDelete:
			err = c.Delete(ctx, op.Collection, op.SharedID)
		default:
			err = apperrors.Validation(fmt.Sprintf("unsupported operation %q", op.Operation))
		}

		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, domain.BatchItemError{
				Index:      i,
				Operation:  op.Operation,
				Collection: op.Collection,
				SharedID:   op.SharedID,
				Error:      err.Error(),
			})
			continue
		}
		result.Succeeded++
	}

	c.logger.Info("batch completed",
		zap.Int("total", result.Total),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
	)
	return result
}

func (c *Coordinator) lookup(collection, id string, op domain.Operation) (EntityMapping, error) {
	m, ok := c.registry.Lookup(collection)
	if !ok {
		err := apperrors.MappingNotFound(collection)
		c.recordFailure(collection, id, op, domain.StoreNone, err)
		metrics.RecordDualWrite(collection, string(op), metrics.OutcomeFailed, 0)
		return EntityMapping{}, err
	}
	return m, nil
}

func (c *Coordinator) passThrough(ctx context.Context, collection string, op domain.Operation, start time.Time, fn func(context.Context) error) error {
	err := c.primaryRetry.Do(ctx, string(op), func() error { return fn(ctx) })

	outcome := metrics.OutcomePassthrough
	if err != nil {
		outcome = metrics.OutcomeFailed
	}
	metrics.RecordDualWrite(collection, string(op), outcome, time.Since(start))
	return err
}

// fanOut runs both store writes on the pool and waits for both. Once
// dispatched, writes are not cancelled by ctx.
func (c *Coordinator) fanOut(
	ctx context.Context,
	op domain.Operation,
	id string,
	primaryFn, secondaryFn func(context.Context) error,
) (domain.WriteOutcome, domain.WriteOutcome, error) {
	primary := domain.WriteOutcome{Store: domain.StorePrimary, ID: id}
	secondary := domain.WriteOutcome{Store: domain.StoreSecondary, ID: id}

	if err := c.pool.Acquire(ctx, 2); err != nil {
		return primary, secondary, fmt.Errorf("acquire write slots: %w", err)
	}

	wctx := context.WithoutCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(2)
	go c.run(wctx, &wg, c.primaryRetry, string(op), primaryFn, &primary)
	go c.run(wctx, &wg, c.secondaryRetry, string(op), secondaryFn, &secondary)
	wg.Wait()

	return primary, secondary, nil
}

func (c *Coordinator) run(ctx context.Context, wg *sync.WaitGroup, exec *retry.Executor, name string, fn func(context.Context) error, out *domain.WriteOutcome) {
	defer wg.Done()
	defer c.pool.Release(1)
	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("%s write panicked: %v", out.Store, r)
			c.logger.Error("store write panicked",
				zap.String("store", string(out.Store)),
				zap.Any("panic", r),
			)
		}
	}()

	out.Err = exec.Do(ctx, name, func() error { return fn(ctx) })
}

// compensate hard deletes the record from the store that accepted a
// create, or the secondary row an update created for a missing document.
// A record that is already gone counts as compensated.
func (c *Coordinator) compensate(ctx context.Context, collection, table, id string, store domain.StoreKind) error {
	ctx = context.WithoutCancel(ctx)
	log := logger.WithRecord(c.logger, collection, id).With(zap.String("store", string(store)))

	log.Warn("COMPENSATION: removing record from the store that accepted a partial write")

	var err error
	if store == domain.StorePrimary {
		err = c.primaryRetry.Do(ctx, string(domain.OperationCompensate), func() error {
			return c.primary.Delete(ctx, collection, id)
		})
	} else {
		err = c.secondaryRetry.Do(ctx, string(domain.OperationCompensate), func() error {
			return c.secondary.Delete(ctx, table, id)
		})
	}
	if errors.Is(err, ErrNotFound) {
		err = nil
	}

	metrics.RecordCompensation(collection, string(store), err == nil)
	if err != nil {
		log.Error("COMPENSATION failed, stores have diverged", zap.Error(err))
	}
	return err
}

func (c *Coordinator) deletePrimary(ctx context.Context, m EntityMapping, collection, id string) error {
	if flag := m.PrimaryFlag(); !flag.IsZero() {
		return c.primary.SoftDelete(ctx, collection, id, flag)
	}
	return c.primary.Delete(ctx, collection, id)
}

// upsertFromPrimary rebuilds the full row from the primary document when it
// can be read, falling back to the update payload.
func (c *Coordinator) upsertFromPrimary(ctx context.Context, m EntityMapping, id string, payload domain.Document) error {
	source := payload
	if doc, err := c.primary.Get(ctx, m.Name, id); err == nil {
		source = doc
	}

	rec, err := c.transformer.transform(m, id, source, false)
	if err != nil {
		return err
	}
	return c.secondary.Upsert(ctx, rec)
}

func (c *Coordinator) markFailed(ctx context.Context, table, id string, cause error) {
	ctx = context.WithoutCancel(ctx)
	if err := c.secondary.MarkFailed(ctx, table, id, cause.Error()); err != nil && !errors.Is(err, ErrNotFound) {
		c.logger.Warn("failed to mark secondary row as FAILED",
			zap.String("table", table),
			zap.String("shared_id", id),
			zap.Error(err),
		)
	}
}

func (c *Coordinator) recordFailure(collection, id string, op domain.Operation, store domain.StoreKind, err error) {
	if c.ledger == nil {
		return
	}
	c.ledger.Record(domain.FailureRecord{
		Collection: collection,
		SharedID:   id,
		Operation:  op,
		Store:      store,
		Error:      err.Error(),
	})
}
