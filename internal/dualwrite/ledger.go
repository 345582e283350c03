package dualwrite

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/domain"
	"github.com/taskflow/taskflow/internal/pkg/id"
	"github.com/taskflow/taskflow/internal/pkg/metrics"
)

// FailureSink receives ledger records for persistence or alerting
type FailureSink interface {
	Name() string
	Deliver(ctx context.Context, rec domain.FailureRecord) error
}

// FailureSinkFunc adapts a function to FailureSink
type FailureSinkFunc struct {
	SinkName string
	Fn       func(ctx context.Context, rec domain.FailureRecord) error
}

// Name implements FailureSink
func (f FailureSinkFunc) Name() string { return f.SinkName }

// Deliver implements FailureSink
func (f FailureSinkFunc) Deliver(ctx context.Context, rec domain.FailureRecord) error {
	return f.Fn(ctx, rec)
}

const sinkTimeout = 5 * time.Second

// Ledger is the process-wide, append-only record of failed
// synchronizations. Appends are guarded by a mutex; delivery to sinks runs
// on a single consumer goroutine fed by a buffered channel so a slow sink
// never blocks a write path.
type Ledger struct {
	logger *zap.Logger

	mu      sync.Mutex
	records []domain.FailureRecord

	sendMu  sync.RWMutex
	closed  bool
	queue   chan domain.FailureRecord
	sinks   []FailureSink
	started atomic.Bool
	done    chan struct{}
}

// NewLedger creates a ledger. bufferSize bounds the records waiting for
// sink delivery; records beyond it stay in the ledger but are not delivered.
func NewLedger(logger *zap.Logger, bufferSize int, sinks ...FailureSink) *Ledger {
	if bufferSize < 1 {
		bufferSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		logger: logger,
		queue:  make(chan domain.FailureRecord, bufferSize),
		sinks:  sinks,
		done:   make(chan struct{}),
	}
}

// Record appends a failure and queues it for the sinks. ID and Timestamp
// are filled in when empty. The stored record is returned.
func (l *Ledger) Record(rec domain.FailureRecord) domain.FailureRecord {
	if rec.ID == "" {
		rec.ID = id.NewEventID()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	l.records = append(l.records, rec)
	size := len(l.records)
	l.mu.Unlock()

	metrics.RecordSyncFailure(rec.Collection, string(rec.Operation), string(rec.Store))
	metrics.SetLedgerSize(size)

	l.logger.Error("sync failure recorded",
		zap.String("failure_id", rec.ID),
		zap.String("collection", rec.Collection),
		zap.String("shared_id", rec.SharedID),
		zap.String("operation", string(rec.Operation)),
		zap.String("store", string(rec.Store)),
		zap.String("error", rec.Error),
	)

	if len(l.sinks) == 0 {
		return rec
	}

	l.sendMu.RLock()
	defer l.sendMu.RUnlock()
	if l.closed {
		return rec
	}

	select {
	case l.queue <- rec:
	default:
		metrics.RecordLedgerDrop()
		l.logger.Warn("failure sink buffer full, record kept in memory only",
			zap.String("failure_id", rec.ID),
		)
	}
	return rec
}

// Restore loads previously persisted records without delivering them again
func (l *Ledger) Restore(records []domain.FailureRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	known := make(map[string]struct{}, len(l.records))
	for _, r := range l.records {
		known[r.ID] = struct{}{}
	}
	for _, r := range records {
		if _, ok := known[r.ID]; ok {
			continue
		}
		l.records = append(l.records, r)
	}
	metrics.SetLedgerSize(len(l.records))
}

// List returns matching records, oldest first. A positive filter Limit
// keeps only the newest records.
func (l *Ledger) List(filter domain.FailureFilter) []domain.FailureRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.FailureRecord, 0, len(l.records))
	for _, r := range l.records {
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out
}

// Get returns a record by ID
func (l *Ledger) Get(failureID string) (domain.FailureRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.records {
		if r.ID == failureID {
			return r, true
		}
	}
	return domain.FailureRecord{}, false
}

// Len returns the number of records
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Remove deletes records by ID and returns how many were removed
func (l *Ledger) Remove(ids ...string) int {
	drop := make(map[string]struct{}, len(ids))
	for _, i := range ids {
		drop[i] = struct{}{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.records[:0]
	removed := 0
	for _, r := range l.records {
		if _, ok := drop[r.ID]; ok {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	l.records = kept
	metrics.SetLedgerSize(len(l.records))
	return removed
}

// Clear drops every record and returns how many there were
func (l *Ledger) Clear() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.records)
	l.records = nil
	metrics.SetLedgerSize(0)
	return n
}

// Run delivers queued records to the sinks until ctx is cancelled or the
// ledger is closed. It must be called at most once.
func (l *Ledger) Run(ctx context.Context) {
	if !l.started.CompareAndSwap(false, true) {
		return
	}
	defer close(l.done)

	for {
		select {
		case <-ctx.Done():
			l.drain()
			return
		case rec, ok := <-l.queue:
			if !ok {
				return
			}
			l.deliver(rec)
		}
	}
}

// Close stops accepting sink deliveries and waits for queued records to be
// delivered when Run is active.
func (l *Ledger) Close() {
	l.sendMu.Lock()
	if !l.closed {
		l.closed = true
		close(l.queue)
	}
	l.sendMu.Unlock()

	if l.started.Load() {
		<-l.done
	}
}

func (l *Ledger) drain() {
	for {
		select {
		case rec, ok := <-l.queue:
			if !ok {
				return
			}
			l.deliver(rec)
		default:
			return
		}
	}
}

func (l *Ledger) deliver(rec domain.FailureRecord) {
	for _, sink := range l.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		err := sink.Deliver(ctx, rec)
		cancel()
		if err != nil {
			l.logger.Warn("failed to deliver sync failure to sink",
				zap.String("sink", sink.Name()),
				zap.String("failure_id", rec.ID),
				zap.Error(err),
			)
		}
	}
}
