package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels
const (
	OutcomeSuccess     = "success"
	OutcomePartial     = "partial"
	OutcomeFailed      = "failed"
	OutcomePassthrough = "passthrough"
)

// Reconciliation row results
const (
	RowInserted  = "inserted"
	RowRepaired  = "repaired"
	RowUnchanged = "unchanged"
	RowError     = "error"
)

var (
	dualWriteTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskflow_dual_write_operations_total",
			Help: "Total number of coordinated writes by outcome",
		},
		[]string{"collection", "operation", "outcome"},
	)

	dualWriteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskflow_dual_write_duration_seconds",
			Help:    "Time from dispatch to barrier join of a coordinated write",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"collection", "operation"},
	)

	storeRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskflow_store_write_retries_total",
			Help: "Total number of retried store writes",
		},
		[]string{"store", "operation"},
	)

	compensations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskflow_dual_write_compensations_total",
			Help: "Total number of compensating deletes by result",
		},
		[]string{"collection", "store", "result"},
	)

	syncFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskflow_sync_failures_total",
			Help: "Total number of records appended to the sync failure ledger",
		},
		[]string{"collection", "operation", "store"},
	)

	ledgerSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskflow_sync_failure_ledger_size",
			Help: "Number of records currently held by the sync failure ledger",
		},
	)

	ledgerDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taskflow_sync_failure_sink_dropped_total",
			Help: "Failure records not delivered to sinks because the buffer was full",
		},
	)

	reconcileRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskflow_reconcile_rows_total",
			Help: "Rows handled by reconciliation by result",
		},
		[]string{"collection", "result"},
	)

	reconcilePasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskflow_reconcile_passes_total",
			Help: "Reconciliation passes per entity by status",
		},
		[]string{"collection", "status"},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskflow_circuit_breaker_open",
			Help: "1 when the named circuit breaker is open",
		},
		[]string{"name"},
	)
)

// RecordDualWrite records the outcome of one coordinated write
func RecordDualWrite(collection, operation, outcome string, duration time.Duration) {
	dualWriteTotal.WithLabelValues(collection, operation, outcome).Inc()
	dualWriteDuration.WithLabelValues(collection, operation).Observe(duration.Seconds())
}

// RecordStoreRetry records a retried write against one store
func RecordStoreRetry(store, operation string) {
	storeRetries.WithLabelValues(store, operation).Inc()
}

// RecordCompensation records a compensating delete
func RecordCompensation(collection, store string, ok bool) {
	result := OutcomeSuccess
	if !ok {
		result = OutcomeFailed
	}
	compensations.WithLabelValues(collection, store, result).Inc()
}

// RecordSyncFailure records a ledger append
func RecordSyncFailure(collection, operation, store string) {
	syncFailures.WithLabelValues(collection, operation, store).Inc()
}

// SetLedgerSize sets the current ledger size
func SetLedgerSize(n int) {
	ledgerSize.Set(float64(n))
}

// RecordLedgerDrop records a failure record the sink buffer could not take
func RecordLedgerDrop() {
	ledgerDropped.Inc()
}

// RecordReconcileRow records one reconciled row. result is one of the Row constants.
func RecordReconcileRow(collection, result string) {
	reconcileRows.WithLabelValues(collection, result).Inc()
}

// RecordReconcilePass records one per-entity pass
func RecordReconcilePass(collection, status string) {
	reconcilePasses.WithLabelValues(collection, status).Inc()
}

// SetBreakerOpen exports a breaker state
func SetBreakerOpen(name string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	breakerState.WithLabelValues(name).Set(v)
}
