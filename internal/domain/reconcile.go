package domain

import "time"

// EntitySyncStatus is the result of one per-entity reconciliation pass
type EntitySyncStatus string

const (
	EntitySyncSkippedInSync   EntitySyncStatus = "in_sync"
	EntitySyncSkippedNoTable  EntitySyncStatus = "table_missing"
	EntitySyncCompleted       EntitySyncStatus = "completed"
	EntitySyncCompletedErrors EntitySyncStatus = "completed_with_errors"
	EntitySyncFailed          EntitySyncStatus = "failed"
)

// ReconcileOptions controls a reconciliation run
type ReconcileOptions struct {
	// Force bypasses the count heuristic and repairs drifted rows
	Force bool `json:"force"`
	// Entities restricts the run; empty means every registered entity
	Entities []string `json:"entities,omitempty"`
	// Trigger records who asked for the run (startup, operator, schedule)
	Trigger string `json:"trigger,omitempty"`
}

// EntityReport describes one entity pass
type EntityReport struct {
	Collection     string           `json:"collection"`
	Table          string           `json:"table"`
	Status         EntitySyncStatus `json:"status"`
	PrimaryCount   int64            `json:"primaryCount"`
	SecondaryCount int64            `json:"secondaryCount"`
	Scanned        int              `json:"scanned"`
	Inserted       int              `json:"inserted"`
	Repaired       int              `json:"repaired"`
	RowErrors      int              `json:"rowErrors"`
	Error          string           `json:"error,omitempty"`
	Duration       time.Duration    `json:"duration"`
}

// ReconcileReport is the result of a reconciliation run
type ReconcileReport struct {
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Force      bool           `json:"force"`
	Trigger    string         `json:"trigger,omitempty"`
	Success    bool           `json:"success"`
	Skipped    string         `json:"skipped,omitempty"`
	Entities   []EntityReport `json:"entities"`
}

// SyncStatusReport is the cross-store view of one record
type SyncStatusReport struct {
	Collection  string          `json:"collection"`
	SharedID    string          `json:"sharedId"`
	InPrimary   bool            `json:"inPrimary"`
	InSecondary bool            `json:"inSecondary"`
	SyncStatus  SyncStatus      `json:"syncStatus,omitempty"`
	SyncError   string          `json:"syncError,omitempty"`
	LastSyncAt  *time.Time      `json:"lastSyncAt,omitempty"`
	Drift       []string        `json:"drift,omitempty"`
	Failures    []FailureRecord `json:"failures,omitempty"`
}

// SyncMetrics summarises the failure ledger
type SyncMetrics struct {
	DualWriteEnabled bool            `json:"dualWriteEnabled"`
	SyncEnabled      bool            `json:"syncEnabled"`
	TotalFailures    int             `json:"totalFailures"`
	ByCollection     map[string]int  `json:"byCollection"`
	ByOperation      map[string]int  `json:"byOperation"`
	Recent           []FailureRecord `json:"recent"`
	Breakers         []BreakerState  `json:"breakers,omitempty"`
}

// BreakerState is the state of a circuit breaker guarding a store
type BreakerState struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Failures int    `json:"failures"`
}

// BatchOperation is one mutation of a batch
type BatchOperation struct {
	Operation  Operation `json:"operation" validate:"required,oneof=create update delete"`
	Collection string    `json:"collection" validate:"required,identifier"`
	SharedID   string    `json:"sharedId" validate:"required"`
	Payload    Document  `json:"payload,omitempty"`
}

// BatchItemError reports a failed batch item
type BatchItemError struct {
	Index      int       `json:"index"`
	Operation  Operation `json:"operation"`
	Collection string    `json:"collection"`
	SharedID   string    `json:"sharedId"`
	Error      string    `json:"error"`
}

// BatchResult is the result of a batch
type BatchResult struct {
	Total     int              `json:"total"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Errors    []BatchItemError `json:"errors,omitempty"`
}

// OK reports whether every item succeeded
func (r BatchResult) OK() bool {
	return r.Failed == 0
}

// RetryResult reports a manual retry of ledger entries
type RetryResult struct {
	Attempted int             `json:"attempted"`
	Recovered int             `json:"recovered"`
	Remaining []FailureRecord `json:"remaining,omitempty"`
}
