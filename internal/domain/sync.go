package domain

import "time"

// Document is a record in the primary document store shape
type Document map[string]any

// Row is a record in the secondary relational store shape, column to value
type Row map[string]any

// Clone returns a shallow copy of the document
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// SyncStatus is the per-row synchronization marker in the secondary store
type SyncStatus string

const (
	SyncStatusSynced  SyncStatus = "SYNCED"
	SyncStatusPending SyncStatus = "PENDING"
	SyncStatusFailed  SyncStatus = "FAILED"
)

// IsValid checks if the sync status is valid
func (s SyncStatus) IsValid() bool {
	switch s {
	case SyncStatusSynced, SyncStatusPending, SyncStatusFailed:
		return true
	}
	return false
}

// StoreKind identifies which store an outcome or failure belongs to
type StoreKind string

const (
	StorePrimary   StoreKind = "primary"
	StoreSecondary StoreKind = "secondary"
	StoreBoth      StoreKind = "both"
	// StoreNone is used for failures raised before any store was touched
	StoreNone StoreKind = "none"
)

// Operation is a mutation kind
type Operation string

const (
	OperationCreate     Operation = "create"
	OperationUpdate     Operation = "update"
	OperationDelete     Operation = "delete"
	OperationCompensate Operation = "compensate"
	OperationReconcile  Operation = "reconcile"
)

// IsValid checks if the operation can be submitted by a caller
func (o Operation) IsValid() bool {
	switch o {
	case OperationCreate, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

// Column names stamped on every secondary row
const (
	ColumnSharedID   = "mongo_id"
	ColumnSyncStatus = "sync_status"
	ColumnSyncError  = "sync_error"
	ColumnLastSyncAt = "last_sync_at"
)

// PrimaryIDField is the document key holding the shared identifier
const PrimaryIDField = "_id"

// ChildSet is a replace-all set of junction rows owned by a parent row.
// Rows are matched to the parent through ForeignKey, which holds the
// parent's shared identifier.
type ChildSet struct {
	Table      string `json:"table"`
	ForeignKey string `json:"foreignKey"`
	Rows       []Row  `json:"rows"`
}

// Record is a transformed secondary write: the parent row plus child sets
type Record struct {
	Table    string     `json:"table"`
	Values   Row        `json:"values"`
	Children []ChildSet `json:"children,omitempty"`
}

// SharedID returns the row's shared identifier
func (r Record) SharedID() string {
	s, _ := r.Values[ColumnSharedID].(string)
	return s
}

// FailureRecord is one entry of the sync failure ledger
type FailureRecord struct {
	ID         string    `json:"id" ch:"id"`
	Collection string    `json:"collection" ch:"collection"`
	SharedID   string    `json:"sharedId" ch:"shared_id"`
	Operation  Operation `json:"operation" ch:"operation"`
	Store      StoreKind `json:"store" ch:"store"`
	Error      string    `json:"error" ch:"error"`
	Timestamp  time.Time `json:"timestamp" ch:"timestamp"`
}

// FailureFilter narrows a ledger query
type FailureFilter struct {
	Collection string
	SharedID   string
	Operation  Operation
	Limit      int
}

// Matches reports whether r satisfies the filter
func (f FailureFilter) Matches(r FailureRecord) bool {
	if f.Collection != "" && r.Collection != f.Collection {
		return false
	}
	if f.SharedID != "" && r.SharedID != f.SharedID {
		return false
	}
	if f.Operation != "" && r.Operation != f.Operation {
		return false
	}
	return true
}

// WriteOutcome is the result of one store's part of a coordinated write
type WriteOutcome struct {
	Store StoreKind
	ID    string
	Err   error
}

// OK reports whether the store accepted the write
func (o WriteOutcome) OK() bool {
	return o.Err == nil
}

// SyncEventKind distinguishes analytic sync events
type SyncEventKind string

const (
	SyncEventFailure   SyncEventKind = "failure"
	SyncEventReconcile SyncEventKind = "reconcile"
)

// SyncEvent is the analytic projection of a failure or a reconciliation pass
type SyncEvent struct {
	ID         string        `json:"id" ch:"id"`
	Kind       SyncEventKind `json:"kind" ch:"kind"`
	Collection string        `json:"collection" ch:"collection"`
	SharedID   string        `json:"sharedId" ch:"shared_id"`
	Operation  string        `json:"operation" ch:"operation"`
	Store      string        `json:"store" ch:"store"`
	Status     string        `json:"status" ch:"status"`
	Message    string        `json:"message" ch:"message"`
	Inserted   uint32        `json:"inserted" ch:"inserted"`
	Repaired   uint32        `json:"repaired" ch:"repaired"`
	RowErrors  uint32        `json:"rowErrors" ch:"row_errors"`
	DurationMs uint64        `json:"durationMs" ch:"duration_ms"`
	Timestamp  time.Time     `json:"timestamp" ch:"timestamp"`
}

// NewFailureEvent projects a ledger record into a sync event
func NewFailureEvent(r FailureRecord) SyncEvent {
	return SyncEvent{
		ID:         r.ID,
		Kind:       SyncEventFailure,
		Collection: r.Collection,
		SharedID:   r.SharedID,
		Operation:  string(r.Operation),
		Store:      string(r.Store),
		Status:     string(SyncStatusFailed),
		Message:    r.Error,
		Timestamp:  r.Timestamp,
	}
}
