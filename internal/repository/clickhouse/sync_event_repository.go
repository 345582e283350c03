package clickhouse

import (
	"context"
	"fmt"

	"github.com/taskflow/taskflow/internal/domain"
	"github.com/taskflow/taskflow/internal/pkg/database"
)

const insertSyncEvents = `
	INSERT INTO sync_events (
		id, kind, collection, shared_id, operation, store, status,
		message, inserted, repaired, row_errors, duration_ms, timestamp
	)
`

// SyncEventRepository writes sync failures and reconciliation passes to
// the sync_events table
type SyncEventRepository struct {
	db *database.ClickHouseDB
}

// NewSyncEventRepository creates a new sync event repository
func NewSyncEventRepository(db *database.ClickHouseDB) *SyncEventRepository {
	return &SyncEventRepository{db: db}
}

// Name implements dualwrite.FailureSink
func (r *SyncEventRepository) Name() string {
	return "clickhouse"
}

// Deliver implements dualwrite.FailureSink
func (r *SyncEventRepository) Deliver(ctx context.Context, rec domain.FailureRecord) error {
	return r.InsertBatch(ctx, []domain.SyncEvent{domain.NewFailureEvent(rec)})
}

// InsertBatch inserts multiple events
func (r *SyncEventRepository) InsertBatch(ctx context.Context, events []domain.SyncEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := r.db.PrepareBatch(ctx, insertSyncEvents)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, e := range events {
		if err := batch.Append(
			e.ID,
			string(e.Kind),
			e.Collection,
			e.SharedID,
			e.Operation,
			e.Store,
			e.Status,
			e.Message,
			e.Inserted,
			e.Repaired,
			e.RowErrors,
			e.DurationMs,
			e.Timestamp,
		); err != nil {
			return fmt.Errorf("failed to append to batch: %w", err)
		}
	}

	return batch.Send()
}

// ListRecent returns the newest events, optionally for one collection
func (r *SyncEventRepository) ListRecent(ctx context.Context, collection string, limit int) ([]domain.SyncEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT
			id, kind, collection, shared_id, operation, store, status,
			message, inserted, repaired, row_errors, duration_ms, timestamp
		FROM sync_events
		WHERE (? = '' OR collection = ?)
		ORDER BY timestamp DESC
		LIMIT ?
	`

	var events []domain.SyncEvent
	if err := r.db.Select(ctx, &events, query, collection, collection, limit); err != nil {
		return nil, fmt.Errorf("failed to list sync events: %w", err)
	}
	return events, nil
}
