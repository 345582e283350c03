package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/taskflow/taskflow/internal/domain"
	"github.com/taskflow/taskflow/internal/pkg/database"
)

const defaultFailureLimit = 100

// FailureRepository persists the sync failure ledger in sync_failures
type FailureRepository struct {
	db *database.PostgresDB
}

// NewFailureRepository creates a new failure repository
func NewFailureRepository(db *database.PostgresDB) *FailureRepository {
	return &FailureRepository{db: db}
}

// Name implements dualwrite.FailureSink
func (r *FailureRepository) Name() string {
	return "postgres"
}

// Deliver implements dualwrite.FailureSink
func (r *FailureRepository) Deliver(ctx context.Context, rec domain.FailureRecord) error {
	return r.Save(ctx, rec)
}

// Save stores a failure record. Saving the same record twice is a no-op.
func (r *FailureRepository) Save(ctx context.Context, rec domain.FailureRecord) error {
	query := `
		INSERT INTO sync_failures (id, collection, shared_id, operation, store, error, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.db.Pool.Exec(ctx, query,
		rec.ID,
		rec.Collection,
		rec.SharedID,
		string(rec.Operation),
		string(rec.Store),
		rec.Error,
		rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save sync failure: %w", err)
	}
	return nil
}

// List returns failures matching the filter, newest first
func (r *FailureRepository) List(ctx context.Context, filter domain.FailureFilter) ([]domain.FailureRecord, error) {
	query, args := buildFailureQuery(filter)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync failures: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.FailureRecord, error) {
		var rec domain.FailureRecord
		var op, store string
		err := row.Scan(&rec.ID, &rec.Collection, &rec.SharedID, &op, &store, &rec.Error, &rec.Timestamp)
		rec.Operation = domain.Operation(op)
		rec.Store = domain.StoreKind(store)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan sync failures: %w", err)
	}
	return records, nil
}

// Delete removes failures by id and returns how many were removed
func (r *FailureRepository) Delete(ctx context.Context, ids ...string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM sync_failures WHERE id = ANY($1)", ids)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sync failures: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteAll removes every failure
func (r *FailureRepository) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM sync_failures")
	if err != nil {
		return 0, fmt.Errorf("failed to clear sync failures: %w", err)
	}
	return tag.RowsAffected(), nil
}

func buildFailureQuery(filter domain.FailureFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if filter.Collection != "" {
		add("collection", filter.Collection)
	}
	if filter.SharedID != "" {
		add("shared_id", filter.SharedID)
	}
	if filter.Operation != "" {
		add("operation", string(filter.Operation))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultFailureLimit
	}
	args = append(args, limit)

	query := "SELECT id, collection, shared_id, operation, store, error, timestamp FROM sync_failures"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", len(args))
	return query, args
}
