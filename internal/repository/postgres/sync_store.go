package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/taskflow/taskflow/internal/domain"
	"github.com/taskflow/taskflow/internal/dualwrite"
	"github.com/taskflow/taskflow/internal/pkg/database"
)

// SyncStore is the secondary store backed by PostgreSQL. Every table is
// keyed by the unique mongo_id column; child sets are replaced inside the
// same transaction as their parent row.
type SyncStore struct {
	db       *database.PostgresDB
	registry *dualwrite.Registry
}

// NewSyncStore creates a new sync store. The registry supplies the child
// tables to clean up when a parent row is deleted.
func NewSyncStore(db *database.PostgresDB, registry *dualwrite.Registry) *SyncStore {
	return &SyncStore{db: db, registry: registry}
}

var _ dualwrite.SecondaryStore = (*SyncStore)(nil)

// Insert writes the row unless one with the same mongo_id exists. Child
// sets are only written together with a new row.
func (s *SyncStore) Insert(ctx context.Context, rec domain.Record) error {
	query, args := buildInsert(rec.Table, rec.Values, "ON CONFLICT (mongo_id) DO NOTHING")

	return database.Transaction(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to insert into %s: %w", rec.Table, err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		return replaceChildren(ctx, tx, rec.SharedID(), rec.Children)
	})
}

// Update writes the columns present in rec
func (s *SyncStore) Update(ctx context.Context, rec domain.Record) error {
	query, args := buildUpdate(rec.Table, rec.SharedID(), rec.Values)

	return database.Transaction(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to update %s: %w", rec.Table, err)
		}
		if tag.RowsAffected() == 0 {
			return dualwrite.ErrNotFound
		}
		return replaceChildren(ctx, tx, rec.SharedID(), rec.Children)
	})
}

// Upsert inserts the row or overwrites every column of the existing one
func (s *SyncStore) Upsert(ctx context.Context, rec domain.Record) error {
	query, args := buildInsert(rec.Table, rec.Values, upsertClause(rec.Values))

	return database.Transaction(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to upsert into %s: %w", rec.Table, err)
		}
		return replaceChildren(ctx, tx, rec.SharedID(), rec.Children)
	})
}

// Delete removes the row and its child rows
func (s *SyncStore) Delete(ctx context.Context, table, sharedID string) error {
	var children []dualwrite.ChildSpec
	if m, ok := s.registry.LookupTable(table); ok {
		children = m.Children
	}

	return database.Transaction(ctx, s.db, func(tx pgx.Tx) error {
		for _, c := range children {
			query := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", ident(c.Table), ident(c.ForeignKey))
			if _, err := tx.Exec(ctx, query, sharedID); err != nil {
				return fmt.Errorf("failed to delete from %s: %w", c.Table, err)
			}
		}

		query := fmt.Sprintf("DELETE FROM %s WHERE mongo_id = $1", ident(table))
		tag, err := tx.Exec(ctx, query, sharedID)
		if err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
		if tag.RowsAffected() == 0 {
			return dualwrite.ErrNotFound
		}
		return nil
	})
}

// SoftDelete sets the flag column and marks the row SYNCED
func (s *SyncStore) SoftDelete(ctx context.Context, table, sharedID string, flag dualwrite.Flag) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET %s = $1, sync_status = $2, sync_error = NULL, last_sync_at = NOW()
		WHERE mongo_id = $3
	`, ident(table), ident(flag.Name))

	tag, err := s.db.Pool.Exec(ctx, query, flag.Value, string(domain.SyncStatusSynced), sharedID)
	if err != nil {
		return fmt.Errorf("failed to soft delete from %s: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return dualwrite.ErrNotFound
	}
	return nil
}

// Get returns the row as a column map
func (s *SyncStore) Get(ctx context.Context, table, sharedID string) (domain.Row, error) {
	query := fmt.Sprintf("SELECT * FROM %s WHERE mongo_id = $1", ident(table))

	rows, err := s.db.Pool.Query(ctx, query, sharedID)
	if err != nil {
		return nil, fmt.Errorf("failed to get from %s: %w", table, err)
	}
	row, err := pgx.CollectOneRow(rows, pgx.RowToMap)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, dualwrite.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get from %s: %w", table, err)
	}
	return domain.Row(row), nil
}

// Exists reports whether a row with the shared id exists
func (s *SyncStore) Exists(ctx context.Context, table, sharedID string) (bool, error) {
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE mongo_id = $1)", ident(table))

	var exists bool
	if err := s.db.Pool.QueryRow(ctx, query, sharedID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check %s: %w", table, err)
	}
	return exists, nil
}

// Count returns the number of rows in the table
func (s *SyncStore) Count(ctx context.Context, table string) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", ident(table))

	var n int64
	if err := s.db.Pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// TableExists reports whether the table exists in the current schema
func (s *SyncStore) TableExists(ctx context.Context, table string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = $1
		)
	`

	var exists bool
	if err := s.db.Pool.QueryRow(ctx, query, table).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return exists, nil
}

// MarkFailed flags the row as FAILED
func (s *SyncStore) MarkFailed(ctx context.Context, table, sharedID, reason string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET sync_status = $1, sync_error = $2, last_sync_at = NOW()
		WHERE mongo_id = $3
	`, ident(table))

	tag, err := s.db.Pool.Exec(ctx, query, string(domain.SyncStatusFailed), reason, sharedID)
	if err != nil {
		return fmt.Errorf("failed to mark %s row failed: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return dualwrite.ErrNotFound
	}
	return nil
}

func replaceChildren(ctx context.Context, tx pgx.Tx, parentID string, sets []domain.ChildSet) error {
	for _, set := range sets {
		del := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", ident(set.Table), ident(set.ForeignKey))
		if _, err := tx.Exec(ctx, del, parentID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", set.Table, err)
		}
		for _, row := range set.Rows {
			query, args := buildInsert(set.Table, row, "ON CONFLICT DO NOTHING")
			if _, err := tx.Exec(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to insert into %s: %w", set.Table, err)
			}
		}
	}
	return nil
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func sortedColumns(values domain.Row) []string {
	cols := make([]string, 0, len(values))
	for col := range values {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// buildInsert returns an INSERT with columns in sorted order followed by suffix
func buildInsert(table string, values domain.Row, suffix string) (string, []any) {
	cols := sortedColumns(values)
	quoted := make([]string, len(cols))
	params := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		quoted[i] = ident(col)
		params[i] = fmt.Sprintf("$%d", i+1)
		args[i] = values[col]
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		ident(table), strings.Join(quoted, ", "), strings.Join(params, ", "))
	if suffix != "" {
		query += " " + suffix
	}
	return query, args
}

// buildUpdate returns an UPDATE of every column except mongo_id
func buildUpdate(table, sharedID string, values domain.Row) (string, []any) {
	cols := sortedColumns(values)
	sets := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols)+1)
	for _, col := range cols {
		if col == domain.ColumnSharedID {
			continue
		}
		args = append(args, values[col])
		sets = append(sets, fmt.Sprintf("%s = $%d", ident(col), len(args)))
	}
	args = append(args, sharedID)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE mongo_id = $%d",
		ident(table), strings.Join(sets, ", "), len(args))
	return query, args
}

func upsertClause(values domain.Row) string {
	var sets []string
	for _, col := range sortedColumns(values) {
		if col == domain.ColumnSharedID {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", ident(col), ident(col)))
	}
	if len(sets) == 0 {
		return "ON CONFLICT (mongo_id) DO NOTHING"
	}
	return "ON CONFLICT (mongo_id) DO UPDATE SET " + strings.Join(sets, ", ")
}
