package dualwrite

import (
	"context"
	"errors"

	"github.com/taskflow/taskflow/internal/domain"
)

// ErrNotFound is returned by stores when the addressed record does not exist
var ErrNotFound = errors.New("record not found")

// Flag is a boolean field together with the value that marks a record as
// deleted. is_deleted uses true, is_active uses false.
type Flag struct {
	Name  string
	Value bool
	// Touch is the update timestamp key stamped alongside the flag. Empty
	// leaves timestamps alone.
	Touch string
}

// IsZero reports whether no flag is set
func (f Flag) IsZero() bool {
	return f.Name == ""
}

// ScanFilter narrows counts and scans of the primary store. When Exclude
// is set, documents whose flag field equals the deleted value are skipped.
type ScanFilter struct {
	Exclude Flag
}

// PrimaryStore is the document store. Collections are addressed by their
// logical name and documents by the shared identifier stored in _id.
type PrimaryStore interface {
	// Insert stores doc under id. An existing document with the same id is
	// treated as success.
	Insert(ctx context.Context, collection, id string, doc domain.Document) error
	// Update sets the given fields. Returns ErrNotFound when no document matches.
	Update(ctx context.Context, collection, id string, doc domain.Document) error
	// Delete removes the document. Returns ErrNotFound when no document matches.
	Delete(ctx context.Context, collection, id string) error
	// SoftDelete sets the flag to its deleted value. Returns ErrNotFound
	// when no document matches.
	SoftDelete(ctx context.Context, collection, id string, flag Flag) error
	Get(ctx context.Context, collection, id string) (domain.Document, error)
	Count(ctx context.Context, collection string, filter ScanFilter) (int64, error)
	// Scan calls fn for every matching document. Returning an error from fn
	// stops the scan.
	Scan(ctx context.Context, collection string, filter ScanFilter, fn func(domain.Document) error) error
}

// SecondaryStore is the relational store. Rows are addressed by table and
// the mongo_id column.
type SecondaryStore interface {
	// Insert writes the record and its child sets. An existing row with the
	// same shared identifier is left untouched and treated as success.
	Insert(ctx context.Context, rec domain.Record) error
	// Update writes only the columns present in rec. Returns ErrNotFound
	// when no row matches.
	Update(ctx context.Context, rec domain.Record) error
	// Upsert inserts or fully overwrites the row.
	Upsert(ctx context.Context, rec domain.Record) error
	// Delete removes the row. Returns ErrNotFound when no row matches.
	Delete(ctx context.Context, table, id string) error
	// SoftDelete sets the flag column to its deleted value and marks the
	// row SYNCED. Returns ErrNotFound when no row matches.
	SoftDelete(ctx context.Context, table, id string, flag Flag) error
	Get(ctx context.Context, table, id string) (domain.Row, error)
	Exists(ctx context.Context, table, id string) (bool, error)
	Count(ctx context.Context, table string) (int64, error)
	TableExists(ctx context.Context, table string) (bool, error)
	// MarkFailed flags the row as FAILED with reason in sync_error
	MarkFailed(ctx context.Context, table, id, reason string) error
}
