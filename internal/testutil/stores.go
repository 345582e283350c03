package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/taskflow/taskflow/internal/domain"
	"github.com/taskflow/taskflow/internal/dualwrite"
)

// Operation names accepted by the fault injection methods
const (
	OpInsert      = "insert"
	OpUpdate      = "update"
	OpUpsert      = "upsert"
	OpDelete      = "delete"
	OpSoftDelete  = "soft_delete"
	OpGet         = "get"
	OpExists      = "exists"
	OpCount       = "count"
	OpScan        = "scan"
	OpTableExists = "table_exists"
	OpMarkFailed  = "mark_failed"
)

// MemoryPrimary is an in-memory dualwrite.PrimaryStore
type MemoryPrimary struct {
	Faults

	mu   sync.Mutex
	docs map[string]map[string]domain.Document
}

// NewMemoryPrimary creates an empty primary store
func NewMemoryPrimary() *MemoryPrimary {
	return &MemoryPrimary{docs: make(map[string]map[string]domain.Document)}
}

var _ dualwrite.PrimaryStore = (*MemoryPrimary)(nil)

// Seed stores doc without fault injection
func (p *MemoryPrimary) Seed(collection, id string, doc domain.Document) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.put(collection, id, doc)
}

// Doc returns a copy of the stored document
func (p *MemoryPrimary) Doc(collection, id string) (domain.Document, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	doc, ok := p.docs[collection][id]
	if !ok {
		return nil, false
	}
	return doc.Clone(), true
}

// Len returns the number of documents in a collection
func (p *MemoryPrimary) Len(collection string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.docs[collection])
}

func (p *MemoryPrimary) put(collection, id string, doc domain.Document) {
	if p.docs[collection] == nil {
		p.docs[collection] = make(map[string]domain.Document)
	}
	stored := doc.Clone()
	stored[domain.PrimaryIDField] = id
	p.docs[collection][id] = stored
}

// Insert implements dualwrite.PrimaryStore
func (p *MemoryPrimary) Insert(_ context.Context, collection, id string, doc domain.Document) error {
	if err := p.check(OpInsert); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.docs[collection][id]; exists {
		return nil
	}
	p.put(collection, id, doc)
	return nil
}

// Update implements dualwrite.PrimaryStore
func (p *MemoryPrimary) Update(_ context.Context, collection, id string, doc domain.Document) error {
	if err := p.check(OpUpdate); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	stored, ok := p.docs[collection][id]
	if !ok {
		return dualwrite.ErrNotFound
	}
	for k, v := range doc {
		if k == domain.PrimaryIDField {
			continue
		}
		stored[k] = v
	}
	return nil
}

// Delete implements dualwrite.PrimaryStore
func (p *MemoryPrimary) Delete(_ context.Context, collection, id string) error {
	if err := p.check(OpDelete); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.docs[collection][id]; !ok {
		return dualwrite.ErrNotFound
	}
	delete(p.docs[collection], id)
	return nil
}

// SoftDelete implements dualwrite.PrimaryStore
func (p *MemoryPrimary) SoftDelete(_ context.Context, collection, id string, flag dualwrite.Flag) error {
	if err := p.check(OpSoftDelete); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	stored, ok := p.docs[collection][id]
	if !ok {
		return dualwrite.ErrNotFound
	}
	stored[flag.Name] = flag.Value
	if flag.Touch != "" {
		stored[flag.Touch] = time.Now().UTC()
	}
	return nil
}

// Get implements dualwrite.PrimaryStore
func (p *MemoryPrimary) Get(_ context.Context, collection, id string) (domain.Document, error) {
	if err := p.check(OpGet); err != nil {
		return nil, err
	}
	doc, ok := p.Doc(collection, id)
	if !ok {
		return nil, dualwrite.ErrNotFound
	}
	return doc, nil
}

// Count implements dualwrite.PrimaryStore
func (p *MemoryPrimary) Count(_ context.Context, collection string, filter dualwrite.ScanFilter) (int64, error) {
	if err := p.check(OpCount); err != nil {
		return 0, err
	}
	return int64(len(p.matching(collection, filter))), nil
}

// Scan implements dualwrite.PrimaryStore. Documents are visited in id order.
func (p *MemoryPrimary) Scan(_ context.Context, collection string, filter dualwrite.ScanFilter, fn func(domain.Document) error) error {
	if err := p.check(OpScan); err != nil {
		return err
	}
	for _, doc := range p.matching(collection, filter) {
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

func (p *MemoryPrimary) matching(collection string, filter dualwrite.ScanFilter) []domain.Document {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, 0, len(p.docs[collection]))
	for id, doc := range p.docs[collection] {
		if !filter.Exclude.IsZero() {
			if v, ok := doc[filter.Exclude.Name].(bool); ok && v == filter.Exclude.Value {
				continue
			}
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]domain.Document, 0, len(ids))
	for _, id := range ids {
		out = append(out, p.docs[collection][id].Clone())
	}
	return out
}

// MemorySecondary is an in-memory dualwrite.SecondaryStore. Child rows are
// kept per child table and replaced wholesale on every write that carries
// the child set.
type MemorySecondary struct {
	Faults

	mu       sync.Mutex
	rows     map[string]map[string]domain.Row
	children map[string]map[string][]domain.Row
	missing  map[string]bool
}

// NewMemorySecondary creates an empty secondary store
func NewMemorySecondary() *MemorySecondary {
	return &MemorySecondary{
		rows:     make(map[string]map[string]domain.Row),
		children: make(map[string]map[string][]domain.Row),
		missing:  make(map[string]bool),
	}
}

var _ dualwrite.SecondaryStore = (*MemorySecondary)(nil)

// DropTable makes TableExists report false for table
func (s *MemorySecondary) DropTable(table string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missing[table] = true
	delete(s.rows, table)
}

// Seed stores a row without fault injection
func (s *MemorySecondary) Seed(table, id string, row domain.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := copyRow(row)
	stored[domain.ColumnSharedID] = id
	s.table(table)[id] = stored
}

// Row returns a copy of the stored row
func (s *MemorySecondary) Row(table, id string) (domain.Row, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[table][id]
	if !ok {
		return nil, false
	}
	return copyRow(row), true
}

// Children returns the child rows owned by parent id in a child table
func (s *MemorySecondary) Children(table, id string) []domain.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Row, 0, len(s.children[table][id]))
	for _, r := range s.children[table][id] {
		out = append(out, copyRow(r))
	}
	return out
}

// Len returns the number of rows in a table
func (s *MemorySecondary) Len(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows[table])
}

func (s *MemorySecondary) table(name string) map[string]domain.Row {
	if s.rows[name] == nil {
		s.rows[name] = make(map[string]domain.Row)
	}
	return s.rows[name]
}

func (s *MemorySecondary) replaceChildren(id string, sets []domain.ChildSet) {
	for _, set := range sets {
		if s.children[set.Table] == nil {
			s.children[set.Table] = make(map[string][]domain.Row)
		}
		rows := make([]domain.Row, 0, len(set.Rows))
		for _, r := range set.Rows {
			rows = append(rows, copyRow(r))
		}
		s.children[set.Table][id] = rows
	}
}

// Insert implements dualwrite.SecondaryStore
func (s *MemorySecondary) Insert(_ context.Context, rec domain.Record) error {
	if err := s.check(OpInsert); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := rec.SharedID()
	rows := s.table(rec.Table)
	if _, exists := rows[id]; exists {
		return nil
	}
	rows[id] = copyRow(rec.Values)
	s.replaceChildren(id, rec.Children)
	return nil
}

// Update implements dualwrite.SecondaryStore
func (s *MemorySecondary) Update(_ context.Context, rec domain.Record) error {
	if err := s.check(OpUpdate); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := rec.SharedID()
	stored, ok := s.rows[rec.Table][id]
	if !ok {
		return dualwrite.ErrNotFound
	}
	for k, v := range rec.Values {
		stored[k] = v
	}
	s.replaceChildren(id, rec.Children)
	return nil
}

// Upsert implements dualwrite.SecondaryStore
func (s *MemorySecondary) Upsert(_ context.Context, rec domain.Record) error {
	if err := s.check(OpUpsert); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := rec.SharedID()
	s.table(rec.Table)[id] = copyRow(rec.Values)
	s.replaceChildren(id, rec.Children)
	return nil
}

// Delete implements dualwrite.SecondaryStore
func (s *MemorySecondary) Delete(_ context.Context, table, id string) error {
	if err := s.check(OpDelete); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[table][id]; !ok {
		return dualwrite.ErrNotFound
	}
	delete(s.rows[table], id)
	for _, byParent := range s.children {
		delete(byParent, id)
	}
	return nil
}

// SoftDelete implements dualwrite.SecondaryStore
func (s *MemorySecondary) SoftDelete(_ context.Context, table, id string, flag dualwrite.Flag) error {
	if err := s.check(OpSoftDelete); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.rows[table][id]
	if !ok {
		return dualwrite.ErrNotFound
	}
	stored[flag.Name] = flag.Value
	stored[domain.ColumnSyncStatus] = string(domain.SyncStatusSynced)
	stored[domain.ColumnSyncError] = nil
	return nil
}

// Get implements dualwrite.SecondaryStore
func (s *MemorySecondary) Get(_ context.Context, table, id string) (domain.Row, error) {
	if err := s.check(OpGet); err != nil {
		return nil, err
	}
	row, ok := s.Row(table, id)
	if !ok {
		return nil, dualwrite.ErrNotFound
	}
	return row, nil
}

// Exists implements dualwrite.SecondaryStore
func (s *MemorySecondary) Exists(_ context.Context, table, id string) (bool, error) {
	if err := s.check(OpExists); err != nil {
		return false, err
	}
	_, ok := s.Row(table, id)
	return ok, nil
}

// Count implements dualwrite.SecondaryStore
func (s *MemorySecondary) Count(_ context.Context, table string) (int64, error) {
	if err := s.check(OpCount); err != nil {
		return 0, err
	}
	return int64(s.Len(table)), nil
}

// TableExists implements dualwrite.SecondaryStore
func (s *MemorySecondary) TableExists(_ context.Context, table string) (bool, error) {
	if err := s.check(OpTableExists); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.missing[table], nil
}

// MarkFailed implements dualwrite.SecondaryStore
func (s *MemorySecondary) MarkFailed(_ context.Context, table, id, reason string) error {
	if err := s.check(OpMarkFailed); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.rows[table][id]
	if !ok {
		return dualwrite.ErrNotFound
	}
	stored[domain.ColumnSyncStatus] = string(domain.SyncStatusFailed)
	stored[domain.ColumnSyncError] = reason
	return nil
}

func copyRow(r domain.Row) domain.Row {
	out := make(domain.Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
