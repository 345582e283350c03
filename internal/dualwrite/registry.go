package dualwrite

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/taskflow/taskflow/internal/domain"
	"github.com/taskflow/taskflow/internal/validator"
)

// Converter turns a primary-store value into a secondary-store value
type Converter func(v any) (any, error)

// FieldSpec maps one document field to one column
type FieldSpec struct {
	// Source is the document key. Aliases are tried in order when Source is absent.
	Source  string `validate:"required"`
	Aliases []string
	Column  string `validate:"required"`
	Convert Converter
	// Reverse converts the column value back for the document shape
	Reverse Converter
	// Default is used by full transforms when the field is absent.
	// DefaultFunc takes precedence when set.
	Default     any
	DefaultFunc func() any
	Required    bool
}

// ChildSpec maps a list-valued document field to a replace-all junction table
type ChildSpec struct {
	Source      string `validate:"required"`
	Table       string `validate:"required"`
	ForeignKey  string `validate:"required"`
	ValueColumn string `validate:"required"`
	Convert     Converter
}

// TableDescriptor names the secondary table of an entity
type TableDescriptor struct {
	Name string `validate:"required"`
	// SoftDeleteColumn is the boolean flag column, empty when rows are hard deleted
	SoftDeleteColumn string
}

// EntityMapping describes how one logical collection is mirrored
type EntityMapping struct {
	Name  string `validate:"required,identifier"`
	Table TableDescriptor

	// SoftDeleteField is the document flag. Documents carrying the deleted
	// value are excluded from reconciliation counts and scans.
	SoftDeleteField string
	// SoftDeleteInverted means false marks a deleted record (is_active)
	SoftDeleteInverted bool

	Fields   []FieldSpec `validate:"required,min=1,dive"`
	Children []ChildSpec `validate:"dive"`
}

// Validate checks the mapping for structural errors
func (m EntityMapping) Validate() error {
	if err := validator.Validate(m); err != nil {
		return fmt.Errorf("entity mapping %q: %w", m.Name, err)
	}

	if (m.SoftDeleteField == "") != (m.Table.SoftDeleteColumn == "") {
		return fmt.Errorf("entity mapping %q: soft delete needs both a document field and a column", m.Name)
	}

	columns := make(map[string]string, len(m.Fields))
	for _, f := range m.Fields {
		if prev, dup := columns[f.Column]; dup {
			return fmt.Errorf("entity mapping %q: column %q mapped from both %q and %q", m.Name, f.Column, prev, f.Source)
		}
		if isReservedColumn(f.Column) {
			return fmt.Errorf("entity mapping %q: column %q is managed by the sync layer", m.Name, f.Column)
		}
		columns[f.Column] = f.Source
	}
	return nil
}

// SoftDeletes reports whether the entity uses flag-based deletion
func (m EntityMapping) SoftDeletes() bool {
	return m.SoftDeleteField != ""
}

// PrimaryFlag returns the document soft delete flag
func (m EntityMapping) PrimaryFlag() Flag {
	if m.SoftDeleteField == "" {
		return Flag{}
	}
	return Flag{Name: m.SoftDeleteField, Value: !m.SoftDeleteInverted, Touch: m.touchField()}
}

// touchField returns the key of the updated_at field spelled in the same
// case as the soft delete field.
func (m EntityMapping) touchField() string {
	snake := strings.Contains(m.SoftDeleteField, "_")
	for _, f := range m.Fields {
		if f.Column != "updated_at" {
			continue
		}
		for _, key := range append([]string{f.Source}, f.Aliases...) {
			if strings.Contains(key, "_") == snake {
				return key
			}
		}
		return f.Source
	}
	return ""
}

// SecondaryFlag returns the row soft delete flag
func (m EntityMapping) SecondaryFlag() Flag {
	if m.Table.SoftDeleteColumn == "" {
		return Flag{}
	}
	return Flag{Name: m.Table.SoftDeleteColumn, Value: !m.SoftDeleteInverted}
}

// ScanFilter returns the filter selecting live documents
func (m EntityMapping) ScanFilter() ScanFilter {
	return ScanFilter{Exclude: m.PrimaryFlag()}
}

// Registry holds entity mappings. It is built once at startup and sealed;
// lookups afterwards are read-only.
type Registry struct {
	mu       sync.RWMutex
	mappings map[string]EntityMapping
	sealed   bool
}

// NewRegistry builds and seals a registry from the given mappings
func NewRegistry(mappings ...EntityMapping) (*Registry, error) {
	r := &Registry{mappings: make(map[string]EntityMapping, len(mappings))}
	for _, m := range mappings {
		if err := r.Register(m); err != nil {
			return nil, err
		}
	}
	r.Seal()
	return r, nil
}

// Register adds a mapping. It fails once the registry is sealed.
func (r *Registry) Register(m EntityMapping) error {
	m.Name = normalizeName(m.Name)
	if err := m.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("registry is sealed, cannot register %q", m.Name)
	}
	if _, exists := r.mappings[m.Name]; exists {
		return fmt.Errorf("entity mapping %q already registered", m.Name)
	}
	r.mappings[m.Name] = m
	return nil
}

// Seal prevents further registration
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Lookup returns the mapping for a logical collection name
func (r *Registry) Lookup(name string) (EntityMapping, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.mappings[normalizeName(name)]
	return m, ok
}

// LookupTable returns the mapping owning a secondary table
func (r *Registry) LookupTable(table string) (EntityMapping, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.mappings {
		if m.Table.Name == table {
			return m, true
		}
	}
	return EntityMapping{}, false
}

// Names returns registered collection names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.mappings))
	for name := range r.mappings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered mappings
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.mappings)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func isReservedColumn(col string) bool {
	switch col {
	case domain.ColumnSharedID, domain.ColumnSyncStatus, domain.ColumnSyncError, domain.ColumnLastSyncAt:
		return true
	}
	return false
}

// nowUTC is the default stamp clock
func nowUTC() time.Time {
	return time.Now().UTC()
}
