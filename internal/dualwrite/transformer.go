package dualwrite

import (
	"fmt"
	"time"

	"github.com/taskflow/taskflow/internal/domain"
	apperrors "github.com/taskflow/taskflow/internal/pkg/errors"
)

// Transformer maps documents to secondary records and back using the
// registered entity mappings. It holds no mutable state.
type Transformer struct {
	registry *Registry
	now      func() time.Time
}

// NewTransformer creates a transformer backed by the registry
func NewTransformer(registry *Registry) *Transformer {
	return &Transformer{registry: registry, now: nowUTC}
}

// ToSecondary builds the full secondary record for a create or upsert.
// Absent fields take their defaults. Unregistered collections fall back to
// GenericRecord.
func (t *Transformer) ToSecondary(collection, id string, doc domain.Document) (domain.Record, error) {
	m, ok := t.registry.Lookup(collection)
	if !ok {
		return t.GenericRecord(collection, id, doc), nil
	}
	return t.transform(m, id, doc, false)
}

// ToSecondaryPatch builds a record holding only the fields present in doc.
// It is used for updates so absent fields are not reset to defaults.
func (t *Transformer) ToSecondaryPatch(collection, id string, doc domain.Document) (domain.Record, error) {
	m, ok := t.registry.Lookup(collection)
	if !ok {
		return t.GenericRecord(collection, id, doc), nil
	}
	return t.transform(m, id, doc, true)
}

// ToSecondaryFromScratch builds a full record for a document read back from
// the primary store, taking the shared identifier from its _id.
func (t *Transformer) ToSecondaryFromScratch(collection string, doc domain.Document) (domain.Record, error) {
	raw, ok := doc[domain.PrimaryIDField]
	if !ok || raw == nil {
		return domain.Record{}, apperrors.Validation(fmt.Sprintf("%s document has no %s", collection, domain.PrimaryIDField))
	}
	return t.ToSecondary(collection, stringify(raw), doc)
}

// ToPrimary maps a secondary row back to the document shape. Sync columns
// are dropped and mongo_id becomes _id.
func (t *Transformer) ToPrimary(collection string, row domain.Row) domain.Document {
	doc := make(domain.Document, len(row))
	if id, ok := row[domain.ColumnSharedID]; ok {
		doc[domain.PrimaryIDField] = id
	}

	m, ok := t.registry.Lookup(collection)
	if !ok {
		for col, v := range row {
			if !isReservedColumn(col) {
				doc[col] = v
			}
		}
		return doc
	}

	for _, f := range m.Fields {
		v, present := row[f.Column]
		if !present {
			continue
		}
		if f.Reverse != nil {
			if rv, err := f.Reverse(v); err == nil {
				v = rv
			}
		}
		doc[f.Source] = v
	}
	return doc
}

// GenericRecord is the lossy fallback for collections without a mapping:
// _id is dropped, keys are converted to snake_case and id-like values are
// stringified.
func (t *Transformer) GenericRecord(collection, id string, doc domain.Document) domain.Record {
	values := make(domain.Row, len(doc)+4)
	for k, v := range doc {
		if k == domain.PrimaryIDField {
			continue
		}
		values[snakeCase(k)] = normalizeIdentifier(v)
	}
	t.stamp(values, id)
	return domain.Record{Table: "postgres_" + normalizeName(collection), Values: values}
}

func (t *Transformer) transform(m EntityMapping, id string, doc domain.Document, patch bool) (domain.Record, error) {
	values := make(domain.Row, len(m.Fields)+4)

	for _, f := range m.Fields {
		v, present := lookupField(doc, f)
		if !present {
			if patch {
				continue
			}
			if f.Required {
				return domain.Record{}, apperrors.Validation(fmt.Sprintf("%s: field %q is required", m.Name, f.Source))
			}
			v = f.defaultValue()
		}

		if f.Convert != nil {
			converted, err := f.Convert(v)
			if err != nil {
				return domain.Record{}, fmt.Errorf("%s.%s: %w", m.Name, f.Source, err)
			}
			v = converted
		}
		values[f.Column] = v
	}
	t.stamp(values, id)

	rec := domain.Record{Table: m.Table.Name, Values: values}
	for _, c := range m.Children {
		raw, present := doc[c.Source]
		if !present && patch {
			continue
		}
		set, err := buildChildSet(c, id, raw)
		if err != nil {
			return domain.Record{}, fmt.Errorf("%s.%s: %w", m.Name, c.Source, err)
		}
		rec.Children = append(rec.Children, set)
	}
	return rec, nil
}

func (t *Transformer) stamp(values domain.Row, id string) {
	values[domain.ColumnSharedID] = id
	values[domain.ColumnSyncStatus] = string(domain.SyncStatusSynced)
	values[domain.ColumnSyncError] = nil
	values[domain.ColumnLastSyncAt] = t.now()
}

func (f FieldSpec) defaultValue() any {
	if f.DefaultFunc != nil {
		return f.DefaultFunc()
	}
	return f.Default
}

func lookupField(doc domain.Document, f FieldSpec) (any, bool) {
	if v, ok := doc[f.Source]; ok {
		return v, true
	}
	for _, alias := range f.Aliases {
		if v, ok := doc[alias]; ok {
			return v, true
		}
	}
	return nil, false
}

func buildChildSet(c ChildSpec, parentID string, raw any) (domain.ChildSet, error) {
	set := domain.ChildSet{Table: c.Table, ForeignKey: c.ForeignKey}

	var items []any
	switch v := raw.(type) {
	case nil:
	case []any:
		items = v
	case []string:
		for _, s := range v {
			items = append(items, s)
		}
	default:
		return set, apperrors.Validation(fmt.Sprintf("expected a list, got %T", raw))
	}

	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		value := any(stringify(item))
		if c.Convert != nil {
			converted, err := c.Convert(item)
			if err != nil {
				return set, err
			}
			value = converted
		}
		key := stringify(value)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		set.Rows = append(set.Rows, domain.Row{
			c.ForeignKey:  parentID,
			c.ValueColumn: value,
		})
	}
	return set, nil
}
