package dualwrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minimalMapping(name string) EntityMapping {
	return EntityMapping{
		Name:   name,
		Table:  TableDescriptor{Name: "postgres_" + name},
		Fields: []FieldSpec{{Source: "name", Column: "name", Convert: AsString}},
	}
}

func TestNewDefaultRegistry(t *testing.T) {
	r, err := NewDefaultRegistry()
	require.NoError(t, err)

	assert.Equal(t, 11, r.Len())
	assert.Equal(t, []string{
		"audit_logs",
		"labels",
		"roles",
		"task_assignments",
		"tasks",
		"team_creation_invite_codes",
		"teams",
		"user_roles",
		"user_team_details",
		"users",
		"watchlists",
	}, r.Names())

	t.Run("lookup is case insensitive", func(t *testing.T) {
		m, ok := r.Lookup(" Tasks ")
		require.True(t, ok)
		assert.Equal(t, TableTasks, m.Table.Name)
	})

	t.Run("lookup by table", func(t *testing.T) {
		m, ok := r.LookupTable(TableWatchlists)
		require.True(t, ok)
		assert.Equal(t, "watchlists", m.Name)

		_, ok = r.LookupTable("postgres_unknown")
		assert.False(t, ok)
	})

	t.Run("sealed registry rejects registration", func(t *testing.T) {
		err := r.Register(minimalMapping("comments"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sealed")
	})
}

func TestRegistry_Register(t *testing.T) {
	t.Run("duplicate name", func(t *testing.T) {
		_, err := NewRegistry(minimalMapping("notes"), minimalMapping("Notes"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already registered")
	})

	t.Run("unsafe name", func(t *testing.T) {
		_, err := NewRegistry(minimalMapping("notes;drop"))
		require.Error(t, err)
	})
}

func TestEntityMapping_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(m *EntityMapping)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(m *EntityMapping) {},
		},
		{
			name:    "missing table",
			mutate:  func(m *EntityMapping) { m.Table.Name = "" },
			wantErr: "is required",
		},
		{
			name:    "no fields",
			mutate:  func(m *EntityMapping) { m.Fields = nil },
			wantErr: "fields",
		},
		{
			name: "reserved column",
			mutate: func(m *EntityMapping) {
				m.Fields = append(m.Fields, FieldSpec{Source: "sync", Column: "sync_status"})
			},
			wantErr: "managed by the sync layer",
		},
		{
			name: "duplicate column",
			mutate: func(m *EntityMapping) {
				m.Fields = append(m.Fields, FieldSpec{Source: "title", Column: "name"})
			},
			wantErr: `column "name" mapped from both`,
		},
		{
			name:    "soft delete field without column",
			mutate:  func(m *EntityMapping) { m.SoftDeleteField = "isDeleted" },
			wantErr: "soft delete needs both",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := minimalMapping("notes")
			tt.mutate(&m)

			err := m.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEntityMapping_Flags(t *testing.T) {
	r, err := NewDefaultRegistry()
	require.NoError(t, err)

	t.Run("is_deleted style", func(t *testing.T) {
		m, _ := r.Lookup("tasks")
		assert.True(t, m.SoftDeletes())
		assert.Equal(t, Flag{Name: "isDeleted", Value: true, Touch: "updatedAt"}, m.PrimaryFlag())
		assert.Equal(t, Flag{Name: "is_deleted", Value: true}, m.SecondaryFlag())
	})

	t.Run("is_active style", func(t *testing.T) {
		m, _ := r.Lookup("task_assignments")
		assert.Equal(t, Flag{Name: "is_active", Value: false, Touch: "updated_at"}, m.PrimaryFlag())
		assert.Equal(t, Flag{Name: "is_active", Value: false}, m.SecondaryFlag())
		assert.Equal(t, ScanFilter{Exclude: m.PrimaryFlag()}, m.ScanFilter())
	})

	t.Run("touch key follows the document naming", func(t *testing.T) {
		for name, want := range map[string]string{
			"teams":             "updated_at",
			"user_team_details": "updated_at",
			"labels":            "updatedAt",
			"watchlists":        "updatedAt",
		} {
			m, ok := r.Lookup(name)
			require.True(t, ok, name)
			assert.Equal(t, want, m.PrimaryFlag().Touch, name)
		}
	})

	t.Run("hard delete", func(t *testing.T) {
		m, _ := r.Lookup("users")
		assert.False(t, m.SoftDeletes())
		assert.True(t, m.PrimaryFlag().IsZero())
		assert.True(t, m.ScanFilter().Exclude.IsZero())
	})
}
