package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/taskflow/taskflow/internal/config"
	"github.com/taskflow/taskflow/internal/domain"
	"github.com/taskflow/taskflow/internal/dualwrite"
	"github.com/taskflow/taskflow/internal/testutil"
)

// MockLocker is a mock implementation of Locker
type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	args := m.Called(ctx, key, ttl)
	var release func(context.Context) error
	if f := args.Get(0); f != nil {
		release = f.(func(context.Context) error)
	}
	return release, args.Bool(1), args.Error(2)
}

// MockSyncEventRecorder is a mock implementation of SyncEventRecorder
type MockSyncEventRecorder struct {
	mock.Mock
}

func (m *MockSyncEventRecorder) InsertBatch(ctx context.Context, events []domain.SyncEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

type reconcileHarness struct {
	primary   *testutil.MemoryPrimary
	secondary *testutil.MemorySecondary
	registry  *dualwrite.Registry
	svc       *ReconciliationService
}

func newReconcileHarness(t *testing.T, locker Locker, events SyncEventRecorder) *reconcileHarness {
	t.Helper()
	registry, err := dualwrite.NewDefaultRegistry()
	require.NoError(t, err)

	h := &reconcileHarness{
		primary:   testutil.NewMemoryPrimary(),
		secondary: testutil.NewMemorySecondary(),
		registry:  registry,
	}
	h.svc = NewReconciliationService(h.primary, h.secondary, registry,
		config.SyncConfig{Enabled: true, LockTTL: time.Minute}, locker, events, nil)
	return h
}

func (h *reconcileHarness) seedAssignments(ids ...string) {
	for _, id := range ids {
		h.primary.Seed("task_assignments", id, testutil.NewTaskAssignmentDocument("task-"+id, "user-"+id))
	}
}

func assignmentsOnly() domain.ReconcileOptions {
	return domain.ReconcileOptions{Entities: []string{"task_assignments"}}
}

func TestReconciliationService_BackfillsMissingRows(t *testing.T) {
	h := newReconcileHarness(t, nil, nil)
	ctx := context.Background()
	h.seedAssignments("A", "B", "C")

	report, ok := h.svc.SyncAll(ctx, assignmentsOnly())
	require.True(t, ok)
	require.Len(t, report.Entities, 1)

	er := report.Entities[0]
	assert.Equal(t, domain.EntitySyncCompleted, er.Status)
	assert.Equal(t, int64(3), er.PrimaryCount)
	assert.Equal(t, int64(0), er.SecondaryCount)
	assert.Equal(t, 3, er.Inserted)
	assert.Equal(t, 3, h.secondary.Len(dualwrite.TableTaskAssignments))

	for _, id := range []string{"A", "B", "C"} {
		row, found := h.secondary.Row(dualwrite.TableTaskAssignments, id)
		require.True(t, found, id)
		assert.Equal(t, string(domain.SyncStatusSynced), row[domain.ColumnSyncStatus])
		assert.Equal(t, "task-"+id, row["task_mongo_id"])
	}

	t.Run("second run inserts nothing", func(t *testing.T) {
		report, ok := h.svc.SyncAll(ctx, assignmentsOnly())
		require.True(t, ok)
		assert.Equal(t, domain.EntitySyncSkippedInSync, report.Entities[0].Status)
		assert.Zero(t, report.Entities[0].Inserted)
		assert.Equal(t, 3, h.secondary.Len(dualwrite.TableTaskAssignments))
	})
}

func TestReconciliationService_AllEntities(t *testing.T) {
	h := newReconcileHarness(t, nil, nil)
	ctx := context.Background()

	h.primary.Seed("users", "u1", testutil.NewUserDocument("a@example.com"))
	h.primary.Seed("users", "u2", testutil.NewUserDocument("b@example.com"))
	h.primary.Seed("tasks", "t1", testutil.NewTaskDocument("live"))
	deleted := testutil.NewTaskDocument("gone")
	deleted["isDeleted"] = true
	h.primary.Seed("tasks", "t2", deleted)

	report, ok := h.svc.SyncAll(ctx, domain.ReconcileOptions{})
	require.True(t, ok)
	assert.True(t, report.Success)
	assert.Len(t, report.Entities, h.registry.Len())

	assert.Equal(t, 2, h.secondary.Len(dualwrite.TableUsers))
	assert.Equal(t, 1, h.secondary.Len(dualwrite.TableTasks))
	_, found := h.secondary.Row(dualwrite.TableTasks, "t2")
	assert.False(t, found, "soft-deleted documents are not backfilled")
	assert.Len(t, h.secondary.Children(dualwrite.TableTaskLabels, "t1"), 2)
}

func TestReconciliationService_Disabled(t *testing.T) {
	registry, err := dualwrite.NewDefaultRegistry()
	require.NoError(t, err)
	secondary := testutil.NewMemorySecondary()
	svc := NewReconciliationService(testutil.NewMemoryPrimary(), secondary, registry,
		config.SyncConfig{Enabled: false}, nil, nil, nil)

	report, ok := svc.SyncAll(context.Background(), domain.ReconcileOptions{})
	assert.True(t, ok)
	assert.Equal(t, SkipDisabled, report.Skipped)
	assert.Empty(t, report.Entities)
	assert.Zero(t, secondary.Calls(testutil.OpTableExists))
	assert.False(t, svc.Enabled())
}

func TestReconciliationService_MissingTable(t *testing.T) {
	h := newReconcileHarness(t, nil, nil)
	h.seedAssignments("A")
	h.secondary.DropTable(dualwrite.TableTaskAssignments)

	report, ok := h.svc.SyncAll(context.Background(), assignmentsOnly())
	assert.True(t, ok)
	assert.Equal(t, domain.EntitySyncSkippedNoTable, report.Entities[0].Status)
	assert.Zero(t, h.primary.Calls(testutil.OpCount))
}

func TestReconciliationService_RowErrorsAreSkipped(t *testing.T) {
	h := newReconcileHarness(t, nil, nil)
	ctx := context.Background()
	h.seedAssignments("A", "B", "C")
	h.secondary.FailNext(testutil.OpInsert, 1, errors.New("connection reset"))

	report, ok := h.svc.SyncAll(ctx, assignmentsOnly())
	require.True(t, ok, "row errors do not fail the pass")
	er := report.Entities[0]
	assert.Equal(t, domain.EntitySyncCompletedErrors, er.Status)
	assert.Equal(t, 1, er.RowErrors)
	assert.Equal(t, 2, er.Inserted)
	assert.Equal(t, 3, er.Scanned)

	report, ok = h.svc.SyncAll(ctx, assignmentsOnly())
	require.True(t, ok)
	assert.Equal(t, 1, report.Entities[0].Inserted)
	assert.Equal(t, 3, h.secondary.Len(dualwrite.TableTaskAssignments))
}

func TestReconciliationService_BadDocumentIsRowError(t *testing.T) {
	h := newReconcileHarness(t, nil, nil)
	h.seedAssignments("A")
	bad := testutil.NewTaskAssignmentDocument("task-B", "user-B")
	bad["user_type"] = "robot"
	h.primary.Seed("task_assignments", "B", bad)

	report, ok := h.svc.SyncAll(context.Background(), assignmentsOnly())
	require.True(t, ok)
	assert.Equal(t, 1, report.Entities[0].RowErrors)
	assert.Equal(t, 1, report.Entities[0].Inserted)
}

func TestReconciliationService_EntityFailure(t *testing.T) {
	h := newReconcileHarness(t, nil, nil)
	h.seedAssignments("A")
	h.primary.Seed("users", "u1", testutil.NewUserDocument("a@example.com"))
	h.secondary.FailNext(testutil.OpCount, 1, errors.New("relation is locked"))

	report, ok := h.svc.SyncAll(context.Background(), domain.ReconcileOptions{
		Entities: []string{"task_assignments", "users"},
	})
	assert.False(t, ok)
	assert.False(t, report.Success)
	require.Len(t, report.Entities, 2)
	assert.Equal(t, domain.EntitySyncFailed, report.Entities[0].Status)
	assert.Contains(t, report.Entities[0].Error, "relation is locked")
	assert.Equal(t, domain.EntitySyncCompleted, report.Entities[1].Status, "later entities still run")
	assert.Equal(t, 1, h.secondary.Len(dualwrite.TableUsers))
}

func TestReconciliationService_UnknownEntity(t *testing.T) {
	h := newReconcileHarness(t, nil, nil)

	report, ok := h.svc.SyncAll(context.Background(), domain.ReconcileOptions{Entities: []string{"comments"}})
	assert.False(t, ok)
	assert.Equal(t, domain.EntitySyncFailed, report.Entities[0].Status)
	assert.Contains(t, report.Entities[0].Error, "comments")
}

func TestReconciliationService_Force(t *testing.T) {
	h := newReconcileHarness(t, nil, nil)
	ctx := context.Background()
	h.seedAssignments("A", "B")

	tr := dualwrite.NewTransformer(h.registry)
	for _, id := range []string{"A", "B"} {
		doc, _ := h.primary.Doc("task_assignments", id)
		rec, err := tr.ToSecondary("task_assignments", id, doc)
		require.NoError(t, err)
		h.secondary.Seed(dualwrite.TableTaskAssignments, id, rec.Values)
	}
	h.secondary.Seed(dualwrite.TableTaskAssignments, "Z", domain.Row{"task_mongo_id": "orphan"})

	stale, _ := h.secondary.Row(dualwrite.TableTaskAssignments, "A")
	stale["assignee_id"] = "someone-else"
	h.secondary.Seed(dualwrite.TableTaskAssignments, "A", stale)
	require.NoError(t, h.secondary.MarkFailed(ctx, dualwrite.TableTaskAssignments, "B", "timeout"))

	t.Run("heuristic skips when counts match", func(t *testing.T) {
		report, ok := h.svc.SyncAll(ctx, assignmentsOnly())
		require.True(t, ok)
		assert.Equal(t, domain.EntitySyncSkippedInSync, report.Entities[0].Status)
		row, _ := h.secondary.Row(dualwrite.TableTaskAssignments, "A")
		assert.Equal(t, "someone-else", row["assignee_id"])
	})

	t.Run("force repairs drifted rows", func(t *testing.T) {
		opts := assignmentsOnly()
		opts.Force = true
		report, ok := h.svc.SyncAll(ctx, opts)
		require.True(t, ok)
		assert.True(t, report.Force)

		er := report.Entities[0]
		assert.Equal(t, domain.EntitySyncCompleted, er.Status)
		assert.Equal(t, 2, er.Repaired)
		assert.Zero(t, er.Inserted)

		row, _ := h.secondary.Row(dualwrite.TableTaskAssignments, "A")
		assert.Equal(t, "user-A", row["assignee_id"])
		row, _ = h.secondary.Row(dualwrite.TableTaskAssignments, "B")
		assert.Equal(t, string(domain.SyncStatusSynced), row[domain.ColumnSyncStatus])
	})

	t.Run("forced rerun is a no-op", func(t *testing.T) {
		opts := assignmentsOnly()
		opts.Force = true
		report, ok := h.svc.SyncAll(ctx, opts)
		require.True(t, ok)
		assert.Zero(t, report.Entities[0].Repaired)
		assert.Zero(t, report.Entities[0].Inserted)
	})
}

func TestReconciliationService_Lock(t *testing.T) {
	t.Run("held lock skips", func(t *testing.T) {
		locker := new(MockLocker)
		locker.On("Acquire", mock.Anything, ReconcileLockKey, time.Minute).Return(nil, false, nil)
		h := newReconcileHarness(t, locker, nil)

		report, ok := h.svc.SyncAll(context.Background(), domain.ReconcileOptions{})
		assert.True(t, ok)
		assert.Equal(t, SkipLocked, report.Skipped)
		assert.Zero(t, h.secondary.Calls(testutil.OpTableExists))
		locker.AssertExpectations(t)
	})

	t.Run("lock is released", func(t *testing.T) {
		released := 0
		release := func(context.Context) error {
			released++
			return nil
		}
		locker := new(MockLocker)
		locker.On("Acquire", mock.Anything, ReconcileLockKey, time.Minute).Return(release, true, nil)
		h := newReconcileHarness(t, locker, nil)
		h.seedAssignments("A")

		_, ok := h.svc.SyncAll(context.Background(), assignmentsOnly())
		assert.True(t, ok)
		assert.Equal(t, 1, released)
		assert.Equal(t, 1, h.secondary.Len(dualwrite.TableTaskAssignments))
	})

	t.Run("lock error fails", func(t *testing.T) {
		locker := new(MockLocker)
		locker.On("Acquire", mock.Anything, ReconcileLockKey, time.Minute).Return(nil, false, errors.New("redis down"))
		h := newReconcileHarness(t, locker, nil)

		_, ok := h.svc.SyncAll(context.Background(), domain.ReconcileOptions{})
		assert.False(t, ok)
	})
}

func TestReconciliationService_RecordsEvents(t *testing.T) {
	events := new(MockSyncEventRecorder)
	events.On("InsertBatch", mock.Anything, mock.MatchedBy(func(evs []domain.SyncEvent) bool {
		return len(evs) == 1 &&
			evs[0].Kind == domain.SyncEventReconcile &&
			evs[0].Collection == "task_assignments" &&
			evs[0].Inserted == 2
	})).Return(nil)

	h := newReconcileHarness(t, nil, events)
	h.seedAssignments("A", "B")

	_, ok := h.svc.SyncAll(context.Background(), domain.ReconcileOptions{Entities: []string{"task_assignments"}, Trigger: "test"})
	assert.True(t, ok)
	events.AssertExpectations(t)
}

func TestDrift(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 123456789, time.UTC)

	want := domain.Row{
		"mongo_id":     "A",
		"title":        "a",
		"priority":     2,
		"created_at":   ts,
		"permissions":  json.RawMessage(`{"read":true}`),
		"description":  nil,
		"sync_status":  "SYNCED",
		"last_sync_at": ts,
	}
	got := domain.Row{
		"mongo_id":     "A",
		"title":        "a",
		"priority":     int32(2),
		"created_at":   ts.Truncate(time.Microsecond),
		"permissions":  map[string]any{"read": true},
		"description":  nil,
		"sync_status":  "SYNCED",
		"last_sync_at": time.Now(),
	}
	assert.Empty(t, Drift(want, got))

	got["title"] = "b"
	got["description"] = "now set"
	assert.Equal(t, []string{"description", "title"}, Drift(want, got))

	got = domain.Row{"mongo_id": "A", "sync_status": "FAILED"}
	assert.Contains(t, Drift(domain.Row{"mongo_id": "A"}, got), "sync_status")
}

func TestSameValue(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"both nil", nil, nil, true},
		{"nil and value", nil, "x", false},
		{"int widths", 3, int64(3), true},
		{"different numbers", 3, 4.5, false},
		{"string and number", "3", 3, false},
		{"bools", true, true, true},
		{"json encodings", json.RawMessage(`[1,2]`), []any{float64(1), float64(2)}, true},
		{"time and string", time.Unix(0, 0), "1970", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sameValue(tt.a, tt.b))
		})
	}
}
