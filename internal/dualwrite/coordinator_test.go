package dualwrite_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow/taskflow/internal/domain"
	"github.com/taskflow/taskflow/internal/dualwrite"
	apperrors "github.com/taskflow/taskflow/internal/pkg/errors"
	"github.com/taskflow/taskflow/internal/pkg/retry"
	"github.com/taskflow/taskflow/internal/testutil"
)

var errTransient = errors.New("connection reset by peer")

type harness struct {
	primary   *testutil.MemoryPrimary
	secondary *testutil.MemorySecondary
	ledger    *dualwrite.Ledger
	coord     *dualwrite.Coordinator
}

func newHarness(t *testing.T, enabled bool) *harness {
	t.Helper()

	registry, err := dualwrite.NewDefaultRegistry()
	require.NoError(t, err)

	h := &harness{
		primary:   testutil.NewMemoryPrimary(),
		secondary: testutil.NewMemorySecondary(),
		ledger:    dualwrite.NewLedger(nil, 16),
	}
	h.coord = dualwrite.New(h.primary, h.secondary, registry, h.ledger, nil, dualwrite.Options{
		Enabled: enabled,
		Policy: retry.Policy{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
			Multiplier:   2,
		},
		PoolSize: 4,
	})
	return h
}

func (h *harness) failures() []domain.FailureRecord {
	return h.ledger.List(domain.FailureFilter{})
}

func TestCoordinator_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("writes both stores", func(t *testing.T) {
		h := newHarness(t, true)

		err := h.coord.Create(ctx, "tasks", testutil.NewTaskDocument("Write report"), "task-1")
		require.NoError(t, err)

		doc, ok := h.primary.Doc("tasks", "task-1")
		require.True(t, ok)
		assert.Equal(t, "Write report", doc["title"])

		row, ok := h.secondary.Row(dualwrite.TableTasks, "task-1")
		require.True(t, ok)
		assert.Equal(t, "Write report", row["title"])
		assert.Equal(t, "SYNCED", row["sync_status"])
		assert.Len(t, h.secondary.Children(dualwrite.TableTaskLabels, "task-1"), 2)
		assert.Empty(t, h.failures())
	})

	t.Run("is idempotent on the shared id", func(t *testing.T) {
		h := newHarness(t, true)
		payload := testutil.NewUserDocument("a@example.com")

		require.NoError(t, h.coord.Create(ctx, "users", payload, "user-1"))
		require.NoError(t, h.coord.Create(ctx, "users", payload, "user-1"))

		assert.Equal(t, 1, h.primary.Len("users"))
		assert.Equal(t, 1, h.secondary.Len(dualwrite.TableUsers))
	})

	t.Run("recovers from transient failures within the retry budget", func(t *testing.T) {
		h := newHarness(t, true)
		h.secondary.FailNext(testutil.OpInsert, 2, errTransient)

		err := h.coord.Create(ctx, "users", testutil.NewUserDocument("a@example.com"), "user-1")
		require.NoError(t, err)

		assert.Equal(t, 3, h.secondary.Calls(testutil.OpInsert))
		assert.Equal(t, 1, h.secondary.Len(dualwrite.TableUsers))
	})

	t.Run("secondary exhausts retries and the primary write is compensated", func(t *testing.T) {
		h := newHarness(t, true)
		h.secondary.FailAlways(testutil.OpInsert, errTransient)

		payload := testutil.NewTaskAssignmentDocument("task-1", "user-1")
		err := h.coord.Create(ctx, "task_assignments", payload, "X")
		require.Error(t, err)

		var werr *dualwrite.WriteError
		require.ErrorAs(t, err, &werr)
		assert.True(t, werr.Partial())
		assert.True(t, werr.Compensated)
		assert.Equal(t, domain.StoreSecondary, werr.FailedStore())
		assert.ErrorIs(t, err, errTransient)

		assert.Equal(t, 3, h.secondary.Calls(testutil.OpInsert))

		_, getErr := h.primary.Get(ctx, "task_assignments", "X")
		assert.ErrorIs(t, getErr, dualwrite.ErrNotFound)

		failures := h.failures()
		require.Len(t, failures, 1)
		assert.Equal(t, "task_assignments", failures[0].Collection)
		assert.Equal(t, "X", failures[0].SharedID)
		assert.Equal(t, domain.OperationCreate, failures[0].Operation)
		assert.Equal(t, domain.StoreSecondary, failures[0].Store)
	})

	t.Run("primary exhausts retries and the secondary write is compensated", func(t *testing.T) {
		h := newHarness(t, true)
		h.primary.FailAlways(testutil.OpInsert, errTransient)

		err := h.coord.Create(ctx, "users", testutil.NewUserDocument("a@example.com"), "user-1")

		var werr *dualwrite.WriteError
		require.ErrorAs(t, err, &werr)
		assert.True(t, werr.Partial())
		assert.Equal(t, domain.StorePrimary, werr.FailedStore())
		assert.True(t, werr.Compensated)

		_, ok := h.secondary.Row(dualwrite.TableUsers, "user-1")
		assert.False(t, ok)
		assert.Equal(t, 3, h.primary.Calls(testutil.OpInsert))
	})

	t.Run("both stores fail", func(t *testing.T) {
		h := newHarness(t, true)
		h.primary.FailAlways(testutil.OpInsert, errTransient)
		h.secondary.FailAlways(testutil.OpInsert, errTransient)

		err := h.coord.Create(ctx, "users", testutil.NewUserDocument("a@example.com"), "user-1")

		var werr *dualwrite.WriteError
		require.ErrorAs(t, err, &werr)
		assert.False(t, werr.Partial())
		assert.Equal(t, domain.StoreBoth, werr.FailedStore())
		assert.Equal(t, 0, h.primary.Calls(testutil.OpDelete))
		assert.Equal(t, 0, h.secondary.Calls(testutil.OpDelete))

		failures := h.failures()
		require.Len(t, failures, 1)
		assert.Equal(t, domain.StoreBoth, failures[0].Store)
	})

	t.Run("failed compensation is recorded separately", func(t *testing.T) {
		h := newHarness(t, true)
		h.secondary.FailAlways(testutil.OpInsert, errTransient)
		h.primary.FailAlways(testutil.OpDelete, errTransient)

		err := h.coord.Create(ctx, "users", testutil.NewUserDocument("a@example.com"), "user-1")

		var werr *dualwrite.WriteError
		require.ErrorAs(t, err, &werr)
		assert.False(t, werr.Compensated)
		assert.Error(t, werr.CompensationErr)

		_, ok := h.primary.Doc("users", "user-1")
		assert.True(t, ok, "primary record survives a failed compensation")

		failures := h.failures()
		require.Len(t, failures, 2)
		assert.Equal(t, domain.OperationCreate, failures[0].Operation)
		assert.Equal(t, domain.OperationCompensate, failures[1].Operation)
		assert.Equal(t, domain.StorePrimary, failures[1].Store)
	})

	t.Run("permanent errors are not retried", func(t *testing.T) {
		h := newHarness(t, true)
		h.secondary.FailAlways(testutil.OpInsert, retry.Permanent(errors.New("check constraint violated")))

		err := h.coord.Create(ctx, "users", testutil.NewUserDocument("a@example.com"), "user-1")
		require.Error(t, err)
		assert.Equal(t, 1, h.secondary.Calls(testutil.OpInsert))
	})

	t.Run("a panicking store write counts as a failure", func(t *testing.T) {
		h := newHarness(t, true)
		h.secondary.PanicNext(testutil.OpInsert)

		err := h.coord.Create(ctx, "users", testutil.NewUserDocument("a@example.com"), "user-1")

		var werr *dualwrite.WriteError
		require.ErrorAs(t, err, &werr)
		assert.Contains(t, werr.SecondaryErr.Error(), "panicked")
		assert.Equal(t, 0, h.primary.Len("users"))
	})

	t.Run("unmapped collection", func(t *testing.T) {
		h := newHarness(t, true)

		err := h.coord.Create(ctx, "comments", domain.Document{"body": "x"}, "c-1")
		require.Error(t, err)
		assert.True(t, apperrors.IsMappingNotFound(err))
		assert.Equal(t, 0, h.primary.Calls(testutil.OpInsert))

		failures := h.failures()
		require.Len(t, failures, 1)
		assert.Equal(t, domain.StoreNone, failures[0].Store)
	})

	t.Run("transform error touches no store", func(t *testing.T) {
		h := newHarness(t, true)

		err := h.coord.Create(ctx, "tasks", domain.Document{"description": "no title"}, "task-1")
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
		assert.Equal(t, 0, h.primary.Calls(testutil.OpInsert))
		assert.Equal(t, 0, h.secondary.Calls(testutil.OpInsert))
		assert.Len(t, h.failures(), 1)
	})

	t.Run("missing shared id", func(t *testing.T) {
		h := newHarness(t, true)
		err := h.coord.Create(ctx, "users", testutil.NewUserDocument("a@example.com"), "")
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestCoordinator_Disabled(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)
	assert.False(t, h.coord.Enabled())

	// an unmapped collection would fail transformation if it were attempted
	require.NoError(t, h.coord.Create(ctx, "comments", domain.Document{"body": "x"}, "c-1"))
	require.NoError(t, h.coord.Create(ctx, "users", testutil.NewUserDocument("a@example.com"), "user-1"))
	require.NoError(t, h.coord.Update(ctx, "users", domain.Document{"name": "B"}, "user-1"))
	require.NoError(t, h.coord.Delete(ctx, "users", "user-1"))

	assert.Equal(t, 1, h.primary.Len("comments"))
	assert.Equal(t, 0, h.primary.Len("users"))
	for _, op := range []string{testutil.OpInsert, testutil.OpUpdate, testutil.OpUpsert, testutil.OpDelete, testutil.OpSoftDelete} {
		assert.Equal(t, 0, h.secondary.Calls(op), op)
	}

	h.primary.FailAlways(testutil.OpInsert, errTransient)
	err := h.coord.Create(ctx, "users", testutil.NewUserDocument("b@example.com"), "user-2")
	assert.ErrorIs(t, err, errTransient)
	assert.Empty(t, h.failures())
}

func TestCoordinator_Update(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, h *harness) {
		t.Helper()
		require.NoError(t, h.coord.Create(ctx, "tasks", testutil.NewTaskDocument("Write report"), "task-1"))
	}

	t.Run("patches both stores", func(t *testing.T) {
		h := newHarness(t, true)
		seed(t, h)

		err := h.coord.Update(ctx, "tasks", domain.Document{"status": "DONE", "labels": []any{"label-c"}}, "task-1")
		require.NoError(t, err)

		doc, _ := h.primary.Doc("tasks", "task-1")
		assert.Equal(t, "DONE", doc["status"])

		row, _ := h.secondary.Row(dualwrite.TableTasks, "task-1")
		assert.Equal(t, "DONE", row["status"])
		assert.Equal(t, "Write report", row["title"], "fields absent from the update keep their value")
		labels := h.secondary.Children(dualwrite.TableTaskLabels, "task-1")
		require.Len(t, labels, 1)
		assert.Equal(t, "label-c", labels[0]["label_mongo_id"])
	})

	t.Run("missing secondary row is created", func(t *testing.T) {
		h := newHarness(t, true)
		h.primary.Seed("tasks", "task-1", testutil.NewTaskDocument("Write report"))

		err := h.coord.Update(ctx, "tasks", domain.Document{"title": "Renamed"}, "task-1")
		require.NoError(t, err)

		row, ok := h.secondary.Row(dualwrite.TableTasks, "task-1")
		require.True(t, ok)
		assert.Equal(t, "Renamed", row["title"])
		assert.Equal(t, "SYNCED", row["sync_status"])
	})

	t.Run("secondary failure is repaired by an upsert from the primary document", func(t *testing.T) {
		h := newHarness(t, true)
		seed(t, h)
		h.secondary.FailAlways(testutil.OpUpdate, errTransient)

		err := h.coord.Update(ctx, "tasks", domain.Document{"status": "BLOCKED"}, "task-1")
		require.NoError(t, err)

		assert.Equal(t, 3, h.secondary.Calls(testutil.OpUpdate))
		row, _ := h.secondary.Row(dualwrite.TableTasks, "task-1")
		assert.Equal(t, "BLOCKED", row["status"])
		assert.Equal(t, "Write report", row["title"])
		assert.Empty(t, h.failures())
	})

	t.Run("failed upsert marks the row FAILED", func(t *testing.T) {
		h := newHarness(t, true)
		seed(t, h)
		h.secondary.FailAlways(testutil.OpUpdate, errTransient)
		h.secondary.FailAlways(testutil.OpUpsert, errTransient)

		err := h.coord.Update(ctx, "tasks", domain.Document{"status": "BLOCKED"}, "task-1")

		var werr *dualwrite.WriteError
		require.ErrorAs(t, err, &werr)
		assert.Equal(t, domain.StoreSecondary, werr.FailedStore())

		row, _ := h.secondary.Row(dualwrite.TableTasks, "task-1")
		assert.Equal(t, "FAILED", row["sync_status"])
		assert.NotEmpty(t, row["sync_error"])

		doc, _ := h.primary.Doc("tasks", "task-1")
		assert.Equal(t, "BLOCKED", doc["status"], "primary update is not rolled back")
		assert.Len(t, h.failures(), 1)
	})

	t.Run("primary failure marks the row FAILED", func(t *testing.T) {
		h := newHarness(t, true)
		seed(t, h)
		h.primary.FailAlways(testutil.OpUpdate, errTransient)

		err := h.coord.Update(ctx, "tasks", domain.Document{"status": "BLOCKED"}, "task-1")

		var werr *dualwrite.WriteError
		require.ErrorAs(t, err, &werr)
		assert.Equal(t, domain.StorePrimary, werr.FailedStore())

		row, _ := h.secondary.Row(dualwrite.TableTasks, "task-1")
		assert.Equal(t, "FAILED", row["sync_status"])
	})

	t.Run("unknown primary document", func(t *testing.T) {
		h := newHarness(t, true)

		err := h.coord.Update(ctx, "tasks", domain.Document{"status": "DONE"}, "nope")
		require.Error(t, err)
		assert.ErrorIs(t, err, dualwrite.ErrNotFound)
		assert.Equal(t, 1, h.primary.Calls(testutil.OpUpdate), "not found is not retried")
	})

	t.Run("row created for an unknown document is removed", func(t *testing.T) {
		h := newHarness(t, true)

		err := h.coord.Update(ctx, "labels", domain.Document{"name": "urgent"}, "ghost-1")

		var werr *dualwrite.WriteError
		require.ErrorAs(t, err, &werr)
		assert.ErrorIs(t, err, dualwrite.ErrNotFound)
		assert.Equal(t, domain.StorePrimary, werr.FailedStore())
		assert.True(t, werr.Compensated)

		_, inPrimary := h.primary.Doc("labels", "ghost-1")
		assert.False(t, inPrimary)
		_, inSecondary := h.secondary.Row(dualwrite.TableLabels, "ghost-1")
		assert.False(t, inSecondary)
		assert.Equal(t, 0, h.secondary.Len(dualwrite.TableLabels))

		failures := h.failures()
		require.Len(t, failures, 1)
		assert.Equal(t, domain.OperationUpdate, failures[0].Operation)
		assert.Equal(t, domain.StorePrimary, failures[0].Store)
	})

	t.Run("existing row of an unknown document is only flagged", func(t *testing.T) {
		h := newHarness(t, true)
		h.secondary.Seed(dualwrite.TableLabels, "orphan-1", domain.Row{"name": "old", "sync_status": "SYNCED"})

		err := h.coord.Update(ctx, "labels", domain.Document{"name": "urgent"}, "orphan-1")
		require.Error(t, err)

		row, ok := h.secondary.Row(dualwrite.TableLabels, "orphan-1")
		require.True(t, ok)
		assert.Equal(t, "FAILED", row["sync_status"])
		assert.Equal(t, 0, h.secondary.Calls(testutil.OpDelete))
	})
}

func TestCoordinator_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("soft deletes flagged entities", func(t *testing.T) {
		h := newHarness(t, true)
		require.NoError(t, h.coord.Create(ctx, "tasks", testutil.NewTaskDocument("t"), "task-1"))

		require.NoError(t, h.coord.Delete(ctx, "tasks", "task-1"))

		doc, ok := h.primary.Doc("tasks", "task-1")
		require.True(t, ok)
		assert.Equal(t, true, doc["isDeleted"])

		row, ok := h.secondary.Row(dualwrite.TableTasks, "task-1")
		require.True(t, ok)
		assert.Equal(t, true, row["is_deleted"])
	})

	t.Run("soft delete stamps the document's own timestamp key", func(t *testing.T) {
		h := newHarness(t, true)
		h.primary.Seed("teams", "team-1", domain.Document{"name": "Core", "is_deleted": false, "created_by": "user-1"})

		require.NoError(t, h.coord.Delete(ctx, "teams", "team-1"))

		doc, _ := h.primary.Doc("teams", "team-1")
		assert.Equal(t, true, doc["is_deleted"])
		assert.Contains(t, doc, "updated_at")
		assert.NotContains(t, doc, "updatedAt")
	})

	t.Run("deactivates is_active entities", func(t *testing.T) {
		h := newHarness(t, true)
		require.NoError(t, h.coord.Create(ctx, "task_assignments", testutil.NewTaskAssignmentDocument("task-1", "user-1"), "a-1"))

		require.NoError(t, h.coord.Delete(ctx, "task_assignments", "a-1"))

		doc, _ := h.primary.Doc("task_assignments", "a-1")
		assert.Equal(t, false, doc["is_active"])
		row, _ := h.secondary.Row(dualwrite.TableTaskAssignments, "a-1")
		assert.Equal(t, false, row["is_active"])
	})

	t.Run("hard deletes other entities", func(t *testing.T) {
		h := newHarness(t, true)
		require.NoError(t, h.coord.Create(ctx, "users", testutil.NewUserDocument("a@example.com"), "user-1"))

		require.NoError(t, h.coord.Delete(ctx, "users", "user-1"))

		assert.Equal(t, 0, h.primary.Len("users"))
		assert.Equal(t, 0, h.secondary.Len(dualwrite.TableUsers))
	})

	t.Run("row missing from the secondary store counts as deleted", func(t *testing.T) {
		h := newHarness(t, true)
		h.primary.Seed("users", "user-1", testutil.NewUserDocument("a@example.com"))

		require.NoError(t, h.coord.Delete(ctx, "users", "user-1"))
		assert.Empty(t, h.failures())
	})

	t.Run("primary failure is recorded", func(t *testing.T) {
		h := newHarness(t, true)
		require.NoError(t, h.coord.Create(ctx, "users", testutil.NewUserDocument("a@example.com"), "user-1"))
		h.primary.FailAlways(testutil.OpDelete, errTransient)

		err := h.coord.Delete(ctx, "users", "user-1")

		var werr *dualwrite.WriteError
		require.ErrorAs(t, err, &werr)
		assert.True(t, werr.Partial())

		failures := h.failures()
		require.Len(t, failures, 1)
		assert.Equal(t, domain.OperationDelete, failures[0].Operation)
		assert.Equal(t, domain.StorePrimary, failures[0].Store)
	})
}

func TestCoordinator_Resync(t *testing.T) {
	ctx := context.Background()

	t.Run("upserts the row from the primary document", func(t *testing.T) {
		h := newHarness(t, true)
		h.primary.Seed("users", "user-1", testutil.NewUserDocument("a@example.com"))
		h.secondary.Seed(dualwrite.TableUsers, "user-1", domain.Row{"email_id": "stale@example.com", "sync_status": "FAILED"})

		require.NoError(t, h.coord.Resync(ctx, "users", "user-1"))

		row, _ := h.secondary.Row(dualwrite.TableUsers, "user-1")
		assert.Equal(t, "a@example.com", row["email_id"])
		assert.Equal(t, "SYNCED", row["sync_status"])
	})

	t.Run("removes the row when the document is gone", func(t *testing.T) {
		h := newHarness(t, true)
		h.secondary.Seed(dualwrite.TableUsers, "user-1", domain.Row{"email_id": "a@example.com"})

		require.NoError(t, h.coord.Resync(ctx, "users", "user-1"))
		assert.Equal(t, 0, h.secondary.Len(dualwrite.TableUsers))

		require.NoError(t, h.coord.Resync(ctx, "users", "user-1"), "already converged")
	})

	t.Run("unmapped collection", func(t *testing.T) {
		h := newHarness(t, true)
		err := h.coord.Resync(ctx, "comments", "c-1")
		assert.True(t, apperrors.IsMappingNotFound(err))
	})
}

func TestCoordinator_Batch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)

	result := h.coord.Batch(ctx, []domain.BatchOperation{
		{Operation: domain.OperationCreate, Collection: "users", SharedID: "user-1", Payload: testutil.NewUserDocument("a@example.com")},
		{Operation: domain.OperationUpdate, Collection: "users", SharedID: "user-1", Payload: domain.Document{"name": "Renamed"}},
		{Operation: domain.OperationCreate, Collection: "comments", SharedID: "c-1", Payload: domain.Document{"body": "x"}},
		{Operation: domain.Operation("merge"), Collection: "users", SharedID: "user-1"},
	})

	assert.Equal(t, 4, result.Total)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 2, result.Failed)
	assert.False(t, result.OK())
	require.Len(t, result.Errors, 2)
	assert.Equal(t, 2, result.Errors[0].Index)
	assert.Equal(t, 3, result.Errors[1].Index)

	row, _ := h.secondary.Row(dualwrite.TableUsers, "user-1")
	assert.Equal(t, "Renamed", row["name"])
}

func TestCoordinator_ConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)

	ids := []string{"u-1", "u-2", "u-3", "u-4", "u-5", "u-6", "u-7", "u-8"}
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			assert.NoError(t, h.coord.Create(ctx, "users", testutil.NewUserDocument(id+"@example.com"), id))
		}(id)
	}
	wg.Wait()

	assert.Equal(t, len(ids), h.primary.Len("users"))
	assert.Equal(t, len(ids), h.secondary.Len(dualwrite.TableUsers))
}

func TestCoordinator_WritesRunInParallel(t *testing.T) {
	ctx := context.Background()

	t.Run("both writes are in flight together", func(t *testing.T) {
		h := newHarness(t, true)

		secondaryStarted := make(chan struct{})
		var once sync.Once
		h.secondary.OnCall(testutil.OpInsert, func() { once.Do(func() { close(secondaryStarted) }) })

		var overlapped atomic.Bool
		h.primary.OnCall(testutil.OpInsert, func() {
			select {
			case <-secondaryStarted:
				overlapped.Store(true)
			case <-time.After(2 * time.Second):
			}
		})

		done := make(chan error, 1)
		go func() {
			done <- h.coord.Create(ctx, "users", testutil.NewUserDocument("a@example.com"), "user-1")
		}()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("create did not return")
		}
		assert.True(t, overlapped.Load(), "primary write waited for the secondary write to start")
	})

	t.Run("a fast failure waits for the slow store", func(t *testing.T) {
		h := newHarness(t, true)
		h.primary.FailAlways(testutil.OpInsert, retry.Permanent(errors.New("document failed validation")))

		var secondaryDone atomic.Bool
		h.secondary.OnCall(testutil.OpInsert, func() {
			time.Sleep(50 * time.Millisecond)
			secondaryDone.Store(true)
		})

		err := h.coord.Create(ctx, "users", testutil.NewUserDocument("a@example.com"), "user-1")

		assert.True(t, secondaryDone.Load(), "create returned before the secondary write finished")
		var werr *dualwrite.WriteError
		require.ErrorAs(t, err, &werr)
		assert.Equal(t, domain.StorePrimary, werr.FailedStore())
		assert.True(t, werr.Compensated)
		assert.Equal(t, 0, h.secondary.Len(dualwrite.TableUsers))
	})
}
