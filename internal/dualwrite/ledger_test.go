package dualwrite

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow/taskflow/internal/domain"
)

type collectingSink struct {
	mu      sync.Mutex
	records []domain.FailureRecord
	err     error
}

func (s *collectingSink) Name() string { return "collect" }

func (s *collectingSink) Deliver(_ context.Context, rec domain.FailureRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return s.err
}

func (s *collectingSink) delivered() []domain.FailureRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.FailureRecord(nil), s.records...)
}

func failure(collection, id string, op domain.Operation) domain.FailureRecord {
	return domain.FailureRecord{
		Collection: collection,
		SharedID:   id,
		Operation:  op,
		Store:      domain.StoreSecondary,
		Error:      "boom",
	}
}

func TestLedger_Record(t *testing.T) {
	l := NewLedger(nil, 8)

	rec := l.Record(failure("tasks", "t-1", domain.OperationCreate))
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.Timestamp.IsZero())
	assert.Equal(t, 1, l.Len())

	got, ok := l.Get(rec.ID)
	require.True(t, ok)
	assert.Equal(t, rec, got)

	_, ok = l.Get("missing")
	assert.False(t, ok)
}

func TestLedger_List(t *testing.T) {
	l := NewLedger(nil, 8)
	l.Record(failure("tasks", "t-1", domain.OperationCreate))
	l.Record(failure("users", "u-1", domain.OperationUpdate))
	l.Record(failure("tasks", "t-2", domain.OperationDelete))
	l.Record(failure("tasks", "t-3", domain.OperationCreate))

	t.Run("all, oldest first", func(t *testing.T) {
		all := l.List(domain.FailureFilter{})
		require.Len(t, all, 4)
		assert.Equal(t, "t-1", all[0].SharedID)
		assert.Equal(t, "t-3", all[3].SharedID)
	})

	t.Run("by collection", func(t *testing.T) {
		assert.Len(t, l.List(domain.FailureFilter{Collection: "tasks"}), 3)
	})

	t.Run("by operation and collection", func(t *testing.T) {
		got := l.List(domain.FailureFilter{Collection: "tasks", Operation: domain.OperationCreate})
		require.Len(t, got, 2)
	})

	t.Run("limit keeps the newest", func(t *testing.T) {
		got := l.List(domain.FailureFilter{Limit: 2})
		require.Len(t, got, 2)
		assert.Equal(t, "t-2", got[0].SharedID)
		assert.Equal(t, "t-3", got[1].SharedID)
	})
}

func TestLedger_RemoveAndClear(t *testing.T) {
	l := NewLedger(nil, 8)
	a := l.Record(failure("tasks", "t-1", domain.OperationCreate))
	b := l.Record(failure("tasks", "t-2", domain.OperationCreate))
	l.Record(failure("tasks", "t-3", domain.OperationCreate))

	assert.Equal(t, 2, l.Remove(a.ID, b.ID, "unknown"))
	assert.Equal(t, 1, l.Len())
	assert.Equal(t, 1, l.Clear())
	assert.Equal(t, 0, l.Len())
}

func TestLedger_Restore(t *testing.T) {
	l := NewLedger(nil, 8)
	existing := l.Record(failure("tasks", "t-1", domain.OperationCreate))

	persisted := failure("users", "u-1", domain.OperationUpdate)
	persisted.ID = "persisted-1"
	persisted.Timestamp = time.Now().Add(-time.Hour)

	l.Restore([]domain.FailureRecord{existing, persisted})
	assert.Equal(t, 2, l.Len())
}

func TestLedger_Run(t *testing.T) {
	t.Run("delivers to every sink", func(t *testing.T) {
		first := &collectingSink{}
		second := &collectingSink{err: errors.New("sink down")}
		l := NewLedger(nil, 8, first, second)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go l.Run(ctx)

		l.Record(failure("tasks", "t-1", domain.OperationCreate))
		l.Record(failure("tasks", "t-2", domain.OperationDelete))

		assert.Eventually(t, func() bool {
			return len(first.delivered()) == 2 && len(second.delivered()) == 2
		}, time.Second, 5*time.Millisecond)

		l.Close()
	})

	t.Run("close drains queued records", func(t *testing.T) {
		sink := &collectingSink{}
		l := NewLedger(nil, 8, sink)
		l.Record(failure("tasks", "t-1", domain.OperationCreate))
		l.Record(failure("tasks", "t-2", domain.OperationCreate))

		done := make(chan struct{})
		go func() {
			l.Run(context.Background())
			close(done)
		}()
		assert.Eventually(t, func() bool { return len(sink.delivered()) == 2 }, time.Second, 5*time.Millisecond)

		l.Close()
		<-done

		// records after close stay in memory only
		l.Record(failure("tasks", "t-3", domain.OperationCreate))
		assert.Equal(t, 3, l.Len())
		assert.Len(t, sink.delivered(), 2)
	})

	t.Run("full buffer keeps the record", func(t *testing.T) {
		sink := &collectingSink{}
		l := NewLedger(nil, 1, sink)

		l.Record(failure("tasks", "t-1", domain.OperationCreate))
		l.Record(failure("tasks", "t-2", domain.OperationCreate))
		assert.Equal(t, 2, l.Len())

		l.Close()
	})
}
