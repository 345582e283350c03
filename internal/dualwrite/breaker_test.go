package dualwrite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow/taskflow/internal/domain"
	"github.com/taskflow/taskflow/internal/pkg/circuitbreaker"
	"github.com/taskflow/taskflow/internal/pkg/retry"
)

// failingSecondary returns err from every call
type failingSecondary struct {
	SecondaryStore
	err   error
	calls int
}

func (f *failingSecondary) Delete(context.Context, string, string) error {
	f.calls++
	return f.err
}

func (f *failingSecondary) Get(context.Context, string, string) (domain.Row, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return domain.Row{"mongo_id": "x"}, nil
}

func TestBreakerSecondary(t *testing.T) {
	ctx := context.Background()
	newBreaker := func() *circuitbreaker.CircuitBreaker {
		return circuitbreaker.New(circuitbreaker.Config{Name: "secondary", MaxFailures: 2, Timeout: time.Minute})
	}

	t.Run("opens after transient failures", func(t *testing.T) {
		store := &failingSecondary{err: errors.New("connection reset")}
		b := WithBreaker(store, newBreaker())

		assert.Error(t, b.Delete(ctx, TableTasks, "a"))
		assert.Error(t, b.Delete(ctx, TableTasks, "b"))

		err := b.Delete(ctx, TableTasks, "c")
		assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
		assert.True(t, retry.IsPermanent(err))
		assert.Equal(t, 2, store.calls)
	})

	t.Run("not found does not trip", func(t *testing.T) {
		store := &failingSecondary{err: ErrNotFound}
		cb := newBreaker()
		b := WithBreaker(store, cb)

		for i := 0; i < 5; i++ {
			assert.ErrorIs(t, b.Delete(ctx, TableTasks, "a"), ErrNotFound)
		}
		assert.Equal(t, circuitbreaker.StateClosed, cb.State())
		assert.Equal(t, 5, store.calls)
	})

	t.Run("passes values through", func(t *testing.T) {
		b := WithBreaker(&failingSecondary{}, newBreaker())
		row, err := b.Get(ctx, TableTasks, "x")
		require.NoError(t, err)
		assert.Equal(t, "x", row["mongo_id"])
	})
}
