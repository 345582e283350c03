package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/taskflow/taskflow/internal/pkg/errors"
	"github.com/taskflow/taskflow/internal/pkg/circuitbreaker"
)

func fastPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestExecutor_Do(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds first time", func(t *testing.T) {
		calls := 0
		err := New(fastPolicy(), nil).Do(ctx, "op", func() error {
			calls++
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("succeeds on last attempt", func(t *testing.T) {
		calls := 0
		err := New(fastPolicy(), nil).Do(ctx, "op", func() error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops after max attempts with the last error", func(t *testing.T) {
		calls := 0
		var last error
		err := New(fastPolicy(), nil).Do(ctx, "op", func() error {
			calls++
			last = fmt.Errorf("failure %d", calls)
			return last
		})

		assert.Equal(t, 3, calls)
		assert.Same(t, last, err)
	})

	t.Run("does not retry permanent errors", func(t *testing.T) {
		calls := 0
		cause := errors.New("bad payload")
		err := New(fastPolicy(), nil).Do(ctx, "op", func() error {
			calls++
			return Permanent(cause)
		})

		assert.Equal(t, 1, calls)
		assert.Same(t, cause, err)
	})

	t.Run("calls hook before each retry", func(t *testing.T) {
		var attempts []int
		exec := New(fastPolicy(), nil, WithHook(func(_ string, attempt int, _ error) {
			attempts = append(attempts, attempt)
		}))

		_ = exec.Do(ctx, "op", func() error { return errors.New("down") })
		assert.Equal(t, []int{1, 2}, attempts)
	})

	t.Run("honours cancellation during backoff", func(t *testing.T) {
		policy := fastPolicy()
		policy.InitialDelay = time.Hour
		policy.MaxDelay = time.Hour

		cctx, cancel := context.WithCancel(ctx)
		calls := 0
		err := New(policy, nil).Do(cctx, "op", func() error {
			calls++
			cancel()
			return errors.New("down")
		})

		assert.Equal(t, 1, calls)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestDoValue(t *testing.T) {
	calls := 0
	v, err := DoValue(context.Background(), New(fastPolicy(), nil), "count", func() (int64, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, int64(42), v)
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("connection reset"), false},
		{"marked", Permanent(errors.New("x")), true},
		{"canceled", context.Canceled, true},
		{"validation", apperrors.Validation("bad"), true},
		{"mapping", fmt.Errorf("wrap: %w", apperrors.MappingNotFound("x")), true},
		{"circuit open", circuitbreaker.ErrCircuitOpen, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, true},
		{"undefined table", &pgconn.PgError{Code: "42P01"}, true},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, false},
		{"connection failure", &pgconn.PgError{Code: "08006"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPermanent(tt.err))
		})
	}
}

func TestPolicy_Delay(t *testing.T) {
	p := Policy{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Multiplier: 2}

	assert.Equal(t, 100*time.Millisecond, p.Delay(0))
	assert.Equal(t, 200*time.Millisecond, p.Delay(1))
	assert.Equal(t, 300*time.Millisecond, p.Delay(2))
	assert.Equal(t, 300*time.Millisecond, p.Delay(8))

	p.JitterFactor = 0.5
	for i := 0; i < 20; i++ {
		d := p.Delay(0)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}
