// Package retry runs fallible store operations with bounded attempts and
// exponential backoff. Errors classified as permanent are returned at once.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Policy configures attempts and backoff between them
type Policy struct {
	// MaxAttempts is the total number of executions, including the first
	MaxAttempts int
	// InitialDelay is the wait before the second attempt
	InitialDelay time.Duration
	// MaxDelay caps every wait
	MaxDelay time.Duration
	// Multiplier grows the wait after each failed attempt
	Multiplier float64
	// JitterFactor is the maximum jitter as a fraction of the delay (0.0 to 1.0)
	JitterFactor float64
}

// DefaultPolicy returns three attempts with 100ms doubling backoff
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.2,
	}
}

// Delay returns the wait after the given failed attempt (0-based)
func (p Policy) Delay(attempt int) time.Duration {
	if p.InitialDelay <= 0 {
		return 0
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	delay := float64(p.InitialDelay) * math.Pow(multiplier, float64(attempt))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	if p.JitterFactor > 0 {
		//nolint:gosec // jitter only
		delay += delay * p.JitterFactor * (2*rand.Float64() - 1)
		if delay < 0 {
			delay = float64(p.InitialDelay)
		}
	}

	return time.Duration(delay)
}

// Hook is called after each failed attempt that will be retried
type Hook func(name string, attempt int, err error)

// Executor runs operations under a Policy
type Executor struct {
	policy   Policy
	logger   *zap.Logger
	classify func(error) bool
	onRetry  Hook
}

// Option customises an Executor
type Option func(*Executor)

// WithClassifier replaces the permanent-error classifier
func WithClassifier(fn func(error) bool) Option {
	return func(e *Executor) {
		e.classify = fn
	}
}

// WithHook registers a callback invoked before each retry
func WithHook(fn Hook) Option {
	return func(e *Executor) {
		e.onRetry = fn
	}
}

// New creates an Executor. A MaxAttempts below one is treated as one.
func New(policy Policy, logger *zap.Logger, opts ...Option) *Executor {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Executor{
		policy:   policy,
		logger:   logger,
		classify: IsPermanent,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the executor's policy
func (e *Executor) Policy() Policy {
	return e.policy
}

// Do executes op until it succeeds, returns a permanent error or runs out
// of attempts. The error of the last attempt is returned as is.
func (e *Executor) Do(ctx context.Context, name string, op func() error) error {
	_, err := DoValue(ctx, e, name, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

// DoValue is Do for operations that produce a value
func DoValue[T any](ctx context.Context, e *Executor, name string, op func() (T, error)) (T, error) {
	var zero T

	for attempt := 0; ; attempt++ {
		result, err := op()
		if err == nil {
			return result, nil
		}

		e.logger.Warn("operation attempt failed",
			zap.String("operation", name),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", e.policy.MaxAttempts),
			zap.Error(err),
		)

		if e.classify(err) {
			return zero, unwrapPermanent(err)
		}
		if attempt+1 >= e.policy.MaxAttempts {
			return zero, err
		}

		if e.onRetry != nil {
			e.onRetry(name, attempt+1, err)
		}

		if werr := wait(ctx, e.policy.Delay(attempt)); werr != nil {
			return zero, errors.Join(werr, err)
		}
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
