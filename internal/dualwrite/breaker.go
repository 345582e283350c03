package dualwrite

import (
	"context"
	"errors"

	"github.com/taskflow/taskflow/internal/domain"
	"github.com/taskflow/taskflow/internal/pkg/circuitbreaker"
	"github.com/taskflow/taskflow/internal/pkg/retry"
)

// BreakerSecondary guards a SecondaryStore with a circuit breaker. Only
// transient errors count as breaker failures; not found and permanent
// errors pass through without tripping it.
type BreakerSecondary struct {
	next SecondaryStore
	cb   *circuitbreaker.CircuitBreaker
}

// WithBreaker wraps store with cb
func WithBreaker(store SecondaryStore, cb *circuitbreaker.CircuitBreaker) *BreakerSecondary {
	return &BreakerSecondary{next: store, cb: cb}
}

var _ SecondaryStore = (*BreakerSecondary)(nil)

func (b *BreakerSecondary) exec(ctx context.Context, fn func() error) error {
	var passthrough error
	err := b.cb.Execute(ctx, func() error {
		err := fn()
		if err != nil && (errors.Is(err, ErrNotFound) || retry.IsPermanent(err)) {
			passthrough = err
			return nil
		}
		return err
	})
	if passthrough != nil {
		return passthrough
	}
	return err
}

// Insert implements SecondaryStore
func (b *BreakerSecondary) Insert(ctx context.Context, rec domain.Record) error {
	return b.exec(ctx, func() error { return b.next.Insert(ctx, rec) })
}

// Update implements SecondaryStore
func (b *BreakerSecondary) Update(ctx context.Context, rec domain.Record) error {
	return b.exec(ctx, func() error { return b.next.Update(ctx, rec) })
}

// Upsert implements SecondaryStore
func (b *BreakerSecondary) Upsert(ctx context.Context, rec domain.Record) error {
	return b.exec(ctx, func() error { return b.next.Upsert(ctx, rec) })
}

// Delete implements SecondaryStore
func (b *BreakerSecondary) Delete(ctx context.Context, table, id string) error {
	return b.exec(ctx, func() error { return b.next.Delete(ctx, table, id) })
}

// SoftDelete implements SecondaryStore
func (b *BreakerSecondary) SoftDelete(ctx context.Context, table, id string, flag Flag) error {
	return b.exec(ctx, func() error { return b.next.SoftDelete(ctx, table, id, flag) })
}

// Get implements SecondaryStore
func (b *BreakerSecondary) Get(ctx context.Context, table, id string) (domain.Row, error) {
	var row domain.Row
	err := b.exec(ctx, func() error {
		var err error
		row, err = b.next.Get(ctx, table, id)
		return err
	})
	return row, err
}

// Exists implements SecondaryStore
func (b *BreakerSecondary) Exists(ctx context.Context, table, id string) (bool, error) {
	var ok bool
	err := b.exec(ctx, func() error {
		var err error
		ok, err = b.next.Exists(ctx, table, id)
		return err
	})
	return ok, err
}

// Count implements SecondaryStore
func (b *BreakerSecondary) Count(ctx context.Context, table string) (int64, error) {
	var n int64
	err := b.exec(ctx, func() error {
		var err error
		n, err = b.next.Count(ctx, table)
		return err
	})
	return n, err
}

// TableExists implements SecondaryStore
func (b *BreakerSecondary) TableExists(ctx context.Context, table string) (bool, error) {
	var ok bool
	err := b.exec(ctx, func() error {
		var err error
		ok, err = b.next.TableExists(ctx, table)
		return err
	})
	return ok, err
}

// MarkFailed implements SecondaryStore
func (b *BreakerSecondary) MarkFailed(ctx context.Context, table, id, reason string) error {
	return b.exec(ctx, func() error { return b.next.MarkFailed(ctx, table, id, reason) })
}
