// Package alert reports sync failures to external alerting.
package alert

import (
	"context"
	"fmt"

	"github.com/getsentry/sentry-go"

	"github.com/taskflow/taskflow/internal/domain"
)

// SentryAlerter is a ledger sink that reports every failure as a Sentry event
type SentryAlerter struct {
	hub *sentry.Hub
}

// NewSentryAlerter creates an alerter on hub. A nil hub uses the current hub.
func NewSentryAlerter(hub *sentry.Hub) *SentryAlerter {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return &SentryAlerter{hub: hub}
}

// Name implements dualwrite.FailureSink
func (a *SentryAlerter) Name() string {
	return "sentry"
}

// Deliver implements dualwrite.FailureSink. Delivery is fire-and-forget.
func (a *SentryAlerter) Deliver(ctx context.Context, rec domain.FailureRecord) error {
	a.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(levelFor(rec))
		scope.SetTag("collection", rec.Collection)
		scope.SetTag("operation", string(rec.Operation))
		scope.SetTag("store", string(rec.Store))
		scope.SetExtra("shared_id", rec.SharedID)
		scope.SetExtra("failure_id", rec.ID)
		scope.SetFingerprint([]string{"sync-failure", rec.Collection, string(rec.Operation), string(rec.Store)})

		a.hub.CaptureException(failureError(rec))
	})
	return nil
}

func failureError(rec domain.FailureRecord) error {
	return fmt.Errorf("sync %s of %s/%s failed on %s store: %s",
		rec.Operation, rec.Collection, rec.SharedID, rec.Store, rec.Error)
}

// levelFor escalates failures that left both stores unwritten or a
// compensation unfinished
func levelFor(rec domain.FailureRecord) sentry.Level {
	if rec.Store == domain.StoreBoth || rec.Operation == domain.OperationCompensate {
		return sentry.LevelFatal
	}
	return sentry.LevelError
}
