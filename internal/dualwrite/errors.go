package dualwrite

import (
	"fmt"
	"strings"

	"github.com/taskflow/taskflow/internal/domain"
	apperrors "github.com/taskflow/taskflow/internal/pkg/errors"
)

// WriteError is returned when a coordinated write did not succeed on both
// stores. It carries every store error so callers can tell a partial write
// from a full failure.
type WriteError struct {
	Op         domain.Operation
	Collection string
	ID         string

	PrimaryErr      error
	SecondaryErr    error
	CompensationErr error
	// Compensated is set when a compensating delete removed the record from
	// the store that had accepted it.
	Compensated bool
}

// Error implements the error interface
func (e *WriteError) Error() string {
	var parts []string
	if e.PrimaryErr != nil {
		parts = append(parts, fmt.Sprintf("primary: %v", e.PrimaryErr))
	}
	if e.SecondaryErr != nil {
		parts = append(parts, fmt.Sprintf("secondary: %v", e.SecondaryErr))
	}
	if e.CompensationErr != nil {
		parts = append(parts, fmt.Sprintf("compensation: %v", e.CompensationErr))
	}

	kind := "dual write failed"
	if e.Partial() {
		kind = "partial dual write"
	}
	return fmt.Sprintf("%s %s %s/%s: %s", kind, e.Op, e.Collection, e.ID, strings.Join(parts, "; "))
}

// Unwrap returns every non-nil store error
func (e *WriteError) Unwrap() []error {
	var errs []error
	for _, err := range []error{e.PrimaryErr, e.SecondaryErr, e.CompensationErr} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Partial reports whether exactly one store failed
func (e *WriteError) Partial() bool {
	return (e.PrimaryErr == nil) != (e.SecondaryErr == nil)
}

// FailedStore returns which store failed
func (e *WriteError) FailedStore() domain.StoreKind {
	switch {
	case e.PrimaryErr != nil && e.SecondaryErr != nil:
		return domain.StoreBoth
	case e.PrimaryErr != nil:
		return domain.StorePrimary
	case e.SecondaryErr != nil:
		return domain.StoreSecondary
	}
	return domain.StoreNone
}

// AppError converts the failure into an application error for HTTP surfaces
func (e *WriteError) AppError() *apperrors.AppError {
	var appErr *apperrors.AppError
	if e.Partial() {
		appErr = apperrors.PartialWrite(e.Error())
	} else {
		appErr = apperrors.DualWriteFailed(e.Error())
	}
	return appErr.
		WithError(e).
		WithDetail("collection", e.Collection).
		WithDetail("id", e.ID).
		WithDetail("failed_store", string(e.FailedStore()))
}
