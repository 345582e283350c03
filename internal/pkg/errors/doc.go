// Package errors provides application error types for taskflow.
//
// This package defines:
//   - AppError type with error classification
//   - Error constructors for common error types
//   - Error type checking helpers
//   - HTTP status code mapping
//
// # Error Types
//
//   - NotFound: Resource does not exist (404)
//   - Validation: Invalid input data (400)
//   - MappingNotFound: Collection has no entity mapping (422)
//   - PartialWrite: Only one of the two stores accepted a mutation (502)
//   - DualWriteFailed: Neither store accepted a mutation (503)
//   - Internal: Unexpected server error (500)
//
// # Usage
//
//	return apperrors.MappingNotFound("invoices")
//
//	if apperrors.IsMappingNotFound(err) {
//	    // not retried, surfaced to the caller
//	}
//
// # Error Wrapping
//
// Errors support wrapping with fmt.Errorf:
//
//	return fmt.Errorf("transform failed: %w", apperrors.Validation("missing title"))
package errors
