// Package validator provides struct validation for taskflow.
//
// It wraps go-playground/validator and turns its errors into
// ValidationErrors with camelCase field names, used by configuration
// loading, entity mapping registration and the admin API.
//
//	if err := validator.Validate(op); err != nil {
//	    // err is a validator.ValidationErrors
//	}
//
// The identifier tag accepts collection and table names made of letters,
// digits and underscores.
package validator
