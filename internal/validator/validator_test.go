package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Collection string `validate:"required,identifier"`
	Operation  string `validate:"required,oneof=create update delete"`
	Attempts   int    `validate:"gte=1,lte=10"`
}

func TestValidate(t *testing.T) {
	t.Run("valid struct", func(t *testing.T) {
		err := Validate(sample{Collection: "task_assignments", Operation: "create", Attempts: 3})
		assert.NoError(t, err)
	})

	t.Run("collects every failing field", func(t *testing.T) {
		err := Validate(sample{Collection: "tasks; drop", Operation: "merge", Attempts: 0})
		require.Error(t, err)
		require.True(t, IsValidationError(err))

		errs := err.(ValidationErrors)
		require.Len(t, errs, 3)
		assert.Equal(t, "collection", errs[0].Field)
		assert.Equal(t, "must contain only letters, digits and underscores", errs[0].Message)
		assert.Equal(t, "operation", errs[1].Field)
		assert.Equal(t, "must be one of: create update delete", errs[1].Message)
		assert.Equal(t, "attempts", errs[2].Field)
	})

	t.Run("required message", func(t *testing.T) {
		err := Validate(sample{Operation: "delete", Attempts: 1})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "collection: is required")
	})

	t.Run("non struct input is not a validation error", func(t *testing.T) {
		err := Validate(42)
		require.Error(t, err)
		assert.False(t, IsValidationError(err))
	})
}
