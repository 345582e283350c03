package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMappingNotFound(t *testing.T) {
	err := MappingNotFound("invoices")

	assert.Equal(t, CodeMappingNotFound, err.Code)
	assert.Equal(t, "invoices", err.Details["collection"])
	assert.True(t, IsMappingNotFound(err))
	assert.True(t, IsMappingNotFound(fmt.Errorf("create: %w", err)))
	assert.False(t, IsNotFound(err))
}

func TestGetStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, GetStatusCode(NotFound("record")))
	assert.Equal(t, http.StatusBadGateway, GetStatusCode(PartialWrite("x")))
	assert.Equal(t, http.StatusInternalServerError, GetStatusCode(fmt.Errorf("plain")))
}

func TestAppError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Unavailable("secondary store").WithError(cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}
