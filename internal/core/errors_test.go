package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnknownColumnError(t *testing.T) {
	cause := errors.New("column \"content\" does not exist")
	err := error(&UnknownColumnError{Column: "content", Err: cause})

	assert.ErrorIs(t, err, ErrSchemaMismatch)
	assert.ErrorIs(t, err, cause)

	var uc *UnknownColumnError
	assert.True(t, errors.As(err, &uc))
	assert.Equal(t, "content", uc.Column)
}

func TestNotNullViolationError(t *testing.T) {
	err := error(&NotNullViolationError{Column: "message", Err: errors.New("null value")})
	assert.ErrorIs(t, err, ErrSchemaMismatch)
	assert.Contains(t, err.Error(), `"message"`)
}

func TestValidationf(t *testing.T) {
	err := Validationf("clientId is required")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "validation error: clientId is required", err.Error())
}
