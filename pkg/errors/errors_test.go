package errors_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "symptom-interview/pkg/errors"
)

func TestTypeOf(t *testing.T) {
	wrapped := fmt.Errorf("diagnosis turn: %w", apperrors.NewNetworkError("call failed", fmt.Errorf("dial tcp: refused")))

	assert.Equal(t, apperrors.ErrorTypeNetwork, apperrors.TypeOf(wrapped))
	assert.True(t, apperrors.IsType(wrapped, apperrors.ErrorTypeNetwork))
	assert.False(t, apperrors.IsType(wrapped, apperrors.ErrorTypeProtocol))
	assert.Equal(t, apperrors.ErrorTypeInternal, apperrors.TypeOf(fmt.Errorf("plain")))
}

func TestAppErrorMessage(t *testing.T) {
	err := apperrors.NewPersistenceError("save assessment", fmt.Errorf("disk full"))
	assert.Equal(t, "PERSISTENCE: save assessment: disk full", err.Error())
	assert.EqualError(t, err.Unwrap(), "disk full")

	assert.Equal(t, "VALIDATION: age out of range", apperrors.NewValidationError("age out of range").Error())
}
