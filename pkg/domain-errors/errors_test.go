package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodesSurviveWrapping(t *testing.T) {
	base := errors.New("row lock timeout")
	err := Wrap(base, CodeConcurrencyConflict, "request was modified concurrently")

	wrapped := fmt.Errorf("transition: %w", err)

	assert.True(t, HasCode(wrapped, CodeConcurrencyConflict))
	assert.True(t, Is(wrapped, CodeConcurrencyConflict))
	assert.False(t, HasCode(wrapped, CodeStateConflict))
	assert.Equal(t, CodeConcurrencyConflict, CodeOf(wrapped))
	require.ErrorIs(t, wrapped, base)
}

func TestCodeOfPlainErrorIsInternal(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	assert.False(t, HasCode(nil, CodeInternal))
}

func TestToHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeValidation, http.StatusBadRequest},
		{CodeForbidden, http.StatusForbidden},
		{CodeSignatureVerification, http.StatusForbidden},
		{CodeStateConflict, http.StatusConflict},
		{CodeConcurrencyConflict, http.StatusConflict},
		{CodeImmutabilityViolation, http.StatusConflict},
		{CodeIntegrity, http.StatusUnprocessableEntity},
		{CodeTimeout, http.StatusGatewayTimeout},
		{CodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, ToHTTPStatus(tt.code))
		})
	}
}
