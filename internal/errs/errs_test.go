package errs

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventNotFound(t *testing.T) {
	err := NewEventNotFound("SEND_MAGIC_LINK")

	assert.Equal(t, EventNotFound, err.Code)
	assert.Equal(t, http.StatusNotFound, err.StatusCode)
	assert.Equal(t, "SEND_MAGIC_LINK", err.Context["event"])
	assert.True(t, Is(err, EventNotFound))
	assert.False(t, Is(err, ValidationError))
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewEventRegistrationFailed(cause)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
}

func TestTransform_DefaultsAndFallback(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code Code
	}{
		{"connection refused", errors.New("dial tcp: connection refused"), UnknownError},
		{"validation", errors.New("validation failed for field x"), ValidationError},
		{"not found", errors.New("record not found"), NotFound},
		{"unclassified", errors.New("something exploded"), UnknownError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Transform(tc.err, "auth")
			assert.Equal(t, tc.code, got.Code)
			assert.Equal(t, "auth", got.Context["actor"])
		})
	}
}

func TestTransform_PassesThroughExistingError(t *testing.T) {
	original := NewRateLimitExceeded("email:u@x")
	got := Transform(original, "auth")
	assert.Same(t, original, got)
}

func TestSecurityKeywords(t *testing.T) {
	assert.True(t, SecurityKeywords(errors.New("unauthorized access")))
	assert.True(t, SecurityKeywords(errors.New("Invalid Token supplied")))
	assert.False(t, SecurityKeywords(errors.New("disk full")))
}

func TestStatusCode_NonRuntimeError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, StatusCode(errors.New("plain")))
}
