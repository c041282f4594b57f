// ABOUTME: Tests for gate error classification and JSON error responses
// ABOUTME: Pins the status code and metric reason for every error kind

package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusForAndReason(t *testing.T) {
	tests := []struct {
		err    error
		status int
		reason string
	}{
		{ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{ErrInvalidSignature, http.StatusUnauthorized, "invalid_signature"},
		{&SessionExpiredError{Elapsed: 90}, http.StatusUnauthorized, "session_expired"},
		{ErrMethodNotAllowed, http.StatusMethodNotAllowed, "method_not_allowed"},
		{fmt.Errorf("%w: unexpected EOF", ErrMalformedLogin), http.StatusBadRequest, "malformed_login"},
		{ErrBadCredentials, http.StatusUnauthorized, "bad_credentials"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			assert.Equal(t, tt.status, StatusFor(tt.err))
			assert.Equal(t, tt.reason, Reason(tt.err))
		})
	}
}

func TestSessionExpiredError(t *testing.T) {
	err := error(&SessionExpiredError{Elapsed: 3601})
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Contains(t, err.Error(), "3601")
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, ErrInvalidSignature)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, Message(ErrInvalidSignature), body["error"])
}

func TestWriteError_HidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, errors.New("database path /var/secret unreadable"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "/var/secret")
	assert.Contains(t, rec.Body.String(), "internal error")
}

func TestMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrUnauthorized, "Authorization absent, kindly sign-in first"},
		{ErrInvalidSignature, "Unauthorized access: kindly sign-in again"},
		{&SessionExpiredError{Elapsed: 3601}, "Session Expired : 3601"},
		{fmt.Errorf("verifying: %w", &SessionExpiredError{Elapsed: 7}), "Session Expired : 7"},
		{ErrMethodNotAllowed, ErrMethodNotAllowed.Error()},
		{ErrBadCredentials, ErrBadCredentials.Error()},
		{errors.New("disk on fire"), "internal error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Message(tt.err))
	}
}
