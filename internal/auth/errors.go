// ABOUTME: Error taxonomy for the authentication gate and its HTTP mapping
// ABOUTME: Every gate error is terminal for the request but never for the connection

package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Gate errors
var (
	ErrUnauthorized     = errors.New("authorization absent, kindly sign-in first")
	ErrInvalidSignature = errors.New("unauthorized access: kindly sign-in again")
	ErrSessionExpired   = errors.New("session expired")
	ErrMethodNotAllowed = errors.New("method not supported")
	ErrMalformedLogin   = errors.New("malformed login request: userId is required")
	ErrBadCredentials   = errors.New("invalid userId or password")
)

// SessionDeletedMessage is the logout confirmation body.
const SessionDeletedMessage = "Session Deleted Successfully"

// SessionExpiredError reports how long ago a correctly signed session started.
type SessionExpiredError struct {
	Elapsed int64 // seconds since session start
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("session expired: %d seconds since sign-in", e.Elapsed)
}

// Is lets errors.Is(err, ErrSessionExpired) match.
func (e *SessionExpiredError) Is(target error) bool {
	return target == ErrSessionExpired
}

// StatusFor maps a gate error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed
	case errors.Is(err, ErrMalformedLogin):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrInvalidSignature),
		errors.Is(err, ErrSessionExpired),
		errors.Is(err, ErrBadCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Reason is a stable, low-cardinality label for logs and metrics.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrSessionExpired):
		return "session_expired"
	case errors.Is(err, ErrMethodNotAllowed):
		return "method_not_allowed"
	case errors.Is(err, ErrMalformedLogin):
		return "malformed_login"
	case errors.Is(err, ErrBadCredentials):
		return "bad_credentials"
	default:
		return "internal"
	}
}

// Message is the client-facing text for err. Internal errors are not
// echoed to the client.
func Message(err error) string {
	var expired *SessionExpiredError
	switch {
	case errors.As(err, &expired):
		return fmt.Sprintf("Session Expired : %d", expired.Elapsed)
	case errors.Is(err, ErrUnauthorized):
		return "Authorization absent, kindly sign-in first"
	case errors.Is(err, ErrInvalidSignature):
		return "Unauthorized access: kindly sign-in again"
	case StatusFor(err) == http.StatusInternalServerError:
		return "internal error"
	default:
		return err.Error()
	}
}

// writeError writes {"error": "..."} with the status for err.
func writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	msg := Message(err)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
