package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound matches responses for entities the backend does not know (404).
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized matches responses rejected for a missing or expired session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials matches a login rejected by the backend.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

const opLogin = "login"


const (
	msgTransport    = "Failed to connect to backend. Is it running?"
	msgUnauthorized = "Session expired or missing. Run `scanboard login` and retry."
	msgActionFailed = "Action failed"
)

// TransportError means no HTTP response was received at all.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: request to %s failed: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError is a non-2xx response. Message is the backend-provided error text,
// when the body carried one.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: backend error (%d): %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: backend returned %d", e.Op, e.StatusCode)
}

// Is lets callers match status classes with errors.Is.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		if e.Op == opLogin {
			return false
		}
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrInvalidCredentials:
		return e.Op == opLogin && e.StatusCode == http.StatusUnauthorized
	}
	return false
}

// UserMessage converts any boundary error into operator-facing feedback.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrUnauthorized) {
		return msgUnauthorized
	}
	var te *TransportError
	if errors.As(err, &te) {
		return msgTransport
	}
	var ae *APIError
	if errors.As(err, &ae) {
		if ae.Message != "" {
			return ae.Message
		}
		return msgActionFailed
	}
	return err.Error()
}

// Retryable reports whether re-issuing the same action could succeed without
// operator intervention elsewhere (connectivity problems and 5xx).
func Retryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.StatusCode >= 500
	}
	return false
}
