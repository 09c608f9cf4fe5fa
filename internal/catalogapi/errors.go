package catalogapi

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated is returned when the API answers with something other than JSON,
	// which is how an expired session (HTML login redirect) shows up.
	ErrNotAuthenticated = errors.New("catalogapi: not authenticated or unexpected non-JSON response")
	// ErrInvalidCredentials is returned by Login when the API rejects the credentials.
	ErrInvalidCredentials = errors.New("catalogapi: invalid credentials")
	// ErrIncompleteSummary is returned when an import summary misses one of its counts.
	ErrIncompleteSummary = errors.New("catalogapi: incomplete import summary")
)

// TransportError reports a request that never completed.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("catalogapi: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusError reports a completed request the server rejected.
type StatusError struct {
	Op      string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("catalogapi: %s: status %d: %s", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("catalogapi: %s: status %d", e.Op, e.Code)
}

// AppError is an {"error": "..."} payload delivered with a success status.
type AppError struct {
	Op      string
	Message string
}

func (e *AppError) Error() string {
	return fmt.Sprintf("catalogapi: %s: %s", e.Op, e.Message)
}

// ServerMessage extracts the server-provided reason from a StatusError or AppError.
func ServerMessage(err error) (string, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message, true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Message != "" {
		return statusErr.Message, true
	}
	return "", false
}

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}
