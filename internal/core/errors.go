package core

import "errors"

// Error codes sent to clients.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeStoreUnavailable = "store_unavailable"
	ErrCodeNotConnected     = "not_connected"
	ErrCodeRateLimited      = "rate_limited"
)

var (
	// ErrNotConnected is returned for clients that are closed or were never registered.
	ErrNotConnected = errors.New("client not connected")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
	Err     error
}

func (e *CoreError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

// NewError builds a CoreError with the given code.
func NewError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
