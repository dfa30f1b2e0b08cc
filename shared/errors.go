package shared

import (
	"errors"
	"fmt"
)

// ErrSessionExpired is terminal: the upstream rejected our token and the
// stored session has already been cleared. Callers must not retry.
var ErrSessionExpired = errors.New("session expired")

// ErrUpstreamUnavailable wraps transport-level failures where no response
// was received. Surfaced to users as a generic message.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

type AppError struct {
	StatusCode int
	Message    string
	Data       interface{}
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%d: %s", e.StatusCode, e.Message)
}

func NewAppError(statusCode int, message string, data interface{}) *AppError {
	return &AppError{
		StatusCode: statusCode,
		Message:    message,
		Data:       data,
	}
}

func GetAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// DecodeError marks an upstream payload that failed schema validation after a
// successful HTTP exchange.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode upstream response from %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
