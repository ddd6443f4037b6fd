package operation

import (
	"errors"
	"fmt"
)

// ErrOperationFailed is matched by every error that reports a remote operation
// reaching a terminal failed outcome.
var ErrOperationFailed = errors.New("operation failed")

// ValidationError represents a domain validation error.
// It provides context about which field failed validation and why.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns the error message for a ValidationError,
// implementing the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError with the given field and message.
func NewValidationError(field, message string) ValidationError {
	return ValidationError{
		Field:   field,
		Message: message,
	}
}

// FailedError is the domain error raised when a long-running operation
// finishes unsuccessfully. It carries the final response observed for the
// operation so callers can inspect headers or status.
type FailedError struct {
	Response Response
	Code     string
	Message  string
}

// NewFailedError builds a FailedError for the given final response.
func NewFailedError(resp Response, code, message string) *FailedError {
	return &FailedError{Response: resp, Code: code, Message: message}
}

func (e *FailedError) Error() string {
	msg := ErrOperationFailed.Error()
	if sc, ok := e.Response.(interface{ StatusCode() int }); ok {
		msg = fmt.Sprintf("%s (status %d)", msg, sc.StatusCode())
	}
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("%s: %s: %s", msg, e.Code, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", msg, e.Message)
	case e.Code != "":
		return fmt.Sprintf("%s: %s", msg, e.Code)
	}
	return msg
}

// Unwrap lets errors.Is(err, ErrOperationFailed) match.
func (e *FailedError) Unwrap() error { return ErrOperationFailed }
