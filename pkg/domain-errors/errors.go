// Package derrors defines the typed error envelope used across component
// boundaries. Collaborator failures are wrapped into one of these codes at
// the boundary; nothing else crosses into the orchestrator.
package derrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a failure for callers and for HTTP translation.
type Code string

const (
	// CodeBadRequest marks malformed local input (validation failures).
	CodeBadRequest Code = "bad_request"

	// CodePrecondition marks a gated operation invoked out of order.
	CodePrecondition Code = "precondition_failed"

	// CodeThrottled marks a rate-limit rejection that is retryable after a wait.
	CodeThrottled Code = "throttled"

	// CodeBlocked marks a terminal rate-limit rejection for the session.
	CodeBlocked Code = "blocked"

	// CodeConflict marks an operation rejected because another is in progress.
	CodeConflict Code = "conflict"

	// CodeUnauthorized marks a missing or invalid session credential.
	CodeUnauthorized Code = "unauthorized"

	// CodeNotFound marks an absent record.
	CodeNotFound Code = "not_found"

	// CodeUnavailable marks an external collaborator failure (network, backend
	// rejection); retryable by re-invoking the triggering action.
	CodeUnavailable Code = "unavailable"

	// CodeInternal marks an unexpected internal error.
	CodeInternal Code = "internal"
)

// Error carries a code, a human-readable message, and an optional cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a domain error with the given code and message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates an underlying error with a code and message.
func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, cause: err}
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// GetCode extracts the code from an error, defaulting to CodeInternal.
func GetCode(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// UserMessage returns the human-readable message for surfacing to users.
func UserMessage(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "unexpected error"
}

// ToHTTPStatus maps a code to an HTTP status for the transport layer.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodePrecondition:
		return http.StatusBadRequest
	case CodeThrottled:
		return http.StatusTooManyRequests
	case CodeBlocked:
		return http.StatusForbidden
	case CodeConflict:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
