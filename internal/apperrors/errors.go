// internal/apperrors/errors.go
package apperrors

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeNotFound          Code = "NOT_FOUND"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeTransport         Code = "TRANSPORT"
	CodeValidation        Code = "VALIDATION"
	CodeForbidden         Code = "FORBIDDEN"
	CodeConflict          Code = "CONFLICT"
	CodeUnauthenticated   Code = "UNAUTHENTICATED"
)

// Error is the single error type crossing package boundaries. Retryable is
// only ever true for CodeTransport.
type Error struct {
	Code      Code
	Message   string
	Details   map[string]any
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func NotFound(kind, id string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s %s not found", kind, id),
		Details: map[string]any{"kind": kind, "id": id},
	}
}

// InvalidTransition reports a precondition miss. found is the status the
// shipment was actually in when the operation was rejected.
func InvalidTransition(op, id, found string, allowed ...string) *Error {
	return &Error{
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("cannot %s shipment %s while it is %s", op, id, found),
		Details: map[string]any{"operation": op, "id": id, "found": found, "allowed": allowed},
	}
}

// Transport wraps a persistence or network failure. The outcome of the
// attempted mutation is unknown.
func Transport(op string, err error) *Error {
	return &Error{
		Code:      CodeTransport,
		Message:   op + " failed",
		Retryable: true,
		Err:       err,
	}
}

func Validation(field, msg string) *Error {
	return &Error{
		Code:    CodeValidation,
		Message: msg,
		Details: map[string]any{"field": field},
	}
}

func Forbidden(msg string) *Error {
	return &Error{Code: CodeForbidden, Message: msg}
}

func Conflict(msg string) *Error {
	return &Error{Code: CodeConflict, Message: msg}
}

func Unauthenticated(msg string) *Error {
	return &Error{Code: CodeUnauthenticated, Message: msg}
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func Is(err error, code Code) bool { return CodeOf(err) == code }

func IsNotFound(err error) bool          { return Is(err, CodeNotFound) }
func IsInvalidTransition(err error) bool { return Is(err, CodeInvalidTransition) }
func IsValidation(err error) bool        { return Is(err, CodeValidation) }
func IsTransport(err error) bool         { return Is(err, CodeTransport) }

func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// FoundStatus extracts the observed status from an InvalidTransition error.
func FoundStatus(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code == CodeInvalidTransition {
		if s, ok := e.Details["found"].(string); ok {
			return s
		}
	}
	return ""
}
