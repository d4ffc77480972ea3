// Package errors provides the coded error type shared by every layer of the
// service. Handlers translate codes to transport status; services and
// repositories only ever construct them.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a stable, machine readable error kind.
type ErrorCode string

const (
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"
	ErrCodeInternal     ErrorCode = "INTERNAL"
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the service error type.
type Error struct {
	Code      ErrorCode
	Message   string
	Fields    []FieldError
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.ReplaceAll(string(e.Code), "_", " ")))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error with the given code.
func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error. Wrapping an *Error
// keeps the inner code unless the inner code is INTERNAL.
func Wrap(err error, code ErrorCode, message string) *Error {
	var inner *Error
	if stderrors.As(err, &inner) && inner.Code != ErrCodeInternal {
		return inner
	}
	return &Error{Code: code, Message: message, Err: err}
}

// NotFound reports a missing resource.
func NotFound(resource string, id any) *Error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s %v not found", resource, id)}
}

// InvalidInput reports a single rejected field.
func InvalidInput(field, message string) *Error {
	return &Error{
		Code:    ErrCodeInvalidInput,
		Message: message,
		Fields:  []FieldError{{Field: field, Message: message}},
	}
}

// Validation reports several rejected fields at once.
func Validation(message string, fields []FieldError) *Error {
	return &Error{Code: ErrCodeInvalidInput, Message: message, Fields: fields}
}

func Forbidden(message string) *Error {
	return &Error{Code: ErrCodeForbidden, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Code: ErrCodeConflict, Message: message}
}

func InvalidState(message string) *Error {
	return &Error{Code: ErrCodeInvalidState, Message: message}
}

// Timeout reports an exhausted time budget. Callers may retry.
func Timeout(message string, err error) *Error {
	return &Error{Code: ErrCodeInternal, Message: message, Retryable: true, Err: err}
}

// Transient reports a storage failure that is expected to pass on retry.
func Transient(message string, err error) *Error {
	return &Error{Code: ErrCodeInternal, Message: message, Retryable: true, Err: err}
}

// CodeOf returns the code carried by err, INTERNAL for foreign errors and ""
// for nil.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// As is errors.As from the standard library.
func As(err error, target any) bool { return stderrors.As(err, target) }

// IsRetryable reports whether the caller may safely retry the action.
func IsRetryable(err error) bool {
	var e *Error
	return stderrors.As(err, &e) && e.Retryable
}

// HTTPStatus maps an error to the HTTP status the handlers respond with.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeInvalidState:
		return http.StatusUnprocessableEntity
	case "":
		return http.StatusOK
	default:
		if IsRetryable(err) {
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	}
}
