package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden    = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict     = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation   = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal     = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss    = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Bulk operation error kinds. Everything except ErrStorageFailure is raised before the store is touched.
var (
	ErrUnknownTable            = New("UNKNOWN_TABLE", http.StatusBadRequest, "unknown target table")
	ErrUnknownField            = New("UNKNOWN_FIELD", http.StatusBadRequest, "unknown filter field")
	ErrInvalidOperatorForField = New("INVALID_OPERATOR_FOR_FIELD", http.StatusBadRequest, "operator not supported for field")
	ErrInvalidFilterValue      = New("INVALID_FILTER_VALUE", http.StatusBadRequest, "invalid filter value")
	ErrUnsupportedOperation    = New("UNSUPPORTED_OPERATION", http.StatusBadRequest, "operation not supported for table")
	ErrMissingParameter        = New("MISSING_PARAMETER", http.StatusBadRequest, "missing operation parameter")
	ErrConfirmationRequired    = New("CONFIRMATION_REQUIRED", http.StatusBadRequest, "deletion requires explicit confirmation")
	ErrNotRollbackable         = New("NOT_ROLLBACKABLE", http.StatusConflict, "operation cannot be rolled back")
	ErrAlreadyRolledBack       = New("ALREADY_ROLLED_BACK", http.StatusConflict, "operation already rolled back")
	ErrStorageFailure          = New("STORAGE_FAILURE", http.StatusServiceUnavailable, "storage backend failure, please retry")
)

// Is reports whether err carries the same code as target.
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code == target.Code
	}
	return false
}

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
