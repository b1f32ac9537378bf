package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a semantic classification shared across transport layers.
type ErrorCode string

const (
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeInvalid         ErrorCode = "INVALID"
	ErrCodeConflict        ErrorCode = "CONFLICT"
	ErrCodeForbidden       ErrorCode = "FORBIDDEN"
	ErrCodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrCodeTooManyRequests ErrorCode = "TOO_MANY_REQUESTS"
	ErrCodeUnavailable     ErrorCode = "UNAVAILABLE"
	ErrCodeInternal        ErrorCode = "INTERNAL"
)

// Error represents a domain-level error.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError builds a domain error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError wraps an existing error with a domain classification.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain errors.
var (
	ErrAggregateNotFound = NewError(ErrCodeNotFound, "frecency aggregate not found")
	ErrUnauthorized      = NewError(ErrCodeUnauthorized, "unauthorized")
	ErrInvalidPayload    = NewError(ErrCodeInvalid, "invalid payload")
	ErrUpsertContention  = NewError(ErrCodeConflict, "frecency aggregate is being updated concurrently")
	ErrRateLimited       = NewError(ErrCodeTooManyRequests, "too many tracking events")
)

// CursorDecodeError reports a malformed pagination token or one that does not
// match the requested sort.
func CursorDecodeError(err error) *Error {
	return WrapError(ErrCodeInvalid, "malformed cursor", err)
}

// FrecencyStorageError reports that the frecency backend could not be consulted.
func FrecencyStorageError(err error) *Error {
	return WrapError(ErrCodeUnavailable, "frecency storage unavailable", err)
}

// SoupDBError reports a failed item query.
func SoupDBError(err error) *Error {
	return WrapError(ErrCodeInternal, "soup query failed", err)
}

// IsDomainError helps checking error codes.
func IsDomainError(err error, code ErrorCode) bool {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code == code
	}
	return false
}
