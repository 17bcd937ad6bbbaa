package models

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is the coarse failure category callers branch on.
type ErrorKind string

const (
	KindNotFound       ErrorKind = "not_found"
	KindUnauthorized   ErrorKind = "unauthorized"
	KindAlreadyExists  ErrorKind = "already_exists"
	KindTransient      ErrorKind = "transient"
	KindCascadeFailure ErrorKind = "cascade_failure"
	KindValidation     ErrorKind = "validation"
	KindInternal       ErrorKind = "internal"
)

// Error codes exposed to clients.
const (
	CodeNotFound        = "NOT_FOUND"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeCannotRepostOwn = "CANNOT_REPOST_OWN"
	CodeAlreadyReposted = "ALREADY_REPOSTED"
	CodeTransient       = "TRANSIENT_FAILURE"
	CodeCascadeFailure  = "CASCADE_FAILURE"
	CodeValidation      = "VALIDATION_ERROR"
	CodeInternal        = "INTERNAL_ERROR"
)

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// AppError represents a custom application error
type AppError struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the user action may succeed.
func (e *AppError) Retryable() bool {
	return e != nil && e.Kind == KindTransient
}

// StatusCode maps the error kind onto an HTTP status.
func (e *AppError) StatusCode() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusForbidden
	case KindAlreadyExists:
		return http.StatusConflict
	case KindTransient:
		return http.StatusServiceUnavailable
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Predefined error constructors
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Kind:    KindNotFound,
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Kind:    KindValidation,
		Code:    CodeValidation,
		Message: message,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Kind:    KindUnauthorized,
		Code:    CodeUnauthorized,
		Message: message,
	}
}

func NewCannotRepostOwnError() *AppError {
	return &AppError{
		Kind:    KindUnauthorized,
		Code:    CodeCannotRepostOwn,
		Message: "You cannot repost your own post",
	}
}

func NewAlreadyRepostedError() *AppError {
	return &AppError{
		Kind:    KindAlreadyExists,
		Code:    CodeAlreadyReposted,
		Message: "You already reposted this post",
	}
}

func NewTransientError(err error) *AppError {
	return &AppError{
		Kind:    KindTransient,
		Code:    CodeTransient,
		Message: "Temporary failure, please try again",
		Err:     err,
	}
}

func NewCascadeError(postID string, failed int, err error) *AppError {
	return &AppError{
		Kind:    KindCascadeFailure,
		Code:    CodeCascadeFailure,
		Message: fmt.Sprintf("cascade for post %s left %d dependent documents unprocessed", postID, failed),
		Err:     err,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Kind:    KindInternal,
		Code:    CodeInternal,
		Message: "Internal server error",
		Err:     err,
	}
}

// AsAppError extracts an *AppError from err, wrapping unknown errors as internal.
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError(err)
}

// IsKind reports whether err is an *AppError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Kind == kind
}
