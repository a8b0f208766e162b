// Package apperror provides structured error handling following RFC 7807 Problem Details.
// All business errors must use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes following domain-driven design
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"
	CodeTimeout  = "TIMEOUT_ERROR"

	// Validation errors (400)
	CodeValidation   = "VALIDATION_ERROR"
	CodeInvalidInput = "INVALID_INPUT"

	// Business rule violations (422)
	CodeBusinessRule         = "BUSINESS_RULE_VIOLATION"
	CodeCapacityExceeded     = "CAPACITY_EXCEEDED"
	CodeUserCapacityExceeded = "USER_CAPACITY_EXCEEDED"

	// Authorization errors (401, 403)
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict           = "CONFLICT"
	CodeDuplicateNumber    = "DUPLICATE_NUMBER"
	CodeAllocationConflict = "ALLOCATION_CONFLICT"
)

// AppError is the standard error type for the service.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field errors, counts, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions for common errors ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewCapacityExceeded is returned when the system-wide concurrent
// reservation cap is reached.
func NewCapacityExceeded(max int) *AppError {
	return &AppError{
		Code:       CodeCapacityExceeded,
		Message:    fmt.Sprintf("Maximum concurrent reservations (%d) reached. Please wait for others to complete their reports.", max),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"max_concurrent": max},
	}
}

// NewUserCapacityExceeded is returned when a single user already holds
// the maximum number of active reservations.
func NewUserCapacityExceeded(active, max int) *AppError {
	return &AppError{
		Code:       CodeUserCapacityExceeded,
		Message:    fmt.Sprintf("You already have %d active reservation(s). Maximum allowed: %d. Please complete or cancel your existing reservation first.", active, max),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"active": active, "max_per_user": max},
	}
}

// NewAllocationConflict is returned when concurrent allocators exhausted
// the bounded retry budget. The condition is transient; the caller may retry.
func NewAllocationConflict() *AppError {
	return &AppError{
		Code:       CodeAllocationConflict,
		Message:    "Could not reserve a report number due to concurrent activity. Please try again.",
		HTTPStatus: http.StatusConflict,
	}
}

// NewDuplicateNumber is returned when a report number is already taken
// (the reports-table uniqueness backstop).
func NewDuplicateNumber(reportNumber string) *AppError {
	return &AppError{
		Code:       CodeDuplicateNumber,
		Message:    fmt.Sprintf("Report number %s is already in use. Please request a fresh reservation.", reportNumber),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"report_number": reportNumber},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewDatabase wraps a storage failure. Operations fail closed: no
// reservation is ever fabricated when storage is unavailable.
func NewDatabase(err error) *AppError {
	return &AppError{
		Code:       CodeDatabase,
		Message:    fmt.Sprintf("Storage error: %v", err),
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewUnauthorized creates an authentication error (401)
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewForbidden creates an authorization error (403)
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == CodeNotFound
	}
	return false
}

// IsCapacity checks if error is one of the capacity-cap codes.
func IsCapacity(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == CodeCapacityExceeded || appErr.Code == CodeUserCapacityExceeded
	}
	return false
}
