// Package apperror provides structured error handling following RFC 7807 Problem Details.
// All business errors must use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error codes following domain-driven design
const (
	// Infrastructure errors (5xx)
	CodeInternal          = "INTERNAL_ERROR"
	CodeDatabase          = "DATABASE_ERROR"
	CodeTimeout           = "TIMEOUT_ERROR"
	CodeLedgerUnavailable = "LEDGER_UNAVAILABLE"

	// Validation errors (400)
	CodeValidation   = "VALIDATION_ERROR"
	CodeInvalidInput = "INVALID_INPUT"

	// Business rule violations (409, 422)
	CodePrerequisiteNotClosed = "PREREQUISITE_NOT_CLOSED"
	CodeLastDayNotClosed      = "LAST_DAY_NOT_CLOSED"
	CodeNegativeClosing       = "NEGATIVE_CLOSING"
	CodeAlreadyClosed         = "ALREADY_CLOSED"
	CodeClosingInProgress     = "CLOSING_IN_PROGRESS"
	CodeMonthClosed           = "MONTH_CLOSED"
	CodeClosingOrder          = "CLOSING_ORDER_VIOLATION"

	// Authorization errors (401, 403)
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict    = "CONFLICT"
	CodeIdempotency = "IDEMPOTENCY_CONFLICT"
)

// AppError is the standard error type for the platform.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (dates, quantities, keys, etc.)
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

// NewPrerequisiteNotClosed signals that the prior period has not been
// finalized. Recoverable by closing the prerequisite first; never auto-closed.
func NewPrerequisiteNotClosed(missing time.Time) *AppError {
	return &AppError{
		Code:       CodePrerequisiteNotClosed,
		Message:    fmt.Sprintf("prerequisite period %s is not closed", missing.Format("2006-01-02")),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"missing_date": missing.Format("2006-01-02")},
	}
}

// NewLastDayNotClosed signals a monthly closing attempted before the last
// calendar day of the month was closed. The message identifies the day.
func NewLastDayNotClosed(lastDay time.Time) *AppError {
	return &AppError{
		Code:       CodeLastDayNotClosed,
		Message:    fmt.Sprintf("daily closing for %s must be completed before the month can be closed", lastDay.Format("2006-01-02")),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"last_day": lastDay.Format("2006-01-02")},
	}
}

// NewNegativeClosing signals a computed closing quantity below zero.
// Fatal for the key/period; requires manual ledger investigation.
func NewNegativeClosing(period string, quantity int64) *AppError {
	return &AppError{
		Code:       CodeNegativeClosing,
		Message:    fmt.Sprintf("closing quantity for %s would be negative (%d)", period, quantity),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"period": period, "closing_quantity": quantity},
	}
}

// NewAlreadyClosed signals a re-close attempt whose ledger inputs changed
// since the original closing. Corrections must go through recalculation.
func NewAlreadyClosed(period string) *AppError {
	return &AppError{
		Code:       CodeAlreadyClosed,
		Message:    fmt.Sprintf("period %s is already closed with different ledger totals; run recalculation", period),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"period": period},
	}
}

// NewClosingInProgress signals lock contention on the same closing key.
// Callers should retry with backoff.
func NewClosingInProgress(key string) *AppError {
	return &AppError{
		Code:       CodeClosingInProgress,
		Message:    "another closing operation is in progress for this key",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"key": key, "retryable": true},
	}
}

// NewMonthClosed rejects a ledger write dated inside a finalized month.
func NewMonthClosed(period string) *AppError {
	return &AppError{
		Code:       CodeMonthClosed,
		Message:    fmt.Sprintf("month %s is closed; transactions dated inside it cannot be registered", period),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"period": period},
	}
}

// NewClosingOrder signals a daily closing attempted behind an already closed
// later day. Closings proceed in non-decreasing date order per key.
func NewClosingOrder(date time.Time) *AppError {
	return &AppError{
		Code:       CodeClosingOrder,
		Message:    fmt.Sprintf("a day after %s is already closed for this key", date.Format("2006-01-02")),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"date": date.Format("2006-01-02")},
	}
}

// NewLedgerUnavailable signals an upstream ledger read failure.
// Fully recoverable by retry; no partial record is committed.
func NewLedgerUnavailable(err error) *AppError {
	return &AppError{
		Code:       CodeLedgerUnavailable,
		Message:    "ledger store is unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Details:    map[string]any{"retryable": true},
		Err:        err,
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

// NewDatabase creates a database error (500, hides the driver error)
func NewDatabase(operation string, err error) *AppError {
	return &AppError{
		Code:       CodeDatabase,
		Message:    fmt.Sprintf("database operation failed: %s", operation),
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

// NewIdempotencyConflict creates error when operation is already in progress
func NewIdempotencyConflict(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotency,
		Message:    "Operation already in progress or completed",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// NewIdempotencyMismatch is returned when the same idempotency key is reused for
// a different request (different actor/operation/body hash).
func NewIdempotencyMismatch(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotency,
		Message:    "Idempotency key mismatch",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
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

// IsCode checks if error carries the given code.
func IsCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return IsCode(err, CodeNotFound)
}

// IsRetryable reports whether the caller may retry the operation as-is.
func IsRetryable(err error) bool {
	return IsCode(err, CodeClosingInProgress) || IsCode(err, CodeLedgerUnavailable)
}
