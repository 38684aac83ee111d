// Package apperror defines the error taxonomy shared by the store and the
// visit workflow: validation, precondition, not-found and persistence
// failures. Store lookups that tolerate a missing record (Update, Remove,
// FindOne) report it as an ok=false return instead of an error.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation   = errors.New("validation error")
	ErrPrecondition = errors.New("precondition failed")
	ErrNotFound     = errors.New("resource not found")
	ErrPersistence  = errors.New("persistence failure")
)

// AppError carries a classified error with caller-facing context.
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	HTTPStatus int               `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err != nil && !isSentinel(e.Err) {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Validation rejects malformed input before any write.
func Validation(message string, details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Message:    message,
		Code:       "VALIDATION_ERROR",
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// Precondition rejects a state transition attempted from an illegal source
// state. Details carry the current vs. expected status for the caller.
func Precondition(message string, details map[string]string) *AppError {
	return &AppError{
		Err:        ErrPrecondition,
		Message:    message,
		Code:       "PRECONDITION_FAILED",
		HTTPStatus: http.StatusConflict,
		Details:    details,
	}
}

// NotFound reports an operation referencing a missing identifier where the
// caller needs to know which one (workflow transitions, HTTP lookups).
func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Code:       "NOT_FOUND",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]string{"resource": resource, "id": id},
	}
}

// Persistence wraps a failed write to the durable medium. The in-memory
// state is guaranteed untouched; the caller must surface this to the user.
func Persistence(err error, collection string) *AppError {
	return &AppError{
		Err:        fmt.Errorf("%w: %w", ErrPersistence, err),
		Message:    fmt.Sprintf("failed to persist collection %q", collection),
		Code:       "PERSISTENCE_ERROR",
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]string{"collection": collection},
	}
}

// HTTPStatus resolves the status code for any error: classified errors map
// to their own status, everything else is a 500.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

func isSentinel(err error) bool {
	return err == ErrValidation || err == ErrPrecondition || err == ErrNotFound || err == ErrPersistence
}
