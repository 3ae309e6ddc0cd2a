// Package errors provides custom error types for the coderclaw services.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes as constants
const (
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeBadRequest           = "BAD_REQUEST"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeInternalError        = "INTERNAL_ERROR"
	ErrCodeConflict             = "CONFLICT"
	ErrCodeValidationError      = "VALIDATION_ERROR"
	ErrCodeInvalidTransition    = "INVALID_TRANSITION"
	ErrCodeTerminalImmutable    = "TERMINAL_IMMUTABLE"
	ErrCodeWorkflowCyclic       = "WORKFLOW_CYCLIC"
	ErrCodeWorkflowStuck        = "WORKFLOW_STUCK"
	ErrCodeSessionExpired       = "SESSION_EXPIRED"
	ErrCodePermissionDenied     = "PERMISSION_DENIED"
	ErrCodeTransportUnavailable = "TRANSPORT_UNAVAILABLE"
	ErrCodeStorageUnavailable   = "STORAGE_UNAVAILABLE"
)

// AppError represents an application-specific error with additional context.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"http_status"`
	Err        error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for use with errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a new not found error for a resource.
func NotFound(resource string, id string) *AppError {
	return &AppError{
		Code:       ErrCodeNotFound,
		Message:    fmt.Sprintf("%s with id '%s' not found", resource, id),
		HTTPStatus: http.StatusNotFound,
	}
}

// BadRequest creates a new bad request error.
func BadRequest(message string) *AppError {
	return &AppError{
		Code:       ErrCodeBadRequest,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// Unauthorized creates a new unauthorized error.
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:       ErrCodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// Forbidden creates a new forbidden error.
func Forbidden(message string) *AppError {
	return &AppError{
		Code:       ErrCodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// InternalError creates a new internal server error with a wrapped underlying error.
func InternalError(message string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeInternalError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// Conflict creates a new conflict error.
func Conflict(message string) *AppError {
	return &AppError{
		Code:       ErrCodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// ValidationError creates a new validation error for a specific field.
func ValidationError(field string, message string) *AppError {
	return &AppError{
		Code:       ErrCodeValidationError,
		Message:    fmt.Sprintf("validation failed for field '%s': %s", field, message),
		HTTPStatus: http.StatusBadRequest,
	}
}

// InvalidTransition creates an error for a task state change that violates
// the lifecycle transition table.
func InvalidTransition(from, to string) *AppError {
	return &AppError{
		Code:       ErrCodeInvalidTransition,
		Message:    fmt.Sprintf("invalid task transition from '%s' to '%s'", from, to),
		HTTPStatus: http.StatusConflict,
	}
}

// TerminalImmutable creates an error for a mutation attempted on a task that
// has already reached a terminal status.
func TerminalImmutable(taskID string) *AppError {
	return &AppError{
		Code:       ErrCodeTerminalImmutable,
		Message:    fmt.Sprintf("task '%s' is terminal and cannot be mutated", taskID),
		HTTPStatus: http.StatusConflict,
	}
}

// WorkflowCyclic creates a creation-time error for a workflow whose
// dependency graph contains a cycle.
func WorkflowCyclic(workflowID string) *AppError {
	return &AppError{
		Code:       ErrCodeWorkflowCyclic,
		Message:    fmt.Sprintf("workflow '%s' dependency graph contains a cycle", workflowID),
		HTTPStatus: http.StatusBadRequest,
	}
}

// WorkflowStuck creates a runtime error for a workflow with no dispatchable
// tasks and at least one non-terminal task remaining.
func WorkflowStuck(workflowID string) *AppError {
	return &AppError{
		Code:       ErrCodeWorkflowStuck,
		Message:    fmt.Sprintf("workflow '%s' has non-terminal tasks but none are dispatchable", workflowID),
		HTTPStatus: http.StatusConflict,
	}
}

// SessionExpired creates an error for an authorization check against an
// expired session.
func SessionExpired(sessionID string) *AppError {
	return &AppError{
		Code:       ErrCodeSessionExpired,
		Message:    fmt.Sprintf("session '%s' has expired", sessionID),
		HTTPStatus: http.StatusUnauthorized,
	}
}

// PermissionDenied creates an error carrying the denial reason.
func PermissionDenied(reason string) *AppError {
	return &AppError{
		Code:       ErrCodePermissionDenied,
		Message:    reason,
		HTTPStatus: http.StatusForbidden,
	}
}

// TransportUnavailable creates a transient error for a failed transport call.
// Callers may retry.
func TransportUnavailable(message string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeTransportUnavailable,
		Message:    message,
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// StorageUnavailable creates an error for a failed storage operation.
func StorageUnavailable(message string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeStorageUnavailable,
		Message:    message,
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// Wrap wraps an existing error with additional context, returning an AppError.
func Wrap(err error, message string) *AppError {
	if err == nil {
		return nil
	}

	// If the error is already an AppError, preserve its code and status
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:       appErr.Code,
			Message:    fmt.Sprintf("%s: %s", message, appErr.Message),
			HTTPStatus: appErr.HTTPStatus,
			Err:        err,
		}
	}

	// Otherwise, wrap as an internal error
	return &AppError{
		Code:       ErrCodeInternalError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode checks whether the error is an AppError carrying the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return HasCode(err, ErrCodeNotFound)
}

// IsInvalidTransition checks if the error is an invalid transition error.
func IsInvalidTransition(err error) bool {
	return HasCode(err, ErrCodeInvalidTransition)
}

// IsTerminalImmutable checks if the error is a terminal immutability error.
func IsTerminalImmutable(err error) bool {
	return HasCode(err, ErrCodeTerminalImmutable)
}

// IsTransportUnavailable checks if the error is a transient transport error.
func IsTransportUnavailable(err error) bool {
	return HasCode(err, ErrCodeTransportUnavailable)
}

// IsStorageUnavailable checks if the error is a storage error.
func IsStorageUnavailable(err error) bool {
	return HasCode(err, ErrCodeStorageUnavailable)
}

// GetHTTPStatus returns the HTTP status code for an error.
// Returns 500 Internal Server Error if the error is not an AppError.
func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
