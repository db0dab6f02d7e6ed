package httpx

import (
	"fmt"
	"net/http"
)

// Business error codes
const (
	// Success
	CodeSuccess = 0

	// Parameter errors (2000-2099)
	CodeParamMissing = 2001 // Parameter missing
	CodeParamInvalid = 2002 // Parameter format error

	// Resource/Business errors (3000-3999)
	CodeNotFound      = 3001 // Resource not found
	CodeStateConflict = 3003 // Current state does not allow operation

	// System errors (5000-5999)
	CodeInternalError = 5001 // Internal service error
	CodeDatabaseError = 5002 // Database error
)

// AppError represents an application error with HTTP status and business code
type AppError struct {
	HTTPStatus int    // HTTP status code
	Code       int    // Business error code
	Message    string // User-facing error message
	Err        error  // Internal error (for logging only, not returned to client)
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("code=%d, message=%s, err=%v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("code=%d, message=%s", e.Code, e.Message)
}

// NewAppError creates a new AppError
func NewAppError(httpStatus, code int, message string, err error) *AppError {
	return &AppError{
		HTTPStatus: httpStatus,
		Code:       code,
		Message:    message,
		Err:        err,
	}
}

// ErrParamMissing creates a 400 parameter missing error
func ErrParamMissing(message string) *AppError {
	if message == "" {
		message = "parameter missing"
	}
	return NewAppError(http.StatusBadRequest, CodeParamMissing, message, nil)
}

// ErrParamInvalid creates a 400 parameter invalid error
func ErrParamInvalid(message string) *AppError {
	if message == "" {
		message = "parameter format error"
	}
	return NewAppError(http.StatusBadRequest, CodeParamInvalid, message, nil)
}

// ErrNotFound creates a 404 not found error
func ErrNotFound(message string) *AppError {
	if message == "" {
		message = "resource not found"
	}
	return NewAppError(http.StatusNotFound, CodeNotFound, message, nil)
}

// ErrStateConflict creates a 409 state conflict error
func ErrStateConflict(message string) *AppError {
	if message == "" {
		message = "current state does not allow operation"
	}
	return NewAppError(http.StatusConflict, CodeStateConflict, message, nil)
}

// ErrInternalError creates a 500 internal error
func ErrInternalError(message string, err error) *AppError {
	if message == "" {
		message = "internal error"
	}
	return NewAppError(http.StatusInternalServerError, CodeInternalError, message, err)
}

// ErrDatabaseError creates a 500 database error
func ErrDatabaseError(message string, err error) *AppError {
	if message == "" {
		message = "database error"
	}
	return NewAppError(http.StatusInternalServerError, CodeDatabaseError, message, err)
}
