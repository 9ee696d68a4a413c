package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/brightdesk/crm-backend/pkg/i18n"
)

// Standard error types
var (
	ErrNotFound             = errors.New("resource not found")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrBadRequest           = errors.New("bad request")
	ErrConflict             = errors.New("resource conflict")
	ErrInternal             = errors.New("internal server error")
	ErrValidation           = errors.New("validation error")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrTokenExpired         = errors.New("token expired")
	ErrTokenInvalid         = errors.New("invalid token")
	ErrSchemaUpgradePending = errors.New("schema upgrade pending")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	MessageKey string            `json:"-"` // i18n key for localization
	Params     map[string]string `json:"-"` // Parameters for i18n interpolation
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// Localize returns a localized version of the error message
func (e *AppError) Localize(ctx context.Context) string {
	if e.MessageKey == "" {
		return e.Message
	}
	return i18n.TFromContext(ctx, e.MessageKey, e.Params)
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		MessageKey: "errors.not_found",
		Params:     map[string]string{"resource": resource},
		StatusCode: http.StatusNotFound,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    message,
		MessageKey: "errors.unauthorized",
		StatusCode: http.StatusUnauthorized,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Code:       "FORBIDDEN",
		Message:    message,
		MessageKey: "errors.forbidden",
		StatusCode: http.StatusForbidden,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		MessageKey: "errors.bad_request",
		StatusCode: http.StatusBadRequest,
	}
}

// SchemaUpgradePending is a BadRequest raised when a request references a
// column or table the running database does not have yet.
func SchemaUpgradePending(feature string) *AppError {
	return &AppError{
		Err:        ErrSchemaUpgradePending,
		Code:       "SCHEMA_UPGRADE_PENDING",
		Message:    fmt.Sprintf("%s is not available yet: a database schema upgrade is pending, please retry shortly", feature),
		MessageKey: "errors.schema_upgrade_pending",
		Params:     map[string]string{"feature": feature},
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		MessageKey: "errors.conflict",
		StatusCode: http.StatusConflict,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		MessageKey: "errors.internal",
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		MessageKey: "errors.validation_failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

func InvalidCredentials() *AppError {
	return &AppError{
		Err:        ErrInvalidCredentials,
		Code:       "INVALID_CREDENTIALS",
		Message:    "invalid email or password",
		MessageKey: "errors.invalid_credentials",
		StatusCode: http.StatusUnauthorized,
	}
}

func TokenExpired() *AppError {
	return &AppError{
		Err:        ErrTokenExpired,
		Code:       "TOKEN_EXPIRED",
		Message:    "token has expired",
		MessageKey: "errors.token_expired",
		StatusCode: http.StatusUnauthorized,
	}
}

func TokenInvalid() *AppError {
	return &AppError{
		Err:        ErrTokenInvalid,
		Code:       "TOKEN_INVALID",
		Message:    "invalid token",
		MessageKey: "errors.token_invalid",
		StatusCode: http.StatusUnauthorized,
	}
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}

// StatusOf returns the HTTP status carried by err, or 500 for plain errors.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
