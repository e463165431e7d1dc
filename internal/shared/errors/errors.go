// Package errors provides application-level error types and utilities.
// Every failure that crosses a component boundary is an AppError whose Type
// names its place in the taxonomy: identity, policy, authentication, delivery
// or configuration.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrorTypeValidation       ErrorType = "validation_error"
	ErrorTypeNotFound         ErrorType = "not_found"
	ErrorTypeInternal         ErrorType = "internal_error"
	ErrorTypeUnauthorized     ErrorType = "unauthorized"
	ErrorTypeIdentityRequired ErrorType = "identity_required"
	ErrorTypeNotAllowed       ErrorType = "not_allowed"
	ErrorTypeAuthFailed       ErrorType = "auth_failed"
	ErrorTypeUnavailable      ErrorType = "unavailable"
	ErrorTypeDeliveryFailed   ErrorType = "delivery_failed"
	ErrorTypeConfig           ErrorType = "config_error"
)

// AppError represents an application error with additional context
type AppError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Details string    `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func newAppError(t ErrorType, code int, message string, details []string) *AppError {
	detail := ""
	if len(details) > 0 {
		detail = details[0]
	}
	return &AppError{
		Type:    t,
		Message: message,
		Code:    code,
		Details: detail,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeValidation, http.StatusBadRequest, message, details)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeNotFound, http.StatusNotFound, message, details)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeInternal, http.StatusInternalServerError, message, details)
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeUnauthorized, http.StatusUnauthorized, message, details)
}

// NewIdentityRequiredError asks the caller to resend with both identities.
// It is not fatal to the flow that produced it.
func NewIdentityRequiredError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeIdentityRequired, http.StatusPreconditionRequired, message, details)
}

// NewNotAllowedError creates a policy rejection
func NewNotAllowedError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeNotAllowed, http.StatusForbidden, message, details)
}

// NewAuthFailedError creates a terminal authentication failure
func NewAuthFailedError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeAuthFailed, http.StatusUnauthorized, message, details)
}

// NewUnavailableError creates a "service unavailable" routing result
func NewUnavailableError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeUnavailable, http.StatusServiceUnavailable, message, details)
}

// NewDeliveryFailedError creates a transient delivery failure
func NewDeliveryFailedError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeDeliveryFailed, http.StatusBadGateway, message, details)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeConfig, http.StatusServiceUnavailable, message, details)
}

// IsAppError checks if the error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from error
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsType reports whether err is an AppError of the given type.
func IsType(err error, t ErrorType) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == t
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsNotAllowed checks if the error is a policy rejection
func IsNotAllowed(err error) bool {
	return IsType(err, ErrorTypeNotAllowed)
}

// IsAuthFailed checks if the error is a terminal authentication failure
func IsAuthFailed(err error) bool {
	return IsType(err, ErrorTypeAuthFailed)
}

// IsUnavailable checks if the error is a "service unavailable" routing result
func IsUnavailable(err error) bool {
	return IsType(err, ErrorTypeUnavailable)
}

// IsIdentityRequired checks if the caller must supply more identity information
func IsIdentityRequired(err error) bool {
	return IsType(err, ErrorTypeIdentityRequired)
}
