// Package errors defines the error taxonomy used across the credential
// provider.
package errors

import (
	"errors"
	"fmt"
)

// Error types
const (
	// ErrAuthenticationFailed is returned when no token provider in the
	// chain produced a bearer token.
	ErrAuthenticationFailed = "authentication_failed"

	// ErrExchangeFailed is returned when the session token exchange failed
	// after the one permitted retry.
	ErrExchangeFailed = "exchange_failed"

	// ErrCacheCorrupted is returned when on-disk cache data could not be
	// deserialized.
	ErrCacheCorrupted = "cache_corrupted"

	// ErrCancelled is returned when an operation was abandoned due to user
	// cancellation or a timeout.
	ErrCancelled = "cancelled"

	// ErrConfiguration is returned when inputs are malformed or a required
	// setting is missing.
	ErrConfiguration = "configuration"

	// ErrInternal is returned when there is an internal error.
	ErrInternal = "internal"
)

// Error represents an error in the application
type Error struct {
	// Type is the error type
	Type string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewAuthenticationFailedError creates a new authentication failed error
func NewAuthenticationFailedError(message string, cause error) *Error {
	return NewError(ErrAuthenticationFailed, message, cause)
}

// NewExchangeFailedError creates a new exchange failed error
func NewExchangeFailedError(message string, cause error) *Error {
	return NewError(ErrExchangeFailed, message, cause)
}

// NewCacheCorruptedError creates a new cache corrupted error
func NewCacheCorruptedError(message string, cause error) *Error {
	return NewError(ErrCacheCorrupted, message, cause)
}

// NewCancelledError creates a new cancelled error
func NewCancelledError(message string, cause error) *Error {
	return NewError(ErrCancelled, message, cause)
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(message string, cause error) *Error {
	return NewError(ErrConfiguration, message, cause)
}

// IsType reports whether err (or any error it wraps) is an *Error of the
// given type.
func IsType(err error, errorType string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == errorType
	}
	return false
}
