package core

import (
	"errors"
	"fmt"
)

// Error is the canonical error shape shared by the pipeline, the art service
// and the HTTP surface.
type Error struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Param     string    `json:"param,omitempty"`
	Code      string    `json:"code,omitempty"`
	RequestID string    `json:"request_id,omitempty"`

	// Err is the underlying cause. It is never serialized.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest   ErrorType = "invalid_request_error"
	ErrNotFound         ErrorType = "not_found_error"
	ErrPermissionDenied ErrorType = "permission_denied_error"
	ErrConfigMissing    ErrorType = "config_missing_error"
	ErrTransport        ErrorType = "transport_error"
	ErrDecode           ErrorType = "decode_error"
	ErrImageGeneration  ErrorType = "image_generation_error"
	ErrRateLimit        ErrorType = "rate_limit_error"
	ErrAPI              ErrorType = "api_error"
	ErrOverloaded       ErrorType = "overloaded_error"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message}
}

// NewInvalidRequestErrorWithParam creates an invalid request error with a parameter.
func NewInvalidRequestErrorWithParam(message, param string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message, Param: param}
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(message string) *Error {
	return &Error{Type: ErrNotFound, Message: message}
}

// NewPermissionDeniedError reports that a device or capability was refused.
func NewPermissionDeniedError(message string, cause error) *Error {
	return &Error{Type: ErrPermissionDenied, Message: message, Err: cause}
}

// NewConfigMissingError reports a required setting (usually a credential) that is absent.
func NewConfigMissingError(message, param string) *Error {
	return &Error{Type: ErrConfigMissing, Message: message, Param: param}
}

// NewTransportError reports a failed or broken connection to a remote endpoint.
func NewTransportError(message string, cause error) *Error {
	return &Error{Type: ErrTransport, Message: message, Err: cause}
}

// NewDecodeError reports a payload that could not be decoded.
func NewDecodeError(message string, cause error) *Error {
	return &Error{Type: ErrDecode, Message: message, Err: cause}
}

// NewImageGenerationError reports a failed or empty image generation call.
func NewImageGenerationError(message string, cause error) *Error {
	return &Error{Type: ErrImageGeneration, Message: message, Err: cause}
}

// NewAPIError creates a generic API error.
func NewAPIError(message string) *Error {
	return &Error{Type: ErrAPI, Message: message}
}

// NewRateLimitError creates a rate limit error.
func NewRateLimitError(message string) *Error {
	return &Error{Type: ErrRateLimit, Message: message}
}

// NewOverloadedError creates an overloaded error.
func NewOverloadedError(message string) *Error {
	return &Error{Type: ErrOverloaded, Message: message}
}

// IsType reports whether err is, or wraps, a *Error of type t.
func IsType(err error, t ErrorType) bool {
	var ce *Error
	if !errors.As(err, &ce) || ce == nil {
		return false
	}
	return ce.Type == t
}
