// Package errors provides structured errors for the hub's failure taxonomy and
// maps them onto HTTP status codes for the health and websocket endpoints.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType is the category of a failure, used for logging, metrics labels
// and response formatting.
type ErrorType string

const (
	// TypeDecode is a malformed envelope from either transport.
	TypeDecode ErrorType = "decode"
	// TypeDelivery is a failed send to a single client.
	TypeDelivery ErrorType = "delivery"
	// TypeTransportConnect is a broker that is unreachable or refused the subscription.
	TypeTransportConnect ErrorType = "transport_connect"
	// TypeSpoolIO is an unreadable or undeletable spool file.
	TypeSpoolIO ErrorType = "spool_io"
	// TypeConfig is a missing or invalid setting.
	TypeConfig ErrorType = "config"
	// TypeValidation indicates invalid request input (HTTP 400)
	TypeValidation ErrorType = "validation"
	// TypeUnavailable indicates a request rejected for capacity reasons (HTTP 503)
	TypeUnavailable ErrorType = "unavailable"
	// TypeRateLimited indicates a client exceeding its request rate (HTTP 429)
	TypeRateLimited ErrorType = "rate_limited"
	// TypeInternal indicates server-side error (HTTP 500)
	TypeInternal ErrorType = "internal"
)

// Error is a structured error with type, message, cause and context fields.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the appropriate HTTP status code for this error type.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation, TypeDecode:
		return http.StatusBadRequest
	case TypeRateLimited:
		return http.StatusTooManyRequests
	case TypeUnavailable, TypeTransportConnect:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Fatal reports whether the error must stop the process.
func (e *Error) Fatal() bool {
	return e.Type == TypeConfig
}

func newError(t ErrorType, message string, cause error) *Error {
	return &Error{
		Type:    t,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

func DecodeError(message string, cause error) *Error {
	return newError(TypeDecode, message, cause)
}

func DeliveryError(message string, cause error) *Error {
	return newError(TypeDelivery, message, cause)
}

func TransportConnectError(message string, cause error) *Error {
	return newError(TypeTransportConnect, message, cause)
}

func SpoolIOError(message string, cause error) *Error {
	return newError(TypeSpoolIO, message, cause)
}

func ConfigError(message string, cause error) *Error {
	return newError(TypeConfig, message, cause)
}

func ValidationError(message string) *Error {
	return newError(TypeValidation, message, nil)
}

func UnavailableError(message string) *Error {
	return newError(TypeUnavailable, message, nil)
}

func RateLimitedError(message string) *Error {
	return newError(TypeRateLimited, message, nil)
}

func InternalError(message string, cause error) *Error {
	return newError(TypeInternal, message, cause)
}

// WithField adds a context field to the error (chainable).
func (e *Error) WithField(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ErrorResponse represents the JSON structure sent to clients.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Type    ErrorType      `json:"type"`
	Context map[string]any `json:"context,omitempty"`
}

func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error:   e.Message,
		Type:    e.Type,
		Context: e.Context,
	}
}

// LogAttrs flattens the error into slog key/value pairs.
func (e *Error) LogAttrs() []any {
	attrs := []any{"error_type", string(e.Type), "message", e.Message}
	for k, v := range e.Context {
		attrs = append(attrs, k, v)
	}
	if e.Cause != nil {
		attrs = append(attrs, "cause", e.Cause)
	}
	return attrs
}

// AsStructuredError converts any error into a structured Error.
// If err already wraps an *Error, that one is returned.
// Otherwise it is wrapped as an internal error.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}

	var structuredErr *Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	return InternalError("internal server error", err)
}

// IsType reports whether err wraps a structured error of the given type.
func IsType(err error, t ErrorType) bool {
	var structuredErr *Error
	return errors.As(err, &structuredErr) && structuredErr.Type == t
}
