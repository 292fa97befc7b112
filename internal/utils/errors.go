package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind classifies a failed backend call
type ErrorKind string

const (
	KindClient       ErrorKind = "client"
	KindUnauthorized ErrorKind = "unauthorized"
	KindForbidden    ErrorKind = "forbidden"
	KindRateLimited  ErrorKind = "rate_limited"
	KindServer       ErrorKind = "server"
	KindNetwork      ErrorKind = "network"
	KindTimeout      ErrorKind = "timeout"
)

// KindForStatus maps an HTTP status code to an ErrorKind
func KindForStatus(statusCode int) ErrorKind {
	switch {
	case statusCode == http.StatusUnauthorized:
		return KindUnauthorized
	case statusCode == http.StatusForbidden:
		return KindForbidden
	case statusCode == http.StatusTooManyRequests:
		return KindRateLimited
	case statusCode >= 500:
		return KindServer
	default:
		return KindClient
	}
}

// APIError represents an API error
type APIError struct {
	StatusCode int       `json:"status_code"`
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"message"`
	Code       string    `json:"code,omitempty"`
	Method     string    `json:"method,omitempty"`
	Path       string    `json:"path,omitempty"`
	Err        error     `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	switch e.Kind {
	case KindNetwork:
		return fmt.Sprintf("server unreachable: %v", e.Err)
	case KindTimeout:
		return "request timed out"
	}
	if e.Message != "" {
		return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("HTTP error: %d", e.StatusCode)
}

// Unwrap exposes the transport error, if any
func (e *APIError) Unwrap() error {
	return e.Err
}

// NewAPIError creates a new API error
func NewAPIError(statusCode int, message, code string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		Kind:       KindForStatus(statusCode),
		Message:    message,
		Code:       code,
	}
}

// NewTransportError wraps a failure that never produced an HTTP response
func NewTransportError(kind ErrorKind, method, path string, err error) *APIError {
	return &APIError{
		Kind:   kind,
		Method: method,
		Path:   path,
		Err:    err,
	}
}

// DetailFromBody extracts the backend's "detail" message from an error body.
// Non-JSON bodies are returned trimmed; list-shaped details are joined.
func DetailFromBody(body []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return strings.TrimSpace(string(body))
	}

	var text string
	if err := json.Unmarshal(envelope.Detail, &text); err == nil {
		return text
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &items); err == nil && len(items) > 0 {
		msgs := make([]string, 0, len(items))
		for _, item := range items {
			msgs = append(msgs, item.Msg)
		}
		return strings.Join(msgs, "; ")
	}

	return string(envelope.Detail)
}

// AsAPIError unwraps err into an *APIError
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

func hasKind(err error, kind ErrorKind) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Kind == kind
}

// IsAuthError checks if the error is an authentication error
func IsAuthError(err error) bool {
	return hasKind(err, KindUnauthorized)
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// IsForbiddenError checks if the error is a forbidden error
func IsForbiddenError(err error) bool {
	return hasKind(err, KindForbidden)
}

// IsRateLimitError checks if the backend refused because of too many attempts
func IsRateLimitError(err error) bool {
	return hasKind(err, KindRateLimited)
}

// IsTransportError checks if the request never got an HTTP response
func IsTransportError(err error) bool {
	return hasKind(err, KindNetwork) || hasKind(err, KindTimeout)
}

// Detail returns the server-reported message carried by err, or fallback
func Detail(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	if apiErr, ok := AsAPIError(err); ok {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		if apiErr.Kind == KindNetwork || apiErr.Kind == KindTimeout {
			return apiErr.Error()
		}
		return fallback
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Message
	}
	return fallback
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsValidationError checks if err carries at least one ValidationError
func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// MultiError represents multiple errors
type MultiError struct {
	Errors []error `json:"errors"`
}

// Error implements the error interface
func (e *MultiError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d errors occurred: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Unwrap lets errors.Is and errors.As look inside
func (e *MultiError) Unwrap() []error {
	return e.Errors
}

// Add adds an error to the multi-error
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors
func (e *MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ErrorOrNil returns e when it holds errors and nil otherwise
func (e *MultiError) ErrorOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// NewMultiError creates a new multi-error
func NewMultiError() *MultiError {
	return &MultiError{
		Errors: make([]error, 0),
	}
}
