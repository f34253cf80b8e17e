package tts

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType classifies a provider failure. Classification happens at
// the call site that knows the wire format; nothing inspects error
// shapes generically.
type ErrorType string

const (
	ErrorAuthentication     ErrorType = "authentication"
	ErrorRateLimit          ErrorType = "rate_limit"
	ErrorNetwork            ErrorType = "network"
	ErrorInvalidRequest     ErrorType = "invalid_request"
	ErrorServiceUnavailable ErrorType = "service_unavailable"
	ErrorConfiguration      ErrorType = "configuration"
	ErrorTimeout            ErrorType = "timeout"
	ErrorUnknown            ErrorType = "unknown"
)

// Retryable reports whether failures of this type may be retried with
// backoff. Authentication, invalid request, and configuration failures
// surface immediately without consuming retry budget.
func (t ErrorType) Retryable() bool {
	switch t {
	case ErrorRateLimit, ErrorNetwork, ErrorServiceUnavailable, ErrorTimeout:
		return true
	}
	return false
}

// Common sentinel errors for the registry and client surface.
var (
	ErrNoProviderAvailable = errors.New("no provider available")
	ErrProviderNotFound    = errors.New("provider not registered")
	ErrEmptyText           = errors.New("text is empty")
)

// ProviderError is a structured provider failure.
type ProviderError struct {
	Type          ErrorType
	Provider      string
	CorrelationID string
	Message       string
	Retryable     bool
	RetryAfter    time.Duration // hint from the upstream, zero if none
	StatusCode    int           // upstream HTTP status, zero if not applicable
	Err           error         // wrapped cause
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Type)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v (%s)", e.Provider, e.Err, e.Type)
	}
	return fmt.Sprintf("%s: %s error", e.Provider, e.Type)
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError builds a ProviderError with retryability derived
// from the error type.
func NewProviderError(errType ErrorType, provider, message string, cause error) *ProviderError {
	return &ProviderError{
		Type:      errType,
		Provider:  provider,
		Message:   message,
		Retryable: errType.Retryable(),
		Err:       cause,
	}
}

// ClassifyStatusCode maps an upstream HTTP status to an error type.
func ClassifyStatusCode(status int) ErrorType {
	switch {
	case status == 401 || status == 403:
		return ErrorAuthentication
	case status == 429:
		return ErrorRateLimit
	case status == 408 || status == 504:
		return ErrorTimeout
	case status == 400 || status == 404 || status == 422:
		return ErrorInvalidRequest
	case status >= 500:
		return ErrorServiceUnavailable
	case status >= 400:
		return ErrorUnknown
	}
	return ErrorUnknown
}

// AsProviderError extracts a *ProviderError from err, or wraps err as
// an unknown failure attributed to provider.
func AsProviderError(err error, provider string) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return NewProviderError(ErrorUnknown, provider, err.Error(), err)
}
