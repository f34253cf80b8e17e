package tts

import (
	"errors"
	"strings"
	"testing"
)

func TestErrorTypeRetryable(t *testing.T) {
	tests := []struct {
		errType   ErrorType
		retryable bool
	}{
		{ErrorRateLimit, true},
		{ErrorNetwork, true},
		{ErrorServiceUnavailable, true},
		{ErrorTimeout, true},
		{ErrorAuthentication, false},
		{ErrorInvalidRequest, false},
		{ErrorConfiguration, false},
		{ErrorUnknown, false},
	}

	for _, tt := range tests {
		if got := tt.errType.Retryable(); got != tt.retryable {
			t.Errorf("%s.Retryable() = %v, want %v", tt.errType, got, tt.retryable)
		}
	}
}

func TestClassifyStatusCode(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorType
	}{
		{401, ErrorAuthentication},
		{403, ErrorAuthentication},
		{429, ErrorRateLimit},
		{408, ErrorTimeout},
		{504, ErrorTimeout},
		{400, ErrorInvalidRequest},
		{404, ErrorInvalidRequest},
		{422, ErrorInvalidRequest},
		{500, ErrorServiceUnavailable},
		{503, ErrorServiceUnavailable},
		{418, ErrorUnknown},
	}

	for _, tt := range tests {
		if got := ClassifyStatusCode(tt.status); got != tt.want {
			t.Errorf("ClassifyStatusCode(%d) = %s, want %s", tt.status, got, tt.want)
		}
	}
}

func TestProviderErrorMessage(t *testing.T) {
	err := NewProviderError(ErrorRateLimit, "openai", "too many requests", nil)
	msg := err.Error()
	if !strings.Contains(msg, "openai") || !strings.Contains(msg, "too many requests") {
		t.Errorf("unexpected error message: %s", msg)
	}
	if !err.Retryable {
		t.Error("rate limit errors should be retryable")
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewProviderError(ErrorNetwork, "elevenlabs", "request failed", cause)
	if !errors.Is(err, cause) {
		t.Error("wrapped cause should be reachable through errors.Is")
	}
}

func TestAsProviderError(t *testing.T) {
	// A ProviderError anywhere in the chain comes back as-is.
	original := NewProviderError(ErrorAuthentication, "google", "bad credentials", nil)
	wrapped := errors.Join(errors.New("outer"), original)
	if got := AsProviderError(wrapped, "google"); got.Type != ErrorAuthentication {
		t.Errorf("expected original error type, got %s", got.Type)
	}

	// Anything else is wrapped as unknown.
	plain := errors.New("something odd")
	got := AsProviderError(plain, "mock")
	if got.Type != ErrorUnknown {
		t.Errorf("expected unknown type, got %s", got.Type)
	}
	if got.Provider != "mock" {
		t.Errorf("expected provider attribution, got %q", got.Provider)
	}
}
