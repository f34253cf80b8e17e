package tts

import (
	"context"
	"testing"
)

func testClientConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Cache.Enabled = true
	cfg.Cache.Dir = t.TempDir()
	return cfg
}

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	client, err := NewClient(cfg, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestClient_EmptyTextRejectedEarly(t *testing.T) {
	client := newTestClient(t, testClientConfig(t))

	result := client.Speak(context.Background(), "   \n\t  ", SpeakOptions{})
	if result.Success {
		t.Fatal("expected failure for whitespace-only text")
	}
	if result.ErrorType != ErrorInvalidRequest {
		t.Errorf("ErrorType = %s, want %s", result.ErrorType, ErrorInvalidRequest)
	}
	// Rejection happens before correlation or provider work.
	if result.CorrelationID != "" {
		t.Errorf("no correlation id should be assigned, got %q", result.CorrelationID)
	}
	if result.Provider != "" {
		t.Errorf("no provider should be consulted, got %q", result.Provider)
	}
}

func TestClient_SpeakSuccess(t *testing.T) {
	client := newTestClient(t, testClientConfig(t))

	p := &stubProvider{
		name:      "alpha",
		available: true,
		result:    SpeakResult{Success: true, Audio: []byte("audio"), Format: "mp3"},
	}
	client.Registry().Register(Registration{
		Name: "alpha", Factory: stubFactory(p), Priority: 10, EnabledByDefault: true,
	})

	result := client.Speak(context.Background(), "hello", SpeakOptions{})
	if !result.Success {
		t.Fatalf("Speak failed: %s", result.Error)
	}
	if result.Provider != "alpha" {
		t.Errorf("Provider = %q, want alpha", result.Provider)
	}
	if result.CorrelationID == "" {
		t.Error("a correlation id should be generated")
	}
	if result.IsFallback {
		t.Error("IsFallback should be false for a direct selection")
	}
}

func TestClient_FallbackAfterProviderFailure(t *testing.T) {
	// alpha is selectable but its synthesis fails with a retryable
	// type; the request should move to beta.
	alpha := &stubProvider{
		name:      "alpha",
		available: true,
		result:    SpeakResult{Success: false, Error: "upstream down", ErrorType: ErrorServiceUnavailable},
	}
	beta := &stubProvider{
		name:      "beta",
		available: true,
		result:    SpeakResult{Success: true, Audio: []byte("audio"), Format: "mp3"},
	}

	client := newTestClient(t, testClientConfig(t))
	client.Registry().Register(Registration{Name: "alpha", Factory: stubFactory(alpha), Priority: 10, EnabledByDefault: true})
	client.Registry().Register(Registration{Name: "beta", Factory: stubFactory(beta), Priority: 5, EnabledByDefault: true})

	result := client.Speak(context.Background(), "hello", SpeakOptions{})
	if !result.Success {
		t.Fatalf("expected fallback to succeed, got: %s", result.Error)
	}
	if result.Provider != "beta" {
		t.Errorf("Provider = %q, want beta", result.Provider)
	}
	if !result.IsFallback {
		t.Error("IsFallback should be true after mid-request fallback")
	}
	found := map[string]bool{}
	for _, name := range result.AlternativesConsidered {
		found[name] = true
	}
	if !found["alpha"] || !found["beta"] {
		t.Errorf("AlternativesConsidered = %v, want both providers recorded", result.AlternativesConsidered)
	}
}

func TestClient_InvalidRequestNotRetriedElsewhere(t *testing.T) {
	// A caller error would be rejected by every backend; it must not
	// consume other providers.
	alpha := &stubProvider{
		name:      "alpha",
		available: true,
		result:    SpeakResult{Success: false, Error: "bad voice", ErrorType: ErrorInvalidRequest},
	}
	beta := &stubProvider{
		name:      "beta",
		available: true,
		result:    SpeakResult{Success: true, Audio: []byte("audio")},
	}

	client := newTestClient(t, testClientConfig(t))
	client.Registry().Register(Registration{Name: "alpha", Factory: stubFactory(alpha), Priority: 10, EnabledByDefault: true})
	client.Registry().Register(Registration{Name: "beta", Factory: stubFactory(beta), Priority: 5, EnabledByDefault: true})

	result := client.Speak(context.Background(), "hello", SpeakOptions{})
	if result.Success {
		t.Fatal("invalid request should not be recovered by fallback")
	}
	if result.Provider != "alpha" {
		t.Errorf("Provider = %q, want alpha", result.Provider)
	}
	if result.ErrorType != ErrorInvalidRequest {
		t.Errorf("ErrorType = %s, want %s", result.ErrorType, ErrorInvalidRequest)
	}
}

func TestClient_NoProvidersRegistered(t *testing.T) {
	client := newTestClient(t, testClientConfig(t))

	result := client.Speak(context.Background(), "hello", SpeakOptions{})
	if result.Success {
		t.Fatal("expected failure with an empty registry")
	}
	if result.ErrorType != ErrorServiceUnavailable {
		t.Errorf("ErrorType = %s, want %s", result.ErrorType, ErrorServiceUnavailable)
	}
}

func TestClient_PreloadDropsAudio(t *testing.T) {
	client := newTestClient(t, testClientConfig(t))

	p := &stubProvider{
		name:      "alpha",
		available: true,
		result:    SpeakResult{Success: true, Audio: []byte("audio"), Format: "mp3"},
	}
	client.Registry().Register(Registration{Name: "alpha", Factory: stubFactory(p), Priority: 10, EnabledByDefault: true})

	result := client.Preload(context.Background(), "hello", SpeakOptions{})
	if !result.Success {
		t.Fatalf("Preload failed: %s", result.Error)
	}
	if result.Audio != nil {
		t.Error("Preload should not return audio")
	}
}

func TestClient_CloseIdempotent(t *testing.T) {
	client := newTestClient(t, testClientConfig(t))
	client.Close()
	client.Close()
}
