package elevenlabs

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgnsrekt/ttscache/tts"
	"github.com/dgnsrekt/ttscache/tts/providers"
)

func testBackend(baseURL string) *backend {
	b := &backend{}
	b.Reconfigure(tts.ProviderConfig{APIKey: "xi-test-key", BaseURL: baseURL})
	return b
}

func TestSynthesize(t *testing.T) {
	var gotPath, gotKey, gotFormat string
	var gotBody synthesisRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("xi-api-key")
		gotFormat = r.URL.Query().Get("output_format")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)
		w.Write([]byte("mp3-bytes"))
	}))
	defer server.Close()

	b := testBackend(server.URL)
	audio, err := b.Synthesize(context.Background(), providers.Request{
		Text:   "hello",
		Voice:  "voice-123",
		Format: "mp3",
	})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if string(audio) != "mp3-bytes" {
		t.Errorf("audio = %q", audio)
	}
	if gotPath != "/v1/text-to-speech/voice-123" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "xi-test-key" {
		t.Errorf("api key header = %q", gotKey)
	}
	if gotFormat != "mp3_44100_128" {
		t.Errorf("output_format = %q", gotFormat)
	}
	if gotBody.Text != "hello" || gotBody.ModelID != defaultModel {
		t.Errorf("request body = %+v", gotBody)
	}
}

func TestSynthesize_RateLimitWithRetryAfter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "12")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"detail": map[string]string{"status": "too_many_requests", "message": "slow down"},
		})
	}))
	defer server.Close()

	b := testBackend(server.URL)
	_, err := b.Synthesize(context.Background(), providers.Request{Text: "hello"})
	if err == nil {
		t.Fatal("expected error")
	}

	perr := tts.AsProviderError(err, Name)
	if perr.Type != tts.ErrorRateLimit {
		t.Errorf("Type = %s, want %s", perr.Type, tts.ErrorRateLimit)
	}
	if perr.RetryAfter != 12*time.Second {
		t.Errorf("RetryAfter = %v, want 12s", perr.RetryAfter)
	}
	if perr.Message != "slow down" {
		t.Errorf("Message = %q", perr.Message)
	}
	if !perr.Retryable {
		t.Error("rate limit errors should be retryable")
	}
}

func TestSynthesize_AuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	b := testBackend(server.URL)
	_, err := b.Synthesize(context.Background(), providers.Request{Text: "hello"})
	perr := tts.AsProviderError(err, Name)
	if perr.Type != tts.ErrorAuthentication {
		t.Errorf("Type = %s, want %s", perr.Type, tts.ErrorAuthentication)
	}
	if perr.Retryable {
		t.Error("auth failures must not be retried")
	}
}

func TestSynthesize_MissingKey(t *testing.T) {
	b := &backend{}
	b.Reconfigure(tts.ProviderConfig{})
	_, err := b.Synthesize(context.Background(), providers.Request{Text: "hello"})
	perr := tts.AsProviderError(err, Name)
	if perr.Type != tts.ErrorConfiguration {
		t.Errorf("Type = %s, want %s", perr.Type, tts.ErrorConfiguration)
	}

	avail := b.Probe(context.Background())
	if avail.Available {
		t.Error("probe should report unavailable without an api key")
	}
}

func TestOutputFormat(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"mp3", "mp3_44100_128"},
		{"MP3", "mp3_44100_128"},
		{"pcm", "pcm_44100"},
		{"wav", "pcm_44100"},
		{"ulaw", "ulaw_8000"},
		{"", "mp3_44100_128"},
	}
	for _, tt := range tests {
		if got := outputFormat(tt.format); got != tt.want {
			t.Errorf("outputFormat(%q) = %q, want %q", tt.format, got, tt.want)
		}
	}
}

func TestRetryAfterParsing(t *testing.T) {
	tests := []struct {
		header string
		want   time.Duration
	}{
		{"", 0},
		{"30", 30 * time.Second},
		{" 5 ", 5 * time.Second},
		{"not-a-number", 0},
		{"-3", 0},
	}
	for _, tt := range tests {
		if got := retryAfter(tt.header); got != tt.want {
			t.Errorf("retryAfter(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}
