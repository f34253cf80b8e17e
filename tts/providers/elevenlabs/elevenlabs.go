// Package elevenlabs backs synthesis with the ElevenLabs HTTP API.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/ttscache/tts"
	"github.com/dgnsrekt/ttscache/tts/providers"
)

// Name is the registry name of the ElevenLabs provider.
const Name = "elevenlabs"

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	defaultModel   = "eleven_multilingual_v2"

	// defaultVoiceID is Rachel, the stock default voice.
	defaultVoiceID = "21m00Tcm4TlvDq8ikWAM"
)

type backend struct {
	mu     sync.RWMutex
	cfg    tts.ProviderConfig
	client *http.Client
}

// Factory builds an ElevenLabs provider for the registry.
func Factory(cfg tts.ProviderConfig, deps tts.Deps) (tts.Provider, error) {
	return providers.New(&backend{client: &http.Client{}}, cfg, deps), nil
}

// Registration describes the ElevenLabs provider for the registry.
func Registration() tts.Registration {
	return tts.Registration{
		Name:             Name,
		Factory:          Factory,
		Priority:         8,
		EnabledByDefault: true,
	}
}

func (b *backend) Info() tts.ProviderInfo {
	return tts.ProviderInfo{
		Name:              Name,
		DisplayName:       "ElevenLabs",
		RequiresAPIKey:    true,
		SupportedFeatures: []string{"voice-cloning", "multilingual"},
		SupportedFormats:  []string{"mp3", "pcm", "ulaw"},
		SupportedVoices:   []string{defaultVoiceID},
		Quality:           9,
		RequestsPerMinute: 120,
	}
}

func (b *backend) Reconfigure(cfg tts.ProviderConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg = cfg
	// Per-attempt deadlines come from the request context.
	b.client = &http.Client{}
}

func (b *backend) Probe(ctx context.Context) tts.Availability {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.cfg.APIKey == "" {
		return tts.Availability{Available: false, Reason: "api key not configured"}
	}
	return tts.Availability{Available: true}
}

type synthesisRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

type apiError struct {
	Detail struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"detail"`
}

func (b *backend) Synthesize(ctx context.Context, req providers.Request) ([]byte, error) {
	b.mu.RLock()
	cfg := b.cfg
	client := b.client
	b.mu.RUnlock()

	if cfg.APIKey == "" {
		return nil, tts.NewProviderError(tts.ErrorConfiguration, Name, "api key not configured", nil)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := req.Model
	if model == "" {
		model = defaultModel
	}
	voiceID := req.Voice
	if voiceID == "" {
		voiceID = defaultVoiceID
	}

	payload, err := json.Marshal(synthesisRequest{Text: req.Text, ModelID: model})
	if err != nil {
		return nil, tts.NewProviderError(tts.ErrorInvalidRequest, Name, "encoding request failed", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		strings.TrimRight(baseURL, "/"), voiceID, outputFormat(req.Format))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, tts.NewProviderError(tts.ErrorInvalidRequest, Name, "building request failed", err)
	}
	httpReq.Header.Set("xi-api-key", cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, transportError(err, req.CorrelationID)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, statusError(resp, req.CorrelationID)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		perr := tts.NewProviderError(tts.ErrorNetwork, Name, "reading audio stream failed", err)
		perr.CorrelationID = req.CorrelationID
		return nil, perr
	}
	return audio, nil
}

// outputFormat maps canonical format names onto ElevenLabs output
// format identifiers.
func outputFormat(format string) string {
	switch strings.ToLower(format) {
	case "pcm", "wav":
		return "pcm_44100"
	case "ulaw":
		return "ulaw_8000"
	default:
		return "mp3_44100_128"
	}
}

func statusError(resp *http.Response, correlationID string) *tts.ProviderError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	message := strings.TrimSpace(string(body))
	var decoded apiError
	if json.Unmarshal(body, &decoded) == nil && decoded.Detail.Message != "" {
		message = decoded.Detail.Message
	}
	if message == "" {
		message = resp.Status
	}

	perr := tts.NewProviderError(tts.ClassifyStatusCode(resp.StatusCode), Name, message, nil)
	perr.StatusCode = resp.StatusCode
	perr.CorrelationID = correlationID
	perr.RetryAfter = retryAfter(resp.Header.Get("Retry-After"))
	return perr
}

// retryAfter parses a Retry-After header, seconds form only.
func retryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func transportError(err error, correlationID string) *tts.ProviderError {
	errType := tts.ErrorNetwork
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		errType = tts.ErrorTimeout
	}
	perr := tts.NewProviderError(errType, Name, "request failed", err)
	perr.CorrelationID = correlationID
	return perr
}
