// Package openai backs synthesis with the OpenAI speech API via the
// go-openai client.
package openai

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/dgnsrekt/ttscache/tts"
	"github.com/dgnsrekt/ttscache/tts/providers"
)

// Name is the registry name of the OpenAI provider.
const Name = "openai"

const (
	defaultModel = "tts-1"
	defaultVoice = "alloy"
)

type backend struct {
	mu     sync.RWMutex
	client *goopenai.Client
}

// Factory builds an OpenAI provider for the registry.
func Factory(cfg tts.ProviderConfig, deps tts.Deps) (tts.Provider, error) {
	return providers.New(&backend{}, cfg, deps), nil
}

// Registration describes the OpenAI provider for the registry.
func Registration() tts.Registration {
	return tts.Registration{
		Name:             Name,
		Factory:          Factory,
		Priority:         10,
		EnabledByDefault: true,
	}
}

func (b *backend) Info() tts.ProviderInfo {
	return tts.ProviderInfo{
		Name:              Name,
		DisplayName:       "OpenAI TTS",
		RequiresAPIKey:    true,
		SupportedFeatures: []string{"speed-control", "hd-models"},
		SupportedFormats:  []string{"mp3", "opus", "aac", "flac", "wav", "pcm"},
		SupportedVoices:   []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"},
		Quality:           8,
		RequestsPerMinute: 50,
	}
}

func (b *backend) Reconfigure(cfg tts.ProviderConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cfg.APIKey == "" {
		b.client = nil
		return
	}
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	b.client = goopenai.NewClientWithConfig(clientCfg)
}

func (b *backend) Probe(ctx context.Context) tts.Availability {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.client == nil {
		return tts.Availability{Available: false, Reason: "api key not configured"}
	}
	return tts.Availability{Available: true}
}

func (b *backend) Synthesize(ctx context.Context, req providers.Request) ([]byte, error) {
	b.mu.RLock()
	client := b.client
	b.mu.RUnlock()
	if client == nil {
		return nil, tts.NewProviderError(tts.ErrorConfiguration, Name, "api key not configured", nil)
	}

	model := req.Model
	if model == "" {
		model = defaultModel
	}
	voice := req.Voice
	if voice == "" {
		voice = defaultVoice
	}

	resp, err := client.CreateSpeech(ctx, goopenai.CreateSpeechRequest{
		Model:          goopenai.SpeechModel(model),
		Input:          req.Text,
		Voice:          goopenai.SpeechVoice(voice),
		ResponseFormat: goopenai.SpeechResponseFormat(req.Format),
		Speed:          req.Speed,
	})
	if err != nil {
		return nil, classify(err, req.CorrelationID)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		perr := tts.NewProviderError(tts.ErrorNetwork, Name, "reading audio stream failed", err)
		perr.CorrelationID = req.CorrelationID
		return nil, perr
	}
	return audio, nil
}

// classify maps go-openai error shapes onto the error taxonomy.
func classify(err error, correlationID string) *tts.ProviderError {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		perr := tts.NewProviderError(tts.ClassifyStatusCode(apiErr.HTTPStatusCode), Name, apiErr.Message, err)
		perr.StatusCode = apiErr.HTTPStatusCode
		perr.CorrelationID = correlationID
		return perr
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		perr := tts.NewProviderError(tts.ClassifyStatusCode(reqErr.HTTPStatusCode), Name, reqErr.Error(), err)
		perr.StatusCode = reqErr.HTTPStatusCode
		perr.CorrelationID = correlationID
		return perr
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		errType := tts.ErrorNetwork
		if netErr.Timeout() {
			errType = tts.ErrorTimeout
		}
		perr := tts.NewProviderError(errType, Name, netErr.Error(), err)
		perr.CorrelationID = correlationID
		return perr
	}
	perr := tts.AsProviderError(err, Name)
	perr.CorrelationID = correlationID
	return perr
}
