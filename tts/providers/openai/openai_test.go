package openai

import (
	"context"
	"errors"
	"testing"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/dgnsrekt/ttscache/tts"
	"github.com/dgnsrekt/ttscache/tts/providers"
)

func TestProbeFollowsConfiguredKey(t *testing.T) {
	b := &backend{}

	if avail := b.Probe(context.Background()); avail.Available {
		t.Error("expected unavailable before configuration")
	}

	b.Reconfigure(tts.ProviderConfig{APIKey: "sk-test"})
	if avail := b.Probe(context.Background()); !avail.Available {
		t.Errorf("expected available with key, got reason %q", avail.Reason)
	}

	b.Reconfigure(tts.ProviderConfig{})
	avail := b.Probe(context.Background())
	if avail.Available {
		t.Error("expected unavailable after key cleared")
	}
	if avail.Reason == "" {
		t.Error("expected an availability reason")
	}
}

func TestSynthesizeWithoutKey(t *testing.T) {
	b := &backend{}

	_, err := b.Synthesize(context.Background(), providers.Request{Text: "hello"})
	perr := tts.AsProviderError(err, Name)
	if perr.Type != tts.ErrorConfiguration {
		t.Errorf("Type = %s, want %s", perr.Type, tts.ErrorConfiguration)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want tts.ErrorType
	}{
		{
			name: "api error 401",
			err:  &goopenai.APIError{HTTPStatusCode: 401, Message: "bad key"},
			want: tts.ErrorAuthentication,
		},
		{
			name: "api error 429",
			err:  &goopenai.APIError{HTTPStatusCode: 429, Message: "slow down"},
			want: tts.ErrorRateLimit,
		},
		{
			name: "request error 503",
			err:  &goopenai.RequestError{HTTPStatusCode: 503, Err: errors.New("unavailable")},
			want: tts.ErrorServiceUnavailable,
		},
		{
			name: "plain error",
			err:  errors.New("mystery"),
			want: tts.ErrorUnknown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perr := classify(tt.err, "corr-1")
			if perr.Type != tt.want {
				t.Errorf("Type = %s, want %s", perr.Type, tt.want)
			}
			if perr.CorrelationID != "corr-1" {
				t.Errorf("CorrelationID = %q, want corr-1", perr.CorrelationID)
			}
			if perr.Provider != Name {
				t.Errorf("Provider = %q, want %q", perr.Provider, Name)
			}
		})
	}
}
