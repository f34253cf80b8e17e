// Package google backs synthesis with Google Cloud Text-to-Speech.
package google

import (
	"context"
	"os"
	"strings"
	"sync"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dgnsrekt/ttscache/tts"
	"github.com/dgnsrekt/ttscache/tts/providers"
)

// Name is the registry name of the Google Cloud provider.
const Name = "google"

const defaultVoice = "en-US-Standard-C"

type backend struct {
	mu     sync.Mutex
	cfg    tts.ProviderConfig
	client *texttospeech.Client
}

// Factory builds a Google Cloud provider for the registry.
func Factory(cfg tts.ProviderConfig, deps tts.Deps) (tts.Provider, error) {
	return providers.New(&backend{}, cfg, deps), nil
}

// Registration describes the Google Cloud provider for the registry.
func Registration() tts.Registration {
	return tts.Registration{
		Name:             Name,
		Factory:          Factory,
		Priority:         6,
		EnabledByDefault: true,
	}
}

func (b *backend) Info() tts.ProviderInfo {
	return tts.ProviderInfo{
		Name:              Name,
		DisplayName:       "Google Cloud Text-to-Speech",
		RequiresAPIKey:    true,
		SupportedFeatures: []string{"ssml", "speed-control", "wavenet"},
		SupportedFormats:  []string{"mp3", "wav", "pcm", "opus", "ulaw", "alaw"},
		SupportedVoices:   []string{"en-US-Standard-C", "en-US-Wavenet-D", "en-GB-Standard-A"},
		SupportsSSML:      true,
		Quality:           7,
	}
}

func (b *backend) Reconfigure(cfg tts.ProviderConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg = cfg
	if b.client != nil {
		b.client.Close()
		b.client = nil
	}
}

// connect lazily builds the API client so credentials are read at first
// use, not at registration.
func (b *backend) connect(ctx context.Context) (*texttospeech.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		return b.client, nil
	}

	var opts []option.ClientOption
	if b.cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(b.cfg.CredentialsFile))
	}
	client, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, tts.NewProviderError(tts.ErrorConfiguration, Name, "creating client failed", err)
	}
	b.client = client
	return client, nil
}

func (b *backend) Probe(ctx context.Context) tts.Availability {
	b.mu.Lock()
	credsFile := b.cfg.CredentialsFile
	connected := b.client != nil
	b.mu.Unlock()

	if connected || credsFile != "" || os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != "" {
		return tts.Availability{Available: true}
	}
	return tts.Availability{Available: false, Reason: "google credentials not configured"}
}

func (b *backend) Synthesize(ctx context.Context, req providers.Request) ([]byte, error) {
	client, err := b.connect(ctx)
	if err != nil {
		return nil, err
	}

	voice := req.Voice
	if voice == "" {
		voice = defaultVoice
	}
	lang := req.Language
	if lang == "" {
		lang = languageFromVoice(voice)
	}

	resp, err := client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: req.Text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: lang,
			Name:         voice,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: encodingForFormat(req.Format),
			SpeakingRate:  req.Speed,
		},
	})
	if err != nil {
		return nil, classify(err, req.CorrelationID)
	}
	if len(resp.AudioContent) == 0 {
		perr := tts.NewProviderError(tts.ErrorServiceUnavailable, Name, "empty audio content", nil)
		perr.CorrelationID = req.CorrelationID
		return nil, perr
	}
	return resp.AudioContent, nil
}

// languageFromVoice derives "en-US" from voice names like
// "en-US-Standard-C".
func languageFromVoice(voice string) string {
	parts := strings.SplitN(voice, "-", 3)
	if len(parts) >= 2 {
		return parts[0] + "-" + parts[1]
	}
	return "en-US"
}

func encodingForFormat(format string) texttospeechpb.AudioEncoding {
	switch strings.ToLower(format) {
	case "wav", "pcm":
		return texttospeechpb.AudioEncoding_LINEAR16
	case "opus":
		return texttospeechpb.AudioEncoding_OGG_OPUS
	case "ulaw":
		return texttospeechpb.AudioEncoding_MULAW
	case "alaw":
		return texttospeechpb.AudioEncoding_ALAW
	default:
		return texttospeechpb.AudioEncoding_MP3
	}
}

// classify maps gRPC status codes onto the error taxonomy.
func classify(err error, correlationID string) *tts.ProviderError {
	st, ok := status.FromError(err)
	if !ok {
		perr := tts.AsProviderError(err, Name)
		perr.CorrelationID = correlationID
		return perr
	}

	var errType tts.ErrorType
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		errType = tts.ErrorAuthentication
	case codes.ResourceExhausted:
		errType = tts.ErrorRateLimit
	case codes.InvalidArgument, codes.NotFound:
		errType = tts.ErrorInvalidRequest
	case codes.Unavailable:
		errType = tts.ErrorServiceUnavailable
	case codes.DeadlineExceeded:
		errType = tts.ErrorTimeout
	default:
		errType = tts.ErrorUnknown
	}
	perr := tts.NewProviderError(errType, Name, st.Message(), err)
	perr.CorrelationID = correlationID
	return perr
}
