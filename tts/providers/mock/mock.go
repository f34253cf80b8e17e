// Package mock provides a deterministic in-memory TTS backend for tests
// and dry runs. It never touches the network: the "audio" payload is a
// reproducible function of the request parameters.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgnsrekt/ttscache/tts"
	"github.com/dgnsrekt/ttscache/tts/providers"
)

// Name is the registry name of the mock provider.
const Name = "mock"

// Options controls failure injection and timing.
type Options struct {
	// FailWith, when set, makes Synthesize return this error. Combined
	// with FailTimes it fails only the first N calls.
	FailWith *tts.ProviderError

	// FailTimes bounds how many calls fail. Zero with FailWith set
	// means every call fails.
	FailTimes int

	// Latency is added to every synthesis call.
	Latency time.Duration

	// Unavailable makes the availability probe report false.
	Unavailable bool

	// Payload overrides the default deterministic payload.
	Payload func(req providers.Request) []byte
}

// Backend implements providers.Backend with canned behavior.
type Backend struct {
	mu    sync.Mutex
	opts  Options
	calls int
}

// NewBackend builds a mock backend with the given behavior.
func NewBackend(opts Options) *Backend {
	return &Backend{opts: opts}
}

// Calls reports how many synthesis calls have been made.
func (b *Backend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// SetOptions replaces the injected behavior.
func (b *Backend) SetOptions(opts Options) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opts = opts
}

func (b *Backend) Info() tts.ProviderInfo {
	return tts.ProviderInfo{
		Name:              Name,
		DisplayName:       "Mock TTS",
		RequiresAPIKey:    false,
		SupportedFeatures: []string{"deterministic"},
		SupportedFormats:  []string{"mp3", "wav", "opus", "pcm"},
		Quality:           1,
	}
}

func (b *Backend) Synthesize(ctx context.Context, req providers.Request) ([]byte, error) {
	b.mu.Lock()
	b.calls++
	call := b.calls
	opts := b.opts
	b.mu.Unlock()

	if opts.Latency > 0 {
		timer := time.NewTimer(opts.Latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if opts.FailWith != nil && (opts.FailTimes == 0 || call <= opts.FailTimes) {
		return nil, opts.FailWith
	}

	if opts.Payload != nil {
		return opts.Payload(req), nil
	}
	return []byte(fmt.Sprintf("mock-audio|%s|%s|%.2f|%s|%s",
		req.Voice, req.Model, req.Speed, req.Format, req.Text)), nil
}

func (b *Backend) Probe(ctx context.Context) tts.Availability {
	b.mu.Lock()
	unavailable := b.opts.Unavailable
	b.mu.Unlock()
	if unavailable {
		return tts.Availability{Available: false, Reason: "mock provider disabled"}
	}
	return tts.Availability{Available: true}
}

func (b *Backend) Reconfigure(cfg tts.ProviderConfig) {}

// Factory builds a mock provider for the registry.
func Factory(cfg tts.ProviderConfig, deps tts.Deps) (tts.Provider, error) {
	return providers.New(NewBackend(Options{}), cfg, deps), nil
}

// Registration describes the mock provider for the registry. It is
// disabled by default.
func Registration() tts.Registration {
	return tts.Registration{
		Name:     Name,
		Factory:  Factory,
		Priority: 1,
	}
}
