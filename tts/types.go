package tts

import (
	"context"
	"time"
)

// SpeakOptions carries the per-request synthesis parameters. Zero-value
// fields fall back to the selected provider's configured defaults.
type SpeakOptions struct {
	// Provider requests a specific backend by name. Empty means "let
	// the registry choose by priority".
	Provider string

	Voice    string
	Model    string
	Speed    float64
	Format   string
	Language string

	// ExtraParams are provider-specific knobs folded into the cache key
	// in a canonical order.
	ExtraParams map[string]string

	// CorrelationID threads a caller-supplied identifier through cache,
	// provider, and registry logs. Generated when empty.
	CorrelationID string

	// Criteria filters provider selection when no explicit provider is
	// requested, and controls fallback.
	Criteria SelectionCriteria
}

// SpeakResult is the structured outcome of a synthesis request.
// Terminal failures are reported here, not panicked or thrown, so
// callers branch on Success.
type SpeakResult struct {
	Success bool

	Audio  []byte
	Format string

	// Cached is true when the audio came from the cache and no upstream
	// call was made.
	Cached bool

	Provider string

	// IsFallback is true when an explicitly requested provider was
	// unavailable and a different one served the request.
	IsFallback bool

	// AlternativesConsidered lists every provider name tried during
	// selection, in order.
	AlternativesConsidered []string

	Error         string
	ErrorType     ErrorType
	CorrelationID string
	Duration      time.Duration
}

// Availability is the result of a cheap, side-effect-free capability
// probe, typically "is a credential configured" rather than a full
// round trip.
type Availability struct {
	Available    bool
	Reason       string
	ResponseTime time.Duration
	LastChecked  time.Time
}

// ProviderInfo describes a backend's static capabilities.
type ProviderInfo struct {
	Name               string
	DisplayName        string
	RequiresAPIKey     bool
	SupportedFeatures  []string
	SupportedFormats   []string
	SupportedLanguages []string // empty means unrestricted

	// SupportedVoices is the static stock voice set; providers with
	// dynamic voice libraries list only their defaults.
	SupportedVoices   []string
	SupportsStreaming bool
	SupportsSSML      bool

	// Quality ranks output fidelity on a 1-10 scale for selection
	// criteria; it is not a measurement.
	Quality int

	// RequestsPerMinute is the advertised upstream rate limit, zero if
	// unpublished.
	RequestsPerMinute int
}

// HasFeature reports whether the provider advertises feature.
func (i ProviderInfo) HasFeature(feature string) bool {
	for _, f := range i.SupportedFeatures {
		if f == feature {
			return true
		}
	}
	return false
}

// SupportsLanguage reports whether the provider can synthesize lang.
// Providers with no declared language list accept anything.
func (i ProviderInfo) SupportsLanguage(lang string) bool {
	if len(i.SupportedLanguages) == 0 {
		return true
	}
	for _, l := range i.SupportedLanguages {
		if l == lang {
			return true
		}
	}
	return false
}

// HealthState is a provider's rolled-up health classification.
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthDegraded  HealthState = "degraded"
	HealthUnhealthy HealthState = "unhealthy"
)

// HealthStatus summarizes a provider's recent behavior.
type HealthStatus struct {
	State           HealthState
	Reason          string
	RecentErrorRate float64
	AvgResponseTime time.Duration
	LastChecked     time.Time
}

// Metrics are a provider instance's running counters. They are owned by
// the instance and reset with the process.
type Metrics struct {
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	TotalResponseTime  time.Duration
	RecentErrorRate    float64
}

// AvgResponseTime is the mean duration across all recorded requests.
func (m Metrics) AvgResponseTime() time.Duration {
	if m.TotalRequests == 0 {
		return 0
	}
	return m.TotalResponseTime / time.Duration(m.TotalRequests)
}

// ProviderConfig configures one backend. Configure merges a partial
// config into the existing one; zero-value fields are left alone.
type ProviderConfig struct {
	APIKey  string
	BaseURL string

	// CredentialsFile points at a service-account or similar credential
	// bundle for providers that use file-based auth.
	CredentialsFile string

	Model  string
	Voice  string
	Speed  float64
	Format string

	Timeout time.Duration

	// MaxRetries bounds retry attempts for retryable failures.
	MaxRetries int

	// RetryBaseDelay is the first backoff delay; it doubles per attempt.
	RetryBaseDelay time.Duration

	// MinRequestInterval enforces a floor between upstream calls.
	MinRequestInterval time.Duration

	// MaxConcurrent bounds in-flight upstream calls; zero means no cap.
	MaxConcurrent int64

	// Extra holds provider-specific settings.
	Extra map[string]string
}

// merge overlays non-zero fields of other onto c.
func (c *ProviderConfig) merge(other ProviderConfig) {
	if other.APIKey != "" {
		c.APIKey = other.APIKey
	}
	if other.BaseURL != "" {
		c.BaseURL = other.BaseURL
	}
	if other.CredentialsFile != "" {
		c.CredentialsFile = other.CredentialsFile
	}
	if other.Model != "" {
		c.Model = other.Model
	}
	if other.Voice != "" {
		c.Voice = other.Voice
	}
	if other.Speed != 0 {
		c.Speed = other.Speed
	}
	if other.Format != "" {
		c.Format = other.Format
	}
	if other.Timeout != 0 {
		c.Timeout = other.Timeout
	}
	if other.MaxRetries != 0 {
		c.MaxRetries = other.MaxRetries
	}
	if other.RetryBaseDelay != 0 {
		c.RetryBaseDelay = other.RetryBaseDelay
	}
	if other.MinRequestInterval != 0 {
		c.MinRequestInterval = other.MinRequestInterval
	}
	if other.MaxConcurrent != 0 {
		c.MaxConcurrent = other.MaxConcurrent
	}
	for k, v := range other.Extra {
		if c.Extra == nil {
			c.Extra = make(map[string]string)
		}
		c.Extra[k] = v
	}
}

// Merged returns a copy of c with other overlaid.
func (c ProviderConfig) Merged(other ProviderConfig) ProviderConfig {
	merged := c
	merged.Extra = nil
	for k, v := range c.Extra {
		if merged.Extra == nil {
			merged.Extra = make(map[string]string)
		}
		merged.Extra[k] = v
	}
	merged.merge(other)
	return merged
}

// Provider is the capability contract every TTS backend implements.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Speak synthesizes text, consulting the cache before any upstream
	// call. Terminal failures come back in the result, not as an error.
	Speak(ctx context.Context, text string, opts SpeakOptions) SpeakResult

	// IsAvailable is a cheap capability probe.
	IsAvailable(ctx context.Context, correlationID string) Availability

	// Info returns the provider's static capabilities.
	Info() ProviderInfo

	// Configure merges a partial config into the provider's current
	// config. It may be called multiple times over the provider's life.
	Configure(cfg ProviderConfig)

	// HealthStatus rolls up recent metrics and the availability probe.
	HealthStatus(ctx context.Context) HealthStatus

	// Metrics returns a snapshot of the instance's running counters.
	Metrics() Metrics
}
