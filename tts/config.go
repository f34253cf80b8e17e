package tts

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/dgnsrekt/ttscache/tts/cache"
)

// Config is the top-level client configuration.
type Config struct {
	// Cache configures the audio result cache.
	Cache cache.Config

	// DefaultProvider is used when SpeakOptions names none. Empty means
	// highest priority wins.
	DefaultProvider string

	// EnableFallback is the registry-level fallback default.
	EnableFallback bool

	// Providers holds per-backend configuration keyed by provider name.
	Providers map[string]ProviderConfig
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		Cache:          cache.DefaultConfig(),
		EnableFallback: true,
		Providers:      make(map[string]ProviderConfig),
	}
}

// Validate checks the configuration for values that cannot work.
func (c Config) Validate() error {
	if c.Cache.Enabled {
		if c.Cache.Dir == "" {
			return fmt.Errorf("cache enabled but cache dir is empty")
		}
		if c.Cache.MaxSizeBytes < 0 {
			return fmt.Errorf("cache max size must not be negative")
		}
		if c.Cache.MaxEntries < 0 {
			return fmt.Errorf("cache max entries must not be negative")
		}
	}
	for name, pc := range c.Providers {
		if pc.Speed < 0 {
			return fmt.Errorf("provider %s: speed must not be negative", name)
		}
		if pc.MaxRetries < 0 {
			return fmt.Errorf("provider %s: max retries must not be negative", name)
		}
	}
	return nil
}

// envCredentials are the upstream credentials read from the process
// environment when the config does not supply them. A missing
// credential makes that provider report itself unavailable; it is never
// a startup error.
type envCredentials struct {
	OpenAIAPIKey     string `env:"OPENAI_API_KEY"`
	ElevenLabsAPIKey string `env:"ELEVENLABS_API_KEY"`
	GoogleCredsFile  string `env:"GOOGLE_APPLICATION_CREDENTIALS"`
}

// ApplyEnvCredentials fills in provider credentials from environment
// variables for any provider config that does not already carry one.
func (c *Config) ApplyEnvCredentials() error {
	var creds envCredentials
	if err := env.Parse(&creds); err != nil {
		return fmt.Errorf("failed to read environment credentials: %w", err)
	}

	c.setCredential("openai", creds.OpenAIAPIKey, "")
	c.setCredential("elevenlabs", creds.ElevenLabsAPIKey, "")
	c.setCredential("google", "", creds.GoogleCredsFile)
	return nil
}

func (c *Config) setCredential(provider, apiKey, credsFile string) {
	if apiKey == "" && credsFile == "" {
		return
	}
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	pc := c.Providers[provider]
	if pc.APIKey == "" {
		pc.APIKey = apiKey
	}
	if pc.CredentialsFile == "" {
		pc.CredentialsFile = credsFile
	}
	c.Providers[provider] = pc
}

// DefaultProviderConfig returns the retry and pacing defaults shared by
// all backends.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Speed:          1.0,
		Format:         "mp3",
		Timeout:        60 * time.Second,
		MaxRetries:     3,
		RetryBaseDelay: 500 * time.Millisecond,
	}
}
