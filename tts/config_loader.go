package tts

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// LoadConfigFromViper loads the client configuration from Viper,
// starting from defaults and overriding only the keys that are set.
func LoadConfigFromViper() (Config, error) {
	cfg := DefaultConfig()

	// Cache settings
	if viper.IsSet("tts.cache.enabled") {
		cfg.Cache.Enabled = viper.GetBool("tts.cache.enabled")
	}
	if viper.IsSet("tts.cache.dir") {
		cfg.Cache.Dir = viper.GetString("tts.cache.dir")
	}
	if viper.IsSet("tts.cache.max_size_bytes") {
		cfg.Cache.MaxSizeBytes = viper.GetInt64("tts.cache.max_size_bytes")
	}
	if viper.IsSet("tts.cache.max_entries") {
		cfg.Cache.MaxEntries = viper.GetInt("tts.cache.max_entries")
	}
	if viper.IsSet("tts.cache.max_age") {
		if d, err := time.ParseDuration(viper.GetString("tts.cache.max_age")); err == nil {
			cfg.Cache.MaxAge = d
		}
	}
	if viper.IsSet("tts.cache.min_free_disk_bytes") {
		cfg.Cache.MinFreeDiskBytes = viper.GetInt64("tts.cache.min_free_disk_bytes")
	}
	if viper.IsSet("tts.cache.hit_logging") {
		cfg.Cache.EnableHitLogging = viper.GetBool("tts.cache.hit_logging")
	}
	if viper.IsSet("tts.cache.cleanup_interval") {
		if d, err := time.ParseDuration(viper.GetString("tts.cache.cleanup_interval")); err == nil {
			cfg.Cache.CleanupInterval = d
		}
	}

	// Normalization settings
	if viper.IsSet("tts.cache.case_sensitive") {
		cfg.Cache.Normalization.CaseSensitive = viper.GetBool("tts.cache.case_sensitive")
	}
	if viper.IsSet("tts.cache.strip_priority_prefixes") {
		cfg.Cache.Normalization.StripPriorityPrefixes = viper.GetBool("tts.cache.strip_priority_prefixes")
	}
	if viper.IsSet("tts.cache.normalize_whitespace") {
		cfg.Cache.Normalization.NormalizeWhitespace = viper.GetBool("tts.cache.normalize_whitespace")
	}
	if viper.IsSet("tts.cache.strip_punctuation") {
		cfg.Cache.Normalization.StripPunctuation = viper.GetBool("tts.cache.strip_punctuation")
	}

	// Selection settings
	if viper.IsSet("tts.provider") {
		cfg.DefaultProvider = viper.GetString("tts.provider")
	}
	if viper.IsSet("tts.fallback") {
		cfg.EnableFallback = viper.GetBool("tts.fallback")
	}

	// Per-provider settings
	for _, name := range []string{"openai", "google", "elevenlabs"} {
		if pc, ok := loadProviderConfig(name); ok {
			cfg.Providers[name] = pc
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid TTS configuration: %w", err)
	}
	return cfg, nil
}

// loadProviderConfig loads one backend's settings from Viper. The
// second return is false when no key for the backend is set at all.
func loadProviderConfig(name string) (ProviderConfig, bool) {
	prefix := "tts." + name + "."
	if !viper.IsSet("tts." + name) {
		return ProviderConfig{}, false
	}

	pc := DefaultProviderConfig()
	if viper.IsSet(prefix + "api_key") {
		pc.APIKey = viper.GetString(prefix + "api_key")
	}
	if viper.IsSet(prefix + "base_url") {
		pc.BaseURL = viper.GetString(prefix + "base_url")
	}
	if viper.IsSet(prefix + "credentials_file") {
		pc.CredentialsFile = viper.GetString(prefix + "credentials_file")
	}
	if viper.IsSet(prefix + "model") {
		pc.Model = viper.GetString(prefix + "model")
	}
	if viper.IsSet(prefix + "voice") {
		pc.Voice = viper.GetString(prefix + "voice")
	}
	if viper.IsSet(prefix + "speed") {
		pc.Speed = viper.GetFloat64(prefix + "speed")
	}
	if viper.IsSet(prefix + "format") {
		pc.Format = viper.GetString(prefix + "format")
	}
	if viper.IsSet(prefix + "timeout") {
		if d, err := time.ParseDuration(viper.GetString(prefix + "timeout")); err == nil {
			pc.Timeout = d
		}
	}
	if viper.IsSet(prefix + "max_retries") {
		pc.MaxRetries = viper.GetInt(prefix + "max_retries")
	}
	if viper.IsSet(prefix + "retry_base_delay") {
		if d, err := time.ParseDuration(viper.GetString(prefix + "retry_base_delay")); err == nil {
			pc.RetryBaseDelay = d
		}
	}
	if viper.IsSet(prefix + "min_request_interval") {
		if d, err := time.ParseDuration(viper.GetString(prefix + "min_request_interval")); err == nil {
			pc.MinRequestInterval = d
		}
	}
	if viper.IsSet(prefix + "max_concurrent") {
		pc.MaxConcurrent = viper.GetInt64(prefix + "max_concurrent")
	}

	return pc, true
}
