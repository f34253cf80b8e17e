package tts

import (
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name: "cache enabled without dir",
			mutate: func(c *Config) {
				c.Cache.Enabled = true
				c.Cache.Dir = ""
			},
			wantErr: true,
		},
		{
			name: "negative cache size",
			mutate: func(c *Config) {
				c.Cache.Enabled = true
				c.Cache.MaxSizeBytes = -1
			},
			wantErr: true,
		},
		{
			name: "negative provider speed",
			mutate: func(c *Config) {
				c.Providers["openai"] = ProviderConfig{Speed: -1}
			},
			wantErr: true,
		},
		{
			name: "negative retries",
			mutate: func(c *Config) {
				c.Providers["openai"] = ProviderConfig{MaxRetries: -1}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestApplyEnvCredentials(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("ELEVENLABS_API_KEY", "el-env")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "/tmp/creds.json")

	cfg := DefaultConfig()
	// Explicit config wins over the environment.
	cfg.Providers["openai"] = ProviderConfig{APIKey: "sk-explicit"}

	if err := cfg.ApplyEnvCredentials(); err != nil {
		t.Fatalf("ApplyEnvCredentials failed: %v", err)
	}

	if got := cfg.Providers["openai"].APIKey; got != "sk-explicit" {
		t.Errorf("openai key = %q, want explicit config to win", got)
	}
	if got := cfg.Providers["elevenlabs"].APIKey; got != "el-env" {
		t.Errorf("elevenlabs key = %q, want el-env", got)
	}
	if got := cfg.Providers["google"].CredentialsFile; got != "/tmp/creds.json" {
		t.Errorf("google credentials = %q, want /tmp/creds.json", got)
	}
}

func TestApplyEnvCredentials_MissingIsNotAnError(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ELEVENLABS_API_KEY", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnvCredentials(); err != nil {
		t.Fatalf("missing credentials should not error: %v", err)
	}
	if _, ok := cfg.Providers["openai"]; ok {
		t.Error("no provider entry should be created for an absent credential")
	}
}

func TestProviderConfigMerged(t *testing.T) {
	base := DefaultProviderConfig()
	merged := base.Merged(ProviderConfig{
		APIKey:     "sk-123",
		Voice:      "nova",
		MaxRetries: 5,
	})

	if merged.APIKey != "sk-123" {
		t.Errorf("APIKey = %q", merged.APIKey)
	}
	if merged.Voice != "nova" {
		t.Errorf("Voice = %q", merged.Voice)
	}
	if merged.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d", merged.MaxRetries)
	}
	// Zero-value fields in the overlay leave the base alone.
	if merged.Speed != 1.0 {
		t.Errorf("Speed = %v, want base default", merged.Speed)
	}
	if merged.Timeout != 60*time.Second {
		t.Errorf("Timeout = %v, want base default", merged.Timeout)
	}
	// The base is not mutated.
	if base.APIKey != "" {
		t.Error("Merged must not mutate the receiver")
	}
}

func TestProviderConfigMerged_ExtraIsolated(t *testing.T) {
	base := ProviderConfig{Extra: map[string]string{"stability": "0.5"}}
	merged := base.Merged(ProviderConfig{Extra: map[string]string{"style": "0.3"}})

	if merged.Extra["stability"] != "0.5" || merged.Extra["style"] != "0.3" {
		t.Errorf("merged extra = %v", merged.Extra)
	}
	if _, ok := base.Extra["style"]; ok {
		t.Error("merge leaked into the receiver's Extra map")
	}
}
