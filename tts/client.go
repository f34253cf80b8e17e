// Package tts is a text-to-speech result cache and provider
// orchestration layer. Synthesis requests are resolved to a prioritized
// backend with fallback, and results are cached on disk under a
// deterministic key so repeated requests never hit the upstream twice.
package tts

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dgnsrekt/ttscache/tts/cache"
)

// Client is the programmatic entry point. It owns the audio cache and
// the provider registry.
type Client struct {
	config   Config
	cache    *cache.AudioCache
	registry *Registry
	logger   *log.Logger

	cleanupStop chan struct{}
	cleanupWg   sync.WaitGroup
	closeOnce   sync.Once
}

// NewClient creates a client from config. Providers still need to be
// registered on Registry() before Speak can do anything.
func NewClient(config Config, logger *log.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}

	audioCache := cache.New(config.Cache, logger)
	registry := NewRegistry(Deps{Cache: audioCache, Logger: logger})
	registry.SetFallbackDefault(config.EnableFallback)
	for name, pc := range config.Providers {
		registry.SetConfig(name, pc)
	}

	c := &Client{
		config:      config,
		cache:       audioCache,
		registry:    registry,
		logger:      logger,
		cleanupStop: make(chan struct{}),
	}

	if config.Cache.Enabled && config.Cache.CleanupInterval > 0 {
		c.startCleanupLoop(config.Cache.CleanupInterval)
	}
	return c, nil
}

// Registry exposes the provider registry for registration and tuning.
func (c *Client) Registry() *Registry { return c.registry }

// Cache exposes the audio cache.
func (c *Client) Cache() *cache.AudioCache { return c.cache }

// Speak synthesizes text through the best available provider. Terminal
// failures come back in the result; the only synchronous rejection is
// empty input, which happens before any correlation or cache work.
func (c *Client) Speak(ctx context.Context, text string, opts SpeakOptions) SpeakResult {
	if strings.TrimSpace(text) == "" {
		return SpeakResult{
			Success:   false,
			Error:     ErrEmptyText.Error(),
			ErrorType: ErrorInvalidRequest,
		}
	}

	if opts.CorrelationID == "" {
		opts.CorrelationID = uuid.NewString()
	}

	name := opts.Provider
	if name == "" {
		name = c.config.DefaultProvider
	}

	allowFallback := opts.Criteria.Fallback == FallbackAllowed ||
		(opts.Criteria.Fallback == FallbackDefault && c.config.EnableFallback)

	start := time.Now()

	sel, err := c.registry.GetProvider(ctx, name, opts.Criteria)
	if err != nil {
		return SpeakResult{
			Success:       false,
			Error:         err.Error(),
			ErrorType:     ErrorServiceUnavailable,
			CorrelationID: opts.CorrelationID,
			Duration:      time.Since(start),
		}
	}

	tried := sel.AlternativesConsidered
	result := sel.Provider.Speak(ctx, text, opts)
	result.Provider = sel.Name
	result.IsFallback = sel.IsFallback

	// A provider that exhausted its retry budget hands the request to
	// the next-priority candidate rather than failing outright. Caller
	// errors are not retried elsewhere; every provider would reject them.
	for !result.Success && allowFallback && result.ErrorType != ErrorInvalidRequest {
		next, err := c.registry.selectExcluding(ctx, opts.Criteria, tried)
		if err != nil {
			break
		}
		tried = append(tried, next.AlternativesConsidered...)

		c.logger.Warn("provider failed, falling back",
			"failed", result.Provider, "next", next.Name,
			"error_type", result.ErrorType, "correlation_id", opts.CorrelationID)

		result = next.Provider.Speak(ctx, text, opts)
		result.Provider = next.Name
		result.IsFallback = true
	}

	result.AlternativesConsidered = tried
	result.CorrelationID = opts.CorrelationID
	result.Duration = time.Since(start)
	return result
}

// Preload populates the cache for text without returning the audio.
// Useful for warming the cache ahead of playback.
func (c *Client) Preload(ctx context.Context, text string, opts SpeakOptions) SpeakResult {
	result := c.Speak(ctx, text, opts)
	result.Audio = nil
	return result
}

// CacheStats returns a snapshot of cache state and hit counters.
func (c *Client) CacheStats() (cache.Stats, error) {
	return c.cache.Stats()
}

// ClearCache removes every cached entry.
func (c *Client) ClearCache() error {
	return c.cache.Clear()
}

// Cleanup sweeps expired and corrupt entries immediately.
func (c *Client) Cleanup() error {
	return c.cache.Cleanup(uuid.NewString())
}

// SystemHealth aggregates cache and provider health.
type SystemHealth struct {
	Cache     cache.HealthReport
	Providers map[string]HealthStatus
}

// HealthStatus reports the health of the cache and of every registered
// provider that has been instantiated or can be.
func (c *Client) HealthStatus(ctx context.Context) SystemHealth {
	health := SystemHealth{
		Cache:     c.cache.HealthCheck(uuid.NewString()),
		Providers: make(map[string]HealthStatus),
	}

	for _, name := range c.registry.Names() {
		c.registry.mu.Lock()
		provider, err := c.registry.instance(name)
		c.registry.mu.Unlock()
		if err != nil {
			health.Providers[name] = HealthStatus{
				State:       HealthUnhealthy,
				Reason:      err.Error(),
				LastChecked: time.Now(),
			}
			continue
		}
		health.Providers[name] = provider.HealthStatus(ctx)
	}
	return health
}

// Close stops the background cleanup loop.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.cleanupStop)
	})
	c.cleanupWg.Wait()
}

func (c *Client) startCleanupLoop(interval time.Duration) {
	c.cleanupWg.Add(1)
	go func() {
		defer c.cleanupWg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := c.cache.Cleanup(uuid.NewString()); err != nil {
					c.logger.Warn("periodic cache cleanup failed", "error", err)
				}
			case <-c.cleanupStop:
				return
			}
		}
	}()
}
