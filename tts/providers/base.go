// Package providers implements the shared request lifecycle every TTS
// backend runs through: cache lookup, rate limiting, the upstream call,
// error classification, retry with backoff, cache writeback, and
// metrics. Concrete backends only supply the upstream call and a
// credential probe.
package providers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dgnsrekt/ttscache/tts"
	"github.com/dgnsrekt/ttscache/tts/cache"
)

// Request is a fully resolved synthesis request: per-call options merged
// over the provider's configured defaults.
type Request struct {
	Text          string
	Voice         string
	Model         string
	Speed         float64
	Format        string
	Language      string
	Extra         map[string]string
	CorrelationID string
}

// Backend is the upstream integration surface a concrete provider
// implements. Caching, pacing, retries, and metrics are handled by
// Base.
type Backend interface {
	// Info returns the backend's static capabilities.
	Info() tts.ProviderInfo

	// Synthesize performs one upstream call. Failures should come back
	// as *tts.ProviderError so the retry loop can classify them; any
	// other error is treated as unknown and not retried.
	Synthesize(ctx context.Context, req Request) ([]byte, error)

	// Probe is a cheap, side-effect-free availability check, typically
	// "is a credential configured".
	Probe(ctx context.Context) tts.Availability

	// Reconfigure is called whenever the merged provider config
	// changes, so the backend can rebuild its client.
	Reconfigure(cfg tts.ProviderConfig)
}

// Base wraps a Backend with the shared request lifecycle and implements
// tts.Provider. It is safe for concurrent use.
type Base struct {
	backend Backend
	cache   *cache.AudioCache
	logger  *log.Logger
	tracker *tracker

	mu      sync.RWMutex
	cfg     tts.ProviderConfig
	limiter *limiter

	sleep func(ctx context.Context, d time.Duration) error // test hook
}

// New wraps backend with the shared lifecycle. The initial config is
// merged over zero values; Configure may refine it later.
func New(backend Backend, cfg tts.ProviderConfig, deps tts.Deps) *Base {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	b := &Base{
		backend: backend,
		cache:   deps.Cache,
		logger:  logger.With("provider", backend.Info().Name),
		tracker: newTracker(),
		sleep:   sleepCtx,
	}
	b.applyConfig(cfg)
	return b
}

// Configure merges a partial config into the current one and rebuilds
// the rate limiter and backend client. The merge and the apply happen
// under one lock so concurrent calls cannot interleave between them.
func (b *Base) Configure(cfg tts.ProviderConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.applyConfigLocked(b.cfg.Merged(cfg))
}

func (b *Base) applyConfig(cfg tts.ProviderConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.applyConfigLocked(cfg)
}

// applyConfigLocked requires b.mu to be held.
func (b *Base) applyConfigLocked(cfg tts.ProviderConfig) {
	b.cfg = cfg
	b.limiter = newLimiter(cfg.MinRequestInterval, cfg.MaxConcurrent)
	b.backend.Reconfigure(cfg)
}

func (b *Base) config() tts.ProviderConfig {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg
}

func (b *Base) currentLimiter() *limiter {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.limiter
}

// Info returns the backend's static capabilities.
func (b *Base) Info() tts.ProviderInfo { return b.backend.Info() }

// IsAvailable delegates to the backend probe and stamps timing.
func (b *Base) IsAvailable(ctx context.Context, correlationID string) tts.Availability {
	start := time.Now()
	avail := b.backend.Probe(ctx)
	if avail.ResponseTime == 0 {
		avail.ResponseTime = time.Since(start)
	}
	avail.LastChecked = time.Now()
	return avail
}

// Metrics returns a snapshot of the instance's running counters.
func (b *Base) Metrics() tts.Metrics { return b.tracker.snapshot() }

// HealthStatus rolls recent metrics and the availability probe into a
// health classification.
func (b *Base) HealthStatus(ctx context.Context) tts.HealthStatus {
	avail := b.IsAvailable(ctx, "")
	return classify(avail, b.tracker.snapshot(), time.Now())
}

// Speak runs the full lifecycle: validate, consult the cache, pace,
// call upstream with retries, write back, record metrics. Terminal
// failures are reported in the result, never panicked.
func (b *Base) Speak(ctx context.Context, text string, opts tts.SpeakOptions) tts.SpeakResult {
	start := time.Now()
	name := b.backend.Info().Name

	result := tts.SpeakResult{
		Provider:      name,
		CorrelationID: opts.CorrelationID,
	}

	text = strings.TrimSpace(text)
	if text == "" {
		result.Error = tts.ErrEmptyText.Error()
		result.ErrorType = tts.ErrorInvalidRequest
		result.Duration = time.Since(start)
		return result
	}

	if result.CorrelationID == "" {
		result.CorrelationID = uuid.NewString()
	}

	req := b.resolve(text, opts, result.CorrelationID)

	key := b.cacheKey(name, req)
	if entry := b.cacheGet(key, result.CorrelationID); entry != nil {
		result.Success = true
		result.Cached = true
		result.Audio = entry.Data
		result.Format = entry.Metadata.Format
		result.Duration = time.Since(start)
		return result
	}

	audio, perr := b.synthesizeWithRetry(ctx, req)
	took := time.Since(start)

	if perr != nil {
		b.tracker.record(false, took)
		result.Error = perr.Message
		if result.Error == "" {
			result.Error = perr.Error()
		}
		result.ErrorType = perr.Type
		result.Duration = took
		b.logger.Warn("synthesis failed",
			"type", perr.Type, "error", result.Error, "correlationId", result.CorrelationID)
		return result
	}

	b.tracker.record(true, took)
	b.cacheSet(key, audio, req)

	result.Success = true
	result.Audio = audio
	result.Format = req.Format
	result.Duration = time.Since(start)
	return result
}

// resolve merges per-call options over configured defaults.
func (b *Base) resolve(text string, opts tts.SpeakOptions, correlationID string) Request {
	cfg := b.config()
	req := Request{
		Text:          text,
		Voice:         opts.Voice,
		Model:         opts.Model,
		Speed:         opts.Speed,
		Format:        opts.Format,
		Language:      opts.Language,
		Extra:         opts.ExtraParams,
		CorrelationID: correlationID,
	}
	if req.Voice == "" {
		req.Voice = cfg.Voice
	}
	if req.Model == "" {
		req.Model = cfg.Model
	}
	if req.Speed == 0 {
		req.Speed = cfg.Speed
	}
	if req.Speed == 0 {
		req.Speed = 1.0
	}
	if req.Format == "" {
		req.Format = cfg.Format
	}
	if req.Format == "" {
		req.Format = "mp3"
	}
	return req
}

func (b *Base) cacheKey(name string, req Request) string {
	if b.cache == nil {
		return ""
	}
	return b.cache.DeriveKey(cache.KeyParams{
		Provider:    name,
		Text:        req.Text,
		Model:       req.Model,
		Voice:       req.Voice,
		Speed:       req.Speed,
		Format:      req.Format,
		ExtraParams: req.Extra,
	}).CacheKey
}

func (b *Base) cacheGet(key, correlationID string) *cache.Entry {
	if b.cache == nil || key == "" {
		return nil
	}
	entry, err := b.cache.Get(key, correlationID)
	if err != nil {
		b.logger.Warn("cache read failed", "error", err, "correlationId", correlationID)
		return nil
	}
	return entry
}

// cacheSet writes audio back to the cache. Failures are logged and
// swallowed: the synthesized audio is still returned to the caller.
func (b *Base) cacheSet(key string, audio []byte, req Request) {
	if b.cache == nil || key == "" {
		return
	}
	meta := cache.Metadata{
		Provider: b.backend.Info().Name,
		Voice:    req.Voice,
		Model:    req.Model,
		Speed:    req.Speed,
		Format:   req.Format,
		Text:     req.Text,
	}
	if err := b.cache.Set(key, audio, meta, req.CorrelationID); err != nil {
		b.logger.Warn("cache write failed", "error", err, "correlationId", req.CorrelationID)
	}
}

// synthesizeWithRetry drives the upstream call with pacing, per-attempt
// timeouts, and exponential backoff for retryable failures. Retry-After
// hints from the upstream override the computed backoff.
func (b *Base) synthesizeWithRetry(ctx context.Context, req Request) ([]byte, *tts.ProviderError) {
	cfg := b.config()
	lim := b.currentLimiter()
	name := b.backend.Info().Name

	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	baseDelay := cfg.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}

	var lastErr *tts.ProviderError
	for attempt := 0; attempt <= maxRetries; attempt++ {
		release, err := lim.acquire(ctx)
		if err != nil {
			return nil, contextError(err, name, req.CorrelationID)
		}

		callCtx := ctx
		var cancel context.CancelFunc
		if cfg.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		}
		audio, synthErr := b.backend.Synthesize(callCtx, req)
		if cancel != nil {
			cancel()
		}
		release()

		if synthErr == nil {
			lim.onSuccess()
			return audio, nil
		}

		lastErr = asProviderError(synthErr, name, req.CorrelationID)
		if lastErr.Type == tts.ErrorRateLimit || lastErr.Type == tts.ErrorServiceUnavailable {
			lim.onThrottled()
		}

		if !lastErr.Retryable || attempt == maxRetries {
			break
		}

		delay := baseDelay << uint(attempt)
		if lastErr.RetryAfter > 0 {
			delay = lastErr.RetryAfter
		}
		b.logger.Debug("retrying after failure",
			"attempt", attempt+1, "delay", delay, "type", lastErr.Type,
			"correlationId", req.CorrelationID)
		if err := b.sleep(ctx, delay); err != nil {
			return nil, contextError(err, name, req.CorrelationID)
		}
	}
	return nil, lastErr
}

// asProviderError normalizes any backend error to *tts.ProviderError.
func asProviderError(err error, provider, correlationID string) *tts.ProviderError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return contextError(err, provider, correlationID)
	}
	perr := tts.AsProviderError(err, provider)
	if perr.Provider == "" {
		perr.Provider = provider
	}
	if perr.CorrelationID == "" {
		perr.CorrelationID = correlationID
	}
	return perr
}

// contextError maps deadline and cancellation into the timeout type.
func contextError(err error, provider, correlationID string) *tts.ProviderError {
	msg := "request deadline exceeded"
	if errors.Is(err, context.Canceled) {
		msg = "request canceled"
	}
	perr := tts.NewProviderError(tts.ErrorTimeout, provider, msg, err)
	perr.CorrelationID = correlationID
	return perr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
