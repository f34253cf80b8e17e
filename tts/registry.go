package tts

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/ttscache/tts/cache"
)

// Deps are the shared collaborators handed to provider factories.
type Deps struct {
	Cache  *cache.AudioCache
	Logger *log.Logger
}

// Factory builds a provider instance from a config.
type Factory func(cfg ProviderConfig, deps Deps) (Provider, error)

// Registration describes one named backend in the registry.
type Registration struct {
	Name             string
	Factory          Factory
	Priority         int // higher wins during fallback
	EnabledByDefault bool
}

// FallbackMode controls whether selection may fall back to other
// providers when the preferred one fails.
type FallbackMode int

const (
	// FallbackDefault defers to the registry-level default.
	FallbackDefault FallbackMode = iota
	FallbackAllowed
	FallbackDisabled
)

// SelectionCriteria filters candidate providers during selection.
type SelectionCriteria struct {
	// RequiredFeatures must all be advertised by the provider.
	RequiredFeatures []string

	// MaxResponseTime rejects candidates whose availability probe took
	// longer. It is a selection filter only, not a request deadline.
	MaxResponseTime time.Duration

	// RequiredLanguage must be supported by the provider.
	RequiredLanguage string

	// MinQuality rejects providers ranked below this.
	MinQuality int

	Fallback FallbackMode
}

// Selection is a resolved provider plus how it was chosen.
type Selection struct {
	Provider Provider
	Name     string

	// IsFallback is true when an explicitly requested provider failed
	// selection and a different one was chosen instead.
	IsFallback bool

	// AlternativesConsidered records every provider name tried, in order.
	AlternativesConsidered []string
}

type registryEntry struct {
	Registration
	instance Provider
	enabled  bool
}

// Registry resolves provider names to live instances, applying
// priority-ordered fallback. Instances are memoized by name for the
// registry's lifetime and reconfigured in place on repeated requests.
type Registry struct {
	mu            sync.Mutex
	entries       map[string]*registryEntry
	configs       map[string]ProviderConfig
	fallbackByDef bool
	deps          Deps
}

// NewRegistry creates an empty registry. Fallback is permitted by
// default unless criteria disable it per request.
func NewRegistry(deps Deps) *Registry {
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	return &Registry{
		entries:       make(map[string]*registryEntry),
		configs:       make(map[string]ProviderConfig),
		fallbackByDef: true,
		deps:          deps,
	}
}

// SetFallbackDefault sets the registry-level fallback default used when
// criteria leave it unspecified.
func (r *Registry) SetFallbackDefault(allowed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbackByDef = allowed
}

// Register adds a backend. Re-registering a name replaces its factory
// and drops any memoized instance.
func (r *Registry) Register(reg Registration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[reg.Name] = &registryEntry{
		Registration: reg,
		enabled:      reg.EnabledByDefault,
	}
}

// SetEnabled toggles a provider in or out of the fallback set.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	entry.enabled = enabled
	return nil
}

// SetConfig stores the config applied when name is instantiated, and
// reconfigures the live instance if one exists.
func (r *Registry) SetConfig(name string, cfg ProviderConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[name] = cfg
	if entry, ok := r.entries[name]; ok && entry.instance != nil {
		entry.instance.Configure(cfg)
	}
}

// Names returns all registered provider names sorted by descending
// priority, ties broken alphabetically.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orderedNames()
}

func (r *Registry) orderedNames() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		pi, pj := r.entries[names[i]].Priority, r.entries[names[j]].Priority
		if pi != pj {
			return pi > pj
		}
		return names[i] < names[j]
	})
	return names
}

// instance returns the memoized provider for name, creating it on first
// use. Caller must hold r.mu.
func (r *Registry) instance(name string) (Provider, error) {
	entry, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	if entry.instance == nil {
		p, err := entry.Factory(r.configs[name], r.deps)
		if err != nil {
			return nil, fmt.Errorf("failed to create provider %s: %w", name, err)
		}
		entry.instance = p
	}
	return entry.instance, nil
}

// GetProvider resolves a provider. With an explicit name the named
// backend is attempted first; on failure, and when fallback is
// permitted, all registered providers are tried in descending priority
// order, skipping disabled ones. Every name tried is recorded.
func (r *Registry) GetProvider(ctx context.Context, name string, criteria SelectionCriteria) (*Selection, error) {
	allowFallback := criteria.Fallback == FallbackAllowed ||
		(criteria.Fallback == FallbackDefault && r.fallbackDefault())

	sel := &Selection{}

	if name != "" {
		provider, err := r.attempt(ctx, name, criteria)
		sel.AlternativesConsidered = append(sel.AlternativesConsidered, name)
		if err == nil {
			sel.Provider = provider
			sel.Name = name
			return sel, nil
		}
		r.deps.Logger.Debug("requested provider rejected",
			"provider", name, "error", err)
		if !allowFallback {
			return nil, fmt.Errorf("provider %s unavailable and fallback disabled: %w", name, err)
		}
		sel.IsFallback = true
	}

	for _, candidate := range r.Names() {
		if candidate == name {
			continue
		}
		if !r.isEnabled(candidate) {
			continue
		}
		provider, err := r.attempt(ctx, candidate, criteria)
		sel.AlternativesConsidered = append(sel.AlternativesConsidered, candidate)
		if err != nil {
			r.deps.Logger.Debug("provider rejected during selection",
				"provider", candidate, "error", err)
			continue
		}
		sel.Provider = provider
		sel.Name = candidate
		return sel, nil
	}

	return nil, fmt.Errorf("%w: tried %s",
		ErrNoProviderAvailable, strings.Join(sel.AlternativesConsidered, ", "))
}

// selectExcluding resolves the best enabled provider whose name is not
// in tried. Used when an already-selected provider exhausts its retry
// budget mid-request.
func (r *Registry) selectExcluding(ctx context.Context, criteria SelectionCriteria, tried []string) (*Selection, error) {
	skip := make(map[string]bool, len(tried))
	for _, name := range tried {
		skip[name] = true
	}

	sel := &Selection{IsFallback: true}
	for _, candidate := range r.Names() {
		if skip[candidate] || !r.isEnabled(candidate) {
			continue
		}
		provider, err := r.attempt(ctx, candidate, criteria)
		sel.AlternativesConsidered = append(sel.AlternativesConsidered, candidate)
		if err != nil {
			continue
		}
		sel.Provider = provider
		sel.Name = candidate
		return sel, nil
	}
	return nil, ErrNoProviderAvailable
}

// attempt instantiates a provider and checks availability plus all
// selection criteria. All checks must pass.
func (r *Registry) attempt(ctx context.Context, name string, criteria SelectionCriteria) (Provider, error) {
	r.mu.Lock()
	provider, err := r.instance(name)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	avail := provider.IsAvailable(ctx, "")
	if !avail.Available {
		return nil, fmt.Errorf("provider %s unavailable: %s", name, avail.Reason)
	}
	if criteria.MaxResponseTime > 0 && avail.ResponseTime > criteria.MaxResponseTime {
		return nil, fmt.Errorf("provider %s too slow: %s probe exceeds %s",
			name, avail.ResponseTime, criteria.MaxResponseTime)
	}

	info := provider.Info()
	for _, feature := range criteria.RequiredFeatures {
		if !info.HasFeature(feature) {
			return nil, fmt.Errorf("provider %s lacks feature %s", name, feature)
		}
	}
	if criteria.RequiredLanguage != "" && !info.SupportsLanguage(criteria.RequiredLanguage) {
		return nil, fmt.Errorf("provider %s does not support language %s", name, criteria.RequiredLanguage)
	}
	if criteria.MinQuality > 0 && info.Quality < criteria.MinQuality {
		return nil, fmt.Errorf("provider %s quality %d below required %d",
			name, info.Quality, criteria.MinQuality)
	}

	return provider, nil
}

func (r *Registry) fallbackDefault() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fallbackByDef
}

func (r *Registry) isEnabled(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[name]
	return ok && entry.enabled
}
