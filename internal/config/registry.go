package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/typofix/internal/backend"
	"github.com/MrWong99/typofix/pkg/provider/llm"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// BackendFactory builds a correction backend from the full configuration.
// The registry is passed along so remote factories can resolve LLM providers.
type BackendFactory func(cfg *Config, reg *Registry) (backend.Backend, error)

// LLMFactory builds a text-generation provider from the full configuration.
type LLMFactory func(cfg *Config) (llm.Provider, error)

// Registry maps backend kinds and remote provider names to their constructor
// functions. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	backends map[BackendKind]BackendFactory
	llm      map[string]LLMFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[BackendKind]BackendFactory),
		llm:      make(map[string]LLMFactory),
	}
}

// RegisterBackend registers a backend factory under kind.
// Subsequent calls with the same kind overwrite the previous registration.
func (r *Registry) RegisterBackend(kind BackendKind, factory BackendFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[kind] = factory
}

// RegisterLLM registers an LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, factory LLMFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// CreateBackend instantiates the backend selected by cfg.Correction.BackendKind.
// Returns [ErrProviderNotRegistered] if no factory has been registered for it.
func (r *Registry) CreateBackend(cfg *Config) (backend.Backend, error) {
	r.mu.RLock()
	factory, ok := r.backends[cfg.Correction.BackendKind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: backend/%q", ErrProviderNotRegistered, cfg.Correction.BackendKind)
	}
	return factory(cfg, r)
}

// CreateLLM instantiates the LLM provider selected by cfg.Remote.Provider.
func (r *Registry) CreateLLM(cfg *Config) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[cfg.Remote.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, cfg.Remote.Provider)
	}
	return factory(cfg)
}

// LLMNames returns the registered LLM provider names in sorted order.
func (r *Registry) LLMNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.llm))
	for n := range r.llm {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
