package breaker

import (
	"sync"

	"github.com/dentalstack/aegis/internal/domain"
)

// Registry hands out one circuit breaker per downstream dependency name,
// constructed lazily and kept for the process lifetime. It is an explicitly
// constructed object, not a package global, so tests get a fresh registry per
// case.
type Registry struct {
	mu       sync.Mutex
	defaults domain.BreakerConfig
	breakers map[string]*CircuitBreaker
}

// NewRegistry creates a registry. Unset default fields fall back to the
// package defaults.
func NewRegistry(defaults domain.BreakerConfig) *Registry {
	return &Registry{
		defaults: defaults,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for name, constructing it with registry defaults on
// first use.
func (r *Registry) Get(name string) *CircuitBreaker {
	return r.GetWithConfig(name, Config{})
}

// GetWithConfig returns the breaker for name, constructing it on first use
// with cfg merged over the registry defaults. Configuration is
// first-write-wins: cfg is ignored when the breaker already exists. Callers
// that need different settings must use Reset plus a fresh registry.
func (r *Registry) GetWithConfig(name string, cfg Config) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	cfg.Name = name
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = r.defaults.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = r.defaults.SuccessThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = r.defaults.OpenTimeout
	}

	cb := New(cfg)
	r.breakers[name] = cb
	return cb
}

// Reset forces the named breaker back to CLOSED. Returns false when no such
// breaker has been created yet.
func (r *Registry) Reset(name string) bool {
	r.mu.Lock()
	cb, ok := r.breakers[name]
	r.mu.Unlock()

	if !ok {
		return false
	}
	cb.Reset()
	return true
}

// HealthStatus returns a snapshot of every registered breaker's stats,
// keyed by dependency name.
func (r *Registry) HealthStatus() map[string]Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := make(map[string]Stats, len(r.breakers))
	for name, cb := range r.breakers {
		status[name] = cb.Stats()
	}
	return status
}
