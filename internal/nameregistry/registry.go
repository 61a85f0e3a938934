// Package nameregistry resolves vendor-qualified, aliased, or case-variant
// model brand names to the canonical string a CLI actually understands.
package nameregistry

import (
	"strings"
	"sync"
)

// Resolution is the result of looking up a brand name.
type Resolution struct {
	Brand      string
	Provider   string
	Canonical  string
	Registered bool
}

// Registry maps lower-cased brand strings to canonical model names. It is
// safe for concurrent use.
//
// No pattern matching, no regex, no wildcards: deliberate, to avoid
// collisions between look-alike brand names.
type Registry struct {
	mu       sync.RWMutex
	mappings map[string]string
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{mappings: make(map[string]string)}
}

// Register stores lower(brand) -> canonical, plus lower(stripProvider(brand))
// -> canonical if that key is not already present.
func (r *Registry) Register(brand, canonical string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registerLocked(brand, canonical)
}

func (r *Registry) registerLocked(brand, canonical string) {
	key := strings.ToLower(brand)
	r.mappings[key] = canonical

	stripped := strings.ToLower(stripProvider(brand))
	if _, exists := r.mappings[stripped]; !exists {
		r.mappings[stripped] = canonical
	}
}

// RegisterAll is the bulk form of Register.
func (r *Registry) RegisterAll(m map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for brand, canonical := range m {
		r.registerLocked(brand, canonical)
	}
}

// Resolve performs the four-step canonical-name lookup.
func (r *Registry) Resolve(brand string) Resolution {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lower := strings.ToLower(brand)
	if canonical, ok := r.mappings[lower]; ok {
		return Resolution{Brand: brand, Canonical: canonical, Registered: true}
	}

	if idx := strings.Index(brand, "/"); idx >= 0 {
		provider := brand[:idx]
		rest := brand[idx+1:]
		if canonical, ok := r.mappings[strings.ToLower(rest)]; ok {
			return Resolution{Brand: brand, Provider: provider, Canonical: canonical, Registered: true}
		}
		return Resolution{Brand: brand, Provider: provider, Canonical: rest, Registered: false}
	}

	return Resolution{Brand: brand, Canonical: brand, Registered: false}
}

// Has reports whether brand (after the same lookup rules as Resolve) is
// registered.
func (r *Registry) Has(brand string) bool {
	return r.Resolve(brand).Registered
}

// GetMappings returns a snapshot copy of the full brand-to-canonical table.
func (r *Registry) GetMappings() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.mappings))
	for k, v := range r.mappings {
		out[k] = v
	}
	return out
}

func stripProvider(brand string) string {
	if idx := strings.Index(brand, "/"); idx >= 0 {
		return brand[idx+1:]
	}
	return brand
}

// Default is the process-wide registry. Most callers should prefer explicit
// dependency injection (construct a Registry and thread it through), but a
// default instance is provided for simple entry points.
var defaultRegistry = New()

// Default returns the process-wide default Registry.
func Default() *Registry { return defaultRegistry }

// ResetDefault clears the process-wide default registry. Intended for tests.
func ResetDefault() { defaultRegistry = New() }
