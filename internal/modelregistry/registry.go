// Package modelregistry stores model descriptors keyed by canonical name.
package modelregistry

import (
	"fmt"
	"strings"
	"sync"

	"github.com/nadimtuhin/loopwork/pkg/models"
)

// ErrNotFound is returned when a requested descriptor name is not
// registered.
type ErrNotFound struct{ Name string }

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("modelregistry: no descriptor registered for %q", e.Name)
}

// Registry stores models.ModelDescriptor values keyed by canonical name,
// case-insensitive on key, case-preserving on value. Safe for concurrent
// use.
type Registry struct {
	mu      sync.RWMutex
	order   []string // lower-cased keys, insertion order
	entries map[string]models.ModelDescriptor
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]models.ModelDescriptor)}
}

// Register stores or overwrites a descriptor under its Name.
func (r *Registry) Register(d models.ModelDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(d.Name)
	if _, exists := r.entries[key]; !exists {
		r.order = append(r.order, key)
	}
	r.entries[key] = d
}

// List returns descriptors in insertion order.
func (r *Registry) List() []models.ModelDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.ModelDescriptor, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.entries[key])
	}
	return out
}

// Get returns the descriptor registered under name.
func (r *Registry) Get(name string) (models.ModelDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.entries[strings.ToLower(name)]
	if !ok {
		return models.ModelDescriptor{}, ErrNotFound{Name: name}
	}
	return d, nil
}

// GetModelString returns the raw model string a descriptor resolves to.
func (r *Registry) GetModelString(name string) (string, error) {
	d, err := r.Get(name)
	if err != nil {
		return "", err
	}
	return d.Model, nil
}

// GetCLI returns the CLI tag a descriptor targets.
func (r *Registry) GetCLI(name string) (models.CLI, error) {
	d, err := r.Get(name)
	if err != nil {
		return "", err
	}
	return d.CLI, nil
}

// GetConfig is an alias of Get kept for parity with the source system's
// naming; it returns the full descriptor.
func (r *Registry) GetConfig(name string) (models.ModelDescriptor, error) {
	return r.Get(name)
}
