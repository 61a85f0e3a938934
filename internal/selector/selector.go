// Package selector picks the next model descriptor from a healthy pool,
// according to a configurable strategy, with a primary and fallback pool.
package selector

import (
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/nadimtuhin/loopwork/pkg/models"
)

// Strategy names the closed set of selection strategies.
type Strategy string

const (
	RoundRobin Strategy = "round-robin"
	Priority   Strategy = "priority"
	CostAware  Strategy = "cost-aware"
	Random     Strategy = "random"
)

// Selector produces the next descriptor on each GetNext call.
type Selector struct {
	strategy Strategy

	mu        sync.Mutex
	primary   []models.ModelDescriptor
	fallback  []models.ModelDescriptor
	usingFallback bool

	served map[string]bool // served-without-repeat tracking, one key per (pool, descriptor)
	rrIdx  uint64
}

// New constructs a Selector over primary and fallback pools.
func New(strategy Strategy, primary, fallback []models.ModelDescriptor) *Selector {
	return &Selector{
		strategy: strategy,
		primary:  append([]models.ModelDescriptor{}, primary...),
		fallback: append([]models.ModelDescriptor{}, fallback...),
		served:   make(map[string]bool),
	}
}

func (s *Selector) activePool() []models.ModelDescriptor {
	if s.usingFallback {
		return s.fallback
	}
	return s.primary
}

// GetNext returns the next descriptor, or false when the active pool is
// exhausted for this strategy's traversal semantics.
func (s *Selector) GetNext() (models.ModelDescriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool := s.activePool()
	if len(pool) == 0 {
		return models.ModelDescriptor{}, false
	}

	switch s.strategy {
	case Priority:
		for _, d := range pool {
			key := poolKey(s.usingFallback, d.Name)
			if !s.served[key] {
				s.served[key] = true
				return d, true
			}
		}
		return models.ModelDescriptor{}, false

	case CostAware:
		remaining := make([]models.ModelDescriptor, 0, len(pool))
		for _, d := range pool {
			if !s.served[poolKey(s.usingFallback, d.Name)] {
				remaining = append(remaining, d)
			}
		}
		if len(remaining) == 0 {
			return models.ModelDescriptor{}, false
		}
		sort.SliceStable(remaining, func(i, j int) bool {
			return remaining[i].CostWeight < remaining[j].CostWeight
		})
		d := remaining[0]
		s.served[poolKey(s.usingFallback, d.Name)] = true
		return d, true

	case Random:
		remaining := make([]models.ModelDescriptor, 0, len(pool))
		for _, d := range pool {
			if !s.served[poolKey(s.usingFallback, d.Name)] {
				remaining = append(remaining, d)
			}
		}
		if len(remaining) == 0 {
			return models.ModelDescriptor{}, false
		}
		d := remaining[rand.Intn(len(remaining))]
		s.served[poolKey(s.usingFallback, d.Name)] = true
		return d, true

	default: // RoundRobin
		remaining := 0
		for _, d := range pool {
			if !s.served[poolKey(s.usingFallback, d.Name)] {
				remaining++
			}
		}
		if remaining == 0 {
			return models.ModelDescriptor{}, false
		}
		for {
			idx := atomic.AddUint64(&s.rrIdx, 1) - 1
			d := pool[int(idx)%len(pool)]
			key := poolKey(s.usingFallback, d.Name)
			if !s.served[key] {
				s.served[key] = true
				return d, true
			}
		}
	}
}

func poolKey(usingFallback bool, name string) string {
	if usingFallback {
		return "fallback:" + name
	}
	return "primary:" + name
}

// SwitchToFallback switches the active pool to fallback. It does not reset
// the fallback pool's traversal state; ResetToFallback does that.
func (s *Selector) SwitchToFallback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usingFallback = true
}

// ResetToFallback is kept for parity with the source system's naming: it
// re-arms the fallback pool's traversal state without touching
// usingFallback.
func (s *Selector) ResetToFallback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.served {
		if len(k) >= 9 && k[:9] == "fallback:" {
			delete(s.served, k)
		}
	}
}

// IsUsingFallback reports whether the active pool is the fallback pool.
func (s *Selector) IsUsingFallback() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usingFallback
}

// GetAllModels returns every descriptor in both pools.
func (s *Selector) GetAllModels() []models.ModelDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]models.ModelDescriptor{}, s.primary...)
	out = append(out, s.fallback...)
	return out
}

// Reset clears all traversal state and returns to the primary pool.
func (s *Selector) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usingFallback = false
	s.rrIdx = 0
	s.served = make(map[string]bool)
}

// DisableForLoop removes a descriptor from whichever pool currently serves
// it, for the remainder of this Selector's lifetime (i.e. this scheduler
// loop). Used when a descriptor reports rate-limited/quota-exhausted.
func (s *Selector) DisableForLoop(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.primary = removeByName(s.primary, name)
	s.fallback = removeByName(s.fallback, name)
}

func removeByName(pool []models.ModelDescriptor, name string) []models.ModelDescriptor {
	out := pool[:0:0]
	for _, d := range pool {
		if d.Name != name {
			out = append(out, d)
		}
	}
	return out
}
