// Package clistrategy defines the per-CLI recipe for argument, environment,
// and stdin construction and for classifying a CLI's free-text output.
//
// One variant exists per tag in the closed set {claude, opencode, gemini,
// droid, crush, kimi, kilocode}. New CLIs are added by registering a new
// variant through Registry; there is no inheritance hierarchy.
package clistrategy

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/nadimtuhin/loopwork/pkg/models"
)

// Invocation is what a Strategy hands back for one CLI call.
type Invocation struct {
	Args        []string
	Env         map[string]string
	StdinPayload string
	DisplayName string
}

// Input is what the Scheduler supplies to build one Invocation.
type Input struct {
	Descriptor  models.ModelDescriptor
	Prompt      string
	BaseEnv     map[string]string
	Permissions string
}

// Strategy is the stateless, per-CLI contract. Implementations must be safe
// for concurrent use — in practice this means pure functions over Input.
type Strategy interface {
	// Tag returns the CLI tag this strategy serves.
	Tag() models.CLI

	// Build returns the args/env/stdin for one invocation.
	Build(in Input) Invocation

	// DetectCacheCorruption inspects combined stdout+stderr for signs of a
	// broken local cache. Strategies without this concept always return false.
	DetectCacheCorruption(output string) bool

	// ClearCache attempts to clear whatever local cache DetectCacheCorruption
	// flags. Returns false if the strategy has no cache to clear or the
	// clear failed.
	ClearCache() bool

	// RateLimitPatterns returns the compiled, immutable pattern list used to
	// recognize rate-limit responses in free text.
	RateLimitPatterns() []*regexp.Regexp

	// QuotaExceededPatterns is the analogous list for quota exhaustion.
	QuotaExceededPatterns() []*regexp.Regexp
}

// ErrNoStrategy is returned by Registry.Get when no strategy is registered
// for the requested tag.
type ErrNoStrategy struct{ Tag models.CLI }

func (e ErrNoStrategy) Error() string {
	return fmt.Sprintf("clistrategy: no strategy registered for CLI %q", e.Tag)
}

// Registry holds one Strategy per CLI tag. Safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	strategies map[models.CLI]Strategy
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{strategies: make(map[models.CLI]Strategy)}
}

// Register installs a Strategy, overwriting any existing one for the same
// tag.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Tag()] = s
}

// Get returns the strategy for tag, or ErrNoStrategy if none is registered.
func (r *Registry) Get(tag models.CLI) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[tag]
	if !ok {
		return nil, ErrNoStrategy{Tag: tag}
	}
	return s, nil
}

// Has reports whether tag has a registered strategy.
func (r *Registry) Has(tag models.CLI) bool {
	_, err := r.Get(tag)
	return err == nil
}

// ListTags returns the tags with a registered strategy.
func (r *Registry) ListTags() []models.CLI {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]models.CLI, 0, len(r.strategies))
	for tag := range r.strategies {
		tags = append(tags, tag)
	}
	return tags
}

// NewWithBuiltins returns a Registry pre-populated with the seven built-in
// strategies, one per tag in the closed set.
func NewWithBuiltins() *Registry {
	r := New()
	for _, s := range builtins() {
		r.Register(s)
	}
	return r
}
