// Package health runs synthetic probes per (CLI, model) pair before the
// scheduler starts work, auto-clearing corrupt caches and reporting which
// pairs are usable.
package health

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nadimtuhin/loopwork/internal/clistrategy"
	"github.com/nadimtuhin/loopwork/internal/procrunner"
	"github.com/nadimtuhin/loopwork/pkg/models"
)

const canaryPrompt = `Say "OK" and nothing else.`

// EventKind tags one message on the progressive-delivery event stream.
type EventKind int

const (
	ModelHealthy EventKind = iota
	ModelUnhealthy
	ValidationComplete
)

// Event is one message on the event stream described in the design notes
// as the channel-based equivalent of the three progressive-delivery
// callbacks.
type Event struct {
	Kind    EventKind
	Record  models.HealthRecord
	Summary Summary
}

// Summary aggregates the outcome of one Validate call.
type Summary struct {
	Healthy      []models.HealthRecord
	Unhealthy    []models.HealthRecord
	CacheCleared int
}

// Config controls batching and timeouts.
type Config struct {
	BatchSize     int           // K, default 3
	BatchDelay    time.Duration // D, default 2s
	ProbeTimeout  time.Duration // default 30s
	AutoClearCache bool
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 3
	}
	if c.BatchDelay <= 0 {
		c.BatchDelay = 2 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 30 * time.Second
	}
	return c
}

// Checker runs probes and caches results by (cli, model).
type Checker struct {
	cfg        Config
	paths      map[models.CLI]string
	strategies *clistrategy.Registry
	runner     *procrunner.Runner

	mu    sync.Mutex
	cache map[string]models.HealthRecord
}

// New constructs a Checker. paths maps each CLI tag to its executable path
// on this host; strategies supplies the per-CLI Build/DetectCacheCorruption
// contract.
func New(cfg Config, paths map[models.CLI]string, strategies *clistrategy.Registry) *Checker {
	return &Checker{
		cfg:        cfg.withDefaults(),
		paths:      paths,
		strategies: strategies,
		runner:     procrunner.New(),
		cache:      make(map[string]models.HealthRecord),
	}
}

func cacheKey(cli models.CLI, model string) string {
	return string(cli) + "/" + model
}

// ClearCache drops the Checker's cached results, forcing the next Validate
// call to re-probe every descriptor.
func (c *Checker) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]models.HealthRecord)
}

// Validate probes every descriptor (deduplicated by CLI+model), batching
// probes of size BatchSize with BatchDelay between batches, and emits
// progressive Events on events (if non-nil) as each descriptor finishes and
// once more with ValidationComplete when every batch is done.
func (c *Checker) Validate(ctx context.Context, descriptors []models.ModelDescriptor, events chan<- Event) Summary {
	deduped := dedupe(descriptors)

	var summary Summary
	var mu sync.Mutex

	for start := 0; start < len(deduped); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(deduped) {
			end = len(deduped)
		}
		batch := deduped[start:end]

		var wg sync.WaitGroup
		for _, d := range batch {
			wg.Add(1)
			go func(d models.ModelDescriptor) {
				defer wg.Done()
				rec := c.probe(ctx, d)

				mu.Lock()
				if rec.Status == models.HealthHealthy {
					summary.Healthy = append(summary.Healthy, rec)
				} else {
					summary.Unhealthy = append(summary.Unhealthy, rec)
				}
				if rec.CacheCleared {
					summary.CacheCleared++
				}
				mu.Unlock()

				if events != nil {
					kind := ModelHealthy
					if rec.Status != models.HealthHealthy {
						kind = ModelUnhealthy
					}
					events <- Event{Kind: kind, Record: rec}
				}
			}(d)
		}
		wg.Wait()

		if end < len(deduped) {
			select {
			case <-ctx.Done():
				if events != nil {
					events <- Event{Kind: ValidationComplete, Summary: summary}
				}
				return summary
			case <-time.After(c.cfg.BatchDelay):
			}
		}
	}

	if events != nil {
		events <- Event{Kind: ValidationComplete, Summary: summary}
	}
	return summary
}

func (c *Checker) probe(ctx context.Context, d models.ModelDescriptor) models.HealthRecord {
	key := cacheKey(d.CLI, d.Model)

	c.mu.Lock()
	if cached, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return cached
	}
	c.mu.Unlock()

	rec := c.probeUncached(ctx, d)

	c.mu.Lock()
	c.cache[key] = rec
	c.mu.Unlock()
	return rec
}

func (c *Checker) probeUncached(ctx context.Context, d models.ModelDescriptor) models.HealthRecord {
	start := time.Now()

	path, ok := c.paths[d.CLI]
	if !ok || path == "" {
		return models.HealthRecord{
			CLI: d.CLI, Model: d.Model,
			Status:    models.HealthUnhealthy,
			LastError: "CLI " + string(d.CLI) + " not in paths",
		}
	}

	strategy, err := c.strategies.Get(d.CLI)
	if err != nil {
		return models.HealthRecord{CLI: d.CLI, Model: d.Model, Status: models.HealthUnhealthy, LastError: err.Error()}
	}

	rec, cacheCleared := c.runProbe(ctx, path, strategy, d)
	rec.CacheCleared = cacheCleared
	rec.ValidationTimeMs = time.Since(start).Milliseconds()
	return rec
}

func (c *Checker) runProbe(ctx context.Context, path string, strategy clistrategy.Strategy, d models.ModelDescriptor) (models.HealthRecord, bool) {
	inv := strategy.Build(clistrategy.Input{Descriptor: d, Prompt: canaryPrompt})
	res := c.runner.Run(ctx, procrunner.Request{
		Executable: path,
		Args:       inv.Args,
		Env:        inv.Env,
		Stdin:      inv.StdinPayload,
		Timeout:    c.cfg.ProbeTimeout,
		KillGrace:  2 * time.Second,
	})

	combined := res.Stdout + "\n" + res.Stderr
	corrupt := strategy.DetectCacheCorruption(combined)
	healthy := (res.ExitCode == 0 && strings.TrimSpace(res.Stdout) != "") ||
		(strings.TrimSpace(res.Stdout) != "" && !corrupt)

	if !healthy && corrupt && c.cfg.AutoClearCache {
		if strategy.ClearCache() {
			log.Info().Str("cli", string(d.CLI)).Str("model", d.Model).Msg("health checker: cleared cache, re-probing")
			res2 := c.runner.Run(ctx, procrunner.Request{
				Executable: path,
				Args:       inv.Args,
				Env:        inv.Env,
				Stdin:      inv.StdinPayload,
				Timeout:    c.cfg.ProbeTimeout,
				KillGrace:  2 * time.Second,
			})
			combined2 := res2.Stdout + "\n" + res2.Stderr
			corrupt2 := strategy.DetectCacheCorruption(combined2)
			healthy2 := (res2.ExitCode == 0 && strings.TrimSpace(res2.Stdout) != "") ||
				(strings.TrimSpace(res2.Stdout) != "" && !corrupt2)
			if healthy2 {
				return models.HealthRecord{CLI: d.CLI, Model: d.Model, Status: models.HealthHealthy}, true
			}
			return models.HealthRecord{CLI: d.CLI, Model: d.Model, Status: models.HealthUnhealthy, LastError: strings.TrimSpace(res2.Stderr)}, true
		}
	}

	if healthy {
		return models.HealthRecord{CLI: d.CLI, Model: d.Model, Status: models.HealthHealthy}, false
	}
	return models.HealthRecord{CLI: d.CLI, Model: d.Model, Status: models.HealthUnhealthy, LastError: strings.TrimSpace(res.Stderr)}, false
}

func dedupe(descriptors []models.ModelDescriptor) []models.ModelDescriptor {
	seen := make(map[string]bool)
	out := make([]models.ModelDescriptor, 0, len(descriptors))
	for _, d := range descriptors {
		key := cacheKey(d.CLI, d.Model)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, d)
	}
	return out
}
