// Command loopwork drives the execution engine end to end: it validates
// the configured (CLI, model) pairs, then runs the scheduler loop over the
// task backend until the backend runs dry, the iteration budget is spent,
// or the process is interrupted.
package main

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nadimtuhin/loopwork/internal/clistrategy"
	"github.com/nadimtuhin/loopwork/internal/config"
	"github.com/nadimtuhin/loopwork/internal/health"
	"github.com/nadimtuhin/loopwork/internal/hooks"
	"github.com/nadimtuhin/loopwork/internal/modelregistry/presets"
	"github.com/nadimtuhin/loopwork/internal/scheduler"
	"github.com/nadimtuhin/loopwork/internal/selector"
	"github.com/nadimtuhin/loopwork/internal/taskstore"
	"github.com/nadimtuhin/loopwork/internal/telemetry"
	"github.com/nadimtuhin/loopwork/pkg/models"
)

// Exit codes for the external CLI-wrapper boundary.
const (
	exitOK              = 0
	exitTaskFailures    = 1
	exitConfigError     = 2
	exitNoHealthyModels = 3
	exitCancelled       = 130
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()
	telemetry.SetupLogging(cfg.Telemetry)

	tracer, shutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		log.Error().Err(err).Msg("loopwork: telemetry init failed")
		return exitConfigError
	}
	defer shutdown(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		log.Warn().Msg("loopwork: signal received, cancelling")
		cancel()
	}()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("loopwork: failed to open task backend")
		return exitConfigError
	}
	defer store.Close()

	strategies := clistrategy.NewWithBuiltins()

	descriptors := presets.All()

	checker := health.New(health.Config{
		BatchSize:      cfg.HealthBatchSize,
		BatchDelay:     time.Duration(cfg.HealthBatchDelayMs) * time.Millisecond,
		ProbeTimeout:   cfg.HealthProbeTimeout,
		AutoClearCache: cfg.AutoClearCache,
	}, cfg.ExecutablePaths, strategies)

	summary := checker.Validate(ctx, descriptors, nil)
	if len(summary.Healthy) == 0 {
		log.Error().Msg("loopwork: no healthy models available")
	}

	log.Info().
		Int("healthy", len(summary.Healthy)).
		Int("unhealthy", len(summary.Unhealthy)).
		Int("cacheCleared", summary.CacheCleared).
		Msg("loopwork: health validation complete")

	primary, fallback := splitByCostWeight(descriptors, summary.Healthy)
	sel := selector.New(selector.Priority, primary, fallback)

	chain := hooks.New()

	sched := scheduler.New(store, strategies, chain, sel, scheduler.Config{
		Namespace:          cfg.Namespace,
		Parallel:           cfg.Parallel,
		MaxIterations:      cfg.MaxIterations,
		MaxAttemptsPerTask: cfg.MaxAttemptsPerTask,
		AttemptTimeout:     cfg.AttemptTimeout,
		KillGrace:          cfg.KillGrace,
		RateLimitWaitMs:    cfg.RateLimitWaitMs,
		Permissions:        cfg.Permissions,
		ExecutablePaths:    cfg.ExecutablePaths,
		StuckAfterMs:       cfg.StuckAfterMs,
	})

	ctx, span := tracer.Start(ctx, "loopwork.RunLoop")
	stats := sched.RunLoop(ctx)
	span.End()

	log.Info().
		Int("completed", stats.Completed).
		Int("failed", stats.Failed).
		Int64("durationMs", stats.DurationMs).
		Msg("loopwork: run complete")

	if ctx.Err() != nil {
		return exitCancelled
	}
	if len(summary.Healthy) == 0 {
		return exitNoHealthyModels
	}
	if stats.Failed > 0 {
		return exitTaskFailures
	}
	return exitOK
}

func openStore(ctx context.Context, cfg *config.Config) (taskstore.Store, error) {
	if cfg.Backend == "postgres" {
		return taskstore.NewPostgresStore(ctx, cfg.DBURL)
	}
	return taskstore.NewMemoryStore(), nil
}

// splitByCostWeight puts the cheapest half of the healthy pool in primary
// and the rest in fallback, so a cost-aware deployment degrades to pricier
// models only once the cheap ones are exhausted.
func splitByCostWeight(descriptors []models.ModelDescriptor, healthy []models.HealthRecord) (primary, fallback []models.ModelDescriptor) {
	byKey := make(map[string]models.ModelDescriptor, len(descriptors))
	for _, d := range descriptors {
		byKey[string(d.CLI)+"/"+d.Model] = d
	}

	all := make([]models.ModelDescriptor, 0, len(healthy))
	for _, h := range healthy {
		if d, ok := byKey[string(h.CLI)+"/"+h.Model]; ok {
			all = append(all, d)
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CostWeight < all[j].CostWeight
	})
	if len(all) <= 1 {
		return all, nil
	}
	mid := (len(all) + 1) / 2
	return all[:mid], all[mid:]
}
