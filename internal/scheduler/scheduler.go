// Package scheduler drives N parallel workers over the task backend,
// invoking lifecycle hooks and the resilience engine around each attempt.
// It is the outermost loop of the execution engine.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/rs/zerolog/log"

	"github.com/nadimtuhin/loopwork/internal/classifier"
	"github.com/nadimtuhin/loopwork/internal/clistrategy"
	"github.com/nadimtuhin/loopwork/internal/hooks"
	"github.com/nadimtuhin/loopwork/internal/procrunner"
	"github.com/nadimtuhin/loopwork/internal/resilience"
	"github.com/nadimtuhin/loopwork/internal/selector"
	"github.com/nadimtuhin/loopwork/internal/taskstore"
	"github.com/nadimtuhin/loopwork/pkg/models"
)

// PromptProvider renders a task into the text handed to the CLI.
type PromptProvider func(models.Task) string

// Config controls one scheduler run.
type Config struct {
	Namespace          string
	Parallel           int // W, default 1
	MaxIterations      int // 0 = unbounded
	MaxAttemptsPerTask int // across all models; reaching it with a rate-limited, quota-exhausted or cache-corrupt last error quarantines the task, any other last error marks it failed
	KillGrace          time.Duration
	AttemptTimeout     time.Duration // fallback when a descriptor has no Timeout
	RateLimitWaitMs    int64
	Permissions        string
	PromptProvider     PromptProvider

	// StuckAfterMs is the resume-knob threshold (spec.md §4.9): a
	// pending-claim query and MarkInProgress both treat an in-progress
	// task whose updatedAt is this many milliseconds stale as eligible
	// for re-claim. Zero disables automatic stuck-task recovery.
	StuckAfterMs int64

	// ExecutablePaths overrides a CLI's executable path, keyed by CLI tag.
	// A missing entry falls back to the bare CLI tag, resolved via PATH.
	ExecutablePaths map[models.CLI]string
}

func (c Config) withDefaults() Config {
	if c.Parallel <= 0 {
		c.Parallel = 1
	}
	if c.MaxAttemptsPerTask <= 0 {
		c.MaxAttemptsPerTask = 3
	}
	if c.KillGrace <= 0 {
		c.KillGrace = 5 * time.Second
	}
	if c.PromptProvider == nil {
		c.PromptProvider = func(t models.Task) string { return t.Title }
	}
	return c
}

// Scheduler is the outermost loop. Construct one per run with the healthy
// descriptor pools already resolved by the health checker.
type Scheduler struct {
	store      taskstore.Store
	strategies *clistrategy.Registry
	runner     *procrunner.Runner
	hooksChain *hooks.Chain
	sel        *selector.Selector
	limiters   map[string]*rate.Limiter
	limitersMu sync.Mutex
	stats      resilience.Stats

	cfg Config

	iterations int64
	wake       chan struct{}
}

// New constructs a Scheduler. sel must already be built over the healthy
// primary/fallback pools (see the health and selector packages).
func New(store taskstore.Store, strategies *clistrategy.Registry, hooksChain *hooks.Chain, sel *selector.Selector, cfg Config) *Scheduler {
	if hooksChain == nil {
		hooksChain = hooks.New()
	}
	return &Scheduler{
		store:      store,
		strategies: strategies,
		runner:     procrunner.New(),
		hooksChain: hooksChain,
		sel:        sel,
		limiters:   make(map[string]*rate.Limiter),
		cfg:        cfg.withDefaults(),
		wake:       make(chan struct{}, 1),
	}
}

func (s *Scheduler) signalWake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// RunLoop is the top-level entry point. It returns once every worker has
// drained, either because the backend ran dry, the iteration budget was
// reached, or ctx was cancelled.
func (s *Scheduler) RunLoop(ctx context.Context) models.LoopStats {
	start := time.Now()
	s.hooksChain.OnLoopStart(s.cfg.Namespace)

	if len(s.sel.GetAllModels()) == 0 {
		stats := models.LoopStats{DurationMs: time.Since(start).Milliseconds()}
		s.hooksChain.OnLoopEnd(stats)
		return stats
	}

	var completed, failed int64
	var active int64

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.cfg.Parallel; i++ {
		g.Go(func() error {
			s.worker(gctx, &active, &completed, &failed)
			return nil
		})
	}
	_ = g.Wait()

	stats := models.LoopStats{
		Completed:  int(atomic.LoadInt64(&completed)),
		Failed:     int(atomic.LoadInt64(&failed)),
		DurationMs: time.Since(start).Milliseconds(),
	}
	s.hooksChain.OnLoopEnd(stats)
	return stats
}

func (s *Scheduler) iterationBudgetExceeded() bool {
	if s.cfg.MaxIterations <= 0 {
		return false
	}
	return atomic.LoadInt64(&s.iterations) >= int64(s.cfg.MaxIterations)
}

func (s *Scheduler) worker(ctx context.Context, active, completed, failed *int64) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		if s.iterationBudgetExceeded() {
			return
		}

		task, err := s.store.FindNextTask(ctx, taskstore.Filter{StuckAfter: s.cfg.StuckAfterMs})
		if err != nil {
			log.Warn().Err(err).Msg("scheduler: findNextTask failed")
			return
		}
		if task == nil {
			if atomic.LoadInt64(active) > 0 {
				select {
				case <-s.wake:
				case <-ticker.C:
				case <-ctx.Done():
					return
				}
				continue
			}
			return
		}

		claim, err := s.store.MarkInProgress(ctx, task.ID, s.cfg.StuckAfterMs)
		if err != nil || !claim.Success {
			continue // another worker claimed it first, or it moved state
		}

		atomic.AddInt64(active, 1)
		s.runTask(ctx, *task, completed, failed)
		atomic.AddInt64(active, -1)
		atomic.AddInt64(&s.iterations, 1)
		s.signalWake()
	}
}

func (s *Scheduler) runTask(ctx context.Context, task models.Task, completed, failed *int64) {
	taskCtx := models.TaskContext{Task: task, Namespace: s.cfg.Namespace}
	s.hooksChain.OnTaskStart(taskCtx)

	result := resilience.Do(ctx, resilience.Config{
		Retry: resilience.FixedRetry{
			Max: s.cfg.MaxAttemptsPerTask,
			NonRetryable: map[string]bool{
				"cancelled":         true,
				"spawn-error":       true,
				"no-model-available": true,
			},
		},
		Backoff:         resilience.NewExponentialBackoff(),
		RateLimitWaitMs: s.cfg.RateLimitWaitMs,
	}, &s.stats, func(ctx context.Context, attemptNo int) (any, *resilience.AttemptError) {
		return s.attempt(ctx, task, attemptNo)
	})

	if result.Success {
		s.store.MarkCompleted(ctx, task.ID, fmt.Sprintf("%v", result.Value))
		atomic.AddInt64(completed, 1)
		s.hooksChain.OnTaskComplete(taskCtx, models.RetryResult{
			Success: true, Attempts: result.Attempts, TotalDurationMs: result.TotalDurationMs,
		})
		return
	}

	reason := "unknown"
	if result.FinalErr != nil {
		reason = fmt.Sprintf("exhausted %d attempts; last error: %s on %s", result.Attempts, result.FinalErr.Classification, result.FinalErr.Error())
	}

	if result.Attempts >= s.cfg.MaxAttemptsPerTask && (result.FinalErr == nil || isRecoverable(result.FinalErr.Classification)) {
		s.store.MarkQuarantined(ctx, task.ID, reason)
	} else {
		s.store.MarkFailed(ctx, task.ID, reason)
	}
	atomic.AddInt64(failed, 1)
	s.hooksChain.OnTaskFailed(taskCtx, fmt.Errorf("%s", reason))
}

func isRecoverable(classification string) bool {
	switch classification {
	case string(models.ClassRateLimited), string(models.ClassQuotaExhausted), string(models.ClassCacheCorrupt):
		return true
	default:
		return false
	}
}

func (s *Scheduler) attempt(ctx context.Context, task models.Task, attemptNo int) (any, *resilience.AttemptError) {
	if ctx.Err() != nil {
		return nil, &resilience.AttemptError{Classification: "cancelled", Err: ctx.Err()}
	}

	desc, ok := s.sel.GetNext()
	if !ok {
		s.sel.SwitchToFallback()
		desc, ok = s.sel.GetNext()
		if !ok {
			return nil, &resilience.AttemptError{Classification: "no-model-available", Err: fmt.Errorf("no healthy model available")}
		}
	}

	strategy, err := s.strategies.Get(desc.CLI)
	if err != nil {
		return nil, &resilience.AttemptError{Classification: "spawn-error", Err: err}
	}

	if err := s.waitRateLimit(ctx, desc); err != nil {
		return nil, &resilience.AttemptError{Classification: "cancelled", Err: err}
	}

	prompt := s.cfg.PromptProvider(task)
	inv := strategy.Build(clistrategy.Input{Descriptor: desc, Prompt: prompt, Permissions: s.cfg.Permissions})

	timeout := desc.Timeout
	if timeout <= 0 {
		timeout = s.cfg.AttemptTimeout
	}

	executable := string(desc.CLI)
	if override, ok := s.cfg.ExecutablePaths[desc.CLI]; ok && override != "" {
		executable = override
	}

	res := s.runner.Run(ctx, procrunner.Request{
		Executable: executable,
		Args:       inv.Args,
		Env:        inv.Env,
		Stdin:      inv.StdinPayload,
		Timeout:    timeout,
		KillGrace:  s.cfg.KillGrace,
	})

	out := classifier.Classify(classifier.Input{
		ExitCode: res.ExitCode, Stdout: res.Stdout, Stderr: res.Stderr, WallMs: res.WallMs,
		Strategy: strategy, ModelDescriptor: desc,
	})

	switch out.Status {
	case models.ClassSuccess:
		return res.Stdout, nil
	case models.ClassRateLimited:
		s.sel.DisableForLoop(desc.Name)
		return nil, &resilience.AttemptError{Classification: string(models.ClassRateLimited), Err: fmt.Errorf("rate-limited on %s/%s", desc.CLI, desc.Model)}
	case models.ClassQuotaExhausted:
		s.sel.DisableForLoop(desc.Name)
		return nil, &resilience.AttemptError{Classification: string(models.ClassQuotaExhausted), Err: fmt.Errorf("quota-exhausted on %s/%s", desc.CLI, desc.Model)}
	case models.ClassCacheCorrupt:
		strategy.ClearCache()
		return nil, &resilience.AttemptError{Classification: string(models.ClassCacheCorrupt), Err: fmt.Errorf("cache-corrupt on %s/%s", desc.CLI, desc.Model)}
	default:
		if res.ExitCode == -1 || res.ExitCode == 127 {
			return nil, &resilience.AttemptError{Classification: "spawn-error", Err: fmt.Errorf("executable not found or not runnable for %s", desc.CLI)}
		}
		return nil, &resilience.AttemptError{Classification: string(models.ClassFailure), Err: fmt.Errorf("failure on %s/%s (exit %d)", desc.CLI, desc.Model, res.ExitCode)}
	}
}

func (s *Scheduler) waitRateLimit(ctx context.Context, desc models.ModelDescriptor) error {
	if desc.RateLimitPerMin <= 0 {
		return nil
	}
	s.limitersMu.Lock()
	limiter, ok := s.limiters[desc.Name]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(desc.RateLimitPerMin)/60.0), desc.RateLimitPerMin)
		s.limiters[desc.Name] = limiter
	}
	s.limitersMu.Unlock()
	return limiter.Wait(ctx)
}

// Stats returns a snapshot of the resilience statistics accumulated across
// every task this Scheduler has run.
func (s *Scheduler) Stats() resilience.Snapshot {
	return s.stats.Snapshot()
}
