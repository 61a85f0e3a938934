// Package models holds the data types shared across the execution engine:
// model descriptors, health records, tasks, attempts, and loop summaries.
package models

import "time"

// CLI is a tag drawn from the closed set of supported coding-assistant
// command-line programs.
type CLI string

const (
	CLIClaude   CLI = "claude"
	CLIOpencode CLI = "opencode"
	CLIGemini   CLI = "gemini"
	CLIDroid    CLI = "droid"
	CLICrush    CLI = "crush"
	CLIKimi     CLI = "kimi"
	CLIKilocode CLI = "kilocode"
)

// KnownCLIs lists every tag in the closed set, in the order new CLIs were
// added to the engine.
var KnownCLIs = []CLI{CLIClaude, CLIOpencode, CLIGemini, CLIDroid, CLICrush, CLIKimi, CLIKilocode}

// ModelDescriptor identifies one callable (CLI, canonical model, params)
// triple. Immutable once registered; registering a descriptor with an
// existing Name overwrites it atomically.
type ModelDescriptor struct {
	Name            string
	CLI             CLI
	Model           string
	Timeout         time.Duration
	CostWeight      float64
	Enabled         bool
	Args            []string
	Env             map[string]string
	Temperature     *float64
	MaxTokens       *int
	TopP            *float64
	TopK            *int
	StopSequences   []string
	RateLimitPerMin int // 0 disables rate limiting for this descriptor
}

// HealthStatus classifies the outcome of a synthetic probe.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthDegraded  HealthStatus = "degraded"
)

// HealthRecord is produced by the health checker and consumed by the model
// selector. Valid for the duration of a scheduler run unless re-validated.
type HealthRecord struct {
	CLI              CLI
	Model            string
	Status           HealthStatus
	LastError        string
	ValidationTimeMs int64
	CacheCleared     bool
}

// TaskStatus is the lifecycle state of a queued unit of work.
type TaskStatus string

const (
	TaskPending     TaskStatus = "pending"
	TaskInProgress  TaskStatus = "in-progress"
	TaskCompleted   TaskStatus = "completed"
	TaskFailed      TaskStatus = "failed"
	TaskQuarantined TaskStatus = "quarantined"
)

// TaskPriority orders task selection hints honored by the backend.
type TaskPriority string

const (
	PriorityHigh   TaskPriority = "high"
	PriorityMedium TaskPriority = "medium"
	PriorityLow    TaskPriority = "low"
)

// Task is opaque to the engine beyond these fields.
type Task struct {
	ID        string
	Title     string
	Status    TaskStatus
	Priority  TaskPriority
	Feature   string
	DependsOn []string
	ParentID  string
	CreatedAt time.Time
	UpdatedAt time.Time
	LastError string
}

// Classification labels the outcome of one finished attempt.
type Classification string

const (
	ClassSuccess        Classification = "success"
	ClassRateLimited    Classification = "rate-limited"
	ClassQuotaExhausted Classification = "quota-exhausted"
	ClassCacheCorrupt   Classification = "cache-corrupt"
	ClassFailure        Classification = "failure"
)

// ExtractedMetrics holds best-effort numbers parsed from CLI output. A nil
// field means the metric was not found in the output.
type ExtractedMetrics struct {
	TokensIn    *int
	TokensOut   *int
	ToolCalls   *int
	TotalTokens *int
}

// Attempt is internal bookkeeping for one CLI invocation on behalf of one
// task, retained for the lifetime of the outer retry loop.
type Attempt struct {
	TaskID         string
	AttemptNo      int
	ModelUsed      string
	StartedAt      time.Time
	EndedAt        time.Time
	ExitCode       int
	StdoutBytes    int
	StderrBytes    int
	Classification Classification
	Metrics        ExtractedMetrics
}

// RetryResult summarizes one resilience-engine run around a single task
// attempt closure.
type RetryResult struct {
	Success         bool
	Attempts        int
	TotalDurationMs int64
	Result          string
	AttemptHistory  []Attempt
	FinalError      error
}

// LoopStats summarizes one scheduler run.
type LoopStats struct {
	Completed  int
	Failed     int
	DurationMs int64
}

// TaskContext is the read-only snapshot lifecycle hooks observe.
type TaskContext struct {
	Task      Task
	Namespace string
	Attempt   int
}
