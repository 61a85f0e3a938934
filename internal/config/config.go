// Package config loads the execution engine's environment-driven
// configuration. There is no config-file parser; every setting is an
// explicit environment variable with a typed fallback, matching how the
// rest of this codebase is configured.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nadimtuhin/loopwork/pkg/models"
)

// Config holds every tunable the scheduler, health checker, and task
// backend need at process start.
type Config struct {
	Namespace string

	Parallel           int
	MaxIterations      int
	MaxAttemptsPerTask int
	AttemptTimeout     time.Duration
	KillGrace          time.Duration
	RateLimitWaitMs    int64
	Permissions        string

	// StuckAfterMs is the resume-knob threshold: an in-progress task whose
	// updatedAt is this many milliseconds stale is eligible for re-claim.
	// Zero disables automatic stuck-task recovery.
	StuckAfterMs int64

	HealthBatchSize    int
	HealthBatchDelayMs int
	HealthProbeTimeout time.Duration
	AutoClearCache     bool

	Backend string // "memory" or "postgres"
	DataDir string
	DBURL   string

	// ExecutablePaths overrides a CLI's executable path, keyed by CLI tag
	// (e.g. LOOPWORK_CLAUDE_PATH=/opt/bin/claude).
	ExecutablePaths map[models.CLI]string

	Telemetry TelemetryConfig
}

// TelemetryConfig controls the local-only tracer and structured logger.
type TelemetryConfig struct {
	Enabled     bool
	ServiceName string
	LogLevel    string
}

// Load reads configuration from environment variables with sensible
// defaults for a single-machine run.
func Load() *Config {
	return &Config{
		Namespace:          envStr("LOOPWORK_NAMESPACE", "default"),
		Parallel:           envInt("LOOPWORK_PARALLEL", 3),
		MaxIterations:      envInt("LOOPWORK_MAX_ITERATIONS", 0),
		MaxAttemptsPerTask: envInt("LOOPWORK_MAX_ATTEMPTS_PER_TASK", 3),
		AttemptTimeout:     envDurationMs("LOOPWORK_ATTEMPT_TIMEOUT_MS", 120*time.Second),
		KillGrace:          envDurationMs("LOOPWORK_KILL_GRACE_MS", 5*time.Second),
		RateLimitWaitMs:    int64(envInt("LOOPWORK_RATE_LIMIT_WAIT_MS", 0)),
		Permissions:        envStr("LOOPWORK_PERMISSIONS", ""),
		StuckAfterMs:       int64(envInt("LOOPWORK_STUCK_AFTER_MS", 15*60*1000)),

		HealthBatchSize:    envInt("LOOPWORK_HEALTH_BATCH_SIZE", 3),
		HealthBatchDelayMs: envInt("LOOPWORK_HEALTH_BATCH_DELAY_MS", 2000),
		HealthProbeTimeout: envDurationMs("LOOPWORK_HEALTH_PROBE_TIMEOUT_MS", 30*time.Second),
		AutoClearCache:     envBool("LOOPWORK_AUTO_CLEAR_CACHE", true),

		Backend: envStr("LOOPWORK_BACKEND", "memory"),
		DataDir: envStr("LOOPWORK_DATA_DIR", ""),
		DBURL:   envStr("LOOPWORK_DB_URL", ""),

		ExecutablePaths: executablePathOverrides(),

		Telemetry: TelemetryConfig{
			Enabled:     envBool("LOOPWORK_TELEMETRY_ENABLED", false),
			ServiceName: envStr("LOOPWORK_SERVICE_NAME", "loopwork"),
			LogLevel:    envStr("LOOPWORK_LOG_LEVEL", "info"),
		},
	}
}

// executablePathOverrides scans LOOPWORK_<CLI>_PATH for every known CLI tag.
func executablePathOverrides() map[models.CLI]string {
	out := make(map[models.CLI]string)
	for _, cli := range models.KnownCLIs {
		key := "LOOPWORK_" + strings.ToUpper(string(cli)) + "_PATH"
		if v := os.Getenv(key); v != "" {
			out[cli] = v
		}
	}
	return out
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDurationMs(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return fallback
}
