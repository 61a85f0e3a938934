package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/nadimtuhin/loopwork/internal/config"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t, "LOOPWORK_PARALLEL", "LOOPWORK_MAX_ATTEMPTS_PER_TASK", "LOOPWORK_KILL_GRACE_MS")

	cfg := config.Load()
	if cfg.Parallel != 3 {
		t.Errorf("Parallel = %d, want 3", cfg.Parallel)
	}
	if cfg.MaxAttemptsPerTask != 3 {
		t.Errorf("MaxAttemptsPerTask = %d, want 3", cfg.MaxAttemptsPerTask)
	}
	if cfg.KillGrace != 5*time.Second {
		t.Errorf("KillGrace = %v, want 5s", cfg.KillGrace)
	}
	if cfg.Backend != "memory" {
		t.Errorf("Backend = %q, want memory", cfg.Backend)
	}
}

func TestLoadOverridesFromEnv(t *testing.T) {
	os.Setenv("LOOPWORK_PARALLEL", "8")
	os.Setenv("LOOPWORK_CLAUDE_PATH", "/opt/bin/claude")
	t.Cleanup(func() {
		os.Unsetenv("LOOPWORK_PARALLEL")
		os.Unsetenv("LOOPWORK_CLAUDE_PATH")
	})

	cfg := config.Load()
	if cfg.Parallel != 8 {
		t.Errorf("Parallel = %d, want 8", cfg.Parallel)
	}
	if cfg.ExecutablePaths["claude"] != "/opt/bin/claude" {
		t.Errorf("ExecutablePaths[claude] = %q, want /opt/bin/claude", cfg.ExecutablePaths["claude"])
	}
}
