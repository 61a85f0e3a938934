package health_test

import (
	"context"
	"testing"
	"time"

	"github.com/nadimtuhin/loopwork/internal/clistrategy"
	"github.com/nadimtuhin/loopwork/internal/health"
	"github.com/nadimtuhin/loopwork/pkg/models"
)

func TestValidateMissingExecutableIsUnhealthy(t *testing.T) {
	c := health.New(health.Config{}, map[models.CLI]string{}, clistrategy.NewWithBuiltins())
	summary := c.Validate(context.Background(), []models.ModelDescriptor{
		{CLI: models.CLIClaude, Model: "claude-sonnet"},
	}, nil)

	if len(summary.Unhealthy) != 1 {
		t.Fatalf("Unhealthy count = %d, want 1", len(summary.Unhealthy))
	}
	if summary.Unhealthy[0].LastError == "" {
		t.Errorf("expected a LastError reason for a missing CLI path")
	}
}

func TestValidateDedupesByCliAndModel(t *testing.T) {
	paths := map[models.CLI]string{models.CLIClaude: "sh"}
	c := health.New(health.Config{}, paths, clistrategy.NewWithBuiltins())

	events := make(chan health.Event, 16)
	summary := c.Validate(context.Background(), []models.ModelDescriptor{
		{CLI: models.CLIClaude, Model: "claude-sonnet"},
		{CLI: models.CLIClaude, Model: "claude-sonnet"},
	}, events)

	total := len(summary.Healthy) + len(summary.Unhealthy)
	if total != 1 {
		t.Errorf("total probed = %d, want 1 after dedup", total)
	}
}

func TestValidateEmitsValidationCompleteEvent(t *testing.T) {
	c := health.New(health.Config{BatchSize: 1, BatchDelay: 10 * time.Millisecond}, map[models.CLI]string{}, clistrategy.NewWithBuiltins())

	events := make(chan health.Event, 16)
	go c.Validate(context.Background(), []models.ModelDescriptor{
		{CLI: models.CLIClaude, Model: "a"},
	}, events)

	var sawComplete bool
	deadline := time.After(2 * time.Second)
	for !sawComplete {
		select {
		case e := <-events:
			if e.Kind == health.ValidationComplete {
				sawComplete = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for ValidationComplete event")
		}
	}
}

func TestValidateCachesResults(t *testing.T) {
	c := health.New(health.Config{}, map[models.CLI]string{}, clistrategy.NewWithBuiltins())
	desc := []models.ModelDescriptor{{CLI: models.CLIClaude, Model: "a"}}

	first := c.Validate(context.Background(), desc, nil)
	second := c.Validate(context.Background(), desc, nil)

	if first.Unhealthy[0].LastError != second.Unhealthy[0].LastError {
		t.Errorf("expected cached identical result across calls")
	}

	c.ClearCache()
	third := c.Validate(context.Background(), desc, nil)
	if len(third.Unhealthy) != 1 {
		t.Errorf("expected re-probe after ClearCache to still find the path missing")
	}
}
