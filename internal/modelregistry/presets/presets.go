// Package presets provides canned model descriptors for common CLI/model
// combinations. Each preset is a pure function returning a descriptor with
// optional overrides merged shallowly over the default.
package presets

import (
	"time"

	"github.com/nadimtuhin/loopwork/pkg/models"
)

// Override carries the subset of descriptor fields a caller may want to
// tweak on top of a preset's defaults. Zero values are left untouched
// except where noted.
type Override struct {
	Name       string
	Timeout    time.Duration
	CostWeight *float64
	Enabled    *bool
}

func apply(base models.ModelDescriptor, o Override) models.ModelDescriptor {
	if o.Name != "" {
		base.Name = o.Name
	}
	if o.Timeout != 0 {
		base.Timeout = o.Timeout
	}
	if o.CostWeight != nil {
		base.CostWeight = *o.CostWeight
	}
	if o.Enabled != nil {
		base.Enabled = *o.Enabled
	}
	return base
}

// ClaudeSonnet returns the default descriptor for Claude's Sonnet tier.
func ClaudeSonnet(o Override) models.ModelDescriptor {
	return apply(models.ModelDescriptor{
		Name:       "claude-sonnet",
		CLI:        models.CLIClaude,
		Model:      "claude-sonnet-4-5",
		Timeout:    10 * time.Minute,
		CostWeight: 3,
		Enabled:    true,
	}, o)
}

// ClaudeOpus returns the default descriptor for Claude's Opus tier.
func ClaudeOpus(o Override) models.ModelDescriptor {
	return apply(models.ModelDescriptor{
		Name:       "claude-opus",
		CLI:        models.CLIClaude,
		Model:      "claude-opus-4-1",
		Timeout:    15 * time.Minute,
		CostWeight: 8,
		Enabled:    true,
	}, o)
}

// GeminiFlash returns the default descriptor for Gemini's Flash tier.
func GeminiFlash(o Override) models.ModelDescriptor {
	return apply(models.ModelDescriptor{
		Name:       "gemini-flash",
		CLI:        models.CLIGemini,
		Model:      "gemini-2.5-flash",
		Timeout:    6 * time.Minute,
		CostWeight: 1,
		Enabled:    true,
	}, o)
}

// GeminiPro returns the default descriptor for Gemini's Pro tier.
func GeminiPro(o Override) models.ModelDescriptor {
	return apply(models.ModelDescriptor{
		Name:       "gemini-pro",
		CLI:        models.CLIGemini,
		Model:      "gemini-2.5-pro",
		Timeout:    12 * time.Minute,
		CostWeight: 4,
		Enabled:    true,
	}, o)
}

// OpencodeDefault returns the default descriptor for opencode's default
// backing model.
func OpencodeDefault(o Override) models.ModelDescriptor {
	return apply(models.ModelDescriptor{
		Name:       "opencode-default",
		CLI:        models.CLIOpencode,
		Model:      "default",
		Timeout:    10 * time.Minute,
		CostWeight: 2,
		Enabled:    true,
	}, o)
}

// All returns every preset with its zero-value (default) override applied.
func All() []models.ModelDescriptor {
	return []models.ModelDescriptor{
		ClaudeSonnet(Override{}),
		ClaudeOpus(Override{}),
		GeminiFlash(Override{}),
		GeminiPro(Override{}),
		OpencodeDefault(Override{}),
	}
}
