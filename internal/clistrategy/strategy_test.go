package clistrategy_test

import (
	"testing"

	"github.com/nadimtuhin/loopwork/internal/clistrategy"
	"github.com/nadimtuhin/loopwork/pkg/models"
)

func TestNewWithBuiltinsRegistersAllSevenTags(t *testing.T) {
	r := clistrategy.NewWithBuiltins()
	for _, tag := range models.KnownCLIs {
		if !r.Has(tag) {
			t.Errorf("expected built-in strategy for %q to be registered", tag)
		}
	}
}

func TestGetUnknownTagReturnsErrNoStrategy(t *testing.T) {
	r := clistrategy.New()
	_, err := r.Get(models.CLIClaude)
	if err == nil {
		t.Fatalf("Get() on empty registry: error = nil, want ErrNoStrategy")
	}
	if _, ok := err.(clistrategy.ErrNoStrategy); !ok {
		t.Errorf("Get() error type = %T, want clistrategy.ErrNoStrategy", err)
	}
}

func TestOpencodeStrategyDetectsCacheCorruption(t *testing.T) {
	r := clistrategy.NewWithBuiltins()
	s, err := r.Get(models.CLIOpencode)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !s.DetectCacheCorruption("Error: ENOENT ... .cache/opencode/node_modules") {
		t.Errorf("DetectCacheCorruption() = false, want true for known corruption signature")
	}
	if s.DetectCacheCorruption("a perfectly normal response") {
		t.Errorf("DetectCacheCorruption() = true, want false for clean output")
	}
}

func TestBuildPassesModel(t *testing.T) {
	r := clistrategy.NewWithBuiltins()
	s, _ := r.Get(models.CLIClaude)

	inv := s.Build(clistrategy.Input{
		Descriptor:  models.ModelDescriptor{Model: "claude-sonnet-4"},
		Prompt:      "do the thing",
		Permissions: "allow",
	})

	found := false
	for i, a := range inv.Args {
		if a == "--model" && i+1 < len(inv.Args) && inv.Args[i+1] == "claude-sonnet-4" {
			found = true
		}
	}
	if !found {
		t.Errorf("Build().Args = %v, want to contain --model claude-sonnet-4", inv.Args)
	}
}

func TestBuildPassesPermissionOnlyForOpencode(t *testing.T) {
	r := clistrategy.NewWithBuiltins()

	claude, _ := r.Get(models.CLIClaude)
	claudeInv := claude.Build(clistrategy.Input{
		Descriptor:  models.ModelDescriptor{Model: "claude-sonnet-4"},
		Prompt:      "do the thing",
		Permissions: "allow",
	})
	if _, ok := claudeInv.Env["OPENCODE_PERMISSION"]; ok {
		t.Errorf("claude Build().Env contains OPENCODE_PERMISSION = %q, want it unset", claudeInv.Env["OPENCODE_PERMISSION"])
	}

	opencode, _ := r.Get(models.CLIOpencode)
	opencodeInv := opencode.Build(clistrategy.Input{
		Descriptor:  models.ModelDescriptor{Model: "gpt"},
		Prompt:      "do the thing",
		Permissions: "allow",
	})
	if opencodeInv.Env["OPENCODE_PERMISSION"] != "allow" {
		t.Errorf("opencode Build().Env[OPENCODE_PERMISSION] = %q, want %q", opencodeInv.Env["OPENCODE_PERMISSION"], "allow")
	}
}

func TestRateLimitPatternsMatchCommonPhrasing(t *testing.T) {
	r := clistrategy.NewWithBuiltins()
	s, _ := r.Get(models.CLIGemini)

	matched := false
	for _, p := range s.RateLimitPatterns() {
		if p.MatchString("error: RESOURCE_EXHAUSTED, please retry") {
			matched = true
		}
	}
	if !matched {
		t.Errorf("expected gemini rate limit patterns to match RESOURCE_EXHAUSTED")
	}
}
