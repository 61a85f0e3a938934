package nameregistry_test

import (
	"testing"

	"github.com/nadimtuhin/loopwork/internal/nameregistry"
)

func TestResolveFullBrandHit(t *testing.T) {
	r := nameregistry.New()
	r.Register("Anthropic/Claude-3.5-Sonnet", "claude-3-5-sonnet-20241022")

	got := r.Resolve("anthropic/claude-3.5-sonnet")
	if !got.Registered {
		t.Fatalf("Resolve().Registered = false, want true")
	}
	if got.Canonical != "claude-3-5-sonnet-20241022" {
		t.Errorf("Resolve().Canonical = %q, want %q", got.Canonical, "claude-3-5-sonnet-20241022")
	}
}

func TestResolveStrippedProviderHit(t *testing.T) {
	r := nameregistry.New()
	r.Register("claude-3.5-sonnet", "claude-3-5-sonnet-20241022")

	got := r.Resolve("someprovider/claude-3.5-sonnet")
	if !got.Registered {
		t.Fatalf("Resolve().Registered = false, want true")
	}
	if got.Provider != "someprovider" {
		t.Errorf("Resolve().Provider = %q, want %q", got.Provider, "someprovider")
	}
	if got.Canonical != "claude-3-5-sonnet-20241022" {
		t.Errorf("Resolve().Canonical = %q, want %q", got.Canonical, "claude-3-5-sonnet-20241022")
	}
}

func TestResolveUnregisteredStripsPrefix(t *testing.T) {
	r := nameregistry.New()

	got := r.Resolve("vendor/gizmo-9000")
	if got.Registered {
		t.Fatalf("Resolve().Registered = true, want false")
	}
	if got.Canonical != "gizmo-9000" {
		t.Errorf("Resolve().Canonical = %q, want %q", got.Canonical, "gizmo-9000")
	}
	if got.Provider != "vendor" {
		t.Errorf("Resolve().Provider = %q, want %q", got.Provider, "vendor")
	}
}

func TestResolveIdempotence(t *testing.T) {
	r := nameregistry.New()
	r.Register("gemini-flash", "gemini-1.5-flash")

	first := r.Resolve("gemini-flash")
	second := r.Resolve(first.Canonical)
	if second.Canonical != first.Canonical {
		t.Errorf("resolve(resolve(brand).canonical).canonical = %q, want %q", second.Canonical, first.Canonical)
	}
}

func TestRegisterOverwriteIsAtomic(t *testing.T) {
	r := nameregistry.New()
	r.Register("sonnet", "v1")
	r.Register("sonnet", "v2")

	got := r.Resolve("sonnet")
	if got.Canonical != "v2" {
		t.Errorf("Resolve().Canonical = %q, want %q", got.Canonical, "v2")
	}
}

func TestRegisterAllBulk(t *testing.T) {
	r := nameregistry.New()
	r.RegisterAll(map[string]string{
		"a/x": "canon-x",
		"b/y": "canon-y",
	})

	if !r.Has("a/x") || !r.Has("b/y") {
		t.Fatalf("expected both bulk-registered brands to resolve")
	}
}
