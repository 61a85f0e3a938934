package modelregistry_test

import (
	"testing"

	"github.com/nadimtuhin/loopwork/internal/modelregistry"
	"github.com/nadimtuhin/loopwork/pkg/models"
)

func TestRegisterAndGet(t *testing.T) {
	r := modelregistry.New()
	r.Register(models.ModelDescriptor{Name: "Claude-Sonnet", CLI: models.CLIClaude, Model: "claude-sonnet-4-5"})

	got, err := r.Get("claude-sonnet")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Model != "claude-sonnet-4-5" {
		t.Errorf("Get().Model = %q, want %q", got.Model, "claude-sonnet-4-5")
	}
	if got.Name != "Claude-Sonnet" {
		t.Errorf("Get().Name = %q, want original case preserved", got.Name)
	}
}

func TestGetUnknownReturnsErrNotFound(t *testing.T) {
	r := modelregistry.New()
	_, err := r.Get("nope")
	if _, ok := err.(modelregistry.ErrNotFound); !ok {
		t.Errorf("Get() error type = %T, want modelregistry.ErrNotFound", err)
	}
}

func TestListPreservesInsertionOrder(t *testing.T) {
	r := modelregistry.New()
	r.Register(models.ModelDescriptor{Name: "b"})
	r.Register(models.ModelDescriptor{Name: "a"})
	r.Register(models.ModelDescriptor{Name: "c"})

	got := r.List()
	want := []string{"b", "a", "c"}
	if len(got) != len(want) {
		t.Fatalf("List() len = %d, want %d", len(got), len(want))
	}
	for i, d := range got {
		if d.Name != want[i] {
			t.Errorf("List()[%d].Name = %q, want %q", i, d.Name, want[i])
		}
	}
}

func TestRegisterOverwriteKeepsSingleOrderSlot(t *testing.T) {
	r := modelregistry.New()
	r.Register(models.ModelDescriptor{Name: "dup", Model: "v1"})
	r.Register(models.ModelDescriptor{Name: "dup", Model: "v2"})

	got := r.List()
	if len(got) != 1 {
		t.Fatalf("List() len = %d, want 1", len(got))
	}
	if got[0].Model != "v2" {
		t.Errorf("List()[0].Model = %q, want %q", got[0].Model, "v2")
	}
}
