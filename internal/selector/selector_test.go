package selector_test

import (
	"testing"

	"github.com/nadimtuhin/loopwork/internal/selector"
	"github.com/nadimtuhin/loopwork/pkg/models"
)

func pool(names ...string) []models.ModelDescriptor {
	out := make([]models.ModelDescriptor, len(names))
	for i, n := range names {
		out[i] = models.ModelDescriptor{Name: n, CostWeight: float64(len(names) - i)}
	}
	return out
}

func TestRoundRobinServesEachOnceBeforeRepeat(t *testing.T) {
	s := selector.New(selector.RoundRobin, pool("a", "b", "c"), nil)
	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		d, ok := s.GetNext()
		if !ok {
			t.Fatalf("GetNext() ok = false on iteration %d", i)
		}
		if seen[d.Name] {
			t.Errorf("GetNext() repeated %q before pool exhausted", d.Name)
		}
		seen[d.Name] = true
	}
	if _, ok := s.GetNext(); ok {
		t.Errorf("GetNext() ok = true after exhausting pool, want false")
	}
}

func TestPriorityReturnsInsertionOrder(t *testing.T) {
	s := selector.New(selector.Priority, pool("a", "b", "c"), nil)
	for _, want := range []string{"a", "b", "c"} {
		d, ok := s.GetNext()
		if !ok || d.Name != want {
			t.Errorf("GetNext() = %q, %v; want %q, true", d.Name, ok, want)
		}
	}
	if _, ok := s.GetNext(); ok {
		t.Errorf("GetNext() ok = true after exhausting pool, want false")
	}
}

func TestPriorityAfterDisableForLoopSkipsNeitherNorRepeats(t *testing.T) {
	s := selector.New(selector.Priority, pool("a", "b", "c"), nil)

	d, ok := s.GetNext()
	if !ok || d.Name != "a" {
		t.Fatalf("GetNext() = %q, %v; want a, true", d.Name, ok)
	}

	s.DisableForLoop("c")

	seen := map[string]int{}
	for {
		d, ok := s.GetNext()
		if !ok {
			break
		}
		seen[d.Name]++
	}
	if seen["b"] != 1 {
		t.Errorf("after disabling c, b served %d times, want exactly 1", seen["b"])
	}
	if seen["c"] != 0 {
		t.Errorf("disabled descriptor c was served %d times, want 0", seen["c"])
	}
}

func TestCostAwarePicksLowestWeightFirst(t *testing.T) {
	descs := []models.ModelDescriptor{
		{Name: "expensive", CostWeight: 9},
		{Name: "cheap", CostWeight: 1},
		{Name: "mid", CostWeight: 5},
	}
	s := selector.New(selector.CostAware, descs, nil)
	d, ok := s.GetNext()
	if !ok || d.Name != "cheap" {
		t.Errorf("GetNext() = %q, %v; want cheap, true", d.Name, ok)
	}
}

func TestExhaustionTriggersFallback(t *testing.T) {
	s := selector.New(selector.RoundRobin, pool("a"), pool("b"))
	_, _ = s.GetNext()
	if _, ok := s.GetNext(); ok {
		t.Fatalf("expected primary pool exhausted")
	}
	s.SwitchToFallback()
	d, ok := s.GetNext()
	if !ok || d.Name != "b" {
		t.Errorf("GetNext() after fallback = %q, %v; want b, true", d.Name, ok)
	}
	if !s.IsUsingFallback() {
		t.Errorf("IsUsingFallback() = false, want true")
	}
}
