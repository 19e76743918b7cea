package core

import (
	"math"
	"testing"

	"github.com/signalsfoundry/graphscape/model"
)

func nodesByID(ids ...string) []model.Node {
	out := make([]model.Node, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.Node{ID: id})
	}
	return out
}

func TestFilterEdges_DropsDanglingAndSelfEdges(t *testing.T) {
	nodes := nodesByID("a", "b")
	raw := []model.Edge{
		{ID: "ok", Source: "a", Target: "b", Strength: 0.8},
		{ID: "dangling", Source: "a", Target: "ghost", Strength: 0.9},
		{ID: "self", Source: "b", Target: "b", Strength: 0.9},
	}

	working := FilterEdges(nodes, raw, DefaultMinStrength)
	if len(working) != 1 || working[0].ID != "ok" {
		t.Fatalf("expected only the valid edge to survive, got %v", working)
	}
}

func TestFilterEdges_RescalesWhenStrengthsExceedOne(t *testing.T) {
	nodes := nodesByID("a", "b", "c")
	raw := []model.Edge{
		{ID: "e1", Source: "a", Target: "b", Strength: 4},
		{ID: "e2", Source: "b", Target: "c", Strength: 2},
	}

	working := FilterEdges(nodes, raw, DefaultMinStrength)
	if len(working) != 2 {
		t.Fatalf("expected both edges, got %d", len(working))
	}
	for _, e := range working {
		if e.Strength < 0 || e.Strength > 1 {
			t.Errorf("edge %s strength %v outside [0,1]", e.ID, e.Strength)
		}
	}
	// Relative order must be preserved: e1 was twice as strong as e2.
	if math.Abs(working[0].Strength-2*working[1].Strength) > 1e-9 {
		t.Errorf("rescale changed relative strengths: %v vs %v",
			working[0].Strength, working[1].Strength)
	}
}

func TestFilterEdges_DropsBelowMinStrength(t *testing.T) {
	nodes := nodesByID("a", "b", "c")
	raw := []model.Edge{
		{ID: "strong", Source: "a", Target: "b", Strength: 0.5},
		{ID: "weak", Source: "b", Target: "c", Strength: 0.01},
	}

	working := FilterEdges(nodes, raw, DefaultMinStrength)
	if len(working) != 1 || working[0].ID != "strong" {
		t.Fatalf("expected the weak edge to be dropped, got %v", working)
	}
}

func TestFilterEdges_EmptyInputs(t *testing.T) {
	if got := FilterEdges(nil, nil, DefaultMinStrength); len(got) != 0 {
		t.Fatalf("expected empty working set, got %v", got)
	}
	if got := FilterEdges(nodesByID("a"), nil, DefaultMinStrength); len(got) != 0 {
		t.Fatalf("expected empty working set, got %v", got)
	}
}
