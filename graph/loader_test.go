package graph

import (
	"strings"
	"testing"
)

const scenarioDoc = `{
  "nodes": [
    {"id": "A", "label": "Alpha", "type": "concept", "size": 2.5,
     "weight": 0.8, "confidence": 0.9, "tags": ["core"],
     "color": {"r": 1, "g": 0.5, "b": 0.25, "a": 1}},
    {"id": "B", "label": "Beta", "type": "document",
     "pinned": {"x": 1, "y": 2, "z": 3}},
    {"id": "C", "label": "Gamma", "type": "concept"}
  ],
  "edges": [
    {"id": "ab", "source": "A", "target": "B", "strength": 0.9, "type": "cites"},
    {"source": "B", "target": "C", "strength": 0.4},
    {"id": "bad", "source": "A", "target": "ghost", "strength": 0.5}
  ]
}`

func TestLoadGraphScenario(t *testing.T) {
	st := NewStore(nil)

	scenario, err := LoadGraphScenario(st, strings.NewReader(scenarioDoc))
	if err != nil {
		t.Fatalf("LoadGraphScenario failed: %v", err)
	}

	if len(scenario.NodeIDs) != 3 {
		t.Fatalf("expected 3 nodes loaded, got %v", scenario.NodeIDs)
	}
	if len(scenario.EdgeIDs) != 2 {
		t.Fatalf("expected 2 edges after sanitization, got %v", scenario.EdgeIDs)
	}
	if scenario.Stats.DanglingEdges != 1 {
		t.Fatalf("expected the ghost edge counted as dangling, got %+v", scenario.Stats)
	}

	a, ok := st.Node("A")
	if !ok {
		t.Fatalf("node A missing")
	}
	if a.Label != "Alpha" || a.Size != 2.5 || a.Metadata.Weight != 0.8 {
		t.Errorf("node A fields wrong: %+v", a)
	}
	if a.Color.R != 1 || a.Color.G != 0.5 {
		t.Errorf("node A color wrong: %+v", a.Color)
	}

	b, _ := st.Node("B")
	if b.Pinned == nil || b.Pinned.X != 1 || b.Pinned.Z != 3 {
		t.Errorf("node B pin wrong: %+v", b.Pinned)
	}
	// Defaults for unspecified size and color.
	if b.Size != 1 || b.Color.A != 1 {
		t.Errorf("node B defaults wrong: size %v color %+v", b.Size, b.Color)
	}

	// The id-less edge got a generated id.
	for _, e := range st.Edges() {
		if e.Source == "B" && e.Target == "C" && e.ID == "" {
			t.Errorf("expected generated id for the B-C edge")
		}
	}
}

func TestLoadGraphScenario_Errors(t *testing.T) {
	st := NewStore(nil)

	if _, err := LoadGraphScenario(nil, strings.NewReader("{}")); err == nil {
		t.Fatalf("expected error for nil store")
	}
	if _, err := LoadGraphScenario(st, strings.NewReader("not json")); err == nil {
		t.Fatalf("expected decode error")
	}
	if _, err := LoadGraphScenario(st, strings.NewReader(`{"nodes":[{"id":""}]}`)); err == nil {
		t.Fatalf("expected error for empty node id")
	}
	if _, err := LoadGraphScenario(st, strings.NewReader(`{"nodes":[{"id":"A"}],"edges":[{"source":"A","target":""}]}`)); err == nil {
		t.Fatalf("expected error for empty edge endpoint")
	}
}
