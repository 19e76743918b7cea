package graph

import (
	"testing"

	"github.com/signalsfoundry/graphscape/model"
)

func testNodes(ids ...string) []model.Node {
	out := make([]model.Node, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.Node{ID: id})
	}
	return out
}

func TestStore_ReplaceSanitizesInput(t *testing.T) {
	st := NewStore(nil)

	stats := st.Replace(
		[]model.Node{{ID: "A"}, {ID: "B"}, {ID: "A"}, {}},
		[]model.Edge{
			{ID: "ok", Source: "A", Target: "B", Strength: 0.5},
			{ID: "dangling", Source: "A", Target: "ghost"},
			{ID: "self", Source: "B", Target: "B"},
			{ID: "ok", Source: "B", Target: "A"},
		})

	if stats.Nodes != 2 || stats.Edges != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.DuplicateNodes != 2 || stats.DanglingEdges != 1 || stats.SelfEdges != 1 || stats.DuplicateEdges != 1 {
		t.Fatalf("drop counters wrong: %+v", stats)
	}

	nodes, edges := st.Counts()
	if nodes != 2 || edges != 1 {
		t.Fatalf("expected 2 nodes / 1 edge stored, got %d / %d", nodes, edges)
	}
}

func TestStore_VersionBumpsOnEveryMutation(t *testing.T) {
	st := NewStore(nil)
	if st.Version() != 0 {
		t.Fatalf("fresh store must be at version 0")
	}

	st.Replace(testNodes("A", "B"), nil)
	if st.Version() != 1 {
		t.Fatalf("expected version 1 after replace, got %d", st.Version())
	}

	if err := st.UpsertNode(model.Node{ID: "C"}); err != nil {
		t.Fatalf("UpsertNode failed: %v", err)
	}
	if err := st.UpsertEdge(model.Edge{ID: "ab", Source: "A", Target: "B", Strength: 0.4}); err != nil {
		t.Fatalf("UpsertEdge failed: %v", err)
	}
	st.RemoveEdge("ab")
	st.RemoveNode("C")
	if st.Version() != 5 {
		t.Fatalf("expected version 5, got %d", st.Version())
	}

	// No-op removals do not bump the version.
	st.RemoveNode("nope")
	st.RemoveEdge("nope")
	if st.Version() != 5 {
		t.Fatalf("no-op removal bumped version to %d", st.Version())
	}
}

func TestStore_UpsertEdgeValidatesEndpoints(t *testing.T) {
	st := NewStore(nil)
	st.Replace(testNodes("A", "B"), nil)

	if err := st.UpsertEdge(model.Edge{Source: "A", Target: "ghost"}); err == nil {
		t.Fatalf("expected error for missing endpoint")
	}
	if err := st.UpsertEdge(model.Edge{Source: "A", Target: "A"}); err == nil {
		t.Fatalf("expected error for self edge")
	}

	// Empty edge id gets generated.
	if err := st.UpsertEdge(model.Edge{Source: "A", Target: "B", Strength: 0.5}); err != nil {
		t.Fatalf("UpsertEdge failed: %v", err)
	}
	edges := st.Edges()
	if len(edges) != 1 || edges[0].ID == "" {
		t.Fatalf("expected one edge with generated id, got %v", edges)
	}
}

func TestStore_RemoveNodeCascadesToEdges(t *testing.T) {
	st := NewStore(nil)
	st.Replace(testNodes("A", "B", "C"), []model.Edge{
		{ID: "ab", Source: "A", Target: "B", Strength: 0.5},
		{ID: "bc", Source: "B", Target: "C", Strength: 0.5},
	})

	st.RemoveNode("B")
	nodes, edges := st.Counts()
	if nodes != 2 || edges != 0 {
		t.Fatalf("expected incident edges removed, got %d nodes / %d edges", nodes, edges)
	}
}

func TestStore_SubscribeAndUnsubscribe(t *testing.T) {
	st := NewStore(nil)

	var events []Event
	unsub := st.Subscribe(func(ev Event) { events = append(events, ev) })

	st.Replace(testNodes("A", "B"), nil)
	if len(events) != 1 || events[0].Type != EventGraphReplaced || events[0].Version != 1 {
		t.Fatalf("unexpected events after replace: %v", events)
	}

	if err := st.UpsertNode(model.Node{ID: "C"}); err != nil {
		t.Fatalf("UpsertNode failed: %v", err)
	}
	if len(events) != 2 || events[1].Type != EventNodeUpserted || events[1].NodeID != "C" {
		t.Fatalf("unexpected events after upsert: %v", events)
	}

	unsub()
	st.RemoveNode("C")
	if len(events) != 2 {
		t.Fatalf("unsubscribed callback still firing: %v", events)
	}
}

func TestStore_ReadsReturnCopies(t *testing.T) {
	st := NewStore(nil)
	st.Replace(testNodes("B", "A"), nil)

	nodes := st.Nodes()
	if len(nodes) != 2 || nodes[0].ID != "A" || nodes[1].ID != "B" {
		t.Fatalf("expected id-sorted nodes, got %v", nodes)
	}

	nodes[0].Label = "mutated"
	if n, _ := st.Node("A"); n.Label == "mutated" {
		t.Fatalf("caller mutation leaked into the store")
	}
}

func TestStore_NodesMatchingAppliesFilter(t *testing.T) {
	st := NewStore(nil)
	st.Replace([]model.Node{
		{ID: "doc1", Type: "document", Metadata: model.NodeMetadata{Confidence: 0.9}},
		{ID: "doc2", Type: "document", Metadata: model.NodeMetadata{Confidence: 0.2}},
		{ID: "person1", Type: "person", Metadata: model.NodeMetadata{Confidence: 0.9}},
	}, nil)

	got := st.NodesMatching(model.FilterSpec{Types: []string{"document"}, MinConfidence: 0.5})
	if len(got) != 1 || got[0].ID != "doc1" {
		t.Fatalf("filter returned %v", got)
	}

	all := st.NodesMatching(model.FilterSpec{})
	if len(all) != 3 {
		t.Fatalf("zero filter must match everything, got %v", all)
	}
}
