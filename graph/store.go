package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/signalsfoundry/graphscape/internal/logging"
	"github.com/signalsfoundry/graphscape/model"
)

// EventType indicates what kind of change happened in the store.
type EventType int

const (
	EventGraphReplaced EventType = iota
	EventNodeUpserted
	EventNodeRemoved
	EventEdgeUpserted
	EventEdgeRemoved
)

func (t EventType) String() string {
	switch t {
	case EventGraphReplaced:
		return "graph_replaced"
	case EventNodeUpserted:
		return "node_upserted"
	case EventNodeRemoved:
		return "node_removed"
	case EventEdgeUpserted:
		return "edge_upserted"
	case EventEdgeRemoved:
		return "edge_removed"
	}
	return "unknown"
}

// Event is emitted to subscribers after a mutation commits. Version is the
// store version the mutation produced.
type Event struct {
	Type    EventType
	Version uint64
	NodeID  string
	EdgeID  string
}

// ReplaceStats summarizes what Replace dropped while sanitizing its input.
// Dropped items are recoverable data problems, not errors: the rest of the
// graph loads normally.
type ReplaceStats struct {
	Nodes          int
	Edges          int
	DuplicateNodes int
	DuplicateEdges int
	DanglingEdges  int
	SelfEdges      int
}

// Store is the in-memory, thread-safe system of record for the graph. Every
// committed mutation bumps a monotonic version; downstream engines use the
// version to tell whether a snapshot is stale. Reads return copies, never
// internal references.
type Store struct {
	log logging.Logger

	mu      sync.RWMutex
	nodes   map[string]model.Node
	edges   map[string]model.Edge
	version uint64

	subs   []func(Event)
	nextID atomic.Uint64
}

// NewStore constructs an empty store. log may be nil.
func NewStore(log logging.Logger) *Store {
	if log == nil {
		log = logging.Noop()
	}
	return &Store{
		log:   log,
		nodes: make(map[string]model.Node),
		edges: make(map[string]model.Edge),
	}
}

// Version returns the current graph version. Version 0 means no mutation has
// committed yet.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Counts returns the number of nodes and edges currently stored.
func (s *Store) Counts() (nodes, edges int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes), len(s.edges)
}

// Node returns the node with the given id, if present.
func (s *Store) Node(id string) (model.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	return n, ok
}

// Edge returns the edge with the given id, if present.
func (s *Store) Edge(id string) (model.Edge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.edges[id]
	return e, ok
}

// Nodes returns all nodes sorted by id.
func (s *Store) Nodes() []model.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]model.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		res = append(res, n)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// Edges returns all edges sorted by id.
func (s *Store) Edges() []model.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]model.Edge, 0, len(s.edges))
	for _, e := range s.edges {
		res = append(res, e)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// NodesMatching returns the nodes passing the filter, sorted by id.
func (s *Store) NodesMatching(f model.FilterSpec) []model.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]model.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		if f.Matches(n) {
			res = append(res, n)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// Replace swaps in an entirely new graph. Input problems are sanitized
// rather than rejected: duplicate node ids keep the first occurrence,
// duplicate edge ids keep the first occurrence, self edges and edges whose
// endpoints are missing are dropped. Every drop is logged and counted in the
// returned stats.
func (s *Store) Replace(nodes []model.Node, edges []model.Edge) ReplaceStats {
	ctx := context.Background()
	stats := ReplaceStats{}

	byID := make(map[string]model.Node, len(nodes))
	for _, n := range nodes {
		if n.ID == "" {
			stats.DuplicateNodes++
			s.log.Warn(ctx, "dropping node with empty id")
			continue
		}
		if _, exists := byID[n.ID]; exists {
			stats.DuplicateNodes++
			s.log.Warn(ctx, "dropping duplicate node", logging.String("node_id", n.ID))
			continue
		}
		byID[n.ID] = n
	}

	edgeByID := make(map[string]model.Edge, len(edges))
	for _, e := range edges {
		switch {
		case e.Source == e.Target:
			stats.SelfEdges++
			s.log.Warn(ctx, "dropping self edge", logging.String("edge_id", e.ID))
			continue
		case byID[e.Source].ID == "" || byID[e.Target].ID == "":
			stats.DanglingEdges++
			s.log.Warn(ctx, "dropping edge with missing endpoint",
				logging.String("edge_id", e.ID),
				logging.String("source", e.Source),
				logging.String("target", e.Target))
			continue
		}
		if e.ID == "" {
			e.ID = s.generateEdgeID(e)
		}
		if _, exists := edgeByID[e.ID]; exists {
			stats.DuplicateEdges++
			s.log.Warn(ctx, "dropping duplicate edge", logging.String("edge_id", e.ID))
			continue
		}
		edgeByID[e.ID] = e
	}

	stats.Nodes = len(byID)
	stats.Edges = len(edgeByID)

	s.mu.Lock()
	s.nodes = byID
	s.edges = edgeByID
	s.version++
	ev := Event{Type: EventGraphReplaced, Version: s.version}
	subs := append([]func(Event){}, s.subs...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
	return stats
}

// UpsertNode inserts or updates a node.
func (s *Store) UpsertNode(n model.Node) error {
	if n.ID == "" {
		return fmt.Errorf("upsert node: empty id")
	}

	s.mu.Lock()
	s.nodes[n.ID] = n
	s.version++
	ev := Event{Type: EventNodeUpserted, Version: s.version, NodeID: n.ID}
	subs := append([]func(Event){}, s.subs...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
	return nil
}

// RemoveNode deletes a node and every edge incident to it. Removing an
// unknown id is a no-op.
func (s *Store) RemoveNode(id string) {
	s.mu.Lock()
	if _, ok := s.nodes[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.nodes, id)
	for eid, e := range s.edges {
		if e.Source == id || e.Target == id {
			delete(s.edges, eid)
		}
	}
	s.version++
	ev := Event{Type: EventNodeRemoved, Version: s.version, NodeID: id}
	subs := append([]func(Event){}, s.subs...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

// UpsertEdge inserts or updates an edge. Both endpoints must exist and
// differ; an empty edge id gets a generated one.
func (s *Store) UpsertEdge(e model.Edge) error {
	if e.Source == e.Target {
		return fmt.Errorf("upsert edge %q: source and target are both %q", e.ID, e.Source)
	}

	s.mu.Lock()
	if _, ok := s.nodes[e.Source]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("upsert edge %q: source node %q not found", e.ID, e.Source)
	}
	if _, ok := s.nodes[e.Target]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("upsert edge %q: target node %q not found", e.ID, e.Target)
	}
	if e.ID == "" {
		e.ID = s.generateEdgeID(e)
	}
	s.edges[e.ID] = e
	s.version++
	ev := Event{Type: EventEdgeUpserted, Version: s.version, EdgeID: e.ID}
	subs := append([]func(Event){}, s.subs...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
	return nil
}

// RemoveEdge deletes an edge. Removing an unknown id is a no-op.
func (s *Store) RemoveEdge(id string) {
	s.mu.Lock()
	if _, ok := s.edges[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.edges, id)
	s.version++
	ev := Event{Type: EventEdgeRemoved, Version: s.version, EdgeID: id}
	subs := append([]func(Event){}, s.subs...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

// Subscribe registers a callback for store events and returns an unsubscribe
// function. Callbacks run synchronously on the mutating goroutine and must
// not call back into the store's write methods.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subs = append(s.subs, fn)
	idx := len(s.subs) - 1
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if idx < len(s.subs) {
			s.subs[idx] = func(Event) {}
		}
	}
}

// generateEdgeID derives an id for edges loaded without one.
func (s *Store) generateEdgeID(e model.Edge) string {
	return fmt.Sprintf("%s--%s#%d", e.Source, e.Target, s.nextID.Add(1))
}
