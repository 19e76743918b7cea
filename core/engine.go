package core

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/signalsfoundry/graphscape/graph"
	"github.com/signalsfoundry/graphscape/internal/logging"
	"github.com/signalsfoundry/graphscape/model"
)

// EngineMetricsRecorder receives count updates for the graph entities the
// engine manages.
type EngineMetricsRecorder interface {
	SetGraphCounts(nodes, edges, workingEdges, clusters int)
}

// EngineOption customises Engine construction.
type EngineOption func(*Engine)

// WithMinStrength overrides the working-set strength floor.
func WithMinStrength(min float64) EngineOption {
	return func(e *Engine) {
		e.minStrength = min
	}
}

// WithLayoutOptions overrides the layout physics and scheduling constants.
func WithLayoutOptions(opts LayoutOptions) EngineOption {
	return func(e *Engine) {
		e.layoutOpts = opts
	}
}

// WithAnalyzerOptions overrides the connection analyzer's traversal bounds.
func WithAnalyzerOptions(opts AnalyzerOptions) EngineOption {
	return func(e *Engine) {
		e.analyzerOpts = opts
	}
}

// WithClusterThreshold overrides the strong-edge threshold for clustering.
func WithClusterThreshold(threshold float64) EngineOption {
	return func(e *Engine) {
		e.clusterer.Threshold = threshold
	}
}

// WithEngineMetrics attaches an optional recorder for entity counts.
func WithEngineMetrics(m EngineMetricsRecorder) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLayoutMetrics attaches an optional recorder for layout pass telemetry.
func WithLayoutMetrics(m LayoutMetricsRecorder) EngineOption {
	return func(e *Engine) {
		e.layoutMetrics = m
	}
}

// WithAnalyzerMetrics attaches an optional recorder for query telemetry.
func WithAnalyzerMetrics(m AnalyzerMetricsRecorder) EngineOption {
	return func(e *Engine) {
		e.analyzerMetrics = m
	}
}

// Engine wires the graph store, edge filter, clustering, layout, and
// connection analysis into one pipeline. Graph mutations flow through
// automatically: a store event rebuilds the working edge set and cluster
// membership, feeds the analyzer, and submits a (debounced) layout pass;
// each published layout snapshot refreshes cluster centroids.
type Engine struct {
	log   logging.Logger
	store *graph.Store

	minStrength  float64
	layoutOpts   LayoutOptions
	analyzerOpts AnalyzerOptions

	clusterer *ClusteringEngine
	layout    *LayoutEngine
	analyzer  *ConnectionAnalyzer

	metrics         EngineMetricsRecorder
	layoutMetrics   LayoutMetricsRecorder
	analyzerMetrics AnalyzerMetricsRecorder

	// mu guards the working set captured at the last recompute; the
	// snapshot listener reads it to refresh cluster geometry.
	mu      sync.Mutex
	nodes   []model.Node
	working []model.Edge

	clusters atomic.Pointer[[]model.Cluster]

	unsubscribe func()
	startOnce   sync.Once
	stopOnce    sync.Once
}

// NewEngine wires an engine around the given store.
func NewEngine(store *graph.Store, log logging.Logger, opts ...EngineOption) *Engine {
	if log == nil {
		log = logging.Noop()
	}
	e := &Engine{
		log:         log,
		store:       store,
		minStrength: DefaultMinStrength,
		clusterer:   NewClusteringEngine(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.layout = NewLayoutEngine(e.layoutOpts, log, e.layoutMetrics)
	e.analyzer = NewConnectionAnalyzer(e.analyzerOpts, log, e.analyzerMetrics)
	e.layout.OnSnapshot(e.onSnapshot)
	return e
}

// Start subscribes to store events and launches the worker goroutines. The
// current store contents are picked up immediately.
func (e *Engine) Start() {
	e.startOnce.Do(func() {
		e.layout.Start()
		e.analyzer.Start()
		e.unsubscribe = e.store.Subscribe(func(graph.Event) {
			e.recompute()
		})
		e.recompute()
	})
}

// Stop detaches from the store and terminates the workers.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		if e.unsubscribe != nil {
			e.unsubscribe()
		}
		e.layout.Stop()
		e.analyzer.Stop()
	})
}

// OnSnapshot registers a callback for published layout snapshots. Register
// before Start; callbacks run on the layout worker and must not block.
func (e *Engine) OnSnapshot(fn func(*model.LayoutSnapshot)) {
	e.layout.OnSnapshot(fn)
}

// Snapshot returns the most recent layout snapshot, or nil before the first
// pass publishes.
func (e *Engine) Snapshot() *model.LayoutSnapshot {
	return e.layout.Snapshot()
}

// LayoutState returns the layout engine's lifecycle state.
func (e *Engine) LayoutState() LayoutState {
	return e.layout.State()
}

// Clusters returns the current cluster set with centroids from the latest
// snapshot. Nil before the first recompute.
func (e *Engine) Clusters() []model.Cluster {
	if p := e.clusters.Load(); p != nil {
		return *p
	}
	return nil
}

// WorkingEdges returns a copy of the current filtered edge set.
func (e *Engine) WorkingEdges() []model.Edge {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Edge, len(e.working))
	copy(out, e.working)
	return out
}

// ConnectedNodes reports the nodes reachable from nodeID within maxDepth
// hops over the working edge set.
func (e *Engine) ConnectedNodes(ctx context.Context, nodeID string, maxDepth int) ([]model.Node, error) {
	return e.analyzer.ConnectedNodes(ctx, nodeID, maxDepth)
}

// ShortestPath reports a shortest path between two nodes over the working
// edge set, or nil when none exists within the analyzer's depth bound.
func (e *Engine) ShortestPath(ctx context.Context, from, to string) ([]string, error) {
	return e.analyzer.ShortestPath(ctx, from, to)
}

// ConnectionStrength scores candidates against the selected node set.
func (e *Engine) ConnectionStrength(ctx context.Context, selected, candidates []string) (map[string]float64, error) {
	return e.analyzer.ConnectionStrength(ctx, selected, candidates)
}

// AnalyzerCacheStats returns the analyzer's cumulative cache hit and miss
// counters.
func (e *Engine) AnalyzerCacheStats() (hits, misses uint64) {
	return e.analyzer.CacheStats()
}

// Refresh forces a full pipeline recompute from the store's current
// contents, as if a graph mutation had just committed.
func (e *Engine) Refresh() {
	e.recompute()
}

// recompute rebuilds the derived state after a graph change: working edges,
// cluster membership, analyzer adjacency, and a layout submission.
func (e *Engine) recompute() {
	nodes := e.store.Nodes()
	edges := e.store.Edges()
	version := e.store.Version()

	working := FilterEdges(nodes, edges, e.minStrength)

	snap := e.layout.Snapshot()
	var positions map[string]model.Position
	if snap != nil {
		positions = snap.Positions
	}
	clusters := e.clusterer.Compute(nodes, working, positions)
	e.clusters.Store(&clusters)

	clusterOf := make(map[string]int, len(nodes))
	for _, c := range clusters {
		for _, id := range c.Members {
			clusterOf[id] = c.ID
		}
	}

	e.mu.Lock()
	e.nodes = nodes
	e.working = working
	e.mu.Unlock()

	e.analyzer.SetGraph(nodes, working)
	e.layout.Submit(LayoutInput{
		GraphVersion: version,
		Nodes:        nodes,
		Edges:        working,
		ClusterOf:    clusterOf,
	})

	if e.metrics != nil {
		e.metrics.SetGraphCounts(len(nodes), len(edges), len(working), len(clusters))
	}
	e.log.Debug(context.Background(), "pipeline recomputed",
		logging.Uint64("graph_version", version),
		logging.Int("nodes", len(nodes)),
		logging.Int("working_edges", len(working)),
		logging.Int("clusters", len(clusters)))
}

// onSnapshot refreshes cluster centroids and radii against the freshly
// published positions. Membership is unchanged; only geometry moves.
func (e *Engine) onSnapshot(snap *model.LayoutSnapshot) {
	e.mu.Lock()
	nodes := e.nodes
	working := e.working
	e.mu.Unlock()

	clusters := e.clusterer.Compute(nodes, working, snap.Positions)
	e.clusters.Store(&clusters)
}
