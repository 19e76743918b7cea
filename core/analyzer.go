package core

import (
	"context"
	"errors"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/graphscape/internal/logging"
	"github.com/signalsfoundry/graphscape/model"
)

// ErrAnalyzerStopped is returned for queries issued after Stop.
var ErrAnalyzerStopped = errors.New("connection analyzer stopped")

// ErrSuperseded is returned to a caller whose query was replaced by a newer
// query for the same key before it ran.
var ErrSuperseded = errors.New("query superseded by a newer request")

// AnalyzerOptions tune the traversal bounds. Zero values take defaults.
type AnalyzerOptions struct {
	// MaxDepth bounds neighborhood expansion and strength scoring.
	MaxDepth int

	// PathMaxDepth bounds shortest-path searches, which may legitimately
	// go deeper than neighborhood queries.
	PathMaxDepth int

	// VisitBudget caps the number of node expansions per query so dense
	// graphs cannot stall the worker.
	VisitBudget int

	// PathDecay is the per-extra-hop multiplier applied to the bottleneck
	// edge weight when scoring indirect connections.
	PathDecay float64

	// YieldBudget is the time slice after which a traversal yields between
	// node expansions.
	YieldBudget time.Duration
}

func (o AnalyzerOptions) withDefaults() AnalyzerOptions {
	if o.MaxDepth <= 0 {
		o.MaxDepth = 2
	}
	if o.PathMaxDepth <= 0 {
		o.PathMaxDepth = 4
	}
	if o.VisitBudget <= 0 {
		o.VisitBudget = 20000
	}
	if o.PathDecay <= 0 || o.PathDecay > 1 {
		o.PathDecay = 0.7
	}
	if o.YieldBudget <= 0 {
		o.YieldBudget = 4 * time.Millisecond
	}
	return o
}

type adjEdge struct {
	to       string
	strength float64
}

type neighborhoodKey struct {
	nodeID   string
	maxDepth int
}

type cachedNeighborhood struct {
	ids []string
}

// AnalyzerMetricsRecorder receives query telemetry. Implemented by the
// observability collector; nil disables recording.
type AnalyzerMetricsRecorder interface {
	ObserveQuery(duration time.Duration)
	SetQueueDepth(count int)
	IncSuperseded()
	SetCacheHitRatio(ratio float64)
}

// ConnectionAnalyzer answers reachability and connection-strength queries
// over the working edge set. Queries run on a dedicated worker goroutine so
// BFS cost never stalls frame production; results are cached per
// (node, depth) and invalidated wholesale whenever the edge set changes.
type ConnectionAnalyzer struct {
	opts    AnalyzerOptions
	log     logging.Logger
	metrics AnalyzerMetricsRecorder

	mu    sync.RWMutex
	nodes map[string]model.Node
	adj   map[string][]adjEdge

	cacheMu sync.Mutex
	cache   map[neighborhoodKey]cachedNeighborhood
	hits    uint64
	misses  uint64

	requests chan analyzerRequest

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

type analyzerKind int

const (
	queryConnected analyzerKind = iota
	queryPath
	queryStrength
)

type analyzerRequest struct {
	kind analyzerKind
	key  string

	nodeID   string
	target   string
	maxDepth int
	selected []string

	reply chan analyzerResponse
}

type analyzerResponse struct {
	nodes    []model.Node
	path     []string
	strength map[string]float64
	err      error
}

// NewConnectionAnalyzer constructs an analyzer with no graph loaded.
func NewConnectionAnalyzer(opts AnalyzerOptions, log logging.Logger, metrics AnalyzerMetricsRecorder) *ConnectionAnalyzer {
	if log == nil {
		log = logging.Noop()
	}
	return &ConnectionAnalyzer{
		opts:     opts.withDefaults(),
		log:      log,
		metrics:  metrics,
		nodes:    map[string]model.Node{},
		adj:      map[string][]adjEdge{},
		cache:    map[neighborhoodKey]cachedNeighborhood{},
		requests: make(chan analyzerRequest, 16),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the query worker.
func (a *ConnectionAnalyzer) Start() {
	a.startOnce.Do(func() {
		go a.run()
	})
}

// Stop terminates the worker; pending queries fail with ErrAnalyzerStopped.
func (a *ConnectionAnalyzer) Stop() {
	a.stopOnce.Do(func() {
		close(a.stop)
	})
	<-a.done
}

// SetGraph replaces the adjacency with a new working edge set and flushes
// the neighborhood cache.
func (a *ConnectionAnalyzer) SetGraph(nodes []model.Node, working []model.Edge) {
	byID := make(map[string]model.Node, len(nodes))
	adj := make(map[string][]adjEdge, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	for _, e := range working {
		adj[e.Source] = append(adj[e.Source], adjEdge{to: e.Target, strength: e.Strength})
		adj[e.Target] = append(adj[e.Target], adjEdge{to: e.Source, strength: e.Strength})
	}

	a.mu.Lock()
	a.nodes = byID
	a.adj = adj
	a.mu.Unlock()

	a.cacheMu.Lock()
	a.cache = map[neighborhoodKey]cachedNeighborhood{}
	a.cacheMu.Unlock()
}

// recordCacheRatioLocked pushes the running hit ratio to the recorder.
// Caller holds cacheMu.
func (a *ConnectionAnalyzer) recordCacheRatioLocked() {
	if a.metrics == nil {
		return
	}
	total := a.hits + a.misses
	if total == 0 {
		return
	}
	a.metrics.SetCacheHitRatio(float64(a.hits) / float64(total))
}

// CacheStats returns cumulative neighborhood-cache hits and misses.
func (a *ConnectionAnalyzer) CacheStats() (hits, misses uint64) {
	a.cacheMu.Lock()
	defer a.cacheMu.Unlock()
	return a.hits, a.misses
}

// ConnectedNodes returns the nodes reachable from nodeID within maxDepth
// hops (excluding the node itself). maxDepth <= 0 takes the default.
func (a *ConnectionAnalyzer) ConnectedNodes(ctx context.Context, nodeID string, maxDepth int) ([]model.Node, error) {
	if maxDepth <= 0 {
		maxDepth = a.opts.MaxDepth
	}
	resp, err := a.ask(ctx, analyzerRequest{
		kind:     queryConnected,
		key:      "connected:" + nodeID,
		nodeID:   nodeID,
		maxDepth: maxDepth,
	})
	if err != nil {
		return nil, err
	}
	return resp.nodes, resp.err
}

// ShortestPath returns the node ids along a shortest path from a to b,
// inclusive of both endpoints, or nil when no path exists within the
// configured depth bound.
func (a *ConnectionAnalyzer) ShortestPath(ctx context.Context, from, to string) ([]string, error) {
	resp, err := a.ask(ctx, analyzerRequest{
		kind:   queryPath,
		key:    "path:" + from + "→" + to,
		nodeID: from,
		target: to,
	})
	if err != nil {
		return nil, err
	}
	return resp.path, resp.err
}

// ConnectionStrength scores each candidate against the selected set: the
// direct edge weight when one exists, otherwise the best decayed bottleneck
// score over paths within MaxDepth. Candidates with no connection are absent
// from the result.
func (a *ConnectionAnalyzer) ConnectionStrength(ctx context.Context, selected []string, candidates []string) (map[string]float64, error) {
	resp, err := a.ask(ctx, analyzerRequest{
		kind:     queryStrength,
		key:      "strength:" + joinSorted(selected),
		selected: selected,
		maxDepth: a.opts.MaxDepth,
	})
	if err != nil {
		return nil, err
	}
	if resp.err != nil {
		return nil, resp.err
	}
	if candidates == nil {
		return resp.strength, nil
	}
	out := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		if s, ok := resp.strength[c]; ok {
			out[c] = s
		}
	}
	return out, nil
}

// ask sends a request to the worker and waits for the reply, the context,
// or shutdown. The worker drains queued requests before running, keeping
// only the newest per key; replaced callers get ErrSuperseded.
func (a *ConnectionAnalyzer) ask(ctx context.Context, req analyzerRequest) (analyzerResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req.reply = make(chan analyzerResponse, 1)
	select {
	case a.requests <- req:
	case <-a.stop:
		return analyzerResponse{}, ErrAnalyzerStopped
	case <-ctx.Done():
		return analyzerResponse{}, ctx.Err()
	}
	select {
	case resp := <-req.reply:
		return resp, nil
	case <-a.stop:
		return analyzerResponse{}, ErrAnalyzerStopped
	case <-ctx.Done():
		return analyzerResponse{}, ctx.Err()
	}
}

func (a *ConnectionAnalyzer) run() {
	defer close(a.done)
	for {
		select {
		case req := <-a.requests:
			batch := a.drain(req)
			if a.metrics != nil {
				a.metrics.SetQueueDepth(len(batch))
			}
			for _, r := range batch {
				start := time.Now()
				r.reply <- a.execute(r)
				if a.metrics != nil {
					a.metrics.ObserveQuery(time.Since(start))
				}
			}
		case <-a.stop:
			return
		}
	}
}

// drain collects every queued request, keeping only the newest per key.
// Superseded requests are answered immediately with ErrSuperseded; order of
// the surviving requests follows first arrival of each key.
func (a *ConnectionAnalyzer) drain(first analyzerRequest) []analyzerRequest {
	byKey := map[string]int{first.key: 0}
	batch := []analyzerRequest{first}
	for {
		select {
		case req := <-a.requests:
			if i, ok := byKey[req.key]; ok {
				batch[i].reply <- analyzerResponse{err: ErrSuperseded}
				batch[i] = req
				if a.metrics != nil {
					a.metrics.IncSuperseded()
				}
			} else {
				byKey[req.key] = len(batch)
				batch = append(batch, req)
			}
		default:
			return batch
		}
	}
}

func (a *ConnectionAnalyzer) execute(req analyzerRequest) analyzerResponse {
	switch req.kind {
	case queryConnected:
		ids, err := a.neighborhood(req.nodeID, req.maxDepth)
		if err != nil {
			return analyzerResponse{err: err}
		}
		_, byID := a.graphRef()
		nodes := make([]model.Node, 0, len(ids))
		for _, id := range ids {
			if n, ok := byID[id]; ok {
				nodes = append(nodes, n)
			}
		}
		return analyzerResponse{nodes: nodes}

	case queryPath:
		return analyzerResponse{path: a.shortestPath(req.nodeID, req.target)}

	case queryStrength:
		return analyzerResponse{strength: a.strengths(req.selected, req.maxDepth)}
	}
	return analyzerResponse{err: errors.New("unknown query kind")}
}

// graphRef returns the current adjacency and node maps. Both are replaced
// wholesale by SetGraph and never mutated in place, so traversals can hold
// the references without locking.
func (a *ConnectionAnalyzer) graphRef() (map[string][]adjEdge, map[string]model.Node) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.adj, a.nodes
}

// neighborhood runs a depth-bounded BFS and caches the resulting id set.
func (a *ConnectionAnalyzer) neighborhood(nodeID string, maxDepth int) ([]string, error) {
	key := neighborhoodKey{nodeID: nodeID, maxDepth: maxDepth}
	a.cacheMu.Lock()
	if entry, ok := a.cache[key]; ok {
		a.hits++
		a.recordCacheRatioLocked()
		a.cacheMu.Unlock()
		return entry.ids, nil
	}
	a.misses++
	a.recordCacheRatioLocked()
	a.cacheMu.Unlock()

	adj, _ := a.graphRef()

	type queued struct {
		id    string
		depth int
	}
	visited := map[string]struct{}{nodeID: {}}
	queue := []queued{{id: nodeID, depth: 0}}
	var ids []string
	budget := a.opts.VisitBudget
	sliceStart := time.Now()

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxDepth {
			continue
		}
		budget--
		if budget <= 0 {
			break
		}
		if time.Since(sliceStart) > a.opts.YieldBudget {
			// Yield the scheduler between expansions on big fan-outs.
			runtime.Gosched()
			sliceStart = time.Now()
		}
		for _, edge := range adj[cur.id] {
			if _, seen := visited[edge.to]; seen {
				continue
			}
			visited[edge.to] = struct{}{}
			ids = append(ids, edge.to)
			queue = append(queue, queued{id: edge.to, depth: cur.depth + 1})
		}
	}
	sort.Strings(ids)

	a.cacheMu.Lock()
	a.cache[key] = cachedNeighborhood{ids: ids}
	a.cacheMu.Unlock()
	return ids, nil
}

// shortestPath is an unweighted BFS with parent tracking, bounded by
// PathMaxDepth and the visit budget.
func (a *ConnectionAnalyzer) shortestPath(from, to string) []string {
	adj, byID := a.graphRef()

	if _, ok := byID[from]; !ok {
		return nil
	}
	if _, ok := byID[to]; !ok {
		return nil
	}
	if from == to {
		return []string{from}
	}

	type queued struct {
		id    string
		depth int
	}
	parent := map[string]string{from: ""}
	queue := []queued{{id: from, depth: 0}}
	budget := a.opts.VisitBudget

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= a.opts.PathMaxDepth {
			continue
		}
		budget--
		if budget <= 0 {
			return nil
		}
		for _, edge := range adj[cur.id] {
			if _, seen := parent[edge.to]; seen {
				continue
			}
			parent[edge.to] = cur.id
			if edge.to == to {
				return rebuildPath(parent, from, to)
			}
			queue = append(queue, queued{id: edge.to, depth: cur.depth + 1})
		}
	}
	return nil
}

func rebuildPath(parent map[string]string, from, to string) []string {
	var rev []string
	for cur := to; cur != ""; cur = parent[cur] {
		rev = append(rev, cur)
		if cur == from {
			break
		}
	}
	path := make([]string, 0, len(rev))
	for i := len(rev) - 1; i >= 0; i-- {
		path = append(path, rev[i])
	}
	return path
}

// strengths scores every node reachable from the selected set within
// maxDepth. Direct edges contribute their weight; indirect paths contribute
// the weakest edge on the path decayed per extra hop; multiple paths take
// the maximum. The score is monotonically non-decreasing in added edges.
func (a *ConnectionAnalyzer) strengths(selected []string, maxDepth int) map[string]float64 {
	adj, byID := a.graphRef()

	selSet := make(map[string]struct{}, len(selected))
	for _, id := range selected {
		selSet[id] = struct{}{}
	}

	best := map[string]float64{}
	for _, sel := range selected {
		if _, ok := byID[sel]; !ok {
			continue
		}
		// Frontier entries carry the bottleneck weight of the path so far.
		type frontier struct {
			id         string
			depth      int
			bottleneck float64
		}
		queue := []frontier{{id: sel, depth: 0, bottleneck: 1}}
		// bestAt tracks the best bottleneck seen per node at any depth, so
		// weaker revisits prune out.
		bestAt := map[string]float64{sel: 1}
		budget := a.opts.VisitBudget

		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			if cur.depth >= maxDepth {
				continue
			}
			budget--
			if budget <= 0 {
				break
			}
			for _, edge := range adj[cur.id] {
				bn := cur.bottleneck
				if edge.strength < bn {
					bn = edge.strength
				}
				if prev, seen := bestAt[edge.to]; seen && prev >= bn {
					continue
				}
				bestAt[edge.to] = bn
				queue = append(queue, frontier{id: edge.to, depth: cur.depth + 1, bottleneck: bn})

				if _, isSel := selSet[edge.to]; isSel {
					continue
				}
				score := bn * decayPow(a.opts.PathDecay, cur.depth)
				if score > best[edge.to] {
					best[edge.to] = score
				}
			}
		}
	}
	return best
}

func decayPow(decay float64, extraHops int) float64 {
	out := 1.0
	for i := 0; i < extraHops; i++ {
		out *= decay
	}
	return out
}

func joinSorted(ids []string) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	out := ""
	for i, id := range sorted {
		if i > 0 {
			out += ","
		}
		out += id
	}
	return out
}
