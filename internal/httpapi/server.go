package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/signalsfoundry/graphscape/core"
	"github.com/signalsfoundry/graphscape/graph"
	"github.com/signalsfoundry/graphscape/internal/logging"
	"github.com/signalsfoundry/graphscape/render"
)

// Server exposes the engine's derived state over HTTP/JSON: the latest
// layout snapshot, clusters, reachability and path queries, and runtime
// statistics. Graph replacement goes through POST /api/v1/graph using the
// same document format as the file loader.
type Server struct {
	log    logging.Logger
	store  *graph.Store
	engine *core.Engine

	metricsHandler http.Handler
	middlewares    []func(http.Handler) http.Handler
	governor       *render.PerformanceGovernor
}

// Option customises Server construction.
type Option func(*Server)

// WithMetricsHandler mounts the given handler at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metricsHandler = h
	}
}

// WithMiddleware appends middleware applied to every route, typically the
// observability collector's request recorder.
func WithMiddleware(mw func(http.Handler) http.Handler) Option {
	return func(s *Server) {
		s.middlewares = append(s.middlewares, mw)
	}
}

// WithGovernor includes frame statistics in the /stats payload.
func WithGovernor(g *render.PerformanceGovernor) Option {
	return func(s *Server) {
		s.governor = g
	}
}

// NewServer wires a server around the store and engine.
func NewServer(store *graph.Store, engine *core.Engine, log logging.Logger, opts ...Option) *Server {
	if log == nil {
		log = logging.Noop()
	}
	s := &Server{
		log:    log,
		store:  store,
		engine: engine,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	for _, mw := range s.middlewares {
		r.Use(mw)
	}

	r.Get("/healthz", s.health)
	if s.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/snapshot", s.snapshot)
		r.Get("/clusters", s.clusters)
		r.Get("/nodes/{id}/connected", s.connected)
		r.Get("/path", s.path)
		r.Get("/stats", s.stats)
		r.Post("/graph", s.replaceGraph)
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type positionJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type snapshotJSON struct {
	Version      uint64                  `json:"version"`
	GraphVersion uint64                  `json:"graph_version"`
	Converged    bool                    `json:"converged"`
	Iterations   int                     `json:"iterations"`
	ComputedAt   time.Time               `json:"computed_at"`
	Positions    map[string]positionJSON `json:"positions"`
}

func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "no layout snapshot published yet")
		return
	}

	out := snapshotJSON{
		Version:      snap.Version,
		GraphVersion: snap.GraphVersion,
		Converged:    snap.Converged,
		Iterations:   snap.Iterations,
		ComputedAt:   snap.ComputedAt,
		Positions:    make(map[string]positionJSON, len(snap.Positions)),
	}
	for id, p := range snap.Positions {
		out.Positions[id] = positionJSON{X: p.X, Y: p.Y, Z: p.Z}
	}
	writeJSON(w, http.StatusOK, out)
}

type clusterJSON struct {
	ID           int          `json:"id"`
	Label        string       `json:"label"`
	DominantType string       `json:"dominant_type"`
	Members      []string     `json:"members"`
	Centroid     positionJSON `json:"centroid"`
	Radius       float64      `json:"radius"`
	TotalWeight  float64      `json:"total_weight"`
}

func (s *Server) clusters(w http.ResponseWriter, r *http.Request) {
	clusters := s.engine.Clusters()
	out := make([]clusterJSON, 0, len(clusters))
	for _, c := range clusters {
		out = append(out, clusterJSON{
			ID:           c.ID,
			Label:        c.Label,
			DominantType: c.DominantType,
			Members:      c.Members,
			Centroid:     positionJSON{X: c.Centroid.X, Y: c.Centroid.Y, Z: c.Centroid.Z},
			Radius:       c.Radius,
			TotalWeight:  c.TotalWeight,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"clusters": out})
}

type nodeJSON struct {
	ID     string  `json:"id"`
	Label  string  `json:"label,omitempty"`
	Type   string  `json:"type,omitempty"`
	Weight float64 `json:"weight,omitempty"`
}

func (s *Server) connected(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	depth := 0
	if raw := r.URL.Query().Get("depth"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "depth must be a non-negative integer")
			return
		}
		depth = parsed
	}

	nodes, err := s.engine.ConnectedNodes(r.Context(), id, depth)
	if err != nil {
		writeQueryError(w, err)
		return
	}

	out := make([]nodeJSON, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, nodeJSON{ID: n.ID, Label: n.Label, Type: n.Type, Weight: n.Metadata.Weight})
	}
	writeJSON(w, http.StatusOK, map[string]any{"node_id": id, "nodes": out})
}

func (s *Server) path(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}

	path, err := s.engine.ShortestPath(r.Context(), from, to)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"from":  from,
		"to":    to,
		"found": len(path) > 0,
		"path":  path,
	})
}

type statsJSON struct {
	Nodes        int    `json:"nodes"`
	Edges        int    `json:"edges"`
	WorkingEdges int    `json:"working_edges"`
	Clusters     int    `json:"clusters"`
	GraphVersion uint64 `json:"graph_version"`
	LayoutState  string `json:"layout_state"`

	CacheHits   uint64 `json:"cache_hits"`
	CacheMisses uint64 `json:"cache_misses"`

	Frame *frameJSON `json:"frame,omitempty"`
}

type frameJSON struct {
	FPS                float64 `json:"fps"`
	P90FrameTimeMillis float64 `json:"p90_frame_time_ms"`
	DrawCalls          int     `json:"draw_calls"`
	VisibleNodes       int     `json:"visible_nodes"`
	VisibleConnections int     `json:"visible_connections"`
	Tier               string  `json:"tier"`
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	nodes, edges := s.store.Counts()
	hits, misses := s.engine.AnalyzerCacheStats()

	out := statsJSON{
		Nodes:        nodes,
		Edges:        edges,
		WorkingEdges: len(s.engine.WorkingEdges()),
		Clusters:     len(s.engine.Clusters()),
		GraphVersion: s.store.Version(),
		LayoutState:  s.engine.LayoutState().String(),
		CacheHits:    hits,
		CacheMisses:  misses,
	}
	if s.governor != nil {
		m := s.governor.Metrics()
		out.Frame = &frameJSON{
			FPS:                m.FPS,
			P90FrameTimeMillis: float64(m.P90FrameTime) / float64(time.Millisecond),
			DrawCalls:          m.DrawCalls,
			VisibleNodes:       m.VisibleNodes,
			VisibleConnections: m.VisibleConnections,
			Tier:               m.Tier.String(),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type replaceGraphJSON struct {
	Nodes         int `json:"nodes"`
	Edges         int `json:"edges"`
	DroppedNodes  int `json:"dropped_nodes"`
	DroppedEdges  int `json:"dropped_edges"`
	DanglingEdges int `json:"dangling_edges"`
	SelfEdges     int `json:"self_edges"`
}

func (s *Server) replaceGraph(w http.ResponseWriter, r *http.Request) {
	scenario, err := graph.LoadGraphScenario(s.store, r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.log.Info(r.Context(), "graph replaced via api",
		logging.Int("nodes", len(scenario.NodeIDs)),
		logging.Int("edges", len(scenario.EdgeIDs)))

	writeJSON(w, http.StatusOK, replaceGraphJSON{
		Nodes:         scenario.Stats.Nodes,
		Edges:         scenario.Stats.Edges,
		DroppedNodes:  scenario.Stats.DuplicateNodes,
		DroppedEdges:  scenario.Stats.DuplicateEdges,
		DanglingEdges: scenario.Stats.DanglingEdges,
		SelfEdges:     scenario.Stats.SelfEdges,
	})
}

func writeQueryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrSuperseded):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, core.ErrAnalyzerStopped):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
