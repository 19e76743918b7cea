package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/graphscape/model"
)

// Collector bundles the Prometheus metrics for the engine, layout, and
// render layers. It implements the recorder interfaces those layers accept
// (core.EngineMetricsRecorder, core.LayoutMetricsRecorder,
// render.GovernorMetricsRecorder), so wiring is a single value passed three
// ways.
type Collector struct {
	gatherer prometheus.Gatherer

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec

	GraphNodes        prometheus.Gauge
	GraphEdges        prometheus.Gauge
	GraphWorkingEdges prometheus.Gauge
	GraphClusters     prometheus.Gauge

	LayoutPasses     *prometheus.CounterVec
	LayoutIterations prometheus.Histogram
	LayoutDurations  prometheus.Histogram
	LayoutRecovered  prometheus.Counter

	FrameDurations prometheus.Histogram
	DrawCalls      prometheus.Gauge
	VisibleNodes   prometheus.Gauge
	VisibleEdges   prometheus.Gauge
	Tier           prometheus.Gauge
}

// NewCollector registers the graphscape metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
// Re-registration of identical collectors is tolerated so tests can build
// several Collectors against the same registry.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "graphscape_http_requests_total",
		Help: "Total handled API requests, labeled by route, method, and status code.",
	}, []string{"route", "method", "code"})
	requests, err := registerCounterVec(reg, requests, "graphscape_http_requests_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "graphscape_http_request_duration_seconds",
		Help:    "API request latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"route", "method"})
	durations, err = registerHistogramVec(reg, durations, "graphscape_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	c := &Collector{
		gatherer:      gatherer,
		HTTPRequests:  requests,
		HTTPDurations: durations,
	}

	gauges := []struct {
		target *prometheus.Gauge
		name   string
		help   string
	}{
		{&c.GraphNodes, "graphscape_graph_nodes", "Nodes in the graph store."},
		{&c.GraphEdges, "graphscape_graph_edges", "Edges in the graph store."},
		{&c.GraphWorkingEdges, "graphscape_graph_working_edges", "Edges in the working set after strength filtering."},
		{&c.GraphClusters, "graphscape_graph_clusters", "Clusters detected in the working set."},
		{&c.DrawCalls, "graphscape_render_draw_calls", "Draw calls submitted in the last frame."},
		{&c.VisibleNodes, "graphscape_render_visible_nodes", "Node instances submitted in the last frame."},
		{&c.VisibleEdges, "graphscape_render_visible_edges", "Edge instances submitted in the last frame."},
		{&c.Tier, "graphscape_performance_tier", "Active performance tier (0=low .. 3=ultra)."},
	}
	for _, g := range gauges {
		gauge, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: g.name,
			Help: g.help,
		}), g.name)
		if err != nil {
			return nil, err
		}
		*g.target = gauge
	}

	passes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "graphscape_layout_passes_total",
		Help: "Completed layout passes, labeled by result (converged or partial).",
	}, []string{"result"})
	c.LayoutPasses, err = registerCounterVec(reg, passes, "graphscape_layout_passes_total")
	if err != nil {
		return nil, err
	}

	c.LayoutIterations, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "graphscape_layout_pass_iterations",
		Help:    "Iterations per layout pass.",
		Buckets: []float64{10, 25, 50, 100, 200, 400, 600},
	}), "graphscape_layout_pass_iterations")
	if err != nil {
		return nil, err
	}

	c.LayoutDurations, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "graphscape_layout_pass_duration_seconds",
		Help:    "Wall time per layout pass.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}), "graphscape_layout_pass_duration_seconds")
	if err != nil {
		return nil, err
	}

	recovered := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "graphscape_layout_recoveries_total",
		Help: "Nodes reset after producing non-finite positions.",
	})
	c.LayoutRecovered, err = registerCounter(reg, recovered, "graphscape_layout_recoveries_total")
	if err != nil {
		return nil, err
	}

	c.FrameDurations, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "graphscape_render_frame_duration_seconds",
		Help:    "Frame time in seconds.",
		Buckets: []float64{0.004, 0.008, 0.0167, 0.022, 0.033, 0.05, 0.1},
	}), "graphscape_render_frame_duration_seconds")
	if err != nil {
		return nil, err
	}

	return c, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency per chi route pattern.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		if c == nil {
			return
		}
		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		if c.HTTPRequests != nil {
			c.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(sw.code)).Inc()
		}
		if c.HTTPDurations != nil {
			c.HTTPDurations.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		}
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// SetGraphCounts satisfies core.EngineMetricsRecorder.
func (c *Collector) SetGraphCounts(nodes, edges, workingEdges, clusters int) {
	if c == nil {
		return
	}
	c.GraphNodes.Set(float64(nodes))
	c.GraphEdges.Set(float64(edges))
	c.GraphWorkingEdges.Set(float64(workingEdges))
	c.GraphClusters.Set(float64(clusters))
}

// LayoutPassDone satisfies core.LayoutMetricsRecorder.
func (c *Collector) LayoutPassDone(iterations int, converged bool, duration time.Duration) {
	if c == nil {
		return
	}
	result := "partial"
	if converged {
		result = "converged"
	}
	c.LayoutPasses.WithLabelValues(result).Inc()
	c.LayoutIterations.Observe(float64(iterations))
	c.LayoutDurations.Observe(duration.Seconds())
}

// LayoutRecoveries satisfies core.LayoutMetricsRecorder.
func (c *Collector) LayoutRecoveries(count int) {
	if c == nil || count <= 0 {
		return
	}
	c.LayoutRecovered.Add(float64(count))
}

// SetPerformanceTier satisfies render.GovernorMetricsRecorder.
func (c *Collector) SetPerformanceTier(tier model.PerformanceTier) {
	if c == nil {
		return
	}
	c.Tier.Set(float64(tier))
}

// ObserveFrame satisfies render.GovernorMetricsRecorder.
func (c *Collector) ObserveFrame(duration time.Duration, drawCalls, visibleNodes, visibleEdges int) {
	if c == nil {
		return
	}
	c.FrameDurations.Observe(duration.Seconds())
	c.DrawCalls.Set(float64(drawCalls))
	c.VisibleNodes.Set(float64(visibleNodes))
	c.VisibleEdges.Set(float64(visibleEdges))
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
