package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AnalyzerCollector exposes connection-analyzer Prometheus metrics. It
// implements core.AnalyzerMetricsRecorder.
type AnalyzerCollector struct {
	gatherer prometheus.Gatherer

	QueryDuration   prometheus.Histogram
	QueriesQueued   prometheus.Gauge
	SupersededTotal prometheus.Counter
	CacheHitRatio   prometheus.Gauge
}

// NewAnalyzerCollector registers analyzer metrics against the provided registerer.
func NewAnalyzerCollector(reg prometheus.Registerer) (*AnalyzerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	queryHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "graphscape_analyzer_query_duration_seconds",
		Help:    "Duration of reachability and strength queries on the analyzer worker.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	})
	queryHistogram, err := registerHistogram(reg, queryHistogram, "graphscape_analyzer_query_duration_seconds")
	if err != nil {
		return nil, err
	}

	queueGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "graphscape_analyzer_queries_queued",
		Help: "Queries drained into the last worker batch.",
	})
	queueGauge, err = registerGauge(reg, queueGauge, "graphscape_analyzer_queries_queued")
	if err != nil {
		return nil, err
	}

	superseded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "graphscape_analyzer_superseded_total",
		Help: "Cumulative queries dropped because a newer query for the same key arrived first.",
	})
	superseded, err = registerCounter(reg, superseded, "graphscape_analyzer_superseded_total")
	if err != nil {
		return nil, err
	}

	cacheRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "graphscape_analyzer_cache_hit_ratio",
		Help: "Hit ratio for the analyzer's neighborhood cache.",
	})
	cacheRatio, err = registerGauge(reg, cacheRatio, "graphscape_analyzer_cache_hit_ratio")
	if err != nil {
		return nil, err
	}

	return &AnalyzerCollector{
		gatherer:        gatherer,
		QueryDuration:   queryHistogram,
		QueriesQueued:   queueGauge,
		SupersededTotal: superseded,
		CacheHitRatio:   cacheRatio,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *AnalyzerCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveQuery records one query's execution time.
func (c *AnalyzerCollector) ObserveQuery(d time.Duration) {
	if c == nil || c.QueryDuration == nil {
		return
	}
	c.QueryDuration.Observe(d.Seconds())
}

// SetQueueDepth updates the batch depth gauge.
func (c *AnalyzerCollector) SetQueueDepth(count int) {
	if c == nil || c.QueriesQueued == nil {
		return
	}
	c.QueriesQueued.Set(float64(count))
}

// IncSuperseded increments the superseded-query counter.
func (c *AnalyzerCollector) IncSuperseded() {
	if c == nil || c.SupersededTotal == nil {
		return
	}
	c.SupersededTotal.Inc()
}

// SetCacheHitRatio sets the neighborhood cache hit ratio.
func (c *AnalyzerCollector) SetCacheHitRatio(ratio float64) {
	if c == nil || c.CacheHitRatio == nil {
		return
	}
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	c.CacheHitRatio.Set(ratio)
}
