package render

import (
	"context"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/signalsfoundry/graphscape/internal/logging"
	"github.com/signalsfoundry/graphscape/model"
)

// GovernorOptions tune the tier adaptation. Zero values take defaults.
type GovernorOptions struct {
	// Window is how many recent frames feed the percentile estimate.
	Window int

	// OverBudget is the fractional overshoot of the frame budget at which
	// the governor downgrades (0.2 means p90 frame time 20% over budget).
	OverBudget float64

	// UpgradeHold is how long frame times must stay comfortably under the
	// budget of the NEXT tier up before the governor upgrades. Hysteresis:
	// upgrades are slow, downgrades are fast.
	UpgradeHold time.Duration

	// Headroom is the fraction of the higher tier's budget the p90 must
	// stay under to qualify for an upgrade.
	Headroom float64
}

func (o GovernorOptions) withDefaults() GovernorOptions {
	if o.Window <= 0 {
		o.Window = 120
	}
	if o.OverBudget <= 0 {
		o.OverBudget = 0.2
	}
	if o.UpgradeHold <= 0 {
		o.UpgradeHold = 3 * time.Second
	}
	if o.Headroom <= 0 || o.Headroom >= 1 {
		o.Headroom = 0.7
	}
	return o
}

// GovernorMetricsRecorder receives tier changes and frame statistics.
// Implemented by the observability collector; nil disables recording.
type GovernorMetricsRecorder interface {
	SetPerformanceTier(tier model.PerformanceTier)
	ObserveFrame(duration time.Duration, drawCalls, visibleNodes, visibleEdges int)
}

// FrameMetrics is the governor's public view of recent rendering load.
type FrameMetrics struct {
	FPS                float64
	P90FrameTime       time.Duration
	DrawCalls          int
	VisibleNodes       int
	VisibleConnections int
	Tier               model.PerformanceTier
}

// PerformanceGovernor watches frame times and walks the quality tier up and
// down. Downgrades trigger as soon as the p90 frame time blows the budget;
// upgrades require a sustained comfortable margin so the tier does not
// oscillate around a boundary.
type PerformanceGovernor struct {
	opts    GovernorOptions
	log     logging.Logger
	metrics GovernorMetricsRecorder

	mu         sync.Mutex
	tier       model.PerformanceTier
	samples    []float64 // seconds, ring buffer
	next       int
	filled     bool
	calmSince  time.Time
	lastChange time.Time

	drawCalls    int
	visibleNodes int
	visibleEdges int

	listeners []func(model.PerformanceProfile)
}

// NewPerformanceGovernor starts at the given tier.
func NewPerformanceGovernor(start model.PerformanceTier, opts GovernorOptions, log logging.Logger, metrics GovernorMetricsRecorder) *PerformanceGovernor {
	if log == nil {
		log = logging.Noop()
	}
	g := &PerformanceGovernor{
		opts:    opts.withDefaults(),
		log:     log,
		metrics: metrics,
		tier:    start,
	}
	g.samples = make([]float64, g.opts.Window)
	if metrics != nil {
		metrics.SetPerformanceTier(start)
	}
	return g
}

// TierForSettings picks the starting tier for the caller's configuration:
// the highest tier whose frame budget fits the requested target rate. The
// governor adapts from there; a zero TargetFPS starts at TierHigh.
func TierForSettings(st model.PerformanceSettings) model.PerformanceTier {
	if st.TargetFPS <= 0 {
		return model.TierHigh
	}
	tier := model.TierLow
	for t := model.TierLow; t <= model.TierUltra; t++ {
		if model.ProfileFor(t).TargetFPS <= st.TargetFPS {
			tier = t
		}
	}
	return tier
}

// OnProfileChange registers a callback invoked with the new profile row
// whenever the tier moves. Callbacks run on the goroutine calling RecordFrame.
func (g *PerformanceGovernor) OnProfileChange(fn func(model.PerformanceProfile)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, fn)
}

// Tier returns the current quality tier.
func (g *PerformanceGovernor) Tier() model.PerformanceTier {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tier
}

// Profile returns the current tier's profile row.
func (g *PerformanceGovernor) Profile() model.PerformanceProfile {
	return model.ProfileFor(g.Tier())
}

// RecordFrame feeds one frame's timing and load into the governor and
// applies any tier change it warrants.
func (g *PerformanceGovernor) RecordFrame(duration time.Duration, drawCalls, visibleNodes, visibleEdges int) {
	if g.metrics != nil {
		g.metrics.ObserveFrame(duration, drawCalls, visibleNodes, visibleEdges)
	}

	g.mu.Lock()
	g.samples[g.next] = duration.Seconds()
	g.next++
	if g.next == len(g.samples) {
		g.next = 0
		g.filled = true
	}
	g.drawCalls = drawCalls
	g.visibleNodes = visibleNodes
	g.visibleEdges = visibleEdges

	changed, profile := g.adjustLocked(time.Now())
	var listeners []func(model.PerformanceProfile)
	if changed {
		listeners = append(listeners, g.listeners...)
	}
	g.mu.Unlock()

	for _, fn := range listeners {
		fn(profile)
	}
}

// adjustLocked applies the downgrade/upgrade rules. Caller holds g.mu.
func (g *PerformanceGovernor) adjustLocked(now time.Time) (bool, model.PerformanceProfile) {
	if !g.filled && g.next < 30 {
		// Not enough signal yet.
		return false, model.PerformanceProfile{}
	}

	p90 := g.p90Locked()
	budget := 1.0 / float64(model.ProfileFor(g.tier).TargetFPS)

	if p90 > budget*(1+g.opts.OverBudget) && g.tier > model.TierLow {
		g.tier--
		g.calmSince = time.Time{}
		g.lastChange = now
		profile := model.ProfileFor(g.tier)
		g.log.Warn(context.Background(), "performance tier downgraded",
			logging.String("tier", g.tier.String()),
			logging.Float64("p90_ms", p90*1000))
		if g.metrics != nil {
			g.metrics.SetPerformanceTier(g.tier)
		}
		return true, profile
	}

	if g.tier < model.TierUltra {
		upBudget := 1.0 / float64(model.ProfileFor(g.tier+1).TargetFPS)
		if p90 < upBudget*g.opts.Headroom {
			if g.calmSince.IsZero() {
				g.calmSince = now
			} else if now.Sub(g.calmSince) >= g.opts.UpgradeHold {
				g.tier++
				g.calmSince = time.Time{}
				g.lastChange = now
				profile := model.ProfileFor(g.tier)
				g.log.Info(context.Background(), "performance tier upgraded",
					logging.String("tier", g.tier.String()),
					logging.Float64("p90_ms", p90*1000))
				if g.metrics != nil {
					g.metrics.SetPerformanceTier(g.tier)
				}
				return true, profile
			}
		} else {
			g.calmSince = time.Time{}
		}
	}
	return false, model.PerformanceProfile{}
}

// p90Locked computes the 90th percentile frame time in seconds over the
// sample window. Caller holds g.mu.
func (g *PerformanceGovernor) p90Locked() float64 {
	n := g.next
	if g.filled {
		n = len(g.samples)
	}
	window := make([]float64, n)
	copy(window, g.samples[:n])
	sort.Float64s(window)
	return stat.Quantile(0.9, stat.Empirical, window, nil)
}

// Metrics returns a snapshot of the governor's recent frame statistics.
func (g *PerformanceGovernor) Metrics() FrameMetrics {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := g.next
	if g.filled {
		n = len(g.samples)
	}
	m := FrameMetrics{
		DrawCalls:          g.drawCalls,
		VisibleNodes:       g.visibleNodes,
		VisibleConnections: g.visibleEdges,
		Tier:               g.tier,
	}
	if n == 0 {
		return m
	}

	mean := stat.Mean(g.samples[:n], nil)
	if mean > 0 {
		m.FPS = 1.0 / mean
	}
	m.P90FrameTime = time.Duration(g.p90Locked() * float64(time.Second))
	return m
}
