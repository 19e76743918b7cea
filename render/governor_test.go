package render

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/graphscape/model"
)

func feedFrames(g *PerformanceGovernor, n int, d time.Duration) {
	for i := 0; i < n; i++ {
		g.RecordFrame(d, 2, 100, 50)
	}
}

func TestGovernor_HoldsTierUntilWindowWarm(t *testing.T) {
	g := NewPerformanceGovernor(model.TierHigh, GovernorOptions{}, nil, nil)

	// 29 terrible frames are not yet enough signal to act on.
	feedFrames(g, 29, 100*time.Millisecond)
	assert.Equal(t, model.TierHigh, g.Tier())
}

func TestGovernor_DowngradesOnSustainedOverBudget(t *testing.T) {
	g := NewPerformanceGovernor(model.TierHigh, GovernorOptions{}, nil, nil)

	// 30ms frames blow the 60 FPS budget, then the 45 FPS budget too.
	feedFrames(g, 40, 30*time.Millisecond)
	assert.Equal(t, model.TierLow, g.Tier())

	// 30ms is inside the 30 FPS budget, so TierLow holds.
	feedFrames(g, 200, 30*time.Millisecond)
	assert.Equal(t, model.TierLow, g.Tier())
}

func TestGovernor_UpgradeRequiresSustainedHeadroom(t *testing.T) {
	g := NewPerformanceGovernor(model.TierLow, GovernorOptions{UpgradeHold: time.Hour}, nil, nil)

	// Plenty of headroom, but the hold window never elapses.
	feedFrames(g, 200, 5*time.Millisecond)
	assert.Equal(t, model.TierLow, g.Tier())
}

func TestGovernor_UpgradesAfterHold(t *testing.T) {
	g := NewPerformanceGovernor(model.TierLow, GovernorOptions{UpgradeHold: time.Nanosecond}, nil, nil)

	feedFrames(g, 200, 5*time.Millisecond)
	assert.Equal(t, model.TierUltra, g.Tier())
}

func TestGovernor_NotifiesListenersOnTierChange(t *testing.T) {
	g := NewPerformanceGovernor(model.TierMedium, GovernorOptions{}, nil, nil)

	var got []model.PerformanceTier
	g.OnProfileChange(func(p model.PerformanceProfile) {
		got = append(got, p.Tier)
	})

	feedFrames(g, 40, 50*time.Millisecond)
	require.NotEmpty(t, got)
	assert.Equal(t, model.TierLow, got[len(got)-1])
}

func TestGovernor_MetricsReflectsRecentFrames(t *testing.T) {
	g := NewPerformanceGovernor(model.TierHigh, GovernorOptions{}, nil, nil)

	empty := g.Metrics()
	assert.Zero(t, empty.FPS)

	feedFrames(g, 10, 10*time.Millisecond)
	m := g.Metrics()
	assert.InDelta(t, 100, m.FPS, 1)
	assert.Equal(t, 2, m.DrawCalls)
	assert.Equal(t, 100, m.VisibleNodes)
	assert.Equal(t, 50, m.VisibleConnections)
	assert.Equal(t, model.TierHigh, m.Tier)
	assert.InDelta(t, float64(10*time.Millisecond), float64(m.P90FrameTime), float64(time.Millisecond))
}

type tierRecorder struct {
	tiers  []model.PerformanceTier
	frames int
}

func (r *tierRecorder) SetPerformanceTier(tier model.PerformanceTier) {
	r.tiers = append(r.tiers, tier)
}

func (r *tierRecorder) ObserveFrame(time.Duration, int, int, int) {
	r.frames++
}

func TestGovernor_ReportsToRecorder(t *testing.T) {
	rec := &tierRecorder{}
	g := NewPerformanceGovernor(model.TierMedium, GovernorOptions{}, nil, rec)

	require.Equal(t, []model.PerformanceTier{model.TierMedium}, rec.tiers)

	feedFrames(g, 40, 50*time.Millisecond)
	assert.Equal(t, 40, rec.frames)
	assert.Equal(t, model.TierLow, rec.tiers[len(rec.tiers)-1])
}

func TestTierForSettings_MatchesRequestedRate(t *testing.T) {
	assert.Equal(t, model.TierHigh, TierForSettings(model.PerformanceSettings{}))
	assert.Equal(t, model.TierLow, TierForSettings(model.PerformanceSettings{TargetFPS: 30}))
	assert.Equal(t, model.TierMedium, TierForSettings(model.PerformanceSettings{TargetFPS: 45}))
	assert.Equal(t, model.TierUltra, TierForSettings(model.PerformanceSettings{TargetFPS: 60}))
	assert.Equal(t, model.TierUltra, TierForSettings(model.PerformanceSettings{TargetFPS: 144}))
	// Requests below every tier's budget still land on a usable tier.
	assert.Equal(t, model.TierLow, TierForSettings(model.PerformanceSettings{TargetFPS: 15}))
}

func TestTierForSettings_SeedsGovernor(t *testing.T) {
	st := model.PerformanceSettings{TargetFPS: 45}
	g := NewPerformanceGovernor(TierForSettings(st), GovernorOptions{}, nil, nil)
	assert.Equal(t, model.TierMedium, g.Tier())
}
