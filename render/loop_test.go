package render

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/graphscape/model"
)

func TestFrameLoop_AdvancesFramesAndStops(t *testing.T) {
	fl := NewFrameLoop(nil)

	ticks := make(chan uint64, 64)
	fl.AddListener(func(frame uint64, elapsed time.Duration) {
		select {
		case ticks <- frame:
		default:
		}
	})

	done := fl.Start()

	select {
	case first := <-ticks:
		assert.Equal(t, uint64(1), first)
	case <-time.After(5 * time.Second):
		t.Fatal("no frame ticked")
	}

	fl.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not exit after Stop")
	}

	assert.GreaterOrEqual(t, fl.Frame(), uint64(1))
	assert.Greater(t, fl.Elapsed(), time.Duration(0))
}

func TestFrameLoop_IntervalTracksGovernorTier(t *testing.T) {
	g := NewPerformanceGovernor(model.TierLow, GovernorOptions{UpgradeHold: time.Nanosecond}, nil, nil)
	fl := NewFrameLoop(g)

	require.Equal(t, time.Second/30, fl.currentInterval())

	// Fast frames walk the tier up; the loop retargets without restarting.
	for i := 0; i < 200; i++ {
		g.RecordFrame(2*time.Millisecond, 1, 10, 5)
	}
	require.Equal(t, model.TierUltra, g.Tier())
	assert.Equal(t, time.Second/60, fl.currentInterval())
}

func TestFrameLoop_FeedsGovernorWithStats(t *testing.T) {
	g := NewPerformanceGovernor(model.TierMedium, GovernorOptions{}, nil, nil)
	fl := NewFrameLoop(g)
	fl.SetStatsFunc(func() (int, int, int) { return 3, 42, 17 })

	fl.Start()
	deadline := time.After(5 * time.Second)
	for g.Metrics().DrawCalls == 0 {
		select {
		case <-deadline:
			t.Fatal("governor never saw a frame")
		case <-time.After(10 * time.Millisecond):
		}
	}
	fl.Stop()

	m := g.Metrics()
	assert.Equal(t, 3, m.DrawCalls)
	assert.Equal(t, 42, m.VisibleNodes)
	assert.Equal(t, 17, m.VisibleConnections)
}
