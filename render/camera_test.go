package render

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"

	"github.com/signalsfoundry/graphscape/model"
)

func TestCamera_EyeOrbitsTarget(t *testing.T) {
	c := NewCamera(model.ProfileFor(model.TierHigh))
	c.Target = mgl32.Vec3{5, 0, 0}

	eye := c.Eye()
	assert.InDelta(t, c.Distance, float64(eye.Sub(c.Target).Len()), 1e-3)

	c.Orbit(math.Pi/2, 0)
	rotated := c.Eye()
	assert.InDelta(t, c.Distance, float64(rotated.Sub(c.Target).Len()), 1e-3)
	assert.NotEqual(t, eye, rotated)
}

func TestCamera_PitchClampsShortOfPoles(t *testing.T) {
	c := NewCamera(model.ProfileFor(model.TierHigh))

	c.Orbit(0, 10)
	assert.Less(t, c.Pitch, math.Pi/2)

	c.Orbit(0, -20)
	assert.Greater(t, c.Pitch, -math.Pi/2)
}

func TestCamera_ZoomClampsDistance(t *testing.T) {
	c := NewCamera(model.ProfileFor(model.TierHigh))

	c.Zoom(1e-9)
	assert.Equal(t, 1.0, c.Distance)

	c.Zoom(1e12)
	assert.LessOrEqual(t, c.Distance, float64(c.Far))

	before := c.Distance
	c.Zoom(-1) // ignored
	assert.Equal(t, before, c.Distance)
}

func TestCamera_ViewProjectionIsFinite(t *testing.T) {
	c := NewCamera(model.ProfileFor(model.TierUltra))
	c.Orbit(1.2, -0.4)
	c.Pan(3, -2)

	vp := c.ViewProjection(16.0 / 9.0)
	for i := 0; i < 16; i++ {
		v := float64(vp[i])
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "element %d not finite", i)
	}

	// Degenerate aspect falls back instead of producing NaNs.
	vp = c.ViewProjection(0)
	assert.False(t, math.IsNaN(float64(vp[0])))
}

func TestCamera_FocusOnRetargets(t *testing.T) {
	c := NewCamera(model.ProfileFor(model.TierMedium))
	c.FocusOn(model.Position{X: 1, Y: 2, Z: 3}, 25)

	assert.Equal(t, float32(1), c.Target[0])
	assert.Equal(t, float32(2), c.Target[1])
	assert.Equal(t, float32(3), c.Target[2])
	assert.Equal(t, 25.0, c.Distance)

	// Zero distance keeps the current orbit radius.
	c.FocusOn(model.Position{}, 0)
	assert.Equal(t, 25.0, c.Distance)
}
