package render

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/signalsfoundry/graphscape/model"
)

// Camera is an orbit camera around a focus point. It produces the view and
// projection matrices the shader pipeline uploads each frame.
type Camera struct {
	Target mgl32.Vec3

	// Distance, Yaw, and Pitch define the eye position relative to Target.
	// Pitch is clamped short of the poles to keep the view basis stable.
	Distance float64
	Yaw      float64
	Pitch    float64

	FOVDegrees float32
	Near       float32
	Far        float32
}

// NewCamera returns a camera at a sensible default orbit for a mid-sized
// graph, with the far plane taken from the profile's render distance.
func NewCamera(profile model.PerformanceProfile) *Camera {
	return &Camera{
		Distance:   60,
		Pitch:      0.35,
		FOVDegrees: 55,
		Near:       0.1,
		Far:        float32(profile.MaxRenderDistance * 2),
	}
}

// Eye returns the camera position in world space.
func (c *Camera) Eye() mgl32.Vec3 {
	cp := math.Cos(c.Pitch)
	dir := mgl32.Vec3{
		float32(cp * math.Sin(c.Yaw)),
		float32(math.Sin(c.Pitch)),
		float32(cp * math.Cos(c.Yaw)),
	}
	return c.Target.Add(dir.Mul(float32(c.Distance)))
}

// ViewMatrix returns the world-to-camera transform.
func (c *Camera) ViewMatrix() mgl32.Mat4 {
	return mgl32.LookAtV(c.Eye(), c.Target, mgl32.Vec3{0, 1, 0})
}

// ProjectionMatrix returns the perspective projection for the given aspect
// ratio (width over height).
func (c *Camera) ProjectionMatrix(aspect float32) mgl32.Mat4 {
	if aspect <= 0 {
		aspect = 1
	}
	return mgl32.Perspective(mgl32.DegToRad(c.FOVDegrees), aspect, c.Near, c.Far)
}

// ViewProjection returns projection times view, the matrix the shaders use.
func (c *Camera) ViewProjection(aspect float32) mgl32.Mat4 {
	return c.ProjectionMatrix(aspect).Mul4(c.ViewMatrix())
}

// Orbit rotates the eye around the target by the given yaw and pitch deltas
// in radians.
func (c *Camera) Orbit(dYaw, dPitch float64) {
	c.Yaw += dYaw
	c.Pitch += dPitch
	limit := math.Pi/2 - 0.01
	if c.Pitch > limit {
		c.Pitch = limit
	}
	if c.Pitch < -limit {
		c.Pitch = -limit
	}
}

// Zoom scales the orbit distance multiplicatively; factor > 1 moves away.
func (c *Camera) Zoom(factor float64) {
	if factor <= 0 {
		return
	}
	c.Distance *= factor
	if c.Distance < 1 {
		c.Distance = 1
	}
	if lim := float64(c.Far) * 0.9; c.Distance > lim {
		c.Distance = lim
	}
}

// Pan translates the focus point in the camera's horizontal plane.
func (c *Camera) Pan(dx, dy float32) {
	view := c.ViewMatrix()
	right := mgl32.Vec3{view.At(0, 0), view.At(0, 1), view.At(0, 2)}
	up := mgl32.Vec3{view.At(1, 0), view.At(1, 1), view.At(1, 2)}
	c.Target = c.Target.Add(right.Mul(dx)).Add(up.Mul(dy))
}

// FocusOn re-targets the camera at a world position, keeping orbit angles.
func (c *Camera) FocusOn(p model.Position, distance float64) {
	c.Target = mgl32.Vec3{float32(p.X), float32(p.Y), float32(p.Z)}
	if distance > 0 {
		c.Distance = distance
	}
}
