package core

import (
	"hash/fnv"
	"math"

	"github.com/signalsfoundry/graphscape/model"
)

// Vec3 is a 3D vector in layout space.
type Vec3 struct {
	X, Y, Z float64
}

// Add returns v + other.
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Scale returns v scaled by s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(other Vec3) float64 {
	dx := v.X - other.X
	dy := v.Y - other.Y
	dz := v.Z - other.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// IsFinite reports whether all three components are finite numbers.
func (v Vec3) IsFinite() bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0) &&
		!math.IsNaN(v.Z) && !math.IsInf(v.Z, 0)
}

// Model converts to the model-layer position type.
func (v Vec3) Model() model.Position {
	return model.Position{X: v.X, Y: v.Y, Z: v.Z}
}

// FromModel converts from the model-layer position type.
func FromModel(p model.Position) Vec3 {
	return Vec3{X: p.X, Y: p.Y, Z: p.Z}
}

// SpherePoint returns a deterministic point on a sphere of the given radius,
// keyed by the node id. It is used both for initial placement and as the
// recovery position when a node's coordinates become non-finite, so layout
// runs are reproducible and numerical blow-ups never escalate.
func SpherePoint(id string, radius float64) Vec3 {
	h := fnv.New32a()
	h.Write([]byte(id))
	sum := h.Sum32()

	// Two independent angles from the high and low halves of the hash.
	theta := float64(sum>>16) / 65536.0 * 2 * math.Pi
	phi := math.Acos(2*float64(sum&0xffff)/65536.0 - 1)

	return Vec3{
		X: radius * math.Sin(phi) * math.Cos(theta),
		Y: radius * math.Sin(phi) * math.Sin(theta),
		Z: radius * math.Cos(phi),
	}
}
