package model

// PerformanceTier selects one row of the fixed performance profile table.
type PerformanceTier int

const (
	TierLow PerformanceTier = iota
	TierMedium
	TierHigh
	TierUltra
)

func (t PerformanceTier) String() string {
	switch t {
	case TierLow:
		return "low"
	case TierMedium:
		return "medium"
	case TierHigh:
		return "high"
	case TierUltra:
		return "ultra"
	}
	return "unknown"
}

// PerformanceProfile is one row of the quality table. The governor selects a
// tier; the geometry manager and shader pipeline read the resulting profile.
type PerformanceProfile struct {
	Tier PerformanceTier

	// MaxInstances caps the number of node instances (and, independently,
	// edge instances) submitted to the GPU.
	MaxInstances int

	// EdgeSegments is the bezier tessellation segment count; 1 means
	// straight lines.
	EdgeSegments int

	TargetFPS int

	// Shader feature flags for this tier.
	Lighting          bool
	Fresnel           bool
	FlowAnimation     bool
	PulseAnimation    bool
	EntranceAnimation bool

	// MaxRenderDistance is the camera distance beyond which edges fade out
	// and are culled in the fragment stage.
	MaxRenderDistance float64
}

// profiles is the fixed four-tier table. Values are intentionally
// conservative at the low end so the governor always has somewhere to go.
var profiles = [...]PerformanceProfile{
	TierLow: {
		Tier:              TierLow,
		MaxInstances:      1000,
		EdgeSegments:      1,
		TargetFPS:         30,
		MaxRenderDistance: 400,
	},
	TierMedium: {
		Tier:              TierMedium,
		MaxInstances:      2500,
		EdgeSegments:      8,
		TargetFPS:         45,
		FlowAnimation:     true,
		MaxRenderDistance: 600,
	},
	TierHigh: {
		Tier:              TierHigh,
		MaxInstances:      5000,
		EdgeSegments:      16,
		TargetFPS:         60,
		FlowAnimation:     true,
		PulseAnimation:    true,
		Lighting:          true,
		MaxRenderDistance: 800,
	},
	TierUltra: {
		Tier:              TierUltra,
		MaxInstances:      10000,
		EdgeSegments:      24,
		TargetFPS:         60,
		FlowAnimation:     true,
		PulseAnimation:    true,
		Lighting:          true,
		Fresnel:           true,
		EntranceAnimation: true,
		MaxRenderDistance: 1200,
	},
}

// ProfileFor returns the profile row for a tier. Out-of-range tiers clamp to
// the nearest valid row.
func ProfileFor(t PerformanceTier) PerformanceProfile {
	if t < TierLow {
		t = TierLow
	}
	if t > TierUltra {
		t = TierUltra
	}
	return profiles[t]
}

// PerformanceSettings is the caller-facing configuration surface consumed
// from the excluded UI/data layer. Zero values fall back to defaults.
type PerformanceSettings struct {
	MaxNodes         int
	MaxConnections   int
	LODEnabled       bool
	ShadowsEnabled   bool
	Antialiasing     bool
	TargetFPS        int
	DevicePixelRatio float64
}
