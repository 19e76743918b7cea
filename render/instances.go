package render

import (
	"sort"
	"time"

	"github.com/chewxy/math32"

	"github.com/signalsfoundry/graphscape/model"
)

// Instance buffer layouts. Each instance is a fixed number of float32 lanes
// so the CPU side can pack straight into the GPU vertex buffer.
//
// Node lanes: pos.xyz, size | color.rgba | selected, spawnAge, weight, pad
// Edge lanes: a.xyz, width | b.xyz, strength | color.rgba | selected,
// flowPhase, pad, pad
const (
	NodeInstanceFloats = 12
	EdgeInstanceFloats = 16

	NodeInstanceStride = NodeInstanceFloats * 4
	EdgeInstanceStride = EdgeInstanceFloats * 4
)

// entranceDuration is how long the entrance scale-in runs for a node after
// it first appears.
const entranceDuration = 600 * time.Millisecond

// GeometryStats summarizes the last Update for the governor and the stats
// endpoint.
type GeometryStats struct {
	VisibleNodes int
	VisibleEdges int
	CappedNodes  int // nodes cut by the instance cap
	CappedEdges  int
}

// GeometryManager converts a layout snapshot plus the working graph into
// flat instance buffers. It owns visibility (filter spec), the instance caps
// (per-tier, clamped by caller settings), and entrance timing; it holds no
// GPU resources, so it can be exercised without a device.
type GeometryManager struct {
	profile  model.PerformanceProfile
	settings model.PerformanceSettings
	filter   model.FilterSpec

	selected map[string]bool

	// firstSeen tracks when a node id first became visible, for the
	// entrance animation. Entries for departed nodes are pruned on Update.
	firstSeen map[string]time.Time
	now       func() time.Time

	nodeData []float32
	edgeData []float32
	stats    GeometryStats

	// visible is the id set that survived filtering and capping in the
	// last Update; edges are restricted to it.
	visible map[string]bool
}

// NewGeometryManager starts at the given profile with no filter and nothing
// selected.
func NewGeometryManager(profile model.PerformanceProfile) *GeometryManager {
	return &GeometryManager{
		profile:   profile,
		selected:  map[string]bool{},
		firstSeen: map[string]time.Time{},
		visible:   map[string]bool{},
		now:       time.Now,
	}
}

// SetProfile switches the quality tier. Takes effect on the next Update.
func (g *GeometryManager) SetProfile(profile model.PerformanceProfile) {
	g.profile = profile
}

// Profile returns the active quality tier row.
func (g *GeometryManager) Profile() model.PerformanceProfile {
	return g.profile
}

// ApplySettings installs the caller's configuration. MaxNodes and
// MaxConnections clamp the instance caps below the active profile; zero
// values leave the profile's caps untouched. Takes effect on the next Update.
func (g *GeometryManager) ApplySettings(st model.PerformanceSettings) {
	g.settings = st
}

func (g *GeometryManager) nodeCap() int {
	limit := g.profile.MaxInstances
	if n := g.settings.MaxNodes; n > 0 && n < limit {
		limit = n
	}
	return limit
}

func (g *GeometryManager) edgeCap() int {
	limit := g.profile.MaxInstances
	if n := g.settings.MaxConnections; n > 0 && n < limit {
		limit = n
	}
	return limit
}

// SetFilter replaces the visibility filter. Takes effect on the next Update.
func (g *GeometryManager) SetFilter(f model.FilterSpec) {
	g.filter = f
}

// SetSelection replaces the selected node id set.
func (g *GeometryManager) SetSelection(ids []string) {
	sel := make(map[string]bool, len(ids))
	for _, id := range ids {
		sel[id] = true
	}
	g.selected = sel
}

// Stats returns the counts from the last Update.
func (g *GeometryManager) Stats() GeometryStats {
	return g.stats
}

// NodeData returns the packed node instance lanes from the last Update.
func (g *GeometryManager) NodeData() []float32 { return g.nodeData }

// EdgeData returns the packed edge instance lanes from the last Update.
func (g *GeometryManager) EdgeData() []float32 { return g.edgeData }

// NodeCount returns the node instance count from the last Update.
func (g *GeometryManager) NodeCount() int { return len(g.nodeData) / NodeInstanceFloats }

// EdgeCount returns the edge instance count from the last Update.
func (g *GeometryManager) EdgeCount() int { return len(g.edgeData) / EdgeInstanceFloats }

// Update rebuilds the instance buffers from the snapshot and working graph.
// Nodes without a snapshot position are skipped (they will appear once the
// next layout pass publishes). When the filtered set exceeds the tier's
// instance cap, the highest-weight nodes win, ties broken by id so the cut
// is stable frame to frame.
func (g *GeometryManager) Update(nodes []model.Node, working []model.Edge, snap *model.LayoutSnapshot) {
	now := g.now()
	g.stats = GeometryStats{}

	candidates := make([]model.Node, 0, len(nodes))
	for _, n := range nodes {
		if _, ok := snap.Position(n.ID); !ok {
			continue
		}
		if !g.filter.IsZero() && !g.filter.Matches(n) {
			continue
		}
		candidates = append(candidates, n)
	}

	if limit := g.nodeCap(); len(candidates) > limit {
		sort.Slice(candidates, func(i, j int) bool {
			wi, wj := candidates[i].Metadata.Weight, candidates[j].Metadata.Weight
			if wi != wj {
				return wi > wj
			}
			return candidates[i].ID < candidates[j].ID
		})
		g.stats.CappedNodes = len(candidates) - limit
		candidates = candidates[:limit]
	}

	visible := make(map[string]bool, len(candidates))
	for _, n := range candidates {
		visible[n.ID] = true
		if _, ok := g.firstSeen[n.ID]; !ok {
			g.firstSeen[n.ID] = now
		}
	}
	for id := range g.firstSeen {
		if !visible[id] {
			delete(g.firstSeen, id)
		}
	}
	g.visible = visible

	g.nodeData = g.packNodes(candidates, snap, now, g.nodeData[:0])
	g.edgeData = g.packEdges(working, snap, g.edgeData[:0])

	g.stats.VisibleNodes = len(candidates)
	g.stats.VisibleEdges = len(g.edgeData) / EdgeInstanceFloats
}

func (g *GeometryManager) packNodes(nodes []model.Node, snap *model.LayoutSnapshot, now time.Time, out []float32) []float32 {
	for _, n := range nodes {
		p, _ := snap.Position(n.ID)

		spawnAge := float32(1)
		if g.profile.EntranceAnimation {
			age := now.Sub(g.firstSeen[n.ID])
			if age < entranceDuration {
				spawnAge = float32(age) / float32(entranceDuration)
			}
		}

		selected := float32(0)
		if g.selected[n.ID] {
			selected = 1
		}

		size := float32(n.Size)
		if size <= 0 {
			size = 1
		}

		out = append(out,
			float32(p.X), float32(p.Y), float32(p.Z), size,
			n.Color.R, n.Color.G, n.Color.B, n.Color.A,
			selected, spawnAge, float32(n.Metadata.Weight), 0,
		)
	}
	return out
}

func (g *GeometryManager) packEdges(working []model.Edge, snap *model.LayoutSnapshot, out []float32) []float32 {
	edgeCap := g.edgeCap()
	count := 0
	for _, e := range working {
		if !g.visible[e.Source] || !g.visible[e.Target] {
			continue
		}
		if count >= edgeCap {
			g.stats.CappedEdges++
			continue
		}
		a, _ := snap.Position(e.Source)
		b, _ := snap.Position(e.Target)

		selected := float32(0)
		if g.selected[e.Source] || g.selected[e.Target] {
			selected = 1
		}

		width := 0.5 + 1.5*float32(e.Strength)
		flowPhase := hashPhase(e.ID)

		out = append(out,
			float32(a.X), float32(a.Y), float32(a.Z), width,
			float32(b.X), float32(b.Y), float32(b.Z), float32(e.Strength),
			0.55, 0.75, 0.95, 0.35+0.65*float32(e.Strength),
			selected, flowPhase, 0, 0,
		)
		count++
	}
	return out
}

// hashPhase derives a stable [0,1) phase from the edge id so flow animation
// does not march in lockstep across the whole graph.
func hashPhase(id string) float32 {
	var h uint32 = 2166136261
	for i := 0; i < len(id); i++ {
		h ^= uint32(id[i])
		h *= 16777619
	}
	return float32(h%1024) / 1024
}

// ControlPoints returns the two cubic bezier control points for an edge
// between a and b: the chord points at one and two thirds, lifted in +Y by
// 15% of the chord length. The vertex shader derives the same points, so
// CPU-side picking evaluates identical geometry.
func ControlPoints(a, b model.Position) (model.Position, model.Position) {
	dx := float32(b.X - a.X)
	dy := float32(b.Y - a.Y)
	dz := float32(b.Z - a.Z)
	lift := float64(math32.Sqrt(dx*dx+dy*dy+dz*dz)) * 0.15

	c1 := model.Position{
		X: a.X + (b.X-a.X)/3,
		Y: a.Y + (b.Y-a.Y)/3 + lift,
		Z: a.Z + (b.Z-a.Z)/3,
	}
	c2 := model.Position{
		X: a.X + 2*(b.X-a.X)/3,
		Y: a.Y + 2*(b.Y-a.Y)/3 + lift,
		Z: a.Z + 2*(b.Z-a.Z)/3,
	}
	return c1, c2
}
