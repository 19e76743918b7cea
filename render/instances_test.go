package render

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/graphscape/model"
)

func snapshotFor(nodes []model.Node) *model.LayoutSnapshot {
	positions := make(map[string]model.Position, len(nodes))
	for i, n := range nodes {
		positions[n.ID] = model.Position{X: float64(i) * 10}
	}
	return &model.LayoutSnapshot{Version: 1, Positions: positions, Converged: true}
}

func TestGeometryManager_PacksVisibleNodes(t *testing.T) {
	nodes := []model.Node{
		{ID: "a", Size: 2, Color: model.Color{R: 1, A: 1}},
		{ID: "b", Size: 1, Color: model.Color{G: 1, A: 1}},
	}
	edges := []model.Edge{{ID: "ab", Source: "a", Target: "b", Strength: 0.8}}
	snap := snapshotFor(nodes)

	g := NewGeometryManager(model.ProfileFor(model.TierHigh))
	g.Update(nodes, edges, snap)

	require.Equal(t, 2, g.NodeCount())
	require.Equal(t, 1, g.EdgeCount())
	assert.Len(t, g.NodeData(), 2*NodeInstanceFloats)
	assert.Len(t, g.EdgeData(), 1*EdgeInstanceFloats)

	// First node lane: position, size, color.
	lane := g.NodeData()[:NodeInstanceFloats]
	assert.Equal(t, float32(0), lane[0])
	assert.Equal(t, float32(2), lane[3])
	assert.Equal(t, float32(1), lane[4]) // R
}

func TestGeometryManager_SkipsNodesWithoutPositions(t *testing.T) {
	nodes := []model.Node{{ID: "a"}, {ID: "pending"}}
	snap := &model.LayoutSnapshot{Positions: map[string]model.Position{"a": {}}}

	g := NewGeometryManager(model.ProfileFor(model.TierLow))
	g.Update(nodes, nil, snap)

	assert.Equal(t, 1, g.NodeCount())
}

func TestGeometryManager_FilterHidesNodesAndTheirEdges(t *testing.T) {
	nodes := []model.Node{
		{ID: "doc", Type: "document"},
		{ID: "person", Type: "person"},
	}
	edges := []model.Edge{{ID: "e", Source: "doc", Target: "person", Strength: 0.9}}
	snap := snapshotFor(nodes)

	g := NewGeometryManager(model.ProfileFor(model.TierHigh))
	g.SetFilter(model.FilterSpec{Types: []string{"document"}})
	g.Update(nodes, edges, snap)

	assert.Equal(t, 1, g.NodeCount())
	// The edge loses an endpoint, so it disappears too.
	assert.Equal(t, 0, g.EdgeCount())
}

func TestGeometryManager_InstanceCapKeepsHeaviestStable(t *testing.T) {
	profile := model.ProfileFor(model.TierLow)
	profile.MaxInstances = 3

	nodes := make([]model.Node, 0, 6)
	for i := 0; i < 6; i++ {
		nodes = append(nodes, model.Node{
			ID:       fmt.Sprintf("n%d", i),
			Metadata: model.NodeMetadata{Weight: float64(i % 3)}, // ties at each weight
		})
	}
	snap := snapshotFor(nodes)

	g := NewGeometryManager(profile)
	g.Update(nodes, nil, snap)

	require.Equal(t, 3, g.NodeCount())
	assert.Equal(t, 3, g.Stats().CappedNodes)

	first := append([]float32(nil), g.NodeData()...)
	// Same input, same cut: the cap must be stable across updates.
	g.Update(nodes, nil, snap)
	assert.Equal(t, first, g.NodeData())

	// Weight 2 nodes (n2, n5) must both survive; the weight-1 tie breaks
	// by id, keeping n1.
	assert.True(t, g.visible["n2"])
	assert.True(t, g.visible["n5"])
	assert.True(t, g.visible["n1"])
	assert.False(t, g.visible["n4"])
}

func TestGeometryManager_SettingsClampInstanceCaps(t *testing.T) {
	nodes := make([]model.Node, 0, 4)
	for i := 0; i < 4; i++ {
		nodes = append(nodes, model.Node{
			ID:       fmt.Sprintf("n%d", i),
			Metadata: model.NodeMetadata{Weight: float64(4 - i)},
		})
	}
	edges := []model.Edge{
		{ID: "e1", Source: "n0", Target: "n1", Strength: 0.9},
		{ID: "e2", Source: "n1", Target: "n0", Strength: 0.8},
	}
	snap := snapshotFor(nodes)

	g := NewGeometryManager(model.ProfileFor(model.TierHigh))
	g.ApplySettings(model.PerformanceSettings{MaxNodes: 2, MaxConnections: 1})
	g.Update(nodes, edges, snap)

	require.Equal(t, 2, g.NodeCount())
	assert.Equal(t, 2, g.Stats().CappedNodes)
	// Both edges keep their endpoints (the two heaviest nodes survive), so
	// the connection cap is what cuts the second one.
	assert.Equal(t, 1, g.EdgeCount())
	assert.Equal(t, 1, g.Stats().CappedEdges)

	// Zero settings fall back to the profile caps.
	g.ApplySettings(model.PerformanceSettings{})
	g.Update(nodes, edges, snap)
	assert.Equal(t, 4, g.NodeCount())
	assert.Equal(t, 2, g.EdgeCount())
}

func TestGeometryManager_SelectionFlagsInstances(t *testing.T) {
	nodes := []model.Node{{ID: "a"}, {ID: "b"}}
	snap := snapshotFor(nodes)

	g := NewGeometryManager(model.ProfileFor(model.TierHigh))
	g.SetSelection([]string{"b"})
	g.Update(nodes, nil, snap)

	// Lane 8 is the selected flag.
	assert.Equal(t, float32(0), g.NodeData()[8])
	assert.Equal(t, float32(1), g.NodeData()[NodeInstanceFloats+8])
}

func TestGeometryManager_EntranceAgeProgresses(t *testing.T) {
	nodes := []model.Node{{ID: "a"}}
	snap := snapshotFor(nodes)

	now := time.Now()
	g := NewGeometryManager(model.ProfileFor(model.TierUltra)) // entrance on
	g.now = func() time.Time { return now }
	g.Update(nodes, nil, snap)

	// Brand new node: spawn age starts near zero.
	assert.Less(t, g.NodeData()[9], float32(0.05))

	g.now = func() time.Time { return now.Add(entranceDuration / 2) }
	g.Update(nodes, nil, snap)
	assert.InDelta(t, 0.5, float64(g.NodeData()[9]), 0.05)

	g.now = func() time.Time { return now.Add(2 * entranceDuration) }
	g.Update(nodes, nil, snap)
	assert.Equal(t, float32(1), g.NodeData()[9])
}

func TestGeometryManager_EdgePackingCarriesStrengthAndPhase(t *testing.T) {
	nodes := []model.Node{{ID: "a"}, {ID: "b"}}
	edges := []model.Edge{{ID: "ab", Source: "a", Target: "b", Strength: 0.5}}
	snap := snapshotFor(nodes)

	g := NewGeometryManager(model.ProfileFor(model.TierMedium))
	g.Update(nodes, edges, snap)

	lane := g.EdgeData()
	require.Len(t, lane, EdgeInstanceFloats)
	assert.Equal(t, float32(0.5), lane[7])          // strength
	assert.Equal(t, float32(10), lane[4])           // endpoint B x
	assert.GreaterOrEqual(t, lane[13], float32(0))  // flow phase
	assert.Less(t, lane[13], float32(1))
}

func TestControlPoints_LiftThirdPointsOfChord(t *testing.T) {
	a := model.Position{X: 0}
	b := model.Position{X: 12}
	c1, c2 := ControlPoints(a, b)

	assert.InDelta(t, 4.0, c1.X, 1e-9)
	assert.InDelta(t, 8.0, c2.X, 1e-9)
	// Both lifted by 15% of the chord length.
	assert.InDelta(t, 1.8, c1.Y, 1e-5)
	assert.InDelta(t, 1.8, c2.Y, 1e-5)
	assert.Equal(t, 0.0, c1.Z)
	assert.Equal(t, 0.0, c2.Z)
}
