package core

import "testing"

func TestSpatialGrid_NearAndFarPartition(t *testing.T) {
	g := newSpatialGrid(4)
	positions := []Vec3{
		{X: 0, Y: 0, Z: 0},    // cell (0,0,0)
		{X: 1, Y: 1, Z: 1},    // same cell
		{X: 5, Y: 0, Z: 0},    // adjacent cell (1,0,0)
		{X: 40, Y: 40, Z: 40}, // far cell
	}
	g.rebuild(positions)

	near := map[int]bool{}
	g.forEachNear(positions[0], func(j int) { near[j] = true })
	if !near[0] || !near[1] || !near[2] {
		t.Fatalf("expected indices 0,1,2 in near set, got %v", near)
	}
	if near[3] {
		t.Fatalf("far node leaked into near set")
	}

	farCells := 0
	farCount := 0
	g.forEachFar(positions[0], func(com Vec3, count int) {
		farCells++
		farCount += count
		if com != positions[3] {
			t.Errorf("single-occupant far cell COM should equal the position, got %v", com)
		}
	})
	if farCells != 1 || farCount != 1 {
		t.Fatalf("expected exactly one far cell with one node, got %d cells / %d nodes", farCells, farCount)
	}
}

func TestSpatialGrid_RebuildDropsStaleOccupancy(t *testing.T) {
	g := newSpatialGrid(2)
	g.rebuild([]Vec3{{X: 100, Y: 100, Z: 100}})
	g.rebuild([]Vec3{{X: 0, Y: 0, Z: 0}})

	visits := 0
	g.forEachFar(Vec3{}, func(Vec3, int) { visits++ })
	if visits != 0 {
		t.Fatalf("stale cell survived rebuild: %d far cells", visits)
	}
}

func TestSpatialGrid_NegativeCoordinatesBucketCorrectly(t *testing.T) {
	g := newSpatialGrid(4)
	// -0.5 and -3.5 share the cell [-4,0); 0.5 is in [0,4).
	g.rebuild([]Vec3{{X: -0.5}, {X: -3.5}, {X: 0.5}})

	if k1, k2 := g.keyFor(Vec3{X: -0.5}), g.keyFor(Vec3{X: -3.5}); k1 != k2 {
		t.Fatalf("expected same cell for -0.5 and -3.5, got %v vs %v", k1, k2)
	}
	if k1, k3 := g.keyFor(Vec3{X: -0.5}), g.keyFor(Vec3{X: 0.5}); k1 == k3 {
		t.Fatalf("expected different cells across zero, both %v", k1)
	}
}
