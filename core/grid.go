package core

// spatialGrid is a uniform hash grid used to approximate pairwise repulsion
// for large graphs. Near neighbors (the 27-cell neighborhood) are evaluated
// exactly; every other occupied cell contributes a single force from its
// center of mass. Rebuilt once per iteration, so insertion stays allocation
// light by reusing the cell map.
type spatialGrid struct {
	cellSize float64
	cells    map[gridKey]*gridCell
}

type gridKey struct {
	X, Y, Z int32
}

type gridCell struct {
	indices []int
	sum     Vec3
	count   int
}

func newSpatialGrid(cellSize float64) *spatialGrid {
	if cellSize <= 0 {
		cellSize = 1
	}
	return &spatialGrid{
		cellSize: cellSize,
		cells:    make(map[gridKey]*gridCell),
	}
}

func (g *spatialGrid) keyFor(p Vec3) gridKey {
	return gridKey{
		X: int32(floorDiv(p.X, g.cellSize)),
		Y: int32(floorDiv(p.Y, g.cellSize)),
		Z: int32(floorDiv(p.Z, g.cellSize)),
	}
}

func floorDiv(v, size float64) int {
	d := v / size
	i := int(d)
	if d < 0 && d != float64(i) {
		i--
	}
	return i
}

// rebuild repopulates the grid from the position arena, reusing cell slices
// from the previous iteration.
func (g *spatialGrid) rebuild(positions []Vec3) {
	for _, c := range g.cells {
		c.indices = c.indices[:0]
		c.sum = Vec3{}
		c.count = 0
	}
	for i, p := range positions {
		key := g.keyFor(p)
		c := g.cells[key]
		if c == nil {
			c = &gridCell{}
			g.cells[key] = c
		}
		c.indices = append(c.indices, i)
		c.sum = c.sum.Add(p)
		c.count++
	}
	// Drop cells that emptied out so the map does not grow without bound
	// as the layout contracts.
	for key, c := range g.cells {
		if c.count == 0 {
			delete(g.cells, key)
		}
	}
}

// forEachNear invokes fn with the index of every node in the 27-cell
// neighborhood of p, including the node's own cell.
func (g *spatialGrid) forEachNear(p Vec3, fn func(j int)) {
	center := g.keyFor(p)
	for dx := int32(-1); dx <= 1; dx++ {
		for dy := int32(-1); dy <= 1; dy++ {
			for dz := int32(-1); dz <= 1; dz++ {
				key := gridKey{X: center.X + dx, Y: center.Y + dy, Z: center.Z + dz}
				c := g.cells[key]
				if c == nil {
					continue
				}
				for _, j := range c.indices {
					fn(j)
				}
			}
		}
	}
}

// forEachFar invokes fn with the center of mass and occupancy of every
// occupied cell outside the 27-cell neighborhood of p.
func (g *spatialGrid) forEachFar(p Vec3, fn func(com Vec3, count int)) {
	center := g.keyFor(p)
	for key, c := range g.cells {
		if c.count == 0 {
			continue
		}
		if abs32(key.X-center.X) <= 1 && abs32(key.Y-center.Y) <= 1 && abs32(key.Z-center.Z) <= 1 {
			continue
		}
		fn(c.sum.Scale(1/float64(c.count)), c.count)
	}
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
