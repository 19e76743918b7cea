package core

import (
	"math"

	"github.com/signalsfoundry/graphscape/model"
)

// simState holds the mutable per-pass simulation arena: plain slices indexed
// by dense node index. Node ids appear only at the publish boundary.
type simState struct {
	opts LayoutOptions

	ids      []string
	index    map[string]int
	pos      []Vec3
	vel      []Vec3
	force    []Vec3
	pinned   []bool
	clusters []int // cluster index per node, -1 when unassigned

	// edges in dense index form
	edgeA        []int
	edgeB        []int
	edgeStrength []float64

	nClusters int
	grid      *spatialGrid
	step      float64

	// recoveries counts nodes reset to their deterministic fallback
	// position after a non-finite coordinate appeared.
	recoveries int
}

// newSimState builds the arena from the input graph. Initial positions come
// from prev (the last published snapshot) where available, so graph edits
// settle progressively instead of rerolling the whole layout; new nodes
// start on a deterministic sphere keyed by id hash.
func newSimState(opts LayoutOptions, nodes []model.Node, edges []model.Edge, clusterOf map[string]int, prev *model.LayoutSnapshot) *simState {
	n := len(nodes)
	s := &simState{
		opts:     opts,
		ids:      make([]string, n),
		index:    make(map[string]int, n),
		pos:      make([]Vec3, n),
		vel:      make([]Vec3, n),
		force:    make([]Vec3, n),
		pinned:   make([]bool, n),
		clusters: make([]int, n),
		step:     opts.InitialStep,
	}

	radius := opts.InitialRadius
	if radius <= 0 {
		radius = 10 + 2*math.Cbrt(float64(n))
		s.opts.InitialRadius = radius
	}

	for i, node := range nodes {
		s.ids[i] = node.ID
		s.index[node.ID] = i
		s.clusters[i] = -1

		switch {
		case node.Pinned != nil:
			s.pos[i] = FromModel(*node.Pinned)
			s.pinned[i] = true
		default:
			if p, ok := prev.Position(node.ID); ok {
				s.pos[i] = FromModel(p)
			} else {
				s.pos[i] = SpherePoint(node.ID, radius)
			}
		}
		if ci, ok := clusterOf[node.ID]; ok {
			s.clusters[i] = ci
			if ci+1 > s.nClusters {
				s.nClusters = ci + 1
			}
		}
	}

	for _, e := range edges {
		a, okA := s.index[e.Source]
		b, okB := s.index[e.Target]
		if !okA || !okB {
			continue
		}
		s.edgeA = append(s.edgeA, a)
		s.edgeB = append(s.edgeB, b)
		s.edgeStrength = append(s.edgeStrength, e.Strength)
	}

	if n >= opts.GridThreshold {
		s.grid = newSpatialGrid(2 * opts.MinSeparation)
	}
	return s
}

// iterate runs one simulation step and returns the maximum per-node
// displacement, the convergence signal.
func (s *simState) iterate() float64 {
	for i := range s.force {
		s.force[i] = Vec3{}
	}

	if s.grid != nil {
		s.grid.rebuild(s.pos)
		s.approxRepulsion()
	} else {
		s.directRepulsion()
	}
	s.springs()
	if s.nClusters > 0 && s.opts.ClusterGravity > 0 {
		s.clusterGravity()
	}

	maxDisp := s.integrate()
	s.step *= s.opts.StepDecay
	return maxDisp
}

// directRepulsion is the exact O(n²) evaluation used below the grid
// threshold, keeping small-graph results reproducible in tests.
func (s *simState) directRepulsion() {
	n := len(s.pos)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			f := s.repulse(s.pos[i], s.pos[j], 1, i)
			s.force[i] = s.force[i].Add(f)
			s.force[j] = s.force[j].Sub(f)
		}
	}
}

// approxRepulsion evaluates the 27-cell neighborhood exactly and folds all
// remaining occupied cells into single center-of-mass contributions.
func (s *simState) approxRepulsion() {
	for i := range s.pos {
		p := s.pos[i]
		s.grid.forEachNear(p, func(j int) {
			if j == i {
				return
			}
			s.force[i] = s.force[i].Add(s.repulse(p, s.pos[j], 1, i))
		})
		s.grid.forEachFar(p, func(com Vec3, count int) {
			s.force[i] = s.force[i].Add(s.repulse(p, com, float64(count), i))
		})
	}
}

// repulse returns the force pushing a away from b, scaled by mass (the
// far-field center-of-mass occupancy). Coincident points repel along a
// deterministic direction keyed by node index so degenerate inputs cannot
// produce infinities.
func (s *simState) repulse(a, b Vec3, mass float64, selfIdx int) Vec3 {
	delta := a.Sub(b)
	distSq := delta.Dot(delta)
	if distSq < 1e-8 {
		delta = SpherePoint(s.ids[selfIdx], 1)
		distSq = 1
	}
	mag := s.opts.Repulsion * mass / distSq
	if mag > s.opts.MaxForce {
		mag = s.opts.MaxForce
	}
	return delta.Scale(mag / math.Sqrt(distSq))
}

// springs applies the attraction along every working edge, proportional to
// strength times distance, with the per-edge pull capped to avoid
// instability on very short edges.
func (s *simState) springs() {
	for k := range s.edgeA {
		a, b := s.edgeA[k], s.edgeB[k]
		delta := s.pos[b].Sub(s.pos[a])
		dist := delta.Norm()
		if dist < 1e-9 {
			continue
		}
		// delta carries the factor of dist; mag is the bare coefficient.
		mag := s.opts.Attraction * s.edgeStrength[k]
		if limit := s.opts.MaxSpringStep; mag*dist > limit {
			mag = limit / dist
		}
		f := delta.Scale(mag)
		s.force[a] = s.force[a].Add(f)
		s.force[b] = s.force[b].Sub(f)
	}
}

// clusterGravity pulls each clustered node weakly toward its cluster's
// live centroid, computed from current positions each iteration.
func (s *simState) clusterGravity() {
	sums := make([]Vec3, s.nClusters)
	counts := make([]int, s.nClusters)
	for i, ci := range s.clusters {
		if ci < 0 {
			continue
		}
		sums[ci] = sums[ci].Add(s.pos[i])
		counts[ci]++
	}
	for i, ci := range s.clusters {
		if ci < 0 || counts[ci] < 2 {
			continue
		}
		centroid := sums[ci].Scale(1 / float64(counts[ci]))
		s.force[i] = s.force[i].Add(centroid.Sub(s.pos[i]).Scale(s.opts.ClusterGravity))
	}
}

// integrate advances velocities and positions, applies damping and the
// annealed step size, recovers non-finite positions, and returns the max
// displacement of the iteration.
func (s *simState) integrate() float64 {
	maxDisp := 0.0
	for i := range s.pos {
		if s.pinned[i] {
			s.vel[i] = Vec3{}
			continue
		}
		s.vel[i] = s.vel[i].Add(s.force[i].Scale(s.step)).Scale(s.opts.Damping)
		next := s.pos[i].Add(s.vel[i])

		if !next.IsFinite() {
			// Local recovery: deterministic fallback position, zeroed
			// velocity. The pass continues.
			next = SpherePoint(s.ids[i], s.opts.InitialRadius+float64(i%7))
			s.vel[i] = Vec3{}
			s.recoveries++
		}

		disp := next.DistanceTo(s.pos[i])
		if disp > maxDisp {
			maxDisp = disp
		}
		s.pos[i] = next
	}
	return maxDisp
}

// snapshotPositions copies the arena into an id-keyed map for publication.
func (s *simState) snapshotPositions() map[string]model.Position {
	out := make(map[string]model.Position, len(s.ids))
	for i, id := range s.ids {
		out[id] = s.pos[i].Model()
	}
	return out
}
