package core

import (
	"sort"

	"github.com/signalsfoundry/graphscape/model"
)

// DefaultClusterThreshold is the edge strength at or above which two nodes
// are considered members of the same cluster.
const DefaultClusterThreshold = 0.7

// ClusteringEngine partitions nodes into connected components over the
// working edge set restricted to strong edges. Each recompute is a full
// replacement of the previous result; component counts are small relative
// to node counts, so this stays cheap.
type ClusteringEngine struct {
	// Threshold is the minimum edge strength for cluster membership.
	Threshold float64

	// MinMembers is the smallest component size that forms a cluster.
	MinMembers int
}

// NewClusteringEngine returns an engine with the default strength threshold
// and the two-member minimum.
func NewClusteringEngine() *ClusteringEngine {
	return &ClusteringEngine{
		Threshold:  DefaultClusterThreshold,
		MinMembers: 2,
	}
}

// Compute partitions the nodes reachable via edges at or above Threshold.
// positions, when non-nil, supplies the coordinates used for centroid and
// radius; clusters of nodes without positions get a zero centroid. An empty
// node set yields an empty (non-nil error free) result.
func (ce *ClusteringEngine) Compute(nodes []model.Node, working []model.Edge, positions map[string]model.Position) []model.Cluster {
	if len(nodes) == 0 {
		return nil
	}

	threshold := ce.Threshold
	if threshold <= 0 {
		threshold = DefaultClusterThreshold
	}
	minMembers := ce.MinMembers
	if minMembers < 2 {
		minMembers = 2
	}

	byID := make(map[string]model.Node, len(nodes))
	uf := newUnionFind(len(nodes))
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		index[n.ID] = i
		byID[n.ID] = n
	}

	for _, e := range working {
		if e.Strength < threshold {
			continue
		}
		a, okA := index[e.Source]
		b, okB := index[e.Target]
		if okA && okB {
			uf.union(a, b)
		}
	}

	components := make(map[int][]string)
	for i, n := range nodes {
		root := uf.find(i)
		components[root] = append(components[root], n.ID)
	}

	// Deterministic cluster ordering: sort components by their smallest
	// member id.
	roots := make([]int, 0, len(components))
	for root, members := range components {
		if len(members) < minMembers {
			continue
		}
		sort.Strings(members)
		roots = append(roots, root)
	}
	sort.Slice(roots, func(i, j int) bool {
		return components[roots[i]][0] < components[roots[j]][0]
	})

	clusters := make([]model.Cluster, 0, len(roots))
	for ci, root := range roots {
		members := components[root]
		c := model.Cluster{
			ID:      ci,
			Members: members,
		}
		c.DominantType, c.Label = dominantType(members, byID)
		for _, id := range members {
			c.TotalWeight += byID[id].Metadata.Weight
		}
		if positions != nil {
			c.Centroid, c.Radius = centroidAndRadius(members, positions)
		}
		clusters = append(clusters, c)
	}
	return clusters
}

// dominantType returns the most frequent member type, breaking ties toward
// the type whose members carry the highest total weight.
func dominantType(members []string, byID map[string]model.Node) (string, string) {
	counts := make(map[string]int)
	weights := make(map[string]float64)
	for _, id := range members {
		n := byID[id]
		counts[n.Type]++
		weights[n.Type] += n.Metadata.Weight
	}
	best := ""
	for t := range counts {
		if best == "" {
			best = t
			continue
		}
		if counts[t] > counts[best] {
			best = t
		} else if counts[t] == counts[best] && weights[t] > weights[best] {
			best = t
		}
	}
	return best, best
}

func centroidAndRadius(members []string, positions map[string]model.Position) (model.Position, float64) {
	var sum Vec3
	found := 0
	for _, id := range members {
		if p, ok := positions[id]; ok {
			sum = sum.Add(FromModel(p))
			found++
		}
	}
	if found == 0 {
		return model.Position{}, 0
	}
	centroid := sum.Scale(1 / float64(found))

	radius := 0.0
	for _, id := range members {
		if p, ok := positions[id]; ok {
			if d := centroid.DistanceTo(FromModel(p)); d > radius {
				radius = d
			}
		}
	}
	return centroid.Model(), radius
}

// unionFind is a standard disjoint-set with path compression and union by
// rank over dense integer indices.
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{
		parent: make([]int, n),
		rank:   make([]int, n),
	}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(i int) int {
	for uf.parent[i] != i {
		uf.parent[i] = uf.parent[uf.parent[i]]
		i = uf.parent[i]
	}
	return i
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.rank[ra] < uf.rank[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	if uf.rank[ra] == uf.rank[rb] {
		uf.rank[ra]++
	}
}
