package model

// Cluster is one connected component of the graph restricted to edges at or
// above the clustering strength threshold. Membership is a partition: a node
// belongs to at most one cluster per clustering pass.
type Cluster struct {
	ID int

	// Members holds node ids in deterministic (sorted) order.
	Members []string

	// Centroid is the mean position of the members, computed against the
	// layout snapshot current at clustering time.
	Centroid Position

	// Radius is the max distance from the centroid to any member.
	Radius float64

	// Label is the display label derived from the dominant member type.
	Label string

	// DominantType is the most frequent member type; ties break toward the
	// type with the highest total weight.
	DominantType string

	// TotalWeight is the sum of member weights.
	TotalWeight float64
}
