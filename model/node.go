package model

import "time"

// Position is a plain 3D coordinate in layout space. It mirrors the
// geometry types used by the engine but keeps the model package free of
// engine imports; consumers convert at the boundary.
type Position struct {
	X, Y, Z float64
}

// Color is a straight (non-premultiplied) RGBA color with components in [0,1].
type Color struct {
	R, G, B, A float32
}

// NodeMetadata carries the scoring fields the layout and render layers read.
// UI-only fields (preview text, external URLs, etc.) go in Extra and are
// never read by the engine.
type NodeMetadata struct {
	// Weight is the node's importance in [0,1]; it drives instance-cap
	// ranking and cluster label tie-breaks.
	Weight float64

	// QualityScore is in [0,100].
	QualityScore float64

	// Confidence is in [0,1]; visibility filters can range over it.
	Confidence float64

	Tags []string

	CreatedAt time.Time
	UpdatedAt time.Time

	// Extra is an open extension map for fields the engine never reads.
	Extra map[string]string
}

// Node is a single knowledge-graph entity. Nodes do not carry a live
// position: positions are owned by the layout engine and published through
// immutable LayoutSnapshots.
type Node struct {
	ID    string
	Label string
	Type  string // free-form category, e.g. "concept", "document", "person"

	Size  float64
	Color Color

	Metadata NodeMetadata

	// Pinned, when set, fixes the node at the given position; the layout
	// engine applies no forces to pinned nodes.
	Pinned *Position
}
