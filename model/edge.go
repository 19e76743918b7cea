package model

// Edge is a weighted connection between two nodes. Edges whose endpoints do
// not both resolve to known nodes are dropped at ingestion and never reach
// the layout or render layers.
type Edge struct {
	ID     string
	Source string
	Target string

	// Strength is the similarity weight in [0,1] after normalization.
	Strength float64

	Type string // free-form category, e.g. "similar", "references"

	// Context optionally explains why the connection exists.
	Context string
}

// Other returns the endpoint opposite to the given node id, or "" when the
// id is not an endpoint of this edge.
func (e Edge) Other(id string) string {
	switch id {
	case e.Source:
		return e.Target
	case e.Target:
		return e.Source
	}
	return ""
}
