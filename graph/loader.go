package graph

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/signalsfoundry/graphscape/model"
)

// GraphScenario is a small summary of what was loaded from JSON. It's mainly
// useful for logging or debugging from main().
type GraphScenario struct {
	NodeIDs []string
	EdgeIDs []string
	Stats   ReplaceStats
}

// internal JSON shapes, kept unexported so the wire format can evolve
// without touching the model types.
type graphDocumentJSON struct {
	Nodes []graphNodeJSON `json:"nodes"`
	Edges []graphEdgeJSON `json:"edges"`
}

type graphNodeJSON struct {
	ID    string  `json:"id"`
	Label string  `json:"label"`
	Type  string  `json:"type"`
	Size  float64 `json:"size"`

	Color *colorJSON `json:"color"`

	Weight       float64           `json:"weight"`
	QualityScore float64           `json:"quality_score"`
	Confidence   float64           `json:"confidence"`
	Tags         []string          `json:"tags"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	Extra        map[string]string `json:"extra"`

	// Pinned, when present, fixes the node at that position.
	Pinned *positionJSON `json:"pinned"`
}

type graphEdgeJSON struct {
	ID       string  `json:"id"`
	Source   string  `json:"source"`
	Target   string  `json:"target"`
	Strength float64 `json:"strength"`
	Type     string  `json:"type"`
	Context  string  `json:"context"`
}

type colorJSON struct {
	R float32 `json:"r"`
	G float32 `json:"g"`
	B float32 `json:"b"`
	A float32 `json:"a"`
}

type positionJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// LoadGraphScenario reads a JSON graph document from r, replaces the store's
// contents with it, and returns a summary of what was loaded.
//
// It fails only on JSON and structural errors (an edge or node that cannot
// be represented at all). Duplicate ids, dangling edges, and self edges are
// data problems the store sanitizes and reports through ReplaceStats.
func LoadGraphScenario(st *Store, r io.Reader) (*GraphScenario, error) {
	if st == nil {
		return nil, fmt.Errorf("LoadGraphScenario: store is nil")
	}

	var payload graphDocumentJSON
	dec := json.NewDecoder(r)
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("LoadGraphScenario: decode failed: %w", err)
	}

	nodes := make([]model.Node, 0, len(payload.Nodes))
	for _, jn := range payload.Nodes {
		if jn.ID == "" {
			return nil, fmt.Errorf("LoadGraphScenario: node with empty id")
		}
		n := model.Node{
			ID:    jn.ID,
			Label: jn.Label,
			Type:  jn.Type,
			Size:  jn.Size,
			Metadata: model.NodeMetadata{
				Weight:       jn.Weight,
				QualityScore: jn.QualityScore,
				Confidence:   jn.Confidence,
				Tags:         jn.Tags,
				CreatedAt:    jn.CreatedAt,
				UpdatedAt:    jn.UpdatedAt,
				Extra:        jn.Extra,
			},
		}
		if n.Size <= 0 {
			n.Size = 1
		}
		if jn.Color != nil {
			n.Color = model.Color{R: jn.Color.R, G: jn.Color.G, B: jn.Color.B, A: jn.Color.A}
		} else {
			n.Color = model.Color{R: 0.62, G: 0.71, B: 0.92, A: 1}
		}
		if jn.Pinned != nil {
			n.Pinned = &model.Position{X: jn.Pinned.X, Y: jn.Pinned.Y, Z: jn.Pinned.Z}
		}
		nodes = append(nodes, n)
	}

	edges := make([]model.Edge, 0, len(payload.Edges))
	for _, je := range payload.Edges {
		if je.Source == "" || je.Target == "" {
			return nil, fmt.Errorf("LoadGraphScenario: edge %q with empty endpoint", je.ID)
		}
		edges = append(edges, model.Edge{
			ID:       je.ID,
			Source:   je.Source,
			Target:   je.Target,
			Strength: je.Strength,
			Type:     je.Type,
			Context:  je.Context,
		})
	}

	stats := st.Replace(nodes, edges)

	result := &GraphScenario{
		NodeIDs: make([]string, 0, stats.Nodes),
		EdgeIDs: make([]string, 0, stats.Edges),
		Stats:   stats,
	}
	for _, n := range st.Nodes() {
		result.NodeIDs = append(result.NodeIDs, n.ID)
	}
	for _, e := range st.Edges() {
		result.EdgeIDs = append(result.EdgeIDs, e.ID)
	}
	return result, nil
}
