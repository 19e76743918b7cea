package core

import "github.com/signalsfoundry/graphscape/model"

// DefaultMinStrength is deliberately low so sparse structure survives
// filtering; callers raise it when they want a denser threshold.
const DefaultMinStrength = 0.05

// FilterEdges derives the working edge set from raw connections: it drops
// edges below minStrength and edges with a missing endpoint, and normalizes
// strength into [0,1] when the source data is unbounded.
//
// The function is pure and deterministic given identical inputs. Both the
// layout engine and the clustering engine consume its output, so the two
// always agree on which edges exist.
func FilterEdges(nodes []model.Node, raw []model.Edge, minStrength float64) []model.Edge {
	if minStrength <= 0 {
		minStrength = DefaultMinStrength
	}

	known := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		known[n.ID] = struct{}{}
	}

	// If any raw strength exceeds 1, rescale the whole set by the max so
	// relative ordering is preserved.
	maxStrength := 1.0
	for _, e := range raw {
		if e.Strength > maxStrength {
			maxStrength = e.Strength
		}
	}

	working := make([]model.Edge, 0, len(raw))
	for _, e := range raw {
		if _, ok := known[e.Source]; !ok {
			continue
		}
		if _, ok := known[e.Target]; !ok {
			continue
		}
		if e.Source == e.Target {
			continue
		}
		s := e.Strength
		if s < 0 {
			s = 0
		}
		s /= maxStrength
		if s < minStrength {
			continue
		}
		e.Strength = s
		working = append(working, e)
	}
	return working
}
