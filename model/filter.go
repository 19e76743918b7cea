package model

import (
	"strings"
	"time"
)

// FilterSpec describes the visibility predicates applied before the render
// pipeline sees the graph: free-text search, type set, confidence range,
// and time range. The zero value matches every node.
type FilterSpec struct {
	Search string

	// Types, when non-empty, restricts visibility to nodes whose Type is in
	// the set.
	Types []string

	// MinConfidence/MaxConfidence bound Metadata.Confidence. A zero
	// MaxConfidence means "no upper bound".
	MinConfidence float64
	MaxConfidence float64

	// From/To bound Metadata.UpdatedAt. Zero times are open ends.
	From time.Time
	To   time.Time
}

// IsZero reports whether the spec matches everything.
func (f FilterSpec) IsZero() bool {
	return f.Search == "" && len(f.Types) == 0 &&
		f.MinConfidence == 0 && f.MaxConfidence == 0 &&
		f.From.IsZero() && f.To.IsZero()
}

// Matches reports whether the node passes every predicate in the spec.
func (f FilterSpec) Matches(n Node) bool {
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(n.Label), q) &&
			!strings.Contains(strings.ToLower(n.ID), q) &&
			!matchesTag(n.Metadata.Tags, q) {
			return false
		}
	}
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if strings.EqualFold(t, n.Type) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if n.Metadata.Confidence < f.MinConfidence {
		return false
	}
	if f.MaxConfidence > 0 && n.Metadata.Confidence > f.MaxConfidence {
		return false
	}
	if !f.From.IsZero() && n.Metadata.UpdatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && n.Metadata.UpdatedAt.After(f.To) {
		return false
	}
	return true
}

func matchesTag(tags []string, q string) bool {
	for _, t := range tags {
		if strings.Contains(strings.ToLower(t), q) {
			return true
		}
	}
	return false
}
