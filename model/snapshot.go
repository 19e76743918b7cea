package model

import "time"

// LayoutSnapshot is the immutable result of one layout pass (complete or
// intermediate). It is produced on the layout worker, published by swapping
// a single pointer, and must never be mutated after publish. Consumers hold
// it read-only; a newer snapshot supersedes it entirely.
type LayoutSnapshot struct {
	// Version increases monotonically across every published snapshot,
	// including intermediate ones. The renderer must never display a
	// snapshot with a lower version than one it has already shown.
	Version uint64

	// GraphVersion identifies the graph store revision this snapshot was
	// computed from.
	GraphVersion uint64

	Positions map[string]Position

	// Converged reports whether the pass reached the displacement epsilon.
	// False means the pass hit its iteration cap or wall-clock budget, or
	// this is an intermediate snapshot of a still-running pass.
	Converged bool

	Iterations int

	ComputedAt time.Time
}

// Position returns the position for a node id and whether it is present.
func (s *LayoutSnapshot) Position(id string) (Position, bool) {
	if s == nil {
		return Position{}, false
	}
	p, ok := s.Positions[id]
	return p, ok
}
