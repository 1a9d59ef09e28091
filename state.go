package smd

import (
	"time"

	"gonum.org/v1/gonum/mat"
)

// State is the data-model State named in the toolkit's core: an epoch, an
// orbit (the Cartesian x this toolkit integrates) and, optionally, a state
// transition matrix Φ when the propagator is asked to co-integrate it, so
// that any propagated trajectory -- not just an OD estimate -- can carry
// the same triple.
type State struct {
	DT    time.Time
	SC    Spacecraft
	Orbit Orbit
	Phi   *mat.Dense // state transition matrix, nil unless requested
}

// HasSTM returns whether this state carries a state transition matrix.
func (s State) HasSTM() bool {
	return s.Phi != nil
}
