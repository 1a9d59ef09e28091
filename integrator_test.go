package smd

import (
	"math"
	"testing"
)

// expDecay integrates ẋ = -λx to a fixed number of fixed-size steps,
// exercising the plain Integrable contract against a closed-form solution.
type expDecay struct {
	x     []float64
	lam   float64
	steps uint64
	n     uint64
}

func (e *expDecay) GetState() []float64            { return e.x }
func (e *expDecay) SetState(i uint64, s []float64) { e.x = s; e.n = i + 1 }
func (e *expDecay) Stop(i uint64) bool              { return i >= e.steps }
func (e *expDecay) Func(t float64, s []float64) []float64 {
	return []float64{-e.lam * s[0]}
}

func TestRK4MatchesClosedForm(t *testing.T) {
	integ := &expDecay{x: []float64{1.0}, lam: 0.5, steps: 1000}
	r := NewRK4(0, 0.01, integ)
	_, xEnd, err := r.Solve()
	if err != nil {
		t.Fatal(err)
	}
	got := integ.GetState()[0]
	want := math.Exp(-0.5 * xEnd)
	if math.Abs(got-want) > 1e-6 {
		t.Fatalf("RK4 diverged from closed form: got %f, want %f", got, want)
	}
}

func TestNewRK4PanicsOnInvalidConfig(t *testing.T) {
	assertPanic(t, func() { NewRK4(0, 0, &expDecay{steps: 1}) })
	assertPanic(t, func() { NewRK4(0, 1, nil) })
}

// boundedDecay never signals Stop on its own; RK89 must stop at XEnd.
type boundedDecay struct {
	x   []float64
	lam float64
}

func (b *boundedDecay) GetState() []float64            { return b.x }
func (b *boundedDecay) SetState(i uint64, s []float64) { b.x = s }
func (b *boundedDecay) Stop(i uint64) bool              { return false }
func (b *boundedDecay) Func(t float64, s []float64) []float64 {
	return []float64{-b.lam * s[0]}
}

func TestRK89MatchesClosedForm(t *testing.T) {
	integ := &boundedDecay{x: []float64{1.0}, lam: 0.3}
	r := NewRK89(0, 10, 1.0, 1e-6, 2.0, 1e-10, 1e-10, ErrNormRSS, integ)
	_, xEnd, err := r.Solve()
	if err != nil {
		t.Fatal(err)
	}
	got := integ.GetState()[0]
	want := math.Exp(-0.3 * xEnd)
	if math.Abs(got-want) > 1e-6 {
		t.Fatalf("RK89 diverged from closed form: got %f, want %f", got, want)
	}
}

func TestRK89RecordsStepDetails(t *testing.T) {
	integ := &boundedDecay{x: []float64{1.0}, lam: 0.3}
	r := NewRK89(0, 1, 0.1, 1e-6, 1.0, 1e-10, 1e-10, ErrNormRSS, integ)
	if _, _, err := r.Solve(); err != nil {
		t.Fatal(err)
	}
	if !r.LatestDetails().Accepted {
		t.Fatal("expected the final recorded step to be accepted")
	}
}

func TestRK89StepBelowMinimum(t *testing.T) {
	// A tolerance tight enough that the controller cannot satisfy it even
	// at MinStep must not abort the propagation: the step is forced through
	// at MinStep and recorded as a warning, and Solve runs to completion.
	integ := &boundedDecay{x: []float64{1.0}, lam: 50.0}
	r := NewRK89(0, 100, 1.0, 1e-3, 1.0, 1e-30, 1e-30, ErrNormRSS, integ)
	_, xEnd, err := r.Solve()
	if err != nil {
		t.Fatalf("expected the below-minimum step to be a non-fatal diagnostic, got error: %s", err)
	}
	if xEnd != 100 {
		t.Fatalf("expected integration to reach XEnd=100, got %f", xEnd)
	}
	if r.MinStepWarnings() == 0 {
		t.Fatal("expected at least one MinStep warning to be recorded")
	}
	if !r.LatestDetails().Accepted {
		t.Fatal("expected the final recorded step to be accepted despite the warning")
	}
}

func TestNewRK89PanicsOnInvalidStepBounds(t *testing.T) {
	assertPanic(t, func() {
		NewRK89(0, 1, 0.1, 1.0, 0.5, 1e-6, 1e-6, ErrNormRSS, &boundedDecay{x: []float64{1}})
	})
	assertPanic(t, func() {
		NewRK89(0, 1, 0.1, 0.1, 1.0, 1e-6, 1e-6, ErrNormRSS, nil)
	})
}
