package smd

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// ForceModel computes the acceleration contribution of one perturbation and,
// where the analytic partials are known, its contribution to the A matrix
// (∂ẋ/∂x) used for state transition matrix co-integration. One interface
// per force term, rather than a single monolithic perturbation function,
// lets A-matrix partials be summed independently of the acceleration
// itself.
type ForceModel interface {
	Acceleration(o Orbit) []float64
	// Partials adds this force's contribution to the 6x6 (or larger) A
	// matrix; implementations that have no analytic partial return nil and
	// are skipped (their contribution is treated as zero, consistent with
	// a two-body-dominant STM).
	Partials(o Orbit) *mat.Dense
	String() string
}

// TwoBody is the Keplerian point-mass force.
type TwoBody struct{}

// Acceleration returns the two-body gravitational acceleration.
func (TwoBody) Acceleration(o Orbit) []float64 {
	r := o.R()
	rNorm := o.RNorm()
	factor := -o.Origin.μ / math.Pow(rNorm, 3)
	return []float64{factor * r[0], factor * r[1], factor * r[2]}
}

// Partials returns the analytic two-body Jacobian block, per Vallado's STM
// derivation, split out here so other force models can add to it.
func (TwoBody) Partials(o Orbit) *mat.Dense {
	r := o.R()
	x, y, z := r[0], r[1], r[2]
	rNorm := o.RNorm()
	r3 := math.Pow(rNorm, 3)
	r5 := math.Pow(rNorm, 5)
	μ := o.Origin.μ
	A := mat.NewDense(6, 6, nil)
	A.Set(0, 3, 1)
	A.Set(1, 4, 1)
	A.Set(2, 5, 1)
	A.Set(3, 0, 3*μ*x*x/r5-μ/r3)
	A.Set(3, 1, 3*μ*x*y/r5)
	A.Set(3, 2, 3*μ*x*z/r5)
	A.Set(4, 0, 3*μ*x*y/r5)
	A.Set(4, 1, 3*μ*y*y/r5-μ/r3)
	A.Set(4, 2, 3*μ*y*z/r5)
	A.Set(5, 0, 3*μ*x*z/r5)
	A.Set(5, 1, 3*μ*y*z/r5)
	A.Set(5, 2, 3*μ*z*z/r5-μ/r3)
	return A
}

func (TwoBody) String() string { return "two-body" }

// J2J3 implements the zonal harmonic perturbation due to Earth's
// oblateness, evaluated directly in the Cartesian frame, and carries J3 in
// addition to J2.
type J2J3 struct{}

// Acceleration returns the combined J2/J3 perturbing acceleration.
func (J2J3) Acceleration(o Orbit) []float64 {
	if o.Origin.Equals(Sun) {
		return []float64{0, 0, 0}
	}
	R := o.R()
	r := o.RNorm()
	z2 := R[2] * R[2]
	accJ2 := -(3 * o.Origin.μ * o.Origin.J2 * math.Pow(o.Origin.Radius, 2)) / (2 * math.Pow(r, 5))
	pert := []float64{
		accJ2 * R[0] * (1 - 5*z2/(r*r)),
		accJ2 * R[1] * (1 - 5*z2/(r*r)),
		accJ2 * R[2] * (3 - 5*z2/(r*r)),
	}
	if o.Origin.J3 != 0 {
		z3 := R[2] * z2
		accJ3 := -(5 * o.Origin.μ * o.Origin.J3 * math.Pow(o.Origin.Radius, 3)) / (2 * math.Pow(r, 7))
		pert[0] += accJ3 * R[0] * (3*R[2] - 7*z3/(r*r))
		pert[1] += accJ3 * R[1] * (3*R[2] - 7*z3/(r*r))
		pert[2] += accJ3 * (6*z2 - 7*z2*z2/(r*r) - 3*r*r/5)
	}
	return pert
}

// Partials returns nil: this toolkit's STM is propagated with the two-body
// block dominant and J2/J3 treated as unmodeled acceleration, compensated
// for by the filter's SNC term instead of an analytic partial.
func (J2J3) Partials(Orbit) *mat.Dense { return nil }

func (J2J3) String() string { return "J2/J3" }

// ExpDrag is an exponential atmosphere drag model: rho0/r0/h reference
// constants at a -½ρCdA|v|v drag law, restricted to Earth-centered orbits.
type ExpDrag struct {
	AreaM2 float64 // spacecraft cross-sectional area, m^2
	Cd     float64 // drag coefficient
}

const (
	expDragRho0 = 3.614e-13 // kg/m^3
	expDragR0   = 700.0     // km above Earth's equatorial radius
	expDragH    = 88.667    // km scale height
)

// Acceleration returns the drag deceleration vector, in km/s^2.
func (d ExpDrag) Acceleration(o Orbit) []float64 {
	if !o.Origin.Equals(Earth) {
		return []float64{0, 0, 0}
	}
	rho := expDragRho0 * math.Exp(-(o.RNorm()-(expDragR0+o.Origin.Radius))/expDragH)
	v := o.V()
	vNorm := o.VNorm()
	// Convert rho (kg/m^3) and area (m^2) to consistent km units: the
	// km/s^2 acceleration scales by 1e-3 per m->km in the rho*A*v^2 product.
	factor := -0.5 * rho * d.Cd * d.AreaM2 * vNorm * 1e-3
	return []float64{factor * v[0], factor * v[1], factor * v[2]}
}

// Partials returns nil; drag's velocity-dependent partial is small relative
// to the two-body block for the low-drag regimes this toolkit targets and is
// folded into SNC instead of the analytic STM.
func (ExpDrag) Partials(Orbit) *mat.Dense { return nil }

func (d ExpDrag) String() string { return "exponential drag" }

// Custom wraps an arbitrary user acceleration function as a first-class
// force model.
type Custom struct {
	Name  string
	Accel func(o Orbit) []float64
}

// Acceleration invokes the wrapped function.
func (c Custom) Acceleration(o Orbit) []float64 { return c.Accel(o) }

// Partials returns nil: arbitrary forces carry no analytic partial.
func (c Custom) Partials(Orbit) *mat.Dense { return nil }

func (c Custom) String() string { return c.Name }

// Dynamics aggregates a set of force models into the full equations of
// motion ẋ = f(x) plus, when requested, Ȧ for STM propagation: a composable
// set with two-body always present and J2/J3/drag/custom optional per
// scenario.
type Dynamics struct {
	Forces []ForceModel
}

// NewDynamics always includes TwoBody and appends any extra force models.
func NewDynamics(extra ...ForceModel) Dynamics {
	return Dynamics{Forces: append([]ForceModel{TwoBody{}}, extra...)}
}

// Acceleration sums every force model's contribution.
func (d Dynamics) Acceleration(o Orbit) []float64 {
	acc := []float64{0, 0, 0}
	for _, f := range d.Forces {
		a := f.Acceleration(o)
		acc[0] += a[0]
		acc[1] += a[1]
		acc[2] += a[2]
	}
	return acc
}

// AMatrix sums every force model's analytic partial, defaulting to the
// pure two-body block where a model has none.
func (d Dynamics) AMatrix(o Orbit) *mat.Dense {
	A := mat.NewDense(6, 6, nil)
	any := false
	for _, f := range d.Forces {
		if p := f.Partials(o); p != nil {
			A.Add(A, p)
			any = true
		}
	}
	if !any {
		return TwoBody{}.Partials(o)
	}
	return A
}

func (d Dynamics) String() string {
	names := make([]string, len(d.Forces))
	for i, f := range d.Forces {
		names[i] = f.String()
	}
	return "dynamics: " + strings.Join(names, ", ")
}
