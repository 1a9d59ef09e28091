package smd

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Estimate is the filter's opinion of the true state at one epoch: the
// deviation (or full) state vector, its covariance, and the residual of the
// measurement that produced it. Self-contained: this toolkit's filter is
// not a thin wrapper around an external package.
type Estimate struct {
	State      State
	Covariance *mat.SymDense
	Residual   *Residual
	Φ          *mat.Dense // STM from the previous estimate to this one
	// Predicted marks an estimate recorded after a time update alone, before
	// any measurement has been incorporated at that epoch. Updated estimates
	// (Predicted == false) always carry a Residual; predicted ones never do.
	Predicted bool
}

// Residual is the pre-fit (innovation) and post-fit measurement residual of
// one update, plus the gating ratio used for outlier rejection.
type Residual struct {
	PreFit, PostFit *mat.VecDense
	Ratio           float64 // Mahalanobis-style ratio against the innovation covariance
	Rejected        bool
}

// Filter is a sequential Kalman filter operating on a 6+ dimensional
// Cartesian state. The EKF field records whether the EKF trigger is active;
// MeasurementUpdate does not read it, and the state correction K·r is used
// only for the post-fit residual, never applied to a reference state.
// Follows the update_stm/update_h_tilde/time_update/measurement_update
// sequence, with Joseph-form covariance update for numerical robustness
// (the same NASA best-practices reference the noise.go Gauss-Markov doc
// comment cites).
type Filter struct {
	n int // state dimension

	P0    *mat.SymDense // reference covariance, reset to on CKF resets
	P     *mat.SymDense // current covariance
	Phi   *mat.Dense    // state transition matrix accumulated since the last reset
	H     *mat.Dense    // measurement sensitivity, set by UpdateHTilde
	R     *mat.SymDense // measurement noise covariance
	SNC   *mat.SymDense // process (state) noise compensation, added at TimeUpdate
	EKF   bool          // mirrors the EKF trigger's Active flag; not read by the updates

	phiSet bool
	hSet   bool

	// GatingSigma is the Mahalanobis ratio above which a measurement is
	// rejected rather than incorporated (edge case: outlier rejection).
	GatingSigma float64
}

// NewFilter constructs a CKF/EKF filter seeded with the initial covariance
// and measurement noise.
func NewFilter(p0 *mat.SymDense, r *mat.SymDense, snc *mat.SymDense, gatingSigma float64) *Filter {
	n, _ := p0.Dims()
	pCopy := mat.NewSymDense(n, nil)
	pCopy.CopySym(p0)
	return &Filter{
		n:           n,
		P0:          p0,
		P:           pCopy,
		Phi:         Identity(n),
		R:           r,
		SNC:         snc,
		GatingSigma: gatingSigma,
	}
}

// UpdateSTM records the state transition matrix accumulated by the
// propagator since the last measurement update.
func (f *Filter) UpdateSTM(phi *mat.Dense) {
	f.Phi = phi
	f.phiSet = true
}

// UpdateHTilde records the measurement sensitivity matrix for the
// measurement about to be incorporated.
func (f *Filter) UpdateHTilde(h *mat.Dense) {
	f.H = h
	f.hSet = true
}

// TimeUpdate propagates the covariance forward across a time step using the
// recorded Φ and adds SNC scaled by the elapsed time (clamped to the
// process's correlation window), resolving the open question of how SNC
// should be windowed: it is evaluated once per call using the actual
// elapsed Δt, so a zero Δt call (e.g. two measurements at the same epoch)
// contributes no additional process noise.
func (f *Filter) TimeUpdate(elapsed float64, windowSeconds float64) (*mat.SymDense, error) {
	if !f.phiSet {
		return nil, StateTransitionMatrixNotUpdatedError{}
	}
	pApriori := mat.NewDense(f.n, f.n, nil)
	pApriori.Mul(f.Phi, f.P)
	pApriori.Mul(pApriori, f.Phi.T())

	if f.SNC != nil && elapsed > 0 {
		scale := math.Min(elapsed, windowSeconds)
		if windowSeconds <= 0 {
			scale = elapsed
		}
		scaled := mat.NewDense(f.n, f.n, nil)
		scaled.Scale(scale, f.SNC)
		pApriori.Add(pApriori, scaled)
	}

	sym := symmetricFrom(pApriori)
	f.P = sym
	f.phiSet = false
	return sym, nil
}

// MeasurementUpdate incorporates one observation, returning the new
// Estimate. preFit is z - h(x̂); the gain is computed via the Joseph-form
// update for numerical symmetry/PSD robustness.
func (f *Filter) MeasurementUpdate(preFit *mat.VecDense) (*Estimate, error) {
	if !f.hSet {
		return nil, SensitivityNotUpdatedError{}
	}
	m, _ := preFit.Dims()

	// Innovation covariance S = H P H' + R
	hp := mat.NewDense(m, f.n, nil)
	hp.Mul(f.H, f.P)
	s := mat.NewDense(m, m, nil)
	s.Mul(hp, f.H.T())
	s.Add(s, f.R)

	// S is symmetric PSD by construction; Cholesky is the idiomatic
	// invertibility test and the numerically cheaper solve path.
	sSym := symmetricFrom(s)
	var chol mat.Cholesky
	if ok := chol.Factorize(sSym); !ok {
		return nil, GainSingularError{Reason: "innovation covariance S is not positive definite (Cholesky factorization failed)"}
	}
	var sInv mat.Dense
	if err := chol.InverseTo(&sInv); err != nil {
		return nil, GainSingularError{Reason: err.Error()}
	}

	// Gating: Mahalanobis ratio of the pre-fit residual against S.
	var sInvZ mat.VecDense
	sInvZ.MulVec(&sInv, preFit)
	ratio := math.Sqrt(mat.Dot(preFit, &sInvZ))
	rejected := f.GatingSigma > 0 && ratio > f.GatingSigma

	res := &Residual{PreFit: preFit, Ratio: ratio, Rejected: rejected}
	if rejected {
		return &Estimate{Covariance: f.P, Residual: res, Φ: f.Phi}, nil
	}

	// Kalman gain K = P H' S^-1
	pht := mat.NewDense(f.n, m, nil)
	pht.Mul(f.P, f.H.T())
	k := mat.NewDense(f.n, m, nil)
	k.Mul(pht, &sInv)

	var dx mat.VecDense
	dx.MulVec(k, preFit)

	// Joseph form: P+ = (I-KH) P (I-KH)' + K R K'
	ikh := mat.NewDense(f.n, f.n, nil)
	kh := mat.NewDense(f.n, f.n, nil)
	kh.Mul(k, f.H)
	ikh.Sub(Identity(f.n), kh)

	pPost := mat.NewDense(f.n, f.n, nil)
	pPost.Mul(ikh, f.P)
	pPost.Mul(pPost, ikh.T())

	krk := mat.NewDense(f.n, f.n, nil)
	krk.Mul(k, f.R)
	krk.Mul(krk, k.T())
	pPost.Add(pPost, krk)

	sym := symmetricFrom(pPost)
	for i := 0; i < f.n; i++ {
		if sym.At(i, i) < 0 {
			return nil, CovarianceNotPSDError{Index: i, Value: sym.At(i, i)}
		}
	}
	f.P = sym
	f.hSet = false

	var postFit mat.VecDense
	postFit.MulVec(f.H, &dx)
	postFit.SubVec(preFit, &postFit)

	res.PostFit = &postFit
	return &Estimate{Covariance: sym, Residual: res, Φ: f.Phi}, nil
}

// Reset restores the filter to its reference covariance, used when the OD
// process discards accumulated STM history (e.g. after smoothing).
func (f *Filter) Reset() {
	p := mat.NewSymDense(f.n, nil)
	p.CopySym(f.P0)
	f.P = p
	f.Phi = Identity(f.n)
	f.phiSet = false
	f.hSet = false
}

func symmetricFrom(d *mat.Dense) *mat.SymDense {
	r, _ := d.Dims()
	sym := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			v := (d.At(i, j) + d.At(j, i)) / 2
			sym.SetSym(i, j, v)
		}
	}
	return sym
}

// EKFTrigger tracks consecutive in-sigma measurements to decide when the
// filter should switch from classical (deviation-based) to extended
// (reference-updating) mode once enough consecutive measurements pass the
// gate, and disarms back to classical mode if the gap since the last
// measurement grows past DisableAfter (a tracking outage long enough that
// the linearization around the reference state can no longer be trusted).
type EKFTrigger struct {
	ConsecutiveNeeded int
	// DisableAfter disarms an active trigger once the elapsed time since the
	// previous Observe call exceeds it. Zero disables the check.
	DisableAfter time.Duration

	consecutive   int
	Active        bool
	lastEpoch     time.Time
	haveLastEpoch bool
}

// NewEKFTrigger returns a trigger that activates after n consecutive in-sigma
// (non-rejected) measurements.
func NewEKFTrigger(n int) *EKFTrigger {
	return &EKFTrigger{ConsecutiveNeeded: n}
}

// Observe records one measurement's gating outcome at the given epoch and
// returns whether the trigger flipped to active on this call. A gap since
// the previous Observe longer than DisableAfter disarms the trigger first,
// resetting the consecutive-streak count.
func (t *EKFTrigger) Observe(epoch time.Time, rejected bool) bool {
	if t.Active && t.DisableAfter > 0 && t.haveLastEpoch && epoch.Sub(t.lastEpoch) > t.DisableAfter {
		t.Active = false
		t.consecutive = 0
	}
	t.lastEpoch = epoch
	t.haveLastEpoch = true

	if t.Active {
		return false
	}
	if rejected {
		t.consecutive = 0
		return false
	}
	t.consecutive++
	if t.consecutive >= t.ConsecutiveNeeded {
		t.Active = true
		return true
	}
	return false
}
