package smd

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

// MeasurementSource supplies the ODProcess with observations in time order,
// a streaming interface the OD loop can pull from whether the measurements
// come from a file, a channel, or simulation.
type MeasurementSource interface {
	Next() (Measurement, bool)
}

// sliceMeasurementSource is the simplest MeasurementSource: a pre-sorted
// slice, the shape every cmd/od scenario ultimately reduces to once loaded.
type sliceMeasurementSource struct {
	ms  []Measurement
	idx int
}

// NewMeasurementSlice wraps an ordered slice of measurements as a source.
func NewMeasurementSlice(ms []Measurement) MeasurementSource {
	return &sliceMeasurementSource{ms: ms}
}

func (s *sliceMeasurementSource) Next() (Measurement, bool) {
	if s.idx >= len(s.ms) {
		return Measurement{}, false
	}
	m := s.ms[s.idx]
	s.idx++
	return m, true
}

// IterationConf configures the OD iteration loop: how many
// forward/backward passes to run, and the RMS improvement threshold below
// which the loop is considered converged rather than diverged.
type IterationConf struct {
	MaxIterations   int
	RMSImprovement  float64 // fractional improvement required to continue
	SmoothAfterEach bool
}

// ODProcess drives the sequential filter across a trajectory and a stream
// of measurements: propagate to the next measurement epoch, update H and Φ,
// gate and incorporate the observation, and record the resulting Estimate.
// Drives this toolkit's own Filter directly rather than an external Kalman
// filter package.
type ODProcess struct {
	Dynamics  Dynamics
	Filter    *Filter
	Trigger   *EKFTrigger
	Estimates []*Estimate
	SNCWindow time.Duration

	// PropConfig, when set, selects the RK89 adaptive integrator for the
	// STM co-integration per PropConfig.AdaptiveStep; nil means the
	// fixed-step RK4 path at the step passed to Run.
	PropConfig *PropagatorConfig

	logger func(msg string, kv ...interface{})
}

// NewODProcess constructs a process around an already-configured filter and
// dynamics model.
func NewODProcess(dyn Dynamics, filter *Filter, trigger *EKFTrigger, sncWindow time.Duration) *ODProcess {
	return &ODProcess{Dynamics: dyn, Filter: filter, Trigger: trigger, SNCWindow: sncWindow}
}

// propagate advances orbit and Φ from `from` to `to`, routing through the
// adaptive integrator when PropConfig requests it.
func (p *ODProcess) propagate(orbit Orbit, from, to time.Time, step time.Duration) (Orbit, *mat.Dense) {
	if p.PropConfig != nil {
		cfg := *p.PropConfig
		cfg.StepSeconds = step.Seconds()
		return PropagateSTMAdaptive(p.Dynamics, orbit, from, to, cfg)
	}
	return PropagateSTM(p.Dynamics, orbit, from, to, step)
}

// SetLogger installs a structured log sink, matching the key/value call
// convention of the go-kit loggers elsewhere in this package.
func (p *ODProcess) SetLogger(logger func(msg string, kv ...interface{})) {
	p.logger = logger
}

func (p *ODProcess) log(msg string, kv ...interface{}) {
	if p.logger != nil {
		p.logger(msg, kv...)
	}
}

// stmIntegrable co-integrates the reference orbit and Φ as one [x; Φ] state
// from one epoch to the next, with the force model supplied by the Dynamics
// aggregate; PropagateSTM drives it with RK4 and PropagateSTMAdaptive with
// RK89.
type stmIntegrable struct {
	orbit  Orbit
	phi    *mat.Dense
	dyn    Dynamics
	dt     time.Time
	stopDT time.Time
	step   time.Duration

	// stepSeconds, when set, reports the actual elapsed time of the step
	// just taken (RK89's trial step varies call to call); nil means the
	// fixed step field applies (the RK4 path).
	stepSeconds func() float64
}

func (s *stmIntegrable) GetState() []float64 {
	R, V := s.orbit.RV()
	n := s.n()
	state := make([]float64, 6+n*n)
	copy(state[0:3], R)
	copy(state[3:6], V)
	idx := 6
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			state[idx] = s.phi.At(i, j)
			idx++
		}
	}
	return state
}

func (s *stmIntegrable) n() int { r, _ := s.phi.Dims(); return r }

func (s *stmIntegrable) SetState(i uint64, state []float64) {
	R := state[0:3]
	V := state[3:6]
	s.orbit = *NewOrbitFromRV(append([]float64{}, R...), append([]float64{}, V...), s.orbit.Origin)
	n := s.n()
	idx := 6
	phiNew := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			phiNew.Set(i, j, state[idx])
			idx++
		}
	}
	s.phi = phiNew
	stepTaken := s.step
	if s.stepSeconds != nil {
		stepTaken = time.Duration(s.stepSeconds() * float64(time.Second))
	}
	s.dt = s.dt.Add(stepTaken)
}

func (s *stmIntegrable) Stop(uint64) bool {
	return !s.dt.Before(s.stopDT)
}

func (s *stmIntegrable) Func(t float64, state []float64) []float64 {
	n := s.n()
	fDot := make([]float64, 6+n*n)
	R := []float64{state[0], state[1], state[2]}
	V := []float64{state[3], state[4], state[5]}
	orbit := NewOrbitFromRV(R, V, s.orbit.Origin)
	acc := s.dyn.Acceleration(*orbit)
	fDot[0] = V[0]
	fDot[1] = V[1]
	fDot[2] = V[2]
	fDot[3] = acc[0]
	fDot[4] = acc[1]
	fDot[5] = acc[2]

	A := s.dyn.AMatrix(*orbit)
	phi := mat.NewDense(n, n, nil)
	idx := 6
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			phi.Set(i, j, state[idx])
			idx++
		}
	}
	var phiDot mat.Dense
	phiDot.Mul(A, phi)
	idx = 6
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			fDot[idx] = phiDot.At(i, j)
			idx++
		}
	}
	return fDot
}

// PropagateSTM advances orbit and Φ from `from` to `to` using a fixed-step
// RK4, returning the new orbit and the accumulated STM.
func PropagateSTM(dyn Dynamics, orbit Orbit, from, to time.Time, step time.Duration) (Orbit, *mat.Dense) {
	if !to.After(from) {
		return orbit, Identity(6)
	}
	// Whole steps first, then one shorter step for any remainder, so the
	// propagation ends exactly at `to`.
	rem := to.Sub(from) % step
	integ := &stmIntegrable{orbit: orbit, phi: Identity(6), dyn: dyn, dt: from, stopDT: to.Add(-rem), step: step}
	r := NewRK4(0, step.Seconds(), integ)
	r.Solve() //nolint:errcheck // RK4.Solve never errors; Stop() bounds iteration.
	if rem > 0 {
		integ.stopDT = to
		integ.step = rem
		NewRK4(0, rem.Seconds(), integ).Solve() //nolint:errcheck
	}
	return integ.orbit, integ.phi
}

// PropagateSTMAdaptive advances orbit and Φ from `from` to `to` using the
// RK89 adaptive-step integrator when cfg.AdaptiveStep is set (the
// with(initial_state) contract binding dynamics and integrator together),
// falling back to the fixed-step RK4 path of PropagateSTM otherwise.
func PropagateSTMAdaptive(dyn Dynamics, orbit Orbit, from, to time.Time, cfg PropagatorConfig) (Orbit, *mat.Dense) {
	step := time.Duration(cfg.StepSeconds * float64(time.Second))
	if !cfg.AdaptiveStep {
		return PropagateSTM(dyn, orbit, from, to, step)
	}
	if !to.After(from) {
		return orbit, Identity(6)
	}
	integ := &stmIntegrable{orbit: orbit, phi: Identity(6), dyn: dyn, dt: from, stopDT: to, step: step}
	r := NewRK89(0, to.Sub(from).Seconds(), step.Seconds(), cfg.MinStepSeconds, cfg.MaxStepSeconds, cfg.AbsTol, cfg.RelTol, ErrNormRSS, integ)
	integ.stepSeconds = func() float64 { return r.LatestDetails().Step }
	r.Solve() //nolint:errcheck // RK89.Solve never returns a fatal error; Stop() bounds iteration.
	return integ.orbit, integ.phi
}

// Run drives the filter across every measurement in the source, starting
// from the given reference orbit at refEpoch, propagating with a fixed
// step. A single loop takes each visible measurement in turn: it propagates
// to the measurement epoch, then runs the time and measurement updates.
func (p *ODProcess) Run(refOrbit Orbit, refEpoch time.Time, step time.Duration, src MeasurementSource) error {
	orbit := refOrbit
	epoch := refEpoch
	for {
		meas, ok := src.Next()
		if !ok {
			return nil
		}
		if !meas.Visible {
			continue
		}
		mEpoch := meas.State.DT

		// Propagate in step-sized increments, recording a predicted estimate
		// at each accepted intermediate epoch before the measurement is
		// reached: the filter's time update runs once per increment, not
		// once across the whole gap.
		for next := epoch.Add(step); next.Before(mEpoch); next = epoch.Add(step) {
			var phi *mat.Dense
			orbit, phi = p.propagate(orbit, epoch, next, step)
			elapsed := next.Sub(epoch).Seconds()
			epoch = next

			p.Filter.UpdateSTM(phi)
			pPred, err := p.Filter.TimeUpdate(elapsed, p.SNCWindow.Seconds())
			if err != nil {
				return fmt.Errorf("smd: time update failed: %w", err)
			}
			p.Estimates = append(p.Estimates, &Estimate{
				State:      State{DT: epoch, Orbit: orbit},
				Covariance: pPred,
				Φ:          phi,
				Predicted:  true,
			})
		}

		var phi *mat.Dense
		orbit, phi = p.propagate(orbit, epoch, mEpoch, step)
		elapsed := mEpoch.Sub(epoch).Seconds()
		epoch = mEpoch

		p.Filter.UpdateSTM(phi)
		if _, err := p.Filter.TimeUpdate(elapsed, p.SNCWindow.Seconds()); err != nil {
			return fmt.Errorf("smd: time update failed: %w", err)
		}

		computed := meas.Station.recompute(meas.Timeθgst, State{DT: epoch, Orbit: orbit})

		h := computed.HTilde()
		p.Filter.UpdateHTilde(h)

		preFit := mat.NewVecDense(2, []float64{meas.Range - computed.Range, meas.RangeRate - computed.RangeRate})
		est, err := p.Filter.MeasurementUpdate(preFit)
		if err != nil {
			// A failed update leaves the filter's covariance untouched; the
			// measurement is recorded as rejected and processing continues.
			p.log("measurement update failed", "epoch", epoch, "err", err)
			est = &Estimate{Covariance: p.Filter.P, Residual: &Residual{PreFit: preFit, Rejected: true}, Φ: p.Filter.Phi}
		}
		est.State = State{DT: epoch, Orbit: orbit}
		p.Estimates = append(p.Estimates, est)

		wasActive := p.Trigger.Active
		flipped := p.Trigger.Observe(epoch, est.Residual.Rejected)
		p.Filter.EKF = p.Trigger.Active
		if flipped {
			p.log("EKF activated", "epoch", epoch)
		} else if wasActive && !p.Trigger.Active {
			p.log("EKF disarmed", "epoch", epoch)
		}
		p.log("measurement processed", "epoch", epoch, "station", meas.Station.Name, "rejected", est.Residual.Rejected)
	}
}

// recompute returns the noiseless, "true" measurement geometry for a
// reference state (used by ODProcess to form the pre-fit residual) without
// perturbing the station's stateful bias process.
func (s Station) recompute(θgst float64, state State) Measurement {
	rECEF := ECI2ECEF(state.Orbit.R(), θgst)
	vECEF := ECI2ECEF(state.Orbit.V(), θgst)
	ρECEF, ρ, el, _ := s.RangeElAz(rECEF)
	vDiffECEF := make([]float64, 3)
	for i := 0; i < 3; i++ {
		vDiffECEF[i] = (vECEF[i] - s.V[i]) / ρ
	}
	ρDot := Dot(ρECEF, vDiffECEF)
	return Measurement{el >= s.Elevation, ρ, ρDot, ρ, ρDot, θgst, state, s}
}

// Smooth runs the backward Rauch-Tung-Striebel pass over the recorded
// forward estimates, replacing each covariance with its smoothed
// counterpart. The recorded states are left as they are.
func (p *ODProcess) Smooth() error {
	n := len(p.Estimates)
	if n == 0 {
		return nil
	}
	smoothed := make([]*mat.SymDense, n)
	smoothed[n-1] = p.Estimates[n-1].Covariance
	for k := n - 2; k >= 0; k-- {
		curr := p.Estimates[k]
		next := p.Estimates[k+1]
		phi := next.Φ
		if phi == nil {
			smoothed[k] = curr.Covariance
			continue
		}
		dim, _ := curr.Covariance.Dims()
		pApriori := mat.NewDense(dim, dim, nil)
		pApriori.Mul(phi, curr.Covariance)
		pApriori.Mul(pApriori, phi.T())

		var pAprioriInv mat.Dense
		if err := pAprioriInv.Inverse(pApriori); err != nil {
			smoothed[k] = curr.Covariance
			continue
		}

		sk := mat.NewDense(dim, dim, nil)
		sk.Mul(curr.Covariance, phi.T())
		sk.Mul(sk, &pAprioriInv)

		diff := mat.NewDense(dim, dim, nil)
		diff.Sub(denseSymOf(smoothed[k+1]), pApriori)
		corr := mat.NewDense(dim, dim, nil)
		corr.Mul(sk, diff)
		corr.Mul(corr, sk.T())

		pSmoothed := mat.NewDense(dim, dim, nil)
		pSmoothed.Add(curr.Covariance, corr)
		smoothed[k] = symmetricFrom(pSmoothed)
	}
	for i, s := range smoothed {
		p.Estimates[i].Covariance = s
	}
	return nil
}

func denseSymOf(s *mat.SymDense) *mat.Dense {
	n, _ := s.Dims()
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			d.Set(i, j, s.At(i, j))
		}
	}
	return d
}

// ResidualRMS returns the RMS of the post-fit residuals across every
// non-rejected estimate, the convergence metric the iteration loop drives
// to a minimum.
func (p *ODProcess) ResidualRMS() float64 {
	sum := 0.0
	count := 0
	for _, e := range p.Estimates {
		if e.Residual == nil || e.Residual.Rejected || e.Residual.PostFit == nil {
			continue
		}
		for i := 0; i < e.Residual.PostFit.Len(); i++ {
			v := e.Residual.PostFit.AtVec(i)
			sum += v * v
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(count))
}

// Iterate calls run, optionally smooths the result, and repeats until the
// residual RMS stops improving enough or MaxIterations is reached, returning
// IterationDivergedError if the RMS never converges. Nothing from one
// attempt is passed to the next: each attempt starts from whatever state
// run itself sets up.
func Iterate(conf IterationConf, run func() (*ODProcess, error)) (*ODProcess, error) {
	var last *ODProcess
	prevRMS := math.Inf(1)
	for attempt := 0; attempt < conf.MaxIterations; attempt++ {
		proc, err := run()
		if err != nil {
			return nil, err
		}
		if conf.SmoothAfterEach {
			if err := proc.Smooth(); err != nil {
				return nil, err
			}
		}
		rms := proc.ResidualRMS()
		last = proc
		if prevRMS-rms < conf.RMSImprovement*prevRMS {
			return proc, nil
		}
		prevRMS = rms
	}
	if last == nil {
		return nil, IterationDivergedError{Attempts: conf.MaxIterations, LastRMS: prevRMS}
	}
	return last, IterationDivergedError{Attempts: conf.MaxIterations, LastRMS: prevRMS}
}
