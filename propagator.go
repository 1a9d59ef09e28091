package smd

import (
	"context"
	"time"

	kitlog "github.com/go-kit/kit/log"
)

// EventFunc evaluates a scalar function of state used for event detection
// over a trajectory (e.g. true anomaly, altitude, a station's elevation).
// A sign change of the returned value between two accepted steps brackets
// an event crossing.
type EventFunc func(o Orbit) float64

// Event names one EventFunc and the target value its crossing is searched
// against, a single comparison primitive that backs find-all, find-bracketed
// and fixed-cadence event search.
type Event struct {
	Name   string
	Fn     EventFunc
	Target float64
}

// TrajectoryPoint is one accepted sample recorded during propagation.
type TrajectoryPoint struct {
	DT    time.Time
	Orbit Orbit
}

// Trajectory is the ordered record of accepted propagation steps, queryable
// by time via Hermite interpolation between bracketing samples and
// searchable for event crossings: an in-memory structure that supports
// post-hoc querying, not just streaming export.
type Trajectory struct {
	Points []TrajectoryPoint
}

// Append records one sample.
func (t *Trajectory) Append(dt time.Time, o Orbit) {
	t.Points = append(t.Points, TrajectoryPoint{dt, o})
}

// At returns the interpolated state at the given time via cubic Hermite
// interpolation of position and velocity between the bracketing samples
// (the standard trajectory query technique since velocity gives the exact
// derivative needed for a C1 Hermite basis).
func (t *Trajectory) At(when time.Time) (Orbit, error) {
	if len(t.Points) == 0 {
		return Orbit{}, OutOfBoundsError{Requested: stringerTime(when), Lo: stringerTime(when), Hi: stringerTime(when)}
	}
	lo, hi := t.Points[0].DT, t.Points[len(t.Points)-1].DT
	if when.Before(lo) || when.After(hi) {
		return Orbit{}, OutOfBoundsError{Requested: stringerTime(when), Lo: stringerTime(lo), Hi: stringerTime(hi)}
	}
	idx := 0
	for idx < len(t.Points)-1 && !t.Points[idx+1].DT.After(when) {
		idx++
	}
	if idx == len(t.Points)-1 {
		return t.Points[idx].Orbit, nil
	}
	p0, p1 := t.Points[idx], t.Points[idx+1]
	h := p1.DT.Sub(p0.DT).Seconds()
	if h == 0 {
		return p0.Orbit, nil
	}
	s := when.Sub(p0.DT).Seconds() / h

	r0, v0 := p0.Orbit.RV()
	r1, v1 := p1.Orbit.RV()
	h00 := 2*s*s*s - 3*s*s + 1
	h10 := s*s*s - 2*s*s + s
	h01 := -2*s*s*s + 3*s*s
	h11 := s*s*s - s*s

	R := make([]float64, 3)
	V := make([]float64, 3)
	for i := 0; i < 3; i++ {
		R[i] = h00*r0[i] + h10*h*v0[i] + h01*r1[i] + h11*h*v1[i]
		// Velocity from the derivative of the Hermite basis w.r.t. s, scaled by 1/h.
		dh00 := (6*s*s - 6*s) / h
		dh10 := 3*s*s - 4*s + 1
		dh01 := (-6*s*s + 6*s) / h
		dh11 := 3*s*s - 2*s
		V[i] = dh00*r0[i] + dh10*v0[i] + dh01*r1[i] + dh11*v1[i]
	}
	return *NewOrbitFromRV(R, V, p0.Orbit.Origin), nil
}

type stringerTime time.Time

func (s stringerTime) String() string { return time.Time(s).Format(time.RFC3339) }

// FindBracketed returns every time at which ev.Fn crosses ev.Target,
// locating the crossing by bisection within the bracketing pair of
// recorded samples. Mirrors a trajectory "find_all" event search. The
// difference ev.Fn - ev.Target is taken as is, without wrapping, so an
// angular function that jumps by a full turn between samples also reads
// as a crossing.
func (t *Trajectory) FindBracketed(ev Event) ([]time.Time, error) {
	var crossings []time.Time
	if len(t.Points) < 2 {
		return nil, EventNotFoundError{Event: ev.Name}
	}
	prevVal := ev.Fn(t.Points[0].Orbit) - ev.Target
	for i := 1; i < len(t.Points); i++ {
		val := ev.Fn(t.Points[i].Orbit) - ev.Target
		if prevVal == 0 {
			crossings = append(crossings, t.Points[i-1].DT)
		} else if (prevVal < 0) != (val < 0) {
			lo, hi := t.Points[i-1].DT, t.Points[i].DT
			for iter := 0; iter < 40; iter++ {
				mid := lo.Add(hi.Sub(lo) / 2)
				o, err := t.At(mid)
				if err != nil {
					break
				}
				mVal := ev.Fn(o) - ev.Target
				if (mVal < 0) == (prevVal < 0) {
					lo = mid
				} else {
					hi = mid
				}
			}
			crossings = append(crossings, lo.Add(hi.Sub(lo)/2))
		}
		prevVal = val
	}
	if len(crossings) == 0 {
		return nil, EventNotFoundError{Event: ev.Name}
	}
	return crossings, nil
}

// Every returns the orbit sampled at a fixed cadence across the trajectory
// span, interpolating between recorded samples as needed.
func (t *Trajectory) Every(step time.Duration) ([]TrajectoryPoint, error) {
	if len(t.Points) == 0 {
		return nil, OutOfBoundsError{}
	}
	var out []TrajectoryPoint
	lo, hi := t.Points[0].DT, t.Points[len(t.Points)-1].DT
	for when := lo; !when.After(hi); when = when.Add(step) {
		o, err := t.At(when)
		if err != nil {
			return nil, err
		}
		out = append(out, TrajectoryPoint{when, o})
	}
	return out, nil
}

// Engine propagates an orbit forward in time under a Dynamics model,
// streaming accepted steps onto an optional channel and recording them into
// an optional Trajectory, with StatesChan as the producer/consumer channel
// and a context.Context for cancellation, using duration, event, and
// context-cancellation stop conditions
// in place of fixed waypoint-based stopping.
type Engine struct {
	Dynamics Dynamics
	Step     time.Duration
	Logger   kitlog.Logger

	// Adaptive selects the variable-step RK89 integrator over the
	// fixed-step RK4 below, configured by MinStep/MaxStep/AbsTol/RelTol;
	// Step is used as RK89's initial trial step when Adaptive is set.
	Adaptive bool
	MinStep  time.Duration
	MaxStep  time.Duration
	AbsTol   float64
	RelTol   float64

	// StatesChan, when non-nil, receives every accepted step; the caller
	// is responsible for draining it (and it is closed when the
	// propagation completes).
	StatesChan chan<- TrajectoryPoint
}

// NewEngine returns a fixed-step propagation engine with a go-kit logger,
// following the SCLogInit convention used throughout this package.
func NewEngine(dyn Dynamics, step time.Duration, logger kitlog.Logger) *Engine {
	return &Engine{Dynamics: dyn, Step: step, Logger: logger}
}

// NewAdaptiveEngine returns a propagation engine whose step is governed by
// the RK89 error controller, configured from a PropagatorConfig loaded via
// LoadPropagatorConfig: the with(initial_state) contract this toolkit
// exposes binds both the dynamics and the integrator.
func NewAdaptiveEngine(dyn Dynamics, cfg PropagatorConfig, logger kitlog.Logger) *Engine {
	return &Engine{
		Dynamics: dyn,
		Step:     time.Duration(cfg.StepSeconds * float64(time.Second)),
		Logger:   logger,
		Adaptive: cfg.AdaptiveStep,
		MinStep:  time.Duration(cfg.MinStepSeconds * float64(time.Second)),
		MaxStep:  time.Duration(cfg.MaxStepSeconds * float64(time.Second)),
		AbsTol:   cfg.AbsTol,
		RelTol:   cfg.RelTol,
	}
}

type engineIntegrable struct {
	e       *Engine
	orbit   Orbit
	dt      time.Time
	traj    *Trajectory
	ctx     context.Context
	untilDT time.Time
	event   *Event
	prevVal float64
	haveVal bool
	found   bool

	// stepSeconds, when set, reports the actual elapsed time of the step
	// just taken (RK89's trial step varies call to call); nil means the
	// fixed e.Step applies (the RK4 path).
	stepSeconds func() float64
	start       time.Time
	elapsed     float64 // seconds summed over the steps taken on the RK89 path
}

func (ei *engineIntegrable) GetState() []float64 {
	R, V := ei.orbit.RV()
	return []float64{R[0], R[1], R[2], V[0], V[1], V[2]}
}

func (ei *engineIntegrable) SetState(i uint64, s []float64) {
	ei.orbit = *NewOrbitFromRV([]float64{s[0], s[1], s[2]}, []float64{s[3], s[4], s[5]}, ei.orbit.Origin)
	if ei.stepSeconds != nil {
		// Convert the summed seconds once, so per-step nanosecond truncation
		// does not accumulate.
		ei.elapsed += ei.stepSeconds()
		ei.dt = ei.start.Add(time.Duration(ei.elapsed * float64(time.Second)))
	} else {
		ei.dt = ei.dt.Add(ei.e.Step)
	}
	if ei.traj != nil {
		ei.traj.Append(ei.dt, ei.orbit)
	}
	if ei.e.StatesChan != nil {
		ei.e.StatesChan <- TrajectoryPoint{ei.dt, ei.orbit}
	}
}

func (ei *engineIntegrable) Func(t float64, s []float64) []float64 {
	orbit := NewOrbitFromRV([]float64{s[0], s[1], s[2]}, []float64{s[3], s[4], s[5]}, ei.orbit.Origin)
	acc := ei.e.Dynamics.Acceleration(*orbit)
	return []float64{s[3], s[4], s[5], acc[0], acc[1], acc[2]}
}

func (ei *engineIntegrable) Stop(uint64) bool {
	if ei.ctx != nil {
		select {
		case <-ei.ctx.Done():
			return true
		default:
		}
	}
	if !ei.untilDT.IsZero() && !ei.dt.Before(ei.untilDT) {
		return true
	}
	if ei.event != nil {
		val := ei.event.Fn(ei.orbit) - ei.event.Target
		if ei.haveVal && (val < 0) != (ei.prevVal < 0) {
			ei.found = true
			return true
		}
		ei.prevVal = val
		ei.haveVal = true
	}
	return false
}

// ForDuration propagates for a fixed duration from the given orbit/epoch.
func (e *Engine) ForDuration(ctx context.Context, orbit Orbit, epoch time.Time, d time.Duration) (Orbit, time.Time, error) {
	return e.run(ctx, orbit, epoch, epoch.Add(d), nil, nil)
}

// ForDurationWithTrajectory propagates for a fixed duration, recording every
// accepted step into the returned Trajectory.
func (e *Engine) ForDurationWithTrajectory(ctx context.Context, orbit Orbit, epoch time.Time, d time.Duration) (Orbit, *Trajectory, error) {
	traj := &Trajectory{}
	traj.Append(epoch, orbit)
	o, _, err := e.run(ctx, orbit, epoch, epoch.Add(d), nil, traj)
	return o, traj, err
}

// UntilEvent propagates until ev.Fn crosses ev.Target (or the context is
// cancelled), returning the orbit and epoch at the step that detected the
// crossing.
func (e *Engine) UntilEvent(ctx context.Context, orbit Orbit, epoch time.Time, ev Event) (Orbit, time.Time, error) {
	return e.run(ctx, orbit, epoch, time.Time{}, &ev, nil)
}

func (e *Engine) run(ctx context.Context, orbit Orbit, epoch, untilDT time.Time, ev *Event, traj *Trajectory) (Orbit, time.Time, error) {
	integ := &engineIntegrable{e: e, orbit: orbit, dt: epoch, start: epoch, ctx: ctx, untilDT: untilDT, event: ev, traj: traj}

	var err error
	if e.Adaptive {
		// Event-bound runs have no a priori end time; give RK89 a span far
		// beyond any realistic scenario and let Stop() bound the loop.
		xEnd := 1e12
		if !untilDT.IsZero() {
			xEnd = untilDT.Sub(epoch).Seconds()
		}
		r := NewRK89(0, xEnd, e.Step.Seconds(), e.MinStep.Seconds(), e.MaxStep.Seconds(), e.AbsTol, e.RelTol, ErrNormRSS, integ)
		integ.stepSeconds = func() float64 { return r.LatestDetails().Step }
		_, _, err = r.Solve()
	} else {
		r := NewRK4(0, e.Step.Seconds(), integ)
		_, _, err = r.Solve()
	}
	if err != nil {
		return integ.orbit, integ.dt, err
	}
	if e.StatesChan != nil {
		close(e.StatesChan)
	}
	if ev != nil && !integ.found {
		return integ.orbit, integ.dt, EventNotFoundError{Event: ev.Name}
	}
	return integ.orbit, integ.dt, nil
}
