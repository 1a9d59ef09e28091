package smd

import "fmt"

// InvalidConfigError reports a malformed configuration value caught before
// any propagation or filtering begins.
type InvalidConfigError struct {
	Field  string
	Reason string
}

func (e InvalidConfigError) Error() string {
	return fmt.Sprintf("smd: invalid config field %q: %s", e.Field, e.Reason)
}

// StateTransitionMatrixNotUpdatedError is returned by TimeUpdate when it is
// called without a fresh Φ having been supplied through UpdateSTM.
type StateTransitionMatrixNotUpdatedError struct{}

func (StateTransitionMatrixNotUpdatedError) Error() string {
	return "smd: state transition matrix has not been propagated to the measurement epoch"
}

// SensitivityNotUpdatedError is returned when a measurement update is
// attempted before HTilde has been computed for the current measurement.
type SensitivityNotUpdatedError struct{}

func (SensitivityNotUpdatedError) Error() string {
	return "smd: measurement sensitivity matrix H has not been computed for this measurement"
}

// GainSingularError is returned when the innovation covariance is singular
// (or numerically indistinguishable from singular) and the Kalman gain
// cannot be computed.
type GainSingularError struct {
	Reason string
}

func (e GainSingularError) Error() string {
	return fmt.Sprintf("smd: innovation covariance is singular, cannot compute Kalman gain: %s", e.Reason)
}

// StepBelowMinimumError is kept as a distinguishable error type for callers
// that need to propagate a hard integration failure (e.g. a synthetic run
// error fed into Iterate); RK89.Solve itself never returns it, since a step
// below the configured floor is accepted and recorded as a diagnostic
// rather than treated as fatal.
type StepBelowMinimumError struct {
	At, Step float64
}

func (e StepBelowMinimumError) Error() string {
	return fmt.Sprintf("smd: step size %g at x=%g is below the configured minimum", e.Step, e.At)
}

// OutOfBoundsError is returned when a trajectory is queried or interpolated
// outside the span it was propagated over.
type OutOfBoundsError struct {
	Requested, Lo, Hi fmt.Stringer
}

func (e OutOfBoundsError) Error() string {
	return fmt.Sprintf("smd: requested %s is outside trajectory span [%s, %s]", e.Requested, e.Lo, e.Hi)
}

// EventNotFoundError is returned when an event search exhausts the
// trajectory span without finding a sign change in the event function.
type EventNotFoundError struct {
	Event string
}

func (e EventNotFoundError) Error() string {
	return fmt.Sprintf("smd: event %q not found over the searched span", e.Event)
}

// IterationDivergedError is returned by the OD iteration loop when every one
// of the configured number of attempts still improved the residual RMS by
// at least the configured fraction, so the loop never settled.
type IterationDivergedError struct {
	Attempts int
	LastRMS  float64
}

func (e IterationDivergedError) Error() string {
	return fmt.Sprintf("smd: OD iteration diverged after %d attempts, last residual RMS %g", e.Attempts, e.LastRMS)
}

// CovarianceNotPSDError is returned when a covariance update would produce a
// matrix with a negative diagonal entry, i.e. not positive semi-definite.
// Returned rather than a panic so the filter can hand control back to the
// OD process, which rejects the update and falls back to the prior
// covariance rather than crashing the loop.
type CovarianceNotPSDError struct {
	Index int
	Value float64
}

func (e CovarianceNotPSDError) Error() string {
	return fmt.Sprintf("smd: covariance update produced a negative diagonal entry P[%d,%d]=%g", e.Index, e.Index, e.Value)
}
