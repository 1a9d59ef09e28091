package smd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func newTestFilter(t *testing.T, gatingSigma float64) *Filter {
	t.Helper()
	p0 := mat.NewSymDense(2, []float64{1, 0, 0, 1})
	r := mat.NewSymDense(1, []float64{0.01})
	snc := mat.NewSymDense(2, []float64{1e-6, 0, 0, 1e-6})
	return NewFilter(p0, r, snc, gatingSigma)
}

func TestFilterRequiresSTMBeforeTimeUpdate(t *testing.T) {
	f := newTestFilter(t, 0)
	_, err := f.TimeUpdate(1, 60)
	require.Error(t, err)
	assert.IsType(t, StateTransitionMatrixNotUpdatedError{}, err)
}

func TestFilterRequiresHTildeBeforeMeasurementUpdate(t *testing.T) {
	f := newTestFilter(t, 0)
	f.UpdateSTM(Identity(2))
	_, err := f.TimeUpdate(1, 60)
	require.NoError(t, err)

	preFit := mat.NewVecDense(1, []float64{0.1})
	_, err = f.MeasurementUpdate(preFit)
	require.Error(t, err)
	assert.IsType(t, SensitivityNotUpdatedError{}, err)
}

func TestFilterMeasurementUpdateReducesCovariance(t *testing.T) {
	f := newTestFilter(t, 0)
	f.UpdateSTM(Identity(2))
	_, err := f.TimeUpdate(1, 60)
	require.NoError(t, err)
	h := mat.NewDense(1, 2, []float64{1, 0})
	f.UpdateHTilde(h)

	before := f.P.At(0, 0)
	preFit := mat.NewVecDense(1, []float64{0.01})
	est, err := f.MeasurementUpdate(preFit)
	require.NoError(t, err)
	assert.False(t, est.Residual.Rejected, "did not expect this measurement to be rejected")
	assert.Less(t, est.Covariance.At(0, 0), before, "expected covariance to shrink after an update")
}

func TestFilterGatingRejectsOutliers(t *testing.T) {
	f := newTestFilter(t, 3.0) // 3-sigma gate
	f.UpdateSTM(Identity(2))
	_, err := f.TimeUpdate(1, 60)
	require.NoError(t, err)
	h := mat.NewDense(1, 2, []float64{1, 0})
	f.UpdateHTilde(h)

	preFit := mat.NewVecDense(1, []float64{1000}) // wildly out of family
	est, err := f.MeasurementUpdate(preFit)
	require.NoError(t, err)
	assert.True(t, est.Residual.Rejected, "expected an outlier measurement to be rejected by the gate")
}

func TestFilterResetRestoresReferenceCovariance(t *testing.T) {
	f := newTestFilter(t, 0)
	f.UpdateSTM(Identity(2))
	_, err := f.TimeUpdate(1, 60)
	require.NoError(t, err)
	h := mat.NewDense(1, 2, []float64{1, 0})
	f.UpdateHTilde(h)
	_, err = f.MeasurementUpdate(mat.NewVecDense(1, []float64{0.01}))
	require.NoError(t, err)

	f.Reset()
	assert.Equal(t, f.P0.At(0, 0), f.P.At(0, 0))
	assert.Equal(t, f.P0.At(1, 1), f.P.At(1, 1))
}

func TestEKFTriggerActivatesAfterConsecutiveGoodMeasurements(t *testing.T) {
	trig := NewEKFTrigger(3)
	epoch := time.Now()
	assert.False(t, trig.Observe(epoch, false), "should not activate after 1 measurement")
	epoch = epoch.Add(time.Second)
	assert.False(t, trig.Observe(epoch, false), "should not activate after 2 measurements")
	epoch = epoch.Add(time.Second)
	assert.True(t, trig.Observe(epoch, false), "expected activation on the 3rd consecutive good measurement")
	assert.True(t, trig.Active, "expected trigger to report Active")
}

func TestEKFTriggerResetsOnRejection(t *testing.T) {
	trig := NewEKFTrigger(2)
	epoch := time.Now()
	trig.Observe(epoch, false)
	epoch = epoch.Add(time.Second)
	trig.Observe(epoch, true) // rejected, resets the streak
	epoch = epoch.Add(time.Second)
	assert.False(t, trig.Observe(epoch, false), "streak should have been reset by the rejection")
	assert.False(t, trig.Active, "should not yet be active")
}

func TestEKFTriggerDisarmsAfterLongGap(t *testing.T) {
	trig := NewEKFTrigger(2)
	trig.DisableAfter = 10 * time.Second
	epoch := time.Now()
	trig.Observe(epoch, false)
	epoch = epoch.Add(time.Second)
	require.True(t, trig.Observe(epoch, false), "expected activation on the 2nd consecutive good measurement")
	require.True(t, trig.Active)

	epoch = epoch.Add(30 * time.Second) // gap exceeds DisableAfter
	activated := trig.Observe(epoch, false)
	assert.False(t, activated, "a disarm-then-rearm within one call should not report a fresh activation")
	assert.False(t, trig.Active, "expected the trigger to disarm after the gap")
}

func TestEKFTriggerIgnoresGapsUnderThreshold(t *testing.T) {
	trig := NewEKFTrigger(2)
	trig.DisableAfter = 10 * time.Second
	epoch := time.Now()
	trig.Observe(epoch, false)
	epoch = epoch.Add(time.Second)
	trig.Observe(epoch, false)
	require.True(t, trig.Active)

	epoch = epoch.Add(5 * time.Second) // under the threshold
	trig.Observe(epoch, false)
	assert.True(t, trig.Active, "a short gap should not disarm the trigger")
}
