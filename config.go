package smd

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// PropagatorConfig configures an Engine/RK89 run: the step control and the
// force models to enable. Loaded via the same hierarchical viper.GetString/
// viper.GetFloat64 reads used throughout this package, keyed on the
// propagator and OD parameters scenarios actually exercise.
type PropagatorConfig struct {
	StepSeconds    float64
	AdaptiveStep   bool
	MinStepSeconds float64
	MaxStepSeconds float64
	AbsTol         float64
	RelTol         float64
	EnableJ2J3     bool
	EnableDrag     bool
	DragAreaM2     float64
	DragCd         float64
}

// ODConfig configures a Filter/ODProcess run.
type ODConfig struct {
	GatingSigma       float64
	EKFNumMeasurement int
	// EKFDisableTime disarms an active EKF trigger and reverts to CKF once
	// the gap between two successive measurements exceeds it.
	EKFDisableTime  time.Duration
	SNCWindow       time.Duration
	SmoothAfterEach bool
	MaxIterations   int
	RMSImprovement  float64
}

// LoadPropagatorConfig reads a PropagatorConfig from the given viper
// instance under the "propagator." key prefix, validating the invariants
// the propagator core depends on (positive, ordered step bounds).
func LoadPropagatorConfig(v *viper.Viper) (PropagatorConfig, error) {
	c := PropagatorConfig{
		StepSeconds:    v.GetFloat64("propagator.step_seconds"),
		AdaptiveStep:   v.GetBool("propagator.adaptive"),
		MinStepSeconds: v.GetFloat64("propagator.min_step_seconds"),
		MaxStepSeconds: v.GetFloat64("propagator.max_step_seconds"),
		AbsTol:         v.GetFloat64("propagator.abs_tol"),
		RelTol:         v.GetFloat64("propagator.rel_tol"),
		EnableJ2J3:     v.GetBool("propagator.enable_j2j3"),
		EnableDrag:     v.GetBool("propagator.enable_drag"),
		DragAreaM2:     v.GetFloat64("propagator.drag_area_m2"),
		DragCd:         v.GetFloat64("propagator.drag_cd"),
	}
	if c.StepSeconds <= 0 {
		return c, InvalidConfigError{Field: "propagator.step_seconds", Reason: "must be positive"}
	}
	if c.AdaptiveStep && (c.MinStepSeconds <= 0 || c.MaxStepSeconds < c.MinStepSeconds) {
		return c, InvalidConfigError{Field: "propagator.min_step_seconds/max_step_seconds", Reason: "must satisfy 0 < min <= max"}
	}
	return c, nil
}

// LoadODConfig reads an ODConfig from the given viper instance under the
// "od." key prefix.
func LoadODConfig(v *viper.Viper) (ODConfig, error) {
	c := ODConfig{
		GatingSigma:       v.GetFloat64("od.gating_sigma"),
		EKFNumMeasurement: v.GetInt("od.ekf_num_measurement"),
		EKFDisableTime:    v.GetDuration("od.disable_time"),
		SNCWindow:         v.GetDuration("od.snc_window"),
		SmoothAfterEach:   v.GetBool("od.smooth_after_each"),
		MaxIterations:     v.GetInt("od.max_iterations"),
		RMSImprovement:    v.GetFloat64("od.rms_improvement"),
	}
	if c.EKFNumMeasurement <= 0 {
		return c, InvalidConfigError{Field: "od.ekf_num_measurement", Reason: "must be positive"}
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = 1
	}
	return c, nil
}

// Dynamics builds a Dynamics aggregate from this propagator configuration.
func (c PropagatorConfig) Dynamics() Dynamics {
	var extra []ForceModel
	if c.EnableJ2J3 {
		extra = append(extra, J2J3{})
	}
	if c.EnableDrag {
		extra = append(extra, ExpDrag{AreaM2: c.DragAreaM2, Cd: c.DragCd})
	}
	return NewDynamics(extra...)
}

// GaussMarkovConfig is the on-disk representation of a GaussMarkov process,
// since time.Duration does not round-trip through viper/YAML on its own.
type GaussMarkovConfig struct {
	TauSeconds   float64 `yaml:"tau_seconds"`
	ProcessNoise float64 `yaml:"process_noise"`
}

// ToGaussMarkov converts the on-disk representation into a GaussMarkov.
func (c GaussMarkovConfig) ToGaussMarkov() (GaussMarkov, error) {
	return NewGaussMarkov(time.Duration(c.TauSeconds*float64(time.Second)), c.ProcessNoise)
}

// FromGaussMarkov converts a GaussMarkov into its on-disk representation.
func FromGaussMarkov(g GaussMarkov) GaussMarkovConfig {
	return GaussMarkovConfig{TauSeconds: g.Tau.Seconds(), ProcessNoise: g.ProcessNoise}
}

func (c GaussMarkovConfig) String() string {
	return fmt.Sprintf("tau=%gs sigma=%g", c.TauSeconds, c.ProcessNoise)
}
