package smd

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func TestLoadPropagatorConfig(t *testing.T) {
	v := viper.New()
	v.Set("propagator.step_seconds", 10.0)
	v.Set("propagator.adaptive", true)
	v.Set("propagator.min_step_seconds", 0.1)
	v.Set("propagator.max_step_seconds", 60.0)
	v.Set("propagator.abs_tol", 1e-9)
	v.Set("propagator.enable_j2j3", true)

	c, err := LoadPropagatorConfig(v)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if c.StepSeconds != 10.0 || !c.AdaptiveStep || !c.EnableJ2J3 {
		t.Fatalf("config not loaded correctly: %+v", c)
	}
	dyn := c.Dynamics()
	if len(dyn.Forces) != 2 {
		t.Fatalf("expected two-body + J2J3, got %d forces", len(dyn.Forces))
	}
}

func TestLoadPropagatorConfigInvalidStep(t *testing.T) {
	v := viper.New()
	v.Set("propagator.step_seconds", 0.0)
	if _, err := LoadPropagatorConfig(v); err == nil {
		t.Fatal("expected an error for a non-positive step")
	}
}

func TestLoadODConfigDefaultsIterations(t *testing.T) {
	v := viper.New()
	v.Set("od.ekf_num_measurement", 15)
	v.Set("od.gating_sigma", 4.0)

	c, err := LoadODConfig(v)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if c.MaxIterations != 1 {
		t.Fatalf("expected MaxIterations to default to 1, got %d", c.MaxIterations)
	}
}

func TestLoadODConfigReadsDisableTime(t *testing.T) {
	v := viper.New()
	v.Set("od.ekf_num_measurement", 15)
	v.Set("od.disable_time", "10s")

	c, err := LoadODConfig(v)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if c.EKFDisableTime != 10*time.Second {
		t.Fatalf("expected EKFDisableTime of 10s, got %s", c.EKFDisableTime)
	}
}

func TestLoadODConfigRejectsZeroTrigger(t *testing.T) {
	v := viper.New()
	if _, err := LoadODConfig(v); err == nil {
		t.Fatal("expected an error when ekf_num_measurement is unset")
	}
}

func TestGaussMarkovConfigRoundTrip(t *testing.T) {
	g, err := NewGaussMarkov(time.Minute, 60e-5)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	cfg := FromGaussMarkov(g)
	out, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %s", err)
	}
	var roundTripped GaussMarkovConfig
	if err := yaml.Unmarshal(out, &roundTripped); err != nil {
		t.Fatalf("unmarshal: %s", err)
	}
	if roundTripped != cfg {
		t.Fatalf("round trip mismatch: %+v != %+v", roundTripped, cfg)
	}
	g2, err := roundTripped.ToGaussMarkov()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if g2.Tau != g.Tau || g2.ProcessNoise != g.ProcessNoise {
		t.Fatalf("gauss-markov mismatch after round trip: %+v != %+v", g2, g)
	}
}
