package smd

import (
	"math"
	"math/rand"
	"testing"
	"time"
)

func TestNewGaussMarkovRejectsNonPositiveTau(t *testing.T) {
	if _, err := NewGaussMarkov(0, 1.0); err == nil {
		t.Fatal("expected an error for a zero tau")
	}
	if _, err := NewGaussMarkov(-time.Second, 1.0); err == nil {
		t.Fatal("expected an error for a negative tau")
	}
}

func TestGaussMarkovVariance(t *testing.T) {
	g, err := NewGaussMarkov(time.Minute, 2.0)
	if err != nil {
		t.Fatal(err)
	}
	if v := g.Variance(); v != 4.0 {
		t.Fatalf("expected variance 4.0, got %f", v)
	}
}

func TestGaussMarkovSampleBounded(t *testing.T) {
	g, err := NewGaussMarkov(time.Minute, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(1))
	epoch := time.Now()
	for i := 0; i < 1000; i++ {
		s := g.Sample(epoch, rng)
		if s != s { // NaN check
			t.Fatalf("sample %d is NaN", i)
		}
		epoch = epoch.Add(time.Second)
	}
}

func TestGaussMarkovZeroProcessIsZero(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	g := ZeroGaussMarkov
	epoch := time.Now()
	for i := 0; i < 10; i++ {
		if s := g.Sample(epoch, rng); s != 0 {
			t.Fatalf("expected zero bias, got %f", s)
		}
		epoch = epoch.Add(time.Minute)
	}
}

// TestGaussMarkovSampleCompoundsPreviousOutput pins ProcessNoise at zero so
// the steady-state term drops out deterministically, isolating the decay
// recurrence: each call must decay the *previous returned bias*, not the
// original draw, so equal successive time steps must compound rather than
// repeat the same decay factor from a fixed base.
func TestGaussMarkovSampleCompoundsPreviousOutput(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	epoch0 := time.Now()
	g := GaussMarkov{Tau: time.Minute, ProcessNoise: 0, prevSample: 5.0, haveInit: true, havePrevEpoch: true, prevEpoch: epoch0}

	decay := math.Exp(-1.0) // dt == tau == one minute
	b1 := g.Sample(epoch0.Add(time.Minute), rng)
	wantB1 := 5.0 * decay
	if math.Abs(b1-wantB1) > 1e-9 {
		t.Fatalf("first sample = %f, want %f", b1, wantB1)
	}
	if g.prevSample != b1 {
		t.Fatalf("expected internal state to be updated to the returned bias, got %f want %f", g.prevSample, b1)
	}

	b2 := g.Sample(epoch0.Add(2*time.Minute), rng)
	wantB2 := b1 * decay // compounds from b1, NOT 5.0*decay again
	if math.Abs(b2-wantB2) > 1e-9 {
		t.Fatalf("second sample = %f, want %f (compounded from the previous output)", b2, wantB2)
	}
	if math.Abs(b2-b1) < 1e-9 {
		t.Fatal("expected the second sample to decay further from the first, not repeat it")
	}
}

func TestGaussMarkovScaled(t *testing.T) {
	g := DefaultRangeKm()
	scaled := g.Scaled(2.0)
	if scaled.ProcessNoise != 2*g.ProcessNoise {
		t.Fatalf("expected doubled process noise, got %f", scaled.ProcessNoise)
	}
	if scaled.Tau != g.Tau {
		t.Fatal("expected tau to be unchanged by Scaled")
	}
}

func TestDefaultNoiseModels(t *testing.T) {
	if DefaultRangeKm().Tau != time.Minute {
		t.Fatal("expected default range noise tau of one minute")
	}
	if DefaultDopplerKmS().Tau != time.Minute {
		t.Fatal("expected default Doppler noise tau of one minute")
	}
}
