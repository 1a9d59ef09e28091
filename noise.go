package smd

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/stat/distuv"
)

// GaussMarkov is a first order Gauss-Markov process for modeling a slowly
// varying bias, per section 5.2.4 of the NASA Best Practices for Navigation
// Filters. The process is
//
//	ḃ(t) = -1/τ b(t) + w(t)
//
// and is realized by sampling b(t) ~ N(0, p_b(t)) where the steady-state
// variance decays the previous sample and adds fresh process noise scaled
// by the elapsed time since the last sample. An RNG is always supplied by
// the caller: this toolkit never reaches for a hidden global source.
type GaussMarkov struct {
	Tau           time.Duration
	ProcessNoise  float64 // σ of the steady-state process
	prevEpoch     time.Time
	havePrevEpoch bool
	prevSample    float64
	haveInit      bool
}

// ZeroGaussMarkov is the degenerate process that always returns zero bias.
var ZeroGaussMarkov = GaussMarkov{Tau: time.Duration(1<<63 - 1), ProcessNoise: 0}

// DefaultRangeKm is the DSN range noise from DESCANSO Chapter 3, Table 3-3:
// 60 cm over a 60 second average.
func DefaultRangeKm() GaussMarkov {
	return GaussMarkov{Tau: time.Minute, ProcessNoise: 60.0e-5}
}

// DefaultDopplerKmS is the DSN Doppler noise from DESCANSO Chapter 3, Table
// 3-3: 0.03 mm/s over a 60 second average.
func DefaultDopplerKmS() GaussMarkov {
	return GaussMarkov{Tau: time.Minute, ProcessNoise: 0.03e-6}
}

// NewGaussMarkov validates tau and builds a process.
func NewGaussMarkov(tau time.Duration, processNoise float64) (GaussMarkov, error) {
	if tau <= 0 {
		return GaussMarkov{}, fmt.Errorf("smd: tau must be positive, got %s", tau)
	}
	return GaussMarkov{Tau: tau, ProcessNoise: processNoise}, nil
}

// Variance returns the stationary variance of the process, σ².
func (g GaussMarkov) Variance() float64 {
	return g.ProcessNoise * g.ProcessNoise
}

// Sample returns the next bias realization at the given epoch, advancing
// the process's internal state (prevEpoch, prevSample) on every call: the
// recurrence decays the previously returned bias, not the first draw.
func (g *GaussMarkov) Sample(epoch time.Time, rng *rand.Rand) float64 {
	var dtS float64
	if g.havePrevEpoch {
		dtS = epoch.Sub(g.prevEpoch).Seconds()
	}
	g.prevEpoch = epoch
	g.havePrevEpoch = true

	if !g.haveInit {
		g.prevSample = distuv.Normal{Mu: 0, Sigma: g.ProcessNoise, Src: rng}.Rand()
		g.haveInit = true
		return g.prevSample
	}

	tauS := g.Tau.Seconds()
	decay := math.Exp(-dtS / tauS)
	antiDecay := 1 - decay

	steadyNoise := 0.5 * g.ProcessNoise * tauS * antiDecay
	ssSample := distuv.Normal{Mu: 0, Sigma: steadyNoise, Src: rng}.Rand()

	b := g.prevSample*decay + ssSample
	g.prevSample = b
	return b
}

// Scaled returns a copy of this process with the process noise scaled by k,
// resetting any accumulated sample state.
func (g GaussMarkov) Scaled(k float64) GaussMarkov {
	return GaussMarkov{Tau: g.Tau, ProcessNoise: g.ProcessNoise * k}
}

func (g GaussMarkov) String() string {
	return fmt.Sprintf("Gauss-Markov process τ=%s σ=%g", g.Tau, g.ProcessNoise)
}
