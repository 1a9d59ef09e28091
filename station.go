package smd

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

const (
	r2d = 180 / math.Pi
	d2r = 1 / r2d
)

var (
	σρ2    = math.Pow(5e-3, 2) // km, squared for the variance
	σρDot2 = math.Pow(5e-6, 2) // km/s, squared for the variance
)

// DSS34Canberra, DSS65Madrid and DSS13Goldstone are the three builtin Deep
// Space Network stations scenarios configure by name.
// Constructed lazily by BuiltinStationFromName since a Station now owns an
// injected RNG (no package-level state may carry a hidden random source).
func dssCanberra(rng *rand.Rand) Station {
	return NewSpecialStation("DSS34Canberra", 0.691750, 0, -35.398333, 148.981944, σρ2, σρDot2, 6, rng)
}
func dssMadrid(rng *rand.Rand) Station {
	return NewSpecialStation("DSS65Madrid", 0.834939, 0, 40.427222, 4.250556, σρ2, σρDot2, 6, rng)
}
func dssGoldstone(rng *rand.Rand) Station {
	return NewSpecialStation("DSS13Goldstone", 1.07114904, 0, 35.247164, 243.205, σρ2, σρDot2, 6, rng)
}

// Station defines a ground station: its fixed ECEF geometry, its white
// measurement noise, and an optional Gauss-Markov bias process per
// measurement channel (range and range-rate), layered over a
// white-noise-only model with the correlated station bias the OD core needs
// to exercise EKF activation gating realistically.
type Station struct {
	Name                       string
	R, V                       []float64 // position and velocity in ECEF
	LatΦ, Longθ                float64   // radians
	Altitude, Elevation        float64
	RangeNoise, RangeRateNoise *distmv.Normal
	RangeBias, RangeRateBias   GaussMarkov
	Planet                     CelestialObject
	rowsH                      int // 7 when also estimating Cr
	rng                        *rand.Rand
}

// PerformMeasurement returns the (possibly invisible) measurement of the
// given true state, corrupting it with white noise plus the station's
// Gauss-Markov bias realized at the state's epoch.
func (s *Station) PerformMeasurement(θgst float64, state State) Measurement {
	rECEF := ECI2ECEF(state.Orbit.R(), θgst)
	vECEF := ECI2ECEF(state.Orbit.V(), θgst)
	ρECEF, ρ, el, _ := s.RangeElAz(rECEF)
	vDiffECEF := make([]float64, 3)
	for i := 0; i < 3; i++ {
		vDiffECEF[i] = (vECEF[i] - s.V[i]) / ρ
	}
	ρDot := Dot(ρECEF, vDiffECEF)

	ρNoisy := ρ + s.RangeNoise.Rand(nil)[0] + s.RangeBias.Sample(state.DT, s.rng)
	ρDotNoisy := ρDot + s.RangeRateNoise.Rand(nil)[0] + s.RangeRateBias.Sample(state.DT, s.rng)
	return Measurement{el >= s.Elevation, ρNoisy, ρDotNoisy, ρ, ρDot, θgst, state, *s}
}

// RangeElAz returns the ECEF range vector from the station, its norm, and
// the elevation and azimuth (in degrees, from the SEZ frame) of a given R
// vector in ECEF.
func (s Station) RangeElAz(rECEF []float64) (ρECEF []float64, ρ, el, az float64) {
	ρECEF = make([]float64, 3)
	for i := 0; i < 3; i++ {
		ρECEF[i] = rECEF[i] - s.R[i]
	}
	ρ = Norm(ρECEF)
	rSEZ := MxV33(R3(s.Longθ), ρECEF)
	rSEZ = MxV33(R2(math.Pi/2-s.LatΦ), rSEZ)
	el = math.Asin(rSEZ[2]/ρ) * r2d
	az = (2*math.Pi + math.Atan2(rSEZ[1], -rSEZ[0])) * r2d
	return
}

func (s Station) String() string {
	return fmt.Sprintf("%s (%f,%f); alt = %f km; el = %f deg", s.Name, s.LatΦ/d2r, s.Longθ/d2r, s.Altitude, s.Elevation)
}

// NewStation returns a new station with no measurement bias. Angles in
// degrees. The caller's RNG is used for both white noise and bias sampling.
func NewStation(name string, altitude, elevation, latΦ, longθ, σρ, σρDot float64, rng *rand.Rand) Station {
	return NewSpecialStation(name, altitude, elevation, latΦ, longθ, σρ, σρDot, 6, rng)
}

// NewSpecialStation is NewStation but lets the caller specify the number of
// rows of H (7 when the filter also estimates a solar radiation pressure
// coefficient alongside position and velocity).
func NewSpecialStation(name string, altitude, elevation, latΦ, longθ, σρ, σρDot float64, rowsH int, rng *rand.Rand) Station {
	R := GEO2ECEF(altitude, latΦ*d2r, longθ*d2r)
	V := Cross([]float64{0, 0, EarthRotationRate}, R)
	ρNoise, ok := distmv.NewNormal([]float64{0}, mat.NewSymDense(1, []float64{σρ}), rng)
	if !ok {
		panic("station range noise covariance is not positive definite")
	}
	ρDotNoise, ok := distmv.NewNormal([]float64{0}, mat.NewSymDense(1, []float64{σρDot}), rng)
	if !ok {
		panic("station range-rate noise covariance is not positive definite")
	}
	return Station{name, R, V, latΦ * d2r, longθ * d2r, altitude, elevation, ρNoise, ρDotNoise, ZeroGaussMarkov, ZeroGaussMarkov, Earth, rowsH, rng}
}

// WithBias returns a copy of this station with the given Gauss-Markov range
// and range-rate bias processes attached.
func (s Station) WithBias(rangeBias, rangeRateBias GaussMarkov) Station {
	s.RangeBias = rangeBias
	s.RangeRateBias = rangeRateBias
	return s
}

// Measurement stores a single range/range-rate observation of a station.
type Measurement struct {
	Visible                  bool
	Range, RangeRate         float64
	TrueRange, TrueRangeRate float64
	Timeθgst                 float64
	State                    State
	Station                  Station
}

// IsNil returns whether this is the zero-value measurement.
func (m Measurement) IsNil() bool {
	return m.Range == m.RangeRate && m.RangeRate == 0
}

// StateVector returns the observation as a 2-vector.
func (m Measurement) StateVector() *mat.VecDense {
	return mat.NewVecDense(2, []float64{m.Range, m.RangeRate})
}

// HTilde returns the measurement sensitivity matrix for this observation,
// the partial of (range, range-rate) with respect to the spacecraft state.
func (m Measurement) HTilde() *mat.Dense {
	stationR := ECEF2ECI(m.Station.R, m.Timeθgst)
	stationV := ECEF2ECI(m.Station.V, m.Timeθgst)
	xS, yS, zS := stationR[0], stationR[1], stationR[2]
	xSDot, ySDot, zSDot := stationV[0], stationV[1], stationV[2]
	R := m.State.Orbit.R()
	V := m.State.Orbit.V()
	x, y, z := R[0], R[1], R[2]
	xDot, yDot, zDot := V[0], V[1], V[2]
	H := mat.NewDense(2, m.Station.rowsH, nil)
	H.Set(0, 0, (x-xS)/m.Range)
	H.Set(0, 1, (y-yS)/m.Range)
	H.Set(0, 2, (z-zS)/m.Range)
	H.Set(1, 0, (xDot-xSDot)/m.Range-(m.RangeRate/math.Pow(m.Range, 2))*(x-xS))
	H.Set(1, 1, (yDot-ySDot)/m.Range-(m.RangeRate/math.Pow(m.Range, 2))*(y-yS))
	H.Set(1, 2, (zDot-zSDot)/m.Range-(m.RangeRate/math.Pow(m.Range, 2))*(z-zS))
	H.Set(1, 3, (x-xS)/m.Range)
	H.Set(1, 4, (y-yS)/m.Range)
	H.Set(1, 5, (z-zS)/m.Range)
	return H
}

// CSV returns the truth and noisy range/range-rate as CSV (no newline).
func (m Measurement) CSV() string {
	return fmt.Sprintf("%f,%f,%f,%f,", m.TrueRange, m.TrueRangeRate, m.Range, m.RangeRate)
}

// ShortCSV returns only the noisy range/range-rate as CSV (no newline).
func (m Measurement) ShortCSV() string {
	return fmt.Sprintf("%f,%f,", m.Range, m.RangeRate)
}

func (m Measurement) String() string {
	return fmt.Sprintf("%s@%s", m.Station.Name, m.State.DT)
}

// BuiltinStationFromName returns one of the three Deep Space Network
// stations, looked up by name.
func BuiltinStationFromName(name string, rng *rand.Rand) Station {
	switch strings.ToLower(name) {
	case "dss13":
		return dssGoldstone(rng)
	case "dss34":
		return dssCanberra(rng)
	case "dss65":
		return dssMadrid(rng)
	default:
		panic(fmt.Errorf("unknown station `%s`", name))
	}
}
