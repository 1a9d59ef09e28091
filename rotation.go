package smd

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Rot313Vec converts a given vector from PQW frame to ECI frame.
func Rot313Vec(θ1, θ2, θ3 float64, vI []float64) []float64 {
	return MxV33(R3R1R3(θ1, θ2, θ3), vI)
}

// R3R1R3 performs a 3-1-3 Euler parameter rotation.
// From Schaub and Junkins (the one in Vallado is wrong... surprinsingly, right? =/)
func R3R1R3(θ1, θ2, θ3 float64) *mat.Dense {
	sθ1, cθ1 := math.Sincos(θ1)
	sθ2, cθ2 := math.Sincos(θ2)
	sθ3, cθ3 := math.Sincos(θ3)
	return mat.NewDense(3, 3, []float64{cθ3*cθ1 - sθ3*cθ2*sθ1, cθ3*sθ1 + sθ3*cθ2*cθ1, sθ3 * sθ2,
		-sθ3*cθ1 - cθ3*cθ2*sθ1, -sθ3*sθ1 + cθ3*cθ2*cθ1, cθ3 * sθ2,
		sθ2 * sθ1, -sθ2 * cθ1, cθ2})
}

// R1 rotation about the 1st axis.
func R1(x float64) *mat.Dense {
	s, c := math.Sincos(x)
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, c, s, 0, -s, c})
}

// R2 rotation about the 2nd axis.
func R2(x float64) *mat.Dense {
	s, c := math.Sincos(x)
	return mat.NewDense(3, 3, []float64{c, 0, -s, 0, 1, 0, s, 0, c})
}

// R3 rotation about the 3rd axis.
func R3(x float64) *mat.Dense {
	s, c := math.Sincos(x)
	return mat.NewDense(3, 3, []float64{c, s, 0, -s, c, 0, 0, 0, 1})
}

// MxV33 multiplies a 3x3 matrix with a 3-vector. Note that there is no dimension check!
func MxV33(m *mat.Dense, v []float64) []float64 {
	var r mat.VecDense
	r.MulVec(m, mat.NewVecDense(len(v), v))
	return []float64{r.AtVec(0), r.AtVec(1), r.AtVec(2)}
}

// ECI2ECEF rotates an inertial (EME2000-like) vector into the Earth-fixed
// frame given the Greenwich sidereal angle θgst, the pure rotation the
// celestial/frame service performs for ground station geometry.
func ECI2ECEF(vECI []float64, θgst float64) []float64 {
	return MxV33(R3(θgst), vECI)
}

// ECEF2ECI is the inverse of ECI2ECEF.
func ECEF2ECI(vECEF []float64, θgst float64) []float64 {
	return MxV33(R3(-θgst), vECEF)
}

// GEO2ECEF converts a geodetic (altitude above the reference radius, latitude,
// longitude, all radians except altitude in km) position into the body-fixed
// ECEF frame, treating the body as a sphere of Earth's equatorial radius.
func GEO2ECEF(altitude, latΦ, longθ float64) []float64 {
	r := Earth.Radius + altitude
	sLat, cLat := math.Sincos(latΦ)
	sLon, cLon := math.Sincos(longθ)
	return []float64{r * cLat * cLon, r * cLat * sLon, r * sLat}
}
