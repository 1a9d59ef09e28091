package smd

import (
	"fmt"
	"strings"
)

const (
	// AU is one astronomical unit in kilometers.
	AU = 1.49597870700e8
	// EarthRotationRate is Earth's sidereal rotation rate in rad/s.
	EarthRotationRate = 7.29211585530e-5
)

// CelestialObject defines a celestial body's gravitational and shape
// parameters. It is intentionally a plain, immutable value: the
// ephemeris/frame service is an external, read-only collaborator shared by
// reference, never mutated after construction.
type CelestialObject struct {
	Name   string
	Radius float64
	a      float64
	μ      float64
	tilt   float64 // Axial tilt
	incl   float64 // Ecliptic inclination
	SOI    float64 // With respect to the Sun
	J2     float64
	J3     float64
	J4     float64
}

// GM returns μ (which is unexported because it's a lowercase letter).
func (c CelestialObject) GM() float64 {
	return c.μ
}

// J returns the perturbing J_n factor for the provided n.
// Currently only J2, J3 and J4 are supported.
func (c CelestialObject) J(n uint8) float64 {
	switch n {
	case 2:
		return c.J2
	case 3:
		return c.J3
	case 4:
		return c.J4
	default:
		return 0.0
	}
}

// String implements the Stringer interface.
func (c CelestialObject) String() string {
	return c.Name + " body"
}

// Equals returns whether the provided celestial object is the same.
func (c CelestialObject) Equals(b CelestialObject) bool {
	return c.Name == b.Name && c.Radius == b.Radius && c.a == b.a && c.μ == b.μ && c.SOI == b.SOI && c.J2 == b.J2
}

// CelestialObjectFromString returns the object from its name.
func CelestialObjectFromString(name string) (CelestialObject, error) {
	switch strings.ToLower(name) {
	case "sun":
		return Sun, nil
	case "earth":
		return Earth, nil
	case "mars":
		return Mars, nil
	default:
		return CelestialObject{}, fmt.Errorf("undefined celestial object %q", name)
	}
}

/* Definitions. Only the bodies exercised by the scenarios in this toolkit
are kept; a full solar system ephemeris is out of scope. */

// Sun is our closest star.
var Sun = CelestialObject{"Sun", 695700, -1, 1.32712440017987e11, 0.0, 0.0, -1, 0, 0, 0}

// Earth is home.
var Earth = CelestialObject{"Earth", 6378.1363, 149598023, 3.98600433e5, 23.4, 0.00005, 924645.0, 1082.6269e-6, -2.5324e-6, -1.6204e-6}

// Mars is the vacation place.
var Mars = CelestialObject{"Mars", 3396.19, 227939282.5616, 4.28283100e4, 25.19, 1.85, 576000, 1964e-6, 36e-6, -18e-6}

// Frame names a reference frame tag. The frame tag changes only through an
// explicit frame-change operation that rewrites the state vector
// consistently; it is never mutated in place.
type Frame string

const (
	// EME2000 is the Earth-centered inertial frame used throughout the
	// example scenarios.
	EME2000 Frame = "EME2000"
	// ECEF is Earth's body-fixed rotating frame, used by ground stations.
	ECEF Frame = "ECEF"
)

// Cosm is the pure, deterministic ephemeris/frame service collaborator. It
// is read-only once constructed and is shared by reference across
// dynamics, ground stations and the OD process -- no mutation, no
// singletons, no cyclic back-references: the service is a pure function of
// its inputs. It never shells out to an external ephemeris process and
// never touches the filesystem.
type Cosm struct {
	bodies map[string]CelestialObject
}

// DefaultCosm returns a Cosm seeded with the bodies this toolkit exercises.
func DefaultCosm() *Cosm {
	return &Cosm{bodies: map[string]CelestialObject{
		"Sun":   Sun,
		"Earth": Earth,
		"Mars":  Mars,
	}}
}

// GeoidFromID returns the celestial body registered under the given name.
func (c *Cosm) GeoidFromID(id string) (CelestialObject, error) {
	body, ok := c.bodies[id]
	if !ok {
		return CelestialObject{}, fmt.Errorf("unknown body %q", id)
	}
	return body, nil
}

// FrameFor returns the frame tag this Cosm associates with a body's
// natural inertial frame. Only Earth has a rotating companion frame.
func (c *Cosm) FrameFor(id string) (Frame, error) {
	if _, err := c.GeoidFromID(id); err != nil {
		return "", err
	}
	return EME2000, nil
}

// RotatingFrameAngle returns the sidereal angle θgst (rad) of the body's
// body-fixed frame relative to its inertial frame at the given number of
// seconds since the inertial frame's reference epoch. Only Earth's rotation
// is modeled, covering the ground station use case.
func (c *Cosm) RotatingFrameAngle(id string, secondsSinceEpoch float64) (float64, error) {
	if _, err := c.GeoidFromID(id); err != nil {
		return 0, err
	}
	return EarthRotationRate * secondsSinceEpoch, nil
}
