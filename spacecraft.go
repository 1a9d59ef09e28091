package smd

import (
	"os"

	kitlog "github.com/go-kit/kit/log"
)

// Spacecraft is the minimal physical payload carried by a State: enough
// mass properties to attribute a trajectory and a spacecraft-scoped
// logger. Electric-propulsion thrusters, waypoints and cargo for mission
// design are out of scope for this toolkit's
// propagator/OD core, so only the identity and logging concerns survive,
// adapted rather than dropped outright.
type Spacecraft struct {
	Name     string
	DryMass  float64
	FuelMass float64
	logger   kitlog.Logger
}

// SCLogInit initializes a spacecraft-scoped go-kit logger, following the
// same ambient logging idiom used throughout this package.
func SCLogInit(name string) kitlog.Logger {
	klog := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stdout))
	klog = kitlog.With(klog, "spacecraft", name)
	return klog
}

// Mass returns the vehicle's total mass, refusing to report a massless
// vehicle.
func (sc *Spacecraft) Mass() float64 {
	m := sc.DryMass + sc.FuelMass
	if m <= 0 {
		m = 1
	}
	return m
}

// NewEmptySC returns a named spacecraft with no fuel and an initialized
// logger, used as the placeholder payload of OD-only states.
func NewEmptySC(name string, mass uint) *Spacecraft {
	return &Spacecraft{Name: name, DryMass: float64(mass), logger: SCLogInit(name)}
}
