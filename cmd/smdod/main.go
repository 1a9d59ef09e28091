// Command smdod runs a batch orbit-determination scenario: it loads a
// reference orbit, a propagator/OD configuration, and a measurement file
// from a scenario TOML, runs the sequential filter across the
// measurements, optionally iterates with backward smoothing, and writes
// the resulting estimates and processed measurements to CSV.
package main

import (
	"encoding/csv"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/skyforge/smd"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gonum.org/v1/gonum/mat"
)

var (
	scenarioPath string
	outPrefix    string
	seed         int64
)

func main() {
	root := &cobra.Command{
		Use:   "smdod",
		Short: "Run a batch orbit-determination scenario",
		RunE:  run,
	}
	root.Flags().StringVar(&scenarioPath, "scenario", "", "scenario TOML file (required)")
	root.Flags().StringVar(&outPrefix, "out", "smdod", "output file prefix for estimates.csv/measurements.csv")
	root.Flags().Int64Var(&seed, "seed", 42, "RNG seed for station noise")
	root.MarkFlagRequired("scenario") //nolint:errcheck // cobra reports the error itself

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	v := viper.New()
	v.SetConfigFile(scenarioPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading %s: %w", scenarioPath, err)
	}

	propConf, err := smd.LoadPropagatorConfig(v)
	if err != nil {
		return fmt.Errorf("propagator config: %w", err)
	}
	odConf, err := smd.LoadODConfig(v)
	if err != nil {
		return fmt.Errorf("od config: %w", err)
	}

	origin, err := smd.CelestialObjectFromString(v.GetString("orbit.origin"))
	if err != nil {
		return fmt.Errorf("orbit.origin: %w", err)
	}
	refOrbit := smd.NewOrbitFromOE(
		v.GetFloat64("orbit.sma_km"),
		v.GetFloat64("orbit.ecc"),
		v.GetFloat64("orbit.inc_deg"),
		v.GetFloat64("orbit.raan_deg"),
		v.GetFloat64("orbit.argp_deg"),
		v.GetFloat64("orbit.ta_deg"),
		origin,
	)
	refEpoch, err := time.Parse(time.RFC3339, v.GetString("mission.start"))
	if err != nil {
		return fmt.Errorf("mission.start: %w", err)
	}
	step := v.GetDuration("mission.step")
	if step <= 0 {
		step = 10 * time.Second
	}

	rng := rand.New(rand.NewSource(seed))
	stations := map[string]smd.Station{}
	for _, name := range v.GetStringSlice("stations.builtin") {
		stations[strings.ToLower(name)] = smd.BuiltinStationFromName(name, rng)
	}

	measurements, err := loadMeasurements(v.GetString("measurements.file"), stations)
	if err != nil {
		return fmt.Errorf("loading measurements: %w", err)
	}

	dyn := propConf.Dynamics()
	const n = 6
	p0 := diagSym(n, v.GetFloat64("od.initial_covariance"))
	r := mat.NewSymDense(2, []float64{
		v.GetFloat64("od.range_sigma_km") * v.GetFloat64("od.range_sigma_km"), 0,
		0, v.GetFloat64("od.rangerate_sigma_kms") * v.GetFloat64("od.rangerate_sigma_kms"),
	})
	snc := diagSym(n, v.GetFloat64("od.snc_sigma"))
	filter := smd.NewFilter(p0, r, snc, odConf.GatingSigma)
	trigger := smd.NewEKFTrigger(odConf.EKFNumMeasurement)
	trigger.DisableAfter = odConf.EKFDisableTime

	iterConf := smd.IterationConf{
		MaxIterations:   odConf.MaxIterations,
		RMSImprovement:  odConf.RMSImprovement,
		SmoothAfterEach: odConf.SmoothAfterEach,
	}

	proc, err := smd.Iterate(iterConf, func() (*smd.ODProcess, error) {
		filter.Reset()
		trigger = smd.NewEKFTrigger(odConf.EKFNumMeasurement)
		trigger.DisableAfter = odConf.EKFDisableTime
		p := smd.NewODProcess(dyn, filter, trigger, odConf.SNCWindow)
		p.PropConfig = &propConf
		p.SetLogger(func(msg string, kv ...interface{}) {
			log.Println(append([]interface{}{msg}, kv...)...)
		})
		src := smd.NewMeasurementSlice(measurements)
		if err := p.Run(*refOrbit, refEpoch, step, src); err != nil {
			return nil, err
		}
		return p, nil
	})
	if err != nil {
		log.Printf("iteration did not converge cleanly: %s", err)
	}
	if proc == nil {
		return fmt.Errorf("no estimates produced")
	}

	log.Printf("processed %d estimates, residual RMS = %f", len(proc.Estimates), proc.ResidualRMS())

	estFile, err := os.Create(outPrefix + "_estimates.csv")
	if err != nil {
		return err
	}
	defer estFile.Close()
	if err := smd.WriteEstimates(estFile, proc.Estimates); err != nil {
		return fmt.Errorf("writing estimates: %w", err)
	}

	measFile, err := os.Create(outPrefix + "_measurements.csv")
	if err != nil {
		return err
	}
	defer measFile.Close()
	if err := smd.WriteMeasurements(measFile, measurements); err != nil {
		return fmt.Errorf("writing measurements: %w", err)
	}

	return nil
}

// diagSym returns an n x n diagonal SymDense with the given value repeated
// along the diagonal, used to seed covariance/SNC matrices from a single
// scenario parameter.
func diagSym(n int, v float64) *mat.SymDense {
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		s.SetSym(i, i, v)
	}
	return s
}

// loadMeasurements reads a simple CSV of epoch,station,range_km,rangerate_kms
// rows and resolves each station name against the builtin station set.
func loadMeasurements(path string, stations map[string]smd.Station) ([]smd.Measurement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	var out []smd.Measurement
	for i, row := range rows {
		if i == 0 || len(row) < 4 {
			continue // header row or malformed
		}
		st, ok := stations[strings.ToLower(strings.TrimSpace(row[1]))]
		if !ok {
			return nil, fmt.Errorf("row %d: unknown station %q", i, row[1])
		}
		epoch, err := time.Parse(time.RFC3339, strings.TrimSpace(row[0]))
		if err != nil {
			return nil, fmt.Errorf("row %d: epoch: %w", i, err)
		}
		rangeKm, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: range: %w", i, err)
		}
		rangeRate, err := strconv.ParseFloat(strings.TrimSpace(row[3]), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: range rate: %w", i, err)
		}
		out = append(out, smd.Measurement{
			Visible:   true,
			Range:     rangeKm,
			RangeRate: rangeRate,
			State:     smd.State{DT: epoch},
			Station:   st,
		})
	}
	return out, nil
}
