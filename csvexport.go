package smd

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"
)

// estimateHeader is the stable column order for exported estimates. Written
// with stdlib encoding/csv rather than a third-party CSV library, since a
// single fixed-column writer does not warrant one.
var estimateHeader = []string{
	"epoch", "predicted", "x_km", "y_km", "z_km", "vx_kms", "vy_kms", "vz_kms",
	"sigma_x", "sigma_y", "sigma_z", "sigma_vx", "sigma_vy", "sigma_vz",
	"prefit_range", "prefit_rangerate", "postfit_range", "postfit_rangerate", "rejected",
}

// WriteEstimates writes the filter's estimate history as CSV, one row per
// estimate: predicted (time update only), accepted and rejected alike.
func WriteEstimates(w io.Writer, estimates []*Estimate) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()
	if err := cw.Write(estimateHeader); err != nil {
		return err
	}
	for _, e := range estimates {
		row, err := estimateRow(e)
		if err != nil {
			return err
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return cw.Error()
}

func estimateRow(e *Estimate) ([]string, error) {
	R, V := e.State.Orbit.RV()
	row := []string{
		e.State.DT.UTC().Format(time.RFC3339Nano),
		fmt.Sprintf("%t", e.Predicted),
		fmt.Sprintf("%.9f", R[0]), fmt.Sprintf("%.9f", R[1]), fmt.Sprintf("%.9f", R[2]),
		fmt.Sprintf("%.9f", V[0]), fmt.Sprintf("%.9f", V[1]), fmt.Sprintf("%.9f", V[2]),
	}
	if e.Covariance != nil {
		for i := 0; i < 6; i++ {
			row = append(row, fmt.Sprintf("%.9e", e.Covariance.At(i, i)))
		}
	} else {
		for i := 0; i < 6; i++ {
			row = append(row, "")
		}
	}
	if e.Residual != nil {
		if e.Residual.PreFit != nil {
			row = append(row, fmt.Sprintf("%.9f", e.Residual.PreFit.AtVec(0)), fmt.Sprintf("%.9f", e.Residual.PreFit.AtVec(1)))
		} else {
			row = append(row, "", "")
		}
		if e.Residual.PostFit != nil {
			row = append(row, fmt.Sprintf("%.9f", e.Residual.PostFit.AtVec(0)), fmt.Sprintf("%.9f", e.Residual.PostFit.AtVec(1)))
		} else {
			row = append(row, "", "")
		}
		row = append(row, fmt.Sprintf("%t", e.Residual.Rejected))
	} else {
		row = append(row, "", "", "", "", "")
	}
	return row, nil
}

// measurementHeader is the stable column order for exported raw
// measurements, matching Measurement.CSV()/ShortCSV() row layout.
var measurementHeader = []string{"epoch", "station", "true_range", "true_rangerate", "range", "rangerate", "visible"}

// WriteMeasurements writes a measurement stream as CSV.
func WriteMeasurements(w io.Writer, ms []Measurement) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()
	if err := cw.Write(measurementHeader); err != nil {
		return err
	}
	for _, m := range ms {
		row := []string{
			m.State.DT.UTC().Format(time.RFC3339Nano),
			m.Station.Name,
			fmt.Sprintf("%.9f", m.TrueRange), fmt.Sprintf("%.9f", m.TrueRangeRate),
			fmt.Sprintf("%.9f", m.Range), fmt.Sprintf("%.9f", m.RangeRate),
			fmt.Sprintf("%t", m.Visible),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return cw.Error()
}
