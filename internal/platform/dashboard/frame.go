package dashboard

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ehr/patientsim/internal/domain/observation"
	"github.com/ehr/patientsim/internal/platform/channel"
)

// ErrIncomplete marks data that was read but cannot be rendered yet.
var ErrIncomplete = errors.New("data is currently empty or incomplete")

// requiredColumns are the source columns behind the fields the view
// needs: date, patient_id, glucose_level and hba1c_numeric.
var requiredColumns = []string{
	observation.ColDate,
	observation.ColPatientID,
	observation.ColGlucoseReading,
	observation.ColHbA1cReading,
}

// Point is one row reduced to the fields the charts use. Missing numeric
// values are NaN.
type Point struct {
	PatientID    string
	Date         string
	GlucoseLevel float64
	HbA1c        float64
}

// Frame is a table with derived plotting fields.
type Frame struct {
	Index  observation.HeaderIndex
	Points []Point
}

// Derive extracts glucose_level and hba1c_numeric from every row. It
// never fails; fields that cannot be extracted are NaN.
func Derive(t *channel.Table) *Frame {
	idx := t.Index()
	f := &Frame{Index: idx, Points: make([]Point, 0, len(t.Rows))}
	for _, row := range t.Rows {
		p := Point{
			PatientID:    strings.TrimSpace(idx.Value(row, observation.ColPatientID)),
			Date:         strings.TrimSpace(idx.Value(row, observation.ColDate)),
			GlucoseLevel: math.NaN(),
			HbA1c:        math.NaN(),
		}
		if idx.Has(observation.ColGlucoseReading) {
			p.GlucoseLevel = observation.ExtractGlucoseLevel(idx.Value(row, observation.ColGlucoseReading))
		}
		if idx.Has(observation.ColHbA1cReading) {
			p.HbA1c = observation.ParseHbA1c(idx.Value(row, observation.ColHbA1cReading))
		}
		f.Points = append(f.Points, p)
	}
	return f
}

// Validate checks the frame is non-empty, has every required column and
// that no row lacks a glucose level.
func (f *Frame) Validate() error {
	if len(f.Points) == 0 {
		return fmt.Errorf("%w: no records", ErrIncomplete)
	}
	var missing []string
	for _, c := range requiredColumns {
		if !f.Index.Has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing column(s) %s", ErrIncomplete, strings.Join(missing, ", "))
	}
	bad := 0
	for _, p := range f.Points {
		if math.IsNaN(p.GlucoseLevel) {
			bad++
		}
	}
	if bad > 0 {
		return fmt.Errorf("%w: %d row(s) without a glucose level", ErrIncomplete, bad)
	}
	return nil
}
