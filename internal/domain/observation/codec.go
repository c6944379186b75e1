package observation

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrMissingColumn is returned when a header lacks a schema column.
var ErrMissingColumn = errors.New("missing column")

// ToRecord encodes o as a row in Columns order.
func (o Observation) ToRecord() []string {
	return []string{
		strconv.Itoa(o.PatientID),
		o.Name,
		strconv.Itoa(o.Age),
		o.DiabetesType,
		o.HbA1cText(),
		string(o.HbA1cStatus),
		o.Date.Format(DateLayout),
		o.GlucoseText(),
		o.DietLog,
		o.Activity,
	}
}

// HeaderIndex maps column names to their position in a row.
type HeaderIndex map[string]int

// NewHeaderIndex indexes a header row. Surrounding whitespace in column
// names is ignored.
func NewHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := idx[name]; !dup {
			idx[name] = i
		}
	}
	return idx
}

// Has reports whether every named column is present.
func (h HeaderIndex) Has(cols ...string) bool {
	for _, c := range cols {
		if _, ok := h[c]; !ok {
			return false
		}
	}
	return true
}

// Value returns the cell of row for col, or "" when the column is absent
// or the row is too short.
func (h HeaderIndex) Value(row []string, col string) string {
	i, ok := h[col]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

// FromRecord decodes a row strictly. Every schema column must be present
// and every numeric field must parse.
func FromRecord(h HeaderIndex, row []string) (Observation, error) {
	for _, c := range Columns {
		if _, ok := h[c]; !ok {
			return Observation{}, fmt.Errorf("%w: %s", ErrMissingColumn, c)
		}
	}

	var o Observation
	var err error
	if o.PatientID, err = strconv.Atoi(strings.TrimSpace(h.Value(row, ColPatientID))); err != nil {
		return Observation{}, fmt.Errorf("parse %s: %w", ColPatientID, err)
	}
	if o.Age, err = strconv.Atoi(strings.TrimSpace(h.Value(row, ColAge))); err != nil {
		return Observation{}, fmt.Errorf("parse %s: %w", ColAge, err)
	}
	o.HbA1cReading = ParseHbA1c(h.Value(row, ColHbA1cReading))
	if math.IsNaN(o.HbA1cReading) {
		return Observation{}, fmt.Errorf("parse %s: %q", ColHbA1cReading, h.Value(row, ColHbA1cReading))
	}
	glucose := h.Value(row, ColGlucoseReading)
	o.GlucoseLevel = ExtractGlucoseLevel(glucose)
	if math.IsNaN(o.GlucoseLevel) {
		return Observation{}, fmt.Errorf("parse %s: %q", ColGlucoseReading, glucose)
	}
	o.Event = ParseEvent(glucose)
	if o.Date, err = time.Parse(DateLayout, strings.TrimSpace(h.Value(row, ColDate))); err != nil {
		return Observation{}, fmt.Errorf("parse %s: %w", ColDate, err)
	}

	o.Name = h.Value(row, ColName)
	o.DiabetesType = h.Value(row, ColDiabetesType)
	o.HbA1cStatus = HbA1cStatus(h.Value(row, ColHbA1cStatus))
	o.DietLog = h.Value(row, ColDietLog)
	o.Activity = h.Value(row, ColActivity)
	return o, nil
}
