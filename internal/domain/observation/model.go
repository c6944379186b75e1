// Package observation models one simulated patient-day clinical snapshot
// and knows how to synthesize, encode and decode it.
package observation

import (
	"strconv"
	"time"
)

// DateLayout is the calendar-day format used in the date column.
const DateLayout = "2006-01-02"

// Column names of the tabular format, in file order.
const (
	ColPatientID      = "patient_id"
	ColName           = "name"
	ColAge            = "age"
	ColDiabetesType   = "diabetes_type"
	ColHbA1cReading   = "hba1c_reading"
	ColHbA1cStatus    = "hba1c_status"
	ColDate           = "date"
	ColGlucoseReading = "glucose_reading"
	ColDietLog        = "diet_log"
	ColActivity       = "activity"
)

// Columns is the header row written with every dataset.
var Columns = []string{
	ColPatientID, ColName, ColAge, ColDiabetesType, ColHbA1cReading,
	ColHbA1cStatus, ColDate, ColGlucoseReading, ColDietLog, ColActivity,
}

// HbA1cStatus compares a reading with the baseline it was drawn from.
type HbA1cStatus string

const (
	HbA1cStable    HbA1cStatus = "Stable"
	HbA1cIncreased HbA1cStatus = "Increased"
	HbA1cDecreased HbA1cStatus = "Decreased"
)

// HbA1cThreshold is the distance from baseline a reading must exceed
// before it is reported as a change.
const HbA1cThreshold = 0.2

// ClassifyHbA1c returns the status of reading relative to baseline.
func ClassifyHbA1c(baseline, reading float64) HbA1cStatus {
	switch {
	case reading > baseline+HbA1cThreshold:
		return HbA1cIncreased
	case reading < baseline-HbA1cThreshold:
		return HbA1cDecreased
	default:
		return HbA1cStable
	}
}

// GlucoseEvent tags the glucose reading of a record.
type GlucoseEvent int

const (
	EventNone GlucoseEvent = iota
	EventHyper
	EventHypo
)

// String returns the label written at the start of the glucose column.
func (e GlucoseEvent) String() string {
	switch e {
	case EventHyper:
		return "Hyper Event"
	case EventHypo:
		return "Hypo Event"
	default:
		return "Stable"
	}
}

// ResolveEvent applies the precedence rule between the two probabilistic
// draws: hypo is evaluated last and wins whenever it fired.
//
// NOTE: hypo dominating hyper matches the behaviour of the legacy
// generator and has not been confirmed as a clinical requirement.
func ResolveEvent(hyper, hypo bool) GlucoseEvent {
	if hypo {
		return EventHypo
	}
	if hyper {
		return EventHyper
	}
	return EventNone
}

type eventContext struct {
	suffix   string
	diet     string
	activity string
}

var eventContexts = map[GlucoseEvent]eventContext{
	EventNone:  {"", "Normal balanced diet", "Moderate activity"},
	EventHyper: {" after dinner", "Double cheeseburger, white bread, coffee", "Exercised a total of 35 minutes"},
	EventHypo:  {" before exercise", "Tofu stir-fry with mixed vegetables", "Swam for 40 minutes"},
}

// DietLog returns the diet text that accompanies the event.
func (e GlucoseEvent) DietLog() string { return eventContexts[e].diet }

// Activity returns the activity text that accompanies the event.
func (e GlucoseEvent) Activity() string { return eventContexts[e].activity }

// Observation is one synthesized patient-day data point.
type Observation struct {
	PatientID    int
	Name         string
	Age          int
	DiabetesType string
	HbA1cReading float64
	HbA1cStatus  HbA1cStatus
	Date         time.Time
	GlucoseLevel float64
	Event        GlucoseEvent
	DietLog      string
	Activity     string
}

// HbA1cText renders the reading with its percent suffix, e.g. "7.3%".
func (o Observation) HbA1cText() string {
	return formatTenths(o.HbA1cReading) + "%"
}

// GlucoseText renders the composite status string, e.g.
// "Hyper Event (12.4 mmol/L after dinner)".
func (o Observation) GlucoseText() string {
	return o.Event.String() + " (" + formatTenths(o.GlucoseLevel) + " mmol/L" + eventContexts[o.Event].suffix + ")"
}

func formatTenths(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
