package observation

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// glucosePattern matches the single numeric token embedded in the glucose
// status string, e.g. "Stable (7.4 mmol/L)".
var glucosePattern = regexp.MustCompile(`\((\d+\.?\d*)\s*mmol/L`)

// ExtractGlucoseLevel returns the numeric glucose value embedded in a
// glucose status string, or NaN when there is none.
func ExtractGlucoseLevel(s string) float64 {
	m := glucosePattern.FindStringSubmatch(s)
	if m == nil {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// ParseHbA1c strips the percent suffix from an HbA1c reading and parses
// the remainder, returning NaN when it is not a number.
func ParseHbA1c(s string) float64 {
	s = strings.TrimSpace(strings.Replace(s, "%", "", -1))
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// ParseEvent recovers the event tag from a glucose status string.
func ParseEvent(s string) GlucoseEvent {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, EventHypo.String()):
		return EventHypo
	case strings.HasPrefix(s, EventHyper.String()):
		return EventHyper
	default:
		return EventNone
	}
}
