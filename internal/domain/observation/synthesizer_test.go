package observation

import (
	"math"
	"testing"
	"time"
)

func fixedClock() time.Time {
	return time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
}

func newTestSynth(p Profile) *Synthesizer {
	s := NewSynthesizer(p, 42)
	s.SetClock(fixedClock)
	return s
}

func TestHbA1cFromBaseline_Increased(t *testing.T) {
	reading, status := HbA1cFromBaseline(7.0, 0.3)
	if reading != 7.3 {
		t.Fatalf("expected reading 7.3, got %v", reading)
	}
	if status != HbA1cIncreased {
		t.Fatalf("expected status Increased, got %s", status)
	}
}

func TestClassifyHbA1c(t *testing.T) {
	tests := []struct {
		name     string
		baseline float64
		reading  float64
		want     HbA1cStatus
	}{
		{"well above", 7.0, 7.5, HbA1cIncreased},
		{"well below", 7.0, 6.5, HbA1cDecreased},
		{"slightly above", 7.0, 7.1, HbA1cStable},
		{"slightly below", 7.0, 6.9, HbA1cStable},
		{"equal", 7.0, 7.0, HbA1cStable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyHbA1c(tt.baseline, tt.reading); got != tt.want {
				t.Errorf("ClassifyHbA1c(%v, %v) = %s, want %s", tt.baseline, tt.reading, got, tt.want)
			}
		})
	}
}

func TestResolveEvent_HypoWinsOverHyper(t *testing.T) {
	if got := ResolveEvent(true, true); got != EventHypo {
		t.Fatalf("expected hypo to win, got %s", got)
	}
	if got := ResolveEvent(true, false); got != EventHyper {
		t.Fatalf("expected hyper, got %s", got)
	}
	if got := ResolveEvent(false, false); got != EventNone {
		t.Fatalf("expected none, got %s", got)
	}
}

func TestGenerate_AlwaysHyper(t *testing.T) {
	p := DefaultProfile()
	p.HyperProbability = 1.0
	p.HypoProbability = 0.0
	s := newTestSynth(p)

	for i := 0; i < 200; i++ {
		o := s.Generate()
		if o.Event != EventHyper {
			t.Fatalf("record %d: expected Hyper Event, got %s", i, o.Event)
		}
		if o.GlucoseLevel < p.HyperRange[0] || o.GlucoseLevel > p.HyperRange[1] {
			t.Fatalf("record %d: glucose %v outside hyper band", i, o.GlucoseLevel)
		}
		if o.DietLog != "Double cheeseburger, white bread, coffee" {
			t.Fatalf("record %d: unexpected diet log %q", i, o.DietLog)
		}
	}
}

func TestGenerate_BothEventsFireHypoWins(t *testing.T) {
	p := DefaultProfile()
	p.HyperProbability = 1.0
	p.HypoProbability = 1.0
	s := newTestSynth(p)

	for i := 0; i < 100; i++ {
		o := s.Generate()
		if o.Event != EventHypo {
			t.Fatalf("record %d: expected Hypo Event, got %s", i, o.Event)
		}
		if o.GlucoseLevel < p.HypoRange[0] || o.GlucoseLevel > p.HypoRange[1] {
			t.Fatalf("record %d: glucose %v outside hypo band", i, o.GlucoseLevel)
		}
		if o.Activity != "Swam for 40 minutes" {
			t.Fatalf("record %d: unexpected activity %q", i, o.Activity)
		}
	}
}

func TestGenerate_NoEvents(t *testing.T) {
	p := DefaultProfile()
	p.HyperProbability = 0
	p.HypoProbability = 0
	s := newTestSynth(p)

	for i := 0; i < 100; i++ {
		o := s.Generate()
		if o.Event != EventNone {
			t.Fatalf("expected Stable, got %s", o.Event)
		}
		if o.GlucoseLevel < 6.0 || o.GlucoseLevel > 8.0 {
			t.Fatalf("glucose %v outside the normal band", o.GlucoseLevel)
		}
	}
}

func TestGenerate_Ranges(t *testing.T) {
	p := DefaultProfile()
	s := newTestSynth(p)

	for i := 0; i < 500; i++ {
		o := s.Generate()
		if o.PatientID < 1 || o.PatientID > p.NumPatients {
			t.Fatalf("patient id %d outside [1, %d]", o.PatientID, p.NumPatients)
		}
		if o.Age < p.AgeRange[0] || o.Age > p.AgeRange[1] {
			t.Fatalf("age %d outside range", o.Age)
		}
		if o.HbA1cReading < p.HbA1cRange[0]-MaxDeviation-1e-9 || o.HbA1cReading > p.HbA1cRange[1]+MaxDeviation+1e-9 {
			t.Fatalf("hba1c %v outside baseline range plus deviation", o.HbA1cReading)
		}
		if got := o.Date.Format(DateLayout); got != "2025-03-14" {
			t.Fatalf("expected today's date, got %s", got)
		}
	}
}

func TestGenerate_RoundTripsThroughText(t *testing.T) {
	s := newTestSynth(DefaultProfile())

	for i := 0; i < 500; i++ {
		o := s.Generate()

		glucoseText := o.GlucoseText()
		if got := ExtractGlucoseLevel(glucoseText); got != o.GlucoseLevel {
			t.Fatalf("glucose %q extracted as %v, want %v", glucoseText, got, o.GlucoseLevel)
		}
		if n := len(glucosePattern.FindAllString(glucoseText, -1)); n != 1 {
			t.Fatalf("expected exactly one numeric token in %q, found %d", glucoseText, n)
		}
		if got := ParseEvent(glucoseText); got != o.Event {
			t.Fatalf("event of %q parsed as %s, want %s", glucoseText, got, o.Event)
		}

		hba1cText := o.HbA1cText()
		if got := ParseHbA1c(hba1cText); math.Abs(got-o.HbA1cReading) > 0.05 {
			t.Fatalf("hba1c %q parsed as %v, want %v", hba1cText, got, o.HbA1cReading)
		}
	}
}

func TestHistory_CoversWindowPerPatient(t *testing.T) {
	p := DefaultProfile()
	p.NumPatients = 3
	p.PastDays = 7
	s := newTestSynth(p)

	records := s.History(fixedClock())
	if len(records) != 3*8 {
		t.Fatalf("expected %d records, got %d", 3*8, len(records))
	}

	first := records[0]
	for i, r := range records[:8] {
		if r.PatientID != 1 {
			t.Fatalf("record %d: expected patient 1, got %d", i, r.PatientID)
		}
		if r.Name != first.Name || r.Age != first.Age || r.DiabetesType != first.DiabetesType {
			t.Fatalf("record %d: demographics changed within a patient history", i)
		}
	}
	if got := records[0].Date.Format(DateLayout); got != "2025-03-07" {
		t.Errorf("expected window to start 2025-03-07, got %s", got)
	}
	if got := records[7].Date.Format(DateLayout); got != "2025-03-14" {
		t.Errorf("expected window to end 2025-03-14, got %s", got)
	}
	if records[8].PatientID != 2 {
		t.Errorf("expected patient 2 to follow, got %d", records[8].PatientID)
	}
}

func TestNewSynthesizer_ZeroProfileUsesDefaults(t *testing.T) {
	s := NewSynthesizer(Profile{}, 7)
	got := s.Profile()
	if got.NumPatients != 10 {
		t.Errorf("expected 10 patients, got %d", got.NumPatients)
	}
	if len(got.DiabetesTypes) != 2 {
		t.Errorf("expected default diabetes types, got %v", got.DiabetesTypes)
	}
	if got.HyperRange != [2]float64{10.0, 15.0} {
		t.Errorf("expected default hyper range, got %v", got.HyperRange)
	}
}

func TestGenerateN(t *testing.T) {
	s := newTestSynth(DefaultProfile())
	if got := len(s.GenerateN(5)); got != 5 {
		t.Fatalf("expected 5 records, got %d", got)
	}
	if got := len(s.GenerateN(0)); got != 0 {
		t.Fatalf("expected 0 records, got %d", got)
	}
}
