package observation

import (
	"errors"
	"testing"
	"time"
)

func sampleObservation() Observation {
	return Observation{
		PatientID:    4,
		Name:         "Casey Brown",
		Age:          51,
		DiabetesType: "Type 2",
		HbA1cReading: 7.3,
		HbA1cStatus:  HbA1cIncreased,
		Date:         time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		GlucoseLevel: 12.4,
		Event:        EventHyper,
		DietLog:      EventHyper.DietLog(),
		Activity:     EventHyper.Activity(),
	}
}

func TestToRecord_Format(t *testing.T) {
	rec := sampleObservation().ToRecord()
	if len(rec) != len(Columns) {
		t.Fatalf("expected %d fields, got %d", len(Columns), len(rec))
	}
	want := []string{
		"4", "Casey Brown", "51", "Type 2", "7.3%", "Increased", "2025-03-14",
		"Hyper Event (12.4 mmol/L after dinner)",
		"Double cheeseburger, white bread, coffee",
		"Exercised a total of 35 minutes",
	}
	for i := range want {
		if rec[i] != want[i] {
			t.Errorf("field %s = %q, want %q", Columns[i], rec[i], want[i])
		}
	}
}

func TestFromRecord_Decodes(t *testing.T) {
	in := sampleObservation()
	got, err := FromRecord(NewHeaderIndex(Columns), in.ToRecord())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.PatientID != in.PatientID || got.GlucoseLevel != in.GlucoseLevel || got.Event != in.Event {
		t.Fatalf("decoded %+v does not match %+v", got, in)
	}
	if !got.Date.Equal(in.Date) {
		t.Errorf("expected date %v, got %v", in.Date, got.Date)
	}
}

func TestFromRecord_MissingColumn(t *testing.T) {
	header := []string{ColPatientID, ColName}
	_, err := FromRecord(NewHeaderIndex(header), []string{"1", "Sam Jones"})
	if !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", err)
	}
}

func TestFromRecord_BadGlucose(t *testing.T) {
	rec := sampleObservation().ToRecord()
	rec[7] = "Stable (unknown)"
	if _, err := FromRecord(NewHeaderIndex(Columns), rec); err == nil {
		t.Fatal("expected error for glucose without numeric token")
	}
}

func TestFromRecord_ShortRow(t *testing.T) {
	rec := sampleObservation().ToRecord()[:5]
	if _, err := FromRecord(NewHeaderIndex(Columns), rec); err == nil {
		t.Fatal("expected error for truncated row")
	}
}

func TestHeaderIndex_Value(t *testing.T) {
	h := NewHeaderIndex([]string{" patient_id ", "name"})
	if !h.Has(ColPatientID, ColName) {
		t.Fatal("expected trimmed columns to be indexed")
	}
	if got := h.Value([]string{"3"}, ColName); got != "" {
		t.Errorf("expected empty value for short row, got %q", got)
	}
	if got := h.Value([]string{"3", "Alex"}, ColDate); got != "" {
		t.Errorf("expected empty value for absent column, got %q", got)
	}
}
