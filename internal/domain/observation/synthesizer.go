package observation

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Profile holds the ranges and probabilities records are drawn from.
type Profile struct {
	NumPatients      int
	PastDays         int
	AgeRange         [2]int
	HbA1cRange       [2]float64
	DiabetesTypes    []string
	NormalRange      [2]float64
	HyperRange       [2]float64
	HypoRange        [2]float64
	HyperProbability float64
	HypoProbability  float64
}

// DefaultProfile returns the profile used when no configuration is given.
func DefaultProfile() Profile {
	return Profile{
		NumPatients:      10,
		PastDays:         7,
		AgeRange:         [2]int{20, 80},
		HbA1cRange:       [2]float64{5.5, 12.0},
		DiabetesTypes:    []string{"Type 1", "Type 2"},
		NormalRange:      [2]float64{6.0, 8.0},
		HyperRange:       [2]float64{10.0, 15.0},
		HypoRange:        [2]float64{3.0, 4.5},
		HyperProbability: 0.20,
		HypoProbability:  0.15,
	}
}

// withDefaults fills zero-valued fields from DefaultProfile. Probabilities
// are taken as given since zero is meaningful.
func (p Profile) withDefaults() Profile {
	d := DefaultProfile()
	if p.NumPatients <= 0 {
		p.NumPatients = d.NumPatients
	}
	if p.PastDays < 0 {
		p.PastDays = 0
	}
	if p.AgeRange == ([2]int{}) {
		p.AgeRange = d.AgeRange
	}
	if p.HbA1cRange == ([2]float64{}) {
		p.HbA1cRange = d.HbA1cRange
	}
	if len(p.DiabetesTypes) == 0 {
		p.DiabetesTypes = d.DiabetesTypes
	}
	if p.NormalRange == ([2]float64{}) {
		p.NormalRange = d.NormalRange
	}
	if p.HyperRange == ([2]float64{}) {
		p.HyperRange = d.HyperRange
	}
	if p.HypoRange == ([2]float64{}) {
		p.HypoRange = d.HypoRange
	}
	return p
}

var (
	firstNames = []string{"Jordan", "Alex", "Casey", "Taylor", "Morgan", "Sam", "Jamie"}
	lastNames  = []string{"Smith", "Jones", "Williams", "Brown", "Davis", "Miller", "Wilson"}
)

// MaxDeviation bounds the per-record HbA1c drift from baseline.
const MaxDeviation = 0.5

// RoundTenths rounds v to one decimal place.
func RoundTenths(v float64) float64 {
	return math.Round(v*10) / 10
}

// HbA1cFromBaseline applies a deviation to a baseline and classifies the
// resulting reading.
func HbA1cFromBaseline(baseline, deviation float64) (float64, HbA1cStatus) {
	reading := RoundTenths(baseline + deviation)
	return reading, ClassifyHbA1c(baseline, reading)
}

// Synthesizer draws observations from a Profile. It is not safe for
// concurrent use.
type Synthesizer struct {
	profile Profile
	rng     *rand.Rand
	now     func() time.Time
}

// NewSynthesizer returns a synthesizer seeded for reproducibility. If seed
// is 0 a time-based seed is chosen.
func NewSynthesizer(p Profile, seed int64) *Synthesizer {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Synthesizer{
		profile: p.withDefaults(),
		rng:     rand.New(rand.NewSource(seed)),
		now:     time.Now,
	}
}

// SetClock replaces the time source used for record dates.
func (s *Synthesizer) SetClock(now func() time.Time) {
	s.now = now
}

// Profile returns the effective profile after defaults were applied.
func (s *Synthesizer) Profile() Profile {
	return s.profile
}

type demographics struct {
	name         string
	age          int
	diabetesType string
}

func (s *Synthesizer) uniform(r [2]float64) float64 {
	return r[0] + s.rng.Float64()*(r[1]-r[0])
}

func (s *Synthesizer) intBetween(r [2]int) int {
	if r[1] <= r[0] {
		return r[0]
	}
	return r[0] + s.rng.Intn(r[1]-r[0]+1)
}

func (s *Synthesizer) pick(pool []string) string {
	return pool[s.rng.Intn(len(pool))]
}

func (s *Synthesizer) demographics() demographics {
	return demographics{
		name:         fmt.Sprintf("%s %s", s.pick(firstNames), s.pick(lastNames)),
		age:          s.intBetween(s.profile.AgeRange),
		diabetesType: s.pick(s.profile.DiabetesTypes),
	}
}

func (s *Synthesizer) baseline() float64 {
	return RoundTenths(s.uniform(s.profile.HbA1cRange))
}

// drawEvent performs both probabilistic draws and resolves them into a
// single tag.
func (s *Synthesizer) drawEvent() GlucoseEvent {
	hyper := s.rng.Float64() < s.profile.HyperProbability
	hypo := s.rng.Float64() < s.profile.HypoProbability
	return ResolveEvent(hyper, hypo)
}

func (s *Synthesizer) glucose(e GlucoseEvent) float64 {
	band := s.profile.NormalRange
	switch e {
	case EventHyper:
		band = s.profile.HyperRange
	case EventHypo:
		band = s.profile.HypoRange
	}
	return RoundTenths(s.uniform(band))
}

func (s *Synthesizer) record(patientID int, d demographics, baseline float64, day time.Time) Observation {
	deviation := RoundTenths(s.uniform([2]float64{-MaxDeviation, MaxDeviation}))
	reading, status := HbA1cFromBaseline(baseline, deviation)
	event := s.drawEvent()

	return Observation{
		PatientID:    patientID,
		Name:         d.name,
		Age:          d.age,
		DiabetesType: d.diabetesType,
		HbA1cReading: reading,
		HbA1cStatus:  status,
		Date:         truncateDay(day),
		GlucoseLevel: s.glucose(event),
		Event:        event,
		DietLog:      event.DietLog(),
		Activity:     event.Activity(),
	}
}

// Generate produces one fresh observation dated today. The patient id is
// drawn from [1, NumPatients] and every attribute, including the HbA1c
// baseline, is redrawn for the record.
func (s *Synthesizer) Generate() Observation {
	patientID := 1 + s.rng.Intn(s.profile.NumPatients)
	baseline := s.baseline()
	return s.record(patientID, s.demographics(), baseline, s.now())
}

// GenerateN produces n fresh observations.
func (s *Synthesizer) GenerateN(n int) []Observation {
	out := make([]Observation, 0, max(n, 0))
	for i := 0; i < n; i++ {
		out = append(out, s.Generate())
	}
	return out
}

// History produces one observation per patient per day over the
// configured window ending at end, inclusive. Demographics and the HbA1c
// baseline are drawn once per patient.
func (s *Synthesizer) History(end time.Time) []Observation {
	days := s.profile.PastDays + 1
	records := make([]Observation, 0, s.profile.NumPatients*days)
	start := end.AddDate(0, 0, -s.profile.PastDays)

	for i := 0; i < s.profile.NumPatients; i++ {
		patientID := i + 1
		baseline := s.baseline()
		d := s.demographics()
		for day := 0; day < days; day++ {
			records = append(records, s.record(patientID, d, baseline, start.AddDate(0, 0, day)))
		}
	}
	return records
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
