package dashboard

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/ehr/patientsim/internal/domain/observation"
)

// HistogramBins is the bin count of the glucose and HbA1c distributions.
const HistogramBins = 20

// Bin is one histogram bucket covering [Lo, Hi).
type Bin struct {
	Lo    Number `json:"lo"`
	Hi    Number `json:"hi"`
	Count int    `json:"count"`
}

type Histogram struct {
	Title   string `json:"title"`
	XLabel  string `json:"x_label"`
	Samples int    `json:"samples"`
	Bins    []Bin  `json:"bins"`
}

// XY is one scatter point.
type XY struct {
	X Number `json:"x"`
	Y Number `json:"y"`
}

// Correlation relates HbA1c (x) to glucose (y) with a least-squares line.
type Correlation struct {
	Title     string `json:"title"`
	Points    []XY   `json:"points"`
	Pearson   Number `json:"pearson"`
	Slope     Number `json:"slope"`
	Intercept Number `json:"intercept"`
}

type TrendPoint struct {
	Date      string `json:"date"`
	PatientID string `json:"patient_id"`
	Glucose   Number `json:"glucose"`
}

// Trend is glucose over time in chronological order.
type Trend struct {
	Title  string       `json:"title"`
	Points []TrendPoint `json:"points"`
}

// Charts are the figures behind a dataset view. Trend is only built for
// the changing dataset.
type Charts struct {
	Glucose     Histogram   `json:"glucose"`
	HbA1c       Histogram   `json:"hba1c"`
	Correlation Correlation `json:"correlation"`
	Trend       *Trend      `json:"trend,omitempty"`
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// mean averages the finite values, NaN when there are none.
func mean(values []float64) float64 {
	finite := lo.Filter(values, func(v float64, _ int) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) })
	if len(finite) == 0 {
		return math.NaN()
	}
	return lo.Sum(finite) / float64(len(finite))
}

func glucoseValues(f *Frame) []float64 {
	return lo.Map(f.Points, func(p Point, _ int) float64 { return p.GlucoseLevel })
}

func hba1cValues(f *Frame) []float64 {
	return lo.Map(f.Points, func(p Point, _ int) float64 { return p.HbA1c })
}

// Summarize computes record and patient counts and the mean glucose and
// HbA1c, rounded to two decimals. Missing HbA1c values are skipped.
func Summarize(f *Frame) Summary {
	ids := lo.Uniq(lo.FilterMap(f.Points, func(p Point, _ int) (string, bool) {
		return p.PatientID, p.PatientID != ""
	}))
	return Summary{
		Records:     len(f.Points),
		Patients:    len(ids),
		MeanGlucose: Number(round2(mean(glucoseValues(f)))),
		MeanHbA1c:   Number(round2(mean(hba1cValues(f)))),
	}
}

// NewHistogram buckets the finite values into equal-width bins. A
// degenerate range is widened by half a unit each side.
func NewHistogram(title, xlabel string, values []float64, bins int) Histogram {
	h := Histogram{Title: title, XLabel: xlabel, Bins: []Bin{}}
	finite := lo.Filter(values, func(v float64, _ int) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) })
	if len(finite) == 0 || bins <= 0 {
		return h
	}
	lower, upper := lo.Min(finite), lo.Max(finite)
	if lower == upper {
		lower, upper = lower-0.5, upper+0.5
	}
	width := (upper - lower) / float64(bins)
	counts := make([]int, bins)
	for _, v := range finite {
		i := int((v - lower) / width)
		if i >= bins {
			i = bins - 1
		}
		counts[i]++
	}
	h.Samples = len(finite)
	h.Bins = make([]Bin, bins)
	for i := range counts {
		h.Bins[i] = Bin{
			Lo:    Number(lower + float64(i)*width),
			Hi:    Number(lower + float64(i+1)*width),
			Count: counts[i],
		}
	}
	return h
}

// NewCorrelation pairs HbA1c with glucose over rows where both are
// present. Coefficients are NaN with fewer than two points or no spread.
func NewCorrelation(f *Frame) Correlation {
	c := Correlation{
		Title:     "HbA1c vs Glucose Level",
		Points:    []XY{},
		Pearson:   Number(math.NaN()),
		Slope:     Number(math.NaN()),
		Intercept: Number(math.NaN()),
	}
	var xs, ys []float64
	for _, p := range f.Points {
		if math.IsNaN(p.HbA1c) || math.IsNaN(p.GlucoseLevel) {
			continue
		}
		xs = append(xs, p.HbA1c)
		ys = append(ys, p.GlucoseLevel)
		c.Points = append(c.Points, XY{X: Number(p.HbA1c), Y: Number(p.GlucoseLevel)})
	}
	if len(xs) < 2 {
		return c
	}
	mx, my := mean(xs), mean(ys)
	var sxy, sxx, syy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 {
		return c
	}
	slope := sxy / sxx
	c.Slope = Number(slope)
	c.Intercept = Number(my - slope*mx)
	if syy > 0 {
		c.Pearson = Number(sxy / math.Sqrt(sxx*syy))
	}
	return c
}

var trendLayouts = []string{observation.DateLayout, time.RFC3339, "2006-01-02 15:04:05"}

func parseTrendDate(s string) (time.Time, error) {
	var err error
	for _, layout := range trendLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

// NewTrend orders glucose readings by date. Rows sharing a date keep
// their file order. An unparseable date fails the whole trend.
func NewTrend(f *Frame) (*Trend, error) {
	type dated struct {
		at time.Time
		TrendPoint
	}
	rows := make([]dated, 0, len(f.Points))
	for i, p := range f.Points {
		at, err := parseTrendDate(p.Date)
		if err != nil {
			return nil, fmt.Errorf("row %d: parse date %q: %w", i+1, p.Date, err)
		}
		rows = append(rows, dated{at: at, TrendPoint: TrendPoint{
			Date:      p.Date,
			PatientID: p.PatientID,
			Glucose:   Number(p.GlucoseLevel),
		}})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].at.Before(rows[j].at) })
	return &Trend{
		Title:  "Glucose Levels Over Time",
		Points: lo.Map(rows, func(r dated, _ int) TrendPoint { return r.TrendPoint }),
	}, nil
}

// BuildCharts computes every figure for a validated frame.
func BuildCharts(f *Frame, withTrend bool) (*Charts, error) {
	c := &Charts{
		Glucose:     NewHistogram("Glucose Level Distribution", "Glucose Level (mmol/L)", glucoseValues(f), HistogramBins),
		HbA1c:       NewHistogram("HbA1c Reading Distribution", "HbA1c Reading (%)", hba1cValues(f), HistogramBins),
		Correlation: NewCorrelation(f),
	}
	if withTrend {
		t, err := NewTrend(f)
		if err != nil {
			return nil, err
		}
		c.Trend = t
	}
	return c, nil
}
