// Package dashboard polls the channel files, derives plotting fields and
// summary statistics, and publishes a view snapshot on every tick. A tick
// never fails: missing, empty or malformed data becomes a waiting,
// incomplete or error view state and the next tick is scheduled anyway.
package dashboard

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind identifies which dataset a poller watches.
type Kind string

const (
	KindConstant Kind = "constant"
	KindChanging Kind = "changing"
)

// ViewState is what the view is able to show for a dataset.
type ViewState string

const (
	StateWaiting    ViewState = "waiting"
	StateIncomplete ViewState = "incomplete"
	StateError      ViewState = "error"
	StateReady      ViewState = "ready"
)

// StalenessNote is shown alongside fresh data: the dashboard reads on its
// own schedule and may trail the producer.
const StalenessNote = "Data may lag the producer by up to one update interval."

// Number is a float that encodes NaN and infinities as JSON null.
type Number float64

// Valid reports whether n is a finite number.
func (n Number) Valid() bool {
	f := float64(n)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func (n Number) String() string {
	if !n.Valid() {
		return "n/a"
	}
	return strconv.FormatFloat(float64(n), 'f', 2, 64)
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid() {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, float64(n), 'f', -1, 64), nil
}

func (n *Number) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		*n = Number(math.NaN())
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("number: %w", err)
	}
	*n = Number(f)
	return nil
}

// Summary holds the headline statistics of a dataset.
type Summary struct {
	Records     int    `json:"records"`
	Patients    int    `json:"patients"`
	MeanGlucose Number `json:"mean_glucose"`
	MeanHbA1c   Number `json:"mean_hba1c"`
}

// Snapshot is the outcome of one tick.
type Snapshot struct {
	Dataset     Kind       `json:"dataset"`
	Source      string     `json:"source"`
	State       ViewState  `json:"state"`
	Message     string     `json:"message"`
	Note        string     `json:"note"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastReadyAt *time.Time `json:"last_ready_at,omitempty"`
	Summary     *Summary   `json:"summary,omitempty"`
	Charts      *Charts    `json:"charts,omitempty"`
}

// Ready reports whether the snapshot carries fresh statistics.
func (s Snapshot) Ready() bool {
	return s.State == StateReady
}

func (k Kind) title() string {
	if k == KindChanging {
		return "Real-Time Analysis"
	}
	return "Constant Dataset Analysis"
}

// InfoText formats the summary panel shown above the charts.
func InfoText(kind Kind, at time.Time, s Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "--- %s ---\n", kind.title())
	fmt.Fprintf(&b, "Last Updated: %s\n", at.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Total Records: %d\n", s.Records)
	fmt.Fprintf(&b, "Unique Patients: %d\n", s.Patients)
	fmt.Fprintf(&b, "Average Glucose Level: %s mmol/L\n", s.MeanGlucose)
	fmt.Fprintf(&b, "Average HbA1c Reading: %s%%", s.MeanHbA1c)
	return b.String()
}
