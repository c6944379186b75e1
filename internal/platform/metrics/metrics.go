// Package metrics defines the prometheus collectors exported by the
// producer and the dashboard. A nil collector set is valid and records
// nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "patientsim"

// Producer tracks mutation cycles.
type Producer struct {
	Cycles        prometheus.Counter
	WriteFailures prometheus.Counter
	RowsDropped   prometheus.Counter
	RowsAdded     prometheus.Counter
	DatasetSize   prometheus.Gauge
}

// NewProducer registers the producer collectors with reg.
func NewProducer(reg prometheus.Registerer) *Producer {
	f := promauto.With(reg)
	return &Producer{
		Cycles: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "producer", Name: "cycles_total",
			Help: "Completed mutation cycles.",
		}),
		WriteFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "producer", Name: "write_failures_total",
			Help: "Cycles whose result could not be persisted.",
		}),
		RowsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "producer", Name: "rows_dropped_total",
			Help: "Rows removed from the changing dataset.",
		}),
		RowsAdded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "producer", Name: "rows_added_total",
			Help: "Rows appended to the changing dataset.",
		}),
		DatasetSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "producer", Name: "dataset_size",
			Help: "Rows in the changing dataset after the last successful write.",
		}),
	}
}

// CycleCompleted records a persisted cycle.
func (p *Producer) CycleCompleted(dropped, added, total int) {
	if p == nil {
		return
	}
	p.Cycles.Inc()
	p.RowsDropped.Add(float64(dropped))
	p.RowsAdded.Add(float64(added))
	p.DatasetSize.Set(float64(total))
}

// CycleFailed records a cycle whose write failed.
func (p *Producer) CycleFailed() {
	if p == nil {
		return
	}
	p.WriteFailures.Inc()
}

// Dashboard tracks poller ticks.
type Dashboard struct {
	Ticks   *prometheus.CounterVec
	Records *prometheus.GaugeVec
}

// NewDashboard registers the dashboard collectors with reg.
func NewDashboard(reg prometheus.Registerer) *Dashboard {
	f := promauto.With(reg)
	return &Dashboard{
		Ticks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "dashboard", Name: "ticks_total",
			Help: "Poller ticks by dataset and resulting view state.",
		}, []string{"dataset", "state"}),
		Records: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "dashboard", Name: "records",
			Help: "Records in the last successfully rendered snapshot.",
		}, []string{"dataset"}),
	}
}

// Tick records one poller tick. records is only applied when ready.
func (d *Dashboard) Tick(dataset, state string, ready bool, records int) {
	if d == nil {
		return
	}
	d.Ticks.WithLabelValues(dataset, state).Inc()
	if ready {
		d.Records.WithLabelValues(dataset).Set(float64(records))
	}
}
