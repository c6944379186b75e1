package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestProducer_CycleCompleted(t *testing.T) {
	m := NewProducer(prometheus.NewRegistry())
	m.CycleCompleted(5, 5, 20)
	m.CycleCompleted(3, 5, 5)

	if got := testutil.ToFloat64(m.Cycles); got != 2 {
		t.Errorf("expected 2 cycles, got %v", got)
	}
	if got := testutil.ToFloat64(m.RowsDropped); got != 8 {
		t.Errorf("expected 8 dropped rows, got %v", got)
	}
	if got := testutil.ToFloat64(m.DatasetSize); got != 5 {
		t.Errorf("expected dataset size 5, got %v", got)
	}
}

func TestProducer_CycleFailed(t *testing.T) {
	m := NewProducer(prometheus.NewRegistry())
	m.CycleFailed()
	if got := testutil.ToFloat64(m.WriteFailures); got != 1 {
		t.Errorf("expected 1 failure, got %v", got)
	}
}

func TestDashboard_Tick(t *testing.T) {
	m := NewDashboard(prometheus.NewRegistry())
	m.Tick("changing", "waiting", false, 0)
	m.Tick("changing", "ready", true, 40)

	if got := testutil.ToFloat64(m.Ticks.WithLabelValues("changing", "waiting")); got != 1 {
		t.Errorf("expected 1 waiting tick, got %v", got)
	}
	if got := testutil.ToFloat64(m.Records.WithLabelValues("changing")); got != 40 {
		t.Errorf("expected 40 records, got %v", got)
	}
}

func TestNilCollectorsAreNoops(t *testing.T) {
	var p *Producer
	p.CycleCompleted(1, 1, 1)
	p.CycleFailed()
	var d *Dashboard
	d.Tick("constant", "ready", true, 1)
}
