package producer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/ehr/patientsim/internal/domain/observation"
	"github.com/ehr/patientsim/internal/platform/channel"
	"github.com/ehr/patientsim/internal/platform/metrics"
)

func testProfile() observation.Profile {
	p := observation.DefaultProfile()
	p.NumPatients = 3
	p.PastDays = 6
	return p
}

func newTestLoop(opts Options) (*Loop, *channel.MemoryChannel, *channel.MemoryChannel) {
	constant := channel.NewMemoryChannel("constant")
	changing := channel.NewMemoryChannel("changing")
	if opts.Seed == 0 {
		opts.Seed = 11
	}
	if opts.Interval == 0 {
		opts.Interval = 5 * time.Millisecond
	}
	return New(testProfile(), opts, constant, changing, zerolog.Nop()), constant, changing
}

func TestBootstrap_WritesBothDatasets(t *testing.T) {
	l, constant, changing := newTestLoop(Options{UpdatesPerCycle: 5})
	if err := l.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	for _, ch := range []*channel.MemoryChannel{constant, changing} {
		rows, err := ch.Read(context.Background())
		if err != nil {
			t.Fatalf("read %s: %v", ch.Name(), err)
		}
		if len(rows) != 3*7 {
			t.Fatalf("%s: expected 21 rows, got %d", ch.Name(), len(rows))
		}
	}
}

func TestCycle_FromMissingDataset(t *testing.T) {
	l, _, changing := newTestLoop(Options{UpdatesPerCycle: 5})
	res, err := l.Cycle(context.Background())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if res.Previous != 0 || res.Total != 5 {
		t.Fatalf("unexpected result %+v", res)
	}
	rows, _ := changing.Read(context.Background())
	if len(rows) != 5 {
		t.Fatalf("expected 5 rows persisted, got %d", len(rows))
	}
}

func TestCycle_KeepsSizeAfterBootstrap(t *testing.T) {
	l, _, changing := newTestLoop(Options{UpdatesPerCycle: 5})
	ctx := context.Background()
	if err := l.Bootstrap(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		if _, err := l.Cycle(ctx); err != nil {
			t.Fatal(err)
		}
	}
	rows, _ := changing.Read(ctx)
	if len(rows) != 21 {
		t.Fatalf("expected size to stay 21, got %d", len(rows))
	}
}

func TestCycle_WriteFailureDiscardsResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewProducer(reg)
	l, _, changing := newTestLoop(Options{UpdatesPerCycle: 5, Metrics: m})
	ctx := context.Background()
	if err := changing.Write(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Cycle(ctx); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("read-only filesystem")
	changing.FailWrites(boom)
	if _, err := l.Cycle(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected write error, got %v", err)
	}
	changing.FailWrites(nil)

	rows, _ := changing.Read(ctx)
	if len(rows) != 5 {
		t.Fatalf("expected last durable state of 5 rows, got %d", len(rows))
	}
	if got := testutil.ToFloat64(m.WriteFailures); got != 1 {
		t.Errorf("expected 1 write failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.Cycles); got != 1 {
		t.Errorf("expected 1 completed cycle, got %v", got)
	}
}

func TestCycle_MalformedDatasetTreatedAsEmpty(t *testing.T) {
	l, _, changing := newTestLoop(Options{UpdatesPerCycle: 2})
	changing.WriteTable(&channel.Table{Header: []string{"patient_id"}, Rows: [][]string{{"1"}, {"2"}, {"3"}}})
	res, err := l.Cycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Previous != 0 || res.Total != 2 {
		t.Fatalf("expected fresh dataset of 2, got %+v", res)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	l, constant, changing := newTestLoop(Options{UpdatesPerCycle: 5})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for changing.Writes() < 4 {
		if time.Now().After(deadline) {
			t.Fatal("producer did not cycle in time")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("producer did not stop after cancel")
	}

	if l.State() != StateStopped {
		t.Errorf("expected stopped state, got %s", l.State())
	}
	if constant.Writes() != 1 {
		t.Errorf("expected constant dataset to be written once, got %d", constant.Writes())
	}
	rows, _ := changing.Read(context.Background())
	if len(rows) != 21 {
		t.Errorf("expected size 21 after cycles, got %d", len(rows))
	}
}

func TestRun_WriteFailuresDoNotStopLoop(t *testing.T) {
	l, _, changing := newTestLoop(Options{UpdatesPerCycle: 1, SkipBootstrap: true})
	changing.FailWrites(errors.New("transient"))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := l.Run(ctx); err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
	if changing.Writes() != 0 {
		t.Fatalf("expected no successful writes, got %d", changing.Writes())
	}
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	l, constant, _ := newTestLoop(Options{UpdatesPerCycle: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Run(ctx); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if constant.Writes() != 0 {
		t.Errorf("expected no bootstrap after cancel, got %d writes", constant.Writes())
	}
}

func TestState_String(t *testing.T) {
	if StateSleep.String() != "sleep" || StateInit.String() != "init" {
		t.Fatal("unexpected state names")
	}
	if l, _, _ := newTestLoop(Options{}); l.State() != StateInit {
		t.Fatalf("expected init state, got %s", l.State())
	}
}
