package dashboard

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/patientsim/internal/platform/channel"
)

func readySnapshot(t *testing.T, kind Kind) Snapshot {
	t.Helper()
	src := channel.NewMemoryChannel(string(kind) + "_patient_data.csv")
	_ = src.Write(context.Background(), sampleRows(30))
	var p *Poller
	if kind == KindChanging {
		p = NewChangingPoller(src, time.Second, zerolog.Nop(), WithClock(clock))
	} else {
		p = NewConstantPoller(src, time.Second, zerolog.Nop(), WithClock(clock))
	}
	snap := p.Tick(context.Background())
	if !snap.Ready() {
		t.Fatalf("fixture not ready: %s", snap.Message)
	}
	return snap
}

func TestRenderText_Ready(t *testing.T) {
	out := RenderText(readySnapshot(t, KindChanging))
	for _, want := range []string{
		"=== changing (changing_patient_data.csv) [ready] ===",
		"--- Real-Time Analysis ---",
		StalenessNote,
		"Glucose Level Distribution",
		"HbA1c Reading Distribution",
		"HbA1c vs Glucose Level (n=30",
		"Glucose Levels Over Time (n=30)",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderText_NotReady(t *testing.T) {
	last := fixedNow.Add(-time.Minute)
	out := RenderText(Snapshot{
		Dataset:     KindChanging,
		Source:      "changing_patient_data.csv",
		State:       StateIncomplete,
		Message:     "Data is currently empty or incomplete. no records",
		LastReadyAt: &last,
	})
	if !strings.Contains(out, "[incomplete]") || !strings.Contains(out, "Last good data: 2025-03-14 09:29:00") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if strings.Contains(out, StalenessNote) || strings.Contains(out, "Distribution") {
		t.Fatalf("non-ready output must not show charts:\n%s", out)
	}
}

func TestTextRenderer_RedrawsAllDatasets(t *testing.T) {
	var buf bytes.Buffer
	r := NewTextRenderer(&buf, true)

	r.Publish(Snapshot{Dataset: KindChanging, State: StateWaiting, Message: "changing waiting"})
	r.Publish(Snapshot{Dataset: KindConstant, State: StateWaiting, Message: "constant waiting"})

	frames := strings.Split(buf.String(), clearConsole)
	last := frames[len(frames)-1]
	if len(frames) != 3 {
		t.Fatalf("expected two redraws, got %d", len(frames)-1)
	}
	ci, gi := strings.Index(last, "constant waiting"), strings.Index(last, "changing waiting")
	if ci < 0 || gi < 0 || ci > gi {
		t.Fatalf("expected constant then changing in the last frame:\n%s", last)
	}
}

func TestDownsample(t *testing.T) {
	got := downsample([]float64{1, 3, 5, 7}, 2)
	if len(got) != 2 || got[0] != 2 || got[1] != 6 {
		t.Fatalf("unexpected downsample %v", got)
	}
	if got := downsample([]float64{1}, 5); len(got) != 1 {
		t.Fatalf("short input must pass through, got %v", got)
	}
}
