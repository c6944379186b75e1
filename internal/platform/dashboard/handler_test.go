package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/ehr/patientsim/internal/platform/metrics"
	"github.com/ehr/patientsim/internal/platform/websocket"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []websocket.Event
}

func (c *capturePublisher) Publish(_ context.Context, ev websocket.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func newTestServer(t *testing.T, store *Store, reg *prometheus.Registry) *echo.Echo {
	t.Helper()
	e := echo.New()
	var g prometheus.Gatherer
	if reg != nil {
		g = reg
	}
	NewHandler(store, g).RegisterRoutes(e)
	return e
}

func do(e *echo.Echo, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Health(t *testing.T) {
	e := newTestServer(t, NewStore(nil, zerolog.Nop()), nil)
	rec := do(e, "/health")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(e, "/metrics"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected /metrics to be absent without a gatherer, got %d", rec.Code)
	}
}

func TestHandler_Snapshots(t *testing.T) {
	store := NewStore(nil, zerolog.Nop())
	e := newTestServer(t, store, nil)

	rec := do(e, "/api/v1/snapshots")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty list, got %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(e, "/api/v1/snapshots/changing"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any tick, got %d", rec.Code)
	}
	if rec := do(e, "/api/v1/snapshots/other"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown dataset, got %d", rec.Code)
	}

	store.Publish(readySnapshot(t, KindChanging))
	store.Publish(Snapshot{Dataset: KindConstant, State: StateWaiting, Message: "waiting"})

	rec = do(e, "/api/v1/snapshots/changing")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var snap Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !snap.Ready() || snap.Summary == nil || snap.Summary.Records != 30 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	var list []Snapshot
	rec = do(e, "/api/v1/snapshots")
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 2 || list[0].Dataset != KindConstant || list[1].Dataset != KindChanging {
		t.Fatalf("unexpected list order %+v", list)
	}

	rec = do(e, "/")
	if !strings.Contains(rec.Body.String(), "[waiting]") || !strings.Contains(rec.Body.String(), "[ready]") {
		t.Fatalf("unexpected text view:\n%s", rec.Body.String())
	}
}

func TestHandler_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewDashboard(reg)
	m.Tick("changing", "ready", true, 3)

	rec := do(newTestServer(t, NewStore(nil, zerolog.Nop()), reg), "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "patientsim_dashboard_ticks_total") {
		t.Fatalf("unexpected metrics response %d:\n%s", rec.Code, rec.Body.String())
	}
}

func TestStore_PublishesEvents(t *testing.T) {
	pub := &capturePublisher{}
	store := NewStore(pub, zerolog.Nop())

	store.Publish(Snapshot{Dataset: KindChanging, State: StateIncomplete, Message: "no records"})

	if len(pub.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(pub.events))
	}
	ev := pub.events[0]
	if ev.Type != EventSnapshot || ev.Topic != "changing" || ev.State != "incomplete" {
		t.Fatalf("unexpected event %+v", ev)
	}
	var snap Snapshot
	if err := json.Unmarshal(ev.Data, &snap); err != nil || snap.Message != "no records" {
		t.Fatalf("event must carry the snapshot, got %v %+v", err, snap)
	}
	if got, ok := store.Get(KindChanging); !ok || got.State != StateIncomplete {
		t.Fatalf("store must keep the snapshot, got %+v %v", got, ok)
	}
}
