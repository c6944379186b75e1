package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/patientsim/internal/platform/channel"
	"github.com/ehr/patientsim/internal/platform/metrics"
)

const (
	// ConstantRetryDelay is how often the constant dataset is re-read
	// until it loads.
	ConstantRetryDelay = 2 * time.Second
	// DefaultInterval is the changing dataset refresh period.
	DefaultInterval = 5 * time.Second
)

// Sink receives every snapshot a poller produces.
type Sink interface {
	Publish(Snapshot)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Snapshot)

func (f SinkFunc) Publish(s Snapshot) { f(s) }

// Sinks fans a snapshot out to several sinks in order.
type Sinks []Sink

func (ss Sinks) Publish(s Snapshot) {
	for _, sink := range ss {
		if sink != nil {
			sink.Publish(s)
		}
	}
}

// Poller reads one channel on a schedule and turns its contents into
// snapshots.
type Poller struct {
	kind     Kind
	source   channel.Channel
	interval time.Duration
	sink     Sink
	metrics  *metrics.Dashboard
	logger   zerolog.Logger
	now      func() time.Time

	mu        sync.RWMutex
	last      Snapshot
	lastReady time.Time
}

// Option configures a Poller.
type Option func(*Poller)

func WithSink(s Sink) Option {
	return func(p *Poller) { p.sink = s }
}

func WithMetrics(m *metrics.Dashboard) Option {
	return func(p *Poller) { p.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// NewChangingPoller watches the changing dataset, re-reading it every
// interval for as long as it runs.
func NewChangingPoller(source channel.Channel, interval time.Duration, logger zerolog.Logger, opts ...Option) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return newPoller(KindChanging, source, interval, logger, opts)
}

// NewConstantPoller watches the constant dataset. It retries every retry
// period until the dataset loads, then stops.
func NewConstantPoller(source channel.Channel, retry time.Duration, logger zerolog.Logger, opts ...Option) *Poller {
	if retry <= 0 {
		retry = ConstantRetryDelay
	}
	return newPoller(KindConstant, source, retry, logger, opts)
}

func newPoller(kind Kind, source channel.Channel, interval time.Duration, logger zerolog.Logger, opts []Option) *Poller {
	p := &Poller{
		kind:     kind,
		source:   source,
		interval: interval,
		logger:   logger.With().Str("component", "dashboard").Str("dataset", string(kind)).Logger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Poller) Kind() Kind { return p.kind }

// Last returns the most recent snapshot, the zero value before the first
// tick.
func (p *Poller) Last() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

// NextDelay reports when the poller wants to tick again after producing
// s. The constant poller is done once it has shown ready data.
func (p *Poller) NextDelay(s Snapshot) (time.Duration, bool) {
	if p.kind == KindConstant && s.Ready() {
		return 0, false
	}
	return p.interval, true
}

// Tick reads the source once and publishes the resulting snapshot. It
// never returns an error and never panics: every failure is encoded in
// the snapshot's state.
func (p *Poller) Tick(ctx context.Context) (snap Snapshot) {
	snap = Snapshot{Dataset: p.kind, Source: p.source.Name(), Note: StalenessNote, UpdatedAt: p.now()}
	defer func() {
		if r := recover(); r != nil {
			snap = failed(snap, fmt.Errorf("%v", r))
			p.logger.Error().Interface("panic", r).Msg("tick recovered from panic")
		}
		p.finish(&snap)
	}()
	return p.evaluate(ctx, snap)
}

func (p *Poller) evaluate(ctx context.Context, snap Snapshot) Snapshot {
	table, err := p.source.ReadTable(ctx)
	if err != nil {
		switch {
		case errors.Is(err, channel.ErrNotReady):
			snap.State = StateWaiting
			snap.Message = p.waitingMessage()
			return snap
		case errors.Is(err, channel.ErrMalformed):
			return incomplete(snap, err)
		default:
			return failed(snap, err)
		}
	}

	frame := Derive(table)
	if err := frame.Validate(); err != nil {
		return incomplete(snap, err)
	}
	charts, err := BuildCharts(frame, p.kind == KindChanging)
	if err != nil {
		return failed(snap, err)
	}
	summary := Summarize(frame)
	snap.State = StateReady
	snap.Summary = &summary
	snap.Charts = charts
	snap.Message = InfoText(p.kind, snap.UpdatedAt, summary)
	return snap
}

func (p *Poller) waitingMessage() string {
	if p.kind == KindConstant {
		return fmt.Sprintf("Error: '%s' not found. Waiting for data...", p.source.Name())
	}
	return "Data is currently empty or incomplete. Waiting for records..."
}

func incomplete(s Snapshot, err error) Snapshot {
	s.State = StateIncomplete
	s.Message = "Data is currently empty or incomplete. " + err.Error()
	s.Summary, s.Charts = nil, nil
	return s
}

func failed(s Snapshot, err error) Snapshot {
	s.State = StateError
	s.Message = "An error occurred: " + err.Error()
	s.Summary, s.Charts = nil, nil
	return s
}

func (p *Poller) finish(s *Snapshot) {
	p.mu.Lock()
	prev := p.last.State
	if s.Ready() {
		p.lastReady = s.UpdatedAt
	}
	if !p.lastReady.IsZero() {
		at := p.lastReady
		s.LastReadyAt = &at
	}
	p.last = *s
	p.mu.Unlock()

	records := 0
	if s.Summary != nil {
		records = s.Summary.Records
	}
	p.metrics.Tick(string(p.kind), string(s.State), s.Ready(), records)

	ev := p.logger.Debug()
	if s.State != prev && (s.State == StateIncomplete || s.State == StateError) {
		ev = p.logger.Warn()
	}
	ev.Str("state", string(s.State)).Int("records", records).Str("message", s.Message).Msg("dashboard tick")

	p.publish(*s)
}

func (p *Poller) publish(s Snapshot) {
	if p.sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Interface("panic", r).Msg("snapshot sink panicked")
		}
	}()
	p.sink.Publish(s)
}

// Run ticks until the poller is done or ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		delay, again := p.NextDelay(p.Tick(ctx))
		if !again {
			return nil
		}
		timer.Reset(delay)
	}
}
