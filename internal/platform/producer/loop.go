// Package producer drives the changing dataset: it bootstraps both
// datasets and then mutates the changing one on a fixed interval until
// its context is cancelled.
package producer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/patientsim/internal/domain/dataset"
	"github.com/ehr/patientsim/internal/domain/observation"
	"github.com/ehr/patientsim/internal/platform/channel"
	"github.com/ehr/patientsim/internal/platform/metrics"
)

// State is the position of the loop in Init → Bootstrap → {Cycle → Sleep}* → Stopped.
type State int32

const (
	StateInit State = iota
	StateBootstrap
	StateCycle
	StateSleep
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateBootstrap:
		return "bootstrap"
	case StateCycle:
		return "cycle"
	case StateSleep:
		return "sleep"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Options tune a Loop.
type Options struct {
	UpdatesPerCycle int
	Interval        time.Duration
	// Seed makes generation reproducible; 0 picks a time-based seed.
	Seed int64
	// SkipBootstrap starts cycling against whatever the channels hold.
	SkipBootstrap bool
	Metrics       *metrics.Producer
	Clock         func() time.Time
}

// Loop is the producer state machine. Run must not be called
// concurrently with itself or with Cycle.
type Loop struct {
	constant channel.Channel
	changing channel.Channel
	synth    *observation.Synthesizer
	mutator  *dataset.Mutator
	opts     Options
	logger   zerolog.Logger
	runID    string
	state    atomic.Int32
}

// New builds a loop writing the constant and changing datasets to the
// given channels.
func New(profile observation.Profile, opts Options, constant, changing channel.Channel, logger zerolog.Logger) *Loop {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	seed := opts.Seed
	synth := observation.NewSynthesizer(profile, seed)
	synth.SetClock(opts.Clock)
	if seed != 0 {
		seed++
	}

	runID := uuid.New().String()
	return &Loop{
		constant: constant,
		changing: changing,
		synth:    synth,
		mutator:  dataset.NewMutator(synth, opts.UpdatesPerCycle, seed),
		opts:     opts,
		logger:   logger.With().Str("component", "producer").Str("run_id", runID).Logger(),
		runID:    runID,
	}
}

// State returns the current state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
}

// Bootstrap writes a full historical window to both channels, constant
// first.
func (l *Loop) Bootstrap(ctx context.Context) error {
	l.setState(StateBootstrap)
	end := l.opts.Clock()

	for _, target := range []channel.Channel{l.constant, l.changing} {
		rows := l.synth.History(end)
		if err := target.Write(ctx, rows); err != nil {
			return fmt.Errorf("bootstrap %s: %w", target.Name(), err)
		}
		l.logger.Info().Str("dataset", target.Name()).Int("records", len(rows)).Msg("dataset exported")
	}
	return nil
}

// Cycle runs one drop-then-add-then-persist iteration. An unreadable
// changing dataset is treated as empty. When the write fails the new
// dataset is discarded and the error returned; the next cycle starts from
// whatever the channel last held.
func (l *Loop) Cycle(ctx context.Context) (dataset.Result, error) {
	cycleID := uuid.New().String()
	log := l.logger.With().Str("cycle_id", cycleID).Logger()

	current, err := l.changing.Read(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("changing dataset unreadable; treating as empty")
		current = nil
	}

	next, res := l.mutator.Cycle(current)
	if err := l.changing.Write(ctx, next); err != nil {
		l.opts.Metrics.CycleFailed()
		return res, fmt.Errorf("persist cycle %s: %w", cycleID, err)
	}

	l.opts.Metrics.CycleCompleted(res.Dropped, res.Added, res.Total)
	log.Info().
		Int("dropped", res.Dropped).
		Int("added", res.Added).
		Int("total", res.Total).
		Bool("full_clear", res.FullClear).
		Msg("cycle complete")
	return res, nil
}

// Run bootstraps (unless disabled) and then cycles until ctx is
// cancelled. Cancellation is honoured only between a cycle and the
// following sleep; an in-flight cycle always completes. A cancelled
// context is a clean stop and returns nil.
func (l *Loop) Run(ctx context.Context) error {
	defer l.setState(StateStopped)

	l.logger.Info().
		Int("updates_per_cycle", l.mutator.UpdatesPerCycle()).
		Dur("interval", l.opts.Interval).
		Msg("continuous data generation started")

	if !l.opts.SkipBootstrap {
		if err := l.Bootstrap(ctx); err != nil {
			if ctx.Err() != nil {
				l.logger.Info().Msg("continuous data update stopped")
				return nil
			}
			return err
		}
	}

	timer := time.NewTimer(l.opts.Interval)
	timer.Stop()
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			l.logger.Info().Msg("continuous data update stopped")
			return nil
		}

		l.setState(StateCycle)
		if _, err := l.Cycle(context.WithoutCancel(ctx)); err != nil {
			l.logger.Error().Err(err).Msg("cycle failed")
		}

		l.setState(StateSleep)
		timer.Reset(l.opts.Interval)
		select {
		case <-ctx.Done():
			l.logger.Info().Msg("continuous data update stopped")
			return nil
		case <-timer.C:
		}
	}
}
