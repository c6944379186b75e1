package dashboard

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Dashboard drives several pollers from a single goroutine. Ticks never
// overlap, so sinks see snapshots one at a time.
type Dashboard struct {
	pollers []*Poller
	logger  zerolog.Logger
	now     func() time.Time
}

func New(logger zerolog.Logger, pollers ...*Poller) *Dashboard {
	return &Dashboard{
		pollers: pollers,
		logger:  logger.With().Str("component", "dashboard").Logger(),
		now:     time.Now,
	}
}

// Run ticks every poller as it falls due. Finished pollers drop out; once
// none remain Run waits for ctx so the view stays up.
func (d *Dashboard) Run(ctx context.Context) error {
	due := make(map[*Poller]time.Time, len(d.pollers))
	start := d.now()
	for _, p := range d.pollers {
		due[p] = start
	}
	d.logger.Info().Int("pollers", len(d.pollers)).Msg("dashboard started")

	for {
		if len(due) == 0 {
			d.logger.Info().Msg("all datasets settled")
			<-ctx.Done()
			return nil
		}
		next, at := d.earliest(due)
		wait := at.Sub(d.now())
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			d.logger.Info().Msg("dashboard stopped")
			return nil
		case <-timer.C:
		}
		delay, again := next.NextDelay(next.Tick(ctx))
		if !again {
			d.logger.Info().Str("dataset", string(next.Kind())).Msg("dataset loaded, polling stopped")
			delete(due, next)
			continue
		}
		due[next] = d.now().Add(delay)
	}
}

// earliest picks the poller due soonest, ties going to registration order.
func (d *Dashboard) earliest(due map[*Poller]time.Time) (*Poller, time.Time) {
	var (
		best *Poller
		at   time.Time
	)
	for _, p := range d.pollers {
		t, ok := due[p]
		if !ok {
			continue
		}
		if best == nil || t.Before(at) {
			best, at = p, t
		}
	}
	return best, at
}
