package starbook

import (
	"context"
	"log"
	"time"
)

// DefaultPollInterval is how often the mount is polled when the caller
// does not override it.
const DefaultPollInterval = 5 * time.Second

// Poller drives the session's status refresh on a fixed cadence. A
// communication failure halts it; Start (or StartPoller) begins a new
// run. Garbled replies never reach it, the session absorbs those.
type Poller struct {
	sess *Session

	// Interval between refreshes; DefaultPollInterval when zero.
	Interval time.Duration
	// Observe, when set, receives the result of every tick.
	Observe func(error)
}

func (p *Poller) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		err := p.sess.RefreshStatus(ctx)
		if p.Observe != nil {
			p.Observe(err)
		}
		if err != nil {
			log.Printf("status poll: %v; polling stopped", err)
			return err
		}
	}
}
