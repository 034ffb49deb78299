// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package reclaimer runs the background loop that returns abandoned
// terminals to the pool, and drains this process's own leases when
// the worker is stopped.
package reclaimer

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/retry"
	"github.com/juju/worker/v4"
	"gopkg.in/tomb.v2"
)

var logger = loggo.GetLogger("termpool.worker.reclaimer")

const (
	// DefaultInterval is how often the reclaim scan runs when no
	// interval is configured.
	DefaultInterval = 15 * time.Second

	// maxBackoffInterval caps how far consecutive scan failures can
	// push the next attempt out.
	maxBackoffInterval = 5 * time.Minute

	// drainTimeout bounds the final release pass on shutdown, so a
	// wedged store cannot stall process termination.
	drainTimeout = 30 * time.Second
)

// backOffStrategy spaces out retries after failed scans.
var backOffStrategy = retry.ExpBackoff(DefaultInterval, maxBackoffInterval, 1.5, false)

// Pool is the slice of the pool manager the reclaimer drives.
type Pool interface {
	// ReclaimOrphans returns abandoned terminals to the pool and
	// reports how many were reclaimed.
	ReclaimOrphans(ctx context.Context) (int, error)

	// ReleaseOwned releases every lease held by this process
	// identity, best-effort.
	ReleaseOwned(ctx context.Context) int
}

// WorkerConfig encapsulates the configuration options for the
// reclaimer worker.
type WorkerConfig struct {
	Pool     Pool
	Clock    clock.Clock
	Interval time.Duration
}

// Validate ensures that the config values are valid.
func (c WorkerConfig) Validate() error {
	if c.Pool == nil {
		return errors.NotValidf("missing Pool")
	}
	if c.Clock == nil {
		return errors.NotValidf("missing Clock")
	}
	return nil
}

// Reclaimer is a worker that periodically reclaims orphaned
// terminals. Stopping it triggers a final best-effort release of the
// leases this process holds.
type Reclaimer struct {
	tomb tomb.Tomb

	cfg WorkerConfig
}

var _ worker.Worker = (*Reclaimer)(nil)

// NewWorker creates and starts a Reclaimer.
func NewWorker(cfg WorkerConfig) (*Reclaimer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	w := &Reclaimer{cfg: cfg}
	w.tomb.Go(w.loop)
	return w, nil
}

// Kill is part of the worker.Worker interface.
func (w *Reclaimer) Kill() {
	w.tomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (w *Reclaimer) Wait() error {
	return w.tomb.Wait()
}

func (w *Reclaimer) loop() error {
	defer w.drain()

	timer := w.cfg.Clock.NewTimer(w.cfg.Interval)
	defer timer.Stop()

	var failures int
	for {
		select {
		case <-w.tomb.Dying():
			return tomb.ErrDying

		case <-timer.Chan():
			reclaimed, err := w.cfg.Pool.ReclaimOrphans(w.tomb.Context(context.Background()))
			if err != nil {
				// The store being briefly unreachable is not fatal
				// to the worker; back off and try again.
				failures++
				logger.Errorf("orphan reclaim failed (attempt %d): %v", failures, err)
				timer.Reset(backOffStrategy(0, failures))
				continue
			}
			failures = 0
			if reclaimed > 0 {
				logger.Infof("reclaimed %d orphaned terminals", reclaimed)
			}
			timer.Reset(w.cfg.Interval)
		}
	}
}

// drain releases this process's leases on the way out. The tomb is
// already dying here, so the pass runs under its own bounded context.
func (w *Reclaimer) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	w.cfg.Pool.ReleaseOwned(ctx)
}
