// Package loop provides the daemon's cooperative main-loop driver: a
// fixed-rate ticker advancing every Tickable in turn, plus panic-safe
// goroutine supervision for the daemon's side processes (the events hub,
// the listener, periodic persistence). Adapted from the teacher's
// cmd/dmr-nexus/main.go goroutine-per-concern wiring, replacing its raw
// sync.WaitGroup with github.com/sourcegraph/conc's panic-propagating
// WaitGroup -- a crash in one supervised goroutine should bring the daemon
// down loudly, not vanish silently.
package loop

import (
	"context"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/kbable/ble-adv-bridge/pkg/logger"
)

// Tickable is any component whose Tick(now) method advances its own state
// by one step. Controller and Scheduler both satisfy this shape.
type Tickable interface {
	Tick(now time.Time)
}

// Driver runs every registered Tickable at a fixed interval until its
// context is cancelled, mirroring the single-threaded cooperative
// scheduling model spec.md section 5 describes: one goroutine, one ticker,
// no locking between Tick calls.
type Driver struct {
	interval time.Duration
	tickables []Tickable
	log      *logger.Logger
}

// NewDriver returns a Driver ticking every interval.
func NewDriver(interval time.Duration, log *logger.Logger) *Driver {
	return &Driver{interval: interval, log: log.WithComponent("loop")}
}

// Register adds t to the set of components advanced on every tick, in
// registration order.
func (d *Driver) Register(t Tickable) {
	d.tickables = append(d.tickables, t)
}

// Run blocks, ticking every registered Tickable at d.interval, until ctx is
// cancelled.
func (d *Driver) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Debug("main loop stopping")
			return
		case now := <-ticker.C:
			for _, t := range d.tickables {
				t.Tick(now)
			}
		}
	}
}

// Supervisor runs a set of background goroutines (the events hub, the
// listener, periodic persistence) and waits for all of them, propagating
// any panic from a supervised goroutine to the caller of Wait instead of
// crashing the whole process silently.
type Supervisor struct {
	wg  conc.WaitGroup
	log *logger.Logger
}

// NewSupervisor returns an empty Supervisor.
func NewSupervisor(log *logger.Logger) *Supervisor {
	return &Supervisor{log: log.WithComponent("supervisor")}
}

// Go starts fn in a supervised goroutine.
func (s *Supervisor) Go(fn func()) {
	s.wg.Go(fn)
}

// Wait blocks until every supervised goroutine has returned, re-panicking
// with the original value if any of them panicked.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}
