// Package scheduler implements the advertiser scheduler (C6): the single
// process-wide component that time-slices the shared radio across every
// controller's queued broadcast items.
package scheduler

import (
	"time"

	"github.com/kbable/ble-adv-bridge/pkg/frame"
	"github.com/kbable/ble-adv-bridge/pkg/logger"
	"github.com/kbable/ble-adv-bridge/pkg/metrics"
	"github.com/kbable/ble-adv-bridge/pkg/radio"
)

// entry is one controller's in-flight broadcast item. A single entry may
// carry more than one Frame (one per active codec); the scheduler cycles
// through them using each Frame's own Duration so several codec variants
// share one controller's turn on the radio (spec.md 4.5's seq_duration
// rotation), independent of the round-robin rotation between entries.
type entry struct {
	id          uint16
	frames      []frame.Frame
	frameIdx    int
	stopTime    time.Time
	toBeRemoved bool
	processed   bool
}

// Scheduler is the process-wide singleton owning the radio. Constructed
// once in main and passed by reference to every controller.
type Scheduler struct {
	radio   radio.Driver
	log     *logger.Logger
	metrics *metrics.Collector

	entries []*entry
	onAir   *entry
	nextID  uint16
}

// New returns a Scheduler driving the given radio.
func New(driver radio.Driver, log *logger.Logger, collector *metrics.Collector) *Scheduler {
	return &Scheduler{
		radio:   driver,
		log:     log.WithComponent("scheduler"),
		metrics: collector,
	}
}

// Add appends frames as a new in-flight entry and returns its id. Ownership
// of frames transfers to the scheduler: callers must not mutate or reuse
// the slice afterward.
func (s *Scheduler) Add(frames []frame.Frame) uint16 {
	s.nextID++
	if s.nextID == 0 {
		s.nextID = 1
	}
	id := s.nextID
	s.entries = append(s.entries, &entry{id: id, frames: frames})
	return id
}

// Remove marks the entry with id for eviction at the next opportunity; it
// keeps broadcasting until its current on-air window naturally expires.
func (s *Scheduler) Remove(id uint16) {
	for _, e := range s.entries {
		if e.id == id {
			e.toBeRemoved = true
			return
		}
	}
}

// Tick advances the scheduler's main loop by one step: evicting removed
// entries, starting the next entry when idle, and rotating or dropping the
// on-air entry once its window expires (spec.md 4.6).
func (s *Scheduler) Tick(now time.Time) {
	if s.onAir == nil {
		s.evictRemoved()
		if len(s.entries) == 0 {
			return
		}
		s.beginEntry(s.entries[0], now)
		return
	}

	e := s.onAir
	if now.Before(e.stopTime) {
		return
	}

	if e.frameIdx+1 < len(e.frames) {
		if err := s.radio.StopAdvertising(); err != nil {
			s.log.Error("stop advertising failed", logger.Error(err))
			return
		}
		e.frameIdx++
		s.configureAndStart(e, now)
		return
	}

	if len(s.entries) > 1 || e.toBeRemoved {
		if err := s.radio.StopAdvertising(); err != nil {
			s.log.Error("stop advertising failed", logger.Error(err))
		}
		e.processed = true
		s.onAir = nil
		if e.toBeRemoved {
			s.dropEntry(e)
		} else {
			s.rotateToBack(e)
			s.metrics.SchedulerRotated()
		}
		return
	}

	// Single entry, not marked for removal: keep it on air indefinitely,
	// restarting from its first frame -- the economical fire-and-forget case.
	if err := s.radio.StopAdvertising(); err != nil {
		s.log.Error("stop advertising failed", logger.Error(err))
		return
	}
	e.frameIdx = 0
	s.configureAndStart(e, now)
}

func (s *Scheduler) beginEntry(e *entry, now time.Time) {
	e.frameIdx = 0
	s.configureAndStart(e, now)
}

func (s *Scheduler) configureAndStart(e *entry, now time.Time) {
	f := e.frames[e.frameIdx]
	if err := s.radio.Configure(f.Bytes()); err != nil {
		s.log.Error("configure failed", logger.Error(err))
		return
	}
	if err := s.radio.StartAdvertising(); err != nil {
		s.log.Error("start advertising failed", logger.Error(err))
		return
	}
	dur := f.Duration
	if dur <= 0 {
		dur = frame.DefaultDuration
	}
	e.stopTime = now.Add(time.Duration(dur) * time.Millisecond)
	s.onAir = e
}

func (s *Scheduler) evictRemoved() {
	filtered := s.entries[:0]
	for _, e := range s.entries {
		if e.toBeRemoved && e.processed {
			continue
		}
		filtered = append(filtered, e)
	}
	s.entries = filtered
}

func (s *Scheduler) dropEntry(e *entry) {
	filtered := s.entries[:0]
	for _, other := range s.entries {
		if other != e {
			filtered = append(filtered, other)
		}
	}
	s.entries = filtered
}

func (s *Scheduler) rotateToBack(e *entry) {
	if len(s.entries) == 0 || s.entries[0] != e {
		return
	}
	s.entries = append(s.entries[1:], e)
}

// Len reports the number of in-flight entries, for diagnostics and tests.
func (s *Scheduler) Len() int {
	return len(s.entries)
}
