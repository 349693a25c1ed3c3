// Package controller implements the Controller (C5): one per logical
// device, owning an identity, an outbound broadcast-item queue, and the
// per-tick scheduling policy that hands queued items to the scheduler.
package controller

import (
	"fmt"
	"time"

	"github.com/kbable/ble-adv-bridge/pkg/codec"
	"github.com/kbable/ble-adv-bridge/pkg/frame"
	"github.com/kbable/ble-adv-bridge/pkg/gencmd"
	"github.com/kbable/ble-adv-bridge/pkg/logger"
	"github.com/kbable/ble-adv-bridge/pkg/metrics"
	"github.com/kbable/ble-adv-bridge/pkg/translate"
)

// Scheduler is the narrow slice of scheduler.Scheduler a controller needs.
// Defined here, not imported from pkg/scheduler, so the two packages don't
// depend on each other directly -- the teacher's own network/bridge split
// favors small local interfaces over a shared core package.
type Scheduler interface {
	Add(frames []frame.Frame) uint16
	Remove(id uint16)
}

// Entity is a child device (light, fan) a controller dispatches decoded or
// locally-originated commands to.
type Entity interface {
	EntityType() gencmd.EntityType
	EntityIndex() uint8
	Publish(gen gencmd.GenCmd)
}

// Item is a queued broadcast: a list of Frames (one per active codec) plus
// the bookkeeping the scheduler's round-robin needs. At most one Item per
// (Cmd, EntityType, EntityIndex) may be queued at a time (spec.md 3).
type Item struct {
	Cmd         gencmd.CommandType
	EntityType  gencmd.EntityType
	EntityIndex uint8
	Frames      []frame.Frame
	SchedulerID uint16
}

func (i Item) key() gencmd.CoalesceKey {
	return gencmd.CoalesceKey{Cmd: i.Cmd, EntityType: i.EntityType, EntityIndex: i.EntityIndex}
}

// onAir tracks the controller's currently-scheduled item.
type onAir struct {
	item  *Item
	start time.Time
}

// Config holds one controller's static configuration.
type Config struct {
	ID                     uint32
	Label                  string
	Codecs                 []codec.Codec
	MinTxDuration          time.Duration
	MaxTxDuration          time.Duration
	SeqDuration            time.Duration
	CancelTimerOnAnyChange bool
}

// Controller is one logical device: identity, queue, timers, and the
// entities it forwards decoded commands to.
type Controller struct {
	cfg         Config
	params      gencmd.ControllerParams
	translators *translate.Registry
	scheduler   Scheduler
	log         *logger.Logger
	metrics     *metrics.Collector

	queue []*Item
	onAir *onAir

	skipCommands bool
	entities     []Entity
	sentHooks    []func(gencmd.GenCmd)

	offTimer *time.Timer
}

// New constructs a Controller for one logical device.
func New(cfg Config, translators *translate.Registry, sched Scheduler, log *logger.Logger, collector *metrics.Collector) *Controller {
	return &Controller{
		cfg:         cfg,
		params:      gencmd.ControllerParams{ID: cfg.ID},
		translators: translators,
		scheduler:   sched,
		log:         log.WithComponent(fmt.Sprintf("controller.%s", cfg.Label)),
		metrics:     collector,
	}
}

// RegisterEntity adds a child entity this controller dispatches inbound
// commands to.
func (c *Controller) RegisterEntity(e Entity) {
	c.entities = append(c.entities, e)
}

// OnSent registers an observer invoked whenever Enqueue produces at least
// one frame.
func (c *Controller) OnSent(fn func(gencmd.GenCmd)) {
	c.sentHooks = append(c.sentHooks, fn)
}

// Params returns a copy of the controller's current identity/bookkeeping.
func (c *Controller) Params() gencmd.ControllerParams {
	return c.params
}

// RestoreParams overwrites the controller's rolling tx_count/restart_count
// with a previously persisted value, so a process restart doesn't reuse a
// counter value an already-paired device has already seen (spec.md
// section 3). Only TxCount and RestartCount are taken from saved; ID,
// Index and Seed stay as configured.
func (c *Controller) RestoreParams(saved gencmd.ControllerParams) {
	c.params.TxCount = saved.TxCount
	c.params.RestartCount = saved.RestartCount
}

// Enqueue translates and encodes gen through every active codec and queues
// the result, enforcing the cancel-timer, skip-commands and coalescing
// policies in that order (spec.md 4.5). Returns true iff at least one frame
// was produced.
func (c *Controller) Enqueue(gen gencmd.GenCmd) bool {
	if c.cfg.CancelTimerOnAnyChange && gen.EntityType != gencmd.CONTROLLER {
		c.CancelTimer()
	}
	if c.skipCommands {
		return false
	}

	c.coalesce(gen.Key())

	before := c.params.TxCount
	c.params.NextTxCount()
	if before > 126 {
		c.metrics.TxCountRolledOver()
	}

	item := &Item{Cmd: gen.Cmd, EntityType: gen.EntityType, EntityIndex: gen.EntityIndex}
	for _, cd := range c.cfg.Codecs {
		tr, err := c.translators.Get(cd.Encoding())
		if err != nil {
			c.log.Error("no translator for codec encoding", logger.String("encoding", cd.Encoding()), logger.Error(err))
			continue
		}
		for _, enc := range tr.G2E(gen) {
			f, err := cd.Encode(enc, c.params)
			if err != nil {
				c.log.Error("encode failed",
					logger.String("codec", cd.ID()),
					logger.Uint8("cmd", enc.Cmd),
					logger.Uint8("tx_count", c.params.TxCount),
					logger.Error(err))
				continue
			}
			item.Frames = append(item.Frames, f)
		}
	}

	if len(item.Frames) == 0 {
		return false
	}
	c.queue = append(c.queue, item)
	for _, hook := range c.sentHooks {
		hook(gen)
	}
	return true
}

// coalesce drops any queued item matching key, implementing "later state
// wins" (spec.md 5).
func (c *Controller) coalesce(key gencmd.CoalesceKey) {
	filtered := c.queue[:0]
	for _, item := range c.queue {
		if item.key() != key {
			filtered = append(filtered, item)
		}
	}
	c.queue = filtered
}

// Publish dispatches gen to every matching entity. apply=false (used when
// reacting to a decoded remote-button press) suppresses any Enqueue those
// entities trigger in response, so local state updates without re-sending
// a broadcast to the device.
func (c *Controller) Publish(gen gencmd.GenCmd, apply bool) {
	prev := c.skipCommands
	c.skipCommands = !apply
	defer func() { c.skipCommands = prev }()

	for _, e := range c.entities {
		if gen.Matches(e.EntityType(), e.EntityIndex()) {
			e.Publish(gen)
		}
	}
}

// CustomCmd bypasses translation: every active codec encodes enc directly.
func (c *Controller) CustomCmd(enc gencmd.EncCmd) bool {
	c.coalesce(gencmd.CoalesceKey{Cmd: gencmd.CUSTOM, EntityType: gencmd.ALL})
	c.params.NextTxCount()

	item := &Item{Cmd: gencmd.CUSTOM, EntityType: gencmd.ALL}
	for _, cd := range c.cfg.Codecs {
		f, err := cd.Encode(enc, c.params)
		if err != nil {
			c.log.Error("custom cmd encode failed",
				logger.String("codec", cd.ID()),
				logger.Uint8("cmd", enc.Cmd),
				logger.Uint8("tx_count", c.params.TxCount),
				logger.Error(err))
			continue
		}
		item.Frames = append(item.Frames, f)
	}
	if len(item.Frames) == 0 {
		return false
	}
	c.queue = append(c.queue, item)
	return true
}

// CustomCmdFloat is custom_cmd_float: a float-args convenience wrapper over
// CustomCmd, avoiding a separate integer/float command type.
func (c *Controller) CustomCmdFloat(cmd uint8, param1 uint8, args [3]float64) bool {
	enc := gencmd.EncCmd{Cmd: cmd, Param1: param1}
	for i, a := range args {
		enc.Args[i] = uint8(a)
	}
	return c.CustomCmd(enc)
}

// InjectRaw bypasses translation and encoding entirely, pushing a literal
// frame parsed from a hex string straight onto the queue.
func (c *Controller) InjectRaw(hexString string) error {
	f, err := frame.FromHexString(hexString)
	if err != nil {
		return fmt.Errorf("controller: inject_raw: %w", err)
	}
	item := &Item{Cmd: gencmd.CUSTOM, EntityType: gencmd.ALL, Frames: []frame.Frame{f}}
	c.coalesce(item.key())
	c.queue = append(c.queue, item)
	return nil
}

// Pair enqueues the one-way pairing broadcast.
func (c *Controller) Pair() bool {
	return c.Enqueue(gencmd.GenCmd{Cmd: gencmd.PAIR, EntityType: gencmd.ALL})
}

// Unpair enqueues the unpair broadcast.
func (c *Controller) Unpair() bool {
	return c.Enqueue(gencmd.GenCmd{Cmd: gencmd.UNPAIR, EntityType: gencmd.ALL})
}

// AllOn enqueues ON for every entity.
func (c *Controller) AllOn() bool {
	return c.Enqueue(gencmd.GenCmd{Cmd: gencmd.ON, EntityType: gencmd.ALL})
}

// AllOff enqueues OFF for every entity.
func (c *Controller) AllOff() bool {
	return c.Enqueue(gencmd.GenCmd{Cmd: gencmd.OFF, EntityType: gencmd.ALL})
}

// SetTimer enqueues TIMER and schedules a single OFF publish (apply=false)
// minutes*60000ms from now, cancellable via CancelTimer.
func (c *Controller) SetTimer(minutes float64) bool {
	c.CancelTimer()
	ok := c.Enqueue(gencmd.GenCmd{Cmd: gencmd.TIMER, EntityType: gencmd.ALL})
	duration := time.Duration(minutes * float64(time.Minute))
	c.offTimer = time.AfterFunc(duration, func() {
		c.Publish(gencmd.GenCmd{Cmd: gencmd.OFF, EntityType: gencmd.ALL}, false)
	})
	return ok
}

// CancelTimer stops a pending off-timer set by SetTimer, if any.
func (c *Controller) CancelTimer() {
	if c.offTimer != nil {
		c.offTimer.Stop()
		c.offTimer = nil
	}
}

// Tick advances the controller's per-tick scheduling policy (spec.md 4.5):
// starts the next queued item when idle, assigning it a seq_duration or
// min_tx_duration window, and asks the scheduler to remove the on-air item
// once its min/max lifetime has elapsed.
func (c *Controller) Tick(now time.Time) {
	if c.onAir == nil {
		if len(c.queue) == 0 {
			return
		}
		item := c.queue[0]
		c.queue = c.queue[1:]
		if len(item.Frames) == 0 {
			return
		}

		dur := c.cfg.MinTxDuration
		if c.cfg.SeqDuration > 0 && c.cfg.SeqDuration < c.cfg.MinTxDuration {
			dur = c.cfg.SeqDuration
		}
		ms := int(dur / time.Millisecond)
		for i := range item.Frames {
			item.Frames[i].Duration = ms
			c.metrics.FrameSent(len(item.Frames[i].Bytes()))
		}

		item.SchedulerID = c.scheduler.Add(item.Frames)
		c.onAir = &onAir{item: item, start: now}
		c.metrics.ControllerActive(c.cfg.Label)
		return
	}

	lifetime := c.cfg.MaxTxDuration
	if len(c.queue) == 0 {
		lifetime = c.cfg.MinTxDuration
	}
	if now.Sub(c.onAir.start) >= lifetime {
		c.scheduler.Remove(c.onAir.item.SchedulerID)
		c.onAir = nil
		c.metrics.ControllerIdle(c.cfg.Label)
	}
}

// QueueLen reports the number of queued (not yet on-air) items, for tests.
func (c *Controller) QueueLen() int {
	return len(c.queue)
}

// QueueItems returns a snapshot of the queued items, for tests.
func (c *Controller) QueueItems() []Item {
	out := make([]Item, len(c.queue))
	for i, item := range c.queue {
		out[i] = *item
	}
	return out
}
