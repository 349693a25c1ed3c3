package controller

import (
	"testing"
	"time"

	"github.com/kbable/ble-adv-bridge/pkg/codec"
	"github.com/kbable/ble-adv-bridge/pkg/frame"
	"github.com/kbable/ble-adv-bridge/pkg/gencmd"
	"github.com/kbable/ble-adv-bridge/pkg/logger"
	"github.com/kbable/ble-adv-bridge/pkg/metrics"
	"github.com/kbable/ble-adv-bridge/pkg/translate"
)

// fakeScheduler is a hand-rolled test double, matching the scheduler
// package's own preference for fakes over a mocking library.
type fakeScheduler struct {
	added   [][]frame.Frame
	removed []uint16
	nextID  uint16
}

func (f *fakeScheduler) Add(frames []frame.Frame) uint16 {
	f.nextID++
	f.added = append(f.added, frames)
	return f.nextID
}
func (f *fakeScheduler) Remove(id uint16) { f.removed = append(f.removed, id) }

func newTestController(sched Scheduler) *Controller {
	cfg := Config{
		ID:            1,
		Label:         "test",
		Codecs:        []codec.Codec{codec.NewAgarce()},
		MinTxDuration: 100 * time.Millisecond,
		MaxTxDuration: 500 * time.Millisecond,
	}
	return New(cfg, translate.NewDefaultRegistry(), sched, logger.New(logger.Config{Level: "error"}), metrics.NewCollector())
}

func TestController_EnqueueProducesFrames(t *testing.T) {
	c := newTestController(&fakeScheduler{})
	ok := c.Enqueue(gencmd.GenCmd{Cmd: gencmd.ON, EntityType: gencmd.LIGHT, EntityIndex: 0})
	if !ok {
		t.Fatal("expected Enqueue to produce at least one frame")
	}
	if c.QueueLen() != 1 {
		t.Fatalf("expected 1 queued item, got %d", c.QueueLen())
	}
}

func TestController_CoalescesSameKey(t *testing.T) {
	c := newTestController(&fakeScheduler{})
	c.Enqueue(gencmd.GenCmd{Cmd: gencmd.LightCWWDim, EntityType: gencmd.LIGHT, EntityIndex: 0, Args: [3]float32{0.2}})
	c.Enqueue(gencmd.GenCmd{Cmd: gencmd.LightCWWDim, EntityType: gencmd.LIGHT, EntityIndex: 0, Args: [3]float32{0.8}})

	if c.QueueLen() != 1 {
		t.Fatalf("expected later enqueue to coalesce earlier one, got %d queued items", c.QueueLen())
	}
}

func TestController_TickHandsItemToScheduler(t *testing.T) {
	sched := &fakeScheduler{}
	c := newTestController(sched)
	c.Enqueue(gencmd.GenCmd{Cmd: gencmd.ON, EntityType: gencmd.LIGHT, EntityIndex: 0})

	c.Tick(time.Now())
	if len(sched.added) != 1 {
		t.Fatalf("expected scheduler.Add to be called once, got %d", len(sched.added))
	}
	if c.QueueLen() != 0 {
		t.Fatalf("expected queue to be drained after Tick, got %d", c.QueueLen())
	}
}

func TestController_TickRemovesAfterMaxLifetime(t *testing.T) {
	sched := &fakeScheduler{}
	c := newTestController(sched)
	c.Enqueue(gencmd.GenCmd{Cmd: gencmd.ON, EntityType: gencmd.LIGHT, EntityIndex: 0})

	start := time.Now()
	c.Tick(start)
	c.Tick(start.Add(1 * time.Second))

	if len(sched.removed) != 1 {
		t.Fatalf("expected scheduler.Remove to be called once after max lifetime, got %d", len(sched.removed))
	}
}

// countingEntity records every GenCmd Publish delivers to it.
type countingEntity struct {
	entityType  gencmd.EntityType
	entityIndex uint8
	received    []gencmd.GenCmd
	enqueued    []gencmd.GenCmd
}

func (e *countingEntity) EntityType() gencmd.EntityType { return e.entityType }
func (e *countingEntity) EntityIndex() uint8             { return e.entityIndex }
func (e *countingEntity) Publish(gen gencmd.GenCmd) {
	e.received = append(e.received, gen)
}

func TestController_PublishOnlyReachesMatchingEntities(t *testing.T) {
	c := newTestController(&fakeScheduler{})
	light0 := &countingEntity{entityType: gencmd.LIGHT, entityIndex: 0}
	light1 := &countingEntity{entityType: gencmd.LIGHT, entityIndex: 1}
	c.RegisterEntity(light0)
	c.RegisterEntity(light1)

	c.Publish(gencmd.GenCmd{Cmd: gencmd.ON, EntityType: gencmd.LIGHT, EntityIndex: 0}, true)

	if len(light0.received) != 1 {
		t.Fatalf("expected light0 to receive the command, got %d", len(light0.received))
	}
	if len(light1.received) != 0 {
		t.Fatalf("expected light1 to be unaffected, got %d", len(light1.received))
	}
}

func TestController_SetTimerSchedulesDeferredOff(t *testing.T) {
	c := newTestController(&fakeScheduler{})
	light := &countingEntity{entityType: gencmd.LIGHT, entityIndex: 0}
	c.RegisterEntity(light)

	c.SetTimer(1.0 / 6000) // 10ms
	time.Sleep(50 * time.Millisecond)

	found := false
	for _, gen := range light.received {
		if gen.Cmd == gencmd.OFF {
			found = true
		}
	}
	if !found {
		t.Fatal("expected the off-timer to publish OFF to registered entities")
	}
}

func TestController_PairEnqueuesPairItem(t *testing.T) {
	c := newTestController(&fakeScheduler{})
	if !c.Pair() {
		t.Fatal("expected Pair to produce at least one frame")
	}
	items := c.QueueItems()
	if len(items) != 1 || items[0].Cmd != gencmd.PAIR {
		t.Fatalf("expected one queued PAIR item, got %+v", items)
	}
}

func TestController_UnpairEnqueuesUnpairItem(t *testing.T) {
	c := newTestController(&fakeScheduler{})
	if !c.Unpair() {
		t.Fatal("expected Unpair to produce at least one frame")
	}
	items := c.QueueItems()
	if len(items) != 1 || items[0].Cmd != gencmd.UNPAIR {
		t.Fatalf("expected one queued UNPAIR item, got %+v", items)
	}
}

func TestController_AllOnAndAllOffEnqueueInOrder(t *testing.T) {
	c := newTestController(&fakeScheduler{})
	if !c.AllOn() {
		t.Fatal("expected AllOn to produce at least one frame")
	}
	if !c.AllOff() {
		t.Fatal("expected AllOff to produce at least one frame")
	}
	items := c.QueueItems()
	if len(items) != 2 || items[0].Cmd != gencmd.ON || items[1].Cmd != gencmd.OFF {
		t.Fatalf("expected ON then OFF queued, got %+v", items)
	}
}

func TestController_CustomCmdBypassesTranslation(t *testing.T) {
	c := newTestController(&fakeScheduler{})
	if !c.CustomCmd(gencmd.EncCmd{Cmd: 0x42, Args: [3]byte{1, 2, 3}}) {
		t.Fatal("expected CustomCmd to produce at least one frame")
	}
	if c.QueueLen() != 1 {
		t.Fatalf("expected 1 queued item, got %d", c.QueueLen())
	}
}

func TestController_InjectRawPushesLiteralFrame(t *testing.T) {
	c := newTestController(&fakeScheduler{})
	if err := c.InjectRaw("0201060302AA"); err != nil {
		t.Fatalf("InjectRaw: %v", err)
	}
	if c.QueueLen() != 1 {
		t.Fatalf("expected 1 queued item, got %d", c.QueueLen())
	}
}

func TestController_InjectRawRejectsInvalidHex(t *testing.T) {
	c := newTestController(&fakeScheduler{})
	if err := c.InjectRaw("not-hex"); err == nil {
		t.Fatal("expected InjectRaw to reject invalid hex")
	}
}

func TestController_RestoreParamsSeedsCounters(t *testing.T) {
	c := newTestController(&fakeScheduler{})
	c.RestoreParams(gencmd.ControllerParams{TxCount: 50, RestartCount: 2})

	params := c.Params()
	if params.TxCount != 50 || params.RestartCount != 2 {
		t.Fatalf("expected restored counters, got %+v", params)
	}
}
