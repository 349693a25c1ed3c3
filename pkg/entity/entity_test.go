package entity

import (
	"testing"

	"github.com/kbable/ble-adv-bridge/pkg/gencmd"
)

// fakeEnqueuer is a hand-rolled recorder, matching the example pack's
// preference for bespoke test doubles over a mocking library.
type fakeEnqueuer struct {
	calls []gencmd.GenCmd
}

func (f *fakeEnqueuer) Enqueue(gen gencmd.GenCmd) bool {
	f.calls = append(f.calls, gen)
	return true
}

func TestLight_PublishAppliesMinBrightnessFloor(t *testing.T) {
	l := NewLight(0, &fakeEnqueuer{})
	l.MinBrightness = 0.1

	l.Publish(gencmd.GenCmd{Cmd: gencmd.LightCWWDim, Args: [3]float32{0.02}})

	snap := l.Snapshot()
	if snap.Brightness != 0.1 {
		t.Fatalf("expected brightness floored to 0.1, got %v", snap.Brightness)
	}
	if !snap.On {
		t.Fatal("expected light to be considered on at a floored non-zero brightness")
	}
}

func TestLight_PublishZeroBrightnessTurnsOff(t *testing.T) {
	l := NewLight(0, &fakeEnqueuer{})
	l.MinBrightness = 0.1

	l.Publish(gencmd.GenCmd{Cmd: gencmd.LightCWWDim, Args: [3]float32{0}})

	if l.Snapshot().On {
		t.Fatal("expected a zero brightness request to leave the light off, not floored")
	}
}

func TestLight_SetBrightnessEnqueuesFlooredValue(t *testing.T) {
	enq := &fakeEnqueuer{}
	l := NewLight(2, enq)
	l.MinBrightness = 0.15

	l.SetBrightness(0.05)

	if len(enq.calls) != 1 {
		t.Fatalf("expected one enqueued command, got %d", len(enq.calls))
	}
	if enq.calls[0].Args[0] != 0.15 {
		t.Fatalf("expected floored brightness 0.15, got %v", enq.calls[0].Args[0])
	}
	if enq.calls[0].EntityIndex != 2 {
		t.Fatalf("expected entity index 2, got %d", enq.calls[0].EntityIndex)
	}
}

func TestLight_OnStateChangeObserverFires(t *testing.T) {
	l := NewLight(0, &fakeEnqueuer{})
	var got Snapshot
	fired := false
	l.OnStateChange(func(s Snapshot) { got = s; fired = true })

	l.Publish(gencmd.GenCmd{Cmd: gencmd.ON})

	if !fired {
		t.Fatal("expected observer to fire on Publish")
	}
	if !got.On {
		t.Fatal("expected observer to see the light turned on")
	}
}

func TestFan_PublishFullRespectsSubBitmask(t *testing.T) {
	f := NewFan(0, &fakeEnqueuer{})
	f.Publish(gencmd.GenCmd{
		Cmd:   gencmd.FanFull,
		Param: gencmd.FanSubSpeed,
		Args:  [3]float32{0.75, 1, 1},
	})

	// Only SPEED was marked changed; DIR/OSC bits must not be applied.
	if f.speed != 0.75 {
		t.Fatalf("expected speed 0.75, got %v", f.speed)
	}
	if f.reverse {
		t.Fatal("expected reverse to remain false since DIR bit was not set")
	}
	if f.oscill {
		t.Fatal("expected oscillation to remain false since OSC bit was not set")
	}
}

func TestFan_SetSpeedEnqueuesStateAndSpeedBits(t *testing.T) {
	enq := &fakeEnqueuer{}
	f := NewFan(0, enq)
	f.SetSpeed(0.5)

	if len(enq.calls) != 1 {
		t.Fatalf("expected one enqueued command, got %d", len(enq.calls))
	}
	want := uint8(gencmd.FanSubState | gencmd.FanSubSpeed)
	if enq.calls[0].Param != want {
		t.Fatalf("expected param bitmask %d, got %d", want, enq.calls[0].Param)
	}
}

func TestRegistry_AddAndLookup(t *testing.T) {
	r := NewRegistry()
	r.AddLight(NewLight(0, &fakeEnqueuer{}))
	r.AddFan(NewFan(1, &fakeEnqueuer{}))

	if r.Count() != 2 {
		t.Fatalf("expected 2 registered entities, got %d", r.Count())
	}
	if _, ok := r.Light(0); !ok {
		t.Fatal("expected light at index 0 to be registered")
	}
	if _, ok := r.Fan(1); !ok {
		t.Fatal("expected fan at index 1 to be registered")
	}
	if _, ok := r.Light(5); ok {
		t.Fatal("expected no light registered at index 5")
	}
}
