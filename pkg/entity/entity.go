// Package entity implements the thin home-automation adapters (Light, Fan)
// that sit on the far side of a Controller from the radio: they consume
// decoded or locally-originated GenCmds, hold the last-known device state
// for the HA layer to read, and turn HA-side intents back into GenCmds for
// Controller.Enqueue. This is the out-of-core boundary spec.md section 3.1
// calls "the home-automation entity layer" -- a real integration would
// forward State to actual HA light/fan platform objects; this package only
// gives it a concrete, testable home.
//
// Adapted from the teacher's pkg/peer: Peer's mutex-guarded state plus
// Snapshot pattern becomes Light/Fan's state plus Snapshot, and
// PeerManager's map-of-id becomes Registry, keyed by (EntityType,
// EntityIndex) instead of a 32-bit peer id.
package entity

import (
	"sync"

	"github.com/kbable/ble-adv-bridge/pkg/gencmd"
)

// Enqueuer is the narrow slice of controller.Controller an entity needs to
// push a locally-originated command back out to the device.
type Enqueuer interface {
	Enqueue(gen gencmd.GenCmd) bool
}

// Light is a single CWW/RGB light entity. MinBrightness floors any
// brightness value sent to the device, so a user-specified 1% doesn't round
// down to a value the cheap driver ICs can't sustain (the ble_adv_handler.h
// BLeAdvNumber preference this spec's original source ties to every light).
type Light struct {
	mu     sync.RWMutex
	index  uint8
	ctrl   Enqueuer
	onSent []func(Snapshot)

	MinBrightness float32

	on         bool
	brightness float32
	coldWarm   float32
	rgb        [3]float32
}

// Snapshot is a read-only view of a Light's last-known state.
type Snapshot struct {
	On         bool
	Brightness float32
	ColdWarm   float32
	RGB        [3]float32
}

// NewLight returns a Light at the given entity index, dispatching locally
// originated commands through ctrl.
func NewLight(index uint8, ctrl Enqueuer) *Light {
	return &Light{index: index, ctrl: ctrl}
}

func (l *Light) EntityType() gencmd.EntityType { return gencmd.LIGHT }
func (l *Light) EntityIndex() uint8            { return l.index }

// Publish applies a decoded or locally-triggered command to this light's
// state and notifies any observers (e.g. a real HA light platform entity).
// Publish never itself calls back into Enqueue -- see SetOn/SetBrightness
// for the HA-initiated direction, matching Controller.Publish's skip-commands
// policy (spec.md 4.5).
func (l *Light) Publish(gen gencmd.GenCmd) {
	l.mu.Lock()
	switch gen.Cmd {
	case gencmd.ON:
		l.on = true
	case gencmd.OFF, gencmd.TIMER:
		l.on = false
	case gencmd.TOGGLE:
		l.on = !l.on
	case gencmd.LightCWWDim, gencmd.LightCWWWarmDim:
		l.brightness = l.floor(gen.Args[0])
		l.on = l.brightness > 0
	case gencmd.LightCWWWarm:
		l.coldWarm = gen.Args[0]
	case gencmd.LightCWWColdWarm:
		l.coldWarm = gen.Args[0]
		l.brightness = l.floor(gen.Args[1])
	case gencmd.LightCWWCCT:
		l.coldWarm = gen.Args[0]
		l.brightness = l.floor(gen.Args[1])
	case gencmd.LightRGBFull:
		l.brightness = l.floor(gen.Args[0])
		l.rgb = gen.Args
		l.on = l.brightness > 0
	case gencmd.LightRGBDim:
		l.brightness = l.floor(gen.Args[0])
	case gencmd.LightRGBRGB:
		l.rgb = gen.Args
	}
	snap := l.snapshotLocked()
	hooks := append([]func(Snapshot){}, l.onSent...)
	l.mu.Unlock()

	for _, h := range hooks {
		h(snap)
	}
}

// floor applies MinBrightness: a non-zero request below the floor is
// clamped up to it, so the device never receives a "too dim to matter"
// instruction distinct from "off".
func (l *Light) floor(v float32) float32 {
	if v > 0 && v < l.MinBrightness {
		return l.MinBrightness
	}
	return v
}

// OnStateChange registers an observer invoked after every Publish.
func (l *Light) OnStateChange(fn func(Snapshot)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onSent = append(l.onSent, fn)
}

// Snapshot returns the light's current state.
func (l *Light) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

func (l *Light) snapshotLocked() Snapshot {
	return Snapshot{On: l.on, Brightness: l.brightness, ColdWarm: l.coldWarm, RGB: l.rgb}
}

// SetOn is the HA-initiated path: turn the light on or off, pushing the
// command to the device through ctrl. ON/OFF carry no brightness, so the
// MinBrightness floor does not apply here.
func (l *Light) SetOn(on bool) bool {
	cmd := gencmd.OFF
	if on {
		cmd = gencmd.ON
	}
	return l.ctrl.Enqueue(gencmd.GenCmd{Cmd: cmd, EntityType: gencmd.LIGHT, EntityIndex: l.index})
}

// SetBrightness is the HA-initiated path for a CWW dim-only light.
func (l *Light) SetBrightness(brightness float32) bool {
	l.mu.RLock()
	b := l.floor(brightness)
	l.mu.RUnlock()
	return l.ctrl.Enqueue(gencmd.GenCmd{
		Cmd: gencmd.LightCWWDim, EntityType: gencmd.LIGHT, EntityIndex: l.index,
		Args: [3]float32{b, 0, 0},
	})
}

// Fan is a single fan entity, tracking on/off, speed, direction and
// oscillation, and issuing FAN_FULL commands that carry only the sub-fields
// the user actually changed (the FanSub* bitmask in GenCmd.Param).
type Fan struct {
	mu    sync.RWMutex
	index uint8
	ctrl  Enqueuer

	on      bool
	speed   float32
	reverse bool
	oscill  bool
}

// NewFan returns a Fan at the given entity index.
func NewFan(index uint8, ctrl Enqueuer) *Fan {
	return &Fan{index: index, ctrl: ctrl}
}

func (f *Fan) EntityType() gencmd.EntityType { return gencmd.FAN }
func (f *Fan) EntityIndex() uint8            { return f.index }

// Publish applies a decoded fan command to local state.
func (f *Fan) Publish(gen gencmd.GenCmd) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch gen.Cmd {
	case gencmd.ON:
		f.on = true
	case gencmd.OFF:
		f.on = false
	case gencmd.FanFull:
		if gen.Param&gencmd.FanSubState != 0 {
			f.on = gen.Args[0] > 0
		}
		if gen.Param&gencmd.FanSubSpeed != 0 {
			f.speed = gen.Args[0]
		}
		if gen.Param&gencmd.FanSubDir != 0 {
			f.reverse = gen.Args[1] != 0
		}
		if gen.Param&gencmd.FanSubOsc != 0 {
			f.oscill = gen.Args[2] != 0
		}
	case gencmd.FanOnOffSpeed:
		f.on = gen.Args[0] > 0
		f.speed = gen.Args[0]
	case gencmd.FanDir, gencmd.FanDirToggle:
		f.reverse = !f.reverse
	case gencmd.FanOsc, gencmd.FanOscToggle:
		f.oscill = !f.oscill
	}
}

// SetSpeed is the HA-initiated path: enqueues FAN_FULL marking only the
// STATE and SPEED sub-fields as changed.
func (f *Fan) SetSpeed(speed float32) bool {
	return f.ctrl.Enqueue(gencmd.GenCmd{
		Cmd: gencmd.FanFull, EntityType: gencmd.FAN, EntityIndex: f.index,
		Param: gencmd.FanSubState | gencmd.FanSubSpeed,
		Args:  [3]float32{speed, 0, 0},
	})
}

// Registry tracks every entity a set of controllers dispatch to, keyed by
// (EntityType, EntityIndex), mirroring the teacher's PeerManager.
type Registry struct {
	mu    sync.RWMutex
	byKey map[key]any
}

type key struct {
	t gencmd.EntityType
	i uint8
}

// NewRegistry returns an empty entity registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[key]any)}
}

// AddLight registers a light and returns it.
func (r *Registry) AddLight(l *Light) *Light {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey[key{gencmd.LIGHT, l.index}] = l
	return l
}

// AddFan registers a fan and returns it.
func (r *Registry) AddFan(f *Fan) *Fan {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey[key{gencmd.FAN, f.index}] = f
	return f
}

// Light looks up a registered light by entity index.
func (r *Registry) Light(index uint8) (*Light, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.byKey[key{gencmd.LIGHT, index}]
	if !ok {
		return nil, false
	}
	l, ok := v.(*Light)
	return l, ok
}

// Fan looks up a registered fan by entity index.
func (r *Registry) Fan(index uint8) (*Fan, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.byKey[key{gencmd.FAN, index}]
	if !ok {
		return nil, false
	}
	f, ok := v.(*Fan)
	return f, ok
}

// Count returns the number of registered entities.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}
