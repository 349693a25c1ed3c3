// Package gencmd defines the abstract command vocabulary exchanged between
// the home-automation entity layer and a controller, plus the vendor-neutral
// and per-controller identity types every codec encodes and decodes.
package gencmd

// CommandType is the closed set of abstract commands a controller can enqueue
// or an entity can receive from a decoded broadcast.
type CommandType uint8

const (
	PAIR CommandType = iota
	UNPAIR
	CUSTOM
	TIMER
	TOGGLE
	ON
	OFF
	LightCWWDim
	LightCWWWarm
	LightCWWColdWarm
	LightCWWWarmDim
	LightCWWCCT
	LightRGBFull
	LightRGBDim
	LightRGBRGB
	FanFull
	FanOnOffSpeed
	FanDir
	FanOsc
	FanDirToggle
	FanOscToggle
)

func (c CommandType) String() string {
	switch c {
	case PAIR:
		return "PAIR"
	case UNPAIR:
		return "UNPAIR"
	case CUSTOM:
		return "CUSTOM"
	case TIMER:
		return "TIMER"
	case TOGGLE:
		return "TOGGLE"
	case ON:
		return "ON"
	case OFF:
		return "OFF"
	case LightCWWDim:
		return "LIGHT_CWW_DIM"
	case LightCWWWarm:
		return "LIGHT_CWW_WARM"
	case LightCWWColdWarm:
		return "LIGHT_CWW_COLD_WARM"
	case LightCWWWarmDim:
		return "LIGHT_CWW_WARM_DIM"
	case LightCWWCCT:
		return "LIGHT_CWW_CCT"
	case LightRGBFull:
		return "LIGHT_RGB_FULL"
	case LightRGBDim:
		return "LIGHT_RGB_DIM"
	case LightRGBRGB:
		return "LIGHT_RGB_RGB"
	case FanFull:
		return "FAN_FULL"
	case FanOnOffSpeed:
		return "FAN_ONOFF_SPEED"
	case FanDir:
		return "FAN_DIR"
	case FanOsc:
		return "FAN_OSC"
	case FanDirToggle:
		return "FAN_DIR_TOGGLE"
	case FanOscToggle:
		return "FAN_OSC_TOGGLE"
	default:
		return "UNKNOWN"
	}
}

// EntityType identifies which class of child entity a command targets.
// ALL is a wildcard that matches any entity_type/entity_index pair.
type EntityType uint8

const (
	ALL EntityType = iota
	CONTROLLER
	LIGHT
	FAN
)

func (e EntityType) String() string {
	switch e {
	case ALL:
		return "ALL"
	case CONTROLLER:
		return "CONTROLLER"
	case LIGHT:
		return "LIGHT"
	case FAN:
		return "FAN"
	default:
		return "UNKNOWN"
	}
}

// FAN_FULL param bitmask sub-fields: which parts of the fan state the user
// actually modified, so the translator only re-encodes the changed bits.
const (
	FanSubState = 1 << iota
	FanSubSpeed
	FanSubDir
	FanSubOsc
)

// GenCmd is the abstract command exchanged between the entity layer and a
// Controller. args are floats semantically in [0,1] for fractional
// quantities (brightness, speed) or small integers for discrete ones.
type GenCmd struct {
	Cmd          CommandType
	EntityType   EntityType
	EntityIndex  uint8
	Param        uint8
	Args         [3]float32
}

// Matches implements the entity-type matching rule shared by every entity
// and controller: ALL matches anything; otherwise EntityType and
// EntityIndex must both match exactly.
func (g GenCmd) Matches(entityType EntityType, entityIndex uint8) bool {
	if entityType == ALL || g.EntityType == ALL {
		return true
	}
	return g.EntityType == entityType && g.EntityIndex == entityIndex
}

// Key returns the coalescing key used by Controller.Enqueue: a later enqueue
// with the same key replaces an earlier, not-yet-scheduled one.
func (g GenCmd) Key() CoalesceKey {
	return CoalesceKey{Cmd: g.Cmd, EntityType: g.EntityType, EntityIndex: g.EntityIndex}
}

// CoalesceKey identifies broadcast items that supersede one another.
type CoalesceKey struct {
	Cmd         CommandType
	EntityType  EntityType
	EntityIndex uint8
}

// EncCmd is the vendor-specific command a translator produces from a GenCmd
// and a codec encodes into a Frame body.
type EncCmd struct {
	Cmd    uint8
	Param1 uint8
	Args   [3]uint8
}

// ControllerParams is the per-broadcast identity and bookkeeping state a
// codec reads from and writes into a Frame body.
type ControllerParams struct {
	ID           uint32
	TxCount      uint8
	RestartCount uint8
	Index        uint8
	Seed         uint16
}

// maxTxCount is the rollover threshold: once exceeded, TxCount resets to 1
// and RestartCount increments (spec.md section 3).
const maxTxCount = 126

// NextTxCount advances the rolling counter in place, honoring the rollover
// rule: wrapping past 126 resets TxCount to 1 and bumps RestartCount.
func (p *ControllerParams) NextTxCount() {
	if p.TxCount > maxTxCount {
		p.TxCount = 0
		p.RestartCount++
	}
	p.TxCount++
}
