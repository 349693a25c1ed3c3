package translate

import (
	"github.com/kbable/ble-adv-bridge/pkg/gencmd"
)

// fractionalCmds is the set of commands whose args are genuinely fractional
// quantities in [0,1] (brightness, color-temperature position, fan speed as
// a ratio) and therefore need [0,1] <-> [0,255] scaling. Every other command
// carries small discrete integers (on/off flags, direction, oscillation)
// copied through byte-for-byte.
var fractionalCmds = map[gencmd.CommandType]bool{
	gencmd.LightCWWDim:      true,
	gencmd.LightCWWWarm:     true,
	gencmd.LightCWWColdWarm: true,
	gencmd.LightCWWWarmDim:  true,
	gencmd.LightCWWCCT:      true,
	gencmd.LightRGBFull:     true,
	gencmd.LightRGBDim:      true,
	gencmd.LightRGBRGB:      true,
	gencmd.FanOnOffSpeed:    true,
	gencmd.FanFull:          true,
}

// generic is the data-driven translator shared by every encoding that has
// no vendor-specific command packing: the wire cmd byte is the
// CommandType's own enumeration value, args are scaled or copied through
// depending on whether the command is fractional, and param1 carries the
// GenCmd's sub-command bitmask (only meaningful for FAN_FULL).
type generic struct{}

// NewGeneric returns the shared data-driven translator.
func NewGeneric() Translator {
	return generic{}
}

func (generic) G2E(gen gencmd.GenCmd) []gencmd.EncCmd {
	enc := gencmd.EncCmd{
		Cmd:    uint8(gen.Cmd),
		Param1: gen.Param,
	}
	scale := fractionalCmds[gen.Cmd]
	for i, a := range gen.Args {
		enc.Args[i] = argToByte(a, scale)
	}
	return []gencmd.EncCmd{enc}
}

func (generic) E2G(enc gencmd.EncCmd) (gencmd.GenCmd, bool) {
	cmd := gencmd.CommandType(enc.Cmd)
	if cmd > gencmd.FanOscToggle {
		return gencmd.GenCmd{}, false
	}
	gen := gencmd.GenCmd{
		Cmd:   cmd,
		Param: enc.Param1,
	}
	scale := fractionalCmds[cmd]
	for i, a := range enc.Args {
		gen.Args[i] = byteToArg(a, scale)
	}
	return gen, true
}

// argToByte converts one GenCmd arg into its wire representation.
func argToByte(a float32, scale bool) uint8 {
	if !scale {
		return uint8(a)
	}
	if a < 0 {
		a = 0
	}
	if a > 1 {
		a = 1
	}
	return uint8(a*255 + 0.5)
}

// byteToArg is argToByte's inverse.
func byteToArg(b uint8, scale bool) float32 {
	if !scale {
		return float32(b)
	}
	return float32(b) / 255
}
