package translate

import "github.com/kbable/ble-adv-bridge/pkg/gencmd"

// agarceFanDirBit is where the Agarce FAN_FULL translator packs the
// direction flag once the low nibble of args[2] is spent on the sub-command
// bitmask (spec.md 4.4: "direction flag into bit 0x10").
const agarceFanDirBit = 0x10

// agarce wraps the generic translator, overriding only FAN_FULL: Agarce
// packs the sub-command bitmask and direction flag into enc_cmd.args[2]
// instead of carrying them as separate fields.
type agarce struct {
	fallback Translator
}

// NewAgarce returns Agarce's translator, falling back to generic for every
// command other than FAN_FULL.
func NewAgarce(fallback Translator) Translator {
	return agarce{fallback: fallback}
}

func (a agarce) G2E(gen gencmd.GenCmd) []gencmd.EncCmd {
	if gen.Cmd != gencmd.FanFull {
		return a.fallback.G2E(gen)
	}

	enc := gencmd.EncCmd{Cmd: uint8(gencmd.FanFull)}
	enc.Args[0] = uint8(gen.Args[0]) // speed, or 0 for off
	enc.Args[1] = uint8(gen.Args[2]) // oscillating flag, passed through
	enc.Args[2] = gen.Param & 0x0F
	if gen.Args[1] != 0 {
		enc.Args[2] |= agarceFanDirBit
	}
	return []gencmd.EncCmd{enc}
}

func (a agarce) E2G(enc gencmd.EncCmd) (gencmd.GenCmd, bool) {
	if gencmd.CommandType(enc.Cmd) != gencmd.FanFull {
		return a.fallback.E2G(enc)
	}

	gen := gencmd.GenCmd{
		Cmd:        gencmd.FanFull,
		EntityType: gencmd.FAN,
		Param:      enc.Args[2] & 0x0F,
	}
	gen.Args[0] = float32(enc.Args[0])
	if enc.Args[2]&agarceFanDirBit != 0 {
		gen.Args[1] = 1
	}
	gen.Args[2] = float32(enc.Args[1])
	return gen, true
}
