package codec

import (
	"math/rand"

	"github.com/kbable/ble-adv-bridge/internal/obfuscate"
	"github.com/kbable/ble-adv-bridge/pkg/frame"
	"github.com/kbable/ble-adv-bridge/pkg/gencmd"
)

// agarceBodyLen is sizeof(data_map_t) in the original: prefix(1) + seed(2) +
// tx_count(1) + restart_count(1) + rem_seq(2) + id(4) + tx0(1) + args(3) +
// tx4(1) + checksum(1) + checksum2(1) = 18 bytes.
const agarceBodyLen = 18

// agarceMatrix is the 8-entry XOR table the Agarce cipher rotates through.
var agarceMatrix = [8]byte{0xAA, 0xBB, 0xCC, 0xDD, 0x5A, 0xA5, 0xA5, 0x5A}

// agarce implements the Agarce vendor codec. prefix is the device-family
// byte (observed values include 0x03, 0x04, 0x83, 0x84); it both opens the
// body and, for non-group commands, absorbs the index's low nibble check.
type agarce struct {
	variant string
	prefix  byte
}

// NewAgarce returns the Agarce v1 codec (prefix 0x83), the variant named in
// the literal round-trip test scenario.
func NewAgarce() Codec { return &agarce{variant: "v1", prefix: 0x83} }

func (a *agarce) ID() string       { return makeID("agarce", a.variant) }
func (a *agarce) Encoding() string { return "agarce" }
func (a *agarce) Variant() string  { return a.variant }
func (a *agarce) Header() []byte   { return []byte{a.prefix} }

// agarceCrypt XORs buf in place with the rotating MATRIX table and a
// seed-derived pivot that alternates in a [lo, hi, hi, lo] pattern every
// four bytes, mirroring the original's ((i+1)/2 % 2) selector.
func agarceCrypt(buf []byte, seed uint16) {
	pivotLo := byte(seed & 0xFF)
	pivotHi := byte(seed >> 8)
	for i := range buf {
		pivot := pivotHi
		if ((i+1)/2)%2 == 0 {
			pivot = pivotLo
		}
		buf[i] ^= agarceMatrix[i%8] ^ pivot
	}
}

func (a *agarce) Encode(enc gencmd.EncCmd, params gencmd.ControllerParams) (frame.Frame, error) {
	f, _ := frame.NewFromConfig(true, frame.TypeManufacturer)
	body := f.Body(agarceBodyLen)

	body[11] = enc.Cmd // tx0
	body[12] = enc.Args[0]
	body[13] = enc.Args[1]
	body[14] = enc.Args[2]
	body[15] = (params.Index >> 4) & 0x0F // tx4

	if enc.Cmd == 0x00 {
		body[13] = (a.prefix >> 4) & 0x0F // args[1]
		body[14] = params.Index & 0x0F    // args[2]
		body[15] |= 0xC0
		body[0] = a.prefix & 0x0F
	} else {
		body[11] |= params.Index & 0x0F
		body[0] = a.prefix
	}

	body[3] = params.TxCount
	body[7] = byte(params.ID)
	body[8] = byte(params.ID >> 8)
	body[9] = byte(params.ID >> 16)
	body[10] = byte(params.ID >> 24)

	remSeq := uint16(0x1000) // always emitted; see Open Questions in DESIGN.md
	body[5] = byte(remSeq)
	body[6] = byte(remSeq >> 8)

	body[4] = params.RestartCount

	seed := params.Seed
	if seed == 0 {
		seed = uint16(rand.Intn(0xFFFF))
	}
	body[1] = byte(seed)
	body[2] = byte(seed >> 8)

	body[16] = obfuscate.Checksum(body[3:16])

	agarceCrypt(body[3:17], seed)

	body[17] = obfuscate.Checksum(body[0:17])

	f.SetDataLen(agarceBodyLen)
	return f, nil
}

func (a *agarce) Decode(f frame.Frame) (gencmd.EncCmd, gencmd.ControllerParams, bool) {
	body := f.DataBytes()
	if len(body) != agarceBodyLen {
		return gencmd.EncCmd{}, gencmd.ControllerParams{}, false
	}
	work := append([]byte(nil), body...)

	if obfuscate.Checksum(work[0:17]) != work[17] {
		return gencmd.EncCmd{}, gencmd.ControllerParams{}, false
	}

	seed := uint16(work[1]) | uint16(work[2])<<8
	agarceCrypt(work[3:17], seed)

	if obfuscate.Checksum(work[3:16]) != work[16] {
		return gencmd.EncCmd{}, gencmd.ControllerParams{}, false
	}

	cmd := work[11] & 0xF0
	if cmd == 0x00 && work[13] == 0x00 {
		// Group commands cannot be disambiguated; explicitly rejected.
		return gencmd.EncCmd{}, gencmd.ControllerParams{}, false
	}
	if cmd != 0x00 && work[0] != a.prefix {
		return gencmd.EncCmd{}, gencmd.ControllerParams{}, false
	}
	if cmd == 0x00 && work[0] != (a.prefix&0x0F) {
		return gencmd.EncCmd{}, gencmd.ControllerParams{}, false
	}

	var enc gencmd.EncCmd
	enc.Cmd = cmd
	enc.Args[0] = work[12]
	enc.Args[1] = work[13]
	enc.Args[2] = work[14]

	var params gencmd.ControllerParams
	params.Index = (work[15] & 0x0F) << 4
	if cmd == 0x00 {
		params.Index |= work[14]
	} else {
		params.Index |= work[11] & 0x0F
	}
	params.TxCount = work[3]
	params.RestartCount = work[4]
	params.ID = uint32(work[7]) | uint32(work[8])<<8 | uint32(work[9])<<16 | uint32(work[10])<<24
	params.Seed = seed

	return enc, params, true
}
