package codec

import (
	"github.com/kbable/ble-adv-bridge/internal/obfuscate"
	"github.com/kbable/ble-adv-bridge/pkg/frame"
	"github.com/kbable/ble-adv-bridge/pkg/gencmd"
)

// remoteBodyLen is tx_count(1) + id(4) + cmd|press_flags(1) + press_count(1)
// + checksum(1) -- the generic remote's only body layout.
const remoteBodyLen = 1 + 4 + 1 + 1 + 1

// cmdPressFlagsMask isolates the 2 high bits of the packed cmd byte that
// carry HOLD/RELEASE press state; the low 6 bits are the command itself.
const cmdPressFlagsMask = 0xC0

type remote struct{}

// NewRemote returns the generic remote codec: a sum-checksummed body with
// no whitening or CRC, shared by the simplest vendor remotes.
func NewRemote() Codec { return &remote{} }

func (r *remote) ID() string       { return makeID("remote", "v1") }
func (r *remote) Encoding() string { return "remote" }
func (r *remote) Variant() string  { return "v1" }
func (r *remote) Header() []byte   { return nil }

func (r *remote) Encode(enc gencmd.EncCmd, params gencmd.ControllerParams) (frame.Frame, error) {
	f, _ := frame.NewFromConfig(false, frame.TypeManufacturer)
	body := f.Body(remoteBodyLen)

	body[0] = params.TxCount
	body[1] = byte(params.ID)
	body[2] = byte(params.ID >> 8)
	body[3] = byte(params.ID >> 16)
	body[4] = byte(params.ID >> 24)
	body[5] = (enc.Cmd & 0x3F) | (enc.Args[1] & cmdPressFlagsMask)
	body[6] = enc.Args[0]
	body[7] = obfuscate.Checksum(body[0:7])

	f.SetDataLen(remoteBodyLen)
	return f, nil
}

func (r *remote) Decode(f frame.Frame) (gencmd.EncCmd, gencmd.ControllerParams, bool) {
	body := f.DataBytes()
	if len(body) != remoteBodyLen {
		return gencmd.EncCmd{}, gencmd.ControllerParams{}, false
	}
	if obfuscate.Checksum(body[0:7]) != body[7] {
		return gencmd.EncCmd{}, gencmd.ControllerParams{}, false
	}

	var enc gencmd.EncCmd
	var params gencmd.ControllerParams
	params.TxCount = body[0]
	params.ID = uint32(body[1]) | uint32(body[2])<<8 | uint32(body[3])<<16 | uint32(body[4])<<24
	enc.Cmd = body[5] & 0x3F
	enc.Args[0] = body[6]
	enc.Args[1] = body[5] & cmdPressFlagsMask

	return enc, params, true
}
