package codec

import (
	"github.com/kbable/ble-adv-bridge/internal/obfuscate"
	"github.com/kbable/ble-adv-bridge/pkg/frame"
	"github.com/kbable/ble-adv-bridge/pkg/gencmd"
)

// Zhimei body-layout constants, one block per variant.
const (
	zhimeiV0ArgsLen = 3
	zhimeiV0BodyLen = 1 + 1 + 2 + 1 + zhimeiV0ArgsLen + 1 // index,tx_count,id(u16),cmd,args[3],checksum

	zhimeiV1ArgsLen = 3
	zhimeiV1PadLen  = 6
	zhimeiV1BodyLen = 1 + 1 + 1 + 4 + 1 + 1 + 1 + 1 + zhimeiV1ArgsLen + 2 + zhimeiV1PadLen

	zhimeiV2PrefixLen = 3
	zhimeiV2TxDataLen = 8
	zhimeiV2PadLen    = 10
	zhimeiV2BodyLen   = zhimeiV2PrefixLen + zhimeiV2TxDataLen + 2 + zhimeiV2PadLen
)

// zhimeiV2Prefix is the fixed 3-byte literal every v2 body opens with.
var zhimeiV2Prefix = [zhimeiV2PrefixLen]byte{0x33, 0xAA, 0x55}

// --- Zhimei v0 -------------------------------------------------------------

// zhimeiV0 carries a 2-byte header that participates in the checksum (the
// original component's configured header_ bytes, the only Zhimei variant
// whose checksum reaches outside the body itself).
type zhimeiV0 struct {
	header [2]byte
}

// NewZhimeiV0 returns the Zhimei v0 codec.
func NewZhimeiV0() Codec { return &zhimeiV0{header: [2]byte{0x55, 0x55}} }

func (z *zhimeiV0) ID() string       { return makeID("zhimei", "v0") }
func (z *zhimeiV0) Encoding() string { return "zhimei" }
func (z *zhimeiV0) Variant() string  { return "v0" }
func (z *zhimeiV0) Header() []byte   { return nil }

func (z *zhimeiV0) checksum(body []byte) byte {
	sum := obfuscate.Checksum(z.header[:])
	sum += obfuscate.Checksum(body)
	return sum
}

func (z *zhimeiV0) Encode(enc gencmd.EncCmd, params gencmd.ControllerParams) (frame.Frame, error) {
	f, _ := frame.NewFromConfig(false, frame.TypeManufacturer)
	body := f.Body(zhimeiV0BodyLen)

	body[0] = params.Index
	body[1] = params.TxCount
	body[2] = byte(params.ID)
	body[3] = byte(params.ID >> 8)
	body[4] = enc.Cmd
	copy(body[5:5+zhimeiV0ArgsLen], enc.Args[:])
	body[zhimeiV0BodyLen-1] = z.checksum(body[0 : zhimeiV0BodyLen-1])

	f.SetDataLen(zhimeiV0BodyLen)
	return f, nil
}

func (z *zhimeiV0) Decode(f frame.Frame) (gencmd.EncCmd, gencmd.ControllerParams, bool) {
	body := f.DataBytes()
	if len(body) != zhimeiV0BodyLen {
		return gencmd.EncCmd{}, gencmd.ControllerParams{}, false
	}
	if z.checksum(body[0:zhimeiV0BodyLen-1]) != body[zhimeiV0BodyLen-1] {
		return gencmd.EncCmd{}, gencmd.ControllerParams{}, false
	}

	var enc gencmd.EncCmd
	var params gencmd.ControllerParams
	params.Index = body[0]
	params.TxCount = body[1]
	params.ID = uint32(body[2]) | uint32(body[3])<<8
	enc.Cmd = body[4]
	copy(enc.Args[:], body[5:5+zhimeiV0ArgsLen])

	return enc, params, true
}

// --- Zhimei v1 ---------------------------------------------------------

type zhimeiV1 struct{}

// NewZhimeiV1 returns the Zhimei v1 codec.
func NewZhimeiV1() Codec { return &zhimeiV1{} }

func (z *zhimeiV1) ID() string       { return makeID("zhimei", "v1") }
func (z *zhimeiV1) Encoding() string { return "zhimei" }
func (z *zhimeiV1) Variant() string  { return "v1" }
func (z *zhimeiV1) Header() []byte   { return nil }

// Field offsets within the v1 body, matching the original data_map_t:
// ff0(1) seed(1) tx_count(1) id(4) cmd(1) index(1) ff9(1) tx2(1) args(3) crc16(2) padding(6).
const (
	zhimeiV1OffFF0   = 0
	zhimeiV1OffSeed  = 1
	zhimeiV1OffTx    = 2
	zhimeiV1OffID    = 3
	zhimeiV1OffCmd   = 7
	zhimeiV1OffIndex = 8
	zhimeiV1OffFF9   = 9
	zhimeiV1OffTx2   = 10
	zhimeiV1OffArgs  = 11
	zhimeiV1OffCRC   = 14
	zhimeiV1OffPad   = 16
)

// zhimeiV1CmdNoInnerEncrypt is the Open Question preserved verbatim: the
// inner 5-byte window (offset 9..13) is never substitution-encrypted for
// this command value.
const zhimeiV1CmdNoInnerEncrypt = 0xB4

func (z *zhimeiV1) Encode(enc gencmd.EncCmd, params gencmd.ControllerParams) (frame.Frame, error) {
	f, _ := frame.NewFromConfig(false, frame.TypeManufacturer)
	body := f.Body(zhimeiV1BodyLen)

	body[zhimeiV1OffFF0] = 0xFF
	body[zhimeiV1OffSeed] = byte(params.Seed)
	body[zhimeiV1OffTx] = params.TxCount
	body[zhimeiV1OffID] = byte(params.ID)
	body[zhimeiV1OffID+1] = byte(params.ID >> 8)
	body[zhimeiV1OffID+2] = byte(params.ID >> 16)
	body[zhimeiV1OffID+3] = byte(params.ID >> 24)
	body[zhimeiV1OffCmd] = enc.Cmd
	body[zhimeiV1OffIndex] = params.Index
	body[zhimeiV1OffFF9] = 0xFF
	body[zhimeiV1OffTx2] = params.TxCount
	copy(body[zhimeiV1OffArgs:zhimeiV1OffArgs+zhimeiV1ArgsLen], enc.Args[:])
	for i := 0; i < zhimeiV1PadLen; i++ {
		body[zhimeiV1OffPad+i] = byte(zhimeiV1BodyLen - zhimeiV1PadLen + i)
	}

	dataLen := zhimeiV1BodyLen - zhimeiV1PadLen
	if enc.Cmd != zhimeiV1CmdNoInnerEncrypt {
		// Inner pivot derives from the plaintext tx2 byte (offset 10), the
		// "buf[1]" of the buf+9 window encrypt() is called against.
		obfuscate.ZhimeiEncrypt(body[9:14], 10, obfuscate.ZhimeiPivot(body[10]))
	}
	crc := obfuscate.CRC16BE(body[0:dataLen-3], 0)
	body[zhimeiV1OffCRC] = byte(crc >> 8)
	body[zhimeiV1OffCRC+1] = byte(crc)

	// Outer pivot derives from the plaintext seed byte (offset 1), still
	// untouched by the inner encrypt step above.
	obfuscate.ZhimeiEncrypt(body[0:dataLen], 6, obfuscate.ZhimeiPivot(body[1]))

	f.SetDataLen(zhimeiV1BodyLen)
	return f, nil
}

func (z *zhimeiV1) Decode(f frame.Frame) (gencmd.EncCmd, gencmd.ControllerParams, bool) {
	raw := f.DataBytes()
	if len(raw) != zhimeiV1BodyLen {
		return gencmd.EncCmd{}, gencmd.ControllerParams{}, false
	}
	body := append([]byte(nil), raw...)

	dataLen := zhimeiV1BodyLen - zhimeiV1PadLen
	pivot := obfuscate.ZhimeiDecryptPivot(body[0], 6)
	obfuscate.ZhimeiDecrypt(body[0:dataLen], 6, pivot)

	crc := obfuscate.CRC16BE(body[0:dataLen-3], 0)
	gotCRC := uint16(body[zhimeiV1OffCRC])<<8 | uint16(body[zhimeiV1OffCRC+1])

	if body[zhimeiV1OffCmd] != zhimeiV1CmdNoInnerEncrypt {
		innerPivot := obfuscate.ZhimeiDecryptPivot(body[9], 10)
		obfuscate.ZhimeiDecrypt(body[9:14], 10, innerPivot)
		if body[zhimeiV1OffTx] != body[zhimeiV1OffTx2] {
			return gencmd.EncCmd{}, gencmd.ControllerParams{}, false
		}
	}

	if crc != gotCRC {
		return gencmd.EncCmd{}, gencmd.ControllerParams{}, false
	}
	if body[zhimeiV1OffFF0] != 0xFF || body[zhimeiV1OffFF9] != 0xFF {
		return gencmd.EncCmd{}, gencmd.ControllerParams{}, false
	}
	for i := 0; i < zhimeiV1PadLen; i++ {
		if body[zhimeiV1OffPad+i] != byte(zhimeiV1BodyLen-zhimeiV1PadLen+i) {
			return gencmd.EncCmd{}, gencmd.ControllerParams{}, false
		}
	}

	var enc gencmd.EncCmd
	var params gencmd.ControllerParams
	enc.Cmd = body[zhimeiV1OffCmd]
	copy(enc.Args[:], body[zhimeiV1OffArgs:zhimeiV1OffArgs+zhimeiV1ArgsLen])
	params.TxCount = body[zhimeiV1OffTx]
	params.Index = body[zhimeiV1OffIndex]
	params.ID = uint32(body[zhimeiV1OffID]) | uint32(body[zhimeiV1OffID+1])<<8 |
		uint32(body[zhimeiV1OffID+2])<<16 | uint32(body[zhimeiV1OffID+3])<<24
	params.Seed = uint16(body[zhimeiV1OffSeed])

	return enc, params, true
}

// --- Zhimei v2 ---------------------------------------------------------

type zhimeiV2 struct{}

// NewZhimeiV2 returns the Zhimei v2 codec.
func NewZhimeiV2() Codec { return &zhimeiV2{} }

func (z *zhimeiV2) ID() string       { return makeID("zhimei", "v2") }
func (z *zhimeiV2) Encoding() string { return "zhimei" }
func (z *zhimeiV2) Variant() string  { return "v2" }
func (z *zhimeiV2) Header() []byte   { return zhimeiV2Prefix[:] }

func (z *zhimeiV2) Encode(enc gencmd.EncCmd, params gencmd.ControllerParams) (frame.Frame, error) {
	f, _ := frame.NewFromConfig(false, frame.TypeManufacturer)
	body := f.Body(zhimeiV2BodyLen)

	copy(body[0:zhimeiV2PrefixLen], zhimeiV2Prefix[:])
	txdata := body[zhimeiV2PrefixLen : zhimeiV2PrefixLen+zhimeiV2TxDataLen]

	pivot := enc.Args[2] ^ params.TxCount
	txdata[0] = byte(params.ID) ^ pivot
	txdata[1] = enc.Args[0] ^ pivot
	txdata[2] = params.Index ^ pivot
	txdata[3] = enc.Args[1] ^ pivot
	txdata[4] = enc.Cmd ^ pivot
	txdata[5] = byte(params.ID>>8) ^ pivot
	txdata[6] = enc.Args[2] ^ byte(params.ID)
	txdata[7] = enc.Args[0] ^ params.TxCount

	padOff := zhimeiV2PrefixLen + zhimeiV2TxDataLen + 2
	for i := 0; i < zhimeiV2PadLen; i++ {
		body[padOff+i] = byte(zhimeiV2BodyLen - zhimeiV2PadLen + i + 3)
	}

	crc := zhimeiV2CRC(body[0 : zhimeiV2BodyLen-zhimeiV2PadLen-2])
	body[zhimeiV2PrefixLen+zhimeiV2TxDataLen] = byte(crc)
	body[zhimeiV2PrefixLen+zhimeiV2TxDataLen+1] = byte(crc >> 8)

	obfuscate.Whiten(body[0:zhimeiV2BodyLen-zhimeiV2PadLen], 0x48)

	f.SetDataLen(zhimeiV2BodyLen)
	return f, nil
}

func (z *zhimeiV2) Decode(f frame.Frame) (gencmd.EncCmd, gencmd.ControllerParams, bool) {
	raw := f.DataBytes()
	if len(raw) != zhimeiV2BodyLen {
		return gencmd.EncCmd{}, gencmd.ControllerParams{}, false
	}
	body := append([]byte(nil), raw...)
	obfuscate.Whiten(body[0:zhimeiV2BodyLen-zhimeiV2PadLen], 0x48)

	if !bytesEqual(zhimeiV2Prefix[:], body[0:zhimeiV2PrefixLen]) {
		return gencmd.EncCmd{}, gencmd.ControllerParams{}, false
	}

	crc := zhimeiV2CRC(body[0 : zhimeiV2BodyLen-zhimeiV2PadLen-2])
	gotCRC := uint16(body[zhimeiV2PrefixLen+zhimeiV2TxDataLen]) | uint16(body[zhimeiV2PrefixLen+zhimeiV2TxDataLen+1])<<8
	if crc != gotCRC {
		return gencmd.EncCmd{}, gencmd.ControllerParams{}, false
	}

	padOff := zhimeiV2PrefixLen + zhimeiV2TxDataLen + 2
	for i := 0; i < zhimeiV2PadLen; i++ {
		if body[padOff+i] != byte(zhimeiV2BodyLen-zhimeiV2PadLen+i+3) {
			return gencmd.EncCmd{}, gencmd.ControllerParams{}, false
		}
	}

	txdata := body[zhimeiV2PrefixLen : zhimeiV2PrefixLen+zhimeiV2TxDataLen]
	pivot := txdata[0] ^ txdata[1] ^ txdata[6] ^ txdata[7]

	var enc gencmd.EncCmd
	var params gencmd.ControllerParams
	enc.Cmd = txdata[4] ^ pivot
	enc.Args[0] = txdata[1] ^ pivot
	enc.Args[1] = txdata[3] ^ pivot
	enc.Args[2] = txdata[6] ^ txdata[0] ^ pivot

	params.TxCount = txdata[7] ^ txdata[1] ^ pivot
	params.Index = txdata[2] ^ pivot
	params.ID = uint32(txdata[5]^pivot)<<8 | uint32(txdata[0]^pivot)

	return enc, params, true
}

// zhimeiV2CRC is the CRC16 variant v2 uses: reverse every byte's bits, run
// the big-endian CRC16-CCITT with seed 0xFFFF, reverse the two result bytes
// back, then XOR the big-endian result with 0xFFFF.
func zhimeiV2CRC(buf []byte) uint16 {
	return obfuscate.CRC16ReversedFinalXOR(buf)
}
