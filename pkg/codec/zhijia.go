package codec

import (
	"github.com/kbable/ble-adv-bridge/internal/obfuscate"
	"github.com/kbable/ble-adv-bridge/pkg/frame"
	"github.com/kbable/ble-adv-bridge/pkg/gencmd"
)

// Zhijia body-layout constants. v0 packs a short 2-byte uuid and an 8-byte
// txdata window; v1/v2/remote share a 16-byte txdata window, a 3-byte uuid
// and a configured 6-byte mac, of which only a 3-byte slice (starting at
// uidStart) actually participates in the per-variant address check.
const (
	zhijiaV0AddrLen   = 3
	zhijiaV0UUIDLen   = 2
	zhijiaV0TxDataLen = 8
	zhijiaV0BodyLen   = zhijiaV0AddrLen + zhijiaV0TxDataLen + 2 // addr + txdata + crc16

	zhijiaUUIDLen   = 3
	zhijiaAddrLen   = 3
	zhijiaMacLen    = 6
	zhijiaTxDataLen = 16
	zhijiaV1BodyLen = zhijiaMacLen + 1 + zhijiaTxDataLen + 2 // mac + pivot + txdata + crc16
)

func zhijiaUUIDToID(uuid []byte) uint32 {
	var id uint32
	n := len(uuid)
	for i := 0; i < n; i++ {
		id |= uint32(uuid[n-i-1]) << uint(8*i)
	}
	return id
}

func zhijiaIDToUUID(id uint32, n int) []byte {
	uuid := make([]byte, n)
	for i := 0; i < n; i++ {
		uuid[n-i-1] = byte(id >> uint(8*i))
	}
	return uuid
}

func zhijiaXorAll(buf []byte, pivot byte) {
	for i := range buf {
		buf[i] ^= pivot
	}
}

// zhijiaParityFix forces the reconstructed pivot to always come out odd:
// XORing with 0 leaves an odd byte alone, XORing with 0xFF (the uint8
// wraparound of 0-1) flips every bit of an even byte, including its low
// one. Matches the original's `pivot ^= (pivot & 1) - 1`, not the literal
// "pivot must be even" wording some docs carry.
func zhijiaParityFix(pivot byte) byte {
	if pivot&1 == 1 {
		return pivot
	}
	return pivot ^ 0xFF
}

// --- Zhijia v0 ---------------------------------------------------------

type zhijiaV0 struct {
	mac [zhijiaV0AddrLen]byte
}

// NewZhijiaV0 returns the Zhijia v0 codec. mac is the 3-byte reversed
// address fragment this codec instance was paired against.
func NewZhijiaV0() Codec {
	return &zhijiaV0{mac: [zhijiaV0AddrLen]byte{0x00, 0x55, 0xAA}}
}

func (z *zhijiaV0) ID() string       { return makeID("zhijia", "v0") }
func (z *zhijiaV0) Encoding() string { return "zhijia" }
func (z *zhijiaV0) Variant() string  { return "v0" }
func (z *zhijiaV0) Header() []byte   { return nil }

func (z *zhijiaV0) Encode(enc gencmd.EncCmd, params gencmd.ControllerParams) (frame.Frame, error) {
	f, _ := frame.NewFromConfig(false, frame.TypeManufacturer)
	body := f.Body(zhijiaV0BodyLen)

	addr := body[0:zhijiaV0AddrLen]
	txdata := body[zhijiaV0AddrLen : zhijiaV0AddrLen+zhijiaV0TxDataLen]

	copy(addr, z.mac[:])
	reverseCopyInPlace(addr)
	obfuscate.ReverseAll(addr)

	uuid := zhijiaIDToUUID(params.ID, zhijiaV0UUIDLen)

	pivot := enc.Args[2] ^ params.TxCount
	txdata[0] = pivot ^ uuid[0]
	txdata[1] = pivot ^ enc.Args[0]
	txdata[2] = pivot ^ params.Index
	txdata[3] = pivot ^ enc.Args[1]
	txdata[4] = pivot ^ enc.Cmd
	txdata[5] = pivot ^ uuid[1]
	txdata[6] = enc.Args[2] ^ uuid[0]
	txdata[7] = enc.Args[0] ^ params.TxCount

	crc := obfuscate.CRC16Reflected(body[0:zhijiaV0AddrLen+zhijiaV0TxDataLen], 0)
	body[zhijiaV0AddrLen+zhijiaV0TxDataLen] = byte(crc)
	body[zhijiaV0AddrLen+zhijiaV0TxDataLen+1] = byte(crc >> 8)

	obfuscate.Whiten(body, 0x7F)
	obfuscate.Whiten(body, 0x37)

	f.SetDataLen(zhijiaV0BodyLen)
	return f, nil
}

func (z *zhijiaV0) Decode(f frame.Frame) (gencmd.EncCmd, gencmd.ControllerParams, bool) {
	raw := f.DataBytes()
	if len(raw) != zhijiaV0BodyLen {
		return gencmd.EncCmd{}, gencmd.ControllerParams{}, false
	}
	body := append([]byte(nil), raw...)

	obfuscate.Whiten(body, 0x37)
	obfuscate.Whiten(body, 0x7F)

	addr := body[0:zhijiaV0AddrLen]
	txdata := body[zhijiaV0AddrLen : zhijiaV0AddrLen+zhijiaV0TxDataLen]
	gotCRC := uint16(body[zhijiaV0AddrLen+zhijiaV0TxDataLen]) | uint16(body[zhijiaV0AddrLen+zhijiaV0TxDataLen+1])<<8

	crc := obfuscate.CRC16Reflected(body[0:zhijiaV0AddrLen+zhijiaV0TxDataLen], 0)
	if crc != gotCRC {
		return gencmd.EncCmd{}, gencmd.ControllerParams{}, false
	}

	obfuscate.ReverseAll(addr)
	reversed := append([]byte(nil), addr...)
	reverseCopyInPlace(reversed)
	if !bytesEqual(z.mac[:], reversed) {
		return gencmd.EncCmd{}, gencmd.ControllerParams{}, false
	}

	var params gencmd.ControllerParams
	var enc gencmd.EncCmd

	params.TxCount = txdata[0] ^ txdata[6]
	enc.Args[0] = params.TxCount ^ txdata[7]
	pivot := txdata[1] ^ enc.Args[0]

	uuid := make([]byte, zhijiaV0UUIDLen)
	uuid[0] = pivot ^ txdata[0]
	uuid[1] = pivot ^ txdata[5]
	params.ID = zhijiaUUIDToID(uuid)
	params.Index = pivot ^ txdata[2]
	enc.Cmd = pivot ^ txdata[4]
	enc.Args[1] = pivot ^ txdata[3]
	enc.Args[2] = uuid[0] ^ txdata[6]

	return enc, params, true
}

// --- Zhijia v1/v2/remote shared layout -----------------------------------

// zhijiaFromTxdata reverses to_txdata: it fills enc/params from a decoded
// (already un-pivoted) 16-byte txdata window, and reports whether the
// address fragment derived from txdata matches mac[uidStart:uidStart+3].
func zhijiaFromTxdata(txdata []byte, mac [zhijiaMacLen]byte, uidStart int) (gencmd.EncCmd, gencmd.ControllerParams, bool) {
	var enc gencmd.EncCmd
	var params gencmd.ControllerParams

	params.TxCount = txdata[4]
	params.Index = txdata[6]
	enc.Cmd = txdata[9]

	addr := [zhijiaAddrLen]byte{
		txdata[7],
		txdata[10],
		txdata[13] ^ params.TxCount,
	}

	enc.Args[0] = txdata[0]
	enc.Args[1] = txdata[3]
	enc.Args[2] = txdata[5]

	uuid := make([]byte, zhijiaUUIDLen)
	uuid[0] = txdata[2]
	uuid[1] = txdata[12] ^ uuid[0]
	uuid[2] = txdata[15] ^ enc.Cmd
	params.ID = zhijiaUUIDToID(uuid)

	ok := bytesEqual(mac[uidStart:uidStart+zhijiaAddrLen], addr[:])
	return enc, params, ok
}

// zhijiaToTxdata is the inverse of zhijiaFromTxdata: it writes the 16-byte
// txdata window (before pivot XOR) for a given command and identity.
func zhijiaToTxdata(enc gencmd.EncCmd, params gencmd.ControllerParams, mac [zhijiaMacLen]byte, uidStart int) []byte {
	uuid := zhijiaIDToUUID(params.ID, zhijiaUUIDLen)
	addr := mac[uidStart : uidStart+zhijiaAddrLen]

	key := enc.Cmd ^ enc.Args[0] ^ enc.Args[1] ^ enc.Args[2]
	key ^= uuid[0] ^ uuid[1] ^ uuid[2] ^ params.TxCount ^ params.Index ^ addr[0] ^ addr[1] ^ addr[2]

	txdata := make([]byte, zhijiaTxDataLen)
	txdata[0] = enc.Args[0]
	txdata[1] = key
	txdata[2] = uuid[0]
	txdata[3] = enc.Args[1]
	txdata[4] = params.TxCount
	txdata[5] = enc.Args[2]
	txdata[6] = params.Index
	txdata[7] = addr[0]
	txdata[8] = 0x00
	txdata[9] = enc.Cmd
	txdata[10] = addr[1]
	txdata[11] = 0x00
	txdata[12] = uuid[1] ^ uuid[0]
	txdata[13] = addr[2] ^ params.TxCount
	txdata[14] = 0x00
	txdata[15] = uuid[2] ^ enc.Cmd
	return txdata
}

type zhijiaV1 struct {
	mac      [zhijiaMacLen]byte
	uidStart int
}

// NewZhijiaV1 returns the Zhijia v1 codec, configured against a 6-byte mac
// with the 3-byte address fragment starting at offset 0.
func NewZhijiaV1() Codec {
	return &zhijiaV1{mac: [zhijiaMacLen]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}, uidStart: 0}
}

func (z *zhijiaV1) ID() string       { return makeID("zhijia", "v1") }
func (z *zhijiaV1) Encoding() string { return "zhijia" }
func (z *zhijiaV1) Variant() string  { return "v1" }
func (z *zhijiaV1) Header() []byte   { return nil }

func (z *zhijiaV1) Encode(enc gencmd.EncCmd, params gencmd.ControllerParams) (frame.Frame, error) {
	f, _ := frame.NewFromConfig(false, frame.TypeManufacturer)
	body := f.Body(zhijiaV1BodyLen)
	z.writeBody(body, enc, params)

	obfuscate.Whiten(body, 0x37)
	f.SetDataLen(zhijiaV1BodyLen)
	return f, nil
}

// writeBody fills mac, pivot, txdata and crc16 for v1. It is not shared with
// v2/remote -- they build their bodies inline below since their pivot/crc
// handling differs.
func (z *zhijiaV1) writeBody(body []byte, enc gencmd.EncCmd, params gencmd.ControllerParams) {
	mac := body[0:zhijiaMacLen]
	copy(mac, z.mac[:])
	reverseCopyInPlace(mac)
	obfuscate.ReverseAll(mac)

	txdata := zhijiaToTxdata(enc, params, z.mac, z.uidStart)
	txdata[14] = txdata[7]

	pivot := txdata[2] ^ txdata[4] ^ txdata[9] ^ txdata[12] ^ txdata[13] ^ txdata[15]
	pivot = zhijiaParityFix(pivot)

	zhijiaXorAll(txdata, pivot)
	copy(body[zhijiaMacLen+1:zhijiaMacLen+1+zhijiaTxDataLen], txdata)
	body[zhijiaMacLen] = pivot

	crc := obfuscate.CRC16Reflected(body[0:zhijiaV1BodyLen-2], 0)
	body[zhijiaV1BodyLen-2] = byte(crc)
	body[zhijiaV1BodyLen-1] = byte(crc >> 8)
}

func (z *zhijiaV1) Decode(f frame.Frame) (gencmd.EncCmd, gencmd.ControllerParams, bool) {
	raw := f.DataBytes()
	if len(raw) != zhijiaV1BodyLen {
		return gencmd.EncCmd{}, gencmd.ControllerParams{}, false
	}
	body := append([]byte(nil), raw...)
	obfuscate.Whiten(body, 0x37)
	return z.decodeBody(body)
}

func (z *zhijiaV1) decodeBody(body []byte) (gencmd.EncCmd, gencmd.ControllerParams, bool) {
	gotCRC := uint16(body[zhijiaV1BodyLen-2]) | uint16(body[zhijiaV1BodyLen-1])<<8
	crc := obfuscate.CRC16Reflected(body[0:zhijiaV1BodyLen-2], 0)
	if crc != gotCRC {
		return gencmd.EncCmd{}, gencmd.ControllerParams{}, false
	}

	mac := body[0:zhijiaMacLen]
	obfuscate.ReverseAll(mac)
	reversed := append([]byte(nil), mac...)
	reverseCopyInPlace(reversed)
	if !bytesEqual(z.mac[:], reversed) {
		return gencmd.EncCmd{}, gencmd.ControllerParams{}, false
	}

	pivot := body[zhijiaMacLen]
	txdata := append([]byte(nil), body[zhijiaMacLen+1:zhijiaMacLen+1+zhijiaTxDataLen]...)
	zhijiaXorAll(txdata, pivot)

	enc, params, ok := zhijiaFromTxdata(txdata, z.mac, z.uidStart)
	if !ok {
		return gencmd.EncCmd{}, gencmd.ControllerParams{}, false
	}
	if txdata[7] != txdata[14] || txdata[8] != 0x00 || txdata[11] != 0x00 {
		return gencmd.EncCmd{}, gencmd.ControllerParams{}, false
	}

	rePivot := txdata[2] ^ txdata[4] ^ txdata[9] ^ txdata[12] ^ txdata[13] ^ txdata[15]
	rePivot = zhijiaParityFix(rePivot)
	if rePivot != pivot {
		return gencmd.EncCmd{}, gencmd.ControllerParams{}, false
	}

	return enc, params, true
}

// --- Zhijia v2 -----------------------------------------------------------

type zhijiaV2 struct {
	mac      [zhijiaMacLen]byte
	uidStart int
}

// NewZhijiaV2 returns the Zhijia v2 codec.
func NewZhijiaV2() Codec {
	return &zhijiaV2{mac: [zhijiaMacLen]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}, uidStart: 0}
}

func (z *zhijiaV2) ID() string       { return makeID("zhijia", "v2") }
func (z *zhijiaV2) Encoding() string { return "zhijia" }
func (z *zhijiaV2) Variant() string  { return "v2" }
func (z *zhijiaV2) Header() []byte   { return nil }

func (z *zhijiaV2) Encode(enc gencmd.EncCmd, params gencmd.ControllerParams) (frame.Frame, error) {
	f, _ := frame.NewFromConfig(false, frame.TypeManufacturer)
	body := f.Body(zhijiaV1BodyLen)

	txdata := zhijiaToTxdata(enc, params, z.mac, z.uidStart)
	txdata[1] ^= txdata[9]
	txdata[8] = txdata[2] ^ txdata[3] ^ txdata[4] ^ txdata[7]
	txdata[14] = txdata[2] ^ txdata[3] ^ txdata[4] ^ txdata[9]

	pivot := txdata[3] ^ txdata[7] ^ txdata[12] ^ txdata[13] ^ txdata[15]
	pivot = zhijiaParityFix(pivot)

	zhijiaXorAll(txdata, pivot)
	copy(body[zhijiaMacLen+1:zhijiaMacLen+1+zhijiaTxDataLen], txdata)
	body[zhijiaMacLen] = pivot

	obfuscate.Whiten(body[0:zhijiaV1BodyLen-2], 0xD3)
	obfuscate.Whiten(body, 0x6F)

	f.SetDataLen(zhijiaV1BodyLen)
	return f, nil
}

func (z *zhijiaV2) Decode(f frame.Frame) (gencmd.EncCmd, gencmd.ControllerParams, bool) {
	raw := f.DataBytes()
	if len(raw) != zhijiaV1BodyLen {
		return gencmd.EncCmd{}, gencmd.ControllerParams{}, false
	}
	body := append([]byte(nil), raw...)

	obfuscate.Whiten(body, 0x6F)
	obfuscate.Whiten(body[0:zhijiaV1BodyLen-2], 0xD3)

	pivot := body[zhijiaMacLen]
	txdata := append([]byte(nil), body[zhijiaMacLen+1:zhijiaMacLen+1+zhijiaTxDataLen]...)
	zhijiaXorAll(txdata, pivot)

	enc, params, ok := zhijiaFromTxdata(txdata, z.mac, z.uidStart)
	if !ok {
		return gencmd.EncCmd{}, gencmd.ControllerParams{}, false
	}

	rePivot := txdata[3] ^ txdata[7] ^ txdata[12] ^ txdata[13] ^ txdata[15]
	rePivot = zhijiaParityFix(rePivot)
	if rePivot != pivot {
		return gencmd.EncCmd{}, gencmd.ControllerParams{}, false
	}
	if txdata[2]^txdata[3]^txdata[4]^txdata[7] != txdata[8] {
		return gencmd.EncCmd{}, gencmd.ControllerParams{}, false
	}
	if txdata[11] != 0x00 {
		return gencmd.EncCmd{}, gencmd.ControllerParams{}, false
	}
	if txdata[2]^txdata[3]^txdata[4]^txdata[9] != txdata[14] {
		return gencmd.EncCmd{}, gencmd.ControllerParams{}, false
	}

	return enc, params, true
}

// --- Zhijia remote ---------------------------------------------------------

type zhijiaRemote struct {
	mac      [zhijiaMacLen]byte
	uidStart int
}

// NewZhijiaRemote returns the Zhijia remote codec: no CRC, no whitening,
// and a pivot the original component itself isn't fully confident about
// (see the 0xC9 constant below).
func NewZhijiaRemote() Codec {
	return &zhijiaRemote{mac: [zhijiaMacLen]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}, uidStart: 0}
}

func (z *zhijiaRemote) ID() string       { return makeID("zhijia", "remote") }
func (z *zhijiaRemote) Encoding() string { return "zhijia" }
func (z *zhijiaRemote) Variant() string  { return "remote" }
func (z *zhijiaRemote) Header() []byte   { return nil }

func (z *zhijiaRemote) Encode(enc gencmd.EncCmd, params gencmd.ControllerParams) (frame.Frame, error) {
	f, _ := frame.NewFromConfig(false, frame.TypeManufacturer)
	body := f.Body(zhijiaV1BodyLen)

	txdata := zhijiaToTxdata(enc, params, z.mac, z.uidStart)
	txdata[1] ^= 0x04
	txdata[8] = 0x01
	txdata[11] = 0x02
	txdata[14] = txdata[2]

	const pivot = 0xC9 // not validated against real hardware
	zhijiaXorAll(txdata, pivot^0x06)
	copy(body[zhijiaMacLen+1:zhijiaMacLen+1+zhijiaTxDataLen], txdata)
	body[zhijiaMacLen] = pivot

	f.SetDataLen(zhijiaV1BodyLen)
	return f, nil
}

func (z *zhijiaRemote) Decode(f frame.Frame) (gencmd.EncCmd, gencmd.ControllerParams, bool) {
	raw := f.DataBytes()
	if len(raw) != zhijiaV1BodyLen {
		return gencmd.EncCmd{}, gencmd.ControllerParams{}, false
	}
	body := append([]byte(nil), raw...)

	storedPivot := body[zhijiaMacLen]
	txdata := append([]byte(nil), body[zhijiaMacLen+1:zhijiaMacLen+1+zhijiaTxDataLen]...)

	// arg2 (txdata[5]) is always 0 for remotes, so the raw byte at that
	// offset already carries the effective pivot.
	effPivot := txdata[5]
	zhijiaXorAll(txdata, effPivot)

	enc, params, ok := zhijiaFromTxdata(txdata, z.mac, z.uidStart)
	if !ok {
		return gencmd.EncCmd{}, gencmd.ControllerParams{}, false
	}
	if txdata[8] != 0x01 || txdata[11] != 0x02 || txdata[2] != txdata[14] {
		return gencmd.EncCmd{}, gencmd.ControllerParams{}, false
	}

	// The component only warns on a pivot mismatch here, it never rejects;
	// without a logger threaded through Codec this is a no-op placeholder
	// for that diagnostic.
	if (storedPivot ^ 0x06) != effPivot {
		_ = storedPivot
	}

	return enc, params, true
}

func reverseCopyInPlace(buf []byte) {
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
