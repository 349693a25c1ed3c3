// Package frame implements the fixed-size BLE advertising payload buffer
// every codec reads from and writes into: a flat byte slice plus the TLV
// offsets locating the AD-flag structure and the codec's data structure
// inside it.
package frame

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// MaxPacketLen is the maximum size of a single BLE advertising payload.
const MaxPacketLen = 31

// offsetAbsent is the sentinel value for "this structure is not present".
const offsetAbsent = -1

// AD structure type bytes.
const (
	TypeFlags          byte = 0x01
	TypeServiceUUID16  byte = 0x03
	TypeManufacturer   byte = 0xFF
	TypeServiceData16  byte = 0x16
)

// DefaultDuration is the on-air / dedupe-window duration applied when a
// Frame does not specify one, in milliseconds.
const DefaultDuration = 100

// Frame owns a <=31 byte raw advertising payload and the offsets of its two
// interesting sub-structures. Duration is either how long the scheduler must
// keep the frame on air (outbound) or how long it remains in the dedupe
// window (inbound), in milliseconds.
type Frame struct {
	buf         [MaxPacketLen]byte
	len         int
	adFlagIndex int
	dataIndex   int
	Duration    int
}

// FromRaw scans raw advertising bytes for the AD-flag structure (type 0x01)
// and the codec payload structure (type 0xFF manufacturer, 0x03 16-bit UUID
// service, or 0x16 service-data), tolerating malformed input by leaving the
// corresponding offset at the "absent" sentinel instead of failing.
func FromRaw(raw []byte) Frame {
	f := Frame{adFlagIndex: offsetAbsent, dataIndex: offsetAbsent, Duration: DefaultDuration}
	n := len(raw)
	if n > MaxPacketLen {
		n = MaxPacketLen
	}
	copy(f.buf[:], raw[:n])
	f.len = n

	i := 0
	for i+1 < f.len {
		adLen := int(f.buf[i])
		if adLen == 0 {
			break
		}
		adType := f.buf[i+1]
		structEnd := i + 1 + adLen
		if structEnd > f.len {
			break
		}
		switch adType {
		case TypeFlags:
			f.adFlagIndex = i
		case TypeManufacturer, TypeServiceUUID16, TypeServiceData16:
			f.dataIndex = i
		}
		i = structEnd
	}
	return f
}

// FromHexString parses a hex-encoded raw payload, tolerating the stray
// punctuation a user might paste in from a debug log: surrounding
// parentheses, spaces, dots, and an optional leading "0x".
func FromHexString(s string) (Frame, error) {
	cleaned := cleanHexString(s)
	raw, err := hex.DecodeString(cleaned)
	if err != nil {
		return Frame{}, fmt.Errorf("invalid hex string: %w", err)
	}
	return FromRaw(raw), nil
}

func cleanHexString(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	replacer := strings.NewReplacer(" ", "", ".", "", "0x", "", "0X", "")
	return replacer.Replace(s)
}

// NewFromConfig builds an empty frame from a codec's (ad_flag, data_type)
// configuration: writes the AD-flag TLV (len=2, type=0x01, value=0x06) when
// adFlag is non-zero, then writes the data TLV header (type=dataType,
// length left at 0, finalized later by SetDataLen) and returns the frame
// along with the index the codec should start writing its body at.
func NewFromConfig(adFlag bool, dataType byte) (Frame, int) {
	f := Frame{adFlagIndex: offsetAbsent, dataIndex: offsetAbsent, Duration: DefaultDuration}
	i := 0
	if adFlag {
		f.adFlagIndex = i
		f.buf[i] = 2
		f.buf[i+1] = TypeFlags
		f.buf[i+2] = 0x06
		i += 3
	}
	f.dataIndex = i
	f.buf[i+1] = dataType
	// f.buf[i] (the length byte) is finalized by SetDataLen.
	bodyStart := i + 2
	f.len = bodyStart
	return f, bodyStart
}

// Body returns a mutable slice over the data-structure's value bytes,
// starting right after its length+type header. A codec writes its packed
// body into this slice and then calls SetDataLen.
func (f *Frame) Body(bodyLen int) []byte {
	start := f.dataIndex + 2
	end := start + bodyLen
	if end > MaxPacketLen {
		end = MaxPacketLen
	}
	return f.buf[start:end]
}

// SetDataLen finalises the data-TLV length byte and the frame's total
// length once a codec has written n bytes into Body().
func (f *Frame) SetDataLen(n int) {
	if f.dataIndex == offsetAbsent {
		return
	}
	f.buf[f.dataIndex] = byte(n + 1) // +1 for the type byte itself
	f.len = f.dataIndex + 2 + n
}

// HasAdFlag reports whether this frame carries an AD-flag structure.
func (f Frame) HasAdFlag() bool { return f.adFlagIndex != offsetAbsent }

// HasData reports whether this frame carries a recognised data structure.
func (f Frame) HasData() bool { return f.dataIndex != offsetAbsent }

// DataType returns the type byte of the data structure, or 0 if absent.
func (f Frame) DataType() byte {
	if f.dataIndex == offsetAbsent {
		return 0
	}
	return f.buf[f.dataIndex+1]
}

// Header returns the first n bytes of the data structure's value (its
// "header"), used by codecs to validate a fixed prefix on decode and by
// tests to assert header stability.
func (f Frame) Header(n int) []byte {
	start := f.dataIndex + 2
	end := start + n
	if f.dataIndex == offsetAbsent || end > f.len {
		return nil
	}
	out := make([]byte, n)
	copy(out, f.buf[start:end])
	return out
}

// DataBytes returns a copy of the full data-structure value (everything
// after its length+type header).
func (f Frame) DataBytes() []byte {
	if f.dataIndex == offsetAbsent {
		return nil
	}
	start := f.dataIndex + 2
	if start >= f.len {
		return nil
	}
	out := make([]byte, f.len-start)
	copy(out, f.buf[start:f.len])
	return out
}

// Bytes returns a copy of the full raw payload.
func (f Frame) Bytes() []byte {
	out := make([]byte, f.len)
	copy(out, f.buf[:f.len])
	return out
}

// Len returns the total length of the raw payload.
func (f Frame) Len() int { return f.len }

// Equal reports bytewise equality of the full raw payload, including the
// AD-flag bytes.
func (f Frame) Equal(other Frame) bool {
	if f.len != other.len {
		return false
	}
	for i := 0; i < f.len; i++ {
		if f.buf[i] != other.buf[i] {
			return false
		}
	}
	return true
}

// DataEqual reports "data-slice equal": the data-structure bytes match even
// if the two frames differ in their AD-flag bytes. Used by the dedupe
// filter, since devices vary the AD-flag presence/value across repeats of
// an otherwise identical broadcast.
func (f Frame) DataEqual(other Frame) bool {
	a, b := f.DataBytes(), other.DataBytes()
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

// String renders the frame as a hex string for logging.
func (f Frame) String() string {
	return hex.EncodeToString(f.Bytes())
}
