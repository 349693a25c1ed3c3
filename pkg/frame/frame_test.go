package frame

import (
	"bytes"
	"testing"
)

func TestFromRaw_FindsFlagAndManufacturerData(t *testing.T) {
	raw := []byte{
		0x02, TypeFlags, 0x06,
		0x05, TypeManufacturer, 0xAA, 0xBB, 0xCC, 0xDD,
	}
	f := FromRaw(raw)

	if !f.HasAdFlag() {
		t.Fatal("expected AD-flag structure to be found")
	}
	if !f.HasData() {
		t.Fatal("expected data structure to be found")
	}
	if f.DataType() != TypeManufacturer {
		t.Fatalf("DataType() = %#x, want %#x", f.DataType(), TypeManufacturer)
	}
	want := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	if got := f.DataBytes(); !bytes.Equal(got, want) {
		t.Fatalf("DataBytes() = % x, want % x", got, want)
	}
}

func TestFromRaw_MalformedLeavesSentinel(t *testing.T) {
	raw := []byte{0x10, TypeManufacturer, 0x01, 0x02} // declares len=16 but only 2 bytes follow
	f := FromRaw(raw)

	if f.HasData() {
		t.Fatal("expected malformed TLV to leave data index absent")
	}
	if f.HasAdFlag() {
		t.Fatal("expected malformed TLV to leave ad-flag index absent")
	}
}

func TestFromHexString_StripsPunctuation(t *testing.T) {
	cases := []string{
		"(0x02 01 06)",
		"02.01.06",
		"0x020106",
		"02 01 06",
	}
	for _, c := range cases {
		f, err := FromHexString(c)
		if err != nil {
			t.Fatalf("FromHexString(%q) error: %v", c, err)
		}
		if !f.HasAdFlag() {
			t.Fatalf("FromHexString(%q): expected ad-flag structure", c)
		}
	}
}

func TestNewFromConfig_RoundTripsBody(t *testing.T) {
	f, bodyStart := NewFromConfig(true, TypeManufacturer)
	_ = bodyStart
	body := f.Body(4)
	copy(body, []byte{0x11, 0x22, 0x33, 0x44})
	f.SetDataLen(4)

	if !f.HasAdFlag() || !f.HasData() {
		t.Fatal("expected both structures present")
	}
	want := []byte{0x11, 0x22, 0x33, 0x44}
	if got := f.DataBytes(); !bytes.Equal(got, want) {
		t.Fatalf("DataBytes() = % x, want % x", got, want)
	}
}

func TestDataEqual_IgnoresAdFlagDifference(t *testing.T) {
	a := FromRaw([]byte{0x02, TypeFlags, 0x06, 0x05, TypeManufacturer, 1, 2, 3, 4})
	b := FromRaw([]byte{0x02, TypeFlags, 0x1A, 0x05, TypeManufacturer, 1, 2, 3, 4})

	if a.Equal(b) {
		t.Fatal("expected bytewise Equal to detect the AD-flag difference")
	}
	if !a.DataEqual(b) {
		t.Fatal("expected DataEqual to ignore the AD-flag difference")
	}
}

func TestHeader_MatchesConfiguredPrefix(t *testing.T) {
	f, _ := NewFromConfig(false, TypeManufacturer)
	body := f.Body(3)
	copy(body, []byte{0x83, 0x01, 0x02})
	f.SetDataLen(3)

	got := f.Header(1)
	if len(got) != 1 || got[0] != 0x83 {
		t.Fatalf("Header(1) = % x, want [83]", got)
	}
}
