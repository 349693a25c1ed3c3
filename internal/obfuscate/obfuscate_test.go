package obfuscate

import (
	"bytes"
	"encoding/hex"
	"math/rand"
	"testing"
)

func TestWhiten_IsSelfInverse(t *testing.T) {
	orig := []byte{0x01, 0x02, 0x03, 0xAA, 0xFF, 0x00, 0x37}
	buf := append([]byte(nil), orig...)

	Whiten(buf, 0x37)
	if bytes.Equal(buf, orig) {
		t.Fatal("expected whitening to change the buffer")
	}
	Whiten(buf, 0x37)
	if !bytes.Equal(buf, orig) {
		t.Fatalf("Whiten(Whiten(x)) = % x, want % x", buf, orig)
	}
}

// TestWhiten_MatchesFixedVector pins Whiten against the original
// BleAdvEncoder::whiten's shift-then-check LFSR order for every seed this
// codebase actually uses. A self-inverse test alone can't distinguish a
// correct LFSR from a degenerate one that leaves the buffer untouched; this
// asserts the actual scrambled bytes.
func TestWhiten_MatchesFixedVector(t *testing.T) {
	buf := []byte{0x01, 0x02, 0x03, 0xAA, 0xFF, 0x00, 0x37}
	cases := map[byte]string{
		0x37: "47eba87a615304",
		0x7F: "c68fd1fd5e3d90",
		0x6F: "e244ea012f9e64",
		0x48: "80667a2dc06ea3",
	}
	for seed, want := range cases {
		got := append([]byte(nil), buf...)
		Whiten(got, seed)
		if hex.EncodeToString(got) != want {
			t.Fatalf("Whiten(buf, %#x) = %s, want %s", seed, hex.EncodeToString(got), want)
		}
	}
}

func TestReverseByte(t *testing.T) {
	cases := map[byte]byte{
		0x00: 0x00,
		0xFF: 0xFF,
		0x01: 0x80,
		0x80: 0x01,
		0x0F: 0xF0,
	}
	for in, want := range cases {
		if got := ReverseByte(in); got != want {
			t.Errorf("ReverseByte(%#x) = %#x, want %#x", in, got, want)
		}
	}
}

func TestReverseByte_IsSelfInverse(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 256; i++ {
		b := byte(r.Intn(256))
		if got := ReverseByte(ReverseByte(b)); got != b {
			t.Fatalf("ReverseByte(ReverseByte(%#x)) = %#x", b, got)
		}
	}
}

func TestChecksum(t *testing.T) {
	buf := []byte{0x01, 0x02, 0xFF, 0xFF}
	if got := Checksum(buf); got != 0x01 { // 1+2+255+255 = 513 -> low byte 0x01
		t.Fatalf("Checksum() = %#x, want 0x01", got)
	}
}

func TestZhimeiEncryptDecrypt_RoundTrips(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		n := 1 + r.Intn(16)
		orig := make([]byte, n)
		r.Read(orig)
		pivot := ZhimeiPivot(orig[0])
		key := r.Intn(16)

		buf := append([]byte(nil), orig...)
		ZhimeiEncrypt(buf, key, pivot)
		ZhimeiDecrypt(buf, key, pivot)

		if !bytes.Equal(buf, orig) {
			t.Fatalf("round-trip failed for key=%d pivot=%#x: got % x, want % x", key, pivot, buf, orig)
		}
	}
}

func TestCRC16Reflected_Deterministic(t *testing.T) {
	buf := []byte{0x01, 0x02, 0x03, 0x04}
	a := CRC16Reflected(buf, 0)
	b := CRC16Reflected(buf, 0)
	if a != b {
		t.Fatalf("CRC16Reflected not deterministic: %#x != %#x", a, b)
	}
}

func TestCRC16BE_ZeroSeedEmptyBuffer(t *testing.T) {
	if got := CRC16BE(nil, 0); got != 0 {
		t.Fatalf("CRC16BE(nil, 0) = %#x, want 0", got)
	}
}

// TestZhimeiDecryptPivot_RecoversEncryptPivot pins the invariant the Zhimei
// v1 codec relies on: when the plaintext at offset 0 of an encrypted window
// is always 0xFF, ZhimeiDecryptPivot recovers exactly the pivot ZhimeiPivot
// produced from that same window's (still-plaintext) byte 1.
func TestZhimeiDecryptPivot_RecoversEncryptPivot(t *testing.T) {
	r := rand.New(rand.NewSource(99))
	for i := 0; i < 200; i++ {
		seedByte := byte(r.Intn(256))
		key := r.Intn(16)
		orig := []byte{0xFF, seedByte, byte(r.Intn(256)), byte(r.Intn(256))}

		pivot := ZhimeiPivot(seedByte)
		buf := append([]byte(nil), orig...)
		ZhimeiEncrypt(buf, key, pivot)

		got := ZhimeiDecryptPivot(buf[0], key)
		if got != pivot {
			t.Fatalf("ZhimeiDecryptPivot = %#x, want %#x (key=%d)", got, pivot, key)
		}
	}
}
