package codec

import (
	"testing"

	"github.com/kbable/ble-adv-bridge/internal/obfuscate"
	"github.com/kbable/ble-adv-bridge/pkg/frame"
	"github.com/kbable/ble-adv-bridge/pkg/gencmd"
)

// mustFrameFromDataBytes rebuilds a manufacturer-data frame from a raw body
// slice, used by tests that need to corrupt an already-encoded body.
func mustFrameFromDataBytes(t *testing.T, data []byte) frame.Frame {
	t.Helper()
	f, _ := frame.NewFromConfig(false, frame.TypeManufacturer)
	copy(f.Body(len(data)), data)
	f.SetDataLen(len(data))
	return f
}

func TestZhimeiV0_RoundTrip(t *testing.T) {
	c := NewZhimeiV0()
	enc := gencmd.EncCmd{Cmd: 0x05, Args: [3]byte{10, 20, 30}}
	params := gencmd.ControllerParams{ID: 0x1234, Index: 3, TxCount: 9}

	f, err := c.Encode(enc, params)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	gotEnc, gotParams, ok := c.Decode(f)
	if !ok {
		t.Fatal("Decode failed on a frame this codec just encoded")
	}
	if gotEnc != enc {
		t.Fatalf("decoded EncCmd = %+v, want %+v", gotEnc, enc)
	}
	if gotParams.ID != params.ID || gotParams.Index != params.Index || gotParams.TxCount != params.TxCount {
		t.Fatalf("decoded params = %+v, want %+v", gotParams, params)
	}
}

// TestZhimeiV1_EncryptDecryptSymmetry is the literal scenario from spec.md
// section 8: feed a fixed set of fields through encode/decode and assert the
// two 0xFF filler bytes and the duplicated tx_count survive.
func TestZhimeiV1_EncryptDecryptSymmetry(t *testing.T) {
	c := NewZhimeiV1()
	enc := gencmd.EncCmd{Cmd: 0x10, Args: [3]byte{0x11, 0x22, 0x33}}
	params := gencmd.ControllerParams{ID: 0xDEADBEEF, Index: 3, TxCount: 9, Seed: 0x5A}

	f, err := c.Encode(enc, params)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	gotEnc, gotParams, ok := c.Decode(f)
	if !ok {
		t.Fatal("Decode failed on a frame this codec just encoded")
	}
	if gotEnc != enc {
		t.Fatalf("decoded EncCmd = %+v, want %+v", gotEnc, enc)
	}
	if gotParams.ID != params.ID || gotParams.Index != params.Index ||
		gotParams.TxCount != params.TxCount || gotParams.Seed != params.Seed&0xFF {
		t.Fatalf("decoded params = %+v, want %+v", gotParams, params)
	}

	// The fillers and tx2 are encrypted on the wire; undo both encryption
	// layers before inspecting them.
	body := append([]byte(nil), f.DataBytes()...)
	dataLen := zhimeiV1BodyLen - zhimeiV1PadLen
	obfuscate.ZhimeiDecrypt(body[0:dataLen], 6, obfuscate.ZhimeiDecryptPivot(body[0], 6))
	obfuscate.ZhimeiDecrypt(body[9:14], 10, obfuscate.ZhimeiDecryptPivot(body[9], 10))
	if body[zhimeiV1OffFF0] != 0xFF || body[zhimeiV1OffFF9] != 0xFF {
		t.Fatalf("ff0/ff9 fillers not preserved in the decrypted body: %x", body)
	}
	if body[zhimeiV1OffTx2] != params.TxCount {
		t.Fatalf("duplicated tx_count = %#x, want %#x", body[zhimeiV1OffTx2], params.TxCount)
	}
}

// TestZhimeiV1_SkipsInnerEncryptForB4 pins the preserved open question: the
// inner 5-byte window is never substitution-encrypted when cmd == 0xB4.
func TestZhimeiV1_SkipsInnerEncryptForB4(t *testing.T) {
	c := NewZhimeiV1()
	enc := gencmd.EncCmd{Cmd: 0xB4, Args: [3]byte{1, 2, 3}}
	params := gencmd.ControllerParams{ID: 0xAABBCC, Index: 1, TxCount: 5}

	f, err := c.Encode(enc, params)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	gotEnc, _, ok := c.Decode(f)
	if !ok {
		t.Fatal("Decode failed on a frame this codec just encoded")
	}
	if gotEnc.Cmd != 0xB4 {
		t.Fatalf("decoded cmd = %#x, want 0xB4", gotEnc.Cmd)
	}
}

func TestZhimeiV2_RoundTrip(t *testing.T) {
	c := NewZhimeiV2()
	enc := gencmd.EncCmd{Cmd: 0x07, Args: [3]byte{1, 2, 3}}
	params := gencmd.ControllerParams{ID: 0x2233, Index: 4, TxCount: 6}

	f, err := c.Encode(enc, params)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	gotEnc, gotParams, ok := c.Decode(f)
	if !ok {
		t.Fatal("Decode failed on a frame this codec just encoded")
	}
	if gotEnc != enc {
		t.Fatalf("decoded EncCmd = %+v, want %+v", gotEnc, enc)
	}
	if gotParams.ID != params.ID&0xFFFF || gotParams.Index != params.Index || gotParams.TxCount != params.TxCount {
		t.Fatalf("decoded params = %+v, want %+v", gotParams, params)
	}
}

func TestZhimeiV2_RejectsWrongPrefix(t *testing.T) {
	c := NewZhimeiV2()
	enc := gencmd.EncCmd{Cmd: 0x01}
	params := gencmd.ControllerParams{ID: 1, Index: 1, TxCount: 1}

	f, err := c.Encode(enc, params)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	body := f.DataBytes()
	corrupted := append([]byte(nil), body...)
	corrupted[0] ^= 0xFF
	cf := mustFrameFromDataBytes(t, corrupted)
	if _, _, ok := c.Decode(cf); ok {
		t.Fatal("expected a corrupted prefix to be rejected")
	}
}
