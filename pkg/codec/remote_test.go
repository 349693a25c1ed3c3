package codec

import (
	"testing"

	"github.com/kbable/ble-adv-bridge/pkg/gencmd"
)

func TestRemote_RoundTrip(t *testing.T) {
	c := NewRemote()
	enc := gencmd.EncCmd{Cmd: 0x15, Args: [3]byte{3, 0x40, 0}}
	params := gencmd.ControllerParams{ID: 0xCAFEBABE, TxCount: 12}

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
	if gotParams.ID != params.ID || gotParams.TxCount != params.TxCount {
		t.Fatalf("decoded params = %+v, want %+v", gotParams, params)
	}
}

func TestRemote_RejectsBadChecksum(t *testing.T) {
	c := NewRemote()
	enc := gencmd.EncCmd{Cmd: 0x01}
	params := gencmd.ControllerParams{ID: 1, TxCount: 1}

	f, err := c.Encode(enc, params)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	body := f.DataBytes()
	corrupted := append([]byte(nil), body...)
	corrupted[len(corrupted)-1] ^= 0xFF
	cf := mustFrameFromDataBytes(t, corrupted)
	if _, _, ok := c.Decode(cf); ok {
		t.Fatal("expected a corrupted checksum to be rejected")
	}
}
