package codec

import (
	"testing"

	"github.com/kbable/ble-adv-bridge/pkg/gencmd"
)

func TestAgarce_RoundTrip_SingleLightOn(t *testing.T) {
	c := NewAgarce()

	enc := gencmd.EncCmd{Cmd: 0x10} // a non-zero upper cmd nibble: Decode keeps only tx0's upper nibble
	params := gencmd.ControllerParams{ID: 0x12345678, Index: 5, TxCount: 7, Seed: 0xBEEF}

	f, err := c.Encode(enc, params)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	gotHeader := f.Header(1)
	if len(gotHeader) != 1 || gotHeader[0] != 0x83 {
		t.Fatalf("Header() = % x, want [83]", gotHeader)
	}

	gotEnc, gotParams, ok := c.Decode(f)
	if !ok {
		t.Fatal("Decode failed on a frame this codec just encoded")
	}
	if gotEnc != enc {
		t.Fatalf("decoded EncCmd = %+v, want %+v", gotEnc, enc)
	}
	if gotParams.ID != params.ID || gotParams.Index != params.Index ||
		gotParams.TxCount != params.TxCount || gotParams.Seed != params.Seed {
		t.Fatalf("decoded params = %+v, want %+v", gotParams, params)
	}
}

func TestAgarce_RejectsGroupCommand(t *testing.T) {
	// Encode writes the prefix's upper nibble into args[1] for cmd==0, so a
	// prefix whose upper nibble is 0 yields the ambiguous group form.
	c := &agarce{variant: "v1", prefix: 0x03}
	enc := gencmd.EncCmd{Cmd: 0x00}
	params := gencmd.ControllerParams{ID: 1, Index: 1, TxCount: 1, Seed: 0x1234}

	f, err := c.Encode(enc, params)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, _, ok := c.Decode(f); ok {
		t.Fatal("expected Decode to reject a group command (cmd==0 && args[1]==0)")
	}
}

func TestAgarce_RejectsWrongPrefix(t *testing.T) {
	a := NewAgarce().(*agarce)
	enc := gencmd.EncCmd{Cmd: 0x10}
	params := gencmd.ControllerParams{ID: 1, Index: 1, TxCount: 1, Seed: 0xABCD}

	f, err := a.Encode(enc, params)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	other := &agarce{variant: "v1", prefix: 0x84}
	if _, _, ok := other.Decode(f); ok {
		t.Fatal("expected a codec configured with a different prefix to reject the frame")
	}
}

func TestAgarce_HeaderStability(t *testing.T) {
	c := NewAgarce()
	enc := gencmd.EncCmd{Cmd: 0x20, Args: [3]byte{1, 2, 3}}
	params := gencmd.ControllerParams{ID: 99, Index: 2, TxCount: 50, Seed: 0x4242}

	f, err := c.Encode(enc, params)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if got := f.Header(len(c.Header())); string(got) != string(c.Header()) {
		t.Fatalf("Header() = % x, want % x", got, c.Header())
	}
}
