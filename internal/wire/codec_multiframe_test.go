package wire

import (
	"bytes"
	"io"
	"testing"

	"github.com/kstaniek/go-flexcan-media/internal/can"
)

// TestDecodeN_MultiFrame verifies DecodeN drains multiple frames from a single buffer.
func TestDecodeN_MultiFrame(t *testing.T) {
	c := Codec{}
	in := []can.Frame{mkFrame(0x10, 8, 1), mkFrame(0x11, 32, 2), mkFrame(0x12, 0, 3)}
	buf := bytes.NewReader(c.Encode(in))
	var out []can.Frame
	n, err := c.DecodeN(buf, 0, func(f can.Frame) { out = append(out, f.CopyShallow()) })
	if err != io.EOF && err != nil { // EOF expected at clean end
		t.Fatalf("DecodeN err=%v", err)
	}
	if n != len(in) || len(out) != len(in) {
		t.Fatalf("decoded %d collected %d want %d", n, len(out), len(in))
	}
	for i := range in {
		if out[i].ID != in[i].ID || out[i].DLC != in[i].DLC || out[i].Timestamp != in[i].Timestamp {
			t.Fatalf("frame %d mismatch", i)
		}
	}
}

// TestDecodeN_MaxLimit verifies the frame cap is honored with data left over.
func TestDecodeN_MaxLimit(t *testing.T) {
	c := Codec{}
	in := []can.Frame{mkFrame(0x20, 4, 0), mkFrame(0x21, 4, 0), mkFrame(0x22, 4, 0)}
	r := bytes.NewReader(c.Encode(in))
	n, err := c.DecodeN(r, 2, func(can.Frame) {})
	if err != nil {
		t.Fatalf("DecodeN err=%v", err)
	}
	if n != 2 {
		t.Fatalf("decoded %d, want 2", n)
	}
	if r.Len() == 0 {
		t.Fatalf("expected leftover bytes for the third frame")
	}
}
