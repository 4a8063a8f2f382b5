package wire

import (
	"bytes"
	"crypto/rand"
	"errors"
	"io"
	"testing"

	"github.com/kstaniek/go-flexcan-media/internal/can"
)

func mkFrame(id uint32, n int, ts uint64) can.Frame {
	var f can.Frame
	f.ID = id & can.EFFMask
	f.DLC = can.DLCFromLength(n)
	f.Timestamp = ts
	rand.Read(f.Data[:f.Length()])
	return f
}

func TestCodec_RoundTrip(t *testing.T) {
	codec := Codec{}
	in := []can.Frame{
		mkFrame(0x1E5A, 8, 1),
		mkFrame(0x1F55, 64, 2),
		mkFrame(0x12345, 0, 3),
		mkFrame(0x1FFFFFFF, 12, 1<<40),
	}

	stream := codec.Encode(in)
	var out []can.Frame
	br := bytes.NewReader(stream)
	n, err := codec.DecodeN(br, 0, func(f can.Frame) { out = append(out, f.CopyShallow()) })
	if err != io.EOF && err != nil {
		t.Fatalf("DecodeN unexpected err: %v", err)
	}
	if n != len(in) {
		t.Fatalf("decoded %d, want %d", n, len(in))
	}
	for i := range in {
		if out[i].ID != in[i].ID || out[i].DLC != in[i].DLC || out[i].Timestamp != in[i].Timestamp {
			t.Fatalf("frame %d header mismatch: %+v vs %+v", i, out[i], in[i])
		}
		if !bytes.Equal(out[i].Data[:out[i].Length()], in[i].Data[:in[i].Length()]) {
			t.Fatalf("frame %d payload mismatch", i)
		}
	}
}

func TestCodec_EncodeToMatchesEncode(t *testing.T) {
	codec := Codec{}
	frames := []can.Frame{mkFrame(0x10, 48, 0), mkFrame(0x11, 3, 9)}
	a := codec.Encode(frames)
	var buf bytes.Buffer
	if _, err := codec.EncodeTo(&buf, frames); err != nil {
		t.Fatalf("EncodeTo error: %v", err)
	}
	if !bytes.Equal(a, buf.Bytes()) {
		t.Fatalf("Encode vs EncodeTo mismatch\nenc=% X\nencTo=% X", a, buf.Bytes())
	}
}

func TestCodec_DecodeErrors(t *testing.T) {
	codec := Codec{}

	// DLC byte with reserved bits set.
	var bad bytes.Buffer
	bad.Write([]byte{0, 0, 0, 1})
	bad.WriteByte(0x19)
	bad.Write(make([]byte, 8))
	if _, err := codec.Decode(&bad); !errors.Is(err, ErrInvalidDLC) {
		t.Fatalf("err %v, want invalid dlc", err)
	}

	// Header cut off mid-timestamp.
	var short bytes.Buffer
	short.Write([]byte{0, 0, 0, 2, 0x08, 0, 0})
	if _, err := codec.Decode(&short); !errors.Is(err, ErrTruncatedFrame) {
		t.Fatalf("err %v, want truncated", err)
	}

	// Payload shorter than the DLC announces.
	var trunc bytes.Buffer
	trunc.Write([]byte{0, 0, 0, 2})
	trunc.WriteByte(0x09) // 12-byte payload
	trunc.Write(make([]byte, 8))
	trunc.Write([]byte{1, 2, 3})
	if _, err := codec.Decode(&trunc); !errors.Is(err, ErrTruncatedFrame) {
		t.Fatalf("err %v, want truncated", err)
	}

	// Clean boundary with nothing buffered is plain EOF, not malformed.
	if _, err := codec.Decode(bytes.NewReader(nil)); err != io.EOF {
		t.Fatalf("err %v, want io.EOF", err)
	}
}

func BenchmarkCodec_Encode(b *testing.B) {
	codec := Codec{}
	frames := make([]can.Frame, 64)
	for i := range frames {
		frames[i] = mkFrame(uint32(0x100+i), 64, uint64(i))
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = codec.Encode(frames)
	}
}

func BenchmarkCodec_DecodeN(b *testing.B) {
	codec := Codec{}
	frames := make([]can.Frame, 64)
	for i := range frames {
		frames[i] = mkFrame(uint32(0x300+i), 64, uint64(i))
	}
	stream := codec.Encode(frames)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		r := bytes.NewReader(stream)
		_, _ = codec.DecodeN(r, 0, func(can.Frame) {})
	}
}
