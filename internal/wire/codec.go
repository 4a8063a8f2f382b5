package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/kstaniek/go-flexcan-media/internal/can"
	"github.com/kstaniek/go-flexcan-media/internal/metrics"
)

// Codec encodes/decodes CAN FD frames for the TCP stream. Stateless and
// safe for concurrent use.
//
// Wire format per frame: 4-byte BE identifier, 1-byte DLC (lower 4
// bits), 8-byte BE microsecond timestamp, then Length(DLC) payload
// bytes. The payload length is derived from the DLC, so the stream is
// self-delimiting.
type Codec struct{}

// ErrInvalidDLC is returned when a frame's DLC byte has reserved bits set.
var ErrInvalidDLC = errors.New("wire: invalid dlc")

// ErrTruncatedFrame is returned when the underlying reader ends mid-frame.
var ErrTruncatedFrame = errors.New("wire: truncated frame")

const headerLen = 4 + 1 + 8

// Encode packs frames into a single buffer.
func (c *Codec) Encode(frames []can.Frame) []byte {
	if len(frames) == 0 {
		return nil
	}
	var buf bytes.Buffer
	// Pre-size: worst case per frame = header + 64 payload bytes.
	buf.Grow(len(frames) * (headerLen + can.MaxData))
	_, _ = c.EncodeTo(&buf, frames)
	return buf.Bytes()
}

// EncodeTo writes the wire representation of frames to w and returns
// bytes written.
func (c *Codec) EncodeTo(w io.Writer, frames []can.Frame) (int, error) {
	var total int
	var hdr [headerLen]byte
	for _, f := range frames {
		binary.BigEndian.PutUint32(hdr[0:4], f.ID&can.EFFMask)
		hdr[4] = f.DLC & 0x0F
		binary.BigEndian.PutUint64(hdr[5:13], f.Timestamp)
		n, err := w.Write(hdr[:])
		total += n
		if err != nil {
			return total, fmt.Errorf("wire encode header: %w", err)
		}
		if ln := f.Length(); ln > 0 {
			n, err = w.Write(f.Data[:ln])
			total += n
			if err != nil {
				return total, fmt.Errorf("wire encode payload: %w", err)
			}
		}
	}
	return total, nil
}

// Decode reads exactly one frame from r. It returns io.EOF if called at
// a clean frame boundary with no more data available.
func (c *Codec) Decode(r io.Reader) (can.Frame, error) {
	var f can.Frame
	var hdr [headerLen]byte
	if _, err := io.ReadFull(r, hdr[:1]); err != nil {
		return f, err
	}
	if _, err := io.ReadFull(r, hdr[1:]); err != nil {
		metrics.IncMalformed()
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return f, fmt.Errorf("wire decode header: %w", ErrTruncatedFrame)
		}
		return f, fmt.Errorf("wire decode header: %w", err)
	}
	f.ID = binary.BigEndian.Uint32(hdr[0:4]) & can.EFFMask
	if hdr[4]&0xF0 != 0 {
		metrics.IncMalformed()
		return f, fmt.Errorf("wire decode: %w (%#x)", ErrInvalidDLC, hdr[4])
	}
	f.DLC = hdr[4]
	f.Timestamp = binary.BigEndian.Uint64(hdr[5:13])
	if ln := f.Length(); ln > 0 {
		if _, err := io.ReadFull(r, f.Data[:ln]); err != nil {
			metrics.IncMalformed()
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return f, fmt.Errorf("wire decode payload: %w", ErrTruncatedFrame)
			}
			return f, fmt.Errorf("wire decode payload: %w", err)
		}
	}
	return f, nil
}

// DecodeN decodes up to max frames (all frames until EOF when max<=0)
// invoking onFrame for each. It returns the number of frames decoded and
// the terminal error, which can be io.EOF.
func (c *Codec) DecodeN(r io.Reader, max int, onFrame func(can.Frame)) (int, error) {
	var n int
	for max <= 0 || n < max {
		fr, err := c.Decode(r)
		if err != nil {
			return n, err
		}
		onFrame(fr)
		n++
	}
	return n, nil
}
