// Package slcan implements the serial-line CAN textual protocol with the
// FD extensions, used to mirror bus traffic to slcan-speaking tools over
// a UART.
package slcan

import (
	"bytes"

	"github.com/kstaniek/go-flexcan-media/internal/can"
	"github.com/kstaniek/go-flexcan-media/internal/metrics"
)

type Codec struct{}

const hexDigits = "0123456789ABCDEF"

// CompactBuffer reclaims consumed prefix capacity when the underlying
// buffer grows too large relative to unread bytes. It returns true if
// compaction occurred. Thresholds chosen to avoid excessive copying.
func CompactBuffer(b *bytes.Buffer) bool {
	data := b.Bytes()
	if len(data) < 1024 {
		return false
	}
	if cap(data) > 0 && len(data)*4 < cap(data) {
		clone := make([]byte, len(data))
		copy(clone, data)
		b.Reset()
		_, _ = b.Write(clone)
		return true
	}
	return false
}

// Encode renders one frame as an slcan line:
// 'B' (extended FD, bit-rate switched), 8 hex ID digits, 1 hex length
// code, the payload in hex, '\r'.
func (Codec) Encode(f can.Frame) []byte {
	n := f.Length()
	line := make([]byte, 0, 1+8+1+2*n+1)
	line = append(line, 'B')
	id := f.ID & can.EFFMask
	for shift := 28; shift >= 0; shift -= 4 {
		line = append(line, hexDigits[(id>>uint(shift))&0xF])
	}
	line = append(line, hexDigits[f.DLC&0x0F])
	for _, b := range f.Data[:n] {
		line = append(line, hexDigits[b>>4], hexDigits[b&0xF])
	}
	return append(line, '\r')
}

// DecodeStream consumes complete '\r'-terminated lines from in and emits
// decoded frames via out. Classic extended ('T') and FD extended
// ('D', 'B') lines are accepted; other line types, such as status
// replies, are skipped silently. Partial trailing input stays buffered.
func (Codec) DecodeStream(in *bytes.Buffer, out func(can.Frame)) error {
	for {
		_ = CompactBuffer(in)
		data := in.Bytes()
		end := bytes.IndexByte(data, '\r')
		if end < 0 {
			return nil
		}
		line := data[:end]
		if fr, ok := decodeLine(line); ok {
			out(fr)
		}
		in.Next(end + 1)
	}
}

func decodeLine(line []byte) (can.Frame, bool) {
	if len(line) == 0 {
		return can.Frame{}, false
	}
	fd := false
	switch line[0] {
	case 'T':
	case 'D', 'B':
		fd = true
	default:
		// Not a data line; no frame, not an error.
		return can.Frame{}, false
	}
	if len(line) < 1+8+1 {
		metrics.IncMalformed()
		return can.Frame{}, false
	}
	id, ok := parseHex(line[1:9])
	if !ok {
		metrics.IncMalformed()
		return can.Frame{}, false
	}
	dlc, ok := hexVal(line[9])
	if !ok || (!fd && dlc > 8) {
		metrics.IncMalformed()
		return can.Frame{}, false
	}
	var fr can.Frame
	fr.ID = id & can.EFFMask
	fr.DLC = uint8(dlc)
	n := fr.Length()
	if len(line) != 1+8+1+2*n {
		metrics.IncMalformed()
		return can.Frame{}, false
	}
	for i := 0; i < n; i++ {
		hi, ok1 := hexVal(line[10+2*i])
		lo, ok2 := hexVal(line[11+2*i])
		if !ok1 || !ok2 {
			metrics.IncMalformed()
			return can.Frame{}, false
		}
		fr.Data[i] = byte(hi<<4 | lo)
	}
	return fr, true
}

func parseHex(b []byte) (uint32, bool) {
	var v uint32
	for _, c := range b {
		d, ok := hexVal(c)
		if !ok {
			return 0, false
		}
		v = v<<4 | d
	}
	return v, true
}

func hexVal(c byte) (uint32, bool) {
	switch {
	case c >= '0' && c <= '9':
		return uint32(c - '0'), true
	case c >= 'A' && c <= 'F':
		return uint32(c-'A') + 10, true
	case c >= 'a' && c <= 'f':
		return uint32(c-'a') + 10, true
	}
	return 0, false
}
