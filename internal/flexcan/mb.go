package flexcan

import (
	"github.com/kstaniek/go-flexcan-media/internal/can"
	"github.com/kstaniek/go-flexcan-media/internal/mmio"
	"github.com/kstaniek/go-flexcan-media/internal/s32k"
)

// mbView is one hardware message buffer of a controller bank. The
// peripheral owns the slot's state machine; the driver only observes and
// mutates it through the documented control-word sequences.
type mbView struct {
	bank *mmio.Bank
	base int
}

func messageBuffer(bank *mmio.Bank, mb int) mbView {
	return mbView{bank: bank, base: s32k.MB(mb)}
}

func (m mbView) cs() *mmio.Reg32        { return m.bank.Reg(m.base) }
func (m mbView) id() *mmio.Reg32        { return m.bank.Reg(m.base + 1) }
func (m mbView) word(i int) *mmio.Reg32 { return m.bank.Reg(m.base + 2 + i) }

// code returns the CODE field of the control word.
func (m mbView) code() uint32 {
	return (m.cs().Get() & s32k.CSCodeMask) >> s32k.CSCodeShift
}

// loadTx packs a frame into the buffer and hands it to the peripheral:
// payload first, then the ID word, and the control word last since
// writing the transmit code is what triggers transmission.
func (m mbView) loadTx(fr can.Frame) {
	packPayload(m, fr.Data[:fr.Length()])
	m.id().Set(fr.ID & s32k.IDExtMask)
	cs := s32k.CSEDL | s32k.CSBRS | s32k.CSSRR | s32k.CSIDE |
		uint32(fr.DLC)<<s32k.CSDLCShift |
		uint32(s32k.CodeTxData)<<s32k.CSCodeShift
	m.cs().Set(cs)
}

// readRx decodes a completed receive buffer into a frame. The caller
// performs the unlock read and flag clear afterwards.
func (m mbView) readRx(timestamp uint64) can.Frame {
	cs := m.cs().Get()
	var fr can.Frame
	fr.DLC = uint8((cs & s32k.CSDLCMask) >> s32k.CSDLCShift)
	fr.ID = m.id().Get() & s32k.IDExtMask
	fr.Timestamp = timestamp
	unpackPayload(m, fr.Data[:fr.Length()])
	return fr
}

// arm configures the buffer as an armed-empty receive slot accepting the
// given filter.
func (m mbView) arm(f can.Filter) {
	m.bank.Reg(s32k.RXIMR(mbIndex(m.base))).Set(f.Mask & s32k.IDExtMask)
	m.id().Set(f.ID & s32k.IDExtMask)
	m.cs().Set(s32k.CSIDE | uint32(s32k.CodeRxEmpty)<<s32k.CSCodeShift)
}

func mbIndex(base int) int { return (base - s32k.MBBase) / s32k.MBWords }

// packPayload assembles payload bytes into big-endian 32-bit words. A
// tail of 1..3 bytes lands in the high-order bytes of the final word.
func packPayload(m mbView, data []byte) {
	n := len(data)
	w := 0
	for ; w < n/4; w++ {
		m.word(w).Set(uint32(data[4*w])<<24 | uint32(data[4*w+1])<<16 |
			uint32(data[4*w+2])<<8 | uint32(data[4*w+3]))
	}
	if rem := n % 4; rem != 0 {
		var v uint32
		for i := 0; i < rem; i++ {
			v |= uint32(data[4*w+i]) << (24 - 8*i)
		}
		m.word(w).Set(v)
	}
}

// unpackPayload mirrors packPayload word order exactly.
func unpackPayload(m mbView, data []byte) {
	n := len(data)
	w := 0
	for ; w < n/4; w++ {
		v := m.word(w).Get()
		data[4*w] = byte(v >> 24)
		data[4*w+1] = byte(v >> 16)
		data[4*w+2] = byte(v >> 8)
		data[4*w+3] = byte(v)
	}
	if rem := n % 4; rem != 0 {
		v := m.word(w).Get()
		for i := 0; i < rem; i++ {
			data[4*w+i] = byte(v >> (24 - 8*i))
		}
	}
}
