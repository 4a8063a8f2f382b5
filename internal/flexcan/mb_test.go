package flexcan

import (
	"bytes"
	"testing"

	"github.com/kstaniek/go-flexcan-media/internal/can"
	"github.com/kstaniek/go-flexcan-media/internal/mmio"
	"github.com/kstaniek/go-flexcan-media/internal/s32k"
)

// encodableLengths is every payload size the FD length code can express.
var encodableLengths = []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 12, 16, 20, 24, 32, 48, 64}

func patternFrame(id uint32, n int) can.Frame {
	var fr can.Frame
	fr.ID = id
	fr.DLC = can.DLCFromLength(n)
	for i := 0; i < n; i++ {
		fr.Data[i] = byte(0xA0 + i)
	}
	return fr
}

func TestMB_PayloadRoundTripAllLengths(t *testing.T) {
	bank := mmio.NewBank(s32k.ControllerWords)
	for _, n := range encodableLengths {
		in := patternFrame(0x1ABCDEF, n)
		v := messageBuffer(bank, 0)
		v.loadTx(in)

		out := v.readRx(42)
		if out.ID != in.ID {
			t.Fatalf("len %d: id %#x, want %#x", n, out.ID, in.ID)
		}
		if out.Length() != n {
			t.Fatalf("len %d: decoded length %d", n, out.Length())
		}
		if !bytes.Equal(out.Data[:n], in.Data[:n]) {
			t.Fatalf("len %d: payload mismatch\ngot  % X\nwant % X", n, out.Data[:n], in.Data[:n])
		}
		if out.Timestamp != 42 {
			t.Fatalf("len %d: timestamp %d", n, out.Timestamp)
		}
	}
}

func TestMB_LoadTxControlWord(t *testing.T) {
	bank := mmio.NewBank(s32k.ControllerWords)
	v := messageBuffer(bank, 1)
	v.loadTx(patternFrame(0x155, 12))

	cs := v.cs().Get()
	if cs&s32k.CSEDL == 0 || cs&s32k.CSBRS == 0 {
		t.Fatalf("EDL/BRS not set in cs %#x", cs)
	}
	if cs&s32k.CSIDE == 0 || cs&s32k.CSSRR == 0 {
		t.Fatalf("IDE/SRR not set in cs %#x", cs)
	}
	if code := (cs & s32k.CSCodeMask) >> s32k.CSCodeShift; code != s32k.CodeTxData {
		t.Fatalf("code %#x, want transmit-data", code)
	}
	if dlc := (cs & s32k.CSDLCMask) >> s32k.CSDLCShift; dlc != 9 {
		t.Fatalf("dlc %d, want 9 (12 bytes)", dlc)
	}
}

func TestMB_TailBytesLandInHighOrder(t *testing.T) {
	// A 5-byte payload occupies one full word plus a single tail byte in
	// the high-order position of the second word.
	bank := mmio.NewBank(s32k.ControllerWords)
	v := messageBuffer(bank, 0)
	fr := can.Frame{ID: 0x1, DLC: 5}
	copy(fr.Data[:], []byte{0x11, 0x22, 0x33, 0x44, 0x55})
	v.loadTx(fr)

	if w0 := v.word(0).Get(); w0 != 0x11223344 {
		t.Fatalf("word0 %#x, want 0x11223344", w0)
	}
	if w1 := v.word(1).Get(); w1 != 0x55000000 {
		t.Fatalf("word1 %#x, want 0x55000000", w1)
	}
}

func TestMB_ArmProgramsFilter(t *testing.T) {
	bank := mmio.NewBank(s32k.ControllerWords)
	f := can.Filter{ID: 0x1234, Mask: 0x1FFFFF00}
	messageBuffer(bank, 3).arm(f)

	if got := bank.Reg(s32k.RXIMR(3)).Get(); got != f.Mask {
		t.Fatalf("mask %#x, want %#x", got, f.Mask)
	}
	v := messageBuffer(bank, 3)
	if got := v.id().Get(); got != f.ID {
		t.Fatalf("id %#x, want %#x", got, f.ID)
	}
	if v.code() != s32k.CodeRxEmpty {
		t.Fatalf("code %#x, want armed-empty", v.code())
	}
}
