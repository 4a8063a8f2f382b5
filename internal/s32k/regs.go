// Package s32k describes the register map of the supported chip family:
// up to three FlexCAN FD controllers, the SCG clock generator and the PIT
// periodic interrupt timers. Offsets are in 32-bit words within the bank
// handed to the driver; bit layouts follow the reference manual fields the
// driver actually touches.
package s32k

// MaxControllers is the largest controller count across chip variants.
// The actual count (1, 2 or 3) is fixed per board and validated once at
// driver construction.
const MaxControllers = 3

// FlexCAN controller bank, word offsets.
const (
	MCR      = 0 // module configuration
	CTRL1    = 1 // clock source select, misc control
	TIMER    = 2 // free-running timer; reading performs the global MB unlock
	RXMGMASK = 3 // legacy global mask, unused when IRMQ is set
	ESR1     = 4 // error and status
	IMASK1   = 5 // per-MB interrupt mask
	IFLAG1   = 6 // per-MB pending interrupt flags
	CTRL2    = 7
	CBT      = 8  // nominal-phase bit timing
	FDCTRL   = 9  // FD control (MB payload size, TDC)
	FDCBT    = 10 // data-phase bit timing

	// Message buffer RAM. Each FD buffer is a control/status word, an ID
	// word and sixteen payload words. This RAM survives soft reset and is
	// scrubbed during bring-up.
	MBBase  = 16
	MBWords = 18

	NumMB   = 7 // usable buffers per controller
	NumTxMB = 2 // MB0, MB1
	NumRxMB = 5 // MB2..MB6, one per acceptance filter

	// Individual acceptance masks, one word per MB, valid when IRMQ is set.
	RXIMRBase = MBBase + NumMB*MBWords

	// ControllerWords is the bank size the driver expects per controller.
	ControllerWords = RXIMRBase + NumMB
)

// MB returns the word offset of message buffer mb's control/status word.
func MB(mb int) int { return MBBase + mb*MBWords }

// RXIMR returns the word offset of message buffer mb's individual mask.
func RXIMR(mb int) int { return RXIMRBase + mb }

// MCR bits.
const (
	MCRMDIS    = 1 << 31 // module disable (low-power request)
	MCRFRZ     = 1 << 30 // freeze enable
	MCRHALT    = 1 << 28 // halt request; with FRZ, requests freeze mode
	MCRNOTRDY  = 1 << 27 // module not ready (read-only)
	MCRSOFTRST = 1 << 25
	MCRFRZACK  = 1 << 24 // freeze mode acknowledge (read-only)
	MCRLPMACK  = 1 << 20 // low-power mode acknowledge (read-only)
	MCRSRXDIS  = 1 << 17 // self-reception disable
	MCRIRMQ    = 1 << 16 // individual RX masking and queueing
	MCRFDEN    = 1 << 11 // CAN FD operation enable
)

// CTRL1 bits.
const (
	CTRL1CLKSRC = 1 << 13 // clock source: peripheral clock when set
)

// Message buffer control/status word fields.
const (
	CSEDL = 1 << 31 // extended data length (FD frame)
	CSBRS = 1 << 30 // bit rate switch
	CSESI = 1 << 29 // error state indicator

	CSCodeShift = 24
	CSCodeMask  = 0xF << CSCodeShift

	CSSRR = 1 << 22 // substitute remote request, set for extended frames
	CSIDE = 1 << 21 // extended identifier
	CSRTR = 1 << 20

	CSDLCShift = 16
	CSDLCMask  = 0xF << CSDLCShift
)

// Message buffer state codes (the CODE field of the control word). Odd
// codes have the BUSY bit set: the buffer is being written by the
// peripheral and must not be touched.
const (
	CodeRxInactive = 0x0
	CodeRxFull     = 0x2
	CodeRxEmpty    = 0x4 // armed, waiting for a matching frame
	CodeRxOverrun  = 0x6
	CodeBusyBit    = 0x1

	CodeTxInactive = 0x8
	CodeTxData     = 0xC // transmit data frame once, then revert to inactive
)

// Message buffer ID word.
const (
	IDExtMask = 0x1FFFFFFF // 29-bit extended identifier
)

// System bank: SCG clock generator and PIT timers, word offsets.
const (
	SOSCCSR = 0 // system oscillator control/status
	SPLLCSR = 1 // system PLL control/status
	RCCR    = 2 // run-mode clock control
	CCGR    = 3 // per-controller clock gates; bit i gates controller i

	PITMCR = 8 // PIT module control

	// Four PIT channels of four words each: LDVAL, CVAL, TCTRL, TFLG.
	// Channel 0 counts microseconds, channel 1 chains on its overflow to
	// form the 64-bit monotonic timestamp; channel 2 is the shared
	// deadline counter for bounded waits.
	PITChBase  = 12
	PITChWords = 4

	SystemWords = PITChBase + 4*PITChWords
)

// PIT channel register offsets relative to the channel base.
func PITLDVAL(ch int) int { return PITChBase + ch*PITChWords }
func PITCVAL(ch int) int  { return PITChBase + ch*PITChWords + 1 }
func PITTCTRL(ch int) int { return PITChBase + ch*PITChWords + 2 }
func PITTFLG(ch int) int  { return PITChBase + ch*PITChWords + 3 }

// Timestamp and deadline channel assignment.
const (
	PITChTimestampLow  = 0
	PITChTimestampHigh = 1
	PITChDeadline      = 2
)

// SCG bits.
const (
	SOSCCSREN    = 1 << 0
	SOSCCSRVALID = 1 << 24 // oscillator stable (read-only)

	SPLLCSREN   = 1 << 0
	SPLLCSRLOCK = 1 << 24 // PLL locked (read-only)

	RCCRSCSShift = 24
	RCCRSCSMask  = 0xF << RCCRSCSShift
	SCSSOSC      = 1 // run from the system oscillator
	SCSSPLL      = 6 // run from the PLL
)

// PIT bits.
const (
	PITMCRMDIS = 1 << 1 // module disable

	TCTRLTEN = 1 << 0 // timer enable
	TCTRLCHN = 1 << 2 // chain to previous channel
	TFLGTIF  = 1 << 0 // timeout flag
)

// Bit timing for an 80 MHz CAN peripheral clock.
//
// Nominal phase: 1 Mbit/s over 80 time quanta, sample point 83.75 %
// (1 sync + 46 prop + 20 seg1 = 67 of 80). Data phase: 4 Mbit/s over
// 20 time quanta, sample point 75 % (1 + 7 + 7 = 15 of 20). Register
// fields use the hardware's minus-one encoding where the manual does.
const (
	CBTNominal = 0<<21 | // EPRESDIV: divide by 1
		3<<16 | // ERJW: resync jump width 4 tq
		45<<10 | // EPROPSEG: 46 tq
		19<<5 | // EPSEG1: 20 tq
		12 // EPSEG2: 13 tq

	FDCBTData = 0<<20 | // FPRESDIV: divide by 1
		2<<16 | // FRJW: 3 tq
		7<<10 | // FPROPSEG: 7 tq
		6<<5 | // FPSEG1: 7 tq
		4 // FPSEG2: 5 tq

	FDCTRLInit = 3<<16 | // MBDSR0: 64-byte message buffers
		1<<15 // FDRATE: bit rate switch allowed
)
