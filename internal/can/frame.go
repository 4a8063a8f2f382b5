package can

// Extended identifier bounds. All traffic handled by this driver uses the
// 29-bit extended format; standard-frame support is intentionally absent.
const (
	EFFMask = 0x1FFFFFFF // 29-bit extended identifier mask
	MaxData = 64         // CAN FD payload ceiling in bytes
)

// Frame is one CAN FD frame as seen by the media layer. ID carries the
// 29-bit extended identifier in its low bits; DLC is the 4-bit length code
// (see LengthFromDLC); Timestamp is monotonic microseconds sampled by the
// receive path at interrupt entry (zero for frames built by a sender).
//
// Only the first Length() bytes of Data are meaningful.
type Frame struct {
	ID        uint32
	DLC       uint8
	Data      [MaxData]byte
	Timestamp uint64
}

// Length returns the payload byte count encoded by the frame's DLC.
func (f Frame) Length() int { return LengthFromDLC(f.DLC) }

// CopyShallow returns a value copy. Handy for tests that collect frames
// from callbacks without aliasing the callee's buffer.
func (f Frame) CopyShallow() Frame {
	var g Frame
	g.ID, g.DLC, g.Timestamp = f.ID, f.DLC, f.Timestamp
	copy(g.Data[:], f.Data[:])
	return g
}
