// Package media declares the frame-level contract between the controller
// driver and whatever protocol stack sits above it. The surface is kept
// deliberately small so the upper stack can be swapped without touching
// the driver.
package media

import (
	"time"

	"github.com/kstaniek/go-flexcan-media/internal/can"
)

// Interface is the per-group frame transport capability.
//
// Write loads at most one frame per call regardless of len(frames); the
// returned count is 0 when no transmit buffer was available (not an
// error). Read pops at most one frame; ok=false on an empty queue is a
// normal state, not a failure. Select returns nil as soon as any
// controller has a ready buffer and the driver's timeout sentinel when
// the bound elapses first.
type Interface interface {
	InterfaceCount() int
	Write(iface int, frames []can.Frame) (int, error)
	Read(iface int) (can.Frame, bool, error)
	ReconfigureFilters(filters []can.Filter) error
	Select(timeout time.Duration, ignoreWriteAvailable bool) error
}

// Lifecycle manages bring-up and teardown of an interface group. A group
// is a board-level singleton: Start must not be called on a started group
// and Stop mirrors it.
type Lifecycle interface {
	Start(filters []can.Filter) error
	Stop() error
	MaxFrameFilters() int
}
