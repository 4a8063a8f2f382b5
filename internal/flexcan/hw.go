package flexcan

import "github.com/kstaniek/go-flexcan-media/internal/mmio"

// Hardware is the platform the driver runs against: register banks plus
// the interrupt controller routing one receive line per controller. It is
// implemented by the simulated board (internal/sim) and by the mapped
// real-hardware board (OpenMapped).
type Hardware interface {
	// Controller returns controller i's register bank
	// (s32k.ControllerWords words).
	Controller(i int) *mmio.Bank

	// System returns the shared SCG/PIT bank (s32k.SystemWords words).
	System() *mmio.Bank

	// EnableReceiveIRQ routes controller i's receive interrupt to fn.
	// fn runs on the interrupt context: it must not block and must not
	// invoke any bounded wait.
	EnableReceiveIRQ(i int, fn func())

	// DisableReceiveIRQ detaches controller i's receive interrupt. After
	// it returns no further fn invocations are in flight.
	DisableReceiveIRQ(i int)
}
