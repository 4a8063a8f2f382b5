//go:build linux

package mmio

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Mapping is a Bank overlaid on a physical register window, UIO-style.
type Mapping struct {
	Bank
	fd   int
	mem  []byte
	size int
}

// Map opens dev (normally /dev/mem or a UIO node) and maps size bytes at
// physical address base as a register bank. base and size must be page
// aligned; the kernel enforces access permissions.
func Map(dev string, base int64, size int) (*Mapping, error) {
	if size <= 0 || size%4 != 0 {
		return nil, fmt.Errorf("mmio: invalid window size %d", size)
	}
	fd, err := unix.Open(dev, unix.O_RDWR|unix.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("mmio: open %s: %w", dev, err)
	}
	mem, err := unix.Mmap(fd, base, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("mmio: mmap %s+%#x: %w", dev, base, err)
	}
	m := &Mapping{fd: fd, mem: mem, size: size}
	// Reg32 is exactly one uint32, so the overlay preserves layout.
	m.regs = unsafe.Slice((*Reg32)(unsafe.Pointer(&mem[0])), size/4)
	return m, nil
}

// Close unmaps the window and closes the device.
func (m *Mapping) Close() error {
	m.regs = nil
	err := unix.Munmap(m.mem)
	if cerr := unix.Close(m.fd); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("mmio: close: %w", err)
	}
	return nil
}
