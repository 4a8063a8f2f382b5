//go:build !linux

package mmio

import "errors"

// Mapping is provided for non-linux builds so callers can compile; mapping
// physical register windows is only supported on linux.
type Mapping struct {
	Bank
}

// Map is unsupported on this platform.
func Map(dev string, base int64, size int) (*Mapping, error) {
	return nil, errors.New("mmio: register mapping unsupported on this platform")
}

// Close is a no-op on the stub.
func (m *Mapping) Close() error { return nil }
