// Package flexcan drives the chip's CAN FD controllers as a frame-level
// transport. It owns hardware bring-up (clock tree, bit timing), the
// message-buffer transmit and receive protocol, the interrupt-driven
// reception pipeline feeding bounded per-controller queues, acceptance
// filter reconfiguration, and the bounded busy-wait primitive behind
// every timeout.
//
// The driver never interprets frame payloads, never persists state across
// power cycles, and offers no fairness beyond the peripheral's own
// arbitration. The upper protocol stack consumes it only through the
// media.Interface and media.Lifecycle contracts.
package flexcan
