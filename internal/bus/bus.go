// Package bus abstracts the thermal sensor's configuration/power channel
// and its SPI data channel (spec.md §4.2). ControlBus is implemented by a
// real SPI/I²C adapter (hardware.go) and by a byte-stream test adapter
// (file.go) that scenario tests in thermal/ drive against recorded or
// synthetic packet sequences.
package bus

import (
	"errors"
	"time"
)

// PacketSize is the size in bytes of one SPI transaction: a 4-byte header
// followed by 80 big-endian 16-bit centi-Kelvin pixel values.
const PacketSize = 164

// ErrEndOfStream is returned by ReadPacket when the underlying channel is
// exhausted — the signal a file-backed test adapter uses to end a worker's
// loop cleanly (spec.md §7, KindEndOfStream).
var ErrEndOfStream = errors.New("bus: end of stream")

// ControlBus is the capability set spec.md §4.2 requires: power on/off
// with bounded polling, and single-packet SPI reads.
type ControlBus interface {
	// PowerOn runs the vendor power-up sequence, waits until status reports
	// ready, runs flat-field normalization, and enables video output.
	PowerOn() error
	// PowerOff runs the power-down sequence and waits until status returns
	// to ready-idle.
	PowerOff() error
	// ReadPacket performs exactly one PacketSize-byte SPI transfer into buf.
	// Returns ErrEndOfStream if the channel is exhausted, or a wrapped I/O
	// error on a hard fault.
	ReadPacket(buf []byte) error
}

// PollPeriod is the fixed interval between control-bus status polls
// (spec.md §5: "between control-bus polls (250 ms)").
const PollPeriod = 250 * time.Millisecond

// PowerOnSettle is the fixed settle time after issuing power-on before the
// first status poll (spec.md §5: "power-on settle (1 s)").
const PowerOnSettle = 1 * time.Second
