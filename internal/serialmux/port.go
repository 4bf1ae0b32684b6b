package serialmux

import (
	"io"
)

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// DefaultBaudRate is the serial rate of the telemetry radios.
const DefaultBaudRate = 57600
