package serialmux

import (
	"fmt"
	"slices"
	"strings"

	"go.bug.st/serial"
)

// RadioBaudRates are the serial rates the SiK firmware on the RFD900x radios
// accepts for its SERIAL_SPEED setting.
var RadioBaudRates = []int{1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200, 230400}

// PortOptions describes the host side of the radio's serial link. The JSON
// names match the link configuration file. MAVLink frames are binary, so the
// port always carries 8 data bits; only the rate, stop bits and parity vary
// between radio setups.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// Normalize validates the options against what the radio supports and fills
// unset values with the radio's 57600 8N1 default.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = DefaultBaudRate
	}
	if !slices.Contains(RadioBaudRates, opts.BaudRate) {
		return opts, fmt.Errorf("unsupported baud rate %d: radio accepts %v", opts.BaudRate, RadioBaudRates)
	}

	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits != 8 {
		return opts, fmt.Errorf("invalid data bits %d: binary frames need 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	switch p := strings.TrimSpace(strings.ToUpper(opts.Parity)); p {
	case "", "N", "NONE":
		opts.Parity = "N"
	case "E", "EVEN":
		opts.Parity = "E"
	case "O", "ODD":
		opts.Parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}
	return opts, nil
}

// Equal reports whether two PortOptions open the port the same way.
func (o PortOptions) Equal(other PortOptions) bool {
	a, errA := o.Normalize()
	b, errB := other.Normalize()
	return errA == nil && errB == nil && a == b
}

// String renders normalized options in the usual "57600 8N1" form.
func (o PortOptions) String() string {
	n, err := o.Normalize()
	if err != nil {
		return "invalid: " + err.Error()
	}
	return fmt.Sprintf("%d %d%s%d", n.BaudRate, n.DataBits, n.Parity, n.StopBits)
}

var serialParity = map[string]serial.Parity{
	"N": serial.NoParity,
	"E": serial.EvenParity,
	"O": serial.OddParity,
}

// SerialMode converts the options into the go.bug.st/serial mode used to open
// the port.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		StopBits: serial.OneStopBit,
		Parity:   serialParity[opts.Parity],
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}
	return mode, nil
}
