package cutdown

import (
	"fmt"
	"sync"

	gpio "github.com/temoto/gpio-cdev-go"

	"github.com/banshee-data/skylink/internal/monitoring"
)

// Actuator is the physical cutdown output.
type Actuator interface {
	Assert() error
	Release() error
	Close() error
}

// GPIOActuator drives one output line on a GPIO character device.
type GPIOActuator struct {
	mu    sync.Mutex
	chip  gpio.Chiper
	lines gpio.Lineser
	set   gpio.LineSetFunc
	line  uint32
}

// GPIOConfig selects the output line.
type GPIOConfig struct {
	Chip      string // e.g. /dev/gpiochip0
	Line      uint32
	ActiveLow bool
}

const gpioConsumer = "skylink-cutdown"

// OpenGPIOActuator opens the chip and requests the line as an output, driven
// to its released level.
func OpenGPIOActuator(cfg GPIOConfig) (*GPIOActuator, error) {
	chip, err := gpio.Open(cfg.Chip, gpioConsumer)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", cfg.Chip, err)
	}
	a, err := NewGPIOActuator(chip, cfg.Line, cfg.ActiveLow)
	if err != nil {
		chip.Close()
		return nil, err
	}
	return a, nil
}

// NewGPIOActuator requests line on an already open chip. The actuator takes
// ownership of chip.
func NewGPIOActuator(chip gpio.Chiper, line uint32, activeLow bool) (*GPIOActuator, error) {
	flag := gpio.GPIOHANDLE_REQUEST_OUTPUT
	if activeLow {
		flag |= gpio.GPIOHANDLE_REQUEST_ACTIVE_LOW
	}
	lines, err := chip.OpenLines(flag, gpioConsumer, line)
	if err != nil {
		return nil, fmt.Errorf("request gpio line %d: %w", line, err)
	}
	a := &GPIOActuator{chip: chip, lines: lines, set: lines.SetFunc(line), line: line}
	if err := a.write(0); err != nil {
		lines.Close()
		return nil, err
	}
	return a, nil
}

func (a *GPIOActuator) write(v byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.set(v)
	if err := a.lines.Flush(); err != nil {
		return fmt.Errorf("gpio line %d set %d: %w", a.line, v, err)
	}
	return nil
}

// Assert drives the line active.
func (a *GPIOActuator) Assert() error { return a.write(1) }

// Release drives the line inactive.
func (a *GPIOActuator) Release() error { return a.write(0) }

// Close releases the line and the chip.
func (a *GPIOActuator) Close() error {
	lerr := a.lines.Close()
	cerr := a.chip.Close()
	if lerr != nil {
		return lerr
	}
	return cerr
}

// LogActuator only logs. It is used in dev mode and on hosts without GPIO.
type LogActuator struct {
	mu       sync.Mutex
	asserted bool
	pulses   int
}

func (a *LogActuator) Assert() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.asserted = true
	a.pulses++
	monitoring.Logf("cutdown output asserted")
	return nil
}

func (a *LogActuator) Release() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.asserted = false
	monitoring.Logf("cutdown output released")
	return nil
}

func (a *LogActuator) Close() error { return nil }

// Asserted reports the current output level.
func (a *LogActuator) Asserted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.asserted
}

// Pulses is the number of times the output has been asserted.
func (a *LogActuator) Pulses() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pulses
}
