// Package units converts the SI values carried in telemetry records into
// display units for the ground station API.
package units

import "strings"

// Speed unit constants
const (
	MPS   = "mps"
	MPH   = "mph"
	KMPH  = "kmph"
	KPH   = "kph"
	Knots = "knots"
)

// Altitude unit constants
const (
	Metres = "m"
	Feet   = "ft"
)

// ValidUnits contains all valid speed unit values
var ValidUnits = []string{MPS, MPH, KMPH, KPH, Knots}

// ValidAltitudeUnits contains all valid altitude unit values
var ValidAltitudeUnits = []string{Metres, Feet}

// IsValid checks if the given unit is a valid speed unit
func IsValid(unit string) bool {
	return contains(ValidUnits, unit)
}

// IsValidAltitude checks if the given unit is a valid altitude unit
func IsValidAltitude(unit string) bool {
	return contains(ValidAltitudeUnits, unit)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid speed units for error messages
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// GetValidAltitudeUnitsString returns a comma-separated string of valid altitude units
func GetValidAltitudeUnitsString() string {
	return strings.Join(ValidAltitudeUnits, ", ")
}

// ConvertSpeed converts a speed from meters per second to the target units.
// Records carry GPS ground speed in m/s.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedMPS * 2.23694
	case KMPH, KPH:
		return speedMPS * 3.6
	case Knots:
		return speedMPS * 1.943844
	default:
		return speedMPS
	}
}

// ConvertAltitude converts an altitude in metres to the target units.
func ConvertAltitude(metres float64, targetUnits string) float64 {
	if targetUnits == Feet {
		return metres / 0.3048
	}
	return metres
}
