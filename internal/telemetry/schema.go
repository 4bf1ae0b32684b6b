// Package telemetry defines the record schema carried over the balloon link and
// the vector packets that records are packed into.
package telemetry

// ValuesPerPacket is the number of scalar slots in one vector packet.
const ValuesPerPacket = 3

// Field names of the default schema. The order of DefaultSchema is the wire
// packing order and must match the firmware on the other end of the link.
const (
	FieldTimestamp               = "Timestamp"
	FieldAccelerometerX          = "Accelerometer_X"
	FieldAccelerometerY          = "Accelerometer_Y"
	FieldAccelerometerZ          = "Accelerometer_Z"
	FieldGyroscopeX              = "Gyroscope_X"
	FieldGyroscopeY              = "Gyroscope_Y"
	FieldGyroscopeZ              = "Gyroscope_Z"
	FieldHumidity                = "Humidity"
	FieldPressure                = "Pressure"
	FieldTemperatureHumidity     = "Temperature_Humidity"
	FieldTemperaturePressure     = "Temperature_Pressure"
	FieldTemperatureThermocouple = "Temperature_Thermocouple"
	FieldLatitude                = "Latitude"
	FieldLongitude               = "Longitude"
	FieldAltitude                = "Altitude"
	FieldSpeed                   = "Speed"
	FieldHeading                 = "Heading"
)

// Field describes one scalar in a record.
type Field struct {
	Name string
	Unit string
}

// Label is the CSV header form of the field, e.g. "Pressure (mbar)".
func (f Field) Label() string {
	if f.Unit == "" {
		return f.Name
	}
	return f.Name + " (" + f.Unit + ")"
}

// Schema is an ordered list of fields. Field order is load-bearing: it decides
// which scalars land in which packet.
type Schema struct {
	Fields []Field
	index  map[string]int
}

// NewSchema builds a schema from an ordered field list.
func NewSchema(fields ...Field) *Schema {
	s := &Schema{
		Fields: fields,
		index:  make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		s.index[f.Name] = i
	}
	return s
}

// DefaultSchema is the current wire schema: 17 fields packed into 6 packets,
// the last carrying Speed and Heading plus one zero pad slot.
var DefaultSchema = NewSchema(
	Field{FieldTimestamp, "ms"},
	Field{FieldAccelerometerX, "m/s^2"},
	Field{FieldAccelerometerY, "m/s^2"},
	Field{FieldAccelerometerZ, "m/s^2"},
	Field{FieldGyroscopeX, "rad/s"},
	Field{FieldGyroscopeY, "rad/s"},
	Field{FieldGyroscopeZ, "rad/s"},
	Field{FieldHumidity, "%"},
	Field{FieldPressure, "mbar"},
	Field{FieldTemperatureHumidity, "C"},
	Field{FieldTemperaturePressure, "C"},
	Field{FieldTemperatureThermocouple, "C"},
	Field{FieldLatitude, "deg"},
	Field{FieldLongitude, "deg"},
	Field{FieldAltitude, "m"},
	Field{FieldSpeed, "m/s"},
	Field{FieldHeading, "deg"},
)

// Len returns the number of fields.
func (s *Schema) Len() int { return len(s.Fields) }

// PacketCount is the number of vector packets one record occupies.
func (s *Schema) PacketCount() int {
	return (len(s.Fields) + ValuesPerPacket - 1) / ValuesPerPacket
}

// Index returns the position of the named field.
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Names returns the field names in packing order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}
