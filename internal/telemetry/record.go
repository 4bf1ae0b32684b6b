package telemetry

import (
	"fmt"
	"time"
)

// Reading is one optional sensor value. Sensors report None when a value
// could not be read; it becomes zero only when a record is built for the wire.
type Reading struct {
	Value float32
	Valid bool
}

// Some wraps a present value.
func Some(v float32) Reading { return Reading{Value: v, Valid: true} }

// None is an absent value.
func None() Reading { return Reading{} }

// OrZero returns the value, or 0 when absent.
func (r Reading) OrZero() float32 {
	if !r.Valid {
		return 0
	}
	return r.Value
}

// Readings maps field names to sensor readings for one sampling instant.
type Readings map[string]Reading

// Record is one complete ordered set of field values.
type Record struct {
	Schema *Schema
	Values []float32
}

// NewRecord wraps values in schema order. It returns an error when the value
// count does not match the schema width.
func NewRecord(s *Schema, values []float32) (Record, error) {
	if len(values) != s.Len() {
		return Record{}, fmt.Errorf("record has %d values, schema has %d fields", len(values), s.Len())
	}
	return Record{Schema: s, Values: values}, nil
}

// Record builds an ordered record from readings. Fields with no reading, or
// with an absent reading, are encoded as zero.
func (s *Schema) Record(r Readings) Record {
	values := make([]float32, s.Len())
	for i, f := range s.Fields {
		values[i] = r[f.Name].OrZero()
	}
	return Record{Schema: s, Values: values}
}

// Get returns the named field value.
func (r Record) Get(name string) (float32, bool) {
	if r.Schema == nil {
		return 0, false
	}
	i, ok := r.Schema.Index(name)
	if !ok || i >= len(r.Values) {
		return 0, false
	}
	return r.Values[i], true
}

// Map returns the record keyed by field name.
func (r Record) Map() map[string]float32 {
	m := make(map[string]float32, len(r.Values))
	if r.Schema == nil {
		return m
	}
	for i, f := range r.Schema.Fields {
		if i < len(r.Values) {
			m[f.Name] = r.Values[i]
		}
	}
	return m
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	return Record{Schema: r.Schema, Values: append([]float32(nil), r.Values...)}
}

// MillisTimestamp is the 32-bit wrapping millisecond counter carried in every
// vector packet.
func MillisTimestamp(t time.Time) uint32 {
	return uint32(uint64(t.UnixMilli()) % (1 << 32))
}
