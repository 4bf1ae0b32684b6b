package frame

import (
	"errors"

	"github.com/banshee-data/skylink/internal/telemetry"
)

// Sink accepts completed records, one per call, in arrival order.
type Sink interface {
	RecordTelemetry(telemetry.Record) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(telemetry.Record) error

func (f SinkFunc) RecordTelemetry(r telemetry.Record) error { return f(r) }

// MultiSink hands each record to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) RecordTelemetry(r telemetry.Record) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.RecordTelemetry(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
