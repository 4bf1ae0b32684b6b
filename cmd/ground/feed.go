package main

import (
	"context"

	"github.com/banshee-data/skylink/internal/frame"
	"github.com/banshee-data/skylink/internal/radio"
	"github.com/banshee-data/skylink/internal/sensors"
	"github.com/banshee-data/skylink/internal/telemetry"
	"github.com/banshee-data/skylink/internal/timeutil"
)

// simulatedPayload produces the byte stream a payload node would put on the
// radio: one heartbeat per call, and a full record every recordEvery calls.
// It backs the mock serial port in dev mode.
type simulatedPayload struct {
	codec       radio.Codec
	source      sensors.Source
	clock       timeutil.Clock
	recordEvery int
	calls       int
}

func newSimulatedPayload(clock timeutil.Clock, seed uint64, recordEvery int) *simulatedPayload {
	if recordEvery <= 0 {
		recordEvery = 1
	}
	return &simulatedPayload{
		codec:       radio.Codec{SystemID: 1, ComponentID: 1},
		source:      sensors.NewSimulated(clock, sensors.DefaultLaunch, seed),
		clock:       clock,
		recordEvery: recordEvery,
	}
}

// Next returns the frames for one tick.
func (p *simulatedPayload) Next() []byte {
	out, err := p.codec.EncodeHeartbeat(radio.NodeHeartbeat())
	if err != nil {
		return nil
	}
	p.calls++
	if p.calls%p.recordEvery != 0 {
		return out
	}

	ts := telemetry.MillisTimestamp(p.clock.Now())
	readings := p.source.Sample(context.Background())
	readings[telemetry.FieldTimestamp] = telemetry.Some(float32(ts))
	rec := telemetry.DefaultSchema.Record(readings)
	for pkt := range frame.Packets(rec, ts) {
		b, err := p.codec.EncodeVector(pkt.Tag.Name(), pkt.Timestamp, pkt.Values[0], pkt.Values[1], pkt.Values[2])
		if err != nil {
			continue
		}
		out = append(out, b...)
	}
	return out
}
