// Package frame packs telemetry records into vector packets and reassembles
// them on the far side of the link.
package frame

import (
	"fmt"
	"iter"

	"github.com/banshee-data/skylink/internal/telemetry"
)

// VectorSender is the send half of the transport adapter.
type VectorSender interface {
	SendVector(name string, timestamp uint32, x, y, z float32) error
}

// Packets returns the packing sequence for a record. Packet i carries fields
// [3i, 3i+3); the final packet is zero padded. All packets share ts.
func Packets(rec telemetry.Record, ts uint32) iter.Seq[telemetry.VectorPacket] {
	return func(yield func(telemetry.VectorPacket) bool) {
		for i := 0; i*telemetry.ValuesPerPacket < len(rec.Values); i++ {
			p := telemetry.VectorPacket{Tag: telemetry.FrameTag(i), Timestamp: ts}
			copy(p.Values[:], rec.Values[i*telemetry.ValuesPerPacket:])
			if !yield(p) {
				return
			}
		}
	}
}

// Encoder sends records through the transport one packet at a time.
type Encoder struct {
	tx VectorSender
}

// NewEncoder creates an encoder that writes to tx.
func NewEncoder(tx VectorSender) *Encoder {
	return &Encoder{tx: tx}
}

// Send emits every packet of rec immediately. The first transport error stops
// the record and is returned; nothing is retried or reordered.
func (e *Encoder) Send(rec telemetry.Record, ts uint32) error {
	for p := range Packets(rec, ts) {
		if err := e.tx.SendVector(p.Tag.Name(), p.Timestamp, p.Values[0], p.Values[1], p.Values[2]); err != nil {
			return fmt.Errorf("send %s: %w", p.Tag.Name(), err)
		}
	}
	return nil
}
