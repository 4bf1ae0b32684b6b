package frame

import (
	"fmt"
	"math/bits"

	"github.com/banshee-data/skylink/internal/telemetry"
)

// Completion decides when the reassembly buffer holds a complete record.
type Completion interface {
	// Begin is called before a packet is written. Returning true clears the
	// buffer so the packet starts a new cycle.
	Begin(index int) bool
	// Observe records a written packet and reports whether the record is now
	// complete.
	Observe(index int) bool
	// Pending is the progress made towards the current record.
	Pending() int
	// Reset starts a new cycle after a record has been emitted.
	Reset()
}

// LegacyCounter is the completion rule spoken by the deployed firmware. The
// counter is set from the ordinal of the latest packet, so the terminal packet
// completes a record whether or not the earlier ones arrived. Fields of a
// dropped packet keep whatever the buffer held before (zero after a completed
// record, stale values after an abandoned one). Duplicate and out of order
// packets are not detected. A sender that never emits the terminal ordinal
// never completes a record.
type LegacyCounter struct {
	total int
	seen  int
}

// NewLegacyCounter returns the legacy rule for records of total packets.
func NewLegacyCounter(total int) *LegacyCounter {
	return &LegacyCounter{total: total}
}

func (c *LegacyCounter) Begin(int) bool { return false }

func (c *LegacyCounter) Observe(index int) bool {
	c.seen = index + 1
	return c.seen == c.total
}

func (c *LegacyCounter) Pending() int { return c.seen }
func (c *LegacyCounter) Reset()       { c.seen = 0 }

// StrictBitmap completes a record only once every ordinal has been written in
// the current cycle. Ordinal 0 arriving after a partial cycle discards it.
type StrictBitmap struct {
	full uint64
	mask uint64
}

// NewStrictBitmap returns the strict rule for records of total packets.
func NewStrictBitmap(total int) *StrictBitmap {
	return &StrictBitmap{full: 1<<uint(total) - 1}
}

func (b *StrictBitmap) Begin(index int) bool {
	if index == 0 && b.mask != 0 {
		b.mask = 0
		return true
	}
	return false
}

func (b *StrictBitmap) Observe(index int) bool {
	b.mask |= 1 << uint(index)
	return b.mask == b.full
}

func (b *StrictBitmap) Pending() int { return bits.OnesCount64(b.mask) }
func (b *StrictBitmap) Reset()       { b.mask = 0 }

// maxPackets bounds the strict bitmap.
const maxPackets = 64

// Reassembler rebuilds records from frame packets. It keeps one buffer and is
// not safe for concurrent use; the receive loop owns it.
type Reassembler struct {
	schema     *telemetry.Schema
	completion Completion
	buf        []float32

	completed uint64
	ignored   uint64
}

// Option configures a Reassembler.
type Option func(*Reassembler)

// WithStrictCompletion selects the bitmap completion rule.
func WithStrictCompletion() Option {
	return func(r *Reassembler) {
		r.completion = NewStrictBitmap(r.schema.PacketCount())
	}
}

// WithCompletion installs a custom completion rule.
func WithCompletion(c Completion) Option {
	return func(r *Reassembler) { r.completion = c }
}

// NewReassembler creates a reassembler for schema s using the legacy rule
// unless an option selects another.
func NewReassembler(s *telemetry.Schema, opts ...Option) (*Reassembler, error) {
	n := s.PacketCount()
	if n == 0 {
		return nil, fmt.Errorf("schema has no fields")
	}
	if n > maxPackets {
		return nil, fmt.Errorf("schema needs %d packets, at most %d supported", n, maxPackets)
	}
	r := &Reassembler{
		schema:     s,
		completion: NewLegacyCounter(n),
		buf:        make([]float32, n*telemetry.ValuesPerPacket),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Push consumes one packet. When it completes a record the record is returned
// with ok set, and the buffer and counter are cleared. Packets that are not
// frame packets, or whose ordinal is outside the schema, are ignored.
func (r *Reassembler) Push(p telemetry.VectorPacket) (rec telemetry.Record, ok bool) {
	if p.Tag.Kind != telemetry.TagFrame {
		return telemetry.Record{}, false
	}
	i := p.Tag.Index
	if i < 0 || i >= r.schema.PacketCount() {
		r.ignored++
		return telemetry.Record{}, false
	}

	if r.completion.Begin(i) {
		clear(r.buf)
	}
	copy(r.buf[i*telemetry.ValuesPerPacket:], p.Values[:])

	if !r.completion.Observe(i) {
		return telemetry.Record{}, false
	}

	values := make([]float32, r.schema.Len())
	copy(values, r.buf)
	clear(r.buf)
	r.completion.Reset()
	r.completed++
	return telemetry.Record{Schema: r.schema, Values: values}, true
}

// Pending reports progress towards the in-flight record.
func (r *Reassembler) Pending() int { return r.completion.Pending() }

// Completed is the number of records emitted.
func (r *Reassembler) Completed() uint64 { return r.completed }

// Ignored is the number of frame packets dropped for an out of range ordinal.
func (r *Reassembler) Ignored() uint64 { return r.ignored }
