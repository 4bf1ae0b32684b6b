// Package ground runs the ground station receive loop: it feeds heartbeats to
// the link monitor, rebuilds records from frame packets, hands them to the
// sinks and keeps a snapshot of the latest state for the HTTP API.
package ground

import (
	"context"
	"fmt"
	"maps"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/skylink/internal/db"
	"github.com/banshee-data/skylink/internal/frame"
	"github.com/banshee-data/skylink/internal/link"
	"github.com/banshee-data/skylink/internal/monitoring"
	"github.com/banshee-data/skylink/internal/radio"
	"github.com/banshee-data/skylink/internal/telemetry"
	"github.com/banshee-data/skylink/internal/timeutil"
)

// DefaultPollInterval is the receive loop sleep between polls.
const DefaultPollInterval = 10 * time.Millisecond

// Transport is the part of the radio the ground station uses.
type Transport interface {
	Receive() (radio.Message, bool)
	SendVector(name string, ts uint32, x, y, z float32) error
	Stats() radio.Stats
}

// EventStore persists link status changes and cutdown requests.
type EventStore interface {
	RecordLinkEvent(from, to string) error
	RecordCutdownEvent(ev db.CutdownEvent) (string, error)
}

// Config holds the station's tuning. Zero values select defaults.
type Config struct {
	Schema           *telemetry.Schema
	PollInterval     time.Duration
	HeartbeatTimeout time.Duration
	WarningInterval  time.Duration
	Strict           bool
	Clock            timeutil.Clock
}

// Snapshot is a consistent view of the latest record and link health.
type Snapshot struct {
	Values         map[string]float32 `json:"values"`
	Status         link.Status        `json:"heartbeat_status"`
	SinceHeartbeat time.Duration      `json:"since_heartbeat"`
	Heartbeats     uint64             `json:"heartbeats"`
	Records        uint64             `json:"records"`
	LastRecordAt   time.Time          `json:"last_record_at"`
	Pending        int                `json:"pending_packets"`
	CutdownsSent   uint64             `json:"cutdowns_sent"`
	Radio          radio.Stats        `json:"radio"`
}

// Station owns the receive loop. Run must be called from one goroutine;
// Snapshot and RequestCutdown are safe to call concurrently with it.
type Station struct {
	transport Transport
	sink      frame.Sink
	events    EventStore
	schema    *telemetry.Schema
	monitor   *link.Monitor
	reasm     *frame.Reassembler
	clock     timeutil.Clock
	poll      time.Duration

	latest   atomic.Pointer[Snapshot]
	cutdowns atomic.Uint64
	pending  atomic.Int64
}

// New creates a station reading from transport and writing completed records
// to sink. events may be nil.
func New(transport Transport, sink frame.Sink, events EventStore, cfg Config) (*Station, error) {
	if cfg.Schema == nil {
		cfg.Schema = telemetry.DefaultSchema
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}

	var opts []frame.Option
	if cfg.Strict {
		opts = append(opts, frame.WithStrictCompletion())
	}
	reasm, err := frame.NewReassembler(cfg.Schema, opts...)
	if err != nil {
		return nil, fmt.Errorf("ground reassembler: %w", err)
	}

	s := &Station{
		transport: transport,
		sink:      sink,
		events:    events,
		schema:    cfg.Schema,
		reasm:     reasm,
		clock:     cfg.Clock,
		poll:      cfg.PollInterval,
	}

	monOpts := []link.MonitorOption{
		link.WithClock(cfg.Clock),
		link.WithOnChange(s.linkChanged),
	}
	if cfg.HeartbeatTimeout > 0 {
		monOpts = append(monOpts, link.WithTimeout(cfg.HeartbeatTimeout))
	}
	if cfg.WarningInterval > 0 {
		monOpts = append(monOpts, link.WithWarningInterval(cfg.WarningInterval))
	}
	s.monitor = link.NewMonitor(monOpts...)

	values := make(map[string]float32, cfg.Schema.Len())
	for _, name := range cfg.Schema.Names() {
		values[name] = 0
	}
	s.latest.Store(&Snapshot{Values: values})
	return s, nil
}

// Monitor returns the station's link monitor.
func (s *Station) Monitor() *link.Monitor { return s.monitor }

// Run polls the transport until ctx is done.
func (s *Station) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			s.Poll()
		}
	}
}

// Poll drains every message waiting on the transport, then ticks the link
// monitor. A panic while handling a message is logged and the poll ends.
func (s *Station) Poll() {
	defer func() {
		if r := recover(); r != nil {
			monitoring.Logf("ground: recovered from panic in receive loop: %v", r)
		}
	}()

	for {
		msg, ok := s.transport.Receive()
		if !ok {
			break
		}
		s.handle(msg)
	}
	s.monitor.Tick()
}

func (s *Station) handle(msg radio.Message) {
	switch msg.Kind {
	case radio.KindHeartbeat:
		s.monitor.Heartbeat()
	case radio.KindVector:
		switch msg.Vector.Tag.Kind {
		case telemetry.TagFrame:
			rec, ok := s.reasm.Push(msg.Vector)
			s.pending.Store(int64(s.reasm.Pending()))
			if ok {
				s.complete(rec)
			}
		case telemetry.TagCutdown:
			monitoring.Logf("ground: ignoring cutdown packet from system %d", msg.SystemID)
		default:
			monitoring.Logf("ground: ignoring vector %s", msg.Vector.Tag)
		}
	}
}

func (s *Station) complete(rec telemetry.Record) {
	if s.sink != nil {
		if err := s.sink.RecordTelemetry(rec); err != nil {
			monitoring.Logf("ground: failed to store record: %v", err)
		}
	}

	prev := s.latest.Load()
	s.latest.Store(&Snapshot{
		Values:       rec.Map(),
		Records:      prev.Records + 1,
		LastRecordAt: s.clock.Now(),
	})
}

func (s *Station) linkChanged(from, to link.Status) {
	monitoring.Logf("ground: link %s -> %s", from, to)
	if to == link.StatusTimeout {
		if n := s.reasm.Pending(); n > 0 {
			monitoring.Logf("ground: partial record pending (%d packets) while link is down", n)
		}
	}
	if s.events != nil {
		if err := s.events.RecordLinkEvent(from.String(), to.String()); err != nil {
			monitoring.Logf("ground: failed to record link event: %v", err)
		}
	}
}

// Snapshot returns a copy of the latest record and the current link state.
func (s *Station) Snapshot() Snapshot {
	snap := *s.latest.Load()
	snap.Values = maps.Clone(snap.Values)
	snap.Status = s.monitor.Status()
	snap.SinceHeartbeat = s.monitor.SinceHeartbeat()
	snap.Heartbeats = s.monitor.Heartbeats()
	snap.Pending = int(s.pending.Load())
	snap.CutdownsSent = s.cutdowns.Load()
	snap.Radio = s.transport.Stats()
	return snap
}

// RequestCutdown sends exactly one cutdown packet and records the request.
// Delivery is not confirmed. It returns the request ID.
func (s *Station) RequestCutdown() (string, error) {
	now := s.clock.Now()
	pkt := telemetry.CutdownPacket(telemetry.MillisTimestamp(now))
	if err := s.transport.SendVector(pkt.Tag.Name(), pkt.Timestamp, pkt.Values[0], pkt.Values[1], pkt.Values[2]); err != nil {
		return "", fmt.Errorf("send cutdown: %w", err)
	}
	s.cutdowns.Add(1)

	id := uuid.NewString()
	monitoring.Logf("ground: cutdown command sent (request %s)", id)
	if s.events != nil {
		ev := db.CutdownEvent{EventID: id, At: now, Kind: db.CutdownRequested, Source: "operator"}
		if _, err := s.events.RecordCutdownEvent(ev); err != nil {
			monitoring.Logf("ground: failed to record cutdown request: %v", err)
		}
	}
	return id, nil
}
