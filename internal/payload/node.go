// Package payload runs the balloon side of the link: a comms loop that
// answers cutdown commands, sends heartbeats and enforces the mission
// ceiling, and a sample loop that packs sensor records onto the radio.
package payload

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/skylink/internal/cutdown"
	"github.com/banshee-data/skylink/internal/db"
	"github.com/banshee-data/skylink/internal/frame"
	"github.com/banshee-data/skylink/internal/monitoring"
	"github.com/banshee-data/skylink/internal/radio"
	"github.com/banshee-data/skylink/internal/sensors"
	"github.com/banshee-data/skylink/internal/telemetry"
	"github.com/banshee-data/skylink/internal/timeutil"
)

// Default loop timings.
const (
	DefaultHeartbeatInterval = time.Second
	DefaultTransmitInterval  = 5 * time.Second
	DefaultCommsPollInterval = 100 * time.Millisecond
)

// Transport is the part of the radio the payload uses.
type Transport interface {
	frame.VectorSender
	Receive() (radio.Message, bool)
	SendHeartbeat() error
}

// EventStore persists cutdown transitions.
type EventStore interface {
	RecordCutdownEvent(ev db.CutdownEvent) (string, error)
}

// Config holds the node's tuning. Zero values select defaults.
type Config struct {
	Schema            *telemetry.Schema
	HeartbeatInterval time.Duration
	TransmitInterval  time.Duration
	CommsPollInterval time.Duration
	MissionDuration   time.Duration
	CutdownHold       time.Duration
	MissionID         string
	Clock             timeutil.Clock
}

// Node is the payload process state. The cutdown controller is the only
// state shared between its loops.
type Node struct {
	transport Transport
	source    sensors.Source
	store     frame.Sink
	events    EventStore
	schema    *telemetry.Schema
	encoder   *frame.Encoder
	ctl       *cutdown.Controller
	seq       *cutdown.Sequencer
	watchdog  cutdown.Watchdog
	clock     timeutil.Clock
	missionID string

	heartbeatEvery time.Duration
	transmitEvery  time.Duration
	commsEvery     time.Duration

	// owned by the comms loop
	lastHeartbeat time.Time
}

// New creates a node. store and events may be nil. The mission clock starts
// now.
func New(transport Transport, source sensors.Source, act cutdown.Actuator, store frame.Sink, events EventStore, cfg Config) *Node {
	if cfg.Schema == nil {
		cfg.Schema = telemetry.DefaultSchema
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.TransmitInterval <= 0 {
		cfg.TransmitInterval = DefaultTransmitInterval
	}
	if cfg.CommsPollInterval <= 0 {
		cfg.CommsPollInterval = DefaultCommsPollInterval
	}
	if cfg.MissionDuration <= 0 {
		cfg.MissionDuration = cutdown.DefaultMissionDuration
	}
	if cfg.MissionID == "" {
		cfg.MissionID = uuid.NewString()
	}

	n := &Node{
		transport:      transport,
		source:         source,
		store:          store,
		events:         events,
		schema:         cfg.Schema,
		encoder:        frame.NewEncoder(transport),
		clock:          cfg.Clock,
		missionID:      cfg.MissionID,
		heartbeatEvery: cfg.HeartbeatInterval,
		transmitEvery:  cfg.TransmitInterval,
		commsEvery:     cfg.CommsPollInterval,
		watchdog:       cutdown.Watchdog{Start: cfg.Clock.Now(), Duration: cfg.MissionDuration},
	}
	n.ctl = cutdown.NewController(
		cutdown.WithControllerClock(cfg.Clock),
		cutdown.WithOnTransition(n.transitioned),
	)
	n.seq = cutdown.NewSequencer(n.ctl, act, cfg.CutdownHold, cfg.Clock)
	monitoring.Logf("payload: mission %s started, cutdown ceiling %s", n.missionID, cfg.MissionDuration)
	return n
}

// MissionID identifies this run in the local event log.
func (n *Node) MissionID() string { return n.missionID }

// Cutdown returns the node's cutdown controller.
func (n *Node) Cutdown() *cutdown.Controller { return n.ctl }

// Watchdog returns the mission ceiling.
func (n *Node) Watchdog() cutdown.Watchdog { return n.watchdog }

// Run starts the comms and sample loops and blocks until ctx is done and both
// have returned.
func (n *Node) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		n.loop(ctx, n.commsEvery, n.PollComms)
	}()
	go func() {
		defer wg.Done()
		n.loop(ctx, n.transmitEvery, func() { n.SampleOnce(ctx) })
	}()
	wg.Wait()
	return ctx.Err()
}

func (n *Node) loop(ctx context.Context, every time.Duration, step func()) {
	ticker := n.clock.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			n.guard(step)
		}
	}
}

func (n *Node) guard(step func()) {
	defer func() {
		if r := recover(); r != nil {
			monitoring.Logf("payload: recovered from panic: %v", r)
		}
	}()
	step()
}

// PollComms handles every waiting message, checks the mission ceiling, sends a
// heartbeat when one is due and advances the actuator sequence.
func (n *Node) PollComms() {
	for {
		msg, ok := n.transport.Receive()
		if !ok {
			break
		}
		if msg.Kind == radio.KindVector && msg.Vector.Tag.Kind == telemetry.TagCutdown {
			if !n.ctl.Trigger(cutdown.SourceCommand) {
				monitoring.Logf("payload: cutdown command ignored, state is %s", n.ctl.State())
			}
		}
	}

	now := n.clock.Now()
	n.checkCeiling(now)
	n.seq.Tick()

	if n.lastHeartbeat.IsZero() || now.Sub(n.lastHeartbeat) >= n.heartbeatEvery {
		if err := n.transport.SendHeartbeat(); err != nil {
			monitoring.Logf("payload: %v", err)
		}
		n.lastHeartbeat = now
	}
}

// checkCeiling fires the cutdown once the mission has run its full duration.
// It runs before anything that touches the sensors or the radio.
func (n *Node) checkCeiling(now time.Time) {
	if n.watchdog.Check(n.ctl, now) {
		monitoring.Logf("payload: mission ceiling of %s reached", n.watchdog.Duration)
	}
}

// SampleOnce checks the mission ceiling, then reads the sensors and stores and
// transmits one record.
func (n *Node) SampleOnce(ctx context.Context) {
	now := n.clock.Now()
	n.checkCeiling(now)
	n.seq.Tick()

	ts := telemetry.MillisTimestamp(now)

	readings := n.source.Sample(ctx)
	if readings == nil {
		readings = telemetry.Readings{}
	}
	readings[telemetry.FieldTimestamp] = telemetry.Some(float32(ts))
	rec := n.schema.Record(readings)

	if n.store != nil {
		if err := n.store.RecordTelemetry(rec); err != nil {
			monitoring.Logf("payload: failed to store record: %v", err)
		}
	}
	if err := n.encoder.Send(rec, ts); err != nil {
		monitoring.Logf("payload: transmit failed: %v", err)
	}
}

func (n *Node) transitioned(t cutdown.Transition) {
	if n.events == nil {
		return
	}
	ev := db.CutdownEvent{
		MissionID: n.missionID,
		At:        t.At,
		Kind:      db.CutdownTransition,
		State:     t.To.String(),
		Source:    t.Source.String(),
		Detail:    t.From.String() + " -> " + t.To.String(),
	}
	if _, err := n.events.RecordCutdownEvent(ev); err != nil {
		monitoring.Logf("payload: failed to record cutdown event: %v", err)
	}
}
