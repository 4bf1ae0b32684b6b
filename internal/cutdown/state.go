// Package cutdown owns the one-shot cutdown state machine on the payload: the
// command and mission-timer triggers, and the timed actuator pulse.
package cutdown

import (
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/skylink/internal/monitoring"
	"github.com/banshee-data/skylink/internal/timeutil"
)

// State of the cutdown sequence. It only moves forward and never re-arms.
type State int

const (
	Armed State = iota
	Triggered
	Active
	Expired
)

func (s State) String() string {
	switch s {
	case Armed:
		return "armed"
	case Triggered:
		return "triggered"
	case Active:
		return "active"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Source identifies what triggered the cutdown.
type Source int

const (
	SourceNone Source = iota
	SourceCommand
	SourceMission
)

func (s Source) String() string {
	switch s {
	case SourceCommand:
		return "command"
	case SourceMission:
		return "mission"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Source) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Snapshot is a consistent copy of the controller state.
type Snapshot struct {
	State       State     `json:"state"`
	Source      Source    `json:"source"`
	TriggeredAt time.Time `json:"triggered_at,omitempty"`
	ActivatedAt time.Time `json:"activated_at,omitempty"`
	ExpiredAt   time.Time `json:"expired_at,omitempty"`
}

// Transition describes one state change, passed to the OnTransition hook.
type Transition struct {
	From, To State
	Source   Source
	At       time.Time
}

// Controller guards the cutdown state. The command path and the mission
// watchdog both call Trigger; the sequencer drives the rest of the sequence.
type Controller struct {
	clock        timeutil.Clock
	onTransition func(Transition)

	mu   sync.Mutex
	snap Snapshot
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithControllerClock sets the clock used to stamp transitions.
func WithControllerClock(c timeutil.Clock) ControllerOption {
	return func(ctl *Controller) { ctl.clock = c }
}

// WithOnTransition registers a hook called after every state change, outside
// the lock.
func WithOnTransition(f func(Transition)) ControllerOption {
	return func(ctl *Controller) { ctl.onTransition = f }
}

// NewController returns an Armed controller.
func NewController(opts ...ControllerOption) *Controller {
	c := &Controller{clock: timeutil.RealClock{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Trigger moves Armed to Triggered. It reports whether this call caused the
// transition; every later call is a no-op.
func (c *Controller) Trigger(src Source) bool {
	c.mu.Lock()
	if c.snap.State != Armed {
		c.mu.Unlock()
		return false
	}
	now := c.clock.Now()
	c.snap.State = Triggered
	c.snap.Source = src
	c.snap.TriggeredAt = now
	c.mu.Unlock()

	monitoring.Logf("cutdown triggered by %s", src)
	c.notify(Transition{From: Armed, To: Triggered, Source: src, At: now})
	return true
}

// advance performs a sequencer transition if the state is still from.
func (c *Controller) advance(from, to State, at time.Time) bool {
	c.mu.Lock()
	if c.snap.State != from {
		c.mu.Unlock()
		return false
	}
	c.snap.State = to
	switch to {
	case Active:
		c.snap.ActivatedAt = at
	case Expired:
		c.snap.ExpiredAt = at
	}
	src := c.snap.Source
	c.mu.Unlock()

	monitoring.Logf("cutdown %s", to)
	c.notify(Transition{From: from, To: to, Source: src, At: at})
	return true
}

func (c *Controller) notify(t Transition) {
	if c.onTransition != nil {
		c.onTransition(t)
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.State
}

// Snapshot returns a copy of the current state and timestamps.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// DefaultMissionDuration is the fail-safe flight ceiling.
const DefaultMissionDuration = 2 * time.Hour

// Watchdog triggers the cutdown once the mission has run for Duration,
// whether or not a command ever arrived.
type Watchdog struct {
	Start    time.Time
	Duration time.Duration
}

// Due reports whether the mission ceiling has been reached at now.
func (w Watchdog) Due(now time.Time) bool {
	return now.Sub(w.Start) >= w.Duration
}

// Check triggers c if the ceiling has been reached. It reports whether this
// call caused the transition.
func (w Watchdog) Check(c *Controller, now time.Time) bool {
	if !w.Due(now) {
		return false
	}
	return c.Trigger(SourceMission)
}

// Remaining is the time left before the ceiling, never negative.
func (w Watchdog) Remaining(now time.Time) time.Duration {
	left := w.Duration - now.Sub(w.Start)
	if left < 0 {
		return 0
	}
	return left
}
