package cutdown

import (
	"sync"
	"time"

	"github.com/banshee-data/skylink/internal/monitoring"
	"github.com/banshee-data/skylink/internal/timeutil"
)

// DefaultHold is how long the actuator stays asserted.
const DefaultHold = 60 * time.Second

// Sequencer turns a Triggered controller into one timed actuator pulse. Tick
// may be called from several loops.
type Sequencer struct {
	mu       sync.Mutex
	ctl      *Controller
	actuator Actuator
	hold     time.Duration
	clock    timeutil.Clock
}

// NewSequencer creates a sequencer driving act for ctl.
func NewSequencer(ctl *Controller, act Actuator, hold time.Duration, clock timeutil.Clock) *Sequencer {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if hold <= 0 {
		hold = DefaultHold
	}
	return &Sequencer{ctl: ctl, actuator: act, hold: hold, clock: clock}
}

// Tick advances the sequence. A Triggered controller is asserted and becomes
// Active. An Active controller whose hold has elapsed is released and becomes
// Expired. If assert fails the state stays Triggered and the next tick retries.
// A release failure is logged and the sequence still expires.
func (s *Sequencer) Tick() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	snap := s.ctl.Snapshot()

	switch snap.State {
	case Triggered:
		if err := s.actuator.Assert(); err != nil {
			monitoring.Logf("cutdown assert failed, retrying: %v", err)
			return Triggered
		}
		s.ctl.advance(Triggered, Active, now)
	case Active:
		if now.Sub(snap.ActivatedAt) >= s.hold {
			if err := s.actuator.Release(); err != nil {
				monitoring.Logf("cutdown release failed: %v", err)
			}
			s.ctl.advance(Active, Expired, now)
		}
	}
	return s.ctl.State()
}
