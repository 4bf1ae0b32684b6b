// Package link tracks liveness of the radio link from received heartbeats.
package link

import (
	"sync"
	"time"

	"github.com/banshee-data/skylink/internal/monitoring"
	"github.com/banshee-data/skylink/internal/timeutil"
)

// Status is the derived liveness of the link.
type Status int

const (
	StatusOK Status = iota
	StatusTimeout
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status the way the ground API reports it.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Default timings.
const (
	DefaultTimeout         = 5 * time.Second
	DefaultWarningInterval = 10 * time.Second
)

// WarnFunc receives operator-facing timeout warnings.
type WarnFunc func(format string, v ...interface{})

// Monitor derives Status from heartbeat recency. Status is recomputed on every
// Tick; warnings while timed out are rate limited to one per warning interval.
type Monitor struct {
	clock        timeutil.Clock
	timeout      time.Duration
	warnInterval time.Duration
	warn         WarnFunc
	onChange     func(from, to Status)

	mu            sync.Mutex
	lastHeartbeat time.Time
	lastWarning   time.Time
	heartbeats    uint64
	status        Status
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithClock sets the clock used for all timing.
func WithClock(c timeutil.Clock) MonitorOption {
	return func(m *Monitor) { m.clock = c }
}

// WithTimeout sets how long without a heartbeat before the link times out.
func WithTimeout(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.timeout = d }
}

// WithWarningInterval sets the minimum spacing between timeout warnings.
func WithWarningInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.warnInterval = d }
}

// WithWarnFunc replaces the warning sink. The default is monitoring.Logf.
func WithWarnFunc(f WarnFunc) MonitorOption {
	return func(m *Monitor) { m.warn = f }
}

// WithOnChange registers a callback invoked on every status transition. It is
// called without the monitor lock held.
func WithOnChange(f func(from, to Status)) MonitorOption {
	return func(m *Monitor) { m.onChange = f }
}

// NewMonitor returns a monitor in StatusOK. Both the heartbeat and warning
// clocks start at creation, so a link that never comes up times out after the
// timeout and first warns one warning interval after start.
func NewMonitor(opts ...MonitorOption) *Monitor {
	m := &Monitor{
		clock:        timeutil.RealClock{},
		timeout:      DefaultTimeout,
		warnInterval: DefaultWarningInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.warn == nil {
		m.warn = func(format string, v ...interface{}) { monitoring.Logf(format, v...) }
	}
	now := m.clock.Now()
	m.lastHeartbeat = now
	m.lastWarning = now
	return m
}

// Heartbeat records a received heartbeat.
func (m *Monitor) Heartbeat() {
	m.mu.Lock()
	from := m.status
	m.lastHeartbeat = m.clock.Now()
	m.heartbeats++
	m.status = StatusOK
	m.mu.Unlock()

	m.changed(from, StatusOK)
}

// Tick recomputes the status and emits a warning if one is due. It returns
// the status after the tick.
func (m *Monitor) Tick() Status {
	m.mu.Lock()
	now := m.clock.Now()
	from := m.status
	since := now.Sub(m.lastHeartbeat)
	if since > m.timeout {
		m.status = StatusTimeout
	} else {
		m.status = StatusOK
	}
	to := m.status

	warn := false
	if to == StatusTimeout && now.Sub(m.lastWarning) > m.warnInterval {
		m.lastWarning = now
		warn = true
	}
	m.mu.Unlock()

	if warn {
		m.warn("no heartbeat for %.1fs, link timed out", since.Seconds())
	}
	m.changed(from, to)
	return to
}

func (m *Monitor) changed(from, to Status) {
	if from != to && m.onChange != nil {
		m.onChange(from, to)
	}
}

// Status returns the status computed by the last Tick or Heartbeat.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// SinceHeartbeat returns the time elapsed since the last heartbeat, or since
// the monitor started if none has arrived.
func (m *Monitor) SinceHeartbeat() time.Duration {
	m.mu.Lock()
	last := m.lastHeartbeat
	m.mu.Unlock()
	return m.clock.Since(last)
}

// Heartbeats is the number of heartbeats received.
func (m *Monitor) Heartbeats() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heartbeats
}
