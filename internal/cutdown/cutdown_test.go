package cutdown

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	gpio "github.com/temoto/gpio-cdev-go"
	gpio_mock "github.com/temoto/gpio-cdev-go/mock"

	"github.com/banshee-data/skylink/internal/monitoring"
	"github.com/banshee-data/skylink/internal/timeutil"
)

var launch = time.Date(2026, 4, 1, 14, 0, 0, 0, time.UTC)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

type countingActuator struct {
	asserts, releases int
	assertErrs        []error
}

func (a *countingActuator) Assert() error {
	if len(a.assertErrs) > 0 {
		err := a.assertErrs[0]
		a.assertErrs = a.assertErrs[1:]
		return err
	}
	a.asserts++
	return nil
}

func (a *countingActuator) Release() error { a.releases++; return nil }
func (a *countingActuator) Close() error   { return nil }

func TestController_TriggerIsIdempotent(t *testing.T) {
	clock := timeutil.NewMockClock(launch)
	var transitions []Transition
	ctl := NewController(WithControllerClock(clock), WithOnTransition(func(tr Transition) {
		transitions = append(transitions, tr)
	}))
	act := &countingActuator{}
	seq := NewSequencer(ctl, act, DefaultHold, clock)

	assert.True(t, ctl.Trigger(SourceCommand))
	assert.False(t, ctl.Trigger(SourceCommand))
	seq.Tick()
	assert.False(t, ctl.Trigger(SourceCommand))
	assert.False(t, ctl.Trigger(SourceMission))

	for i := 0; i < 100; i++ {
		clock.Advance(time.Second)
		seq.Tick()
	}

	assert.Equal(t, 1, act.asserts, "actuator pulses")
	assert.Equal(t, 1, act.releases)
	require.Len(t, transitions, 3)
	assert.Equal(t, Transition{From: Armed, To: Triggered, Source: SourceCommand, At: launch}, transitions[0])
	assert.Equal(t, Active, transitions[1].To)
	assert.Equal(t, Expired, transitions[2].To)
	assert.Equal(t, SourceCommand, ctl.Snapshot().Source)
}

func TestController_ConcurrentTriggers(t *testing.T) {
	ctl := NewController()
	var wg sync.WaitGroup
	wins := make(chan bool, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			src := SourceCommand
			if i%2 == 0 {
				src = SourceMission
			}
			wins <- ctl.Trigger(src)
		}(i)
	}
	wg.Wait()
	close(wins)

	n := 0
	for w := range wins {
		if w {
			n++
		}
	}
	assert.Equal(t, 1, n)
	assert.Equal(t, Triggered, ctl.State())
}

func TestWatchdog_MissionFallback(t *testing.T) {
	clock := timeutil.NewMockClock(launch)
	ctl := NewController(WithControllerClock(clock))
	act := &countingActuator{}
	seq := NewSequencer(ctl, act, DefaultHold, clock)
	wd := Watchdog{Start: launch, Duration: DefaultMissionDuration}

	clock.Set(launch.Add(DefaultMissionDuration - time.Millisecond))
	assert.False(t, wd.Check(ctl, clock.Now()))
	assert.Equal(t, Armed, seq.Tick())
	assert.Equal(t, time.Millisecond, wd.Remaining(clock.Now()))

	clock.Set(launch.Add(DefaultMissionDuration))
	assert.True(t, wd.Check(ctl, clock.Now()))
	assert.Equal(t, Active, seq.Tick())

	snap := ctl.Snapshot()
	assert.Equal(t, SourceMission, snap.Source)
	assert.Equal(t, launch.Add(DefaultMissionDuration), snap.TriggeredAt)
	assert.Equal(t, launch.Add(DefaultMissionDuration), snap.ActivatedAt)

	clock.Advance(DefaultHold - time.Millisecond)
	assert.Equal(t, Active, seq.Tick())

	clock.Advance(time.Millisecond)
	assert.Equal(t, Expired, seq.Tick())
	assert.Equal(t, snap.ActivatedAt.Add(DefaultHold), ctl.Snapshot().ExpiredAt)
	assert.Zero(t, wd.Remaining(clock.Now()))

	assert.False(t, wd.Check(ctl, clock.Now()))
	assert.Equal(t, Expired, seq.Tick())
	assert.Equal(t, 1, act.asserts)
}

func TestSequencer_AssertFailureRetries(t *testing.T) {
	clock := timeutil.NewMockClock(launch)
	ctl := NewController(WithControllerClock(clock))
	act := &countingActuator{assertErrs: []error{errors.New("EBUSY")}}
	seq := NewSequencer(ctl, act, time.Minute, clock)

	ctl.Trigger(SourceCommand)
	assert.Equal(t, Triggered, seq.Tick())
	assert.Equal(t, 0, act.asserts)

	clock.Advance(100 * time.Millisecond)
	assert.Equal(t, Active, seq.Tick())
	assert.Equal(t, 1, act.asserts)
	assert.Equal(t, launch.Add(100*time.Millisecond), ctl.Snapshot().ActivatedAt)
}

func TestSequencer_ArmedDoesNothing(t *testing.T) {
	act := &countingActuator{}
	seq := NewSequencer(NewController(), act, 0, nil)
	assert.Equal(t, Armed, seq.Tick())
	assert.Zero(t, act.asserts)
	assert.Equal(t, DefaultHold, seq.hold)
}

func TestStateStrings(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Armed, "armed"},
		{Triggered, "triggered"},
		{Active, "active"},
		{Expired, "expired"},
		{State(9), "state(9)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.s), got, tt.want)
		}
	}
	assert.Equal(t, "mission", SourceMission.String())
	assert.Equal(t, "none", SourceNone.String())
}

func TestGPIOActuator_Pulse(t *testing.T) {
	chip := &gpio_mock.MockChip{}
	lines := &gpio_mock.MockLines{}

	var levels []byte
	setter := gpio.LineSetFunc(func(v byte) { levels = append(levels, v) })

	chip.On("OpenLines", gpio.GPIOHANDLE_REQUEST_OUTPUT|gpio.GPIOHANDLE_REQUEST_ACTIVE_LOW, gpioConsumer, uint32(17)).
		Return(lines, nil)
	lines.On("SetFunc", uint32(17)).Return(setter)
	lines.On("Flush").Return(nil)
	lines.On("Close").Return(nil)
	chip.On("Close").Return(nil)

	a, err := NewGPIOActuator(chip, 17, true)
	require.NoError(t, err)
	require.NoError(t, a.Assert())
	require.NoError(t, a.Release())
	require.NoError(t, a.Close())

	assert.Equal(t, []byte{0, 1, 0}, levels)
	lines.AssertNumberOfCalls(t, "Flush", 3)
	chip.AssertExpectations(t)
	lines.AssertExpectations(t)
}

func TestGPIOActuator_FlushError(t *testing.T) {
	chip := &gpio_mock.MockChip{}
	lines := &gpio_mock.MockLines{}
	boom := errors.New("ioctl failed")

	chip.On("OpenLines", gpio.GPIOHANDLE_REQUEST_OUTPUT, gpioConsumer, uint32(4)).Return(lines, nil)
	lines.On("SetFunc", uint32(4)).Return(gpio.LineSetFunc(func(byte) {}))
	lines.On("Flush").Return(nil).Once()
	lines.On("Flush").Return(boom)

	a, err := NewGPIOActuator(chip, 4, false)
	require.NoError(t, err)
	assert.ErrorIs(t, a.Assert(), boom)
}

func TestGPIOActuator_OpenLinesError(t *testing.T) {
	chip := &gpio_mock.MockChip{}
	chip.On("OpenLines", mock.Anything, mock.Anything, mock.Anything).
		Return((*gpio_mock.MockLines)(nil), errors.New("busy"))

	_, err := NewGPIOActuator(chip, 4, false)
	assert.Error(t, err)
}

func TestLogActuator(t *testing.T) {
	a := &LogActuator{}
	require.NoError(t, a.Assert())
	assert.True(t, a.Asserted())
	require.NoError(t, a.Release())
	assert.False(t, a.Asserted())
	assert.Equal(t, 1, a.Pulses())
	assert.NoError(t, a.Close())
}
