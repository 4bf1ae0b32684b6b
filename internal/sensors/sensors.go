// Package sensors defines the boundary to the payload's sensor drivers and a
// simulated source used on the bench and in dev mode.
package sensors

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/skylink/internal/telemetry"
	"github.com/banshee-data/skylink/internal/timeutil"
)

// Source produces one set of readings per call. Values a driver could not read
// are reported as telemetry.None().
type Source interface {
	Sample(ctx context.Context) telemetry.Readings
}

// SourceFunc adapts a function to a Source.
type SourceFunc func(ctx context.Context) telemetry.Readings

func (f SourceFunc) Sample(ctx context.Context) telemetry.Readings { return f(ctx) }

// Launch describes where and how the simulated flight starts.
type Launch struct {
	Latitude   float64
	Longitude  float64
	Altitude   float64 // metres
	AscentRate float64 // metres per second
}

// DefaultLaunch is a site in central Texas.
var DefaultLaunch = Launch{Latitude: 31.5, Longitude: -97.1, Altitude: 150, AscentRate: 5}

// Simulated draws IMU and environmental readings from uniform distributions
// over plausible sensor ranges, and a GPS track that climbs at the ascent rate
// while drifting with a noisy wind.
type Simulated struct {
	clock  timeutil.Clock
	launch Launch
	start  time.Time

	mu      sync.Mutex
	accel   distuv.Uniform
	gyro    distuv.Uniform
	hum     distuv.Uniform
	press   distuv.Uniform
	temp    distuv.Uniform
	speed   distuv.Uniform
	heading distuv.Uniform
	jitter  distuv.Normal
	fix     distuv.Bernoulli
}

// SimOption configures a Simulated source.
type SimOption func(*Simulated)

// WithGPSDropout makes the GPS report no fix with probability p.
func WithGPSDropout(p float64) SimOption {
	return func(s *Simulated) { s.fix.P = 1 - p }
}

// NewSimulated creates a deterministic simulated source for seed.
func NewSimulated(clock timeutil.Clock, launch Launch, seed uint64, opts ...SimOption) *Simulated {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	s := &Simulated{
		clock:   clock,
		launch:  launch,
		start:   clock.Now(),
		accel:   distuv.Uniform{Min: -10, Max: 10, Src: src},
		gyro:    distuv.Uniform{Min: -5, Max: 5, Src: src},
		hum:     distuv.Uniform{Min: 20, Max: 80, Src: src},
		press:   distuv.Uniform{Min: 900, Max: 1100, Src: src},
		temp:    distuv.Uniform{Min: 10, Max: 40, Src: src},
		speed:   distuv.Uniform{Min: 0, Max: 15, Src: src},
		heading: distuv.Uniform{Min: 0, Max: 360, Src: src},
		jitter:  distuv.Normal{Mu: 0, Sigma: 2, Src: src},
		fix:     distuv.Bernoulli{P: 1, Src: src},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// metres per degree of latitude, near enough for a drift simulation
const metresPerDegree = 111_320.0

// Sample implements Source.
func (s *Simulated) Sample(ctx context.Context) telemetry.Readings {
	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := s.clock.Since(s.start).Seconds()
	r := telemetry.Readings{
		telemetry.FieldAccelerometerX:          some(s.accel.Rand()),
		telemetry.FieldAccelerometerY:          some(s.accel.Rand()),
		telemetry.FieldAccelerometerZ:          some(s.accel.Rand()),
		telemetry.FieldGyroscopeX:              some(s.gyro.Rand()),
		telemetry.FieldGyroscopeY:              some(s.gyro.Rand()),
		telemetry.FieldGyroscopeZ:              some(s.gyro.Rand()),
		telemetry.FieldHumidity:                some(s.hum.Rand()),
		telemetry.FieldPressure:                some(s.press.Rand()),
		telemetry.FieldTemperatureHumidity:     some(s.temp.Rand()),
		telemetry.FieldTemperaturePressure:     some(s.temp.Rand()),
		telemetry.FieldTemperatureThermocouple: some(s.temp.Rand()),
	}

	if s.fix.Rand() == 0 {
		for _, f := range []string{
			telemetry.FieldLatitude, telemetry.FieldLongitude, telemetry.FieldAltitude,
			telemetry.FieldSpeed, telemetry.FieldHeading,
		} {
			r[f] = telemetry.None()
		}
		return r
	}

	drift := elapsed * 3 / metresPerDegree
	r[telemetry.FieldLatitude] = some(s.launch.Latitude + drift)
	r[telemetry.FieldLongitude] = some(s.launch.Longitude + drift/2)
	r[telemetry.FieldAltitude] = some(s.launch.Altitude + s.launch.AscentRate*elapsed + s.jitter.Rand())
	r[telemetry.FieldSpeed] = some(s.speed.Rand())
	r[telemetry.FieldHeading] = some(s.heading.Rand())
	return r
}

func some(v float64) telemetry.Reading { return telemetry.Some(float32(v)) }
