package main

import (
	"bufio"
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/skylink/internal/frame"
	"github.com/banshee-data/skylink/internal/radio"
	"github.com/banshee-data/skylink/internal/telemetry"
	"github.com/banshee-data/skylink/internal/timeutil"
)

func decodeAll(t *testing.T, stream []byte) []radio.Message {
	t.Helper()
	f := &radio.Framer{}
	sc := bufio.NewScanner(bytes.NewReader(stream))
	sc.Split(f.Split)
	var out []radio.Message
	for sc.Scan() {
		msg, err := radio.Decode(sc.Bytes())
		require.NoError(t, err)
		out = append(out, msg)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestSimulatedPayload_HeartbeatThenRecord(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))
	feed := newSimulatedPayload(clock, 7, 2)

	first := decodeAll(t, feed.Next())
	require.Len(t, first, 1)
	assert.Equal(t, radio.KindHeartbeat, first[0].Kind)

	clock.Advance(time.Second)
	second := decodeAll(t, feed.Next())
	require.Len(t, second, 1+telemetry.DefaultSchema.PacketCount())
	assert.Equal(t, radio.KindHeartbeat, second[0].Kind)

	reasm, err := frame.NewReassembler(telemetry.DefaultSchema, frame.WithStrictCompletion())
	require.NoError(t, err)
	var (
		rec telemetry.Record
		ok  bool
	)
	for _, msg := range second[1:] {
		require.Equal(t, radio.KindVector, msg.Kind)
		rec, ok = reasm.Push(msg.Vector)
	}
	require.True(t, ok, "a full record should reassemble")

	ts, _ := rec.Get(telemetry.FieldTimestamp)
	assert.Equal(t, float32(telemetry.MillisTimestamp(clock.Now())), ts)
	alt, _ := rec.Get(telemetry.FieldAltitude)
	assert.Greater(t, alt, float32(0))
}

func TestSimulatedPayload_RecordEveryDefault(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))
	feed := newSimulatedPayload(clock, 1, 0)

	msgs := decodeAll(t, feed.Next())
	assert.Len(t, msgs, 1+telemetry.DefaultSchema.PacketCount())
}
