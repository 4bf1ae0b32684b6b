// Package radio is the transport adapter for the telemetry radios. It speaks
// the MAVLink v1 subset the link uses (HEARTBEAT and DEBUG_VECT) over a
// serialmux.
package radio

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"

	"github.com/bluenviron/gomavlib/v3/pkg/dialect"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/frame"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/bluenviron/gomavlib/v3/pkg/x25"

	"github.com/banshee-data/skylink/internal/telemetry"
)

// MAVLink v1 framing.
const (
	stx           = frame.V1MagicByte
	headerLen     = 6 // stx, len, seq, sysid, compid, msgid
	checksumLen   = 2
	frameOverhead = headerLen + checksumLen
	mavlinkV1     = 3
)

var (
	ErrBadChecksum    = errors.New("mavlink: bad checksum")
	ErrUnknownMessage = errors.New("mavlink: unknown message id")
	ErrShortFrame     = errors.New("mavlink: short frame")
	ErrNameTooLong    = fmt.Errorf("mavlink: vector name longer than %d bytes", telemetry.MaxNameLength)
)

// linkDialect is the slice of the common dialect carried on the link.
var linkDialect = &dialect.Dialect{
	Version: 3,
	Messages: []message.Message{
		&common.MessageHeartbeat{},
		&common.MessageDebugVect{},
	},
}

var dialectRW = func() *dialect.ReadWriter {
	rw := &dialect.ReadWriter{Dialect: linkDialect}
	if err := rw.Initialize(); err != nil {
		panic(fmt.Sprintf("mavlink dialect: %v", err))
	}
	return rw
}()

type messageInfo struct {
	rw     *message.ReadWriter
	length uint8
}

// messages maps v1 message ids to their encoder and fixed payload length.
var messages = func() map[uint8]messageInfo {
	m := make(map[uint8]messageInfo, len(linkDialect.Messages))
	for _, msg := range linkDialect.Messages {
		rw := dialectRW.GetMessage(msg.GetID())
		m[uint8(msg.GetID())] = messageInfo{
			rw:     rw,
			length: uint8(len(rw.Write(msg, false).Payload)),
		}
	}
	return m
}()

// checksum is the X.25 CRC over everything after STX, then CRC_EXTRA.
func checksum(body []byte, extra byte) uint16 {
	h := x25.New()
	h.Write(body)
	h.Write([]byte{extra})
	return h.Sum16()
}

// MessageKind is the closed set of messages delivered to the link.
type MessageKind int

const (
	KindHeartbeat MessageKind = iota + 1
	KindVector
)

func (k MessageKind) String() string {
	switch k {
	case KindHeartbeat:
		return "HEARTBEAT"
	case KindVector:
		return "DEBUG_VECT"
	default:
		return "UNKNOWN"
	}
}

// Heartbeat is the content of a HEARTBEAT message. The link only uses its
// arrival.
type Heartbeat = common.MessageHeartbeat

// Message is one decoded frame.
type Message struct {
	Kind        MessageKind
	Seq         uint8
	SystemID    uint8
	ComponentID uint8
	Heartbeat   Heartbeat
	Vector      telemetry.VectorPacket
	Name        string // raw DEBUG_VECT name
}

// Codec frames and parses messages for one node identity. Encoding is not safe
// for concurrent use; Radio serialises it.
type Codec struct {
	SystemID    uint8
	ComponentID uint8
	seq         uint8

	buf bytes.Buffer
	w   *frame.Writer
}

func (c *Codec) encode(msg message.Message) ([]byte, error) {
	if c.w == nil {
		c.w = &frame.Writer{ByteWriter: &c.buf, DialectRW: dialectRW}
		if err := c.w.Initialize(); err != nil {
			return nil, err
		}
	}
	info := messages[uint8(msg.GetID())]
	fr := &frame.V1Frame{
		SequenceNumber: c.seq,
		SystemID:       c.SystemID,
		ComponentID:    c.ComponentID,
		Message:        info.rw.Write(msg, false),
	}
	fr.Checksum = fr.GenerateChecksum(info.rw.CRCExtra())

	c.buf.Reset()
	if err := c.w.Write(fr); err != nil {
		return nil, fmt.Errorf("mavlink: encode %T: %w", msg, err)
	}
	c.seq++
	return bytes.Clone(c.buf.Bytes()), nil
}

// EncodeHeartbeat frames a HEARTBEAT.
func (c *Codec) EncodeHeartbeat(hb Heartbeat) ([]byte, error) {
	return c.encode(&hb)
}

// NodeHeartbeat is the heartbeat both nodes emit.
func NodeHeartbeat() Heartbeat {
	return Heartbeat{
		Type:           common.MAV_TYPE_ONBOARD_CONTROLLER,
		Autopilot:      common.MAV_AUTOPILOT_GENERIC,
		SystemStatus:   common.MAV_STATE_ACTIVE,
		MavlinkVersion: mavlinkV1,
	}
}

// EncodeVector frames a DEBUG_VECT. The wrapping millisecond timestamp travels
// in time_usec.
func (c *Codec) EncodeVector(name string, ts uint32, x, y, z float32) ([]byte, error) {
	if len(name) > telemetry.MaxNameLength {
		return nil, ErrNameTooLong
	}
	return c.encode(&common.MessageDebugVect{
		Name:     name,
		TimeUsec: uint64(ts),
		X:        x,
		Y:        y,
		Z:        z,
	})
}

// Decode parses one complete frame as cut by Framer.Split.
func Decode(raw []byte) (Message, error) {
	if len(raw) < frameOverhead || raw[0] != stx || len(raw) != int(raw[1])+frameOverhead {
		return Message{}, ErrShortFrame
	}
	r := &frame.Reader{BufByteReader: bufio.NewReader(bytes.NewReader(raw))}
	if err := r.Initialize(); err != nil {
		return Message{}, err
	}
	fr, err := r.Read()
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrShortFrame, err)
	}
	v1, ok := fr.(*frame.V1Frame)
	if !ok {
		return Message{}, ErrShortFrame
	}
	payload := v1.Message.(*message.MessageRaw)

	mp := dialectRW.GetMessage(payload.ID)
	if mp == nil {
		return Message{}, fmt.Errorf("%w %d", ErrUnknownMessage, payload.ID)
	}
	if v1.GenerateChecksum(mp.CRCExtra()) != v1.Checksum {
		return Message{}, ErrBadChecksum
	}
	decoded, err := mp.Read(payload, false)
	if err != nil {
		return Message{}, fmt.Errorf("mavlink: message %d: %w", payload.ID, err)
	}

	m := Message{Seq: v1.SequenceNumber, SystemID: v1.SystemID, ComponentID: v1.ComponentID}
	switch msg := decoded.(type) {
	case *common.MessageHeartbeat:
		m.Kind = KindHeartbeat
		m.Heartbeat = *msg
	case *common.MessageDebugVect:
		m.Kind = KindVector
		m.Name = msg.Name
		m.Vector = telemetry.VectorPacket{
			Tag:       telemetry.ParseTag(msg.Name),
			Timestamp: uint32(msg.TimeUsec),
			Values:    [telemetry.ValuesPerPacket]float32{msg.X, msg.Y, msg.Z},
		}
	}
	return m, nil
}
