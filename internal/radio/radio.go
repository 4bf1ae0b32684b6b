package radio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/skylink/internal/monitoring"
	"github.com/banshee-data/skylink/internal/serialmux"
)

// DefaultInboxSize bounds decoded messages waiting for Receive.
const DefaultInboxSize = 256

// Config identifies this node on the link.
type Config struct {
	SystemID    uint8
	ComponentID uint8
	InboxSize   int
}

// Stats are the adapter's counters.
type Stats struct {
	FramesIn     uint64 `json:"frames_in"`
	FramesOut    uint64 `json:"frames_out"`
	SendErrors   uint64 `json:"send_errors"`
	DecodeErrors uint64 `json:"decode_errors"`
	Dropped      uint64 `json:"inbox_dropped"`
	Corrupt      uint64 `json:"corrupt_frames"`
	SkippedBytes uint64 `json:"skipped_bytes"`
}

// Radio adapts a serial mux to the link's transport operations: send a
// heartbeat, send a vector, and poll for received messages without blocking.
type Radio struct {
	mux    serialmux.SerialMuxInterface
	framer *Framer
	subID  string
	frames chan []byte
	inbox  chan Message

	sendMu sync.Mutex
	codec  Codec

	framesIn, framesOut, sendErrors atomic.Uint64
	decodeErrors, dropped           atomic.Uint64
}

// NewFramer returns the framer and the mux option that installs it. The option
// must be passed when the mux is created.
func NewFramer() (*Framer, serialmux.Option) {
	f := &Framer{}
	return f, serialmux.WithSplitFunc(f.Split)
}

// New creates a radio on mux and subscribes to its frames. framer may be nil
// when the mux was not built with one.
func New(mux serialmux.SerialMuxInterface, framer *Framer, cfg Config) *Radio {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = DefaultInboxSize
	}
	if framer == nil {
		framer = &Framer{}
	}
	id, frames := mux.Subscribe()
	return &Radio{
		mux:    mux,
		framer: framer,
		subID:  id,
		frames: frames,
		inbox:  make(chan Message, cfg.InboxSize),
		codec:  Codec{SystemID: cfg.SystemID, ComponentID: cfg.ComponentID},
	}
}

func (r *Radio) send(frame []byte) error {
	if err := r.mux.Send(frame); err != nil {
		r.sendErrors.Add(1)
		return err
	}
	r.framesOut.Add(1)
	return nil
}

// SendHeartbeat emits one heartbeat.
func (r *Radio) SendHeartbeat() error {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	frame, err := r.codec.EncodeHeartbeat(NodeHeartbeat())
	if err != nil {
		return err
	}
	if err := r.send(frame); err != nil {
		return fmt.Errorf("send heartbeat: %w", err)
	}
	return nil
}

// SendVector emits one DEBUG_VECT.
func (r *Radio) SendVector(name string, ts uint32, x, y, z float32) error {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	frame, err := r.codec.EncodeVector(name, ts, x, y, z)
	if err != nil {
		return err
	}
	return r.send(frame)
}

// Run decodes subscribed frames into the inbox until ctx is done or the mux
// is closed. Undecodable frames are counted and dropped. When the inbox is
// full new messages are dropped.
func (r *Radio) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-r.frames:
			if !ok {
				return nil
			}
			r.framesIn.Add(1)
			msg, err := Decode(frame)
			if err != nil {
				r.decodeErrors.Add(1)
				monitoring.Logf("radio decode: %v", err)
				continue
			}
			select {
			case r.inbox <- msg:
			default:
				r.dropped.Add(1)
			}
		}
	}
}

// Receive returns the next decoded message, if any. It never blocks.
func (r *Radio) Receive() (Message, bool) {
	select {
	case m := <-r.inbox:
		return m, true
	default:
		return Message{}, false
	}
}

// Stats returns a snapshot of the counters.
func (r *Radio) Stats() Stats {
	return Stats{
		FramesIn:     r.framesIn.Load(),
		FramesOut:    r.framesOut.Load(),
		SendErrors:   r.sendErrors.Load(),
		DecodeErrors: r.decodeErrors.Load(),
		Dropped:      r.dropped.Load(),
		Corrupt:      r.framer.Corrupt(),
		SkippedBytes: r.framer.Skipped(),
	}
}

// Close unsubscribes and closes the underlying mux and port.
func (r *Radio) Close() error {
	r.mux.Unsubscribe(r.subID)
	return r.mux.Close()
}
