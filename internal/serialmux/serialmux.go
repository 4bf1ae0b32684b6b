// Serialmux provides an abstraction over a serial port with the ability for
// multiple clients to subscribe to frames read from the port and send frames
// to a single serial device.
package serialmux

import (
	"bufio"
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"tailscale.com/tsweb"
)

var ErrWriteFailed = fmt.Errorf("failed to write to serial port")

// DefaultSubscriberBuffer is the channel depth given to each subscriber.
const DefaultSubscriberBuffer = 64

// SerialMux is a generic serial port multiplexer that allows multiple clients to
// subscribe to frames from a single serial port. Frames are delimited by a
// bufio.SplitFunc so the same mux carries binary protocols and text lines.
type SerialMux[T SerialPorter] struct {
	port         T
	split        bufio.SplitFunc
	maxFrame     int
	subBuffer    int
	subscribers  map[string]chan []byte
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// SerialMuxInterface defines the interface for the SerialMux type.
type SerialMuxInterface interface {
	// Subscribe creates a new channel for receiving frames from the serial
	// port. The channel ID is used to identify the unique channel when
	// unsubscribing.
	Subscribe() (string, chan []byte)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// Send writes one frame to the serial port.
	Send([]byte) error
	// Monitor reads frames from the serial port and sends them to the
	// subscribed channels.
	Monitor(context.Context) error
	// Close closes all subscribed channels and closes the serial port.
	Close() error

	// AttachAdminRoutes attaches admin debugging endpoints to the given HTTP
	// mux served at /debug/. These routes are accessible only over
	// localhost/via Tailscale and are not publicly accessible.
	AttachAdminRoutes(*http.ServeMux)
}

// Option configures a SerialMux.
type Option func(*muxConfig)

type muxConfig struct {
	split     bufio.SplitFunc
	maxFrame  int
	subBuffer int
}

// WithSplitFunc sets how the byte stream is cut into frames. The default is
// bufio.ScanLines.
func WithSplitFunc(split bufio.SplitFunc) Option {
	return func(c *muxConfig) { c.split = split }
}

// WithMaxFrameSize bounds the scanner buffer.
func WithMaxFrameSize(n int) Option {
	return func(c *muxConfig) { c.maxFrame = n }
}

// WithSubscriberBuffer sets the channel depth of new subscribers.
func WithSubscriberBuffer(n int) Option {
	return func(c *muxConfig) { c.subBuffer = n }
}

// NewSerialMux creates a SerialMux instance backed by the given port.
func NewSerialMux[T SerialPorter](port T, opts ...Option) *SerialMux[T] {
	cfg := muxConfig{
		split:     bufio.ScanLines,
		maxFrame:  bufio.MaxScanTokenSize,
		subBuffer: DefaultSubscriberBuffer,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &SerialMux[T]{
		port:        port,
		split:       cfg.split,
		maxFrame:    cfg.maxFrame,
		subBuffer:   cfg.subBuffer,
		subscribers: make(map[string]chan []byte),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *SerialMux[T]) Subscribe() (string, chan []byte) {
	id := randomID()
	ch := make(chan []byte, s.subBuffer)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the serial mux.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Send writes a frame to the serial port. Concurrent senders are serialised so
// frames are never interleaved on the wire.
func (s *SerialMux[T]) Send(frame []byte) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	n, err := s.port.Write(frame)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor monitors the serial port for frames and sends them to subscribers.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)
	scan.Buffer(make([]byte, 0, 4096), s.maxFrame)
	scan.Split(s.split)

	frameChan := make(chan []byte)
	scanErrChan := make(chan error, 1)

	// start a goroutine to read from the serial port & send any frames that are
	// scanned to frameChan, and any errors to the scanErrChan
	//
	// the blocking scan.Scan will not interfere with our outer loop awaiting
	// frames & context cancellation.
	go func() {
		defer close(frameChan)
		for scan.Scan() {
			// the scanner reuses its buffer
			frame := bytes.Clone(scan.Bytes())
			select {
			case frameChan <- frame:
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case frame, ok := <-frameChan:
			// if the channel is closed, we're done reading from the serial port
			if !ok {
				select {
				case err := <-scanErrChan:
					return err
				default:
				}
				return nil
			}
			s.closingMu.Lock()
			if s.closing {
				s.closingMu.Unlock()
				return nil
			}
			s.closingMu.Unlock()

			s.subscriberMu.Lock()
			for _, ch := range s.subscribers {
				select {
				case ch <- frame:
				default:
					// if the channel is full skip so as not to block the outer loop
				}
			}
			s.subscriberMu.Unlock()
		}
	}
}

func (s *SerialMux[T]) Close() error {
	s.closingMu.Lock()
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	return s.port.Close()
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	attachAdminRoutes(mux, s)
}

// attachAdminRoutes registers the serial debug routes for any mux.
func attachAdminRoutes(mux *http.ServeMux, s SerialMuxInterface) {
	debug := tsweb.Debugger(mux)

	// API endpoint to write a hex encoded frame to the serial port
	debug.HandleSilentFunc("serial-send", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		raw := strings.Join(strings.Fields(r.FormValue("frame")), "")
		if raw == "" {
			http.Error(w, "Missing frame", http.StatusBadRequest)
			return
		}
		frame, err := hex.DecodeString(raw)
		if err != nil {
			http.Error(w, "Frame must be hex encoded", http.StatusBadRequest)
			return
		}
		if err := s.Send(frame); err != nil {
			http.Error(w, "Failed to write frame", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, fmt.Sprintf("Wrote %d bytes to serial port", len(frame)))
	})

	// API endpoint to issue Server-Side Events (SSE) for frames read from the
	// serial port, hex encoded.
	debug.Handle("serial-tail", "live tail of serial frames (SSE, hex)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		// Send initial ping to establish connection
		w.Write([]byte(": ping\n\n"))
		w.(http.Flusher).Flush()

		for {
			select {
			case frame, ok := <-c:
				if !ok {
					return
				}
				_, err := w.Write([]byte(fmt.Sprintf("data: %s\n\n", hex.EncodeToString(frame))))
				if err != nil {
					return
				}
				w.(http.Flusher).Flush()
			case <-r.Context().Done():
				return
			}
		}
	}))
}
