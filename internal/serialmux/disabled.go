package serialmux

import (
	"context"
	"net/http"
	"sync"
)

// DisabledSerialMux is a no-op SerialMux used when no radio is attached
// (-disable-radio). It lets the node and admin routes run without a device.
// Subscribers are tracked so their channels are closed on Unsubscribe() or
// Close(), allowing readers to unblock during shutdown.
type DisabledSerialMux struct {
	mu          sync.Mutex
	subscribers map[string]chan []byte
	closing     bool
	sent        int
}

func NewDisabledSerialMux() *DisabledSerialMux {
	return &DisabledSerialMux{
		subscribers: make(map[string]chan []byte),
	}
}

func (d *DisabledSerialMux) Subscribe() (string, chan []byte) {
	id := randomID()
	ch := make(chan []byte)

	d.mu.Lock()
	if d.closing {
		// If already closing, return a closed channel so callers don't block.
		close(ch)
		d.mu.Unlock()
		return id, ch
	}
	d.subscribers[id] = ch
	d.mu.Unlock()
	return id, ch
}

func (d *DisabledSerialMux) Unsubscribe(id string) {
	d.mu.Lock()
	if ch, ok := d.subscribers[id]; ok {
		close(ch)
		delete(d.subscribers, id)
	}
	d.mu.Unlock()
}

// Send discards the frame.
func (d *DisabledSerialMux) Send([]byte) error {
	d.mu.Lock()
	d.sent++
	d.mu.Unlock()
	return nil
}

// Sent is the number of frames discarded by Send.
func (d *DisabledSerialMux) Sent() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sent
}

func (d *DisabledSerialMux) Monitor(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }

func (d *DisabledSerialMux) Close() error {
	d.mu.Lock()
	if d.closing {
		d.mu.Unlock()
		return nil
	}
	d.closing = true
	for id, ch := range d.subscribers {
		close(ch)
		delete(d.subscribers, id)
	}
	d.mu.Unlock()
	return nil
}

func (d *DisabledSerialMux) AttachAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/serial-disabled", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("serial disabled"))
	})
}

var (
	_ SerialMuxInterface = (*DisabledSerialMux)(nil)
	_ SerialMuxInterface = (*SerialMux[*TestableSerialPort])(nil)
)
