package signaling

import "sync"

// InputChannel consumes control messages from one page.
type InputChannel interface {
	Handle(data []byte) error
	Close()
}

// Opener registers a page and returns its input channel, or nil when the
// server is shutting down.
type Opener func(source string, send func([]byte) error) InputChannel

// dataInput binds one data channel to an input channel. Pion fires its
// callbacks on separate goroutines, so every transition is locked.
type dataInput struct {
	open Opener
	send func([]byte) error

	mu     sync.Mutex
	ch     InputChannel
	closed bool
}

func newDataInput(open Opener, send func([]byte) error) *dataInput {
	return &dataInput{open: open, send: send}
}

// start opens the input channel once the data channel is open.
func (d *dataInput) start() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.ch != nil {
		return d.ch != nil
	}
	d.ch = d.open("webrtc", d.send)
	return d.ch != nil
}

// handle forwards one message. Messages before start or after stop are dropped.
func (d *dataInput) handle(data []byte) error {
	d.mu.Lock()
	ch := d.ch
	closed := d.closed
	d.mu.Unlock()
	if ch == nil || closed {
		return nil
	}
	return ch.Handle(data)
}

// stop closes the input channel. It is idempotent.
func (d *dataInput) stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	ch := d.ch
	d.mu.Unlock()
	if ch != nil {
		ch.Close()
	}
}
