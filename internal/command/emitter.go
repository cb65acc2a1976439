package command

import (
	"context"
	"sync"
	"time"

	"github.com/kataras/golog"
)

const defaultSendTimeout = 3 * time.Second

// Transport delivers one command string to the executor.
type Transport interface {
	Send(ctx context.Context, cmd string) error
}

// Options configures an Emitter.
type Options struct {
	// Timeout bounds a single transport call. Zero uses a 3s default.
	Timeout time.Duration
	// Logger receives delivery logs. Nil uses the golog default logger.
	Logger *golog.Logger
	// OnResult is invoked from the worker goroutine after every delivery.
	OnResult func(cmd string, err error)
}

// Emitter hands commands to a Transport without blocking the caller.
// Commands are delivered one at a time in the order Emit received them.
// While the transport is busy, adjacent queued MOUSE_MOVEs are summed into
// one so a slow executor does not leave a button event stuck behind a
// backlog of motion.
type Emitter struct {
	mu        sync.Mutex
	pending   []Command
	closed    bool
	wake      chan struct{}
	stopped   chan struct{}
	transport Transport
	timeout   time.Duration
	log       *golog.Logger
	onResult  func(cmd string, err error)
}

// NewEmitter starts the delivery worker.
func NewEmitter(transport Transport, opts Options) *Emitter {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	log := opts.Logger
	if log == nil {
		log = golog.Default
	}
	e := &Emitter{
		wake:      make(chan struct{}, 1),
		stopped:   make(chan struct{}),
		transport: transport,
		timeout:   timeout,
		log:       log,
		onResult:  opts.OnResult,
	}
	go e.run()
	return e
}

// Emit queues commands for delivery. It never blocks on the transport.
func (e *Emitter) Emit(cmds ...Command) {
	if len(cmds) == 0 {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		for _, c := range cmds {
			e.log.Warnf("emitter: dropped %s after close", c)
		}
		return
	}
	for _, c := range cmds {
		e.pending = appendCoalesced(e.pending, c)
	}
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Close stops accepting commands and waits until queued ones are delivered
// or ctx expires.
func (e *Emitter) Close(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	select {
	case e.wake <- struct{}{}:
	default:
	}

	select {
	case <-e.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run drains the queue until Close.
func (e *Emitter) run() {
	defer close(e.stopped)
	for {
		e.mu.Lock()
		for len(e.pending) == 0 && !e.closed {
			e.mu.Unlock()
			<-e.wake
			e.mu.Lock()
		}
		if len(e.pending) == 0 {
			e.mu.Unlock()
			return
		}
		batch := e.pending
		e.pending = nil
		e.mu.Unlock()

		for _, cmd := range batch {
			e.deliver(cmd.String())
		}
	}
}

// appendCoalesced queues c, folding a move into a queued move right before it
// as long as the sum stays within MaxMoveDelta on both axes.
func appendCoalesced(queue []Command, c Command) []Command {
	if n := len(queue); n > 0 && c.Kind == KindMouseMove && queue[n-1].Kind == KindMouseMove {
		last := &queue[n-1]
		dx, dy := last.DX+c.DX, last.DY+c.DY
		if withinMove(dx) && withinMove(dy) {
			last.DX, last.DY = dx, dy
			return queue
		}
	}
	return append(queue, c)
}

func withinMove(v int) bool {
	return v >= -MaxMoveDelta && v <= MaxMoveDelta
}

// deliver sends one command and reports the outcome. Failures are logged only.
func (e *Emitter) deliver(cmd string) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	err := e.transport.Send(ctx, cmd)
	cancel()

	if err != nil {
		e.log.Errorf("emitter: %s: %v", cmd, err)
	} else {
		e.log.Debugf("emitter: sent %s", cmd)
	}
	if e.onResult != nil {
		e.onResult(cmd, err)
	}
}
