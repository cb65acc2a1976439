package control

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/frudas24/hidbridge/internal/activity"
	"github.com/frudas24/hidbridge/internal/bridge"
	"github.com/frudas24/hidbridge/internal/gesture"
	"github.com/frudas24/hidbridge/internal/prefs"
	"github.com/frudas24/hidbridge/internal/session"
	"github.com/frudas24/hidbridge/internal/transport"
	"github.com/gorilla/websocket"
	"github.com/kataras/golog"
)

const defaultExecTimeout = 10 * time.Second

// Options wires a control server.
type Options struct {
	Session  *session.Session
	Sink     bridge.Sink
	Executor transport.Executor
	Activity *activity.Log
	Gesture  gesture.Options
	// Jiggler is the last jiggler setting, shown to new pages.
	Jiggler transport.Jiggler
	// SavePrefs persists sensitivity and jiggler changes. Optional.
	SavePrefs   func(prefs.Prefs) error
	ExecTimeout time.Duration
	Logger      *golog.Logger
}

// Server handles control input from websocket and data channel peers.
type Server struct {
	opts     Options
	log      *golog.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	channels map[string]*Channel
	jiggler  transport.Jiggler
	closed   bool

	pending sync.WaitGroup
}

// NewServer creates a control server.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = golog.Default
	}
	if opts.Activity == nil {
		opts.Activity = activity.New(0)
	}
	if opts.Executor == nil {
		opts.Executor = transport.Dry{Log: opts.Logger}
	}
	if opts.ExecTimeout <= 0 {
		opts.ExecTimeout = defaultExecTimeout
	}
	return &Server{
		opts: opts,
		log:  opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		channels: make(map[string]*Channel),
		jiggler:  opts.Jiggler.Normalize(),
	}
}

// ServeHTTP upgrades the connection and processes control messages.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.opts.Session.Authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ch := s.Open("ws", func(data []byte) error {
		return conn.WriteMessage(websocket.TextMessage, data)
	})
	if ch == nil {
		_ = conn.Close()
		return
	}
	defer func() {
		ch.Close()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.log.Debugf("control: %s: read: %v", ch.ID(), err)
			return
		}
		if err := ch.Handle(data); err != nil {
			s.log.Debugf("control: %s: write: %v", ch.ID(), err)
			return
		}
	}
}

// Open registers a new page and returns its channel. It returns nil after Shutdown.
func (s *Server) Open(source string, send func([]byte) error) *Channel {
	g := s.opts.Gesture
	g.Sensitivity = s.opts.Session.Sensitivity()
	b := bridge.New(s.opts.Sink, bridge.Options{
		Gesture:      g,
		InputEnabled: s.opts.Session.InputEnabled,
		Logger:       s.log,
	})
	ch := &Channel{srv: s, b: b, source: source, send: send}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.channels[b.ID()] = ch
	s.log.Infof("control: %s opened (%s)", b.ID(), source)
	return ch
}

// SetInputEnabled flips the kill switch and releases every page when it turns off.
func (s *Server) SetInputEnabled(enabled bool) {
	s.opts.Session.SetInputEnabled(enabled)
	if enabled {
		return
	}
	for _, ch := range s.snapshotChannels() {
		ch.b.Halt()
	}
}

// Bridges returns the state of every open page, sorted by id.
func (s *Server) Bridges() []bridge.Snapshot {
	chans := s.snapshotChannels()
	out := make([]bridge.Snapshot, 0, len(chans))
	for _, ch := range chans {
		out = append(out, ch.b.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Jiggler returns the last applied jiggler setting.
func (s *Server) Jiggler() transport.Jiggler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jiggler
}

// Shutdown closes every page and waits for in-flight executor requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	for _, ch := range s.snapshotChannels() {
		ch.Close()
	}

	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) snapshotChannels() []*Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Channel, 0, len(s.channels))
	for _, ch := range s.channels {
		out = append(out, ch)
	}
	return out
}

func (s *Server) remove(id string) {
	s.mu.Lock()
	delete(s.channels, id)
	s.mu.Unlock()
}

// persist saves the current preferences when a saver is configured.
func (s *Server) persist() {
	if s.opts.SavePrefs == nil {
		return
	}
	p := prefs.Prefs{Sensitivity: s.opts.Session.Sensitivity(), Jiggler: s.Jiggler()}
	if err := s.opts.SavePrefs(p); err != nil {
		s.log.Warnf("control: save prefs: %v", err)
	}
}

// exec runs an executor request off the message goroutine.
func (s *Server) exec(op string, fn func(ctx context.Context) error, done func(error)) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.ExecTimeout)
		defer cancel()
		err := fn(ctx)
		if err != nil {
			s.log.Warnf("control: %s: %v", op, err)
		}
		done(err)
	}()
}

// Channel is one page's control stream.
type Channel struct {
	srv    *Server
	b      *bridge.Bridge
	source string

	wmu    sync.Mutex
	send   func([]byte) error
	closed bool
}

// ID returns the bridge id behind this channel.
func (c *Channel) ID() string { return c.b.ID() }

// Bridge returns the page's bridge.
func (c *Channel) Bridge() *bridge.Bridge { return c.b }

// Handle processes one raw message. Malformed or unknown messages are skipped;
// only a failed reply write is returned.
func (c *Channel) Handle(data []byte) error {
	msg, err := Decode(data)
	if err != nil {
		c.srv.log.Debugf("control: %s: skip message: %v", c.ID(), err)
		return nil
	}
	return c.dispatch(msg)
}

// Close releases anything the page holds and unregisters it. It is idempotent.
func (c *Channel) Close() {
	c.wmu.Lock()
	if c.closed {
		c.wmu.Unlock()
		return
	}
	c.closed = true
	c.wmu.Unlock()

	c.b.Close()
	c.srv.remove(c.ID())
	c.srv.log.Infof("control: %s closed (%s)", c.ID(), c.source)
}

func (c *Channel) dispatch(msg Message) error {
	b := c.b
	switch msg.T {
	case "hello":
		if msg.Device != nil {
			b.SetDevice(*msg.Device)
		}
		return c.replyState(false)
	case "state":
		return c.replyState(true)
	case "down":
		if !msg.multiTouch() {
			b.PointerStart(msg.Sample())
		}
	case "move":
		if !msg.multiTouch() {
			b.PointerMove(msg.Sample())
		}
	case "up":
		b.PointerEnd(msg.TS)
	case "leave":
		b.PointerLeave()
	case "cancel":
		b.PointerCancel()
	case "dblclick":
		b.DoubleClick()
	case "keydown":
		return c.replyKey(b.KeyDown(msg.RawKey()))
	case "keyup":
		return c.replyKey(b.KeyUp(msg.RawKey()))
	case "capture":
		if msg.Enabled != nil {
			b.SetCapture(*msg.Enabled)
		}
		return c.replyState(false)
	case "toggleCapture":
		b.ToggleCapture()
		return c.replyState(false)
	case "modifier":
		return c.replyAfter("modifier", b.ToggleModifier(msg.Key))
	case "holdKey":
		return c.replyAfter("holdKey", b.HoldKey(msg.Key))
	case "releaseKey":
		return c.replyAfter("releaseKey", b.ReleaseKey(msg.Key))
	case "blur":
		b.Blur()
		return c.replyState(false)
	case "unload":
		c.Close()
	case "releaseAll":
		b.ReleaseAll()
		return c.replyState(false)
	case "clearHistory":
		b.ClearHistory()
		return c.replyState(true)
	case "sensitivity":
		if err := b.SetSensitivity(msg.Value); err != nil {
			return c.replyResult("sensitivity", err)
		}
		c.srv.opts.Session.SetSensitivity(msg.Value)
		c.srv.persist()
		return c.replyState(false)
	case "surface":
		b.SetSurface(msg.Surface())
	case "type":
		b.TypeText(msg.Text, false)
	case "typeln":
		b.TypeText(msg.Text, true)
	case "command":
		if err := b.Send(msg.Cmd); err != nil {
			return c.replyResult("command", err)
		}
	case "inputEnabled":
		if msg.Enabled != nil {
			c.srv.SetInputEnabled(*msg.Enabled)
		}
		return c.replyState(false)
	case "jiggler":
		c.runJiggler(msg.Jiggler())
	case "script":
		c.runScript(msg.Text)
	default:
		c.srv.log.Debugf("control: %s: unknown message %q", c.ID(), msg.T)
	}
	return nil
}

func (c *Channel) runJiggler(j transport.Jiggler) {
	j = j.Normalize()
	if err := j.Validate(); err != nil {
		_ = c.replyResult("jiggler", err)
		return
	}
	srv := c.srv
	srv.exec("jiggler", func(ctx context.Context) error {
		return srv.opts.Executor.SetJiggler(ctx, j)
	}, func(err error) {
		switch {
		case err != nil && j.Enabled:
			srv.opts.Activity.Add(fmt.Sprintf("Error enabling jiggler: %v", err), true)
		case err != nil:
			srv.opts.Activity.Add(fmt.Sprintf("Error disabling jiggler: %v", err), true)
		case j.Enabled:
			srv.opts.Activity.Addf("Mouse jiggler enabled (type: %s, diameter: %dpx, delay: %dms)", j.Mode, j.Diameter, j.DelayMs)
		default:
			srv.opts.Activity.Addf("Mouse jiggler disabled")
		}
		if err == nil {
			srv.mu.Lock()
			srv.jiggler = j
			srv.mu.Unlock()
			srv.persist()
		}
		_ = c.replyResult("jiggler", err)
	})
}

func (c *Channel) runScript(script string) {
	srv := c.srv
	if !srv.opts.Session.InputEnabled() {
		_ = c.replyResult("script", fmt.Errorf("input disabled"))
		return
	}
	srv.exec("script", func(ctx context.Context) error {
		return srv.opts.Executor.RunScript(ctx, script)
	}, func(err error) {
		if err != nil {
			srv.opts.Activity.Add(fmt.Sprintf("Error: script: %v", err), true)
		} else {
			srv.opts.Activity.Addf("Script executed")
		}
		_ = c.replyResult("script", err)
	})
}

// replyAfter reports err as a result, or the new state when it is nil.
func (c *Channel) replyAfter(op string, err error) error {
	if err != nil {
		return c.replyResult(op, err)
	}
	return c.replyState(false)
}

func (c *Channel) replyState(withHistory bool) error {
	return c.write(c.stateReply(withHistory))
}

func (c *Channel) stateReply(withHistory bool) StateReply {
	reply := StateReply{
		T:       "state",
		Session: c.srv.opts.Session.Snapshot(),
		Bridge:  c.b.Snapshot(),
		Jiggler: c.srv.Jiggler(),
	}
	if withHistory {
		reply.History = c.b.History()
	}
	return reply
}

// replyKey answers a key event with the intercept decision and fresh history.
func (c *Channel) replyKey(intercept bool) error {
	reply := c.stateReply(true)
	reply.Intercept = &intercept
	return c.write(reply)
}

func (c *Channel) replyResult(op string, err error) error {
	reply := ResultReply{T: "result", Op: op, OK: err == nil}
	if err != nil {
		reply.Error = err.Error()
	}
	return c.write(reply)
}

func (c *Channel) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.closed || c.send == nil {
		return nil
	}
	return c.send(data)
}
