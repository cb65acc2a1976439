// Package bridge binds one connected page to a gesture recognizer and a
// keyboard engine, and forwards their commands to a shared sink.
package bridge

import (
	"strings"
	"sync"
	"time"

	"github.com/frudas24/hidbridge/internal/command"
	"github.com/frudas24/hidbridge/internal/gesture"
	"github.com/frudas24/hidbridge/internal/keyboard"
	"github.com/frudas24/hidbridge/internal/surface"
	"github.com/google/uuid"
	"github.com/kataras/golog"
)

// Sink accepts commands for delivery. Emit must not block.
type Sink interface {
	Emit(cmds ...command.Command)
}

// Options configures a bridge.
type Options struct {
	Gesture gesture.Options
	// Device answers the mobile question for blur handling. Nil means desktop.
	Device keyboard.Capabilities
	// InputEnabled is the global kill switch. Nil means always enabled.
	InputEnabled func() bool
	Logger       *golog.Logger
	Now          func() time.Time
	After        func(time.Duration, func())
}

// Snapshot is the display state of one bridge.
type Snapshot struct {
	ID                    string            `json:"id"`
	Gesture               string            `json:"gesture"`
	Sensitivity           float64           `json:"sensitivity"`
	Cursor                gesture.Cursor    `json:"cursor"`
	DoubleClickSuppressed bool              `json:"doubleClickSuppressed"`
	Keyboard              keyboard.Snapshot `json:"keyboard"`
}

// Bridge is the per-page input state.
type Bridge struct {
	id   string
	sink Sink
	rec  *gesture.Recognizer
	keys *keyboard.Engine
	log  *golog.Logger

	inputEnabled func() bool

	mu     sync.Mutex
	closed bool
}

// New returns a bridge emitting into sink.
func New(sink Sink, opts Options) *Bridge {
	logger := opts.Logger
	if logger == nil {
		logger = golog.Default
	}
	rec := gesture.NewRecognizer(opts.Gesture)
	keys := keyboard.NewEngine(opts.Device)
	if opts.Now != nil {
		rec.SetNowFunc(opts.Now)
		keys.SetNowFunc(opts.Now)
	}
	if opts.After != nil {
		rec.SetAfterFunc(opts.After)
	}
	inputEnabled := opts.InputEnabled
	if inputEnabled == nil {
		inputEnabled = func() bool { return true }
	}
	return &Bridge{
		id:           uuid.NewString(),
		sink:         sink,
		rec:          rec,
		keys:         keys,
		log:          logger,
		inputEnabled: inputEnabled,
	}
}

// ID returns the bridge identifier.
func (b *Bridge) ID() string { return b.id }

// PointerStart handles mousedown or a single-finger touchstart.
func (b *Bridge) PointerStart(s gesture.Sample) {
	b.pointer(func() []command.Command { return b.rec.Start(s) })
}

// PointerMove handles mousemove or touchmove.
func (b *Bridge) PointerMove(s gesture.Sample) {
	b.pointer(func() []command.Command { return b.rec.Move(s) })
}

// PointerEnd handles mouseup or touchend. tsMs is the page clock of the
// event, or 0 to time the gesture on the server clock.
func (b *Bridge) PointerEnd(tsMs int64) {
	b.pointer(func() []command.Command { return b.rec.EndAt(tsMs) })
}

// PointerLeave handles the pointer leaving the surface.
func (b *Bridge) PointerLeave() {
	b.pointer(b.rec.Leave)
}

// PointerCancel handles touchcancel.
func (b *Bridge) PointerCancel() {
	b.pointer(b.rec.Cancel)
}

// DoubleClick handles the native dblclick event.
func (b *Bridge) DoubleClick() {
	b.pointer(b.rec.DoubleClick)
}

// KeyDown handles a key press and reports whether the page should swallow it.
func (b *Bridge) KeyDown(k keyboard.RawKey) bool {
	return b.key(func() keyboard.Result { return b.keys.KeyDown(k) })
}

// KeyUp handles a key release and reports whether the page should swallow it.
func (b *Bridge) KeyUp(k keyboard.RawKey) bool {
	return b.key(func() keyboard.Result { return b.keys.KeyUp(k) })
}

// SetCapture turns keyboard capture on or off.
func (b *Bridge) SetCapture(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if on && !b.inputEnabled() {
		b.log.Debugf("bridge %s: capture refused, input disabled", b.id)
		return
	}
	b.emitLocked(b.keys.SetCapture(on))
}

// ToggleCapture flips keyboard capture.
func (b *Bridge) ToggleCapture() {
	b.SetCapture(!b.keys.Enabled())
}

// ToggleModifier flips a sticky modifier button.
func (b *Bridge) ToggleModifier(name string) error {
	return b.keyAction(func() ([]command.Command, error) { return b.keys.ToggleModifier(name) })
}

// HoldKey presses a named key from a hold button.
func (b *Bridge) HoldKey(name string) error {
	return b.keyAction(func() ([]command.Command, error) { return b.keys.HoldKey(name) })
}

// ReleaseKey releases a named key from a hold button.
func (b *Bridge) ReleaseKey(name string) error {
	return b.keyAction(func() ([]command.Command, error) { return b.keys.ReleaseKey(name) })
}

// Blur handles the page losing focus.
func (b *Bridge) Blur() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.emitLocked(b.keys.Blur())
}

// ReleaseAll sends a keyboard reset.
func (b *Bridge) ReleaseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.emitLocked(b.keys.ReleaseAll())
}

// ClearHistory empties the key history and counters.
func (b *Bridge) ClearHistory() {
	b.keys.ClearHistory()
}

// History returns forwarded key events, most recent first.
func (b *Bridge) History() []keyboard.KeyEvent {
	return b.keys.History()
}

// SetSensitivity changes the pointer multiplier.
func (b *Bridge) SetSensitivity(s float64) error {
	return b.rec.SetSensitivity(s)
}

// SetSurface sets the trackpad rectangle in page coordinates.
func (b *Bridge) SetSurface(r surface.Rect) {
	b.rec.SetBounds(r)
}

// SetDevice records what the page reported about its device.
func (b *Bridge) SetDevice(p keyboard.DeviceProfile) {
	b.keys.SetCapabilities(p)
	b.log.Debugf("bridge %s: device mobile=%v", b.id, p.IsMobile())
}

// TypeText types literal text, optionally followed by Enter. Empty text is ignored.
func (b *Bridge) TypeText(text string, newline bool) {
	if strings.TrimSpace(text) == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || !b.inputEnabled() {
		return
	}
	if newline {
		b.emitLocked([]command.Command{command.TypeLn(text)})
		return
	}
	b.emitLocked([]command.Command{command.Type(text)})
}

// Send validates and forwards a raw executor command.
func (b *Bridge) Send(raw string) error {
	cmd, err := command.Parse(raw)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || !b.inputEnabled() {
		return nil
	}
	b.emitLocked([]command.Command{cmd})
	return nil
}

// Halt releases the button, every key and sticky modifier, and ends keyboard
// capture without closing the bridge.
func (b *Bridge) Halt() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	var out []command.Command
	out = append(out, b.rec.Leave()...)
	out = append(out, b.keys.Unload()...)
	b.emitLocked(out)
}

// Close releases anything held and stops further output. It is idempotent.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	var out []command.Command
	out = append(out, b.rec.Leave()...)
	out = append(out, b.keys.Unload()...)
	b.emitLocked(out)
	b.closed = true
	b.log.Debugf("bridge %s: closed", b.id)
}

// Closed reports whether Close has run.
func (b *Bridge) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Snapshot returns the display state.
func (b *Bridge) Snapshot() Snapshot {
	return Snapshot{
		ID:                    b.id,
		Gesture:               b.rec.State().String(),
		Sensitivity:           b.rec.Sensitivity(),
		Cursor:                b.rec.Cursor(),
		DoubleClickSuppressed: b.rec.DoubleClickSuppressed(),
		Keyboard:              b.keys.Snapshot(),
	}
}

// pointer runs a recognizer step. With input disabled the gesture is left
// safely and the event is dropped.
func (b *Bridge) pointer(step func() []command.Command) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if !b.inputEnabled() {
		b.emitLocked(b.rec.Leave())
		return
	}
	b.emitLocked(step())
}

// key runs a keyboard step. With input disabled capture is forced off and
// held modifiers are released.
func (b *Bridge) key(step func() keyboard.Result) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	if !b.inputEnabled() {
		b.emitLocked(b.keys.Unload())
		return false
	}
	res := step()
	b.emitLocked(res.Commands)
	return res.Intercept
}

func (b *Bridge) keyAction(step func() ([]command.Command, error)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || !b.inputEnabled() {
		return nil
	}
	cmds, err := step()
	if err != nil {
		return err
	}
	b.emitLocked(cmds)
	return nil
}

func (b *Bridge) emitLocked(cmds []command.Command) {
	if len(cmds) == 0 {
		return
	}
	b.sink.Emit(cmds...)
}
