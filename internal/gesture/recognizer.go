// Package gesture turns trackpad pointer events into mouse commands.
package gesture

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/frudas24/hidbridge/internal/command"
	"github.com/frudas24/hidbridge/internal/surface"
)

const (
	// DefaultHoldWindow is how soon after a click a new start becomes a button hold.
	DefaultHoldWindow = 400 * time.Millisecond
	// DefaultClickMax is the longest press that still counts as a click.
	DefaultClickMax = 200 * time.Millisecond
	// DefaultSuppressDelay is how long a hold release keeps native double clicks suppressed.
	DefaultSuppressDelay = 100 * time.Millisecond
	// DefaultSensitivity is the pointer delta multiplier.
	DefaultSensitivity = 1.0
)

// ErrInvalidSensitivity is returned for sensitivity values that are not positive and finite.
var ErrInvalidSensitivity = errors.New("sensitivity must be > 0")

// State is the recognizer's gesture state.
type State int

const (
	// Idle means no gesture is in progress.
	Idle State = iota
	// Dragging means a gesture is active without the button held.
	Dragging
	// ButtonHeld means a gesture is active with the left button held.
	ButtonHeld
)

// String returns a lowercase state name.
func (s State) String() string {
	switch s {
	case Dragging:
		return "dragging"
	case ButtonHeld:
		return "held"
	default:
		return "idle"
	}
}

// Sample is one observed pointer position in page coordinates. TimestampMs is
// the page clock in milliseconds, or 0 when the page did not send one.
type Sample struct {
	X           float64
	Y           float64
	TimestampMs int64
}

// finite reports whether both coordinates are usable numbers.
func (s Sample) finite() bool {
	return !math.IsInf(s.X, 0) && !math.IsNaN(s.X) && !math.IsInf(s.Y, 0) && !math.IsNaN(s.Y)
}

// stamp is one instant on the server clock and, when the page sent a
// timestamp, on the page clock.
type stamp struct {
	server time.Time
	page   time.Time
}

// since returns a-b on the page clock when both sides have one, else on the
// server clock.
func (a stamp) since(b stamp) time.Duration {
	if !a.page.IsZero() && !b.page.IsZero() {
		return a.page.Sub(b.page)
	}
	return a.server.Sub(b.server)
}

// Cursor is the presentational cursor indicator, relative to the surface origin.
type Cursor struct {
	X       float64
	Y       float64
	Visible bool
}

// Options configures gesture timings and the initial sensitivity.
type Options struct {
	HoldWindow    time.Duration
	ClickMax      time.Duration
	SuppressDelay time.Duration
	Sensitivity   float64
}

// withDefaults fills zero fields.
func (o Options) withDefaults() Options {
	if o.HoldWindow <= 0 {
		o.HoldWindow = DefaultHoldWindow
	}
	if o.ClickMax <= 0 {
		o.ClickMax = DefaultClickMax
	}
	if o.SuppressDelay <= 0 {
		o.SuppressDelay = DefaultSuppressDelay
	}
	if !validSensitivity(o.Sensitivity) {
		o.Sensitivity = DefaultSensitivity
	}
	return o
}

// Recognizer tracks one trackpad surface. Methods return the commands to emit.
type Recognizer struct {
	mu   sync.Mutex
	opts Options

	state        State
	sensitivity  float64
	startAt      stamp
	lastClickEnd stamp
	hasMoved     bool
	last         Sample

	// gestureID increments on every start. suppressOwner is the id of the
	// gesture whose hold release is suppressing native double clicks, or 0.
	gestureID     uint64
	suppressOwner uint64

	bounds surface.Rect
	cursor Cursor

	now   func() time.Time
	after func(time.Duration, func())
}

// NewRecognizer returns an idle recognizer.
func NewRecognizer(opts Options) *Recognizer {
	opts = opts.withDefaults()
	return &Recognizer{
		opts:        opts,
		sensitivity: opts.Sensitivity,
		now:         time.Now,
		after: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

// SetNowFunc overrides the server clock used for click timing when the page
// sends no timestamps.
func (g *Recognizer) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		g.mu.Lock()
		g.now = fn
		g.mu.Unlock()
	}
}

// SetAfterFunc overrides how deferred work is scheduled. fn must run f later,
// never synchronously.
func (g *Recognizer) SetAfterFunc(fn func(time.Duration, func())) {
	if fn != nil {
		g.mu.Lock()
		g.after = fn
		g.mu.Unlock()
	}
}

// SetSensitivity changes the multiplier used by the next move.
func (g *Recognizer) SetSensitivity(s float64) error {
	if !validSensitivity(s) {
		return ErrInvalidSensitivity
	}
	g.mu.Lock()
	g.sensitivity = s
	g.mu.Unlock()
	return nil
}

// Sensitivity returns the current multiplier.
func (g *Recognizer) Sensitivity() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sensitivity
}

// SetBounds sets the surface rectangle. An empty rect disables bounds checks.
func (g *Recognizer) SetBounds(r surface.Rect) {
	g.mu.Lock()
	g.bounds = surface.Normalize(r)
	g.mu.Unlock()
}

// State returns the current gesture state.
func (g *Recognizer) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Cursor returns the cursor indicator.
func (g *Recognizer) Cursor() Cursor {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cursor
}

// DoubleClickSuppressed reports whether a native double click would be ignored.
func (g *Recognizer) DoubleClickSuppressed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.suppressOwner != 0
}

// Start begins a gesture (mousedown or single-finger touchstart). Samples
// with non-finite coordinates are dropped.
func (g *Recognizer) Start(s Sample) []command.Command {
	if !s.finite() {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.stampLocked(s.TimestampMs)
	g.gestureID++
	id := g.gestureID
	held := g.state == ButtonHeld

	g.startAt = now
	g.hasMoved = false
	g.last = s
	g.showCursor(s)

	if held {
		// A start while already held keeps the button down; the flag follows the live gesture.
		if g.suppressOwner != 0 {
			g.suppressOwner = id
		}
		return nil
	}

	if now.since(g.lastClickEnd) < g.opts.HoldWindow {
		g.state = ButtonHeld
		g.suppressOwner = id
		return []command.Command{command.Press()}
	}

	g.state = Dragging
	return nil
}

// Move processes a pointer move while a gesture is active. Samples with
// non-finite coordinates are dropped.
func (g *Recognizer) Move(s Sample) []command.Command {
	if !s.finite() {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == Idle {
		return nil
	}
	if !g.bounds.Empty() && !surface.Contains(g.bounds, s.X, s.Y) {
		return g.leaveLocked()
	}

	g.showCursor(s)

	dx := scale(s.X-g.last.X, g.sensitivity)
	dy := scale(s.Y-g.last.Y, g.sensitivity)
	if dx == 0 && dy == 0 {
		return nil
	}

	g.last = s
	g.hasMoved = true
	return []command.Command{command.Move(dx, dy)}
}

// End finishes the gesture (mouseup or touchend) at the current server time.
func (g *Recognizer) End() []command.Command {
	return g.EndAt(0)
}

// EndAt finishes the gesture at page time tsMs. Zero falls back to the server
// clock.
func (g *Recognizer) EndAt(tsMs int64) []command.Command {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == Idle {
		return nil
	}

	now := g.stampLocked(tsMs)
	duration := now.since(g.startAt)

	var out []command.Command
	switch {
	case g.state == ButtonHeld:
		out = append(out, command.Release())
		g.lastClickEnd = now
		if owner := g.suppressOwner; owner != 0 {
			g.after(g.opts.SuppressDelay, func() { g.clearSuppression(owner) })
		}
	case !g.hasMoved && duration < g.opts.ClickMax:
		out = append(out, command.Click())
		g.lastClickEnd = now
	}

	g.state = Idle
	g.cursor.Visible = false
	return out
}

// Leave aborts the gesture when the pointer leaves the surface.
func (g *Recognizer) Leave() []command.Command {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.leaveLocked()
}

// Cancel aborts the gesture when the platform cancels the touch.
func (g *Recognizer) Cancel() []command.Command {
	return g.Leave()
}

// DoubleClick handles the platform's native double click event.
func (g *Recognizer) DoubleClick() []command.Command {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.suppressOwner != 0 {
		return nil
	}
	return []command.Command{command.Double()}
}

// leaveLocked releases a held button and returns to Idle. Caller holds mu.
func (g *Recognizer) leaveLocked() []command.Command {
	if g.state == Idle {
		return nil
	}
	var out []command.Command
	if g.state == ButtonHeld {
		out = append(out, command.Release())
		g.suppressOwner = 0
	}
	g.state = Idle
	g.cursor.Visible = false
	return out
}

// clearSuppression clears the flag only if the scheduling gesture still owns it.
func (g *Recognizer) clearSuppression(owner uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.suppressOwner == owner {
		g.suppressOwner = 0
	}
}

// showCursor moves the cursor indicator. Caller holds mu.
func (g *Recognizer) showCursor(s Sample) {
	x, y := s.X, s.Y
	if !g.bounds.Empty() {
		x, y = surface.Clamp(g.bounds, s.X, s.Y)
	}
	g.cursor = Cursor{X: x, Y: y, Visible: true}
}

// stampLocked reads the server clock and pairs it with the page time. Caller holds mu.
func (g *Recognizer) stampLocked(tsMs int64) stamp {
	st := stamp{server: g.now()}
	if tsMs > 0 {
		st.page = time.UnixMilli(tsMs)
	}
	return st
}

// scale applies sensitivity, rounds half away from zero and clamps to
// command.MaxMoveDelta.
func scale(raw, sensitivity float64) int {
	v := math.Round(raw * sensitivity)
	switch {
	case math.IsNaN(v):
		return 0
	case v > command.MaxMoveDelta:
		return command.MaxMoveDelta
	case v < -command.MaxMoveDelta:
		return -command.MaxMoveDelta
	}
	return int(v)
}

func validSensitivity(s float64) bool {
	return s > 0 && !math.IsInf(s, 0) && !math.IsNaN(s)
}
