// Package keyboard maps captured key events to keyboard commands.
package keyboard

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/frudas24/hidbridge/internal/command"
)

// DefaultHistoryCap is how many key events the history keeps.
const DefaultHistoryCap = 100

var (
	// ErrUnknownModifier is returned when a toggle names something other than CTRL, ALT, SHIFT or GUI.
	ErrUnknownModifier = errors.New("unknown modifier")
	// ErrEmptyKey is returned when a hold button names no key.
	ErrEmptyKey = errors.New("key name is empty")
)

// EventType distinguishes key-down from key-up in the history.
type EventType string

const (
	// Down is a key press.
	Down EventType = "down"
	// Up is a key release.
	Up EventType = "up"
)

// RawKey is a key event as the page reported it.
type RawKey struct {
	Code  string
	Key   string
	Ctrl  bool
	Shift bool
	Alt   bool
	Meta  bool
}

// KeyEvent is one forwarded key event, kept for observability.
type KeyEvent struct {
	Type      EventType `json:"type"`
	Key       string    `json:"key"`
	Original  string    `json:"original"`
	Modifiers []string  `json:"modifiers,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Result tells the caller what to send and whether the page should swallow the event.
type Result struct {
	Commands  []command.Command
	Intercept bool
}

// Stats counts forwarded key events.
type Stats struct {
	Total   int `json:"total"`
	KeyDown int `json:"keydown"`
	KeyUp   int `json:"keyup"`
}

// Snapshot is a copy of the engine state for display.
type Snapshot struct {
	Enabled   bool     `json:"enabled"`
	Pressed   []string `json:"pressed"`
	Modifiers []string `json:"modifiers"`
	Stats     Stats    `json:"stats"`
}

// Engine tracks keyboard capture for one page.
type Engine struct {
	mu sync.Mutex

	enabled   bool
	pressed   map[string]struct{}
	modifiers map[string]bool
	history   []KeyEvent
	maxEvents int
	stats     Stats

	caps Capabilities
	now  func() time.Time
}

// NewEngine returns an engine with capture disabled. caps may be nil, which
// treats the device as a desktop.
func NewEngine(caps Capabilities) *Engine {
	return &Engine{
		pressed:   make(map[string]struct{}),
		modifiers: make(map[string]bool),
		maxEvents: DefaultHistoryCap,
		caps:      caps,
		now:       time.Now,
	}
}

// SetNowFunc overrides the clock used for history timestamps.
func (e *Engine) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		e.mu.Lock()
		e.now = fn
		e.mu.Unlock()
	}
}

// SetCapabilities replaces the platform capability query.
func (e *Engine) SetCapabilities(caps Capabilities) {
	e.mu.Lock()
	e.caps = caps
	e.mu.Unlock()
}

// Enabled reports whether capture is on.
func (e *Engine) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// Enable turns capture on. No command is sent.
func (e *Engine) Enable() {
	e.mu.Lock()
	e.enabled = true
	e.mu.Unlock()
}

// Disable turns capture off and releases everything held.
func (e *Engine) Disable() []command.Command {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disableLocked()
}

// SetCapture enables or disables capture.
func (e *Engine) SetCapture(on bool) []command.Command {
	if on {
		e.Enable()
		return nil
	}
	return e.Disable()
}

// Toggle flips capture.
func (e *Engine) Toggle() []command.Command {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.enabled {
		return e.disableLocked()
	}
	e.enabled = true
	return nil
}

// KeyDown handles a key-down event.
func (e *Engine) KeyDown(k RawKey) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.enabled {
		return Result{}
	}
	name, ok := Resolve(k.Code)
	if !ok {
		return Result{}
	}
	if name == escapeName {
		return Result{Commands: e.disableLocked()}
	}
	if _, held := e.pressed[name]; held {
		return Result{Intercept: true}
	}

	e.pressed[name] = struct{}{}
	e.record(Down, name, k)
	return Result{Commands: []command.Command{command.KeyPress(name)}, Intercept: true}
}

// KeyUp handles a key-up event.
func (e *Engine) KeyUp(k RawKey) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.enabled {
		return Result{}
	}
	name, ok := Resolve(k.Code)
	if !ok || name == escapeName {
		return Result{}
	}

	delete(e.pressed, name)
	e.record(Up, name, k)
	return Result{Commands: []command.Command{command.KeyRelease(name)}, Intercept: true}
}

// ToggleModifier flips a sticky modifier button.
func (e *Engine) ToggleModifier(name string) ([]command.Command, error) {
	mod := strings.ToUpper(strings.TrimSpace(name))
	if !IsModifier(mod) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModifier, name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.modifiers[mod] {
		delete(e.modifiers, mod)
		return []command.Command{command.KeyRelease(mod)}, nil
	}
	e.modifiers[mod] = true
	return []command.Command{command.KeyPress(mod)}, nil
}

// HoldKey presses a named key for a hold button. It is not tracked.
func (e *Engine) HoldKey(name string) ([]command.Command, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyKey
	}
	return []command.Command{command.KeyPress(name)}, nil
}

// ReleaseKey releases a named key for a hold button.
func (e *Engine) ReleaseKey(name string) ([]command.Command, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyKey
	}
	return []command.Command{command.KeyRelease(name)}, nil
}

// ReleaseAll sends a full reset and forgets pressed keys. Modifier toggles stay.
func (e *Engine) ReleaseAll() []command.Command {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pressed = make(map[string]struct{})
	return []command.Command{command.ReleaseAll()}
}

// Blur releases held keys when the page loses focus on a desktop device.
// Capture stays enabled.
func (e *Engine) Blur() []command.Command {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.enabled || len(e.pressed) == 0 {
		return nil
	}
	if e.caps != nil && e.caps.IsMobile() {
		return nil
	}
	return e.releaseLocked()
}

// Unload releases everything because the page is going away or input was
// cut off. Capture ends. Sticky modifiers toggled while capture was off are
// released too.
func (e *Engine) Unload() []command.Command {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.enabled {
		return e.disableLocked()
	}
	return e.releaseModifiersLocked()
}

// Pressed returns the held logical keys, sorted.
func (e *Engine) Pressed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pressedLocked()
}

// Modifiers returns the toggled modifiers in release order.
func (e *Engine) Modifiers() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.modifiersLocked()
}

// History returns forwarded key events, most recent first.
func (e *Engine) History() []KeyEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]KeyEvent, len(e.history))
	copy(out, e.history)
	return out
}

// Stats returns the event counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// ClearHistory empties the history and resets counters.
func (e *Engine) ClearHistory() {
	e.mu.Lock()
	e.history = nil
	e.stats = Stats{}
	e.mu.Unlock()
}

// Snapshot returns a copy of the display state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Enabled:   e.enabled,
		Pressed:   e.pressedLocked(),
		Modifiers: e.modifiersLocked(),
		Stats:     e.stats,
	}
}

func (e *Engine) disableLocked() []command.Command {
	if !e.enabled {
		return nil
	}
	e.enabled = false
	return e.releaseLocked()
}

// releaseLocked resets the remote keyboard and local tracking. Caller holds mu.
func (e *Engine) releaseLocked() []command.Command {
	out := []command.Command{command.ReleaseAll()}
	e.pressed = make(map[string]struct{})
	return append(out, e.releaseModifiersLocked()...)
}

// releaseModifiersLocked releases and forgets the sticky modifiers. Caller holds mu.
func (e *Engine) releaseModifiersLocked() []command.Command {
	var out []command.Command
	for _, mod := range modifierOrder {
		if e.modifiers[mod] {
			out = append(out, command.KeyRelease(mod))
		}
	}
	e.modifiers = make(map[string]bool)
	return out
}

func (e *Engine) record(t EventType, name string, k RawKey) {
	ev := KeyEvent{
		Type:      t,
		Key:       name,
		Original:  k.Key,
		Modifiers: heldModifiers(name, k),
		Timestamp: e.now(),
	}
	e.history = append([]KeyEvent{ev}, e.history...)
	if len(e.history) > e.maxEvents {
		e.history = e.history[:e.maxEvents]
	}

	e.stats.Total++
	if t == Down {
		e.stats.KeyDown++
	} else {
		e.stats.KeyUp++
	}
}

func (e *Engine) pressedLocked() []string {
	out := make([]string, 0, len(e.pressed))
	for k := range e.pressed {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (e *Engine) modifiersLocked() []string {
	out := make([]string, 0, len(e.modifiers))
	for _, mod := range modifierOrder {
		if e.modifiers[mod] {
			out = append(out, mod)
		}
	}
	return out
}

// heldModifiers lists the other modifiers down during an event, Ctrl, Shift, Alt, Meta.
func heldModifiers(name string, k RawKey) []string {
	var out []string
	if k.Ctrl && name != ModCtrl {
		out = append(out, "Ctrl")
	}
	if k.Shift && name != ModShift {
		out = append(out, "Shift")
	}
	if k.Alt && name != ModAlt {
		out = append(out, "Alt")
	}
	if k.Meta && name != ModGUI {
		out = append(out, "Meta")
	}
	return out
}
