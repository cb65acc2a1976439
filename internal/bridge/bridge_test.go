package bridge

import (
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/frudas24/hidbridge/internal/command"
	"github.com/frudas24/hidbridge/internal/gesture"
	"github.com/frudas24/hidbridge/internal/keyboard"
	"github.com/frudas24/hidbridge/internal/testutil"
	"github.com/kataras/golog"
)

type harness struct {
	b       *Bridge
	sink    *testutil.FakeSink
	now     *time.Time
	input   *atomic.Bool
	pending []func()
}

func newHarness() *harness {
	h := &harness{sink: &testutil.FakeSink{}, input: &atomic.Bool{}}
	now := time.Unix(1000, 0)
	h.now = &now
	h.input.Store(true)
	h.b = New(h.sink, Options{
		Logger:       golog.New().SetLevel("disable"),
		InputEnabled: h.input.Load,
		Now:          func() time.Time { return *h.now },
		After:        func(_ time.Duration, fn func()) { h.pending = append(h.pending, fn) },
	})
	return h
}

func (h *harness) advance(d time.Duration) { *h.now = h.now.Add(d) }

func (h *harness) expect(t *testing.T, want ...string) {
	t.Helper()
	got := strings.Join(h.sink.Commands(), " ")
	if w := strings.Join(want, " "); got != w {
		t.Fatalf("expected %q, got %q", w, got)
	}
	h.sink.Reset()
}

// TestBridge_DoubleTapDrag verifies tap, then tap-and-drag, holds and releases the button.
func TestBridge_DoubleTapDrag(t *testing.T) {
	h := newHarness()
	h.b.PointerStart(gesture.Sample{X: 10, Y: 10})
	h.advance(50 * time.Millisecond)
	h.b.PointerEnd(0)
	h.expect(t, "MOUSE_LEFT")

	h.advance(100 * time.Millisecond)
	h.b.PointerStart(gesture.Sample{X: 10, Y: 10})
	h.b.PointerMove(gesture.Sample{X: 15, Y: 12})
	h.b.PointerMove(gesture.Sample{X: 20, Y: 20})
	h.b.DoubleClick()
	h.b.PointerEnd(0)
	h.expect(t, "MOUSE_PRESS", "MOUSE_MOVE:5,2", "MOUSE_MOVE:5,8", "MOUSE_RELEASE")

	if !h.b.Snapshot().DoubleClickSuppressed {
		t.Fatalf("expected suppression right after hold release")
	}
	for _, fn := range h.pending {
		fn()
	}
	h.b.DoubleClick()
	h.expect(t, "MOUSE_DOUBLE")
}

// TestBridge_KillSwitchReleasesHeldButton verifies disabling input leaves the gesture safely.
func TestBridge_KillSwitchReleasesHeldButton(t *testing.T) {
	h := newHarness()
	h.b.PointerStart(gesture.Sample{})
	h.b.PointerEnd(0)
	h.b.PointerStart(gesture.Sample{})
	h.sink.Reset()

	h.input.Store(false)
	h.b.PointerMove(gesture.Sample{X: 30, Y: 30})
	h.expect(t, "MOUSE_RELEASE")

	h.b.PointerStart(gesture.Sample{})
	h.b.PointerEnd(0)
	h.expect(t)
	if got := h.b.Snapshot().Gesture; got != "idle" {
		t.Fatalf("expected idle, got %s", got)
	}
}

// TestBridge_KillSwitchDisablesCapture verifies key events force capture off while input is disabled.
func TestBridge_KillSwitchDisablesCapture(t *testing.T) {
	h := newHarness()
	h.b.SetCapture(true)
	h.b.KeyDown(keyboard.RawKey{Code: "KeyA"})
	h.expect(t, "KEY_PRESS:a")

	h.input.Store(false)
	if h.b.KeyDown(keyboard.RawKey{Code: "KeyB"}) {
		t.Fatalf("expected event not intercepted")
	}
	h.expect(t, "KEY_RELEASE_ALL")

	h.b.SetCapture(true)
	if h.b.Snapshot().Keyboard.Enabled {
		t.Fatalf("expected capture refused while input disabled")
	}
}

// TestBridge_CloseReleasesEverything verifies unload releases the button and keys, then goes inert.
func TestBridge_CloseReleasesEverything(t *testing.T) {
	h := newHarness()
	h.b.SetCapture(true)
	if err := h.b.ToggleModifier("shift"); err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	h.b.KeyDown(keyboard.RawKey{Code: "KeyX"})
	h.b.PointerStart(gesture.Sample{})
	h.b.PointerEnd(0)
	h.b.PointerStart(gesture.Sample{})
	h.sink.Reset()

	h.b.Close()
	h.expect(t, "MOUSE_RELEASE", "KEY_RELEASE_ALL", "KEY_RELEASE:SHIFT")

	h.b.Close()
	h.b.PointerStart(gesture.Sample{})
	h.b.KeyDown(keyboard.RawKey{Code: "KeyX"})
	h.b.TypeText("hi", false)
	if err := h.b.Send("MOUSE_LEFT"); err != nil {
		t.Fatalf("expected nil error after close, got %v", err)
	}
	h.expect(t)
	if !h.b.Closed() {
		t.Fatalf("expected closed bridge")
	}
}

// TestBridge_HaltKeepsBridgeOpen verifies halt releases state and later events still work.
func TestBridge_HaltKeepsBridgeOpen(t *testing.T) {
	h := newHarness()
	h.b.SetCapture(true)
	h.b.PointerStart(gesture.Sample{})
	h.b.PointerEnd(0)
	h.b.PointerStart(gesture.Sample{})
	h.sink.Reset()

	h.b.Halt()
	h.expect(t, "MOUSE_RELEASE", "KEY_RELEASE_ALL")
	h.b.Halt()
	h.expect(t)

	h.b.TypeText("ok", false)
	h.expect(t, "TYPE:ok")
}

// TestBridge_CloseReleasesModifierWithoutCapture verifies a modifier toggled with capture off is released on close.
func TestBridge_CloseReleasesModifierWithoutCapture(t *testing.T) {
	h := newHarness()
	if err := h.b.ToggleModifier("CTRL"); err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	h.expect(t, "KEY_PRESS:CTRL")

	h.b.Close()
	h.expect(t, "KEY_RELEASE:CTRL")
}

// TestBridge_HaltReleasesModifierAfterKillSwitch verifies halt releases a sticky modifier once input is cut off.
func TestBridge_HaltReleasesModifierAfterKillSwitch(t *testing.T) {
	h := newHarness()
	if err := h.b.ToggleModifier("SHIFT"); err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	h.expect(t, "KEY_PRESS:SHIFT")

	h.input.Store(false)
	h.b.Halt()
	h.expect(t, "KEY_RELEASE:SHIFT")
	if m := h.b.Snapshot().Keyboard.Modifiers; len(m) != 0 {
		t.Fatalf("expected no modifiers after halt, got %v", m)
	}
}

// TestBridge_TypeText verifies TYPE and TYPELN, and that empty text is ignored.
func TestBridge_TypeText(t *testing.T) {
	h := newHarness()
	h.b.TypeText("", false)
	h.b.TypeText("   ", true)
	h.expect(t)

	h.b.TypeText("hello world", false)
	h.b.TypeText("ls -la", true)
	h.expect(t, "TYPE:hello world", "TYPELN:ls -la")
}

// TestBridge_SendValidates verifies raw commands go through the parser.
func TestBridge_SendValidates(t *testing.T) {
	h := newHarness()
	if err := h.b.Send("GUI_R"); err != nil {
		t.Fatalf("expected GUI_R accepted, got %v", err)
	}
	if err := h.b.Send("MOUSE_MOVE:3,-4"); err != nil {
		t.Fatalf("expected move accepted, got %v", err)
	}
	h.expect(t, "GUI_R", "MOUSE_MOVE:3,-4")

	if err := h.b.Send("REBOOT_NOW"); !errors.Is(err, command.ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
	if err := h.b.Send(""); !errors.Is(err, command.ErrEmptyCommand) {
		t.Fatalf("expected ErrEmptyCommand, got %v", err)
	}
	h.expect(t)
}

// TestBridge_SensitivityAndBlur verifies settings pass through and blur honors the device.
func TestBridge_SensitivityAndBlur(t *testing.T) {
	h := newHarness()
	if err := h.b.SetSensitivity(0); !errors.Is(err, gesture.ErrInvalidSensitivity) {
		t.Fatalf("expected ErrInvalidSensitivity, got %v", err)
	}
	if err := h.b.SetSensitivity(2); err != nil {
		t.Fatalf("expected sensitivity accepted, got %v", err)
	}
	if got := h.b.Snapshot().Sensitivity; got != 2 {
		t.Fatalf("expected 2, got %v", got)
	}

	h.b.SetDevice(keyboard.DeviceProfile{UserAgent: "Android"})
	h.b.SetCapture(true)
	h.b.KeyDown(keyboard.RawKey{Code: "KeyA"})
	h.sink.Reset()
	h.b.Blur()
	h.expect(t)

	h.b.SetDevice(keyboard.DeviceProfile{ViewportWidth: 1440})
	h.b.Blur()
	h.expect(t, "KEY_RELEASE_ALL")
}
