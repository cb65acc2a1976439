// Package command builds, parses, and emits executor text commands.
package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies a command verb.
type Kind int

const (
	// KindRaw is an executor verb passed through without interpretation.
	KindRaw Kind = iota
	// KindMouseMove moves the pointer by a relative delta.
	KindMouseMove
	// KindMouseLeft clicks the left button.
	KindMouseLeft
	// KindMouseDouble double clicks the left button.
	KindMouseDouble
	// KindMousePress holds the left button down.
	KindMousePress
	// KindMouseRelease releases the left button.
	KindMouseRelease
	// KindKeyPress holds a logical key down.
	KindKeyPress
	// KindKeyRelease releases a logical key.
	KindKeyRelease
	// KindKeyReleaseAll releases every held key.
	KindKeyReleaseAll
	// KindType types literal text.
	KindType
	// KindTypeLn types literal text followed by Enter.
	KindTypeLn
)

const (
	verbMouseMove     = "MOUSE_MOVE"
	verbMouseLeft     = "MOUSE_LEFT"
	verbMouseDouble   = "MOUSE_DOUBLE"
	verbMousePress    = "MOUSE_PRESS"
	verbMouseRelease  = "MOUSE_RELEASE"
	verbKeyPress      = "KEY_PRESS"
	verbKeyRelease    = "KEY_RELEASE"
	verbKeyReleaseAll = "KEY_RELEASE_ALL"
	verbType          = "TYPE"
	verbTypeLn        = "TYPELN"
)

// MaxMoveDelta bounds each axis of a MOUSE_MOVE built by this package.
const MaxMoveDelta = 32767

var (
	// ErrEmptyCommand is returned when parsing a blank command.
	ErrEmptyCommand = errors.New("command is empty")
	// ErrUnknownCommand is returned for verbs the executor does not understand.
	ErrUnknownCommand = errors.New("unknown command")
)

// Command is one logical executor action.
type Command struct {
	Kind Kind
	DX   int
	DY   int
	Key  string
	Text string
	Raw  string
}

// Move returns a relative pointer motion.
func Move(dx, dy int) Command { return Command{Kind: KindMouseMove, DX: dx, DY: dy} }

// Click returns a single left click.
func Click() Command { return Command{Kind: KindMouseLeft} }

// Double returns a double click.
func Double() Command { return Command{Kind: KindMouseDouble} }

// Press returns a left button hold.
func Press() Command { return Command{Kind: KindMousePress} }

// Release returns a left button release.
func Release() Command { return Command{Kind: KindMouseRelease} }

// KeyPress returns a press of the named logical key.
func KeyPress(name string) Command { return Command{Kind: KindKeyPress, Key: name} }

// KeyRelease returns a release of the named logical key.
func KeyRelease(name string) Command { return Command{Kind: KindKeyRelease, Key: name} }

// ReleaseAll returns the capture reset command.
func ReleaseAll() Command { return Command{Kind: KindKeyReleaseAll} }

// Type returns a text entry command.
func Type(text string) Command { return Command{Kind: KindType, Text: text} }

// TypeLn returns a text entry command followed by Enter.
func TypeLn(text string) Command { return Command{Kind: KindTypeLn, Text: text} }

// String renders the wire form of the command.
func (c Command) String() string {
	switch c.Kind {
	case KindMouseMove:
		return verbMouseMove + ":" + strconv.Itoa(c.DX) + "," + strconv.Itoa(c.DY)
	case KindMouseLeft:
		return verbMouseLeft
	case KindMouseDouble:
		return verbMouseDouble
	case KindMousePress:
		return verbMousePress
	case KindMouseRelease:
		return verbMouseRelease
	case KindKeyPress:
		return verbKeyPress + ":" + c.Key
	case KindKeyRelease:
		return verbKeyRelease + ":" + c.Key
	case KindKeyReleaseAll:
		return verbKeyReleaseAll
	case KindType:
		return verbType + ":" + c.Text
	case KindTypeLn:
		return verbTypeLn + ":" + c.Text
	default:
		return c.Raw
	}
}

// bareVerbs are executor verbs without parameters that pass through as KindRaw.
var bareVerbs = map[string]struct{}{
	"MOUSE_RIGHT": {}, "MOUSE_MIDDLE": {},
	"ENTER": {}, "ESC": {}, "TAB": {}, "BACKSPACE": {}, "DELETE": {},
	"UP": {}, "DOWN": {}, "LEFT": {}, "RIGHT": {},
	"GUI": {}, "ALT_TAB": {}, "CTRL_ALT_DEL": {}, "CTRL_ALT_T": {},
	"JIGGLE_OFF": {}, "PING": {}, "STATUS": {}, "LED_ON": {}, "LED_OFF": {},
	"F1": {}, "F2": {}, "F3": {}, "F4": {}, "F5": {}, "F6": {},
	"F7": {}, "F8": {}, "F9": {}, "F10": {}, "F11": {}, "F12": {},
}

// comboPrefixes are chord verbs like GUI_R or CTRL_C.
var comboPrefixes = []string{"GUI_", "CTRL_", "ALT_"}

// Parse decodes a wire command string.
func Parse(s string) (Command, error) {
	if strings.TrimSpace(s) == "" {
		return Command{}, ErrEmptyCommand
	}

	verb, arg, hasArg := strings.Cut(s, ":")
	if hasArg {
		switch verb {
		case verbType:
			return Type(arg), nil
		case verbTypeLn:
			return TypeLn(arg), nil
		}
	}

	s = strings.TrimSpace(s)
	verb, arg, hasArg = strings.Cut(s, ":")
	if !hasArg {
		return parseBare(s)
	}

	switch verb {
	case verbMouseMove:
		dx, dy, err := parseDelta(arg)
		if err != nil {
			return Command{}, err
		}
		return Move(dx, dy), nil
	case verbKeyPress, verbKeyRelease:
		name := strings.TrimSpace(arg)
		if name == "" {
			return Command{}, fmt.Errorf("%s requires a key name", verb)
		}
		if verb == verbKeyPress {
			return KeyPress(name), nil
		}
		return KeyRelease(name), nil
	case "SCROLL", "DELAY":
		if _, err := strconv.Atoi(strings.TrimSpace(arg)); err != nil {
			return Command{}, fmt.Errorf("%s must be an integer: %w", verb, err)
		}
		return Command{Kind: KindRaw, Raw: s}, nil
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, verb)
	}
}

// parseBare decodes a command without parameters.
func parseBare(s string) (Command, error) {
	switch s {
	case verbMouseLeft:
		return Click(), nil
	case verbMouseDouble:
		return Double(), nil
	case verbMousePress:
		return Press(), nil
	case verbMouseRelease:
		return Release(), nil
	case verbKeyReleaseAll:
		return ReleaseAll(), nil
	}
	if _, ok := bareVerbs[s]; ok {
		return Command{Kind: KindRaw, Raw: s}, nil
	}
	if strings.HasPrefix(s, "JIGGLE_ON") {
		return Command{Kind: KindRaw, Raw: s}, nil
	}
	for _, prefix := range comboPrefixes {
		if strings.HasPrefix(s, prefix) && len(s) > len(prefix) {
			return Command{Kind: KindRaw, Raw: s}, nil
		}
	}
	return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, s)
}

// parseDelta decodes the "dx,dy" argument of MOUSE_MOVE.
func parseDelta(arg string) (int, int, error) {
	xs, ys, ok := strings.Cut(arg, ",")
	if !ok {
		return 0, 0, fmt.Errorf("MOUSE_MOVE requires dx,dy")
	}
	dx, err := strconv.Atoi(strings.TrimSpace(xs))
	if err != nil {
		return 0, 0, fmt.Errorf("MOUSE_MOVE dx must be an integer: %w", err)
	}
	dy, err := strconv.Atoi(strings.TrimSpace(ys))
	if err != nil {
		return 0, 0, fmt.Errorf("MOUSE_MOVE dy must be an integer: %w", err)
	}
	return dx, dy, nil
}
