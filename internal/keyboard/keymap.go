package keyboard

import (
	"strconv"
	"strings"
)

// Logical names for the modifier keys.
const (
	ModCtrl  = "CTRL"
	ModAlt   = "ALT"
	ModShift = "SHIFT"
	ModGUI   = "GUI"
)

// escapeName is the logical name of the capture kill switch.
const escapeName = "ESC"

// modifierOrder is the order modifiers are released in.
var modifierOrder = []string{ModCtrl, ModAlt, ModShift, ModGUI}

// namedKeys maps physical key codes to logical names.
var namedKeys = map[string]string{
	"ControlLeft":  ModCtrl,
	"ControlRight": ModCtrl,
	"ShiftLeft":    ModShift,
	"ShiftRight":   ModShift,
	"AltLeft":      ModAlt,
	"AltRight":     ModAlt,
	"MetaLeft":     ModGUI,
	"MetaRight":    ModGUI,
	"Enter":        "ENTER",
	"NumpadEnter":  "ENTER",
	"Escape":       escapeName,
	"Tab":          "TAB",
	"Backspace":    "BACKSPACE",
	"Delete":       "DELETE",
	"ArrowUp":      "UP",
	"ArrowDown":    "DOWN",
	"ArrowLeft":    "LEFT",
	"ArrowRight":   "RIGHT",
	"Home":         "HOME",
	"End":          "END",
	"PageUp":       "PAGEUP",
	"PageDown":     "PAGEDOWN",
	"Insert":       "INSERT",
	"CapsLock":     "CAPSLOCK",
	"Space":        "SPACE",
}

func init() {
	for i := 1; i <= 12; i++ {
		name := "F" + strconv.Itoa(i)
		namedKeys[name] = name
	}
}

var numpadOps = map[string]string{
	"Add":      "+",
	"Subtract": "-",
	"Multiply": "*",
	"Divide":   "/",
	"Decimal":  ".",
}

var punctuation = map[string]string{
	"Minus":        "-",
	"Equal":        "=",
	"BracketLeft":  "[",
	"BracketRight": "]",
	"Backslash":    `\`,
	"Semicolon":    ";",
	"Quote":        "'",
	"Comma":        ",",
	"Period":       ".",
	"Slash":        "/",
	"Backquote":    "`",
}

// Resolve maps a physical key code (KeyboardEvent.code) to its logical name.
func Resolve(code string) (string, bool) {
	if name, ok := namedKeys[code]; ok {
		return name, true
	}
	return codeToChar(code)
}

// codeToChar maps letter, digit, numpad and punctuation codes to their character.
func codeToChar(code string) (string, bool) {
	switch {
	case strings.HasPrefix(code, "Key"):
		rest := code[len("Key"):]
		if len(rest) == 1 && rest[0] >= 'A' && rest[0] <= 'Z' {
			return strings.ToLower(rest), true
		}
		return "", false
	case strings.HasPrefix(code, "Digit"):
		return singleDigit(code[len("Digit"):])
	case strings.HasPrefix(code, "Numpad"):
		rest := code[len("Numpad"):]
		if op, ok := numpadOps[rest]; ok {
			return op, true
		}
		return singleDigit(rest)
	}
	ch, ok := punctuation[code]
	return ch, ok
}

func singleDigit(s string) (string, bool) {
	if len(s) == 1 && s[0] >= '0' && s[0] <= '9' {
		return s, true
	}
	return "", false
}

// IsModifier reports whether name is one of CTRL, ALT, SHIFT, GUI.
func IsModifier(name string) bool {
	for _, m := range modifierOrder {
		if m == name {
			return true
		}
	}
	return false
}
