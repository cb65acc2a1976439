// Package control decodes page input messages and drives a bridge per page.
package control

import (
	"errors"
	"strings"

	"github.com/frudas24/hidbridge/internal/bridge"
	"github.com/frudas24/hidbridge/internal/gesture"
	"github.com/frudas24/hidbridge/internal/keyboard"
	"github.com/frudas24/hidbridge/internal/session"
	"github.com/frudas24/hidbridge/internal/surface"
	"github.com/frudas24/hidbridge/internal/transport"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// errMissingType is returned for messages without a "t" field.
var errMissingType = errors.New("message type is empty")

// Rect is a rectangle in page coordinates sent by the client UI.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Message is a control payload, shared by the websocket and the data channel.
type Message struct {
	T string `json:"t"`

	X       float64 `json:"x,omitempty"`
	Y       float64 `json:"y,omitempty"`
	Touches int     `json:"touches,omitempty"`
	TS      int64   `json:"ts,omitempty"`

	Code  string `json:"code,omitempty"`
	Key   string `json:"key,omitempty"`
	Ctrl  bool   `json:"ctrl,omitempty"`
	Shift bool   `json:"shift,omitempty"`
	Alt   bool   `json:"alt,omitempty"`
	Meta  bool   `json:"meta,omitempty"`

	Text    string                  `json:"text,omitempty"`
	Cmd     string                  `json:"cmd,omitempty"`
	Value   float64                 `json:"value,omitempty"`
	Rect    *Rect                   `json:"rect,omitempty"`
	Enabled *bool                   `json:"enabled,omitempty"`
	Device  *keyboard.DeviceProfile `json:"device,omitempty"`

	Mode     string `json:"mode,omitempty"`
	Diameter int    `json:"diameter,omitempty"`
	DelayMs  int    `json:"delayMs,omitempty"`
}

// Decode parses one control message.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, err
	}
	msg.T = strings.TrimSpace(msg.T)
	if msg.T == "" {
		return Message{}, errMissingType
	}
	return msg, nil
}

// Sample converts a pointer message.
func (m Message) Sample() gesture.Sample {
	return gesture.Sample{X: m.X, Y: m.Y, TimestampMs: m.TS}
}

// RawKey converts a key message.
func (m Message) RawKey() keyboard.RawKey {
	return keyboard.RawKey{
		Code:  m.Code,
		Key:   m.Key,
		Ctrl:  m.Ctrl,
		Shift: m.Shift,
		Alt:   m.Alt,
		Meta:  m.Meta,
	}
}

// Surface converts the rect field. A missing rect clears the bounds.
func (m Message) Surface() surface.Rect {
	if m.Rect == nil {
		return surface.Rect{}
	}
	return surface.Rect{X: m.Rect.X, Y: m.Rect.Y, W: m.Rect.W, H: m.Rect.H}
}

// Jiggler converts a jiggler message.
func (m Message) Jiggler() transport.Jiggler {
	return transport.Jiggler{
		Enabled:  m.Enabled != nil && *m.Enabled,
		Mode:     m.Mode,
		Diameter: m.Diameter,
		DelayMs:  m.DelayMs,
	}
}

// multiTouch reports a pointer message from more than one finger.
func (m Message) multiTouch() bool {
	return m.Touches > 1
}

// StateReply is sent back after state-changing messages. Intercept is only
// set in replies to keydown and keyup, telling the page whether to swallow
// the event.
type StateReply struct {
	T         string              `json:"t"`
	Session   session.Snapshot    `json:"session"`
	Bridge    bridge.Snapshot     `json:"bridge"`
	History   []keyboard.KeyEvent `json:"history,omitempty"`
	Jiggler   transport.Jiggler   `json:"jiggler"`
	Intercept *bool               `json:"intercept,omitempty"`
}

// ResultReply reports the outcome of an executor request or a rejected message.
type ResultReply struct {
	T     string `json:"t"`
	Op    string `json:"op"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}
