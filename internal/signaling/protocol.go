// Package signaling negotiates WebRTC peers whose data channel carries control input.
package signaling

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/pion/webrtc/v3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Message is a websocket signaling payload.
type Message struct {
	T         string                   `json:"t"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
	Error     string                   `json:"error,omitempty"`
}
