package signaling

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kataras/golog"
	"github.com/pion/webrtc/v3"
)

// PeerFactory creates peer connections.
type PeerFactory interface {
	NewPeer() (*webrtc.PeerConnection, error)
}

// Server handles WebRTC signaling over WebSocket. Each socket owns one peer.
type Server struct {
	upgrader websocket.Upgrader
	peers    PeerFactory
	open     Opener
	authFn   func(*http.Request) bool
	label    string
	log      *golog.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]*link
}

// link is one signaling socket and its peer.
type link struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	peer    *webrtc.PeerConnection

	mu     sync.Mutex
	inputs []*dataInput
}

// NewServer creates a signaling server. Data channels named label are bound to
// input channels from open. authFn checks each request before the upgrade.
func NewServer(peers PeerFactory, open Opener, label string, authFn func(*http.Request) bool, logger *golog.Logger) *Server {
	if logger == nil {
		logger = golog.Default
	}
	return &Server{
		peers:  peers,
		open:   open,
		authFn: authFn,
		label:  label,
		log:    logger,
		conns:  make(map[*websocket.Conn]*link),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and starts the signaling loop.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.authFn != nil && !s.authFn(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	peer, err := s.peers.NewPeer()
	if err != nil {
		s.log.Warnf("signaling: new peer: %v", err)
		s.rejectConn(conn, "peer unavailable")
		return
	}
	l := &link{conn: conn, peer: peer}
	s.acceptConn(l)
	defer s.cleanupConn(l)

	peer.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		candidate := c.ToJSON()
		_ = l.send(Message{T: "ice", Candidate: &candidate})
	})
	peer.OnDataChannel(func(d *webrtc.DataChannel) {
		s.bindDataChannel(l, d)
	})
	peer.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.log.Debugf("signaling: peer state %s", state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			l.stopInputs()
		}
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Debugf("signaling: skip message: %v", err)
			continue
		}
		if err := s.handleMessage(l, msg); err != nil {
			s.log.Warnf("signaling: %s: %v", msg.T, err)
			_ = l.send(Message{T: "error", Error: err.Error()})
			return
		}
	}
}

// CloseAll closes every signaling socket and its peer.
func (s *Server) CloseAll() {
	s.mu.Lock()
	links := make([]*link, 0, len(s.conns))
	for _, l := range s.conns {
		links = append(links, l)
	}
	s.mu.Unlock()
	for _, l := range links {
		s.cleanupConn(l)
	}
}

// Count returns the number of live signaling sockets.
func (s *Server) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// bindDataChannel wires a page's control data channel to an input channel.
func (s *Server) bindDataChannel(l *link, d *webrtc.DataChannel) {
	if d.Label() != s.label {
		s.log.Debugf("signaling: ignore data channel %q", d.Label())
		return
	}
	in := newDataInput(s.open, func(data []byte) error {
		return d.SendText(string(data))
	})
	l.mu.Lock()
	l.inputs = append(l.inputs, in)
	l.mu.Unlock()

	d.OnOpen(func() {
		if !in.start() {
			_ = d.Close()
		}
	})
	d.OnMessage(func(msg webrtc.DataChannelMessage) {
		if err := in.handle(msg.Data); err != nil {
			s.log.Debugf("signaling: data channel write: %v", err)
		}
	})
	d.OnClose(in.stop)
}

// acceptConn registers a new link.
func (s *Server) acceptConn(l *link) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[l.conn] = l
}

// rejectConn sends a policy violation close and closes the socket.
func (s *Server) rejectConn(conn *websocket.Conn, reason string) {
	message := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(1*time.Second))
	_ = conn.Close()
}

// cleanupConn releases inputs and closes the peer and socket.
func (s *Server) cleanupConn(l *link) {
	s.mu.Lock()
	delete(s.conns, l.conn)
	s.mu.Unlock()

	l.stopInputs()
	_ = l.peer.Close()
	_ = l.conn.Close()
}

// handleMessage dispatches signaling messages.
func (s *Server) handleMessage(l *link, msg Message) error {
	switch msg.T {
	case "offer":
		return s.handleOffer(l, msg.SDP)
	case "ice":
		return s.handleICE(l.peer, msg.Candidate)
	default:
		return nil
	}
}

// handleOffer processes an SDP offer and replies with an answer.
func (s *Server) handleOffer(l *link, sdp string) error {
	if sdp == "" {
		return fmt.Errorf("empty offer")
	}
	peer := l.peer
	if err := peer.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  sdp,
	}); err != nil {
		return err
	}
	answer, err := peer.CreateAnswer(nil)
	if err != nil {
		return err
	}
	gatherComplete := webrtc.GatheringCompletePromise(peer)
	if err := peer.SetLocalDescription(answer); err != nil {
		return err
	}
	<-gatherComplete
	local := peer.LocalDescription()
	if local == nil {
		return fmt.Errorf("missing local description")
	}
	return l.send(Message{T: "answer", SDP: local.SDP})
}

// handleICE adds a remote ICE candidate.
func (s *Server) handleICE(peer *webrtc.PeerConnection, candidate *webrtc.ICECandidateInit) error {
	if candidate == nil {
		return nil
	}
	return peer.AddICECandidate(*candidate)
}

// send writes a message to the socket.
func (l *link) send(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return l.conn.WriteMessage(websocket.TextMessage, data)
}

// stopInputs closes every input channel bound to this peer.
func (l *link) stopInputs() {
	l.mu.Lock()
	inputs := l.inputs
	l.mu.Unlock()
	for _, in := range inputs {
		in.stop()
	}
}
