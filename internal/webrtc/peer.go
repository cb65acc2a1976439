// Package webrtc builds peer connections that carry control data channels.
package webrtc

import (
	"fmt"
	"strings"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
)

// ControlLabel is the data channel label pages open for input.
const ControlLabel = "control"

// Options configures the peer factory.
type Options struct {
	// ICEServers are STUN/TURN URLs. Empty means host candidates only.
	ICEServers []string
}

// Factory creates peer connections with default codecs and interceptors.
type Factory struct {
	api    *webrtc.API
	config webrtc.Configuration
	debug  bool
}

// NewFactory initializes a peer factory.
func NewFactory(opts Options) (*Factory, error) {
	media := &webrtc.MediaEngine{}
	if err := media.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	interceptors := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(media, interceptors); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	debug := debugEnabled()
	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(media),
		webrtc.WithInterceptorRegistry(interceptors),
		webrtc.WithSettingEngine(settingEngine(debug)),
	)

	var servers []webrtc.ICEServer
	for _, u := range opts.ICEServers {
		if u = strings.TrimSpace(u); u != "" {
			servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
		}
	}
	return &Factory{api: api, config: webrtc.Configuration{ICEServers: servers}, debug: debug}, nil
}

// NewPeer creates a new peer connection.
func (f *Factory) NewPeer() (*webrtc.PeerConnection, error) {
	return f.api.NewPeerConnection(f.config)
}
