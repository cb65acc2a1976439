// Package app wires HTTP, signaling, and control state together.
package app

import (
	"context"
	"errors"

	"github.com/frudas24/hidbridge/internal/activity"
	"github.com/frudas24/hidbridge/internal/bridge"
	"github.com/frudas24/hidbridge/internal/config"
	"github.com/frudas24/hidbridge/internal/control"
	"github.com/frudas24/hidbridge/internal/gesture"
	"github.com/frudas24/hidbridge/internal/prefs"
	"github.com/frudas24/hidbridge/internal/session"
	"github.com/frudas24/hidbridge/internal/signaling"
	"github.com/frudas24/hidbridge/internal/transport"
	"github.com/frudas24/hidbridge/internal/webrtc"
	"github.com/kataras/golog"
)

// Deps are the runtime collaborators an App needs.
type Deps struct {
	Session  *session.Session
	Sink     bridge.Sink
	Executor transport.Executor
	Activity *activity.Log
	// Peers creates WebRTC peers for /ws/signal. Nil disables signaling.
	Peers signaling.PeerFactory
	// Prefs are the preferences loaded at startup.
	Prefs  prefs.Prefs
	Logger *golog.Logger
}

// App coordinates the HTTP API and websocket servers.
type App struct {
	cfg       config.Config
	session   *session.Session
	sink      bridge.Sink
	executor  transport.Executor
	activity  *activity.Log
	log       *golog.Logger
	signaling *signaling.Server
	control   *control.Server
}

// New creates a new application with its dependencies wired.
func New(cfg config.Config, deps Deps) (*App, error) {
	if deps.Session == nil {
		return nil, errors.New("session is required")
	}
	if deps.Sink == nil {
		return nil, errors.New("command sink is required")
	}
	if deps.Executor == nil {
		return nil, errors.New("executor is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = golog.Default
	}
	if deps.Activity == nil {
		deps.Activity = activity.New(activity.DefaultCapacity)
	}

	a := &App{
		cfg:      cfg,
		session:  deps.Session,
		sink:     deps.Sink,
		executor: deps.Executor,
		activity: deps.Activity,
		log:      logger,
	}

	var save func(prefs.Prefs) error
	if cfg.PrefsPath != "" {
		save = func(p prefs.Prefs) error { return prefs.Save(cfg.PrefsPath, p) }
	}
	a.control = control.NewServer(control.Options{
		Session:  deps.Session,
		Sink:     deps.Sink,
		Executor: deps.Executor,
		Activity: deps.Activity,
		Gesture: gesture.Options{
			HoldWindow:    cfg.HoldWindow,
			ClickMax:      cfg.ClickMax,
			SuppressDelay: cfg.SuppressDelay,
		},
		Jiggler:     deps.Prefs.Jiggler,
		SavePrefs:   save,
		ExecTimeout: cfg.ExecutorTimeout,
		Logger:      logger.Child("[control]"),
	})

	if deps.Peers != nil {
		a.signaling = signaling.NewServer(deps.Peers, a.openInput, webrtc.ControlLabel,
			deps.Session.Authorized, logger.Child("[signal]"))
	}
	return a, nil
}

// openInput adapts control channels to the signaling opener. A refused open
// must surface as an untyped nil.
func (a *App) openInput(source string, send func([]byte) error) signaling.InputChannel {
	ch := a.control.Open(source, send)
	if ch == nil {
		return nil
	}
	return ch
}

// Control returns the control websocket handler.
func (a *App) Control() *control.Server {
	return a.control
}

// Signaling returns the signaling websocket handler, or nil when disabled.
func (a *App) Signaling() *signaling.Server {
	return a.signaling
}

// Stop closes every page and waits for executor requests still in flight.
func (a *App) Stop(ctx context.Context) error {
	if a.signaling != nil {
		a.signaling.CloseAll()
	}
	return a.control.Shutdown(ctx)
}
