package app

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/frudas24/hidbridge/internal/activity"
	"github.com/frudas24/hidbridge/internal/bridge"
	"github.com/frudas24/hidbridge/internal/command"
	"github.com/frudas24/hidbridge/internal/session"
	"github.com/frudas24/hidbridge/internal/transport"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const statusTimeout = 2 * time.Second

// RegisterRoutes wires API and static handlers onto the mux.
func (a *App) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/login", a.handleLogin)
	mux.HandleFunc("/logout", a.handleLogout)
	mux.HandleFunc("/api/state", a.handleState)
	mux.HandleFunc("/api/activity", a.handleActivity)
	mux.HandleFunc("/api/command", a.handleCommand)
	mux.Handle("/ws/control", a.Control())
	if s := a.Signaling(); s != nil {
		mux.Handle("/ws/signal", s)
	}
	mux.HandleFunc("/favicon.ico", handleFavicon)
	mux.Handle("/", staticFileServer(a.cfg.StaticDir))
}

type loginRequest struct {
	Password string `json:"password"`
}

type stateResponse struct {
	Session  session.Snapshot        `json:"session"`
	Bridges  []bridge.Snapshot       `json:"bridges"`
	Jiggler  transport.Jiggler       `json:"jiggler"`
	Activity int                     `json:"activity"`
	Device   *transport.DeviceStatus `json:"device,omitempty"`

	// DeviceError is set when ?device=1 asked for status and the executor failed.
	DeviceError string `json:"deviceError,omitempty"`
}

type commandResponse struct {
	Status  string `json:"status"`
	Command string `json:"command,omitempty"`
	Message string `json:"message,omitempty"`
}

// handleLogin authenticates the session.
func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	token, ok := a.session.Login(req.Password)
	if !ok {
		a.log.Warnf("login: rejected from %s", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if token != "" {
		http.SetCookie(w, sessionCookie(r, token, 0))
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleLogout revokes the caller's token and clears its cookie.
func (a *App) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if c, err := r.Cookie(session.CookieName); err == nil {
		a.session.Logout(c.Value)
	}
	http.SetCookie(w, sessionCookie(r, "", -1))
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// sessionCookie builds the login cookie. A negative maxAge deletes it.
func sessionCookie(r *http.Request, token string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     session.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	}
}

// handleState returns session, page and jiggler state. With ?device=1 it also
// asks the executor for its network status.
func (a *App) handleState(w http.ResponseWriter, r *http.Request) {
	if !a.requireAuth(w, r) {
		return
	}
	resp := stateResponse{
		Session:  a.session.Snapshot(),
		Bridges:  a.control.Bridges(),
		Jiggler:  a.control.Jiggler(),
		Activity: a.activity.Len(),
	}
	if r.URL.Query().Get("device") == "1" {
		ctx, cancel := context.WithTimeout(r.Context(), statusTimeout)
		defer cancel()
		status, err := a.executor.Status(ctx)
		if err != nil {
			resp.DeviceError = err.Error()
		} else {
			resp.Device = &status
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleActivity returns the activity log, most recent first.
func (a *App) handleActivity(w http.ResponseWriter, r *http.Request) {
	if !a.requireAuth(w, r) {
		return
	}
	entries := a.activity.Entries()
	if entries == nil {
		entries = []activity.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleCommand queues one raw command, mirroring the executor's own endpoint.
func (a *App) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !a.requireAuth(w, r) {
		return
	}
	if !a.session.InputEnabled() {
		writeJSON(w, http.StatusConflict, commandResponse{Status: "error", Message: "input disabled"})
		return
	}
	cmd, err := command.Parse(r.FormValue("cmd"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, commandResponse{Status: "error", Message: err.Error()})
		return
	}
	a.sink.Emit(cmd)
	writeJSON(w, http.StatusOK, commandResponse{Status: "ok", Command: cmd.String()})
}

// requireAuth returns false and writes an error if the request carries no live login.
func (a *App) requireAuth(w http.ResponseWriter, r *http.Request) bool {
	if !a.session.Authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// staticFileServer serves the web UI from disk.
func staticFileServer(staticDir string) http.Handler {
	if staticDir != "" {
		if info, err := os.Stat(staticDir); err == nil && info.IsDir() {
			return http.FileServer(http.Dir(staticDir))
		}
	}
	return http.NotFoundHandler()
}

// handleFavicon avoids noisy 404s for the default browser request.
func handleFavicon(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
