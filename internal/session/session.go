// Package session holds runtime state shared by every connected page.
package session

import (
	"crypto/subtle"
	"math"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// CookieName is the cookie carrying a login token.
const CookieName = "hidbridge_session"

// maxTokens bounds live logins. The oldest is dropped when a new login
// would exceed it.
const maxTokens = 32

// Snapshot represents a read-only view of the current session state.
type Snapshot struct {
	PasswordMode bool    `json:"passwordMode"`
	InputEnabled bool    `json:"inputEnabled"`
	Sensitivity  float64 `json:"sensitivity"`
}

// Session holds operator state.
type Session struct {
	mu           sync.RWMutex
	password     string
	passwordMode bool
	tokens       []string
	inputEnabled bool
	sensitivity  float64
}

// New returns a session guarded by password. With passwordMode off every
// request is authorized.
func New(password string, passwordMode bool) *Session {
	return &Session{
		password:     password,
		passwordMode: passwordMode,
		inputEnabled: true,
		sensitivity:  1,
	}
}

// Login validates the password and issues a token for the caller. A wrong
// password leaves other logins untouched. With password mode off it returns
// an empty token and true.
func (s *Session) Login(pass string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.passwordMode {
		return "", true
	}
	if pass == "" || subtle.ConstantTimeCompare([]byte(pass), []byte(s.password)) != 1 {
		return "", false
	}
	token := uuid.NewString()
	if len(s.tokens) >= maxTokens {
		s.tokens = s.tokens[1:]
	}
	s.tokens = append(s.tokens, token)
	return token, true
}

// Logout revokes one token.
func (s *Session) Logout(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.tokens {
		if t == token {
			s.tokens = append(s.tokens[:i], s.tokens[i+1:]...)
			return
		}
	}
}

// Valid reports whether token belongs to a live login.
func (s *Session) Valid(token string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.passwordMode {
		return true
	}
	if token == "" {
		return false
	}
	for _, t := range s.tokens {
		if subtle.ConstantTimeCompare([]byte(t), []byte(token)) == 1 {
			return true
		}
	}
	return false
}

// Authorized reports whether the request carries a live login cookie.
func (s *Session) Authorized(r *http.Request) bool {
	if !s.PasswordMode() {
		return true
	}
	c, err := r.Cookie(CookieName)
	if err != nil {
		return false
	}
	return s.Valid(c.Value)
}

// PasswordMode reports whether a password is required.
func (s *Session) PasswordMode() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.passwordMode
}

// SetInputEnabled toggles whether inputs are forwarded to the executor.
func (s *Session) SetInputEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputEnabled = enabled
}

// InputEnabled reports whether inputs are forwarded to the executor.
func (s *Session) InputEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inputEnabled
}

// SetSensitivity stores the sensitivity new pages start with. Invalid values are ignored.
func (s *Session) SetSensitivity(v float64) bool {
	if v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sensitivity = v
	return true
}

// Sensitivity returns the shared sensitivity.
func (s *Session) Sensitivity() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sensitivity
}

// Snapshot returns a copy of the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		PasswordMode: s.passwordMode,
		InputEnabled: s.inputEnabled,
		Sensitivity:  s.sensitivity,
	}
}
