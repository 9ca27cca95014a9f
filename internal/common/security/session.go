package security

import "sync"

// Identity is the actor attached to a run, a stop or an audit entry.
type Identity struct {
	UserID     string `json:"id"`
	Username   string `json:"username"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	Department string `json:"department,omitempty"`
}

type SessionState int

const (
	SessionUnauthenticated SessionState = iota
	SessionAuthenticated
	SessionCleared
)

// Session is the per-request auth context. It starts unauthenticated, may be
// authenticated once, and can be cleared; a cleared session never
// authenticates again.
type Session struct {
	mu       sync.RWMutex
	state    SessionState
	identity Identity
}

func NewSession() *Session {
	return &Session{state: SessionUnauthenticated}
}

// NewAuthenticatedSession is a shortcut for NewSession followed by Authenticate.
func NewAuthenticatedSession(id Identity) *Session {
	s := NewSession()
	s.Authenticate(id)
	return s
}

func (s *Session) Authenticate(id Identity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SessionCleared || id.UserID == "" {
		return false
	}
	s.identity = id
	s.state = SessionAuthenticated
	return true
}

func (s *Session) Clear() {
	s.mu.Lock()
	s.identity = Identity{}
	s.state = SessionCleared
	s.mu.Unlock()
}

func (s *Session) State() SessionState {
	if s == nil {
		return SessionUnauthenticated
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) IsAuthenticated() bool {
	return s.State() == SessionAuthenticated
}

// CurrentUser returns the identity when the session is authenticated.
func (s *Session) CurrentUser() (Identity, bool) {
	if s == nil {
		return Identity{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != SessionAuthenticated {
		return Identity{}, false
	}
	return s.identity, true
}
