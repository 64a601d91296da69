package attendu

import "sync"

// Session is the process-wide authentication state.
// When Authenticated is false, User is always nil.
type Session struct {
	Authenticated bool
	User          *UserSummary
}

// SessionStore holds the Session. Only the bootstrap, login and logout paths
// write it; the request client never does.
type SessionStore struct {
	mu      sync.RWMutex
	session Session
}

// NewSessionStore creates an unauthenticated store.
func NewSessionStore() *SessionStore {
	return &SessionStore{}
}

// Get returns a copy of the current session.
func (s *SessionStore) Get() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.session
	if out.User != nil {
		u := *out.User
		out.User = &u
	}
	return out
}

// setAuthenticated marks the session as authenticated. A nil user keeps the
// previously known user, since a refresh does not return one.
func (s *SessionStore) setAuthenticated(user *UserSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Authenticated = true
	if user != nil {
		u := *user
		s.session.User = &u
	}
}

func (s *SessionStore) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = Session{}
}
