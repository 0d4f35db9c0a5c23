package console

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/0x6d61/astra/internal/api"
)

// Session is the authenticated identity of this client instance.
type Session struct {
	// ID is minted per login and tags every request issued under it.
	ID      string
	User    string
	Role    api.Role
	Token   string
	Started time.Time
}

// Authenticator performs the login exchange.
type Authenticator interface {
	Login(ctx context.Context, creds api.Credentials) (*api.LoginResponse, error)
}

// SessionStore holds at most one session and notifies subscribers
// whenever it is replaced or cleared.
type SessionStore struct {
	auth   Authenticator
	logger *slog.Logger
	now    func() time.Time

	mu        sync.RWMutex
	current   *Session
	listeners []func(*Session)
}

// NewSessionStore returns an empty store.
func NewSessionStore(auth Authenticator, logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = discardLogger()
	}
	return &SessionStore{auth: auth, logger: logger, now: time.Now}
}

// OnChange registers fn to run after every login and logout. fn receives
// the new session, or nil after logout.
func (s *SessionStore) OnChange(fn func(*Session)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Login authenticates and, on success, replaces any prior session. On
// failure the store is left untouched.
func (s *SessionStore) Login(ctx context.Context, creds api.Credentials) (*Session, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	resp, err := s.auth.Login(ctx, creds)
	if err != nil {
		s.logger.Warn("login failed", "user", creds.Username, "error", err)
		return nil, err
	}

	sess := &Session{
		ID:      uuid.NewString(),
		User:    resp.User,
		Role:    resp.Role,
		Token:   resp.Token,
		Started: s.now(),
	}
	s.logger.Info("session established", "user", sess.User, "role", sess.Role, "session", sess.ID)

	s.replace(sess)
	out := *sess
	return &out, nil
}

// Logout clears the session. It reports whether a session existed.
func (s *SessionStore) Logout() bool {
	s.mu.RLock()
	had := s.current != nil
	s.mu.RUnlock()
	if had {
		s.logger.Info("session cleared")
	}
	s.replace(nil)
	return had
}

// Current returns a copy of the active session.
func (s *SessionStore) Current() (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, false
	}
	out := *s.current
	return &out, true
}

func (s *SessionStore) replace(sess *Session) {
	s.mu.Lock()
	s.current = sess
	listeners := append([]func(*Session){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		if sess == nil {
			fn(nil)
			continue
		}
		cp := *sess
		fn(&cp)
	}
}
