package sessions

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUserRequired   = errors.New("user id is required")
	ErrInvalidSession = errors.New("invalid or expired session")
)

// Session binds an opaque token to a signed-in user.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// Change reports that a user gained their first session or lost their last one.
type Change struct {
	UserID   string
	SignedIn bool
}

// Service tracks live login sessions in memory.
type Service struct {
	mu       sync.RWMutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]Session
	perUser  map[string]int

	watchMu  sync.Mutex
	watchers map[uint64]func(Change)
	nextID   uint64
}

// NewService creates a sessions service. A zero ttl means sessions never expire.
func NewService(ttl time.Duration) *Service {
	return &Service{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]Session),
		perUser:  make(map[string]int),
		watchers: make(map[uint64]func(Change)),
	}
}

// SetClock replaces the time source; used by tests.
func (s *Service) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Login starts a session for userID.
func (s *Service) Login(userID string) (Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Session{}, ErrUserRequired
	}

	s.mu.Lock()
	now := s.now().UTC()
	session := Session{Token: uuid.NewString(), UserID: userID, CreatedAt: now}
	if s.ttl > 0 {
		session.ExpiresAt = now.Add(s.ttl)
	}
	s.sessions[session.Token] = session
	s.perUser[userID]++
	first := s.perUser[userID] == 1
	s.mu.Unlock()

	if first {
		s.notify(Change{UserID: userID, SignedIn: true})
	}
	return session, nil
}

// Resolve returns the session for token. Expired sessions are ended.
func (s *Service) Resolve(token string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, ErrInvalidSession
	}

	s.mu.RLock()
	session, ok := s.sessions[token]
	now := s.now()
	s.mu.RUnlock()

	if !ok {
		return Session{}, ErrInvalidSession
	}
	if !session.ExpiresAt.IsZero() && !now.Before(session.ExpiresAt) {
		s.end(token)
		return Session{}, ErrInvalidSession
	}
	return session, nil
}

// Logout ends the session for token. Unknown tokens are ignored.
func (s *Service) Logout(token string) {
	s.end(strings.TrimSpace(token))
}

// Watch registers fn for sign-in state changes and returns a cancel func.
// fn runs on the goroutine that caused the change.
func (s *Service) Watch(fn func(Change)) func() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	s.nextID++
	id := s.nextID
	s.watchers[id] = fn
	return func() {
		s.watchMu.Lock()
		delete(s.watchers, id)
		s.watchMu.Unlock()
	}
}

// Sweep ends every expired session and returns how many were ended.
func (s *Service) Sweep() int {
	s.mu.RLock()
	now := s.now()
	var expired []string
	for token, session := range s.sessions {
		if !session.ExpiresAt.IsZero() && !now.Before(session.ExpiresAt) {
			expired = append(expired, token)
		}
	}
	s.mu.RUnlock()

	for _, token := range expired {
		s.end(token)
	}
	return len(expired)
}

func (s *Service) end(token string) {
	s.mu.Lock()
	session, ok := s.sessions[token]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.sessions, token)
	s.perUser[session.UserID]--
	last := s.perUser[session.UserID] <= 0
	if last {
		delete(s.perUser, session.UserID)
	}
	s.mu.Unlock()

	if last {
		s.notify(Change{UserID: session.UserID, SignedIn: false})
	}
}

func (s *Service) notify(change Change) {
	s.watchMu.Lock()
	fns := make([]func(Change), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.watchMu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}
