package dashboard

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lox/climadash/internal/metrics"
)

const (
	MinPanels = 1
	MaxPanels = 3
)

// Session is one browser's dashboard state: how many panels it shows.
type Session struct {
	ID string

	mu       sync.Mutex
	panels   int
	lastSeen time.Time
}

func NewSession() *Session {
	return &Session{ID: uuid.NewString(), panels: MinPanels, lastSeen: time.Now()}
}

func (s *Session) Panels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.panels
}

// AddPanel adds a panel, up to MaxPanels, and returns the new count.
func (s *Session) AddPanel() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panels < MaxPanels {
		s.panels++
	}
	return s.panels
}

// RemovePanel removes the last panel, down to MinPanels, and returns the
// new count.
func (s *Session) RemovePanel() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panels > MinPanels {
		s.panels--
	}
	return s.panels
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

// Sessions holds sessions in memory, keyed by ID.
type Sessions struct {
	mu       sync.Mutex
	sessions map[string]*Session
	idle     time.Duration
	now      func() time.Time
}

// NewSessions returns a store that expires sessions idle for longer than
// idle. Zero keeps sessions until the process exits.
func NewSessions(idle time.Duration) *Sessions {
	return &Sessions{sessions: make(map[string]*Session), idle: idle, now: time.Now}
}

// Get returns the session for id, creating a fresh one when id is unknown.
// The second result reports whether a new session was created.
func (s *Sessions) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if sess, ok := s.sessions[id]; ok {
		sess.touch(now)
		return sess, false
	}
	sess := NewSession()
	sess.lastSeen = now
	s.sessions[sess.ID] = sess
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	return sess, true
}

// Expire drops idle sessions and returns how many were removed.
func (s *Sessions) Expire() int {
	if s.idle <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, sess := range s.sessions {
		if sess.idleSince(now) > s.idle {
			delete(s.sessions, id)
			removed++
		}
	}
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	return removed
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
