package server

import (
	"sync"
	"time"

	"github.com/perbu/promptforge/pkg/forge"
	"go.uber.org/zap"
)

type session struct {
	history  *forge.History
	lastSeen time.Time
}

// Sessions maps session ids to their run history. A session ends when it
// has been idle for longer than the TTL, or when it is the least recently
// used one and the table is full. Its history is discarded with it.
type Sessions struct {
	mu        sync.Mutex
	sessions  map[string]*session
	ttl       time.Duration
	limit     int
	lastSweep time.Time
	now       func() time.Time
	logger    *zap.Logger
}

// NewSessions returns an empty table. A zero ttl or limit disables that
// bound.
func NewSessions(ttl time.Duration, limit int, logger *zap.Logger) *Sessions {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sessions{
		sessions: make(map[string]*session),
		ttl:      ttl,
		limit:    limit,
		now:      time.Now,
		logger:   logger,
	}
}

// Get returns the history for id, creating it on first use.
func (s *Sessions) Get(id string) *forge.History {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.maybeSweep(now)

	sess, ok := s.sessions[id]
	if !ok {
		if s.limit > 0 && len(s.sessions) >= s.limit {
			s.evictOldest()
		}
		sess = &session{history: &forge.History{}}
		s.sessions[id] = sess
	}
	sess.lastSeen = now
	return sess.history
}

// Lookup returns the history for id without creating it. An expired
// session is reported as absent.
func (s *Sessions) Lookup(id string) (*forge.History, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if s.expired(sess, now) {
		delete(s.sessions, id)
		return nil, false
	}
	sess.lastSeen = now
	return sess.history, true
}

// Sweep drops every session idle for longer than the TTL and returns how
// many were removed.
func (s *Sessions) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweep(s.now())
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Sessions) expired(sess *session, now time.Time) bool {
	return s.ttl > 0 && now.Sub(sess.lastSeen) > s.ttl
}

// maybeSweep runs a sweep at most once per half TTL. Caller holds mu.
func (s *Sessions) maybeSweep(now time.Time) {
	if s.ttl <= 0 || now.Sub(s.lastSweep) < s.ttl/2 {
		return
	}
	s.sweep(now)
}

// Caller holds mu.
func (s *Sessions) sweep(now time.Time) int {
	s.lastSweep = now
	removed := 0
	for id, sess := range s.sessions {
		if s.expired(sess, now) {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug("expired sessions", zap.Int("removed", removed), zap.Int("remaining", len(s.sessions)))
	}
	return removed
}

// Caller holds mu.
func (s *Sessions) evictOldest() {
	var oldestID string
	var oldest time.Time
	found := false
	for id, sess := range s.sessions {
		if !found || sess.lastSeen.Before(oldest) {
			oldestID, oldest, found = id, sess.lastSeen, true
		}
	}
	if found {
		delete(s.sessions, oldestID)
		s.logger.Debug("evicted session", zap.String("session", oldestID))
	}
}
