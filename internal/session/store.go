// Package session keeps the per-editor "current result" slot and the last
// submitted request so refresh actions can re-run it. Nothing is persisted.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"copydesk/internal/analysis"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("session: not found")

type Ticket struct {
	SessionID  string
	Generation uint64
}

type slot struct {
	generation  uint64
	lastRequest *analysis.Request
	result      *analysis.Result
	completedAt time.Time
	lastSeen    time.Time
}

type Store struct {
	mu          sync.Mutex
	slots       map[string]*slot
	ttl         time.Duration
	maxSessions int
	now         func() time.Time
}

// NewStore returns a store that expires sessions idle for ttl and holds at most
// maxSessions of them, evicting the least recently seen. Zero disables either
// bound.
func NewStore(ttl time.Duration, maxSessions int) *Store {
	return &Store{
		slots:       make(map[string]*slot),
		ttl:         ttl,
		maxSessions: maxSessions,
		now:         time.Now,
	}
}

func NewID() string {
	return uuid.NewString()
}

// NormalizeID returns id when it is a valid session ID, or "" otherwise.
func NormalizeID(id string) string {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return ""
	}
	return parsed.String()
}

// Begin records req as the session's latest submission. Any completion for an
// earlier ticket is discarded from this point on.
func (s *Store) Begin(sessionID string, req analysis.Request) Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl := s.slotLocked(sessionID)
	sl.generation++
	reqCopy := req
	sl.lastRequest = &reqCopy
	return Ticket{SessionID: sessionID, Generation: sl.generation}
}

// Commit replaces the current result if t is still the newest submission.
func (s *Store) Commit(t Ticket, result analysis.Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.slots[t.SessionID]
	if !ok || sl.generation != t.Generation {
		return false
	}
	sl.result = &result
	sl.completedAt = s.now()
	sl.lastSeen = sl.completedAt
	return true
}

func (s *Store) Current(sessionID string) (analysis.Result, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.slots[sessionID]
	if !ok || sl.result == nil {
		return analysis.Result{}, time.Time{}, ErrNotFound
	}
	sl.lastSeen = s.now()
	return *sl.result, sl.completedAt, nil
}

func (s *Store) LastRequest(sessionID string) (analysis.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.slots[sessionID]
	if !ok || sl.lastRequest == nil {
		return analysis.Request{}, ErrNotFound
	}
	sl.lastSeen = s.now()
	return *sl.lastRequest, nil
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

// Sweep drops sessions idle for longer than the TTL and returns how many.
func (s *Store) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.ttl)
	removed := 0
	for id, sl := range s.slots {
		if sl.lastSeen.Before(cutoff) {
			delete(s.slots, id)
			removed++
		}
	}
	return removed
}

// RunJanitor sweeps every interval until ctx ends.
func (s *Store) RunJanitor(ctx context.Context, interval time.Duration) error {
	if s.ttl <= 0 || interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Store) slotLocked(sessionID string) *slot {
	sl, ok := s.slots[sessionID]
	if !ok {
		if s.maxSessions > 0 && len(s.slots) >= s.maxSessions {
			s.evictOldestLocked()
		}
		sl = &slot{}
		s.slots[sessionID] = sl
	}
	sl.lastSeen = s.now()
	return sl
}

func (s *Store) evictOldestLocked() {
	var (
		oldestID string
		oldest   time.Time
	)
	for id, sl := range s.slots {
		if oldestID == "" || sl.lastSeen.Before(oldest) {
			oldestID, oldest = id, sl.lastSeen
		}
	}
	if oldestID != "" {
		delete(s.slots, oldestID)
	}
}
