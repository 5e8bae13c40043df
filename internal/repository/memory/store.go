// Package memory implements the session store as an in-process map.
// It is the default backend; redis and sqlite variants cover deployments
// that need sessions to survive a restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kestrand/maintchat/internal/domain"
)

// entry wraps a session with its lock. dead marks entries removed from
// the map so a writer that resolved the entry before the removal fails
// instead of mutating an orphan.
type entry struct {
	mu      sync.Mutex
	dead    bool
	session *domain.Session
}

// Store keeps sessions keyed by identifier. A per-session mutex
// serializes appends within one session while unrelated sessions
// proceed in parallel.
type Store struct {
	mu         sync.RWMutex
	sessions   map[string]*entry
	idleExpiry time.Duration
	now        func() time.Time
}

// NewStore creates an empty in-memory session store. idleExpiry is the
// inactivity window after which ExpireIdle drops a session.
func NewStore(idleExpiry time.Duration) *Store {
	return &Store{
		sessions:   make(map[string]*entry),
		idleExpiry: idleExpiry,
		now:        time.Now,
	}
}

// GetOrCreate returns the session for id, minting a fresh session with
// a new identifier when id is absent or unknown.
func (s *Store) GetOrCreate(ctx context.Context, id string) (*domain.Session, error) {
	if id != "" {
		s.mu.RLock()
		e, ok := s.sessions[id]
		s.mu.RUnlock()
		if ok {
			e.mu.Lock()
			if !e.dead {
				sess := e.session.Clone()
				e.mu.Unlock()
				return sess, nil
			}
			e.mu.Unlock()
		}
	}

	now := s.now().UTC()
	sess := &domain.Session{
		ID:             uuid.NewString(),
		CreatedAt:      now,
		LastActivityAt: now,
	}

	s.mu.Lock()
	s.sessions[sess.ID] = &entry{session: sess}
	s.mu.Unlock()

	return sess.Clone(), nil
}

// Get returns the session for id or a session error
func (s *Store) Get(ctx context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.NewSessionError("unknown or expired session")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		return nil, domain.NewSessionError("unknown or expired session")
	}
	return e.session.Clone(), nil
}

// AppendExchange appends turns and folds them into the counters under
// the session's lock, so the log and counters are never observed out of
// sync. A non-nil filterCtx replaces the carried filter context.
func (s *Store) AppendExchange(ctx context.Context, id string, filterCtx *domain.Filters, turns ...domain.Turn) error {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return domain.NewSessionError("unknown or expired session")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		return domain.NewSessionError("unknown or expired session")
	}
	for _, t := range turns {
		e.session.Apply(t)
	}
	if filterCtx != nil {
		e.session.FilterContext = filterCtx.Clone()
	}
	return nil
}

// Reset discards the session and mints a replacement with a fresh
// identifier; the old identifier becomes permanently invalid.
func (s *Store) Reset(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return "", domain.NewSessionError("unknown or expired session")
	}
	e.mu.Lock()
	e.dead = true
	e.mu.Unlock()
	delete(s.sessions, id)

	now := s.now().UTC()
	sess := &domain.Session{
		ID:             uuid.NewString(),
		CreatedAt:      now,
		LastActivityAt: now,
	}
	s.sessions[sess.ID] = &entry{session: sess}
	return sess.ID, nil
}

// ExpireIdle drops sessions whose last activity predates now minus the
// configured idle window.
func (s *Store) ExpireIdle(ctx context.Context, now time.Time) (int, error) {
	if s.idleExpiry <= 0 {
		return 0, nil
	}
	return s.expire(now.Add(-s.idleExpiry)), nil
}

func (s *Store) expire(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.sessions {
		e.mu.Lock()
		idle := e.session.LastActivityAt.Before(cutoff)
		if idle {
			e.dead = true
		}
		e.mu.Unlock()
		if idle {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Ping reports store liveness
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Len returns the number of live sessions
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
