package domain

import (
	"context"
	"time"
)

// Role identifies the author of a conversation turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one exchange entry in a session's log, immutable once appended
type Turn struct {
	Role      Role       `json:"role"`
	Text      string     `json:"text"`
	Timestamp time.Time  `json:"timestamp"`
	Citations []Citation `json:"citations,omitempty"`
	LatencyMs int64      `json:"latencyMs,omitempty"`
	Failed    bool       `json:"failed,omitempty"`
}

// SessionStats holds rolling usage counters for a session
type SessionStats struct {
	TotalQueries   int   `json:"totalQueries"`
	Successes      int   `json:"successes"`
	Errors         int   `json:"errors"`
	TotalLatencyMs int64 `json:"totalLatencyMs"`
}

// AvgLatencyMs returns the mean assistant latency across successful turns
func (s SessionStats) AvgLatencyMs() int64 {
	if s.Successes == 0 {
		return 0
	}
	return s.TotalLatencyMs / int64(s.Successes)
}

// Session is the client-side record of one conversation
type Session struct {
	ID             string       `json:"id"`
	CreatedAt      time.Time    `json:"createdAt"`
	LastActivityAt time.Time    `json:"lastActivityAt"`
	Turns          []Turn       `json:"turns"`
	Stats          SessionStats `json:"stats"`
	FilterContext  *Filters     `json:"filterContext,omitempty"`
}

// TurnCount returns the number of logged turns
func (s *Session) TurnCount() int {
	return len(s.Turns)
}

// Clone returns a deep copy safe to hand to callers
func (s *Session) Clone() *Session {
	c := *s
	c.Turns = make([]Turn, len(s.Turns))
	copy(c.Turns, s.Turns)
	c.FilterContext = s.FilterContext.Clone()
	return &c
}

// Apply folds a turn into the session counters. Stores call it under
// their per-session serialization so the log and counters never drift.
func (s *Session) Apply(t Turn) {
	s.Turns = append(s.Turns, t)
	s.LastActivityAt = t.Timestamp
	switch t.Role {
	case RoleUser:
		s.Stats.TotalQueries++
	case RoleAssistant:
		if t.Failed {
			s.Stats.Errors++
		} else {
			s.Stats.Successes++
			s.Stats.TotalLatencyMs += t.LatencyMs
		}
	}
}

// SessionStore is the only shared mutable resource in the query path.
// AppendExchange must be atomic per session: the turns land as one unit
// together with the counter updates and the carried filter context,
// while unrelated sessions proceed in parallel.
type SessionStore interface {
	// GetOrCreate returns the session for id, minting a fresh one
	// (with a new identifier) when id is absent or unknown.
	GetOrCreate(ctx context.Context, id string) (*Session, error)

	// Get returns the session for id or a session error.
	Get(ctx context.Context, id string) (*Session, error)

	// AppendExchange appends turns and updates counters atomically.
	// A non-nil filterCtx replaces the session's carried filter context.
	AppendExchange(ctx context.Context, id string, filterCtx *Filters, turns ...Turn) error

	// Reset discards the session and returns a fresh identifier.
	// The old identifier becomes permanently invalid.
	Reset(ctx context.Context, id string) (string, error)

	// ExpireIdle drops sessions idle past the configured threshold and
	// reports how many were removed.
	ExpireIdle(ctx context.Context, now time.Time) (int, error)

	// Ping reports store liveness for health checks.
	Ping(ctx context.Context) error
}
