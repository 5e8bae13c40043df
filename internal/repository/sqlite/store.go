// Package sqlite implements a persistent session store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kestrand/maintchat/internal/domain"
	_ "modernc.org/sqlite"
)

const timeFormat = time.RFC3339Nano

// Store is a SQLite-backed session store. Transactions give
// AppendExchange its per-session atomicity. The pool is capped at one
// connection: SQLite allows a single writer, so concurrent appends
// queue on the pool instead of failing with SQLITE_BUSY.
type Store struct {
	db         *sql.DB
	idleExpiry time.Duration
}

// NewStore opens (and if needed creates) the database at dsn
func NewStore(dsn string, idleExpiry time.Duration) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	// Guards against writers outside this process holding the lock.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	s := &Store{db: db, idleExpiry: idleExpiry}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			last_activity_at TEXT NOT NULL,
			total_queries INTEGER NOT NULL DEFAULT 0,
			successes INTEGER NOT NULL DEFAULT 0,
			errors INTEGER NOT NULL DEFAULT 0,
			total_latency_ms INTEGER NOT NULL DEFAULT 0,
			filter_context TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS turns (
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			ts TEXT NOT NULL,
			citations TEXT,
			latency_ms INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (session_id, seq),
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_last_activity ON sessions(last_activity_at)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// GetOrCreate returns the session for id, minting a fresh one when id
// is absent or unknown.
func (s *Store) GetOrCreate(ctx context.Context, id string) (*domain.Session, error) {
	if id != "" {
		sess, err := s.Get(ctx, id)
		if err == nil {
			return sess, nil
		}
		var de *domain.Error
		if !errors.As(err, &de) || de.Kind != domain.KindSession {
			return nil, err
		}
	}

	now := time.Now().UTC()
	sess := &domain.Session{
		ID:             uuid.NewString(),
		CreatedAt:      now,
		LastActivityAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, created_at, last_activity_at) VALUES (?, ?, ?)`,
		sess.ID, now.Format(timeFormat), now.Format(timeFormat),
	)
	if err != nil {
		return nil, domain.NewInternalError("session store failure").Wrap(err)
	}
	return sess, nil
}

// Get returns the session for id including its full turn log
func (s *Store) Get(ctx context.Context, id string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, last_activity_at, total_queries, successes, errors, total_latency_ms, filter_context
		 FROM sessions WHERE id = ?`, id)

	var sess domain.Session
	var createdAt, lastActivity string
	var filterJSON sql.NullString
	err := row.Scan(&sess.ID, &createdAt, &lastActivity,
		&sess.Stats.TotalQueries, &sess.Stats.Successes, &sess.Stats.Errors, &sess.Stats.TotalLatencyMs,
		&filterJSON)
	if err == sql.ErrNoRows {
		return nil, domain.NewSessionError("unknown or expired session")
	}
	if err != nil {
		return nil, domain.NewInternalError("session store failure").Wrap(err)
	}

	if sess.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return nil, domain.NewInternalError("corrupt session record").Wrap(err)
	}
	if sess.LastActivityAt, err = time.Parse(timeFormat, lastActivity); err != nil {
		return nil, domain.NewInternalError("corrupt session record").Wrap(err)
	}
	if filterJSON.Valid && filterJSON.String != "" {
		var f domain.Filters
		if err := json.Unmarshal([]byte(filterJSON.String), &f); err != nil {
			return nil, domain.NewInternalError("corrupt session record").Wrap(err)
		}
		sess.FilterContext = &f
	}

	turns, err := s.loadTurns(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.Turns = turns
	return &sess, nil
}

func (s *Store) loadTurns(ctx context.Context, id string) ([]domain.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, text, ts, citations, latency_ms, failed FROM turns WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, domain.NewInternalError("session store failure").Wrap(err)
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var t domain.Turn
		var ts string
		var citJSON sql.NullString
		var failed int
		if err := rows.Scan(&t.Role, &t.Text, &ts, &citJSON, &t.LatencyMs, &failed); err != nil {
			return nil, domain.NewInternalError("session store failure").Wrap(err)
		}
		if t.Timestamp, err = time.Parse(timeFormat, ts); err != nil {
			return nil, domain.NewInternalError("corrupt turn record").Wrap(err)
		}
		if citJSON.Valid && citJSON.String != "" {
			if err := json.Unmarshal([]byte(citJSON.String), &t.Citations); err != nil {
				return nil, domain.NewInternalError("corrupt turn record").Wrap(err)
			}
		}
		t.Failed = failed != 0
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// AppendExchange appends turns and updates counters in one transaction
func (s *Store) AppendExchange(ctx context.Context, id string, filterCtx *domain.Filters, turns ...domain.Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewInternalError("session store failure").Wrap(err)
	}
	defer tx.Rollback()

	var stats domain.SessionStats
	var lastActivity string
	row := tx.QueryRowContext(ctx,
		`SELECT total_queries, successes, errors, total_latency_ms, last_activity_at FROM sessions WHERE id = ?`, id)
	if err := row.Scan(&stats.TotalQueries, &stats.Successes, &stats.Errors, &stats.TotalLatencyMs, &lastActivity); err != nil {
		if err == sql.ErrNoRows {
			return domain.NewSessionError("unknown or expired session")
		}
		return domain.NewInternalError("session store failure").Wrap(err)
	}

	var seq int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM turns WHERE session_id = ?`, id).Scan(&seq); err != nil {
		return domain.NewInternalError("session store failure").Wrap(err)
	}

	shadow := domain.Session{Stats: stats}
	for _, t := range turns {
		seq++
		var citJSON []byte
		if len(t.Citations) > 0 {
			if citJSON, err = json.Marshal(t.Citations); err != nil {
				return domain.NewInternalError("failed to marshal citations").Wrap(err)
			}
		}
		failed := 0
		if t.Failed {
			failed = 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO turns (session_id, seq, role, text, ts, citations, latency_ms, failed)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, seq, string(t.Role), t.Text, t.Timestamp.UTC().Format(timeFormat), string(citJSON), t.LatencyMs, failed,
		); err != nil {
			return domain.NewInternalError("session store failure").Wrap(err)
		}
		shadow.Apply(t)
	}

	lastActivityStr := lastActivity
	if len(turns) > 0 {
		lastActivityStr = shadow.LastActivityAt.UTC().Format(timeFormat)
	}

	var filterJSON []byte
	if filterCtx != nil {
		if filterJSON, err = json.Marshal(filterCtx); err != nil {
			return domain.NewInternalError("failed to marshal filter context").Wrap(err)
		}
	}

	if filterCtx != nil {
		_, err = tx.ExecContext(ctx,
			`UPDATE sessions SET total_queries = ?, successes = ?, errors = ?, total_latency_ms = ?, last_activity_at = ?, filter_context = ?
			 WHERE id = ?`,
			shadow.Stats.TotalQueries, shadow.Stats.Successes, shadow.Stats.Errors, shadow.Stats.TotalLatencyMs,
			lastActivityStr, string(filterJSON), id,
		)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE sessions SET total_queries = ?, successes = ?, errors = ?, total_latency_ms = ?, last_activity_at = ?
			 WHERE id = ?`,
			shadow.Stats.TotalQueries, shadow.Stats.Successes, shadow.Stats.Errors, shadow.Stats.TotalLatencyMs,
			lastActivityStr, id,
		)
	}
	if err != nil {
		return domain.NewInternalError("session store failure").Wrap(err)
	}

	if err := tx.Commit(); err != nil {
		return domain.NewInternalError("session store failure").Wrap(err)
	}
	return nil
}

// Reset deletes the session and mints a replacement identifier
func (s *Store) Reset(ctx context.Context, id string) (string, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return "", domain.NewInternalError("session store failure").Wrap(err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return "", domain.NewSessionError("unknown or expired session")
	}

	sess, err := s.GetOrCreate(ctx, "")
	if err != nil {
		return "", err
	}
	return sess.ID, nil
}

// ExpireIdle deletes sessions idle past the configured window
func (s *Store) ExpireIdle(ctx context.Context, now time.Time) (int, error) {
	if s.idleExpiry <= 0 {
		return 0, nil
	}
	cutoff := now.Add(-s.idleExpiry).UTC().Format(timeFormat)
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE last_activity_at < ?`, cutoff)
	if err != nil {
		return 0, domain.NewInternalError("session store failure").Wrap(err)
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

// Ping reports store liveness
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
