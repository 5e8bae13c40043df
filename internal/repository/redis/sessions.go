package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kestrand/maintchat/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "session:"
	// Optimistic transactions retry this often before giving up.
	maxTxRetries = 5
)

// SessionStore keeps sessions as JSON values in Redis. Redis key TTL
// doubles as the idle-expiry mechanism: every append refreshes the TTL,
// so ExpireIdle has nothing left to sweep.
type SessionStore struct {
	client     *Client
	idleExpiry time.Duration
}

// NewSessionStore creates a redis-backed session store
func NewSessionStore(client *Client, idleExpiry time.Duration) *SessionStore {
	return &SessionStore{client: client, idleExpiry: idleExpiry}
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

// GetOrCreate returns the session for id, minting a fresh one when id
// is absent or unknown.
func (s *SessionStore) GetOrCreate(ctx context.Context, id string) (*domain.Session, error) {
	if id != "" {
		sess, err := s.load(ctx, id)
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
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get returns the session for id or a session error
func (s *SessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	return s.load(ctx, id)
}

// AppendExchange applies turns atomically using an optimistic WATCH
// transaction, so concurrent appends against the same session serialize
// rather than interleave.
func (s *SessionStore) AppendExchange(ctx context.Context, id string, filterCtx *domain.Filters, turns ...domain.Turn) error {
	key := sessionKey(id)

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return domain.NewSessionError("unknown or expired session")
		}
		if err != nil {
			return fmt.Errorf("failed to read session: %w", err)
		}

		var sess domain.Session
		if err := json.Unmarshal(data, &sess); err != nil {
			return fmt.Errorf("failed to unmarshal session: %w", err)
		}

		for _, t := range turns {
			sess.Apply(t)
		}
		if filterCtx != nil {
			sess.FilterContext = filterCtx.Clone()
		}

		updated, err := json.Marshal(&sess)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, s.idleExpiry)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.rdb.Watch(ctx, txn, key)
		if err == nil {
			return nil
		}
		if err == redis.TxFailedErr {
			continue
		}
		var de *domain.Error
		if errors.As(err, &de) {
			return de
		}
		return domain.NewInternalError("session store failure").Wrap(err)
	}
	return domain.NewInternalError("session update contention").Wrap(redis.TxFailedErr)
}

// Reset discards the session and mints a replacement identifier
func (s *SessionStore) Reset(ctx context.Context, id string) (string, error) {
	deleted, err := s.client.rdb.Del(ctx, sessionKey(id)).Result()
	if err != nil {
		return "", domain.NewInternalError("session store failure").Wrap(err)
	}
	if deleted == 0 {
		return "", domain.NewSessionError("unknown or expired session")
	}

	now := time.Now().UTC()
	sess := &domain.Session{
		ID:             uuid.NewString(),
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if err := s.save(ctx, sess); err != nil {
		return "", err
	}
	return sess.ID, nil
}

// ExpireIdle is a no-op: key TTLs expire idle sessions server-side
func (s *SessionStore) ExpireIdle(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

// Ping reports store liveness
func (s *SessionStore) Ping(ctx context.Context) error {
	return s.client.rdb.Ping(ctx).Err()
}

func (s *SessionStore) load(ctx context.Context, id string) (*domain.Session, error) {
	data, err := s.client.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, domain.NewSessionError("unknown or expired session")
	}
	if err != nil {
		return nil, domain.NewInternalError("session store failure").Wrap(err)
	}

	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, domain.NewInternalError("corrupt session record").Wrap(err)
	}
	return &sess, nil
}

func (s *SessionStore) save(ctx context.Context, sess *domain.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return domain.NewInternalError("failed to marshal session").Wrap(err)
	}
	if err := s.client.rdb.Set(ctx, sessionKey(sess.ID), data, s.idleExpiry).Err(); err != nil {
		return domain.NewInternalError("session store failure").Wrap(err)
	}
	return nil
}
