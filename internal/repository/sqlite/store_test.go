package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kestrand/maintchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "sessions.db")
	s, err := NewStore(dsn, time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.GetOrCreate(ctx, "")
	require.NoError(t, err)

	now := time.Now().UTC()
	filters := &domain.Filters{
		EntityIDs: []string{"PUMP_001"},
		TimeRange: &domain.TimeRange{
			Start: now.Add(-24 * time.Hour),
			End:   now,
		},
	}
	err = s.AppendExchange(ctx, sess.ID, filters,
		domain.Turn{Role: domain.RoleUser, Text: "why did it fail?", Timestamp: now},
		domain.Turn{
			Role: domain.RoleAssistant, Text: "bearing wear", Timestamp: now,
			Citations: []domain.Citation{{Ref: "doc-1", Label: "Work order 42"}},
			LatencyMs: 800,
		},
	)
	require.NoError(t, err)

	got, err := s.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.TurnCount())
	assert.Equal(t, domain.RoleUser, got.Turns[0].Role)
	assert.Equal(t, "bearing wear", got.Turns[1].Text)
	assert.Equal(t, []domain.Citation{{Ref: "doc-1", Label: "Work order 42"}}, got.Turns[1].Citations)
	assert.Equal(t, 1, got.Stats.TotalQueries)
	assert.Equal(t, 1, got.Stats.Successes)
	assert.Equal(t, int64(800), got.Stats.TotalLatencyMs)
	require.NotNil(t, got.FilterContext)
	assert.Equal(t, []string{"PUMP_001"}, got.FilterContext.EntityIDs)
}

func TestSQLiteStore_GetUnknownSession(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, domain.KindSession, domain.AsError(err).Kind)
}

func TestSQLiteStore_AppendToUnknownSession(t *testing.T) {
	s := newTestStore(t)

	err := s.AppendExchange(context.Background(), "missing", nil,
		domain.Turn{Role: domain.RoleUser, Text: "q", Timestamp: time.Now().UTC()})
	require.Error(t, err)
	assert.Equal(t, domain.KindSession, domain.AsError(err).Kind)
}

func TestSQLiteStore_FailedExchangeCountsError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.GetOrCreate(ctx, "")
	require.NoError(t, err)

	now := time.Now().UTC()
	err = s.AppendExchange(ctx, sess.ID, nil,
		domain.Turn{Role: domain.RoleUser, Text: "q", Timestamp: now},
		domain.Turn{Role: domain.RoleAssistant, Text: "agent unavailable", Timestamp: now, Failed: true},
	)
	require.NoError(t, err)

	got, err := s.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Stats.Errors)
	assert.Equal(t, 0, got.Stats.Successes)
	assert.True(t, got.Turns[1].Failed)
}

func TestSQLiteStore_Reset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.GetOrCreate(ctx, "")
	require.NoError(t, err)

	newID, err := s.Reset(ctx, sess.ID)
	require.NoError(t, err)
	assert.NotEqual(t, sess.ID, newID)

	_, err = s.Get(ctx, sess.ID)
	require.Error(t, err)
	assert.Equal(t, domain.KindSession, domain.AsError(err).Kind)

	_, err = s.Get(ctx, newID)
	assert.NoError(t, err)
}

func TestSQLiteStore_ExpireIdle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stale, err := s.GetOrCreate(ctx, "")
	require.NoError(t, err)
	old := time.Now().UTC().Add(-3 * time.Hour)
	require.NoError(t, s.AppendExchange(ctx, stale.ID, nil,
		domain.Turn{Role: domain.RoleUser, Text: "q", Timestamp: old},
		domain.Turn{Role: domain.RoleAssistant, Text: "a", Timestamp: old},
	))

	active, err := s.GetOrCreate(ctx, "")
	require.NoError(t, err)

	removed, err := s.ExpireIdle(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = s.Get(ctx, stale.ID)
	assert.Error(t, err)
	_, err = s.Get(ctx, active.ID)
	assert.NoError(t, err)
}

func TestSQLiteStore_ConcurrentAppendsStayConsistent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.GetOrCreate(ctx, "")
	require.NoError(t, err)

	const workers = 10
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			now := time.Now().UTC()
			errs <- s.AppendExchange(ctx, sess.ID, nil,
				domain.Turn{Role: domain.RoleUser, Text: "q", Timestamp: now},
				domain.Turn{Role: domain.RoleAssistant, Text: "a", Timestamp: now, LatencyMs: 5},
			)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, workers*2, got.TurnCount())
	assert.Equal(t, workers, got.Stats.TotalQueries)
	assert.Equal(t, workers, got.Stats.Successes)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "sessions.db")
	ctx := context.Background()

	s, err := NewStore(dsn, time.Hour)
	require.NoError(t, err)
	sess, err := s.GetOrCreate(ctx, "")
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, s.AppendExchange(ctx, sess.ID, nil,
		domain.Turn{Role: domain.RoleUser, Text: "q", Timestamp: now},
		domain.Turn{Role: domain.RoleAssistant, Text: "a", Timestamp: now, LatencyMs: 5},
	))
	require.NoError(t, s.Close())

	s2, err := NewStore(dsn, time.Hour)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TurnCount())
	assert.Equal(t, 1, got.Stats.Successes)
}
