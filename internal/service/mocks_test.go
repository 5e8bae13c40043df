package service

import (
	"context"
	"time"

	"github.com/kestrand/maintchat/internal/agent"
	"github.com/kestrand/maintchat/internal/domain"
	"github.com/stretchr/testify/mock"
)

// MockSessionStore is a testify mock over domain.SessionStore
type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) GetOrCreate(ctx context.Context, id string) (*domain.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockSessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockSessionStore) AppendExchange(ctx context.Context, id string, filterCtx *domain.Filters, turns ...domain.Turn) error {
	args := m.Called(ctx, id, filterCtx, turns)
	return args.Error(0)
}

func (m *MockSessionStore) Reset(ctx context.Context, id string) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

func (m *MockSessionStore) ExpireIdle(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

func (m *MockSessionStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockInvoker is a testify mock over the agent gateway slice
type MockInvoker struct {
	mock.Mock
}

func (m *MockInvoker) Invoke(ctx context.Context, sessionID, input string) (*agent.Result, error) {
	args := m.Called(ctx, sessionID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*agent.Result), args.Error(1)
}
