package service

import (
	"context"
	"time"

	"github.com/kestrand/maintchat/internal/agent"
	"github.com/kestrand/maintchat/internal/domain"
	"github.com/kestrand/maintchat/internal/enrich"
	"github.com/kestrand/maintchat/internal/normalize"
	"github.com/rs/zerolog"
)

// Stage names the request lifecycle states. Transitions are logged per
// request under its correlation id; FAILED is reachable from any stage.
type Stage string

const (
	StageReceived      Stage = "RECEIVED"
	StageValidated     Stage = "VALIDATED"
	StageEnriched      Stage = "ENRICHED"
	StageAwaitingAgent Stage = "AWAITING_AGENT"
	StageNormalized    Stage = "NORMALIZED"
	StageResponded     Stage = "RESPONDED"
	StageFailed        Stage = "FAILED"
)

// AgentInvoker is the gateway slice the chat service depends on
type AgentInvoker interface {
	Invoke(ctx context.Context, sessionID, input string) (*agent.Result, error)
}

// ChatService drives the query request lifecycle: validate, enrich,
// invoke the agent, normalize, then update the session.
type ChatService struct {
	store       domain.SessionStore
	gateway     AgentInvoker
	normalizer  *normalize.Normalizer
	maxQueryLen int
	log         zerolog.Logger
}

// NewChatService creates a chat service
func NewChatService(store domain.SessionStore, gateway AgentInvoker, normalizer *normalize.Normalizer, maxQueryLen int, log zerolog.Logger) *ChatService {
	return &ChatService{
		store:       store,
		gateway:     gateway,
		normalizer:  normalizer,
		maxQueryLen: maxQueryLen,
		log:         log,
	}
}

// Ask processes one chat query end to end. Failures are returned as
// typed domain errors; turns are only appended once a fully normalized
// response (or a complete failed exchange) is available, never a
// partial record.
func (s *ChatService) Ask(ctx context.Context, correlationID string, req domain.QueryRequest) (*domain.QueryResponse, error) {
	log := s.log.With().Str("correlation_id", correlationID).Logger()
	s.transition(log, StageReceived, StageValidated)

	if verr := req.Validate(s.maxQueryLen); verr != nil {
		s.fail(log, StageValidated, verr)
		return nil, verr
	}

	sess, err := s.store.GetOrCreate(ctx, req.SessionID)
	if err != nil {
		s.fail(log, StageValidated, err)
		return nil, domain.AsError(err)
	}
	log = log.With().Str("session_id", sess.ID).Logger()

	enriched := enrich.Build(req.Query, req.Filters, sess.FilterContext, sess.TurnCount() > 0)
	s.transition(log, StageValidated, StageEnriched)

	userTurn := domain.Turn{
		Role:      domain.RoleUser,
		Text:      req.Query,
		Timestamp: time.Now().UTC(),
	}

	s.transition(log, StageEnriched, StageAwaitingAgent)
	result, err := s.gateway.Invoke(ctx, sess.ID, enriched)
	if err != nil {
		derr := domain.AsError(err)
		s.fail(log, StageAwaitingAgent, derr)
		s.recordFailure(sess.ID, userTurn, derr)
		return nil, derr
	}

	normalized := s.normalizer.Normalize(result)
	s.transition(log, StageAwaitingAgent, StageNormalized)

	assistantTurn := domain.Turn{
		Role:      domain.RoleAssistant,
		Text:      normalized.Text,
		Timestamp: time.Now().UTC(),
		Citations: normalized.Citations,
		LatencyMs: normalized.LatencyMs,
	}

	// Explicit filters replace the carried context; otherwise it is
	// left as is for follow-up turns.
	var filterCtx *domain.Filters
	if !req.Filters.IsEmpty() {
		filterCtx = req.Filters.Clone()
	}

	if err := s.store.AppendExchange(ctx, sess.ID, filterCtx, userTurn, assistantTurn); err != nil {
		derr := domain.AsError(err)
		s.fail(log, StageNormalized, derr)
		return nil, derr
	}

	s.transition(log, StageNormalized, StageResponded)
	return &domain.QueryResponse{
		Response:         normalized.Text,
		SessionID:        sess.ID,
		Citations:        normalized.Citations,
		InsufficientData: normalized.InsufficientData,
		Timestamp:        time.Now().UTC(),
	}, nil
}

// SessionState returns the session for id
func (s *ChatService) SessionState(ctx context.Context, id string) (*domain.Session, error) {
	if id == "" {
		return nil, domain.NewInputError("sessionId is required")
	}
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, domain.AsError(err)
	}
	return sess, nil
}

// Reset discards the session and returns the replacement identifier
func (s *ChatService) Reset(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", domain.NewInputError("sessionId is required")
	}
	newID, err := s.store.Reset(ctx, id)
	if err != nil {
		return "", domain.AsError(err)
	}
	s.log.Info().Str("old_session_id", id).Str("new_session_id", newID).Msg("session reset")
	return newID, nil
}

// recordFailure books the failed exchange as a complete user/assistant
// pair so the turn log never holds a missing-partner record. The append
// uses a detached context: a client disconnect must not lose the entry.
func (s *ChatService) recordFailure(sessionID string, userTurn domain.Turn, derr *domain.Error) {
	assistantTurn := domain.Turn{
		Role:      domain.RoleAssistant,
		Text:      derr.Message,
		Timestamp: time.Now().UTC(),
		Failed:    true,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.AppendExchange(ctx, sessionID, nil, userTurn, assistantTurn); err != nil {
		s.log.Error().Err(err).Str("session_id", sessionID).Msg("failed to record failed exchange")
	}
}

func (s *ChatService) transition(log zerolog.Logger, from, to Stage) {
	log.Debug().Str("from", string(from)).Str("to", string(to)).Msg("request state transition")
}

func (s *ChatService) fail(log zerolog.Logger, from Stage, err error) {
	de := domain.AsError(err)
	log.Error().
		Err(de).
		Str("from", string(from)).
		Str("to", string(StageFailed)).
		Str("kind", string(de.Kind)).
		Msg("request failed")
}
