// Package health aggregates reachability of the external collaborators
// into a composite status. It never touches conversation state.
package health

import (
	"context"
	"time"

	"github.com/kestrand/maintchat/internal/domain"
	"github.com/kestrand/maintchat/internal/index"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// State is the composite or per-service health value
type State string

const (
	StateHealthy   State = "healthy"
	StateDegraded  State = "degraded"
	StateUnhealthy State = "unhealthy"
)

// Probe is one service's check result
type Probe struct {
	Status  State  `json:"status"`
	Message string `json:"message"`
}

// Status is the aggregated health report
type Status struct {
	Status    State            `json:"status"`
	CheckedAt time.Time        `json:"checkedAt"`
	Services  map[string]Probe `json:"services"`
}

// AgentProber is the slice of the agent gateway used for health checks
type AgentProber interface {
	Probe(ctx context.Context) error
	ProviderName() string
}

// Reporter probes the agent, the knowledge index, and the session store
type Reporter struct {
	agent      AgentProber
	indexes    *index.Client
	store      domain.SessionStore
	staleAfter time.Duration
	timeout    time.Duration
	log        zerolog.Logger
}

// NewReporter creates a health reporter. staleAfter bounds how long ago
// the index may have synced before it counts as stale.
func NewReporter(agent AgentProber, idx *index.Client, store domain.SessionStore, staleAfter, timeout time.Duration, log zerolog.Logger) *Reporter {
	return &Reporter{
		agent:      agent,
		indexes:    idx,
		store:      store,
		staleAfter: staleAfter,
		timeout:    timeout,
		log:        log,
	}
}

// Check probes all collaborators concurrently and aggregates:
// unhealthy when the agent is unreachable, degraded when the index is
// stale/unavailable or the store is down but the agent responds,
// healthy otherwise.
func (r *Reporter) Check(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var agentProbe, indexProbe, storeProbe Probe

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		agentProbe = r.checkAgent(gctx)
		return nil
	})
	g.Go(func() error {
		indexProbe = r.checkIndex(gctx)
		return nil
	})
	g.Go(func() error {
		storeProbe = r.checkStore(gctx)
		return nil
	})
	_ = g.Wait()

	overall := StateHealthy
	switch {
	case agentProbe.Status == StateUnhealthy:
		overall = StateUnhealthy
	case indexProbe.Status != StateHealthy || storeProbe.Status != StateHealthy:
		overall = StateDegraded
	}

	status := Status{
		Status:    overall,
		CheckedAt: time.Now().UTC(),
		Services: map[string]Probe{
			"agent":           agentProbe,
			"knowledge_index": indexProbe,
			"session_store":   storeProbe,
		},
	}

	if overall != StateHealthy {
		r.log.Warn().Interface("services", status.Services).Msg("health check not healthy")
	}
	return status
}

func (r *Reporter) checkAgent(ctx context.Context) Probe {
	if err := r.agent.Probe(ctx); err != nil {
		return Probe{Status: StateUnhealthy, Message: "agent unreachable: " + r.agent.ProviderName()}
	}
	return Probe{Status: StateHealthy, Message: "agent responding: " + r.agent.ProviderName()}
}

func (r *Reporter) checkIndex(ctx context.Context) Probe {
	if !r.indexes.Configured() {
		return Probe{Status: StateDegraded, Message: "index status endpoint not configured"}
	}
	st, err := r.indexes.Status(ctx)
	if err != nil {
		return Probe{Status: StateDegraded, Message: "index unavailable"}
	}
	if !st.Active() {
		return Probe{Status: StateDegraded, Message: "index not active: " + st.State}
	}
	if r.staleAfter > 0 && time.Since(st.LastSyncAt) > r.staleAfter {
		return Probe{Status: StateDegraded, Message: "index sync is stale"}
	}
	return Probe{Status: StateHealthy, Message: "index active"}
}

func (r *Reporter) checkStore(ctx context.Context) Probe {
	if err := r.store.Ping(ctx); err != nil {
		return Probe{Status: StateDegraded, Message: "session store unavailable"}
	}
	return Probe{Status: StateHealthy, Message: "session store responding"}
}
