package agent

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/kestrand/maintchat/internal/domain"
	"github.com/rs/zerolog"
)

// GatewayConfig holds the invocation budget and retry policy. The
// policy lives here, not at call sites, so retry behavior is uniform
// and testable in one place.
type GatewayConfig struct {
	// Budget is the hard wall-clock ceiling for one logical call,
	// covering every retry attempt.
	Budget time.Duration

	// MaxAttempts bounds the attempt count, including the first.
	MaxAttempts int

	// BaseDelay seeds the exponential backoff between attempts.
	BaseDelay time.Duration

	// Jitter is the backoff randomization factor in [0,1].
	Jitter float64
}

// Gateway is the sole caller of the remote conversational agent. It
// enforces the timeout budget and retries transient failures with
// exponential backoff. It never mutates session state.
type Gateway struct {
	provider Provider
	cfg      GatewayConfig
	log      zerolog.Logger
}

// NewGateway creates a gateway around the given provider
func NewGateway(provider Provider, cfg GatewayConfig, log zerolog.Logger) *Gateway {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Gateway{provider: provider, cfg: cfg, log: log}
}

// Invoke issues one logical call to the agent. On failure it returns a
// typed domain error: timeout when the budget is exhausted, transient
// when retries ran out, permanent otherwise.
func (g *Gateway) Invoke(ctx context.Context, sessionID, input string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Budget)
	defer cancel()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = g.cfg.BaseDelay
	bo.RandomizationFactor = g.cfg.Jitter
	bo.MaxElapsedTime = 0 // the context deadline bounds the loop

	start := time.Now()
	attempts := 0
	var result *Result

	op := func() error {
		attempts++
		res, err := g.provider.Converse(ctx, sessionID, input)
		if err != nil {
			g.log.Warn().
				Err(err).
				Str("provider", g.provider.Name()).
				Int("attempt", attempts).
				Msg("agent invocation failed")
			if domain.IsTransient(err) && attempts < g.cfg.MaxAttempts {
				return err
			}
			return backoff.Permanent(err)
		}
		result = res
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(bo, ctx))
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, domain.NewTimeoutError("the assistant did not respond in time").Wrap(err)
		}
		return nil, domain.AsError(err)
	}

	result.LatencyMs = elapsed.Milliseconds()
	g.log.Debug().
		Str("provider", g.provider.Name()).
		Int("attempts", attempts).
		Dur("elapsed", elapsed).
		Msg("agent invocation succeeded")
	return result, nil
}

// Probe checks agent reachability with a trivial request
func (g *Gateway) Probe(ctx context.Context) error {
	return g.provider.Probe(ctx)
}

// ProviderName returns the name of the wrapped provider
func (g *Gateway) ProviderName() string {
	return g.provider.Name()
}
