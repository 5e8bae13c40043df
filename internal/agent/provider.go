package agent

import (
	"context"

	"github.com/kestrand/maintchat/internal/domain"
)

// Result is the raw payload returned by a conversational agent before
// normalization.
type Result struct {
	Text          string
	Citations     []domain.Citation
	TraceID       string
	LowConfidence bool
	LatencyMs     int64
}

// Provider defines the interface for conversational agent backends.
// Implementations classify their failures into domain error kinds at
// this boundary: throttling and transient unavailability as transient,
// auth and malformed-request rejections as permanent.
type Provider interface {
	// Name returns the provider identifier
	Name() string

	// IsConfigured checks if the provider has valid credentials
	IsConfigured() bool

	// Converse sends one user utterance for the given session and
	// returns the agent's reply
	Converse(ctx context.Context, sessionID, input string) (*Result, error)

	// Probe issues a trivial request to verify reachability
	Probe(ctx context.Context) error
}
