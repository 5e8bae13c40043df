// Package normalize converts raw agent payloads into the stable
// response contract served to clients.
package normalize

import (
	"strings"

	"github.com/kestrand/maintchat/internal/agent"
	"github.com/kestrand/maintchat/internal/domain"
	"github.com/rs/zerolog"
)

// FallbackText is served when the agent returns an empty payload so the
// UI never renders an empty bubble.
const FallbackText = "No response available. Please try rephrasing your question."

// Detector decides whether a response text admits insufficient
// grounding. The rule is a replaceable policy, not a fixed string match.
type Detector interface {
	Detect(text string) bool
}

// IndicatorDetector flags responses containing any of a configured set
// of limitation phrases.
type IndicatorDetector struct {
	indicators []string
}

// DefaultIndicators are the limitation phrases observed in agent
// responses when the knowledge index lacks grounding.
var DefaultIndicators = []string{
	"insufficient data",
	"i don't have access to",
	"i cannot find",
	"no data available",
	"unable to retrieve",
	"information not found",
	"i apologize, but",
	"i'm sorry, but",
}

// NewIndicatorDetector builds a detector from the given phrases,
// falling back to the default set when none are provided.
func NewIndicatorDetector(indicators []string) *IndicatorDetector {
	if len(indicators) == 0 {
		indicators = DefaultIndicators
	}
	lowered := make([]string, len(indicators))
	for i, s := range indicators {
		lowered[i] = strings.ToLower(s)
	}
	return &IndicatorDetector{indicators: lowered}
}

func (d *IndicatorDetector) Detect(text string) bool {
	lower := strings.ToLower(text)
	for _, ind := range d.indicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}

// Normalizer shapes agent payloads into domain.NormalizedResponse
type Normalizer struct {
	detector Detector
	log      zerolog.Logger
}

// New creates a normalizer with the given detection policy
func New(detector Detector, log zerolog.Logger) *Normalizer {
	return &Normalizer{detector: detector, log: log}
}

// Normalize produces the stable contract: non-empty display text, a
// deduplicated citation list, and the insufficient-data flag. The flag
// combines two independent signals: the detector on the response text
// and the agent's own low-confidence marker. An empty payload alone
// never asserts it.
func (n *Normalizer) Normalize(raw *agent.Result) domain.NormalizedResponse {
	text := strings.TrimSpace(raw.Text)

	insufficient := raw.LowConfidence
	if text != "" && n.detector.Detect(text) {
		insufficient = true
		// Logged for tuning false positives on the phrase list.
		n.log.Debug().Str("trace_id", raw.TraceID).Msg("limitation phrase detected in agent response")
	}

	if text == "" {
		text = FallbackText
	}

	return domain.NormalizedResponse{
		Text:             text,
		Citations:        dedupCitations(raw.Citations),
		InsufficientData: insufficient,
		LatencyMs:        raw.LatencyMs,
	}
}

// dedupCitations removes duplicate refs while preserving first-seen order
func dedupCitations(in []domain.Citation) []domain.Citation {
	out := make([]domain.Citation, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, c := range in {
		if c.Ref == "" {
			continue
		}
		if _, ok := seen[c.Ref]; ok {
			continue
		}
		seen[c.Ref] = struct{}{}
		out = append(out, c)
	}
	return out
}
