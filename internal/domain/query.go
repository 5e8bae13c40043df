package domain

import (
	"strings"
	"time"
)

// QueryRequest represents an inbound chat query
type QueryRequest struct {
	Query     string   `json:"query" validate:"required"`
	SessionID string   `json:"sessionId,omitempty" validate:"omitempty,uuid4"`
	Filters   *Filters `json:"filters,omitempty"`
}

// Validate applies the invariants that struct tags cannot express:
// a non-empty query after trimming, the configured length bound, and
// time-range ordering.
func (r *QueryRequest) Validate(maxQueryLen int) *Error {
	q := strings.TrimSpace(r.Query)
	if q == "" {
		return NewInputError("query must not be empty")
	}
	if maxQueryLen > 0 && len(q) > maxQueryLen {
		return NewInputError("query is too long").WithSuggestion("shorten your question and try again")
	}
	if r.Filters != nil && r.Filters.TimeRange != nil {
		tr := r.Filters.TimeRange
		if !tr.Start.IsZero() && !tr.End.IsZero() && !tr.Start.Before(tr.End) {
			return NewInputError("time range start must precede end").WithSuggestion("narrow your time range")
		}
	}
	return nil
}

// Filters scopes a query to specific equipment, a time window, or fault categories
type Filters struct {
	EntityIDs  []string   `json:"entityIds,omitempty"`
	TimeRange  *TimeRange `json:"timeRange,omitempty"`
	Categories []string   `json:"categories,omitempty"`
}

// TimeRange bounds a query to a time window
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// IsEmpty reports whether no filter dimension is set
func (f *Filters) IsEmpty() bool {
	return f == nil || (len(f.EntityIDs) == 0 && f.TimeRange == nil && len(f.Categories) == 0)
}

// Clone returns a deep copy so stored filter context never aliases request data
func (f *Filters) Clone() *Filters {
	if f == nil {
		return nil
	}
	c := &Filters{
		EntityIDs:  append([]string(nil), f.EntityIDs...),
		Categories: append([]string(nil), f.Categories...),
	}
	if f.TimeRange != nil {
		tr := *f.TimeRange
		c.TimeRange = &tr
	}
	return c
}

// Citation references a knowledge-index source backing an agent answer
type Citation struct {
	Ref   string `json:"ref"`
	Label string `json:"label,omitempty"`
}

// QueryResponse is the stable contract returned for a successful query
type QueryResponse struct {
	Response         string     `json:"response"`
	SessionID        string     `json:"sessionId"`
	Citations        []Citation `json:"citations"`
	InsufficientData bool       `json:"insufficientData"`
	Timestamp        time.Time  `json:"timestamp"`
}

// NormalizedResponse is the normalizer's output before session bookkeeping
type NormalizedResponse struct {
	Text             string
	Citations        []Citation
	InsufficientData bool
	LatencyMs        int64
}
