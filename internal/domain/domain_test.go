package domain

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     QueryRequest
		wantErr bool
	}{
		{"valid", QueryRequest{Query: "Why did the pump fail?"}, false},
		{"empty", QueryRequest{Query: ""}, true},
		{"whitespace only", QueryRequest{Query: "   \t  "}, true},
		{"at length bound", QueryRequest{Query: strings.Repeat("x", 100)}, false},
		{"over length bound", QueryRequest{Query: strings.Repeat("x", 101)}, true},
		{
			"inverted time range",
			QueryRequest{Query: "q", Filters: &Filters{TimeRange: &TimeRange{
				Start: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
				End:   time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
			}}},
			true,
		},
		{
			"open-ended time range",
			QueryRequest{Query: "q", Filters: &Filters{TimeRange: &TimeRange{
				Start: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			}}},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate(100)
			if tt.wantErr {
				require.NotNil(t, err)
				assert.Equal(t, KindInput, err.Kind)
			} else {
				assert.Nil(t, err)
			}
		})
	}
}

func TestFilters_Clone(t *testing.T) {
	orig := &Filters{
		EntityIDs: []string{"PUMP_001"},
		TimeRange: &TimeRange{Start: time.Now().UTC()},
	}

	clone := orig.Clone()
	clone.EntityIDs[0] = "mutated"
	clone.TimeRange.Start = time.Time{}

	assert.Equal(t, "PUMP_001", orig.EntityIDs[0])
	assert.False(t, orig.TimeRange.Start.IsZero())

	var nilFilters *Filters
	assert.Nil(t, nilFilters.Clone())
	assert.True(t, nilFilters.IsEmpty())
}

func TestError_HTTPStatus(t *testing.T) {
	tests := []struct {
		err    *Error
		status int
	}{
		{NewInputError("bad"), http.StatusBadRequest},
		{NewTimeoutError("slow"), http.StatusGatewayTimeout},
		{NewTransientError("busy"), http.StatusServiceUnavailable},
		{NewPermanentError("broken"), http.StatusBadGateway},
		{NewSessionError("gone"), http.StatusNotFound},
		{NewInternalError("oops"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, tt.err.HTTPStatus())
	}
}

func TestAsError_WrapsUnclassified(t *testing.T) {
	raw := errors.New("raw driver failure")
	de := AsError(raw)
	assert.Equal(t, KindInternal, de.Kind)
	assert.NotContains(t, de.Message, "driver")
	assert.ErrorIs(t, de, raw)
}

func TestSession_Apply(t *testing.T) {
	sess := &Session{ID: "s"}
	now := time.Now().UTC()

	sess.Apply(Turn{Role: RoleUser, Text: "q", Timestamp: now})
	sess.Apply(Turn{Role: RoleAssistant, Text: "a", Timestamp: now, LatencyMs: 100})
	sess.Apply(Turn{Role: RoleUser, Text: "q2", Timestamp: now})
	sess.Apply(Turn{Role: RoleAssistant, Text: "err", Timestamp: now, Failed: true})

	assert.Equal(t, 2, sess.Stats.TotalQueries)
	assert.Equal(t, 1, sess.Stats.Successes)
	assert.Equal(t, 1, sess.Stats.Errors)
	assert.Equal(t, int64(100), sess.Stats.AvgLatencyMs())
	assert.Equal(t, 4, sess.TurnCount())
}
