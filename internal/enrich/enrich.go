// Package enrich builds the context-aware query text sent to the
// conversational agent. It is pure: identical inputs always produce
// byte-identical output.
package enrich

import (
	"strings"
	"time"

	"github.com/kestrand/maintchat/internal/domain"
)

const timeLayout = "2006-01-02"

// followUpIndicators marks utterances that likely continue the prior
// exchange, so the agent keeps the conversational thread.
var followUpIndicators = []string{
	"also",
	"what about",
	"and ",
	"additionally",
	"furthermore",
	"moreover",
}

// Build appends natural-language qualifier clauses to rawText for each
// present filter, in a fixed order: equipment, then time range, then
// fault categories. When filters is empty but the session carries prior
// filter context, the prior context is reused unchanged; explicit
// filters replace it entirely.
func Build(rawText string, filters, prior *domain.Filters, hasHistory bool) string {
	text := strings.TrimSpace(rawText)
	if text == "" {
		return text
	}

	active := filters
	if active.IsEmpty() {
		active = prior
	}

	var b strings.Builder
	b.WriteString(text)

	if !active.IsEmpty() {
		if len(active.EntityIDs) > 0 {
			b.WriteString(" (Focus on equipment: ")
			b.WriteString(strings.Join(active.EntityIDs, ", "))
			b.WriteString(")")
		}
		if tr := active.TimeRange; tr != nil {
			b.WriteString(" (Time range: ")
			b.WriteString(formatBound(tr.Start))
			b.WriteString(" to ")
			b.WriteString(formatBound(tr.End))
			b.WriteString(")")
		}
		if len(active.Categories) > 0 {
			b.WriteString(" (Focus on fault types: ")
			b.WriteString(strings.Join(active.Categories, ", "))
			b.WriteString(")")
		}
	}

	if hasHistory && isFollowUp(text) {
		b.WriteString(" (This is a follow-up question in our ongoing conversation)")
	}

	return b.String()
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return "open"
	}
	return t.UTC().Format(timeLayout)
}

func isFollowUp(text string) bool {
	lower := strings.ToLower(text)
	for _, ind := range followUpIndicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}
