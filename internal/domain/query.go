package domain

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
)

type Intent string

const (
	IntentFact         Intent = "FACT"
	IntentOpinion      Intent = "OPINION"
	IntentDeepResearch Intent = "DEEP_RESEARCH"
)

// AllIntents returns the intents in canonical order.
func AllIntents() []Intent {
	return []Intent{IntentFact, IntentOpinion, IntentDeepResearch}
}

// Query is a single research question. Values are never modified after
// creation; WithIntents returns a copy.
type Query struct {
	ID         uuid.UUID `json:"id"`
	Raw        string    `json:"raw"`
	Normalized string    `json:"normalized"`
	intents    []Intent
}

func NewQuery(raw string) (Query, error) {
	normalized := NormalizeText(raw)
	if normalized == "" {
		return Query{}, ErrEmptyQuery
	}
	return Query{
		ID:         uuid.New(),
		Raw:        strings.TrimSpace(raw),
		Normalized: normalized,
	}, nil
}

// NormalizeText lowercases s, drops control characters and collapses runs of
// whitespace into single spaces.
func NormalizeText(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			space = true
			continue
		case unicode.IsControl(r):
			continue
		}
		if space && sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		space = false
		sb.WriteRune(unicode.ToLower(r))
	}
	return sb.String()
}

func (q Query) Intents() []Intent {
	out := make([]Intent, len(q.intents))
	copy(out, q.intents)
	return out
}

func (q Query) HasIntent(i Intent) bool {
	for _, in := range q.intents {
		if in == i {
			return true
		}
	}
	return false
}

func (q Query) WithIntents(intents ...Intent) Query {
	out := q
	out.intents = make([]Intent, len(intents))
	copy(out.intents, intents)
	return out
}
