package llm

import (
	"context"
	"strings"

	"github.com/Harshitk-cp/smartsearch/internal/domain"
	"github.com/Harshitk-cp/smartsearch/internal/textutil"
)

const defaultExtractiveSentences = 5

// Extractive composes an answer without a model: the lead sentence of each
// evidence entry, cited. It never fails and is the synthesizer's fallback.
type Extractive struct {
	maxSentences int
}

func NewExtractive(maxSentences int) *Extractive {
	if maxSentences <= 0 {
		maxSentences = defaultExtractiveSentences
	}
	return &Extractive{maxSentences: maxSentences}
}

func (e *Extractive) Compose(ctx context.Context, query string, evidence []domain.NumberedEvidence) (string, error) {
	return ExtractiveAnswer(evidence, e.maxSentences), nil
}

// ExtractiveAnswer joins "<lead sentence> [n]." for up to limit entries in
// the order given. Entries whose lead sentence repeats an earlier one are
// skipped.
func ExtractiveAnswer(evidence []domain.NumberedEvidence, limit int) string {
	if limit <= 0 {
		limit = defaultExtractiveSentences
	}
	var parts []string
	seen := make(map[string]bool)
	for _, e := range evidence {
		if len(parts) == limit {
			break
		}
		lead := leadSentence(e.Snippet)
		if lead == "" {
			lead = leadSentence(e.Title)
		}
		key := strings.ToLower(lead)
		if lead == "" || seen[key] {
			continue
		}
		seen[key] = true
		parts = append(parts, textutil.WithMarkers(lead, []int{e.Index}))
	}
	return strings.Join(parts, " ")
}

func leadSentence(s string) string {
	s = textutil.StripMarkers(strings.ReplaceAll(textutil.CleanMarkdown(s), "\n", " "))
	sentences := textutil.Sentences(s)
	if len(sentences) == 0 {
		return ""
	}
	return sentences[0]
}
