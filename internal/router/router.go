package router

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Harshitk-cp/smartsearch/internal/domain"
	"github.com/Harshitk-cp/smartsearch/internal/metrics"
	"github.com/Harshitk-cp/smartsearch/internal/textutil"
	"go.uber.org/zap"
)

const (
	strongCue = 2
	weakCue   = 1

	// FireThreshold is the score an intent needs to be tagged.
	FireThreshold = 2

	// longQueryWords adds a weak deep-research cue to long, open-ended questions.
	longQueryWords = 18

	FallbackRationale = "fallback: low-confidence classification."
)

type cue struct {
	phrase string
	weight int
	prefix bool // only matches at the start of the query
}

var intentCues = map[domain.Intent][]cue{
	domain.IntentFact: {
		{"who is", strongCue, false}, {"who was", strongCue, false}, {"who invented", strongCue, false},
		{"who", strongCue, true}, {"when", strongCue, true}, {"where", strongCue, true},
		{"which", strongCue, true}, {"how many", strongCue, false}, {"how much", strongCue, false},
		{"how old", strongCue, false}, {"how tall", strongCue, false}, {"how far", strongCue, false},
		{"what is", strongCue, false}, {"what are", strongCue, false}, {"what was", strongCue, false},
		{"define", strongCue, false}, {"definition of", strongCue, false}, {"meaning of", strongCue, false},
		{"capital of", strongCue, false}, {"population of", strongCue, false}, {"date of", strongCue, false},
		{"price of", strongCue, false}, {"is it true", strongCue, false},
		{"what", weakCue, true}, {"fact", weakCue, false}, {"facts", weakCue, false},
		{"statistics", weakCue, false}, {"official", weakCue, false}, {"latest", weakCue, false},
		{"current", weakCue, false},
	},
	domain.IntentOpinion: {
		{"think", strongCue, false}, {"thinks", strongCue, false}, {"thoughts on", strongCue, false},
		{"opinion", strongCue, false}, {"opinions", strongCue, false}, {"experience with", strongCue, false},
		{"experiences", strongCue, false}, {"review", strongCue, false}, {"reviews", strongCue, false},
		{"recommend", strongCue, false}, {"recommendations", strongCue, false}, {"worth it", strongCue, false},
		{"should i", strongCue, false}, {"what do people", strongCue, false}, {"people say", strongCue, false},
		{"feel about", strongCue, false}, {"favorite", strongCue, false}, {"favourite", strongCue, false},
		{"advice", strongCue, false}, {"reddit", strongCue, false},
		{"best", weakCue, false}, {"better", weakCue, false}, {"anyone", weakCue, false},
		{"pros and cons", weakCue, false}, {"students", weakCue, false}, {"users", weakCue, false},
		{"like", weakCue, false},
	},
	domain.IntentDeepResearch: {
		{"in depth", strongCue, false}, {"comprehensive", strongCue, false}, {"deep dive", strongCue, false},
		{"thorough", strongCue, false}, {"analysis of", strongCue, false}, {"analyze", strongCue, false},
		{"analyse", strongCue, false}, {"compare", strongCue, false}, {"comparison", strongCue, false},
		{"history of", strongCue, false}, {"evolution of", strongCue, false}, {"impact of", strongCue, false},
		{"implications", strongCue, false}, {"literature review", strongCue, false}, {"research on", strongCue, false},
		{"overview of", strongCue, false}, {"state of the art", strongCue, false}, {"explain in detail", strongCue, false},
		{"why", weakCue, true}, {"how does", weakCue, false}, {"relationship between", weakCue, false},
		{"trends", weakCue, false}, {"effects of", weakCue, false}, {"versus", weakCue, false},
		{"vs", weakCue, false}, {"pros and cons", weakCue, false},
	},
}

var intentBackend = map[domain.Intent]string{
	domain.IntentFact:         domain.BackendGeneralSearch,
	domain.IntentOpinion:      domain.BackendCommunityDiscussion,
	domain.IntentDeepResearch: domain.BackendDeepResearch,
}

// BackendSet is the read side of the backend registry.
type BackendSet interface {
	Has(id string) bool
	IDs() []string
}

// Score is the classifier output for one intent.
type Score struct {
	Intent  domain.Intent
	Score   int
	Matched []string
}

type Router struct {
	backends BackendSet
	logger   *zap.Logger
}

func New(backends BackendSet, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{backends: backends, logger: logger}
}

// Classify scores every intent against the normalized query. The result is
// in canonical intent order and depends only on the query text.
func Classify(q domain.Query) []Score {
	words := textutil.Words(q.Normalized)
	padded := " " + strings.Join(words, " ") + " "
	first := ""
	if len(words) > 0 {
		first = words[0]
	}

	scores := make([]Score, 0, len(intentCues))
	for _, intent := range domain.AllIntents() {
		s := Score{Intent: intent}
		for _, c := range intentCues[intent] {
			if c.prefix {
				if first != c.phrase {
					continue
				}
			} else if !strings.Contains(padded, " "+c.phrase+" ") {
				continue
			}
			s.Score += c.weight
			s.Matched = append(s.Matched, c.phrase)
		}
		if intent == domain.IntentDeepResearch && len(words) >= longQueryWords {
			s.Score += weakCue
			s.Matched = append(s.Matched, fmt.Sprintf("long query (%d words)", len(words)))
		}
		scores = append(scores, s)
	}
	return scores
}

// Route tags q with the intents that fire and selects backends for them. An
// explicit override skips classification. The returned selection is never
// empty unless the registry itself is empty.
func (r *Router) Route(q domain.Query, override []string, trace *domain.Trace) (domain.Query, domain.BackendSelection, error) {
	if len(override) > 0 {
		return r.routeOverride(q, override, trace)
	}

	scores := Classify(q)
	fired := make([]Score, 0, len(scores))
	for _, s := range scores {
		if s.Score >= FireThreshold {
			fired = append(fired, s)
		}
	}
	// Stable sort keeps canonical order on equal scores.
	sort.SliceStable(fired, func(i, j int) bool { return fired[i].Score > fired[j].Score })

	intents := make([]domain.Intent, 0, len(fired))
	for _, s := range fired {
		intents = append(intents, s.Intent)
		metrics.RoutedIntents.WithLabelValues(string(s.Intent)).Inc()
	}
	q = q.WithIntents(intents...)

	var sel domain.BackendSelection
	add := func(id, rationale string) {
		for _, c := range sel {
			if c.BackendID == id {
				return
			}
		}
		sel = append(sel, domain.BackendChoice{BackendID: id, Priority: len(sel), Rationale: rationale})
	}

	for _, s := range fired {
		id := intentBackend[s.Intent]
		if !r.backends.Has(id) {
			trace.Record(domain.StageRouter, string(s.Intent), "skip "+id, "backend not registered")
			continue
		}
		add(id, fmt.Sprintf("%s intent (score %d: %s)", s.Intent, s.Score, strings.Join(s.Matched, ", ")))
	}

	if len(sel) > 0 && !q.HasIntent(domain.IntentFact) && r.backends.Has(domain.BackendGeneralSearch) {
		add(domain.BackendGeneralSearch, "general search added for corroboration")
	}

	if len(sel) == 0 {
		id := domain.BackendGeneralSearch
		if !r.backends.Has(id) {
			ids := r.backends.IDs()
			if len(ids) == 0 {
				return q, nil, fmt.Errorf("%w: no backends registered", domain.ErrUnknownBackend)
			}
			id = ids[0]
		}
		add(id, FallbackRationale)
		trace.Record(domain.StageRouter, summarizeScores(scores), domain.ErrRoutingAmbiguous.Error(), FallbackRationale)
		r.logger.Debug("routing fell back", zap.String("query_id", q.ID.String()), zap.String("backend", id))
	}

	for _, c := range sel {
		trace.Record(domain.StageRouter, summarizeScores(scores),
			fmt.Sprintf("select %s (priority %d)", c.BackendID, c.Priority), c.Rationale)
	}
	r.logger.Debug("query routed",
		zap.String("query_id", q.ID.String()),
		zap.Strings("backends", sel.IDs()),
	)
	return q, sel, nil
}

func (r *Router) routeOverride(q domain.Query, override []string, trace *domain.Trace) (domain.Query, domain.BackendSelection, error) {
	var sel domain.BackendSelection
	var unknown []string
	seen := make(map[string]bool)
	for _, id := range override {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if !r.backends.Has(id) {
			unknown = append(unknown, id)
			trace.Record(domain.StageRouter, "override "+id, "skip "+id, "backend not registered")
			continue
		}
		sel = append(sel, domain.BackendChoice{BackendID: id, Priority: len(sel), Rationale: "explicit override"})
	}
	if len(sel) == 0 {
		return q, nil, fmt.Errorf("%w: %s", domain.ErrUnknownBackend, strings.Join(unknown, ", "))
	}
	for _, c := range sel {
		trace.Record(domain.StageRouter, "explicit backends", fmt.Sprintf("select %s (priority %d)", c.BackendID, c.Priority), c.Rationale)
	}
	return q, sel, nil
}

func summarizeScores(scores []Score) string {
	parts := make([]string, len(scores))
	for i, s := range scores {
		parts[i] = fmt.Sprintf("%s=%d", s.Intent, s.Score)
	}
	return strings.Join(parts, " ")
}
