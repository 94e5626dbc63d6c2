package synth

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/Harshitk-cp/smartsearch/internal/domain"
	"github.com/Harshitk-cp/smartsearch/internal/llm"
	"github.com/Harshitk-cp/smartsearch/internal/metrics"
	"github.com/Harshitk-cp/smartsearch/internal/textutil"
	"go.uber.org/zap"
)

const defaultMaxEvidence = 10

// Openers that may precede an uncited sentence. Whatever follows them must
// still be free of content words or be a stock phrase.
var connectives = [][]string{
	{"in", "summary"}, {"in", "short"}, {"overall"}, {"to", "summarize"}, {"to", "sum", "up"},
	{"in", "conclusion"}, {"however"}, {"that", "said"}, {"additionally"}, {"in", "addition"},
	{"on", "the", "other", "hand"}, {"here", "is"}, {"heres"}, {"based", "on", "the", "evidence"},
	{"according", "to", "the", "evidence"},
}

// stockPhrases describe the evidence itself rather than the world, so they
// need no citation.
var stockPhrases = map[string]struct{}{
	"the picture is mixed":    {},
	"the evidence is mixed":   {},
	"opinions are mixed":      {},
	"views are mixed":         {},
	"sources disagree":        {},
	"the sources disagree":    {},
	"sources differ":          {},
	"the sources differ":      {},
	"it depends":              {},
	"what the sources say":    {},
	"what the evidence shows": {},
}

type Config struct {
	// MaxEvidence caps how many verified groups are offered to the composer.
	MaxEvidence int
}

type Synthesizer struct {
	composer domain.Composer
	cfg      Config
	logger   *zap.Logger
}

// New returns a synthesizer. A nil composer composes extractively.
func New(composer domain.Composer, cfg Config, logger *zap.Logger) *Synthesizer {
	if composer == nil {
		composer = llm.NewExtractive(0)
	}
	if cfg.MaxEvidence <= 0 {
		cfg.MaxEvidence = defaultMaxEvidence
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{composer: composer, cfg: cfg, logger: logger}
}

// Result is the part of a SynthesizedAnswer the synthesizer owns.
type Result struct {
	Text       string
	Citations  []domain.Citation
	Confidence float64
	Fallback   bool
}

type sentence struct {
	text    string
	markers []int
}

// Synthesize composes a cited answer from the non-excluded groups. Every
// sentence in the result that states a claim carries at least one marker,
// and only groups that are actually cited are returned as citations.
func (s *Synthesizer) Synthesize(ctx context.Context, q domain.Query, verified []domain.VerifiedGroup, trace *domain.Trace) (*Result, error) {
	var usable []domain.VerifiedGroup
	for _, g := range verified {
		if !g.Verdict.Excluded {
			usable = append(usable, g)
		}
	}
	if len(usable) == 0 {
		trace.Record(domain.StageSynthesis, fmt.Sprintf("%d groups", len(verified)), domain.ErrInsufficientEvidence.Error(),
			"no group cleared the confidence floor")
		return nil, fmt.Errorf("%w: %d groups, none above the confidence floor", domain.ErrInsufficientEvidence, len(verified))
	}
	sort.SliceStable(usable, func(i, j int) bool { return usable[i].Group.Rank < usable[j].Group.Rank })
	if len(usable) > s.cfg.MaxEvidence {
		usable = usable[:s.cfg.MaxEvidence]
	}

	candidates := make([]domain.Citation, len(usable))
	numbered := make([]domain.NumberedEvidence, len(usable))
	for i, g := range usable {
		candidates[i] = citation(i+1, g)
		rep := g.Group.Representative
		numbered[i] = domain.NumberedEvidence{
			Index:     i + 1,
			Title:     rep.Title,
			Snippet:   rep.Snippet,
			SourceURL: rep.SourceURL,
			BackendID: rep.BackendID,
		}
	}

	text, err := s.composer.Compose(ctx, q.Raw, numbered)
	if err != nil {
		trace.Record(domain.StageSynthesis, fmt.Sprintf("%d evidence groups", len(usable)), domain.ErrSynthesisFailed.Error(), err.Error())
		return nil, &domain.SynthesisFailedError{Evidence: usable, Citations: candidates, Err: err}
	}

	kept, dropped := validate(text, len(numbered))
	for _, d := range dropped {
		trace.Record(domain.StageSynthesis, textutil.Truncate(d, 120), "dropped sentence", "states a claim without a valid citation")
	}

	fallback := ""
	switch {
	case strings.TrimSpace(text) == "":
		fallback = "empty_output"
	case !anyCited(kept):
		fallback = "uncited_output"
	}
	if fallback != "" {
		metrics.SynthesisFallbacks.WithLabelValues(fallback).Inc()
		s.logger.Warn("composer output unusable, answering extractively",
			zap.String("query_id", q.ID.String()),
			zap.String("reason", fallback),
		)
		trace.Record(domain.StageSynthesis, "composer output", "extractive fallback", fallback)
		kept, _ = validate(llm.ExtractiveAnswer(numbered, 0), len(numbered))
	}

	res := renumber(kept, candidates)
	res.Fallback = fallback != ""
	if len(res.Citations) == 0 {
		trace.Record(domain.StageSynthesis, "composer output", domain.ErrInsufficientEvidence.Error(), "no evidence could be cited")
		return nil, fmt.Errorf("%w: no citable evidence", domain.ErrInsufficientEvidence)
	}
	trace.Recordf(domain.StageSynthesis, fmt.Sprintf("%d evidence groups", len(usable)),
		fmt.Sprintf("%d citations", len(res.Citations)), "confidence %.3f, %d sentences", res.Confidence, len(kept))
	return res, nil
}

// validate splits composer output into sentences, keeping cited sentences
// (markers normalized, out-of-range markers removed) and connective ones.
func validate(text string, n int) (kept []sentence, dropped []string) {
	for _, raw := range textutil.Sentences(textutil.CleanMarkdown(text)) {
		var valid []int
		for _, m := range textutil.Markers(raw) {
			if m >= 1 && m <= n {
				valid = append(valid, m)
			}
		}
		body := textutil.StripMarkers(raw)
		if body == "" {
			continue
		}
		switch {
		case len(valid) > 0:
			kept = append(kept, sentence{text: body, markers: valid})
		case isConnective(body):
			kept = append(kept, sentence{text: body})
		default:
			dropped = append(dropped, raw)
		}
	}
	return kept, dropped
}

// isConnective reports whether an uncited sentence may stay in the answer:
// a question, or an optional opener followed by stop words only or by a
// stock phrase. Numbers and any other content word make it a claim.
func isConnective(s string) bool {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "?") {
		return true
	}
	words := textutil.Words(s)
	for _, c := range connectives {
		if hasWordPrefix(words, c) {
			words = words[len(c):]
			break
		}
	}
	if _, ok := stockPhrases[strings.Join(words, " ")]; ok {
		return true
	}
	for _, w := range words {
		if !textutil.IsStopWord(w) {
			return false
		}
	}
	return true
}

func hasWordPrefix(words, prefix []string) bool {
	if len(words) < len(prefix) {
		return false
	}
	for i, w := range prefix {
		if words[i] != w {
			return false
		}
	}
	return true
}

func anyCited(sentences []sentence) bool {
	for _, s := range sentences {
		if len(s.markers) > 0 {
			return true
		}
	}
	return false
}

// renumber assigns final citation numbers in order of first appearance and
// rewrites the markers to match.
func renumber(sentences []sentence, candidates []domain.Citation) *Result {
	mapping := make(map[int]int)
	res := &Result{}
	var parts []string
	for _, s := range sentences {
		if len(s.markers) == 0 {
			parts = append(parts, s.text)
			continue
		}
		markers := make([]int, 0, len(s.markers))
		for _, m := range s.markers {
			n, ok := mapping[m]
			if !ok {
				n = len(res.Citations) + 1
				mapping[m] = n
				c := candidates[m-1]
				c.Index = n
				res.Citations = append(res.Citations, c)
			}
			markers = append(markers, n)
		}
		parts = append(parts, textutil.WithMarkers(s.text, markers))
	}
	res.Text = strings.Join(parts, " ")
	res.Confidence = OverallConfidence(res.Citations)
	return res
}

// OverallConfidence is the corroboration-weighted mean confidence of the
// cited groups, rounded to three decimals.
func OverallConfidence(citations []domain.Citation) float64 {
	var num, den float64
	for _, c := range citations {
		w := float64(max(c.Corroboration, 1))
		num += w * c.Confidence
		den += w
	}
	if den == 0 {
		return 0
	}
	return math.Round(num/den*1000) / 1000
}

func citation(index int, g domain.VerifiedGroup) domain.Citation {
	rep := g.Group.Representative
	return domain.Citation{
		Index:         index,
		GroupID:       g.Group.ID,
		EvidenceID:    rep.ID,
		SourceURL:     rep.SourceURL,
		Title:         rep.Title,
		Snippet:       rep.Snippet,
		BackendID:     rep.BackendID,
		Corroboration: g.Verdict.Corroboration,
		Confidence:    g.Verdict.Confidence,
		Contradiction: g.Verdict.Contradiction,
	}
}
