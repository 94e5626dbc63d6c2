package verify

import (
	"fmt"
	"math"
	"strings"

	"github.com/Harshitk-cp/smartsearch/internal/domain"
	"github.com/Harshitk-cp/smartsearch/internal/metrics"
	"github.com/Harshitk-cp/smartsearch/internal/textutil"
	"go.uber.org/zap"
)

const (
	DefaultConfidenceFloor        = 0.2
	DefaultContradictionThreshold = 0.5
	DefaultReliability            = 0.5

	// ContradictionCap bounds the confidence of contradicted groups.
	ContradictionCap = 0.4

	corroboratedBase = 0.7
	corroboratedStep = 0.05
	corroboratedMax  = 0.95
	singleBase       = 0.3
	singleSpan       = 0.29
)

type Config struct {
	// Reliability is the fixed per-backend weight in [0,1].
	Reliability            map[string]float64
	DefaultReliability     float64
	ContradictionThreshold float64
}

type Verifier struct {
	cfg    Config
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Verifier {
	if cfg.DefaultReliability <= 0 || cfg.DefaultReliability > 1 {
		cfg.DefaultReliability = DefaultReliability
	}
	if cfg.ContradictionThreshold <= 0 || cfg.ContradictionThreshold > 1 {
		cfg.ContradictionThreshold = DefaultContradictionThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{cfg: cfg, logger: logger}
}

func (v *Verifier) Reliability(backend string) float64 {
	r, ok := v.cfg.Reliability[backend]
	if !ok {
		r = v.cfg.DefaultReliability
	}
	return clamp01(r)
}

// Confidence scores a group from its backends alone. Two or more independent
// backends give at least 0.7; a single backend lands in [0.3, 0.6) scaled by
// its reliability.
func (v *Verifier) Confidence(backends []string) float64 {
	switch len(backends) {
	case 0:
		return 0
	case 1:
		return singleBase + singleSpan*v.Reliability(backends[0])
	}
	var sum float64
	for _, b := range backends {
		sum += v.Reliability(b)
	}
	avg := sum / float64(len(backends))
	c := corroboratedBase + corroboratedStep*float64(len(backends)-2) + 0.1*avg
	return math.Min(corroboratedMax, c)
}

// Verify returns one verdict per group, in the order given. Groups scoring
// below floor are marked Excluded.
func (v *Verifier) Verify(groups []domain.EvidenceGroup, floor float64, trace *domain.Trace) []domain.VerifiedGroup {
	floor = clamp01(floor)
	out := make([]domain.VerifiedGroup, len(groups))
	feats := make([]textutil.Features, len(groups))

	for i, g := range groups {
		var relSum float64
		for _, b := range g.Backends {
			relSum += v.Reliability(b)
		}
		rel := 0.0
		if len(g.Backends) > 0 {
			rel = relSum / float64(len(g.Backends))
		}
		out[i] = domain.VerifiedGroup{
			Group: g,
			Verdict: domain.VerificationVerdict{
				GroupID:       g.ID,
				Corroboration: g.Corroboration,
				Reliability:   round3(rel),
				Confidence:    v.Confidence(g.Backends),
			},
		}
		feats[i] = textutil.Analyze(g.Representative.Snippet)
	}

	flagged := 0
	for i := range out {
		for j := i + 1; j < len(out); j++ {
			if feats[i].Negated == feats[j].Negated {
				continue
			}
			sim := textutil.Jaccard(feats[i].Shingles, feats[j].Shingles)
			if sim < v.cfg.ContradictionThreshold {
				continue
			}
			for _, k := range []int{i, j} {
				if !out[k].Verdict.Contradiction {
					flagged++
				}
				out[k].Verdict.Contradiction = true
			}
			out[i].Verdict.ContradictsWith = append(out[i].Verdict.ContradictsWith, out[j].Group.ID)
			out[j].Verdict.ContradictsWith = append(out[j].Verdict.ContradictsWith, out[i].Group.ID)
			trace.Recordf(domain.StageVerifier, out[i].Group.ID+" vs "+out[j].Group.ID, "contradiction",
				"opposite polarity on the same assertion (similarity %.2f)", sim)
			v.logger.Info("contradictory evidence",
				zap.String("group", out[i].Group.ID),
				zap.String("other", out[j].Group.ID),
				zap.Float64("similarity", sim),
			)
		}
	}
	if flagged > 0 {
		metrics.Contradictions.Add(float64(flagged))
	}

	var excluded []string
	for i := range out {
		verdict := &out[i].Verdict
		if verdict.Contradiction {
			verdict.Confidence = math.Min(verdict.Confidence, ContradictionCap)
		}
		verdict.Confidence = round3(verdict.Confidence)
		verdict.Excluded = verdict.Confidence < floor

		decision := fmt.Sprintf("confidence %.3f", verdict.Confidence)
		if verdict.Excluded {
			decision = "excluded: " + decision
			excluded = append(excluded, verdict.GroupID)
		}
		trace.Recordf(domain.StageVerifier, verdict.GroupID, decision, "%d backends (%s), reliability %.2f%s",
			verdict.Corroboration, strings.Join(out[i].Group.Backends, ", "), verdict.Reliability,
			contradictionNote(verdict))
	}
	if len(excluded) > 0 {
		trace.Recordf(domain.StageVerifier, fmt.Sprintf("%d groups", len(out)), fmt.Sprintf("excluded %d", len(excluded)),
			"below confidence floor %.2f: %s", floor, strings.Join(excluded, ", "))
	}
	return out
}

// Surviving filters out excluded groups, keeping order.
func Surviving(groups []domain.VerifiedGroup) []domain.VerifiedGroup {
	out := make([]domain.VerifiedGroup, 0, len(groups))
	for _, g := range groups {
		if !g.Verdict.Excluded {
			out = append(out, g)
		}
	}
	return out
}

func contradictionNote(v *domain.VerificationVerdict) string {
	if !v.Contradiction {
		return ""
	}
	return fmt.Sprintf(", contradicted by %s", strings.Join(v.ContradictsWith, ", "))
}

func clamp01(f float64) float64 {
	return math.Max(0, math.Min(1, f))
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
