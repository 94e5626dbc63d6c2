package aggregate

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/Harshitk-cp/smartsearch/internal/domain"
	"github.com/Harshitk-cp/smartsearch/internal/metrics"
	"github.com/Harshitk-cp/smartsearch/internal/textutil"
	"go.uber.org/zap"
)

const (
	DefaultSimilarityThreshold = 0.6
	DefaultEmbeddingThreshold  = 0.9
)

type Config struct {
	// SimilarityThreshold is the lexical Jaccard score at or above which two
	// snippets are the same claim.
	SimilarityThreshold float64
	// EmbeddingThreshold is the cosine score used when an embedder is set.
	EmbeddingThreshold float64
}

type Aggregator struct {
	cfg      Config
	embedder domain.EmbeddingClient
	logger   *zap.Logger
}

// New returns an aggregator. embedder may be nil, in which case only lexical
// similarity is used.
func New(cfg Config, embedder domain.EmbeddingClient, logger *zap.Logger) *Aggregator {
	if cfg.SimilarityThreshold <= 0 || cfg.SimilarityThreshold > 1 {
		cfg.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if cfg.EmbeddingThreshold <= 0 || cfg.EmbeddingThreshold > 1 {
		cfg.EmbeddingThreshold = DefaultEmbeddingThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{cfg: cfg, embedder: embedder, logger: logger}
}

type candidate struct {
	item      domain.EvidenceItem
	priority  int
	canonical string
	features  textutil.Features
	vector    []float32
}

// Aggregate clusters items into dedup groups and ranks them. Items are
// copied; the caller's slice is not modified. The output order depends only
// on the input set, not on its order.
func (a *Aggregator) Aggregate(ctx context.Context, items []domain.EvidenceItem, sel domain.BackendSelection, trace *domain.Trace) []domain.EvidenceGroup {
	if len(items) == 0 {
		trace.Record(domain.StageAggregator, "0 items", "no groups", "nothing to aggregate")
		return nil
	}

	cands := make([]candidate, len(items))
	for i, it := range items {
		cands[i] = candidate{
			item:      it,
			priority:  sel.PriorityOf(it.BackendID),
			canonical: textutil.CanonicalURL(it.SourceURL),
			features:  textutil.Analyze(it.Snippet),
		}
		// Snippets made only of stopwords fall back to the title.
		if len(cands[i].features.Shingles) == 0 {
			cands[i].features = textutil.Analyze(it.Title)
		}
	}
	sort.Slice(cands, func(i, j int) bool { return lessCandidate(cands[i], cands[j]) })

	useEmbeddings := a.embed(ctx, cands, trace)

	uf := newUnionFind(len(cands))
	for i := 0; i < len(cands); i++ {
		for j := i + 1; j < len(cands); j++ {
			if uf.find(i) == uf.find(j) {
				continue
			}
			if a.similar(cands[i], cands[j], useEmbeddings) {
				uf.union(i, j)
			}
		}
	}

	byRoot := make(map[int][]int)
	var roots []int
	for i := range cands {
		r := uf.find(i)
		if _, ok := byRoot[r]; !ok {
			roots = append(roots, r)
		}
		byRoot[r] = append(byRoot[r], i)
	}

	groups := make([]domain.EvidenceGroup, 0, len(roots))
	for _, r := range roots {
		groups = append(groups, buildGroup(cands, byRoot[r]))
	}

	sort.Slice(groups, func(i, j int) bool { return lessGroup(groups[i], groups[j]) })
	merged := 0
	for i := range groups {
		g := &groups[i]
		g.Rank = i + 1
		g.ID = fmt.Sprintf("g-%d", g.Rank)
		g.Representative.GroupID = g.ID
		for m := range g.Members {
			g.Members[m].GroupID = g.ID
		}
		if len(g.Members) > 1 {
			merged += len(g.Members) - 1
			trace.Recordf(domain.StageAggregator, g.ID, fmt.Sprintf("merged %d items", len(g.Members)),
				"similar snippets from %s", strings.Join(g.Backends, ", "))
		}
	}

	metrics.EvidenceGroups.Observe(float64(len(groups)))
	mode := "lexical"
	if useEmbeddings {
		mode = "embedding"
	}
	trace.Recordf(domain.StageAggregator, fmt.Sprintf("%d items", len(items)),
		fmt.Sprintf("%d groups", len(groups)), "%d duplicates merged (%s similarity)", merged, mode)
	return groups
}

func (a *Aggregator) embed(ctx context.Context, cands []candidate, trace *domain.Trace) bool {
	if a.embedder == nil {
		return false
	}
	for i := range cands {
		vec, err := a.embedder.Embed(ctx, cands[i].item.Snippet)
		if err != nil || len(vec) == 0 {
			a.logger.Warn("embedding failed, using lexical similarity", zap.Error(err))
			trace.Record(domain.StageAggregator, "embeddings", "fallback to lexical similarity", fmt.Sprintf("embedder error: %v", err))
			for j := range cands {
				cands[j].vector = nil
			}
			return false
		}
		cands[i].vector = vec
	}
	return true
}

// similar never merges statements of opposite polarity.
func (a *Aggregator) similar(x, y candidate, useEmbeddings bool) bool {
	if x.features.Negated != y.features.Negated {
		return false
	}
	if textutil.Jaccard(x.features.Shingles, y.features.Shingles) >= a.cfg.SimilarityThreshold {
		return true
	}
	return useEmbeddings && cosineSimilarity(x.vector, y.vector) >= a.cfg.EmbeddingThreshold
}

func buildGroup(cands []candidate, idx []int) domain.EvidenceGroup {
	g := domain.EvidenceGroup{BestPriority: math.MaxInt}
	rep := idx[0]
	seen := make(map[string]bool)
	for _, i := range idx {
		c := cands[i]
		g.Members = append(g.Members, c.item)
		if !seen[c.item.BackendID] {
			seen[c.item.BackendID] = true
			g.Backends = append(g.Backends, c.item.BackendID)
		}
		if c.priority < g.BestPriority {
			g.BestPriority = c.priority
		}
		if betterRepresentative(c, cands[rep]) {
			rep = i
		}
	}
	sort.Strings(g.Backends)
	g.Corroboration = len(g.Backends)
	g.Representative = cands[rep].item
	return g
}

func betterRepresentative(c, cur candidate) bool {
	if c.item.RawRelevance != cur.item.RawRelevance {
		return c.item.RawRelevance > cur.item.RawRelevance
	}
	return lessCandidate(c, cur)
}

// lessCandidate is the pre-sort: backend priority, relevance, URL, snippet, id.
func lessCandidate(a, b candidate) bool {
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	if a.item.RawRelevance != b.item.RawRelevance {
		return a.item.RawRelevance > b.item.RawRelevance
	}
	if a.canonical != b.canonical {
		return a.canonical < b.canonical
	}
	if a.item.Snippet != b.item.Snippet {
		return a.item.Snippet < b.item.Snippet
	}
	return a.item.ID < b.item.ID
}

// lessGroup orders groups by corroboration, representative relevance, best
// backend priority, then URL, snippet and id of the representative.
func lessGroup(a, b domain.EvidenceGroup) bool {
	if a.Corroboration != b.Corroboration {
		return a.Corroboration > b.Corroboration
	}
	ra, rb := a.Representative, b.Representative
	if ra.RawRelevance != rb.RawRelevance {
		return ra.RawRelevance > rb.RawRelevance
	}
	if a.BestPriority != b.BestPriority {
		return a.BestPriority < b.BestPriority
	}
	ua, ub := textutil.CanonicalURL(ra.SourceURL), textutil.CanonicalURL(rb.SourceURL)
	if ua != ub {
		return ua < ub
	}
	if ra.Snippet != rb.Snippet {
		return ra.Snippet < rb.Snippet
	}
	return ra.ID < rb.ID
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := 0; i < len(a); i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
