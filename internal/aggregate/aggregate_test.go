package aggregate

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/Harshitk-cp/smartsearch/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var extracted = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func item(t *testing.T, backend, url, snippet string, relevance float64) domain.EvidenceItem {
	t.Helper()
	it, err := domain.NewEvidenceItem(backend, url, "", snippet, relevance, extracted)
	require.NoError(t, err)
	return it
}

var testSelection = domain.BackendSelection{
	{BackendID: domain.BackendCommunityDiscussion, Priority: 0},
	{BackendID: domain.BackendGeneralSearch, Priority: 1},
	{BackendID: domain.BackendDeepResearch, Priority: 2},
}

func TestAggregate_MergesSimilarSnippetsAcrossBackends(t *testing.T) {
	items := []domain.EvidenceItem{
		item(t, domain.BackendGeneralSearch, "https://news.example/a", "Remote learning expanded access for rural students.", 0.5),
		item(t, domain.BackendCommunityDiscussion, "https://reddit.com/r/a", "Remote learning expanded access for rural students!", 0.9),
		item(t, domain.BackendGeneralSearch, "https://news.example/b", "Tuition costs rose sharply last year.", 1.0),
	}

	a := New(Config{}, nil, zaptest.NewLogger(t))
	groups := a.Aggregate(context.Background(), items, testSelection, domain.NewTrace())
	require.Len(t, groups, 2)

	top := groups[0]
	assert.Equal(t, "g-1", top.ID)
	assert.Equal(t, 1, top.Rank)
	assert.Equal(t, 2, top.Corroboration, "corroborated group ranks first despite lower relevance")
	assert.Equal(t, []string{domain.BackendCommunityDiscussion, domain.BackendGeneralSearch}, top.Backends)
	assert.Equal(t, items[1].ID, top.Representative.ID, "highest relevance member represents the group")
	assert.Equal(t, 0, top.BestPriority)
	for _, m := range top.Members {
		assert.Equal(t, "g-1", m.GroupID)
	}

	assert.Equal(t, "g-2", groups[1].ID)
	assert.Equal(t, 1, groups[1].Corroboration)
	assert.Empty(t, items[0].GroupID, "input items are not modified")
}

func TestAggregate_GroupsPartitionItems(t *testing.T) {
	items := []domain.EvidenceItem{
		item(t, "b1", "https://a.example", "alpha beta gamma delta", 0.4),
		item(t, "b2", "https://b.example", "alpha beta gamma delta epsilon zeta", 0.4),
		item(t, "b3", "https://c.example", "gamma delta epsilon zeta", 0.4),
		item(t, "b1", "https://d.example", "something entirely unrelated here", 0.4),
		item(t, "b2", "https://e.example", "something entirely unrelated here", 0.2),
	}

	groups := New(Config{SimilarityThreshold: 0.6}, nil, nil).Aggregate(context.Background(), items, nil, nil)

	seen := make(map[string]string)
	total := 0
	for _, g := range groups {
		for _, m := range g.Members {
			if prev, ok := seen[m.ID]; ok {
				t.Fatalf("item %s in groups %s and %s", m.ID, prev, g.ID)
			}
			seen[m.ID] = g.ID
			total++
		}
	}
	if total != len(items) {
		t.Errorf("groups hold %d items, want %d", total, len(items))
	}

	// a~b and b~c while a and c share little: transitivity puts all three
	// in one group.
	if seen[items[0].ID] != seen[items[2].ID] {
		t.Errorf("items 0 and 2 in groups %s and %s, want the same group", seen[items[0].ID], seen[items[2].ID])
	}
	if seen[items[3].ID] != seen[items[4].ID] {
		t.Error("identical snippets must share a group")
	}
	if len(groups) != 2 {
		t.Errorf("len(groups) = %d, want 2", len(groups))
	}
}

func TestAggregate_OppositePolarityNeverMerges(t *testing.T) {
	items := []domain.EvidenceItem{
		item(t, "b1", "https://a.example", "Remote learning is effective for students.", 0.5),
		item(t, "b2", "https://b.example", "Remote learning is not effective for students.", 0.5),
	}
	groups := New(Config{}, nil, nil).Aggregate(context.Background(), items, nil, nil)
	assert.Len(t, groups, 2)
}

func TestAggregate_DeterministicOrdering(t *testing.T) {
	items := []domain.EvidenceItem{
		item(t, domain.BackendGeneralSearch, "https://a.example/x", "Go was released in 2009 by Google.", 0.9),
		item(t, domain.BackendDeepResearch, "https://b.example", "Go was released in 2009 by Google engineers.", 0.7),
		item(t, domain.BackendCommunityDiscussion, "https://reddit.com/1", "I find Go easy to read.", 0.5),
		item(t, domain.BackendCommunityDiscussion, "https://reddit.com/2", "Error handling in Go is verbose.", 0.5),
		item(t, domain.BackendGeneralSearch, "https://c.example", "Go has garbage collection.", 0.5),
		item(t, domain.BackendGeneralSearch, "https://www.c.example/?utm_source=x", "Go compiles to native code.", 0.5),
	}

	a := New(Config{}, nil, nil)
	want := a.Aggregate(context.Background(), items, testSelection, nil)

	rng := rand.New(rand.NewSource(7))
	for run := 0; run < 10; run++ {
		shuffled := append([]domain.EvidenceItem(nil), items...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		got := a.Aggregate(context.Background(), shuffled, testSelection, nil)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("run %d: Aggregate() mismatch (-want +got):\n%s", run, diff)
		}
	}
}

func TestAggregate_RankingTieBreaks(t *testing.T) {
	items := []domain.EvidenceItem{
		item(t, domain.BackendGeneralSearch, "https://z.example", "Zebras have stripes.", 0.5),
		item(t, domain.BackendCommunityDiscussion, "https://y.example", "Yaks live in mountains.", 0.5),
		item(t, domain.BackendGeneralSearch, "https://a.example", "Ants build colonies.", 0.5),
		item(t, domain.BackendGeneralSearch, "https://b.example", "Bees make honey.", 0.8),
	}
	groups := New(Config{}, nil, nil).Aggregate(context.Background(), items, testSelection, nil)

	var urls []string
	for _, g := range groups {
		urls = append(urls, g.Representative.SourceURL)
	}
	want := []string{
		"https://b.example", // relevance
		"https://y.example", // backend priority
		"https://a.example", // URL
		"https://z.example",
	}
	if diff := cmp.Diff(want, urls); diff != "" {
		t.Errorf("ranking mismatch (-want +got):\n%s", diff)
	}
}

type mockEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.vectors[text], nil
}

func TestAggregate_EmbeddingSimilarity(t *testing.T) {
	a1 := "The film was a box office hit."
	a2 := "Ticket sales for the movie were enormous."
	b := "The soundtrack was composed by an orchestra."
	items := []domain.EvidenceItem{
		item(t, "b1", "https://a.example", a1, 0.5),
		item(t, "b2", "https://b.example", a2, 0.5),
		item(t, "b1", "https://c.example", b, 0.5),
	}

	t.Run("cosine merges paraphrases", func(t *testing.T) {
		emb := &mockEmbedder{vectors: map[string][]float32{
			a1: {1, 0.1, 0},
			a2: {0.98, 0.12, 0},
			b:  {0, 0, 1},
		}}
		trace := domain.NewTrace()
		groups := New(Config{}, emb, nil).Aggregate(context.Background(), items, nil, trace)
		require.Len(t, groups, 2)
		assert.Equal(t, 2, groups[0].Corroboration)
	})

	t.Run("embedder failure falls back to lexical", func(t *testing.T) {
		trace := domain.NewTrace()
		groups := New(Config{}, &mockEmbedder{err: errors.New("quota")}, nil).Aggregate(context.Background(), items, nil, trace)
		assert.Len(t, groups, 3)

		found := false
		for _, e := range trace.Entries() {
			if e.Decision == "fallback to lexical similarity" {
				found = true
			}
		}
		assert.True(t, found, "fallback is traced")
	})
}

func TestAggregate_Empty(t *testing.T) {
	assert.Nil(t, New(Config{}, nil, nil).Aggregate(context.Background(), nil, nil, nil))
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		a, b []float32
		want float64
	}{
		{[]float32{1, 0}, []float32{1, 0}, 1},
		{[]float32{1, 0}, []float32{0, 1}, 0},
		{[]float32{1, 0}, []float32{1}, 0},
		{[]float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		if got := cosineSimilarity(tt.a, tt.b); got != tt.want {
			t.Errorf("cosineSimilarity(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
