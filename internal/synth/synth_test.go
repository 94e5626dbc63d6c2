package synth

import (
	"context"
	"errors"
	"testing"

	"github.com/Harshitk-cp/smartsearch/internal/domain"
	"github.com/Harshitk-cp/smartsearch/internal/llm"
	"github.com/Harshitk-cp/smartsearch/internal/textutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func verified(id string, rank int, snippet string, corroboration int, confidence float64, excluded bool) domain.VerifiedGroup {
	return domain.VerifiedGroup{
		Group: domain.EvidenceGroup{
			ID:   id,
			Rank: rank,
			Representative: domain.EvidenceItem{
				ID:        id + "-rep",
				Snippet:   snippet,
				SourceURL: "https://" + id + ".example",
				BackendID: domain.BackendGeneralSearch,
			},
			Corroboration: corroboration,
		},
		Verdict: domain.VerificationVerdict{GroupID: id, Corroboration: corroboration, Confidence: confidence, Excluded: excluded},
	}
}

func mustQuery(t *testing.T) domain.Query {
	q, err := domain.NewQuery("What do students think about remote learning?")
	require.NoError(t, err)
	return q
}

func testGroups() []domain.VerifiedGroup {
	return []domain.VerifiedGroup{
		verified("g-1", 1, "Remote learning reduced social interaction.", 2, 0.78, false),
		verified("g-2", 2, "Remote learning expanded access for rural students.", 1, 0.445, false),
		verified("g-3", 3, "A forum post about pizza.", 1, 0.1, true),
	}
}

func TestSynthesize_ValidatesAndRenumbersCitations(t *testing.T) {
	composer := &llm.MockComposer{Response: "Remote learning expanded access [2]. It reduced interaction [1][7]. " +
		"Students love pizza. Overall, the picture is mixed."}
	trace := domain.NewTrace()

	res, err := New(composer, Config{}, zaptest.NewLogger(t)).Synthesize(context.Background(), mustQuery(t), testGroups(), trace)
	require.NoError(t, err)

	assert.Equal(t, "Remote learning expanded access [1]. It reduced interaction [2]. Overall, the picture is mixed.", res.Text)
	require.Len(t, res.Citations, 2)
	assert.Equal(t, 1, res.Citations[0].Index)
	assert.Equal(t, "g-2", res.Citations[0].GroupID)
	assert.Equal(t, "g-2-rep", res.Citations[0].EvidenceID)
	assert.Equal(t, 2, res.Citations[1].Index)
	assert.Equal(t, "g-1", res.Citations[1].GroupID)
	assert.InDelta(t, 0.668, res.Confidence, 1e-9)
	assert.False(t, res.Fallback)

	require.Len(t, composer.Calls, 1)
	assert.Len(t, composer.Calls[0].Evidence, 2, "excluded groups never reach the composer")
	assert.Equal(t, "What do students think about remote learning?", composer.Calls[0].Query)

	dropped := 0
	for _, e := range trace.Entries() {
		if e.Decision == "dropped sentence" {
			dropped++
		}
	}
	assert.Equal(t, 1, dropped)
}

func TestSynthesize_EveryClaimIsCited(t *testing.T) {
	composer := &llm.MockComposer{Response: "## Answer\n- Access expanded for rural students [2]\n- Many felt isolated [1].\nHowever, remote learning is cheaper for universities overall.\nIn short, it depends."}
	res, err := New(composer, Config{}, nil).Synthesize(context.Background(), mustQuery(t), testGroups(), nil)
	require.NoError(t, err)

	for _, s := range textutil.Sentences(res.Text) {
		if len(textutil.Markers(s)) == 0 && !isConnective(textutil.StripMarkers(s)) {
			t.Errorf("uncited claim in answer: %q", s)
		}
	}
	assert.NotContains(t, res.Text, "cheaper")
	assert.Contains(t, res.Text, "In short, it depends.")
}

func TestSynthesize_DropsShortUncitedClaims(t *testing.T) {
	composer := &llm.MockComposer{Response: "Remote learning expanded access [2].\n" +
		"Overall, remote learning failed students.\n" +
		"However, grades collapsed.\n" +
		"Remote learning is harmful:\n" +
		"Overall, the picture is mixed."}
	trace := domain.NewTrace()

	res, err := New(composer, Config{}, nil).Synthesize(context.Background(), mustQuery(t), testGroups(), trace)
	require.NoError(t, err)

	assert.Equal(t, "Remote learning expanded access [1]. Overall, the picture is mixed.", res.Text)
	var dropped []string
	for _, e := range trace.Entries() {
		if e.Decision == "dropped sentence" {
			dropped = append(dropped, e.InputSummary)
		}
	}
	assert.Equal(t, []string{
		"Overall, remote learning failed students.",
		"However, grades collapsed.",
		"Remote learning is harmful:",
	}, dropped)
}

func TestSynthesize_UncitedOutputFallsBackToExtractive(t *testing.T) {
	composer := &llm.MockComposer{Response: "Remote learning is great. Everyone agrees."}
	trace := domain.NewTrace()
	res, err := New(composer, Config{}, nil).Synthesize(context.Background(), mustQuery(t), testGroups(), trace)
	require.NoError(t, err)

	assert.True(t, res.Fallback)
	assert.Equal(t, "Remote learning reduced social interaction [1]. Remote learning expanded access for rural students [2].", res.Text)
	require.Len(t, res.Citations, 2)
	assert.Equal(t, "g-1", res.Citations[0].GroupID)
}

func TestSynthesize_InsufficientEvidence(t *testing.T) {
	groups := []domain.VerifiedGroup{verified("g-1", 1, "Weak claim.", 1, 0.1, true)}
	composer := llm.NewMockComposer()

	_, err := New(composer, Config{}, nil).Synthesize(context.Background(), mustQuery(t), groups, domain.NewTrace())
	assert.ErrorIs(t, err, domain.ErrInsufficientEvidence)
	assert.Empty(t, composer.Calls, "composer is not called without evidence")

	_, err = New(composer, Config{}, nil).Synthesize(context.Background(), mustQuery(t), nil, nil)
	assert.ErrorIs(t, err, domain.ErrInsufficientEvidence)
}

func TestSynthesize_ComposerErrorKeepsEvidence(t *testing.T) {
	composer := &llm.MockComposer{Err: errors.New("model overloaded")}
	_, err := New(composer, Config{}, nil).Synthesize(context.Background(), mustQuery(t), testGroups(), nil)

	require.ErrorIs(t, err, domain.ErrSynthesisFailed)
	var sfe *domain.SynthesisFailedError
	require.True(t, errors.As(err, &sfe))
	assert.Len(t, sfe.Evidence, 2)
	require.Len(t, sfe.Citations, 2)
	assert.Equal(t, "https://g-1.example", sfe.Citations[0].SourceURL)
	assert.EqualError(t, sfe.Err, "model overloaded")
}

func TestSynthesize_MaxEvidence(t *testing.T) {
	composer := llm.NewMockComposer()
	_, err := New(composer, Config{MaxEvidence: 1}, nil).Synthesize(context.Background(), mustQuery(t), testGroups(), nil)
	require.NoError(t, err)
	require.Len(t, composer.Calls, 1)
	assert.Len(t, composer.Calls[0].Evidence, 1)
}

func TestSynthesize_NilComposerIsExtractive(t *testing.T) {
	res, err := New(nil, Config{}, nil).Synthesize(context.Background(), mustQuery(t), testGroups(), nil)
	require.NoError(t, err)
	assert.Len(t, res.Citations, 2)
	assert.False(t, res.Fallback)
}

func TestIsConnective(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"Overall, the picture is mixed.", true},
		{"In summary, students are split.", false},
		{"In short, it depends.", true},
		{"Sources disagree.", true},
		{"Overall.", true},
		{"Overall, remote learning failed students.", false},
		{"However, grades collapsed.", false},
		{"Remote learning is harmful:", false},
		{"Here's the catch: costs rose.", false},
		{"However, remote learning reduced social interaction for most rural students.", false},
		{"Overall, 73 percent liked it.", false},
		{"What does this mean for universities?", true},
		{"Here is what the sources say:", true},
		{"Remote learning works.", false},
	}
	for _, tt := range tests {
		if got := isConnective(tt.in); got != tt.want {
			t.Errorf("isConnective(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestOverallConfidence(t *testing.T) {
	tests := []struct {
		name      string
		citations []domain.Citation
		want      float64
	}{
		{"empty", nil, 0},
		{"single", []domain.Citation{{Corroboration: 1, Confidence: 0.5}}, 0.5},
		{"weighted", []domain.Citation{{Corroboration: 3, Confidence: 0.8}, {Corroboration: 1, Confidence: 0.4}}, 0.7},
		{"zero corroboration counts once", []domain.Citation{{Corroboration: 0, Confidence: 0.3}}, 0.3},
	}
	for _, tt := range tests {
		if got := OverallConfidence(tt.citations); got != tt.want {
			t.Errorf("%s: OverallConfidence() = %v, want %v", tt.name, got, tt.want)
		}
	}
}
